// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mpc.
//
// go-mpc is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package enclave

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	tdxabi "github.com/google/go-tdx-guest/abi"
	tdxclient "github.com/google/go-tdx-guest/client"
	tdxpb "github.com/google/go-tdx-guest/proto/tdx"
	"github.com/google/go-tdx-guest/verify"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// QuoteProvider produces a raw TDX quote over 64 bytes of report data.
type QuoteProvider interface {
	IsSupported() error
	GetRawQuote(reportData [64]byte) ([]byte, error)
}

// DefaultQuoteProvider uses the configfs-tsm interface when the kernel
// exposes it and the legacy /dev/tdx_guest device otherwise.
type DefaultQuoteProvider struct{}

func (DefaultQuoteProvider) IsSupported() error {
	qp := &tdxclient.LinuxConfigFsQuoteProvider{}
	if err := qp.IsSupported(); err == nil {
		return nil
	}
	dev, err := tdxclient.OpenDevice()
	if err != nil {
		return err
	}
	return dev.Close()
}

func (DefaultQuoteProvider) GetRawQuote(reportData [64]byte) ([]byte, error) {
	qp := &tdxclient.LinuxConfigFsQuoteProvider{}
	if qp.IsSupported() == nil {
		return qp.GetRawQuote(reportData)
	}

	dev, err := tdxclient.OpenDevice()
	if err != nil {
		return nil, err
	}
	defer dev.Close()
	return tdxclient.GetRawQuote(dev, reportData)
}

// TEEVault seals in software inside a confidential guest and attests with
// hardware quotes. Its ciphertexts are interchangeable with a SoftwareVault
// holding the same master key.
type TEEVault struct {
	*SoftwareVault
	quotes QuoteProvider
}

var _ Vault = (*TEEVault)(nil)

// NewTEEVault wraps a software vault. A nil provider selects
// DefaultQuoteProvider. Construction fails with ErrUnavailable when the
// provider is not supported on this host.
func NewTEEVault(config *SoftwareConfig, tee *TEEConfig, quotes QuoteProvider) (*TEEVault, error) {
	if quotes == nil {
		quotes = DefaultQuoteProvider{}
	}
	if err := quotes.IsSupported(); err != nil {
		return nil, fmt.Errorf("%w: tdx quote provider: %w", ErrUnavailable, err)
	}

	cfg := SoftwareConfig{}
	if config != nil {
		cfg = *config
	}
	cfg.Kind = KindGenericTEE
	if tee != nil && tee.Kind != "" {
		cfg.Kind = tee.Kind
	}

	sw, err := NewSoftwareVault(&cfg)
	if err != nil {
		return nil, err
	}
	return &TEEVault{SoftwareVault: sw, quotes: quotes}, nil
}

func (v *TEEVault) Available() bool {
	return v.SoftwareVault.Available() && v.quotes.IsSupported() == nil
}

// Attest returns a raw TDX quote whose report data is SHA-512(challenge).
func (v *TEEVault) Attest(_ context.Context, challenge []byte) ([]byte, error) {
	quote, err := v.quotes.GetRawQuote(ReportData(challenge))
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", types.ErrOther, ErrUnavailable, err)
	}
	return quote, nil
}

// ReportData is the TDX report data bound to an attestation challenge.
func ReportData(challenge []byte) [64]byte {
	return sha512.Sum512(challenge)
}

// TEEMeasurements are the hex-encoded registers of a verified quote.
type TEEMeasurements struct {
	MrTd  string   `json:"mr_td"`
	Rtmrs []string `json:"rtmrs"`
}

// VerifyTEEQuote parses a TDX v4 quote and checks that it was issued for
// challenge. With collateral set, the quote signature chain is also
// verified against Intel PCS, which needs network access.
func VerifyTEEQuote(quote, challenge []byte, collateral bool) (*TEEMeasurements, error) {
	parsed, err := tdxabi.QuoteToProto(quote)
	if err != nil {
		return nil, fmt.Errorf("%w: parse quote: %w", types.ErrSerialization, err)
	}
	v4, ok := parsed.(*tdxpb.QuoteV4)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported quote type %T", types.ErrSerialization, parsed)
	}

	if collateral {
		opts := verify.DefaultOptions()
		opts.GetCollateral = true
		opts.CheckRevocations = true
		if err := verify.TdxQuote(v4, opts); err != nil {
			return nil, fmt.Errorf("%w: quote verification: %w", types.ErrCryptographic, err)
		}
	}

	body := v4.GetTdQuoteBody()
	want := ReportData(challenge)
	if !bytes.Equal(body.GetReportData(), want[:]) {
		return nil, fmt.Errorf("%w: quote report data does not match challenge", types.ErrCryptographic)
	}

	m := &TEEMeasurements{MrTd: hex.EncodeToString(body.GetMrTd())}
	for _, r := range body.GetRtmrs() {
		m.Rtmrs = append(m.Rtmrs, hex.EncodeToString(r))
	}
	return m, nil
}
