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

package protocol

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/jeremyhahn/go-mpc/pkg/crypto/ecc"
	"github.com/jeremyhahn/go-mpc/pkg/threshold"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// Reconstruct is the centralized-reconstruction strategy. Signing
// interpolates the private key from a quorum of shares on the calling
// party, signs, and scrubs the key. It is a threshold of custody, not of
// computation: the coordinating party briefly holds the whole key.
type Reconstruct struct {
	config *Config
}

var _ Protocol = (*Reconstruct)(nil)

// NewReconstruct creates the reconstruct strategy. A nil config uses
// DefaultConfig.
func NewReconstruct(config *Config) (*Reconstruct, error) {
	cfg := DefaultConfig()
	if config != nil {
		c := *config
		cfg = &c
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Reconstruct{config: cfg}, nil
}

// Type returns ProtocolReconstruct.
func (p *Reconstruct) Type() types.ProtocolType {
	return types.ProtocolReconstruct
}

// SupportedCurves returns secp256k1 only.
func (p *Reconstruct) SupportedCurves() []types.CurveType {
	return []types.CurveType{types.CurveSecp256k1}
}

// ProofsEnabled reports whether shares carry commitments.
func (p *Reconstruct) ProofsEnabled() bool {
	return p.config.proofs()
}

// coordinator validates scheme against the strategy's limits and builds a
// coordinator for it.
func (p *Reconstruct) coordinator(scheme *types.ThresholdScheme) (*threshold.Coordinator, error) {
	if scheme == nil {
		return nil, fmt.Errorf("%w: scheme is required", types.ErrInvalidParameter)
	}
	if scheme.Protocol != "" && scheme.Protocol != types.ProtocolReconstruct {
		return nil, fmt.Errorf("%w: scheme protocol %s cannot run on %s",
			types.ErrProtocol, scheme.Protocol, types.ProtocolReconstruct)
	}
	if scheme.TotalParticipants > p.config.MaxParticipants {
		return nil, fmt.Errorf("%w: too many participants: %d, max is %d",
			types.ErrInvalidParameter, scheme.TotalParticipants, p.config.MaxParticipants)
	}
	if err := scheme.Validate(); err != nil {
		return nil, err
	}
	if !slices.Contains(p.SupportedCurves(), scheme.Curve) {
		return nil, fmt.Errorf("%w: %s", ecc.ErrUnsupportedCurve, scheme.Curve)
	}

	return threshold.NewCoordinator(&threshold.Config{
		Threshold:   scheme.Threshold,
		TotalShares: scheme.TotalParticipants,
		Curve:       scheme.Curve,
		Random:      p.config.Random,
	})
}

// GenerateKey creates a keypair and splits the private key into
// transport-encoded shares with their commitments.
func (p *Reconstruct) GenerateKey(scheme *types.ThresholdScheme) (*KeyMaterial, error) {
	c, err := p.coordinator(scheme)
	if err != nil {
		return nil, err
	}

	shares, publicKey, err := c.GenerateThresholdKeypair()
	if err != nil {
		return nil, err
	}
	return p.material(scheme, publicKey, shares)
}

// Sign reconstructs the key from shares, signs message and checks the
// result against publicKey before returning it.
func (p *Reconstruct) Sign(scheme *types.ThresholdScheme, publicKey *types.PublicKey, shares [][]byte, message []byte) (*types.Signature, []types.SignatureShare, error) {
	c, err := p.coordinator(scheme)
	if err != nil {
		return nil, nil, err
	}
	if publicKey == nil {
		return nil, nil, fmt.Errorf("%w: public key is required", types.ErrInvalidParameter)
	}

	signature, err := c.ThresholdSign(shares, message)
	if err != nil {
		return nil, nil, err
	}

	// Shares from different generations interpolate to an unrelated key.
	ok, err := c.Signer().Verify(publicKey, message, signature)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: shares do not reconstruct the session key", types.ErrCryptographic)
	}

	contributions := make([]types.SignatureShare, 0, len(shares))
	for _, share := range shares {
		idx, err := threshold.ShareIndex(share)
		if err != nil {
			return nil, nil, err
		}
		contribution := types.SignatureShare{Index: idx}
		if p.config.proofs() {
			if contribution.Proof, err = threshold.ShareCommitment(share); err != nil {
				return nil, nil, err
			}
		}
		contributions = append(contributions, contribution)
	}
	return signature, contributions, nil
}

// VerifySignature checks signature over message under publicKey.
func (p *Reconstruct) VerifySignature(publicKey *types.PublicKey, message []byte, signature *types.Signature) (bool, error) {
	if publicKey == nil || signature == nil {
		return false, fmt.Errorf("%w: public key and signature are required", types.ErrInvalidParameter)
	}
	signer, err := ecc.NewSigner(publicKey.Curve)
	if err != nil {
		return false, err
	}
	return signer.Verify(publicKey, message, signature)
}

// CombineSignatureShares treats each contribution's Share as the
// participant's transport-encoded key share. With proofs enabled every
// share must match the commitment it carries.
func (p *Reconstruct) CombineSignatureShares(scheme *types.ThresholdScheme, publicKey *types.PublicKey, message []byte, shares []types.SignatureShare) (*types.Signature, error) {
	raw := make([][]byte, 0, len(shares))
	for i, s := range shares {
		idx, err := threshold.ShareIndex(s.Share)
		if err != nil {
			return nil, err
		}
		if idx != s.Index {
			return nil, fmt.Errorf("%w: signature share %d claims index %d but carries share %d",
				types.ErrInvalidParameter, i, s.Index, idx)
		}
		if p.config.proofs() {
			if len(s.Proof) == 0 {
				return nil, fmt.Errorf("%w: signature share %d has no proof", types.ErrInvalidParameter, s.Index)
			}
			ok, err := threshold.VerifyShareCommitment(s.Share, s.Proof)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("%w: signature share %d does not match its proof", types.ErrCryptographic, s.Index)
			}
		}
		raw = append(raw, s.Share)
	}

	signature, _, err := p.Sign(scheme, publicKey, raw, message)
	return signature, err
}

// Refresh reconstructs the key from a quorum and splits it again with a
// fresh polynomial. The public key is unchanged; the old shares no longer
// combine with the new ones. At threshold 1 the polynomial is constant, so
// share values and commitments repeat and callers must tell generations
// apart some other way.
func (p *Reconstruct) Refresh(scheme *types.ThresholdScheme, publicKey *types.PublicKey, shares [][]byte) (*KeyMaterial, error) {
	c, err := p.coordinator(scheme)
	if err != nil {
		return nil, err
	}
	if publicKey == nil {
		return nil, fmt.Errorf("%w: public key is required", types.ErrInvalidParameter)
	}

	key, err := c.ReconstructKey(shares)
	if err != nil {
		return nil, err
	}
	defer threshold.Zero(key)

	derived, err := c.Signer().DerivePublicKey(key)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(derived.Key, publicKey.Key) {
		return nil, fmt.Errorf("%w: shares do not reconstruct the session key", types.ErrCryptographic)
	}

	fresh, err := c.SplitKey(key)
	if err != nil {
		return nil, err
	}
	return p.material(scheme, publicKey, fresh)
}

// Commitment returns the compressed y*G point of an encoded share.
func (p *Reconstruct) Commitment(share []byte) ([]byte, error) {
	return threshold.ShareCommitment(share)
}

// material attaches commitments to shares and checks that they
// interpolate to publicKey. Shares are scrubbed on failure.
func (p *Reconstruct) material(scheme *types.ThresholdScheme, publicKey *types.PublicKey, shares [][]byte) (*KeyMaterial, error) {
	m := &KeyMaterial{PublicKey: publicKey, Shares: shares}
	if !p.config.proofs() {
		return m, nil
	}

	m.Proofs = make([][]byte, len(shares))
	byIndex := make(map[int][]byte, len(shares))
	for i, share := range shares {
		commitment, err := threshold.ShareCommitment(share)
		if err != nil {
			m.Zero()
			return nil, err
		}
		m.Proofs[i] = commitment
		byIndex[i+1] = commitment
	}
	if err := threshold.VerifyCommitments(byIndex, scheme.Threshold, publicKey); err != nil {
		m.Zero()
		return nil, err
	}
	return m, nil
}
