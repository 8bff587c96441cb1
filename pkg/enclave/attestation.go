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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// Attestation statement types
const (
	AttestationSoftware      = "software-attestation"
	AttestationConfiguration = "configuration-attestation"
)

// AttestationClaims is the payload of a JWS attestation statement.
type AttestationClaims struct {
	Type        string `json:"type"`
	Kind        Kind   `json:"kind"`
	Challenge   []byte `json:"challenge"`
	IssuedAt    int64  `json:"issued_at"`
	Measurement string `json:"measurement"`
	Algorithm   string `json:"algorithm,omitempty"`
	Provider    string `json:"provider,omitempty"`
	KeyRef      string `json:"key_ref,omitempty"`
}

// attestor signs attestation statements with a per-instance P-256 key.
type attestor struct {
	key    *ecdsa.PrivateKey
	signer jose.Signer
	now    func() time.Time
}

func newAttestor(random io.Reader) (*attestor, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), random)
	if err != nil {
		return nil, fmt.Errorf("%w: attestation key: %w", types.ErrCryptographic, err)
	}
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.ES256, Key: key},
		(&jose.SignerOptions{EmbedJWK: true}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: attestation signer: %w", types.ErrCryptographic, err)
	}
	return &attestor{key: key, signer: signer, now: time.Now}, nil
}

// sign fills in IssuedAt and returns the compact JWS.
func (a *attestor) sign(claims AttestationClaims) ([]byte, error) {
	claims.IssuedAt = a.now().Unix()
	payload, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSerialization, err)
	}
	jws, err := a.signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: sign attestation: %w", types.ErrCryptographic, err)
	}
	compact, err := jws.CompactSerialize()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSerialization, err)
	}
	return []byte(compact), nil
}

func (a *attestor) publicKey() *ecdsa.PublicKey {
	return &a.key.PublicKey
}

// VerifyAttestation checks a JWS attestation statement against challenge.
// When pinned is nil the key embedded in the JWS header is trusted, which
// proves integrity but not origin. Pass the vault's AttestationKey to
// prove origin as well.
func VerifyAttestation(token, challenge []byte, pinned *ecdsa.PublicKey) (*AttestationClaims, error) {
	jws, err := jose.ParseSigned(string(token), []jose.SignatureAlgorithm{jose.ES256})
	if err != nil {
		return nil, fmt.Errorf("%w: parse attestation: %w", types.ErrSerialization, err)
	}
	if len(jws.Signatures) != 1 {
		return nil, fmt.Errorf("%w: attestation must carry one signature", types.ErrSerialization)
	}

	key := pinned
	if key == nil {
		jwk := jws.Signatures[0].Protected.JSONWebKey
		if jwk == nil {
			return nil, fmt.Errorf("%w: attestation has no embedded key", types.ErrCryptographic)
		}
		pub, ok := jwk.Key.(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: attestation key is not ECDSA", types.ErrCryptographic)
		}
		key = pub
	}

	payload, err := jws.Verify(key)
	if err != nil {
		return nil, fmt.Errorf("%w: attestation signature: %w", types.ErrCryptographic, err)
	}

	var claims AttestationClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: attestation payload: %w", types.ErrSerialization, err)
	}
	if subtle.ConstantTimeCompare(claims.Challenge, challenge) != 1 {
		return nil, fmt.Errorf("%w: attestation challenge mismatch", types.ErrCryptographic)
	}
	return &claims, nil
}
