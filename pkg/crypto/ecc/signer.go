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

// Package ecc provides elliptic-curve key generation, signing, verification
// and public-key derivation for the curves go-mpc can shard.
//
// Only secp256k1 is supported. The other recognized curves fail with
// ErrUnsupportedCurve at construction rather than producing keys that the
// rest of the system cannot use.
//
// Messages are digested with SHA-256 and signed with RFC 6979 deterministic
// nonces. Signatures are the 64-byte R || S encoding with a low S value and
// carry the recovery identifier required to recover the public key from the
// signature and message.
package ecc

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

const (
	// PrivateKeySize is the size of a serialized private scalar.
	PrivateKeySize = 32

	// PublicKeySize is the size of a compressed public key.
	PublicKeySize = secp256k1.PubKeyBytesLenCompressed

	// SignatureSize is the size of an R || S signature.
	SignatureSize = 64

	// compactSigMagicOffset is the header offset used by compact signatures
	// for compressed public keys (27 + 4).
	compactSigMagicOffset = 27 + 4
)

// ErrUnsupportedCurve is returned for recognized curves without a signer.
var ErrUnsupportedCurve = fmt.Errorf("%w: unsupported curve", types.ErrCryptographic)

// Signer performs ECDSA operations over a single named curve.
type Signer struct {
	curve  types.CurveType
	random io.Reader
}

// Option configures a Signer.
type Option func(*Signer)

// WithRandom sets the entropy source used for key generation.
func WithRandom(r io.Reader) Option {
	return func(s *Signer) {
		if r != nil {
			s.random = r
		}
	}
}

// NewSigner creates a signer for curve.
func NewSigner(curve types.CurveType, opts ...Option) (*Signer, error) {
	switch curve {
	case types.CurveSecp256k1:
	case types.CurveEd25519, types.CurveP256:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, curve)
	default:
		return nil, fmt.Errorf("%w: unknown curve %q", types.ErrInvalidParameter, curve)
	}

	s := &Signer{curve: curve, random: rand.Reader}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Curve returns the curve this signer operates on.
func (s *Signer) Curve() types.CurveType {
	return s.curve
}

// GenerateKeypair draws a fresh private scalar in [1, N) and derives its
// public key. The caller owns the returned private key bytes and should
// scrub them when done.
func (s *Signer) GenerateKeypair() ([]byte, *types.PublicKey, error) {
	buf := make([]byte, PrivateKeySize)
	defer clear(buf)

	var scalar secp256k1.ModNScalar
	for {
		if _, err := io.ReadFull(s.random, buf); err != nil {
			return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
		}
		// Rejection sampling keeps the scalar uniform
		if overflow := scalar.SetByteSlice(buf); !overflow && !scalar.IsZero() {
			break
		}
	}

	key := secp256k1.NewPrivateKey(&scalar)
	defer key.Zero()
	scalar.Zero()

	return key.Serialize(), s.publicKey(key.PubKey()), nil
}

// DerivePublicKey returns the compressed public key of privateKey.
func (s *Signer) DerivePublicKey(privateKey []byte) (*types.PublicKey, error) {
	key, err := parsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	return s.publicKey(key.PubKey()), nil
}

// Sign signs the SHA-256 digest of message with privateKey.
func (s *Signer) Sign(privateKey, message []byte) (*types.Signature, error) {
	key, err := parsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	defer key.Zero()

	digest := sha256.Sum256(message)
	compact := ecdsa.SignCompact(key, digest[:], true)

	recoveryID := compact[0] - compactSigMagicOffset
	sig := make([]byte, SignatureSize)
	copy(sig, compact[1:])

	return &types.Signature{
		Curve:      s.curve,
		Signature:  sig,
		RecoveryID: &recoveryID,
	}, nil
}

// Verify reports whether signature is a valid signature of message under
// publicKey. Wrong curve tags or byte lengths are parameter errors; an
// unparseable point is a cryptographic error; anything else that does not
// satisfy the verification equation returns false.
func (s *Signer) Verify(publicKey *types.PublicKey, message []byte, signature *types.Signature) (bool, error) {
	if publicKey == nil || signature == nil {
		return false, fmt.Errorf("%w: public key and signature are required", types.ErrInvalidParameter)
	}
	if publicKey.Curve != s.curve || signature.Curve != s.curve {
		return false, fmt.Errorf("%w: curve mismatch: signer %s, key %s, signature %s",
			types.ErrInvalidParameter, s.curve, publicKey.Curve, signature.Curve)
	}
	if len(publicKey.Key) != PublicKeySize {
		return false, fmt.Errorf("%w: public key must be %d bytes, got %d",
			types.ErrInvalidParameter, PublicKeySize, len(publicKey.Key))
	}
	if len(signature.Signature) != SignatureSize {
		return false, fmt.Errorf("%w: signature must be %d bytes, got %d",
			types.ErrInvalidParameter, SignatureSize, len(signature.Signature))
	}

	pub, err := secp256k1.ParsePubKey(publicKey.Key)
	if err != nil {
		return false, fmt.Errorf("%w: invalid public key: %w", types.ErrCryptographic, err)
	}

	var r, sv secp256k1.ModNScalar
	if overflow := r.SetByteSlice(signature.Signature[:32]); overflow {
		return false, nil
	}
	if overflow := sv.SetByteSlice(signature.Signature[32:]); overflow {
		return false, nil
	}
	if r.IsZero() || sv.IsZero() {
		return false, nil
	}

	digest := sha256.Sum256(message)
	return ecdsa.NewSignature(&r, &sv).Verify(digest[:], pub), nil
}

// RecoverPublicKey recovers the compressed public key that produced
// signature over message. It requires the recovery identifier.
func (s *Signer) RecoverPublicKey(message []byte, signature *types.Signature) (*types.PublicKey, error) {
	if signature == nil || signature.RecoveryID == nil {
		return nil, fmt.Errorf("%w: signature has no recovery identifier", types.ErrInvalidParameter)
	}
	if len(signature.Signature) != SignatureSize {
		return nil, fmt.Errorf("%w: signature must be %d bytes, got %d",
			types.ErrInvalidParameter, SignatureSize, len(signature.Signature))
	}
	if *signature.RecoveryID > 3 {
		return nil, fmt.Errorf("%w: recovery identifier %d out of range",
			types.ErrInvalidParameter, *signature.RecoveryID)
	}

	compact := make([]byte, 1+SignatureSize)
	compact[0] = compactSigMagicOffset + *signature.RecoveryID
	copy(compact[1:], signature.Signature)

	digest := sha256.Sum256(message)
	pub, _, err := ecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return nil, fmt.Errorf("%w: public key recovery failed: %w", types.ErrCryptographic, err)
	}
	return s.publicKey(pub), nil
}

func (s *Signer) publicKey(pub *secp256k1.PublicKey) *types.PublicKey {
	return &types.PublicKey{
		Curve: s.curve,
		Key:   pub.SerializeCompressed(),
	}
}

// parsePrivateKey validates that b is a 32-byte scalar in [1, N).
func parsePrivateKey(b []byte) (*secp256k1.PrivateKey, error) {
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d",
			types.ErrInvalidParameter, PrivateKeySize, len(b))
	}

	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(b); overflow {
		return nil, fmt.Errorf("%w: private key is not less than the group order", types.ErrCryptographic)
	}
	if scalar.IsZero() {
		return nil, fmt.Errorf("%w: private key is zero", types.ErrCryptographic)
	}

	key := secp256k1.NewPrivateKey(&scalar)
	scalar.Zero()
	return key, nil
}
