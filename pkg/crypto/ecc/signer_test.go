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

package ecc

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := NewSigner(types.CurveSecp256k1)
	require.NoError(t, err)
	return s
}

func TestNewSigner(t *testing.T) {
	s, err := NewSigner(types.CurveSecp256k1)
	require.NoError(t, err)
	assert.Equal(t, types.CurveSecp256k1, s.Curve())

	for _, curve := range []types.CurveType{types.CurveEd25519, types.CurveP256} {
		_, err := NewSigner(curve)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnsupportedCurve)
		assert.ErrorIs(t, err, types.ErrCryptographic)
	}

	_, err = NewSigner("brainpool")
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

func TestGenerateKeypair(t *testing.T) {
	s := newTestSigner(t)

	priv, pub, err := s.GenerateKeypair()
	require.NoError(t, err)
	assert.Len(t, priv, PrivateKeySize)
	assert.Len(t, pub.Key, PublicKeySize)
	assert.Equal(t, types.CurveSecp256k1, pub.Curve)
	assert.Contains(t, []byte{0x02, 0x03}, pub.Key[0])

	derived, err := s.DerivePublicKey(priv)
	require.NoError(t, err)
	assert.Equal(t, pub, derived)

	priv2, _, err := s.GenerateKeypair()
	require.NoError(t, err)
	assert.NotEqual(t, priv, priv2)
}

func TestGenerateKeypair_RejectsOutOfRangeScalars(t *testing.T) {
	// First draw is all 0xff (>= N), second is zero, third is valid
	valid := bytes.Repeat([]byte{0x01}, PrivateKeySize)
	stream := append(bytes.Repeat([]byte{0xff}, PrivateKeySize), make([]byte, PrivateKeySize)...)
	stream = append(stream, valid...)

	s, err := NewSigner(types.CurveSecp256k1, WithRandom(bytes.NewReader(stream)))
	require.NoError(t, err)

	priv, _, err := s.GenerateKeypair()
	require.NoError(t, err)
	assert.Equal(t, valid, priv)

	_, _, err = s.GenerateKeypair()
	assert.Error(t, err, "exhausted entropy must fail")
}

func TestDerivePublicKey_KnownVector(t *testing.T) {
	s := newTestSigner(t)

	// Private key 1 maps to the generator point
	priv := make([]byte, PrivateKeySize)
	priv[31] = 1

	pub, err := s.DerivePublicKey(priv)
	require.NoError(t, err)
	assert.Equal(t,
		"0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798",
		hex.EncodeToString(pub.Key))
}

func TestDerivePublicKey_InvalidKeys(t *testing.T) {
	s := newTestSigner(t)

	order, _ := hex.DecodeString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141")

	tests := []struct {
		name string
		key  []byte
		kind error
	}{
		{name: "short", key: make([]byte, 31), kind: types.ErrInvalidParameter},
		{name: "long", key: make([]byte, 33), kind: types.ErrInvalidParameter},
		{name: "zero", key: make([]byte, 32), kind: types.ErrCryptographic},
		{name: "group order", key: order, kind: types.ErrCryptographic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.DerivePublicKey(tt.key)
			assert.ErrorIs(t, err, tt.kind)

			_, err = s.Sign(tt.key, []byte("msg"))
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestSignVerify(t *testing.T) {
	s := newTestSigner(t)

	priv, pub, err := s.GenerateKeypair()
	require.NoError(t, err)

	for _, message := range [][]byte{
		[]byte("hello threshold world"),
		{},
		bytes.Repeat([]byte{0xab}, 4096),
	} {
		sig, err := s.Sign(priv, message)
		require.NoError(t, err)
		assert.Len(t, sig.Signature, SignatureSize)
		require.NotNil(t, sig.RecoveryID)
		assert.LessOrEqual(t, *sig.RecoveryID, uint8(3))

		ok, err := s.Verify(pub, message, sig)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestSign_Deterministic(t *testing.T) {
	s := newTestSigner(t)
	priv, _, err := s.GenerateKeypair()
	require.NoError(t, err)

	a, err := s.Sign(priv, []byte("same message"))
	require.NoError(t, err)
	b, err := s.Sign(priv, []byte("same message"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestVerify_TamperDetection(t *testing.T) {
	s := newTestSigner(t)

	priv, pub, err := s.GenerateKeypair()
	require.NoError(t, err)
	_, otherPub, err := s.GenerateKeypair()
	require.NoError(t, err)

	message := []byte("transfer 10 units")
	sig, err := s.Sign(priv, message)
	require.NoError(t, err)

	t.Run("every flipped byte fails", func(t *testing.T) {
		for i := range sig.Signature {
			tampered := *sig
			tampered.Signature = append([]byte(nil), sig.Signature...)
			tampered.Signature[i] ^= 0x01

			ok, err := s.Verify(pub, message, &tampered)
			if err == nil {
				assert.False(t, ok, "byte %d", i)
			} else {
				assert.ErrorIs(t, err, types.ErrCryptographic)
			}
		}
	})

	t.Run("mismatched public key", func(t *testing.T) {
		ok, err := s.Verify(otherPub, message, sig)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("different message", func(t *testing.T) {
		ok, err := s.Verify(pub, []byte("transfer 99 units"), sig)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestVerify_MalformedInput(t *testing.T) {
	s := newTestSigner(t)

	priv, pub, err := s.GenerateKeypair()
	require.NoError(t, err)
	sig, err := s.Sign(priv, []byte("m"))
	require.NoError(t, err)

	t.Run("short signature", func(t *testing.T) {
		bad := *sig
		bad.Signature = sig.Signature[:63]
		_, err := s.Verify(pub, []byte("m"), &bad)
		assert.ErrorIs(t, err, types.ErrInvalidParameter)
	})

	t.Run("uncompressed key length", func(t *testing.T) {
		bad := &types.PublicKey{Curve: types.CurveSecp256k1, Key: make([]byte, 65)}
		_, err := s.Verify(bad, []byte("m"), sig)
		assert.ErrorIs(t, err, types.ErrInvalidParameter)
	})

	t.Run("not a point", func(t *testing.T) {
		bad := &types.PublicKey{Curve: types.CurveSecp256k1, Key: append([]byte{0x05}, make([]byte, 32)...)}
		_, err := s.Verify(bad, []byte("m"), sig)
		assert.ErrorIs(t, err, types.ErrCryptographic)
	})

	t.Run("curve mismatch", func(t *testing.T) {
		bad := &types.PublicKey{Curve: types.CurveP256, Key: pub.Key}
		_, err := s.Verify(bad, []byte("m"), sig)
		assert.ErrorIs(t, err, types.ErrInvalidParameter)
	})

	t.Run("nil inputs", func(t *testing.T) {
		_, err := s.Verify(nil, []byte("m"), sig)
		assert.ErrorIs(t, err, types.ErrInvalidParameter)
	})

	t.Run("zero signature", func(t *testing.T) {
		zero := &types.Signature{Curve: types.CurveSecp256k1, Signature: make([]byte, 64)}
		ok, err := s.Verify(pub, []byte("m"), zero)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRecoverPublicKey(t *testing.T) {
	s := newTestSigner(t)

	for i := 0; i < 8; i++ {
		priv, pub, err := s.GenerateKeypair()
		require.NoError(t, err)

		message := []byte(strings.Repeat("r", i+1))
		sig, err := s.Sign(priv, message)
		require.NoError(t, err)

		recovered, err := s.RecoverPublicKey(message, sig)
		require.NoError(t, err)
		assert.Equal(t, pub, recovered, "recovery id must be the genuine one")

		// Independent check against the go-ethereum recovery routine
		digest := sha256.Sum256(message)
		ethSig := append(append([]byte(nil), sig.Signature...), *sig.RecoveryID)
		ethPub, err := ethcrypto.SigToPub(digest[:], ethSig)
		require.NoError(t, err)
		assert.Equal(t, pub.Key, ethcrypto.CompressPubkey(ethPub))
	}

	t.Run("missing recovery id", func(t *testing.T) {
		_, err := s.RecoverPublicKey([]byte("m"), &types.Signature{Curve: types.CurveSecp256k1, Signature: make([]byte, 64)})
		assert.ErrorIs(t, err, types.ErrInvalidParameter)
	})
}

func TestAddress(t *testing.T) {
	s := newTestSigner(t)

	priv := make([]byte, PrivateKeySize)
	priv[31] = 1
	pub, err := s.DerivePublicKey(priv)
	require.NoError(t, err)

	addr, err := Address(pub)
	require.NoError(t, err)
	assert.Equal(t, "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf", addr)

	_, err = Address(&types.PublicKey{Curve: types.CurveEd25519, Key: pub.Key})
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
	_, err = Address(&types.PublicKey{Curve: types.CurveSecp256k1, Key: pub.Key[:10]})
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}
