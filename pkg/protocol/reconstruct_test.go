// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mpc.

package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-mpc/pkg/crypto/ecc"
	"github.com/jeremyhahn/go-mpc/pkg/threshold"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

func scheme(total, t int) *types.ThresholdScheme {
	return &types.ThresholdScheme{
		TotalParticipants: total,
		Threshold:         t,
		Curve:             types.CurveSecp256k1,
		Protocol:          types.ProtocolReconstruct,
	}
}

func newReconstruct(t *testing.T, config *Config) *Reconstruct {
	t.Helper()
	p, err := NewReconstruct(config)
	require.NoError(t, err)
	return p
}

func contributions(m *KeyMaterial, indices ...int) []types.SignatureShare {
	out := make([]types.SignatureShare, 0, len(indices))
	for _, i := range indices {
		s := types.SignatureShare{Index: i + 1, Share: m.Shares[i]}
		if m.Proofs != nil {
			s.Proof = m.Proofs[i]
		}
		out = append(out, s)
	}
	return out
}

func TestNewProtocol(t *testing.T) {
	tests := []struct {
		name     string
		protocol types.ProtocolType
		wantErr  error
	}{
		{name: "default", protocol: ""},
		{name: "reconstruct", protocol: types.ProtocolReconstruct},
		{name: "gg18", protocol: types.ProtocolGG18, wantErr: types.ErrProtocol},
		{name: "gg20", protocol: types.ProtocolGG20, wantErr: types.ErrProtocol},
		{name: "custom", protocol: "frost-lite", wantErr: types.ErrProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProtocol(tt.protocol, nil)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, types.ProtocolReconstruct, p.Type())
			assert.Equal(t, []types.CurveType{types.CurveSecp256k1}, p.SupportedCurves())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())
	assert.True(t, *cfg.EnableProofs)
	assert.Equal(t, DefaultMaxParticipants, cfg.MaxParticipants)
	assert.NotNil(t, cfg.Random)

	assert.ErrorIs(t, (&Config{MaxParticipants: -1}).Validate(), types.ErrInvalidParameter)
	assert.ErrorIs(t, (&Config{MaxParticipants: 256}).Validate(), types.ErrInvalidParameter)
}

func TestReconstruct_GenerateKey_Validation(t *testing.T) {
	p := newReconstruct(t, nil)

	tests := []struct {
		name    string
		scheme  *types.ThresholdScheme
		wantErr error
	}{
		{name: "nil scheme", scheme: nil, wantErr: types.ErrInvalidParameter},
		{name: "too many participants", scheme: scheme(11, 2), wantErr: types.ErrInvalidParameter},
		{name: "zero threshold", scheme: scheme(3, 0), wantErr: types.ErrInvalidParameter},
		{name: "threshold above total", scheme: scheme(3, 4), wantErr: types.ErrInvalidParameter},
		{
			name:    "unsupported curve",
			scheme:  &types.ThresholdScheme{TotalParticipants: 3, Threshold: 2, Curve: types.CurveEd25519},
			wantErr: types.ErrCryptographic,
		},
		{
			name:    "foreign protocol tag",
			scheme:  &types.ThresholdScheme{TotalParticipants: 3, Threshold: 2, Curve: types.CurveSecp256k1, Protocol: types.ProtocolGG20},
			wantErr: types.ErrProtocol,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.GenerateKey(tt.scheme)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("unsupported curve is the ecc sentinel", func(t *testing.T) {
		_, err := p.GenerateKey(&types.ThresholdScheme{TotalParticipants: 3, Threshold: 2, Curve: types.CurveP256})
		assert.ErrorIs(t, err, ecc.ErrUnsupportedCurve)
	})
}

func TestReconstruct_GenerateAndSign(t *testing.T) {
	p := newReconstruct(t, nil)
	s := scheme(3, 2)

	m, err := p.GenerateKey(s)
	require.NoError(t, err)
	require.Len(t, m.Shares, 3)
	require.Len(t, m.Proofs, 3)
	assert.Len(t, m.PublicKey.Key, 33)

	message := []byte("transfer 1 BTC")
	for _, pair := range [][2]int{{0, 1}, {1, 2}, {0, 2}} {
		sig, shares, err := p.Sign(s, m.PublicKey, [][]byte{m.Shares[pair[0]], m.Shares[pair[1]]}, message)
		require.NoError(t, err, "pair %v", pair)
		require.NotNil(t, sig.RecoveryID)

		ok, err := p.VerifySignature(m.PublicKey, message, sig)
		require.NoError(t, err)
		assert.True(t, ok)

		require.Len(t, shares, 2)
		assert.Equal(t, pair[0]+1, shares[0].Index)
		assert.Equal(t, m.Proofs[pair[0]], shares[0].Proof)
		assert.Empty(t, shares[0].Share)
	}

	t.Run("single share", func(t *testing.T) {
		_, _, err := p.Sign(s, m.PublicKey, m.Shares[:1], message)
		assert.ErrorIs(t, err, types.ErrInvalidParameter)
	})

	t.Run("wrong public key", func(t *testing.T) {
		other, err := p.GenerateKey(s)
		require.NoError(t, err)
		_, _, err = p.Sign(s, other.PublicKey, m.Shares[:2], message)
		assert.ErrorIs(t, err, types.ErrCryptographic)
	})
}

func TestReconstruct_ProofsDisabled(t *testing.T) {
	disabled := false
	p := newReconstruct(t, &Config{EnableProofs: &disabled})
	assert.False(t, p.ProofsEnabled())

	m, err := p.GenerateKey(scheme(3, 2))
	require.NoError(t, err)
	assert.Nil(t, m.Proofs)

	sig, err := p.CombineSignatureShares(scheme(3, 2), m.PublicKey, []byte("m"), contributions(m, 0, 2))
	require.NoError(t, err)
	ok, err := p.VerifySignature(m.PublicKey, []byte("m"), sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReconstruct_CombineSignatureShares(t *testing.T) {
	p := newReconstruct(t, nil)
	s := scheme(5, 3)
	m, err := p.GenerateKey(s)
	require.NoError(t, err)
	message := []byte("combine me")

	sig, err := p.CombineSignatureShares(s, m.PublicKey, message, contributions(m, 4, 1, 3))
	require.NoError(t, err)
	ok, err := p.VerifySignature(m.PublicKey, message, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("proof mismatch", func(t *testing.T) {
		shares := contributions(m, 0, 1, 2)
		shares[1].Proof = m.Proofs[3]
		_, err := p.CombineSignatureShares(s, m.PublicKey, message, shares)
		assert.ErrorIs(t, err, types.ErrCryptographic)
	})

	t.Run("missing proof", func(t *testing.T) {
		shares := contributions(m, 0, 1, 2)
		shares[2].Proof = nil
		_, err := p.CombineSignatureShares(s, m.PublicKey, message, shares)
		assert.ErrorIs(t, err, types.ErrInvalidParameter)
	})

	t.Run("index mismatch", func(t *testing.T) {
		shares := contributions(m, 0, 1, 2)
		shares[0].Index = 4
		_, err := p.CombineSignatureShares(s, m.PublicKey, message, shares)
		assert.ErrorIs(t, err, types.ErrInvalidParameter)
	})

	t.Run("below threshold", func(t *testing.T) {
		_, err := p.CombineSignatureShares(s, m.PublicKey, message, contributions(m, 0, 1))
		assert.ErrorIs(t, err, threshold.ErrInsufficientShares)
	})

	t.Run("malformed share", func(t *testing.T) {
		shares := contributions(m, 0, 1, 2)
		shares[0].Share = []byte{0x01}
		_, err := p.CombineSignatureShares(s, m.PublicKey, message, shares)
		assert.ErrorIs(t, err, threshold.ErrMalformedShare)
	})
}

func TestReconstruct_Refresh(t *testing.T) {
	p := newReconstruct(t, nil)
	s := scheme(3, 2)
	m, err := p.GenerateKey(s)
	require.NoError(t, err)

	fresh, err := p.Refresh(s, m.PublicKey, m.Shares[1:])
	require.NoError(t, err)
	assert.Equal(t, m.PublicKey, fresh.PublicKey)
	require.Len(t, fresh.Shares, 3)
	for i := range fresh.Shares {
		assert.NotEqual(t, m.Shares[i], fresh.Shares[i])
		assert.NotEqual(t, m.Proofs[i], fresh.Proofs[i])
	}

	message := []byte("after refresh")
	sig, _, err := p.Sign(s, m.PublicKey, fresh.Shares[:2], message)
	require.NoError(t, err)
	ok, err := p.VerifySignature(m.PublicKey, message, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("mixed generations", func(t *testing.T) {
		_, _, err := p.Sign(s, m.PublicKey, [][]byte{m.Shares[0], fresh.Shares[1]}, message)
		assert.ErrorIs(t, err, types.ErrCryptographic)
	})

	t.Run("old share against new proof", func(t *testing.T) {
		shares := []types.SignatureShare{
			{Index: 1, Share: m.Shares[0], Proof: fresh.Proofs[0]},
			{Index: 2, Share: fresh.Shares[1], Proof: fresh.Proofs[1]},
		}
		_, err := p.CombineSignatureShares(s, m.PublicKey, message, shares)
		assert.ErrorIs(t, err, types.ErrCryptographic)
	})

	t.Run("shares of another key", func(t *testing.T) {
		other, err := p.GenerateKey(s)
		require.NoError(t, err)
		_, err = p.Refresh(s, m.PublicKey, other.Shares[:2])
		assert.ErrorIs(t, err, types.ErrCryptographic)
	})
}

func TestReconstruct_Commitment(t *testing.T) {
	p := newReconstruct(t, nil)
	m, err := p.GenerateKey(scheme(3, 2))
	require.NoError(t, err)

	c, err := p.Commitment(m.Shares[2])
	require.NoError(t, err)
	assert.Equal(t, m.Proofs[2], c)
}

func TestReconstruct_VerifySignature_Tamper(t *testing.T) {
	p := newReconstruct(t, nil)
	s := scheme(3, 2)
	m, err := p.GenerateKey(s)
	require.NoError(t, err)

	sig, _, err := p.Sign(s, m.PublicKey, m.Shares[:2], []byte("m"))
	require.NoError(t, err)

	for i := range sig.Signature {
		tampered := &types.Signature{Curve: sig.Curve, Signature: append([]byte(nil), sig.Signature...)}
		tampered.Signature[i] ^= 0x01
		ok, err := p.VerifySignature(m.PublicKey, []byte("m"), tampered)
		assert.False(t, ok && err == nil, "byte %d", i)
	}

	_, err = p.VerifySignature(nil, []byte("m"), sig)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

func TestKeyMaterial_Zero(t *testing.T) {
	m := &KeyMaterial{Shares: [][]byte{{1, 2}, {3}}}
	m.Zero()
	assert.Equal(t, [][]byte{{0, 0}, {0}}, m.Shares)

	var nilMaterial *KeyMaterial
	assert.NotPanics(t, nilMaterial.Zero)
}
