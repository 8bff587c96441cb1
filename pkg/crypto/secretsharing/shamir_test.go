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

package secretsharing

import (
	"bytes"
	"crypto/rand"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

func fixedSecret() []byte {
	secret := make([]byte, SecretSize)
	for i := range secret {
		secret[i] = byte(i + 1)
	}
	return secret
}

func TestNewShamir(t *testing.T) {
	tests := []struct {
		name    string
		config  *ShareConfig
		wantErr bool
	}{
		{name: "valid 2-of-3", config: &ShareConfig{Threshold: 2, TotalShares: 3}},
		{name: "valid 1-of-1", config: &ShareConfig{Threshold: 1, TotalShares: 1}},
		{name: "valid 5-of-5", config: &ShareConfig{Threshold: 5, TotalShares: 5}},
		{name: "nil config", config: nil, wantErr: true},
		{name: "zero threshold", config: &ShareConfig{Threshold: 0, TotalShares: 3}, wantErr: true},
		{name: "total below threshold", config: &ShareConfig{Threshold: 4, TotalShares: 3}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewShamir(tt.config)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, types.ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.config.Threshold, s.Threshold())
			assert.Equal(t, tt.config.TotalShares, s.TotalShares())
		})
	}
}

func TestSplit(t *testing.T) {
	s, err := NewShamir(&ShareConfig{Threshold: 3, TotalShares: 5})
	require.NoError(t, err)

	shares, err := s.Split(fixedSecret())
	require.NoError(t, err)
	require.Len(t, shares, 5)

	q := CurveOrder()
	for i, share := range shares {
		assert.Equal(t, int64(i+1), share.X.Int64(), "x-coordinates are 1..n")
		assert.True(t, share.Y.Cmp(q) < 0, "share value must be reduced")
	}

	t.Run("secret must be 32 bytes", func(t *testing.T) {
		for _, n := range []int{0, 16, 31, 33, 64} {
			_, err := s.Split(make([]byte, n))
			assert.ErrorIs(t, err, types.ErrInvalidParameter, "len %d", n)
		}
	})

	t.Run("secret must be below the modulus", func(t *testing.T) {
		_, err := s.Split(bytes.Repeat([]byte{0xff}, SecretSize))
		assert.ErrorIs(t, err, types.ErrInvalidParameter)

		order := make([]byte, SecretSize)
		q.FillBytes(order)
		_, err = s.Split(order)
		assert.ErrorIs(t, err, types.ErrInvalidParameter)

		below := new(big.Int).Sub(q, big.NewInt(1))
		maxSecret := below.FillBytes(make([]byte, SecretSize))
		shares, err := s.Split(maxSecret)
		require.NoError(t, err)
		got, err := s.Recover(shares[:3])
		require.NoError(t, err)
		assert.Equal(t, maxSecret, got)
	})

	t.Run("rng failure is reported", func(t *testing.T) {
		failing, err := NewShamir(&ShareConfig{Threshold: 2, TotalShares: 3, Random: bytes.NewReader(nil)})
		require.NoError(t, err)
		_, err = failing.Split(fixedSecret())
		assert.Error(t, err)
	})
}

func TestRecover_EverySubset(t *testing.T) {
	s, err := NewShamir(&ShareConfig{Threshold: 2, TotalShares: 3})
	require.NoError(t, err)

	secret := fixedSecret()
	shares, err := s.Split(secret)
	require.NoError(t, err)

	subsets := [][]int{{0, 1}, {1, 2}, {0, 2}, {2, 0}, {0, 1, 2}}
	for _, subset := range subsets {
		picked := make([]Share, 0, len(subset))
		for _, i := range subset {
			picked = append(picked, shares[i])
		}
		recovered, err := s.Recover(picked)
		require.NoError(t, err, "subset %v", subset)
		assert.Equal(t, secret, recovered, "subset %v", subset)
	}
}

func TestRecover_RandomSchemes(t *testing.T) {
	for _, cfg := range []ShareConfig{
		{Threshold: 1, TotalShares: 1},
		{Threshold: 1, TotalShares: 4},
		{Threshold: 3, TotalShares: 5},
		{Threshold: 7, TotalShares: 10},
	} {
		s, err := NewShamir(&cfg)
		require.NoError(t, err)

		secret := make([]byte, SecretSize)
		_, err = rand.Read(secret)
		require.NoError(t, err)
		// Keep the secret a valid field element
		secret[0] &= 0x7f

		shares, err := s.Split(secret)
		require.NoError(t, err)

		recovered, err := s.Recover(shares[len(shares)-cfg.Threshold:])
		require.NoError(t, err)
		assert.Equal(t, secret, recovered, "%d-of-%d", cfg.Threshold, cfg.TotalShares)
	}
}

func TestRecover_LeadingZeros(t *testing.T) {
	s, err := NewShamir(&ShareConfig{Threshold: 2, TotalShares: 2})
	require.NoError(t, err)

	secret := make([]byte, SecretSize)
	secret[SecretSize-1] = 0x42

	shares, err := s.Split(secret)
	require.NoError(t, err)

	recovered, err := s.Recover(shares)
	require.NoError(t, err)
	assert.Len(t, recovered, SecretSize)
	assert.Equal(t, secret, recovered)
}

func TestRecover_InsufficientShares(t *testing.T) {
	s, err := NewShamir(&ShareConfig{Threshold: 3, TotalShares: 5})
	require.NoError(t, err)

	shares, err := s.Split(fixedSecret())
	require.NoError(t, err)

	for n := 0; n < 3; n++ {
		secret, err := s.Recover(shares[:n])
		assert.Nil(t, secret)
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrInvalidParameter)
		assert.Contains(t, err.Error(), "insufficient shares")
	}
}

func TestRecover_RejectsMalformedShares(t *testing.T) {
	s, err := NewShamir(&ShareConfig{Threshold: 2, TotalShares: 3})
	require.NoError(t, err)

	shares, err := s.Split(fixedSecret())
	require.NoError(t, err)

	tests := []struct {
		name   string
		shares []Share
	}{
		{name: "duplicate x", shares: []Share{shares[0], shares[0]}},
		{name: "zero x", shares: []Share{{X: big.NewInt(0), Y: shares[0].Y}, shares[1]}},
		{name: "x equals modulus", shares: []Share{{X: CurveOrder(), Y: shares[0].Y}, shares[1]}},
		{name: "missing y", shares: []Share{{X: big.NewInt(1)}, shares[1]}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Recover(tt.shares)
			assert.ErrorIs(t, err, types.ErrInvalidParameter)
		})
	}
}

func TestRecover_WrongShareYieldsDifferentSecret(t *testing.T) {
	s, err := NewShamir(&ShareConfig{Threshold: 2, TotalShares: 3})
	require.NoError(t, err)

	secret := fixedSecret()
	shares, err := s.Split(secret)
	require.NoError(t, err)

	tampered := Share{X: shares[1].X, Y: new(big.Int).Add(shares[1].Y, big.NewInt(1))}
	recovered, err := s.Recover([]Share{shares[0], tampered})
	require.NoError(t, err)
	assert.NotEqual(t, secret, recovered)
}

func TestSecurityProperty_SplitsAreRandomized(t *testing.T) {
	s, err := NewShamir(&ShareConfig{Threshold: 2, TotalShares: 3})
	require.NoError(t, err)

	a, err := s.Split(fixedSecret())
	require.NoError(t, err)
	b, err := s.Split(fixedSecret())
	require.NoError(t, err)

	assert.NotEqual(t, 0, a[0].Y.Cmp(b[0].Y), "two splits of one secret must use different polynomials")
}

func TestShare_Zero(t *testing.T) {
	share := Share{X: big.NewInt(1), Y: big.NewInt(12345)}
	share.Zero()
	assert.Equal(t, 0, share.Y.Sign())
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestSplit_EntropyError(t *testing.T) {
	s, err := NewShamir(&ShareConfig{Threshold: 3, TotalShares: 3, Random: errReader{}})
	require.NoError(t, err)

	_, err = s.Split(fixedSecret())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entropy exhausted")
}
