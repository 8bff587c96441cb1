// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mpc.

package enclave

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-mpc/pkg/crypto/aead"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

func newSoftware(t *testing.T, cfg *SoftwareConfig) *SoftwareVault {
	t.Helper()
	v, err := NewSoftwareVault(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func fixedKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestSoftwareVault_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, alg := range []string{aead.AES256GCM, aead.ChaCha20Poly1305} {
		t.Run(alg, func(t *testing.T) {
			v := newSoftware(t, &SoftwareConfig{Algorithm: alg})
			assert.Equal(t, KindSoftware, v.Kind())
			assert.True(t, v.Available())
			assert.Equal(t, alg, v.Algorithm())

			for _, data := range [][]byte{{}, []byte("x"), bytes.Repeat([]byte{7}, 4096)} {
				ct, err := v.Encrypt(ctx, data, []byte("session-a/1"))
				require.NoError(t, err)

				pt, err := v.Decrypt(ctx, ct, []byte("session-a/1"))
				require.NoError(t, err)
				assert.True(t, bytes.Equal(data, pt))
			}
		})
	}
}

func TestSoftwareVault_RandomNonces(t *testing.T) {
	v := newSoftware(t, nil)
	a, err := v.Encrypt(context.Background(), []byte("same"), nil)
	require.NoError(t, err)
	b, err := v.Encrypt(context.Background(), []byte("same"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSoftwareVault_TamperDetection(t *testing.T) {
	ctx := context.Background()
	v := newSoftware(t, nil)
	ct, err := v.Encrypt(ctx, []byte("share material"), []byte("s/1"))
	require.NoError(t, err)

	t.Run("wrong context", func(t *testing.T) {
		_, err := v.Decrypt(ctx, ct, []byte("s/2"))
		assert.ErrorIs(t, err, types.ErrCryptographic)
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("every byte flipped", func(t *testing.T) {
		for i := range ct {
			tampered := append([]byte(nil), ct...)
			tampered[i] ^= 0x01
			_, err := v.Decrypt(ctx, tampered, []byte("s/1"))
			assert.ErrorIs(t, err, types.ErrCryptographic, "byte %d", i)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		for _, n := range []int{0, 1, 2, 10, len(ct) - 1} {
			_, err := v.Decrypt(ctx, ct[:n], []byte("s/1"))
			assert.ErrorIs(t, err, types.ErrCryptographic, "length %d", n)
		}
	})

	t.Run("other vault", func(t *testing.T) {
		other := newSoftware(t, nil)
		_, err := other.Decrypt(ctx, ct, []byte("s/1"))
		assert.ErrorIs(t, err, ErrDecrypt)
	})
}

func TestSoftwareVault_SharedMasterKey(t *testing.T) {
	ctx := context.Background()
	a := newSoftware(t, &SoftwareConfig{MasterKey: fixedKey(), Algorithm: aead.AES256GCM})
	b := newSoftware(t, &SoftwareConfig{MasterKey: fixedKey(), Algorithm: aead.ChaCha20Poly1305})
	assert.Equal(t, a.KeyID(), b.KeyID())

	ct, err := a.Encrypt(ctx, []byte("portable"), []byte("ctx"))
	require.NoError(t, err)
	pt, err := b.Decrypt(ctx, ct, []byte("ctx"))
	require.NoError(t, err, "blobs carry their algorithm id")
	assert.Equal(t, []byte("portable"), pt)
}

func TestSoftwareVault_Config(t *testing.T) {
	tests := []struct {
		name   string
		config *SoftwareConfig
		kind   error
	}{
		{name: "short master key", config: &SoftwareConfig{MasterKey: []byte{1, 2, 3}}, kind: types.ErrInvalidParameter},
		{name: "key and shares", config: &SoftwareConfig{MasterKey: fixedKey(), UnsealShares: []string{"x"}}, kind: types.ErrInvalidParameter},
		{name: "unknown algorithm", config: &SoftwareConfig{Algorithm: "blowfish"}, kind: types.ErrInvalidParameter},
		{name: "garbage shares", config: &SoftwareConfig{UnsealShares: []string{"nope", "nope"}}, kind: types.ErrSerialization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSoftwareVault(tt.config)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestSoftwareVault_UnsealShares(t *testing.T) {
	ctx := context.Background()
	original := newSoftware(t, &SoftwareConfig{MasterKey: fixedKey()})
	ct, err := original.Encrypt(ctx, []byte("sealed before restart"), []byte("s/3"))
	require.NoError(t, err)

	shares, err := original.ExportUnsealShares(2, 3)
	require.NoError(t, err)
	require.Len(t, shares, 3)

	for _, subset := range [][]string{{shares[0], shares[1]}, {shares[2], shares[0]}} {
		restored := newSoftware(t, &SoftwareConfig{UnsealShares: subset})
		assert.Equal(t, original.KeyID(), restored.KeyID())
		pt, err := restored.Decrypt(ctx, ct, []byte("s/3"))
		require.NoError(t, err)
		assert.Equal(t, []byte("sealed before restart"), pt)
	}

	_, err = NewSoftwareVault(&SoftwareConfig{UnsealShares: shares[:1]})
	assert.Error(t, err)
}

func TestSoftwareVault_UsageLimit(t *testing.T) {
	v := newSoftware(t, &SoftwareConfig{MaxEncryptions: 2})
	for i := 0; i < 2; i++ {
		_, err := v.Encrypt(context.Background(), []byte("x"), nil)
		require.NoError(t, err)
	}
	_, err := v.Encrypt(context.Background(), []byte("x"), nil)
	assert.ErrorIs(t, err, aead.ErrUsageLimit)
}

func TestSoftwareVault_SecureRandom(t *testing.T) {
	v := newSoftware(t, nil)
	a, err := v.SecureRandom(context.Background(), 32)
	require.NoError(t, err)
	b, err := v.SecureRandom(context.Background(), 32)
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)

	_, err = v.SecureRandom(context.Background(), -1)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

func TestSoftwareVault_Close(t *testing.T) {
	v, err := NewSoftwareVault(nil)
	require.NoError(t, err)
	require.NoError(t, v.Close())
	require.NoError(t, v.Close())
	assert.False(t, v.Available())

	_, err = v.Encrypt(context.Background(), []byte("x"), nil)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = v.Decrypt(context.Background(), []byte{1, 1}, nil)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = v.ExportUnsealShares(2, 3)
	assert.ErrorIs(t, err, ErrClosed)
}
