// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mpc.

package aead

import (
	"bytes"
	"crypto/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

func TestSelectOptimal(t *testing.T) {
	assert.Equal(t, AES256GCM, SelectOptimal(true))
	if HasAESNI() {
		assert.Equal(t, AES256GCM, SelectOptimal(false))
	} else {
		assert.Equal(t, ChaCha20Poly1305, SelectOptimal(false))
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "aes256-gcm", want: AES256GCM},
		{in: "AES-256-GCM", want: AES256GCM},
		{in: "A256GCM", want: AES256GCM},
		{in: "chacha20-poly1305", want: ChaCha20Poly1305},
		{in: " ChaCha20Poly1305 ", want: ChaCha20Poly1305},
		{in: "", want: SelectOptimal(false)},
		{in: "auto", want: SelectOptimal(false)},
		{in: "des", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Resolve(tt.in, false)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownAlgorithm)
				assert.ErrorIs(t, err, types.ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIDName(t *testing.T) {
	for _, alg := range []string{AES256GCM, ChaCha20Poly1305} {
		id, err := ID(alg)
		require.NoError(t, err)
		name, err := Name(id)
		require.NoError(t, err)
		assert.Equal(t, alg, name)
	}

	_, err := Name(0x7f)
	assert.ErrorIs(t, err, types.ErrCryptographic)
	_, err = ID("nope")
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestNew_SealOpen(t *testing.T) {
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)

	for _, alg := range []string{AES256GCM, ChaCha20Poly1305} {
		t.Run(alg, func(t *testing.T) {
			c, err := New(alg, key)
			require.NoError(t, err)

			nonce := make([]byte, c.NonceSize())
			plaintext := []byte("share bytes")
			sealed := c.Seal(nil, nonce, plaintext, []byte("session/1"))

			opened, err := c.Open(nil, nonce, sealed, []byte("session/1"))
			require.NoError(t, err)
			assert.True(t, bytes.Equal(plaintext, opened))

			_, err = c.Open(nil, nonce, sealed, []byte("session/2"))
			assert.Error(t, err)
		})
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(AES256GCM, make([]byte, 16))
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	_, err = New("rot13", make([]byte, KeySize))
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestUsageTracker(t *testing.T) {
	tr := NewUsageTracker(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, tr.Reserve())
	}
	err := tr.Reserve()
	assert.ErrorIs(t, err, ErrUsageLimit)
	assert.ErrorIs(t, err, types.ErrInvalidState)
	assert.Equal(t, uint64(3), tr.Count())
	assert.Zero(t, tr.Remaining())

	assert.Equal(t, DefaultMaxInvocations, NewUsageTracker(0).Remaining())
}

func TestUsageTracker_Concurrent(t *testing.T) {
	tr := NewUsageTracker(100)
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Reserve() == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, ok)
}
