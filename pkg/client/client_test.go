// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mpc.

package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-mpc/internal/rest"
	"github.com/jeremyhahn/go-mpc/pkg/adapters/auth"
	"github.com/jeremyhahn/go-mpc/pkg/enclave"
	"github.com/jeremyhahn/go-mpc/pkg/keymanager"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

func newServer(t *testing.T, authn auth.Authenticator) *httptest.Server {
	t.Helper()
	vault, err := enclave.NewSoftwareVault(&enclave.SoftwareConfig{MasterKey: bytes.Repeat([]byte{7}, 32)})
	require.NoError(t, err)
	manager, err := keymanager.New(context.Background(), &keymanager.Config{Vault: vault})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	s, err := rest.NewServer(&rest.Config{Manager: manager, Authenticator: authn})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestNew_Address(t *testing.T) {
	tests := []struct {
		cfg  *Config
		want string
	}{
		{cfg: nil, want: DefaultAddress},
		{cfg: &Config{Address: "mpc.local:8081"}, want: "http://mpc.local:8081"},
		{cfg: &Config{Address: "mpc.local:8443", TLSEnabled: true}, want: "https://mpc.local:8443"},
		{cfg: &Config{Address: "https://mpc.local/"}, want: "https://mpc.local"},
	}
	for _, tt := range tests {
		c, err := New(tt.cfg)
		require.NoError(t, err)
		assert.Equal(t, tt.want, c.BaseURL())
	}

	_, err := New(&Config{Address: "https://x", TLSCAFile: "/nonexistent/ca.pem"})
	assert.Error(t, err)
}

func TestClient_Lifecycle(t *testing.T) {
	ts := newServer(t, nil)
	c, err := New(&Config{Address: ts.URL})
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)

	gen, err := c.GenerateKey(ctx, &types.KeyGenRequest{SessionID: "w", Scheme: keymanager.CreateDefaultScheme()})
	require.NoError(t, err)
	require.Len(t, gen.KeyShares, 3)

	digest := sha256.Sum256([]byte("pay"))
	signed, err := c.Sign(ctx, &types.SignRequest{SessionID: "w", MessageHash: digest[:], Participants: []string{"2", "3"}})
	require.NoError(t, err)
	require.NotNil(t, signed.Signature)

	verified, err := c.Verify(ctx, &types.VerifyRequest{SessionID: "w", Message: digest[:], Signature: *signed.Signature})
	require.NoError(t, err)
	assert.True(t, verified.Valid)

	pub, err := c.PublicKey(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, gen.PublicKey.Key, pub.PublicKey.Key)

	status, err := c.Status(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, status)

	share, err := c.KeyShare(ctx, "w", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, share.Index)

	sessions, err := c.Sessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	backups, err := c.Backup(ctx, "w")
	require.NoError(t, err)
	_, err = c.Rotate(ctx, "w")
	require.NoError(t, err)
	info, err := c.Restore(ctx, "w", backups)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Shares)

	sig, err := c.Combine(ctx, "w", digest[:], []types.SignatureShare{
		{Index: 1, Share: gen.KeyShares[0].EncryptedShare},
		{Index: 2, Share: gen.KeyShares[1].EncryptedShare},
	})
	require.NoError(t, err)
	assert.Len(t, sig.Signature, 64)

	att, err := c.Attest(ctx, []byte("challenge"))
	require.NoError(t, err)
	assert.NotEmpty(t, att.Statement)

	require.NoError(t, c.DeleteSession(ctx, "w"))
	_, err = c.Session(ctx, "w")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_ErrorKinds(t *testing.T) {
	ts := newServer(t, nil)
	c, err := New(&Config{Address: ts.URL})
	require.NoError(t, err)

	_, err = c.GenerateKey(context.Background(), &types.KeyGenRequest{SessionID: "w"})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "invalid_parameter", apiErr.Kind)
}

func TestClient_APIKey(t *testing.T) {
	authn, err := auth.NewAPIKeyAuthenticator([]auth.APIKey{{Key: "secret", Subject: "cli"}})
	require.NoError(t, err)
	ts := newServer(t, authn)

	anonymous, err := New(&Config{Address: ts.URL})
	require.NoError(t, err)
	_, err = anonymous.Sessions(context.Background())
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	keyed, err := New(&Config{Address: ts.URL, APIKey: "secret"})
	require.NoError(t, err)
	_, err = keyed.Sessions(context.Background())
	assert.NoError(t, err)
}
