// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mpc.

package cli

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-mpc/internal/config"
	"github.com/jeremyhahn/go-mpc/pkg/client"
	"github.com/jeremyhahn/go-mpc/pkg/enclave"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

const testKey = "1f1e1d1c1b1a191817161514131211100f0e0d0c0b0a09080706050403020100"

// resetFlags restores every flag to its default so commands can run
// repeatedly in one process.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	keygenMetadata = nil

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func runJSON[T any](t *testing.T, args ...string) T {
	t.Helper()
	out, err := run(t, append(args, "-o", "json")...)
	require.NoError(t, err, out)
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestPrinter(t *testing.T) {
	t.Run("text map is sorted and aligned", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter("text", &buf).Print(map[string]any{"b": 2, "alpha": "x"}))
		assert.Equal(t, "alpha:  x\nb:      2\n", buf.String())
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter("JSON", &buf).Print(map[string]any{"valid": true}))
		assert.JSONEq(t, `{"valid":true}`, buf.String())
	})

	t.Run("lines", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter("text", &buf).PrintLines("k", []string{"a", "b"}))
		assert.Equal(t, "a\nb\n", buf.String())

		buf.Reset()
		require.NoError(t, NewPrinter("json", &buf).PrintLines("k", []string{"a"}))
		assert.JSONEq(t, `{"k":["a"]}`, buf.String())
	})

	t.Run("unknown format", func(t *testing.T) {
		assert.Error(t, NewPrinter("yaml", &bytes.Buffer{}).Print("x"))
	})
}

func TestVersionCommand(t *testing.T) {
	v := runJSON[map[string]string](t, "version")
	assert.Equal(t, Version, v["version"])
	assert.NotEmpty(t, v["go_version"])
}

func TestReadDigest(t *testing.T) {
	tests := []struct {
		name    string
		hash    string
		message string
		wantLen int
		wantErr bool
	}{
		{name: "hash", hash: "0xdeadbeef", wantLen: 4},
		{name: "message", message: "hello", wantLen: 32},
		{name: "both", hash: "00", message: "x", wantErr: true},
		{name: "neither", wantErr: true},
		{name: "bad hex", hash: "zz", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			digestHex, digestText = tt.hash, tt.message
			defer func() { digestHex, digestText = "", "" }()

			got, err := readDigest()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.wantLen)
		})
	}
}

func TestShares_SplitRecover(t *testing.T) {
	split := runJSON[struct {
		PublicKey string   `json:"public_key"`
		Shares    []string `json:"shares"`
	}](t, "shares", "split", "-t", "2", "-n", "3", "--key", testKey)
	require.Len(t, split.Shares, 3)
	assert.Len(t, split.PublicKey, 66)

	recovered := runJSON[map[string]string](t, "shares", "recover", "-t", "2", split.Shares[2], split.Shares[0])
	assert.Equal(t, testKey, recovered["private_key"])
	assert.Equal(t, split.PublicKey, recovered["public_key"])
	assert.True(t, strings.HasPrefix(recovered["address"], "0x"))

	t.Run("fresh keypair", func(t *testing.T) {
		out, err := run(t, "shares", "split", "-t", "1", "-n", "2")
		require.NoError(t, err)
		assert.Contains(t, out, "public_key: ")
		assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)
	})

	t.Run("too few shares", func(t *testing.T) {
		_, err := run(t, "shares", "recover", "-t", "2", split.Shares[0])
		assert.ErrorIs(t, err, types.ErrInvalidParameter)
	})

	t.Run("bad share", func(t *testing.T) {
		_, err := run(t, "shares", "recover", "-t", "2", split.Shares[0], "nothex")
		assert.ErrorContains(t, err, "share 2")
	})
}

func TestUnsealSplit(t *testing.T) {
	ctx := context.Background()
	key, err := hex.DecodeString(testKey)
	require.NoError(t, err)

	shares := runJSON[map[string][]string](t, "unseal", "split", "-t", "2", "-n", "3", "--master-key", testKey)["unseal_shares"]
	require.Len(t, shares, 3)

	original, err := enclave.NewSoftwareVault(&enclave.SoftwareConfig{MasterKey: key})
	require.NoError(t, err)
	defer original.Close()
	restored, err := enclave.NewSoftwareVault(&enclave.SoftwareConfig{UnsealShares: shares[1:]})
	require.NoError(t, err)
	defer restored.Close()

	sealed, err := original.Encrypt(ctx, []byte("share"), []byte("aad"))
	require.NoError(t, err)
	opened, err := restored.Decrypt(ctx, sealed, []byte("aad"))
	require.NoError(t, err)
	assert.Equal(t, []byte("share"), opened)

	t.Run("from config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mpcd.yaml")
		require.NoError(t, os.WriteFile(path, []byte("security:\n  master_key: "+testKey+"\n"), 0o600))
		out := runJSON[map[string][]string](t, "unseal", "split", "--config", path)
		assert.Len(t, out["unseal_shares"], 5)
	})

	t.Run("generate", func(t *testing.T) {
		out := runJSON[map[string][]string](t, "unseal", "split", "--generate", "-t", "1", "-n", "1")
		assert.Len(t, out["unseal_shares"], 1)
	})

	t.Run("conflicting flags", func(t *testing.T) {
		_, err := run(t, "unseal", "split", "--generate", "--master-key", testKey)
		assert.ErrorContains(t, err, "mutually exclusive")
	})

	t.Run("nothing configured", func(t *testing.T) {
		_, err := run(t, "unseal", "split")
		assert.ErrorContains(t, err, "no master key")
	})
}

func newTestDaemon(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	cfg.Metrics.Enabled = false

	d, err := newDaemon(context.Background(), cfg)
	require.NoError(t, err)
	d.checker.MarkStarted()
	ts := httptest.NewServer(d.server.Handler())
	t.Cleanup(func() {
		ts.Close()
		d.close()
	})
	return ts.URL
}

func TestClientCommands(t *testing.T) {
	server := newTestDaemon(t)
	with := func(args ...string) []string { return append(args, "--server", server) }

	keygen := runJSON[types.KeyGenResponse](t, with("keygen", "wallet-1", "-t", "2", "-n", "3")...)
	assert.Equal(t, "wallet-1", keygen.SessionID)
	assert.Len(t, keygen.KeyShares, 3)
	assert.NotEmpty(t, keygen.Address)

	sign := runJSON[types.SignResponse](t, with("sign", "wallet-1", "--message", "pay 1 eth", "-p", "1,3")...)
	require.NotNil(t, sign.Signature)
	sigHex := hex.EncodeToString(sign.Signature.Signature)

	t.Run("verify", func(t *testing.T) {
		out, err := run(t, with("verify", "wallet-1", "--message", "pay 1 eth", "--signature", sigHex)...)
		require.NoError(t, err)
		assert.Contains(t, out, "true")

		_, err = run(t, with("verify", "wallet-1", "--message", "pay 2 eth", "--signature", sigHex)...)
		assert.ErrorIs(t, err, errInvalidSignature)
	})

	t.Run("sign requires participants", func(t *testing.T) {
		_, err := run(t, with("sign", "wallet-1", "--message", "x")...)
		assert.ErrorContains(t, err, "participants")
	})

	t.Run("sessions", func(t *testing.T) {
		out, err := run(t, with("sessions", "list")...)
		require.NoError(t, err)
		assert.Contains(t, out, "wallet-1\t2-of-3")

		show, err := run(t, with("sessions", "show", "wallet-1")...)
		require.NoError(t, err)
		assert.Contains(t, show, keygen.Address)

		pk := runJSON[map[string]any](t, with("sessions", "public-key", "wallet-1")...)
		assert.Equal(t, keygen.Address, pk["address"])

		share := runJSON[types.KeyShare](t, with("sessions", "share", "wallet-1", "2")...)
		assert.Equal(t, 2, share.Index)

		_, err = run(t, with("sessions", "share", "wallet-1", "two")...)
		assert.Error(t, err)
	})

	t.Run("rotate backup restore", func(t *testing.T) {
		out, err := run(t, with("sessions", "rotate", "wallet-1")...)
		require.NoError(t, err)
		assert.Contains(t, out, "shares:")

		backup, err := run(t, with("sessions", "backup", "wallet-1")...)
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "backup.json")
		require.NoError(t, os.WriteFile(path, []byte(backup), 0o600))

		restored := runJSON[map[string]any](t, with("sessions", "restore", "wallet-1", "-f", path)...)
		assert.Equal(t, "wallet-1", restored["session_id"])
	})

	t.Run("attest", func(t *testing.T) {
		out := runJSON[map[string]any](t, with("attest", "--challenge", "0102030405", "--verify")...)
		assert.Equal(t, true, out["verified"])
		assert.Equal(t, string(enclave.KindSoftware), out["vault"])

		_, err := run(t, with("attest", "--challenge", "zz")...)
		assert.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		_, err := run(t, with("sessions", "delete", "wallet-1")...)
		require.NoError(t, err)

		_, err = run(t, with("sessions", "show", "wallet-1")...)
		assert.ErrorIs(t, err, client.ErrNotFound)
	})
}
