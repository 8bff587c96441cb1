// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mpc.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-mpc/pkg/crypto/rand"
	"github.com/jeremyhahn/go-mpc/pkg/enclave"
	"github.com/jeremyhahn/go-mpc/pkg/ratelimit"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mpcd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:8081", cfg.Server.Addr())
	assert.Equal(t, 24*time.Hour, cfg.Security.KeyRotationInterval)
	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 9000
  read_timeout: 5s
logging:
  level: debug
  format: json
security:
  enable_hsm: false
  encryption_algorithm: chacha20-poly1305
  master_key: "4242424242424242424242424242424242424242424242424242424242424242"
  key_rotation_interval: 1h
  rng:
    mode: software
protocol:
  enable_proofs: false
  max_participants: 20
storage:
  backend: file
  path: /var/lib/mpcd
auth:
  type: apikey
  api_keys:
    - key: secret-1
      subject: ops
      roles: [admin]
ratelimit:
  enabled: true
  requests_per_minute: 120
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr())
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout, "unset fields keep defaults")
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "chacha20-poly1305", cfg.Security.Algorithm)
	assert.Len(t, cfg.Security.MasterKey, 64)
	assert.Equal(t, time.Hour, cfg.Security.KeyRotationInterval)
	require.NotNil(t, cfg.Protocol.EnableProofs)
	assert.False(t, *cfg.Protocol.EnableProofs)
	assert.Equal(t, "/var/lib/mpcd", cfg.Storage.Path)
	require.Len(t, cfg.Auth.APIKeys, 1)
	assert.Equal(t, "ops", cfg.Auth.APIKeys[0].Subject)
	assert.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)

	pc, def := cfg.Protocol.ProtocolConfig()
	assert.Equal(t, types.ProtocolReconstruct, def)
	assert.Equal(t, 20, pc.MaxParticipants)

	authn, err := cfg.Auth.CreateAuthenticator()
	require.NoError(t, err)
	assert.Equal(t, "apikey", authn.Name())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not a map"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MPC_PORT", "9443")
	t.Setenv("MPC_LOG_LEVEL", "warn")
	t.Setenv("MPC_ENABLE_HARDWARE_ENCLAVE", "true")
	t.Setenv("MPC_KEY_ROTATION_INTERVAL", "90m")
	t.Setenv("MPC_UNSEAL_SHARES", "a,b,c")
	t.Setenv("MPC_KMS_PROVIDER", "aws")
	t.Setenv("MPC_KMS_KEY_ID", "alias/mpc")

	cfg := Default()
	require.NoError(t, applyEnvOverrides(cfg))
	assert.Equal(t, 9443, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Security.EnableHardwareEnclave)
	assert.Equal(t, 90*time.Minute, cfg.Security.KeyRotationInterval)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Security.UnsealShares)
	require.NotNil(t, cfg.Security.KMS)
	assert.Equal(t, "alias/mpc", cfg.Security.KMS.KeyID)

	// aws needs a region
	assert.ErrorIs(t, cfg.Validate(), types.ErrInvalidParameter)
}

func TestEnvOverrides_Invalid(t *testing.T) {
	for env, value := range map[string]string{
		"MPC_PORT":                  "http",
		"MPC_ENABLE_HSM":            "maybe",
		"MPC_KEY_ROTATION_INTERVAL": "daily",
	} {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, value)
			assert.Error(t, applyEnvOverrides(Default()))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "loud" }},
		{name: "log format", mutate: func(c *Config) { c.Logging.Format = "xml" }},
		{name: "tls without cert", mutate: func(c *Config) { c.TLS.Enabled = true }},
		{name: "tls version", mutate: func(c *Config) {
			c.TLS = TLSConfig{Enabled: true, CertFile: "c", KeyFile: "k", MinVersion: "TLS1.0"}
		}},
		{name: "negative rotation", mutate: func(c *Config) { c.Security.KeyRotationInterval = -time.Second }},
		{name: "rng mode", mutate: func(c *Config) { c.Security.RNG.Mode = "dice" }},
		{name: "hsm without library", mutate: func(c *Config) { c.Security.EnableHSM = true }},
		{name: "gg18", mutate: func(c *Config) { c.Protocol.Default = "gg18" }},
		{name: "participants", mutate: func(c *Config) { c.Protocol.MaxParticipants = 256 }},
		{name: "file storage without path", mutate: func(c *Config) { c.Storage.Backend = "file" }},
		{name: "storage backend", mutate: func(c *Config) { c.Storage.Backend = "etcd" }},
		{name: "auth type", mutate: func(c *Config) { c.Auth.Type = "kerberos" }},
		{name: "jwt without key", mutate: func(c *Config) { c.Auth.Type = "jwt" }},
		{name: "jwt with both", mutate: func(c *Config) {
			c.Auth = AuthConfig{Type: "jwt", JWT: JWTConfig{Secret: "s", PublicKeyFile: "k.pem"}}
		}},
		{name: "apikey without keys", mutate: func(c *Config) { c.Auth.Type = "apikey" }},
		{name: "ratelimit", mutate: func(c *Config) { c.RateLimit = ratelimit.Config{Enabled: true} }},
		{name: "metrics path", mutate: func(c *Config) { c.Metrics.Path = "metrics" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnclaveConfig(t *testing.T) {
	cfg := Default()
	cfg.Security.RNG = RNGConfig{Mode: "tpm2", FallbackMode: "software", TPM2Device: "/dev/tpmrm0"}
	cfg.Security.KMS = &enclave.KMSConfig{Provider: enclave.ProviderGCP, KeyID: "projects/p/locations/l/keyRings/r/cryptoKeys/k"}

	ec, err := cfg.Security.EnclaveConfig(nil)
	require.NoError(t, err)
	require.NotNil(t, ec.Random)
	assert.Equal(t, rand.ModeTPM2, ec.Random.Mode)
	assert.Equal(t, rand.ModeSoftware, ec.Random.FallbackMode)
	assert.Equal(t, "/dev/tpmrm0", ec.Random.TPM2.Device)
	assert.Nil(t, ec.Random.PKCS11)
	assert.Equal(t, enclave.ProviderGCP, ec.KMS.Provider)
	assert.Equal(t, "auto", ec.Algorithm)
}

func TestStorageOpen(t *testing.T) {
	mem, err := (&StorageConfig{Backend: "memory"}).Open()
	require.NoError(t, err)
	require.NoError(t, mem.Close())

	fs, err := (&StorageConfig{Backend: "file", Path: t.TempDir()}).Open()
	require.NoError(t, err)
	require.NoError(t, fs.Close())

	_, err = (&StorageConfig{Backend: "etcd"}).Open()
	assert.Error(t, err)
}

func TestCreateAuthenticator(t *testing.T) {
	authn, err := (&AuthConfig{Type: "none"}).CreateAuthenticator()
	require.NoError(t, err)
	assert.Equal(t, "none", authn.Name())

	authn, err = (&AuthConfig{Type: "jwt", JWT: JWTConfig{Secret: "0123456789abcdef"}}).CreateAuthenticator()
	require.NoError(t, err)
	assert.Equal(t, "jwt", authn.Name())

	_, err = (&AuthConfig{Type: "jwt", JWT: JWTConfig{PublicKeyFile: filepath.Join(t.TempDir(), "none.pem")}}).CreateAuthenticator()
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := (&LoggingConfig{Level: "debug", Format: "json"}).NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = (&LoggingConfig{Level: "verbose"}).NewLogger()
	assert.Error(t, err)
}
