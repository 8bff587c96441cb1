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

// Package config loads the mpcd configuration from YAML with MPC_*
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-mpc/pkg/crypto/rand"
	"github.com/jeremyhahn/go-mpc/pkg/enclave"
	"github.com/jeremyhahn/go-mpc/pkg/logging"
	"github.com/jeremyhahn/go-mpc/pkg/protocol"
	"github.com/jeremyhahn/go-mpc/pkg/ratelimit"
	"github.com/jeremyhahn/go-mpc/pkg/storage"
	"github.com/jeremyhahn/go-mpc/pkg/storage/file"
	"github.com/jeremyhahn/go-mpc/pkg/storage/memory"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Logging   LoggingConfig    `yaml:"logging"`
	TLS       TLSConfig        `yaml:"tls"`
	Security  SecurityConfig   `yaml:"security"`
	Protocol  ProtocolConfig   `yaml:"protocol"`
	Storage   StorageConfig    `yaml:"storage"`
	Auth      AuthConfig       `yaml:"auth"`
	RateLimit ratelimit.Config `yaml:"ratelimit"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Audit     AuditConfig      `yaml:"audit"`
}

// ServerConfig contains listener settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SecurityConfig selects the vault and its entropy source. The vault
// settings are inlined from enclave.Config.
type SecurityConfig struct {
	enclave.Config `yaml:",inline"`

	// KeyRotationInterval is the maximum share age before scheduled
	// rotation. Zero disables the rotator.
	KeyRotationInterval time.Duration `yaml:"key_rotation_interval"`

	RNG RNGConfig `yaml:"rng"`
}

// RNGConfig selects the entropy source behind the vault.
type RNGConfig struct {
	Mode         string `yaml:"mode"`
	FallbackMode string `yaml:"fallback_mode"`
	TPM2Device   string `yaml:"tpm2_device,omitempty"`
	PKCS11Module string `yaml:"pkcs11_module,omitempty"`
	PKCS11Slot   uint   `yaml:"pkcs11_slot,omitempty"`
	PKCS11PIN    string `yaml:"pkcs11_pin,omitempty"`
}

// ProtocolConfig configures the signing protocols.
type ProtocolConfig struct {
	Default         string `yaml:"default"`
	EnableProofs    *bool  `yaml:"enable_proofs"`
	MaxParticipants int    `yaml:"max_participants"`
}

// StorageConfig selects where session records are kept.
type StorageConfig struct {
	// Backend is memory or file
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AuditConfig controls the in-memory audit trail.
type AuditConfig struct {
	Enabled  bool `yaml:"enabled"`
	Capacity int  `yaml:"capacity"`
}

// Default returns a configuration for a local development server: software
// vault, in-memory storage, no authentication.
func Default() *Config {
	enableProofs := true
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8081,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Security: SecurityConfig{
			Config:              enclave.Config{Algorithm: "auto"},
			KeyRotationInterval: 24 * time.Hour,
			RNG:                 RNGConfig{Mode: string(rand.ModeAuto)},
		},
		Protocol: ProtocolConfig{
			Default:         string(types.ProtocolReconstruct),
			EnableProofs:    &enableProofs,
			MaxParticipants: protocol.DefaultMaxParticipants,
		},
		Storage:   StorageConfig{Backend: "memory"},
		Auth:      AuthConfig{Type: "none"},
		RateLimit: ratelimit.Config{Enabled: false, RequestsPerMinute: 600},
		Metrics:   MetricsConfig{Enabled: true, Path: "/metrics"},
		Audit:     AuditConfig{Enabled: true, Capacity: 10000},
	}
}

// Load reads path over Default, applies environment overrides and
// validates the result. An empty path loads only defaults and overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		// #nosec G304 - config path is chosen by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies MPC_* environment variables.
func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"MPC_HOST":                 &cfg.Server.Host,
		"MPC_LOG_LEVEL":            &cfg.Logging.Level,
		"MPC_LOG_FORMAT":           &cfg.Logging.Format,
		"MPC_ENCRYPTION_ALGORITHM": &cfg.Security.Algorithm,
		"MPC_MASTER_KEY":           &cfg.Security.MasterKey,
		"MPC_RNG_MODE":             &cfg.Security.RNG.Mode,
		"MPC_STORAGE_BACKEND":      &cfg.Storage.Backend,
		"MPC_STORAGE_PATH":         &cfg.Storage.Path,
		"MPC_AUTH_TYPE":            &cfg.Auth.Type,
		"MPC_JWT_SECRET":           &cfg.Auth.JWT.Secret,
		"MPC_DEFAULT_PROTOCOL":     &cfg.Protocol.Default,
	}
	for env, dst := range str {
		if v, ok := os.LookupEnv(env); ok {
			*dst = v
		}
	}

	flags := map[string]*bool{
		"MPC_ENABLE_HSM":              &cfg.Security.EnableHSM,
		"MPC_ENABLE_HARDWARE_ENCLAVE": &cfg.Security.EnableHardwareEnclave,
		"MPC_METRICS_ENABLED":         &cfg.Metrics.Enabled,
		"MPC_RATELIMIT_ENABLED":       &cfg.RateLimit.Enabled,
	}
	for env, dst := range flags {
		if v, ok := os.LookupEnv(env); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s value %q: %w", env, v, err)
			}
			*dst = b
		}
	}

	if v, ok := os.LookupEnv("MPC_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MPC_PORT value %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := os.LookupEnv("MPC_KEY_ROTATION_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid MPC_KEY_ROTATION_INTERVAL value %q: %w", v, err)
		}
		cfg.Security.KeyRotationInterval = d
	}
	if v, ok := os.LookupEnv("MPC_UNSEAL_SHARES"); ok && v != "" {
		cfg.Security.UnsealShares = strings.Split(v, ",")
	}

	// The cloud SDKs read their own variables; these only pick the key
	if v, ok := os.LookupEnv("MPC_KMS_PROVIDER"); ok {
		if cfg.Security.KMS == nil {
			cfg.Security.KMS = &enclave.KMSConfig{}
		}
		cfg.Security.KMS.Provider = v
	}
	if v, ok := os.LookupEnv("MPC_KMS_KEY_ID"); ok && cfg.Security.KMS != nil {
		cfg.Security.KMS.KeyID = v
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn or error)", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}
	if err := c.TLS.Validate(); err != nil {
		return err
	}

	if c.Security.KeyRotationInterval < 0 {
		return fmt.Errorf("key_rotation_interval cannot be negative")
	}
	if _, err := rand.ParseMode(c.Security.RNG.Mode); err != nil {
		return err
	}
	if c.Security.RNG.FallbackMode != "" {
		if _, err := rand.ParseMode(c.Security.RNG.FallbackMode); err != nil {
			return err
		}
	}
	if err := c.Security.KMS.Validate(); err != nil {
		return err
	}
	if c.Security.EnableHSM && (c.Security.HSM == nil || c.Security.HSM.Library == "") {
		return fmt.Errorf("security.hsm.library is required when enable_hsm is set")
	}

	if c.Protocol.Default != "" && types.ProtocolType(c.Protocol.Default) != types.ProtocolReconstruct {
		return fmt.Errorf("%w: protocol %q is not available", types.ErrProtocol, c.Protocol.Default)
	}
	if c.Protocol.MaxParticipants < 0 || c.Protocol.MaxParticipants > 255 {
		return fmt.Errorf("invalid max_participants: %d", c.Protocol.MaxParticipants)
	}

	switch c.Storage.Backend {
	case "memory":
	case "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path must be specified for the file backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Storage.Backend)
	}

	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("ratelimit requests_per_minute must be positive")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with /")
	}
	return nil
}

// NewLogger builds the logger described by the logging section.
func (c *LoggingConfig) NewLogger() (logging.Logger, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(&logging.Config{Level: level, Format: strings.ToLower(c.Format)})
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// EnclaveConfig returns the vault configuration with the entropy source
// resolved from the rng section.
func (c *SecurityConfig) EnclaveConfig(logger logging.Logger) (*enclave.Config, error) {
	mode, err := rand.ParseMode(c.RNG.Mode)
	if err != nil {
		return nil, err
	}
	fallback := rand.ModeSoftware
	if c.RNG.FallbackMode != "" {
		if fallback, err = rand.ParseMode(c.RNG.FallbackMode); err != nil {
			return nil, err
		}
	}

	cfg := c.Config
	cfg.Logger = logger
	cfg.Random = &rand.Config{Mode: mode, FallbackMode: fallback}
	if c.RNG.TPM2Device != "" {
		cfg.Random.TPM2 = &rand.TPM2Config{Device: c.RNG.TPM2Device}
	}
	if c.RNG.PKCS11Module != "" {
		cfg.Random.PKCS11 = &rand.PKCS11Config{
			Module: c.RNG.PKCS11Module,
			SlotID: c.RNG.PKCS11Slot,
			PIN:    c.RNG.PKCS11PIN,
		}
	}
	return &cfg, nil
}

// ProtocolConfig returns the protocol settings and the default protocol.
func (c *ProtocolConfig) ProtocolConfig() (*protocol.Config, types.ProtocolType) {
	cfg := &protocol.Config{EnableProofs: c.EnableProofs, MaxParticipants: c.MaxParticipants}
	return cfg, types.ProtocolType(c.Default)
}

// Open opens the configured storage backend.
func (c *StorageConfig) Open() (storage.Backend, error) {
	switch c.Backend {
	case "", "memory":
		return memory.New(), nil
	case "file":
		return file.New(c.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", c.Backend)
	}
}
