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

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/jeremyhahn/go-mpc/pkg/adapters/auth"
)

// AuthConfig selects how API callers authenticate.
type AuthConfig struct {
	// Type is none, jwt or apikey
	Type string `yaml:"type"`

	JWT     JWTConfig     `yaml:"jwt"`
	APIKeys []auth.APIKey `yaml:"api_keys,omitempty"`
}

// JWTConfig configures bearer token verification. Secret selects HS256;
// PublicKeyFile selects RS256 or ES256 by key type.
type JWTConfig struct {
	Secret        string        `yaml:"secret,omitempty"`
	PublicKeyFile string        `yaml:"public_key_file,omitempty"`
	Issuer        string        `yaml:"issuer,omitempty"`
	Audience      string        `yaml:"audience,omitempty"`
	Leeway        time.Duration `yaml:"leeway,omitempty"`
}

// Validate checks the auth section.
func (c *AuthConfig) Validate() error {
	switch c.Type {
	case "", "none":
	case "jwt":
		if (c.JWT.Secret == "") == (c.JWT.PublicKeyFile == "") {
			return fmt.Errorf("auth.jwt needs exactly one of secret and public_key_file")
		}
	case "apikey":
		if len(c.APIKeys) == 0 {
			return fmt.Errorf("auth.api_keys must not be empty for apikey auth")
		}
	default:
		return fmt.Errorf("unknown auth type: %q", c.Type)
	}
	return nil
}

// CreateAuthenticator builds the configured authenticator.
func (c *AuthConfig) CreateAuthenticator() (auth.Authenticator, error) {
	switch c.Type {
	case "", "none":
		return auth.NewNoOpAuthenticator(), nil
	case "apikey":
		return auth.NewAPIKeyAuthenticator(c.APIKeys)
	case "jwt":
		jwtCfg := &auth.JWTConfig{Issuer: c.JWT.Issuer, Audience: c.JWT.Audience, Leeway: c.JWT.Leeway}
		if c.JWT.PublicKeyFile != "" {
			// #nosec G304 - key path from trusted config
			data, err := os.ReadFile(c.JWT.PublicKeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read jwt public key: %w", err)
			}
			if jwtCfg.PublicKey, err = auth.ParsePublicKeyPEM(data); err != nil {
				return nil, err
			}
		} else {
			jwtCfg.Secret = []byte(c.JWT.Secret)
		}
		return auth.NewJWTAuthenticator(jwtCfg)
	default:
		return nil, fmt.Errorf("unknown auth type: %q", c.Type)
	}
}
