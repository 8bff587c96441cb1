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

package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures a JWTAuthenticator. Exactly one of Secret (HS256)
// and PublicKey (RS256 or ES256) is set.
type JWTConfig struct {
	// Secret verifies HS256 tokens
	Secret []byte

	// PublicKey verifies RS256 (*rsa.PublicKey) or ES256
	// (*ecdsa.PublicKey) tokens
	PublicKey crypto.PublicKey

	// Issuer, when set, must match the iss claim
	Issuer string

	// Audience, when set, must appear in the aud claim
	Audience string

	// Leeway tolerates clock skew on exp and nbf
	Leeway time.Duration
}

// JWTAuthenticator verifies bearer JWTs. Tokens must carry sub and exp.
type JWTAuthenticator struct {
	key    any
	parser *jwt.Parser
}

// tokenClaims are the claims read from a verified token.
type tokenClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// NewJWTAuthenticator creates a JWT authenticator.
func NewJWTAuthenticator(config *JWTConfig) (*JWTAuthenticator, error) {
	if config == nil {
		return nil, fmt.Errorf("auth: jwt config is required")
	}

	var (
		key    any
		method string
	)
	switch pub := config.PublicKey.(type) {
	case nil:
		if len(config.Secret) == 0 {
			return nil, fmt.Errorf("auth: jwt requires a secret or a public key")
		}
		key, method = config.Secret, jwt.SigningMethodHS256.Alg()
	case *rsa.PublicKey:
		key, method = pub, jwt.SigningMethodRS256.Alg()
	case *ecdsa.PublicKey:
		key, method = pub, jwt.SigningMethodES256.Alg()
	default:
		return nil, fmt.Errorf("auth: unsupported jwt public key %T", config.PublicKey)
	}
	if config.PublicKey != nil && len(config.Secret) > 0 {
		return nil, fmt.Errorf("auth: jwt secret and public key are mutually exclusive")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	return &JWTAuthenticator{key: key, parser: jwt.NewParser(opts...)}, nil
}

// ParsePublicKeyPEM parses an RSA or EC public key for JWT verification.
func ParsePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	if pub, err := jwt.ParseECPublicKeyFromPEM(data); err == nil {
		return pub, nil
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("auth: parse jwt public key: %w", err)
	}
	return pub, nil
}

// Authenticate verifies the request's bearer token.
func (a *JWTAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	raw := bearer(r)
	if raw == "" {
		return nil, fmt.Errorf("%w: no bearer token", ErrUnauthenticated)
	}

	var claims tokenClaims
	_, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return &Identity{Subject: claims.Subject, Roles: claims.Roles, Method: a.Name()}, nil
}

// Name returns "jwt".
func (a *JWTAuthenticator) Name() string {
	return "jwt"
}
