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

// Package client is an HTTP client for the mpcd REST API.
package client

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jeremyhahn/go-mpc/pkg/adapters/auth"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// DefaultAddress is the address mpcd listens on by default.
const DefaultAddress = "http://127.0.0.1:8081"

// ErrNotFound is wrapped by APIError for unknown sessions.
var ErrNotFound = errors.New("not found")

// Config configures the client.
type Config struct {
	// Address is the server base URL. A bare host:port gets http:// or
	// https:// depending on TLSEnabled.
	Address string

	TLSEnabled bool

	// TLSInsecureSkipVerify skips TLS certificate verification (not recommended)
	TLSInsecureSkipVerify bool

	// TLSCertFile and TLSKeyFile hold the client certificate for mTLS
	TLSCertFile string
	TLSKeyFile  string

	// TLSCAFile is the path to the CA certificate file
	TLSCAFile string

	// APIKey is sent in the X-API-Key header (optional)
	APIKey string

	// Token is sent as a bearer token (optional)
	Token string

	// Timeout bounds each request (default 30s)
	Timeout time.Duration

	// Headers are additional HTTP headers to include in requests
	Headers map[string]string
}

// Client talks to one mpcd server.
type Client struct {
	config     *Config
	httpClient *http.Client
	baseURL    string
}

// APIError is a failure reported by the server.
type APIError struct {
	Status  int
	Kind    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %d (%s): %s", e.Status, e.Kind, e.Message)
}

// Unwrap maps the error kind back to its sentinel so callers can use
// errors.Is with the types package errors.
func (e *APIError) Unwrap() error {
	switch e.Kind {
	case "not_found":
		return ErrNotFound
	case "unauthenticated":
		return auth.ErrUnauthenticated
	case types.KindInvalidParameter.String():
		return types.ErrInvalidParameter
	case types.KindInvalidState.String():
		return types.ErrInvalidState
	case types.KindCryptographic.String():
		return types.ErrCryptographic
	case types.KindProtocol.String():
		return types.ErrProtocol
	case types.KindSerialization.String():
		return types.ErrSerialization
	default:
		return types.ErrOther
	}
}

// New creates a client for cfg.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	baseURL := cfg.Address
	if baseURL == "" {
		baseURL = DefaultAddress
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		if cfg.TLSEnabled {
			baseURL = "https://" + baseURL
		} else {
			baseURL = "http://" + baseURL
		}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.TLSEnabled || strings.HasPrefix(baseURL, "https://") {
		tlsConfig, err := cfg.tlsConfig()
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Transport: transport, Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}, nil
}

func (c *Config) tlsConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: c.TLSInsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	if c.TLSCAFile != "" {
		caCert, err := os.ReadFile(c.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = pool
	}
	if c.TLSCertFile != "" && c.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLSCertFile, c.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// BaseURL returns the normalized server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}
