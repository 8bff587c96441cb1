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

package enclave

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

const defaultTransitMount = "transit"

// TransitClient writes to Vault logical paths.
type TransitClient interface {
	Write(ctx context.Context, path string, data map[string]interface{}) (*vault.Secret, error)
}

// logicalClient adapts *vault.Client.
type logicalClient struct {
	client *vault.Client
}

func (c logicalClient) Write(ctx context.Context, path string, data map[string]interface{}) (*vault.Secret, error) {
	return c.client.Logical().WriteWithContext(ctx, path, data)
}

type transitProvider struct {
	client TransitClient
	mount  string
	key    string
}

// NewTransitVault creates a vault over the Vault Transit engine. The key
// must be created with derived=true so that the context parameter selects
// a per-context key; a non-derived key ignores context and loses the
// replay protection.
func NewTransitVault(config *KMSConfig, client TransitClient) (*KMSVault, error) {
	if config == nil || config.KeyID == "" {
		return nil, fmt.Errorf("%w: transit key_id is required", types.ErrInvalidParameter)
	}
	if client == nil {
		cfg := vault.DefaultConfig()
		if config.Address != "" {
			cfg.Address = config.Address
		}
		c, err := vault.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: create vault client: %w", types.ErrOther, err)
		}
		if config.Token != "" {
			c.SetToken(config.Token)
		}
		client = logicalClient{client: c}
	}

	mount := strings.Trim(config.MountPath, "/")
	if mount == "" {
		mount = defaultTransitMount
	}
	return newKMSVault(&transitProvider{client: client, mount: mount, key: config.KeyID})
}

func (p *transitProvider) name() string   { return ProviderTransit }
func (p *transitProvider) keyRef() string { return p.mount + "/" + p.key }
func (p *transitProvider) close() error   { return nil }

// transitContext is never empty; derived keys reject an empty context.
func transitContext(aad []byte) string {
	return base64.StdEncoding.EncodeToString(append([]byte("go-mpc:"), aad...))
}

func (p *transitProvider) encrypt(ctx context.Context, plaintext, aad []byte) ([]byte, error) {
	secret, err := p.client.Write(ctx, p.mount+"/encrypt/"+p.key, map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
		"context":   transitContext(aad),
	})
	if err != nil {
		return nil, err
	}
	ct, err := stringField(secret, "ciphertext")
	if err != nil {
		return nil, err
	}
	return []byte(ct), nil
}

func (p *transitProvider) decrypt(ctx context.Context, ciphertext, aad []byte) ([]byte, error) {
	secret, err := p.client.Write(ctx, p.mount+"/decrypt/"+p.key, map[string]interface{}{
		"ciphertext": string(ciphertext),
		"context":    transitContext(aad),
	})
	if err != nil {
		return nil, err
	}
	pt, err := stringField(secret, "plaintext")
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(pt)
}

func (p *transitProvider) random(ctx context.Context, n int) ([]byte, error) {
	secret, err := p.client.Write(ctx, fmt.Sprintf("%s/random/%d", p.mount, n), map[string]interface{}{
		"format": "base64",
	})
	if err != nil {
		return nil, err
	}
	b64, err := stringField(secret, "random_bytes")
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(b64)
}

func stringField(secret *vault.Secret, field string) (string, error) {
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("empty response")
	}
	v, ok := secret.Data[field].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("response has no %s", field)
	}
	return v, nil
}
