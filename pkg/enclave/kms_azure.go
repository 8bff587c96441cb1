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
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"

	"github.com/jeremyhahn/go-mpc/pkg/crypto/aead"
	"github.com/jeremyhahn/go-mpc/pkg/crypto/rand"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// azureDataKeySize is the per-blob AES-256 data key wrapped by Key Vault
const azureDataKeySize = 32

// AzureKeyVaultClient is the subset of the Key Vault keys API the vault
// calls. *azkeys.Client satisfies it.
type AzureKeyVaultClient interface {
	WrapKey(ctx context.Context, name, version string, params azkeys.KeyOperationParameters, options *azkeys.WrapKeyOptions) (azkeys.WrapKeyResponse, error)
	UnwrapKey(ctx context.Context, name, version string, params azkeys.KeyOperationParameters, options *azkeys.UnwrapKeyOptions) (azkeys.UnwrapKeyResponse, error)
}

// azureProvider seals envelope-style: Key Vault RSA keys cannot bind
// associated data, so each blob gets a fresh AES-256-GCM data key that
// Key Vault wraps with RSA-OAEP-256, and the vault context is the GCM
// associated data.
//
//	blob = u16 len(version) || key version || u16 len(wrapped) || wrapped key || nonce || sealed
type azureProvider struct {
	client  AzureKeyVaultClient
	keyName string
	rng     rand.Resolver
}

// NewAzureKeyVault creates a vault over Azure Key Vault. KeyID names an RSA
// key and Address is the vault URL. A nil client authenticates with the
// service principal when TenantID, ClientID and ClientSecret are all set,
// and with the default Azure credential chain otherwise.
func NewAzureKeyVault(config *KMSConfig, client AzureKeyVaultClient) (*KMSVault, error) {
	if config == nil || config.KeyID == "" {
		return nil, fmt.Errorf("%w: azure key vault key_id is required", types.ErrInvalidParameter)
	}
	if client == nil {
		c, err := newAzureClient(config)
		if err != nil {
			return nil, err
		}
		client = c
	}
	return newKMSVault(&azureProvider{client: client, keyName: config.KeyID, rng: rand.SoftwareResolver{}})
}

func newAzureClient(config *KMSConfig) (*azkeys.Client, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("%w: azure key vault address is required", types.ErrInvalidParameter)
	}

	var (
		cred azcore.TokenCredential
		err  error
	)
	if config.TenantID != "" && config.ClientID != "" && config.ClientSecret != "" {
		cred, err = azidentity.NewClientSecretCredential(config.TenantID, config.ClientID, config.ClientSecret, nil)
	} else {
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: azure credential: %w", types.ErrOther, err)
	}

	client, err := azkeys.NewClient(config.Address, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: azure key vault client: %w", types.ErrOther, err)
	}
	return client, nil
}

func (p *azureProvider) name() string   { return ProviderAzure }
func (p *azureProvider) keyRef() string { return p.keyName }
func (p *azureProvider) close() error   { return nil }

func (p *azureProvider) encrypt(ctx context.Context, plaintext, aad []byte) ([]byte, error) {
	dek, err := p.rng.Rand(azureDataKeySize)
	if err != nil {
		return nil, err
	}
	defer clear(dek)

	alg := azkeys.EncryptionAlgorithmRSAOAEP256
	wrapped, err := p.client.WrapKey(ctx, p.keyName, "", azkeys.KeyOperationParameters{Algorithm: &alg, Value: dek}, nil)
	if err != nil {
		return nil, err
	}
	version := ""
	if wrapped.KID != nil {
		version = kidVersion(string(*wrapped.KID))
	}

	gcm, err := aead.New(aead.AES256GCM, dek)
	if err != nil {
		return nil, err
	}
	nonce, err := p.rng.Rand(gcm.NonceSize())
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, 4+len(version)+len(wrapped.Result)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = binary.BigEndian.AppendUint16(out, uint16(len(version)))
	out = append(out, version...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(wrapped.Result)))
	out = append(out, wrapped.Result...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, aad), nil
}

func (p *azureProvider) decrypt(ctx context.Context, ciphertext, aad []byte) ([]byte, error) {
	version, rest, err := readPrefixed(ciphertext)
	if err != nil {
		return nil, err
	}
	wrapped, rest, err := readPrefixed(rest)
	if err != nil {
		return nil, err
	}

	alg := azkeys.EncryptionAlgorithmRSAOAEP256
	unwrapped, err := p.client.UnwrapKey(ctx, p.keyName, string(version), azkeys.KeyOperationParameters{Algorithm: &alg, Value: wrapped}, nil)
	if err != nil {
		return nil, err
	}
	defer clear(unwrapped.Result)

	gcm, err := aead.New(aead.AES256GCM, unwrapped.Result)
	if err != nil {
		return nil, err
	}
	if len(rest) < gcm.NonceSize()+gcm.Overhead() {
		return nil, ErrMalformedCiphertext
	}
	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, aad)
}

// Key Vault has no RNG endpoint outside Managed HSM.
func (p *azureProvider) random(_ context.Context, n int) ([]byte, error) {
	return p.rng.Rand(n)
}

// kidVersion returns the version segment of a key identifier such as
// https://example.vault.azure.net/keys/name/version.
func kidVersion(kid string) string {
	parts := strings.Split(strings.TrimSuffix(kid, "/"), "/")
	if len(parts) < 2 || parts[len(parts)-2] == "keys" {
		return ""
	}
	return parts[len(parts)-1]
}

func readPrefixed(b []byte) (field, rest []byte, err error) {
	if len(b) < 2 {
		return nil, nil, ErrMalformedCiphertext
	}
	n := int(binary.BigEndian.Uint16(b))
	if len(b) < 2+n {
		return nil, nil, ErrMalformedCiphertext
	}
	return b[2 : 2+n], b[2+n:], nil
}
