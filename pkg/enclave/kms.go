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
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-mpc/pkg/crypto/rand"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// kmsAlgorithmID marks blobs whose body is an opaque provider ciphertext.
const kmsAlgorithmID byte = 0x90

// kmsProvider is the per-service half of a KMSVault.
type kmsProvider interface {
	name() string
	keyRef() string
	encrypt(ctx context.Context, plaintext, aad []byte) ([]byte, error)
	decrypt(ctx context.Context, ciphertext, aad []byte) ([]byte, error)
	random(ctx context.Context, n int) ([]byte, error)
	close() error
}

// KMSVault delegates sealing to a cloud key management service. The
// caller's context travels to the service as encryption context or
// additional authenticated data, so the service itself refuses to decrypt
// under the wrong context.
type KMSVault struct {
	mu       sync.RWMutex
	provider kmsProvider
	attestor *attestor
	closed   bool
}

var _ Vault = (*KMSVault)(nil)

func newKMSVault(p kmsProvider) (*KMSVault, error) {
	att, err := newAttestor(rand.SoftwareResolver{})
	if err != nil {
		return nil, err
	}
	return &KMSVault{provider: p, attestor: att}, nil
}

// NewKMSVault builds the vault for config.Provider with default clients.
func NewKMSVault(ctx context.Context, config *KMSConfig) (*KMSVault, error) {
	if config == nil || config.Provider == "" {
		return nil, fmt.Errorf("%w: kms provider is required", types.ErrInvalidParameter)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Provider {
	case ProviderAWS:
		return NewAWSKMSVault(ctx, config, nil)
	case ProviderGCP:
		return NewGCPKMSVault(ctx, config, nil)
	case ProviderAzure:
		return NewAzureKeyVault(config, nil)
	default:
		return NewTransitVault(config, nil)
	}
}

func (v *KMSVault) Kind() Kind {
	return KindKMS
}

// Provider returns aws, gcp, azure or transit.
func (v *KMSVault) Provider() string {
	return v.provider.name()
}

func (v *KMSVault) Available() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return !v.closed
}

func (v *KMSVault) Encrypt(ctx context.Context, plaintext, aad []byte) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, ErrClosed
	}

	blob, err := v.provider.encrypt(ctx, plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %s encrypt: %w", types.ErrCryptographic, v.provider.name(), err)
	}
	return append([]byte{ciphertextVersion, kmsAlgorithmID}, blob...), nil
}

func (v *KMSVault) Decrypt(ctx context.Context, ciphertext, aad []byte) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, ErrClosed
	}

	if len(ciphertext) <= headerSize || ciphertext[0] != ciphertextVersion || ciphertext[1] != kmsAlgorithmID {
		return nil, fmt.Errorf("%w: %w", types.ErrCryptographic, ErrMalformedCiphertext)
	}
	plaintext, err := v.provider.decrypt(ctx, ciphertext[headerSize:], aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %s: %w", types.ErrCryptographic, ErrDecrypt, v.provider.name(), err)
	}
	return plaintext, nil
}

func (v *KMSVault) SecureRandom(ctx context.Context, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", types.ErrInvalidParameter, n)
	}
	if n == 0 {
		return []byte{}, nil
	}
	out, err := v.provider.random(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("%w: %s random: %w", types.ErrCryptographic, v.provider.name(), err)
	}
	if len(out) != n {
		return nil, fmt.Errorf("%w: %s returned %d random bytes, want %d", types.ErrCryptographic, v.provider.name(), len(out), n)
	}
	return out, nil
}

// Attest returns a configuration attestation: a locally signed statement
// naming the provider and key. Cloud KMS offers no attestation of its own.
func (v *KMSVault) Attest(_ context.Context, challenge []byte) ([]byte, error) {
	return v.attestor.sign(AttestationClaims{
		Type:        AttestationConfiguration,
		Kind:        KindKMS,
		Challenge:   challenge,
		Measurement: v.provider.name() + ":" + v.provider.keyRef(),
		Provider:    v.provider.name(),
		KeyRef:      v.provider.keyRef(),
	})
}

func (v *KMSVault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	return v.provider.close()
}

// readChunked fills n bytes from fetch, which returns at most limit per call.
func readChunked(n, limit int, fetch func(int) ([]byte, error)) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		chunk, err := fetch(min(n-len(out), limit))
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			return nil, fmt.Errorf("empty random response")
		}
		out = append(out, chunk...)
	}
	return out[:n], nil
}
