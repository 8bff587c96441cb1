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
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/jeremyhahn/go-mpc/pkg/crypto/aead"
	"github.com/jeremyhahn/go-mpc/pkg/crypto/rand"
	"github.com/jeremyhahn/go-mpc/pkg/threshold/shamir"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

const (
	// ciphertextVersion is the first byte of every sealed blob
	ciphertextVersion byte = 0x01

	headerSize    = 2
	masterKeySize = 32
	keyInfoPrefix = "go-mpc/vault/"
)

// SoftwareConfig configures a SoftwareVault.
type SoftwareConfig struct {
	// Algorithm is auto, aes256-gcm or chacha20-poly1305
	Algorithm string

	// MasterKey is the raw 32-byte key. Mutually exclusive with UnsealShares.
	MasterKey []byte

	// UnsealShares are encoded unseal shares (ExportUnsealShares)
	UnsealShares []string

	// MaxEncryptions bounds seal operations per data key
	MaxEncryptions uint64

	// Random is the entropy source. The vault closes it on Close.
	// Defaults to crypto/rand.
	Random rand.Resolver

	// Kind overrides the reported kind; used by vaults that wrap this one
	Kind Kind
}

// SoftwareVault seals with an AEAD data key derived from an in-memory
// master key:
//
//	data key   = HKDF-SHA256(master, info = "go-mpc/vault/<algorithm>")
//	ciphertext = version || algorithm id || nonce || sealed(plaintext)
//
// The two header bytes and the caller's context are the associated data.
// Blobs sealed under either algorithm can be opened regardless of which
// one is configured for new encryptions.
type SoftwareVault struct {
	mu        sync.RWMutex
	kind      Kind
	master    []byte
	algorithm string
	sealID    byte
	ciphers   map[byte]cipher.AEAD
	usage     *aead.UsageTracker
	random    rand.Resolver
	keyID     string
	attestor  *attestor
	closed    bool
}

var _ Vault = (*SoftwareVault)(nil)

// NewSoftwareVault creates a software vault. With no key material a random
// master key is generated.
func NewSoftwareVault(config *SoftwareConfig) (*SoftwareVault, error) {
	if config == nil {
		config = &SoftwareConfig{}
	}

	random := config.Random
	if random == nil {
		random = rand.SoftwareResolver{}
	}

	algorithm, err := aead.Resolve(config.Algorithm, false)
	if err != nil {
		return nil, err
	}
	sealID, err := aead.ID(algorithm)
	if err != nil {
		return nil, err
	}

	master, err := masterKey(config, random)
	if err != nil {
		return nil, err
	}

	ciphers := make(map[byte]cipher.AEAD, 2)
	for _, alg := range []string{aead.AES256GCM, aead.ChaCha20Poly1305} {
		key, err := deriveKey(master, keyInfoPrefix+alg)
		if err != nil {
			clear(master)
			return nil, err
		}
		c, err := aead.New(alg, key)
		clear(key)
		if err != nil {
			clear(master)
			return nil, err
		}
		id, _ := aead.ID(alg)
		ciphers[id] = c
	}

	fingerprint, err := deriveKey(master, keyInfoPrefix+"key-id")
	if err != nil {
		clear(master)
		return nil, err
	}

	att, err := newAttestor(random)
	if err != nil {
		clear(master)
		return nil, err
	}

	kind := config.Kind
	if kind == "" {
		kind = KindSoftware
	}

	return &SoftwareVault{
		kind:      kind,
		master:    master,
		algorithm: algorithm,
		sealID:    sealID,
		ciphers:   ciphers,
		usage:     aead.NewUsageTracker(config.MaxEncryptions),
		random:    random,
		keyID:     hex.EncodeToString(fingerprint[:16]),
		attestor:  att,
	}, nil
}

func masterKey(config *SoftwareConfig, random rand.Resolver) ([]byte, error) {
	switch {
	case len(config.MasterKey) > 0 && len(config.UnsealShares) > 0:
		return nil, fmt.Errorf("%w: master key and unseal shares are mutually exclusive", types.ErrInvalidParameter)
	case len(config.MasterKey) > 0:
		if len(config.MasterKey) != masterKeySize {
			return nil, fmt.Errorf("%w: master key must be %d bytes, got %d",
				types.ErrInvalidParameter, masterKeySize, len(config.MasterKey))
		}
		return append([]byte(nil), config.MasterKey...), nil
	case len(config.UnsealShares) > 0:
		shares, err := shamir.ParseShares(config.UnsealShares)
		if err != nil {
			return nil, err
		}
		key, err := shamir.Combine(shares)
		if err != nil {
			return nil, err
		}
		if len(key) != masterKeySize {
			clear(key)
			return nil, fmt.Errorf("%w: unseal shares reconstruct a %d-byte key", types.ErrCryptographic, len(key))
		}
		return key, nil
	default:
		return random.Rand(masterKeySize)
	}
}

func deriveKey(master []byte, info string) ([]byte, error) {
	key := make([]byte, aead.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("%w: derive key: %w", types.ErrCryptographic, err)
	}
	return key, nil
}

func (v *SoftwareVault) Kind() Kind {
	return v.kind
}

func (v *SoftwareVault) Available() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return !v.closed
}

// Algorithm returns the AEAD used for new encryptions.
func (v *SoftwareVault) Algorithm() string {
	return v.algorithm
}

// KeyID is a non-secret fingerprint of the master key. Two vaults with the
// same KeyID open each other's ciphertexts.
func (v *SoftwareVault) KeyID() string {
	return v.keyID
}

// AttestationKey is the public half of the key that signs Attest output.
func (v *SoftwareVault) AttestationKey() *ecdsa.PublicKey {
	return v.attestor.publicKey()
}

func (v *SoftwareVault) Encrypt(_ context.Context, plaintext, aad []byte) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, ErrClosed
	}
	if err := v.usage.Reserve(); err != nil {
		return nil, err
	}

	c := v.ciphers[v.sealID]
	out := make([]byte, headerSize+c.NonceSize(), headerSize+c.NonceSize()+len(plaintext)+c.Overhead())
	out[0] = ciphertextVersion
	out[1] = v.sealID
	nonce := out[headerSize:]
	if _, err := io.ReadFull(v.random, nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce: %w", types.ErrCryptographic, err)
	}
	return c.Seal(out, nonce, plaintext, associatedData(out[:headerSize], aad)), nil
}

func (v *SoftwareVault) Decrypt(_ context.Context, ciphertext, aad []byte) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, ErrClosed
	}

	if len(ciphertext) < headerSize || ciphertext[0] != ciphertextVersion {
		return nil, fmt.Errorf("%w: %w: bad header", types.ErrCryptographic, ErrMalformedCiphertext)
	}
	c, ok := v.ciphers[ciphertext[1]]
	if !ok {
		return nil, fmt.Errorf("%w: %w: algorithm id 0x%02x", types.ErrCryptographic, ErrMalformedCiphertext, ciphertext[1])
	}
	if len(ciphertext) < headerSize+c.NonceSize()+c.Overhead() {
		return nil, fmt.Errorf("%w: %w: truncated", types.ErrCryptographic, ErrMalformedCiphertext)
	}

	nonce := ciphertext[headerSize : headerSize+c.NonceSize()]
	body := ciphertext[headerSize+c.NonceSize():]
	plaintext, err := c.Open(nil, nonce, body, associatedData(ciphertext[:headerSize], aad))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrCryptographic, ErrDecrypt)
	}
	return plaintext, nil
}

func associatedData(header, aad []byte) []byte {
	out := make([]byte, 0, len(header)+len(aad))
	out = append(out, header...)
	return append(out, aad...)
}

func (v *SoftwareVault) SecureRandom(_ context.Context, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", types.ErrInvalidParameter, n)
	}
	return v.random.Rand(n)
}

// Attest returns a JWS statement binding challenge to this vault's kind,
// algorithm and key fingerprint.
func (v *SoftwareVault) Attest(_ context.Context, challenge []byte) ([]byte, error) {
	return v.attestor.sign(AttestationClaims{
		Type:        AttestationSoftware,
		Kind:        v.kind,
		Challenge:   challenge,
		Measurement: v.keyID,
		Algorithm:   v.algorithm,
	})
}

// ExportUnsealShares splits the master key into threshold-of-total shares
// for operator custody. Any threshold of them restore the vault through
// SoftwareConfig.UnsealShares.
func (v *SoftwareVault) ExportUnsealShares(threshold, total int) ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, ErrClosed
	}

	shares, err := shamir.Split(v.master, threshold, total)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(shares))
	for i, s := range shares {
		out[i] = s.Encode()
	}
	return out, nil
}

// Close scrubs the master key. Further operations fail with ErrClosed.
func (v *SoftwareVault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	clear(v.master)
	v.ciphers = nil
	v.closed = true
	return v.random.Close()
}
