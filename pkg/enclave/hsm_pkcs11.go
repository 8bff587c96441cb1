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

//go:build pkcs11

package enclave

import (
	"context"
	"crypto"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/asn1"
	"fmt"
	"io"
	"sync"

	"github.com/ThalesGroup/crypto11"
	"github.com/miekg/pkcs11"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

const defaultHSMKeyLabel = "go-mpc-vault"

// HSMVault seals with AES-256-GCM under a token-resident secret key and
// attests with a token-resident P-256 key. Neither key leaves the token.
//
// Ciphertext layout matches the software vault (version || id || nonce ||
// sealed), so blobs are self-describing, but only the token can open them.
type HSMVault struct {
	mu     sync.RWMutex
	ctx    *crypto11.Context
	gcm    cipher.AEAD
	signer crypto11.Signer
	random io.Reader
	closed bool
}

var _ Vault = (*HSMVault)(nil)

// NewHSMVault opens the token and finds, or generates, the vault keys.
func NewHSMVault(config *HSMConfig) (Vault, error) {
	if config == nil || config.Library == "" {
		return nil, fmt.Errorf("%w: hsm library path is required", types.ErrInvalidParameter)
	}
	if err := probeSlots(config.Library); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	ctx, err := crypto11.Configure(&crypto11.Config{
		Path:       config.Library,
		TokenLabel: config.TokenLabel,
		Pin:        config.PIN,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: configure PKCS#11: %w", ErrUnavailable, err)
	}

	label := config.KeyLabel
	if label == "" {
		label = defaultHSMKeyLabel
	}

	v := &HSMVault{ctx: ctx}
	if err := v.init([]byte(label)); err != nil {
		_ = ctx.Close()
		return nil, err
	}
	return v, nil
}

// probeSlots checks that the module loads and has at least one token.
func probeSlots(library string) error {
	p := pkcs11.New(library)
	if p == nil {
		return fmt.Errorf("cannot load PKCS#11 module %s", library)
	}
	defer p.Destroy()
	if err := p.Initialize(); err != nil && err != pkcs11.Error(pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED) {
		return err
	}
	defer p.Finalize()

	slots, err := p.GetSlotList(true)
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		return fmt.Errorf("no PKCS#11 token present")
	}
	return nil
}

func (v *HSMVault) init(label []byte) error {
	key, err := v.ctx.FindKey(nil, label)
	if err != nil {
		return fmt.Errorf("%w: find vault key: %w", types.ErrCryptographic, err)
	}
	if key == nil {
		key, err = v.ctx.GenerateSecretKeyWithLabel(label, label, 256, crypto11.CipherAES)
		if err != nil {
			return fmt.Errorf("%w: generate vault key: %w", types.ErrCryptographic, err)
		}
	}
	v.gcm, err = key.NewGCM()
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrCryptographic, err)
	}

	attestLabel := append(append([]byte{}, label...), "-attest"...)
	signer, err := v.ctx.FindKeyPair(nil, attestLabel)
	if err != nil {
		return fmt.Errorf("%w: find attestation key: %w", types.ErrCryptographic, err)
	}
	if signer == nil {
		signer, err = v.ctx.GenerateECDSAKeyPairWithLabel(attestLabel, attestLabel, elliptic.P256())
		if err != nil {
			return fmt.Errorf("%w: generate attestation key: %w", types.ErrCryptographic, err)
		}
	}
	v.signer = signer

	v.random, err = v.ctx.NewRandomReader()
	if err != nil {
		return fmt.Errorf("%w: token RNG: %w", types.ErrCryptographic, err)
	}
	return nil
}

func (v *HSMVault) Kind() Kind {
	return KindHSM
}

func (v *HSMVault) Available() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return !v.closed
}

func (v *HSMVault) Encrypt(_ context.Context, plaintext, aad []byte) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, ErrClosed
	}

	header := []byte{ciphertextVersion, hsmAlgorithmID}
	nonce := make([]byte, v.gcm.NonceSize())
	if _, err := io.ReadFull(v.random, nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce: %w", types.ErrCryptographic, err)
	}
	out := append(header, nonce...)
	return v.gcm.Seal(out, nonce, plaintext, associatedData(header, aad)), nil
}

func (v *HSMVault) Decrypt(_ context.Context, ciphertext, aad []byte) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, ErrClosed
	}

	ns := v.gcm.NonceSize()
	if len(ciphertext) < headerSize+ns+v.gcm.Overhead() ||
		ciphertext[0] != ciphertextVersion || ciphertext[1] != hsmAlgorithmID {
		return nil, fmt.Errorf("%w: %w", types.ErrCryptographic, ErrMalformedCiphertext)
	}
	nonce := ciphertext[headerSize : headerSize+ns]
	plaintext, err := v.gcm.Open(nil, nonce, ciphertext[headerSize+ns:], associatedData(ciphertext[:headerSize], aad))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrCryptographic, ErrDecrypt)
	}
	return plaintext, nil
}

func (v *HSMVault) SecureRandom(_ context.Context, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", types.ErrInvalidParameter, n)
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(v.random, out); err != nil {
		return nil, fmt.Errorf("%w: token RNG: %w", types.ErrCryptographic, err)
	}
	return out, nil
}

// Attest returns DER(SEQUENCE{uncompressed P-256 public key, ECDSA
// signature over SHA-256(challenge || "hsm-attestation")}).
func (v *HSMVault) Attest(_ context.Context, challenge []byte) ([]byte, error) {
	digest := sha256.Sum256(append(append([]byte{}, challenge...), hsmAttestSuffix...))
	sig, err := v.signer.Sign(v.random, digest[:], crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("%w: attestation signature: %w", types.ErrCryptographic, err)
	}
	pub, ok := v.signer.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: attestation key is not ECDSA", types.ErrCryptographic)
	}
	pubBytes, err := pub.ECDH()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrCryptographic, err)
	}
	out, err := asn1.Marshal(hsmStatement{PublicKey: pubBytes.Bytes(), Signature: sig})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSerialization, err)
	}
	return out, nil
}

func (v *HSMVault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	return v.ctx.Close()
}
