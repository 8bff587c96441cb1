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

// Package enclave is the secure key vault that protects share material at
// rest. A vault seals bytes under an associated-data context, produces
// secure randomness and attests to the environment it runs in.
//
// Variants:
//   - software: AEAD under a master key held in process memory
//   - generic-tee: software sealing inside a confidential VM, attested with
//     a TDX quote
//   - hsm: AES-GCM under a token-resident key (build tag pkcs11)
//   - kms: envelope calls to AWS KMS, GCP Cloud KMS or Vault Transit
//
// The variant is chosen once by New from configuration. Callers depend on
// the Vault interface only.
package enclave

import (
	"context"
	"errors"
)

// Kind names the trust anchor behind a vault.
type Kind string

const (
	KindSoftware   Kind = "software"
	KindSGX        Kind = "sgx"
	KindSEV        Kind = "sev"
	KindTrustZone  Kind = "trustzone"
	KindGenericTEE Kind = "generic-tee"
	KindHSM        Kind = "hsm"
	KindKMS        Kind = "kms"
)

// Vault seals and opens share material.
//
// Encrypt binds aad into the ciphertext. Decrypt fails with a Cryptographic
// error when either the ciphertext or aad differs from what was sealed.
// Implementations are safe for concurrent use and may block on hardware or
// network calls.
type Vault interface {
	Kind() Kind
	Available() bool
	Encrypt(ctx context.Context, plaintext, aad []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext, aad []byte) ([]byte, error)
	SecureRandom(ctx context.Context, n int) ([]byte, error)
	Attest(ctx context.Context, challenge []byte) ([]byte, error)
	Close() error
}

var (
	// ErrNotCompiled is returned when a variant needs a build tag the
	// binary was compiled without.
	ErrNotCompiled = errors.New("enclave: variant not compiled into this binary")

	// ErrUnavailable is returned when the hardware behind a variant is
	// missing.
	ErrUnavailable = errors.New("enclave: trust anchor unavailable")

	// ErrMalformedCiphertext is returned for blobs that were not produced
	// by this vault family.
	ErrMalformedCiphertext = errors.New("enclave: malformed ciphertext")

	// ErrDecrypt is returned when authentication of a ciphertext fails.
	ErrDecrypt = errors.New("enclave: decryption failed")

	// ErrClosed is returned by a vault after Close.
	ErrClosed = errors.New("enclave: vault closed")
)
