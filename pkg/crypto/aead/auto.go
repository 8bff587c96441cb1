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

// Package aead selects and constructs the authenticated ciphers used to
// seal key shares at rest.
//
//   - AES-256-GCM is chosen when the CPU has AES instructions or the key
//     lives in hardware (HSM, cloud KMS).
//
//   - ChaCha20-Poly1305 is chosen otherwise. It is faster than software AES
//     and constant time.
//
// Every sealed blob carries a one-byte algorithm identifier so a vault can
// open ciphertexts written before a configuration change.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/sys/cpu"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// Algorithm names accepted in configuration
const (
	// Auto defers the choice to SelectOptimal
	Auto = "auto"

	// AES256GCM is AES-256 in Galois/Counter Mode
	AES256GCM = "aes256-gcm"

	// ChaCha20Poly1305 is the RFC 8439 AEAD
	ChaCha20Poly1305 = "chacha20-poly1305"
)

// Algorithm identifiers written into sealed blobs
const (
	IDAES256GCM        byte = 0x01
	IDChaCha20Poly1305 byte = 0x02
)

// KeySize is the key length for both supported algorithms.
const KeySize = 32

// HasAESNI returns true if the CPU has hardware AES support.
//
// Supported architectures:
//   - amd64: Checks X86.HasAES
//   - arm64: Checks ARM64.HasAES
//   - Other architectures return false
func HasAESNI() bool {
	switch runtime.GOARCH {
	case "amd64":
		return cpu.X86.HasAES
	case "arm64":
		return cpu.ARM64.HasAES
	default:
		return false
	}
}

// SelectOptimal returns AES-256-GCM for hardware-backed keys or AES-capable
// CPUs and ChaCha20-Poly1305 everywhere else.
func SelectOptimal(isHardwareBacked bool) string {
	if isHardwareBacked || HasAESNI() {
		return AES256GCM
	}
	return ChaCha20Poly1305
}

// Resolve normalizes a configured algorithm name. The empty string and
// "auto" resolve through SelectOptimal.
func Resolve(name string, isHardwareBacked bool) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", Auto:
		return SelectOptimal(isHardwareBacked), nil
	case AES256GCM, "aes-256-gcm", "a256gcm":
		return AES256GCM, nil
	case ChaCha20Poly1305, "chacha20poly1305":
		return ChaCha20Poly1305, nil
	default:
		return "", fmt.Errorf("%w: %w: %q", types.ErrInvalidParameter, ErrUnknownAlgorithm, name)
	}
}

// ID returns the blob identifier for a resolved algorithm name.
func ID(algorithm string) (byte, error) {
	switch algorithm {
	case AES256GCM:
		return IDAES256GCM, nil
	case ChaCha20Poly1305:
		return IDChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("%w: %w: %q", types.ErrInvalidParameter, ErrUnknownAlgorithm, algorithm)
	}
}

// Name is the inverse of ID.
func Name(id byte) (string, error) {
	switch id {
	case IDAES256GCM:
		return AES256GCM, nil
	case IDChaCha20Poly1305:
		return ChaCha20Poly1305, nil
	default:
		return "", fmt.Errorf("%w: %w: id 0x%02x", types.ErrCryptographic, ErrUnknownAlgorithm, id)
	}
}

// New constructs the cipher for a resolved algorithm name.
func New(algorithm string, key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", types.ErrInvalidParameter, KeySize, len(key))
	}

	switch algorithm {
	case AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrCryptographic, err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrCryptographic, err)
		}
		return gcm, nil
	case ChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrCryptographic, err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("%w: %w: %q", types.ErrInvalidParameter, ErrUnknownAlgorithm, algorithm)
	}
}
