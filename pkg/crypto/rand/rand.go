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

// Package rand resolves the entropy source used for key generation, share
// polynomials and vault nonces.
//
// Sources:
//   - software: crypto/rand
//   - tpm2: TPM2_GetRandom (build tag tpm2)
//   - pkcs11: C_GenerateRandom on an HSM slot (build tag pkcs11)
//   - auto: the first available hardware source, else software
//
// A Resolver is an io.Reader and can be handed to any API that takes one.
// All resolvers are safe for concurrent use.
package rand

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// Mode specifies which RNG source to use.
type Mode string

const (
	// ModeAuto selects the best available source (PKCS#11 > TPM2 > software)
	ModeAuto Mode = "auto"

	// ModeSoftware uses crypto/rand
	ModeSoftware Mode = "software"

	// ModeTPM2 uses the TPM 2.0 hardware RNG
	ModeTPM2 Mode = "tpm2"

	// ModePKCS11 uses a PKCS#11 token RNG
	ModePKCS11 Mode = "pkcs11"
)

// ErrNotCompiled is returned when a hardware source was requested but the
// binary was built without its build tag.
var ErrNotCompiled = errors.New("rand: source not compiled into this binary")

// ErrClosed is returned by a resolver after Close.
var ErrClosed = errors.New("rand: resolver closed")

// ParseMode parses a configured mode name. The empty string is ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeSoftware, ModeTPM2, ModePKCS11:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown RNG mode %q", types.ErrInvalidParameter, s)
	}
}

// Config contains RNG configuration.
type Config struct {
	// Mode is the primary source. Defaults to ModeAuto.
	Mode Mode

	// FallbackMode is tried when the primary source fails at read time.
	FallbackMode Mode

	TPM2   *TPM2Config
	PKCS11 *PKCS11Config
}

// TPM2Config contains configuration for TPM2 RNG.
type TPM2Config struct {
	// Device path (default: "/dev/tpmrm0")
	Device string

	// MaxRequestSize bounds one TPM2_GetRandom call (default: 32)
	MaxRequestSize int

	// UseSimulator connects to a TCP simulator such as swtpm instead of
	// the device
	UseSimulator  bool
	SimulatorHost string
	SimulatorPort int
}

// PKCS11Config contains configuration for PKCS#11 RNG.
type PKCS11Config struct {
	// Module is the PKCS#11 library path, e.g. /usr/lib/softhsm/libsofthsm2.so
	Module string
	SlotID uint
	PIN    string
}

// Resolver produces random bytes from the configured source.
type Resolver interface {
	io.Reader

	// Rand returns n random bytes.
	Rand(n int) ([]byte, error)

	// Mode reports the source actually in use.
	Mode() Mode

	// Available returns true if the source is open and usable.
	Available() bool

	// Close releases the underlying device or session.
	Close() error
}

// NewResolver creates a resolver. A nil config selects auto mode.
func NewResolver(config *Config) (Resolver, error) {
	cfg := Config{Mode: ModeAuto}
	if config != nil {
		cfg = *config
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeAuto
	}

	primary, err := open(&cfg, cfg.Mode)
	if err != nil {
		return nil, err
	}
	if cfg.FallbackMode == "" || cfg.FallbackMode == primary.Mode() {
		return primary, nil
	}

	fallback, err := open(&cfg, cfg.FallbackMode)
	if err != nil {
		_ = primary.Close()
		return nil, fmt.Errorf("fallback source: %w", err)
	}
	return &chainResolver{primary: primary, fallback: fallback}, nil
}

func open(cfg *Config, mode Mode) (Resolver, error) {
	switch mode {
	case ModeAuto:
		return newAutoResolver(cfg), nil
	case ModeSoftware:
		return SoftwareResolver{}, nil
	case ModeTPM2:
		return newTPM2Resolver(cfg.TPM2)
	case ModePKCS11:
		return newPKCS11Resolver(cfg.PKCS11)
	default:
		return nil, fmt.Errorf("%w: unknown RNG mode %q", types.ErrInvalidParameter, mode)
	}
}

// readFull adapts a Rand implementation to io.Reader.
func readFull(r Resolver, p []byte) (int, error) {
	data, err := r.Rand(len(p))
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	clear(data)
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}

// SoftwareResolver uses crypto/rand from the Go standard library.
type SoftwareResolver struct{}

var _ Resolver = SoftwareResolver{}

func (SoftwareResolver) Rand(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", types.ErrInvalidParameter, n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrCryptographic, err)
	}
	return buf, nil
}

func (SoftwareResolver) Read(p []byte) (int, error) {
	return rand.Read(p)
}

func (SoftwareResolver) Mode() Mode      { return ModeSoftware }
func (SoftwareResolver) Available() bool { return true }
func (SoftwareResolver) Close() error    { return nil }

// chainResolver retries failed reads on a fallback source.
type chainResolver struct {
	primary  Resolver
	fallback Resolver
}

func (c *chainResolver) Rand(n int) ([]byte, error) {
	out, err := c.primary.Rand(n)
	if err == nil {
		return out, nil
	}
	return c.fallback.Rand(n)
}

func (c *chainResolver) Read(p []byte) (int, error) {
	return readFull(c, p)
}

func (c *chainResolver) Mode() Mode {
	return c.primary.Mode()
}

func (c *chainResolver) Available() bool {
	return c.primary.Available() || c.fallback.Available()
}

func (c *chainResolver) Close() error {
	return errors.Join(c.primary.Close(), c.fallback.Close())
}
