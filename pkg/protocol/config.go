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

package protocol

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

const (
	// DefaultMaxParticipants bounds total_participants per scheme.
	DefaultMaxParticipants = 10
)

// Config configures a protocol strategy.
type Config struct {
	// EnableProofs attaches a commitment to every share and requires
	// submitted signature shares to match theirs. Defaults to true.
	EnableProofs *bool

	// MaxParticipants is the largest accepted total_participants.
	// Defaults to DefaultMaxParticipants.
	MaxParticipants int

	// Random is the entropy source for keys and polynomials.
	// Defaults to crypto/rand.Reader.
	Random io.Reader
}

// DefaultConfig returns the default protocol configuration.
func DefaultConfig() *Config {
	enabled := true
	return &Config{
		EnableProofs:    &enabled,
		MaxParticipants: DefaultMaxParticipants,
		Random:          rand.Reader,
	}
}

// Validate fills defaults and checks the configuration.
func (c *Config) Validate() error {
	if c.EnableProofs == nil {
		enabled := true
		c.EnableProofs = &enabled
	}
	if c.MaxParticipants == 0 {
		c.MaxParticipants = DefaultMaxParticipants
	}
	if c.MaxParticipants < 1 {
		return fmt.Errorf("%w: max participants must be positive, got %d",
			types.ErrInvalidParameter, c.MaxParticipants)
	}
	if c.MaxParticipants > 255 {
		return fmt.Errorf("%w: max participants cannot exceed 255, got %d",
			types.ErrInvalidParameter, c.MaxParticipants)
	}
	if c.Random == nil {
		c.Random = rand.Reader
	}
	return nil
}

func (c *Config) proofs() bool {
	return c.EnableProofs == nil || *c.EnableProofs
}
