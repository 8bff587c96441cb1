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

package keymanager

import (
	"fmt"
	"time"

	"github.com/jeremyhahn/go-mpc/pkg/adapters/audit"
	"github.com/jeremyhahn/go-mpc/pkg/enclave"
	"github.com/jeremyhahn/go-mpc/pkg/logging"
	"github.com/jeremyhahn/go-mpc/pkg/protocol"
	"github.com/jeremyhahn/go-mpc/pkg/storage"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// Config configures a KeyManager.
type Config struct {
	// Vault seals every share at rest. Required.
	Vault enclave.Vault

	// Storage persists one record per session. Nil keeps sessions in
	// memory only.
	Storage storage.Backend

	// DefaultProtocol runs schemes that do not name one.
	// Defaults to types.ProtocolReconstruct.
	DefaultProtocol types.ProtocolType

	// Protocol configures the signing strategies.
	Protocol *protocol.Config

	// Logger receives operation logs. Defaults to a no-op logger.
	Logger logging.Logger

	// Auditor receives one event per lifecycle operation. Defaults to
	// discarding events.
	Auditor audit.Auditor

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.Vault == nil {
		return fmt.Errorf("%w: key manager requires a vault", types.ErrInvalidParameter)
	}
	if c.DefaultProtocol == "" {
		c.DefaultProtocol = types.ProtocolReconstruct
	}
	if c.Protocol == nil {
		c.Protocol = protocol.DefaultConfig()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	c.Logger = logging.OrNoOp(c.Logger)
	if c.Auditor == nil {
		c.Auditor = audit.NoOp{}
	}
	return nil
}
