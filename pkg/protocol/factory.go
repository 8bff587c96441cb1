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
	"fmt"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// NewProtocol returns the strategy for a protocol tag. The empty tag
// selects ProtocolReconstruct.
func NewProtocol(protocolType types.ProtocolType, config *Config) (Protocol, error) {
	switch protocolType {
	case "", types.ProtocolReconstruct:
		return NewReconstruct(config)
	case types.ProtocolGG18, types.ProtocolGG20:
		return nil, fmt.Errorf("%w: %s is not implemented", types.ErrProtocol, protocolType)
	default:
		return nil, fmt.Errorf("%w: custom protocol not supported: %s", types.ErrProtocol, protocolType)
	}
}
