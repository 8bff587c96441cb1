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

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// CreateDefaultScheme returns the 2-of-3 secp256k1 scheme run with the
// reconstruct protocol.
func CreateDefaultScheme() types.ThresholdScheme {
	return types.ThresholdScheme{
		TotalParticipants: 3,
		Threshold:         2,
		Curve:             types.CurveSecp256k1,
		Protocol:          types.ProtocolReconstruct,
	}
}

// CreateCustomScheme builds and validates a scheme. An empty protocol
// selects reconstruct.
func CreateCustomScheme(total, threshold int, curve types.CurveType, protocol types.ProtocolType) (types.ThresholdScheme, error) {
	if protocol == "" {
		protocol = types.ProtocolReconstruct
	}
	scheme := types.ThresholdScheme{
		TotalParticipants: total,
		Threshold:         threshold,
		Curve:             curve,
		Protocol:          protocol,
	}
	if err := scheme.Validate(); err != nil {
		return types.ThresholdScheme{}, fmt.Errorf("custom scheme: %w", err)
	}
	return scheme, nil
}
