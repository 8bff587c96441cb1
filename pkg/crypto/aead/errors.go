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

package aead

import "errors"

var (
	// ErrUnknownAlgorithm is returned for algorithm names or blob
	// identifiers this package does not implement.
	ErrUnknownAlgorithm = errors.New("aead: unknown algorithm")

	// ErrUsageLimit is returned once a key has sealed as many messages as
	// random 96-bit nonces safely allow. The key must be rotated.
	ErrUsageLimit = errors.New("aead: key usage limit reached")
)
