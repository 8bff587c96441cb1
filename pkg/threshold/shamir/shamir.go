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

// Package shamir splits opaque byte secrets, such as vault master keys, into
// operator-held unseal shares and combines them back. It is a thin layer over
// github.com/SSSaaS/sssa-golang that adds scheme metadata and a printable
// share encoding.
//
// Unseal shares protect key custody at rest. They are unrelated to the
// signing-key shares produced by the threshold coordinator.
package shamir

import (
	"encoding/hex"
	"fmt"

	"github.com/SSSaaS/sssa-golang"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// MaxShares bounds the number of shares a secret can be split into.
const MaxShares = 255

// Split divides a secret into total shares where any threshold of them can
// reconstruct it. The secret is hex encoded before it is handed to
// sssa-golang so trailing zero bytes survive the round trip.
//
// Example:
//
//	shares, err := shamir.Split(masterKey, 3, 5)
//	// Creates 5 shares, any 3 can reconstruct the key
func Split(secret []byte, threshold, total int) ([]*Share, error) {
	if threshold < 2 {
		return nil, fmt.Errorf("%w: threshold must be at least 2, got %d", types.ErrInvalidParameter, threshold)
	}
	if total < threshold {
		return nil, fmt.Errorf("%w: total shares (%d) must be >= threshold (%d)",
			types.ErrInvalidParameter, total, threshold)
	}
	if total > MaxShares {
		return nil, fmt.Errorf("%w: total shares cannot exceed %d, got %d",
			types.ErrInvalidParameter, MaxShares, total)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: secret cannot be empty", types.ErrInvalidParameter)
	}

	values, err := sssa.Create(threshold, total, hex.EncodeToString(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to split secret: %w", err)
	}

	shares := make([]*Share, len(values))
	for i, value := range values {
		shares[i] = &Share{
			Index:     i + 1,
			Threshold: threshold,
			Total:     total,
			Value:     value,
		}
	}
	return shares, nil
}

// Combine reconstructs the secret from threshold or more shares of one
// split. Shares must agree on threshold and total and carry distinct
// indices.
func Combine(shares []*Share) ([]byte, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("%w: no shares provided", types.ErrInvalidParameter)
	}

	first := shares[0]
	seen := make(map[int]struct{}, len(shares))
	values := make([]string, len(shares))
	for i, share := range shares {
		if err := share.Validate(); err != nil {
			return nil, fmt.Errorf("invalid share %d: %w", i, err)
		}
		if share.Threshold != first.Threshold || share.Total != first.Total {
			return nil, fmt.Errorf("%w: share %d belongs to a %d-of-%d split, share 0 to %d-of-%d",
				types.ErrInvalidParameter, i, share.Threshold, share.Total, first.Threshold, first.Total)
		}
		if _, dup := seen[share.Index]; dup {
			return nil, fmt.Errorf("%w: duplicate share index %d", types.ErrInvalidParameter, share.Index)
		}
		seen[share.Index] = struct{}{}
		values[i] = share.Value
	}

	if len(shares) < first.Threshold {
		return nil, fmt.Errorf("%w: need at least %d shares, got %d",
			types.ErrInvalidParameter, first.Threshold, len(shares))
	}

	secretHex, err := sssa.Combine(values)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to combine shares: %w", types.ErrCryptographic, err)
	}

	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("%w: combined shares do not form a secret", types.ErrCryptographic)
	}
	return secret, nil
}
