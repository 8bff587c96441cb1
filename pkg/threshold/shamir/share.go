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

package shamir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/SSSaaS/sssa-golang"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// sharePrefix tags the printable encoding of an unseal share.
const sharePrefix = "mpc-unseal-v1"

// Share is one unseal share.
type Share struct {
	// Index is the share number (1 to Total)
	Index int `json:"index"`

	// Threshold is the minimum number of shares required to reconstruct
	Threshold int `json:"threshold"`

	// Total is the number of shares created
	Total int `json:"total"`

	// Value is the sssa-golang share string
	Value string `json:"value"`
}

// Validate checks if the share has valid parameters.
func (s *Share) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: share is nil", types.ErrInvalidParameter)
	}
	if s.Index < 1 || s.Index > s.Total {
		return fmt.Errorf("%w: invalid share index %d (must be 1..%d)", types.ErrInvalidParameter, s.Index, s.Total)
	}
	if s.Threshold < 2 || s.Threshold > s.Total {
		return fmt.Errorf("%w: invalid threshold %d for %d shares", types.ErrInvalidParameter, s.Threshold, s.Total)
	}
	if !sssa.IsValidShare(s.Value) {
		return fmt.Errorf("%w: share %d value is not a valid share", types.ErrInvalidParameter, s.Index)
	}
	return nil
}

// Encode returns the printable form
//
//	mpc-unseal-v1:<index>:<threshold>:<total>:<value>
func (s *Share) Encode() string {
	return fmt.Sprintf("%s:%d:%d:%d:%s", sharePrefix, s.Index, s.Threshold, s.Total, s.Value)
}

// String hides the share value.
func (s *Share) String() string {
	return fmt.Sprintf("Share{Index: %d, Threshold: %d/%d}", s.Index, s.Threshold, s.Total)
}

// ParseShare decodes the output of Encode and validates it.
func ParseShare(encoded string) (*Share, error) {
	parts := strings.SplitN(strings.TrimSpace(encoded), ":", 5)
	if len(parts) != 5 || parts[0] != sharePrefix {
		return nil, fmt.Errorf("%w: not an unseal share", types.ErrSerialization)
	}

	fields := make([]int, 3)
	for i, p := range parts[1:4] {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: unseal share field %d is not a number", types.ErrSerialization, i+1)
		}
		fields[i] = n
	}

	share := &Share{Index: fields[0], Threshold: fields[1], Total: fields[2], Value: parts[4]}
	if err := share.Validate(); err != nil {
		return nil, err
	}
	return share, nil
}

// ParseShares decodes every entry of encoded.
func ParseShares(encoded []string) ([]*Share, error) {
	shares := make([]*Share, 0, len(encoded))
	for i, e := range encoded {
		share, err := ParseShare(e)
		if err != nil {
			return nil, fmt.Errorf("unseal share %d: %w", i, err)
		}
		shares = append(shares, share)
	}
	return shares, nil
}
