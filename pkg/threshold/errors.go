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

package threshold

import (
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

var (
	// ErrInsufficientShares indicates not enough shares were provided for reconstruction
	ErrInsufficientShares = errors.New("insufficient shares for threshold reconstruction")

	// ErrMalformedShare indicates a transport-encoded share could not be decoded
	ErrMalformedShare = errors.New("malformed share")

	// ErrDuplicateShare indicates two shares carry the same index
	ErrDuplicateShare = errors.New("duplicate share index")
)

// InsufficientSharesError wraps ErrInsufficientShares with details.
type InsufficientSharesError struct {
	Have      int
	Threshold int
}

func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("%s: insufficient shares: have %d, need %d",
		types.ErrInvalidParameter, e.Have, e.Threshold)
}

func (e *InsufficientSharesError) Unwrap() []error {
	return []error{ErrInsufficientShares, types.ErrInvalidParameter}
}

// MalformedShareError wraps ErrMalformedShare with the offending position
// and reason. It never includes share bytes.
type MalformedShareError struct {
	Position int
	Reason   string
}

func (e *MalformedShareError) Error() string {
	return fmt.Sprintf("%s: share %d is malformed: %s", types.ErrInvalidParameter, e.Position, e.Reason)
}

func (e *MalformedShareError) Unwrap() []error {
	return []error{ErrMalformedShare, types.ErrInvalidParameter}
}
