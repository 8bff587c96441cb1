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

import (
	"fmt"
	"sync/atomic"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// DefaultMaxInvocations bounds encryptions under one key with random
// 96-bit nonces (NIST SP 800-38D section 8.3).
const DefaultMaxInvocations uint64 = 1 << 32

// UsageTracker counts seal operations under one key and refuses new ones
// once the limit is reached. It is safe for concurrent use.
type UsageTracker struct {
	limit uint64
	count atomic.Uint64
}

// NewUsageTracker returns a tracker for limit invocations. A zero limit
// selects DefaultMaxInvocations.
func NewUsageTracker(limit uint64) *UsageTracker {
	if limit == 0 {
		limit = DefaultMaxInvocations
	}
	return &UsageTracker{limit: limit}
}

// Reserve records one invocation, or fails once the limit is exhausted.
func (t *UsageTracker) Reserve() error {
	for {
		n := t.count.Load()
		if n >= t.limit {
			return fmt.Errorf("%w: %w: %d of %d", types.ErrInvalidState, ErrUsageLimit, n, t.limit)
		}
		if t.count.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Count returns the number of invocations recorded so far.
func (t *UsageTracker) Count() uint64 {
	return t.count.Load()
}

// Remaining returns how many invocations are left.
func (t *UsageTracker) Remaining() uint64 {
	n := t.count.Load()
	if n >= t.limit {
		return 0
	}
	return t.limit - n
}
