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

package audit

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is the number of events a Memory auditor keeps.
const DefaultCapacity = 10000

// Memory keeps the most recent events in a ring buffer. Events past the
// capacity are dropped oldest first.
type Memory struct {
	mu     sync.RWMutex
	events []Event
	next   int
	full   bool
	now    func() time.Time
}

var _ Auditor = (*Memory)(nil)

// NewMemory creates an in-memory auditor holding up to capacity events.
// A capacity below one selects DefaultCapacity.
func NewMemory(capacity int) *Memory {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Memory{events: make([]Event, capacity), now: time.Now}
}

// Record implements Auditor.
func (m *Memory) Record(_ context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("audit: event cannot be nil")
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = m.now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[m.next] = *event
	m.next = (m.next + 1) % len(m.events)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// Events implements Auditor.
func (m *Memory) Events(_ context.Context, q *Query) ([]Event, error) {
	if q == nil {
		q = &Query{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := m.next
	if m.full {
		n = len(m.events)
	}
	out := make([]Event, 0, min(n, max(q.Limit, 16)))
	for i := 1; i <= n; i++ {
		e := m.events[(m.next-i+len(m.events))%len(m.events)]
		if !q.matches(&e) {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored events.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.full {
		return len(m.events)
	}
	return m.next
}

func (q *Query) matches(e *Event) bool {
	switch {
	case q.SessionID != "" && e.SessionID != q.SessionID:
		return false
	case len(q.Types) > 0 && !slices.Contains(q.Types, e.Type):
		return false
	case q.Outcome != "" && e.Outcome != q.Outcome:
		return false
	case !q.Since.IsZero() && e.Timestamp.Before(q.Since):
		return false
	}
	return true
}
