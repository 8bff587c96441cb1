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
	"context"
	"sync"
	"time"

	"github.com/jeremyhahn/go-mpc/pkg/logging"
	"github.com/jeremyhahn/go-mpc/pkg/metrics"
)

// RotateDue rotates every session whose shares are older than maxAge and
// returns how many were rotated. A failure on one session is logged and
// does not stop the others.
func (m *KeyManager) RotateDue(ctx context.Context, maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)
	rotated := 0
	for _, id := range m.store.ids() {
		if ctx.Err() != nil {
			break
		}
		st, err := m.readSession(id)
		if err != nil {
			continue
		}
		last := st.CreatedAt
		if st.RotatedAt.After(last) {
			last = st.RotatedAt
		}
		if last.After(cutoff) {
			continue
		}
		if _, err := m.RotateKeyShares(ctx, id); err != nil {
			if isUnknown(err) {
				continue
			}
			metrics.RecordRotation(metrics.StatusError)
			m.logger.ErrorContext(ctx, "scheduled rotation failed",
				logging.String("session_id", id), logging.Error(err))
			continue
		}
		metrics.RecordRotation(metrics.StatusSuccess)
		rotated++
	}
	return rotated
}

// Rotator rotates due sessions on a fixed interval.
type Rotator struct {
	manager  *KeyManager
	interval time.Duration
	logger   logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRotator creates a rotator that rotates shares older than interval,
// checking once per interval.
func NewRotator(ctx context.Context, manager *KeyManager, interval time.Duration, logger logging.Logger) *Rotator {
	rctx, cancel := context.WithCancel(ctx)
	return &Rotator{
		manager:  manager,
		interval: interval,
		logger:   logging.OrNoOp(logger),
		ctx:      rctx,
		cancel:   cancel,
	}
}

// Start runs the rotation loop in a goroutine.
func (r *Rotator) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				if n := r.manager.RotateDue(r.ctx, r.interval); n > 0 {
					r.logger.Info("scheduled rotation", logging.Int("sessions", n))
				}
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (r *Rotator) Stop() {
	r.cancel()
	r.wg.Wait()
}
