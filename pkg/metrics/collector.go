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

package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// Probe samples one application gauge. Probes run on the collector
// goroutine and must not block for long.
type Probe func()

// ResourceCollector samples process gauges and the registered probes on a
// fixed interval.
type ResourceCollector struct {
	interval time.Duration
	probes   []Probe
	started  time.Time

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartResourceCollector samples immediately and then every interval until
// ctx is cancelled or Stop is called.
func StartResourceCollector(ctx context.Context, interval time.Duration, probes ...Probe) *ResourceCollector {
	ctx, cancel := context.WithCancel(ctx)
	rc := &ResourceCollector{
		interval: interval,
		probes:   probes,
		started:  time.Now(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go rc.loop(ctx)
	return rc
}

func (rc *ResourceCollector) loop(ctx context.Context) {
	defer close(rc.done)
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	for {
		rc.sample()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop halts the collector and waits for an in-flight sample to finish.
func (rc *ResourceCollector) Stop() {
	rc.once.Do(rc.cancel)
	<-rc.done
}

func (rc *ResourceCollector) sample() {
	if !IsEnabled() {
		return
	}
	Goroutines.Set(float64(runtime.NumGoroutine()))
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	MemoryAllocBytes.Set(float64(ms.Alloc))
	MemorySysBytes.Set(float64(ms.Sys))
	ServerUptime.Set(time.Since(rc.started).Seconds())

	for _, probe := range rc.probes {
		probe()
	}
}
