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

// Package metrics provides Prometheus instrumentation for go-mpc: session
// lifecycle operations, vault calls, HTTP requests and process resources.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all go-mpc metrics
	Namespace = "mpc"

	// Label names
	LabelOperation  = "operation"
	LabelVault      = "vault"
	LabelStatus     = "status"
	LabelErrorKind  = "error_kind"
	LabelProtocol   = "protocol"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpKeyGen      = "keygen"
	OpSign        = "sign"
	OpVerify      = "verify"
	OpCombine     = "combine"
	OpRotate      = "rotate"
	OpBackup      = "backup"
	OpRestore     = "restore"
	OpDelete      = "delete"
	OpEncrypt     = "encrypt"
	OpDecrypt     = "decrypt"
	OpAttest      = "attest"
	OpHealthCheck = "health_check"
)

var (
	// OperationsTotal counts key manager operations by type, vault kind and status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of session operations by type, vault, and status",
		},
		[]string{LabelOperation, LabelVault, LabelStatus},
	)

	// OperationDuration tracks operation latency in seconds. Buckets cover
	// interpolation-only signing up to remote KMS round trips.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of session operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{LabelOperation, LabelVault},
	)

	// ErrorsTotal counts failed operations by error kind.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation, vault, and error kind",
		},
		[]string{LabelOperation, LabelVault, LabelErrorKind},
	)

	// SessionsTotal is the number of sessions held by the key manager.
	SessionsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sessions_total",
			Help:      "Number of key sessions held by the key manager",
		},
	)

	// RotationsTotal counts scheduled rotations by status.
	RotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scheduled_rotations_total",
			Help:      "Total number of scheduled share rotations by status",
		},
		[]string{LabelStatus},
	)

	// VaultAvailable is 1 when the selected vault reports itself available.
	VaultAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "vault_available",
			Help:      "Indicates whether the selected vault is available (1) or not (0)",
		},
		[]string{LabelVault},
	)

	// ActiveConnections tracks in-flight requests by protocol.
	ActiveConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_connections",
			Help:      "Number of active connections by protocol",
		},
		[]string{LabelProtocol},
	)

	// HTTPRequestsTotal counts HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks HTTP request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// Goroutines, memory and uptime gauges are updated by ResourceCollector.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Current bytes of allocated heap objects",
		},
	)

	MemorySysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_sys_bytes",
			Help:      "Total bytes of memory obtained from the OS",
		},
	)

	ServerUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds since startup",
		},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordOperation records one operation with its duration in seconds.
//
//	start := time.Now()
//	_, err := manager.GenerateKey(ctx, req)
//	metrics.RecordOperation(metrics.OpKeyGen, "software", metrics.Status(err), time.Since(start).Seconds())
func RecordOperation(operation, vault, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, vault, status).Inc()
	OperationDuration.WithLabelValues(operation, vault).Observe(duration)
}

// RecordError records a failed operation under its error kind.
func RecordError(operation, vault, kind string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(operation, vault, kind).Inc()
}

// Status maps an error to StatusSuccess or StatusError.
func Status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// SetSessionsTotal sets the session gauge.
func SetSessionsTotal(count int) {
	if !enabled.Load() {
		return
	}
	SessionsTotal.Set(float64(count))
}

// RecordRotation counts one scheduled rotation.
func RecordRotation(status string) {
	if !enabled.Load() {
		return
	}
	RotationsTotal.WithLabelValues(status).Inc()
}

// SetVaultAvailable sets the availability gauge of a vault kind.
func SetVaultAvailable(vault string, available bool) {
	if !enabled.Load() {
		return
	}
	value := 0.0
	if available {
		value = 1.0
	}
	VaultAvailable.WithLabelValues(vault).Set(value)
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// IncrementActiveConnections increments the active connection count for a protocol.
func IncrementActiveConnections(protocol string) {
	if !enabled.Load() {
		return
	}
	ActiveConnections.WithLabelValues(protocol).Inc()
}

// DecrementActiveConnections decrements the active connection count for a protocol.
func DecrementActiveConnections(protocol string) {
	if !enabled.Load() {
		return
	}
	ActiveConnections.WithLabelValues(protocol).Dec()
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
