// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mpc.

package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOperation(t *testing.T) {
	before := testutil.ToFloat64(OperationsTotal.WithLabelValues(OpKeyGen, "software", StatusSuccess))
	RecordOperation(OpKeyGen, "software", StatusSuccess, 0.01)
	after := testutil.ToFloat64(OperationsTotal.WithLabelValues(OpKeyGen, "software", StatusSuccess))
	assert.Equal(t, before+1, after)
}

func TestRecordError(t *testing.T) {
	before := testutil.ToFloat64(ErrorsTotal.WithLabelValues(OpSign, "kms", "invalid_parameter"))
	RecordError(OpSign, "kms", "invalid_parameter")
	assert.Equal(t, before+1, testutil.ToFloat64(ErrorsTotal.WithLabelValues(OpSign, "kms", "invalid_parameter")))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, StatusSuccess, Status(nil))
	assert.Equal(t, StatusError, Status(errors.New("x")))
}

func TestGauges(t *testing.T) {
	SetSessionsTotal(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(SessionsTotal))

	SetVaultAvailable("hsm", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(VaultAvailable.WithLabelValues("hsm")))
	SetVaultAvailable("hsm", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(VaultAvailable.WithLabelValues("hsm")))
}

func TestDisable(t *testing.T) {
	Disable()
	defer Enable()
	assert.False(t, IsEnabled())

	before := testutil.ToFloat64(RotationsTotal.WithLabelValues(StatusSuccess))
	RecordRotation(StatusSuccess)
	assert.Equal(t, before, testutil.ToFloat64(RotationsTotal.WithLabelValues(StatusSuccess)))
}

func TestHTTPMiddleware_RoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Get("/sessions/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	label := "GET /sessions/{id}"
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(label, "418"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/abc", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues(label, "418")))
}

func TestHandler(t *testing.T) {
	RecordOperation(OpVerify, "software", StatusSuccess, 0.001)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "mpc_operations_total"))
}

func TestResourceCollector(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var probed atomic.Int32
	c := StartResourceCollector(ctx, 10*time.Millisecond, func() { probed.Add(1) })
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(Goroutines) > 0 && probed.Load() >= 2
	}, time.Second, 5*time.Millisecond)
	c.Stop()
	c.Stop()

	after := probed.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, probed.Load(), "no samples after Stop")
}
