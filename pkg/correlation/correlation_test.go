// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mpc.

package correlation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "abc-123")
	assert.Equal(t, "abc-123", GetCorrelationID(ctx))
	assert.Equal(t, "abc-123", GetOrGenerate(ctx))

	assert.Empty(t, GetCorrelationID(context.Background()))
	//nolint:staticcheck // nil context is part of the contract
	assert.Empty(t, GetCorrelationID(nil))
}

func TestNewID(t *testing.T) {
	id := NewID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.NotEqual(t, id, NewID())
	assert.NotEmpty(t, GetOrGenerate(context.Background()))
}

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "correlation header", headers: map[string]string{CorrelationIDHeader: "c-1"}, want: "c-1"},
		{name: "request header fallback", headers: map[string]string{RequestIDHeader: "r-1"}, want: "r-1"},
		{name: "correlation wins", headers: map[string]string{CorrelationIDHeader: "c-1", RequestIDHeader: "r-1"}, want: "c-1"},
		{name: "oversized", headers: map[string]string{CorrelationIDHeader: strings.Repeat("a", 129)}, want: ""},
		{name: "control characters", headers: map[string]string{CorrelationIDHeader: "a\tb"}, want: ""},
		{name: "none", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, FromRequest(r))
		})
	}
}

func TestMiddleware(t *testing.T) {
	var seen string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(CorrelationIDHeader, "from-client")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "from-client", seen)
	assert.Equal(t, "from-client", w.Header().Get(CorrelationIDHeader))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(CorrelationIDHeader))
}
