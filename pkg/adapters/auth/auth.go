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

// Package auth authenticates API callers. An Authenticator turns a request
// into an Identity; Middleware enforces it and stores the identity on the
// request context.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/jeremyhahn/go-mpc/pkg/logging"
)

// ErrUnauthenticated is returned when a request carries no valid
// credential.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// Identity is an authenticated caller.
type Identity struct {
	// Subject identifies the caller (token subject or API key name)
	Subject string

	// Roles granted to the caller
	Roles []string

	// Method is the authenticator that admitted the caller
	Method string
}

// HasRole reports whether the identity carries role.
func (i *Identity) HasRole(role string) bool {
	return i != nil && slices.Contains(i.Roles, role)
}

// Authenticator authenticates HTTP requests.
type Authenticator interface {
	// Authenticate returns the caller's identity or an error wrapping
	// ErrUnauthenticated.
	Authenticate(r *http.Request) (*Identity, error)

	// Name returns the authenticator name for logs
	Name() string
}

type contextKey struct{}

// WithIdentity returns ctx carrying identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// GetIdentity returns the identity stored on ctx, or nil.
func GetIdentity(ctx context.Context) *Identity {
	identity, _ := ctx.Value(contextKey{}).(*Identity)
	return identity
}

// Middleware rejects unauthenticated requests with 401 and a JSON error
// body. Paths in public pass through without credentials.
func Middleware(authn Authenticator, logger logging.Logger, public ...string) func(http.Handler) http.Handler {
	logger = logging.OrNoOp(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(public, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			identity, err := authn.Authenticate(r)
			if err != nil {
				logger.WarnContext(r.Context(), "authentication failed",
					logging.String("authenticator", authn.Name()),
					logging.String("path", r.URL.Path),
					logging.Error(err))
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", "Bearer")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]string{"kind": "unauthenticated", "message": "authentication required"},
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// bearer returns the token of an "Authorization: Bearer" header.
func bearer(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
