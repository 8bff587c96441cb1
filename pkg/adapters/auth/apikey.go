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

package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"slices"
)

// APIKeyHeader carries the API key when no bearer token is used.
const APIKeyHeader = "X-API-Key"

// APIKey is one accepted key and the identity it grants.
type APIKey struct {
	Key     string   `yaml:"key"`
	Subject string   `yaml:"subject"`
	Roles   []string `yaml:"roles,omitempty"`
}

type apiKeyEntry struct {
	digest [sha256.Size]byte
	APIKey
}

// APIKeyAuthenticator admits requests presenting a configured API key in
// the X-API-Key header or as a bearer token. Keys are held as SHA-256
// digests and compared in constant time.
type APIKeyAuthenticator struct {
	keys []apiKeyEntry
}

// NewAPIKeyAuthenticator creates an API key authenticator.
func NewAPIKeyAuthenticator(keys []APIKey) (*APIKeyAuthenticator, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("auth: at least one api key is required")
	}
	a := &APIKeyAuthenticator{keys: make([]apiKeyEntry, 0, len(keys))}
	for i, k := range keys {
		if k.Key == "" || k.Subject == "" {
			return nil, fmt.Errorf("auth: api key %d needs a key and a subject", i)
		}
		entry := apiKeyEntry{digest: sha256.Sum256([]byte(k.Key)), APIKey: k}
		entry.Key = ""
		a.keys = append(a.keys, entry)
	}
	return a, nil
}

// Authenticate looks up the presented key.
func (a *APIKeyAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	presented := r.Header.Get(APIKeyHeader)
	if presented == "" {
		presented = bearer(r)
	}
	if presented == "" {
		return nil, fmt.Errorf("%w: no api key", ErrUnauthenticated)
	}

	digest := sha256.Sum256([]byte(presented))
	match := -1
	for i := range a.keys {
		if subtle.ConstantTimeCompare(digest[:], a.keys[i].digest[:]) == 1 {
			match = i
		}
	}
	if match < 0 {
		return nil, fmt.Errorf("%w: unknown api key", ErrUnauthenticated)
	}
	k := a.keys[match]
	return &Identity{Subject: k.Subject, Roles: slices.Clone(k.Roles), Method: a.Name()}, nil
}

// Name returns "apikey".
func (a *APIKeyAuthenticator) Name() string {
	return "apikey"
}
