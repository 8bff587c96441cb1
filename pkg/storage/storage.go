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

// Package storage is the key/value persistence layer behind the key
// manager. Backends store opaque byte records under slash-separated keys;
// session records live under "sessions/".
package storage

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

var (
	// ErrClosed is returned when using a closed backend.
	ErrClosed = fmt.Errorf("%w: storage: closed", types.ErrInvalidState)

	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrInvalidKey is returned for empty keys or keys that would escape
	// the backend root.
	ErrInvalidKey = fmt.Errorf("%w: storage: invalid key", types.ErrInvalidParameter)
)

// Backend defines the interface for storage backends.
// All implementations must be thread-safe.
type Backend interface {
	// Get retrieves the value for the given key.
	// Returns ErrNotFound if the key does not exist.
	Get(key string) ([]byte, error)

	// Put stores the value for the given key, replacing any previous
	// value. Implementations must not expose a partially written value.
	Put(key string, value []byte, opts *Options) error

	// Delete removes the key and its value from storage.
	// Returns ErrNotFound if the key does not exist.
	Delete(key string) error

	// List returns all keys with the given prefix in sorted order.
	// If prefix is empty, all keys are returned.
	List(prefix string) ([]string, error)

	// Exists checks if a key exists in storage.
	Exists(key string) (bool, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Options contains optional parameters for Put.
type Options struct {
	// Permissions sets the file mode for file-based backends
	Permissions fs.FileMode
}

// DefaultOptions returns owner read/write only.
func DefaultOptions() *Options {
	return &Options{Permissions: 0600}
}

const sessionPrefix = "sessions/"

// SessionKey returns the storage key of a session record. Session ids are
// caller-chosen, so they are base64url encoded to keep them a single path
// element.
func SessionKey(sessionID string) string {
	return sessionPrefix + base64.RawURLEncoding.EncodeToString([]byte(sessionID))
}

// SessionID is the inverse of SessionKey.
func SessionID(key string) (string, error) {
	enc, ok := strings.CutPrefix(key, sessionPrefix)
	if !ok || enc == "" {
		return "", fmt.Errorf("%w: %q is not a session key", ErrInvalidKey, key)
	}
	id, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("%w: %q is not a session key", ErrInvalidKey, key)
	}
	return string(id), nil
}

// ListSessions returns the ids of every session record in backend. Keys
// under the session prefix that do not decode are skipped.
func ListSessions(backend Backend) ([]string, error) {
	keys, err := backend.List(sessionPrefix)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		id, err := SessionID(k)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
