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

// Package memory keeps session records in process memory. Records are
// copied on write and on read, and scrubbed on delete and close, so share
// ciphertexts never alias caller buffers.
package memory

import (
	"slices"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-mpc/pkg/storage"
)

// Storage is a storage.Backend over a map.
type Storage struct {
	mu      sync.RWMutex
	records map[string][]byte // nil once closed
}

// New returns an empty backend.
func New() storage.Backend {
	return &Storage{records: make(map[string][]byte)}
}

// read runs fn under the read lock, or fails with ErrClosed.
func (s *Storage) read(fn func(records map[string][]byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.records == nil {
		return storage.ErrClosed
	}
	return fn(s.records)
}

func (s *Storage) write(fn func(records map[string][]byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		return storage.ErrClosed
	}
	return fn(s.records)
}

func (s *Storage) Get(key string) (value []byte, err error) {
	err = s.read(func(records map[string][]byte) error {
		v, ok := records[key]
		if !ok {
			return storage.ErrNotFound
		}
		value = slices.Clone(v)
		if value == nil {
			value = []byte{}
		}
		return nil
	})
	return value, err
}

func (s *Storage) Put(key string, value []byte, _ *storage.Options) error {
	if key == "" {
		return storage.ErrInvalidKey
	}
	return s.write(func(records map[string][]byte) error {
		clear(records[key])
		records[key] = append([]byte{}, value...)
		return nil
	})
}

func (s *Storage) Delete(key string) error {
	return s.write(func(records map[string][]byte) error {
		v, ok := records[key]
		if !ok {
			return storage.ErrNotFound
		}
		clear(v)
		delete(records, key)
		return nil
	})
}

func (s *Storage) List(prefix string) (keys []string, err error) {
	err = s.read(func(records map[string][]byte) error {
		for k := range records {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		slices.Sort(keys)
		return nil
	})
	return keys, err
}

func (s *Storage) Exists(key string) (found bool, err error) {
	err = s.read(func(records map[string][]byte) error {
		_, found = records[key]
		return nil
	})
	return found, err
}

// Close scrubs every record. Closing twice is a no-op; every other call
// after Close returns storage.ErrClosed.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.records {
		clear(v)
	}
	s.records = nil
	return nil
}
