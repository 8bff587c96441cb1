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
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// session is one key and its current share set.
//
// opMu serializes mutations of the session (generate, rotate, restore,
// delete) for their whole duration, including vault calls. mu guards the
// fields and is only held to read a snapshot or to swap in a new state, so
// readers never wait on a vault call.
type session struct {
	id   string
	opMu sync.Mutex

	mu           sync.RWMutex
	scheme       types.ThresholdScheme
	publicKey    *types.PublicKey
	address      string
	participants []string
	metadata     map[string]string
	shares       map[int]types.KeyShare
	generation   int
	status       types.Status
	createdAt    time.Time
	rotatedAt    time.Time
	deleted      bool
}

// state is an immutable copy of a session's key material, used both as a
// read snapshot and as the next state a mutation installs.
type state struct {
	Scheme       types.ThresholdScheme `json:"scheme"`
	PublicKey    *types.PublicKey      `json:"public_key"`
	Address      string                `json:"address,omitempty"`
	Participants []string              `json:"participants,omitempty"`
	Metadata     map[string]string     `json:"metadata,omitempty"`
	Shares       []types.KeyShare      `json:"shares"`
	Generation   int                   `json:"generation"`
	Status       types.Status          `json:"status"`
	CreatedAt    time.Time             `json:"created_at"`
	RotatedAt    time.Time             `json:"rotated_at,omitempty"`
}

func newSession(id string) *session {
	return &session{id: id, status: types.StatusCreated, shares: map[int]types.KeyShare{}}
}

// snapshot copies the session state. The caller must not hold s.mu.
func (s *session) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *session) snapshotLocked() *state {
	st := &state{
		Scheme:       s.scheme,
		Address:      s.address,
		Participants: slices.Clone(s.participants),
		Metadata:     maps.Clone(s.metadata),
		Shares:       make([]types.KeyShare, 0, len(s.shares)),
		Generation:   s.generation,
		Status:       s.status,
		CreatedAt:    s.createdAt,
		RotatedAt:    s.rotatedAt,
	}
	if s.publicKey != nil {
		st.PublicKey = clonePublicKey(s.publicKey)
	}
	for _, idx := range sortedIndices(s.shares) {
		st.Shares = append(st.Shares, cloneKeyShare(s.shares[idx]))
	}
	return st
}

// install replaces the session state wholesale.
func (s *session) install(st *state) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scheme = st.Scheme
	s.publicKey = clonePublicKey(st.PublicKey)
	s.address = st.Address
	s.participants = slices.Clone(st.Participants)
	s.metadata = maps.Clone(st.Metadata)
	s.shares = make(map[int]types.KeyShare, len(st.Shares))
	for _, ks := range st.Shares {
		s.shares[ks.Index] = cloneKeyShare(ks)
	}
	s.generation = st.Generation
	s.status = st.Status
	s.createdAt = st.CreatedAt
	s.rotatedAt = st.RotatedAt
}

func (s *session) setStatus(status types.Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *session) ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publicKey != nil && !s.deleted
}

func sortedIndices(shares map[int]types.KeyShare) []int {
	out := make([]int, 0, len(shares))
	for idx := range shares {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func clonePublicKey(pk *types.PublicKey) *types.PublicKey {
	if pk == nil {
		return nil
	}
	return &types.PublicKey{Curve: pk.Curve, Key: slices.Clone(pk.Key)}
}

func cloneKeyShare(ks types.KeyShare) types.KeyShare {
	ks.EncryptedShare = slices.Clone(ks.EncryptedShare)
	ks.Proof = slices.Clone(ks.Proof)
	return ks
}

// store is the session map. Its lock guards map membership only; each
// session carries its own locks, so operations on distinct sessions never
// contend beyond the map lookup.
type store struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newStore() *store {
	return &store{sessions: make(map[string]*session)}
}

func (st *store) get(id string) (*session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// getOrCreate returns the session for id, creating an empty one if needed.
// The boolean reports whether it was created.
func (st *store) getOrCreate(id string) (*session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		return s, false
	}
	s := newSession(id)
	st.sessions[id] = s
	return s, true
}

// remove deletes id if it still maps to s.
func (st *store) remove(id string, s *session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if cur, ok := st.sessions[id]; ok && cur == s {
		delete(st.sessions, id)
	}
}

func (st *store) ids() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (st *store) len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
