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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/jeremyhahn/go-mpc/pkg/logging"
	"github.com/jeremyhahn/go-mpc/pkg/metrics"
	"github.com/jeremyhahn/go-mpc/pkg/protocol"
	"github.com/jeremyhahn/go-mpc/pkg/threshold"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// backupVersion is the format version of a share backup record.
const backupVersion = 1

// backupRecord is one exported share. The share stays sealed; the record
// only carries enough context to check it belongs to the target session.
type backupRecord struct {
	Version   int                   `json:"version"`
	SessionID string                `json:"session_id"`
	Scheme    types.ThresholdScheme `json:"scheme"`
	PublicKey types.PublicKey       `json:"public_key"`
	Share     types.KeyShare        `json:"share"`
}

// SessionInfo describes a session without its share material.
type SessionInfo struct {
	SessionID    string                `json:"session_id"`
	Scheme       types.ThresholdScheme `json:"scheme"`
	PublicKey    *types.PublicKey      `json:"public_key,omitempty"`
	Address      string                `json:"address,omitempty"`
	Participants []string              `json:"participants,omitempty"`
	Metadata     map[string]string     `json:"metadata,omitempty"`
	Shares       int                   `json:"shares"`
	Generation   int                   `json:"generation"`
	Status       types.Status          `json:"status"`
	CreatedAt    time.Time             `json:"created_at"`
	RotatedAt    time.Time             `json:"rotated_at,omitzero"`
}

func infoOf(id string, st *state) SessionInfo {
	return SessionInfo{
		SessionID:    id,
		Scheme:       st.Scheme,
		PublicKey:    st.PublicKey,
		Address:      st.Address,
		Participants: st.Participants,
		Metadata:     st.Metadata,
		Shares:       len(st.Shares),
		Generation:   st.Generation,
		Status:       st.Status,
		CreatedAt:    st.CreatedAt,
		RotatedAt:    st.RotatedAt,
	}
}

// RotateKeyShares replaces the session's share set with a fresh sharing of
// the same key. The public key is unchanged; every previously issued share
// stops working.
func (m *KeyManager) RotateKeyShares(ctx context.Context, sessionID string) (out []types.KeyShare, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, metrics.OpRotate, sessionID, start, err) }()

	s, err := m.lockSession(sessionID, false)
	if err != nil {
		return nil, err
	}
	defer s.opMu.Unlock()

	prev := s.snapshot()
	if len(prev.Shares) < prev.Scheme.Threshold {
		return nil, fmt.Errorf("%w: session %s holds %d shares, threshold is %d",
			types.ErrInvalidState, sessionID, len(prev.Shares), prev.Scheme.Threshold)
	}
	proto, err := m.protocolFor(ctx, prev.Scheme.Protocol)
	if err != nil {
		return nil, err
	}

	s.setStatus(types.StatusInProgress)
	defer func() {
		if err != nil {
			s.setStatus(types.StatusFailed)
		}
	}()

	plain, err := m.open(ctx, sessionID, prev.Shares)
	if err != nil {
		return nil, err
	}
	material, err := proto.Refresh(&prev.Scheme, prev.PublicKey, plain)
	threshold.ZeroAll(plain)
	if err != nil {
		return nil, err
	}
	defer material.Zero()

	shares, err := m.seal(ctx, sessionID, prev.Scheme, material)
	if err != nil {
		return nil, err
	}

	next := *prev
	next.Shares = shares
	next.Generation++
	next.Status = types.StatusCompleted
	next.RotatedAt = m.now().UTC()
	if err := m.commit(s, &next); err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "key shares rotated",
		logging.String("session_id", sessionID),
		logging.Int("generation", next.Generation))

	out = make([]types.KeyShare, len(shares))
	for i := range shares {
		out[i] = cloneKeyShare(shares[i])
	}
	return out, nil
}

// BackupKeyShares exports the session's shares, one JSON record each. The
// shares stay vault-sealed, so a backup can only be restored through a vault
// holding the same key.
func (m *KeyManager) BackupKeyShares(ctx context.Context, sessionID string) (out [][]byte, err error) {
	start := time.Now()
	defer func() { m.observe(ctx, metrics.OpBackup, sessionID, start, err) }()

	st, err := m.readSession(sessionID)
	if err != nil {
		return nil, err
	}
	out = make([][]byte, 0, len(st.Shares))
	for _, ks := range st.Shares {
		rec := backupRecord{
			Version:   backupVersion,
			SessionID: sessionID,
			Scheme:    st.Scheme,
			PublicKey: *st.PublicKey,
			Share:     ks,
		}
		b, err := json.Marshal(&rec)
		if err != nil {
			return nil, fmt.Errorf("%w: encode backup: %w", types.ErrSerialization, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// RestoreKeyShares replaces the session's share set with the given backup
// records. Every record must belong to this session and key, and each
// share must open and match its commitment. At least threshold records are
// required; indices absent from the backup are dropped from the session.
func (m *KeyManager) RestoreKeyShares(ctx context.Context, sessionID string, backups [][]byte) (err error) {
	start := time.Now()
	defer func() { m.observe(ctx, metrics.OpRestore, sessionID, start, err) }()

	s, err := m.lockSession(sessionID, false)
	if err != nil {
		return err
	}
	defer s.opMu.Unlock()

	prev := s.snapshot()
	shares, err := decodeBackups(sessionID, prev, backups)
	if err != nil {
		return err
	}
	proto, err := m.protocolFor(ctx, prev.Scheme.Protocol)
	if err != nil {
		return err
	}
	if err := m.checkRestored(ctx, sessionID, proto, prev, shares); err != nil {
		return err
	}

	next := *prev
	next.Shares = shares
	next.Generation++
	next.Status = types.StatusCompleted
	if err := m.commit(s, &next); err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "key shares restored",
		logging.String("session_id", sessionID),
		logging.Int("shares", len(shares)))
	return nil
}

func decodeBackups(sessionID string, st *state, backups [][]byte) ([]types.KeyShare, error) {
	if len(backups) < st.Scheme.Threshold {
		return nil, &threshold.InsufficientSharesError{Have: len(backups), Threshold: st.Scheme.Threshold}
	}

	shares := make([]types.KeyShare, 0, len(backups))
	seen := make(map[int]struct{}, len(backups))
	for i, raw := range backups {
		var rec backupRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: backup %d: %w", types.ErrSerialization, i, err)
		}
		if rec.Version != backupVersion {
			return nil, fmt.Errorf("%w: backup %d has version %d", types.ErrSerialization, i, rec.Version)
		}
		switch {
		case rec.SessionID != sessionID:
			return nil, fmt.Errorf("%w: backup %d belongs to session %q", types.ErrInvalidParameter, i, rec.SessionID)
		case rec.Scheme != st.Scheme:
			return nil, fmt.Errorf("%w: backup %d was made under a different scheme", types.ErrInvalidParameter, i)
		case rec.PublicKey.Curve != st.PublicKey.Curve || !bytes.Equal(rec.PublicKey.Key, st.PublicKey.Key):
			return nil, fmt.Errorf("%w: backup %d was made for a different key", types.ErrInvalidParameter, i)
		case rec.Share.Index < 1 || rec.Share.Index > st.Scheme.TotalParticipants:
			return nil, fmt.Errorf("%w: backup %d has share index %d", types.ErrInvalidParameter, i, rec.Share.Index)
		}
		if _, dup := seen[rec.Share.Index]; dup {
			return nil, fmt.Errorf("%w: backup %d repeats share %d", types.ErrInvalidParameter, i, rec.Share.Index)
		}
		seen[rec.Share.Index] = struct{}{}
		shares = append(shares, rec.Share)
	}
	slices.SortFunc(shares, func(a, b types.KeyShare) int { return a.Index - b.Index })
	return shares, nil
}

// checkRestored opens every restored share and checks it against its
// commitment, then checks the commitments against the session key. Without
// proofs it checks that the shares reconstruct the key instead.
func (m *KeyManager) checkRestored(ctx context.Context, sessionID string, proto protocol.Protocol, st *state, shares []types.KeyShare) error {
	plain, err := m.open(ctx, sessionID, shares)
	if err != nil {
		return err
	}
	defer threshold.ZeroAll(plain)

	commitments := make(map[int][]byte, len(shares))
	for i, ks := range shares {
		if len(ks.Proof) == 0 {
			continue
		}
		c, err := proto.Commitment(plain[i])
		if err != nil {
			return err
		}
		if !bytes.Equal(c, ks.Proof) {
			return fmt.Errorf("%w: share %d does not match its commitment", types.ErrCryptographic, ks.Index)
		}
		commitments[ks.Index] = c
	}
	if len(commitments) == len(shares) {
		return verifyAllCommitments(shares, commitments, st)
	}

	// Reconstructing from a quorum confirms the shares belong to the key
	material, err := proto.Refresh(&st.Scheme, st.PublicKey, plain)
	if err != nil {
		return err
	}
	material.Zero()
	return nil
}

// verifyAllCommitments checks the first threshold commitments against the
// public key, then each remaining share together with the first
// threshold-1, so that every share lies on the same polynomial.
func verifyAllCommitments(shares []types.KeyShare, commitments map[int][]byte, st *state) error {
	t := st.Scheme.Threshold
	base := make(map[int][]byte, t)
	for _, ks := range shares[:t] {
		base[ks.Index] = commitments[ks.Index]
	}
	if err := threshold.VerifyCommitments(base, t, st.PublicKey); err != nil {
		return err
	}
	for _, extra := range shares[t:] {
		subset := make(map[int][]byte, t)
		for _, ks := range shares[:t-1] {
			subset[ks.Index] = commitments[ks.Index]
		}
		subset[extra.Index] = commitments[extra.Index]
		if err := threshold.VerifyCommitments(subset, t, st.PublicKey); err != nil {
			return fmt.Errorf("share %d: %w", extra.Index, err)
		}
	}
	return nil
}

// DeleteSession removes a session and its persisted record. Outstanding
// shares of the session can no longer be used.
func (m *KeyManager) DeleteSession(ctx context.Context, sessionID string) (err error) {
	start := time.Now()
	defer func() { m.observe(ctx, metrics.OpDelete, sessionID, start, err) }()

	s, ok := m.store.get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	deleted := s.deleted
	s.mu.RUnlock()
	if deleted {
		return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}

	if err := m.unpersist(sessionID); err != nil {
		return err
	}
	s.mu.Lock()
	s.deleted = true
	s.shares = nil
	s.publicKey = nil
	s.mu.Unlock()
	m.store.remove(sessionID, s)
	metrics.SetSessionsTotal(m.store.len())

	m.logger.InfoContext(ctx, "session deleted", logging.String("session_id", sessionID))
	return nil
}

// SessionStatus returns the status of the last mutation on a session.
func (m *KeyManager) SessionStatus(sessionID string) (types.Status, error) {
	s, ok := m.store.get(sessionID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deleted {
		return "", fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return s.status, nil
}

// Session describes one session.
func (m *KeyManager) Session(sessionID string) (*SessionInfo, error) {
	st, err := m.readSession(sessionID)
	if err != nil {
		return nil, err
	}
	info := infoOf(sessionID, st)
	return &info, nil
}

// Sessions describes every session holding a key, ordered by id.
func (m *KeyManager) Sessions() []SessionInfo {
	ids := m.store.ids()
	out := make([]SessionInfo, 0, len(ids))
	for _, id := range ids {
		st, err := m.readSession(id)
		if err != nil {
			continue
		}
		out = append(out, infoOf(id, st))
	}
	return out
}

// Close releases the storage backend. The vault belongs to the caller.
func (m *KeyManager) Close() error {
	if m.backend == nil {
		return nil
	}
	return m.backend.Close()
}
