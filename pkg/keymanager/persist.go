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
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-mpc/pkg/logging"
	"github.com/jeremyhahn/go-mpc/pkg/storage"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// recordVersion is the format version of a persisted session record.
const recordVersion = 1

// record is the persisted form of a session. Shares inside are vault
// ciphertexts, so the record itself holds no secret in the clear.
type record struct {
	Version   int    `json:"version"`
	SessionID string `json:"session_id"`
	State     *state `json:"state"`
}

func (m *KeyManager) persist(sessionID string, st *state) error {
	if m.backend == nil {
		return nil
	}
	b, err := json.Marshal(&record{Version: recordVersion, SessionID: sessionID, State: st})
	if err != nil {
		return fmt.Errorf("%w: encode session %s: %w", types.ErrSerialization, sessionID, err)
	}
	if err := m.backend.Put(storage.SessionKey(sessionID), b, storage.DefaultOptions()); err != nil {
		return fmt.Errorf("persist session %s: %w", sessionID, err)
	}
	return nil
}

func (m *KeyManager) unpersist(sessionID string) error {
	if m.backend == nil {
		return nil
	}
	err := m.backend.Delete(storage.SessionKey(sessionID))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// load installs every persisted session. A record that fails to decode
// aborts start-up rather than silently dropping a key.
func (m *KeyManager) load(ctx context.Context) error {
	if m.backend == nil {
		return nil
	}
	ids, err := storage.ListSessions(m.backend)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	for _, id := range ids {
		b, err := m.backend.Get(storage.SessionKey(id))
		if err != nil {
			return fmt.Errorf("load session %s: %w", id, err)
		}
		var rec record
		if err := json.Unmarshal(b, &rec); err != nil {
			return fmt.Errorf("%w: decode session %s: %w", types.ErrSerialization, id, err)
		}
		switch {
		case rec.Version != recordVersion:
			return fmt.Errorf("%w: session %s has record version %d", types.ErrSerialization, id, rec.Version)
		case rec.SessionID != id || rec.State == nil || rec.State.PublicKey == nil:
			return fmt.Errorf("%w: session record %s is inconsistent", types.ErrSerialization, id)
		}
		s, _ := m.store.getOrCreate(id)
		s.install(rec.State)
	}
	if len(ids) > 0 {
		m.logger.InfoContext(ctx, "sessions loaded", logging.Int("count", len(ids)))
	}
	return nil
}
