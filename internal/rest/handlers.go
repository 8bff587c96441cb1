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

package rest

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jeremyhahn/go-mpc/pkg/adapters/audit"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// sessionParam returns the validated {id} path parameter.
func sessionParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if err := ValidateSessionID(id); err != nil {
		return "", err
	}
	return id, nil
}

// KeyGenHandler handles POST /api/v1/keygen.
func (s *Server) KeyGenHandler(w http.ResponseWriter, r *http.Request) {
	var req types.KeyGenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := ValidateSessionID(req.SessionID); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.manager.GenerateKey(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, resp, http.StatusOK)
}

// SignHandler handles POST /api/v1/sign.
func (s *Server) SignHandler(w http.ResponseWriter, r *http.Request) {
	var req types.SignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := ValidateSessionID(req.SessionID); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.manager.Sign(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, resp, http.StatusOK)
}

// VerifyHandler handles POST /api/v1/verify. An invalid signature is a
// successful request with valid=false.
func (s *Server) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	var req types.VerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := ValidateSessionID(req.SessionID); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.manager.Verify(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, resp, http.StatusOK)
}

// AttestHandler handles POST /api/v1/attest.
func (s *Server) AttestHandler(w http.ResponseWriter, r *http.Request) {
	var req AttestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	statement, err := s.manager.Attest(r.Context(), req.Challenge)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, AttestResponse{
		Vault:     string(s.manager.Vault().Kind()),
		Statement: statement,
	}, http.StatusOK)
}

// ListSessionsHandler handles GET /api/v1/sessions.
func (s *Server) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, SessionsResponse{Sessions: s.manager.Sessions()}, http.StatusOK)
}

// GetSessionHandler handles GET /api/v1/sessions/{id}.
func (s *Server) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := sessionParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := s.manager.Session(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, info, http.StatusOK)
}

// DeleteSessionHandler handles DELETE /api/v1/sessions/{id}.
func (s *Server) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := sessionParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.manager.DeleteSession(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PublicKeyHandler handles GET /api/v1/sessions/{id}/public-key.
func (s *Server) PublicKeyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := sessionParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pub, err := s.manager.GetPublicKey(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	address, err := s.manager.GetAddress(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, PublicKeyResponse{SessionID: id, PublicKey: *pub, Address: address}, http.StatusOK)
}

// StatusHandler handles GET /api/v1/sessions/{id}/status.
func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	id, err := sessionParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status, err := s.manager.SessionStatus(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, StatusResponse{SessionID: id, Status: status}, http.StatusOK)
}

// KeyShareHandler handles GET /api/v1/sessions/{id}/shares/{index}. The
// share is returned sealed, as stored.
func (s *Server) KeyShareHandler(w http.ResponseWriter, r *http.Request) {
	id, err := sessionParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: share index must be an integer", types.ErrInvalidParameter))
		return
	}
	share, err := s.manager.GetKeyShare(id, index)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, share, http.StatusOK)
}

// RotateHandler handles POST /api/v1/sessions/{id}/rotate.
func (s *Server) RotateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := sessionParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	shares, err := s.manager.RotateKeyShares(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := RotateResponse{SessionID: id, KeyShares: shares}
	if info, err := s.manager.Session(id); err == nil {
		resp.RotatedAt = info.RotatedAt
	}
	writeJSON(w, resp, http.StatusOK)
}

// BackupHandler handles GET /api/v1/sessions/{id}/backup.
func (s *Server) BackupHandler(w http.ResponseWriter, r *http.Request) {
	id, err := sessionParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	backups, err := s.manager.BackupKeyShares(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, BackupResponse{SessionID: id, Backups: backups}, http.StatusOK)
}

// RestoreHandler handles POST /api/v1/sessions/{id}/restore and answers
// with the restored session.
func (s *Server) RestoreHandler(w http.ResponseWriter, r *http.Request) {
	id, err := sessionParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req RestoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.manager.RestoreKeyShares(r.Context(), id, req.Backups); err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := s.manager.Session(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, info, http.StatusOK)
}

// CombineHandler handles POST /api/v1/sessions/{id}/combine.
func (s *Server) CombineHandler(w http.ResponseWriter, r *http.Request) {
	id, err := sessionParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req CombineRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sig, err := s.manager.CombineSignatureShares(r.Context(), id, req.Message, req.Shares)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, CombineResponse{SessionID: id, Signature: *sig}, http.StatusOK)
}

// AuditHandler handles GET /api/v1/audit. Filters: session_id, type
// (repeatable), outcome, since (RFC 3339) and limit.
func (s *Server) AuditHandler(w http.ResponseWriter, r *http.Request) {
	q, err := auditQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	events, err := s.manager.Auditor().Events(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, AuditResponse{Events: events}, http.StatusOK)
}

func auditQuery(r *http.Request) (*audit.Query, error) {
	values := r.URL.Query()
	q := &audit.Query{
		SessionID: values.Get("session_id"),
		Outcome:   audit.Outcome(values.Get("outcome")),
		Limit:     defaultAuditLimit,
	}
	for _, t := range values["type"] {
		q.Types = append(q.Types, audit.EventType(t))
	}
	switch q.Outcome {
	case "", audit.OutcomeSuccess, audit.OutcomeFailure:
	default:
		return nil, fmt.Errorf("%w: outcome must be success or failure", types.ErrInvalidParameter)
	}
	if v := values.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("%w: since must be an RFC 3339 time", types.ErrInvalidParameter)
		}
		q.Since = since
	}
	if v := values.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxAuditLimit {
			return nil, fmt.Errorf("%w: limit must be between 1 and %d", types.ErrInvalidParameter, maxAuditLimit)
		}
		q.Limit = limit
	}
	return q, nil
}
