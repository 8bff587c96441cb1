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
	"time"

	"github.com/jeremyhahn/go-mpc/pkg/adapters/audit"
	"github.com/jeremyhahn/go-mpc/pkg/health"
	"github.com/jeremyhahn/go-mpc/pkg/keymanager"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// ErrorBody is the error envelope of every failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail classifies a failure.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Vault   string `json:"vault,omitempty"`
}

// HealthCheckResponse is returned by the probe endpoints.
type HealthCheckResponse struct {
	Status  health.Status        `json:"status"`
	Message string               `json:"message,omitempty"`
	Checks  []health.CheckResult `json:"checks,omitempty"`
}

// CombineRequest submits participant shares for a signature.
type CombineRequest struct {
	Message []byte                 `json:"message"`
	Shares  []types.SignatureShare `json:"shares"`
}

// CombineResponse carries the combined signature.
type CombineResponse struct {
	SessionID string          `json:"session_id"`
	Signature types.Signature `json:"signature"`
}

// AttestRequest asks the vault for an attestation over a caller nonce.
type AttestRequest struct {
	Challenge []byte `json:"challenge"`
}

// AttestResponse carries the vault statement.
type AttestResponse struct {
	Vault     string `json:"vault"`
	Statement []byte `json:"statement"`
}

// PublicKeyResponse is returned by the public-key route.
type PublicKeyResponse struct {
	SessionID string          `json:"session_id"`
	PublicKey types.PublicKey `json:"public_key"`
	Address   string          `json:"address,omitempty"`
}

// StatusResponse is returned by the status route.
type StatusResponse struct {
	SessionID string       `json:"session_id"`
	Status    types.Status `json:"status"`
}

// SessionsResponse lists sessions.
type SessionsResponse struct {
	Sessions []keymanager.SessionInfo `json:"sessions"`
}

// RotateResponse carries the replacement share set.
type RotateResponse struct {
	SessionID string           `json:"session_id"`
	KeyShares []types.KeyShare `json:"key_shares"`
	RotatedAt time.Time        `json:"rotated_at"`
}

// BackupResponse carries one sealed backup per share.
type BackupResponse struct {
	SessionID string   `json:"session_id"`
	Backups   [][]byte `json:"backups"`
}

// RestoreRequest submits backups produced by the backup route.
type RestoreRequest struct {
	Backups [][]byte `json:"backups"`
}

// AuditResponse lists audit events, newest first.
type AuditResponse struct {
	Events []audit.Event `json:"events"`
}
