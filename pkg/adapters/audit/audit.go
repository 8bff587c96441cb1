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

// Package audit records who did what to which session. Every key
// lifecycle operation produces one Event whether it succeeded or failed;
// events never carry key or share material.
package audit

import (
	"context"
	"time"
)

// EventType names the audited operation.
type EventType string

const (
	EventKeyGenerate EventType = "key.generate"
	EventSign        EventType = "key.sign"
	EventVerify      EventType = "key.verify"
	EventCombine     EventType = "key.combine"
	EventRotate      EventType = "shares.rotate"
	EventBackup      EventType = "shares.backup"
	EventRestore     EventType = "shares.restore"
	EventDelete      EventType = "session.delete"
	EventAttest      EventType = "vault.attest"
)

// Outcome is the result of an audited operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one audit record.
type Event struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Type          EventType `json:"type"`
	Outcome       Outcome   `json:"outcome"`
	SessionID     string    `json:"session_id,omitempty"`
	Principal     string    `json:"principal,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`

	// ErrorKind is the error kind of a failed operation
	ErrorKind string `json:"error_kind,omitempty"`

	// Vault is the kind of vault that served the operation
	Vault string `json:"vault,omitempty"`
}

// Query filters events. Zero fields match everything.
type Query struct {
	SessionID string
	Types     []EventType
	Outcome   Outcome
	Since     time.Time

	// Limit caps the result, newest events first. Zero means no cap.
	Limit int
}

// Auditor stores audit events.
type Auditor interface {
	// Record stores event, assigning ID and Timestamp when unset.
	Record(ctx context.Context, event *Event) error

	// Events returns the events matching q, newest first.
	Events(ctx context.Context, q *Query) ([]Event, error)
}

type principalKey struct{}

// WithPrincipal returns ctx carrying the authenticated caller's name.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFrom returns the caller name stored on ctx, or "".
func PrincipalFrom(ctx context.Context) string {
	p, _ := ctx.Value(principalKey{}).(string)
	return p
}

// NoOp discards events.
type NoOp struct{}

func (NoOp) Record(context.Context, *Event) error { return nil }

func (NoOp) Events(context.Context, *Query) ([]Event, error) { return nil, nil }
