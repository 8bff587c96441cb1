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

// Package types contains the shared records exchanged between the threshold
// coordinator, the signing protocols, the key manager and the transport:
// curves, protocol tags, schemes, shares, signatures and the request and
// response contract. It has no dependencies on other go-mpc packages.
package types

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Curve Type
// =============================================================================

// CurveType names an elliptic curve.
type CurveType string

const (
	CurveSecp256k1 CurveType = "secp256k1"
	CurveEd25519   CurveType = "ed25519"
	CurveP256      CurveType = "p256"
)

// String returns the string representation of the curve type.
func (c CurveType) String() string {
	return string(c)
}

// IsValid returns true if the curve is recognized. Recognized does not mean
// supported; see ecc.NewSigner.
func (c CurveType) IsValid() bool {
	switch c {
	case CurveSecp256k1, CurveEd25519, CurveP256:
		return true
	default:
		return false
	}
}

// ParseCurveType converts a string to a CurveType.
func ParseCurveType(s string) (CurveType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "secp256k1", "k256":
		return CurveSecp256k1, nil
	case "ed25519":
		return CurveEd25519, nil
	case "p256", "p-256", "secp256r1":
		return CurveP256, nil
	default:
		return "", fmt.Errorf("%w: unknown curve %q", ErrInvalidParameter, s)
	}
}

// =============================================================================
// Protocol Type
// =============================================================================

// ProtocolType tags the signing protocol a scheme is executed with.
type ProtocolType string

const (
	// ProtocolReconstruct reconstructs the private key from a quorum of
	// shares on the coordinating party and signs with it. It never runs an
	// interactive multi-party protocol.
	ProtocolReconstruct ProtocolType = "reconstruct"

	// ProtocolGG18 and ProtocolGG20 are recognized names of interactive
	// threshold ECDSA protocols. Neither is implemented.
	ProtocolGG18 ProtocolType = "gg18"
	ProtocolGG20 ProtocolType = "gg20"
)

// String returns the string representation of the protocol type.
func (p ProtocolType) String() string {
	return string(p)
}

// IsCustom returns true for any tag that is not a known protocol name.
func (p ProtocolType) IsCustom() bool {
	switch p {
	case ProtocolReconstruct, ProtocolGG18, ProtocolGG20:
		return false
	default:
		return true
	}
}

// =============================================================================
// Status
// =============================================================================

// Status is the lifecycle status of a session operation.
type Status string

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTimeout    Status = "timeout"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// =============================================================================
// Threshold Scheme
// =============================================================================

// ThresholdScheme describes one t-of-n instantiation.
type ThresholdScheme struct {
	TotalParticipants int          `json:"total_participants"`
	Threshold         int          `json:"threshold"`
	Curve             CurveType    `json:"curve"`
	Protocol          ProtocolType `json:"protocol"`
}

// Validate checks 0 < threshold <= total_participants and that the curve
// tag is recognized.
func (s *ThresholdScheme) Validate() error {
	if s.TotalParticipants < 1 {
		return fmt.Errorf("%w: total participants must be at least 1, got %d",
			ErrInvalidParameter, s.TotalParticipants)
	}
	if s.Threshold < 1 {
		return fmt.Errorf("%w: threshold must be at least 1, got %d", ErrInvalidParameter, s.Threshold)
	}
	if s.Threshold > s.TotalParticipants {
		return fmt.Errorf("%w: threshold (%d) must be <= total participants (%d)",
			ErrInvalidParameter, s.Threshold, s.TotalParticipants)
	}
	if !s.Curve.IsValid() {
		return fmt.Errorf("%w: unknown curve %q", ErrInvalidParameter, s.Curve)
	}
	return nil
}

// =============================================================================
// Keys, Shares and Signatures
// =============================================================================

// PublicKey is a curve-tagged compressed point.
type PublicKey struct {
	Curve CurveType `json:"curve"`
	Key   []byte    `json:"key"`
}

// Signature is a curve-tagged signature. ECDSA signatures are R || S and
// carry the recovery identifier; other curves leave RecoveryID nil.
type Signature struct {
	Curve      CurveType `json:"curve"`
	Signature  []byte    `json:"signature"`
	RecoveryID *uint8    `json:"recovery_id,omitempty"`
}

// KeyShare is the persisted form of one participant's share. EncryptedShare
// is the vault ciphertext of the transport-encoded share and is bound to the
// owning session and index.
type KeyShare struct {
	Index          int       `json:"index"`
	Total          int       `json:"total"`
	Threshold      int       `json:"threshold"`
	EncryptedShare []byte    `json:"encrypted_share"`
	Proof          []byte    `json:"proof,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// SignatureShare is one participant's contribution to a signature.
type SignatureShare struct {
	Index int    `json:"index"`
	Share []byte `json:"share"`
	Proof []byte `json:"proof,omitempty"`
}

// =============================================================================
// Request / Response contract
// =============================================================================

// KeyGenRequest asks for a new session key.
type KeyGenRequest struct {
	SessionID    string            `json:"session_id"`
	Scheme       ThresholdScheme   `json:"scheme"`
	Participants []string          `json:"participants,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// KeyGenResponse carries the public key and the encrypted shares.
type KeyGenResponse struct {
	SessionID string     `json:"session_id"`
	PublicKey PublicKey  `json:"public_key"`
	Address   string     `json:"address,omitempty"`
	KeyShares []KeyShare `json:"key_shares"`
	Status    Status     `json:"status"`
}

// SignRequest asks for a signature under a session key. MessageHash is the
// message digest presented by the caller; it is digested again with SHA-256
// by the signer, and verification applies the same digest.
type SignRequest struct {
	SessionID      string            `json:"session_id"`
	MessageHash    []byte            `json:"message_hash"`
	Participants   []string          `json:"participants"`
	DerivationPath string            `json:"derivation_path,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// SignResponse carries the finished signature if one was produced.
type SignResponse struct {
	SessionID       string           `json:"session_id"`
	Signature       *Signature       `json:"signature,omitempty"`
	SignatureShares []SignatureShare `json:"signature_shares"`
	Status          Status           `json:"status"`
}

// VerifyRequest asks whether a signature is valid for a session key.
type VerifyRequest struct {
	SessionID string    `json:"session_id"`
	Message   []byte    `json:"message"`
	Signature Signature `json:"signature"`
}

// VerifyResponse reports the verification outcome.
type VerifyResponse struct {
	Valid bool `json:"valid"`
}
