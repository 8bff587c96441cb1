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

// Package protocol defines the signing-protocol capability the key manager
// runs schemes through, and the strategies that implement it.
//
// The only implemented strategy is ProtocolReconstruct: shares are combined
// into the private key on the coordinating party, which signs and scrubs
// it. The gg18 and gg20 tags are recognized but not implemented, and
// NewProtocol rejects them rather than substituting another strategy.
package protocol

import (
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// KeyMaterial is the output of key generation or refresh. Shares[i] is the
// transport-encoded share with index i+1. Proofs[i], when present, is the
// commitment of Shares[i].
type KeyMaterial struct {
	PublicKey *types.PublicKey
	Shares    [][]byte
	Proofs    [][]byte
}

// Zero scrubs the share bytes.
func (m *KeyMaterial) Zero() {
	if m == nil {
		return
	}
	for _, s := range m.Shares {
		clear(s)
	}
}

// Protocol is the operation set every signing strategy implements.
// Shares passed in and out are plaintext transport encodings; protecting
// them at rest is the caller's job.
type Protocol interface {
	// Type returns the protocol tag.
	Type() types.ProtocolType

	// SupportedCurves lists the curves the protocol can sign on.
	SupportedCurves() []types.CurveType

	// GenerateKey mints a key for scheme and returns its shares.
	GenerateKey(scheme *types.ThresholdScheme) (*KeyMaterial, error)

	// Sign produces a signature over message from a quorum of shares and
	// checks it against publicKey before returning it.
	Sign(scheme *types.ThresholdScheme, publicKey *types.PublicKey, shares [][]byte, message []byte) (*types.Signature, []types.SignatureShare, error)

	// VerifySignature checks signature over message under publicKey.
	VerifySignature(publicKey *types.PublicKey, message []byte, signature *types.Signature) (bool, error)

	// CombineSignatureShares finishes a signature from participant
	// contributions.
	CombineSignatureShares(scheme *types.ThresholdScheme, publicKey *types.PublicKey, message []byte, shares []types.SignatureShare) (*types.Signature, error)

	// Refresh replaces a share set with a fresh one for the same key.
	Refresh(scheme *types.ThresholdScheme, publicKey *types.PublicKey, shares [][]byte) (*KeyMaterial, error)

	// Commitment returns the public commitment of one share.
	Commitment(share []byte) ([]byte, error)
}
