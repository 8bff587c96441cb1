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

package enclave

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/asn1"
	"fmt"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// hsmAlgorithmID marks blobs sealed by token-side AES-GCM. It is distinct
// from the software ids so the two families are never confused.
const hsmAlgorithmID byte = 0x81

const hsmAttestSuffix = "hsm-attestation"

type hsmStatement struct {
	PublicKey []byte
	Signature []byte
}

// VerifyHSMAttestation checks an HSM attestation statement and returns the
// token's attestation public key.
func VerifyHSMAttestation(statement, challenge []byte) (*ecdsa.PublicKey, error) {
	var s hsmStatement
	rest, err := asn1.Unmarshal(statement, &s)
	if err != nil || len(rest) != 0 {
		return nil, fmt.Errorf("%w: malformed hsm attestation", types.ErrSerialization)
	}
	//nolint:staticcheck // elliptic.Unmarshal is the simplest decoder for uncompressed points
	x, y := elliptic.Unmarshal(elliptic.P256(), s.PublicKey)
	if x == nil {
		return nil, fmt.Errorf("%w: hsm attestation key is not a P-256 point", types.ErrCryptographic)
	}
	pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}

	digest := sha256.Sum256(append(append([]byte{}, challenge...), hsmAttestSuffix...))
	if !ecdsa.VerifyASN1(pub, digest[:], s.Signature) {
		return nil, fmt.Errorf("%w: hsm attestation signature", types.ErrCryptographic)
	}
	return pub, nil
}
