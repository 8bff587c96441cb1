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

package threshold

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/jeremyhahn/go-mpc/pkg/crypto/secretsharing"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// ShareCommitment returns the compressed point y*G for a transport-encoded
// share. Commitments reveal nothing about y beyond what the public key
// already does, and any Threshold of them interpolate to the public key.
func ShareCommitment(encoded []byte) ([]byte, error) {
	share, err := DecodeShare(encoded, 0)
	if err != nil {
		return nil, err
	}
	defer share.Zero()

	var k secp256k1.ModNScalar
	defer k.Zero()
	yBytes := share.Y.Bytes()
	defer clear(yBytes)
	if len(yBytes) > 32 {
		return nil, fmt.Errorf("%w: share value exceeds the group order", types.ErrCryptographic)
	}
	if overflow := k.SetByteSlice(yBytes); overflow {
		return nil, fmt.Errorf("%w: share value exceeds the group order", types.ErrCryptographic)
	}
	if k.IsZero() {
		return nil, fmt.Errorf("%w: share value is zero", types.ErrCryptographic)
	}

	var point secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&k, &point)
	point.ToAffine()
	return secp256k1.NewPublicKey(&point.X, &point.Y).SerializeCompressed(), nil
}

// VerifyShareCommitment reports whether encoded matches commitment.
func VerifyShareCommitment(encoded, commitment []byte) (bool, error) {
	got, err := ShareCommitment(encoded)
	if err != nil {
		return false, err
	}
	return bytes.Equal(got, commitment), nil
}

// VerifyCommitments checks that the commitments of a share set are
// consistent with publicKey: the Lagrange combination at x = 0 of the first
// threshold commitments (by index) must equal the public key point. It does
// not need any share value.
func VerifyCommitments(commitments map[int][]byte, threshold int, publicKey *types.PublicKey) error {
	if publicKey == nil || publicKey.Curve != types.CurveSecp256k1 {
		return fmt.Errorf("%w: commitments require a secp256k1 public key", types.ErrInvalidParameter)
	}
	if len(commitments) < threshold {
		return &InsufficientSharesError{Have: len(commitments), Threshold: threshold}
	}

	indices := make([]int, 0, len(commitments))
	for idx := range commitments {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	indices = indices[:threshold]

	q := secretsharing.CurveOrder()
	xs := make([]*big.Int, len(indices))
	for i, idx := range indices {
		if idx < 1 {
			return fmt.Errorf("%w: commitment index %d", types.ErrInvalidParameter, idx)
		}
		xs[i] = big.NewInt(int64(idx))
	}

	var sum secp256k1.JacobianPoint
	for i, idx := range indices {
		pub, err := secp256k1.ParsePubKey(commitments[idx])
		if err != nil {
			return fmt.Errorf("%w: commitment %d is not a point: %w", types.ErrCryptographic, idx, err)
		}

		lambda, err := lagrangeCoefficientAtZero(xs, i, q)
		if err != nil {
			return err
		}
		var k secp256k1.ModNScalar
		k.SetByteSlice(lambda.Bytes())

		var point, scaled secp256k1.JacobianPoint
		pub.AsJacobian(&point)
		secp256k1.ScalarMultNonConst(&k, &point, &scaled)

		var next secp256k1.JacobianPoint
		secp256k1.AddNonConst(&sum, &scaled, &next)
		sum = next
	}

	if (sum.X.IsZero() && sum.Y.IsZero()) || sum.Z.IsZero() {
		return fmt.Errorf("%w: commitments interpolate to the identity", types.ErrCryptographic)
	}
	sum.ToAffine()
	got := secp256k1.NewPublicKey(&sum.X, &sum.Y).SerializeCompressed()
	if !bytes.Equal(got, publicKey.Key) {
		return fmt.Errorf("%w: share commitments do not match the public key", types.ErrCryptographic)
	}
	return nil
}

// lagrangeCoefficientAtZero returns prod_{j != i} xj / (xj - xi) mod q.
func lagrangeCoefficientAtZero(xs []*big.Int, i int, q *big.Int) (*big.Int, error) {
	num := big.NewInt(1)
	den := big.NewInt(1)
	tmp := new(big.Int)
	for j, xj := range xs {
		if j == i {
			continue
		}
		num.Mul(num, xj)
		num.Mod(num, q)
		tmp.Sub(xj, xs[i])
		den.Mul(den, tmp)
		den.Mod(den, q)
	}
	inv, ok := secretsharing.ModInverse(den, q)
	if !ok {
		return nil, fmt.Errorf("%w: duplicate commitment index", types.ErrCryptographic)
	}
	num.Mul(num, inv)
	return num.Mod(num, q), nil
}
