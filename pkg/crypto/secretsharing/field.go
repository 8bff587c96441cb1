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

package secretsharing

import (
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// SecretSize is the size in bytes of a shareable secret.
const SecretSize = 32

// CurveOrder returns a copy of the secp256k1 group order, the modulus of
// the field every share lives in.
func CurveOrder() *big.Int {
	return new(big.Int).Set(secp256k1.S256().Params().N)
}

var one = big.NewInt(1)

// ModInverse returns the multiplicative inverse of a modulo m, normalized
// into [0, m), using the extended Euclidean algorithm. The second return
// value is false when gcd(a, m) != 1 and no inverse exists.
func ModInverse(a, m *big.Int) (*big.Int, bool) {
	if m.Sign() <= 0 {
		return nil, false
	}

	oldR := new(big.Int).Mod(a, m)
	r := new(big.Int).Set(m)
	oldS := big.NewInt(1)
	s := big.NewInt(0)

	q := new(big.Int)
	tmp := new(big.Int)
	for r.Sign() != 0 {
		q.Quo(oldR, r)

		tmp.Mul(q, r)
		tmp.Sub(oldR, tmp)
		oldR.Set(r)
		r.Set(tmp)

		tmp.Mul(q, s)
		tmp.Sub(oldS, tmp)
		oldS.Set(s)
		s.Set(tmp)
	}

	// oldR holds gcd(a, m)
	if new(big.Int).Abs(oldR).Cmp(one) != 0 {
		return nil, false
	}

	return oldS.Mod(oldS, m), true
}

// zeroInt overwrites the limbs backing v and resets it to zero.
func zeroInt(v *big.Int) {
	if v == nil {
		return
	}
	words := v.Bits()
	for i := range words {
		words[i] = 0
	}
	v.SetInt64(0)
}
