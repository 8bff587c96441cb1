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

// Package secretsharing implements Shamir's Secret Sharing over a prime field.
//
// A 32-byte secret is treated as the constant term (a0) of a polynomial of
// degree M-1 whose remaining coefficients are drawn uniformly at random:
//
//	p(x) = a0 + a1*x + a2*x^2 + ... + a(M-1)*x^(M-1)   (mod q)
//
// Shares are the evaluations (x, p(x)) for x = 1..N. The value x = 0 is
// reserved for the secret itself. Any M shares determine p uniquely, and the
// secret is recovered by Lagrange interpolation at x = 0.
//
// # Field
//
// All arithmetic is performed modulo q, the order of the secp256k1 group:
//
//	q = FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141
//
// Using the group order means every recovered secret is directly usable as a
// secp256k1 private scalar. Division (needed for the Lagrange basis
// denominators) uses the extended Euclidean algorithm in ModInverse.
//
// # Usage Example
//
//	shamir, err := secretsharing.NewShamir(&secretsharing.ShareConfig{
//	    Threshold:   2,
//	    TotalShares: 3,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	shares, err := shamir.Split(secret) // secret is exactly 32 bytes
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	recovered, err := shamir.Recover(shares[1:]) // any 2 of the 3
//
// # Security Properties
//
// - Information-theoretic: M-1 shares reveal nothing about the secret
// - Subset invariant: any M distinct shares recover the same secret
// - Fail closed: fewer than M shares is an error, never a plausible value
package secretsharing
