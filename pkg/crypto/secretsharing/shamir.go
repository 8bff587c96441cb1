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
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// ShareConfig configures secret sharing parameters.
type ShareConfig struct {
	Threshold   int // M - minimum shares needed to reconstruct
	TotalShares int // N - total shares to create

	// Random is the entropy source for polynomial coefficients.
	// Defaults to crypto/rand.Reader.
	Random io.Reader
}

// Share is one evaluation of the sharing polynomial.
type Share struct {
	X *big.Int
	Y *big.Int
}

// Zero scrubs the share value.
func (s *Share) Zero() {
	zeroInt(s.Y)
}

// Shamir implements (t,n) secret sharing of 32-byte secrets over the
// secp256k1 group order.
type Shamir struct {
	threshold int
	total     int
	modulus   *big.Int
	random    io.Reader
}

// NewShamir creates a new Shamir instance with the given configuration.
// Returns an error if the configuration is invalid.
func NewShamir(config *ShareConfig) (*Shamir, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", types.ErrInvalidParameter)
	}
	if config.Threshold < 1 {
		return nil, fmt.Errorf("%w: threshold must be at least 1, got %d",
			types.ErrInvalidParameter, config.Threshold)
	}
	if config.TotalShares < config.Threshold {
		return nil, fmt.Errorf("%w: total shares (%d) must be >= threshold (%d)",
			types.ErrInvalidParameter, config.TotalShares, config.Threshold)
	}

	random := config.Random
	if random == nil {
		random = rand.Reader
	}

	return &Shamir{
		threshold: config.Threshold,
		total:     config.TotalShares,
		modulus:   CurveOrder(),
		random:    random,
	}, nil
}

// Threshold returns the number of shares required to recover a secret.
func (s *Shamir) Threshold() int {
	return s.threshold
}

// TotalShares returns the number of shares Split produces.
func (s *Shamir) TotalShares() int {
	return s.total
}

// Split divides a 32-byte secret into N shares evaluated at x = 1..N,
// any M of which recover it. The secret must be below the field modulus.
func (s *Shamir) Split(secret []byte) ([]Share, error) {
	if len(secret) != SecretSize {
		return nil, fmt.Errorf("%w: secret must be %d bytes, got %d",
			types.ErrInvalidParameter, SecretSize, len(secret))
	}

	constant := new(big.Int).SetBytes(secret)
	defer zeroInt(constant)
	if constant.Cmp(s.modulus) >= 0 {
		return nil, fmt.Errorf("%w: secret must be below the field modulus", types.ErrInvalidParameter)
	}

	poly, err := NewRandomPolynomial(s.random, s.threshold-1, constant, s.modulus)
	if err != nil {
		return nil, err
	}
	defer poly.Zero()

	shares := make([]Share, s.total)
	for i := range shares {
		x := big.NewInt(int64(i + 1))
		shares[i] = Share{X: x, Y: poly.Evaluate(x)}
	}
	return shares, nil
}

// Recover reconstructs the secret from M or more shares by interpolating at
// x = 0. The result is big-endian and left-padded to 32 bytes. Shares with
// repeated or out-of-range x-coordinates are rejected.
func (s *Shamir) Recover(shares []Share) ([]byte, error) {
	if len(shares) < s.threshold {
		return nil, fmt.Errorf("%w: insufficient shares: need %d, got %d",
			types.ErrInvalidParameter, s.threshold, len(shares))
	}

	points := make([]Point, len(shares))
	seen := make(map[string]struct{}, len(shares))
	for i, share := range shares {
		if share.X == nil || share.Y == nil {
			return nil, fmt.Errorf("%w: share %d is incomplete", types.ErrInvalidParameter, i)
		}
		if share.X.Sign() <= 0 || share.X.Cmp(s.modulus) >= 0 {
			return nil, fmt.Errorf("%w: share %d has x-coordinate outside (0, q)", types.ErrInvalidParameter, i)
		}
		key := share.X.String()
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate share x-coordinate %s", types.ErrInvalidParameter, key)
		}
		seen[key] = struct{}{}
		points[i] = Point{X: share.X, Y: share.Y}
	}

	value, err := LagrangeInterpolate(points, new(big.Int), s.modulus)
	if err != nil {
		return nil, err
	}
	defer zeroInt(value)

	raw := value.Bytes()
	defer clear(raw)
	if len(raw) > SecretSize {
		return nil, fmt.Errorf("%w: recovered secret is %d bytes, expected at most %d",
			types.ErrCryptographic, len(raw), SecretSize)
	}

	secret := make([]byte, SecretSize)
	copy(secret[SecretSize-len(raw):], raw)
	return secret, nil
}
