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
	"fmt"
	"io"
	"math/big"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// coefficientSize is the number of random bytes drawn per coefficient
// before reduction modulo the field.
const coefficientSize = 32

// Point is one (x, y) sample of a polynomial.
type Point struct {
	X *big.Int
	Y *big.Int
}

// Polynomial is a polynomial over the integers modulo a prime. Coefficients
// are stored lowest degree first; coefficient 0 is the shared secret.
type Polynomial struct {
	coefficients []*big.Int
	modulus      *big.Int
}

// NewRandomPolynomial builds a polynomial of the given degree whose constant
// term is constant and whose other coefficients are uniform values drawn from
// random and reduced modulo modulus.
func NewRandomPolynomial(random io.Reader, degree int, constant, modulus *big.Int) (*Polynomial, error) {
	if degree < 0 {
		return nil, fmt.Errorf("%w: degree must be non-negative, got %d", types.ErrInvalidParameter, degree)
	}
	if modulus == nil || modulus.Sign() <= 0 {
		return nil, fmt.Errorf("%w: modulus must be positive", types.ErrInvalidParameter)
	}

	coefficients := make([]*big.Int, degree+1)
	coefficients[0] = new(big.Int).Mod(constant, modulus)

	buf := make([]byte, coefficientSize)
	defer clear(buf)
	for i := 1; i <= degree; i++ {
		if _, err := io.ReadFull(random, buf); err != nil {
			for _, c := range coefficients[:i] {
				zeroInt(c)
			}
			return nil, fmt.Errorf("failed to generate random coefficient: %w", err)
		}
		c := new(big.Int).SetBytes(buf)
		coefficients[i] = c.Mod(c, modulus)
	}

	return &Polynomial{
		coefficients: coefficients,
		modulus:      new(big.Int).Set(modulus),
	}, nil
}

// Degree returns the degree of the polynomial.
func (p *Polynomial) Degree() int {
	return len(p.coefficients) - 1
}

// Evaluate returns p(x) mod modulus using Horner's method:
// p(x) = a0 + x(a1 + x(a2 + ... + x*an))
func (p *Polynomial) Evaluate(x *big.Int) *big.Int {
	result := new(big.Int)
	if len(p.coefficients) == 0 {
		return result
	}

	result.Set(p.coefficients[len(p.coefficients)-1])
	for i := len(p.coefficients) - 2; i >= 0; i-- {
		result.Mul(result, x)
		result.Add(result, p.coefficients[i])
		result.Mod(result, p.modulus)
	}
	return result.Mod(result, p.modulus)
}

// Zero scrubs every coefficient. The polynomial is unusable afterwards.
func (p *Polynomial) Zero() {
	for _, c := range p.coefficients {
		zeroInt(c)
	}
	p.coefficients = nil
}

// LagrangeInterpolate returns the value at x of the unique polynomial of
// degree len(points)-1 passing through points, computed modulo modulus.
// Interpolating at x = 0 recovers the constant term.
//
// The x-coordinates must be distinct. A repeated x makes a basis
// denominator zero; that is reported as a cryptographic error.
func LagrangeInterpolate(points []Point, x, modulus *big.Int) (*big.Int, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no points to interpolate", types.ErrInvalidParameter)
	}

	result := new(big.Int)
	numerator := new(big.Int)
	denominator := new(big.Int)
	term := new(big.Int)

	for i, pi := range points {
		numerator.SetInt64(1)
		denominator.SetInt64(1)

		for j, pj := range points {
			if i == j {
				continue
			}
			// numerator *= (x - xj)
			term.Sub(x, pj.X)
			numerator.Mul(numerator, term)
			numerator.Mod(numerator, modulus)

			// denominator *= (xi - xj)
			term.Sub(pi.X, pj.X)
			denominator.Mul(denominator, term)
			denominator.Mod(denominator, modulus)
		}

		inv, ok := ModInverse(denominator, modulus)
		if !ok {
			return nil, fmt.Errorf("%w: interpolation denominator has no inverse (duplicate x-coordinate?)",
				types.ErrCryptographic)
		}

		// result += yi * numerator / denominator
		term.Mul(pi.Y, numerator)
		term.Mul(term, inv)
		result.Add(result, term)
		result.Mod(result, modulus)
	}

	zeroInt(term)
	return result, nil
}
