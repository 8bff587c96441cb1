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

// Package threshold ties secret sharing and ECDSA together: it mints a
// keypair and shards the private key, and it reconstructs the key from a
// quorum of shares to sign.
//
// Reconstruction happens on whichever party calls ThresholdSign. The full
// private key exists transiently in that process and is scrubbed right
// after use. Callers that require that no single party ever holds the whole
// key must not use this package.
package threshold

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-mpc/pkg/crypto/ecc"
	"github.com/jeremyhahn/go-mpc/pkg/crypto/secretsharing"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// Config configures a Coordinator.
type Config struct {
	// Threshold is the minimum number of shares required to sign (M)
	Threshold int

	// TotalShares is the number of shares to generate (N)
	TotalShares int

	// Curve is the signing curve. Defaults to secp256k1.
	Curve types.CurveType

	// Random is the entropy source for keys and polynomials.
	// Defaults to crypto/rand.Reader.
	Random io.Reader
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Threshold < 1 {
		return fmt.Errorf("%w: threshold must be at least 1, got %d", types.ErrInvalidParameter, c.Threshold)
	}
	if c.TotalShares < c.Threshold {
		return fmt.Errorf("%w: total shares (%d) must be >= threshold (%d)",
			types.ErrInvalidParameter, c.TotalShares, c.Threshold)
	}
	return nil
}

// Coordinator generates sharded keypairs and signs from share quorums.
type Coordinator struct {
	threshold int
	total     int
	signer    *ecc.Signer
	shamir    *secretsharing.Shamir
}

// NewCoordinator creates a coordinator for one (threshold, total) scheme.
func NewCoordinator(config *Config) (*Coordinator, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", types.ErrInvalidParameter)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	curve := config.Curve
	if curve == "" {
		curve = types.CurveSecp256k1
	}
	random := config.Random
	if random == nil {
		random = rand.Reader
	}

	signer, err := ecc.NewSigner(curve, ecc.WithRandom(random))
	if err != nil {
		return nil, err
	}

	shamir, err := secretsharing.NewShamir(&secretsharing.ShareConfig{
		Threshold:   config.Threshold,
		TotalShares: config.TotalShares,
		Random:      random,
	})
	if err != nil {
		return nil, err
	}

	return &Coordinator{
		threshold: config.Threshold,
		total:     config.TotalShares,
		signer:    signer,
		shamir:    shamir,
	}, nil
}

// Signer returns the curve signer used by the coordinator.
func (c *Coordinator) Signer() *ecc.Signer {
	return c.signer
}

// GenerateThresholdKeypair mints a fresh keypair and splits the private key
// into TotalShares transport-encoded shares. Share i (0-based) carries
// x = i+1. The private key is scrubbed before returning.
func (c *Coordinator) GenerateThresholdKeypair() ([][]byte, *types.PublicKey, error) {
	privateKey, publicKey, err := c.signer.GenerateKeypair()
	if err != nil {
		return nil, nil, err
	}
	defer Zero(privateKey)

	shares, err := c.SplitKey(privateKey)
	if err != nil {
		return nil, nil, err
	}
	return shares, publicKey, nil
}

// SplitKey shards an existing private key. It is how share sets are
// refreshed without changing the public key.
func (c *Coordinator) SplitKey(privateKey []byte) ([][]byte, error) {
	shares, err := c.shamir.Split(privateKey)
	if err != nil {
		return nil, err
	}

	encoded := make([][]byte, len(shares))
	for i := range shares {
		encoded[i] = EncodeShare(shares[i])
		shares[i].Zero()
	}
	return encoded, nil
}

// ReconstructKey decodes shares and interpolates the private key. The
// caller must scrub the returned bytes.
func (c *Coordinator) ReconstructKey(encoded [][]byte) ([]byte, error) {
	if len(encoded) < c.threshold {
		return nil, &InsufficientSharesError{Have: len(encoded), Threshold: c.threshold}
	}

	shares := make([]secretsharing.Share, 0, len(encoded))
	defer func() {
		for i := range shares {
			shares[i].Zero()
		}
	}()

	seen := make(map[int64]struct{}, len(encoded))
	for i, buf := range encoded {
		share, err := DecodeShare(buf, i)
		if err != nil {
			return nil, err
		}
		if !share.X.IsInt64() || share.X.Int64() < 1 || share.X.Int64() > int64(c.total) {
			share.Zero()
			return nil, &MalformedShareError{Position: i, Reason: fmt.Sprintf("index outside 1..%d", c.total)}
		}
		if _, dup := seen[share.X.Int64()]; dup {
			share.Zero()
			return nil, fmt.Errorf("%w: %w: index %d", types.ErrInvalidParameter, ErrDuplicateShare, share.X.Int64())
		}
		seen[share.X.Int64()] = struct{}{}
		shares = append(shares, share)
	}

	return c.shamir.Recover(shares)
}

// ThresholdSign reconstructs the private key from at least Threshold
// shares, signs message with it and scrubs the key.
func (c *Coordinator) ThresholdSign(encoded [][]byte, message []byte) (*types.Signature, error) {
	privateKey, err := c.ReconstructKey(encoded)
	if err != nil {
		return nil, err
	}
	defer Zero(privateKey)

	return c.signer.Sign(privateKey, message)
}

// ShareIndex returns the x-coordinate of a transport-encoded share.
func ShareIndex(encoded []byte) (int, error) {
	share, err := DecodeShare(encoded, 0)
	if err != nil {
		return 0, err
	}
	defer share.Zero()

	if !share.X.IsInt64() || share.X.Int64() < 1 || share.X.Int64() > 1<<31 {
		return 0, &MalformedShareError{Reason: "index out of range"}
	}
	return int(share.X.Int64()), nil
}
