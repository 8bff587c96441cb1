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

package ecc

import (
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

// Address returns the EIP-55 checksummed Ethereum address of a secp256k1
// public key.
func Address(publicKey *types.PublicKey) (string, error) {
	if publicKey == nil || publicKey.Curve != types.CurveSecp256k1 {
		return "", fmt.Errorf("%w: address derivation requires a secp256k1 key", types.ErrInvalidParameter)
	}
	if len(publicKey.Key) != PublicKeySize {
		return "", fmt.Errorf("%w: public key must be %d bytes, got %d",
			types.ErrInvalidParameter, PublicKeySize, len(publicKey.Key))
	}

	pub, err := ethcrypto.DecompressPubkey(publicKey.Key)
	if err != nil {
		return "", fmt.Errorf("%w: invalid public key: %w", types.ErrCryptographic, err)
	}
	return ethcrypto.PubkeyToAddress(*pub).Hex(), nil
}
