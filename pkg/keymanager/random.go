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

package keymanager

import (
	"context"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-mpc/pkg/enclave"
)

// vaultReader adapts a vault's SecureRandom to io.Reader so that key and
// polynomial entropy comes from the same trust anchor that seals shares.
type vaultReader struct {
	ctx   context.Context
	vault enclave.Vault
}

var _ io.Reader = vaultReader{}

func (r vaultReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b, err := r.vault.SecureRandom(r.ctx, len(p))
	if err != nil {
		return 0, fmt.Errorf("vault entropy: %w", err)
	}
	n := copy(p, b)
	clear(b)
	if n < len(p) {
		return n, io.ErrUnexpectedEOF
	}
	return n, nil
}
