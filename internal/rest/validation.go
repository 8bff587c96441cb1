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

package rest

import (
	"fmt"
	"regexp"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

const maxSessionIDLength = 255

// sessionIDPattern admits identifiers that are safe in URLs and log lines.
var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-.:]+$`)

// ValidateSessionID rejects empty, oversized or non-identifier session ids.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: session_id is required", types.ErrInvalidParameter)
	}
	if len(id) > maxSessionIDLength {
		return fmt.Errorf("%w: session_id too long (max %d characters)", types.ErrInvalidParameter, maxSessionIDLength)
	}
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("%w: session_id contains invalid characters (allowed: a-z, A-Z, 0-9, -, _, ., :)",
			types.ErrInvalidParameter)
	}
	return nil
}
