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

package auth

import "net/http"

// NoOpAuthenticator admits every request as "anonymous". It is meant for
// development or deployments that authenticate in front of the service.
type NoOpAuthenticator struct{}

// NewNoOpAuthenticator creates a NoOpAuthenticator.
func NewNoOpAuthenticator() *NoOpAuthenticator {
	return &NoOpAuthenticator{}
}

// Authenticate always succeeds.
func (NoOpAuthenticator) Authenticate(*http.Request) (*Identity, error) {
	return &Identity{Subject: "anonymous", Method: "none"}, nil
}

// Name returns "none".
func (NoOpAuthenticator) Name() string {
	return "none"
}
