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

// Package rest exposes the key manager over HTTP.
//
// Routes:
//
//	GET    /health, /health/live, /health/ready, /health/startup
//	GET    /metrics
//	POST   /api/v1/keygen
//	POST   /api/v1/sign
//	POST   /api/v1/verify
//	POST   /api/v1/attest
//	GET    /api/v1/sessions
//	GET    /api/v1/sessions/{id}
//	DELETE /api/v1/sessions/{id}
//	GET    /api/v1/sessions/{id}/public-key
//	GET    /api/v1/sessions/{id}/status
//	GET    /api/v1/sessions/{id}/shares/{index}
//	POST   /api/v1/sessions/{id}/rotate
//	GET    /api/v1/sessions/{id}/backup
//	POST   /api/v1/sessions/{id}/restore
//	POST   /api/v1/sessions/{id}/combine
//	GET    /api/v1/audit
//
// GET /api/v1/session/{id} and GET /api/v1/key/{id}/public are kept as
// aliases of the status and public-key routes.
//
// Byte fields (message hashes, signatures, shares, backups) are base64 in
// JSON. Every failure is answered with
//
//	{"error": {"kind": "<error kind>", "message": "..."}}
//
// where kind is one of invalid_parameter, invalid_state, cryptographic,
// protocol, serialization, not_found, rate_limited, unauthenticated or
// other.
package rest
