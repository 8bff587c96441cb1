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

package types

import "errors"

// Error kinds. Every fallible operation in go-mpc wraps exactly one of these
// sentinels so callers can classify a failure with errors.Is or KindOf.
var (
	// ErrInvalidParameter indicates bad input shape, size or threshold.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidState indicates an operation against a session or resource
	// in the wrong lifecycle state.
	ErrInvalidState = errors.New("invalid state")

	// ErrCryptographic indicates a malformed key or signature, a failed
	// curve operation or an unexpected reconstruction result.
	ErrCryptographic = errors.New("cryptographic error")

	// ErrProtocol indicates an unsupported or unknown signing protocol.
	ErrProtocol = errors.New("protocol error")

	// ErrSerialization indicates a malformed backup or restore payload.
	ErrSerialization = errors.New("serialization error")

	// ErrOther is the catch-all kind.
	ErrOther = errors.New("error")
)

// ErrorKind is the stable, machine-readable name of an error kind.
type ErrorKind string

const (
	KindInvalidParameter ErrorKind = "invalid_parameter"
	KindInvalidState     ErrorKind = "invalid_state"
	KindCryptographic    ErrorKind = "cryptographic"
	KindProtocol         ErrorKind = "protocol"
	KindSerialization    ErrorKind = "serialization"
	KindOther            ErrorKind = "other"
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	return string(k)
}

var kinds = []struct {
	sentinel error
	kind     ErrorKind
}{
	{ErrInvalidParameter, KindInvalidParameter},
	{ErrInvalidState, KindInvalidState},
	{ErrCryptographic, KindCryptographic},
	{ErrProtocol, KindProtocol},
	{ErrSerialization, KindSerialization},
}

// KindOf classifies err. Errors that wrap none of the kind sentinels are
// reported as KindOther. A nil error has no kind and returns "".
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindOther
}
