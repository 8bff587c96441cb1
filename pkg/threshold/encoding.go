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

package threshold

import (
	"math/big"

	"github.com/jeremyhahn/go-mpc/pkg/crypto/secretsharing"
)

const (
	// MinEncodedShareSize is the smallest buffer DecodeShare accepts.
	MinEncodedShareSize = 8

	// xLengthMask selects the x-length bits of the tag byte.
	xLengthMask = 0x7f
)

// EncodeShare serializes a share for transport as
//
//	[tag: low 7 bits = len(x)] || x || y
//
// where x and y are two's-complement big-endian encodings. Share values are
// non-negative, so a leading 0x00 is added whenever the high bit of the
// magnitude is set. y is zero-extended to 32 bytes so every encoded share of
// a scheme has the same length regardless of its value.
func EncodeShare(share secretsharing.Share) []byte {
	x := signedBytes(share.X)
	y := signedFixedBytes(share.Y, secretsharing.SecretSize)
	defer clear(y)

	buf := make([]byte, 0, 1+len(x)+len(y))
	buf = append(buf, byte(len(x))&xLengthMask)
	buf = append(buf, x...)
	buf = append(buf, y...)
	return buf
}

// DecodeShare parses the transport encoding produced by EncodeShare.
// position is only used to label errors.
func DecodeShare(buf []byte, position int) (secretsharing.Share, error) {
	if len(buf) < MinEncodedShareSize {
		return secretsharing.Share{}, &MalformedShareError{Position: position, Reason: "too short"}
	}

	xLen := int(buf[0] & xLengthMask)
	if xLen == 0 {
		return secretsharing.Share{}, &MalformedShareError{Position: position, Reason: "empty x-coordinate"}
	}
	if 1+xLen >= len(buf) {
		return secretsharing.Share{}, &MalformedShareError{Position: position, Reason: "x-length overruns buffer"}
	}

	xBytes := buf[1 : 1+xLen]
	yBytes := buf[1+xLen:]
	if xBytes[0]&0x80 != 0 || yBytes[0]&0x80 != 0 {
		return secretsharing.Share{}, &MalformedShareError{Position: position, Reason: "negative value"}
	}

	return secretsharing.Share{
		X: new(big.Int).SetBytes(xBytes),
		Y: new(big.Int).SetBytes(yBytes),
	}, nil
}

// signedBytes returns the minimal two's-complement big-endian encoding of a
// non-negative integer.
func signedBytes(v *big.Int) []byte {
	b := v.Bytes()
	if len(b) == 0 {
		return []byte{0x00}
	}
	if b[0]&0x80 != 0 {
		return append([]byte{0x00}, b...)
	}
	return b
}

// signedFixedBytes is signedBytes with the magnitude left-padded to size.
func signedFixedBytes(v *big.Int, size int) []byte {
	b := make([]byte, size)
	if v.BitLen() > size*8 {
		b = v.Bytes()
	} else {
		v.FillBytes(b)
	}
	if b[0]&0x80 != 0 {
		return append([]byte{0x00}, b...)
	}
	return b
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	clear(b)
}

// ZeroAll overwrites every buffer in bufs.
func ZeroAll(bufs [][]byte) {
	for _, b := range bufs {
		clear(b)
	}
}
