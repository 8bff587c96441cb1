// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mpc.

package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholdScheme_Validate(t *testing.T) {
	tests := []struct {
		name    string
		scheme  ThresholdScheme
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid 2-of-3",
			scheme: ThresholdScheme{TotalParticipants: 3, Threshold: 2, Curve: CurveSecp256k1, Protocol: ProtocolReconstruct},
		},
		{
			name:   "valid 1-of-1",
			scheme: ThresholdScheme{TotalParticipants: 1, Threshold: 1, Curve: CurveSecp256k1},
		},
		{
			name:    "zero threshold",
			scheme:  ThresholdScheme{TotalParticipants: 3, Threshold: 0, Curve: CurveSecp256k1},
			wantErr: true,
			errMsg:  "threshold must be at least 1",
		},
		{
			name:    "threshold above total",
			scheme:  ThresholdScheme{TotalParticipants: 2, Threshold: 3, Curve: CurveSecp256k1},
			wantErr: true,
			errMsg:  "threshold (3) must be <= total participants (2)",
		},
		{
			name:    "no participants",
			scheme:  ThresholdScheme{TotalParticipants: 0, Threshold: 0, Curve: CurveSecp256k1},
			wantErr: true,
			errMsg:  "total participants must be at least 1",
		},
		{
			name:    "unknown curve",
			scheme:  ThresholdScheme{TotalParticipants: 3, Threshold: 2, Curve: "curve25519x"},
			wantErr: true,
			errMsg:  "unknown curve",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scheme.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidParameter)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseCurveType(t *testing.T) {
	for in, want := range map[string]CurveType{
		"secp256k1": CurveSecp256k1,
		" K256 ":    CurveSecp256k1,
		"ed25519":   CurveEd25519,
		"P-256":     CurveP256,
	} {
		got, err := ParseCurveType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseCurveType("bls12-381")
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestProtocolType_IsCustom(t *testing.T) {
	assert.False(t, ProtocolReconstruct.IsCustom())
	assert.False(t, ProtocolGG18.IsCustom())
	assert.False(t, ProtocolGG20.IsCustom())
	assert.True(t, ProtocolType("frost").IsCustom())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{fmt.Errorf("%w: bad size", ErrInvalidParameter), KindInvalidParameter},
		{fmt.Errorf("%w: gone", ErrInvalidState), KindInvalidState},
		{fmt.Errorf("%w: bad point", ErrCryptographic), KindCryptographic},
		{fmt.Errorf("%w: gg18", ErrProtocol), KindProtocol},
		{fmt.Errorf("%w: json", ErrSerialization), KindSerialization},
		{errors.New("disk full"), KindOther},
		{fmt.Errorf("outer: %w", fmt.Errorf("%w: inner", ErrCryptographic)), KindCryptographic},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err))
	}
}
