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

package cli

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-mpc/pkg/types"
)

var (
	keygenThreshold    int
	keygenTotal        int
	keygenCurve        string
	keygenProtocol     string
	keygenParticipants []string
	keygenMetadata     map[string]string

	digestHex    string
	digestText   string
	signParties  []string
	signatureHex string
	verifyCurve  string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen <session-id>",
	Short: "Generate a threshold key for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		curve, err := types.ParseCurveType(keygenCurve)
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		printVerbose(cmd, "generating %d-of-%d %s key for %s", keygenThreshold, keygenTotal, curve, args[0])
		resp, err := c.GenerateKey(cmd.Context(), &types.KeyGenRequest{
			SessionID: args[0],
			Scheme: types.ThresholdScheme{
				TotalParticipants: keygenTotal,
				Threshold:         keygenThreshold,
				Curve:             curve,
				Protocol:          types.ProtocolType(keygenProtocol),
			},
			Participants: keygenParticipants,
			Metadata:     keygenMetadata,
		})
		if err != nil {
			return err
		}
		if globalOptions.OutputFormat == string(OutputFormatJSON) {
			return printer(cmd).Print(resp)
		}
		return printer(cmd).Print(map[string]any{
			"session_id": resp.SessionID,
			"curve":      resp.PublicKey.Curve,
			"public_key": hex.EncodeToString(resp.PublicKey.Key),
			"address":    resp.Address,
			"shares":     len(resp.KeyShares),
			"status":     resp.Status,
		})
	},
}

var signCmd = &cobra.Command{
	Use:   "sign <session-id>",
	Short: "Sign a message digest with a quorum of shares",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		digest, err := readDigest()
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.Sign(cmd.Context(), &types.SignRequest{
			SessionID:    args[0],
			MessageHash:  digest,
			Participants: signParties,
		})
		if err != nil {
			return err
		}
		if globalOptions.OutputFormat == string(OutputFormatJSON) {
			return printer(cmd).Print(resp)
		}
		if resp.Signature == nil {
			return fmt.Errorf("no signature returned (status %s)", resp.Status)
		}
		out := map[string]any{
			"session_id": resp.SessionID,
			"signature":  hex.EncodeToString(resp.Signature.Signature),
			"status":     resp.Status,
		}
		if resp.Signature.RecoveryID != nil {
			out["recovery_id"] = *resp.Signature.RecoveryID
		}
		return printer(cmd).Print(out)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <session-id>",
	Short: "Verify a signature under a session key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		digest, err := readDigest()
		if err != nil {
			return err
		}
		sig, err := decodeHex("signature", signatureHex)
		if err != nil {
			return err
		}
		curve, err := types.ParseCurveType(verifyCurve)
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.Verify(cmd.Context(), &types.VerifyRequest{
			SessionID: args[0],
			Message:   digest,
			Signature: types.Signature{Curve: curve, Signature: sig},
		})
		if err != nil {
			return err
		}
		if err := printer(cmd).Print(map[string]any{"valid": resp.Valid}); err != nil {
			return err
		}
		if !resp.Valid {
			return errInvalidSignature
		}
		return nil
	},
}

var errInvalidSignature = errors.New("signature is not valid")

// readDigest returns --hash decoded, or the SHA-256 of --message.
func readDigest() ([]byte, error) {
	switch {
	case digestHex != "" && digestText != "":
		return nil, fmt.Errorf("--hash and --message are mutually exclusive")
	case digestHex != "":
		return decodeHex("hash", digestHex)
	case digestText != "":
		sum := sha256.Sum256([]byte(digestText))
		return sum[:], nil
	default:
		return nil, fmt.Errorf("one of --hash or --message is required")
	}
}

func decodeHex(name, s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("%s is required", name)
	}
	return b, nil
}

func init() {
	f := keygenCmd.Flags()
	f.IntVarP(&keygenThreshold, "threshold", "t", 2, "shares required to sign")
	f.IntVarP(&keygenTotal, "total", "n", 3, "total shares")
	f.StringVar(&keygenCurve, "curve", string(types.CurveSecp256k1), "curve")
	f.StringVar(&keygenProtocol, "protocol", "", "signing protocol (default from the server)")
	f.StringSliceVar(&keygenParticipants, "participants", nil, "participant ids, one per share")
	f.StringToStringVar(&keygenMetadata, "metadata", nil, "session metadata (key=value)")

	for _, cmd := range []*cobra.Command{signCmd, verifyCmd} {
		cmd.Flags().StringVar(&digestHex, "hash", "", "message digest (hex)")
		cmd.Flags().StringVar(&digestText, "message", "", "message text, hashed with SHA-256")
	}
	signCmd.Flags().StringSliceVarP(&signParties, "participants", "p", nil, "share indices or participant ids taking part")
	verifyCmd.Flags().StringVar(&signatureHex, "signature", "", "signature R || S (hex)")
	verifyCmd.Flags().StringVar(&verifyCurve, "curve", string(types.CurveSecp256k1), "signature curve")
	_ = signCmd.MarkFlagRequired("participants")
	_ = verifyCmd.MarkFlagRequired("signature")
}
