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
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-mpc/pkg/crypto/ecc"
	"github.com/jeremyhahn/go-mpc/pkg/threshold"
	"github.com/jeremyhahn/go-mpc/pkg/types"
)

var (
	sharesThreshold int
	sharesTotal     int
	sharesKey       string
)

var sharesCmd = &cobra.Command{
	Use:   "shares",
	Short: "Split and recover secp256k1 keys offline",
	Long: `Work with transport-encoded shares locally, without a daemon. Shares
are printed and read as hex. Recovered keys are printed in the clear;
run these commands only where that is acceptable.`,
}

var sharesSplitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split a key into t-of-n shares",
	Long: `Split --key into shares. Without --key a fresh keypair is generated.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := threshold.NewCoordinator(&threshold.Config{Threshold: sharesThreshold, TotalShares: sharesTotal})
		if err != nil {
			return err
		}

		var (
			shares [][]byte
			pub    *types.PublicKey
		)
		if sharesKey == "" {
			shares, pub, err = c.GenerateThresholdKeypair()
		} else {
			var key []byte
			if key, err = decodeHex("key", sharesKey); err != nil {
				return err
			}
			defer threshold.Zero(key)
			if pub, err = c.Signer().DerivePublicKey(key); err != nil {
				return err
			}
			shares, err = c.SplitKey(key)
		}
		if err != nil {
			return err
		}
		defer threshold.ZeroAll(shares)

		encoded := make([]string, len(shares))
		for i, s := range shares {
			encoded[i] = hex.EncodeToString(s)
		}
		if globalOptions.OutputFormat == string(OutputFormatJSON) {
			return printer(cmd).Print(map[string]any{
				"threshold":  sharesThreshold,
				"total":      sharesTotal,
				"public_key": hex.EncodeToString(pub.Key),
				"shares":     encoded,
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "public_key: %s\n", hex.EncodeToString(pub.Key))
		return printer(cmd).PrintLines("shares", encoded)
	},
}

var sharesRecoverCmd = &cobra.Command{
	Use:   "recover <share>...",
	Short: "Recover a key from a quorum of shares",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		total := max(sharesTotal, len(args), sharesThreshold)
		c, err := threshold.NewCoordinator(&threshold.Config{Threshold: sharesThreshold, TotalShares: total})
		if err != nil {
			return err
		}

		shares := make([][]byte, len(args))
		defer threshold.ZeroAll(shares)
		for i, arg := range args {
			if shares[i], err = decodeHex(fmt.Sprintf("share %d", i+1), arg); err != nil {
				return err
			}
		}
		key, err := c.ReconstructKey(shares)
		if err != nil {
			return err
		}
		defer threshold.Zero(key)

		pub, err := c.Signer().DerivePublicKey(key)
		if err != nil {
			return err
		}
		address, err := ecc.Address(pub)
		if err != nil {
			return err
		}
		return printer(cmd).Print(map[string]any{
			"private_key": hex.EncodeToString(key),
			"public_key":  hex.EncodeToString(pub.Key),
			"address":     address,
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{sharesSplitCmd, sharesRecoverCmd} {
		cmd.Flags().IntVarP(&sharesThreshold, "threshold", "t", 2, "shares required to recover")
		cmd.Flags().IntVarP(&sharesTotal, "total", "n", 3, "total shares")
	}
	sharesSplitCmd.Flags().StringVar(&sharesKey, "key", "", "32-byte private key (hex)")

	sharesCmd.AddCommand(sharesSplitCmd, sharesRecoverCmd)
}
