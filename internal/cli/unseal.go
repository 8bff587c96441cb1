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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-mpc/internal/config"
	"github.com/jeremyhahn/go-mpc/pkg/enclave"
)

var (
	unsealThreshold int
	unsealTotal     int
	unsealMasterKey string
	unsealGenerate  bool
)

var unsealCmd = &cobra.Command{
	Use:   "unseal",
	Short: "Manage software vault unseal shares",
}

var unsealSplitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split the software vault master key into unseal shares",
	Long: `Split the master key into t-of-n unseal shares for operator custody.
The key is taken from --master-key, otherwise from the vault settings in
--config. With --generate a fresh master key is created instead; configure
the daemon with the printed shares (security.unseal_shares) to use it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultConfig := &enclave.SoftwareConfig{}
		switch {
		case unsealGenerate:
			if unsealMasterKey != "" {
				return fmt.Errorf("--generate and --master-key are mutually exclusive")
			}
		case unsealMasterKey != "":
			key, err := decodeHex("master key", unsealMasterKey)
			if err != nil {
				return err
			}
			vaultConfig.MasterKey = key
		default:
			cfg, err := config.Load(globalOptions.ConfigFile)
			if err != nil {
				return err
			}
			if cfg.Security.MasterKey == "" && len(cfg.Security.UnsealShares) == 0 {
				return fmt.Errorf("no master key configured; pass --master-key or --generate")
			}
			if cfg.Security.MasterKey != "" {
				key, err := decodeHex("master key", cfg.Security.MasterKey)
				if err != nil {
					return err
				}
				vaultConfig.MasterKey = key
			}
			vaultConfig.UnsealShares = cfg.Security.UnsealShares
		}
		defer clear(vaultConfig.MasterKey)

		vault, err := enclave.NewSoftwareVault(vaultConfig)
		if err != nil {
			return err
		}
		defer vault.Close()

		shares, err := vault.ExportUnsealShares(unsealThreshold, unsealTotal)
		if err != nil {
			return err
		}
		return printer(cmd).PrintLines("unseal_shares", shares)
	},
}

func init() {
	f := unsealSplitCmd.Flags()
	f.IntVarP(&unsealThreshold, "threshold", "t", 3, "shares required to unseal")
	f.IntVarP(&unsealTotal, "total", "n", 5, "total shares")
	f.StringVar(&unsealMasterKey, "master-key", "", "32-byte master key (hex)")
	f.BoolVar(&unsealGenerate, "generate", false, "split a freshly generated master key")

	unsealCmd.AddCommand(unsealSplitCmd)
}
