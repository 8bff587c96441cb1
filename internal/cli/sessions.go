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
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var restoreFile string

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session"},
	Short:   "Inspect and manage key sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()
		sessions, err := c.Sessions(cmd.Context())
		if err != nil {
			return err
		}
		if globalOptions.OutputFormat == string(OutputFormatJSON) {
			return printer(cmd).Print(sessions)
		}
		lines := make([]string, len(sessions))
		for i, s := range sessions {
			lines[i] = fmt.Sprintf("%s\t%d-of-%d\t%s\tgen %d", s.SessionID,
				s.Scheme.Threshold, s.Scheme.TotalParticipants, s.Status, s.Generation)
		}
		return printer(cmd).PrintLines("sessions", lines)
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()
		s, err := c.Session(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if globalOptions.OutputFormat == string(OutputFormatJSON) {
			return printer(cmd).Print(s)
		}
		out := map[string]any{
			"session_id": s.SessionID,
			"scheme":     fmt.Sprintf("%d-of-%d %s", s.Scheme.Threshold, s.Scheme.TotalParticipants, s.Scheme.Curve),
			"protocol":   s.Scheme.Protocol,
			"status":     s.Status,
			"shares":     s.Shares,
			"generation": s.Generation,
			"created_at": s.CreatedAt,
		}
		if s.PublicKey != nil {
			out["public_key"] = hex.EncodeToString(s.PublicKey.Key)
		}
		if s.Address != "" {
			out["address"] = s.Address
		}
		if !s.RotatedAt.IsZero() {
			out["rotated_at"] = s.RotatedAt
		}
		return printer(cmd).Print(out)
	},
}

var sessionsPublicKeyCmd = &cobra.Command{
	Use:   "public-key <session-id>",
	Short: "Print the session public key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()
		pk, err := c.PublicKey(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if globalOptions.OutputFormat == string(OutputFormatJSON) {
			return printer(cmd).Print(pk)
		}
		return printer(cmd).Print(map[string]any{
			"curve":      pk.PublicKey.Curve,
			"public_key": hex.EncodeToString(pk.PublicKey.Key),
			"address":    pk.Address,
		})
	},
}

var sessionsShareCmd = &cobra.Command{
	Use:   "share <session-id> <index>",
	Short: "Print one sealed key share",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid share index %q", args[1])
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()
		ks, err := c.KeyShare(cmd.Context(), args[0], index)
		if err != nil {
			return err
		}
		return printer(cmd).Print(ks)
	},
}

var sessionsRotateCmd = &cobra.Command{
	Use:   "rotate <session-id>",
	Short: "Re-split the session key into fresh shares",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()
		resp, err := c.Rotate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if globalOptions.OutputFormat == string(OutputFormatJSON) {
			return printer(cmd).Print(resp)
		}
		return printer(cmd).Print(map[string]any{
			"session_id": resp.SessionID,
			"shares":     len(resp.KeyShares),
			"rotated_at": resp.RotatedAt,
		})
	},
}

var sessionsBackupCmd = &cobra.Command{
	Use:   "backup <session-id>",
	Short: "Export sealed share backups as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()
		backups, err := c.Backup(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		// Always JSON so the output feeds restore --file
		return NewPrinter(string(OutputFormatJSON), cmd.OutOrStdout()).Print(map[string]any{
			"session_id": args[0],
			"backups":    backups,
		})
	},
}

var sessionsRestoreCmd = &cobra.Command{
	Use:   "restore <session-id>",
	Short: "Restore shares from a backup file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// #nosec G304 - operator-supplied backup path
		data, err := os.ReadFile(restoreFile)
		if err != nil {
			return fmt.Errorf("failed to read backup: %w", err)
		}
		var doc struct {
			Backups [][]byte `json:"backups"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse backup: %w", err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()
		info, err := c.Restore(cmd.Context(), args[0], doc.Backups)
		if err != nil {
			return err
		}
		if globalOptions.OutputFormat == string(OutputFormatJSON) {
			return printer(cmd).Print(info)
		}
		return printer(cmd).Print(map[string]any{
			"session_id": info.SessionID,
			"shares":     info.Shares,
			"status":     info.Status,
		})
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and its shares",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.DeleteSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		printVerbose(cmd, "deleted %s", args[0])
		return nil
	},
}

func init() {
	sessionsRestoreCmd.Flags().StringVarP(&restoreFile, "file", "f", "", "backup JSON written by sessions backup")
	_ = sessionsRestoreCmd.MarkFlagRequired("file")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsPublicKeyCmd,
		sessionsShareCmd, sessionsRotateCmd, sessionsBackupCmd, sessionsRestoreCmd,
		sessionsDeleteCmd)
}
