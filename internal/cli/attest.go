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
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-mpc/pkg/enclave"
)

var (
	attestChallenge string
	attestVerify    bool
	attestPinKey    string
)

var attestCmd = &cobra.Command{
	Use:   "attest",
	Short: "Request a signed attestation statement from the vault",
	Long: `Ask the daemon's vault to sign an attestation statement over a
challenge. Without --challenge a random 32-byte challenge is used. With
--verify the statement signature and challenge are checked locally,
against --pin-key when given or the key embedded in the statement.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		challenge, err := attestationChallenge()
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		resp, err := c.Attest(cmd.Context(), challenge)
		if err != nil {
			return err
		}
		out := map[string]any{
			"vault":     resp.Vault,
			"challenge": hex.EncodeToString(challenge),
			"statement": string(resp.Statement),
		}
		if attestVerify {
			pinned, err := loadPinnedKey(attestPinKey)
			if err != nil {
				return err
			}
			claims, err := enclave.VerifyAttestation(resp.Statement, challenge, pinned)
			if err != nil {
				return err
			}
			out["verified"] = true
			out["kind"] = claims.Kind
			out["measurement"] = claims.Measurement
		}
		return printer(cmd).Print(out)
	},
}

func attestationChallenge() ([]byte, error) {
	if attestChallenge != "" {
		return decodeHex("challenge", attestChallenge)
	}
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return nil, err
	}
	return challenge, nil
}

// loadPinnedKey reads a PEM-encoded P-256 public key. An empty path
// returns nil.
func loadPinnedKey(path string) (*ecdsa.PublicKey, error) {
	if path == "" {
		return nil, nil
	}
	// #nosec G304 - operator-supplied key path
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pinned key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("pinned key is not PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pinned key: %w", err)
	}
	key, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("pinned key is %T, want ECDSA", pub)
	}
	return key, nil
}

func init() {
	attestCmd.Flags().StringVar(&attestChallenge, "challenge", "", "challenge (hex, 1-64 bytes)")
	attestCmd.Flags().BoolVar(&attestVerify, "verify", false, "verify the statement locally")
	attestCmd.Flags().StringVar(&attestPinKey, "pin-key", "", "PEM public key the statement must be signed by")
}
