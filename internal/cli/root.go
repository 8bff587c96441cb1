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
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-mpc/pkg/client"
)

// Options holds the global flags.
type Options struct {
	// ConfigFile is the daemon configuration file (serve, unseal)
	ConfigFile string

	// Server is the base URL of a running mpcd
	Server string

	APIKey string
	Token  string

	TLSInsecure bool
	TLSCACert   string
	TLSCert     string
	TLSKey      string

	// OutputFormat controls output formatting (text, json)
	OutputFormat string
	Verbose      bool
}

var globalOptions = &Options{}

var rootCmd = &cobra.Command{
	Use:   "mpcd",
	Short: "Threshold signing service",
	Long: `mpcd splits secp256k1 keys into t-of-n shares sealed by a vault,
signs with a quorum of shares and manages share rotation, backup and
restore per key session.

Run "mpcd serve" to start the daemon. The keygen, sign, verify, sessions
and attest commands talk to a running daemon; shares and unseal work
offline.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&globalOptions.ConfigFile, "config", "c", "", "configuration file")
	flags.StringVarP(&globalOptions.Server, "server", "s", envOr("MPC_SERVER", client.DefaultAddress), "mpcd base URL")
	flags.StringVar(&globalOptions.APIKey, "api-key", os.Getenv("MPC_API_KEY"), "API key")
	flags.StringVar(&globalOptions.Token, "token", os.Getenv("MPC_TOKEN"), "bearer token")
	flags.BoolVar(&globalOptions.TLSInsecure, "tls-insecure", false, "skip server certificate verification")
	flags.StringVar(&globalOptions.TLSCACert, "tls-ca", "", "CA certificate for the server")
	flags.StringVar(&globalOptions.TLSCert, "tls-cert", "", "client certificate (mTLS)")
	flags.StringVar(&globalOptions.TLSKey, "tls-key", "", "client key (mTLS)")
	flags.StringVarP(&globalOptions.OutputFormat, "output", "o", "text", "output format (text, json)")
	flags.BoolVarP(&globalOptions.Verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd, serveCmd, keygenCmd, signCmd, verifyCmd,
		sessionsCmd, attestCmd, sharesCmd, unsealCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// newClient builds an API client from the global flags.
func newClient() (*client.Client, error) {
	return client.New(&client.Config{
		Address:               globalOptions.Server,
		APIKey:                globalOptions.APIKey,
		Token:                 globalOptions.Token,
		TLSInsecureSkipVerify: globalOptions.TLSInsecure,
		TLSCAFile:             globalOptions.TLSCACert,
		TLSCertFile:           globalOptions.TLSCert,
		TLSKeyFile:            globalOptions.TLSKey,
	})
}

func printer(cmd *cobra.Command) *Printer {
	return NewPrinter(globalOptions.OutputFormat, cmd.OutOrStdout())
}

// printVerbose prints a message to stderr if verbose mode is enabled.
func printVerbose(cmd *cobra.Command, format string, args ...any) {
	if globalOptions.Verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "[VERBOSE] "+format+"\n", args...)
	}
}
