package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "fleetpass",
	Short: "Rotate an OS account's password across a fleet of servers",
	Long: `Fleetpass changes one account's password on every server in a host list.

Hosts are read from a plain-text file (one hostname or IP per line; blank
lines and # comments are skipped) and processed strictly in file order,
one at a time. One host's failure never stops the batch; a summary with
the failed hosts is printed at the end.

Examples:
	# Rotate over SSH using the hosts in servers.txt
	fleetpass rotate

	# Use a different host list and key-based authentication
	fleetpass rotate --hosts-file fleet.txt --key ~/.ssh/id_ed25519

	# Rotate EC2 instances through AWS Systems Manager
	fleetpass rotate --via ssm --region eu-west-1`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetBuildInfo wires the ldflags-injected build metadata into --version.
func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

// Execute runs the CLI. Any error exits with code 1; a completed run
// exits 0 even when individual hosts failed.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
