// Package cli implements swimd's command-tree, grounded in the
// teacher's rootCmd.AddCommand/cmd.Flags() cobra style.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "swimd",
	Short: "swimd runs and operates a SWIM cluster-membership node",
	Long: `swimd drives a SWIM-family failure detector: it joins a cluster,
probes peers, disseminates membership changes via gossip, and exposes
a status surface for day-2 operations.`,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(membersCmd)
	rootCmd.AddCommand(confirmDeadCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
