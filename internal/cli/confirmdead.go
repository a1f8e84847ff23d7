package cli

import (
	"github.com/spf13/cobra"
)

var confirmDeadAPIAddr string

var confirmDeadCmd = &cobra.Command{
	Use:   "confirm-dead ADDRESS PORT",
	Short: "Ask a running swimd node to confirm a peer dead immediately",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfirmDead,
}

func init() {
	confirmDeadCmd.Flags().StringVar(&confirmDeadAPIAddr, "api-addr", "http://127.0.0.1:8080", "Base URL of the running node's status API")
}

func runConfirmDead(cmd *cobra.Command, args []string) error {
	return postPeer(confirmDeadAPIAddr+"/confirm-dead", args[0], args[1])
}
