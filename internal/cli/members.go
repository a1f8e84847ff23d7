package cli

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var membersAPIAddr string

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "Print a running swimd node's membership snapshot",
	RunE:  runMembers,
}

func init() {
	membersCmd.Flags().StringVar(&membersAPIAddr, "api-addr", "http://127.0.0.1:8080", "Base URL of the running node's status API")
}

type memberView struct {
	Address     string `json:"address"`
	Port        uint16 `json:"port"`
	UID         string `json:"uid"`
	Status      string `json:"status"`
	Incarnation uint64 `json:"incarnation,omitempty"`
}

func runMembers(cmd *cobra.Command, args []string) error {
	resp, err := http.Get(membersAPIAddr + "/members")
	if err != nil {
		return fmt.Errorf("get members: %w", err)
	}
	defer resp.Body.Close()

	var views []memberView
	if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
		return fmt.Errorf("decode members: %w", err)
	}

	for _, m := range views {
		fmt.Printf("%s:%d\t%s\tincarnation=%d\tuid=%s\n", m.Address, m.Port, m.Status, m.Incarnation, m.UID)
	}
	return nil
}
