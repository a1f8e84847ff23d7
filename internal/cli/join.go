package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var joinAPIAddr string

var joinCmd = &cobra.Command{
	Use:   "join ADDRESS PORT",
	Short: "Ask a running swimd node to start monitoring a new contact point",
	Args:  cobra.ExactArgs(2),
	RunE:  runJoin,
}

func init() {
	joinCmd.Flags().StringVar(&joinAPIAddr, "api-addr", "http://127.0.0.1:8080", "Base URL of the running node's status API")
}

func runJoin(cmd *cobra.Command, args []string) error {
	return postPeer(joinAPIAddr+"/monitor", args[0], args[1])
}

func postPeer(url, address, port string) error {
	body, err := json.Marshal(peerRequest{Address: address, Port: parsePort(port)})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %s", url, resp.Status)
	}
	return nil
}

type peerRequest struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
}

func parsePort(s string) uint16 {
	var p uint16
	for _, c := range s {
		if c < '0' || c > '9' {
			return p
		}
		p = p*10 + uint16(c-'0')
	}
	return p
}
