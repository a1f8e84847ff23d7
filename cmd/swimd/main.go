// Command swimd runs and operates a SWIM cluster-membership node.
package main

import "github.com/tutu-network/swimshell/internal/cli"

func main() {
	cli.Execute()
}
