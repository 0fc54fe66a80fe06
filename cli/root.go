// Package cli implements the agentd commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "agentd",
	Short: "Local agent with durable memory and knowledge retrieval",
	Long: "agentd runs a conversational agent backed by a SQLite memory store,\n" +
		"an HNSW knowledge index, and HTTP tool servers for generated artifacts.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "agentd.toml", "Path to the TOML config file")
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
