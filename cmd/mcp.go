package cmd

import (
	"fmt"

	"github.com/jcdickinson/kbpress/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP server on stdio exposing status and regenerate",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connectDaemon()
		if err != nil {
			return fmt.Errorf("connecting to server: %w", err)
		}
		return mcp.NewServer(client, version).Run()
	},
}
