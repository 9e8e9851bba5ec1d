package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tristo-bit/skhoot-terminal/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server exposing terminal tools to AI agents",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an AI orchestrator drive terminal sessions natively. Configure
it with:

  {
    "mcpServers": {
      "skhoot-terminal": { "command": "skhoot-term", "args": ["mcp"] }
    }
  }

The orchestrator should set SKHOOT_AGENT_SESSION_ID so tool calls resolve
"this conversation's terminal" correctly.

Available tools: terminal_create, terminal_execute, terminal_read,
terminal_list, terminal_inspect, terminal_close`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(os.Stderr)
		if err != nil {
			return err
		}
		defer svc.Shutdown()

		srv := mcp.NewServerFromEnv(svc)
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
