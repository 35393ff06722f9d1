package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/ctitrans/internal/adapters/driving/mcp"
	"github.com/custodia-labs/ctitrans/internal/logger"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Start a Model Context Protocol server exposing observable extraction
to AI assistants.

By default the server speaks JSON-RPC over stdio. Use --http to serve the
streamable HTTP transport instead.

Examples:
  # Stdio mode
  ctitrans mcp

  # HTTP mode
  ctitrans mcp --http :8081`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().String("http", "", "serve over HTTP on `ADDR` instead of stdio")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("http")

	policy, err := conflictPolicy(cmd, appConfig)
	if err != nil {
		return err
	}
	a, err := newApp(appOptions{
		config: appConfig,
		out:    cmd.OutOrStdout(),
		log:    logger.Default(),
		policy: policy,
	})
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(&mcp.Ports{
		Extract:  a.extract,
		Profiles: a.profiles,
		Log:      logger.Default(),
	})
	if err != nil {
		return err
	}

	if addr != "" {
		logger.Info("MCP server listening on %s", addr)
		return server.RunHTTP(cmd.Context(), addr)
	}
	return server.Run(cmd.Context())
}
