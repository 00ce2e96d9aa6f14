package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	mcpserver "github.com/lukman83/kidkazz-catalog/mcp"
)

var serveHTTPCmd = &cobra.Command{
	Use:   "serve-http",
	Short: "Start MCP HTTP server",
	Long:  "Start the MCP server over streamable HTTP, with /healthz and Prometheus /metrics.",
	RunE:  runServeHTTP,
}

func init() {
	serveHTTPCmd.Flags().String("port", "", "HTTP port (default from $PORT or 8080)")
	rootCmd.AddCommand(serveHTTPCmd)
}

func runServeHTTP(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	port := cfg.HTTP.Port
	if p, _ := cmd.Flags().GetString("port"); p != "" {
		port = p
	}

	srv := mcpserver.New(a.pipeline, cfg.General.DefaultPlatform, logger)
	return srv.ServeHTTP(ctx, fmt.Sprintf(":%s", port), cfg.HTTP.APIKey, a.inst.Handler())
}
