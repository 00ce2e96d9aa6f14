package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	mcpserver "github.com/lukman83/kidkazz-catalog/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start MCP stdio server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(commandContext(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintln(cmd.ErrOrStderr(), "Starting KidKazz Catalog MCP server on stdio...")

	if err := mcpserver.New(a.pipeline, cfg.General.DefaultPlatform, logger).Serve(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
