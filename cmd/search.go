package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lukman83/kidkazz-catalog/internal/pipeline"
	"github.com/lukman83/kidkazz-catalog/internal/platform"
	"github.com/lukman83/kidkazz-catalog/internal/ui"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search products, resolve their images and save them",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().Int("limit", 10, "Number of products to save")
	searchCmd.Flags().String("strategy", pipeline.StrategyDefault, "Selection strategy: default, popular_midrange")
	searchCmd.Flags().String("format", "json", "Output format: json, table")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp(commandContext(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	query := args[0]
	limit, _ := cmd.Flags().GetInt("limit")
	strategy, _ := cmd.Flags().GetString("strategy")
	format, _ := cmd.Flags().GetString("format")
	platformName := platformFlag(cmd)

	spin := ui.NewSpinner()
	spin.Start(fmt.Sprintf("Searching '%s' on %s...", query, platformName))
	ctx := platform.WithProgress(commandContext(cmd), spin.Update)
	batch, err := a.pipeline.SearchAndSave(ctx, pipeline.Query{
		Text:     query,
		Platform: platformName,
		Limit:    limit,
		Strategy: strategy,
	})
	spin.Stop()
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	switch format {
	case "table":
		printRecordsTable(os.Stdout, batch.Records)
		fmt.Fprintf(os.Stderr, "saved %d of %d found (%d skipped, %d failed)\n",
			len(batch.Records), batch.Found, batch.Skipped, batch.Failed)
		return nil
	default:
		return writeJSON(os.Stdout, batch)
	}
}

// commandContext returns the command's context, or Background when cobra
// was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
