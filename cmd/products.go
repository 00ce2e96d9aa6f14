package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lukman83/kidkazz-catalog/internal/models"
	"github.com/lukman83/kidkazz-catalog/internal/store"
	"github.com/lukman83/kidkazz-catalog/internal/ui"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [product-id]",
	Short: "Resolve the image of one product without saving it",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

var showCmd = &cobra.Command{
	Use:   "show [product-id]",
	Short: "Show a stored product",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var updateCmd = &cobra.Command{
	Use:   "update [product-id...]",
	Short: "Refresh price and availability of stored products",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUpdate,
}

var statsCmd = &cobra.Command{
	Use:   "stats [query]",
	Short: "Price statistics and rating distribution of stored products",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStats,
}

func init() {
	for _, c := range []*cobra.Command{resolveCmd, showCmd, updateCmd, statsCmd} {
		c.Flags().String("format", "table", "Output format: json, table")
		rootCmd.AddCommand(c)
	}
	statsCmd.Flags().Bool("all-platforms", false, "Ignore --platform and aggregate every platform")
}

func runResolve(cmd *cobra.Command, args []string) error {
	a, err := newApp(commandContext(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	spin := ui.NewSpinner()
	spin.Start(fmt.Sprintf("Resolving image for %s...", args[0]))
	outcome, err := a.pipeline.ResolveImage(commandContext(cmd), args[0], platformFlag(cmd))
	spin.Stop()
	if err != nil {
		return err
	}
	if format, _ := cmd.Flags().GetString("format"); format == "json" {
		return writeJSON(os.Stdout, outcome)
	}
	printOutcome(os.Stdout, args[0], outcome)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(commandContext(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.pipeline.Show(commandContext(cmd), args[0], platformFlag(cmd))
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("product %s is not stored on %s; run search first", args[0], platformFlag(cmd))
	}
	if err != nil {
		return err
	}
	if format, _ := cmd.Flags().GetString("format"); format == "json" {
		return writeJSON(os.Stdout, rec)
	}
	printRecordDetail(os.Stdout, rec)
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	a, err := newApp(commandContext(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	spin := ui.NewSpinner()
	spin.Start("Refreshing products...")
	var (
		updated []models.ProductRecord
		errs    []error
	)
	for i, id := range args {
		spin.Update(fmt.Sprintf("Refreshing %s (%d/%d)...", id, i+1, len(args)))
		rec, err := a.pipeline.Refresh(ctx, id, platformFlag(cmd))
		if err != nil {
			errs = append(errs, fmt.Errorf("update %s: %w", id, err))
			continue
		}
		updated = append(updated, rec)
	}
	spin.Stop()

	if format, _ := cmd.Flags().GetString("format"); format == "json" {
		if err := writeJSON(os.Stdout, updated); err != nil {
			return err
		}
	} else if len(updated) > 0 {
		printRecordsTable(os.Stdout, updated)
	}
	return errors.Join(errs...)
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := newApp(commandContext(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	f := store.Filter{Platform: platformFlag(cmd)}
	if all, _ := cmd.Flags().GetBool("all-platforms"); all {
		f.Platform = ""
	}
	if len(args) == 1 {
		f.SearchQuery = args[0]
	}
	stats, err := a.pipeline.Stats(commandContext(cmd), f)
	if err != nil {
		return err
	}
	if format, _ := cmd.Flags().GetString("format"); format == "json" {
		return writeJSON(os.Stdout, stats)
	}
	printStats(os.Stdout, stats)
	return nil
}
