package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jjenkins/docregistry/internal/service"
	"github.com/spf13/cobra"
)

var importDryRun bool

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import documents from a legacy CSV export",
	Long: `Import reads a document table in any of the known column layouts and
appends its rows to the configured record store.

Accepted inputs are the canonical export, the older vanban.csv layout with
"File Dropbox" and "NgayBH" columns, and a Google Sheets CSV download with
"Link" and "FileID" columns. Dates are converted to ISO form, legacy upload
prefixes are stripped from attachment refs, and rows already present are
left alone.

Examples:
  # Preview an import without writing anything
  docregistry import vanban.csv --dry-run

  # Move an old CSV register into SQLite
  docregistry import vanban.csv --store sqlite --store-path vanban.db`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Decode and count rows without writing them")
}

func runImport(cmd *cobra.Command, args []string) error {
	// Set up context with cancellation on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	_, st, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	importer := service.NewImporter(st, logger)
	importer.DryRun = importDryRun

	stats, err := importer.Import(ctx, f)
	if stats != nil {
		stats.PrintSummary(cmd.OutOrStdout())
	}
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("import cancelled: %w", err)
		}
		return fmt.Errorf("import failed: %w", err)
	}

	// Exit with error code if there were failures
	if stats.Failed > 0 {
		return fmt.Errorf("%d rows failed to import", stats.Failed)
	}
	return nil
}
