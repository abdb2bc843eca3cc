package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Extract every document of the Drive folder",
	Long: `Download and extract every supported document of the configured Drive
folder. With elasticsearch.enabled the parsed documents are indexed too, so
"protokb search --index" can query them later.

Example:
  PROTOKB_ELASTICSEARCH_ENABLED=true protokb ingest`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	slog.Debug("ingest command starting", "folder", cfg.Drive.FolderID)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Ingesting folder: %s\n", cfg.Drive.FolderID)

	result, err := a.engine.IngestFolder(ctx)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("\nIngestion complete:\n")
	fmt.Printf("  Docs listed:    %d\n", result.DocsListed)
	fmt.Printf("  Docs processed: %d\n", result.DocsProcessed)
	fmt.Printf("  Docs cached:    %d\n", result.DocsCached)
	fmt.Printf("  Duration: %v\n", result.Duration)

	if len(result.Errors) > 0 {
		fmt.Printf("  Warnings: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}

	return nil
}
