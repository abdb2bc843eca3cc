package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfenderov/protokb/internal/elasticsearch"
	"github.com/mfenderov/protokb/pkg/models"
)

var (
	documentIndex   bool
	documentTimeout time.Duration
)

var documentCmd = &cobra.Command{
	Use:   "document [id]",
	Short: "Print a parsed document",
	Long: `Download and extract one Drive document and print it as JSON. With
--index the stored copy is read from Elasticsearch instead.

Examples:
  protokb document 1AbCdEf
  protokb document 1AbCdEf --index`,
	Args: cobra.ExactArgs(1),
	RunE: runDocument,
}

func init() {
	rootCmd.AddCommand(documentCmd)

	documentCmd.Flags().BoolVar(&documentIndex, "index", false, "Read the document from the Elasticsearch index")
	documentCmd.Flags().DurationVar(&documentTimeout, "timeout", 2*time.Minute, "Maximum time to wait for extraction")
}

func runDocument(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	id := args[0]
	cfg, err := GetConfig()
	if err != nil {
		return err
	}

	if documentIndex {
		esClient, err := elasticsearch.New(elasticsearch.Config{
			Addresses: cfg.Elasticsearch.Addresses,
			Index:     cfg.Elasticsearch.Index,
			Username:  cfg.Elasticsearch.Username,
			Password:  cfg.Elasticsearch.Password,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to Elasticsearch: %w", err)
		}
		doc, err := esClient.GetDocument(ctx, id)
		if err != nil {
			return fmt.Errorf("get document: %w", err)
		}
		return printJSON(doc)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(ctx, documentTimeout)
	defer cancel()

	task, _ := a.engine.Submit(models.DocumentRef{ID: id})
	doc, err := task.Wait(ctx)
	if err != nil {
		return fmt.Errorf("process document: %w", err)
	}
	return printJSON(doc)
}
