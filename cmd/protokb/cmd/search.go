package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mfenderov/protokb/internal/config"
	"github.com/mfenderov/protokb/internal/elasticsearch"
)

var (
	searchLimit  int
	searchFormat string
	searchIndex  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search protocol documents",
	Long: `Search the documents of the Drive folder by keywords.

By default every listed document is downloaded and extracted, then ranked.
With --index the Elasticsearch index filled by "protokb ingest" is queried
instead.

Examples:
  # Basic search
  protokb search "cds dosaggio"

  # Limit results
  protokb search "magnesio" --limit 5

  # Query the index, JSON output for scripting
  protokb search "vitamina d" --index --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of results")
	searchCmd.Flags().StringVar(&searchFormat, "format", "text", "Output format: text or json")
	searchCmd.Flags().BoolVar(&searchIndex, "index", false, "Search the Elasticsearch index")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	query := args[0]
	cfg, err := GetConfig()
	if err != nil {
		return err
	}

	if searchIndex {
		return searchIndexed(ctx, cfg, query)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.search.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if searchLimit > 0 && len(results) > searchLimit {
		results = results[:searchLimit]
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	if searchFormat == "json" {
		return printJSON(results)
	}

	fmt.Printf("Found %d results:\n\n", len(results))
	for i, r := range results {
		fmt.Printf("─── Result %d ───\n", i+1)
		fmt.Printf("Name:   %s\n", r.Document.Name)
		fmt.Printf("ID:     %s\n", r.Document.ID)
		fmt.Printf("Score:  %d\n", r.MatchScore)
		if r.Document.WebViewLink != "" {
			fmt.Printf("Link:   %s\n", r.Document.WebViewLink)
		}
		for _, s := range r.RelevantSections {
			fmt.Printf("  > %s\n", s)
		}
		fmt.Println()
	}
	return nil
}

func searchIndexed(ctx context.Context, cfg config.Config, query string) error {
	esClient, err := elasticsearch.New(elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Index:     cfg.Elasticsearch.Index,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}

	hits, err := esClient.Search(ctx, query, searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(hits) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	if searchFormat == "json" {
		return printJSON(hits)
	}

	fmt.Printf("Found %d results:\n\n", len(hits))
	for i, h := range hits {
		fmt.Printf("─── Result %d ───\n", i+1)
		fmt.Printf("Name:   %s\n", h.Document.Name)
		fmt.Printf("ID:     %s\n", h.Document.ID)
		fmt.Printf("Score:  %.2f\n", h.Score)
		if h.Summary != "" {
			fmt.Printf("Summary: %s\n", h.Summary)
		}
		for _, hl := range h.Highlights {
			fmt.Printf("  > %s\n", strings.Join(strings.Fields(hl), " "))
		}
		fmt.Println()
	}
	return nil
}

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}
