package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mfenderov/protokb/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Start the MCP server for document and catalog retrieval.

The server communicates via stdio and provides these tools:
  - search_documents: Search the Drive folder by keywords
  - get_document: Get a parsed document by ID
  - find_protocols: Find protocols (needs an Airtable base)
  - find_substances: Find substances (needs an Airtable base)

Example:
  protokb mcp`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	go a.engine.RunJanitor(ctx, cfg.Ingestion.JanitorInterval)

	var catalog mcp.Catalog
	if a.catalog != nil {
		catalog = a.catalog
	}

	server, err := mcp.NewServer(mcp.Config{
		Name:    cfg.MCP.Name,
		Version: cfg.MCP.Version,
	}, a.search, a.engine, catalog)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "Starting MCP server...")

	return server.ServeStdio()
}
