// Package mcp exposes document search and the protocol catalog as MCP
// tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mfenderov/protokb/internal/apperr"
	"github.com/mfenderov/protokb/internal/ingestion"
	"github.com/mfenderov/protokb/internal/search"
	"github.com/mfenderov/protokb/pkg/models"
)

// getTimeout bounds how long get_document waits for an uncached document.
const getTimeout = 60 * time.Second

// Searcher ranks the documents of the remote folder.
type Searcher interface {
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
}

// Documents resolves a document id to its parsed form.
type Documents interface {
	Lookup(id string) (*models.ParsedDocument, bool)
	Submit(ref models.DocumentRef) (*ingestion.Task, bool)
}

// Catalog looks up protocol and substance records.
type Catalog interface {
	FindProtocols(ctx context.Context, q string) ([]models.Protocol, error)
	FindSubstances(ctx context.Context, q string) ([]models.Substance, error)
}

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
}

// Server wraps the MCP server with document and catalog tools.
type Server struct {
	mcpServer *server.MCPServer
	search    Searcher
	docs      Documents
	catalog   Catalog
}

// NewServer creates a new MCP server. catalog may be nil, in which case the
// catalog tools are not registered.
func NewServer(config Config, searcher Searcher, docs Documents, catalog Catalog) (*Server, error) {
	if searcher == nil || docs == nil {
		return nil, fmt.Errorf("search and documents are required")
	}

	mcpServer := server.NewMCPServer(
		config.Name,
		config.Version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcpServer: mcpServer,
		search:    searcher,
		docs:      docs,
		catalog:   catalog,
	}

	searchTool := mcp.NewTool("search_documents",
		mcp.WithDescription("Search the protocol documents folder by keywords. Returns ranked documents with the sections that mention the query."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query, at least 3 characters (e.g. \"cds dosaggio\")"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return (default: 10)"),
		),
	)
	mcpServer.AddTool(searchTool, s.searchHandler)

	getDocTool := mcp.NewTool("get_document",
		mcp.WithDescription("Get the extracted text, sections and keywords of a document by ID"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Document ID to retrieve"),
		),
	)
	mcpServer.AddTool(getDocTool, s.getDocumentHandler)

	if catalog != nil {
		protocolsTool := mcp.NewTool("find_protocols",
			mcp.WithDescription("Find wellness protocols by name, substance or symptom. Tolerates small misspellings."),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Protocol, substance or symptom name"),
			),
		)
		mcpServer.AddTool(protocolsTool, s.findProtocolsHandler)

		substancesTool := mcp.NewTool("find_substances",
			mcp.WithDescription("Find substances by name, category or tag, with dosage and warnings"),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Substance name, category or tag"),
			),
		)
		mcpServer.AddTool(substancesTool, s.findSubstancesHandler)
	}

	return s, nil
}

// searchHandler handles the search_documents tool call.
func (s *Server) searchHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	limit := req.GetInt("limit", search.MaxResults)

	results, err := s.search.Search(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return jsonResult(results)
}

// getDocumentHandler handles the get_document tool call. Uncached documents
// are processed and awaited.
func (s *Server) getDocumentHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}

	doc, err := s.getDocument(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("document not found: %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get document failed: %v", err)), nil
	}

	return jsonResult(doc)
}

func (s *Server) getDocument(ctx context.Context, id string) (*models.ParsedDocument, error) {
	if doc, ok := s.docs.Lookup(id); ok {
		return doc, nil
	}

	ctx, cancel := context.WithTimeout(ctx, getTimeout)
	defer cancel()

	task, _ := s.docs.Submit(models.DocumentRef{ID: id})
	doc, err := task.Wait(ctx)
	if err != nil {
		if apperr.Map(err).Code == http.StatusNotFound {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

// findProtocolsHandler handles the find_protocols tool call.
func (s *Server) findProtocolsHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	protocols, err := s.catalog.FindProtocols(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("find protocols failed: %v", err)), nil
	}
	return jsonResult(protocols)
}

// findSubstancesHandler handles the find_substances tool call.
func (s *Server) findSubstancesHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query parameter is required"), nil
	}
	substances, err := s.catalog.FindSubstances(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("find substances failed: %v", err)), nil
	}
	return jsonResult(substances)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(result)), nil
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
