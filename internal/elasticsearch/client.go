// Package elasticsearch mirrors parsed documents into an Elasticsearch index
// for full-text search beyond the in-memory cache.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/mfenderov/protokb/internal/apperr"
	"github.com/mfenderov/protokb/pkg/models"
)

// Config holds Elasticsearch client configuration.
type Config struct {
	Addresses []string
	Index     string
	Username  string
	Password  string
	Transport http.RoundTripper // optional, for tests
}

// Client wraps the Elasticsearch client with document index operations.
type Client struct {
	es    *elasticsearch.Client
	index string
}

// New creates a new Elasticsearch client.
func New(config Config) (*Client, error) {
	if config.Index == "" {
		return nil, apperr.Missing("elasticsearch.index")
	}
	cfg := elasticsearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
		Transport: config.Transport,
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}

	return &Client{
		es:    es,
		index: config.Index,
	}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) bool {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return !res.IsError()
}

// indexMapping defines the ES index mapping for parsed documents. Content is
// mostly Italian.
var indexMapping = `{
	"mappings": {
		"properties": {
			"id": { "type": "keyword" },
			"name": { "type": "text", "fields": { "raw": { "type": "keyword" } } },
			"type": { "type": "keyword" },
			"size": { "type": "long" },
			"modified_time": { "type": "date" },
			"web_view_link": { "type": "keyword", "index": false },
			"content": { "type": "text", "analyzer": "italian" },
			"sections": { "type": "text", "analyzer": "italian" },
			"keywords": { "type": "keyword" },
			"summary": { "type": "text", "analyzer": "italian" },
			"processed_at": { "type": "date" }
		}
	}
}`

// indexedDocument is the stored form of a parsed document.
type indexedDocument struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Size         int64     `json:"size"`
	ModifiedTime string    `json:"modified_time,omitempty"`
	WebViewLink  string    `json:"web_view_link,omitempty"`
	Content      string    `json:"content"`
	Sections     []string  `json:"sections"`
	Keywords     []string  `json:"keywords"`
	Summary      string    `json:"summary"`
	ProcessedAt  time.Time `json:"processed_at"`
}

func toIndexed(doc *models.ParsedDocument) indexedDocument {
	return indexedDocument{
		ID:           doc.Metadata.ID,
		Name:         doc.Metadata.Name,
		Type:         string(doc.Metadata.Type),
		Size:         doc.Metadata.Size,
		ModifiedTime: doc.Metadata.ModifiedTime,
		WebViewLink:  doc.Metadata.WebViewLink,
		Content:      doc.Content,
		Sections:     doc.Sections,
		Keywords:     doc.Keywords,
		Summary:      doc.Summary,
		ProcessedAt:  doc.ProcessedAt,
	}
}

func (d indexedDocument) parsed() *models.ParsedDocument {
	return &models.ParsedDocument{
		Metadata: models.DocumentMetadata{
			ID:           d.ID,
			Name:         d.Name,
			Type:         models.DeclaredType(d.Type),
			Size:         d.Size,
			ModifiedTime: d.ModifiedTime,
			WebViewLink:  d.WebViewLink,
		},
		Content:     d.Content,
		Sections:    d.Sections,
		Keywords:    d.Keywords,
		Summary:     d.Summary,
		ProcessedAt: d.ProcessedAt,
	}
}

// CreateIndex creates the index with proper mapping.
func (c *Client) CreateIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader([]byte(indexMapping))),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return remoteError(res)
	}

	return nil
}

// DeleteIndex removes the index (for testing/cleanup).
func (c *Client) DeleteIndex(ctx context.Context) error {
	res, err := c.es.Indices.Delete([]string{c.index}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// IndexDocument stores a parsed document under its remote file id,
// replacing any earlier revision.
func (c *Client) IndexDocument(ctx context.Context, doc *models.ParsedDocument) error {
	data, err := json.Marshal(toIndexed(doc))
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	res, err := c.es.Index(
		c.index,
		bytes.NewReader(data),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(doc.Metadata.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return remoteError(res)
	}

	return nil
}

// Refresh makes recent writes searchable.
func (c *Client) Refresh(ctx context.Context) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(c.index),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// Hit is a search match with its BM25 score and highlighted fragments.
type Hit struct {
	Document   models.DocumentRef `json:"document"`
	Score      float64            `json:"score"`
	Summary    string             `json:"summary,omitempty"`
	Highlights []string           `json:"highlights,omitempty"`
}

// searchResponse represents ES search response structure.
type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score     float64             `json:"_score"`
			Source    indexedDocument     `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search performs a BM25 text search on name, content, keywords and summary.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	searchQuery := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  query,
				"fields": []string{"name^3", "keywords^2", "summary", "content"},
			},
		},
		"highlight": map[string]any{
			"fields": map[string]any{
				"content": map[string]any{"fragment_size": 300, "number_of_fragments": 3},
			},
		},
		"_source": map[string]any{"excludes": []string{"content", "sections"}},
		"size":    limit,
	}

	data, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, remoteError(res)
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	hits := make([]Hit, len(sr.Hits.Hits))
	for i, h := range sr.Hits.Hits {
		hits[i] = Hit{
			Document:   models.DocumentRef{ID: h.Source.ID, Name: h.Source.Name},
			Score:      h.Score,
			Summary:    h.Source.Summary,
			Highlights: h.Highlight["content"],
		}
	}

	return hits, nil
}

// getResponse represents ES get response structure.
type getResponse struct {
	Found  bool            `json:"found"`
	Source indexedDocument `json:"_source"`
}

// GetDocument retrieves a document by ID. A missing document is
// apperr.ErrNotFound.
func (c *Client) GetDocument(ctx context.Context, id string) (*models.ParsedDocument, error) {
	res, err := c.es.Get(
		c.index,
		id,
		c.es.Get.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("document %s: %w", id, apperr.ErrNotFound)
	}

	if res.IsError() {
		return nil, remoteError(res)
	}

	var gr getResponse
	if err := json.NewDecoder(res.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if !gr.Found {
		return nil, fmt.Errorf("document %s: %w", id, apperr.ErrNotFound)
	}

	return gr.Source.parsed(), nil
}

func remoteError(res *esapi.Response) error {
	return &apperr.RemoteServiceError{
		Service:    "elasticsearch",
		StatusCode: res.StatusCode,
		Message:    res.String(),
	}
}
