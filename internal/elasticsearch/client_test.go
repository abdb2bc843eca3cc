package elasticsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mfenderov/protokb/internal/apperr"
	"github.com/mfenderov/protokb/pkg/models"
)

// fakeES answers like an Elasticsearch node; the client refuses responses
// without the product header.
func fakeES(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := New(Config{Addresses: []string{srv.URL}, Index: "protokb-test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func sampleDocument() *models.ParsedDocument {
	return &models.ParsedDocument{
		Metadata: models.DocumentMetadata{
			ID:           "file-1",
			Name:         "Protocollo CDS.docx",
			Type:         models.TypeWordDoc,
			Size:         2048,
			ModifiedTime: "2026-10-01T08:00:00Z",
		},
		Content:     "Dosaggio CDS: tre gocce al giorno.",
		Sections:    []string{"Dosaggio CDS: tre gocce al giorno."},
		Keywords:    []string{"dosaggio", "cds", "gocce"},
		Summary:     "Document: Protocollo CDS.docx",
		ProcessedAt: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
	}
}

func TestNew_RequiresIndex(t *testing.T) {
	var cfgErr *apperr.ConfigurationError
	if _, err := New(Config{Addresses: []string{"http://localhost:9200"}}); !errors.As(err, &cfgErr) {
		t.Errorf("New() error = %v, want ConfigurationError", err)
	}
}

func TestIndexDocument_Request(t *testing.T) {
	var body indexedDocument
	var method, path string
	client := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"result":"created"}`)
	})

	if err := client.IndexDocument(context.Background(), sampleDocument()); err != nil {
		t.Fatalf("IndexDocument() error = %v", err)
	}

	if method != http.MethodPut || path != "/protokb-test/_doc/file-1" {
		t.Errorf("request = %s %s", method, path)
	}
	if body.Name != "Protocollo CDS.docx" || body.Type != "word-doc" || len(body.Keywords) != 3 {
		t.Errorf("indexed body = %+v", body)
	}
}

func TestIndexDocument_RemoteError(t *testing.T) {
	client := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"type":"mapper_parsing_exception"}}`)
	})

	err := client.IndexDocument(context.Background(), sampleDocument())
	var remote *apperr.RemoteServiceError
	if !errors.As(err, &remote) || remote.StatusCode != http.StatusBadRequest {
		t.Errorf("IndexDocument() error = %v, want RemoteServiceError 400", err)
	}
}

func TestSearch_ParsesHits(t *testing.T) {
	var query map[string]any
	client := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/_search") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&query)
		fmt.Fprint(w, `{"hits":{"hits":[
			{"_score":4.2,"_source":{"id":"file-1","name":"Protocollo CDS.docx","summary":"s"},
			 "highlight":{"content":["<em>Dosaggio</em> CDS"]}}
		]}}`)
	})

	hits, err := client.Search(context.Background(), "dosaggio", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(hits) != 1 {
		t.Fatalf("Search() returned %d hits", len(hits))
	}
	h := hits[0]
	if h.Document.ID != "file-1" || h.Score != 4.2 || len(h.Highlights) != 1 {
		t.Errorf("hit = %+v", h)
	}
	if query["size"] != float64(5) {
		t.Errorf("size = %v, want 5", query["size"])
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	client := fakeES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"found":false}`)
	})

	if _, err := client.GetDocument(context.Background(), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetDocument() error = %v, want ErrNotFound", err)
	}
}

func skipIfNoES(t *testing.T) {
	if os.Getenv("SKIP_ES_TESTS") == "1" {
		t.Skip("Skipping ES tests (SKIP_ES_TESTS=1)")
	}

	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     "test-skip-check",
	})
	if err != nil {
		t.Skipf("Skipping ES tests: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !client.Ping(ctx) {
		t.Skip("Skipping ES tests: Elasticsearch not available")
	}
}

func TestIntegration_CreateIndexIdempotent(t *testing.T) {
	skipIfNoES(t)

	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     "protokb-test-create",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	client.DeleteIndex(ctx)
	defer client.DeleteIndex(ctx)

	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() second call error = %v", err)
	}
}

func TestIntegration_IndexSearchGet(t *testing.T) {
	skipIfNoES(t)

	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     "protokb-test-search",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	client.DeleteIndex(ctx)
	defer client.DeleteIndex(ctx)
	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}

	other := sampleDocument()
	other.Metadata.ID = "file-2"
	other.Metadata.Name = "Magnesio.docx"
	other.Content = "Il magnesio si assume la sera."
	other.Keywords = []string{"magnesio"}

	for _, doc := range []*models.ParsedDocument{sampleDocument(), other} {
		if err := client.IndexDocument(ctx, doc); err != nil {
			t.Fatalf("IndexDocument() error = %v", err)
		}
	}
	if err := client.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	hits, err := client.Search(ctx, "magnesio", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) == 0 || hits[0].Document.ID != "file-2" {
		t.Errorf("Search('magnesio') = %+v, want file-2 first", hits)
	}

	got, err := client.GetDocument(ctx, "file-1")
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if got.Content != sampleDocument().Content || got.Metadata.Type != models.TypeWordDoc {
		t.Errorf("GetDocument() = %+v", got)
	}
}
