package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/mfenderov/protokb/internal/apperr"
	"github.com/mfenderov/protokb/pkg/models"
)

// ErrQueryTooShort is returned for queries under MinQueryLen characters.
var ErrQueryTooShort = fmt.Errorf("query must be at least %d characters: %w", MinQueryLen, apperr.ErrInvalidInput)

// Lister enumerates the remote folder.
type Lister interface {
	ListFiles(ctx context.Context, folderID string, types []models.DeclaredType) ([]models.DocumentMetadata, error)
}

// Documents resolves metadata to parsed documents, using the cache first.
type Documents interface {
	Ensure(ctx context.Context, meta models.DocumentMetadata) (*models.ParsedDocument, error)
	Lookup(id string) (*models.ParsedDocument, bool)
	Cached() []*models.ParsedDocument
}

// Service searches the configured folder.
type Service struct {
	lister      Lister
	docs        Documents
	folderID    string
	types       []models.DeclaredType
	concurrency int
}

// NewService creates a Service. concurrency bounds parallel extraction of
// uncached documents.
func NewService(lister Lister, docs Documents, folderID string, types []models.DeclaredType, concurrency int) *Service {
	if concurrency <= 0 {
		concurrency = 1
	}
	if len(types) == 0 {
		types = models.SupportedTypes
	}
	return &Service{
		lister:      lister,
		docs:        docs,
		folderID:    folderID,
		types:       types,
		concurrency: concurrency,
	}
}

// CachedResult is the answer of a cache-only search.
type CachedResult struct {
	Results         []models.SearchResult `json:"results"`
	TotalFound      int                   `json:"totalFound"`
	CachedDocuments int                   `json:"cachedDocuments"`
}

// Search lists the folder, parses every listed document not yet cached and
// returns the top results. Documents that fail to process are skipped.
func (s *Service) Search(ctx context.Context, query string) ([]models.SearchResult, error) {
	if utf8.RuneCountInString(strings.TrimSpace(query)) < MinQueryLen {
		return nil, ErrQueryTooShort
	}

	files, err := s.lister.ListFiles(ctx, s.folderID, s.types)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	parsed := make([]*models.ParsedDocument, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, meta := range files {
		g.Go(func() error {
			doc, err := s.docs.Ensure(gctx, meta)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Warn("skipping document", "id", meta.ID, "name", meta.Name, "error", err)
				return nil
			}
			parsed[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("process documents: %w", err)
	}

	docs := parsed[:0]
	for _, d := range parsed {
		if d != nil {
			docs = append(docs, d)
		}
	}

	results := Rank(query, docs)
	slog.Info("search complete", "query", query, "candidates", len(files), "results", len(results))
	return results, nil
}

// SearchCached ranks already-cached documents only. When ids is non-empty
// only those documents are considered.
func (s *Service) SearchCached(query string, ids []string) (CachedResult, error) {
	if utf8.RuneCountInString(strings.TrimSpace(query)) < MinQueryLen {
		return CachedResult{}, ErrQueryTooShort
	}

	var docs []*models.ParsedDocument
	if len(ids) == 0 {
		docs = s.docs.Cached()
	} else {
		for _, id := range ids {
			if d, ok := s.docs.Lookup(id); ok {
				docs = append(docs, d)
			}
		}
	}

	all := RankAll(query, docs)
	results := all
	if len(results) > MaxResults {
		results = results[:MaxResults]
	}
	return CachedResult{
		Results:         results,
		TotalFound:      len(all),
		CachedDocuments: len(docs),
	}, nil
}
