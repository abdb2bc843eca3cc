package tabular

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/mfenderov/protokb/internal/apperr"
	"github.com/mfenderov/protokb/internal/cache"
	"github.com/mfenderov/protokb/pkg/models"
)

// Tables names the Airtable tables of the catalog.
type Tables struct {
	Protocols  string
	Substances string
	Symptoms   string
}

// RecordLister fetches raw records of a table.
type RecordLister interface {
	ListRecords(ctx context.Context, table string) ([]Record, error)
}

// Catalog serves typed catalog records with a short-lived cache per table.
type Catalog struct {
	client     RecordLister
	tables     Tables
	protocols  *cache.Cache[[]models.Protocol]
	substances *cache.Cache[[]models.Substance]
	symptoms   *cache.Cache[[]models.Symptom]
}

// NewCatalog creates a Catalog. A nil clock uses the wall clock.
func NewCatalog(client RecordLister, tables Tables, clock cache.Clock) *Catalog {
	return &Catalog{
		client:     client,
		tables:     tables,
		protocols:  cache.New[[]models.Protocol](cache.RecordTTL, clock),
		substances: cache.New[[]models.Substance](cache.RecordTTL, clock),
		symptoms:   cache.New[[]models.Symptom](cache.RecordTTL, clock),
	}
}

// Protocols returns every mappable protocol record.
func (c *Catalog) Protocols(ctx context.Context) ([]models.Protocol, error) {
	return load(ctx, c.client, c.protocols, c.tables.Protocols, MapProtocol)
}

// Substances returns every mappable substance record.
func (c *Catalog) Substances(ctx context.Context) ([]models.Substance, error) {
	return load(ctx, c.client, c.substances, c.tables.Substances, MapSubstance)
}

// Symptoms returns every mappable symptom record.
func (c *Catalog) Symptoms(ctx context.Context) ([]models.Symptom, error) {
	return load(ctx, c.client, c.symptoms, c.tables.Symptoms, MapSymptom)
}

// Invalidate drops every cached table.
func (c *Catalog) Invalidate() {
	c.protocols.Clear()
	c.substances.Clear()
	c.symptoms.Clear()
}

func load[T any](
	ctx context.Context,
	client RecordLister,
	cc *cache.Cache[[]T],
	table string,
	mapFn func(string, Record) (T, error),
) ([]T, error) {
	if table == "" {
		return nil, apperr.Missing("airtable.tables")
	}
	if items, ok := cc.Get(table); ok {
		return items, nil
	}

	records, err := client.ListRecords(ctx, table)
	if err != nil {
		return nil, err
	}

	items := make([]T, 0, len(records))
	for _, rec := range records {
		item, err := mapFn(table, rec)
		if err != nil {
			var mapErr *apperr.MappingError
			if !errors.As(err, &mapErr) {
				return nil, fmt.Errorf("map %s: %w", table, err)
			}
			slog.Warn("skipping unmappable record", "table", table, "record", rec.ID, "error", err)
			continue
		}
		items = append(items, item)
	}

	cc.Set(table, items)
	slog.Debug("loaded table", "table", table, "records", len(records), "mapped", len(items))
	return items, nil
}

// FindProtocols returns protocols whose name, substances or symptoms match q.
func (c *Catalog) FindProtocols(ctx context.Context, q string) ([]models.Protocol, error) {
	all, err := c.Protocols(ctx)
	if err != nil {
		return nil, err
	}
	return fuzzyFilter(all, q, func(p models.Protocol) []string {
		return append(append([]string{p.Name}, p.Substances...), p.Symptoms...)
	}), nil
}

// FindSubstances returns substances whose name, category or tags match q.
func (c *Catalog) FindSubstances(ctx context.Context, q string) ([]models.Substance, error) {
	all, err := c.Substances(ctx)
	if err != nil {
		return nil, err
	}
	return fuzzyFilter(all, q, func(s models.Substance) []string {
		return append([]string{s.Name, s.Category}, s.Tags...)
	}), nil
}

// FindSymptoms returns symptoms whose name matches q.
func (c *Catalog) FindSymptoms(ctx context.Context, q string) ([]models.Symptom, error) {
	all, err := c.Symptoms(ctx)
	if err != nil {
		return nil, err
	}
	return fuzzyFilter(all, q, func(s models.Symptom) []string {
		return []string{s.Name}
	}), nil
}

// fuzzyFilter keeps items with a candidate close to q, best first. An empty
// query keeps everything in the original order.
func fuzzyFilter[T any](items []T, q string, candidates func(T) []string) []T {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return items
	}

	type ranked struct {
		item T
		dist int
	}
	var hits []ranked
	for _, item := range items {
		best := -1
		for _, c := range candidates(item) {
			if d, ok := Distance(q, c); ok && (best < 0 || d < best) {
				best = d
			}
		}
		if best >= 0 {
			hits = append(hits, ranked{item, best})
		}
	}

	slices.SortStableFunc(hits, func(a, b ranked) int { return cmp.Compare(a.dist, b.dist) })
	out := make([]T, len(hits))
	for i, h := range hits {
		out[i] = h.item
	}
	return out
}

// Distance reports how close query is to candidate. Substring matches are
// distance 0; otherwise the smallest edit distance between query and any
// word of candidate is used, accepted when within a third of the query
// length.
func Distance(query, candidate string) (int, bool) {
	query = strings.ToLower(strings.TrimSpace(query))
	candidate = strings.ToLower(candidate)
	if query == "" || candidate == "" {
		return 0, false
	}
	if strings.Contains(candidate, query) {
		return 0, true
	}

	limit := max(1, len([]rune(query))/3)
	best := -1
	for _, w := range append(strings.Fields(candidate), candidate) {
		d := levenshtein.Distance(query, w, nil)
		if best < 0 || d < best {
			best = d
		}
	}
	return best, best <= limit
}
