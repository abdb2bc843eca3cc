package ingestion

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mfenderov/protokb/internal/cache"
	"github.com/mfenderov/protokb/internal/events"
	"github.com/mfenderov/protokb/internal/keywords"
	"github.com/mfenderov/protokb/pkg/models"
)

// finishedTaskTTL is how long a settled task stays visible to pollers.
const finishedTaskTTL = 10 * time.Minute

// Source is the remote store documents come from.
type Source interface {
	ListFiles(ctx context.Context, folderID string, types []models.DeclaredType) ([]models.DocumentMetadata, error)
	GetFile(ctx context.Context, id string) (models.DocumentMetadata, error)
	Download(ctx context.Context, id string, typ models.DeclaredType) ([]byte, error)
}

// Extractor turns file bytes into text.
type Extractor interface {
	Extract(data []byte, typ models.DeclaredType) string
}

// Indexer receives every parsed document. Failures are logged only.
type Indexer interface {
	IndexDocument(ctx context.Context, doc *models.ParsedDocument) error
}

// refresher is implemented by indexers that batch writes.
type refresher interface {
	Refresh(ctx context.Context) error
}

// Config holds ingestion engine configuration.
type Config struct {
	FolderID    string
	Types       []models.DeclaredType
	Concurrency int
	DocumentTTL time.Duration
}

// Result holds the outcome of a folder ingest.
type Result struct {
	FolderID      string
	DocsListed    int
	DocsProcessed int
	DocsCached    int
	Duration      time.Duration
	Errors        []string
}

// WarmResult reports what a pre-warm request did.
type WarmResult struct {
	Queued   int     // Tasks started
	Cached   int     // Already cached
	InFlight int     // Already processing; not started again
	Tasks    []*Task // Handles for every document not yet cached
}

// Option configures an Engine.
type Option func(*Engine)

// WithIndexer mirrors parsed documents to idx.
func WithIndexer(idx Indexer) Option {
	return func(e *Engine) { e.indexer = idx }
}

// WithClock sets the clock used by the caches.
func WithClock(c cache.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// Engine downloads, extracts and caches documents. At most one task runs per
// document id; callers asking for an in-flight document share its Task.
type Engine struct {
	cfg       Config
	source    Source
	extractor Extractor
	indexer   Indexer
	clock     cache.Clock

	docs     *cache.Cache[*models.ParsedDocument] // by id@modifiedTime
	byID     *cache.Cache[*models.ParsedDocument]
	finished *cache.Cache[*Task]

	mu       sync.Mutex
	inFlight map[string]*Task

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new ingestion engine.
func New(source Source, extractor Extractor, cfg Config, opts ...Option) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.DocumentTTL <= 0 {
		cfg.DocumentTTL = cache.DocumentTTL
	}
	if len(cfg.Types) == 0 {
		cfg.Types = models.SupportedTypes
	}

	e := &Engine{
		cfg:       cfg,
		source:    source,
		extractor: extractor,
		clock:     cache.SystemClock,
		inFlight:  make(map[string]*Task),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.docs = cache.New[*models.ParsedDocument](cfg.DocumentTTL, e.clock)
	e.byID = cache.New[*models.ParsedDocument](cfg.DocumentTTL, e.clock)
	e.finished = cache.New[*Task](finishedTaskTTL, e.clock)
	e.base, e.cancel = context.WithCancel(context.Background())
	return e
}

// Close cancels running tasks and waits for them to settle.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

// RunJanitor sweeps expired cache entries every interval until ctx is done.
func (e *Engine) RunJanitor(ctx context.Context, interval time.Duration) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); e.docs.RunJanitor(ctx, "documents", interval) }()
	go func() { defer wg.Done(); e.byID.RunJanitor(ctx, "documents_by_id", interval) }()
	go func() { defer wg.Done(); e.finished.RunJanitor(ctx, "tasks", interval) }()
	wg.Wait()
}

// Ensure returns the parsed document for meta, processing it if it is not
// cached. A concurrent caller for the same id waits on the same task. When
// that task turns out to be for another revision of the file, meta's
// revision is processed once it has settled.
func (e *Engine) Ensure(ctx context.Context, meta models.DocumentMetadata) (*models.ParsedDocument, error) {
	if doc, ok := e.docs.Get(meta.CacheKey()); ok {
		return doc, nil
	}
	task, _ := e.start(meta, false)
	doc, err := task.Wait(ctx)
	if err != nil || meta.ModifiedTime == "" || doc.Metadata.ModifiedTime == meta.ModifiedTime {
		return doc, err
	}

	slog.Debug("joined task for another revision, reprocessing",
		"document", meta.ID, "want", meta.ModifiedTime, "got", doc.Metadata.ModifiedTime)
	task, _ = e.start(meta, false)
	return task.Wait(ctx)
}

// Submit starts background processing of ref and returns its task. When the
// document is already in flight the existing task is returned and started
// is false.
func (e *Engine) Submit(ref models.DocumentRef) (task *Task, started bool) {
	meta := models.DocumentMetadata{
		ID:   ref.ID,
		Name: ref.Name,
		Type: models.DeclaredTypeFromName(ref.Name),
	}
	return e.start(meta, true)
}

// Warm submits every ref not yet cached without waiting. Once all tasks it
// started have settled a BatchCompleteEvent is logged.
func (e *Engine) Warm(refs []models.DocumentRef) WarmResult {
	var (
		res     WarmResult
		started []*Task
		begin   = e.clock.Now()
	)
	for _, ref := range refs {
		if _, ok := e.byID.Get(ref.ID); ok {
			res.Cached++
			continue
		}
		task, ok := e.Submit(ref)
		res.Tasks = append(res.Tasks, task)
		switch {
		case ok:
			res.Queued++
			started = append(started, task)
		case task.Status() == StatusProcessing:
			res.InFlight++
			slog.Info("document already processing, skipped", "document", ref.ID, "task", task.ID)
		default:
			res.Cached++
		}
	}

	ev := events.BatchCompleteEvent{
		BatchID:   uuid.NewString(),
		Requested: len(refs),
		Started:   res.Queued,
		Cached:    res.Cached,
		InFlight:  res.InFlight,
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for _, t := range started {
			<-t.Done()
			if t.Err() != nil {
				ev.Failed++
			} else {
				ev.Succeeded++
			}
		}
		ev.Duration = e.clock.Now().Sub(begin)
		slog.Info("batch complete", "event", ev)
	}()
	return res
}

// Lookup returns the cached parsed document for id.
func (e *Engine) Lookup(id string) (*models.ParsedDocument, bool) {
	return e.byID.Get(id)
}

// Cached returns every live parsed document, most recently modified first.
func (e *Engine) Cached() []*models.ParsedDocument {
	docs := e.byID.Values()
	slices.SortFunc(docs, func(a, b *models.ParsedDocument) int {
		if c := cmp.Compare(b.Metadata.ModifiedTime, a.Metadata.ModifiedTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Metadata.ID, b.Metadata.ID)
	})
	return docs
}

// CacheSize returns the number of entries in the document cache.
func (e *Engine) CacheSize() int {
	return e.docs.Size()
}

// Task returns the in-flight or recently settled task for a document id.
func (e *Engine) Task(documentID string) (*Task, bool) {
	e.mu.Lock()
	t, ok := e.inFlight[documentID]
	e.mu.Unlock()
	if ok {
		return t, true
	}
	return e.finished.Get(documentID)
}

// start returns the task for meta, creating one unless the document is in
// flight or already cached. resolve asks the task to fetch full metadata
// from the source first.
func (e *Engine) start(meta models.DocumentMetadata, resolve bool) (*Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.inFlight[meta.ID]; ok {
		return t, false
	}
	if doc, ok := e.cachedLocked(meta, resolve); ok {
		return settledTask(doc, e.clock.Now()), false
	}

	t := newTask(meta.ID, meta.Name, e.clock.Now())
	e.inFlight[meta.ID] = t

	e.wg.Add(1)
	go e.run(t, meta, resolve)
	return t, true
}

// cachedLocked checks the caches while e.mu is held. Tasks populate the
// caches before leaving the in-flight map, so a miss here means no finished
// result exists.
func (e *Engine) cachedLocked(meta models.DocumentMetadata, byIDOnly bool) (*models.ParsedDocument, bool) {
	if byIDOnly || meta.ModifiedTime == "" {
		return e.byID.Get(meta.ID)
	}
	return e.docs.Get(meta.CacheKey())
}

func (e *Engine) run(t *Task, meta models.DocumentMetadata, resolve bool) {
	defer e.wg.Done()

	begin := e.clock.Now()
	doc, err := e.process(e.base, meta, resolve)

	e.mu.Lock()
	e.finished.Set(meta.ID, t)
	delete(e.inFlight, meta.ID)
	e.mu.Unlock()

	t.finish(doc, err, e.clock.Now())

	ev := events.DocumentProcessedEvent{
		TaskID:     t.ID,
		DocumentID: meta.ID,
		Name:       meta.Name,
		Duration:   e.clock.Now().Sub(begin),
		Err:        err,
	}
	if err != nil {
		slog.Warn("document processing failed", "event", ev)
		return
	}
	ev.Keywords = len(doc.Keywords)
	slog.Debug("document processed", "event", ev)
}

func (e *Engine) process(ctx context.Context, meta models.DocumentMetadata, resolve bool) (*models.ParsedDocument, error) {
	if resolve {
		full, err := e.source.GetFile(ctx, meta.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", meta.ID, err)
		}
		meta = full
	}
	if meta.Type == models.TypeUnknown {
		meta.Type = models.DeclaredTypeFromName(meta.Name)
	}

	data, err := e.source.Download(ctx, meta.ID, meta.Type)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", meta.ID, err)
	}

	text := e.extractor.Extract(data, meta.Type)
	doc := &models.ParsedDocument{
		Metadata:    meta,
		Content:     text,
		Sections:    keywords.Sections(text),
		Keywords:    keywords.Extract(text, keywords.DocumentLimit),
		Summary:     keywords.Summary(text, meta.Name),
		ProcessedAt: e.clock.Now(),
	}

	e.docs.Set(meta.CacheKey(), doc)
	e.byID.Set(meta.ID, doc)

	if e.indexer != nil {
		if err := e.indexer.IndexDocument(ctx, doc); err != nil {
			slog.Warn("failed to index document", "document", meta.ID, "error", err)
		}
	}
	return doc, nil
}

// IngestFolder lists the configured folder and processes every document not
// yet cached. Per-document failures are collected in Result.Errors.
func (e *Engine) IngestFolder(ctx context.Context) (*Result, error) {
	begin := time.Now()
	result := &Result{FolderID: e.cfg.FolderID}

	slog.Info("starting ingestion", "folder", e.cfg.FolderID)

	files, err := e.source.ListFiles(ctx, e.cfg.FolderID, e.cfg.Types)
	if err != nil {
		return nil, fmt.Errorf("list folder: %w", err)
	}
	result.DocsListed = len(files)
	slog.Info("found files to ingest", "count", len(files))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, meta := range files {
		if _, ok := e.docs.Get(meta.CacheKey()); ok {
			result.DocsCached++
			continue
		}
		g.Go(func() error {
			_, err := e.Ensure(gctx, meta)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.DocsProcessed++
			case errors.Is(err, context.Canceled) && ctx.Err() != nil:
				return err
			default:
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", meta.Name, err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		result.Errors = append(result.Errors, "context cancelled")
	}

	if r, ok := e.indexer.(refresher); ok {
		if err := r.Refresh(ctx); err != nil {
			slog.Warn("failed to refresh index", "error", err)
		}
	}

	result.Duration = time.Since(begin)
	slog.Info("ingestion complete", "event", events.IngestionCompleteEvent{
		FolderID:      result.FolderID,
		DocsListed:    result.DocsListed,
		DocsProcessed: result.DocsProcessed,
		DocsCached:    result.DocsCached,
		Duration:      result.Duration,
		Errors:        result.Errors,
	})
	return result, nil
}
