package events

import (
	"log/slog"
	"time"
)

// DocumentProcessedEvent is logged when one document has been downloaded,
// extracted and cached, or has failed.
type DocumentProcessedEvent struct {
	TaskID     string        // Task handle id
	DocumentID string        // Drive file id
	Name       string        // Display name
	Keywords   int           // Number of keywords extracted
	Duration   time.Duration // Download plus extraction time
	Err        error         // Non-nil when processing failed
}

func (e DocumentProcessedEvent) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("task", e.TaskID),
		slog.String("document", e.DocumentID),
		slog.String("name", e.Name),
		slog.Int("keywords", e.Keywords),
		slog.Duration("duration", e.Duration),
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	return slog.GroupValue(attrs...)
}

// BatchCompleteEvent is logged once every task started by a pre-warm batch
// has settled. Nothing is reported back to the caller that requested it.
type BatchCompleteEvent struct {
	BatchID   string
	Requested int // Documents in the request
	Started   int // Tasks started by this batch
	Cached    int // Already cached, skipped
	InFlight  int // Already processing, dropped
	Succeeded int
	Failed    int
	Duration  time.Duration
}

func (e BatchCompleteEvent) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("batch", e.BatchID),
		slog.Int("requested", e.Requested),
		slog.Int("started", e.Started),
		slog.Int("cached", e.Cached),
		slog.Int("in_flight", e.InFlight),
		slog.Int("succeeded", e.Succeeded),
		slog.Int("failed", e.Failed),
		slog.Duration("duration", e.Duration),
	)
}

// IngestionCompleteEvent is logged when a full folder ingest finishes.
type IngestionCompleteEvent struct {
	FolderID      string        // Drive folder that was ingested
	DocsListed    int           // Files returned by the listing
	DocsProcessed int           // Files parsed by this run
	DocsCached    int           // Files already cached
	Duration      time.Duration // How long ingestion took
	Errors        []string      // Any errors encountered (non-fatal)
}

func (e IngestionCompleteEvent) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("folder", e.FolderID),
		slog.Int("listed", e.DocsListed),
		slog.Int("processed", e.DocsProcessed),
		slog.Int("cached", e.DocsCached),
		slog.Duration("duration", e.Duration),
		slog.Int("errors", len(e.Errors)),
	)
}
