package ingestion

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mfenderov/protokb/pkg/models"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// Task is a handle on the processing of one document. Every caller asking
// for the same in-flight document receives the same Task.
type Task struct {
	ID         string
	DocumentID string
	StartedAt  time.Time

	done chan struct{}

	mu         sync.Mutex
	name       string
	status     Status
	doc        *models.ParsedDocument
	err        error
	finishedAt time.Time
}

func newTask(documentID, name string, now time.Time) *Task {
	return &Task{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		StartedAt:  now,
		done:       make(chan struct{}),
		name:       name,
		status:     StatusProcessing,
	}
}

// settledTask returns a Task that is already done with doc.
func settledTask(doc *models.ParsedDocument, now time.Time) *Task {
	t := newTask(doc.Metadata.ID, doc.Metadata.Name, now)
	t.finish(doc, nil, now)
	return t
}

func (t *Task) finish(doc *models.ParsedDocument, err error, now time.Time) {
	t.mu.Lock()
	t.doc = doc
	t.err = err
	t.finishedAt = now
	if err != nil {
		t.status = StatusFailed
	} else {
		t.status = StatusDone
		t.name = doc.Metadata.Name
	}
	t.mu.Unlock()
	close(t.done)
}

// Done is closed when the task settles.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task settles or ctx is done.
func (t *Task) Wait(ctx context.Context) (*models.ParsedDocument, error) {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.doc, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status returns the current state.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Err returns the processing error once the task has failed.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// TaskInfo is the JSON view of a Task.
type TaskInfo struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"documentId"`
	Name       string     `json:"name,omitempty"`
	Status     Status     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Info snapshots the task.
func (t *Task) Info() TaskInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	info := TaskInfo{
		ID:         t.ID,
		DocumentID: t.DocumentID,
		Name:       t.name,
		Status:     t.status,
		StartedAt:  t.StartedAt,
	}
	if t.err != nil {
		info.Error = t.err.Error()
	}
	if !t.finishedAt.IsZero() {
		f := t.finishedAt
		info.FinishedAt = &f
	}
	return info
}
