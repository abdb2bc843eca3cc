package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mfenderov/protokb/internal/apperr"
	"github.com/mfenderov/protokb/internal/chat"
	"github.com/mfenderov/protokb/internal/drive"
	"github.com/mfenderov/protokb/internal/extract"
	"github.com/mfenderov/protokb/internal/ingestion"
	"github.com/mfenderov/protokb/internal/search"
	"github.com/mfenderov/protokb/pkg/models"
)

type fakeSource struct {
	files   []models.DocumentMetadata
	content map[string]string
}

func (s *fakeSource) ListFiles(context.Context, string, []models.DeclaredType) ([]models.DocumentMetadata, error) {
	return s.files, nil
}

func (s *fakeSource) GetFile(_ context.Context, id string) (models.DocumentMetadata, error) {
	for _, f := range s.files {
		if f.ID == id {
			return f, nil
		}
	}
	return models.DocumentMetadata{}, &apperr.RemoteServiceError{Service: "drive", StatusCode: http.StatusNotFound}
}

func (s *fakeSource) Download(_ context.Context, id string, _ models.DeclaredType) ([]byte, error) {
	return []byte(s.content[id]), nil
}

type fakeHealth struct{ h drive.Health }

func (f fakeHealth) Check(context.Context) drive.Health { return f.h }

type fakeCatalog struct{ err error }

func (f fakeCatalog) FindProtocols(_ context.Context, q string) ([]models.Protocol, error) {
	if f.err != nil {
		return nil, f.err
	}
	if q == "nulla" {
		return nil, nil
	}
	return []models.Protocol{{ID: "p1", Name: "Protocollo CDS"}}, nil
}

func (f fakeCatalog) FindSubstances(context.Context, string) ([]models.Substance, error) {
	return []models.Substance{{ID: "s1", Name: "Magnesio"}}, f.err
}

func (f fakeCatalog) FindSymptoms(context.Context, string) ([]models.Symptom, error) {
	return []models.Symptom{{ID: "y1", Name: "Insonnia", Severity: 6}}, f.err
}

type fakeChat struct{}

func (fakeChat) Ask(_ context.Context, sessionID, message string) (*chat.Reply, error) {
	if message == "" {
		return nil, fmt.Errorf("message is required: %w", apperr.ErrInvalidInput)
	}
	if sessionID == "" {
		sessionID = "new-session"
	}
	return &chat.Reply{SessionID: sessionID, Reply: "eco: " + message, Sources: []chat.Source{}}, nil
}

func (fakeChat) Reset(sessionID string) bool { return sessionID == "known" }

type fakeDiary struct {
	entries map[string]models.DiaryEntry
}

func (d *fakeDiary) PutEntry(_ context.Context, e models.DiaryEntry) (*models.DiaryEntry, error) {
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	d.entries[e.Date] = e
	return &e, nil
}

func (d *fakeDiary) GetEntry(_ context.Context, date string) (*models.DiaryEntry, error) {
	e, ok := d.entries[date]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &e, nil
}

func (d *fakeDiary) ListEntries(context.Context, string, string) ([]string, error) {
	var dates []string
	for k := range d.entries {
		dates = append(dates, k)
	}
	return dates, nil
}

func (d *fakeDiary) DeleteEntry(_ context.Context, date string) error {
	delete(d.entries, date)
	return nil
}

type fixture struct {
	handler http.Handler
	engine  *ingestion.Engine
}

func newFixture(t *testing.T, deps Deps) *fixture {
	t.Helper()
	src := &fakeSource{
		files: []models.DocumentMetadata{
			{ID: "a", Name: "Protocollo_CDS.txt", Type: models.TypePlainText, ModifiedTime: "2026-10-03T00:00:00Z"},
			{ID: "b", Name: "Magnesio.txt", Type: models.TypePlainText, ModifiedTime: "2026-10-02T00:00:00Z"},
		},
		content: map[string]string{
			"a": "Il dosaggio del CDS. Il dosaggio va rispettato. Dosaggio minimo.",
			"b": "Il magnesio si assume la sera.",
		},
	}
	engine := ingestion.New(src, extract.New(extract.Options{}), ingestion.Config{FolderID: "folder"})
	t.Cleanup(engine.Close)

	deps.Documents = engine
	deps.Search = search.NewService(src, engine, "folder", nil, 2)
	if deps.Drive == nil {
		deps.Drive = fakeHealth{drive.Health{Connected: true, DocumentsFound: 2, SupportedTypes: models.SupportedTypes, Errors: []string{}}}
	}
	return &fixture{handler: New(Config{}, deps).Handler(), engine: engine}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) waitTask(t *testing.T, id string) {
	t.Helper()
	task, ok := f.engine.Task(id)
	if !ok {
		t.Fatalf("no task for %s", id)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := task.Wait(ctx); err != nil {
		t.Fatalf("task %s: %v", id, err)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestDriveSearch(t *testing.T) {
	f := newFixture(t, Deps{})

	rec := f.do(t, http.MethodPost, "/api/drive", map[string]string{"query": "cds dosaggio"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	results := decode[[]models.SearchResult](t, rec)
	if len(results) == 0 || results[0].Document.ID != "a" {
		t.Fatalf("results = %+v", results)
	}
	if results[0].MatchScore < 18 {
		t.Errorf("score = %d, want >= 18", results[0].MatchScore)
	}
}

func TestDriveSearch_BadRequests(t *testing.T) {
	f := newFixture(t, Deps{})

	tests := []struct {
		name string
		body any
	}{
		{"short query", map[string]string{"query": "ab"}},
		{"invalid json", "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/drive", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if body := decode[map[string]string](t, rec); body["error"] == "" {
				t.Errorf("missing error message: %s", rec.Body)
			}
		})
	}
}

func TestDriveHealth(t *testing.T) {
	f := newFixture(t, Deps{})
	if rec := f.do(t, http.MethodGet, "/api/drive", nil); rec.Code != http.StatusOK {
		t.Errorf("connected status = %d", rec.Code)
	}

	down := newFixture(t, Deps{Drive: fakeHealth{drive.Health{Errors: []string{"drive: configuration error"}}}})
	rec := down.do(t, http.MethodGet, "/api/drive", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("disconnected status = %d, want 500", rec.Code)
	}
	if h := decode[drive.Health](t, rec); h.Connected || len(h.Errors) != 1 {
		t.Errorf("health = %+v", h)
	}
}

func TestGetContent_ProcessesThenServesFromCache(t *testing.T) {
	f := newFixture(t, Deps{})

	rec := f.do(t, http.MethodGet, "/api/pdf-content?id=b", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("first GET status = %d, body %s", rec.Code, rec.Body)
	}
	if body := decode[map[string]any](t, rec); body["status"] != "processing" {
		t.Errorf("first GET body = %v", body)
	}

	f.waitTask(t, "b")

	rec = f.do(t, http.MethodGet, "/api/pdf-content?id=b", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("second GET status = %d", rec.Code)
	}
	doc := decode[models.ParsedDocument](t, rec)
	if doc.Metadata.Name != "Magnesio.txt" || !strings.Contains(doc.Content, "magnesio") {
		t.Errorf("doc = %+v", doc)
	}

	rec = f.do(t, http.MethodGet, "/api/tasks/b", nil)
	if info := decode[ingestion.TaskInfo](t, rec); info.Status != ingestion.StatusDone {
		t.Errorf("task = %+v", info)
	}

	if rec := f.do(t, http.MethodGet, "/api/pdf-content", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing id status = %d", rec.Code)
	}
}

func TestWarmThenSearchCached(t *testing.T) {
	f := newFixture(t, Deps{})

	rec := f.do(t, http.MethodPut, "/api/pdf-content", map[string]any{
		"documents": []models.DocumentRef{{ID: "a", Name: "Protocollo_CDS.txt"}, {ID: "b", Name: "Magnesio.txt"}, {ID: ""}},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("PUT status = %d, body %s", rec.Code, rec.Body)
	}
	body := decode[map[string]any](t, rec)
	if body["inQueue"] != float64(2) || body["cached"] != float64(0) {
		t.Errorf("PUT body = %v", body)
	}

	f.waitTask(t, "a")
	f.waitTask(t, "b")

	rec = f.do(t, http.MethodPost, "/api/pdf-content", map[string]any{"query": "magnesio"})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST status = %d", rec.Code)
	}
	res := decode[search.CachedResult](t, rec)
	if res.CachedDocuments != 2 || res.TotalFound != 1 || res.Results[0].Document.ID != "b" {
		t.Errorf("cached search = %+v", res)
	}

	rec = f.do(t, http.MethodPut, "/api/pdf-content", map[string]any{"documents": []models.DocumentRef{{ID: "a"}}})
	if body := decode[map[string]any](t, rec); body["cached"] != float64(1) || body["inQueue"] != float64(0) {
		t.Errorf("second PUT body = %v", body)
	}
}

func TestTask_Unknown(t *testing.T) {
	f := newFixture(t, Deps{})
	if rec := f.do(t, http.MethodGet, "/api/tasks/zzz", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCatalogRoutes(t *testing.T) {
	unconfigured := newFixture(t, Deps{})
	if rec := unconfigured.do(t, http.MethodGet, "/api/protocols", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured status = %d, want 503", rec.Code)
	}

	f := newFixture(t, Deps{Catalog: fakeCatalog{}})
	for _, path := range []string{"/api/protocols?q=cds", "/api/substances", "/api/symptoms?q=sonno"} {
		rec := f.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
			continue
		}
		if items := decode[[]map[string]any](t, rec); len(items) != 1 {
			t.Errorf("%s items = %v", path, items)
		}
	}

	rec := f.do(t, http.MethodGet, "/api/protocols?q=nulla", nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty result body = %s, want []", rec.Body)
	}

	failing := newFixture(t, Deps{Catalog: fakeCatalog{err: &apperr.RemoteServiceError{Service: "airtable", StatusCode: 500}}})
	if rec := failing.do(t, http.MethodGet, "/api/symptoms", nil); rec.Code != http.StatusBadGateway {
		t.Errorf("remote failure status = %d, want 502", rec.Code)
	}
}

func TestChatRoutes(t *testing.T) {
	f := newFixture(t, Deps{Chat: fakeChat{}})

	rec := f.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "ciao"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if reply := decode[chat.Reply](t, rec); reply.SessionID != "new-session" || reply.Reply != "eco: ciao" {
		t.Errorf("reply = %+v", reply)
	}

	if rec := f.do(t, http.MethodPost, "/api/chat", map[string]string{"message": ""}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty message status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/api/chat/known", nil); rec.Code != http.StatusNoContent {
		t.Errorf("reset status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/api/chat/unknown", nil); rec.Code != http.StatusNotFound {
		t.Errorf("reset unknown status = %d", rec.Code)
	}

	disabled := newFixture(t, Deps{})
	if rec := disabled.do(t, http.MethodPost, "/api/chat", map[string]string{"message": "ciao"}); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("disabled chat status = %d", rec.Code)
	}
}

func TestDiaryRoutes(t *testing.T) {
	diary := &fakeDiary{entries: map[string]models.DiaryEntry{}}
	f := newFixture(t, Deps{Diary: diary})

	entry := models.DiaryEntry{Mood: 7, Energy: 5, Notes: "bene"}
	if rec := f.do(t, http.MethodPut, "/api/diary/2026-10-15", entry); rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body %s", rec.Code, rec.Body)
	}
	if diary.entries["2026-10-15"].Notes != "bene" {
		t.Errorf("stored = %+v", diary.entries)
	}

	mismatch := models.DiaryEntry{Date: "2026-10-14", Mood: 7, Energy: 5}
	if rec := f.do(t, http.MethodPut, "/api/diary/2026-10-15", mismatch); rec.Code != http.StatusBadRequest {
		t.Errorf("mismatched date status = %d", rec.Code)
	}
	invalid := models.DiaryEntry{Mood: 11, Energy: 5}
	if rec := f.do(t, http.MethodPut, "/api/diary/2026-10-16", invalid); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid entry status = %d", rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/api/diary", nil)
	list := decode[map[string][]models.DiaryEntry](t, rec)
	if len(list["entries"]) != 1 {
		t.Errorf("list = %+v", list)
	}

	if rec := f.do(t, http.MethodGet, "/api/diary/2026-10-15", nil); rec.Code != http.StatusOK {
		t.Errorf("GET status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodDelete, "/api/diary/2026-10-15", nil); rec.Code != http.StatusNoContent {
		t.Errorf("DELETE status = %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/diary/2026-10-15", nil); rec.Code != http.StatusNotFound {
		t.Errorf("GET after delete status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Deps{Chat: fakeChat{}})
	rec := f.do(t, http.MethodGet, "/health", nil)
	body := decode[map[string]any](t, rec)
	if rec.Code != http.StatusOK || body["status"] != "ok" || body["chat"] != true || body["diary"] != false {
		t.Errorf("health = %d %v", rec.Code, body)
	}
}

func TestHandleError_Mapping(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", apperr.ErrTimeout)
	if got := apperr.Map(err).Code; got != http.StatusGatewayTimeout {
		t.Errorf("timeout maps to %d", got)
	}
	if !errors.Is(search.ErrQueryTooShort, apperr.ErrInvalidInput) {
		t.Error("short query should be invalid input")
	}
}
