package cmd

import (
	"context"
	"testing"

	"github.com/mfenderov/protokb/internal/config"
	"github.com/mfenderov/protokb/internal/ingestion"
	"github.com/mfenderov/protokb/internal/llm"
)

type closingModel struct {
	closed int
}

func (m *closingModel) Complete(context.Context, string) (string, error) { return "", nil }

func (m *closingModel) CompleteMessages(context.Context, []llm.Message) (string, error) {
	return "", nil
}

func (m *closingModel) Close() error {
	m.closed++
	return nil
}

func TestApp_CloseReleasesModel(t *testing.T) {
	model := &closingModel{}
	a := &app{
		engine: ingestion.New(nil, nil, ingestion.Config{}),
		model:  model,
	}

	a.Close()

	if model.closed != 1 {
		t.Errorf("model closed %d times, want 1", model.closed)
	}
}

func TestApp_CloseWithoutModel(t *testing.T) {
	a := &app{engine: ingestion.New(nil, nil, ingestion.Config{})}
	a.Close()
}

func TestNewChat_DisabledKeepsNoModel(t *testing.T) {
	a := &app{engine: ingestion.New(nil, nil, ingestion.Config{})}
	defer a.Close()

	svc, err := newChat(context.Background(), config.Defaults(), a)
	if err != nil {
		t.Fatalf("newChat() error = %v", err)
	}
	if svc != nil || a.model != nil {
		t.Error("chat should stay disabled when llm.enabled is false")
	}
}

func TestNewChat_StoresModelForClose(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLM.Enabled = true
	cfg.LLM.BaseURL = "http://127.0.0.1:1/v1"

	a := &app{engine: ingestion.New(nil, nil, ingestion.Config{})}
	defer a.Close()

	svc, err := newChat(context.Background(), cfg, a)
	if err != nil {
		t.Fatalf("newChat() error = %v", err)
	}
	if svc == nil || a.model == nil {
		t.Error("newChat() should keep the completer on the app")
	}
}
