package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/mfenderov/protokb/internal/apperr"
)

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"no endpoint", Config{Model: "m"}, true},
		{"no model", Config{BaseURL: "http://x"}, true},
		{"base url", Config{BaseURL: "http://x", Model: "m"}, false},
		{"socket only", Config{SocketPath: "/tmp/llm.sock", Model: "m"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_Provider(t *testing.T) {
	if _, err := New(context.Background(), Config{Provider: "carrier-pigeon"}); err == nil {
		t.Error("expected error for unknown provider")
	}
	var cfgErr *apperr.ConfigurationError
	if _, err := New(context.Background(), Config{Provider: "gemini"}); !errors.As(err, &cfgErr) {
		t.Errorf("gemini without key error = %v, want ConfigurationError", err)
	}
	c, err := New(context.Background(), Config{BaseURL: "http://x", Model: "m"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := c.(*Client); !ok {
		t.Errorf("default provider = %T, want *Client", c)
	}
}

func TestComplete_Success(t *testing.T) {
	var got chatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"  Tre gocce al giorno.  "}}]}`)
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "gpt-test", MaxTokens: 256})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	reply, err := c.CompleteMessages(context.Background(), []Message{
		{Role: RoleSystem, Content: "sei un assistente"},
		{Role: RoleUser, Content: "dosaggio cds?"},
	})
	if err != nil {
		t.Fatalf("CompleteMessages() error = %v", err)
	}

	if reply != "Tre gocce al giorno." {
		t.Errorf("reply = %q", reply)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.Model != "gpt-test" || got.MaxTokens != 256 || len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("request = %+v", got)
	}
}

func TestComplete_NoKeyNoAuthHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Authorization"]; ok {
			t.Error("Authorization header sent without api key")
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL, Model: "m"})
	if _, err := c.Complete(context.Background(), "ciao"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
}

func TestComplete_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantRemote bool
	}{
		{"server error", http.StatusInternalServerError, "boom", true},
		{"error payload", http.StatusOK, `{"error":{"message":"model not loaded"}}`, true},
		{"no choices", http.StatusOK, `{"choices":[]}`, false},
		{"invalid json", http.StatusOK, `not json`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			c, _ := NewClient(Config{BaseURL: srv.URL, Model: "m"})
			_, err := c.Complete(context.Background(), "x")
			if err == nil {
				t.Fatal("expected error")
			}
			var remote *apperr.RemoteServiceError
			if errors.As(err, &remote) != tt.wantRemote {
				t.Errorf("error = %v, wantRemote %v", err, tt.wantRemote)
			}
		})
	}
}

func TestComplete_UnixSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "llm.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("Failed to create Unix socket: %v", err)
	}
	defer listener.Close()

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/engines/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"locale"}}]}`)
	})}
	go srv.Serve(listener)
	defer srv.Close()

	c, err := NewClient(Config{SocketPath: socketPath, Model: "ai/smollm2"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	reply, err := c.Complete(context.Background(), "ciao")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply != "locale" {
		t.Errorf("reply = %q", reply)
	}
}
