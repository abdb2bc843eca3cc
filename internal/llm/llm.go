// Package llm provides language-model completers: any OpenAI-compatible
// chat completions endpoint, or Gemini.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Role of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Completer turns a conversation into a reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteMessages(ctx context.Context, messages []Message) (string, error)
}

// New returns the completer selected by config.Provider.
func New(ctx context.Context, config Config) (Completer, error) {
	switch strings.ToLower(config.Provider) {
	case "", "openai":
		return NewClient(config)
	case "gemini":
		return NewGemini(ctx, config)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", config.Provider)
	}
}
