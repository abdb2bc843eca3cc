// Package chat answers questions about the catalog with a language model,
// grounding each prompt in cached documents and matching catalog records.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mfenderov/protokb/internal/apperr"
	"github.com/mfenderov/protokb/internal/keywords"
	"github.com/mfenderov/protokb/internal/llm"
	"github.com/mfenderov/protokb/internal/search"
	"github.com/mfenderov/protokb/pkg/models"
)

// Defaults for Config.
const (
	DefaultMaxSessions = 256
	DefaultMaxTurns    = 10
	MaxMessageLen      = 4000

	maxDocuments   = 3
	maxCatalogHits = 5
	minCatalogTerm = 4
)

const systemPrompt = `Sei l'assistente di un catalogo di protocolli per il benessere.
Rispondi nella lingua della domanda, in modo conciso.
Usa solo le informazioni del contesto fornito; se il contesto non basta, dillo.
Non fornire diagnosi mediche.`

// Searcher ranks cached documents.
type Searcher interface {
	SearchCached(query string, ids []string) (search.CachedResult, error)
}

// Catalog looks up tabular records by approximate name.
type Catalog interface {
	FindProtocols(ctx context.Context, q string) ([]models.Protocol, error)
	FindSubstances(ctx context.Context, q string) ([]models.Substance, error)
}

// Config tunes the session store.
type Config struct {
	MaxSessions int // sessions kept, least recently used evicted first
	MaxTurns    int // question/answer pairs replayed to the model
}

// Source is a piece of context the reply was grounded on.
type Source struct {
	Kind string `json:"kind"` // "document", "protocol" or "substance"
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Reply is the answer to one chat message.
type Reply struct {
	SessionID string   `json:"sessionId"`
	Reply     string   `json:"reply"`
	Sources   []Source `json:"sources"`
}

type session struct {
	mu      sync.Mutex
	history []llm.Message
}

// Service holds chat sessions.
type Service struct {
	model    llm.Completer
	docs     Searcher
	catalog  Catalog
	maxTurns int
	sessions *lru.Cache[string, *session]
}

// New creates a chat Service. docs and catalog may be nil.
func New(model llm.Completer, docs Searcher, catalog Catalog, cfg Config) (*Service, error) {
	if model == nil {
		return nil, apperr.Missing("llm")
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	sessions, err := lru.New[string, *session](cfg.MaxSessions)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &Service{
		model:    model,
		docs:     docs,
		catalog:  catalog,
		maxTurns: cfg.MaxTurns,
		sessions: sessions,
	}, nil
}

// Ask sends message within the session sessionID. An empty sessionID starts
// a new session; an unknown one (expired or evicted) starts over under the
// same id.
func (s *Service) Ask(ctx context.Context, sessionID, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("message is required: %w", apperr.ErrInvalidInput)
	}
	if utf8.RuneCountInString(message) > MaxMessageLen {
		return nil, fmt.Errorf("message longer than %d characters: %w", MaxMessageLen, apperr.ErrInvalidInput)
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	} else if _, err := uuid.Parse(sessionID); err != nil {
		return nil, fmt.Errorf("invalid session id %q: %w", sessionID, apperr.ErrInvalidInput)
	}

	sess := s.session(sessionID)

	// One exchange at a time per session keeps the history ordered.
	sess.mu.Lock()
	defer sess.mu.Unlock()

	contextText, sources := s.gather(ctx, message)

	messages := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
	if contextText != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: contextText})
	}
	messages = append(messages, sess.history...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: message})

	answer, err := s.model.CompleteMessages(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	sess.history = append(sess.history,
		llm.Message{Role: llm.RoleUser, Content: message},
		llm.Message{Role: llm.RoleAssistant, Content: answer},
	)
	if over := len(sess.history) - 2*s.maxTurns; over > 0 {
		sess.history = append([]llm.Message(nil), sess.history[over:]...)
	}

	slog.Debug("chat reply", "session", sessionID, "sources", len(sources), "turns", len(sess.history)/2)
	return &Reply{SessionID: sessionID, Reply: answer, Sources: sources}, nil
}

// session returns the session for id, creating it if needed. Concurrent
// first messages for one id share a single session.
func (s *Service) session(id string) *session {
	if sess, ok := s.sessions.Get(id); ok {
		return sess
	}
	fresh := &session{}
	if prev, ok, _ := s.sessions.PeekOrAdd(id, fresh); ok {
		return prev
	}
	return fresh
}

// History returns a copy of the session's messages.
func (s *Service) History(sessionID string) ([]llm.Message, bool) {
	sess, ok := s.sessions.Peek(sessionID)
	if !ok {
		return nil, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return append([]llm.Message(nil), sess.history...), true
}

// Reset forgets a session.
func (s *Service) Reset(sessionID string) bool {
	return s.sessions.Remove(sessionID)
}

// Sessions reports how many sessions are held.
func (s *Service) Sessions() int {
	return s.sessions.Len()
}

// gather builds the context block for message. Lookup failures are logged
// and leave their part of the context empty.
func (s *Service) gather(ctx context.Context, message string) (string, []Source) {
	var (
		b       strings.Builder
		sources = []Source{}
	)

	if s.docs != nil {
		res, err := s.docs.SearchCached(message, nil)
		switch {
		case errors.Is(err, search.ErrQueryTooShort):
		case err != nil:
			slog.Warn("chat document search failed", "error", err)
		default:
			for _, r := range res.Results[:min(maxDocuments, len(res.Results))] {
				fmt.Fprintf(&b, "Documento: %s\n", r.Document.Name)
				for _, sec := range r.RelevantSections {
					fmt.Fprintf(&b, "- %s\n", sec)
				}
				sources = append(sources, Source{Kind: "document", ID: r.Document.ID, Name: r.Document.Name})
			}
		}
	}

	if s.catalog != nil {
		seen := make(map[string]bool)
		for _, term := range catalogTerms(message) {
			protocols, err := s.catalog.FindProtocols(ctx, term)
			if err != nil {
				slog.Warn("chat protocol lookup failed", "term", term, "error", err)
				break
			}
			for _, p := range protocols {
				if seen[p.ID] || len(seen) >= maxCatalogHits {
					continue
				}
				seen[p.ID] = true
				fmt.Fprintf(&b, "Protocollo: %s", p.Name)
				writeField(&b, "dosaggio", p.Dosage)
				writeField(&b, "durata", p.Duration)
				writeField(&b, "sostanze", strings.Join(p.Substances, ", "))
				writeField(&b, "sintomi", strings.Join(p.Symptoms, ", "))
				b.WriteString("\n")
				sources = append(sources, Source{Kind: "protocol", ID: p.ID, Name: p.Name})
			}

			substances, err := s.catalog.FindSubstances(ctx, term)
			if err != nil {
				slog.Warn("chat substance lookup failed", "term", term, "error", err)
				break
			}
			for _, sub := range substances {
				if seen[sub.ID] || len(seen) >= maxCatalogHits {
					continue
				}
				seen[sub.ID] = true
				fmt.Fprintf(&b, "Sostanza: %s", sub.Name)
				writeField(&b, "categoria", sub.Category)
				writeField(&b, "dosaggio", sub.Dosage)
				writeField(&b, "avvertenze", sub.Warnings)
				b.WriteString("\n")
				sources = append(sources, Source{Kind: "substance", ID: sub.ID, Name: sub.Name})
			}
		}
	}

	if b.Len() == 0 {
		return "", sources
	}
	return "Contesto:\n" + b.String(), sources
}

// catalogTerms picks the words of message worth a catalog lookup: known
// vocabulary terms, or failing that the longer query words.
func catalogTerms(message string) []string {
	if terms := keywords.Extract(message, keywords.QueryLimit); len(terms) > 0 {
		return terms
	}
	var terms []string
	for _, w := range search.QueryWords(message) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if utf8.RuneCountInString(w) >= minCatalogTerm && len(terms) < keywords.QueryLimit {
			terms = append(terms, w)
		}
	}
	return terms
}

func writeField(b *strings.Builder, name, value string) {
	if value != "" {
		fmt.Fprintf(b, "; %s: %s", name, value)
	}
}
