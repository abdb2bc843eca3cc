// Package server exposes documents, catalog records, chat and the diary
// over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mfenderov/protokb/internal/apperr"
	"github.com/mfenderov/protokb/internal/chat"
	"github.com/mfenderov/protokb/internal/drive"
	"github.com/mfenderov/protokb/internal/ingestion"
	"github.com/mfenderov/protokb/internal/search"
	"github.com/mfenderov/protokb/pkg/models"
)

// HealthChecker reports remote folder connectivity.
type HealthChecker interface {
	Check(ctx context.Context) drive.Health
}

// Searcher ranks documents for a query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
	SearchCached(query string, ids []string) (search.CachedResult, error)
}

// Documents is the parsed-document cache and its background tasks.
type Documents interface {
	Lookup(id string) (*models.ParsedDocument, bool)
	Submit(ref models.DocumentRef) (*ingestion.Task, bool)
	Warm(refs []models.DocumentRef) ingestion.WarmResult
	Task(documentID string) (*ingestion.Task, bool)
	CacheSize() int
}

// Catalog serves tabular records.
type Catalog interface {
	FindProtocols(ctx context.Context, q string) ([]models.Protocol, error)
	FindSubstances(ctx context.Context, q string) ([]models.Substance, error)
	FindSymptoms(ctx context.Context, q string) ([]models.Symptom, error)
}

// Chat answers questions within sessions.
type Chat interface {
	Ask(ctx context.Context, sessionID, message string) (*chat.Reply, error)
	Reset(sessionID string) bool
}

// Diary stores journal entries.
type Diary interface {
	PutEntry(ctx context.Context, entry models.DiaryEntry) (*models.DiaryEntry, error)
	GetEntry(ctx context.Context, date string) (*models.DiaryEntry, error)
	ListEntries(ctx context.Context, from, to string) ([]string, error)
	DeleteEntry(ctx context.Context, date string) error
}

// Deps are the services behind the API. Any of Catalog, Chat and Diary may
// be nil; their routes then answer 503.
type Deps struct {
	Drive     HealthChecker
	Search    Searcher
	Documents Documents
	Catalog   Catalog
	Chat      Chat
	Diary     Diary
}

// Config holds HTTP server settings.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server holds the state for the REST API server.
type Server struct {
	cfg    Config
	deps   Deps
	router *gin.Engine
}

// New creates a Server with its routes registered.
func New(cfg Config, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	s := &Server{cfg: cfg, deps: deps, router: r}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")

	api.GET("/drive", s.handleDriveHealth)
	api.POST("/drive", s.handleDriveSearch)

	api.GET("/pdf-content", s.handleGetContent)
	api.POST("/pdf-content", s.handleSearchCached)
	api.PUT("/pdf-content", s.handleWarm)
	api.GET("/tasks/:id", s.handleTask)

	api.GET("/protocols", s.handleProtocols)
	api.GET("/substances", s.handleSubstances)
	api.GET("/symptoms", s.handleSymptoms)

	api.POST("/chat", s.handleChat)
	api.DELETE("/chat/:id", s.handleChatReset)

	api.GET("/diary", s.handleDiaryList)
	api.GET("/diary/:date", s.handleDiaryGet)
	api.PUT("/diary/:date", s.handleDiaryPut)
	api.DELETE("/diary/:date", s.handleDiaryDelete)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	slog.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"catalog": s.deps.Catalog != nil,
		"chat":    s.deps.Chat != nil,
		"diary":   s.deps.Diary != nil,
	}
	if s.deps.Documents != nil {
		body["cachedDocuments"] = s.deps.Documents.CacheSize()
	}
	c.JSON(http.StatusOK, body)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}
		if status >= http.StatusInternalServerError {
			slog.Warn("request failed", attrs...)
			return
		}
		slog.Debug("request", attrs...)
	}
}

// handleError writes err as {"error": message} with the mapped status.
func handleError(c *gin.Context, err error) {
	appErr := apperr.Map(err)
	if appErr.Code >= http.StatusInternalServerError {
		c.Error(err)
	}
	c.JSON(appErr.Code, gin.H{"error": appErr.Message})
}

func badRequest(c *gin.Context, message string, err error) {
	handleError(c, apperr.New(http.StatusBadRequest, message, err))
}
