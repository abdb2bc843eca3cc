package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/mfenderov/protokb/internal/chat"
	"github.com/mfenderov/protokb/internal/config"
	"github.com/mfenderov/protokb/internal/drive"
	"github.com/mfenderov/protokb/internal/elasticsearch"
	"github.com/mfenderov/protokb/internal/extract"
	"github.com/mfenderov/protokb/internal/ingestion"
	"github.com/mfenderov/protokb/internal/llm"
	"github.com/mfenderov/protokb/internal/search"
	"github.com/mfenderov/protokb/internal/storage"
	"github.com/mfenderov/protokb/internal/tabular"
)

// app holds the services shared by the commands.
type app struct {
	drive   *drive.Client
	index   *elasticsearch.Client // nil unless elasticsearch.enabled
	engine  *ingestion.Engine
	search  *search.Service
	catalog *tabular.Catalog // nil without an Airtable base
	model   llm.Completer    // set by newChat
}

// newApp wires the document pipeline and the catalog.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	driveClient, err := drive.New(ctx, drive.Config{
		ServiceAccountEmail: cfg.Drive.ServiceAccountEmail,
		PrivateKey:          cfg.Drive.PrivateKey,
		FolderID:            cfg.Drive.FolderID,
		ListTimeout:         cfg.Drive.ListTimeout,
		DownloadTimeout:     cfg.Drive.DownloadTimeout,
		RequestsPerSecond:   cfg.Drive.RequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}

	a := &app{drive: driveClient}

	var opts []ingestion.Option
	if cfg.Elasticsearch.Enabled {
		a.index, err = newIndex(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ingestion.WithIndexer(a.index))
		slog.Info("elasticsearch mirror enabled", "index", cfg.Elasticsearch.Index)
	}

	a.engine = ingestion.New(driveClient, extract.New(extract.Options{PDFText: cfg.Extract.PDFText}), ingestion.Config{
		FolderID:    cfg.Drive.FolderID,
		Concurrency: cfg.Ingestion.Concurrency,
		DocumentTTL: cfg.Ingestion.DocumentTTL,
	}, opts...)
	a.search = search.NewService(driveClient, a.engine, cfg.Drive.FolderID, nil, cfg.Ingestion.Concurrency)

	if cfg.Airtable.BaseID != "" {
		client := tabular.New(tabular.Config{
			BaseURL:           cfg.Airtable.BaseURL,
			BaseID:            cfg.Airtable.BaseID,
			APIKey:            cfg.Airtable.APIKey,
			Timeout:           cfg.Airtable.Timeout,
			RequestsPerSecond: cfg.Airtable.RequestsPerSecond,
		})
		a.catalog = tabular.NewCatalog(client, tabular.Tables{
			Protocols:  cfg.Airtable.Tables.Protocols,
			Substances: cfg.Airtable.Tables.Substances,
			Symptoms:   cfg.Airtable.Tables.Symptoms,
		}, nil)
	} else {
		slog.Warn("airtable base not configured, catalog disabled")
	}

	return a, nil
}

// Close stops background document processing and releases the LLM client.
func (a *app) Close() {
	a.engine.Close()
	if c, ok := a.model.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close llm client", "error", err)
		}
	}
}

// newIndex connects to Elasticsearch and creates the index when missing.
func newIndex(ctx context.Context, cfg config.Config) (*elasticsearch.Client, error) {
	client, err := elasticsearch.New(elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Index:     cfg.Elasticsearch.Index,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}
	if err := client.CreateIndex(ctx); err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	return client, nil
}

// newChat builds the chat service, or returns nil when the LLM is disabled.
func newChat(ctx context.Context, cfg config.Config, a *app) (*chat.Service, error) {
	if !cfg.LLM.Enabled {
		return nil, nil
	}
	model, err := llm.New(ctx, llm.Config{
		Provider:    cfg.LLM.Provider,
		BaseURL:     cfg.LLM.BaseURL,
		SocketPath:  cfg.LLM.SocketPath,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	a.model = model

	var catalog chat.Catalog
	if a.catalog != nil {
		catalog = a.catalog
	}
	svc, err := chat.New(model, a.search, catalog, chat.Config{
		MaxSessions: cfg.Chat.MaxSessions,
		MaxTurns:    cfg.Chat.MaxTurns,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("chat enabled", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	return svc, nil
}

// newDiary connects the diary store, or returns nil when storage is disabled.
func newDiary(ctx context.Context, cfg config.Config) (*storage.Client, error) {
	if !cfg.Storage.Enabled {
		return nil, nil
	}
	client, err := storage.New(storage.Config{
		Endpoint:        cfg.Storage.Endpoint,
		Bucket:          cfg.Storage.Bucket,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		UseSSL:          cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket: %w", err)
	}
	slog.Info("diary storage enabled", "bucket", client.Bucket())
	return client, nil
}
