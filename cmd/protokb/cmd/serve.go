package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mfenderov/protokb/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API serving documents, the catalog, chat and the diary.

Catalog routes need an Airtable base, chat needs llm.enabled and the diary
needs storage.enabled; without them those routes answer 503.

Examples:
  protokb serve
  protokb serve --addr :9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	atLeastInfo()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	go a.engine.RunJanitor(ctx, cfg.Ingestion.JanitorInterval)

	deps := server.Deps{
		Drive:     a.drive,
		Search:    a.search,
		Documents: a.engine,
	}
	if a.catalog != nil {
		deps.Catalog = a.catalog
	}

	chatSvc, err := newChat(ctx, cfg, a)
	if err != nil {
		return err
	}
	if chatSvc != nil {
		deps.Chat = chatSvc
	}

	diary, err := newDiary(ctx, cfg)
	if err != nil {
		return err
	}
	if diary != nil {
		deps.Diary = diary
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Listening on %s\n", cfg.Server.Addr)

	return server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, deps).Run(ctx)
}
