package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/framelight/deckhand/pkg/actions"
	"github.com/framelight/deckhand/pkg/archive"
	"github.com/framelight/deckhand/pkg/browser"
	"github.com/framelight/deckhand/pkg/config"
	"github.com/framelight/deckhand/pkg/extract"
	"github.com/framelight/deckhand/pkg/history"
	"github.com/framelight/deckhand/pkg/locator"
	"github.com/framelight/deckhand/pkg/logging"
	"github.com/framelight/deckhand/pkg/progress"
	"github.com/framelight/deckhand/pkg/security/downloads"
	"github.com/framelight/deckhand/pkg/server"
	"github.com/framelight/deckhand/pkg/session"
	"github.com/framelight/deckhand/pkg/storage"
	"github.com/framelight/deckhand/pkg/teams"
	"github.com/framelight/deckhand/pkg/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the deckhand server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "deckhand version %s\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logging.SetDirectory(cfg.Logging.Dir)
	logging.SetLevel(cfg.Logging.Level)
	logger, _ := logging.NewLogger("main")
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions, err := session.NewStore(cfg.Session.Path, cfg.Session.TTL())
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}

	mgr := browser.NewManager(cfg.Browser, cfg.Vault, sessions)
	if err := mgr.Initialize(); err != nil {
		return fmt.Errorf("initializing browser manager: %w", err)
	}
	defer func() {
		if err := mgr.Shutdown(); err != nil {
			logger.Warnf("browser shutdown: %v", err)
		}
	}()

	store, err := history.Open(cfg.History.Path, cfg.History.KeepRuns)
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer store.Close()

	bus := progress.NewBus()
	registry := teams.NewRegistry(cfg.Teams)
	runner := workflow.NewRunner(mgr, bus, registry, cfg)
	runner.OnRunFinished(func(run *workflow.Run) {
		if err := store.SaveRun(runRecord(run)); err != nil {
			logger.Warnf("persisting run %s: %v", run.ID, err)
		}
	})

	resolver := locator.NewResolver(cfg.Browser.CandidateTimeout())
	acts := actions.New(resolver, cfg.Browser)
	extractor := extract.New(acts)

	var objects storage.ObjectStore
	if cfg.Storage.Enabled() {
		s3, err := storage.NewS3Store(cfg.Storage)
		if err != nil {
			return fmt.Errorf("configuring object storage: %w", err)
		}
		objects = s3
		logger.Infof("archive mirroring to bucket %s enabled", cfg.Storage.Bucket)
	}
	archiver := archive.New(acts, objects)

	guard, err := downloads.NewGuard(cfg.Browser.DownloadDir)
	if err != nil {
		return fmt.Errorf("configuring download root: %w", err)
	}

	if cfg.Server.AuthToken == "" {
		printWarning("no auth token configured, the API accepts unauthenticated requests")
	}

	handler := server.NewHandler(server.Deps{
		Runner:    runner,
		Bus:       bus,
		History:   store,
		Extractor: extractor,
		Archiver:  archiver,
		Browsers:  mgr,
		Token:     cfg.Server.AuthToken,
		Version:   version,
		Downloads: guard,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "deckhand listening on %s\n", addr)
		logger.Infof("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)

	// Ask in-flight runs to stop at their next step boundary, then wait for
	// them to wind down before playwright goes away.
	for _, run := range runner.List() {
		if !run.Status.Terminal() {
			runner.Cancel(run.ID)
		}
	}
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelDrain()
	if err := runner.Wait(drainCtx); err != nil {
		logger.Warnf("timed out waiting for in-flight runs: %v", err)
	}

	return shutdownErr
}

// runRecord flattens a terminal run snapshot into its persisted form.
func runRecord(run *workflow.Run) history.RunRecord {
	rec := history.RunRecord{
		ID:         run.ID,
		ProjectURL: run.ProjectURL,
		State:      string(run.Status),
		Error:      run.Error,
		Summary:    run.Summary.String(),
		QueuedAt:   run.CreatedAt,
	}
	if data, err := json.Marshal(run.Steps); err == nil {
		rec.StepsJSON = string(data)
	}
	if run.StartedAt != nil {
		rec.StartedAt = *run.StartedAt
	}
	if run.EndedAt != nil {
		rec.FinishedAt = *run.EndedAt
	}
	return rec
}
