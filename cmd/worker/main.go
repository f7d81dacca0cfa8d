// Package main implements the sqlpoll worker: it polls every configured source on its
// schedule and serves the status API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/dsjohal14/sqlpoll/internal/http"
	"github.com/dsjohal14/sqlpoll/internal/libs/config"
	"github.com/dsjohal14/sqlpoll/internal/libs/jobs"
	"github.com/dsjohal14/sqlpoll/internal/libs/obs"
	"github.com/dsjohal14/sqlpoll/internal/scope/db/cursor"
	"github.com/dsjohal14/sqlpoll/internal/sink"
	"github.com/dsjohal14/sqlpoll/internal/streamlite"
)

const (
	openTimeout     = 30 * time.Second
	shutdownTimeout = 15 * time.Second
)

func main() {
	// Load config
	cfg, err := config.Load(config.ConfigPath("config/sqlpoll.yaml"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Init logger
	logFile := obs.InitFileLogger(cfg.LogLevel, obs.FileOptions{
		Path:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	defer func() { _ = logFile.Close() }()
	logger := obs.Logger("worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("worker failed")
	}
	logger.Info().Msg("worker stopped")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	openCtx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()

	store, err := cursor.Open(openCtx, cfg.CursorStore.URL, cfg.CursorStore.User, cfg.CursorStore.Password, cfg.CursorStore.Table)
	if err != nil {
		return fmt.Errorf("failed to open cursor store: %w", err)
	}
	defer closeLogged(logger, "cursor store", store)

	out, err := sink.New(cfg.Sink, obs.Logger("sink"))
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}
	defer closeLogged(logger, "sink", out)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(promReg)

	registry, err := streamlite.Build(cfg, store, out, logger, streamlite.WithMetrics(metrics))
	if err != nil {
		return err
	}
	if err := registry.OpenAll(openCtx); err != nil {
		_ = registry.CloseAll()
		return fmt.Errorf("failed to open sources: %w", err)
	}
	logger.Info().Int("sources", len(cfg.Sources)).Str("sink", cfg.Sink.Type).Msg("sources opened")

	scheduler := jobs.NewScheduler(obs.Logger("scheduler"))
	if err := registry.Schedule(scheduler); err != nil {
		_ = registry.CloseAll()
		return err
	}
	scheduler.Start()

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           apihttp.NewRouter(apihttp.NewHandler(registry, obs.Logger("api")), promReg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("starting status API")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return errors.Join(
			srv.Shutdown(shutdownCtx),
			scheduler.Stop(shutdownCtx),
			registry.CloseAll(),
		)
	})

	return g.Wait()
}

func closeLogged(logger zerolog.Logger, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Warn().Err(err).Str("resource", what).Msg("close failed")
	}
}
