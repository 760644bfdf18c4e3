package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"ironclad/internal/platform/config"
	"ironclad/internal/platform/httpserver"
	"ironclad/internal/platform/logger"
	"ironclad/internal/platform/metrics"
	"ironclad/internal/platform/sentry"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// main wires high-level dependencies and owns the process lifecycle.
// Business logic lives in the internal service packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ironclad:", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	reporter, err := sentry.New(cfg.Sentry, version)
	if err != nil {
		return err
	}
	defer reporter.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.close()

	app, err := build(cfg, infra, log, metrics.New(), reporter)
	if err != nil {
		return err
	}
	srv := httpserver.New(cfg.Server.Addr, app.router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.dispatcher.Run(gctx)
	})
	g.Go(func() error {
		log.Info("starting ironclad",
			"addr", cfg.Server.Addr,
			"version", version,
			"detector", cfg.Detector.Kind,
			"vault", infra.vaultBackend(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
