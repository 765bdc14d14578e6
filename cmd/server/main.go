package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sitetrack/internal/config"
	"sitetrack/internal/logger"
	"sitetrack/internal/metrics"
	"sitetrack/internal/server"
	"sitetrack/internal/store"
	"sitetrack/internal/worker"

	zlog "github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg)

	m := metrics.New()

	// Backend and engine. The S3 store is the only component that talks
	// to the network after startup; everything producer-facing stays
	// in-memory and non-blocking.
	backend := store.NewS3Store(cfg, m)
	mgr := worker.New(cfg, m, backend)
	mgr.Start()

	h := server.NewHandler(cfg, m, mgr)

	mux := http.NewServeMux()
	h.Register(mux)

	// Anything else served by this process is a page view; the visit
	// middleware records it. The collector's own endpoints and static
	// assets are skipped inside the middleware.
	mux.Handle("/", http.NotFoundHandler())

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      h.VisitMiddleware(mux),
		ReadTimeout:  8 * time.Second,
		WriteTimeout: 8 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown: stop accepting requests first, then let the
	// engine run its final drain-and-flush before the process exits.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

		sig := <-sigCh
		zlog.Info().Str("signal", sig.String()).Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		if err := srv.Shutdown(ctx); err != nil {
			zlog.Error().Err(err).Msg("http shutdown")
		}
		cancel()

		zlog.Info().Msg("stopping ingestion engine")
		mgr.Shutdown()
	}()

	zlog.Info().Str("addr", cfg.HTTPAddr).Msg("collector listening")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zlog.Fatal().Err(err).Msg("http server terminated")
	}

	// Idempotent; covers the non-signal exit path.
	mgr.Shutdown()
	zlog.Info().Msg("shutdown complete")
}
