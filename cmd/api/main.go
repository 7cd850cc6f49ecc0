package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"contentengine/internal/bootstrap"
	"contentengine/internal/http/handlers"
	httpapi "contentengine/internal/http/httpapi"
	"contentengine/internal/infra"
	"contentengine/internal/pipeline"
)

var version = "dev"

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: startup failed")
	}
	defer engine.Close()

	// Queued runs outlive the signal so Close can drain them.
	queue := pipeline.NewQueue(engine.Pipeline, cfg.QueueDepth, &logger)
	queue.Start(context.WithoutCancel(ctx), cfg.QueueWorkers)

	app := &handlers.App{
		Settings:      engine.Settings,
		Jobs:          engine.Pipeline,
		Queue:         queue,
		Models:        engine.Models,
		Errors:        engine.Errors,
		Metrics:       engine.Metrics,
		Endpoint:      engine.OpenAI.Endpoint(),
		Version:       version,
		Logger:        logger,
		GenerateLimit: cfg.GenerateRateLimit,
	}

	root := chi.NewRouter()
	root.Handle("/media/*", http.StripPrefix("/media", engine.Files.Handler()))
	root.Mount("/", httpapi.NewRouter(app))

	server := infra.NewHTTPServer(cfg, root)

	go func() {
		logger.Info().Str("addr", server.Addr()).Int("queue_workers", cfg.QueueWorkers).Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api: http server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: shutdown failed")
	}
	queue.Close()
	logger.Info().Msg("api: stopped")
}
