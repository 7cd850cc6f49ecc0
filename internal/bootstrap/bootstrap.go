// Package bootstrap assembles the engine from process configuration so the
// API, the worker and the operator CLI share one wiring.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"contentengine/internal/adapter/repo"
	"contentengine/internal/config"
	"contentengine/internal/domain"
	"contentengine/internal/infra"
	"contentengine/internal/infra/credentials"
	"contentengine/internal/media"
	"contentengine/internal/metrics"
	"contentengine/internal/pipeline"
	"contentengine/internal/providers/generation"
	"contentengine/internal/storage"
)

const metricsNamespace = "contentengine"

// Engine holds the long-lived collaborators of one process.
type Engine struct {
	Config      *infra.Config
	Settings    config.Settings
	Logger      infra.Logger
	Pool        *pgxpool.Pool
	Runner      *infra.SQLRunner
	Credentials *credentials.Store
	Jobs        *repo.JobRepositoryPG
	Posts       *repo.PostRepositoryPG
	Files       *storage.FileStore
	Metrics     *metrics.Registry
	Errors      *generation.ErrorCache
	Models      *generation.ModelDiscovery
	OpenAI      *generation.OpenAIProvider
	Pipeline    *pipeline.Pipeline
}

// New connects to the database, resolves settings and credentials, and
// builds the pipeline with its provider chain and image ingestor.
func New(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Engine, error) {
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	e, err := build(ctx, cfg, logger, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return e, nil
}

func build(ctx context.Context, cfg *infra.Config, logger infra.Logger, pool *pgxpool.Pool) (*Engine, error) {
	runner := infra.NewSQLRunner(pool, logger)
	creds := credentials.NewStore(runner)

	settings, err := cfg.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if err := creds.Fill(ctx, &settings); err != nil {
		logger.Warn().Err(err).Msg("bootstrap: credentials store unavailable")
	}

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	files, err := storage.NewFileStore(storagePath, cfg.StorageBaseURL)
	if err != nil {
		return nil, fmt.Errorf("configure storage: %w", err)
	}

	reg := metrics.New(metricsNamespace)
	errorCache := generation.NewErrorCache(generation.DefaultErrorTTL)
	jobs := repo.NewJobRepository(runner)
	posts := repo.NewPostRepository(runner)
	policy := media.PolicyFromSettings(settings.Images)

	ingestor, err := media.NewIngestor(media.Options{
		Policy:     policy,
		Media:      repo.NewMediaRepository(runner, files),
		Posts:      posts,
		SEOPlugins: settings.SEO.Plugins,
		Logger:     &logger,
		Metrics:    reg,
	})
	if err != nil {
		return nil, err
	}

	var probe generation.FetchChecker
	if settings.Images.VerifyRemoteExists {
		probe = media.NewProber(nil, &logger)
	}
	sanitizer := generation.NewSanitizer(policy, probe, &logger)

	openAI := generation.NewOpenAIProvider(generation.OpenAIOptions{
		Settings:  settings.Provider,
		Sanitizer: sanitizer,
		Errors:    errorCache,
		Logger:    &logger,
		Metrics:   reg,
	})
	providers := []domain.GenerationProvider{openAI}
	anthropic := generation.NewAnthropicProvider(generation.AnthropicOptions{
		Settings:  settings.Provider,
		Sanitizer: sanitizer,
		Errors:    errorCache,
		Logger:    &logger,
		Metrics:   reg,
	})
	if anthropic.Configured() {
		providers = append(providers, anthropic)
	}

	p, err := pipeline.New(pipeline.Options{
		Settings:  settings,
		Jobs:      jobs,
		Locker:    repo.NewJobLocker(runner, &logger),
		Posts:     posts,
		Images:    ingestor,
		Providers: providers,
		Logger:    &logger,
		Metrics:   reg,
	})
	if err != nil {
		return nil, err
	}

	modelsTTL := time.Duration(settings.Provider.ModelsCacheMins) * time.Minute
	return &Engine{
		Config:      cfg,
		Settings:    settings,
		Logger:      logger,
		Pool:        pool,
		Runner:      runner,
		Credentials: creds,
		Jobs:        jobs,
		Posts:       posts,
		Files:       files,
		Metrics:     reg,
		Errors:      errorCache,
		Models:      generation.NewModelDiscovery(&http.Client{Timeout: 10 * time.Second}, modelsTTL, &logger),
		OpenAI:      openAI,
		Pipeline:    p,
	}, nil
}

// Close releases the database pool.
func (e *Engine) Close() {
	if e != nil && e.Pool != nil {
		e.Pool.Close()
	}
}
