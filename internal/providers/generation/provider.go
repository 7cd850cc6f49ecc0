// Package generation calls text-generation backends and normalises their
// output into a domain.GenerationPayload.
package generation

import (
	"context"
	"time"

	"contentengine/internal/domain"
	"contentengine/internal/infra"
	"contentengine/internal/media"
	"contentengine/internal/metrics"
)

const (
	openAIProviderName    = "openai"
	anthropicProviderName = "anthropic"

	maxAttempts      = 3
	maxSnippetRunes  = 400
	maxResponseBytes = 8 << 20
)

const systemPrompt = "You are a senior SEO copywriter and WordPress content strategist. " +
	"Write accurate, trustworthy, long-form content optimized for discoverability, not virality."

// attemptFunc performs one provider call.
type attemptFunc func(ctx context.Context, attempt int) (*domain.GenerationPayload, *domain.ProviderError)

// retrier runs attempts with exponential backoff (1s, 2s, ...) and records
// every failed attempt.
type retrier struct {
	provider string
	logger   *infra.Logger
	metrics  *metrics.Registry
	errors   *ErrorCache
	sleep    media.SleepFunc
}

func (r retrier) run(ctx context.Context, fn attemptFunc) (*domain.GenerationPayload, error) {
	var last *domain.ProviderError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		payload, perr := fn(ctx, attempt)
		if perr == nil {
			return payload, nil
		}
		last = perr
		r.metrics.Increment(metrics.ProviderAttemptErr)
		r.errors.Record(perr)
		r.logger.Warn().
			Str("provider", r.provider).
			Str("code", perr.Code).
			Int("attempt", attempt).
			Fields(perr.Meta).
			Msg("generation: attempt failed")
		if attempt == maxAttempts {
			break
		}
		if err := r.sleep(ctx, time.Duration(1<<(attempt-1))*time.Second); err != nil {
			break
		}
	}
	return nil, last
}

func sleepOrDefault(s media.SleepFunc) media.SleepFunc {
	if s == nil {
		return media.SleepContext
	}
	return s
}

var (
	_ domain.GenerationProvider = (*OpenAIProvider)(nil)
	_ domain.GenerationProvider = (*AnthropicProvider)(nil)
)
