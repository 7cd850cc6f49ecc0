package generation

import (
	"context"
	"errors"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"

	"contentengine/internal/config"
	"contentengine/internal/domain"
	"contentengine/internal/infra"
	"contentengine/internal/media"
	"contentengine/internal/metrics"
)

// promptFunc sends one prompt and returns the first text block.
type promptFunc func(system, user, apiKey string, settings types.RequestSettings) (string, error)

type AnthropicOptions struct {
	Settings  config.Provider
	Sanitizer *Sanitizer
	Errors    *ErrorCache
	Logger    *infra.Logger
	Metrics   *metrics.Registry
	Sleep     media.SleepFunc
}

// AnthropicProvider generates articles through the Anthropic messages API.
type AnthropicProvider struct {
	apiKey    string
	settings  types.RequestSettings
	sanitizer *Sanitizer
	prompt    promptFunc
	retry     retrier
}

func NewAnthropicProvider(opts AnthropicOptions) *AnthropicProvider {
	logger := infra.LoggerOrDiscard(opts.Logger)
	return &AnthropicProvider{
		apiKey: strings.TrimSpace(opts.Settings.AnthropicKey),
		settings: types.RequestSettings{
			Model:       opts.Settings.AnthropicModel,
			MaxTokens:   opts.Settings.MaxTokens,
			Temperature: opts.Settings.Temperature,
		},
		sanitizer: opts.Sanitizer,
		prompt:    llmkitPrompt,
		retry: retrier{
			provider: anthropicProviderName,
			logger:   logger,
			metrics:  opts.Metrics,
			errors:   opts.Errors,
			sleep:    sleepOrDefault(opts.Sleep),
		},
	}
}

func llmkitPrompt(system, user, apiKey string, settings types.RequestSettings) (string, error) {
	response, err := anthropic.PromptWithSettings(system, user, "", apiKey, settings)
	if err != nil {
		return "", err
	}
	if len(response.Content) == 0 {
		return "", errors.New("no content in response")
	}
	return response.Content[0].Text, nil
}

func (p *AnthropicProvider) Name() string { return anthropicProviderName }

// Configured reports whether an API key is available.
func (p *AnthropicProvider) Configured() bool { return p.apiKey != "" }

// Generate returns a sanitised payload or a *domain.ProviderError. The
// llmkit client has no context support, so cancellation is checked between
// attempts only.
func (p *AnthropicProvider) Generate(ctx context.Context, gc domain.GenerationContext) (*domain.GenerationPayload, error) {
	if p.apiKey == "" {
		return nil, p.fail(domain.ProviderCodeNotConfigured, "Anthropic API key is not configured.", 0, "")
	}
	user := buildUserPrompt(gc, p.sanitizer.Hosts())

	return p.retry.run(ctx, func(ctx context.Context, attempt int) (*domain.GenerationPayload, *domain.ProviderError) {
		if err := ctx.Err(); err != nil {
			return nil, p.fail(domain.ProviderCodeHTTPError, err.Error(), attempt, "")
		}
		text, err := p.prompt(systemPrompt, user, p.apiKey, p.settings)
		if err != nil {
			return nil, p.fail(domain.ProviderCodeHTTPError, sanitizeErrorText(err.Error()), attempt, "")
		}
		if strings.TrimSpace(text) == "" {
			return nil, p.fail(domain.ProviderCodeBadPayload, "Provider returned an unexpected response shape.", attempt, "")
		}
		content := trimCodeFence(text)
		payload, err := parsePayload(content)
		if err != nil {
			return nil, p.fail(domain.ProviderCodeInvalidJSON, "Provider did not return valid JSON content.", attempt, content)
		}
		return p.sanitizer.Sanitize(ctx, payload), nil
	})
}

func (p *AnthropicProvider) fail(code, message string, attempt int, raw string) *domain.ProviderError {
	return &domain.ProviderError{
		Provider: anthropicProviderName,
		Code:     code,
		Message:  message,
		Meta: map[string]any{
			"model":            p.settings.Model,
			"max_tokens":       p.settings.MaxTokens,
			"temperature":      p.settings.Temperature,
			"attempt":          attempt,
			"response_snippet": sanitizeErrorText(raw),
			"key_present":      p.apiKey != "",
		},
	}
}
