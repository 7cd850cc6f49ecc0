package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"contentengine/internal/config"
	"contentengine/internal/domain"
	"contentengine/internal/htmltext"
	"contentengine/internal/infra"
	"contentengine/internal/media"
	"contentengine/internal/metrics"
)

type OpenAIOptions struct {
	Settings   config.Provider
	Sanitizer  *Sanitizer
	Errors     *ErrorCache
	HTTPClient *http.Client
	Logger     *infra.Logger
	Metrics    *metrics.Registry
	Sleep      media.SleepFunc
}

// OpenAIProvider calls an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	settings  config.Provider
	endpoint  string
	client    *http.Client
	sanitizer *Sanitizer
	logger    *infra.Logger
	retry     retrier
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewOpenAIProvider(opts OpenAIOptions) *OpenAIProvider {
	settings := opts.Settings
	settings.APIBase = strings.TrimRight(strings.TrimSpace(settings.APIBase), "/")
	client := opts.HTTPClient
	if client == nil {
		timeout := time.Duration(settings.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := infra.LoggerOrDiscard(opts.Logger)
	return &OpenAIProvider{
		settings:  settings,
		endpoint:  settings.APIBase + "/chat/completions",
		client:    client,
		sanitizer: opts.Sanitizer,
		logger:    logger,
		retry: retrier{
			provider: openAIProviderName,
			logger:   logger,
			metrics:  opts.Metrics,
			errors:   opts.Errors,
			sleep:    sleepOrDefault(opts.Sleep),
		},
	}
}

func (p *OpenAIProvider) Name() string { return openAIProviderName }

// Endpoint is the chat completions URL requests are sent to.
func (p *OpenAIProvider) Endpoint() string { return p.endpoint }

// Generate returns a sanitised payload or a *domain.ProviderError. Disabled
// and unconfigured providers fail before any network call.
func (p *OpenAIProvider) Generate(ctx context.Context, gc domain.GenerationContext) (*domain.GenerationPayload, error) {
	if !p.settings.Enabled {
		return nil, p.fail(domain.ProviderCodeDisabled, "LLM provider is disabled.", 0, 0, "")
	}
	if strings.TrimSpace(p.settings.APIKey) == "" {
		return nil, p.fail(domain.ProviderCodeNotConfigured, "LLM provider API key is not configured.", 0, 0, "")
	}

	body, err := json.Marshal(openAIChatRequest{
		Model: p.settings.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(gc, p.sanitizer.Hosts())},
		},
		MaxTokens:   p.settings.MaxTokens,
		Temperature: p.settings.Temperature,
	})
	if err != nil {
		return nil, p.fail(domain.ProviderCodeBadPayload, "Could not encode provider request.", 0, 0, err.Error())
	}

	return p.retry.run(ctx, func(ctx context.Context, attempt int) (*domain.GenerationPayload, *domain.ProviderError) {
		return p.attempt(ctx, body, attempt)
	})
}

func (p *OpenAIProvider) attempt(ctx context.Context, body []byte, attempt int) (*domain.GenerationPayload, *domain.ProviderError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, p.fail(domain.ProviderCodeHTTPError, sanitizeErrorText(err.Error()), attempt, 0, "")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(p.settings.APIKey))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, p.fail(domain.ProviderCodeHTTPError, sanitizeErrorText(err.Error()), attempt, 0, "")
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, p.fail(domain.ProviderCodeHTTPError, sanitizeErrorText(err.Error()), attempt, resp.StatusCode, "")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(raw)
		var upstream openAIErrorResponse
		if json.Unmarshal(raw, &upstream) == nil && upstream.Error.Message != "" {
			detail = upstream.Error.Message
		}
		code := domain.ProviderCodeStatusPrefix + strconv.Itoa(resp.StatusCode)
		return nil, p.fail(code, "LLM provider returned an error.", attempt, resp.StatusCode, detail)
	}

	var out openAIChatResponse
	if err := json.Unmarshal(raw, &out); err != nil || len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return nil, p.fail(domain.ProviderCodeBadPayload, "Provider returned an unexpected response shape.", attempt, resp.StatusCode, string(raw))
	}
	content := trimCodeFence(out.Choices[0].Message.Content)
	payload, err := parsePayload(content)
	if err != nil {
		return nil, p.fail(domain.ProviderCodeInvalidJSON, "Provider did not return valid JSON content.", attempt, resp.StatusCode, content)
	}
	return p.sanitizer.Sanitize(ctx, payload), nil
}

func (p *OpenAIProvider) fail(code, message string, attempt, status int, raw string) *domain.ProviderError {
	return &domain.ProviderError{
		Provider: openAIProviderName,
		Code:     code,
		Message:  message,
		Meta:     p.debugMeta(attempt, status, raw),
	}
}

// debugMeta never includes the key itself.
func (p *OpenAIProvider) debugMeta(attempt, status int, raw string) map[string]any {
	return map[string]any{
		"provider_enabled": p.settings.Enabled,
		"api_base":         p.settings.APIBase,
		"endpoint":         p.endpoint,
		"model":            p.settings.Model,
		"timeout":          p.settings.TimeoutSeconds,
		"max_tokens":       p.settings.MaxTokens,
		"temperature":      p.settings.Temperature,
		"attempt":          attempt,
		"http_status":      status,
		"response_snippet": sanitizeErrorText(raw),
		"key_present":      strings.TrimSpace(p.settings.APIKey) != "",
	}
}

func sanitizeErrorText(s string) string {
	return htmltext.Snippet(s, maxSnippetRunes)
}
