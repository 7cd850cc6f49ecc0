package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"contentengine/internal/config"
	"contentengine/internal/infra"
	"contentengine/internal/sqlinline"
)

// Provider names stored in integration_tokens.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Store keeps provider API keys in the integration_tokens table.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored key for provider, or "" when none is set.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// SetToken upserts the key for a known provider.
func (s *Store) SetToken(ctx context.Context, provider, token string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider != ProviderOpenAI && provider != ProviderAnthropic {
		return fmt.Errorf("unknown provider %q", provider)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%s api key is required", provider)
	}
	raw, err := json.Marshal(map[string]any{"source": "contentctl"})
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}

// Fill copies stored keys into settings where no key is configured yet.
func (s *Store) Fill(ctx context.Context, settings *config.Settings) error {
	if settings.Provider.APIKey == "" {
		key, err := s.Token(ctx, ProviderOpenAI)
		if err != nil {
			return fmt.Errorf("load openai key: %w", err)
		}
		settings.Provider.APIKey = key
	}
	if settings.Provider.AnthropicKey == "" {
		key, err := s.Token(ctx, ProviderAnthropic)
		if err != nil {
			return fmt.Errorf("load anthropic key: %w", err)
		}
		settings.Provider.AnthropicKey = key
	}
	return nil
}
