package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"contentengine/internal/config"
)

// Config represents process configuration loaded from environment variables.
type Config struct {
	AppEnv            string
	Port              string
	DatabaseURL       string
	StoragePath       string
	StorageBaseURL    string
	SettingsFile      string
	SiteName          string
	ProviderAPIKey    string
	AnthropicAPIKey   string
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
	WorkerPollSeconds int
	QueueWorkers      int
	QueueDepth        int
	GenerateRateLimit int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              port,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:    getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/media"),
		SettingsFile:      getEnv("SETTINGS_FILE", "settings.yaml"),
		SiteName:          os.Getenv("SITE_NAME"),
		ProviderAPIKey:    strings.TrimSpace(os.Getenv("PROVIDER_API_KEY")),
		AnthropicAPIKey:   strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 180)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		WorkerPollSeconds: getEnvInt("WORKER_POLL_SECONDS", 30),
		QueueWorkers:      getEnvInt("QUEUE_WORKERS", 2),
		QueueDepth:        getEnvInt("QUEUE_DEPTH", 32),
		GenerateRateLimit: getEnvInt("GENERATE_RATE_PER_MINUTE", 10),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// LoadSettings reads the engine settings file and applies process-level
// overrides. Environment secrets win over values in the file.
func (c *Config) LoadSettings() (config.Settings, error) {
	s, err := config.Load(c.SettingsFile)
	if err != nil {
		return s, err
	}
	if c.ProviderAPIKey != "" {
		s.Provider.APIKey = c.ProviderAPIKey
	}
	if c.AnthropicAPIKey != "" {
		s.Provider.AnthropicKey = c.AnthropicAPIKey
	}
	if c.SiteName != "" {
		s.SEO.SiteName = c.SiteName
	}
	s.Sanitize()
	return s, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
