package infra

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoadConfigDefaultStorageBaseURLFollowsPort(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("PORT", "1919")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:1919/media"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadSettingsEnvSecretsWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	body := "provider:\n  api_key: from-file\nseo:\n  site_name: File Site\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := &Config{SettingsFile: path, ProviderAPIKey: "from-env"}

	s, err := cfg.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings returned error: %v", err)
	}
	if s.Provider.APIKey != "from-env" {
		t.Fatalf("APIKey = %q, want from-env", s.Provider.APIKey)
	}
	if s.SEO.SiteName != "File Site" {
		t.Fatalf("SiteName = %q, want File Site", s.SEO.SiteName)
	}
}
