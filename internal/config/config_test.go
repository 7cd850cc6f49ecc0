package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if s.Content.WordCountMin != 1200 {
		t.Fatalf("WordCountMin = %d, want 1200", s.Content.WordCountMin)
	}
	if !s.Images.EnforceHostAllowlist {
		t.Fatal("expected allow-list enforcement on by default")
	}
	if !s.Publish.DraftOnly {
		t.Fatal("expected draft_only on by default")
	}
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	body := `
provider:
  enabled: true
  api_base: "https://llm.example.com/v1/"
  temperature: 3
content:
  keyword_secondary: [" a ", "a", "", "b"]
  daily_time: "25:99"
seo:
  plugins: [Yoast, unknown]
  seo_score_min: 140
images:
  allowed_image_hosts: ["CDN.Example.com"]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !s.Provider.Enabled {
		t.Fatal("expected provider enabled")
	}
	if s.Provider.APIBase != "https://llm.example.com/v1" {
		t.Fatalf("APIBase = %q", s.Provider.APIBase)
	}
	if s.Provider.Temperature != 1 {
		t.Fatalf("Temperature = %v, want 1", s.Provider.Temperature)
	}
	if s.Provider.TimeoutSeconds != 30 {
		t.Fatalf("TimeoutSeconds = %d, want default 30", s.Provider.TimeoutSeconds)
	}
	if got := s.Content.KeywordSecondary; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("KeywordSecondary = %#v", got)
	}
	if s.Content.DailyTime != "03:00" {
		t.Fatalf("DailyTime = %q, want 03:00", s.Content.DailyTime)
	}
	if !s.HasPlugin(PluginYoast) || s.HasPlugin(PluginRankMath) || len(s.SEO.Plugins) != 1 {
		t.Fatalf("Plugins = %#v", s.SEO.Plugins)
	}
	if s.SEO.SEOScoreMin != 100 {
		t.Fatalf("SEOScoreMin = %d, want 100", s.SEO.SEOScoreMin)
	}
	if got := s.Images.AllowedHosts; len(got) != 1 || got[0] != "cdn.example.com" {
		t.Fatalf("AllowedHosts = %#v", got)
	}
}

func TestParseDailyTime(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		h, m    int
		wantErr bool
	}{
		{in: "03:00", h: 3, m: 0},
		{in: "23:59", h: 23, m: 59},
		{in: "24:00", wantErr: true},
		{in: "noon", wantErr: true},
	}
	for _, tc := range cases {
		h, m, err := ParseDailyTime(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseDailyTime(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil || h != tc.h || m != tc.m {
			t.Fatalf("ParseDailyTime(%q) = %d,%d,%v", tc.in, h, m, err)
		}
	}
}
