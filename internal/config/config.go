package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Integration modes.
const (
	ModeExternal = "external"
	ModeDirect   = "direct"
)

// Settings is the engine configuration injected into every component.
type Settings struct {
	Mode     string   `yaml:"mode"`
	Provider Provider `yaml:"provider"`
	Content  Content  `yaml:"content"`
	SEO      SEO      `yaml:"seo"`
	Images   Images   `yaml:"images"`
	Publish  Publish  `yaml:"publish"`
}

type Provider struct {
	Enabled         bool    `yaml:"enabled"`
	APIBase         string  `yaml:"api_base"`
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	TimeoutSeconds  int     `yaml:"timeout"`
	Temperature     float64 `yaml:"temperature"`
	MaxTokens       int     `yaml:"max_tokens"`
	AnthropicKey    string  `yaml:"anthropic_api_key"`
	AnthropicModel  string  `yaml:"anthropic_model"`
	ModelsCacheMins int     `yaml:"models_cache_minutes"`
}

type Content struct {
	DefaultSubject   string   `yaml:"default_subject"`
	Audience         string   `yaml:"audience"`
	Intent           string   `yaml:"intent"`
	Tone             string   `yaml:"tone"`
	Voice            string   `yaml:"voice"`
	WordCountMin     int      `yaml:"word_count_min"`
	WordCountMax     int      `yaml:"word_count_max"`
	TargetCategories []string `yaml:"target_categories"`
	TargetTags       []string `yaml:"target_tags"`
	KeywordPrimary   string   `yaml:"keyword_primary"`
	KeywordSecondary []string `yaml:"keyword_secondary"`
	DailyTime        string   `yaml:"daily_time"`
}

type SEO struct {
	MetaTitleTemplate string   `yaml:"meta_title_template"`
	SiteName          string   `yaml:"site_name"`
	Plugins           []string `yaml:"plugins"`
	ReadabilityMin    int      `yaml:"readability_min"`
	SEOScoreMin       int      `yaml:"seo_score_min"`
}

type Images struct {
	FeaturedRequired      bool     `yaml:"featured_required"`
	InlineImageCount      int      `yaml:"inline_image_count"`
	EnableInlineInjection bool     `yaml:"enable_inline_image_injection"`
	UseFeaturedAsOG       bool     `yaml:"use_featured_as_og_fallback"`
	VerifyRemoteExists    bool     `yaml:"verify_remote_image_exists"`
	EnforceHostAllowlist  bool     `yaml:"enforce_image_host_allowlist"`
	AllowedHosts          []string `yaml:"allowed_image_hosts"`
	AllowSVG              bool     `yaml:"allow_svg"`
}

type Publish struct {
	DraftOnly   bool `yaml:"draft_only"`
	AutoPublish bool `yaml:"auto_publish"`
}

// SEO plugin identifiers accepted in SEO.Plugins.
const (
	PluginRankMath = "rank_math"
	PluginYoast    = "yoast"
)

// DefaultAllowedHosts is the image host allow-list used when none is configured.
var DefaultAllowedHosts = []string{"images.unsplash.com", "cdn.pixabay.com", "upload.wikimedia.org"}

// Default returns the settings used when no file overrides them.
func Default() Settings {
	return Settings{
		Mode: ModeExternal,
		Provider: Provider{
			Enabled:         false,
			APIBase:         "https://api.openai.com/v1",
			Model:           "gpt-4o-mini",
			TimeoutSeconds:  30,
			Temperature:     0.4,
			MaxTokens:       3000,
			AnthropicModel:  "claude-sonnet-4-20250514",
			ModelsCacheMins: 15,
		},
		Content: Content{
			Tone:         "professional",
			Voice:        "third_person",
			WordCountMin: 1200,
			WordCountMax: 2500,
			DailyTime:    "03:00",
		},
		SEO: SEO{
			MetaTitleTemplate: "{title} | {site_name}",
			ReadabilityMin:    60,
			SEOScoreMin:       70,
		},
		Images: Images{
			FeaturedRequired:      true,
			InlineImageCount:      2,
			EnableInlineInjection: true,
			UseFeaturedAsOG:       true,
			VerifyRemoteExists:    true,
			EnforceHostAllowlist:  true,
			AllowedHosts:          append([]string(nil), DefaultAllowedHosts...),
		},
		Publish: Publish{
			DraftOnly:   true,
			AutoPublish: false,
		},
	}
}

// Load reads a YAML settings file over Default. An empty path or a missing
// file yields the defaults.
func Load(path string) (Settings, error) {
	s := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, fmt.Errorf("config: read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("config: parse settings: %w", err)
	}
	s.Sanitize()
	return s, nil
}

// Sanitize clamps values into their accepted ranges.
func (s *Settings) Sanitize() {
	if s.Mode != ModeDirect {
		s.Mode = ModeExternal
	}

	s.Provider.APIBase = strings.TrimRight(strings.TrimSpace(s.Provider.APIBase), "/")
	if s.Provider.APIBase == "" {
		s.Provider.APIBase = Default().Provider.APIBase
	}
	s.Provider.APIKey = strings.TrimSpace(s.Provider.APIKey)
	s.Provider.AnthropicKey = strings.TrimSpace(s.Provider.AnthropicKey)
	s.Provider.Model = strings.TrimSpace(s.Provider.Model)
	if s.Provider.TimeoutSeconds < 1 {
		s.Provider.TimeoutSeconds = 1
	}
	if s.Provider.Temperature < 0 {
		s.Provider.Temperature = 0
	}
	if s.Provider.Temperature > 1 {
		s.Provider.Temperature = 1
	}
	if s.Provider.MaxTokens < 1 {
		s.Provider.MaxTokens = Default().Provider.MaxTokens
	}
	if s.Provider.ModelsCacheMins < 1 {
		s.Provider.ModelsCacheMins = Default().Provider.ModelsCacheMins
	}

	s.Content.DefaultSubject = strings.TrimSpace(s.Content.DefaultSubject)
	s.Content.KeywordPrimary = strings.TrimSpace(s.Content.KeywordPrimary)
	s.Content.KeywordSecondary = cleanList(s.Content.KeywordSecondary)
	s.Content.TargetCategories = cleanList(s.Content.TargetCategories)
	s.Content.TargetTags = cleanList(s.Content.TargetTags)
	s.Content.WordCountMin = nonNegative(s.Content.WordCountMin)
	s.Content.WordCountMax = nonNegative(s.Content.WordCountMax)
	if s.Content.WordCountMax > 0 && s.Content.WordCountMax < s.Content.WordCountMin {
		s.Content.WordCountMax = s.Content.WordCountMin
	}
	if _, _, err := ParseDailyTime(s.Content.DailyTime); err != nil {
		s.Content.DailyTime = Default().Content.DailyTime
	}

	s.SEO.ReadabilityMin = clampPercent(s.SEO.ReadabilityMin)
	s.SEO.SEOScoreMin = clampPercent(s.SEO.SEOScoreMin)
	plugins := s.SEO.Plugins[:0]
	for _, p := range cleanList(s.SEO.Plugins) {
		p = strings.ToLower(p)
		if p == PluginRankMath || p == PluginYoast {
			plugins = append(plugins, p)
		}
	}
	s.SEO.Plugins = plugins

	s.Images.InlineImageCount = nonNegative(s.Images.InlineImageCount)
	hosts := cleanList(s.Images.AllowedHosts)
	for i := range hosts {
		hosts[i] = strings.ToLower(hosts[i])
	}
	if len(hosts) == 0 {
		hosts = append(hosts, DefaultAllowedHosts...)
	}
	s.Images.AllowedHosts = hosts
}

// HasPlugin reports whether the named SEO plugin is configured.
func (s Settings) HasPlugin(name string) bool {
	for _, p := range s.SEO.Plugins {
		if p == name {
			return true
		}
	}
	return false
}

// ParseDailyTime parses an HH:MM clock value.
func ParseDailyTime(v string) (int, int, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d:%d", &h, &m); err != nil {
		return 0, 0, fmt.Errorf("config: invalid daily time %q", v)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("config: invalid daily time %q", v)
	}
	return h, m, nil
}

func cleanList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
