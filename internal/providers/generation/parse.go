package generation

import (
	"encoding/json"
	"errors"
	"strings"

	"contentengine/internal/domain"
)

var errEmptyContent = errors.New("payload content is empty")

// parsePayload decodes the model's article JSON. Fenced or chatty replies are
// reduced to the outermost JSON object first.
func parsePayload(raw string) (*domain.GenerationPayload, error) {
	p, err := parseModelPayload[domain.GenerationPayload](raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Content) == "" {
		return nil, errEmptyContent
	}
	normalizePayload(&p)
	return &p, nil
}

func normalizePayload(p *domain.GenerationPayload) {
	p.Title = strings.TrimSpace(p.Title)
	p.Content = strings.TrimSpace(p.Content)
	p.Excerpt = strings.TrimSpace(p.Excerpt)
	p.FeaturedImageURL = p.FeaturedURL()
	p.LegacyFeaturedImage = ""
	p.FeaturedImageAlt = strings.TrimSpace(p.FeaturedImageAlt)
	p.OGImageURL = strings.TrimSpace(p.OGImageURL)
	p.MetaTitle = strings.TrimSpace(p.MetaTitle)
	p.MetaDescription = strings.TrimSpace(p.MetaDescription)
	p.OGTitle = strings.TrimSpace(p.OGTitle)
	p.OGDescription = strings.TrimSpace(p.OGDescription)
	p.PrimaryKeyword = strings.TrimSpace(p.PrimaryKeyword)
	p.TitleOptions = normalizeKeywords(p.TitleOptions, "")
	if p.InlineImages == nil {
		p.InlineImages = []domain.InlineImage{}
	}
	if len(p.SchemaJSONLD) > 0 && !json.Valid(p.SchemaJSONLD) {
		p.SchemaJSONLD = nil
	}
}

func normalizeKeywords(keywords []string, fallback string) []string {
	seen := make(map[string]struct{})
	var result []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		kwLower := strings.ToLower(kw)
		if _, ok := seen[kwLower]; ok {
			continue
		}
		seen[kwLower] = struct{}{}
		result = append(result, kw)
	}
	if len(result) == 0 && fallback != "" {
		result = []string{fallback}
	}
	return result
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

func parseModelPayload[T any](raw string) (T, error) {
	var zero T
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return zero, errors.New("empty payload")
	}
	var decoded T
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return zero, err
	}
	return decoded, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 && !strings.ContainsAny(trimmed[:nl], "{[") {
		trimmed = trimmed[nl+1:]
	}
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
