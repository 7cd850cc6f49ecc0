package pipeline

import (
	"strings"

	"contentengine/internal/domain"
)

// Guardrail reasons. Any one of them holds the post as a draft.
const (
	GuardrailSEOScore        = "seo_score_below_min"
	GuardrailReadability     = "readability_below_min"
	GuardrailWordCount       = "word_count_below_min"
	GuardrailMissingContent  = "missing_title_or_content"
	GuardrailFeaturedMissing = "featured_image_required_but_failed"
)

func (p *Pipeline) evaluateGuardrails(score domain.ScoreBreakdown, title, content string, diag domain.ImageDiagnostics) []string {
	reasons := []string{}
	if score.Total < p.settings.SEO.SEOScoreMin {
		reasons = append(reasons, GuardrailSEOScore)
	}
	if score.Readability < p.settings.SEO.ReadabilityMin {
		reasons = append(reasons, GuardrailReadability)
	}
	if score.WordCount < p.settings.Content.WordCountMin {
		reasons = append(reasons, GuardrailWordCount)
	}
	if strings.TrimSpace(title) == "" || strings.TrimSpace(content) == "" {
		reasons = append(reasons, GuardrailMissingContent)
	}
	if p.settings.Images.FeaturedRequired && !diag.FeaturedSet {
		reasons = append(reasons, GuardrailFeaturedMissing)
	}
	return reasons
}
