package generation

import (
	"context"
	"strconv"
	"strings"

	"contentengine/internal/domain"
	"contentengine/internal/htmltext"
	"contentengine/internal/infra"
	"contentengine/internal/media"
)

// Sanitizer warnings attached to GenerationPayload.Warnings.
const (
	WarnFeaturedDisallowed  = "featured_removed_disallowed_host"
	WarnFeaturedUnfetchable = "featured_not_fetchable"
	WarnOGDisallowed        = "og_removed_disallowed_host"
	WarnOGUnfetchable       = "og_not_fetchable"
	WarnInlineRemovedPrefix = "inline_removed_count:"
)

// FetchChecker reports whether a URL currently serves an image.
type FetchChecker interface {
	IsFetchable(ctx context.Context, rawURL string) bool
}

// Sanitizer clears or drops payload image URLs that break the image policy,
// optionally probing each survivor. It never fails the payload.
type Sanitizer struct {
	policy media.Policy
	probe  FetchChecker
	logger *infra.Logger
}

// NewSanitizer returns a Sanitizer. A nil probe skips fetchability checks.
func NewSanitizer(policy media.Policy, probe FetchChecker, logger *infra.Logger) *Sanitizer {
	return &Sanitizer{policy: policy, probe: probe, logger: infra.LoggerOrDiscard(logger)}
}

// Hosts returns the allow-listed hosts quoted in the prompt contract.
func (s *Sanitizer) Hosts() []string {
	if s == nil {
		return nil
	}
	return s.policy.AllowedHosts
}

// Sanitize applies the image rules to p in place and returns p.
func (s *Sanitizer) Sanitize(ctx context.Context, p *domain.GenerationPayload) *domain.GenerationPayload {
	if s == nil || p == nil {
		return p
	}
	var warnings []string

	if url := strings.TrimSpace(p.FeaturedImageURL); url != "" {
		switch {
		case !s.policy.Allowed(url):
			p.FeaturedImageURL = ""
			warnings = append(warnings, WarnFeaturedDisallowed)
		case !s.fetchable(ctx, url):
			p.FeaturedImageURL = ""
			warnings = append(warnings, WarnFeaturedUnfetchable)
		}
	}

	if url := strings.TrimSpace(p.OGImageURL); url != "" {
		switch {
		case !s.policy.Allowed(url):
			p.OGImageURL = ""
			warnings = append(warnings, WarnOGDisallowed)
		case !s.fetchable(ctx, url):
			p.OGImageURL = ""
			warnings = append(warnings, WarnOGUnfetchable)
		}
	}

	kept := make([]domain.InlineImage, 0, len(p.InlineImages))
	for _, img := range p.InlineImages {
		url := strings.TrimSpace(img.URL)
		if url == "" || !s.policy.Allowed(url) || !s.fetchable(ctx, url) {
			continue
		}
		kept = append(kept, domain.InlineImage{
			URL:           url,
			Alt:           htmltext.CollapseSpace(htmltext.StripTags(img.Alt)),
			Caption:       htmltext.CollapseSpace(htmltext.StripTags(img.Caption)),
			PlacementHint: domain.NormalizePlacement(img.PlacementHint),
		})
	}
	if removed := len(p.InlineImages) - len(kept); removed > 0 {
		warnings = append(warnings, WarnInlineRemovedPrefix+strconv.Itoa(removed))
	}
	p.InlineImages = kept

	if len(warnings) > 0 {
		p.Warnings = append(p.Warnings, warnings...)
		s.logger.Info().Strs("warnings", warnings).Msg("generation: image fields sanitised")
	}
	return p
}

func (s *Sanitizer) fetchable(ctx context.Context, url string) bool {
	if s.probe == nil {
		return true
	}
	return s.probe.IsFetchable(ctx, url)
}
