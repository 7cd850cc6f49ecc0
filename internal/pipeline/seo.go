package pipeline

import (
	"context"
	"strings"

	"contentengine/internal/config"
	"contentengine/internal/domain"
	"contentengine/internal/htmltext"
	"contentengine/internal/media"
)

const metaDescriptionWords = 30

// Post meta keys written by the pipeline.
const (
	MetaTitle           = "_ce_meta_title"
	MetaDescription     = "_ce_meta_description"
	MetaOGTitle         = "_ce_og_title"
	MetaOGDescription   = "_ce_og_description"
	MetaSchema          = "_ce_schema"
	MetaRankMathTitle   = "rank_math_title"
	MetaRankMathDesc    = "rank_math_description"
	MetaRankMathFocusKW = "rank_math_focus_keyword"
	MetaYoastTitle      = "_yoast_wpseo_title"
	MetaYoastDesc       = "_yoast_wpseo_metadesc"
	MetaYoastFocusKW    = "_yoast_wpseo_focuskw"
)

func (p *Pipeline) applyFeaturedImage(ctx context.Context, postID int64, title string, payload *domain.GenerationPayload, rec *recorder) {
	featuredURL := payload.FeaturedURL()
	if featuredURL != "" {
		alt := coalesce(payload.FeaturedImageAlt, title)
		id, err := p.images.SetFeaturedImage(ctx, postID, featuredURL, alt)
		if err != nil {
			rec.imageFailure(media.AsError(err, featuredURL).Failure(domain.ImageStageFeatured), true)
		} else {
			rec.diag.FeaturedSet = true
			rec.diag.FeaturedAttachmentID = id
		}
	}
	if p.settings.Images.FeaturedRequired && featuredURL == "" {
		rec.imageFailure(domain.ImageFailure{
			Stage:       domain.ImageStageFeatured,
			Message:     "Featured image required but not provided.",
			ErrorClass:  domain.ErrorClassUnknown,
			Fingerprint: media.Fingerprint(""),
		}, false)
	}
}

// applySEOMeta writes title, description and focus keyword metadata for the
// native store and every configured SEO plugin, then resolves the OG image.
func (p *Pipeline) applySEOMeta(ctx context.Context, postID int64, title string, payload *domain.GenerationPayload, rec *recorder) {
	keyword := coalesce(payload.PrimaryKeyword, p.settings.Content.KeywordPrimary)
	metaTitle := strings.TrimSpace(payload.MetaTitle)
	if metaTitle == "" {
		metaTitle = strings.NewReplacer(
			"{title}", title,
			"{site_name}", p.settings.SEO.SiteName,
			"{primary_keyword}", keyword,
		).Replace(p.settings.SEO.MetaTitleTemplate)
	}
	metaDesc := strings.TrimSpace(payload.MetaDescription)
	if metaDesc == "" {
		metaDesc = htmltext.TrimWords(htmltext.StripTags(payload.Content), metaDescriptionWords)
	}

	meta := [][2]string{}
	if p.settings.HasPlugin(config.PluginRankMath) {
		meta = append(meta, [2]string{MetaRankMathTitle, metaTitle}, [2]string{MetaRankMathDesc, metaDesc})
		if keyword != "" {
			meta = append(meta, [2]string{MetaRankMathFocusKW, keyword})
		}
	}
	if p.settings.HasPlugin(config.PluginYoast) {
		meta = append(meta, [2]string{MetaYoastTitle, metaTitle}, [2]string{MetaYoastDesc, metaDesc})
		if keyword != "" {
			meta = append(meta, [2]string{MetaYoastFocusKW, keyword})
		}
	}
	meta = append(meta, [2]string{MetaTitle, metaTitle}, [2]string{MetaDescription, metaDesc})
	if v := strings.TrimSpace(payload.OGTitle); v != "" {
		meta = append(meta, [2]string{MetaOGTitle, v})
	}
	if v := strings.TrimSpace(payload.OGDescription); v != "" {
		meta = append(meta, [2]string{MetaOGDescription, v})
	}
	for _, kv := range meta {
		if err := p.posts.SetMeta(ctx, postID, kv[0], kv[1]); err != nil {
			p.logger.Warn().Err(err).Int64("post_id", postID).Str("key", kv[0]).Msg("pipeline: seo meta not stored")
		}
	}

	p.applyOGImage(ctx, postID, title, payload, rec)
}

// applyOGImage prefers an explicit OG URL and otherwise reuses the featured
// attachment when the fallback is enabled.
func (p *Pipeline) applyOGImage(ctx context.Context, postID int64, title string, payload *domain.GenerationPayload, rec *recorder) {
	ogURL := strings.TrimSpace(payload.OGImageURL)
	switch {
	case ogURL != "":
		alt := coalesce(payload.OGImageAlt, title)
		if _, err := p.images.SetOGImage(ctx, postID, ogURL, alt); err != nil {
			rec.imageFailure(media.AsError(err, ogURL).Failure(domain.ImageStageOG), true)
			return
		}
		rec.diag.OGSet = true
	case p.settings.Images.UseFeaturedAsOG && rec.diag.FeaturedSet && rec.diag.FeaturedAttachmentID > 0:
		if err := p.images.LinkOGImage(ctx, postID, rec.diag.FeaturedAttachmentID, ""); err != nil {
			p.logger.Warn().Err(err).Int64("post_id", postID).Msg("pipeline: og fallback not linked")
			rec.log(domain.LogEntry{Source: domain.LogSourceImage, Stage: domain.ImageStageOG, Message: "Could not link featured image as OG image."})
			return
		}
		rec.diag.OGSet = true
	}
}

// applyInlineImages imports up to the configured number of inline images,
// injects them and stores the updated body. It returns the new content.
func (p *Pipeline) applyInlineImages(ctx context.Context, postID int64, content string, images []domain.InlineImage, rec *recorder) string {
	if !p.settings.Images.EnableInlineInjection || len(images) == 0 {
		return content
	}
	limit := p.settings.Images.InlineImageCount
	if limit < len(images) {
		images = images[:limit]
	}
	if len(images) == 0 {
		return content
	}
	res := p.images.ImportInlineImages(ctx, postID, images)
	for _, f := range res.Errors {
		rec.imageFailure(f, true)
	}
	rec.diag.InlineImported = len(res.Items)
	rec.diag.Inline = res.Items
	if len(res.Items) == 0 {
		return content
	}
	content = injectInlineImages(content, res.Items)
	if err := p.posts.Update(ctx, postID, domain.PostUpdate{Content: &content}); err != nil {
		p.logger.Warn().Err(err).Int64("post_id", postID).Msg("pipeline: inline content not stored")
	}
	return content
}
