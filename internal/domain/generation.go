package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// WordRange bounds the requested article length.
type WordRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// GenerationContext is the normalized input handed to a generation provider.
type GenerationContext struct {
	Subject   string    `json:"subject"`
	Keywords  []string  `json:"keywords"`
	Audience  string    `json:"audience"`
	Intent    string    `json:"intent"`
	Tone      string    `json:"tone"`
	Voice     string    `json:"voice"`
	WordRange WordRange `json:"word_count_range"`
}

// PrimaryKeyword returns the first keyword or an empty string.
func (c GenerationContext) PrimaryKeyword() string {
	if len(c.Keywords) == 0 {
		return ""
	}
	return c.Keywords[0]
}

// FAQItem is one question/answer pair.
type FAQItem struct {
	Q string `json:"q"`
	A string `json:"a"`
}

// LinkHint describes a suggested internal or external link.
type LinkHint struct {
	Anchor     string `json:"anchor"`
	TargetHint string `json:"target_hint,omitempty"`
	URL        string `json:"url,omitempty"`
}

// UnmarshalJSON accepts either an object or a bare anchor string.
func (l *LinkHint) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var anchor string
		if err := json.Unmarshal(data, &anchor); err != nil {
			return err
		}
		*l = LinkHint{Anchor: anchor}
		return nil
	}
	type plain LinkHint
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*l = LinkHint(out)
	return nil
}

// Placement hints for inline images, in injection order.
const (
	PlacementAfterIntro = "after_intro"
	PlacementAfterH2One = "after_h2_1"
	PlacementAfterH2Two = "after_h2_2"
	PlacementEnd        = "end"
)

// PlacementOrder lists the hints in the order images are injected.
var PlacementOrder = []string{PlacementAfterIntro, PlacementAfterH2One, PlacementAfterH2Two, PlacementEnd}

// NormalizePlacement maps unknown or empty hints to PlacementEnd.
func NormalizePlacement(hint string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	for _, known := range PlacementOrder {
		if hint == known {
			return hint
		}
	}
	return PlacementEnd
}

// InlineImage is an image suggested for the article body.
type InlineImage struct {
	URL           string `json:"url"`
	Alt           string `json:"alt"`
	Caption       string `json:"caption,omitempty"`
	PlacementHint string `json:"placement_hint,omitempty"`
}

// GenerationPayload is the normalized output of a generation provider.
type GenerationPayload struct {
	Title               string          `json:"title"`
	TitleOptions        []string        `json:"title_options,omitempty"`
	Content             string          `json:"content"`
	Excerpt             string          `json:"excerpt,omitempty"`
	FAQ                 []FAQItem       `json:"faq,omitempty"`
	CTA                 string          `json:"cta,omitempty"`
	InternalLinks       []LinkHint      `json:"internal_links,omitempty"`
	ExternalLinks       []LinkHint      `json:"external_links,omitempty"`
	FeaturedImageURL    string          `json:"featured_image_url"`
	LegacyFeaturedImage string          `json:"featured_image,omitempty"`
	FeaturedImageAlt    string          `json:"featured_image_alt"`
	OGImageURL          string          `json:"og_image_url"`
	OGImageAlt          string          `json:"og_image_alt,omitempty"`
	InlineImages        []InlineImage   `json:"inline_images"`
	MetaTitle           string          `json:"meta_title,omitempty"`
	MetaDescription     string          `json:"meta_description,omitempty"`
	OGTitle             string          `json:"og_title,omitempty"`
	OGDescription       string          `json:"og_description,omitempty"`
	PrimaryKeyword      string          `json:"primary_keyword,omitempty"`
	SchemaJSONLD        json.RawMessage `json:"schema_jsonld,omitempty"`

	// Warnings lists non-fatal sanitisation outcomes.
	Warnings []string `json:"-"`
}

// FeaturedURL returns the featured image URL, honouring the legacy key.
func (p *GenerationPayload) FeaturedURL() string {
	if u := strings.TrimSpace(p.FeaturedImageURL); u != "" {
		return u
	}
	return strings.TrimSpace(p.LegacyFeaturedImage)
}
