package generation

import (
	"encoding/json"
	"fmt"
	"strings"

	"contentengine/internal/config"
	"contentengine/internal/domain"
)

const (
	defaultWordMin = 800
	defaultWordMax = 2000
)

type promptContract struct {
	Subject      string            `json:"subject"`
	Keywords     []string          `json:"keywords"`
	Audience     string            `json:"audience"`
	Intent       string            `json:"intent"`
	Tone         string            `json:"tone"`
	Voice        string            `json:"voice"`
	WordRange    domain.WordRange  `json:"word_count_range"`
	Output       map[string]string `json:"output_contract"`
	ImageRules   imageRules        `json:"image_output_rules_mandatory"`
	Instructions string            `json:"instructions"`
}

type imageRules struct {
	ReturnFields []string `json:"return_fields"`
	Constraints  []string `json:"hard_constraints"`
	Validation   []string `json:"validation_before_returning"`
}

var outputContract = map[string]string{
	"title":              "string",
	"title_options":      "string[]",
	"content":            "html string with H2/H3 headings",
	"excerpt":            "short plain text summary",
	"faq":                "array of { q, a }",
	"cta":                "html string",
	"internal_links":     "array of { anchor, target_hint }",
	"external_links":     "array of { anchor, url }",
	"featured_image_url": "string (url or empty)",
	"featured_image_alt": "string",
	"og_image_url":       "string (url or empty)",
	"inline_images":      "array of { url, alt, caption?, placement_hint? }",
	"meta_title":         "string",
	"meta_description":   "string",
	"og_title":           "string",
	"og_description":     "string",
	"schema_jsonld":      "Article + FAQPage JSON-LD",
}

// buildUserPrompt renders the JSON contract sent as the user message.
func buildUserPrompt(gc domain.GenerationContext, hosts []string) string {
	if len(hosts) == 0 {
		hosts = config.DefaultAllowedHosts
	}
	hostList := strings.Join(hosts, ", ")
	wr := gc.WordRange
	if wr.Min <= 0 {
		wr.Min = defaultWordMin
	}
	if wr.Max <= 0 {
		wr.Max = defaultWordMax
	}
	keywords := gc.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	contract := promptContract{
		Subject:   gc.Subject,
		Keywords:  keywords,
		Audience:  gc.Audience,
		Intent:    gc.Intent,
		Tone:      coalesce(gc.Tone, "professional"),
		Voice:     coalesce(gc.Voice, "third_person"),
		WordRange: wr,
		Output:    outputContract,
		ImageRules: imageRules{
			ReturnFields: []string{"featured_image_url", "featured_image_alt", "og_image_url", "inline_images"},
			Constraints: []string{
				"1) URLs must be HTTPS.",
				"2) Host must be one of: " + hostList,
				"3) URL path must end with: .jpg, .jpeg, .png, or .webp",
				"4) No placeholder or example domains.",
				"5) No HTML pages or preview links.",
				"6) If no compliant image exists, return empty strings for featured_image_url and og_image_url, and empty array for inline_images.",
			},
			Validation: []string{
				`If featured_image_url fails any rule, set it to "".`,
				`If og_image_url fails any rule, set it to "".`,
				"Remove any inline_images entries whose url fails rules.",
			},
		},
		Instructions: fmt.Sprintf("Return only valid JSON that conforms to this contract. "+
			"Do not include markdown fences or commentary. Write helpful, accurate content. "+
			"Use natural anchors for internal/external links. "+
			"IMAGE OUTPUT RULES (MANDATORY): Return featured_image_url, featured_image_alt, og_image_url, inline_images. "+
			"URLs must be HTTPS; host must be one of %s; path must end with .jpg, .jpeg, .png, or .webp. "+
			"No placeholder domains or HTML/preview links. If no compliant image exists, return empty strings and empty array. "+
			`If featured_image_url or og_image_url fails any rule set to ""; remove invalid inline_images entries.`, hostList),
	}
	raw, err := json.Marshal(contract)
	if err != nil {
		return "Generate a long-form article about: " + gc.Subject
	}
	return "Generate a long-form article according to this JSON contract and context: " + string(raw)
}
