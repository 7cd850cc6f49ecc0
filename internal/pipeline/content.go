package pipeline

import (
	"html"
	"regexp"
	"strings"

	"contentengine/internal/domain"
	"contentengine/internal/htmltext"
)

const faqHeading = "Frequently Asked Questions"

var (
	paragraphClose = regexp.MustCompile(`(?i)</p>`)
	headingClose   = regexp.MustCompile(`(?i)</h2>`)
)

// assembleContent appends the call to action and the FAQ section to the
// generated body.
func assembleContent(p *domain.GenerationPayload) string {
	var b strings.Builder
	b.WriteString(p.Content)
	if cta := strings.TrimSpace(p.CTA); cta != "" {
		b.WriteString("\n\n")
		b.WriteString(cta)
	}
	if len(p.FAQ) > 0 {
		b.WriteString("\n\n<h2>" + faqHeading + "</h2>")
		for _, item := range p.FAQ {
			q := strings.TrimSpace(item.Q)
			a := strings.TrimSpace(item.A)
			if q == "" || a == "" {
				continue
			}
			b.WriteString("\n<h3>" + html.EscapeString(q) + "</h3>")
			b.WriteString("\n<p>" + htmltext.SanitizeFragment(a) + "</p>")
		}
	}
	return b.String()
}

// injectInlineImages places each image by its hint, walking hints in
// domain.PlacementOrder.
func injectInlineImages(content string, images []domain.ImportedImage) string {
	for _, hint := range domain.PlacementOrder {
		for _, img := range images {
			if domain.NormalizePlacement(img.PlacementHint) != hint {
				continue
			}
			block := figureBlock(img)
			if block == "" {
				continue
			}
			switch hint {
			case domain.PlacementAfterIntro:
				content = insertAfter(content, block, paragraphClose, 1)
			case domain.PlacementAfterH2One:
				content = insertAfter(content, block, headingClose, 1)
			case domain.PlacementAfterH2Two:
				content = insertAfter(content, block, headingClose, 2)
			default:
				content += "\n\n" + block
			}
		}
	}
	return content
}

func figureBlock(img domain.ImportedImage) string {
	src := strings.TrimSpace(img.URL)
	if src == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<figure><img src="` + html.EscapeString(src) + `" alt="` + html.EscapeString(img.Alt) + `" />`)
	if img.Caption != "" {
		b.WriteString("<figcaption>" + html.EscapeString(img.Caption) + "</figcaption>")
	}
	b.WriteString("</figure>")
	return b.String()
}

// insertAfter places block after the nth match of closer, or appends it when
// there are fewer matches.
func insertAfter(content, block string, closer *regexp.Regexp, n int) string {
	matches := closer.FindAllStringIndex(content, n)
	if len(matches) < n {
		return content + "\n\n" + block
	}
	pos := matches[n-1][1]
	return content[:pos] + "\n\n" + block + "\n\n" + content[pos:]
}
