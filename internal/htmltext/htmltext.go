// Package htmltext converts article HTML into plain text and measures it.
package htmltext

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const ellipsis = "…"

func parse(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// StripTags returns the text content of html with script and style bodies
// removed. Adjacent elements are joined without added whitespace.
func StripTags(html string) string {
	if !strings.ContainsAny(html, "<&") {
		return strings.TrimSpace(html)
	}
	doc, err := parse(html)
	if err != nil {
		return strings.TrimSpace(html)
	}
	doc.Find("script, style").Remove()
	return strings.TrimSpace(doc.Text())
}

// CountElements returns how many elements match selector in html.
func CountElements(html, selector string) int {
	doc, err := parse(html)
	if err != nil {
		return 0
	}
	return doc.Find(selector).Length()
}

// WordCount counts runs of letters, apostrophes and hyphens.
func WordCount(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		if unicode.IsLetter(r) || r == '\'' || r == '-' {
			if !inWord {
				count++
				inWord = true
			}
			continue
		}
		inWord = false
	}
	return count
}

// CollapseSpace replaces every whitespace run with a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TrimWords keeps the first n whitespace-separated words, appending an
// ellipsis when anything was cut.
func TrimWords(text string, n int) string {
	words := strings.Fields(text)
	if n <= 0 {
		return ""
	}
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + ellipsis
}

// Truncate caps s at max runes.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// Snippet strips tags, collapses whitespace and caps the result at max runes.
func Snippet(s string, max int) string {
	return Truncate(CollapseSpace(StripTags(s)), max)
}

var unsafeElements = "script, style, iframe, object, embed, form, input, button, link, meta"

// SanitizeFragment removes active content from an HTML fragment: unsafe
// elements, event-handler attributes and javascript: URLs.
func SanitizeFragment(html string) string {
	if !strings.Contains(html, "<") {
		return html
	}
	doc, err := parse(html)
	if err != nil {
		return ""
	}
	doc.Find(unsafeElements).Remove()
	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, node := range sel.Nodes {
			kept := node.Attr[:0]
			for _, attr := range node.Attr {
				key := strings.ToLower(attr.Key)
				if strings.HasPrefix(key, "on") {
					continue
				}
				if (key == "href" || key == "src") && strings.HasPrefix(strings.ToLower(strings.TrimSpace(attr.Val)), "javascript:") {
					continue
				}
				kept = append(kept, attr)
			}
			node.Attr = kept
		}
	})
	out, err := doc.Find("body").Html()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}
