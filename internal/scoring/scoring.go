// Package scoring grades article HTML against SEO and readability heuristics.
// Score is pure: the same input always yields the same breakdown.
package scoring

import (
	"math"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"contentengine/internal/domain"
	"contentengine/internal/htmltext"
)

const (
	pointsKeywordTitle      = 20
	pointsKeywordIntro      = 15
	pointsKeywordConclusion = 15
	pointsHeadings          = 15
	pointsInternalLinks     = 10
	pointsExternalLinks     = 10
	pointsLongForm          = 15
	pointsMediumForm        = 8

	edgeWindow        = 500
	minH2Headings     = 3
	minInternalLinks  = 3
	minExternalLinks  = 2
	longFormWords     = 1200
	mediumFormWords   = 800
	uniquenessWords   = 500
	longSentenceWords = 25
	wordySentence     = 20
	longPenalty       = 30
	wordyPenalty      = 15
)

// Notes emitted when a heuristic is missed.
const (
	NoteKeywordTitle      = "Primary keyword not found in title."
	NoteKeywordIntro      = "Primary keyword not found in introduction."
	NoteKeywordConclusion = "Primary keyword not found in conclusion."
	NoteHeadings          = "Consider adding more H2 sections for structure."
	NoteInternalLinks     = "Add more internal links to relevant content."
	NoteExternalLinks     = "Add more external authority links where relevant."
	NoteExpand            = "Consider expanding the article for deeper coverage."
	NoteShort             = "Content is relatively short; long-form tends to perform better."
	NoteLongSentences     = "Sentences are long; consider breaking them up."
	NoteUniqueness        = "Short content may have trouble standing out; ensure the topic coverage is unique."
)

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// Input is everything the engine looks at.
type Input struct {
	Title         string
	Content       string
	Keywords      []string
	InternalLinks int
	ExternalLinks int
}

// Score computes the breakdown for in.
func Score(in Input) domain.ScoreBreakdown {
	text := htmltext.StripTags(in.Content)
	wordCount := htmltext.WordCount(text)
	notes := []string{}
	seo := 0

	primary := ""
	if len(in.Keywords) > 0 {
		primary = strings.TrimSpace(in.Keywords[0])
	}
	if primary != "" {
		if containsFold(in.Title, primary) {
			seo += pointsKeywordTitle
		} else {
			notes = append(notes, NoteKeywordTitle)
		}
		if containsFold(head(in.Content, edgeWindow), primary) {
			seo += pointsKeywordIntro
		} else {
			notes = append(notes, NoteKeywordIntro)
		}
		if containsFold(tail(in.Content, edgeWindow), primary) {
			seo += pointsKeywordConclusion
		} else {
			notes = append(notes, NoteKeywordConclusion)
		}
	}

	if htmltext.CountElements(in.Content, "h2") >= minH2Headings {
		seo += pointsHeadings
	} else {
		notes = append(notes, NoteHeadings)
	}

	if in.InternalLinks >= minInternalLinks {
		seo += pointsInternalLinks
	} else {
		notes = append(notes, NoteInternalLinks)
	}
	if in.ExternalLinks >= minExternalLinks {
		seo += pointsExternalLinks
	} else {
		notes = append(notes, NoteExternalLinks)
	}

	switch {
	case wordCount >= longFormWords:
		seo += pointsLongForm
	case wordCount >= mediumFormWords:
		seo += pointsMediumForm
		notes = append(notes, NoteExpand)
	default:
		notes = append(notes, NoteShort)
	}

	avg := averageSentenceLength(text)
	readability := 100
	switch {
	case avg > longSentenceWords:
		readability -= longPenalty
		notes = append(notes, NoteLongSentences)
	case avg > wordySentence:
		readability -= wordyPenalty
	}

	uniqueness := false
	if wordCount < uniquenessWords {
		uniqueness = true
		notes = append(notes, NoteUniqueness)
	}

	total := int(math.Round(float64(seo)*0.6 + float64(readability)*0.4))
	total = min(100, max(0, total))

	return domain.ScoreBreakdown{
		Total:                 total,
		SEO:                   seo,
		Readability:           readability,
		UniquenessWarning:     uniqueness,
		WordCount:             wordCount,
		AverageSentenceLength: avg,
		Notes:                 notes,
	}
}

func averageSentenceLength(text string) float64 {
	words, sentences := 0, 0
	for _, s := range sentenceSplit.Split(text, -1) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		sentences++
		words += htmltext.WordCount(s)
	}
	if sentences == 0 {
		return 0
	}
	return float64(words) / float64(sentences)
}

func containsFold(haystack, needle string) bool {
	fold := cases.Fold()
	return strings.Contains(fold.String(haystack), fold.String(needle))
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
