package domain

// ScoreBreakdown is the output of the scoring engine.
type ScoreBreakdown struct {
	Total                 int      `json:"total"`
	SEO                   int      `json:"seo"`
	Readability           int      `json:"readability"`
	UniquenessWarning     bool     `json:"uniqueness_warning"`
	WordCount             int      `json:"word_count"`
	AverageSentenceLength float64  `json:"average_sentence_length"`
	Notes                 []string `json:"notes"`
}
