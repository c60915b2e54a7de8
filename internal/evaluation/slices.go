package evaluation

import (
	"strings"

	"github.com/modelbay-labs/modelbay-go/internal/dataset"
)

// SliceFunc reports whether a record belongs to a named data slice.
type SliceFunc func(dataset.Record) bool

// DefaultSlices are the subpopulations the gate always reports on:
// LLM-adjacent NLP projects and projects with very short descriptions,
// both known weak spots for bag-of-words models.
func DefaultSlices() map[string]SliceFunc {
	return map[string]SliceFunc{
		"nlp_llm":    isNLPLLM,
		"short_text": isShortText,
	}
}

func isNLPLLM(r dataset.Record) bool {
	if r.Tag != "natural-language-processing" {
		return false
	}
	text := strings.ToLower(r.Text())
	for _, kw := range []string{"transformer", "llm", "bert"} {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func isShortText(r dataset.Record) bool {
	return len(strings.Fields(r.Text())) < 8
}
