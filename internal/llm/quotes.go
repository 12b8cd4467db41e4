package llm

import (
	"strings"
	"unicode"

	"github.com/veridex/veridex/internal/chunk"
)

// AnchorQuote locates the closest true substring of the source document for
// an LLM-produced evidence quote. Exact substring match wins immediately;
// otherwise source sentences are scored by keyword overlap combined with
// word-sequence similarity. Quotes scoring below the threshold keep the
// LLM's text unchanged and report matched=false so callers can record the
// original for audit.
func AnchorQuote(quote, docText string, threshold float64) (anchored string, matched bool) {
	quote = strings.TrimSpace(quote)
	if quote == "" || docText == "" {
		return quote, false
	}

	if strings.Contains(docText, quote) {
		return quote, true
	}

	quoteKeywords := keywords(quote)
	quoteWords := normalizeWords(quote)
	if len(quoteWords) == 0 {
		return quote, false
	}

	best := 0.0
	bestSentence := ""
	for _, sentence := range chunk.SplitSentences(docText) {
		score := combinedScore(quoteKeywords, quoteWords, sentence)
		if score > best {
			best = score
			bestSentence = sentence
		}
	}

	if best >= threshold && bestSentence != "" {
		return bestSentence, true
	}
	return quote, false
}

// combinedScore averages keyword overlap and sequence similarity.
func combinedScore(quoteKeywords map[string]bool, quoteWords []string, sentence string) float64 {
	overlap := keywordOverlap(quoteKeywords, sentence)
	ratio := sequenceRatio(quoteWords, normalizeWords(sentence))
	return (overlap + ratio) / 2
}

// keywords extracts lowercase alphanumeric tokens of length >= 4.
func keywords(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range normalizeWords(text) {
		if len(w) >= 4 {
			set[w] = true
		}
	}
	return set
}

// keywordOverlap returns the fraction of quote keywords present in the
// sentence.
func keywordOverlap(quoteKeywords map[string]bool, sentence string) float64 {
	if len(quoteKeywords) == 0 {
		return 0
	}
	sentenceWords := make(map[string]bool)
	for _, w := range normalizeWords(sentence) {
		sentenceWords[w] = true
	}
	hits := 0
	for w := range quoteKeywords {
		if sentenceWords[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(quoteKeywords))
}

// sequenceRatio is 2*LCS / (len(a)+len(b)) over word sequences, the
// word-level analogue of a difflib ratio.
func sequenceRatio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	// Single-row LCS table.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}

	lcs := prev[len(b)]
	return 2 * float64(lcs) / float64(len(a)+len(b))
}

// normalizeWords lowercases and strips punctuation, returning word tokens.
func normalizeWords(text string) []string {
	var words []string
	var current strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}
	return words
}
