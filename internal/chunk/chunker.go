package chunk

import (
	"strings"
	"unicode"
)

// Chunk is one overlapping sentence window of a document.
type Chunk struct {
	Text          string // Joined sentence text
	StartSentence int    // Index of the first sentence in the window (0-based)
	SentenceCount int    // Number of sentences in the window
}

// Chunker splits document text into overlapping sentence windows.
type Chunker struct {
	windowSize     int
	stride         int
	minChunkLength int
}

// NewChunker creates a chunker. Invalid parameters fall back to safe values:
// windowSize >= 1, 1 <= stride <= windowSize.
func NewChunker(windowSize, stride, minChunkLength int) *Chunker {
	if windowSize < 1 {
		windowSize = 1
	}
	if stride < 1 {
		stride = 1
	}
	if stride > windowSize {
		stride = windowSize
	}
	if minChunkLength < 0 {
		minChunkLength = 0
	}
	return &Chunker{
		windowSize:     windowSize,
		stride:         stride,
		minChunkLength: minChunkLength,
	}
}

// Chunks splits text into overlapping windows of windowSize sentences
// advancing by stride. Windows shorter than minChunkLength characters are
// dropped. Empty input produces an empty slice.
func (c *Chunker) Chunks(text string) []Chunk {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	// Fewer sentences than a full window: one chunk with everything.
	if len(sentences) <= c.windowSize {
		joined := strings.Join(sentences, " ")
		if len(joined) < c.minChunkLength {
			return nil
		}
		return []Chunk{{
			Text:          joined,
			StartSentence: 0,
			SentenceCount: len(sentences),
		}}
	}

	var chunks []Chunk
	for start := 0; start < len(sentences); start += c.stride {
		end := start + c.windowSize
		if end > len(sentences) {
			end = len(sentences)
		}

		joined := strings.Join(sentences[start:end], " ")
		if len(joined) >= c.minChunkLength {
			chunks = append(chunks, Chunk{
				Text:          joined,
				StartSentence: start,
				SentenceCount: end - start,
			})
		}

		if end == len(sentences) {
			break
		}
	}

	return chunks
}

// Abbreviations that must not terminate a sentence when followed by a period.
var abbreviations = map[string]bool{
	"e.g": true, "i.e": true, "etc": true, "cf": true, "vs": true,
	"fig": true, "sec": true, "no": true, "vol": true, "pp": true,
	"dr": true, "mr": true, "mrs": true, "ms": true, "prof": true,
	"inc": true, "ltd": true, "co": true, "al": true, "approx": true,
}

// SplitSentences splits text into sentences. The splitter tolerates
// abbreviations, decimal numbers, URLs, ellipses, and section/figure
// references; the failure mode is over-splitting, never a crash. Fragments
// shorter than 20 characters are merged into the following sentence.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// Normalize whitespace so lookahead sees single spaces.
	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	var sentences []string
	var current strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		if r != '.' && r != '!' && r != '?' {
			continue
		}

		// Ellipsis: consume the remaining dots, do not split.
		if r == '.' && i+1 < len(runes) && runes[i+1] == '.' {
			for i+1 < len(runes) && runes[i+1] == '.' {
				i++
				current.WriteRune(runes[i])
			}
			continue
		}

		// Terminator must be followed by a space and then an uppercase
		// letter, digit, or quote to count as a boundary.
		if i+1 >= len(runes) {
			break
		}
		if runes[i+1] != ' ' {
			continue
		}
		if i+2 < len(runes) {
			next := runes[i+2]
			if !unicode.IsUpper(next) && !unicode.IsDigit(next) && next != '"' && next != '\'' {
				continue
			}
		}

		if r == '.' {
			tail := trailingWord(current.String())
			// "3.14." style splits land here with a numeric tail.
			if tail != "" && isNumeric(tail) {
				continue
			}
			if abbreviations[strings.ToLower(tail)] {
				continue
			}
			// URLs and dotted identifiers contain no spaces; if the tail
			// still holds a scheme or www prefix, keep going.
			lower := strings.ToLower(tail)
			if strings.Contains(lower, "://") || strings.HasPrefix(lower, "www.") {
				continue
			}
		}

		sentences = appendSentence(sentences, current.String())
		current.Reset()
		i++ // Skip the boundary space.
	}

	if current.Len() > 0 {
		sentences = appendSentence(sentences, current.String())
	}

	return sentences
}

// appendSentence adds a sentence, merging short fragments into neighbors so
// over-splitting degrades gracefully.
func appendSentence(sentences []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return sentences
	}
	if len(sentences) > 0 && len(sentences[len(sentences)-1]) < 20 {
		sentences[len(sentences)-1] = sentences[len(sentences)-1] + " " + s
		return sentences
	}
	return append(sentences, s)
}

// trailingWord returns the final dot-stripped token of s.
func trailingWord(s string) string {
	s = strings.TrimRight(s, ".")
	idx := strings.LastIndexByte(s, ' ')
	if idx >= 0 {
		s = s[idx+1:]
	}
	return s
}

// isNumeric reports whether s consists of digits and dots only.
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return false
		}
	}
	return true
}
