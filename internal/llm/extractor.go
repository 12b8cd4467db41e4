package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/veridex/veridex/internal/model"
)

// Addition is one pass-1 technique detection.
type Addition struct {
	TechniqueID string
	Confidence  model.Confidence
	Evidence    string // Anchored to exact source text when fuzzy matching succeeds
	Reasoning   string
	QuoteAudit  string // Original LLM quote when anchoring rewrote it; empty otherwise
}

// Deletion is one pass-1 suggestion to drop a previously-found candidate.
// Only meaningful when NLU candidates were supplied for review.
type Deletion struct {
	TechniqueID string
	Reasoning   string
}

// ExtractionResult is the outcome of one pass-1 call.
type ExtractionResult struct {
	Additions  []Addition
	Deletions  []Deletion
	Truncated  bool // Document exceeded the token budget
	TokensUsed int
}

// Extractor runs pass 1: whole-document technique classification with
// few-shot guidance.
type Extractor struct {
	provider       Provider
	taxonomy       *model.Taxonomy
	tokenBudget    int
	quoteThreshold float64
	verbose        bool
}

// NewExtractor creates a pass-1 extractor.
func NewExtractor(provider Provider, taxonomy *model.Taxonomy, tokenBudget int, quoteThreshold float64, verbose bool) *Extractor {
	if tokenBudget <= 0 {
		tokenBudget = 24000
	}
	if quoteThreshold <= 0 {
		quoteThreshold = 0.4
	}
	return &Extractor{
		provider:       provider,
		taxonomy:       taxonomy,
		tokenBudget:    tokenBudget,
		quoteThreshold: quoteThreshold,
		verbose:        verbose,
	}
}

// Extract submits the document and taxonomy to the LLM and parses the
// addition/deletion candidates. API failures return an error (the document
// is retried on a later run); malformed responses degrade to an empty
// result.
func (e *Extractor) Extract(ctx context.Context, doc *model.Document, nluCandidates []string) (*ExtractionResult, error) {
	docText, truncated := truncateToBudget(doc.Text, e.tokenBudget)
	if truncated {
		docText += TruncationMarker
	}

	prompt := BuildExtractionPrompt(doc, docText, e.taxonomy, nluCandidates)

	resp, err := e.provider.Complete(ctx, CompletionRequest{
		System:      extractionSystemPrompt,
		Prompt:      prompt,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction call: %w", err)
	}

	result := &ExtractionResult{
		Truncated:  truncated,
		TokensUsed: resp.TokensUsed,
	}

	items, ok := parseExtractionItems(resp.Text)
	if !ok {
		// Malformed output degrades to "no candidates extracted".
		if e.verbose {
			fmt.Fprintf(os.Stderr, "Warning: unparseable extraction response for %s (%d chars)\n", doc.ID, len(resp.Text))
		}
		return result, nil
	}

	for _, item := range items {
		if e.taxonomy.Get(item.TechniqueID) == nil {
			if e.verbose {
				fmt.Fprintf(os.Stderr, "Warning: extraction named unknown technique %q, skipping\n", item.TechniqueID)
			}
			continue
		}

		if item.Delete {
			result.Deletions = append(result.Deletions, Deletion{
				TechniqueID: item.TechniqueID,
				Reasoning:   item.Reasoning,
			})
			continue
		}

		if strings.TrimSpace(item.Evidence) == "" {
			continue
		}

		// Quotes are not trusted verbatim: anchor to the real source text.
		anchored, matched := AnchorQuote(item.Evidence, doc.Text, e.quoteThreshold)
		addition := Addition{
			TechniqueID: item.TechniqueID,
			Confidence:  normalizeConfidence(item.Confidence),
			Evidence:    anchored,
			Reasoning:   item.Reasoning,
		}
		if matched && anchored != item.Evidence {
			addition.QuoteAudit = item.Evidence
		}
		result.Additions = append(result.Additions, addition)
	}

	return result, nil
}

// extractionItem mirrors the JSON output contract.
type extractionItem struct {
	TechniqueID string `json:"techniqueId"`
	Confidence  string `json:"confidence"`
	Evidence    string `json:"evidence"`
	Reasoning   string `json:"reasoning"`
	Delete      bool   `json:"delete"`
}

// parseExtractionItems extracts the JSON array from a completion, tolerating
// markdown fences and surrounding prose. Returns ok=false when no valid
// array can be recovered.
func parseExtractionItems(text string) ([]extractionItem, bool) {
	text = stripCodeFences(text)

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, false
	}

	var items []extractionItem
	if err := json.Unmarshal([]byte(text[start:end+1]), &items); err != nil {
		return nil, false
	}
	return items, true
}

// stripCodeFences removes markdown code fences around a response.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// normalizeConfidence maps free-form confidence strings to the canonical
// labels, defaulting to Medium.
func normalizeConfidence(s string) model.Confidence {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return model.ConfidenceHigh
	case "low":
		return model.ConfidenceLow
	default:
		return model.ConfidenceMedium
	}
}

// truncateToBudget cuts text to roughly tokenBudget tokens using the
// four-characters-per-token estimate, breaking at a word boundary.
func truncateToBudget(text string, tokenBudget int) (string, bool) {
	maxChars := tokenBudget * 4
	if len(text) <= maxChars {
		return text, false
	}

	cut := text[:maxChars]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut, true
}
