package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/veridex/veridex/internal/nlu"
)

// entailmentSystemPrompt asks for calibrated numeric scores only.
const entailmentSystemPrompt = `You are a textual entailment scorer. For each numbered pair, output how strongly the PREMISE supports the HYPOTHESIS as a probability between 0.0 and 1.0. A premise that directly asserts the hypothesis scores near 1.0; a premise that is unrelated or contradicts it scores near 0.0. Mentions, citations, and future plans do not entail implementation claims.`

// ChatEntailmentScorer scores premise/hypothesis pairs through a chat
// completion. It implements nlu.EntailmentScorer for deployments without a
// dedicated cross-encoder service.
type ChatEntailmentScorer struct {
	provider Provider
	model    string
}

// NewChatEntailmentScorer creates an entailment scorer backed by the given
// provider. An empty model uses the provider default.
func NewChatEntailmentScorer(provider Provider, model string) *ChatEntailmentScorer {
	return &ChatEntailmentScorer{provider: provider, model: model}
}

var _ nlu.EntailmentScorer = (*ChatEntailmentScorer)(nil)

// ScorePairs scores all pairs in a single batched call. Pairs the model
// fails to score come back as 0.
func (s *ChatEntailmentScorer) ScorePairs(ctx context.Context, pairs []nlu.Pair) ([]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	var b strings.Builder
	for i, p := range pairs {
		fmt.Fprintf(&b, "PAIR %d\nPREMISE: %s\nHYPOTHESIS: %s\n\n", i+1, p.Premise, p.Hypothesis)
	}
	b.WriteString(`OUTPUT FORMAT:
Return ONLY a JSON array with one object per pair, in order:
  {"pair": <number>, "score": <0.0-1.0>}
`)

	resp, err := s.provider.Complete(ctx, CompletionRequest{
		System: entailmentSystemPrompt,
		Prompt: b.String(),
		Model:  s.model,
	})
	if err != nil {
		return nil, fmt.Errorf("entailment call: %w", err)
	}

	items, ok := parseEntailmentScores(resp.Text)
	if !ok {
		return nil, fmt.Errorf("unparseable entailment response (%d chars)", len(resp.Text))
	}

	scores := make([]float64, len(pairs))
	for _, item := range items {
		idx := item.Pair - 1
		if idx < 0 || idx >= len(pairs) {
			continue
		}
		score := item.Score
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		scores[idx] = score
	}
	return scores, nil
}

type entailmentScore struct {
	Pair  int     `json:"pair"`
	Score float64 `json:"score"`
}

func parseEntailmentScores(text string) ([]entailmentScore, bool) {
	text = stripCodeFences(text)
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, false
	}
	var items []entailmentScore
	if err := json.Unmarshal([]byte(text[start:end+1]), &items); err != nil {
		return nil, false
	}
	return items, true
}
