package nlu

import (
	"context"
	"fmt"
	"sort"

	"github.com/veridex/veridex/internal/model"
)

// Pair is one (premise, hypothesis) pair submitted to the entailment scorer.
type Pair struct {
	Premise    string
	Hypothesis string
}

// EntailmentScorer scores (chunk, hypothesis) pairs and returns an
// entailment probability in [0,1] for each, preserving input order.
type EntailmentScorer interface {
	ScorePairs(ctx context.Context, pairs []Pair) ([]float64, error)
}

// Finding is the verified, aggregated result for one technique in one
// document: the output unit of the NLU pass.
type Finding struct {
	TechniqueID string
	Confidence  model.Confidence
	Evidence    []string // Deduplicated snippets, capped
	BestScore   float64  // Highest adjusted score across surviving chunks
}

// Verifier is the stage-2 precision filter: entailment scoring, ordered
// quality filters, and multi-factor confidence adjustment.
type Verifier struct {
	scorer      EntailmentScorer
	filter      *QualityFilter
	threshold   float64
	maxEvidence int
}

// NewVerifier creates a verifier.
func NewVerifier(scorer EntailmentScorer, threshold float64, maxEvidence int) *Verifier {
	if maxEvidence <= 0 {
		maxEvidence = 3
	}
	return &Verifier{
		scorer:      scorer,
		filter:      NewQualityFilter(),
		threshold:   threshold,
		maxEvidence: maxEvidence,
	}
}

// Verify scores all candidates against their technique hypotheses, drops
// those below the verification threshold or matching a quality filter, and
// aggregates survivors per technique.
func (v *Verifier) Verify(ctx context.Context, doc *model.Document, candidates []Candidate) ([]Finding, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	pairs := make([]Pair, len(candidates))
	for i, cand := range candidates {
		pairs[i] = Pair{
			Premise:    cand.Chunk.Text,
			Hypothesis: cand.Technique.NLUProfile.EntailmentHypothesis,
		}
	}

	probs, err := v.scorer.ScorePairs(ctx, pairs)
	if err != nil {
		return nil, fmt.Errorf("entailment scoring: %w", err)
	}
	if len(probs) != len(candidates) {
		return nil, fmt.Errorf("entailment scorer returned %d scores for %d pairs", len(probs), len(candidates))
	}

	var meta *model.ContentMetadata
	if doc != nil {
		meta = doc.Metadata
	}

	type scored struct {
		text  string
		score float64
	}
	byTechnique := make(map[string][]scored)
	order := []string{}

	for i, cand := range candidates {
		if probs[i] < v.threshold {
			continue
		}
		if reason := v.filter.Check(cand.Chunk.Text, cand.Technique); reason != "" {
			continue
		}

		final, _ := AdjustConfidence(probs[i], cand.Chunk.Text, meta)

		id := cand.Technique.ID
		if _, seen := byTechnique[id]; !seen {
			order = append(order, id)
		}
		byTechnique[id] = append(byTechnique[id], scored{text: cand.Chunk.Text, score: final})
	}

	findings := make([]Finding, 0, len(order))
	for _, id := range order {
		hits := byTechnique[id]

		// Best-scoring snippets first, then dedup by exact text and cap.
		sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

		seen := make(map[string]bool)
		var evidence []string
		best := 0.0
		for _, h := range hits {
			if h.score > best {
				best = h.score
			}
			if seen[h.text] {
				continue
			}
			seen[h.text] = true
			if len(evidence) < v.maxEvidence {
				evidence = append(evidence, h.text)
			}
		}

		findings = append(findings, Finding{
			TechniqueID: id,
			Confidence:  model.ConfidenceFromScore(best),
			Evidence:    evidence,
			BestScore:   best,
		})
	}

	return findings, nil
}
