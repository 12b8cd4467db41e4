// Package nlu implements the two-stage NLU pass: high-recall semantic
// retrieval followed by precision-oriented entailment verification.
package nlu

import (
	"context"
	"fmt"

	"github.com/veridex/veridex/internal/chunk"
	"github.com/veridex/veridex/internal/embed"
	"github.com/veridex/veridex/internal/model"
)

// Candidate is a (chunk, technique) pair that passed retrieval. The list may
// contain several hits for the same technique from different chunks; no
// dedup happens at this stage.
type Candidate struct {
	Chunk          chunk.Chunk
	Technique      *model.Technique
	RetrievalScore float64
}

// Retriever is the stage-1 high-recall filter: multi-vector cosine
// similarity between technique targets and document chunks.
type Retriever struct {
	embedder  embed.Embedder
	taxonomy  *model.Taxonomy
	threshold float64
}

// NewRetriever creates a retriever over the given taxonomy.
func NewRetriever(embedder embed.Embedder, taxonomy *model.Taxonomy, threshold float64) *Retriever {
	return &Retriever{
		embedder:  embedder,
		taxonomy:  taxonomy,
		threshold: threshold,
	}
}

// Retrieve returns all (chunk, technique) candidates whose best
// target-vs-chunk cosine similarity exceeds the retrieval threshold.
// Techniques whose category appears in the document's excluded topics are
// skipped before any similarity computation.
func (r *Retriever) Retrieve(ctx context.Context, doc *model.Document, chunks []chunk.Chunk) ([]Candidate, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	// Embed every chunk once per document, in one batch call.
	chunkTexts := make([]string, len(chunks))
	for i, c := range chunks {
		chunkTexts[i] = c.Text
	}
	chunkVectors, err := r.embedder.EmbedBatch(ctx, chunkTexts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	var candidates []Candidate
	var meta *model.ContentMetadata
	if doc != nil {
		meta = doc.Metadata
	}

	for i := range r.taxonomy.Techniques {
		tech := &r.taxonomy.Techniques[i]

		// Category short-circuit: no embedding work for excluded topics.
		if meta.ExcludesCategory(tech.CategoryID) {
			continue
		}

		targets := tech.RetrievalTargets()
		if len(targets) == 0 {
			continue
		}

		// Anchor vectors are cached by the embedder wrapper, so this is
		// cheap after the first document.
		targetVectors, err := r.embedder.EmbedBatch(ctx, targets)
		if err != nil {
			return nil, fmt.Errorf("embed targets for %s: %w", tech.ID, err)
		}

		for ci, cv := range chunkVectors {
			best := 0.0
			for _, tv := range targetVectors {
				if sim := embed.Cosine(cv, tv); sim > best {
					best = sim
				}
			}
			if best > r.threshold {
				candidates = append(candidates, Candidate{
					Chunk:          chunks[ci],
					Technique:      tech,
					RetrievalScore: best,
				})
			}
		}
	}

	return candidates, nil
}
