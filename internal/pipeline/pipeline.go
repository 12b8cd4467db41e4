// Package pipeline runs the batch curation loop: NLU pass, LLM extraction
// pass, RAG verification pass, and provenance-aware merging, one document at
// a time with checkpointing between documents.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/veridex/veridex/internal/chunk"
	"github.com/veridex/veridex/internal/embed"
	"github.com/veridex/veridex/internal/llm"
	"github.com/veridex/veridex/internal/merge"
	"github.com/veridex/veridex/internal/model"
	"github.com/veridex/veridex/internal/nlu"
	"github.com/veridex/veridex/internal/review"
)

// Options selects what a run processes.
type Options struct {
	IDs     []string // Specific documents; empty means all in the docs dir
	Resume  bool     // Skip documents the checkpoint already recorded
	NLUOnly bool     // Run only the retrieval + entailment pass
	LLMOnly bool     // Run only the extraction + verification passes
}

// DocError records a per-document failure; one bad document never aborts
// the run.
type DocError struct {
	DocID string
	Err   error
}

// Summary aggregates what a run did.
type Summary struct {
	DocsProcessed int
	DocsSkipped   int
	DocsFailed    int
	Findings      int // NLU findings merged
	Additions     int // LLM additions merged (post-verification)
	Rejected      int // Additions dropped by RAG verification
	Merge         merge.Stats
	TokensUsed    int
	Duration      time.Duration
	Errors        []DocError
}

// Print writes a human-readable run summary.
func (s *Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "\nRun complete in %s\n", s.Duration.Round(time.Second))
	fmt.Fprintf(w, "  documents: %d processed, %d skipped, %d failed\n", s.DocsProcessed, s.DocsSkipped, s.DocsFailed)
	fmt.Fprintf(w, "  findings:  %d NLU, %d LLM additions (%d rejected by verification)\n", s.Findings, s.Additions, s.Rejected)
	fmt.Fprintf(w, "  map:       +%d links, +%d evidence, %d reactivated, %d soft-deleted, %d deletions skipped\n",
		s.Merge.LinksAdded, s.Merge.EvidenceAdded, s.Merge.LinksReactivated, s.Merge.LinksDeleted, s.Merge.DeletionsSkipped)
	fmt.Fprintf(w, "  tokens:    %d\n", s.TokensUsed)
	for _, e := range s.Errors {
		fmt.Fprintf(w, "  error:     %s: %v\n", e.DocID, e.Err)
	}
}

// Pipeline holds the wired stages for one run.
type Pipeline struct {
	cfg       *model.Config
	taxonomy  *model.Taxonomy
	catalog   map[string]*model.ContentMetadata
	techMap   model.TechniqueMap
	chunker   *chunk.Chunker
	retriever *nlu.Retriever
	verifier  *nlu.Verifier
	extractor *llm.Extractor
	provider  llm.Provider
}

// New loads run inputs and wires the stages. The embedder and provider are
// injected so tests can run without network access; both are wrapped here
// with caching and rate limiting respectively.
func New(cfg *model.Config, embedder embed.Embedder, provider llm.Provider) (*Pipeline, error) {
	taxonomy, err := model.LoadTaxonomy(cfg.Paths.Taxonomy)
	if err != nil {
		return nil, err
	}

	catalog, err := model.LoadMetadataCatalog(cfg.Paths.Metadata)
	if err != nil {
		return nil, err
	}

	techMap, err := model.LoadTechniqueMap(cfg.Paths.Map)
	if err != nil {
		return nil, err
	}

	cached := embed.NewCachedEmbedder(embedder, time.Hour)
	throttled := newThrottledProvider(provider, cfg.Pipeline.InterCallDelay, cfg.Pipeline.RateLimitBackoff)

	scorer := llm.NewChatEntailmentScorer(throttled, "")

	return &Pipeline{
		cfg:       cfg,
		taxonomy:  taxonomy,
		catalog:   catalog,
		techMap:   techMap,
		chunker:   chunk.NewChunker(cfg.Chunker.WindowSize, cfg.Chunker.Stride, cfg.Chunker.MinChunkLength),
		retriever: nlu.NewRetriever(cached, taxonomy, cfg.NLU.RetrievalThreshold),
		verifier:  nlu.NewVerifier(scorer, cfg.NLU.VerificationThreshold, cfg.NLU.MaxEvidencePerTechnique),
		extractor: llm.NewExtractor(throttled, taxonomy, cfg.LLM.TokenBudget, 0.4, cfg.Output.Verbose),
		provider:  throttled,
	}, nil
}

// Map exposes the loaded technique map, mainly for inspection commands.
func (p *Pipeline) Map() model.TechniqueMap {
	return p.techMap
}

// Run processes the selected documents sequentially, merging and
// checkpointing after each one.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	ids := opts.IDs
	if len(ids) == 0 {
		var err error
		ids, err = ListDocuments(p.cfg.Paths.DocsDir)
		if err != nil {
			return nil, err
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no documents found in %s", p.cfg.Paths.DocsDir)
	}

	var cp *Checkpoint
	if opts.Resume {
		var err error
		cp, err = LoadCheckpoint(p.cfg.Paths.Checkpoint)
		if err != nil {
			return nil, err
		}
	} else {
		cp = NewCheckpoint()
	}

	// The review index is a run-start snapshot of the human-reviewed subset.
	// Results merged during this run do not feed back into verification.
	index := review.BuildIndex(p.techMap)
	ragVerifier := llm.NewRAGVerifier(p.provider, index, 3, p.cfg.Output.Verbose)

	for n, id := range ids {
		if cp.Done(id) {
			summary.DocsSkipped++
			continue
		}

		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", n+1, len(ids), id)

		doc, err := LoadDocument(p.cfg.Paths.DocsDir, id, p.catalog)
		if err != nil {
			summary.DocsFailed++
			summary.Errors = append(summary.Errors, DocError{DocID: id, Err: err})
			continue
		}

		if err := p.processDocument(ctx, doc, opts, ragVerifier, summary); err != nil {
			summary.DocsFailed++
			summary.Errors = append(summary.Errors, DocError{DocID: id, Err: err})
			continue
		}

		summary.DocsProcessed++
		cp.MarkDone(id)

		if !p.cfg.Pipeline.DryRun {
			if err := p.techMap.Save(p.cfg.Paths.Map); err != nil {
				return summary, fmt.Errorf("save technique map: %w", err)
			}
			if err := cp.Save(p.cfg.Paths.Checkpoint); err != nil {
				return summary, fmt.Errorf("save checkpoint: %w", err)
			}
		}
	}

	if summary.DocsFailed == 0 && !p.cfg.Pipeline.DryRun {
		if err := RemoveCheckpoint(p.cfg.Paths.Checkpoint); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	summary.Duration = time.Since(start)
	return summary, nil
}

// processDocument runs the enabled passes for one document and merges the
// outcome into the in-memory map.
func (p *Pipeline) processDocument(ctx context.Context, doc *model.Document, opts Options, ragVerifier *llm.RAGVerifier, summary *Summary) error {
	var findings []nlu.Finding

	if !opts.LLMOnly {
		chunks := p.chunker.Chunks(doc.Text)
		candidates, err := p.retriever.Retrieve(ctx, doc, chunks)
		if err != nil {
			return fmt.Errorf("retrieval: %w", err)
		}
		findings, err = p.verifier.Verify(ctx, doc, candidates)
		if err != nil {
			return fmt.Errorf("verification: %w", err)
		}
		summary.Findings += len(findings)
	}

	var additions []llm.Addition
	var deletions []llm.Deletion

	if !opts.NLUOnly {
		nluIDs := make([]string, 0, len(findings))
		for _, f := range findings {
			nluIDs = append(nluIDs, f.TechniqueID)
		}

		result, err := p.extractor.Extract(ctx, doc, nluIDs)
		if err != nil {
			return fmt.Errorf("extraction: %w", err)
		}
		summary.TokensUsed += result.TokensUsed
		deletions = result.Deletions

		verdicts := ragVerifier.Verify(ctx, doc.ID, result.Additions)
		for i, add := range result.Additions {
			if verdicts[i].Verdict == llm.VerdictReject {
				summary.Rejected++
				if p.cfg.Output.Verbose {
					fmt.Fprintf(os.Stderr, "  rejected %s: %s\n", add.TechniqueID, verdicts[i].Reason)
				}
				continue
			}
			additions = append(additions, add)
		}
		summary.Additions += len(additions)
	}

	stats := merge.Apply(p.techMap, doc.ID, findings, additions, deletions)
	summary.Merge.LinksAdded += stats.LinksAdded
	summary.Merge.LinksReactivated += stats.LinksReactivated
	summary.Merge.EvidenceAdded += stats.EvidenceAdded
	summary.Merge.LinksDeleted += stats.LinksDeleted
	summary.Merge.DeletionsSkipped += stats.DeletionsSkipped
	summary.Merge.AdditionsSkipped += stats.AdditionsSkipped

	return nil
}

// throttledProvider spaces completion calls with a rate limiter and retries
// once after a detected rate-limit error.
type throttledProvider struct {
	inner   llm.Provider
	limiter *rate.Limiter
	backoff time.Duration
}

func newThrottledProvider(inner llm.Provider, delay, backoff time.Duration) *throttledProvider {
	if delay <= 0 {
		delay = time.Second
	}
	return &throttledProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
		backoff: backoff,
	}
}

func (t *throttledProvider) Name() string { return t.inner.Name() }

func (t *throttledProvider) IsAvailable(ctx context.Context) bool {
	return t.inner.IsAvailable(ctx)
}

func (t *throttledProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := t.inner.Complete(ctx, req)
	if err == nil || !llm.IsRateLimitError(err) {
		return resp, err
	}

	fmt.Fprintf(os.Stderr, "Rate limited, backing off %s\n", t.backoff)
	select {
	case <-time.After(t.backoff):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return t.inner.Complete(ctx, req)
}
