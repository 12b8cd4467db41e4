package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/veridex/veridex/internal/llm"
	"github.com/veridex/veridex/internal/model"
)

// constantEmbedder returns the same vector for every text, so every chunk
// clears any retrieval threshold below 1.0.
type constantEmbedder struct{}

func (constantEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

// scriptedProvider answers each pass by inspecting the system prompt.
type scriptedProvider struct {
	extraction string
	calls      int
}

func (s *scriptedProvider) Name() string                         { return "scripted" }
func (s *scriptedProvider) IsAvailable(ctx context.Context) bool { return true }

func (s *scriptedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.calls++
	switch {
	case strings.Contains(req.System, "entailment scorer"):
		n := strings.Count(req.Prompt, "\nPREMISE:")
		items := make([]string, n)
		for i := range items {
			items[i] = fmt.Sprintf(`{"pair": %d, "score": 0.9}`, i+1)
		}
		return &llm.CompletionResponse{Text: "[" + strings.Join(items, ",") + "]"}, nil
	case strings.Contains(req.System, "prior human review"):
		return &llm.CompletionResponse{Text: "[]"}, nil
	default:
		return &llm.CompletionResponse{Text: s.extraction, TokensUsed: 50}, nil
	}
}

const pipelineDocText = "We deployed a real-time classifier on all model outputs to block disallowed content before it reaches users. " +
	"The classifier is retrained weekly on newly labeled incidents from our production traffic. " +
	"Separately, our security team runs adversarial exercises against every release candidate build."

func writeTestInputs(t *testing.T) *model.Config {
	t.Helper()
	dir := t.TempDir()

	taxonomy := []model.Technique{{
		ID:         "output-filtering",
		Name:       "Output Content Filtering",
		CategoryID: "deployment",
		NLUProfile: model.NLUProfile{
			PrimaryConcept:       "filtering model outputs for disallowed content",
			EntailmentHypothesis: "The organization filters model outputs.",
		},
	}}
	data, err := json.Marshal(taxonomy)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "taxonomy.json"), data, 0644); err != nil {
		t.Fatal(err)
	}

	docsDir := filepath.Join(dir, "docs")
	if err := os.MkdirAll(docsDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(docsDir, "doc-1.txt"), []byte(pipelineDocText), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := model.DefaultConfig()
	cfg.Paths.Taxonomy = filepath.Join(dir, "taxonomy.json")
	cfg.Paths.DocsDir = docsDir
	cfg.Paths.Metadata = filepath.Join(dir, "metadata.json")
	cfg.Paths.Map = filepath.Join(dir, "technique_map.json")
	cfg.Paths.Checkpoint = filepath.Join(dir, "checkpoint.json")
	cfg.Pipeline.InterCallDelay = time.Millisecond
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	cfg := writeTestInputs(t)
	provider := &scriptedProvider{
		extraction: `[{"techniqueId": "output-filtering", "confidence": "High", "evidence": "The classifier is retrained weekly on newly labeled incidents from our production traffic.", "reasoning": "r"}]`,
	}

	p, err := New(cfg, constantEmbedder{}, provider)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	summary, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.DocsProcessed != 1 || summary.DocsFailed != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Findings == 0 {
		t.Error("expected at least one NLU finding")
	}
	if summary.Additions != 1 {
		t.Errorf("Additions = %d, want 1", summary.Additions)
	}

	// The map was persisted and holds the merged link.
	saved, err := model.LoadTechniqueMap(cfg.Paths.Map)
	if err != nil {
		t.Fatalf("reload map: %v", err)
	}
	link := saved.FindLink("doc-1", "output-filtering")
	if link == nil || !link.Active {
		t.Fatal("merged link missing from saved map")
	}

	// Completed run cleans up its checkpoint.
	if _, err := os.Stat(cfg.Paths.Checkpoint); !os.IsNotExist(err) {
		t.Error("checkpoint should be removed after a clean run")
	}
}

func TestRunResumeSkipsCheckpointedDocs(t *testing.T) {
	cfg := writeTestInputs(t)
	cp := NewCheckpoint()
	cp.MarkDone("doc-1")
	if err := cp.Save(cfg.Paths.Checkpoint); err != nil {
		t.Fatal(err)
	}

	provider := &scriptedProvider{extraction: "[]"}
	p, err := New(cfg, constantEmbedder{}, provider)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	summary, err := p.Run(context.Background(), Options{Resume: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.DocsSkipped != 1 || summary.DocsProcessed != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if provider.calls != 0 {
		t.Error("skipped document must not trigger API calls")
	}
}

func TestRunNLUOnlySkipsExtraction(t *testing.T) {
	cfg := writeTestInputs(t)
	provider := &scriptedProvider{extraction: `[{"techniqueId": "output-filtering", "confidence": "High", "evidence": "x", "reasoning": "r"}]`}

	p, err := New(cfg, constantEmbedder{}, provider)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	summary, err := p.Run(context.Background(), Options{NLUOnly: true})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Additions != 0 || summary.TokensUsed != 0 {
		t.Errorf("NLU-only run must not extract, summary = %+v", summary)
	}
	if summary.Findings == 0 {
		t.Error("NLU-only run should still produce findings")
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	cfg := writeTestInputs(t)
	cfg.Pipeline.DryRun = true
	provider := &scriptedProvider{extraction: "[]"}

	p, err := New(cfg, constantEmbedder{}, provider)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := p.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := os.Stat(cfg.Paths.Map); !os.IsNotExist(err) {
		t.Error("dry run must not write the technique map")
	}
	if _, err := os.Stat(cfg.Paths.Checkpoint); !os.IsNotExist(err) {
		t.Error("dry run must not write the checkpoint")
	}
}

func TestRunIsolatesDocumentFailures(t *testing.T) {
	cfg := writeTestInputs(t)
	// Second, empty document fails to load; the run continues.
	if err := os.WriteFile(filepath.Join(cfg.Paths.DocsDir, "doc-0-empty.txt"), []byte("   "), 0644); err != nil {
		t.Fatal(err)
	}

	provider := &scriptedProvider{extraction: "[]"}
	p, err := New(cfg, constantEmbedder{}, provider)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	summary, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.DocsFailed != 1 || summary.DocsProcessed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if len(summary.Errors) != 1 || summary.Errors[0].DocID != "doc-0-empty" {
		t.Errorf("errors = %+v", summary.Errors)
	}
}

func TestListDocuments(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.txt", "notes.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("text"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := ListDocuments(dir)
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("ids = %v", ids)
	}
}

// flakyProvider fails with a rate-limit error once, then succeeds.
type flakyProvider struct {
	failures int
	calls    int
}

func (f *flakyProvider) Name() string                         { return "flaky" }
func (f *flakyProvider) IsAvailable(ctx context.Context) bool { return true }

func (f *flakyProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("API error (429): too many requests")
	}
	return &llm.CompletionResponse{Text: "ok"}, nil
}

func TestThrottledProviderRetriesAfterRateLimit(t *testing.T) {
	inner := &flakyProvider{failures: 1}
	tp := newThrottledProvider(inner, time.Millisecond, time.Millisecond)

	resp, err := tp.Complete(context.Background(), llm.CompletionRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if resp.Text != "ok" || inner.calls != 2 {
		t.Errorf("resp=%+v calls=%d", resp, inner.calls)
	}
}

func TestThrottledProviderDoesNotRetryOtherErrors(t *testing.T) {
	inner := &scriptedErrProvider{err: errors.New("invalid request")}
	tp := newThrottledProvider(inner, time.Millisecond, time.Millisecond)

	if _, err := tp.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1", inner.calls)
	}
}

type scriptedErrProvider struct {
	err   error
	calls int
}

func (s *scriptedErrProvider) Name() string                         { return "err" }
func (s *scriptedErrProvider) IsAvailable(ctx context.Context) bool { return false }
func (s *scriptedErrProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.calls++
	return nil, s.err
}
