package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/veridex/veridex/internal/model"
	"github.com/veridex/veridex/internal/review"
)

func reviewedIndex() *review.Index {
	m := model.TechniqueMap{
		"doc-a": {
			{
				TechniqueID: "output-filtering",
				Confidence:  model.ConfidenceHigh,
				Active:      true,
				Evidence: []model.Evidence{
					{Text: "All responses pass through a moderation layer.", CreatedBy: model.ProvenanceManual, Active: true},
				},
			},
		},
		"doc-b": {
			{
				TechniqueID: "output-filtering",
				Confidence:  model.ConfidenceLow,
				Active:      false,
				DeletedBy:   "reviewer-jane",
				Evidence: []model.Evidence{
					{Text: "Filtering has been studied in prior work.", CreatedBy: model.ProvenanceLLM, Active: false, DeletedBy: "reviewer-jane"},
				},
			},
		},
	}
	return review.BuildIndex(m)
}

func TestVerifyNoHistoryIsUnverifiable(t *testing.T) {
	provider := &fakeProvider{response: "[]"}
	v := NewRAGVerifier(provider, reviewedIndex(), 3, false)

	results := v.Verify(context.Background(), "doc-new", []Addition{
		{TechniqueID: "red-teaming", Evidence: "We run red-team exercises."},
	})

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Verdict != VerdictUnverifiable {
		t.Errorf("verdict = %q, want unverifiable", results[0].Verdict)
	}
	if results[0].Reason != "no review history" {
		t.Errorf("reason = %q", results[0].Reason)
	}
	if len(provider.requests) != 0 {
		t.Error("no LLM call should be made when no candidate has history")
	}
}

func TestVerifyParsesVerdicts(t *testing.T) {
	provider := &fakeProvider{response: `[{"candidate": 1, "verdict": "reject", "reason": "matches the rejected citation pattern"}]`}
	v := NewRAGVerifier(provider, reviewedIndex(), 3, false)

	results := v.Verify(context.Background(), "doc-new", []Addition{
		{TechniqueID: "output-filtering", Evidence: "Filtering has been discussed in the literature."},
	})

	if results[0].Verdict != VerdictReject {
		t.Errorf("verdict = %q, want reject", results[0].Verdict)
	}
	if results[0].Reason == "" {
		t.Error("reject verdict should carry the model's reason")
	}

	prompt := provider.requests[0].Prompt
	if !strings.Contains(prompt, "All responses pass through a moderation layer.") {
		t.Error("prompt missing confirmed example")
	}
	if !strings.Contains(prompt, "Filtering has been studied in prior work.") {
		t.Error("prompt missing rejected example")
	}
}

func TestVerifyExcludesOwnDocumentHistory(t *testing.T) {
	// doc-a is the only source of positives; verifying doc-a itself must not
	// see them, and with no negatives left the candidate is unverifiable.
	provider := &fakeProvider{response: "[]"}
	m := model.TechniqueMap{
		"doc-a": {
			{
				TechniqueID: "output-filtering",
				Confidence:  model.ConfidenceHigh,
				Active:      true,
				Evidence: []model.Evidence{
					{Text: "All responses pass through a moderation layer.", CreatedBy: model.ProvenanceManual, Active: true},
				},
			},
		},
	}
	v := NewRAGVerifier(provider, review.BuildIndex(m), 3, false)

	results := v.Verify(context.Background(), "doc-a", []Addition{
		{TechniqueID: "output-filtering", Evidence: "New candidate evidence."},
	})

	if results[0].Verdict != VerdictUnverifiable {
		t.Errorf("verdict = %q, want unverifiable when only own-document history exists", results[0].Verdict)
	}
	if len(provider.requests) != 0 {
		t.Error("self-confirmation call should not happen")
	}
}

func TestVerifyMissingVerdictDefaultsToConfirm(t *testing.T) {
	provider := &fakeProvider{response: "[]"}
	v := NewRAGVerifier(provider, reviewedIndex(), 3, false)

	results := v.Verify(context.Background(), "doc-new", []Addition{
		{TechniqueID: "output-filtering", Evidence: "We filter all model outputs."},
	})

	if results[0].Verdict != VerdictConfirm {
		t.Errorf("verdict = %q, want confirm when the model omits a candidate", results[0].Verdict)
	}
}

func TestVerifyAPIErrorPassesThrough(t *testing.T) {
	provider := &fakeProvider{err: errors.New("rate limit exceeded")}
	v := NewRAGVerifier(provider, reviewedIndex(), 3, false)

	results := v.Verify(context.Background(), "doc-new", []Addition{
		{TechniqueID: "output-filtering", Evidence: "We filter all model outputs."},
	})

	if results[0].Verdict != VerdictUnverifiable {
		t.Errorf("verdict = %q, want unverifiable on API failure", results[0].Verdict)
	}
	if results[0].Reason != "verification unavailable" {
		t.Errorf("reason = %q", results[0].Reason)
	}
}

func TestVerifyMalformedResponsePassesThrough(t *testing.T) {
	provider := &fakeProvider{response: "I think the first candidate looks fine."}
	v := NewRAGVerifier(provider, reviewedIndex(), 3, false)

	results := v.Verify(context.Background(), "doc-new", []Addition{
		{TechniqueID: "output-filtering", Evidence: "We filter all model outputs."},
	})

	if results[0].Verdict != VerdictUnverifiable {
		t.Errorf("verdict = %q, want unverifiable on parse failure", results[0].Verdict)
	}
}
