package review

import (
	"testing"

	"github.com/veridex/veridex/internal/model"
)

func reviewedMap() model.TechniqueMap {
	return model.TechniqueMap{
		"doc-a": []model.TechniqueLink{
			{
				TechniqueID: "t-ocf",
				Confidence:  model.ConfidenceHigh,
				Active:      true,
				Evidence: []model.Evidence{
					{Text: "We deployed output filtering in production.", CreatedBy: model.ProvenanceManual, Active: true},
					{Text: "Filtering runs on every response.", CreatedBy: model.ProvenanceNLU, Active: true},
				},
			},
		},
		"doc-b": []model.TechniqueLink{
			{
				TechniqueID: "t-ocf",
				Confidence:  model.ConfidenceMedium,
				Active:      false,
				DeletedBy:   "reviewer-jane",
				Evidence: []model.Evidence{
					{Text: "Filtering is discussed in the appendix.", CreatedBy: model.ProvenanceLLM, Active: false, DeletedBy: "reviewer-jane"},
				},
			},
			{
				TechniqueID: "t-rt",
				Confidence:  model.ConfidenceLow,
				Active:      false,
				DeletedBy:   "llm", // Pipeline deletion, not a human rejection
				Evidence: []model.Evidence{
					{Text: "Red teaming may happen later.", CreatedBy: model.ProvenanceNLU, Active: false},
				},
			},
		},
		"doc-c": []model.TechniqueLink{
			{
				TechniqueID: "t-ocf",
				Confidence:  model.ConfidenceHigh,
				Active:      true,
				Evidence: []model.Evidence{
					// Automated-only link: not human-reviewed, must not index.
					{Text: "A filter scans outputs.", CreatedBy: model.ProvenanceLLM, Active: true},
				},
			},
		},
	}
}

func TestBuildIndex_PositivesAndNegatives(t *testing.T) {
	idx := BuildIndex(reviewedMap())

	positives, negatives := idx.Lookup("t-ocf", "", 3)
	if len(positives) != 2 {
		t.Fatalf("Expected 2 positives from the manually-confirmed link, got %d", len(positives))
	}
	if len(negatives) != 1 {
		t.Fatalf("Expected 1 negative from the human-rejected link, got %d", len(negatives))
	}
	if negatives[0].DocID != "doc-b" {
		t.Errorf("Expected negative sourced from doc-b, got %s", negatives[0].DocID)
	}
}

func TestBuildIndex_PipelineDeletionIsNotNegative(t *testing.T) {
	idx := BuildIndex(reviewedMap())

	positives, negatives := idx.Lookup("t-rt", "", 3)
	if len(positives) != 0 || len(negatives) != 0 {
		t.Errorf("LLM-deleted link must not enter the index, got %d/%d", len(positives), len(negatives))
	}
	if idx.HasHistory("t-rt", "") {
		t.Error("Expected no history for t-rt")
	}
}

func TestBuildIndex_AutomatedLinkNotIndexed(t *testing.T) {
	idx := BuildIndex(reviewedMap())

	positives, _ := idx.Lookup("t-ocf", "", 10)
	for _, p := range positives {
		if p.DocID == "doc-c" {
			t.Error("Automated-only link from doc-c must not be indexed as confirmed")
		}
	}
}

func TestLookup_ExcludesSameDocument(t *testing.T) {
	idx := BuildIndex(reviewedMap())

	positives, negatives := idx.Lookup("t-ocf", "doc-a", 3)
	for _, p := range positives {
		if p.DocID == "doc-a" {
			t.Errorf("Lookup must exclude examples from the document under verification: %v", p)
		}
	}
	_ = negatives

	positives, _ = idx.Lookup("t-ocf", "", 3)
	if len(positives) == 0 {
		t.Error("Without exclusion doc-a positives must be present")
	}
}

func TestLookup_Limit(t *testing.T) {
	idx := BuildIndex(reviewedMap())
	positives, _ := idx.Lookup("t-ocf", "", 1)
	if len(positives) != 1 {
		t.Errorf("Expected limit to cap positives at 1, got %d", len(positives))
	}
}

func TestLookup_UnknownTechnique(t *testing.T) {
	idx := BuildIndex(reviewedMap())
	positives, negatives := idx.Lookup("t-unknown", "", 3)
	if positives != nil || negatives != nil {
		t.Errorf("Expected nil results for unknown technique, got %v/%v", positives, negatives)
	}
}
