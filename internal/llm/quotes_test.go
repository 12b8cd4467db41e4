package llm

import (
	"strings"
	"testing"
)

const anchorDoc = `Our deployment pipeline runs every output through a safety classifier before release. ` +
	`We also maintain an incident response playbook for model failures. ` +
	`Training data is filtered for personally identifiable information prior to every run.`

func TestAnchorQuoteExactMatch(t *testing.T) {
	quote := "We also maintain an incident response playbook for model failures."
	anchored, matched := AnchorQuote(quote, anchorDoc, 0.4)
	if !matched {
		t.Fatal("expected exact substring to match")
	}
	if anchored != quote {
		t.Errorf("exact match should not rewrite the quote, got %q", anchored)
	}
}

func TestAnchorQuoteFuzzyMatch(t *testing.T) {
	// Paraphrased quote: same content words, different phrasing.
	quote := "Every output runs through a safety classifier in our deployment pipeline before release"
	anchored, matched := AnchorQuote(quote, anchorDoc, 0.4)
	if !matched {
		t.Fatal("expected fuzzy match to succeed")
	}
	if !strings.Contains(anchorDoc, anchored) {
		t.Errorf("anchored quote %q is not a substring of the document", anchored)
	}
	if !strings.Contains(anchored, "safety classifier") {
		t.Errorf("anchored to the wrong sentence: %q", anchored)
	}
}

func TestAnchorQuoteBelowThresholdKeepsOriginal(t *testing.T) {
	quote := "The quarterly revenue exceeded all analyst expectations this fiscal year"
	anchored, matched := AnchorQuote(quote, anchorDoc, 0.4)
	if matched {
		t.Fatal("unrelated quote should not match")
	}
	if anchored != quote {
		t.Errorf("unmatched quote must be preserved verbatim, got %q", anchored)
	}
}

func TestAnchorQuoteEmptyInputs(t *testing.T) {
	if _, matched := AnchorQuote("", anchorDoc, 0.4); matched {
		t.Error("empty quote should not match")
	}
	if _, matched := AnchorQuote("some quote", "", 0.4); matched {
		t.Error("empty document should not match")
	}
}

func TestSequenceRatio(t *testing.T) {
	a := []string{"the", "model", "filters", "outputs"}
	if got := sequenceRatio(a, a); got != 1.0 {
		t.Errorf("identical sequences: got %v, want 1.0", got)
	}
	if got := sequenceRatio(a, []string{"completely", "different", "words"}); got != 0 {
		t.Errorf("disjoint sequences: got %v, want 0", got)
	}
	// Half-overlapping: LCS("a b c d", "a b x y") = 2, ratio = 4/8.
	got := sequenceRatio([]string{"a", "b", "c", "d"}, []string{"a", "b", "x", "y"})
	if got != 0.5 {
		t.Errorf("partial overlap: got %v, want 0.5", got)
	}
}
