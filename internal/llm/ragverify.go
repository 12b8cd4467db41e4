package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/veridex/veridex/internal/review"
)

// Verdict is the pass-2 decision for one candidate.
type Verdict string

const (
	// VerdictConfirm keeps the candidate.
	VerdictConfirm Verdict = "confirm"
	// VerdictReject drops the candidate as a likely false positive.
	VerdictReject Verdict = "reject"
	// VerdictUnverifiable passes the candidate through unchanged: no review
	// history existed, or verification itself failed.
	VerdictUnverifiable Verdict = "unverifiable"
)

// Verification is the pass-2 outcome for one candidate, in input order.
type Verification struct {
	TechniqueID string
	Verdict     Verdict
	Reason      string
}

// RAGVerifier cross-checks pass-1 additions against the human review
// history for each technique.
type RAGVerifier struct {
	provider    Provider
	index       *review.Index
	maxExamples int
	verbose     bool
}

// NewRAGVerifier creates a pass-2 verifier. maxExamples caps the confirmed
// and rejected exemplars retrieved per candidate (each side separately).
func NewRAGVerifier(provider Provider, index *review.Index, maxExamples int, verbose bool) *RAGVerifier {
	if maxExamples <= 0 {
		maxExamples = 3
	}
	return &RAGVerifier{
		provider:    provider,
		index:       index,
		maxExamples: maxExamples,
		verbose:     verbose,
	}
}

// Verify judges each addition against prior review decisions for its
// technique. Evidence from the document under review is never used as an
// exemplar. Verification is advisory: on API or parse failure every
// candidate comes back Unverifiable rather than the document failing.
func (v *RAGVerifier) Verify(ctx context.Context, docID string, additions []Addition) []Verification {
	results := make([]Verification, len(additions))
	var candidates []VerificationCandidate
	var candidateIdx []int

	for i, add := range additions {
		results[i] = Verification{TechniqueID: add.TechniqueID, Verdict: VerdictUnverifiable}

		positives, negatives := v.index.Lookup(add.TechniqueID, docID, v.maxExamples)
		if len(positives) == 0 && len(negatives) == 0 {
			// Covers both an unreviewed technique and history consisting
			// solely of this document's own evidence.
			results[i].Reason = "no review history"
			continue
		}

		candidates = append(candidates, VerificationCandidate{
			TechniqueID: add.TechniqueID,
			Evidence:    add.Evidence,
			Positives:   positives,
			Negatives:   negatives,
		})
		candidateIdx = append(candidateIdx, i)
	}

	if len(candidates) == 0 {
		return results
	}

	prompt := BuildVerificationPrompt(docID, candidates)
	resp, err := v.provider.Complete(ctx, CompletionRequest{
		System:      verificationSystemPrompt,
		Prompt:      prompt,
		Temperature: 0.1,
	})
	if err != nil {
		// Advisory pass: candidates survive when verification is down.
		if v.verbose {
			fmt.Fprintf(os.Stderr, "Warning: verification call failed for %s: %v\n", docID, err)
		}
		for _, i := range candidateIdx {
			results[i].Reason = "verification unavailable"
		}
		return results
	}

	verdicts, ok := parseVerdicts(resp.Text)
	if !ok {
		if v.verbose {
			fmt.Fprintf(os.Stderr, "Warning: unparseable verification response for %s\n", docID)
		}
		for _, i := range candidateIdx {
			results[i].Reason = "verification unavailable"
		}
		return results
	}

	byNumber := make(map[int]verdictItem, len(verdicts))
	for _, vd := range verdicts {
		byNumber[vd.Candidate] = vd
	}

	for n, i := range candidateIdx {
		vd, found := byNumber[n+1]
		if !found {
			// A candidate the model skipped defaults to confirm: rejection
			// requires an explicit verdict.
			results[i].Verdict = VerdictConfirm
			continue
		}
		switch strings.ToLower(strings.TrimSpace(vd.Verdict)) {
		case "reject":
			results[i].Verdict = VerdictReject
		default:
			results[i].Verdict = VerdictConfirm
		}
		results[i].Reason = vd.Reason
	}

	return results
}

type verdictItem struct {
	Candidate int    `json:"candidate"`
	Verdict   string `json:"verdict"`
	Reason    string `json:"reason"`
}

func parseVerdicts(text string) ([]verdictItem, bool) {
	text = stripCodeFences(text)
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, false
	}
	var items []verdictItem
	if err := json.Unmarshal([]byte(text[start:end+1]), &items); err != nil {
		return nil, false
	}
	return items, true
}
