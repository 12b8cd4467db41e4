package llm

import (
	"fmt"
	"strings"

	"github.com/veridex/veridex/internal/model"
	"github.com/veridex/veridex/internal/review"
)

// extractionSystemPrompt biases the model toward conservative matching.
const extractionSystemPrompt = `You are an analyst mapping AI-model safety techniques to textual evidence in public source documents. You only report techniques the document states are actually implemented or deployed. Mentions, citations, definitions, comparisons, and future plans are NOT evidence. When in doubt, leave a technique out.`

// fewShotExemplars are static, dataset-independent examples of true-positive
// and false-positive patterns. They never include material from the corpus
// being processed, so no run can leak its own ground truth into the prompt.
const fewShotExemplars = `EXAMPLES OF CORRECT JUDGMENTS:

TRUE POSITIVE - implementation language:
  Text: "We deployed a real-time classifier on all model outputs to block disallowed content."
  Judgment: evidence for Output Content Filtering. The document asserts deployment.

FALSE POSITIVE - citation only:
  Text: "Red-teaming approaches have been explored by Perez et al. (2022)."
  Judgment: no evidence. A citation describes the literature, not this system.

FALSE POSITIVE - future work:
  Text: "We plan to implement continuous adversarial testing next year."
  Judgment: no evidence. Planned work is not an implemented technique.

FALSE POSITIVE - glossary/definition:
  Text: "Glossary: watermarking is the practice of embedding signals in generated media."
  Judgment: no evidence. Definitions assert nothing about this system.

FALSE POSITIVE - negated/contrastive mention:
  Text: "Unlike systems that rely on output filtering, our model is aligned during training."
  Judgment: no evidence for Output Content Filtering. The document denies using it.

FALSE POSITIVE - attack vs. defense confusion:
  Text: "Prompt injection can bypass guardrails in many deployed systems."
  Judgment: no evidence. Describing an attack is not evidence of a defense.

FALSE POSITIVE - vague compliance language:
  Text: "We follow industry best practices for responsible AI."
  Judgment: no evidence for any specific technique.`

// extractionOutputContract fixes the JSON shape the extractor parses.
const extractionOutputContract = `OUTPUT FORMAT:
Return ONLY a JSON array. Each element is one of:
  {"techniqueId": "<id>", "confidence": "High|Medium|Low", "evidence": "<verbatim quote from the document>", "reasoning": "<one sentence>"}
  {"techniqueId": "<id>", "delete": true, "reasoning": "<one sentence>"}
Deletion objects are only valid for technique IDs listed under CANDIDATES UNDER REVIEW.
Return [] if no techniques are evidenced. No prose outside the JSON array.`

// TruncationMarker is appended when a document exceeds the token budget, so
// the model knows it is not seeing the full text.
const TruncationMarker = "\n\n[TRUNCATED: the remainder of this document was omitted for length]"

// BuildExtractionPrompt assembles the pass-1 prompt: taxonomy, document
// metadata, NLU candidates (when available), exemplars, and document text.
func BuildExtractionPrompt(doc *model.Document, docText string, taxonomy *model.Taxonomy, nluCandidates []string) string {
	var b strings.Builder

	b.WriteString("TECHNIQUE TAXONOMY:\n")
	for _, tech := range taxonomy.Techniques {
		fmt.Fprintf(&b, "- %s (%s, category %s): %s\n", tech.ID, tech.Name, tech.CategoryID, tech.Description)
	}

	if doc.Metadata != nil {
		b.WriteString("\nDOCUMENT METADATA:\n")
		m := doc.Metadata
		if m.DocumentPurpose != "" {
			fmt.Fprintf(&b, "- purpose: %s\n", m.DocumentPurpose)
		}
		if m.SignalStrength != "" {
			fmt.Fprintf(&b, "- signal strength: %s\n", m.SignalStrength)
		}
		if m.TemporalFocus != "" {
			fmt.Fprintf(&b, "- temporal focus: %s\n", m.TemporalFocus)
		}
		if m.TechnicalDepth != "" {
			fmt.Fprintf(&b, "- technical depth: %s\n", m.TechnicalDepth)
		}
		if len(m.PrimaryTopics) > 0 {
			fmt.Fprintf(&b, "- primary topics: %s\n", strings.Join(m.PrimaryTopics, ", "))
		}
	}

	if len(nluCandidates) > 0 {
		b.WriteString("\nCANDIDATES UNDER REVIEW (from a prior retrieval pass - confirm, ignore, or flag for deletion):\n")
		for _, id := range nluCandidates {
			fmt.Fprintf(&b, "- %s\n", id)
		}
	}

	b.WriteString("\n")
	b.WriteString(fewShotExemplars)
	b.WriteString("\n\n")
	b.WriteString(extractionOutputContract)

	fmt.Fprintf(&b, "\n\nDOCUMENT (%s):\n%s\n", doc.ID, docText)

	return b.String()
}

// verificationSystemPrompt frames pass 2: re-judging candidates against
// prior human review decisions for the same technique.
const verificationSystemPrompt = `You are reviewing candidate technique detections against prior human review decisions. Confirmed examples show evidence humans accepted for a technique; rejected examples show text humans judged to be false positives. Decide whether each candidate's evidence resembles the confirmed or the rejected pattern.`

// VerificationCandidate is one pass-1 addition with its review history.
type VerificationCandidate struct {
	TechniqueID string
	Evidence    string
	Positives   []review.Example
	Negatives   []review.Example
}

// BuildVerificationPrompt assembles the single batched pass-2 prompt for a
// document's candidates.
func BuildVerificationPrompt(docID string, candidates []VerificationCandidate) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Candidates detected in document %q:\n", docID)
	for i, c := range candidates {
		fmt.Fprintf(&b, "\nCANDIDATE %d - technique %s\n", i+1, c.TechniqueID)
		fmt.Fprintf(&b, "Evidence: %q\n", c.Evidence)
		if len(c.Positives) > 0 {
			b.WriteString("Confirmed examples from other documents:\n")
			for _, ex := range c.Positives {
				fmt.Fprintf(&b, "  + %q\n", ex.Text)
			}
		}
		if len(c.Negatives) > 0 {
			b.WriteString("Rejected examples from other documents:\n")
			for _, ex := range c.Negatives {
				fmt.Fprintf(&b, "  - %q\n", ex.Text)
			}
		}
	}

	b.WriteString(`
OUTPUT FORMAT:
Return ONLY a JSON array with one object per candidate, in order:
  {"candidate": <number>, "verdict": "confirm" | "reject", "reason": "<one sentence>"}
`)

	return b.String()
}
