// Package merge folds pipeline results for one document into the persisted
// technique map. Human review decisions always win: merging never removes
// human-origin evidence and never resurrects human-rejected links.
package merge

import (
	"github.com/veridex/veridex/internal/llm"
	"github.com/veridex/veridex/internal/model"
	"github.com/veridex/veridex/internal/nlu"
)

// PipelineDeleter is the identity recorded when the pipeline soft-deletes a
// link or evidence entry.
const PipelineDeleter = "llm"

// Stats counts what one document's merge changed.
type Stats struct {
	LinksAdded       int // New (document, technique) links created
	LinksReactivated int // Pipeline-deleted links revived by fresh evidence
	EvidenceAdded    int // New evidence entries appended
	LinksDeleted     int // Links soft-deleted on LLM suggestion
	DeletionsSkipped int // Deletions refused because manual evidence exists
	AdditionsSkipped int // Additions refused because a human rejected the link
}

// Changed reports whether the merge modified the map at all.
func (s Stats) Changed() bool {
	return s.LinksAdded > 0 || s.LinksReactivated > 0 || s.EvidenceAdded > 0 || s.LinksDeleted > 0
}

// Apply merges one document's results into the map, in order: NLU findings,
// then LLM additions, then LLM deletion suggestions. Additions for the same
// technique accumulate evidence with exact-text dedup; re-running the same
// inputs is a no-op.
func Apply(tm model.TechniqueMap, docID string, findings []nlu.Finding, additions []llm.Addition, deletions []llm.Deletion) Stats {
	var stats Stats

	for _, f := range findings {
		evidence := make([]model.Evidence, 0, len(f.Evidence))
		for _, text := range f.Evidence {
			evidence = append(evidence, model.Evidence{
				Text:      text,
				CreatedBy: model.ProvenanceNLU,
				Active:    true,
			})
		}
		upsertLink(tm, docID, f.TechniqueID, f.Confidence, evidence, &stats)
	}

	for _, add := range additions {
		ev := model.Evidence{
			Text:       add.Evidence,
			CreatedBy:  model.ProvenanceLLM,
			Active:     true,
			QuoteAudit: add.QuoteAudit,
		}
		upsertLink(tm, docID, add.TechniqueID, add.Confidence, []model.Evidence{ev}, &stats)
	}

	for _, del := range deletions {
		applyDeletion(tm, docID, del.TechniqueID, &stats)
	}

	return stats
}

// upsertLink adds or extends a (document, technique) link with pipeline
// evidence. Human-rejected links are left untouched.
func upsertLink(tm model.TechniqueMap, docID, techniqueID string, confidence model.Confidence, evidence []model.Evidence, stats *Stats) {
	link := tm.FindLink(docID, techniqueID)

	if link == nil {
		newLink := model.TechniqueLink{
			TechniqueID: techniqueID,
			Confidence:  confidence,
			Active:      true,
		}
		for _, ev := range evidence {
			if newLink.FindEvidence(ev.Text) >= 0 {
				continue
			}
			newLink.Evidence = append(newLink.Evidence, ev)
			stats.EvidenceAdded++
		}
		if len(newLink.Evidence) == 0 {
			return
		}
		tm[docID] = append(tm[docID], newLink)
		stats.LinksAdded++
		return
	}

	if link.IsConfirmedNegative() {
		// A human rejected this link; the pipeline does not argue.
		stats.AdditionsSkipped++
		return
	}

	added := 0
	for _, ev := range evidence {
		if link.FindEvidence(ev.Text) >= 0 {
			continue
		}
		link.Evidence = append(link.Evidence, ev)
		stats.EvidenceAdded++
		added++
	}

	if added == 0 {
		return
	}

	if !link.Active {
		// Previously pipeline-deleted; fresh evidence revives it.
		link.Active = true
		link.DeletedBy = ""
		stats.LinksReactivated++
	}
	if confidenceRank(confidence) > confidenceRank(link.Confidence) {
		link.Confidence = confidence
	}
}

// applyDeletion soft-deletes a link on LLM suggestion, unless human evidence
// protects it.
func applyDeletion(tm model.TechniqueMap, docID, techniqueID string, stats *Stats) {
	link := tm.FindLink(docID, techniqueID)
	if link == nil || !link.Active {
		return
	}

	if link.HasManualEvidence() {
		stats.DeletionsSkipped++
		return
	}

	link.Active = false
	link.DeletedBy = PipelineDeleter
	for i := range link.Evidence {
		ev := &link.Evidence[i]
		if ev.Active && !ev.CreatedBy.IsHuman() {
			ev.Active = false
			ev.DeletedBy = PipelineDeleter
		}
	}
	stats.LinksDeleted++
}

func confidenceRank(c model.Confidence) int {
	switch c {
	case model.ConfidenceHigh:
		return 3
	case model.ConfidenceMedium:
		return 2
	case model.ConfidenceLow:
		return 1
	}
	return 0
}
