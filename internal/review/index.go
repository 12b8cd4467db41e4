// Package review builds the per-run review index: confirmed and rejected
// technique examples sourced from the human-reviewed subset of the persisted
// technique map. The index is a projection, never persisted on its own.
package review

import (
	"github.com/veridex/veridex/internal/model"
)

// Example is one reviewed evidence snippet with its source document.
type Example struct {
	DocID      string
	Text       string
	Confidence model.Confidence
}

// Entry holds the review history for one technique.
type Entry struct {
	Positives []Example // From confirmed-positive links
	Negatives []Example // From confirmed-negative (human-rejected) links
}

// Index maps techniqueId to its review history.
type Index struct {
	entries map[string]*Entry
}

// BuildIndex scans the technique map for manually-reviewed links and
// collects confirmed/rejected evidence snippets per technique.
func BuildIndex(m model.TechniqueMap) *Index {
	idx := &Index{entries: make(map[string]*Entry)}

	for docID, links := range m {
		for i := range links {
			link := &links[i]
			switch {
			case link.IsConfirmedPositive():
				entry := idx.entry(link.TechniqueID)
				for _, ev := range link.Evidence {
					if !ev.Active || ev.Text == "" {
						continue
					}
					entry.Positives = append(entry.Positives, Example{
						DocID:      docID,
						Text:       ev.Text,
						Confidence: link.Confidence,
					})
				}
			case link.IsConfirmedNegative():
				entry := idx.entry(link.TechniqueID)
				for _, ev := range link.Evidence {
					if ev.Text == "" {
						continue
					}
					entry.Negatives = append(entry.Negatives, Example{
						DocID:      docID,
						Text:       ev.Text,
						Confidence: link.Confidence,
					})
				}
			}
		}
	}

	return idx
}

func (idx *Index) entry(techniqueID string) *Entry {
	e, ok := idx.entries[techniqueID]
	if !ok {
		e = &Entry{}
		idx.entries[techniqueID] = e
	}
	return e
}

// Lookup returns up to limit positives and negatives for a technique,
// excluding examples sourced from excludeDocID. Verifying a document against
// its own prior review history would be circular self-confirmation.
func (idx *Index) Lookup(techniqueID, excludeDocID string, limit int) (positives, negatives []Example) {
	entry, ok := idx.entries[techniqueID]
	if !ok {
		return nil, nil
	}

	take := func(examples []Example) []Example {
		var out []Example
		for _, ex := range examples {
			if ex.DocID == excludeDocID {
				continue
			}
			out = append(out, ex)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return out
	}

	return take(entry.Positives), take(entry.Negatives)
}

// HasHistory reports whether any external review history exists for a
// technique relative to the given document.
func (idx *Index) HasHistory(techniqueID, excludeDocID string) bool {
	positives, negatives := idx.Lookup(techniqueID, excludeDocID, 1)
	return len(positives) > 0 || len(negatives) > 0
}

// Size returns the number of techniques with any review history.
func (idx *Index) Size() int {
	return len(idx.entries)
}
