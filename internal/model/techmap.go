package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Provenance identifies which actor created an evidence entry or link.
type Provenance string

const (
	ProvenanceManual    Provenance = "manual"    // Added or confirmed by a human reviewer
	ProvenanceNLU       Provenance = "nlu"       // Retrieval + entailment pass
	ProvenanceLLM       Provenance = "llm"       // LLM extraction pass
	ProvenanceCommunity Provenance = "community" // External community contribution
	ProvenanceLegacy    Provenance = "legacy"    // Imported before provenance tracking existed
)

// IsHuman reports whether the provenance indicates human origin.
// Community contributions count: they are reviewed before landing.
func (p Provenance) IsHuman() bool {
	return p == ProvenanceManual || p == ProvenanceCommunity
}

// Confidence is the coarse confidence label carried by a technique link.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// ConfidenceFromScore maps a final multi-factor score to a label.
func ConfidenceFromScore(score float64) Confidence {
	switch {
	case score > 0.85:
		return ConfidenceHigh
	case score > 0.70:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Evidence is one text snippet asserting a technique's presence in a
// document. Evidence is never hard-deleted; history is cumulative.
type Evidence struct {
	Text       string     `json:"text"`
	CreatedBy  Provenance `json:"created_by"`
	Active     bool       `json:"active"`
	DeletedBy  string     `json:"deleted_by,omitempty"`  // Identity that soft-deleted this entry
	QuoteAudit string     `json:"quote_audit,omitempty"` // Original LLM quote when fuzzy anchoring rewrote it
}

// TechniqueLink is the persisted (document, technique) association record.
type TechniqueLink struct {
	TechniqueID string     `json:"techniqueId"`
	Confidence  Confidence `json:"confidence"`
	Active      bool       `json:"active"`
	DeletedBy   string     `json:"deleted_by,omitempty"` // "llm", "community", or a username
	Evidence    []Evidence `json:"evidence"`
}

// IsHumanIdentity reports whether a deleted_by value names a human actor.
// Pipeline identities ("llm", "nlu", "system") and the empty string do not.
func IsHumanIdentity(id string) bool {
	switch id {
	case "", "llm", "nlu", "system":
		return false
	}
	return true
}

// HasManualEvidence reports whether the link carries at least one active
// human-origin evidence entry.
func (l *TechniqueLink) HasManualEvidence() bool {
	for _, ev := range l.Evidence {
		if ev.Active && ev.CreatedBy.IsHuman() {
			return true
		}
	}
	return false
}

// IsConfirmedPositive reports whether the link counts as a human-confirmed
// positive for review-index purposes: active, with human-origin evidence.
func (l *TechniqueLink) IsConfirmedPositive() bool {
	return l.Active && l.HasManualEvidence()
}

// IsConfirmedNegative reports whether the link is a human-rejected false
// positive: inactive with a human identity recorded as the deleter.
func (l *TechniqueLink) IsConfirmedNegative() bool {
	return !l.Active && IsHumanIdentity(l.DeletedBy)
}

// FindEvidence returns the index of the evidence entry with exactly the
// given text, or -1.
func (l *TechniqueLink) FindEvidence(text string) int {
	for i, ev := range l.Evidence {
		if ev.Text == text {
			return i
		}
	}
	return -1
}

// TechniqueMap is the sole durable artifact the pipeline reads and writes:
// doc_id -> technique links found in that document.
type TechniqueMap map[string][]TechniqueLink

// LoadTechniqueMap reads the persisted technique map. A missing file yields
// an empty map (first run); a malformed file is a fatal input error.
func LoadTechniqueMap(path string) (TechniqueMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return TechniqueMap{}, nil
		}
		return nil, fmt.Errorf("read technique map: %w", err)
	}

	var m TechniqueMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse technique map: %w", err)
	}
	if m == nil {
		m = TechniqueMap{}
	}

	return m, nil
}

// Save writes the technique map atomically: write to a temp file in the same
// directory, then rename over the target.
func (m TechniqueMap) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal technique map: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create map directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".techmap-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write technique map: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace technique map: %w", err)
	}

	return nil
}

// Links returns the technique links recorded for a document.
func (m TechniqueMap) Links(docID string) []TechniqueLink {
	return m[docID]
}

// FindLink returns a pointer into the map's link slice for the given
// document and technique, or nil.
func (m TechniqueMap) FindLink(docID, techniqueID string) *TechniqueLink {
	links := m[docID]
	for i := range links {
		if links[i].TechniqueID == techniqueID {
			return &links[i]
		}
	}
	return nil
}
