package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Technique is a taxonomy entry describing one catalogued AI-safety practice.
// The taxonomy is immutable reference data, loaded once per pipeline run.
type Technique struct {
	ID          string     `json:"id"`                    // Stable technique identifier
	Name        string     `json:"name"`                  // Human-readable name
	CategoryID  string     `json:"categoryId"`            // Category the technique belongs to
	Description string     `json:"description,omitempty"` // Taxonomy description shown to the LLM
	NLUProfile  NLUProfile `json:"nlu_profile"`           // Retrieval/verification profile
}

// NLUProfile carries the retrieval targets and the verification hypothesis
// for a technique.
type NLUProfile struct {
	PrimaryConcept       string   `json:"primary_concept"`       // Main concept phrase, always embedded
	SemanticAnchors      []string `json:"semantic_anchors"`      // Paraphrases; any anchor match counts
	EntailmentHypothesis string   `json:"entailment_hypothesis"` // Natural-language claim for verification
}

// RetrievalTargets returns the primary concept plus all semantic anchors as
// independent embedding targets.
func (t *Technique) RetrievalTargets() []string {
	targets := make([]string, 0, len(t.NLUProfile.SemanticAnchors)+1)
	if t.NLUProfile.PrimaryConcept != "" {
		targets = append(targets, t.NLUProfile.PrimaryConcept)
	}
	targets = append(targets, t.NLUProfile.SemanticAnchors...)
	return targets
}

// Taxonomy is the full set of techniques plus an index by ID.
type Taxonomy struct {
	Techniques []Technique
	byID       map[string]*Technique
}

// LoadTaxonomy reads the technique taxonomy from a JSON file.
// A missing or malformed taxonomy is a fatal input error.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}

	var techniques []Technique
	if err := json.Unmarshal(data, &techniques); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}

	if len(techniques) == 0 {
		return nil, fmt.Errorf("taxonomy is empty: %s", path)
	}

	return NewTaxonomy(techniques), nil
}

// NewTaxonomy builds a taxonomy from an in-memory technique list.
func NewTaxonomy(techniques []Technique) *Taxonomy {
	byID := make(map[string]*Technique, len(techniques))
	for i := range techniques {
		byID[techniques[i].ID] = &techniques[i]
	}
	return &Taxonomy{
		Techniques: techniques,
		byID:       byID,
	}
}

// Get returns the technique with the given ID, or nil if unknown.
func (tx *Taxonomy) Get(id string) *Technique {
	return tx.byID[id]
}

// Len returns the number of techniques in the taxonomy.
func (tx *Taxonomy) Len() int {
	return len(tx.Techniques)
}
