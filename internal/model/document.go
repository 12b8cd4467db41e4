package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Document is one source text being analyzed for technique evidence.
type Document struct {
	ID       string           // Stable document identifier
	Text     string           // Flat body text (ingestion/cleanup is external)
	Metadata *ContentMetadata // Optional scoring/filtering hints
}

// ContentMetadata biases scoring and filters technique categories for a
// document. All fields are optional; absent metadata means no adjustment.
type ContentMetadata struct {
	DocumentPurpose  string   `json:"document_purpose,omitempty"`  // e.g. "system card", "blog post"
	SignalStrength   string   `json:"signal_strength,omitempty"`   // "high", "medium", "low"
	TemporalFocus    string   `json:"temporal_focus,omitempty"`    // "implemented", "planned", "research"
	Scope            string   `json:"scope,omitempty"`             // e.g. "model-specific", "org-wide"
	TechnicalDepth   string   `json:"technical_depth,omitempty"`   // "deep", "moderate", "shallow"
	PrimaryTopics    []string `json:"primary_topics,omitempty"`    // Topics the document covers
	ExcludedTopics   []string `json:"excluded_topics,omitempty"`   // Topics explicitly absent; skips matching categories
	ConfidenceWeight float64  `json:"confidence_weight,omitempty"` // Reserved global multiplier
	Language         string   `json:"language,omitempty"`
	Notes            string   `json:"notes,omitempty"`
}

// ExcludesCategory reports whether an excluded topic maps to the given
// category ID. Topic strings match category IDs case-sensitively; the
// mapping is supplied by the metadata generator.
func (m *ContentMetadata) ExcludesCategory(categoryID string) bool {
	if m == nil {
		return false
	}
	for _, topic := range m.ExcludedTopics {
		if topic == categoryID {
			return true
		}
	}
	return false
}

// LoadMetadataCatalog reads the per-document metadata catalog, a JSON object
// keyed by doc_id. A missing catalog is not an error: metadata is optional.
func LoadMetadataCatalog(path string) (map[string]*ContentMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*ContentMetadata{}, nil
		}
		return nil, fmt.Errorf("read metadata catalog: %w", err)
	}

	var catalog map[string]*ContentMetadata
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse metadata catalog: %w", err)
	}

	return catalog, nil
}
