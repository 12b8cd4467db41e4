package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint records which documents a run has already merged, so an
// interrupted run can resume without repeating API spend.
type Checkpoint struct {
	StartedAt time.Time       `json:"started_at"`
	Processed map[string]bool `json:"processed"`
}

// NewCheckpoint creates an empty checkpoint for a fresh run.
func NewCheckpoint() *Checkpoint {
	return &Checkpoint{
		StartedAt: time.Now().UTC(),
		Processed: make(map[string]bool),
	}
}

// LoadCheckpoint reads a checkpoint file. A missing file yields a fresh
// checkpoint.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewCheckpoint(), nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	if cp.Processed == nil {
		cp.Processed = make(map[string]bool)
	}
	return &cp, nil
}

// Done reports whether a document was already processed.
func (c *Checkpoint) Done(docID string) bool {
	return c.Processed[docID]
}

// MarkDone records a document as processed.
func (c *Checkpoint) MarkDone(docID string) {
	c.Processed[docID] = true
}

// Save writes the checkpoint atomically next to the target path.
func (c *Checkpoint) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".checkpoint-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// RemoveCheckpoint deletes the checkpoint file after a completed run. A
// missing file is fine.
func RemoveCheckpoint(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}
