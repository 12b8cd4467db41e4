package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/veridex/veridex/internal/model"
)

// ListDocuments returns the sorted document IDs available in the docs
// directory. Documents are flat <doc_id>.txt files.
func ListDocuments(docsDir string) ([]string, error) {
	entries, err := os.ReadDir(docsDir)
	if err != nil {
		return nil, fmt.Errorf("read docs directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".txt") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".txt"))
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadDocument reads one document and attaches its catalog metadata.
func LoadDocument(docsDir, id string, catalog map[string]*model.ContentMetadata) (*model.Document, error) {
	data, err := os.ReadFile(filepath.Join(docsDir, id+".txt"))
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", id, err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("document %s is empty", id)
	}

	return &model.Document{
		ID:       id,
		Text:     text,
		Metadata: catalog[id],
	}, nil
}
