// Package embed provides text-to-vector embedding for the retrieval stage.
// The default implementation calls an OpenAI-compatible embeddings API; the
// interface seam keeps the retriever testable without network access.
package embed

import (
	"context"
	"fmt"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder generates embedding vectors from text.
type Embedder interface {
	// EmbedBatch embeds all texts in one call, preserving input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config holds embedding provider configuration.
type Config struct {
	Model   string // Embedding model name
	APIKey  string
	BaseURL string // Custom endpoint (e.g. a local OpenAI-compatible server)
	Timeout int    // Seconds per request
}

// OpenAIEmbedder implements Embedder via the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	config Config
}

// NewOpenAIEmbedder creates an embedder client.
func NewOpenAIEmbedder(config Config) (*OpenAIEmbedder, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}
	if config.Model == "" {
		config.Model = string(openai.SmallEmbedding3)
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// EmbedBatch embeds all texts in a single API call.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	timeout := time.Duration(e.config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.config.Model),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings API error: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings API returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embeddings API returned out-of-range index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}

	return vectors, nil
}

// Cosine computes cosine similarity between two vectors. Mismatched or
// zero-magnitude vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
