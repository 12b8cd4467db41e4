package model

import "time"

// Config is the complete pipeline configuration, constructed once per run.
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Chunker  ChunkerConfig  `yaml:"chunker"`
	NLU      NLUConfig      `yaml:"nlu"`
	LLM      LLMConfig      `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Output   OutputConfig   `yaml:"output"`
}

// PathsConfig locates the input and output files of a run.
type PathsConfig struct {
	Taxonomy   string `yaml:"taxonomy"`   // Technique taxonomy JSON (read-only input)
	DocsDir    string `yaml:"docs_dir"`   // Directory of <doc_id>.txt source documents
	Metadata   string `yaml:"metadata"`   // Per-document content metadata JSON (optional)
	Map        string `yaml:"map"`        // Persisted technique map (read-write)
	Checkpoint string `yaml:"checkpoint"` // Partial run state for --resume
}

// ChunkerConfig controls sentence-window chunking.
type ChunkerConfig struct {
	WindowSize     int `yaml:"window_size"`      // Sentences per chunk
	Stride         int `yaml:"stride"`           // Sentences advanced per chunk
	MinChunkLength int `yaml:"min_chunk_length"` // Minimum chunk length in characters
}

// NLUConfig controls the retrieval and entailment stages.
type NLUConfig struct {
	RetrievalThreshold      float64 `yaml:"retrieval_threshold"`       // Cosine cutoff for stage 1
	VerificationThreshold   float64 `yaml:"verification_threshold"`    // Entailment cutoff for stage 2
	MaxEvidencePerTechnique int     `yaml:"max_evidence_per_technique"`
	EmbeddingModel          string  `yaml:"embedding_model"`
}

// LLMConfig holds completion-provider configuration for passes 1 and 2.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // "openai", "anthropic", "ollama"
	Model     string `yaml:"model"`    // Provider-specific model name
	APIKey    string `yaml:"-"`        // Never persisted; from environment
	BaseURL   string `yaml:"base_url,omitempty"`
	Timeout   int    `yaml:"timeout"` // Seconds per request
	MaxTokens int    `yaml:"max_tokens"`

	// TokenBudget caps how much document text pass 1 submits. Estimated at
	// four characters per token; truncation is flagged to the model.
	TokenBudget int `yaml:"token_budget"`
}

// PipelineConfig controls the document loop.
type PipelineConfig struct {
	InterCallDelay   time.Duration `yaml:"inter_call_delay"`   // Minimum spacing between LLM calls
	RateLimitBackoff time.Duration `yaml:"rate_limit_backoff"` // Sleep after a detected rate-limit error
	DryRun           bool          `yaml:"-"`                  // Skip map/checkpoint writes
}

// OutputConfig controls user-visible output.
type OutputConfig struct {
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns sensible defaults for all knobs.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Taxonomy:   "data/taxonomy.json",
			DocsDir:    "data/docs",
			Metadata:   "data/metadata.json",
			Map:        "data/technique_map.json",
			Checkpoint: "data/checkpoint.json",
		},
		Chunker: ChunkerConfig{
			WindowSize:     3,
			Stride:         2,
			MinChunkLength: 80,
		},
		NLU: NLUConfig{
			RetrievalThreshold:      0.40,
			VerificationThreshold:   0.70,
			MaxEvidencePerTechnique: 3,
			EmbeddingModel:          "text-embedding-3-small",
		},
		LLM: LLMConfig{
			Provider:    "anthropic",
			Model:       "sonnet",
			Timeout:     120,
			MaxTokens:   4000,
			TokenBudget: 24000,
		},
		Pipeline: PipelineConfig{
			InterCallDelay:   time.Second,
			RateLimitBackoff: 30 * time.Second,
		},
	}
}
