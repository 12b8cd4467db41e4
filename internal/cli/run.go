package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/veridex/veridex/internal/embed"
	"github.com/veridex/veridex/internal/llm"
	"github.com/veridex/veridex/internal/model"
	"github.com/veridex/veridex/internal/pipeline"
)

var (
	runIDs        []string
	runProvider   string
	runModel      string
	runResume     bool
	runNLUOnly    bool
	runLLMOnly    bool
	runDryRun     bool
	runDelay      time.Duration
	runTaxonomy   string
	runDocsDir    string
	runMetadata   string
	runMap        string
	runCheckpoint string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the curation pipeline over the document corpus",
	Long: `Run processes documents sequentially through the NLU pass (semantic
retrieval + entailment verification), the LLM extraction pass, and RAG
verification against prior human review decisions, then merges results
into the technique map with full provenance.

The map and a checkpoint are saved after every document, so an
interrupted run can continue with --resume.

Example:
  veridex run
  veridex run --id acme-system-card --id acme-blog-2025
  veridex run --provider openai --model gpt-4o-mini
  veridex run --nlu-only --dry-run`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Selection flags
	runCmd.Flags().StringSliceVar(&runIDs, "id", nil, "process only these document IDs (repeatable)")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "skip documents recorded in the checkpoint")
	runCmd.Flags().BoolVar(&runNLUOnly, "nlu-only", false, "run only the retrieval + entailment pass")
	runCmd.Flags().BoolVar(&runLLMOnly, "llm-only", false, "run only the extraction + verification passes")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "process documents but write nothing")

	// LLM flags
	runCmd.Flags().StringVar(&runProvider, "provider", "", "LLM provider (openai, anthropic, ollama)")
	runCmd.Flags().StringVar(&runModel, "model", "", "model name or alias (haiku, sonnet, opus)")
	runCmd.Flags().DurationVar(&runDelay, "delay", 0, "minimum spacing between LLM calls")

	// Path flags
	runCmd.Flags().StringVar(&runTaxonomy, "taxonomy", "", "technique taxonomy JSON")
	runCmd.Flags().StringVar(&runDocsDir, "docs", "", "directory of <doc_id>.txt documents")
	runCmd.Flags().StringVar(&runMetadata, "metadata", "", "per-document metadata catalog JSON")
	runCmd.Flags().StringVar(&runMap, "map", "", "persisted technique map JSON")
	runCmd.Flags().StringVar(&runCheckpoint, "checkpoint", "", "checkpoint file for --resume")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if runNLUOnly && runLLMOnly {
		return fmt.Errorf("--nlu-only and --llm-only are mutually exclusive")
	}

	cfg, err := buildRunConfig()
	if err != nil {
		return err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Provider: %s (%s)\n", provider.Name(), cfg.LLM.Model)
		fmt.Fprintf(os.Stderr, "Map: %s\n", cfg.Paths.Map)
		if runDryRun {
			fmt.Fprintln(os.Stderr, "Dry run: nothing will be written")
		}
		fmt.Fprintln(os.Stderr)
	}

	p, err := pipeline.New(cfg, embedder, provider)
	if err != nil {
		return err
	}

	summary, err := p.Run(context.Background(), pipeline.Options{
		IDs:     runIDs,
		Resume:  runResume,
		NLUOnly: runNLUOnly,
		LLMOnly: runLLMOnly,
	})
	if summary != nil {
		summary.Print(os.Stderr)
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	if summary.DocsFailed > 0 {
		return fmt.Errorf("%d document(s) failed; re-run with --resume to retry", summary.DocsFailed)
	}
	return nil
}

// buildRunConfig overlays flags on the loaded configuration.
func buildRunConfig() (*model.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if runProvider != "" {
		cfg.LLM.Provider = runProvider
	}
	if runModel != "" {
		cfg.LLM.Model = runModel
	}
	if runDelay > 0 {
		cfg.Pipeline.InterCallDelay = runDelay
	}
	if runTaxonomy != "" {
		cfg.Paths.Taxonomy = runTaxonomy
	}
	if runDocsDir != "" {
		cfg.Paths.DocsDir = runDocsDir
	}
	if runMetadata != "" {
		cfg.Paths.Metadata = runMetadata
	}
	if runMap != "" {
		cfg.Paths.Map = runMap
	}
	if runCheckpoint != "" {
		cfg.Paths.Checkpoint = runCheckpoint
	}
	cfg.Pipeline.DryRun = runDryRun
	cfg.Output.Verbose = verbose

	return cfg, nil
}

// buildProvider resolves the API key from the environment and constructs the
// completion provider. Keys are never read from the config file.
func buildProvider(cfg *model.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "openai":
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		if cfg.LLM.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	case "anthropic", "claude":
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		if cfg.LLM.APIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
	case "ollama":
		if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
			cfg.LLM.BaseURL = baseURL
		}
	}

	return llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
}

// buildEmbedder constructs the retrieval embedder. Embeddings always go
// through the OpenAI embeddings API, independent of the completion provider.
func buildEmbedder(cfg *model.Config) (embed.Embedder, error) {
	if runLLMOnly {
		// The retrieval stage never runs; no embedding client needed.
		return noEmbedder{}, nil
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set (required for embeddings; use --llm-only to skip the NLU pass)")
	}

	return embed.NewOpenAIEmbedder(embed.Config{
		Model:  cfg.NLU.EmbeddingModel,
		APIKey: apiKey,
	})
}

// noEmbedder satisfies the embedder seam for --llm-only runs.
type noEmbedder struct{}

func (noEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("embedding is disabled in --llm-only mode")
}
