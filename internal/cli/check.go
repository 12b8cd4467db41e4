package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/veridex/veridex/internal/model"
	"github.com/veridex/veridex/internal/pipeline"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check run inputs and provider connectivity",
	Long: `Check validates everything a run needs before spending API budget:
the taxonomy parses, the docs directory has documents, the technique map
loads, and the configured LLM provider answers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildRunConfig()
		if err != nil {
			return err
		}

		failed := false
		report := func(name string, err error) {
			if err != nil {
				failed = true
				fmt.Printf("  FAIL %s: %v\n", name, err)
				return
			}
			fmt.Printf("  ok   %s\n", name)
		}

		fmt.Println("Checking run inputs:")

		taxonomy, err := model.LoadTaxonomy(cfg.Paths.Taxonomy)
		report("taxonomy", err)
		if err == nil {
			fmt.Printf("       %d techniques\n", taxonomy.Len())
		}

		ids, err := pipeline.ListDocuments(cfg.Paths.DocsDir)
		if err == nil && len(ids) == 0 {
			err = fmt.Errorf("no .txt documents in %s", cfg.Paths.DocsDir)
		}
		report("documents", err)
		if err == nil {
			fmt.Printf("       %d documents\n", len(ids))
		}

		_, err = model.LoadMetadataCatalog(cfg.Paths.Metadata)
		report("metadata catalog", err)

		techMap, err := model.LoadTechniqueMap(cfg.Paths.Map)
		report("technique map", err)
		if err == nil {
			fmt.Printf("       %d documents mapped\n", len(techMap))
		}

		provider, err := buildProvider(cfg)
		report("provider config", err)

		if provider != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if !provider.IsAvailable(ctx) {
				failed = true
				fmt.Printf("  FAIL provider %s: not reachable\n", provider.Name())
			} else {
				fmt.Printf("  ok   provider %s\n", provider.Name())
			}
		}

		if failed {
			fmt.Fprintln(os.Stderr)
			return fmt.Errorf("checks failed")
		}
		fmt.Println("\nAll checks passed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
