package cli

import (
	"context"
	"testing"
	"time"
)

func resetRunFlags() {
	runIDs = nil
	runProvider = ""
	runModel = ""
	runResume = false
	runNLUOnly = false
	runLLMOnly = false
	runDryRun = false
	runDelay = 0
	runTaxonomy = ""
	runDocsDir = ""
	runMetadata = ""
	runMap = ""
	runCheckpoint = ""
	verbose = false
}

func TestBuildRunConfigDefaults(t *testing.T) {
	resetRunFlags()
	defer resetRunFlags()

	cfg, err := buildRunConfig()
	if err != nil {
		t.Fatalf("buildRunConfig failed: %v", err)
	}
	if cfg.LLM.Provider != "anthropic" || cfg.LLM.Model != "sonnet" {
		t.Errorf("default LLM config = %+v", cfg.LLM)
	}
	if cfg.Pipeline.DryRun {
		t.Error("dry run must default to off")
	}
}

func TestBuildRunConfigFlagOverrides(t *testing.T) {
	resetRunFlags()
	defer resetRunFlags()

	runProvider = "openai"
	runModel = "gpt-4o-mini"
	runDelay = 5 * time.Second
	runMap = "/tmp/custom-map.json"
	runDryRun = true

	cfg, err := buildRunConfig()
	if err != nil {
		t.Fatalf("buildRunConfig failed: %v", err)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("LLM flags not applied: %+v", cfg.LLM)
	}
	if cfg.Pipeline.InterCallDelay != 5*time.Second {
		t.Errorf("InterCallDelay = %v", cfg.Pipeline.InterCallDelay)
	}
	if cfg.Paths.Map != "/tmp/custom-map.json" {
		t.Errorf("Paths.Map = %q", cfg.Paths.Map)
	}
	if !cfg.Pipeline.DryRun {
		t.Error("dry run flag not applied")
	}
	// Unset flags keep their defaults.
	if cfg.Paths.Taxonomy != "data/taxonomy.json" {
		t.Errorf("Paths.Taxonomy = %q", cfg.Paths.Taxonomy)
	}
}

func TestRunRejectsConflictingStageFlags(t *testing.T) {
	resetRunFlags()
	defer resetRunFlags()

	runNLUOnly = true
	runLLMOnly = true

	if err := runPipeline(runCmd, nil); err == nil {
		t.Fatal("--nlu-only with --llm-only must be rejected")
	}
}

func TestNoEmbedderRefusesUse(t *testing.T) {
	if _, err := (noEmbedder{}).EmbedBatch(context.Background(), []string{"text"}); err == nil {
		t.Fatal("noEmbedder must error when the retrieval stage calls it")
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	want := map[string]bool{"run": false, "config": false, "check": false, "version": false}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}
