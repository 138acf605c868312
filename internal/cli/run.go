package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bracketlabs/bracket/internal/agent"
	"github.com/bracketlabs/bracket/internal/cache"
	"github.com/bracketlabs/bracket/internal/embed"
	"github.com/bracketlabs/bracket/internal/forage"
	"github.com/bracketlabs/bracket/internal/ingredient"
	"github.com/bracketlabs/bracket/internal/llm"
	"github.com/bracketlabs/bracket/internal/model"
	"github.com/bracketlabs/bracket/internal/pipeline"
	"github.com/bracketlabs/bracket/internal/source"
	"github.com/bracketlabs/bracket/internal/store"
	"github.com/bracketlabs/bracket/internal/validate"
)

var (
	maxArtifacts int
	maxDuration  time.Duration
	resumeID     string
	noCuriosity  bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an unattended bracket-hunting session",
	Long: `Run starts the session loop: forage content from the tiered source
ladder, identify bracket candidates, select the most promising one,
assemble it into a named artifact, validate it, and store accepted
artifacts in the corpus. The loop continues until a stop condition is
reached (artifact budget, wall-clock budget, or interrupt).

Interrupted sessions resume from their latest checkpoint.

Example:
  bracket run --max-artifacts 5
  bracket run --max-duration 30m
  bracket run --resume 6e1f6a2c-9f0e-4b7d-a1c3-2d8e5f4a9b01`,
	Args: cobra.NoArgs,
	RunE: runSession,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVar(&maxArtifacts, "max-artifacts", 0, "stop after storing this many artifacts (0 = unbounded)")
	runCmd.Flags().DurationVar(&maxDuration, "max-duration", 0, "wall-clock budget for the session (0 = unbounded)")
	runCmd.Flags().StringVar(&resumeID, "resume", "", "resume the session with this ID from its latest checkpoint")
	runCmd.Flags().BoolVar(&noCuriosity, "no-curiosity", false, "disable curiosity-driven exploration queries")
}

func runSession(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.LLM.APIKey == "" && cfg.LLM.Provider != "ollama" {
		return fmt.Errorf("no API key for LLM provider %q (set OPENAI_API_KEY or ANTHROPIC_API_KEY)", cfg.LLM.Provider)
	}

	st, err := store.Open(ctx, cfg.Store, cfg.Embedding.Dimensions)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "close store: %v\n", closeErr)
		}
	}()

	index, err := st.LoadCorpus(ctx)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}

	sources, err := buildSources(cfg.Foraging, cfg.HTTP)
	if err != nil {
		return err
	}
	forager := forage.New(sources, forage.Config{
		SuccessesToPromote: cfg.Foraging.SuccessesToPromote,
		FailuresToDemote:   cfg.Foraging.FailuresToDemote,
	})

	var embedCache cache.Cache
	if cfg.Cache.Enabled {
		embedCache = cache.NewMemoryCache(cfg.Cache.TTL, cfg.Cache.CleanupInterval)
	}
	embedder, err := embed.NewService(cfg.Embedding, embedCache)
	if err != nil {
		return fmt.Errorf("embedding service: %w", err)
	}

	llmClient, err := llm.NewClientFromConfig(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}

	validator := validate.New(llmClient, index, cfg.Validation)
	resolver := ingredient.NewResolver(index, cfg.Ingredient)

	// Content dedup is a correctness concern, so its cache exists even
	// when the embedding cache is disabled.
	seen := cache.NewMemoryCache(cfg.Cache.TTL, cfg.Cache.CleanupInterval)
	pipe := pipeline.New(llmClient, embedder, validator, resolver, st, index, seen, cfg.Pipeline, cfg.Selection)

	if verbose {
		fmt.Fprintf(os.Stderr, "Provider: %s\n", llmClient.Name())
		fmt.Fprintf(os.Stderr, "Corpus: %d artifacts\n", index.Size())
		fmt.Fprintf(os.Stderr, "Sources: tier 1 %v, tier 2 %v, tier 3 %v\n",
			cfg.Foraging.Tier1Sources, cfg.Foraging.Tier2Sources, cfg.Foraging.Tier3Sources)
		fmt.Fprintln(os.Stderr)
	}

	ag := agent.New(forager, pipe, llmClient, st)
	summary, err := ag.Run(ctx, agent.RunOptions{
		MaxArtifacts:    maxArtifacts,
		MaxDuration:     maxDuration,
		ResumeSessionID: resumeID,
		Curiosity:       cfg.Foraging.CuriosityEnabled && !noCuriosity,
	})
	if summary != nil {
		fmt.Println(summary.String())
	}
	return err
}

// buildSources constructs the tiered source ladder from config.
func buildSources(f model.ForagingConfig, h model.HTTPConfig) (map[int][]source.Source, error) {
	opts := source.Options{
		UserAgent:         h.UserAgent,
		Timeout:           h.Timeout,
		MaxBodyBytes:      h.MaxBodyBytes,
		RequestsPerMinute: f.RequestsPerMinute,
	}

	tiers := map[int][]string{1: f.Tier1Sources, 2: f.Tier2Sources, 3: f.Tier3Sources}
	out := make(map[int][]source.Source, len(tiers))
	for tier, names := range tiers {
		for _, name := range names {
			src, err := newSource(name, opts)
			if err != nil {
				return nil, err
			}
			out[tier] = append(out[tier], src)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no sources configured")
	}
	return out, nil
}

func newSource(name string, opts source.Options) (source.Source, error) {
	switch name {
	case "wikipedia":
		return source.NewWikipediaSource(opts), nil
	case "web_search":
		return source.NewWebSearchSource(opts), nil
	case "arxiv":
		return source.NewArxivSource(opts), nil
	}
	return nil, fmt.Errorf("unknown source %q (want wikipedia, web_search, or arxiv)", name)
}
