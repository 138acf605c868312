package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bracketlabs/bracket/internal/analysis"
	"github.com/bracketlabs/bracket/internal/store"
)

var analyzeWorkers int

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Detect relations, cluster artifacts, and report corpus metrics",
	Long: `Analyze runs the out-of-band corpus pass:
- Detect relations between artifact pairs (similar, shares_frame,
  inverse, domain_transfer)
- Cluster artifacts by embedding similarity
- Report corpus-level metrics

It only reads artifacts and writes derived fields, so it is safe to
run while no session is active.

Example:
  bracket analyze
  bracket analyze --workers 8`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().IntVar(&analyzeWorkers, "workers", 0, "relation-detection workers (0 = config value)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if analyzeWorkers > 0 {
		cfg.Analysis.Workers = analyzeWorkers
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

	metrics, err := analysis.NewAnalyzer(st, cfg.Analysis).Run(ctx)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	fmt.Println(metrics.String())
	return nil
}
