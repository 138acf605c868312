package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bracketlabs/bracket/internal/model"
	"github.com/bracketlabs/bracket/internal/store"
)

var (
	proposeDescription string
	proposeParent      string
)

// taxonomyCmd represents the taxonomy command
var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Inspect and extend the structure-type taxonomy",
	Long: `Taxonomy lists the structure types artifacts are classified under.
The built-in types are seeded at store initialization; curated
additions are flagged as proposed until reviewed.`,
}

var taxonomyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all structure types",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(context.Background())
		if err != nil {
			return err
		}
		defer closeStore(st)

		entries, err := st.ListTaxonomy(context.Background())
		if err != nil {
			return err
		}
		for _, entry := range entries {
			marker := " "
			if entry.IsProposed {
				marker = "?"
			}
			fmt.Printf("%s %-14s %s\n", marker, entry.Name, entry.Description)
		}
		return nil
	},
}

var taxonomyProposeCmd = &cobra.Command{
	Use:   "propose <name>",
	Short: "Propose a new structure type",
	Long: `Propose adds a structure type flagged as proposed. Proposed types are
listed with a leading '?' until curated.

Example:
  bracket taxonomy propose oscillation --description "bounded concept alternates between the frames"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if proposeDescription == "" {
			return fmt.Errorf("--description is required")
		}

		st, err := openStore(context.Background())
		if err != nil {
			return err
		}
		defer closeStore(st)

		entry := model.StructureTypeEntry{
			Name:        args[0],
			Description: proposeDescription,
			Parent:      proposeParent,
		}
		if err := st.ProposeType(context.Background(), entry); err != nil {
			return err
		}
		fmt.Printf("✓ Proposed structure type %q\n", entry.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(taxonomyCmd)
	taxonomyCmd.AddCommand(taxonomyListCmd)
	taxonomyCmd.AddCommand(taxonomyProposeCmd)

	taxonomyProposeCmd.Flags().StringVar(&proposeDescription, "description", "", "one-line description of the structure")
	taxonomyProposeCmd.Flags().StringVar(&proposeParent, "parent", "", "parent type name (optional)")
}

// openStore opens the configured store for read-mostly commands.
func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Store, cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close store: %v\n", err)
	}
}
