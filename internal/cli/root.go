// Package cli implements the ragquery command line harness.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orbitalmind/satrag/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ragquery",
	Short: "Interactive retrieval harness - tweak knobs and inspect the selection",
	Long: `ragquery runs the retrieval pipeline directly against the candidate store,
prints a ranked debug table of the selection, and previews the assembled
prompt context. Use it to tune the reranking knobs before changing the
service defaults.

Example usage:
  ragquery query -q "What does Sentinel-2 provide?"
  ragquery query -q "band resolution" --dataset sat-info --topk 8 --mmr 0.6`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
