package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/IRakow/aiaviizn-capture/internal/pattern"
)

var patternsSeedFile string

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect and seed the learned pattern table",
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		patterns, err := pattern.NewStore(ctx, st)
		if err != nil {
			return eris.Wrap(err, "load patterns")
		}

		for _, p := range patterns.All() {
			fmt.Printf("%-30s %-20s %-12s conf=%.2f hits=%d\n",
				p.Trigger, p.SemanticType, p.DataType, p.Confidence, p.HitCount)
		}
		fmt.Printf("%d patterns\n", patterns.Len())
		return nil
	},
}

var patternsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed patterns from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		patterns, err := pattern.NewStore(ctx, st)
		if err != nil {
			return eris.Wrap(err, "load patterns")
		}

		added, err := patterns.SeedFromFile(ctx, patternsSeedFile)
		if err != nil {
			return eris.Wrap(err, "seed patterns")
		}

		zap.L().Info("patterns seeded",
			zap.String("file", patternsSeedFile),
			zap.Int("added", added),
			zap.Int("total", patterns.Len()),
		)
		return nil
	},
}

func init() {
	patternsSeedCmd.Flags().StringVar(&patternsSeedFile, "file", "patterns.yaml", "seed YAML file")

	patternsCmd.AddCommand(patternsListCmd)
	patternsCmd.AddCommand(patternsSeedCmd)
	rootCmd.AddCommand(patternsCmd)
}
