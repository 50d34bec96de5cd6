package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/IRakow/aiaviizn-capture/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "aiaviizn-capture",
	Short: "Field identification and dedup pipeline for scraped property pages",
	Long: `aiaviizn-capture ingests scraped property-management pages, classifies
their fields against a learned pattern table with an LLM fallback, maps
formula variables to fields, and persists everything with at-most-once
page semantics per (tenant, url).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
