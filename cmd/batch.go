package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/IRakow/aiaviizn-capture/internal/capture"
)

var batchManifest string

// manifestEntry is one page in a batch manifest file.
type manifestEntry struct {
	TenantID string `json:"tenant_id"`
	URL      string `json:"url"`
	File     string `json:"file"`
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Capture a batch of scraped pages from a manifest",
	Long: `Batch reads a JSON manifest listing pages (tenant_id, url, file) and
captures them concurrently. Per-page failures are logged and counted;
the run continues through the rest of the manifest.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(batchManifest)
		if err != nil {
			return eris.Wrap(err, "read manifest")
		}
		var entries []manifestEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return eris.Wrap(err, "parse manifest")
		}
		if len(entries) == 0 {
			return eris.New("manifest is empty")
		}

		requests := make([]capture.Request, 0, len(entries))
		for _, e := range entries {
			content, err := os.ReadFile(e.File)
			if err != nil {
				return eris.Wrapf(err, "read content for %s", e.URL)
			}
			requests = append(requests, capture.Request{
				TenantID: e.TenantID,
				URL:      e.URL,
				Content:  string(content),
			})
		}

		env, err := initCapture(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result := env.Runner.CaptureAll(ctx, requests)

		zap.L().Info("batch complete",
			zap.Int("pages", len(requests)),
			zap.Int("inserted", result.PagesInserted),
			zap.Int("updated", result.PagesUpdated),
			zap.Int("skipped", result.PagesSkipped),
			zap.Int("failed", result.PagesFailed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchManifest, "manifest", "", "manifest JSON file (required)")
	_ = batchCmd.MarkFlagRequired("manifest")
	rootCmd.AddCommand(batchCmd)
}
