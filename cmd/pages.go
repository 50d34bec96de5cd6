package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/IRakow/aiaviizn-capture/internal/store"
)

var (
	pagesTenant string
	pagesStatus string
	pagesLimit  int
	pagesURL    string
)

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "Inspect stored pages",
}

var pagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored pages",
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

		pages, err := st.ListPages(ctx, store.PageFilter{
			TenantID: pagesTenant,
			Status:   pagesStatus,
			Limit:    pagesLimit,
		})
		if err != nil {
			return eris.Wrap(err, "list pages")
		}

		for _, p := range pages {
			fmt.Printf("%s\t%s\tv%d\t%s\t%d fields\t%d calcs\n",
				p.TenantID, p.URL, p.Version, p.Status, len(p.Fields), len(p.Calculations))
		}
		fmt.Printf("%d pages\n", len(pages))
		return nil
	},
}

var pagesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show one page with its fields and calculations",
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

		page, err := st.GetPage(ctx, pagesTenant, pagesURL)
		if err != nil {
			return eris.Wrap(err, "get page")
		}
		if page == nil {
			return eris.Errorf("no page for tenant %s at %s", pagesTenant, pagesURL)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	},
}

func init() {
	pagesListCmd.Flags().StringVar(&pagesTenant, "tenant", "", "filter by tenant ID")
	pagesListCmd.Flags().StringVar(&pagesStatus, "status", "", "filter by capture status")
	pagesListCmd.Flags().IntVar(&pagesLimit, "limit", 50, "maximum pages to list")

	pagesShowCmd.Flags().StringVar(&pagesTenant, "tenant", "", "tenant ID (required)")
	pagesShowCmd.Flags().StringVar(&pagesURL, "url", "", "page URL (required)")
	_ = pagesShowCmd.MarkFlagRequired("tenant")
	_ = pagesShowCmd.MarkFlagRequired("url")

	pagesCmd.AddCommand(pagesListCmd)
	pagesCmd.AddCommand(pagesShowCmd)
	rootCmd.AddCommand(pagesCmd)
}
