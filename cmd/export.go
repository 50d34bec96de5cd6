package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/IRakow/aiaviizn-capture/internal/model"
	"github.com/IRakow/aiaviizn-capture/internal/store"
)

var (
	exportTenant string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored pages to an xlsx workbook",
	Long: `Export writes a workbook with Pages, Fields, and Calculations sheets
for a tenant (or all tenants when --tenant is omitted).`,
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

		pages, err := st.ListPages(ctx, store.PageFilter{TenantID: exportTenant})
		if err != nil {
			return eris.Wrap(err, "list pages")
		}
		if len(pages) == 0 {
			return eris.New("no pages to export")
		}

		wb, err := buildWorkbook(pages)
		if err != nil {
			return err
		}
		if err := wb.Save(exportOut); err != nil {
			return eris.Wrap(err, "save workbook")
		}

		zap.L().Info("export complete",
			zap.String("file", exportOut),
			zap.Int("pages", len(pages)),
		)
		return nil
	},
}

func buildWorkbook(pages []model.Page) (*xlsx.File, error) {
	wb := xlsx.NewFile()

	pageSheet, err := wb.AddSheet("Pages")
	if err != nil {
		return nil, eris.Wrap(err, "add pages sheet")
	}
	addHeader(pageSheet, "Tenant", "URL", "Version", "Status", "Digest", "Captured At", "Fields", "Calculations")
	for _, p := range pages {
		row := pageSheet.AddRow()
		row.AddCell().Value = p.TenantID
		row.AddCell().Value = p.URL
		row.AddCell().SetInt(p.Version)
		row.AddCell().Value = string(p.Status)
		row.AddCell().Value = p.Digest
		row.AddCell().Value = p.CapturedAt.Format("2006-01-02 15:04:05")
		row.AddCell().SetInt(len(p.Fields))
		row.AddCell().SetInt(len(p.Calculations))
	}

	fieldSheet, err := wb.AddSheet("Fields")
	if err != nil {
		return nil, eris.Wrap(err, "add fields sheet")
	}
	addHeader(fieldSheet, "Tenant", "URL", "Label", "Sample Value", "Semantic Type", "Data Type", "Confidence", "Source")
	for _, p := range pages {
		for _, f := range p.Fields {
			row := fieldSheet.AddRow()
			row.AddCell().Value = p.TenantID
			row.AddCell().Value = p.URL
			row.AddCell().Value = f.Label
			row.AddCell().Value = f.SampleValue
			row.AddCell().Value = string(f.SemanticType)
			row.AddCell().Value = string(f.DataType)
			row.AddCell().SetFloat(f.Confidence)
			row.AddCell().Value = f.Source
		}
	}

	calcSheet, err := wb.AddSheet("Calculations")
	if err != nil {
		return nil, eris.Wrap(err, "add calculations sheet")
	}
	addHeader(calcSheet, "Tenant", "URL", "Formula", "Type", "Token", "Field Label", "Confidence", "Resolution")
	for _, p := range pages {
		for _, c := range p.Calculations {
			for _, m := range c.Mappings {
				row := calcSheet.AddRow()
				row.AddCell().Value = p.TenantID
				row.AddCell().Value = p.URL
				row.AddCell().Value = c.Formula
				row.AddCell().Value = string(c.Type)
				row.AddCell().Value = m.Token
				if f := p.FieldByID(m.FieldID); f != nil {
					row.AddCell().Value = f.Label
				} else {
					row.AddCell().Value = ""
				}
				row.AddCell().SetFloat(m.Confidence)
				row.AddCell().Value = resolutionLabel(m)
			}
		}
	}

	return wb, nil
}

func addHeader(sheet *xlsx.Sheet, names ...string) {
	row := sheet.AddRow()
	for _, n := range names {
		row.AddCell().Value = n
	}
}

func resolutionLabel(m model.VariableMapping) string {
	if !m.Resolved() {
		return "unresolved"
	}
	return fmt.Sprintf("resolved (%.2f)", m.Confidence)
}

func init() {
	exportCmd.Flags().StringVar(&exportTenant, "tenant", "", "tenant ID (all tenants when empty)")
	exportCmd.Flags().StringVar(&exportOut, "out", "capture_export.xlsx", "output workbook path")
	rootCmd.AddCommand(exportCmd)
}
