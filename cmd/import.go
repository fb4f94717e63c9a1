package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-verify/internal/ingest"
)

var (
	importXLSXPath  string
	importSheetName string
	importWebhook   string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-enqueue verification jobs from a catalog XLSX export",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		products, err := ingest.ReadProducts(importXLSXPath, ingest.XLSXOptions{SheetName: importSheetName})
		if err != nil {
			return eris.Wrap(err, "read products")
		}
		if len(products) == 0 {
			return eris.New("no product rows found")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		created := 0
		for _, p := range products {
			if _, err := st.CreateJob(ctx, p, importWebhook); err != nil {
				return eris.Wrapf(err, "enqueue %s", p.CatalogID)
			}
			created++
		}

		zap.L().Info("import complete",
			zap.Int("created", created),
			zap.String("xlsx", importXLSXPath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importXLSXPath, "xlsx", "", "path to XLSX file (required)")
	importCmd.Flags().StringVar(&importSheetName, "sheet", "", "sheet name (default first sheet)")
	importCmd.Flags().StringVar(&importWebhook, "webhook", "", "webhook URL applied to every imported job")
	_ = importCmd.MarkFlagRequired("xlsx")
	rootCmd.AddCommand(importCmd)
}
