package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/jjenkins/docregistry/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	exportFormat  string
	exportOut     string
	exportFilters filterFlags
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export filtered documents to XLSX or CSV",
	Long: `Export writes every document matching the filters, without pagination,
as an Excel workbook (sheet "DanhSach") or a UTF-8 CSV with BOM.

Examples:
  docregistry export --format xlsx --out vanban_loc.xlsx --authority UBND
  docregistry export --format csv --from 2024-01-01 > 2024.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := exportFilters.spec(0, 0)
		if err != nil {
			return err
		}

		registry, st, err := openRegistry(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		var w io.Writer = cmd.OutOrStdout()
		if exportOut != "" && exportOut != "-" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", exportOut, err)
			}
			defer f.Close()
			w = f
		}

		n, err := registry.Export(cmd.Context(), spec, exportFormat, w)
		if err != nil {
			return err
		}
		logger.Info("export written", zap.Int("documents", n), zap.String("format", exportFormat), zap.String("out", exportOut))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", service.FormatXLSX, "Output format (xlsx, csv)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file; stdout when empty")
	exportFilters.register(exportCmd)
}
