package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Guillaume-Lombardo/extractforms/internal/export"
	"github.com/Guillaume-Lombardo/extractforms/internal/journal"
)

var exportFlags struct {
	out   string
	limit int
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the run journal to an XLSX workbook",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		jrnl, err := journal.Open(settings.Journal.Path, logger)
		if err != nil {
			return err
		}
		defer jrnl.Close()

		svc := export.NewService(jrnl, logger)
		data, err := svc.ExportRunsXLSX(cmd.Context(), exportFlags.limit)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(exportFlags.out), 0o755); err != nil {
			return err
		}
		return os.WriteFile(exportFlags.out, data, 0o644)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFlags.out, "out", "o", "runs.xlsx", "output XLSX file")
	exportCmd.Flags().IntVar(&exportFlags.limit, "limit", 0, "max runs to export (0 = all)")
	rootCmd.AddCommand(exportCmd)
}
