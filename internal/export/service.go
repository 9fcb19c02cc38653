package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Guillaume-Lombardo/extractforms/internal/journal"
)

// Service produces XLSX bytes from the run journal.
type Service struct {
	journal *journal.Journal
	logger  *slog.Logger
}

func NewService(j *journal.Journal, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{journal: j, logger: logger}
}

// ExportRunsXLSX returns an XLSX workbook (as bytes) of the most recent runs,
// newest-first. limit 0 exports everything.
func (s *Service) ExportRunsXLSX(ctx context.Context, limit int) ([]byte, error) {
	start := time.Now()

	runs, err := s.journal.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Runs"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if defaultIndex, _ := f.GetSheetIndex("Sheet1"); defaultIndex != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{
		"Date",
		"Input",
		"Mode",
		"Backend",
		"Status",
		"Cache Hit",
		"Fields",
		"Model Calls",
		"Tokens In",
		"Tokens Out",
		"Cost (USD)",
		"Duration (ms)",
		"Error",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range runs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.CreatedAt.Format("2006-01-02 15:04:05"))
		write(2, r.InputPath)
		write(3, r.Mode)
		write(4, r.Backend)
		write(5, string(r.Status))
		write(6, r.CacheHit)
		write(7, r.FieldsCount)
		write(8, r.ModelCalls)
		write(9, r.InputTokens)
		write(10, r.OutputTokens)
		write(11, r.CostUSD)
		write(12, r.DurationMS)
		write(13, truncate(r.Error, 140))

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 20) // date
	_ = f.SetColWidth(sheet, "B", "B", 60) // input path
	_ = f.SetColWidth(sheet, "C", "E", 14) // mode/backend/status
	_ = f.SetColWidth(sheet, "K", "L", 14) // cost/duration
	_ = f.SetColWidth(sheet, "M", "M", 48) // error

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(runs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
