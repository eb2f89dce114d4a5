package report

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/ocrbatch/internal/progress"
)

const progressSheet = "Progress"

// ExportXLSX returns the snapshot as an XLSX workbook.
func ExportXLSX(state progress.RunState, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", progressSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	headers := []string{
		"Document",
		"Status",
		"Processed Pages",
		"Total Pages",
		"Percent",
		"Output File",
		"Started",
		"Completed At",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(progressSheet, cell, h)
	}

	row := 2
	for _, id := range state.IDs() {
		p := state[id]
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(progressSheet, cell, v)
		}
		write(1, id)
		write(2, string(p.Status()))
		write(3, p.ProcessedPages)
		write(4, p.TotalPages)
		write(5, percent(p.ProcessedPages, p.TotalPages))
		write(6, p.OutputFile)
		write(7, formatTime(p.StartedAt))
		write(8, formatTime(p.CompletedAt))
		row++
	}

	totals := state.Totals()
	write := func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(progressSheet, cell, v)
	}
	write(1, "TOTAL")
	write(2, fmt.Sprintf("%d/%d completed", totals.Completed, totals.Documents))
	write(3, totals.Processed)
	write(4, totals.Pages)
	write(5, percent(totals.Processed, totals.Pages))

	_ = f.SetColWidth(progressSheet, "A", "A", 36) // document
	_ = f.SetColWidth(progressSheet, "B", "B", 12)
	_ = f.SetColWidth(progressSheet, "C", "E", 14)
	_ = f.SetColWidth(progressSheet, "F", "F", 48) // output path
	_ = f.SetColWidth(progressSheet, "G", "H", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	logger.Info("report.export.ok", "documents", totals.Documents, "bytes", buf.Len(), "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

func percent(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(done*10000/total) / 100
}

func formatTime(t *progress.Timestamp) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
