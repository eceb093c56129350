// Package export renders read models into downloadable files.
package export

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/avalia-hub/avalia-hub/internal/application/query"
)

// ContentTypeXLSX is the MIME type of the generated workbooks.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const reportSheet = "Grades"

var reportHeader = []any{"Student ID", "Name", "Email", "Professor", "Self", "Peers", "Peer count", "Total"}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ReportFilename returns the download name of an assignment report.
func ReportFilename(report *query.GradeReportDTO) string {
	name := strings.Trim(unsafeFilename.ReplaceAllString(report.Assignment.Name, "_"), "_")
	if name == "" {
		name = report.Assignment.ID
	}
	return fmt.Sprintf("grades_%s_%s.xlsx", name, report.GeneratedAt.Format("20060102"))
}

// WriteGradeReport writes the report as a single-sheet workbook: one row per
// student followed by a summary row with the stored aggregate.
func WriteGradeReport(w io.Writer, report *query.GradeReportDTO) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return fmt.Errorf("export: rename sheet: %w", err)
	}

	if err := f.SetSheetRow(reportSheet, "A1", &reportHeader); err != nil {
		return fmt.Errorf("export: header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("export: style: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(reportHeader))
	if err != nil {
		return fmt.Errorf("export: header: %w", err)
	}
	if err := f.SetCellStyle(reportSheet, "A1", lastCol+"1", bold); err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}

	for i, r := range report.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("export: row %d: %w", i, err)
		}
		row := []any{r.StudentID, r.Name, r.Email, r.Instructor, r.Self, r.Peers, r.PeerCount, r.Total}
		if err := f.SetSheetRow(reportSheet, cell, &row); err != nil {
			return fmt.Errorf("export: row %d: %w", i, err)
		}
	}

	summary := len(report.Rows) + 3
	aggregate := "-"
	if report.Assignment.MediaGeral != nil {
		aggregate = fmt.Sprintf("%.2f", *report.Assignment.MediaGeral)
	}
	for _, kv := range [][2]string{
		{"Assignment", report.Assignment.Name},
		{"mediaGeral", aggregate},
		{"Max total", fmt.Sprintf("%.2f", report.MaxTotal)},
	} {
		cell, err := excelize.CoordinatesToCellName(1, summary)
		if err != nil {
			return fmt.Errorf("export: summary: %w", err)
		}
		row := []any{kv[0], kv[1]}
		if err := f.SetSheetRow(reportSheet, cell, &row); err != nil {
			return fmt.Errorf("export: summary: %w", err)
		}
		summary++
	}

	if err := f.SetColWidth(reportSheet, "A", "C", 24); err != nil {
		return fmt.Errorf("export: column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("export: write workbook: %w", err)
	}
	return nil
}
