package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/avalia-hub/avalia-hub/internal/application/query"
	"github.com/avalia-hub/avalia-hub/internal/domain/grading"
)

func sampleReport() *query.GradeReportDTO {
	agg := 7.5
	return &query.GradeReportDTO{
		Assignment:  query.AssignmentDTO{ID: "a1", Name: "Final Essay #2", MediaGeral: &agg},
		MaxTotal:    20,
		GeneratedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Rows: []query.GradeReportRow{
			{
				Breakdown: grading.Breakdown{StudentID: "s1", Instructor: 10, Self: 4, Peers: 6, PeerCount: 1, Total: 20},
				Name:      "Ana",
				Email:     "ana@example.com",
			},
			{
				Breakdown: grading.Breakdown{StudentID: "s2"},
				Name:      "Bruno",
				Email:     "bruno@example.com",
			},
		},
	}
}

func TestWriteGradeReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGradeReport(&buf, sampleReport()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(reportSheet)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 6)

	assert.Equal(t, "Student ID", rows[0][0])
	assert.Equal(t, "Total", rows[0][7])
	assert.Equal(t, []string{"s1", "Ana", "ana@example.com", "10", "4", "6", "1", "20"}, rows[1])
	assert.Equal(t, "Bruno", rows[2][1])

	v, err := f.GetCellValue(reportSheet, "B6")
	require.NoError(t, err)
	assert.Equal(t, "7.50", v)
}

func TestReportFilename(t *testing.T) {
	assert.Equal(t, "grades_Final_Essay_2_20260301.xlsx", ReportFilename(sampleReport()))

	r := sampleReport()
	r.Assignment.Name = "***"
	assert.Equal(t, "grades_a1_20260301.xlsx", ReportFilename(r))
}
