// Package report renders validation issues for download.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/JonMunkholm/mdo/internal/validation"
)

// Header is the column order of the CSV report.
var Header = []string{"id", "severity", "fileName", "rowIndex", "columnName", "ruleId", "description"}

// ContentType is the MIME type of the CSV report.
const ContentType = "text/csv; charset=utf-8"

// WriteCSV writes one row per issue in the given order. Absent optional
// fields are written as empty strings.
func WriteCSV(w io.Writer, issues []validation.Issue) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, is := range issues {
		row := ""
		if is.RowIndex != nil {
			row = strconv.Itoa(*is.RowIndex)
		}
		record := []string{
			is.ID,
			string(is.Severity),
			is.FileName,
			row,
			is.ColumnName,
			is.RuleID,
			is.Description,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write issue %s: %w", is.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Filename is the download name of a run's report.
func Filename(runID string) string {
	if runID == "" {
		return "validation-report.csv"
	}
	return "validation-report-" + runID + ".csv"
}
