package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"archivio/internal"
)

// BuildRows lists one row per candidate. Pending rows come first, then errors,
// then the settled ones; the original position is kept inside each group.
func BuildRows(session *internal.ImportSession) []internal.ReportRow {
	rows := make([]internal.ReportRow, 0, len(session.Candidates))
	for i, cand := range session.Candidates {
		row := internal.ReportRow{
			Position:           i + 1,
			CandidateID:        cand.UUID,
			SourceFilename:     cand.SourceFilename,
			Status:             string(cand.Status),
			DuplicateStatus:    string(session.DuplicateStatus(cand.UUID)),
			CreatedDocumentRef: cand.CreatedDocumentRef,
			ErrorDetail:        cand.ErrorDetail,
			Fields:             encodeFields(cand.ExtractedFields),
		}
		if v, ok := session.Verdict(cand.UUID); ok {
			row.MatchedExistingRef = v.MatchedExistingRef
			confidence := v.Confidence
			row.Confidence = &confidence
			row.MatchedFields = strings.Join(v.MatchedFields, ", ")
		}
		if cand.PartyMatch != nil && cand.PartyMatch.Name != "" {
			name := cand.PartyMatch.Name
			row.PartyName = &name
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return statusRank(rows[i].Status) < statusRank(rows[j].Status)
	})
	return rows
}

func statusRank(status string) int {
	switch internal.CandidateStatus(status) {
	case internal.StatusPending:
		return 1
	case internal.StatusError:
		return 2
	default:
		return 3
	}
}

func encodeFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	blob, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	return string(blob)
}

func ExportSessionToXLSX(session *internal.ImportSession, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	headers := []string{
		"position", "candidate_id", "source_filename", "status",
		"duplicate_status", "matched_existing_ref", "confidence", "matched_fields",
		"created_document_ref", "error_detail", "party", "extracted_fields",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range BuildRows(session) {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, row.Position)
		set(2, row.CandidateID)
		set(3, row.SourceFilename)
		set(4, row.Status)
		set(5, row.DuplicateStatus)
		set(6, derefString(row.MatchedExistingRef))
		set(7, derefFloat(row.Confidence))
		set(8, row.MatchedFields)
		set(9, derefString(row.CreatedDocumentRef))
		set(10, derefString(row.ErrorDetail))
		set(11, derefString(row.PartyName))
		set(12, row.Fields)
	}

	summary := "summary"
	if _, err := f.NewSheet(summary); err != nil {
		return err
	}
	c := session.RecomputeCounters()
	lines := [][]any{
		{"session", session.ID},
		{"kind", string(session.Kind)},
		{"archive", session.SourceArchiveRef},
		{"path", string(session.Path)},
		{"archive_document_ref", derefString(session.ArchiveDocumentRef)},
		{"verdicts_checked_at", session.Verdicts.CheckedAt},
		{"verdicts_failure", session.Verdicts.Failure},
		{"total", c.Total},
		{"imported", c.Imported},
		{"skipped", c.Skipped},
		{"error", c.Error},
		{"pending", c.Pending},
	}
	for i, line := range lines {
		_ = f.SetSheetRow(summary, "A"+strconv.Itoa(i+1), &line)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
