package report

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"archivio/internal"
)

func sampleSession() *internal.ImportSession {
	ref := "doc-1"
	old := "doc-old"
	detail := "periodo: formato non valido"
	party := "p-1"
	return &internal.ImportSession{
		ID:               "s-1",
		Kind:             internal.KindPayslip,
		SourceArchiveRef: "arch-1",
		Path:             internal.PathPerCandidate,
		Candidates: []internal.ImportCandidate{
			{UUID: "c1", SourceFilename: "rossi.pdf", Status: internal.StatusImported, CreatedDocumentRef: &ref},
			{UUID: "c2", SourceFilename: "bianchi.pdf", Status: internal.StatusPending, PartyMatch: &internal.PartyMatch{PartyID: &party, Name: "Bianchi Srl", Confidence: 0.8}},
			{UUID: "c3", SourceFilename: "verdi.pdf", Status: internal.StatusError, ErrorDetail: &detail},
		},
		Verdicts: internal.VerdictSet{
			Checked: true,
			ByCandidate: map[string]internal.DuplicateVerdict{
				"c2": {CandidateID: "c2", IsDuplicate: true, MatchedExistingRef: &old, Confidence: 0.92, MatchedFields: []string{"codice_fiscale", "periodo"}},
			},
		},
	}
}

func TestBuildRowsOrdersPendingFirst(t *testing.T) {
	rows := BuildRows(sampleSession())
	if len(rows) != 3 {
		t.Fatalf("len=%d", len(rows))
	}
	if rows[0].CandidateID != "c2" || rows[1].CandidateID != "c3" || rows[2].CandidateID != "c1" {
		t.Fatalf("order=%s,%s,%s", rows[0].CandidateID, rows[1].CandidateID, rows[2].CandidateID)
	}
	if rows[0].DuplicateStatus != "duplicate" || rows[0].MatchedFields != "codice_fiscale, periodo" {
		t.Fatalf("row=%+v", rows[0])
	}
	if rows[0].PartyName == nil || *rows[0].PartyName != "Bianchi Srl" {
		t.Fatalf("party=%v", rows[0].PartyName)
	}
	if rows[2].DuplicateStatus != "unknown" || rows[2].Confidence != nil {
		t.Fatalf("row=%+v", rows[2])
	}
	if rows[2].Position != 1 {
		t.Fatalf("position=%d", rows[2].Position)
	}
}

func TestExportSessionToXLSX(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "s-1.xlsx")
	if err := ExportSessionToXLSX(sampleSession(), out); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	header, _ := f.GetCellValue(sheet, "A1")
	if header != "position" {
		t.Fatalf("header=%q", header)
	}
	first, _ := f.GetCellValue(sheet, "B2")
	if first != "c2" {
		t.Fatalf("first row=%q", first)
	}
	matched, _ := f.GetCellValue(sheet, "F2")
	if matched != "doc-old" {
		t.Fatalf("matched=%q", matched)
	}
	pending, _ := f.GetCellValue("summary", "B12")
	if pending != "1" {
		t.Fatalf("pending=%q", pending)
	}
}
