package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"
)

func workbook(t *testing.T, sheets ...string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for _, s := range sheets {
		if _, err := f.NewSheet(s); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func zipOf(t *testing.T, files map[string][]byte, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(files[name]); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestInspectZip(t *testing.T) {
	files := map[string][]byte{
		"riepilogo.xlsx":         workbook(t, "Dipendenti"),
		"cedolini/rossi.pdf":     []byte("not really a pdf"),
		"note.txt":               []byte("ciao"),
		"__MACOSX/._rossi.pdf":   []byte("junk"),
		"cedolini/.DS_Store":     []byte("junk"),
	}
	content := zipOf(t, files, []string{"riepilogo.xlsx", "cedolini/rossi.pdf", "note.txt", "__MACOSX/._rossi.pdf", "cedolini/.DS_Store"})

	insp, err := Inspect("settembre.zip", content)
	if err != nil {
		t.Fatal(err)
	}
	if !insp.Zip || len(insp.SHA256) != 64 || insp.Size != int64(len(content)) {
		t.Fatalf("inspection=%+v", insp)
	}
	if len(insp.Entries) != 3 {
		t.Fatalf("entries=%+v", insp.Entries)
	}

	sheetEntry := insp.Entries[0]
	if sheetEntry.Kind != EntryXLSX || len(sheetEntry.Sheets) != 2 || sheetEntry.Sheets[1] != "Dipendenti" {
		t.Fatalf("xlsx entry=%+v", sheetEntry)
	}
	pdfEntry := insp.Entries[1]
	if pdfEntry.Kind != EntryPDF || pdfEntry.Problem == "" {
		t.Fatalf("pdf entry=%+v", pdfEntry)
	}
	if insp.Entries[2].Kind != EntryOther || insp.Entries[2].Problem != "" {
		t.Fatalf("txt entry=%+v", insp.Entries[2])
	}
	if len(insp.Problems()) != 1 {
		t.Fatalf("problems=%+v", insp.Problems())
	}
}

func TestInspectSingleFile(t *testing.T) {
	insp, err := Inspect("presenze.xlsx", workbook(t))
	if err != nil {
		t.Fatal(err)
	}
	if insp.Zip || len(insp.Entries) != 1 || insp.Entries[0].Sheets[0] != "Sheet1" {
		t.Fatalf("inspection=%+v", insp)
	}
}

func TestInspectRejectsEmpty(t *testing.T) {
	if _, err := Inspect("vuoto.zip", nil); !errors.Is(err, ErrEmptyArchive) {
		t.Fatalf("err=%v", err)
	}
	onlyJunk := zipOf(t, map[string][]byte{"__MACOSX/._x": []byte("x")}, []string{"__MACOSX/._x"})
	if _, err := Inspect("junk.zip", onlyJunk); !errors.Is(err, ErrEmptyArchive) {
		t.Fatalf("err=%v", err)
	}
}

func TestSameBytesSameHash(t *testing.T) {
	a, _ := Inspect("a.pdf", []byte("%PDF-1.4 uno"))
	b, _ := Inspect("b.pdf", []byte("%PDF-1.4 uno"))
	if a.SHA256 != b.SHA256 {
		t.Fatal("hash must depend on content only")
	}
}
