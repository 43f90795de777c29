package archive

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

var ErrEmptyArchive = errors.New("archive has no documents")

type EntryKind string

const (
	EntryPDF   EntryKind = "pdf"
	EntryXLSX  EntryKind = "xlsx"
	EntryOther EntryKind = "other"
)

type Entry struct {
	Name   string
	Size   int64
	Kind   EntryKind
	Pages  int
	Sheets []string
	// Problem is set when the entry could not be read; the upload still goes
	// ahead and the server decides.
	Problem string
}

type Inspection struct {
	Filename string
	SHA256   string
	Size     int64
	Zip      bool
	Entries  []Entry
}

func (i Inspection) Pages() int {
	total := 0
	for _, e := range i.Entries {
		total += e.Pages
	}
	return total
}

func (i Inspection) Problems() []Entry {
	var out []Entry
	for _, e := range i.Entries {
		if e.Problem != "" {
			out = append(out, e)
		}
	}
	return out
}

func InspectFile(filePath string) (Inspection, []byte, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return Inspection{}, nil, err
	}
	insp, err := Inspect(filepath.Base(filePath), content)
	return insp, content, err
}

// Inspect describes an upload before it is sent. Zip files are listed entry
// by entry, anything else is treated as a single document.
func Inspect(filename string, content []byte) (Inspection, error) {
	sum := sha256.Sum256(content)
	insp := Inspection{
		Filename: filename,
		SHA256:   hex.EncodeToString(sum[:]),
		Size:     int64(len(content)),
	}
	if len(content) == 0 {
		return insp, ErrEmptyArchive
	}

	if !strings.EqualFold(filepath.Ext(filename), ".zip") {
		insp.Entries = []Entry{inspectEntry(filename, content)}
		return insp, nil
	}

	insp.Zip = true
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return insp, fmt.Errorf("failed to open zip '%s': %w", filename, err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || ignored(f.Name) {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			insp.Entries = append(insp.Entries, Entry{Name: f.Name, Size: int64(f.UncompressedSize64), Kind: kindOf(f.Name), Problem: err.Error()})
			continue
		}
		insp.Entries = append(insp.Entries, inspectEntry(f.Name, data))
	}
	if len(insp.Entries) == 0 {
		return insp, ErrEmptyArchive
	}
	return insp, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func ignored(name string) bool {
	base := path.Base(name)
	return strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(base, ".") || strings.EqualFold(base, "Thumbs.db")
}

func kindOf(name string) EntryKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return EntryPDF
	case ".xlsx", ".xlsm":
		return EntryXLSX
	default:
		return EntryOther
	}
}

func inspectEntry(name string, content []byte) Entry {
	e := Entry{Name: name, Size: int64(len(content)), Kind: kindOf(name)}
	switch e.Kind {
	case EntryPDF:
		pages, err := countPages(content)
		if err != nil {
			e.Problem = fmt.Sprintf("unreadable pdf: %v", err)
			break
		}
		e.Pages = pages
	case EntryXLSX:
		sheets, err := listSheets(content)
		if err != nil {
			e.Problem = fmt.Sprintf("unreadable workbook: %v", err)
			break
		}
		e.Sheets = sheets
	}
	return e
}

func countPages(content []byte) (pages int, err error) {
	// the pdf reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, err
	}
	return r.NumPage(), nil
}

func listSheets(content []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.GetSheetList(), nil
}
