package config

import (
	"os"
	"path/filepath"
	"testing"

	"archivio/internal"
)

func TestLoadKindsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kinds.toml")
	blob := `
[[kind]]
name = "payslip"
label = "Cedolini"
bulk_document_type = "cedolini_periodo"
keywords = ["cedolin", "lul"]

[[kind]]
name = "tax_form"
label = "F24"
`
	if err := os.WriteFile(path, []byte(blob), 0o644); err != nil {
		t.Fatal(err)
	}

	kinds, err := LoadKinds(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(kinds) != 2 {
		t.Fatalf("len=%d", len(kinds))
	}

	cfg := Config{Kinds: kinds}
	docType, ok := cfg.BulkDocumentType(internal.KindPayslip)
	if !ok || docType != "cedolini_periodo" {
		t.Fatalf("payslip bulk type=%q ok=%v", docType, ok)
	}
	if _, ok := cfg.BulkDocumentType(internal.KindTaxForm); ok {
		t.Fatal("tax_form must not support whole-archive commit")
	}
	if _, ok := cfg.BulkDocumentType(internal.KindLaborForm); ok {
		t.Fatal("unknown kind must not support whole-archive commit")
	}
}

func TestLoadKindsRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kinds.toml")
	blob := "[[kind]]\nname = \"payslip\"\n\n[[kind]]\nname = \"payslip\"\n"
	if err := os.WriteFile(path, []byte(blob), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadKinds(path); err == nil {
		t.Fatal("expected duplicate kind error")
	}
}

func TestDefaultKinds(t *testing.T) {
	t.Setenv("ARCHIVIO_KINDS_FILE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cfg.BulkDocumentType(internal.KindPayslip); !ok {
		t.Fatal("payslip should be a bulk kind by default")
	}
	if cfg.APIMaxAttempts <= 0 {
		t.Fatalf("max attempts=%d", cfg.APIMaxAttempts)
	}
}
