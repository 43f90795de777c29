package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"archivio/internal"
)

type Config struct {
	DBPath     string
	RawMailDir string
	OutputDir  string

	APIBaseURL      string
	APIToken        string
	APIRateLimitRPS int
	APITimeoutMs    int
	APIMaxAttempts  int

	KindsFile string
	Kinds     []KindConfig

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	IntakeProvider      string
	IntakeLabel         string
	IntakeIntervalSec   int
	IntakeFetchMax      int
	IntakeDefaultKind   string
	IntakeAutoImportNew bool
	IntakeAutoExport    bool
}

// KindConfig describes an import kind. Kinds with a BulkDocumentType may be
// committed as a single aggregate document.
type KindConfig struct {
	Name             string   `toml:"name"`
	Label            string   `toml:"label"`
	BulkDocumentType string   `toml:"bulk_document_type"`
	Keywords         []string `toml:"keywords"`
}

type kindsFile struct {
	Kinds []KindConfig `toml:"kind"`
}

var defaultKinds = []KindConfig{
	{Name: string(internal.KindPayslip), Label: "Cedolini", BulkDocumentType: "cedolini_periodo", Keywords: []string{"cedolin", "busta paga", "buste paga", "lul", "payslip"}},
	{Name: string(internal.KindLaborForm), Label: "Comunicazioni UNILAV", Keywords: []string{"unilav", "assunzion", "cessazion", "proroga"}},
	{Name: string(internal.KindTaxForm), Label: "Modelli F24", Keywords: []string{"f24", "delega", "tribut"}},
	{Name: string(internal.KindGeneric), Label: "Documenti"},
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "archivio.db")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		APIBaseURL:      getEnv("ARCHIVIO_API_BASE_URL", "http://localhost:8000/api/v1"),
		APIToken:        getEnv("ARCHIVIO_API_TOKEN", ""),
		APIRateLimitRPS: getEnvInt("ARCHIVIO_RATE_LIMIT_RPS", 5),
		APITimeoutMs:    getEnvInt("ARCHIVIO_TIMEOUT_MS", 30000),
		APIMaxAttempts:  getEnvInt("ARCHIVIO_MAX_ATTEMPTS", 5),

		KindsFile: getEnv("ARCHIVIO_KINDS_FILE", ""),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		IntakeProvider:      getEnv("INTAKE_PROVIDER", "imap"),
		IntakeLabel:         getEnv("INTAKE_LABEL", "INBOX"),
		IntakeIntervalSec:   getEnvInt("INTAKE_INTERVAL_SEC", 60),
		IntakeFetchMax:      getEnvInt("INTAKE_FETCH_MAX", 20),
		IntakeDefaultKind:   getEnv("INTAKE_DEFAULT_KIND", string(internal.KindGeneric)),
		IntakeAutoImportNew: getEnvBool("INTAKE_AUTO_IMPORT_NEW", false),
		IntakeAutoExport:    getEnvBool("INTAKE_AUTO_EXPORT", true),
	}

	cfg.Kinds = defaultKinds
	if strings.TrimSpace(cfg.KindsFile) != "" {
		kinds, err := LoadKinds(cfg.KindsFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Kinds = kinds
	}

	return cfg, nil
}

func LoadKinds(path string) ([]KindConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read kinds file '%s': %w", path, err)
	}
	var parsed kindsFile
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse kinds file '%s': %w", path, err)
	}
	seen := map[string]struct{}{}
	for i, k := range parsed.Kinds {
		name := strings.TrimSpace(k.Name)
		if name == "" {
			return nil, fmt.Errorf("kinds file '%s': kind #%d has no name", path, i+1)
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("kinds file '%s': duplicate kind %q", path, name)
		}
		seen[name] = struct{}{}
		parsed.Kinds[i].Name = name
	}
	if len(parsed.Kinds) == 0 {
		return nil, fmt.Errorf("kinds file '%s' defines no kinds", path)
	}
	return parsed.Kinds, nil
}

func (c Config) Kind(kind internal.ImportKind) (KindConfig, bool) {
	for _, k := range c.Kinds {
		if k.Name == string(kind) {
			return k, true
		}
	}
	return KindConfig{}, false
}

// BulkDocumentType returns the aggregate document type for kinds that support
// the whole-archive commit.
func (c Config) BulkDocumentType(kind internal.ImportKind) (string, bool) {
	k, ok := c.Kind(kind)
	if !ok || strings.TrimSpace(k.BulkDocumentType) == "" {
		return "", false
	}
	return k.BulkDocumentType, true
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
