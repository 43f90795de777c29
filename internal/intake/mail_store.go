package intake

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"archivio/internal"
	"archivio/internal/storage"
)

type MailStore struct {
	db         *storage.DB
	rawMailDir string
}

func NewMailStore(db *storage.DB, rawMailDir string) *MailStore {
	return &MailStore{db: db, rawMailDir: rawMailDir}
}

// Store writes the raw message once per content hash and upserts its row.
func (s *MailStore) Store(msg internal.FetchedMailMessage) (internal.MailRow, error) {
	hashBytes := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(hashBytes[:])

	if err := os.MkdirAll(s.rawMailDir, 0o755); err != nil {
		return internal.MailRow{}, err
	}

	rawPath := filepath.Join(s.rawMailDir, hash+".eml")
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return internal.MailRow{}, err
		}
	}

	return s.db.UpsertMail(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, rawPath, MailFetched)
}

func (s *MailStore) Raw(row internal.MailRow) ([]byte, error) {
	return os.ReadFile(row.RawRef)
}
