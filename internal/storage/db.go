package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"archivio/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS sessions (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  archiveRef TEXT NOT NULL,
  path TEXT NOT NULL,
  archiveDocumentRef TEXT,
  total INTEGER NOT NULL,
  imported INTEGER NOT NULL,
  skipped INTEGER NOT NULL,
  errors INTEGER NOT NULL,
  pending INTEGER NOT NULL,
  snapshotJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS candidate_events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  sessionId TEXT NOT NULL,
  candidateId TEXT,
  action TEXT NOT NULL,
  outcome TEXT NOT NULL,
  policy TEXT,
  documentRef TEXT,
  detail TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(sessionId) REFERENCES sessions(id)
);
CREATE INDEX IF NOT EXISTS idx_events_session ON candidate_events(sessionId);

CREATE TABLE IF NOT EXISTS mails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  sessionId TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS uploads (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  hash TEXT NOT NULL UNIQUE,
  filename TEXT NOT NULL,
  kind TEXT NOT NULL,
  sessionId TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  sessionId TEXT,
  operation TEXT NOT NULL,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// SaveSession stores the latest snapshot of a session. Counters are derived
// from the candidates at write time.
func (d *DB) SaveSession(session *internal.ImportSession) error {
	snapshot, err := json.Marshal(session)
	if err != nil {
		return err
	}
	c := session.RecomputeCounters()
	_, err = d.conn.Exec(`
INSERT INTO sessions (id, kind, archiveRef, path, archiveDocumentRef, total, imported, skipped, errors, pending, snapshotJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  kind=excluded.kind,
  archiveRef=excluded.archiveRef,
  path=excluded.path,
  archiveDocumentRef=excluded.archiveDocumentRef,
  total=excluded.total,
  imported=excluded.imported,
  skipped=excluded.skipped,
  errors=excluded.errors,
  pending=excluded.pending,
  snapshotJson=excluded.snapshotJson,
  updatedAt=CURRENT_TIMESTAMP
`, session.ID, string(session.Kind), session.SourceArchiveRef, string(session.Path), session.ArchiveDocumentRef,
		c.Total, c.Imported, c.Skipped, c.Error, c.Pending, string(snapshot))
	return err
}

func (d *DB) GetSession(id string) (*internal.ImportSession, error) {
	var snapshot string
	err := d.conn.QueryRow(`SELECT snapshotJson FROM sessions WHERE id = ?`, id).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var session internal.ImportSession
	if err := json.Unmarshal([]byte(snapshot), &session); err != nil {
		return nil, fmt.Errorf("corrupt snapshot for session %s: %w", id, err)
	}
	session.NormalizePath()
	return &session, nil
}

func (d *DB) ListSessions(limit int) ([]internal.SessionSummary, error) {
	rows, err := d.conn.Query(`
SELECT id, kind, archiveRef, path, total, imported, skipped, errors, pending, updatedAt
FROM sessions ORDER BY updatedAt DESC, id ASC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.SessionSummary
	for rows.Next() {
		var s internal.SessionSummary
		var kind, path string
		if err := rows.Scan(&s.ID, &kind, &s.SourceArchiveRef, &path,
			&s.Counters.Total, &s.Counters.Imported, &s.Counters.Skipped, &s.Counters.Error, &s.Counters.Pending, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Kind = internal.ImportKind(kind)
		s.Path = internal.SessionPath(path)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (d *DB) RecordCandidateEvent(event internal.CandidateEvent) error {
	var candidateID *string
	if event.CandidateID != "" {
		candidateID = &event.CandidateID
	}
	_, err := d.conn.Exec(`
INSERT INTO candidate_events (sessionId, candidateId, action, outcome, policy, documentRef, detail)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, event.SessionID, candidateID, event.Action, event.Outcome, string(event.Policy), event.DocumentRef, event.Detail)
	return err
}

func (d *DB) ListCandidateEvents(sessionID string) ([]internal.CandidateEvent, error) {
	rows, err := d.conn.Query(`
SELECT sessionId, candidateId, action, outcome, policy, documentRef, detail
FROM candidate_events WHERE sessionId = ? ORDER BY id ASC
`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.CandidateEvent
	for rows.Next() {
		var e internal.CandidateEvent
		var candidateID, policy sql.NullString
		if err := rows.Scan(&e.SessionID, &candidateID, &e.Action, &e.Outcome, &policy, &e.DocumentRef, &e.Detail); err != nil {
			return nil, err
		}
		e.CandidateID = candidateID.String
		e.Policy = internal.ResolutionPolicy(policy.String)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (d *DB) UpsertMail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.MailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO mails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.MailRow{}, err
	}

	row, err := d.GetMailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.MailRow{}, err
	}
	if row == nil {
		return internal.MailRow{}, errors.New("failed to upsert mail")
	}
	return *row, nil
}

const mailColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef, sessionId`

func scanMail(scan func(dest ...any) error) (internal.MailRow, error) {
	var row internal.MailRow
	var subject, sender, receivedAt sql.NullString
	err := scan(&row.ID, &row.Provider, &row.MessageID, &subject, &sender, &receivedAt, &row.Hash, &row.Status, &row.RawRef, &row.SessionID)
	row.Subject = subject.String
	row.Sender = sender.String
	row.ReceivedAt = receivedAt.String
	return row, err
}

func (d *DB) GetMailByProviderMessageID(provider, messageID string) (*internal.MailRow, error) {
	row, err := scanMail(d.conn.QueryRow(`SELECT `+mailColumns+` FROM mails WHERE provider = ? AND messageId = ?`, provider, messageID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetMailByID(id int) (*internal.MailRow, error) {
	row, err := scanMail(d.conn.QueryRow(`SELECT `+mailColumns+` FROM mails WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListMailsByStatus(status string, limit int) ([]internal.MailRow, error) {
	rows, err := d.conn.Query(`SELECT `+mailColumns+` FROM mails WHERE status = ? ORDER BY receivedAt ASC, id ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.MailRow
	for rows.Next() {
		row, err := scanMail(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateMailStatus(mailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE mails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, mailID)
	return err
}

func (d *DB) LinkMailSession(mailID int, sessionID string) error {
	_, err := d.conn.Exec(`UPDATE mails SET sessionId = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, sessionID, mailID)
	return err
}

// RecordUpload remembers which session an archive hash produced. A second
// upload of the same bytes keeps the first session.
func (d *DB) RecordUpload(hash, filename string, kind internal.ImportKind, sessionID string) error {
	_, err := d.conn.Exec(`
INSERT INTO uploads (hash, filename, kind, sessionId) VALUES (?, ?, ?, ?)
ON CONFLICT(hash) DO NOTHING
`, hash, filename, string(kind), sessionID)
	return err
}

func (d *DB) GetUploadByHash(hash string) (*internal.UploadRow, error) {
	var row internal.UploadRow
	var kind string
	err := d.conn.QueryRow(`SELECT id, hash, filename, kind, sessionId, createdAt FROM uploads WHERE hash = ?`, hash).Scan(
		&row.ID, &row.Hash, &row.Filename, &kind, &row.SessionID, &row.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	row.Kind = internal.ImportKind(kind)
	return &row, nil
}

func (d *DB) InsertRun(traceID, sessionID, operation string, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, sessionId, operation, timingsJson, countsJson) VALUES (?, ?, ?, ?, ?)`,
		traceID, sessionID, operation, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) CountRuns(sessionID, operation string) (int, error) {
	var n int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM runs WHERE sessionId = ? AND operation = ?`, sessionID, operation).Scan(&n)
	return n, err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
