package intake

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"archivio/internal"
	"archivio/internal/archive"
	"archivio/internal/config"
	"archivio/internal/reconcile"
	"archivio/internal/report"
	"archivio/internal/storage"
)

const (
	MailFetched       = "fetched"
	MailUploaded      = "uploaded"
	MailNoAttachments = "no_attachments"
	MailFailed        = "failed"
)

type SessionCreator interface {
	CreateSession(ctx context.Context, kind internal.ImportKind, filename string, content []byte) (*internal.ImportSession, error)
}

type Service struct {
	db         *storage.DB
	cfg        config.Config
	store      *MailStore
	creator    SessionCreator
	reconciler *reconcile.Reconciler
}

func NewService(db *storage.DB, cfg config.Config, creator SessionCreator, reconciler *reconcile.Reconciler) *Service {
	return &Service{
		db:         db,
		cfg:        cfg,
		store:      NewMailStore(db, cfg.RawMailDir),
		creator:    creator,
		reconciler: reconciler,
	}
}

type FetchResult struct {
	Fetched int
	Stored  int
}

func (s *Service) FetchAndStore(ctx context.Context, connector MailConnector, label string, max int) (FetchResult, error) {
	messages, err := connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	stored := 0
	for _, msg := range messages {
		if _, err := s.store.Store(msg); err != nil {
			return FetchResult{Fetched: len(messages), Stored: stored}, err
		}
		stored++
	}

	return FetchResult{Fetched: len(messages), Stored: stored}, nil
}

type UploadResult struct {
	Inspection archive.Inspection
	Session    *internal.ImportSession
	// Reused is set when the same bytes were uploaded before; the earlier
	// session is returned and nothing is sent to the backend.
	Reused          bool
	VerdictsUnknown bool
}

// Upload inspects an archive, opens a session for it on the backend, journals
// it and runs the first duplicate check. A failed check does not fail the
// upload: the session is returned with unknown verdicts.
func (s *Service) Upload(ctx context.Context, filename string, content []byte, kind internal.ImportKind) (UploadResult, error) {
	insp, err := archive.Inspect(filename, content)
	if err != nil {
		return UploadResult{Inspection: insp}, err
	}
	for _, p := range insp.Problems() {
		slog.Warn("archive entry unreadable", "archive", filename, "entry", p.Name, "problem", p.Problem)
	}

	prior, err := s.db.GetUploadByHash(insp.SHA256)
	if err != nil {
		return UploadResult{Inspection: insp}, err
	}
	if prior != nil {
		session, err := s.db.GetSession(prior.SessionID)
		if err != nil {
			return UploadResult{Inspection: insp}, err
		}
		if session != nil {
			slog.Info("archive already uploaded", "archive", filename, "session", session.ID, "firstName", prior.Filename)
			return UploadResult{Inspection: insp, Session: session, Reused: true, VerdictsUnknown: !session.Verdicts.Known()}, nil
		}
	}

	session, err := s.creator.CreateSession(ctx, kind, filename, content)
	if err != nil {
		return UploadResult{Inspection: insp}, fmt.Errorf("create session for %s: %w", filename, err)
	}
	session.NormalizePath()
	if err := s.db.RecordUpload(insp.SHA256, filename, kind, session.ID); err != nil {
		return UploadResult{Inspection: insp, Session: session}, err
	}
	if err := s.db.SaveSession(session); err != nil {
		return UploadResult{Inspection: insp, Session: session}, err
	}

	res := UploadResult{Inspection: insp, Session: session}
	if _, err := s.reconciler.CheckDuplicates(ctx, session); err != nil {
		res.VerdictsUnknown = true
	}
	slog.Info("archive uploaded", "archive", filename, "kind", kind, "session", session.ID,
		"entries", len(insp.Entries), "candidates", len(session.Candidates), "verdictsUnknown", res.VerdictsUnknown)
	return res, nil
}

type AttachmentOutcome struct {
	Filename       string
	Classification Classification
	Upload         UploadResult
	Batch          *reconcile.BatchResult
	ReportPath     string
	Err            error
}

type MailOutcome struct {
	MailID      int
	Status      string
	Attachments []AttachmentOutcome
}

// ProcessPending turns fetched mails into import sessions, one per
// uploadable attachment.
func (s *Service) ProcessPending(ctx context.Context, limit int) ([]MailOutcome, error) {
	rows, err := s.db.ListMailsByStatus(MailFetched, limit)
	if err != nil {
		return nil, err
	}

	out := make([]MailOutcome, 0, len(rows))
	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		outcome := s.processMail(ctx, row)
		if err := s.db.UpdateMailStatus(row.ID, outcome.Status); err != nil {
			return out, err
		}
		out = append(out, outcome)
	}
	return out, nil
}

func (s *Service) processMail(ctx context.Context, row internal.MailRow) MailOutcome {
	outcome := MailOutcome{MailID: row.ID, Status: MailFailed}

	raw, err := s.store.Raw(row)
	if err != nil {
		slog.Error("raw mail unreadable", "mail", row.ID, "path", row.RawRef, "error", err)
		return outcome
	}
	subject, attachments, err := ExtractAttachments(raw)
	if err != nil {
		slog.Error("mail parse failed", "mail", row.ID, "error", err)
		return outcome
	}
	if subject == "" {
		subject = row.Subject
	}
	if len(attachments) == 0 {
		outcome.Status = MailNoAttachments
		return outcome
	}

	linked := false
	for _, att := range attachments {
		result := s.processAttachment(ctx, subject, att)
		outcome.Attachments = append(outcome.Attachments, result)
		if result.Err != nil {
			slog.Warn("attachment not imported", "mail", row.ID, "file", att.Filename, "error", result.Err)
			continue
		}
		outcome.Status = MailUploaded
		if !linked {
			if err := s.db.LinkMailSession(row.ID, result.Upload.Session.ID); err != nil {
				slog.Warn("mail link failed", "mail", row.ID, "error", err)
			}
			linked = true
		}
	}
	return outcome
}

func (s *Service) processAttachment(ctx context.Context, subject string, att Attachment) AttachmentOutcome {
	class := Classify(subject, att.Filename, s.cfg.Kinds, internal.ImportKind(s.cfg.IntakeDefaultKind))
	result := AttachmentOutcome{Filename: att.Filename, Classification: class}

	upload, err := s.Upload(ctx, att.Filename, att.Content, class.Kind)
	result.Upload = upload
	if err != nil {
		result.Err = err
		return result
	}
	if upload.Reused {
		return result
	}

	session := upload.Session
	if s.cfg.IntakeAutoImportNew {
		batch, err := s.reconciler.ImportAllNew(ctx, session)
		if err != nil {
			slog.Warn("auto import skipped", "session", session.ID, "error", err)
		} else {
			result.Batch = &batch
		}
	}

	if s.cfg.IntakeAutoExport {
		path := filepath.Join(s.cfg.OutputDir, "intake", session.ID+".xlsx")
		if err := report.ExportSessionToXLSX(session, path); err != nil {
			slog.Warn("report export failed", "session", session.ID, "error", err)
		} else {
			result.ReportPath = path
		}
	}
	return result
}
