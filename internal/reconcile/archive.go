package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"archivio/internal"
)

type ArchiveCommitResult struct {
	Committed   bool
	DocumentRef string
	Duplicate   *internal.DuplicateInfo
	Errors      []string
}

// CommitWholeArchive stores the uploaded archive as one aggregate document
// instead of reconciling its candidates. With allowDuplicate the commit is
// sent with the add policy, overriding a duplicate at archive granularity.
func (r *Reconciler) CommitWholeArchive(ctx context.Context, session *internal.ImportSession, allowDuplicate bool) (ArchiveCommitResult, error) {
	release, err := r.acquire(session.ID)
	if err != nil {
		return ArchiveCommitResult{}, err
	}
	defer release()

	docType, ok := r.cfg.BulkDocumentType(session.Kind)
	if !ok {
		return ArchiveCommitResult{}, fmt.Errorf("%w: %s", internal.ErrNotBulkKind, session.Kind)
	}
	if session.Path != internal.PathUndecided {
		return ArchiveCommitResult{}, fmt.Errorf("%w: session %s is on path %s", internal.ErrPathTaken, session.ID, session.Path)
	}

	resolvable, err := r.backend.ResolveArchive(ctx, session.SourceArchiveRef)
	if err != nil {
		return ArchiveCommitResult{}, err
	}
	if !resolvable {
		return ArchiveCommitResult{}, fmt.Errorf("%w: %q", internal.ErrArchiveUnavailable, session.SourceArchiveRef)
	}

	req := internal.ArchiveCommitRequest{
		ArchiveRef:   session.SourceArchiveRef,
		Kind:         session.Kind,
		DocumentType: docType,
	}
	if allowDuplicate {
		req.DuplicatePolicy = internal.PolicyAdd
	}

	resp, err := r.backend.CommitWholeArchive(ctx, req)
	if err != nil {
		return ArchiveCommitResult{}, err
	}

	if !resp.Success || resp.DocumentRef == nil || *resp.DocumentRef == "" {
		slog.Info("whole-archive commit refused", "session", session.ID, "duplicate", resp.DuplicateInfo != nil, "errors", len(resp.Errors))
		return ArchiveCommitResult{Duplicate: resp.DuplicateInfo, Errors: resp.Errors}, nil
	}

	if err := session.ApplyWholeArchive(*resp.DocumentRef); err != nil {
		return ArchiveCommitResult{}, err
	}
	r.save(session)
	if err := r.journal.RecordCandidateEvent(internal.CandidateEvent{
		SessionID:   session.ID,
		Action:      "commit_archive",
		Outcome:     string(OutcomeImported),
		Policy:      req.DuplicatePolicy,
		DocumentRef: resp.DocumentRef,
	}); err != nil {
		slog.Warn("journal archive event failed", "session", session.ID, "error", err)
	}
	slog.Info("whole-archive commit done", "session", session.ID, "document", *resp.DocumentRef)
	return ArchiveCommitResult{Committed: true, DocumentRef: *resp.DocumentRef, Errors: resp.Errors}, nil
}
