package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"archivio/internal"
	"archivio/internal/config"
)

// DuplicateDetector checks a whole session in one round trip.
type DuplicateDetector interface {
	CheckDuplicates(ctx context.Context, session *internal.ImportSession) (map[string]internal.DuplicateVerdict, error)
}

type Committer interface {
	ConfirmCandidate(ctx context.Context, sessionID, candidateID string, req internal.ConfirmRequest) (internal.CommitResponse, error)
	SkipCandidate(ctx context.Context, sessionID, candidateID string) error
}

type ArchiveCommitter interface {
	ResolveArchive(ctx context.Context, archiveRef string) (bool, error)
	CommitWholeArchive(ctx context.Context, req internal.ArchiveCommitRequest) (internal.ArchiveCommitResponse, error)
}

type Backend interface {
	DuplicateDetector
	Committer
	ArchiveCommitter
}

// Journal keeps a local record of what happened to each session.
type Journal interface {
	SaveSession(session *internal.ImportSession) error
	RecordCandidateEvent(event internal.CandidateEvent) error
	InsertRun(traceID, sessionID, operation string, timings map[string]float64, counts map[string]int) error
}

type Outcome string

const (
	OutcomeImported Outcome = "imported"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeConflict Outcome = "conflict"
	OutcomeFailed   Outcome = "failed"
)

type ConfirmResult struct {
	CandidateID string
	Outcome     Outcome
	DocumentRef string
	Conflict    *internal.DuplicateInfo
	Detail      string
}

type Reconciler struct {
	cfg     config.Config
	backend Backend
	journal Journal
	now     func() time.Time

	mu   sync.Mutex
	busy map[string]struct{}
}

func NewReconciler(cfg config.Config, backend Backend, journal Journal) *Reconciler {
	if journal == nil {
		journal = nopJournal{}
	}
	return &Reconciler{
		cfg:     cfg,
		backend: backend,
		journal: journal,
		now:     time.Now,
		busy:    map[string]struct{}{},
	}
}

// CheckDuplicates replaces the session verdicts with a fresh check. When the
// check fails every candidate becomes unknown and the error is returned.
func (r *Reconciler) CheckDuplicates(ctx context.Context, session *internal.ImportSession) (internal.VerdictSet, error) {
	release, err := r.acquire(session.ID)
	if err != nil {
		return session.Verdicts, err
	}
	defer release()

	verdicts, err := r.backend.CheckDuplicates(ctx, session)
	if err != nil {
		session.ReplaceVerdicts(internal.FailedVerdictSet(err, r.now()))
		slog.Warn("duplicate check failed, verdicts unknown", "session", session.ID, "error", err)
		r.save(session)
		return session.Verdicts, fmt.Errorf("duplicate check: %w", err)
	}

	set, dropped := internal.NewVerdictSet(verdicts, r.now())
	if len(dropped) > 0 {
		slog.Warn("dropped invalid verdicts", "session", session.ID, "candidates", dropped)
	}
	session.ReplaceVerdicts(set)
	r.save(session)
	slog.Info("duplicate check done", "session", session.ID, "verdicts", len(set.ByCandidate), "duplicates", len(session.PendingWith(internal.DuplicateFound)))
	return set, nil
}

// Confirm commits one pending candidate with the user's edits. A known
// duplicate without a policy yields a *internal.DecisionRequiredError. Commit
// conflicts and failures are reported in the result, not as errors.
func (r *Reconciler) Confirm(ctx context.Context, session *internal.ImportSession, candidateID string, edited map[string]any, policy internal.ResolutionPolicy) (ConfirmResult, error) {
	release, err := r.acquire(session.ID)
	if err != nil {
		return ConfirmResult{}, err
	}
	defer release()
	return r.confirm(ctx, session, candidateID, edited, policy)
}

// Skip marks a pending candidate as skipped. Skipping needs no policy and is
// allowed whatever the duplicate status; a failed call leaves it pending.
func (r *Reconciler) Skip(ctx context.Context, session *internal.ImportSession, candidateID string) (ConfirmResult, error) {
	release, err := r.acquire(session.ID)
	if err != nil {
		return ConfirmResult{}, err
	}
	defer release()
	return r.skip(ctx, session, candidateID)
}

func (r *Reconciler) confirm(ctx context.Context, session *internal.ImportSession, candidateID string, edited map[string]any, policy internal.ResolutionPolicy) (ConfirmResult, error) {
	cand, err := session.CheckPending(candidateID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if policy == internal.PolicySkip {
		return r.skip(ctx, session, candidateID)
	}
	if v, ok := session.Verdict(candidateID); ok && v.IsDuplicate && policy == internal.PolicyNone {
		return ConfirmResult{}, &internal.DecisionRequiredError{CandidateID: candidateID, Verdict: v}
	}

	req := internal.ConfirmRequest{EditedFields: mergeFields(cand.ExtractedFields, edited), Policy: policy}
	resp, err := r.backend.ConfirmCandidate(ctx, session.ID, candidateID, req)
	if err != nil {
		if ctx.Err() != nil {
			return ConfirmResult{}, fmt.Errorf("confirm %s interrupted: %w", candidateID, ctx.Err())
		}
		resp = internal.CommitResponse{Status: internal.CommitError, Detail: err.Error()}
	}

	result := ConfirmResult{CandidateID: candidateID}
	switch resp.Status {
	case internal.CommitSuccess:
		if err := session.ApplyImported(candidateID, resp.DocumentRef); err != nil {
			return ConfirmResult{}, err
		}
		result.Outcome = OutcomeImported
		result.DocumentRef = resp.DocumentRef
	case internal.CommitConflict:
		if err := session.RecordConflict(candidateID, resp.DuplicateInfo); err != nil {
			return ConfirmResult{}, err
		}
		result.Outcome = OutcomeConflict
		result.Conflict = resp.DuplicateInfo
		result.Detail = resp.Detail
	default:
		detail := resp.Detail
		if detail == "" {
			detail = "commit failed"
		}
		if err := session.ApplyFailed(candidateID, detail); err != nil {
			return ConfirmResult{}, err
		}
		result.Outcome = OutcomeFailed
		result.Detail = detail
	}

	r.record(session, "confirm", policy, result)
	return result, nil
}

func (r *Reconciler) skip(ctx context.Context, session *internal.ImportSession, candidateID string) (ConfirmResult, error) {
	if _, err := session.CheckPending(candidateID); err != nil {
		return ConfirmResult{}, err
	}
	if err := r.backend.SkipCandidate(ctx, session.ID, candidateID); err != nil {
		return ConfirmResult{}, err
	}
	if err := session.ApplySkipped(candidateID); err != nil {
		return ConfirmResult{}, err
	}
	result := ConfirmResult{CandidateID: candidateID, Outcome: OutcomeSkipped}
	r.record(session, "skip", internal.PolicySkip, result)
	return result, nil
}

func (r *Reconciler) acquire(sessionID string) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.busy[sessionID]; ok {
		return nil, fmt.Errorf("%w: %s", internal.ErrSessionBusy, sessionID)
	}
	r.busy[sessionID] = struct{}{}
	return func() {
		r.mu.Lock()
		delete(r.busy, sessionID)
		r.mu.Unlock()
	}, nil
}

func (r *Reconciler) record(session *internal.ImportSession, action string, policy internal.ResolutionPolicy, result ConfirmResult) {
	event := internal.CandidateEvent{
		SessionID:   session.ID,
		CandidateID: result.CandidateID,
		Action:      action,
		Outcome:     string(result.Outcome),
		Policy:      policy,
	}
	if result.DocumentRef != "" {
		ref := result.DocumentRef
		event.DocumentRef = &ref
	}
	if result.Detail != "" {
		detail := result.Detail
		event.Detail = &detail
	}
	if err := r.journal.RecordCandidateEvent(event); err != nil {
		slog.Warn("journal candidate event failed", "session", session.ID, "candidate", result.CandidateID, "error", err)
	}
	r.save(session)
}

func (r *Reconciler) save(session *internal.ImportSession) {
	if err := r.journal.SaveSession(session); err != nil {
		slog.Warn("journal session snapshot failed", "session", session.ID, "error", err)
	}
}

func mergeFields(extracted, edited map[string]any) map[string]any {
	out := make(map[string]any, len(extracted)+len(edited))
	maps.Copy(out, extracted)
	maps.Copy(out, edited)
	return out
}

// IsDecisionRequired extracts the duplicate verdict behind a blocked confirm.
func IsDecisionRequired(err error) (*internal.DecisionRequiredError, bool) {
	var decision *internal.DecisionRequiredError
	if errors.As(err, &decision) {
		return decision, true
	}
	return nil, false
}

type nopJournal struct{}

func (nopJournal) SaveSession(*internal.ImportSession) error        { return nil }
func (nopJournal) RecordCandidateEvent(internal.CandidateEvent) error { return nil }
func (nopJournal) InsertRun(string, string, string, map[string]float64, map[string]int) error {
	return nil
}
