package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"archivio/internal"
)

type BatchOperation string

const (
	OpImportAllNew      BatchOperation = "import_all_new"
	OpSkipAllDuplicates BatchOperation = "skip_all_duplicates"
)

type ItemFailure struct {
	CandidateID    string
	SourceFilename string
	Detail         string
}

type ItemConflict struct {
	CandidateID string
	Info        *internal.DuplicateInfo
}

// BatchResult is the aggregate of a bulk operation. Processed always equals
// Succeeded+Failed; conflicts are failures that left the candidate pending.
type BatchResult struct {
	TraceID   string
	Operation BatchOperation
	Processed int
	Succeeded int
	Failed    int
	Failures  []ItemFailure
	Conflicts []ItemConflict

	// Empty reports a subset with nothing to do.
	Empty bool
	// VerdictsUnknown is set when no successful duplicate check backs the
	// selection; import then selects nothing and falls back to manual review.
	VerdictsUnknown bool
	Cancelled       bool

	Counters internal.SessionCounters
}

type itemOutcome struct {
	ok       bool
	failure  *ItemFailure
	conflict *ItemConflict
}

type stepFunc func(ctx context.Context, cand internal.ImportCandidate) itemOutcome

func (b BatchResult) add(o itemOutcome) BatchResult {
	b.Processed++
	if o.ok {
		b.Succeeded++
		return b
	}
	b.Failed++
	if o.failure != nil {
		b.Failures = append(b.Failures, *o.failure)
	}
	if o.conflict != nil {
		b.Conflicts = append(b.Conflicts, *o.conflict)
	}
	return b
}

// fold runs step over subset in order, one at a time. The context is checked
// between items only, so an item in flight always completes.
func fold(ctx context.Context, op BatchOperation, subset []internal.ImportCandidate, step stepFunc) BatchResult {
	res := BatchResult{Operation: op, Empty: len(subset) == 0}
	for _, cand := range subset {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}
		res = res.add(step(ctx, cand))
	}
	return res
}

// ImportAllNew confirms, without a policy, every pending candidate whose
// verdict says it is not a duplicate. Unknown verdicts are never imported.
func (r *Reconciler) ImportAllNew(ctx context.Context, session *internal.ImportSession) (BatchResult, error) {
	return r.runBatch(ctx, session, OpImportAllNew, internal.DuplicateNew, func(ctx context.Context, cand internal.ImportCandidate) itemOutcome {
		result, err := r.confirm(ctx, session, cand.UUID, nil, internal.PolicyNone)
		if err != nil {
			return failed(cand, err.Error())
		}
		switch result.Outcome {
		case OutcomeImported:
			return itemOutcome{ok: true}
		case OutcomeConflict:
			out := failed(cand, conflictDetail(result))
			out.conflict = &ItemConflict{CandidateID: cand.UUID, Info: result.Conflict}
			return out
		default:
			return failed(cand, result.Detail)
		}
	})
}

// SkipAllDuplicates skips every pending candidate flagged as duplicate.
func (r *Reconciler) SkipAllDuplicates(ctx context.Context, session *internal.ImportSession) (BatchResult, error) {
	return r.runBatch(ctx, session, OpSkipAllDuplicates, internal.DuplicateFound, func(ctx context.Context, cand internal.ImportCandidate) itemOutcome {
		if _, err := r.skip(ctx, session, cand.UUID); err != nil {
			return failed(cand, err.Error())
		}
		return itemOutcome{ok: true}
	})
}

func (r *Reconciler) runBatch(ctx context.Context, session *internal.ImportSession, op BatchOperation, selector internal.DuplicateStatus, step stepFunc) (BatchResult, error) {
	release, err := r.acquire(session.ID)
	if err != nil {
		return BatchResult{Operation: op}, err
	}
	defer release()

	if session.Path == internal.PathWholeArchive {
		return BatchResult{Operation: op}, fmt.Errorf("%w: session %s was committed as a whole archive", internal.ErrPathTaken, session.ID)
	}

	start := r.now()
	subset := session.PendingWith(selector)
	res := fold(ctx, op, subset, step)
	res.TraceID = uuid.NewString()
	res.VerdictsUnknown = !session.Verdicts.Known()
	res.Counters = session.RecomputeCounters()

	elapsed := r.now().Sub(start)
	counts := map[string]int{
		"processed": res.Processed,
		"succeeded": res.Succeeded,
		"failed":    res.Failed,
		"conflicts": len(res.Conflicts),
		"pending":   res.Counters.Pending,
	}
	if err := r.journal.InsertRun(res.TraceID, session.ID, string(op), map[string]float64{"totalMs": float64(elapsed / time.Millisecond)}, counts); err != nil {
		slog.Warn("journal run failed", "session", session.ID, "operation", op, "error", err)
	}

	switch {
	case res.Empty:
		slog.Info("batch had nothing to do", "session", session.ID, "operation", op, "verdictsUnknown", res.VerdictsUnknown)
	default:
		slog.Info("batch done", "session", session.ID, "operation", op, "trace", res.TraceID,
			"processed", res.Processed, "succeeded", res.Succeeded, "failed", res.Failed, "cancelled", res.Cancelled)
	}
	return res, nil
}

func failed(cand internal.ImportCandidate, detail string) itemOutcome {
	return itemOutcome{failure: &ItemFailure{CandidateID: cand.UUID, SourceFilename: cand.SourceFilename, Detail: detail}}
}

func conflictDetail(result ConfirmResult) string {
	if result.Conflict == nil {
		return "conflict reported at commit"
	}
	return fmt.Sprintf("conflict with %s (confidence %.2f)", result.Conflict.ExistingRef, result.Conflict.Confidence)
}

// IsBusy reports whether err came from a competing operation on the session.
func IsBusy(err error) bool {
	return errors.Is(err, internal.ErrSessionBusy)
}
