package internal

import (
	"errors"
	"fmt"
)

var (
	ErrCandidateNotFound  = errors.New("candidate not found")
	ErrNotPending         = errors.New("candidate is not pending")
	ErrPolicyRequired     = errors.New("duplicate detected: resolution policy required")
	ErrPathTaken          = errors.New("session already committed to another path")
	ErrSessionBusy        = errors.New("session has an operation in flight")
	ErrArchiveUnavailable = errors.New("source archive is no longer resolvable")
	ErrNotBulkKind        = errors.New("import kind has no bulk document type")
)

// DecisionRequiredError is returned by a confirm that hit a known duplicate
// without a policy. The candidate is left untouched.
type DecisionRequiredError struct {
	CandidateID string
	Verdict     DuplicateVerdict
}

func (e *DecisionRequiredError) Error() string {
	ref := ""
	if e.Verdict.MatchedExistingRef != nil {
		ref = *e.Verdict.MatchedExistingRef
	}
	return fmt.Sprintf("candidate %s duplicates %s (confidence %.2f): resolution policy required", e.CandidateID, ref, e.Verdict.Confidence)
}

func (e *DecisionRequiredError) Unwrap() error {
	return ErrPolicyRequired
}
