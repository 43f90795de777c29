package internal

import (
	"fmt"
	"time"
)

// VerdictSet is the outcome of one duplicate check over a whole session. It is
// replaced, never patched, on every check.
type VerdictSet struct {
	Checked     bool                        `json:"checked"`
	CheckedAt   string                      `json:"checked_at,omitempty"`
	Failure     string                      `json:"failure,omitempty"`
	ByCandidate map[string]DuplicateVerdict `json:"by_candidate,omitempty"`
	// Conflicts holds duplicates the server reported at commit time. They
	// outrank the detector's verdict until the next check replaces the set.
	Conflicts map[string]DuplicateInfo `json:"conflicts,omitempty"`
}

func (v DuplicateVerdict) Validate() error {
	if v.CandidateID == "" {
		return fmt.Errorf("candidate_id must be set")
	}
	if v.Confidence < 0.0 || v.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", v.Confidence)
	}
	hasRef := v.MatchedExistingRef != nil && *v.MatchedExistingRef != ""
	if v.IsDuplicate && !hasRef {
		return fmt.Errorf("matched_existing_ref must be set when is_duplicate is true")
	}
	if !v.IsDuplicate && hasRef {
		return fmt.Errorf("matched_existing_ref should not be set when is_duplicate is false")
	}
	return nil
}

// NewVerdictSet builds a checked set from detector output. Verdicts that fail
// validation are left out, so their candidates stay unknown; their ids are
// returned for logging.
func NewVerdictSet(verdicts map[string]DuplicateVerdict, at time.Time) (VerdictSet, []string) {
	set := VerdictSet{
		Checked:     true,
		CheckedAt:   at.UTC().Format(time.RFC3339),
		ByCandidate: make(map[string]DuplicateVerdict, len(verdicts)),
	}
	var dropped []string
	for id, v := range verdicts {
		if v.CandidateID == "" {
			v.CandidateID = id
		}
		if v.CandidateID != id || v.Validate() != nil {
			dropped = append(dropped, id)
			continue
		}
		set.ByCandidate[id] = v
	}
	return set, dropped
}

func FailedVerdictSet(cause error, at time.Time) VerdictSet {
	return VerdictSet{
		Checked:   true,
		CheckedAt: at.UTC().Format(time.RFC3339),
		Failure:   cause.Error(),
	}
}

func (vs VerdictSet) Known() bool {
	return vs.Checked && vs.Failure == ""
}

func (s *ImportSession) RecomputeCounters() SessionCounters {
	c := SessionCounters{Total: len(s.Candidates)}
	for _, cand := range s.Candidates {
		switch cand.Status {
		case StatusImported:
			c.Imported++
		case StatusSkipped:
			c.Skipped++
		case StatusError:
			c.Error++
		default:
			c.Pending++
		}
	}
	return c
}

func (c SessionCounters) Consistent() bool {
	return c.Pending+c.Imported+c.Skipped+c.Error == c.Total
}

func (s *ImportSession) CandidatesByStatus(status CandidateStatus) []ImportCandidate {
	out := make([]ImportCandidate, 0, len(s.Candidates))
	for _, cand := range s.Candidates {
		if cand.Status == status {
			out = append(out, cand)
		}
	}
	return out
}

func (s *ImportSession) Candidate(id string) (*ImportCandidate, error) {
	for i := range s.Candidates {
		if s.Candidates[i].UUID == id {
			return &s.Candidates[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCandidateNotFound, id)
}

func (s *ImportSession) Verdict(candidateID string) (DuplicateVerdict, bool) {
	if info, ok := s.Verdicts.Conflicts[candidateID]; ok {
		ref := info.ExistingRef
		return DuplicateVerdict{
			CandidateID:        candidateID,
			IsDuplicate:        true,
			MatchedExistingRef: &ref,
			Confidence:         info.Confidence,
			MatchedFields:      info.MatchedFields,
		}, true
	}
	if !s.Verdicts.Known() {
		return DuplicateVerdict{}, false
	}
	v, ok := s.Verdicts.ByCandidate[candidateID]
	return v, ok
}

func (s *ImportSession) DuplicateStatus(candidateID string) DuplicateStatus {
	v, ok := s.Verdict(candidateID)
	switch {
	case !ok:
		return DuplicateUnknown
	case v.IsDuplicate:
		return DuplicateFound
	default:
		return DuplicateNew
	}
}

// PendingWith returns pending candidates with the given duplicate status, in
// session order.
func (s *ImportSession) PendingWith(status DuplicateStatus) []ImportCandidate {
	out := []ImportCandidate{}
	for _, cand := range s.Candidates {
		if cand.Status == StatusPending && s.DuplicateStatus(cand.UUID) == status {
			out = append(out, cand)
		}
	}
	return out
}

func (s *ImportSession) ReplaceVerdicts(vs VerdictSet) {
	s.Verdicts = vs
}

// SameCandidates reports whether other holds the same candidates in the same
// states. Journaled verdicts are only reused while this holds.
func (s *ImportSession) SameCandidates(other *ImportSession) bool {
	if other == nil || len(s.Candidates) != len(other.Candidates) {
		return false
	}
	for i, cand := range s.Candidates {
		if cand.UUID != other.Candidates[i].UUID || cand.Status != other.Candidates[i].Status {
			return false
		}
	}
	return true
}

// RecordConflict marks a pending candidate as a known duplicate after the
// server refused to commit it, so the next confirm needs a policy.
func (s *ImportSession) RecordConflict(candidateID string, info *DuplicateInfo) error {
	if _, err := s.CheckPending(candidateID); err != nil {
		return err
	}
	conflict := DuplicateInfo{}
	if info != nil {
		conflict = *info
	}
	if s.Verdicts.Conflicts == nil {
		s.Verdicts.Conflicts = map[string]DuplicateInfo{}
	}
	s.Verdicts.Conflicts[candidateID] = conflict
	return nil
}

func (s *ImportSession) ApplyImported(candidateID, documentRef string) error {
	return s.transition(candidateID, func(c *ImportCandidate) {
		c.Status = StatusImported
		c.CreatedDocumentRef = &documentRef
		c.ErrorDetail = nil
	})
}

func (s *ImportSession) ApplySkipped(candidateID string) error {
	return s.transition(candidateID, func(c *ImportCandidate) {
		c.Status = StatusSkipped
	})
}

func (s *ImportSession) ApplyFailed(candidateID, detail string) error {
	return s.transition(candidateID, func(c *ImportCandidate) {
		c.Status = StatusError
		c.ErrorDetail = &detail
		c.CreatedDocumentRef = nil
	})
}

// CheckPending reports whether a candidate may still be reconciled.
func (s *ImportSession) CheckPending(candidateID string) (*ImportCandidate, error) {
	if s.Path == PathWholeArchive {
		return nil, fmt.Errorf("%w: session %s was committed as a whole archive", ErrPathTaken, s.ID)
	}
	cand, err := s.Candidate(candidateID)
	if err != nil {
		return nil, err
	}
	if cand.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotPending, candidateID, cand.Status)
	}
	return cand, nil
}

func (s *ImportSession) transition(candidateID string, apply func(*ImportCandidate)) error {
	cand, err := s.CheckPending(candidateID)
	if err != nil {
		return err
	}
	apply(cand)
	s.Path = PathPerCandidate
	return nil
}

func (s *ImportSession) ApplyWholeArchive(documentRef string) error {
	if s.Path != PathUndecided {
		return fmt.Errorf("%w: session %s is on path %s", ErrPathTaken, s.ID, s.Path)
	}
	s.Path = PathWholeArchive
	s.ArchiveDocumentRef = &documentRef
	return nil
}

// NormalizePath derives the path tag for sessions loaded without one.
// Candidates that arrived in error from extraction do not commit the session.
func (s *ImportSession) NormalizePath() {
	if s.ArchiveDocumentRef != nil && *s.ArchiveDocumentRef != "" {
		s.Path = PathWholeArchive
		return
	}
	switch s.Path {
	case PathPerCandidate, PathWholeArchive:
		return
	}
	s.Path = PathUndecided
	for _, cand := range s.Candidates {
		if cand.Status == StatusImported || cand.Status == StatusSkipped {
			s.Path = PathPerCandidate
			return
		}
	}
}
