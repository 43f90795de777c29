package internal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(v string) *string { return &v }

func newSession(statuses ...CandidateStatus) *ImportSession {
	s := &ImportSession{ID: "s1", Kind: KindPayslip, SourceArchiveRef: "arch-1", Path: PathUndecided}
	for i, st := range statuses {
		s.Candidates = append(s.Candidates, ImportCandidate{
			UUID:            string(rune('a' + i)),
			SourceFilename:  "cedolino.pdf",
			ExtractedFields: map[string]any{"netto": 1200.5},
			Status:          st,
		})
	}
	return s
}

func TestRecomputeCountersAfterEveryTransition(t *testing.T) {
	s := newSession(StatusPending, StatusPending, StatusPending, StatusError)

	c := s.RecomputeCounters()
	assert.Equal(t, SessionCounters{Total: 4, Pending: 3, Error: 1}, c)
	assert.True(t, c.Consistent())

	require.NoError(t, s.ApplyImported("a", "doc-1"))
	c = s.RecomputeCounters()
	assert.Equal(t, 1, c.Imported)
	assert.True(t, c.Consistent())

	require.NoError(t, s.ApplySkipped("b"))
	require.NoError(t, s.ApplyFailed("c", "validation failed"))
	c = s.RecomputeCounters()
	assert.Equal(t, SessionCounters{Total: 4, Imported: 1, Skipped: 1, Error: 2}, c)
	assert.True(t, c.Consistent())
}

func TestTransitionsRequirePending(t *testing.T) {
	s := newSession(StatusPending)
	require.NoError(t, s.ApplySkipped("a"))
	before := s.RecomputeCounters()

	err := s.ApplyImported("a", "doc-1")
	require.ErrorIs(t, err, ErrNotPending)
	err = s.ApplySkipped("a")
	require.ErrorIs(t, err, ErrNotPending)

	assert.Equal(t, before, s.RecomputeCounters())
	cand, err := s.Candidate("a")
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, cand.Status)
	assert.Nil(t, cand.CreatedDocumentRef)
}

func TestTransitionUnknownCandidate(t *testing.T) {
	s := newSession(StatusPending)
	err := s.ApplySkipped("zzz")
	require.ErrorIs(t, err, ErrCandidateNotFound)
}

func TestCandidatesByStatusKeepsOrder(t *testing.T) {
	s := newSession(StatusPending, StatusImported, StatusPending, StatusPending)
	pending := s.CandidatesByStatus(StatusPending)
	require.Len(t, pending, 3)
	assert.Equal(t, "a", pending[0].UUID)
	assert.Equal(t, "c", pending[1].UUID)
	assert.Equal(t, "d", pending[2].UUID)
}

func TestVerdictSetReplacedWholesale(t *testing.T) {
	s := newSession(StatusPending, StatusPending, StatusPending)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	set, dropped := NewVerdictSet(map[string]DuplicateVerdict{
		"a": {IsDuplicate: true, MatchedExistingRef: strp("doc-9"), Confidence: 0.93, MatchedFields: []string{"codice_fiscale", "periodo"}},
		"b": {IsDuplicate: false, Confidence: 0.1},
		"c": {IsDuplicate: true, Confidence: 0.8},
	}, now)
	assert.Equal(t, []string{"c"}, dropped)
	s.ReplaceVerdicts(set)

	assert.Equal(t, DuplicateFound, s.DuplicateStatus("a"))
	assert.Equal(t, DuplicateNew, s.DuplicateStatus("b"))
	assert.Equal(t, DuplicateUnknown, s.DuplicateStatus("c"))

	s.ReplaceVerdicts(FailedVerdictSet(errors.New("timeout"), now))
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, DuplicateUnknown, s.DuplicateStatus(id), id)
	}
	assert.Empty(t, s.PendingWith(DuplicateNew))
	assert.Len(t, s.PendingWith(DuplicateUnknown), 3)
}

func TestRecordConflictMarksDuplicate(t *testing.T) {
	s := newSession(StatusPending, StatusPending, StatusImported)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	set, _ := NewVerdictSet(map[string]DuplicateVerdict{"a": {}, "b": {}}, now)
	s.ReplaceVerdicts(set)

	require.NoError(t, s.RecordConflict("a", &DuplicateInfo{ExistingRef: "doc-3", Confidence: 0.97, MatchedFields: []string{"periodo"}}))
	v, ok := s.Verdict("a")
	require.True(t, ok)
	assert.True(t, v.IsDuplicate)
	assert.Equal(t, "doc-3", *v.MatchedExistingRef)
	assert.Equal(t, []string{"periodo"}, v.MatchedFields)
	assert.Equal(t, DuplicateFound, s.DuplicateStatus("a"))
	assert.Len(t, s.PendingWith(DuplicateNew), 1)

	// known even when the last check failed
	s.ReplaceVerdicts(FailedVerdictSet(errors.New("timeout"), now))
	require.NoError(t, s.RecordConflict("b", nil))
	assert.Equal(t, DuplicateFound, s.DuplicateStatus("b"))
	assert.Equal(t, DuplicateUnknown, s.DuplicateStatus("a"))

	assert.ErrorIs(t, s.RecordConflict("c", nil), ErrNotPending)

	s.ReplaceVerdicts(set)
	assert.Equal(t, DuplicateNew, s.DuplicateStatus("b"))
}

func TestSameCandidates(t *testing.T) {
	journaled := newSession(StatusPending, StatusPending)
	server := newSession(StatusPending, StatusPending)
	assert.True(t, server.SameCandidates(journaled))

	server.Candidates[1].Status = StatusImported
	assert.False(t, server.SameCandidates(journaled))

	assert.False(t, newSession(StatusPending).SameCandidates(journaled))
	assert.False(t, server.SameCandidates(nil))
}

func TestVerdictValidate(t *testing.T) {
	cases := []struct {
		name    string
		verdict DuplicateVerdict
		ok      bool
	}{
		{name: "new", verdict: DuplicateVerdict{CandidateID: "a", Confidence: 0.2}, ok: true},
		{name: "duplicate", verdict: DuplicateVerdict{CandidateID: "a", IsDuplicate: true, MatchedExistingRef: strp("d"), Confidence: 1}, ok: true},
		{name: "confidence out of range", verdict: DuplicateVerdict{CandidateID: "a", Confidence: 1.2}},
		{name: "duplicate without ref", verdict: DuplicateVerdict{CandidateID: "a", IsDuplicate: true}},
		{name: "ref without duplicate", verdict: DuplicateVerdict{CandidateID: "a", MatchedExistingRef: strp("d")}},
		{name: "missing id", verdict: DuplicateVerdict{Confidence: 0.5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.verdict.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestPathsAreMutuallyExclusive(t *testing.T) {
	s := newSession(StatusPending, StatusPending)
	require.NoError(t, s.ApplyImported("a", "doc-1"))
	assert.Equal(t, PathPerCandidate, s.Path)
	require.ErrorIs(t, s.ApplyWholeArchive("doc-all"), ErrPathTaken)

	w := newSession(StatusPending, StatusPending)
	require.NoError(t, w.ApplyWholeArchive("doc-all"))
	require.ErrorIs(t, w.ApplySkipped("a"), ErrPathTaken)
	assert.Equal(t, 2, w.RecomputeCounters().Pending)
}

func TestNormalizePath(t *testing.T) {
	s := newSession(StatusError, StatusPending)
	s.Path = ""
	s.NormalizePath()
	assert.Equal(t, PathUndecided, s.Path)

	s.Candidates[1].Status = StatusImported
	s.Path = ""
	s.NormalizePath()
	assert.Equal(t, PathPerCandidate, s.Path)

	s.ArchiveDocumentRef = strp("doc-all")
	s.NormalizePath()
	assert.Equal(t, PathWholeArchive, s.Path)
}

func TestDecisionRequiredErrorUnwraps(t *testing.T) {
	err := error(&DecisionRequiredError{CandidateID: "a", Verdict: DuplicateVerdict{MatchedExistingRef: strp("doc-9"), Confidence: 0.9}})
	assert.ErrorIs(t, err, ErrPolicyRequired)
	assert.Contains(t, err.Error(), "doc-9")
}
