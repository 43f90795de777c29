package view

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"archivio/internal"
	"archivio/internal/util"
)

// Controls says which session-level actions are offered to the user.
type Controls struct {
	CheckDuplicates   bool
	ImportAllNew      bool
	SkipAllDuplicates bool
	WholeArchive      bool
	PerCandidate      bool
	// Hint explains why bulk import is not offered, when it is not.
	Hint string
}

// ComputeControls derives the enabled actions. Nothing is enabled while an
// operation is in flight or once the archive was committed as one document.
func ComputeControls(session *internal.ImportSession, bulkKind, busy bool) Controls {
	if busy {
		return Controls{Hint: "operation in progress"}
	}
	if session.Path == internal.PathWholeArchive {
		return Controls{Hint: "archive committed as a single document"}
	}

	counters := session.RecomputeCounters()
	c := Controls{
		CheckDuplicates: counters.Pending > 0,
		PerCandidate:    counters.Pending > 0,
		WholeArchive:    bulkKind && session.Path == internal.PathUndecided,
	}
	known := session.Verdicts.Known()
	newCount := len(session.PendingWith(internal.DuplicateNew))
	dupCount := len(session.PendingWith(internal.DuplicateFound))
	c.ImportAllNew = known && newCount > 0
	c.SkipAllDuplicates = known && dupCount > 0

	switch {
	case counters.Pending == 0:
		c.Hint = "nothing left to review"
	case !session.Verdicts.Checked:
		c.Hint = "run the duplicate check first"
	case !known:
		c.Hint = "duplicate check failed, review candidates one by one"
	case newCount == 0:
		c.Hint = "no pending candidate is known to be new"
	}
	return c
}

var (
	bold   = color.New(color.Bold).SprintFunc()
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

func statusColor(status internal.CandidateStatus) func(a ...interface{}) string {
	switch status {
	case internal.StatusImported:
		return green
	case internal.StatusSkipped:
		return gray
	case internal.StatusError:
		return red
	default:
		return yellow
	}
}

func FormatCounters(c internal.SessionCounters) string {
	return fmt.Sprintf("total %d · imported %s · skipped %s · error %s · pending %s",
		c.Total, green(c.Imported), gray(c.Skipped), red(c.Error), yellow(c.Pending))
}

// RenderSession prints the session header, its counters and one line per
// candidate.
func RenderSession(w io.Writer, session *internal.ImportSession, controls Controls) {
	fmt.Fprintf(w, "%s %s  kind=%s  archive=%s  path=%s\n", cyan("Session"), session.ID, session.Kind, session.SourceArchiveRef, session.Path)
	if session.ArchiveDocumentRef != nil {
		fmt.Fprintf(w, "  archive document: %s\n", green(*session.ArchiveDocumentRef))
	}
	fmt.Fprintf(w, "  %s\n", FormatCounters(session.RecomputeCounters()))

	switch {
	case !session.Verdicts.Checked:
		fmt.Fprintf(w, "  verdicts: %s\n", gray("not checked"))
	case session.Verdicts.Failure != "":
		fmt.Fprintf(w, "  verdicts: %s (%s)\n", red("unknown"), session.Verdicts.Failure)
	default:
		fmt.Fprintf(w, "  verdicts: checked at %s\n", session.Verdicts.CheckedAt)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, bold("#")+"\t"+bold("file")+"\t"+bold("status")+"\t"+bold("duplicate")+"\t"+bold("detail"))
	for i, cand := range session.Candidates {
		paint := statusColor(cand.Status)
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, util.Truncate(cand.SourceFilename, 40), paint(string(cand.Status)),
			duplicateLabel(session, cand.UUID), candidateDetail(cand))
	}
	_ = tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  actions: %s\n", strings.Join(enabledActions(controls), ", "))
	if controls.Hint != "" {
		fmt.Fprintf(w, "  %s\n", gray(controls.Hint))
	}
}

func duplicateLabel(session *internal.ImportSession, candidateID string) string {
	v, ok := session.Verdict(candidateID)
	switch {
	case !ok:
		return gray("unknown")
	case v.IsDuplicate:
		ref := ""
		if v.MatchedExistingRef != nil {
			ref = *v.MatchedExistingRef
		}
		return red(fmt.Sprintf("duplicate of %s (%.0f%%)", ref, v.Confidence*100))
	default:
		return green("new")
	}
}

func candidateDetail(cand internal.ImportCandidate) string {
	switch {
	case cand.CreatedDocumentRef != nil:
		return *cand.CreatedDocumentRef
	case cand.ErrorDetail != nil:
		return util.Truncate(*cand.ErrorDetail, 60)
	case cand.PartyMatch != nil && cand.PartyMatch.Name != "":
		return fmt.Sprintf("%s (%.0f%%)", cand.PartyMatch.Name, cand.PartyMatch.Confidence*100)
	}
	return ""
}

func enabledActions(c Controls) []string {
	var out []string
	if c.CheckDuplicates {
		out = append(out, "check")
	}
	if c.ImportAllNew {
		out = append(out, "import-new")
	}
	if c.SkipAllDuplicates {
		out = append(out, "skip-duplicates")
	}
	if c.WholeArchive {
		out = append(out, "commit-archive")
	}
	if c.PerCandidate {
		out = append(out, "confirm", "skip")
	}
	if len(out) == 0 {
		return []string{"none"}
	}
	return out
}

// RenderCandidate prints every extracted field of one candidate for review.
func RenderCandidate(w io.Writer, session *internal.ImportSession, cand internal.ImportCandidate) {
	fmt.Fprintf(w, "%s %s  %s\n", cyan("Candidate"), cand.UUID, cand.SourceFilename)
	fmt.Fprintf(w, "  status: %s  duplicate: %s\n", statusColor(cand.Status)(string(cand.Status)), duplicateLabel(session, cand.UUID))
	if v, ok := session.Verdict(cand.UUID); ok && v.IsDuplicate && len(v.MatchedFields) > 0 {
		fmt.Fprintf(w, "  matched on: %s\n", strings.Join(v.MatchedFields, ", "))
	}
	if cand.PartyMatch != nil {
		fmt.Fprintf(w, "  party: %s (%.0f%%)\n", cand.PartyMatch.Name, cand.PartyMatch.Confidence*100)
	}
	keys := make([]string, 0, len(cand.ExtractedFields))
	for k := range cand.ExtractedFields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "  %s\t%v\n", k, cand.ExtractedFields[k])
	}
	_ = tw.Flush()
}
