package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"archivio/internal"
	"archivio/internal/reconcile"
	"archivio/internal/util"
	"archivio/internal/view"
)

var reviewCmd = &cobra.Command{
	Use:   "review <session-id>",
	Short: "Walk the pending candidates of a session one by one",
	Long: `Interactive review of pending candidates.

  i            import (fails on a known duplicate)
  r / a        import a duplicate, replacing the existing document or adding beside it
  s            skip
  set k=v      edit an extracted field before importing
  n            leave pending and go to the next
  show         print the candidate again
  q            quit`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		session, err := checkedSession(ctx, args[0])
		if err != nil {
			return err
		}
		return runReview(ctx, session)
	},
}

func runReview(ctx context.Context, session *internal.ImportSession) error {
	cyan := color.New(color.FgCyan).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("review> "),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	queue := session.CandidatesByStatus(internal.StatusPending)
	if len(queue) == 0 {
		fmt.Println("no pending candidates")
		return nil
	}

	for i := 0; i < len(queue); i++ {
		cand := queue[i]
		edits := map[string]any{}
		fmt.Printf("\n[%d/%d] ", i+1, len(queue))
		view.RenderCandidate(os.Stdout, session, cand)

	prompt:
		for {
			if ctx.Err() != nil {
				return nil
			}
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}

			fields := strings.Fields(strings.TrimSpace(line))
			if len(fields) == 0 {
				continue
			}

			var result reconcile.ConfirmResult
			switch fields[0] {
			case "q", "quit", "exit":
				fmt.Println(view.FormatCounters(session.RecomputeCounters()))
				return nil
			case "n", "next":
				break prompt
			case "show":
				if current, err := session.Candidate(cand.UUID); err == nil {
					cand = *current
				}
				view.RenderCandidate(os.Stdout, session, cand)
				continue
			case "set":
				if len(fields) < 2 {
					fmt.Println("usage: set key=value")
					continue
				}
				key, value, err := util.ParseAssignment(strings.Join(fields[1:], " "))
				if err != nil {
					fmt.Printf("%s %v\n", red("Error:"), err)
					continue
				}
				edits[key] = value
				fmt.Printf("%s = %v\n", key, value)
				continue
			case "s", "skip":
				result, err = reconciler.Skip(ctx, session, cand.UUID)
			case "i", "import":
				result, err = reconciler.Confirm(ctx, session, cand.UUID, edits, internal.PolicyNone)
			case "r", "replace":
				result, err = reconciler.Confirm(ctx, session, cand.UUID, edits, internal.PolicyReplace)
			case "a", "add":
				result, err = reconciler.Confirm(ctx, session, cand.UUID, edits, internal.PolicyAdd)
			default:
				fmt.Printf("unknown command %q, see archivio review --help\n", fields[0])
				continue
			}

			if decision, ok := reconcile.IsDecisionRequired(err); ok {
				fmt.Printf("duplicate of %s: choose r, a or s\n", deref(decision.Verdict.MatchedExistingRef))
				continue
			}
			if err != nil {
				fmt.Printf("%s %v\n", red("Error:"), err)
				continue
			}
			printConfirmResult(result)
			if result.Outcome == reconcile.OutcomeConflict {
				continue
			}
			break prompt
		}
	}

	fmt.Println(view.FormatCounters(session.RecomputeCounters()))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}
