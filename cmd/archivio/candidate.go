package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"archivio/internal"
	"archivio/internal/reconcile"
	"archivio/internal/util"
)

var (
	confirmSets    []string
	confirmPolicy  string
	confirmRecheck bool
)

var candidateConfirmCmd = &cobra.Command{
	Use:   "candidate:confirm <session-id> <candidate-id>",
	Short: "Commit one candidate, optionally with edited fields",
	Long: `Commit one pending candidate.

A candidate flagged as duplicate needs --policy: replace overwrites the
existing document, add keeps both, skip drops this candidate.

Verdicts of the last duplicate check are reused while the session's
candidates are unchanged on the server. Pass --check to run a fresh check.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		policy, ok := internal.ParsePolicy(confirmPolicy)
		if !ok {
			return fmt.Errorf("unknown policy %q (use replace, add or skip)", confirmPolicy)
		}
		edits, err := parseEdits(confirmSets)
		if err != nil {
			return err
		}

		session, err := loadSession(ctx, args[0])
		if err != nil {
			return err
		}
		if confirmRecheck || !session.Verdicts.Checked {
			if _, err := reconciler.CheckDuplicates(ctx, session); err != nil {
				warn("duplicate check failed, verdicts are unknown: %v", err)
			}
		}

		result, err := reconciler.Confirm(ctx, session, args[1], edits, policy)
		if decision, ok := reconcile.IsDecisionRequired(err); ok {
			ref := ""
			if decision.Verdict.MatchedExistingRef != nil {
				ref = *decision.Verdict.MatchedExistingRef
			}
			return fmt.Errorf("candidate %s duplicates %s (%.0f%%): pass --policy replace, add or skip",
				decision.CandidateID, ref, decision.Verdict.Confidence*100)
		}
		if err != nil {
			return err
		}
		printConfirmResult(result)
		return nil
	},
}

var candidateSkipCmd = &cobra.Command{
	Use:   "candidate:skip <session-id> <candidate-id>",
	Short: "Skip one pending candidate",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		session, err := loadSession(ctx, args[0])
		if err != nil {
			return err
		}
		result, err := reconciler.Skip(ctx, session, args[1])
		if err != nil {
			return err
		}
		printConfirmResult(result)
		return nil
	},
}

func parseEdits(assignments []string) (map[string]any, error) {
	edits := map[string]any{}
	for _, a := range assignments {
		key, value, err := util.ParseAssignment(a)
		if err != nil {
			return nil, err
		}
		edits[key] = value
	}
	return edits, nil
}

func printConfirmResult(result reconcile.ConfirmResult) {
	switch result.Outcome {
	case reconcile.OutcomeImported:
		fmt.Printf("%s %s -> %s\n", color.New(color.FgGreen).Sprint("imported"), result.CandidateID, result.DocumentRef)
	case reconcile.OutcomeSkipped:
		fmt.Printf("%s %s\n", color.New(color.FgHiBlack).Sprint("skipped"), result.CandidateID)
	case reconcile.OutcomeConflict:
		fmt.Printf("%s %s is still pending", color.New(color.FgYellow).Sprint("conflict"), result.CandidateID)
		if result.Conflict != nil {
			fmt.Printf(": matches %s (%.0f%%)", result.Conflict.ExistingRef, result.Conflict.Confidence*100)
		}
		fmt.Println()
	default:
		fmt.Printf("%s %s: %s\n", color.New(color.FgRed).Sprint("error"), result.CandidateID, result.Detail)
	}
}

func init() {
	candidateConfirmCmd.Flags().StringArrayVar(&confirmSets, "set", nil, "edited field as key=value (repeatable)")
	candidateConfirmCmd.Flags().StringVar(&confirmPolicy, "policy", "", "duplicate resolution: replace, add or skip")
	candidateConfirmCmd.Flags().BoolVar(&confirmRecheck, "check", false, "run a fresh duplicate check before confirming")

	rootCmd.AddCommand(candidateConfirmCmd, candidateSkipCmd)
}
