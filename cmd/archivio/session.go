package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"archivio/internal"
	"archivio/internal/view"
)

var showRecheck bool

var sessionShowCmd = &cobra.Command{
	Use:   "session:show <session-id>",
	Short: "Show a session, its counters and the actions available",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		load := loadSession
		if showRecheck {
			load = checkedSession
		}
		session, err := load(ctx, args[0])
		if err != nil {
			return err
		}
		printSession(session)
		return nil
	},
}

var sessionCheckCmd = &cobra.Command{
	Use:   "session:check <session-id>",
	Short: "Run the duplicate check for every candidate of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		session, err := loadSession(ctx, args[0])
		if err != nil {
			return err
		}
		set, err := reconciler.CheckDuplicates(ctx, session)
		if err != nil {
			printSession(session)
			return err
		}
		fmt.Printf("duplicate check done: %d verdicts, %d duplicates pending, %d new pending\n",
			len(set.ByCandidate), len(session.PendingWith(internal.DuplicateFound)), len(session.PendingWith(internal.DuplicateNew)))
		return nil
	},
}

var listLimit int

var sessionListCmd = &cobra.Command{
	Use:   "session:list",
	Short: "List sessions journaled on this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		summaries, err := db.ListSessions(listLimit)
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Println(color.New(color.FgHiBlack).Sprint("no sessions yet"))
			return nil
		}
		for _, s := range summaries {
			fmt.Printf("%s  %-10s  %-13s  %s  (updated %s)\n", s.ID, s.Kind, s.Path, view.FormatCounters(s.Counters), s.UpdatedAt)
		}
		return nil
	},
}

func printSession(session *internal.ImportSession) {
	_, bulk := cfg.BulkDocumentType(session.Kind)
	view.RenderSession(os.Stdout, session, view.ComputeControls(session, bulk, false))
}

func init() {
	sessionShowCmd.Flags().BoolVar(&showRecheck, "check", false, "run a fresh duplicate check before showing")
	sessionListCmd.Flags().IntVar(&listLimit, "limit", 20, "max sessions to list")

	rootCmd.AddCommand(sessionShowCmd, sessionCheckCmd, sessionListCmd)
}
