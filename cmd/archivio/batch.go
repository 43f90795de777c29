package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"archivio/internal"
	"archivio/internal/reconcile"
	"archivio/internal/view"
)

var batchImportCmd = &cobra.Command{
	Use:   "batch:import-new <session-id>",
	Short: "Import every pending candidate the duplicate check found new",
	Long: `Run a fresh duplicate check, then import every pending candidate whose
verdict is "new". Duplicates and candidates with unknown verdicts are left
pending. Ctrl-C stops after the candidate in flight.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		session, err := checkedSession(ctx, args[0])
		if err != nil {
			return err
		}
		res, err := reconciler.ImportAllNew(ctx, session)
		if err != nil {
			return err
		}
		printBatch(session, res)
		return nil
	},
}

var batchSkipCmd = &cobra.Command{
	Use:   "batch:skip-duplicates <session-id>",
	Short: "Skip every pending candidate flagged as duplicate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		session, err := checkedSession(ctx, args[0])
		if err != nil {
			return err
		}
		res, err := reconciler.SkipAllDuplicates(ctx, session)
		if err != nil {
			return err
		}
		printBatch(session, res)
		return nil
	},
}

func printBatch(session *internal.ImportSession, res reconcile.BatchResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	switch {
	case res.Empty && res.VerdictsUnknown:
		fmt.Println(yellow("nothing selected: duplicate verdicts are unknown, review candidates one by one"))
	case res.Empty:
		fmt.Println("nothing to do")
	default:
		fmt.Printf("%s processed=%d succeeded=%s failed=%s\n", res.Operation, res.Processed, green(res.Succeeded), red(res.Failed))
	}
	for _, f := range res.Failures {
		fmt.Printf("  %s %s: %s\n", red("✗"), f.SourceFilename, f.Detail)
	}
	if len(res.Conflicts) > 0 {
		fmt.Printf("  %d conflicts stay pending for review\n", len(res.Conflicts))
	}
	if res.Cancelled {
		fmt.Println(yellow("stopped before the end, remaining candidates are still pending"))
	}
	fmt.Printf("session %s: %s\n", session.ID, view.FormatCounters(res.Counters))
}

func init() {
	rootCmd.AddCommand(batchImportCmd, batchSkipCmd)
}
