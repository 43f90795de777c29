package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"archivio/internal"
	"archivio/internal/archive"
)

var archiveInspectCmd = &cobra.Command{
	Use:         "archive:inspect <file>",
	Short:       "List what an archive contains without uploading it",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"offline": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		insp, _, err := archive.InspectFile(args[0])
		if err != nil {
			return err
		}
		printInspection(insp)
		return nil
	},
}

var uploadKind string

var archiveUploadCmd = &cobra.Command{
	Use:   "archive:upload <file>",
	Short: "Upload an archive, open an import session and run the duplicate check",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kind := internal.ImportKind(uploadKind)
		if _, ok := cfg.Kind(kind); !ok {
			return fmt.Errorf("unknown kind %q", uploadKind)
		}

		insp, content, err := archive.InspectFile(args[0])
		if err != nil {
			return err
		}
		res, err := intakeSvc.Upload(ctx, filepath.Base(args[0]), content, kind)
		if err != nil {
			return err
		}
		printInspection(insp)
		if res.Reused {
			fmt.Println(color.New(color.FgYellow).Sprintf("already uploaded, reusing session %s", res.Session.ID))
		}
		if res.VerdictsUnknown {
			warn("duplicate check failed, verdicts are unknown")
		}
		printSession(res.Session)
		return nil
	},
}

var allowDuplicate bool

var archiveCommitCmd = &cobra.Command{
	Use:   "archive:commit <session-id>",
	Short: "Store the whole archive as one document instead of per candidate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		session, err := loadSession(ctx, args[0])
		if err != nil {
			return err
		}
		res, err := reconciler.CommitWholeArchive(ctx, session, allowDuplicate)
		if err != nil {
			return err
		}
		if !res.Committed {
			if res.Duplicate != nil {
				return fmt.Errorf("archive duplicates %s (%.0f%%): pass --allow-duplicate to keep both",
					res.Duplicate.ExistingRef, res.Duplicate.Confidence*100)
			}
			return fmt.Errorf("archive not committed: %s", strings.Join(res.Errors, "; "))
		}
		fmt.Printf("%s archive of session %s -> %s\n", color.New(color.FgGreen).Sprint("committed"), session.ID, res.DocumentRef)
		return nil
	},
}

func printInspection(insp archive.Inspection) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("%s  %d bytes  sha256 %s\n", bold(insp.Filename), insp.Size, insp.SHA256[:12])
	for _, e := range insp.Entries {
		detail := ""
		switch e.Kind {
		case archive.EntryPDF:
			detail = fmt.Sprintf("%d pages", e.Pages)
		case archive.EntryXLSX:
			detail = strings.Join(e.Sheets, ", ")
		}
		if e.Problem != "" {
			detail = color.New(color.FgRed).Sprint(e.Problem)
		}
		fmt.Printf("  %-40s %-5s %s\n", e.Name, e.Kind, detail)
	}
	fmt.Printf("%d entries, %d pages, %d unreadable\n", len(insp.Entries), insp.Pages(), len(insp.Problems()))
}

func init() {
	archiveUploadCmd.Flags().StringVar(&uploadKind, "kind", string(internal.KindGeneric), "import kind of the archive")
	archiveCommitCmd.Flags().BoolVar(&allowDuplicate, "allow-duplicate", false, "commit even if the archive matches an existing document")

	rootCmd.AddCommand(archiveInspectCmd, archiveUploadCmd, archiveCommitCmd)
}
