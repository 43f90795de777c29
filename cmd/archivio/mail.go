package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"archivio/internal/intake"
	"archivio/internal/listener"
)

var (
	mailProvider string
	mailLabel    string
	mailMax      int
	processLimit int
)

var mailFetchCmd = &cobra.Command{
	Use:   "mail:fetch",
	Short: "Fetch new mail with attachments and store it locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		provider := mailProvider
		if provider == "" {
			provider = cfg.IntakeProvider
		}
		label := mailLabel
		if label == "" {
			label = cfg.IntakeLabel
		}
		connector, err := intake.NewConnector(ctx, cfg, provider)
		if err != nil {
			return err
		}
		res, err := intakeSvc.FetchAndStore(ctx, connector, label, mailMax)
		fmt.Printf("%s: fetched %d, stored %d\n", provider, res.Fetched, res.Stored)
		return err
	},
}

var mailProcessCmd = &cobra.Command{
	Use:   "mail:process",
	Short: "Turn the attachments of fetched mail into import sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		outcomes, err := intakeSvc.ProcessPending(cmd.Context(), processLimit)
		for _, o := range outcomes {
			fmt.Printf("mail %d: %s\n", o.MailID, o.Status)
			for _, att := range o.Attachments {
				printAttachment(att)
			}
		}
		if len(outcomes) == 0 && err == nil {
			fmt.Println(color.New(color.FgHiBlack).Sprint("no fetched mail to process"))
		}
		return err
	},
}

var mailListenCmd = &cobra.Command{
	Use:   "mail:listen",
	Short: "Poll the mailbox and process new mail until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("listening on %s/%s every %ds, Ctrl-C to stop\n", cfg.IntakeProvider, cfg.IntakeLabel, cfg.IntakeIntervalSec)
		return listener.NewService(db, cfg, intakeSvc).Run(cmd.Context())
	},
}

func printAttachment(att intake.AttachmentOutcome) {
	if att.Err != nil {
		fmt.Printf("  %s %s: %v\n", color.New(color.FgRed).Sprint("✗"), att.Filename, att.Err)
		return
	}
	session := att.Upload.Session
	fmt.Printf("  %s %s as %s (%s) -> session %s\n", color.New(color.FgGreen).Sprint("✓"),
		att.Filename, att.Classification.Kind, att.Classification.Reason, session.ID)
	if att.Batch != nil {
		fmt.Printf("    imported %d of %d new candidates\n", att.Batch.Succeeded, att.Batch.Processed)
	}
	if att.ReportPath != "" {
		fmt.Printf("    report %s\n", att.ReportPath)
	}
}

func init() {
	mailFetchCmd.Flags().StringVar(&mailProvider, "provider", "", "gmail or imap (default INTAKE_PROVIDER)")
	mailFetchCmd.Flags().StringVar(&mailLabel, "label", "", "label or mailbox (default INTAKE_LABEL)")
	mailFetchCmd.Flags().IntVar(&mailMax, "max", 20, "max messages to fetch")
	mailProcessCmd.Flags().IntVar(&processLimit, "limit", 20, "max mails to process")

	rootCmd.AddCommand(mailFetchCmd, mailProcessCmd, mailListenCmd)
}
