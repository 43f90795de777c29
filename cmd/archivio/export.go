package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"archivio/internal/report"
)

var exportOut string

var exportXLSXCmd = &cobra.Command{
	Use:   "export:xlsx <session-id>",
	Short: "Export the reconciliation report of a session to xlsx",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := loadSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := exportOut
		if out == "" {
			out = filepath.Join(cfg.OutputDir, "sessions", session.ID+".xlsx")
		}
		if err := report.ExportSessionToXLSX(session, out); err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	exportXLSXCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output path (default <OUTPUT_DIR>/sessions/<id>.xlsx)")

	rootCmd.AddCommand(exportXLSXCmd)
}
