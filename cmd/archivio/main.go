package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"archivio/internal"
	"archivio/internal/backend"
	"archivio/internal/config"
	"archivio/internal/intake"
	"archivio/internal/reconcile"
	"archivio/internal/storage"
)

var (
	cfg        config.Config
	db         *storage.DB
	client     *backend.Client
	reconciler *reconcile.Reconciler
	intakeSvc  *intake.Service

	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:           "archivio",
	Short:         "Reconcile batch document imports against the office archive",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		if noColor {
			color.NoColor = true
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if cmd.Annotations["offline"] == "true" {
			return nil
		}

		db, err = storage.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		client = backend.NewClient(cfg)
		reconciler = reconcile.NewReconciler(cfg, client, db)
		intakeSvc = intake.NewService(db, cfg, client, reconciler)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			_ = db.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug details to stderr")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.New(color.FgRed).Sprint("error:"), err)
		os.Exit(1)
	}
}

// loadSession fetches the session from the backend and reattaches the
// verdicts of the last duplicate check journaled locally. Verdicts are left
// out when the candidates changed on the server since they were journaled.
func loadSession(ctx context.Context, id string) (*internal.ImportSession, error) {
	session, err := client.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	local, err := db.GetSession(id)
	if err != nil {
		return nil, err
	}
	if local != nil {
		if session.SameCandidates(local) {
			session.ReplaceVerdicts(local.Verdicts)
		} else {
			slog.Debug("journaled verdicts are stale", "session", id)
		}
		if local.Path == internal.PathWholeArchive && session.Path != internal.PathWholeArchive {
			session.Path = local.Path
			session.ArchiveDocumentRef = local.ArchiveDocumentRef
		}
	}
	session.NormalizePath()
	return session, nil
}

// checkedSession loads a session and replaces its verdicts with a fresh
// check. A failed check is reported but leaves a usable session.
func checkedSession(ctx context.Context, id string) (*internal.ImportSession, error) {
	session, err := loadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := reconciler.CheckDuplicates(ctx, session); err != nil {
		warn("duplicate check failed, verdicts are unknown: %v", err)
	}
	return session, nil
}

func warn(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", color.New(color.FgYellow).Sprint("warning:"), fmt.Sprintf(format, args...))
}
