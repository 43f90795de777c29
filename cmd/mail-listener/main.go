package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"archivio/internal/backend"
	"archivio/internal/config"
	"archivio/internal/intake"
	"archivio/internal/listener"
	"archivio/internal/reconcile"
	"archivio/internal/storage"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	must(err)
	must(cfg.Require("ARCHIVIO_API_TOKEN", cfg.APIToken))

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	client := backend.NewClient(cfg)
	reconciler := reconcile.NewReconciler(cfg, client, db)
	svc := listener.NewService(db, cfg, intake.NewService(db, cfg, client, reconciler))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
