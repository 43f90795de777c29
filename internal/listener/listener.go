package listener

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"archivio/internal/config"
	"archivio/internal/intake"
	"archivio/internal/storage"
)

type Service struct {
	db      *storage.DB
	cfg     config.Config
	intake  *intake.Service
	connect func(ctx context.Context) (intake.MailConnector, error)
}

func NewService(db *storage.DB, cfg config.Config, intakeSvc *intake.Service) *Service {
	return &Service{
		db:     db,
		cfg:    cfg,
		intake: intakeSvc,
		connect: func(ctx context.Context) (intake.MailConnector, error) {
			return intake.NewConnector(ctx, cfg, cfg.IntakeProvider)
		},
	}
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.IntakeIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		if _, err := s.RunCycle(ctx); err != nil {
			slog.Error("listener cycle failed", "provider", s.cfg.IntakeProvider, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

type CycleResult struct {
	TraceID   string
	Fetched   int
	Stored    int
	Processed int
	Sessions  int
}

// RunCycle fetches new mail once and turns its attachments into sessions.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	start := time.Now()
	res := CycleResult{TraceID: uuid.NewString()}

	connector, err := s.connect(ctx)
	if err != nil {
		return res, err
	}
	fetched, err := s.intake.FetchAndStore(ctx, connector, s.cfg.IntakeLabel, s.cfg.IntakeFetchMax)
	res.Fetched, res.Stored = fetched.Fetched, fetched.Stored
	if err != nil {
		return res, err
	}
	fetchedAt := time.Now()

	outcomes, err := s.intake.ProcessPending(ctx, s.cfg.IntakeFetchMax)
	res.Processed = len(outcomes)
	for _, o := range outcomes {
		for _, att := range o.Attachments {
			if att.Err == nil && !att.Upload.Reused {
				res.Sessions++
			}
		}
	}
	if err != nil {
		return res, err
	}

	timings := map[string]float64{
		"fetchMs":   float64(fetchedAt.Sub(start).Milliseconds()),
		"processMs": float64(time.Since(fetchedAt).Milliseconds()),
	}
	counts := map[string]int{"fetched": res.Fetched, "stored": res.Stored, "processed": res.Processed, "sessions": res.Sessions}
	if err := s.db.InsertRun(res.TraceID, "", "intake_cycle", timings, counts); err != nil {
		slog.Warn("journal run failed", "trace", res.TraceID, "error", err)
	}
	if err := s.db.SetMetadata("intake.lastCycleAt", time.Now().UTC().Format(time.RFC3339)); err != nil {
		slog.Warn("metadata update failed", "error", err)
	}

	slog.Info("listener cycle done", "provider", s.cfg.IntakeProvider, "trace", res.TraceID,
		"fetched", res.Fetched, "stored", res.Stored, "processed", res.Processed, "sessions", res.Sessions)
	return res, nil
}
