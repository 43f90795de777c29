package listener

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archivio/internal"
	"archivio/internal/config"
	"archivio/internal/intake"
	"archivio/internal/reconcile"
	"archivio/internal/storage"
)

type inbox []internal.FetchedMailMessage

func (i inbox) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	return i, nil
}

type noCreator struct{}

func (noCreator) CreateSession(ctx context.Context, kind internal.ImportKind, filename string, content []byte) (*internal.ImportSession, error) {
	return nil, errors.New("backend offline")
}

func TestRunCycleJournalsRun(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "archivio.db"))
	require.NoError(t, err)
	defer db.Close()

	cfg := config.Config{
		RawMailDir:        filepath.Join(dir, "raw"),
		OutputDir:         filepath.Join(dir, "out"),
		IntakeProvider:    "imap",
		IntakeLabel:       "INBOX",
		IntakeFetchMax:    5,
		IntakeDefaultKind: string(internal.KindGeneric),
	}
	svc := NewService(db, cfg, intake.NewService(db, cfg, noCreator{}, reconcile.NewReconciler(cfg, nil, db)))
	svc.connect = func(context.Context) (intake.MailConnector, error) {
		return inbox{{Provider: "imap", MessageID: "<m1>", Raw: []byte("Subject: ciao\r\n\r\nnulla\r\n")}}, nil
	}

	res, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 0, res.Sessions)
	assert.NotEmpty(t, res.TraceID)

	n, err := db.CountRuns("", "intake_cycle")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	last, err := db.GetMetadata("intake.lastCycleAt")
	require.NoError(t, err)
	assert.NotNil(t, last)
}

func TestRunCycleReportsConnectorError(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "archivio.db"))
	require.NoError(t, err)
	defer db.Close()

	cfg := config.Config{IntakeProvider: "pop3"}
	svc := NewService(db, cfg, intake.NewService(db, cfg, noCreator{}, reconcile.NewReconciler(cfg, nil, db)))
	_, err = svc.RunCycle(context.Background())
	assert.Error(t, err)
}
