package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"pecunia/internal/amqp"
	"pecunia/internal/core"
	"pecunia/internal/sheets/memory"
	"pecunia/internal/storage"
)

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "pecunia.db"))
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedTransaction(t *testing.T, repo *storage.SQLiteRepository) string {
	t.Helper()
	ctx := context.Background()
	acctID, err := repo.CreateAccount(ctx, core.Account{OwnerID: "owner-1", Name: "Conto"})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	id, err := repo.CreateTransaction(ctx, core.Transaction{
		OwnerID:   "owner-1",
		Type:      core.Expense,
		Amount:    core.Money{Cents: 1500},
		Date:      core.NewDate(2026, 3, 14),
		Category:  "Spesa",
		AccountID: acctID,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return id
}

func TestHandleChangeMessageExports(t *testing.T) {
	repo := newTestRepo(t)
	exporter := memory.New()
	w := NewExportWorker(repo, exporter, 10)
	ctx := context.Background()

	id := seedTransaction(t, repo)

	if err := w.HandleChangeMessage(ctx, amqp.NewChangeMessage(id, "created")); err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if rows := exporter.Rows(); len(rows) != 1 || rows[0].ID != id {
		t.Fatalf("unexpected exported rows: %+v", rows)
	}

	n, err := repo.CountPendingExports(ctx)
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected record marked exported, %d still pending", n)
	}
}

func TestHandleChangeMessageDeletedIsNoOp(t *testing.T) {
	repo := newTestRepo(t)
	exporter := memory.New()
	w := NewExportWorker(repo, exporter, 10)

	if err := w.HandleChangeMessage(context.Background(), amqp.NewChangeMessage("gone", "deleted")); err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if len(exporter.Rows()) != 0 {
		t.Fatalf("deleted message must not export")
	}
}

func TestHandleChangeMessageMissingRecord(t *testing.T) {
	repo := newTestRepo(t)
	w := NewExportWorker(repo, memory.New(), 10)

	// A message whose record is gone is acked, not requeued forever.
	if err := w.HandleChangeMessage(context.Background(), amqp.NewChangeMessage("missing", "created")); err != nil {
		t.Fatalf("expected nil for vanished record, got %v", err)
	}
}

func TestProcessPendingMarksError(t *testing.T) {
	repo := newTestRepo(t)
	exporter := memory.New()
	w := NewExportWorker(repo, exporter, 10)
	ctx := context.Background()

	seedTransaction(t, repo)
	exporter.FailNext = errors.New("quota exceeded")

	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("process pending: %v", err)
	}

	// The failed record left the pending state so it is not retried hot.
	n, err := repo.CountPendingExports(ctx)
	if err != nil {
		t.Fatalf("count pending: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected record marked with error, %d still pending", n)
	}
	if len(exporter.Rows()) != 0 {
		t.Fatalf("failed export must not record a row")
	}
}

func TestStartupCheckDrainsBacklog(t *testing.T) {
	repo := newTestRepo(t)
	exporter := memory.New()
	w := NewExportWorker(repo, exporter, 2)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seedTransaction(t, repo)
	}

	if err := w.StartupCheck(ctx); err != nil {
		t.Fatalf("startup check: %v", err)
	}
	if rows := exporter.Rows(); len(rows) != 3 {
		t.Fatalf("expected 3 exported rows, got %d", len(rows))
	}
}
