// Package worker moves pending transactions from SQLite to the spreadsheet
// export.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pecunia/internal/amqp"
	"pecunia/internal/core"
	"pecunia/internal/sheets"
	"pecunia/internal/storage"
	"pecunia/internal/store"
)

// ExportWorker drains the export queue: change messages from AMQP plus a
// periodic sweep of pending records in case messages were lost.
type ExportWorker struct {
	storage   *storage.SQLiteRepository
	exporter  sheets.Exporter
	batchSize int
}

func NewExportWorker(storage *storage.SQLiteRepository, exporter sheets.Exporter, batchSize int) *ExportWorker {
	return &ExportWorker{
		storage:   storage,
		exporter:  exporter,
		batchSize: batchSize,
	}
}

// HandleChangeMessage processes one change message. The message only names
// the transaction; the current record is read from the database, so stale or
// duplicate messages are harmless.
func (w *ExportWorker) HandleChangeMessage(ctx context.Context, msg *amqp.ChangeMessage) error {
	if msg.Op == "deleted" {
		// The export is a journal; deleted records keep their rows.
		slog.DebugContext(ctx, "Skipping export for deleted transaction",
			"transaction_id", msg.TransactionID)
		return nil
	}

	t, err := w.storage.GetTransaction(ctx, msg.TransactionID)
	if errors.Is(err, store.ErrNotFound) {
		slog.WarnContext(ctx, "Transaction vanished before export",
			"transaction_id", msg.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}

	return w.exportTransaction(ctx, t)
}

// ProcessPending exports up to one batch of pending transactions. This is
// the backup path for lost AMQP messages.
func (w *ExportWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.storage.PendingExports(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	for _, t := range pending {
		if err := w.exportTransaction(ctx, t); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction",
				"transaction_id", t.ID, "error", err)
		}
	}
	return nil
}

// StartupCheck drains a larger backlog once at worker startup, recovering
// from downtime or missed messages.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	pending, err := w.storage.PendingExports(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending exports for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending exports found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending exports on startup, processing...",
		"count", len(pending))

	exported := 0
	failed := 0
	for _, t := range pending {
		if err := w.exportTransaction(ctx, t); err != nil {
			slog.ErrorContext(ctx, "Failed to export transaction during startup",
				"transaction_id", t.ID, "error", err)
			failed++
			continue
		}
		exported++
	}

	slog.InfoContext(ctx, "Startup export check completed",
		"total", len(pending),
		"exported", exported,
		"errors", failed)

	return nil
}

func (w *ExportWorker) exportTransaction(ctx context.Context, t core.Transaction) error {
	ref, err := w.exporter.Export(ctx, t)
	if err != nil {
		if markErr := w.storage.MarkExportError(ctx, t.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error",
				"transaction_id", t.ID, "error", markErr)
		}
		return fmt.Errorf("export transaction: %w", err)
	}

	if err := w.storage.MarkExported(ctx, t.ID); err != nil {
		// The export itself worked; the record will just be exported again.
		slog.ErrorContext(ctx, "Failed to mark as exported",
			"transaction_id", t.ID, "error", err)
	}

	slog.InfoContext(ctx, "Transaction exported",
		"transaction_id", t.ID,
		"sheets_ref", ref,
		"amount_cents", t.Amount.Cents)

	return nil
}
