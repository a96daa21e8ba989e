package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"notbroke/internal/amqp"
	"notbroke/internal/core"
	"notbroke/internal/storage"
)

// JournalStore is the slice of the repository the worker needs.
type JournalStore interface {
	GetJournalEntry(ctx context.Context, id int64) (storage.JournalEntry, error)
	GetPendingSyncExpenses(ctx context.Context, limit int) ([]storage.JournalEntry, error)
	ListCategories(ctx context.Context, userID int64) ([]core.CategoryRecord, error)
	MarkSynced(ctx context.Context, id int64) error
	MarkSyncError(ctx context.Context, id int64) error
}

// JournalWorker turns expense events into ledger rows. AMQP delivery is
// the fast path; ProcessPending sweeps up anything the broker lost.
type JournalWorker struct {
	store     JournalStore
	journal   *Journal
	batchSize int
}

func NewJournalWorker(store JournalStore, journal *Journal, batchSize int) *JournalWorker {
	return &JournalWorker{
		store:     store,
		journal:   journal,
		batchSize: batchSize,
	}
}

// HandleEvent processes a single expense event from AMQP.
func (w *JournalWorker) HandleEvent(ctx context.Context, event *amqp.ExpenseEvent) error {
	slog.InfoContext(ctx, "Processing expense event",
		"kind", event.Kind,
		"id", event.ID,
		"version", event.Version)

	if event.Kind == amqp.ExpenseDeleted {
		// The row is gone from storage. The event itself is all we
		// can record.
		row := JournalRow{
			Event:   string(event.Kind),
			ID:      event.ID,
			Version: event.Version,
		}
		if err := w.journal.Append(row); err != nil {
			return fmt.Errorf("journal deletion: %w", err)
		}
		return nil
	}

	entry, err := w.store.GetJournalEntry(ctx, event.ID)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted before we got to it. The deletion event will land
		// in the ledger on its own.
		slog.WarnContext(ctx, "Expense gone before journaling, skipping",
			"id", event.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load expense %d: %w", event.ID, err)
	}

	return w.journalEntry(ctx, string(event.Kind), entry)
}

// ProcessPending journals expenses whose events never arrived. It is a
// backstop for broker downtime and lost deliveries.
func (w *JournalWorker) ProcessPending(ctx context.Context) error {
	return w.sweep(ctx, w.batchSize)
}

// StartupCheck runs a larger sweep once at worker startup to recover
// from downtime.
func (w *JournalWorker) StartupCheck(ctx context.Context) error {
	return w.sweep(ctx, w.batchSize*5)
}

func (w *JournalWorker) sweep(ctx context.Context, limit int) error {
	pending, err := w.store.GetPendingSyncExpenses(ctx, limit)
	if err != nil {
		return fmt.Errorf("get pending expenses: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending expenses", "count", len(pending))

	synced := 0
	failed := 0
	for _, entry := range pending {
		kind := amqp.ExpenseCreated
		if entry.Expense.Version > 1 {
			kind = amqp.ExpenseUpdated
		}
		if err := w.journalEntry(ctx, string(kind), entry); err != nil {
			slog.ErrorContext(ctx, "Failed to journal pending expense",
				"id", entry.Expense.ID, "error", err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Pending sweep completed",
		"total", len(pending),
		"synced", synced,
		"errors", failed)
	return nil
}

// Run consumes events until ctx is done, re-sweeping pending rows at
// the given interval.
func (w *JournalWorker) Run(ctx context.Context, client *amqp.Client, interval time.Duration) error {
	if err := w.StartupCheck(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup sweep failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	done := make(chan error, 1)
	go func() {
		done <- client.ConsumeExpenseEvents(ctx, func(event *amqp.ExpenseEvent) error {
			return w.HandleEvent(ctx, event)
		})
	}()

	for {
		select {
		case <-ctx.Done():
			return <-done
		case err := <-done:
			return err
		case <-ticker.C:
			if err := w.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Pending sweep failed", "error", err)
			}
		}
	}
}

func (w *JournalWorker) journalEntry(ctx context.Context, event string, entry storage.JournalEntry) error {
	path, err := w.categoryPath(ctx, entry.Expense.UserID, entry.Record.CategoryID)
	if err != nil {
		slog.WarnContext(ctx, "Could not resolve category path",
			"id", entry.Expense.ID,
			"category_id", entry.Record.CategoryID,
			"error", err)
	}

	row := JournalRow{
		Event:    event,
		ID:       entry.Expense.ID,
		Version:  entry.Expense.Version,
		UserID:   entry.Expense.UserID,
		Date:     entry.Record.Date.String(),
		Amount:   entry.Record.Amount.String(),
		Currency: string(entry.Record.Currency),
		Category: path,
		Note:     entry.Record.Note,
	}

	if err := w.journal.Append(row); err != nil {
		if markErr := w.store.MarkSyncError(ctx, entry.Expense.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error",
				"id", entry.Expense.ID, "error", markErr)
		}
		return fmt.Errorf("append to journal: %w", err)
	}

	if err := w.store.MarkSynced(ctx, entry.Expense.ID); err != nil {
		// The row is on disk. Leaving the status pending only means
		// the next sweep writes a duplicate line, which the ledger
		// format tolerates.
		slog.ErrorContext(ctx, "Failed to mark as synced",
			"id", entry.Expense.ID, "error", err)
	}

	slog.InfoContext(ctx, "Expense journaled",
		"event", event,
		"id", entry.Expense.ID,
		"version", entry.Expense.Version,
		"amount_cents", entry.Record.Amount.Cents)
	return nil
}

func (w *JournalWorker) categoryPath(ctx context.Context, userID, categoryID int64) (string, error) {
	records, err := w.store.ListCategories(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("list categories: %w", err)
	}
	forest, err := core.BuildForest(records)
	if err != nil {
		return "", fmt.Errorf("build category forest: %w", err)
	}
	core.ResolveForest(forest)
	node := core.FindNode(forest, categoryID)
	if node == nil {
		return "", core.ErrCategoryNotFound
	}
	return node.FullPath, nil
}
