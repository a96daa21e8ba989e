package worker

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// journalHeader is written once, when the ledger file is created.
var journalHeader = []string{"logged_at", "event", "expense_id", "version", "user_id", "date", "amount", "currency", "category", "note"}

// Journal is an append-only CSV ledger. Every row is flushed and synced
// before Append returns, so a crash never loses an acknowledged event.
type Journal struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

func NewJournal(path string) *Journal {
	return &Journal{path: path, now: time.Now}
}

// JournalRow is one ledger line. Category carries the resolved full
// path of the expense's category at the time the event was handled.
type JournalRow struct {
	Event    string
	ID       int64
	Version  int64
	UserID   int64
	Date     string
	Amount   string
	Currency string
	Category string
	Note     string
}

// Append writes a single row to the ledger, creating the file and its
// directory on first use.
func (j *Journal) Append(row JournalRow) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if dir := filepath.Dir(j.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal directory: %w", err)
		}
	}

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat journal: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(journalHeader); err != nil {
			return fmt.Errorf("write journal header: %w", err)
		}
	}

	record := []string{
		j.now().UTC().Format(time.RFC3339),
		row.Event,
		fmt.Sprintf("%d", row.ID),
		fmt.Sprintf("%d", row.Version),
		fmt.Sprintf("%d", row.UserID),
		row.Date,
		row.Amount,
		row.Currency,
		row.Category,
		row.Note,
	}
	if err := w.Write(record); err != nil {
		return fmt.Errorf("write journal row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}
