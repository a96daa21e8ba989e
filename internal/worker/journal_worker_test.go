package worker

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notbroke/internal/amqp"
	"notbroke/internal/core"
	"notbroke/internal/storage"
)

type fakeJournalStore struct {
	entries    map[int64]storage.JournalEntry
	categories map[int64][]core.CategoryRecord
	synced     []int64
	errored    []int64
}

func newFakeJournalStore() *fakeJournalStore {
	return &fakeJournalStore{
		entries:    map[int64]storage.JournalEntry{},
		categories: map[int64][]core.CategoryRecord{},
	}
}

func (s *fakeJournalStore) GetJournalEntry(_ context.Context, id int64) (storage.JournalEntry, error) {
	entry, ok := s.entries[id]
	if !ok {
		return storage.JournalEntry{}, storage.ErrNotFound
	}
	return entry, nil
}

func (s *fakeJournalStore) GetPendingSyncExpenses(_ context.Context, limit int) ([]storage.JournalEntry, error) {
	var pending []storage.JournalEntry
	for _, entry := range s.entries {
		if entry.Expense.SyncStatus == "pending" && len(pending) < limit {
			pending = append(pending, entry)
		}
	}
	return pending, nil
}

func (s *fakeJournalStore) ListCategories(_ context.Context, userID int64) ([]core.CategoryRecord, error) {
	return s.categories[userID], nil
}

func (s *fakeJournalStore) MarkSynced(_ context.Context, id int64) error {
	s.synced = append(s.synced, id)
	return nil
}

func (s *fakeJournalStore) MarkSyncError(_ context.Context, id int64) error {
	s.errored = append(s.errored, id)
	return nil
}

func (s *fakeJournalStore) addEntry(id, userID, version int64, status string, rec core.ExpenseRecord) {
	rec.ID = id
	s.entries[id] = storage.JournalEntry{
		Expense: storage.Expense{
			ID:          id,
			UserID:      userID,
			AmountCents: rec.Amount.Cents,
			Currency:    string(rec.Currency),
			CategoryID:  rec.CategoryID,
			Date:        rec.Date.String(),
			Note:        rec.Note,
			Version:     version,
			SyncStatus:  status,
		},
		Record: rec,
	}
}

func parentOf(id int64) *int64 { return &id }

func readJournal(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestHandleEventJournalsExpense(t *testing.T) {
	store := newFakeJournalStore()
	store.categories[7] = []core.CategoryRecord{
		{ID: 1, Name: "Food"},
		{ID: 2, Name: "Groceries", ParentID: parentOf(1)},
	}
	store.addEntry(42, 7, 1, "pending", core.ExpenseRecord{
		Amount:     core.Money{Cents: 1234},
		Currency:   core.EUR,
		CategoryID: 2,
		Date:       core.NewDate(2026, 3, 15),
		Note:       "weekly shop",
	})

	path := filepath.Join(t.TempDir(), "journal.csv")
	w := NewJournalWorker(store, NewJournal(path), 10)

	err := w.HandleEvent(context.Background(), amqp.NewExpenseEvent(amqp.ExpenseCreated, 42, 1))
	require.NoError(t, err)

	rows := readJournal(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, journalHeader, rows[0])

	row := rows[1]
	assert.Equal(t, "expense.created", row[1])
	assert.Equal(t, "42", row[2])
	assert.Equal(t, "1", row[3])
	assert.Equal(t, "7", row[4])
	assert.Equal(t, "2026-03-15", row[5])
	assert.Equal(t, "12.34", row[6])
	assert.Equal(t, "EUR", row[7])
	assert.Equal(t, "Food / Groceries", row[8])
	assert.Equal(t, "weekly shop", row[9])

	assert.Equal(t, []int64{42}, store.synced)
	assert.Empty(t, store.errored)
}

func TestHandleEventDeletion(t *testing.T) {
	store := newFakeJournalStore()
	path := filepath.Join(t.TempDir(), "journal.csv")
	w := NewJournalWorker(store, NewJournal(path), 10)

	err := w.HandleEvent(context.Background(), amqp.NewExpenseEvent(amqp.ExpenseDeleted, 9, 0))
	require.NoError(t, err)

	rows := readJournal(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, "expense.deleted", rows[1][1])
	assert.Equal(t, "9", rows[1][2])
	assert.Empty(t, store.synced)
}

func TestHandleEventMissingExpenseSkipped(t *testing.T) {
	store := newFakeJournalStore()
	path := filepath.Join(t.TempDir(), "journal.csv")
	w := NewJournalWorker(store, NewJournal(path), 10)

	err := w.HandleEvent(context.Background(), amqp.NewExpenseEvent(amqp.ExpenseCreated, 404, 1))
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSweepJournalsPendingOnly(t *testing.T) {
	store := newFakeJournalStore()
	store.categories[7] = []core.CategoryRecord{{ID: 1, Name: "Food"}}
	pendingRec := core.ExpenseRecord{
		Amount:     core.Money{Cents: 500},
		Currency:   core.EUR,
		CategoryID: 1,
		Date:       core.NewDate(2026, 1, 2),
	}
	store.addEntry(1, 7, 1, "pending", pendingRec)
	store.addEntry(2, 7, 3, "pending", pendingRec)
	store.addEntry(3, 7, 1, "synced", pendingRec)

	path := filepath.Join(t.TempDir(), "journal.csv")
	w := NewJournalWorker(store, NewJournal(path), 10)

	require.NoError(t, w.ProcessPending(context.Background()))

	rows := readJournal(t, path)
	require.Len(t, rows, 3)

	kinds := map[string]string{}
	for _, row := range rows[1:] {
		kinds[row[2]] = row[1]
	}
	assert.Equal(t, "expense.created", kinds["1"])
	assert.Equal(t, "expense.updated", kinds["2"])
	assert.ElementsMatch(t, []int64{1, 2}, store.synced)
}

func TestJournalAppendFailureMarksError(t *testing.T) {
	store := newFakeJournalStore()
	store.categories[7] = []core.CategoryRecord{{ID: 1, Name: "Food"}}
	store.addEntry(5, 7, 1, "pending", core.ExpenseRecord{
		Amount:     core.Money{Cents: 100},
		Currency:   core.EUR,
		CategoryID: 1,
		Date:       core.NewDate(2026, 1, 2),
	})

	// A directory at the journal path makes every append fail.
	dir := t.TempDir()
	w := NewJournalWorker(store, NewJournal(dir), 10)

	err := w.HandleEvent(context.Background(), amqp.NewExpenseEvent(amqp.ExpenseCreated, 5, 1))
	require.Error(t, err)
	assert.Equal(t, []int64{5}, store.errored)
	assert.Empty(t, store.synced)
}

func TestJournalAppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.csv")

	j := NewJournal(path)
	require.NoError(t, j.Append(JournalRow{Event: "expense.created", ID: 1}))

	j = NewJournal(path)
	require.NoError(t, j.Append(JournalRow{Event: "expense.updated", ID: 1}))

	rows := readJournal(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, journalHeader, rows[0])
	assert.Equal(t, "expense.created", rows[1][1])
	assert.Equal(t, "expense.updated", rows[2][1])
}
