// Package storage persists users, categories and expenses in SQLite and
// converts rows into the core record types the tree and aggregation
// engines consume.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"notbroke/internal/core"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrEmailTaken        = errors.New("email already registered")
	ErrDuplicateCategory = errors.New("category name already in use under this parent")
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, queries: New(db)}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateUser stores a new account with an already-hashed password.
func (r *SQLiteRepository) CreateUser(ctx context.Context, username, email, passwordHash string) (User, error) {
	u, err := r.queries.CreateUser(ctx, username, email, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "users.email") {
				return User{}, ErrEmailTaken
			}
			return User{}, ErrUsernameTaken
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "User created", "id", u.ID, "username", u.Username)
	return u, nil
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (User, error) {
	u, err := r.queries.GetUserByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id int64) (User, error) {
	u, err := r.queries.GetUserByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// CreateCategory stores a category. A non-nil parent must belong to the
// same user or the call fails with core.ErrCategoryNotFound.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, userID int64, rec core.CategoryRecord) (core.CategoryRecord, error) {
	if rec.ParentID != nil {
		if _, err := r.queries.GetCategory(ctx, *rec.ParentID, userID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.CategoryRecord{}, core.ErrCategoryNotFound
			}
			return core.CategoryRecord{}, fmt.Errorf("check parent category: %w", err)
		}
	}

	c, err := r.queries.CreateCategory(ctx, CreateCategoryParams{
		UserID:      userID,
		Name:        rec.Name,
		Description: rec.Description,
		ParentID:    nullableID(rec.ParentID),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return core.CategoryRecord{}, ErrDuplicateCategory
		}
		return core.CategoryRecord{}, fmt.Errorf("create category: %w", err)
	}

	slog.InfoContext(ctx, "Category created",
		"id", c.ID, "user_id", userID, "name", c.Name)

	return toCategoryRecord(c), nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, userID, id int64) (core.CategoryRecord, error) {
	c, err := r.queries.GetCategory(ctx, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.CategoryRecord{}, core.ErrCategoryNotFound
	}
	if err != nil {
		return core.CategoryRecord{}, fmt.Errorf("get category: %w", err)
	}
	return toCategoryRecord(c), nil
}

// ListCategories returns every category owned by userID as a flat
// snapshot ordered by id, ready for core.BuildForest.
func (r *SQLiteRepository) ListCategories(ctx context.Context, userID int64) ([]core.CategoryRecord, error) {
	rows, err := r.queries.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	records := make([]core.CategoryRecord, len(rows))
	for i, c := range rows {
		records[i] = toCategoryRecord(c)
	}
	return records, nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, userID int64, rec core.CategoryRecord) (core.CategoryRecord, error) {
	if rec.ParentID != nil {
		if _, err := r.queries.GetCategory(ctx, *rec.ParentID, userID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.CategoryRecord{}, core.ErrCategoryNotFound
			}
			return core.CategoryRecord{}, fmt.Errorf("check parent category: %w", err)
		}
	}

	c, err := r.queries.UpdateCategory(ctx, UpdateCategoryParams{
		ID:          rec.ID,
		UserID:      userID,
		Name:        rec.Name,
		Description: rec.Description,
		ParentID:    nullableID(rec.ParentID),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.CategoryRecord{}, core.ErrCategoryNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return core.CategoryRecord{}, ErrDuplicateCategory
		}
		return core.CategoryRecord{}, fmt.Errorf("update category: %w", err)
	}
	return toCategoryRecord(c), nil
}

// DeleteCategory removes a category. Children are promoted to roots by
// the ON DELETE SET NULL constraint; expenses under it are cascaded.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, userID, id int64) error {
	n, err := r.queries.DeleteCategory(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n == 0 {
		return core.ErrCategoryNotFound
	}

	slog.InfoContext(ctx, "Category deleted", "id", id, "user_id", userID)
	return nil
}

// CreateExpense stores an expense and returns the record plus the row
// version used for journal events.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, userID int64, rec core.ExpenseRecord) (core.ExpenseRecord, int64, error) {
	if _, err := r.queries.GetCategory(ctx, rec.CategoryID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ExpenseRecord{}, 0, core.ErrCategoryNotFound
		}
		return core.ExpenseRecord{}, 0, fmt.Errorf("check category: %w", err)
	}

	e, err := r.queries.CreateExpense(ctx, CreateExpenseParams{
		UserID:      userID,
		AmountCents: rec.Amount.Cents,
		Currency:    string(rec.Currency),
		CategoryID:  rec.CategoryID,
		Date:        rec.Date.String(),
		Note:        rec.Note,
	})
	if err != nil {
		return core.ExpenseRecord{}, 0, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", e.ID, "user_id", userID,
		"amount_cents", e.AmountCents, "currency", e.Currency,
		"category_id", e.CategoryID)

	out, err := toExpenseRecord(e)
	return out, e.Version, err
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, userID, id int64) (core.ExpenseRecord, error) {
	e, err := r.queries.GetExpense(ctx, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExpenseRecord{}, ErrNotFound
	}
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("get expense: %w", err)
	}
	return toExpenseRecord(e)
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID int64) ([]core.ExpenseRecord, error) {
	rows, err := r.queries.ListExpenses(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return toExpenseRecords(rows)
}

// ListExpensesByRange returns expenses with start <= date <= end.
func (r *SQLiteRepository) ListExpensesByRange(ctx context.Context, userID int64, start, end core.Date) ([]core.ExpenseRecord, error) {
	rows, err := r.queries.ListExpensesByRange(ctx, userID, start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("list expenses by range: %w", err)
	}
	return toExpenseRecords(rows)
}

// UpdateExpense rewrites an expense, bumping its version and marking it
// pending for the journal again.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, userID int64, rec core.ExpenseRecord) (core.ExpenseRecord, int64, error) {
	if _, err := r.queries.GetCategory(ctx, rec.CategoryID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ExpenseRecord{}, 0, core.ErrCategoryNotFound
		}
		return core.ExpenseRecord{}, 0, fmt.Errorf("check category: %w", err)
	}

	e, err := r.queries.UpdateExpense(ctx, UpdateExpenseParams{
		ID:          rec.ID,
		UserID:      userID,
		AmountCents: rec.Amount.Cents,
		Currency:    string(rec.Currency),
		CategoryID:  rec.CategoryID,
		Date:        rec.Date.String(),
		Note:        rec.Note,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExpenseRecord{}, 0, ErrNotFound
	}
	if err != nil {
		return core.ExpenseRecord{}, 0, fmt.Errorf("update expense: %w", err)
	}

	out, err := toExpenseRecord(e)
	return out, e.Version, err
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id int64) error {
	n, err := r.queries.DeleteExpense(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "Expense deleted", "id", id, "user_id", userID)
	return nil
}

// JournalEntry is the minimal row view the journal worker needs.
type JournalEntry struct {
	Expense Expense
	Record  core.ExpenseRecord
}

// GetPendingSyncExpenses returns expenses not yet written to the journal.
func (r *SQLiteRepository) GetPendingSyncExpenses(ctx context.Context, limit int) ([]JournalEntry, error) {
	rows, err := r.queries.GetPendingSyncExpenses(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync expenses: %w", err)
	}

	entries := make([]JournalEntry, 0, len(rows))
	for _, e := range rows {
		rec, err := toExpenseRecord(e)
		if err != nil {
			return nil, err
		}
		entries = append(entries, JournalEntry{Expense: e, Record: rec})
	}
	return entries, nil
}

// GetJournalEntry loads one expense across owners, for event consumers.
func (r *SQLiteRepository) GetJournalEntry(ctx context.Context, id int64) (JournalEntry, error) {
	e, err := r.queries.GetExpenseAnyUser(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return JournalEntry{}, ErrNotFound
	}
	if err != nil {
		return JournalEntry{}, fmt.Errorf("get journal entry: %w", err)
	}
	rec, err := toExpenseRecord(e)
	if err != nil {
		return JournalEntry{}, err
	}
	return JournalEntry{Expense: e, Record: rec}, nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	if err := r.queries.MarkExpenseSynced(ctx, id); err != nil {
		return fmt.Errorf("mark expense synced: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	if err := r.queries.MarkExpenseSyncError(ctx, id); err != nil {
		return fmt.Errorf("mark expense sync error: %w", err)
	}
	slog.WarnContext(ctx, "Expense marked with sync error", "id", id)
	return nil
}

func toCategoryRecord(c Category) core.CategoryRecord {
	rec := core.CategoryRecord{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
	}
	if c.ParentID.Valid {
		parent := c.ParentID.Int64
		rec.ParentID = &parent
	}
	return rec
}

func toExpenseRecord(e Expense) (core.ExpenseRecord, error) {
	date, err := core.ParseDate(e.Date)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("parse stored date %q: %w", e.Date, err)
	}
	return core.ExpenseRecord{
		ID:         e.ID,
		Amount:     core.Money{Cents: e.AmountCents},
		Currency:   core.Currency(e.Currency),
		CategoryID: e.CategoryID,
		Date:       date,
		Note:       e.Note,
	}, nil
}

func toExpenseRecords(rows []Expense) ([]core.ExpenseRecord, error) {
	records := make([]core.ExpenseRecord, len(rows))
	for i, e := range rows {
		rec, err := toExpenseRecord(e)
		if err != nil {
			return nil, err
		}
		records[i] = rec
	}
	return records, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
