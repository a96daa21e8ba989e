package storage

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is the subset of *sql.DB used by Queries, so queries can run
// inside a transaction as well.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// User is a row in the users table.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}

// Category is a row in the categories table. ParentID is NULL for roots.
type Category struct {
	ID          int64
	UserID      int64
	Name        string
	Description string
	ParentID    sql.NullInt64
	CreatedAt   time.Time
}

// Expense is a row in the expenses table. Date is stored as YYYY-MM-DD
// text so lexical comparison matches chronological order.
type Expense struct {
	ID          int64
	UserID      int64
	AmountCents int64
	Currency    string
	CategoryID  int64
	Date        string
	Note        string
	Version     int64
	SyncStatus  string
	CreatedAt   time.Time
}

const createUser = `
INSERT INTO users (username, email, password_hash)
VALUES (?, ?, ?)
RETURNING id, username, email, password_hash, is_active, created_at
`

func (q *Queries) CreateUser(ctx context.Context, username, email, passwordHash string) (User, error) {
	row := q.db.QueryRowContext(ctx, createUser, username, email, passwordHash)
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt)
	return u, err
}

const getUserByUsername = `
SELECT id, username, email, password_hash, is_active, created_at
FROM users
WHERE username = ?
`

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByUsername, username)
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt)
	return u, err
}

const getUserByID = `
SELECT id, username, email, password_hash, is_active, created_at
FROM users
WHERE id = ?
`

func (q *Queries) GetUserByID(ctx context.Context, id int64) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByID, id)
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt)
	return u, err
}

type CreateCategoryParams struct {
	UserID      int64
	Name        string
	Description string
	ParentID    sql.NullInt64
}

const createCategory = `
INSERT INTO categories (user_id, name, description, parent_id)
VALUES (?, ?, ?, ?)
RETURNING id, user_id, name, description, parent_id, created_at
`

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (Category, error) {
	row := q.db.QueryRowContext(ctx, createCategory, arg.UserID, arg.Name, arg.Description, arg.ParentID)
	var c Category
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &c.ParentID, &c.CreatedAt)
	return c, err
}

const getCategory = `
SELECT id, user_id, name, description, parent_id, created_at
FROM categories
WHERE id = ? AND user_id = ?
`

func (q *Queries) GetCategory(ctx context.Context, id, userID int64) (Category, error) {
	row := q.db.QueryRowContext(ctx, getCategory, id, userID)
	var c Category
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &c.ParentID, &c.CreatedAt)
	return c, err
}

const listCategories = `
SELECT id, user_id, name, description, parent_id, created_at
FROM categories
WHERE user_id = ?
ORDER BY id
`

func (q *Queries) ListCategories(ctx context.Context, userID int64) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &c.ParentID, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type UpdateCategoryParams struct {
	ID          int64
	UserID      int64
	Name        string
	Description string
	ParentID    sql.NullInt64
}

const updateCategory = `
UPDATE categories
SET name = ?, description = ?, parent_id = ?
WHERE id = ? AND user_id = ?
RETURNING id, user_id, name, description, parent_id, created_at
`

func (q *Queries) UpdateCategory(ctx context.Context, arg UpdateCategoryParams) (Category, error) {
	row := q.db.QueryRowContext(ctx, updateCategory, arg.Name, arg.Description, arg.ParentID, arg.ID, arg.UserID)
	var c Category
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &c.ParentID, &c.CreatedAt)
	return c, err
}

const deleteCategory = `
DELETE FROM categories
WHERE id = ? AND user_id = ?
`

func (q *Queries) DeleteCategory(ctx context.Context, id, userID int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteCategory, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type CreateExpenseParams struct {
	UserID      int64
	AmountCents int64
	Currency    string
	CategoryID  int64
	Date        string
	Note        string
}

const createExpense = `
INSERT INTO expenses (user_id, amount_cents, currency, category_id, date, note)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id, user_id, amount_cents, currency, category_id, date, note, version, sync_status, created_at
`

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (Expense, error) {
	row := q.db.QueryRowContext(ctx, createExpense,
		arg.UserID, arg.AmountCents, arg.Currency, arg.CategoryID, arg.Date, arg.Note)
	return scanExpense(row)
}

const getExpense = `
SELECT id, user_id, amount_cents, currency, category_id, date, note, version, sync_status, created_at
FROM expenses
WHERE id = ? AND user_id = ?
`

func (q *Queries) GetExpense(ctx context.Context, id, userID int64) (Expense, error) {
	return scanExpense(q.db.QueryRowContext(ctx, getExpense, id, userID))
}

const getExpenseAnyUser = `
SELECT id, user_id, amount_cents, currency, category_id, date, note, version, sync_status, created_at
FROM expenses
WHERE id = ?
`

// GetExpenseAnyUser is used by the journal worker, which processes
// events across all owners.
func (q *Queries) GetExpenseAnyUser(ctx context.Context, id int64) (Expense, error) {
	return scanExpense(q.db.QueryRowContext(ctx, getExpenseAnyUser, id))
}

const listExpenses = `
SELECT id, user_id, amount_cents, currency, category_id, date, note, version, sync_status, created_at
FROM expenses
WHERE user_id = ?
ORDER BY date DESC, id DESC
`

func (q *Queries) ListExpenses(ctx context.Context, userID int64) ([]Expense, error) {
	return q.queryExpenses(ctx, listExpenses, userID)
}

const listExpensesByRange = `
SELECT id, user_id, amount_cents, currency, category_id, date, note, version, sync_status, created_at
FROM expenses
WHERE user_id = ? AND date >= ? AND date <= ?
ORDER BY date DESC, id DESC
`

func (q *Queries) ListExpensesByRange(ctx context.Context, userID int64, start, end string) ([]Expense, error) {
	return q.queryExpenses(ctx, listExpensesByRange, userID, start, end)
}

type UpdateExpenseParams struct {
	ID          int64
	UserID      int64
	AmountCents int64
	Currency    string
	CategoryID  int64
	Date        string
	Note        string
}

const updateExpense = `
UPDATE expenses
SET amount_cents = ?, currency = ?, category_id = ?, date = ?, note = ?,
    version = version + 1, sync_status = 'pending'
WHERE id = ? AND user_id = ?
RETURNING id, user_id, amount_cents, currency, category_id, date, note, version, sync_status, created_at
`

func (q *Queries) UpdateExpense(ctx context.Context, arg UpdateExpenseParams) (Expense, error) {
	row := q.db.QueryRowContext(ctx, updateExpense,
		arg.AmountCents, arg.Currency, arg.CategoryID, arg.Date, arg.Note, arg.ID, arg.UserID)
	return scanExpense(row)
}

const deleteExpense = `
DELETE FROM expenses
WHERE id = ? AND user_id = ?
`

func (q *Queries) DeleteExpense(ctx context.Context, id, userID int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpense, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getPendingSyncExpenses = `
SELECT id, user_id, amount_cents, currency, category_id, date, note, version, sync_status, created_at
FROM expenses
WHERE sync_status = 'pending'
ORDER BY id
LIMIT ?
`

func (q *Queries) GetPendingSyncExpenses(ctx context.Context, limit int64) ([]Expense, error) {
	return q.queryExpenses(ctx, getPendingSyncExpenses, limit)
}

const markExpenseSynced = `
UPDATE expenses SET sync_status = 'synced' WHERE id = ?
`

func (q *Queries) MarkExpenseSynced(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, markExpenseSynced, id)
	return err
}

const markExpenseSyncError = `
UPDATE expenses SET sync_status = 'error' WHERE id = ?
`

func (q *Queries) MarkExpenseSyncError(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, markExpenseSyncError, id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(row scanner) (Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.UserID, &e.AmountCents, &e.Currency, &e.CategoryID,
		&e.Date, &e.Note, &e.Version, &e.SyncStatus, &e.CreatedAt)
	return e, err
}

func (q *Queries) queryExpenses(ctx context.Context, query string, args ...any) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
