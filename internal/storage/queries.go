package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Row types mirror the tables; values are kept in their stored text form.
type (
	UserRow struct {
		ID           string
		Email        string
		Name         string
		PasswordHash string
		CreatedAt    string
	}

	TransactionRow struct {
		ID           string
		UserID       string
		Amount       string
		Kind         string
		CategoryID   sql.NullString
		CategoryName sql.NullString
		CategoryIcon sql.NullString
		Note         string
		Date         string
		CreatedAt    string
	}

	CategoryRow struct {
		ID        string
		Name      string
		Icon      string
		Kind      string
		IsDefault bool
		CreatedBy sql.NullString
	}

	BudgetRow struct {
		ID        string
		UserID    string
		Month     string
		Amount    string
		UpdatedAt string
	}

	FamilyRow struct {
		ID        string
		Name      string
		CreatedBy string
		CreatedAt string
	}

	MemberRow struct {
		FamilyID string
		UserID   string
		Email    string
		Name     string
		Role     string
		JoinedAt string
	}
)

const createUser = `
INSERT INTO users (id, email, name, password_hash, created_at)
VALUES (?, ?, ?, ?, ?)`

func (q *Queries) CreateUser(ctx context.Context, u UserRow) error {
	_, err := q.db.ExecContext(ctx, createUser, u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt)
	return err
}

const getUserByEmail = `
SELECT id, email, name, password_hash, created_at FROM users WHERE email = ?`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (UserRow, error) {
	var u UserRow
	err := q.db.QueryRowContext(ctx, getUserByEmail, email).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

const getUserByID = `
SELECT id, email, name, password_hash, created_at FROM users WHERE id = ?`

func (q *Queries) GetUserByID(ctx context.Context, id string) (UserRow, error) {
	var u UserRow
	err := q.db.QueryRowContext(ctx, getUserByID, id).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

const createTransaction = `
INSERT INTO transactions (id, user_id, amount, kind, category_id, note, date, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateTransaction(ctx context.Context, t TransactionRow) error {
	_, err := q.db.ExecContext(ctx, createTransaction,
		t.ID, t.UserID, t.Amount, t.Kind, t.CategoryID, t.Note, t.Date, t.CreatedAt)
	return err
}

const transactionColumns = `
SELECT t.id, t.user_id, t.amount, t.kind, t.category_id, c.name, c.icon, t.note, t.date, t.created_at
FROM transactions t
LEFT JOIN categories c ON c.id = t.category_id`

const getTransaction = transactionColumns + `
WHERE t.id = ? AND t.user_id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id, userID string) (TransactionRow, error) {
	row := q.db.QueryRowContext(ctx, getTransaction, id, userID)
	var t TransactionRow
	err := row.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.CategoryID, &t.CategoryName,
		&t.CategoryIcon, &t.Note, &t.Date, &t.CreatedAt)
	return t, err
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ? AND user_id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id, userID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listTransactionsBetween = transactionColumns + `
WHERE t.user_id = ? AND t.date >= ? AND t.date <= ?
ORDER BY t.date DESC, t.created_at DESC`

func (q *Queries) ListTransactionsBetween(ctx context.Context, userID, from, to string) ([]TransactionRow, error) {
	return q.queryTransactions(ctx, listTransactionsBetween, userID, from, to)
}

const listRecentTransactions = transactionColumns + `
WHERE t.user_id = ?
ORDER BY t.date DESC, t.created_at DESC
LIMIT ?`

func (q *Queries) ListRecentTransactions(ctx context.Context, userID string, limit int) ([]TransactionRow, error) {
	return q.queryTransactions(ctx, listRecentTransactions, userID, limit)
}

func (q *Queries) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransactionRow
	for rows.Next() {
		var t TransactionRow
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.CategoryID, &t.CategoryName,
			&t.CategoryIcon, &t.Note, &t.Date, &t.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const categoryColumns = `SELECT id, name, icon, kind, is_default, created_by FROM categories`

const listCategories = categoryColumns + `
WHERE (is_default = 1 OR created_by = ?) AND (? = '' OR kind = ?)
ORDER BY name COLLATE NOCASE, kind`

func (q *Queries) ListCategories(ctx context.Context, userID, kind string) ([]CategoryRow, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, userID, kind, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CategoryRow
	for rows.Next() {
		var c CategoryRow
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.Kind, &c.IsDefault, &c.CreatedBy); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const getCategory = categoryColumns + `
WHERE id = ? AND (is_default = 1 OR created_by = ?)`

func (q *Queries) GetCategory(ctx context.Context, id, userID string) (CategoryRow, error) {
	var c CategoryRow
	err := q.db.QueryRowContext(ctx, getCategory, id, userID).
		Scan(&c.ID, &c.Name, &c.Icon, &c.Kind, &c.IsDefault, &c.CreatedBy)
	return c, err
}

const createCategory = `
INSERT INTO categories (id, name, icon, kind, is_default, created_by)
VALUES (?, ?, ?, ?, 0, ?)`

func (q *Queries) CreateCategory(ctx context.Context, c CategoryRow) error {
	_, err := q.db.ExecContext(ctx, createCategory, c.ID, c.Name, c.Icon, c.Kind, c.CreatedBy)
	return err
}

const uncategorizeTransactions = `
UPDATE transactions SET category_id = NULL WHERE category_id = ? AND user_id = ?`

func (q *Queries) UncategorizeTransactions(ctx context.Context, categoryID, userID string) error {
	_, err := q.db.ExecContext(ctx, uncategorizeTransactions, categoryID, userID)
	return err
}

const deleteCategory = `
DELETE FROM categories WHERE id = ? AND created_by = ? AND is_default = 0`

func (q *Queries) DeleteCategory(ctx context.Context, id, userID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteCategory, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getBudget = `
SELECT id, user_id, month, amount, updated_at FROM budgets WHERE user_id = ? AND month = ?`

func (q *Queries) GetBudget(ctx context.Context, userID, month string) (BudgetRow, error) {
	var b BudgetRow
	err := q.db.QueryRowContext(ctx, getBudget, userID, month).
		Scan(&b.ID, &b.UserID, &b.Month, &b.Amount, &b.UpdatedAt)
	return b, err
}

const upsertBudget = `
INSERT INTO budgets (id, user_id, month, amount, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (user_id, month) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at`

func (q *Queries) UpsertBudget(ctx context.Context, b BudgetRow) error {
	_, err := q.db.ExecContext(ctx, upsertBudget, b.ID, b.UserID, b.Month, b.Amount, b.UpdatedAt)
	return err
}

const createFamily = `
INSERT INTO families (id, name, created_by, created_at) VALUES (?, ?, ?, ?)`

func (q *Queries) CreateFamily(ctx context.Context, f FamilyRow) error {
	_, err := q.db.ExecContext(ctx, createFamily, f.ID, f.Name, f.CreatedBy, f.CreatedAt)
	return err
}

const getFamilyOfUser = `
SELECT f.id, f.name, f.created_by, f.created_at
FROM families f JOIN family_members m ON m.family_id = f.id
WHERE m.user_id = ?`

func (q *Queries) GetFamilyOfUser(ctx context.Context, userID string) (FamilyRow, error) {
	var f FamilyRow
	err := q.db.QueryRowContext(ctx, getFamilyOfUser, userID).
		Scan(&f.ID, &f.Name, &f.CreatedBy, &f.CreatedAt)
	return f, err
}

const addMember = `
INSERT INTO family_members (family_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`

func (q *Queries) AddMember(ctx context.Context, m MemberRow) error {
	_, err := q.db.ExecContext(ctx, addMember, m.FamilyID, m.UserID, m.Role, m.JoinedAt)
	return err
}

const listMembers = `
SELECT m.family_id, m.user_id, COALESCE(u.email, ''), COALESCE(u.name, ''), m.role, m.joined_at
FROM family_members m LEFT JOIN users u ON u.id = m.user_id
WHERE m.family_id = ?
ORDER BY m.joined_at`

func (q *Queries) ListMembers(ctx context.Context, familyID string) ([]MemberRow, error) {
	rows, err := q.db.QueryContext(ctx, listMembers, familyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MemberRow
	for rows.Next() {
		var m MemberRow
		if err := rows.Scan(&m.FamilyID, &m.UserID, &m.Email, &m.Name, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

const removeMember = `DELETE FROM family_members WHERE family_id = ? AND user_id = ?`

func (q *Queries) RemoveMember(ctx context.Context, familyID, userID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, removeMember, familyID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
