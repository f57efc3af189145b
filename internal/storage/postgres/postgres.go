// Package postgres is the PostgreSQL gateway backed by a pgx connection pool.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/gateway"
	"bilancio/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

var _ gateway.Store = (*Repository)(nil)

type Repository struct {
	pool *pgxpool.Pool
}

// Connect opens a pool, verifies it and applies pending migrations.
func Connect(ctx context.Context, url string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := runMigrations(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repository{pool: pool}, nil
}

func runMigrations(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("create pgx migrate driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	return storage.ApplyMigrations(m, "postgres")
}

func (r *Repository) Ping(ctx context.Context) error { return r.pool.Ping(ctx) }

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.Name, u.PasswordHash, nonZero(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("create user: %w", mapError(err))
	}
	return nil
}

const userColumns = `SELECT id, email, name, password_hash, created_at FROM users`

func (r *Repository) UserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.scanUser(r.pool.QueryRow(ctx, userColumns+` WHERE email = $1`, email))
}

func (r *Repository) UserByID(ctx context.Context, id uuid.UUID) (core.User, error) {
	return r.scanUser(r.pool.QueryRow(ctx, userColumns+` WHERE id = $1`, id))
}

func (r *Repository) scanUser(row pgx.Row) (core.User, error) {
	var u core.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt); err != nil {
		return core.User{}, fmt.Errorf("get user: %w", mapError(err))
	}
	return u, nil
}

func (r *Repository) CreateTransaction(ctx context.Context, t core.Transaction) error {
	var categoryID *uuid.UUID
	if t.Category != nil {
		categoryID = &t.Category.ID
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO transactions (id, user_id, amount, kind, category_id, note, date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.OwnerID, t.Amount.StringFixed(2), string(t.Kind), categoryID, t.Note, t.Date.String(), nonZero(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("create transaction: %w", mapError(err))
	}
	slog.InfoContext(ctx, "Transaction saved to Postgres", "id", t.ID, "owner_id", t.OwnerID, "kind", t.Kind)
	return nil
}

const transactionColumns = `
	SELECT t.id, t.user_id, t.amount::text, t.kind, t.category_id, c.name, c.icon, t.note, t.date::text, t.created_at
	FROM transactions t
	LEFT JOIN categories c ON c.id = t.category_id`

func (r *Repository) DeleteTransaction(ctx context.Context, owner, id uuid.UUID) (core.Transaction, error) {
	rows, err := r.pool.Query(ctx, transactionColumns+` WHERE t.id = $1 AND t.user_id = $2`, id, owner)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	found, err := collectTransactions(rows)
	if err != nil {
		return core.Transaction{}, err
	}
	if len(found) == 0 {
		return core.Transaction{}, fmt.Errorf("delete transaction: %w", core.ErrNotFound)
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1 AND user_id = $2`, id, owner)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.Transaction{}, fmt.Errorf("delete transaction: %w", core.ErrNotFound)
	}
	return found[0], nil
}

func (r *Repository) ListTransactions(ctx context.Context, owner uuid.UUID, p core.Period) ([]core.Transaction, error) {
	rows, err := r.pool.Query(ctx, transactionColumns+`
		WHERE t.user_id = $1 AND t.date >= $2 AND t.date <= $3
		ORDER BY t.date DESC, t.created_at DESC`,
		owner, p.From.String(), p.To.String())
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (r *Repository) RecentTransactions(ctx context.Context, owner uuid.UUID, limit int) ([]core.Transaction, error) {
	rows, err := r.pool.Query(ctx, transactionColumns+`
		WHERE t.user_id = $1
		ORDER BY t.date DESC, t.created_at DESC
		LIMIT $2`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent transactions: %w", err)
	}
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]core.Transaction, error) {
	defer rows.Close()
	out := make([]core.Transaction, 0)
	for rows.Next() {
		var (
			t            core.Transaction
			amount, date string
			kind         string
			categoryID   *uuid.UUID
			catName      *string
			catIcon      *string
		)
		if err := rows.Scan(&t.ID, &t.OwnerID, &amount, &kind, &categoryID, &catName, &catIcon, &t.Note, &date, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		var err error
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		if t.Date, err = core.ParseDate(date); err != nil {
			return nil, err
		}
		t.Kind = core.Kind(kind)
		if categoryID != nil {
			t.Category = &core.CategoryRef{ID: *categoryID, Name: deref(catName), Icon: deref(catIcon)}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const categoryColumns = `SELECT id, name, icon, kind, is_default, created_by FROM categories`

func (r *Repository) ListCategories(ctx context.Context, owner uuid.UUID, kind core.Kind) ([]core.Category, error) {
	rows, err := r.pool.Query(ctx, categoryColumns+`
		WHERE (is_default OR created_by = $1) AND ($2 = '' OR kind = $2)
		ORDER BY lower(name), kind`, owner, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	out := make([]core.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) GetCategory(ctx context.Context, owner, id uuid.UUID) (core.Category, error) {
	c, err := scanCategory(r.pool.QueryRow(ctx, categoryColumns+`
		WHERE id = $1 AND (is_default OR created_by = $2)`, id, owner))
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", mapError(err))
	}
	return c, nil
}

func scanCategory(row pgx.Row) (core.Category, error) {
	var (
		c    core.Category
		kind string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Icon, &kind, &c.IsDefault, &c.CreatedBy); err != nil {
		return core.Category{}, err
	}
	c.Kind = core.Kind(kind)
	return c, nil
}

func (r *Repository) CreateCategory(ctx context.Context, c core.Category) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO categories (id, name, icon, kind, is_default, created_by)
		VALUES ($1, $2, $3, $4, FALSE, $5)`,
		c.ID, c.Name, c.Icon, string(c.Kind), c.CreatedBy)
	if err != nil {
		return fmt.Errorf("create category: %w", mapError(err))
	}
	return nil
}

func (r *Repository) DeleteCategory(ctx context.Context, owner, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE transactions SET category_id = NULL WHERE category_id = $1 AND user_id = $2`, id, owner); err != nil {
		return fmt.Errorf("uncategorize transactions: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM categories WHERE id = $1 AND created_by = $2 AND NOT is_default`, id, owner)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete category: %w", core.ErrNotFound)
	}
	return tx.Commit(ctx)
}

func (r *Repository) GetBudget(ctx context.Context, owner uuid.UUID, month core.MonthKey) (core.Budget, error) {
	var (
		b      core.Budget
		amount string
		mk     string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, month, amount::text, updated_at FROM budgets
		WHERE user_id = $1 AND month = $2`, owner, month.String()).
		Scan(&b.ID, &b.OwnerID, &mk, &amount, &b.UpdatedAt)
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", mapError(err))
	}
	if b.Month, err = core.ParseMonthKey(mk); err != nil {
		return core.Budget{}, err
	}
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Budget{}, fmt.Errorf("parse amount: %w", err)
	}
	return b, nil
}

func (r *Repository) UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO budgets (id, user_id, month, amount, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, month) DO UPDATE SET amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at`,
		b.ID, b.OwnerID, b.Month.String(), b.Amount.StringFixed(2), nonZero(b.UpdatedAt))
	if err != nil {
		return core.Budget{}, fmt.Errorf("upsert budget: %w", err)
	}
	return r.GetBudget(ctx, b.OwnerID, b.Month)
}

func (r *Repository) CreateFamily(ctx context.Context, f core.Family) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO families (id, name, created_by, created_at) VALUES ($1, $2, $3, $4)`,
		f.ID, f.Name, f.CreatedBy, nonZero(f.CreatedAt)); err != nil {
		return fmt.Errorf("create family: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO family_members (family_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)`,
		f.ID, f.CreatedBy, string(core.RoleAdmin), nonZero(f.CreatedAt)); err != nil {
		if errors.Is(mapError(err), core.ErrDuplicate) {
			return core.ErrAlreadyInFamily
		}
		return fmt.Errorf("add admin: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *Repository) FamilyOf(ctx context.Context, user uuid.UUID) (core.Family, error) {
	var f core.Family
	err := r.pool.QueryRow(ctx, `
		SELECT f.id, f.name, f.created_by, f.created_at
		FROM families f JOIN family_members m ON m.family_id = f.id
		WHERE m.user_id = $1`, user).Scan(&f.ID, &f.Name, &f.CreatedBy, &f.CreatedAt)
	if err != nil {
		return core.Family{}, fmt.Errorf("get family: %w", mapError(err))
	}
	return f, nil
}

func (r *Repository) Members(ctx context.Context, family uuid.UUID) ([]core.Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.family_id, m.user_id, COALESCE(u.email, ''), COALESCE(u.name, ''), m.role, m.joined_at
		FROM family_members m LEFT JOIN users u ON u.id = m.user_id
		WHERE m.family_id = $1
		ORDER BY m.joined_at`, family)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	out := make([]core.Member, 0)
	for rows.Next() {
		var (
			m    core.Member
			role string
		)
		if err := rows.Scan(&m.FamilyID, &m.UserID, &m.Email, &m.Name, &role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Role = core.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) AddMember(ctx context.Context, m core.Member) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO family_members (family_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)`,
		m.FamilyID, m.UserID, string(m.Role), nonZero(m.JoinedAt))
	if err != nil {
		if errors.Is(mapError(err), core.ErrDuplicate) {
			return core.ErrAlreadyInFamily
		}
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (r *Repository) RemoveMember(ctx context.Context, family, user uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM family_members WHERE family_id = $1 AND user_id = $2`, family, user)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("remove member: %w", core.ErrNotFound)
	}
	return nil
}

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return core.ErrDuplicate
	}
	return err
}

func nonZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
