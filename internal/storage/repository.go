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
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/gateway"

	_ "modernc.org/sqlite"
)

// Timestamps are stored fixed-width so text ordering matches time ordering.
const timestampLayout = "2006-01-02 15:04:05.000000000"

var _ gateway.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
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

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	err := r.queries.CreateUser(ctx, UserRow{
		ID:           u.ID.String(),
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		CreatedAt:    formatTimestamp(u.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("create user: %w", mapError(err))
	}
	slog.InfoContext(ctx, "User created in SQLite", "user_id", u.ID)
	return nil
}

func (r *SQLiteRepository) UserByEmail(ctx context.Context, email string) (core.User, error) {
	row, err := r.queries.GetUserByEmail(ctx, email)
	if err != nil {
		return core.User{}, fmt.Errorf("get user by email: %w", mapError(err))
	}
	return userFromRow(row)
}

func (r *SQLiteRepository) UserByID(ctx context.Context, id uuid.UUID) (core.User, error) {
	row, err := r.queries.GetUserByID(ctx, id.String())
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", mapError(err))
	}
	return userFromRow(row)
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) error {
	row := TransactionRow{
		ID:        t.ID.String(),
		UserID:    t.OwnerID.String(),
		Amount:    t.Amount.StringFixed(2),
		Kind:      string(t.Kind),
		Note:      t.Note,
		Date:      t.Date.String(),
		CreatedAt: formatTimestamp(t.CreatedAt),
	}
	if t.Category != nil {
		row.CategoryID = sql.NullString{String: t.Category.ID.String(), Valid: true}
	}
	if err := r.queries.CreateTransaction(ctx, row); err != nil {
		return fmt.Errorf("create transaction: %w", mapError(err))
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"owner_id", t.OwnerID,
		"kind", t.Kind,
		"amount", row.Amount,
		"date", row.Date)
	return nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, owner, id uuid.UUID) (core.Transaction, error) {
	row, err := r.queries.GetTransaction(ctx, id.String(), owner.String())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", mapError(err))
	}
	n, err := r.queries.DeleteTransaction(ctx, id.String(), owner.String())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return core.Transaction{}, fmt.Errorf("delete transaction: %w", core.ErrNotFound)
	}
	return transactionFromRow(row)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, owner uuid.UUID, p core.Period) ([]core.Transaction, error) {
	rows, err := r.queries.ListTransactionsBetween(ctx, owner.String(), p.From.String(), p.To.String())
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return transactionsFromRows(rows)
}

func (r *SQLiteRepository) RecentTransactions(ctx context.Context, owner uuid.UUID, limit int) ([]core.Transaction, error) {
	rows, err := r.queries.ListRecentTransactions(ctx, owner.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent transactions: %w", err)
	}
	return transactionsFromRows(rows)
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, owner uuid.UUID, kind core.Kind) ([]core.Category, error) {
	rows, err := r.queries.ListCategories(ctx, owner.String(), string(kind))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]core.Category, 0, len(rows))
	for _, row := range rows {
		c, err := categoryFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, owner, id uuid.UUID) (core.Category, error) {
	row, err := r.queries.GetCategory(ctx, id.String(), owner.String())
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", mapError(err))
	}
	return categoryFromRow(row)
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	row := CategoryRow{ID: c.ID.String(), Name: c.Name, Icon: c.Icon, Kind: string(c.Kind)}
	if c.CreatedBy != nil {
		row.CreatedBy = sql.NullString{String: c.CreatedBy.String(), Valid: true}
	}
	if err := r.queries.CreateCategory(ctx, row); err != nil {
		return fmt.Errorf("create category: %w", mapError(err))
	}
	return nil
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, owner, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if err := q.UncategorizeTransactions(ctx, id.String(), owner.String()); err != nil {
		return fmt.Errorf("uncategorize transactions: %w", err)
	}
	n, err := q.DeleteCategory(ctx, id.String(), owner.String())
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete category: %w", core.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	slog.InfoContext(ctx, "Category deleted from SQLite", "id", id, "owner_id", owner)
	return nil
}

func (r *SQLiteRepository) GetBudget(ctx context.Context, owner uuid.UUID, month core.MonthKey) (core.Budget, error) {
	row, err := r.queries.GetBudget(ctx, owner.String(), month.String())
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", mapError(err))
	}
	return budgetFromRow(row)
}

func (r *SQLiteRepository) UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now().UTC()
	}
	err := r.queries.UpsertBudget(ctx, BudgetRow{
		ID:        b.ID.String(),
		UserID:    b.OwnerID.String(),
		Month:     b.Month.String(),
		Amount:    b.Amount.StringFixed(2),
		UpdatedAt: formatTimestamp(b.UpdatedAt),
	})
	if err != nil {
		return core.Budget{}, fmt.Errorf("upsert budget: %w", err)
	}
	return r.GetBudget(ctx, b.OwnerID, b.Month)
}

func (r *SQLiteRepository) CreateFamily(ctx context.Context, f core.Family) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	if _, err := q.GetFamilyOfUser(ctx, f.CreatedBy.String()); err == nil {
		return core.ErrAlreadyInFamily
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check membership: %w", err)
	}
	if err := q.CreateFamily(ctx, FamilyRow{
		ID:        f.ID.String(),
		Name:      f.Name,
		CreatedBy: f.CreatedBy.String(),
		CreatedAt: formatTimestamp(f.CreatedAt),
	}); err != nil {
		return fmt.Errorf("create family: %w", err)
	}
	if err := q.AddMember(ctx, MemberRow{
		FamilyID: f.ID.String(),
		UserID:   f.CreatedBy.String(),
		Role:     string(core.RoleAdmin),
		JoinedAt: formatTimestamp(f.CreatedAt),
	}); err != nil {
		return fmt.Errorf("add admin: %w", err)
	}
	return tx.Commit()
}

func (r *SQLiteRepository) FamilyOf(ctx context.Context, user uuid.UUID) (core.Family, error) {
	row, err := r.queries.GetFamilyOfUser(ctx, user.String())
	if err != nil {
		return core.Family{}, fmt.Errorf("get family: %w", mapError(err))
	}
	return familyFromRow(row)
}

func (r *SQLiteRepository) Members(ctx context.Context, family uuid.UUID) ([]core.Member, error) {
	rows, err := r.queries.ListMembers(ctx, family.String())
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	out := make([]core.Member, 0, len(rows))
	for _, row := range rows {
		m, err := memberFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *SQLiteRepository) AddMember(ctx context.Context, m core.Member) error {
	err := r.queries.AddMember(ctx, MemberRow{
		FamilyID: m.FamilyID.String(),
		UserID:   m.UserID.String(),
		Role:     string(m.Role),
		JoinedAt: formatTimestamp(m.JoinedAt),
	})
	if err != nil {
		if errors.Is(mapError(err), core.ErrDuplicate) {
			return core.ErrAlreadyInFamily
		}
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) RemoveMember(ctx context.Context, family, user uuid.UUID) error {
	n, err := r.queries.RemoveMember(ctx, family.String(), user.String())
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("remove member: %w", core.ErrNotFound)
	}
	return nil
}

// mapError translates driver errors into core sentinels.
func mapError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return core.ErrNotFound
	case strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return core.ErrDuplicate
	default:
		return err
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func userFromRow(row UserRow) (core.User, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return core.User{}, fmt.Errorf("parse user id: %w", err)
	}
	created, err := parseTimestamp(row.CreatedAt)
	if err != nil {
		return core.User{}, err
	}
	return core.User{ID: id, Email: row.Email, Name: row.Name, PasswordHash: row.PasswordHash, CreatedAt: created}, nil
}

func transactionsFromRows(rows []TransactionRow) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := transactionFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func transactionFromRow(row TransactionRow) (core.Transaction, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction id: %w", err)
	}
	owner, err := uuid.Parse(row.UserID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse owner id: %w", err)
	}
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount: %w", err)
	}
	date, err := core.ParseDate(row.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	created, err := parseTimestamp(row.CreatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	t := core.Transaction{
		ID:        id,
		OwnerID:   owner,
		Amount:    amount,
		Kind:      core.Kind(row.Kind),
		Note:      row.Note,
		Date:      date,
		CreatedAt: created,
	}
	if row.CategoryID.Valid {
		catID, err := uuid.Parse(row.CategoryID.String)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("parse category id: %w", err)
		}
		t.Category = &core.CategoryRef{ID: catID, Name: row.CategoryName.String, Icon: row.CategoryIcon.String}
	}
	return t, nil
}

func categoryFromRow(row CategoryRow) (core.Category, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return core.Category{}, fmt.Errorf("parse category id: %w", err)
	}
	c := core.Category{ID: id, Name: row.Name, Icon: row.Icon, Kind: core.Kind(row.Kind), IsDefault: row.IsDefault}
	if row.CreatedBy.Valid {
		owner, err := uuid.Parse(row.CreatedBy.String)
		if err != nil {
			return core.Category{}, fmt.Errorf("parse category owner: %w", err)
		}
		c.CreatedBy = &owner
	}
	return c, nil
}

func budgetFromRow(row BudgetRow) (core.Budget, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return core.Budget{}, fmt.Errorf("parse budget id: %w", err)
	}
	owner, err := uuid.Parse(row.UserID)
	if err != nil {
		return core.Budget{}, fmt.Errorf("parse owner id: %w", err)
	}
	month, err := core.ParseMonthKey(row.Month)
	if err != nil {
		return core.Budget{}, err
	}
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.Budget{}, fmt.Errorf("parse amount: %w", err)
	}
	updated, err := parseTimestamp(row.UpdatedAt)
	if err != nil {
		return core.Budget{}, err
	}
	return core.Budget{ID: id, OwnerID: owner, Month: month, Amount: amount, UpdatedAt: updated}, nil
}

func familyFromRow(row FamilyRow) (core.Family, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return core.Family{}, fmt.Errorf("parse family id: %w", err)
	}
	creator, err := uuid.Parse(row.CreatedBy)
	if err != nil {
		return core.Family{}, fmt.Errorf("parse creator id: %w", err)
	}
	created, err := parseTimestamp(row.CreatedAt)
	if err != nil {
		return core.Family{}, err
	}
	return core.Family{ID: id, Name: row.Name, CreatedBy: creator, CreatedAt: created}, nil
}

func memberFromRow(row MemberRow) (core.Member, error) {
	family, err := uuid.Parse(row.FamilyID)
	if err != nil {
		return core.Member{}, fmt.Errorf("parse family id: %w", err)
	}
	user, err := uuid.Parse(row.UserID)
	if err != nil {
		return core.Member{}, fmt.Errorf("parse user id: %w", err)
	}
	joined, err := parseTimestamp(row.JoinedAt)
	if err != nil {
		return core.Member{}, err
	}
	return core.Member{FamilyID: family, UserID: user, Email: row.Email, Name: row.Name, Role: core.Role(row.Role), JoinedAt: joined}, nil
}
