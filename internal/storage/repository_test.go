package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "bilancio.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestUser(t *testing.T, repo *SQLiteRepository, email string) core.User {
	t.Helper()
	u := core.User{ID: uuid.New(), Email: email, Name: "Test", PasswordHash: "hash", CreatedAt: time.Now()}
	if err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bilancio.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	repo.Close()

	repo, err = NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer repo.Close()
	if err := repo.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := newTestUser(t, repo, "anna@example.com")

	got, err := repo.UserByEmail(ctx, "anna@example.com")
	if err != nil || got.ID != u.ID {
		t.Fatalf("UserByEmail = %+v, %v", got, err)
	}
	if _, err := repo.UserByEmail(ctx, "missing@example.com"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("missing user err = %v", err)
	}
	dup := u
	dup.ID = uuid.New()
	if err := repo.CreateUser(ctx, dup); !errors.Is(err, core.ErrDuplicate) {
		t.Errorf("duplicate email err = %v", err)
	}
}

func TestTransactionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := newTestUser(t, repo, "luca@example.com")
	other := newTestUser(t, repo, "other@example.com")

	food := core.DefaultCategories()[4]
	if food.Name != "Food" {
		t.Fatalf("unexpected default category order: %s", food.Name)
	}

	base := time.Now()
	txs := []core.Transaction{
		{ID: uuid.New(), OwnerID: u.ID, Amount: decimal.RequireFromString("500"), Kind: core.Expense,
			Category: &core.CategoryRef{ID: food.ID}, Date: core.NewDate(2024, 6, 3), CreatedAt: base},
		{ID: uuid.New(), OwnerID: u.ID, Amount: decimal.RequireFromString("25000"), Kind: core.Income,
			Date: core.NewDate(2024, 6, 10), Note: "stipendio", CreatedAt: base},
		{ID: uuid.New(), OwnerID: u.ID, Amount: decimal.RequireFromString("12.5"), Kind: core.Expense,
			Date: core.NewDate(2024, 7, 1), CreatedAt: base},
		{ID: uuid.New(), OwnerID: other.ID, Amount: decimal.RequireFromString("1"), Kind: core.Expense,
			Date: core.NewDate(2024, 6, 5), CreatedAt: base},
	}
	for _, tx := range txs {
		if err := repo.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
	}

	june, err := repo.ListTransactions(ctx, u.ID, core.MonthPeriod(core.NewMonthKey(2024, 6)))
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(june) != 2 {
		t.Fatalf("june len = %d, want 2", len(june))
	}
	if june[0].Note != "stipendio" || june[0].Category != nil {
		t.Errorf("june[0] = %+v", june[0])
	}
	if june[1].Category == nil || june[1].Category.Name != "Food" {
		t.Errorf("category not joined: %+v", june[1].Category)
	}
	if !june[1].Amount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("amount = %s", june[1].Amount)
	}

	recent, err := repo.RecentTransactions(ctx, u.ID, 20)
	if err != nil || len(recent) != 3 || recent[0].Date.String() != "2024-07-01" {
		t.Fatalf("recent = %+v, %v", recent, err)
	}

	if _, err := repo.DeleteTransaction(ctx, other.ID, txs[0].ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("foreign delete err = %v", err)
	}
	deleted, err := repo.DeleteTransaction(ctx, u.ID, txs[0].ID)
	if err != nil || deleted.ID != txs[0].ID {
		t.Fatalf("delete = %+v, %v", deleted, err)
	}
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := newTestUser(t, repo, "gio@example.com")

	expense, err := repo.ListCategories(ctx, u.ID, core.Expense)
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(expense) != 7 {
		t.Errorf("default expense categories = %d, want 7", len(expense))
	}
	all, _ := repo.ListCategories(ctx, u.ID, "")
	if len(all) != len(core.DefaultCategories()) {
		t.Errorf("all categories = %d, want %d", len(all), len(core.DefaultCategories()))
	}

	owner := u.ID
	pets := core.Category{ID: uuid.New(), Name: "Pets", Icon: "paw", Kind: core.Expense, CreatedBy: &owner}
	if err := repo.CreateCategory(ctx, pets); err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}
	dup := pets
	dup.ID = uuid.New()
	dup.Name = "PETS"
	if err := repo.CreateCategory(ctx, dup); !errors.Is(err, core.ErrDuplicate) {
		t.Errorf("duplicate err = %v", err)
	}

	got, err := repo.GetCategory(ctx, u.ID, pets.ID)
	if err != nil || got.IsDefault || got.CreatedBy == nil || *got.CreatedBy != u.ID {
		t.Fatalf("GetCategory = %+v, %v", got, err)
	}

	tx := core.Transaction{ID: uuid.New(), OwnerID: u.ID, Amount: decimal.NewFromInt(9), Kind: core.Expense,
		Category: &core.CategoryRef{ID: pets.ID}, Date: core.NewDate(2024, 6, 1), CreatedAt: time.Now()}
	if err := repo.CreateTransaction(ctx, tx); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	if err := repo.DeleteCategory(ctx, u.ID, expense[0].ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("deleting default err = %v", err)
	}
	if err := repo.DeleteCategory(ctx, u.ID, pets.ID); err != nil {
		t.Fatalf("DeleteCategory: %v", err)
	}
	recent, _ := repo.RecentTransactions(ctx, u.ID, 1)
	if len(recent) != 1 || recent[0].Category != nil {
		t.Errorf("transaction should be uncategorized: %+v", recent)
	}
}

func TestBudgets(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	u := newTestUser(t, repo, "sara@example.com")
	month := core.NewMonthKey(2024, 6)

	if _, err := repo.GetBudget(ctx, u.ID, month); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	first, err := repo.UpsertBudget(ctx, core.Budget{ID: uuid.New(), OwnerID: u.ID, Month: month, Amount: decimal.NewFromInt(1000)})
	if err != nil {
		t.Fatalf("UpsertBudget: %v", err)
	}
	second, err := repo.UpsertBudget(ctx, core.Budget{ID: uuid.New(), OwnerID: u.ID, Month: month, Amount: decimal.NewFromInt(1500)})
	if err != nil {
		t.Fatalf("UpsertBudget: %v", err)
	}
	if first.ID != second.ID {
		t.Error("upsert should keep one row per month")
	}
	if !second.Amount.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("amount = %s", second.Amount)
	}
}

func TestFamilies(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	admin := newTestUser(t, repo, "admin@example.com")
	member := newTestUser(t, repo, "member@example.com")

	f := core.Family{ID: uuid.New(), Name: "Bianchi", CreatedBy: admin.ID, CreatedAt: time.Now()}
	if err := repo.CreateFamily(ctx, f); err != nil {
		t.Fatalf("CreateFamily: %v", err)
	}
	if err := repo.CreateFamily(ctx, core.Family{ID: uuid.New(), Name: "Again", CreatedBy: admin.ID, CreatedAt: time.Now()}); !errors.Is(err, core.ErrAlreadyInFamily) {
		t.Errorf("second family err = %v", err)
	}

	if err := repo.AddMember(ctx, core.Member{FamilyID: f.ID, UserID: member.ID, Role: core.RoleMember, JoinedAt: time.Now().Add(time.Second)}); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := repo.AddMember(ctx, core.Member{FamilyID: f.ID, UserID: member.ID, Role: core.RoleMember, JoinedAt: time.Now()}); !errors.Is(err, core.ErrAlreadyInFamily) {
		t.Errorf("double add err = %v", err)
	}

	members, err := repo.Members(ctx, f.ID)
	if err != nil || len(members) != 2 {
		t.Fatalf("Members = %+v, %v", members, err)
	}
	if members[0].UserID != admin.ID || members[0].Role != core.RoleAdmin || members[1].Email != "member@example.com" {
		t.Errorf("members = %+v", members)
	}

	got, err := repo.FamilyOf(ctx, member.ID)
	if err != nil || got.Name != "Bianchi" {
		t.Errorf("FamilyOf = %+v, %v", got, err)
	}
	if err := repo.RemoveMember(ctx, f.ID, member.ID); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if _, err := repo.FamilyOf(ctx, member.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("FamilyOf after removal err = %v", err)
	}
}
