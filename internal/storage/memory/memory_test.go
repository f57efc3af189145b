package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

func TestTransactionsScopedAndOrdered(t *testing.T) {
	ctx := context.Background()
	s := New()
	alice, bob := uuid.New(), uuid.New()
	now := time.Now().UTC()

	add := func(owner uuid.UUID, d core.Date, created time.Time) core.Transaction {
		tx := core.Transaction{ID: uuid.New(), OwnerID: owner, Amount: decimal.NewFromInt(1), Kind: core.Expense, Date: d, CreatedAt: created}
		if err := s.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("create: %v", err)
		}
		return tx
	}
	older := add(alice, core.NewDate(2024, 6, 1), now)
	newer := add(alice, core.NewDate(2024, 6, 2), now)
	sameDayLater := add(alice, core.NewDate(2024, 6, 2), now.Add(time.Minute))
	add(bob, core.NewDate(2024, 6, 2), now)
	add(alice, core.NewDate(2024, 7, 1), now)

	got, err := s.ListTransactions(ctx, alice, core.MonthPeriod(core.NewMonthKey(2024, 6)))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []uuid.UUID{sameDayLater.ID, newer.ID, older.ID}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ID, id)
		}
	}

	recent, _ := s.RecentTransactions(ctx, alice, 2)
	if len(recent) != 2 || recent[0].Date.String() != "2024-07-01" {
		t.Errorf("recent = %+v", recent)
	}

	if _, err := s.DeleteTransaction(ctx, bob, older.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("foreign delete err = %v, want ErrNotFound", err)
	}
	if _, err := s.DeleteTransaction(ctx, alice, older.ID); err != nil {
		t.Errorf("delete: %v", err)
	}
}

func TestCategoryLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	owner := uuid.New()

	defaults, _ := s.ListCategories(ctx, owner, core.Expense)
	if len(defaults) == 0 {
		t.Fatal("expected default expense categories")
	}
	for i := 1; i < len(defaults); i++ {
		if defaults[i-1].Name > defaults[i].Name {
			t.Fatalf("categories not sorted: %s > %s", defaults[i-1].Name, defaults[i].Name)
		}
	}

	cat := core.Category{ID: uuid.New(), Name: "Pets", Icon: "paw", Kind: core.Expense, CreatedBy: &owner}
	if err := s.CreateCategory(ctx, cat); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := cat
	dup.ID = uuid.New()
	dup.Name = "pets"
	if err := s.CreateCategory(ctx, dup); !errors.Is(err, core.ErrDuplicate) {
		t.Errorf("duplicate err = %v", err)
	}

	other := uuid.New()
	if _, err := s.GetCategory(ctx, other, cat.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("other user sees private category: %v", err)
	}

	tx := core.Transaction{ID: uuid.New(), OwnerID: owner, Amount: decimal.NewFromInt(3), Kind: core.Expense,
		Category: &core.CategoryRef{ID: cat.ID, Name: cat.Name}, Date: core.NewDate(2024, 1, 1)}
	_ = s.CreateTransaction(ctx, tx)

	if err := s.DeleteCategory(ctx, owner, defaults[0].ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("deleting default err = %v", err)
	}
	if err := s.DeleteCategory(ctx, owner, cat.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := s.RecentTransactions(ctx, owner, 10)
	if len(got) != 1 || got[0].Category != nil {
		t.Errorf("transaction should be uncategorized: %+v", got)
	}
}

func TestBudgetUpsert(t *testing.T) {
	ctx := context.Background()
	s := New()
	owner := uuid.New()
	month := core.NewMonthKey(2024, 6)

	if _, err := s.GetBudget(ctx, owner, month); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	first, _ := s.UpsertBudget(ctx, core.Budget{ID: uuid.New(), OwnerID: owner, Month: month, Amount: decimal.NewFromInt(100)})
	second, _ := s.UpsertBudget(ctx, core.Budget{ID: uuid.New(), OwnerID: owner, Month: month, Amount: decimal.NewFromInt(200)})
	if first.ID != second.ID {
		t.Error("upsert should keep the row id")
	}
	got, _ := s.GetBudget(ctx, owner, month)
	if !got.Amount.Equal(decimal.NewFromInt(200)) {
		t.Errorf("amount = %s", got.Amount)
	}
}

func TestFamilyMembership(t *testing.T) {
	ctx := context.Background()
	s := New()
	admin, member := uuid.New(), uuid.New()
	_ = s.CreateUser(ctx, core.User{ID: admin, Email: "a@example.com"})
	_ = s.CreateUser(ctx, core.User{ID: member, Email: "m@example.com"})

	f := core.Family{ID: uuid.New(), Name: "Rossi", CreatedBy: admin, CreatedAt: time.Now()}
	if err := s.CreateFamily(ctx, f); err != nil {
		t.Fatalf("create family: %v", err)
	}
	if err := s.CreateFamily(ctx, core.Family{ID: uuid.New(), CreatedBy: admin}); !errors.Is(err, core.ErrAlreadyInFamily) {
		t.Errorf("second family err = %v", err)
	}
	if err := s.AddMember(ctx, core.Member{FamilyID: f.ID, UserID: member, Role: core.RoleMember, JoinedAt: time.Now().Add(time.Second)}); err != nil {
		t.Fatalf("add member: %v", err)
	}
	members, _ := s.Members(ctx, f.ID)
	if len(members) != 2 || members[0].Role != core.RoleAdmin || members[1].Email != "m@example.com" {
		t.Fatalf("members = %+v", members)
	}
	got, err := s.FamilyOf(ctx, member)
	if err != nil || got.ID != f.ID {
		t.Errorf("FamilyOf = %+v, %v", got, err)
	}
}
