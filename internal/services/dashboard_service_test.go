package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/events"
	"bilancio/internal/storage/memory"
)

// flakyStore fails every list call while broken is set.
type flakyStore struct {
	*memory.Store
	broken atomic.Bool
	lists  atomic.Int32
}

func (f *flakyStore) ListTransactions(ctx context.Context, owner uuid.UUID, p core.Period) ([]core.Transaction, error) {
	f.lists.Add(1)
	if f.broken.Load() {
		return nil, errors.New("connection reset")
	}
	return f.Store.ListTransactions(ctx, owner, p)
}

var dashboardNow = time.Date(2024, 6, 15, 21, 0, 0, 0, time.UTC)

func newDashboard(t *testing.T, store dashboardStore) *DashboardService {
	t.Helper()
	svc, err := NewDashboardService(store, DashboardConfig{CacheTTL: time.Minute, CacheSize: 100, Location: time.UTC})
	if err != nil {
		t.Fatalf("NewDashboardService: %v", err)
	}
	svc.now = func() time.Time { return dashboardNow }
	t.Cleanup(svc.Close)
	return svc
}

func seed(t *testing.T, svc *TransactionService, ctx context.Context, ins ...NewTransaction) {
	t.Helper()
	for _, in := range ins {
		if _, err := svc.Create(ctx, in); err != nil {
			t.Fatalf("Create(%+v): %v", in, err)
		}
	}
}

func TestDashboardService_Overview(t *testing.T) {
	store := memory.New()
	txs := NewTransactionService(store, nil, time.UTC)
	_, ctx := newUser(t, store, "a@example.com")
	food := categoryByName(t, "Food").ID.String()
	transport := categoryByName(t, "Transport").ID.String()
	salary := categoryByName(t, "Salary").ID.String()

	seed(t, txs, ctx,
		NewTransaction{Kind: "expense", Amount: "500", CategoryID: food, Date: "2024-06-14"},
		NewTransaction{Kind: "income", Amount: "25000", CategoryID: salary, Date: "2024-06-14"},
		NewTransaction{Kind: "expense", Amount: "200", CategoryID: transport, Date: "2024-06-15"},
		NewTransaction{Kind: "expense", Amount: "50", Date: "2024-06-01"},
		NewTransaction{Kind: "expense", Amount: "375", Date: "2024-05-20"},
	)
	budgets := NewBudgetService(store, nil)
	if _, err := budgets.Set(ctx, core.NewMonthKey(2024, 6), "1000"); err != nil {
		t.Fatalf("Set budget: %v", err)
	}

	dash := newDashboard(t, store)
	ov, err := dash.Overview(ctx, core.NewMonthKey(2024, 6))
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}

	if !ov.Totals.Income.Equal(decimal.NewFromInt(25000)) || !ov.Totals.Expense.Equal(decimal.NewFromInt(750)) {
		t.Errorf("totals = %+v", ov.Totals)
	}
	if !ov.Totals.Balance.Equal(decimal.NewFromInt(24250)) {
		t.Errorf("balance = %s", ov.Totals.Balance)
	}
	if ov.IncomeGrowth != 100 {
		t.Errorf("income growth = %v, want 100 from zero previous", ov.IncomeGrowth)
	}
	if ov.ExpenseGrowth != 100 {
		t.Errorf("expense growth = %v, want 100 (750 vs 375)", ov.ExpenseGrowth)
	}
	if len(ov.Daily) != 7 || ov.Daily[6].Date.String() != "2024-06-15" || ov.Daily[0].Date.String() != "2024-06-09" {
		t.Fatalf("daily = %+v", ov.Daily)
	}
	if !ov.Daily[5].Expense.Equal(decimal.NewFromInt(500)) || !ov.Daily[6].Expense.Equal(decimal.NewFromInt(200)) {
		t.Errorf("daily buckets = %+v", ov.Daily[5:])
	}
	if len(ov.Breakdown) != 3 || ov.Breakdown[0].Name != "Food" || ov.Breakdown[2].Name != core.OtherCategory {
		t.Errorf("breakdown = %+v", ov.Breakdown)
	}
	if len(ov.Recent) != 5 {
		t.Errorf("recent = %d, want 5", len(ov.Recent))
	}
	if ov.Budget == nil || ov.Budget.Percent != 75 || ov.Budget.Over {
		t.Errorf("budget = %+v", ov.Budget)
	}
	if ov.Stale {
		t.Error("fresh overview marked stale")
	}
}

func TestDashboardService_CacheAndInvalidation(t *testing.T) {
	store := &flakyStore{Store: memory.New()}
	hub := events.NewHub()
	txs := NewTransactionService(store, hub, time.UTC)
	u, ctx := newUser(t, store.Store, "a@example.com")
	dash := newDashboard(t, store)
	dash.Watch(hub)
	june := core.NewMonthKey(2024, 6)

	if _, err := dash.Overview(ctx, june); err != nil {
		t.Fatalf("Overview: %v", err)
	}
	calls := store.lists.Load()
	if _, err := dash.Overview(ctx, june); err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if store.lists.Load() != calls {
		t.Error("second call should be served from cache")
	}

	seed(t, txs, ctx, NewTransaction{Kind: "expense", Amount: "9", Date: "2024-06-10"})
	ov, err := dash.Overview(ctx, june)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if store.lists.Load() == calls {
		t.Error("change event should invalidate the cache")
	}
	if !ov.Totals.Expense.Equal(decimal.NewFromInt(9)) {
		t.Errorf("expense = %s after invalidation", ov.Totals.Expense)
	}

	store.broken.Store(true)
	dash.Invalidate(u.ID)
	stale, err := dash.Overview(ctx, june)
	if err != nil {
		t.Fatalf("Overview while broken: %v", err)
	}
	if !stale.Stale || !stale.Totals.Expense.Equal(decimal.NewFromInt(9)) {
		t.Errorf("want last good overview marked stale, got %+v", stale)
	}

	empty, err := dash.Overview(ctx, core.NewMonthKey(2024, 1))
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if !empty.Stale || !empty.Totals.Income.IsZero() || len(empty.Daily) != 7 {
		t.Errorf("want empty stale overview, got %+v", empty)
	}
}

func TestDashboardService_InvalidatedByBudgetAndCategoryWrites(t *testing.T) {
	store := memory.New()
	dash := newDashboard(t, store)
	budgets := NewBudgetService(store, dash)
	categories := NewCategoryService(store, dash)
	txs := NewTransactionService(store, nil, time.UTC)
	_, ctx := newUser(t, store, "a@example.com")
	june := core.NewMonthKey(2024, 6)

	pets, err := categories.Create(ctx, "Pets", "", "expense")
	if err != nil {
		t.Fatalf("Create category: %v", err)
	}
	seed(t, txs, ctx, NewTransaction{Kind: "expense", Amount: "40", CategoryID: pets.ID.String(), Date: "2024-06-12"})
	if _, err := budgets.Set(ctx, june, "1000"); err != nil {
		t.Fatalf("Set budget: %v", err)
	}

	ov, err := dash.Overview(ctx, june)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if ov.Budget == nil || !ov.Budget.Budget.Amount.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("budget = %+v", ov.Budget)
	}
	if len(ov.Breakdown) != 1 || ov.Breakdown[0].Name != "Pets" {
		t.Fatalf("breakdown = %+v", ov.Breakdown)
	}

	if _, err := budgets.Set(ctx, june, "50"); err != nil {
		t.Fatalf("Set budget: %v", err)
	}
	ov, err = dash.Overview(ctx, june)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if ov.Budget == nil || !ov.Budget.Budget.Amount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("after budget change: budget = %+v, want 50", ov.Budget)
	}

	if err := categories.Delete(ctx, pets.ID); err != nil {
		t.Fatalf("Delete category: %v", err)
	}
	ov, err = dash.Overview(ctx, june)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if len(ov.Breakdown) != 1 || ov.Breakdown[0].Name != core.OtherCategory {
		t.Errorf("after category delete: breakdown = %+v", ov.Breakdown)
	}
}

type interleavingStore struct {
	*memory.Store
	lists  atomic.Int64
	once   sync.Once
	during func()
}

func (s *interleavingStore) ListTransactions(ctx context.Context, owner uuid.UUID, p core.Period) ([]core.Transaction, error) {
	s.lists.Add(1)
	ts, err := s.Store.ListTransactions(ctx, owner, p)
	if s.during != nil {
		s.once.Do(s.during)
	}
	return ts, err
}

func TestDashboardService_DropsResultFetchedBeforeInvalidation(t *testing.T) {
	store := &interleavingStore{Store: memory.New()}
	dash := newDashboard(t, store)
	u, ctx := newUser(t, store.Store, "a@example.com")
	june := core.NewMonthKey(2024, 6)

	store.during = func() { dash.Invalidate(u.ID) }
	if _, err := dash.Overview(ctx, june); err != nil {
		t.Fatalf("Overview: %v", err)
	}
	calls := store.lists.Load()
	if _, err := dash.Overview(ctx, june); err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if store.lists.Load() == calls {
		t.Error("overview fetched before an invalidation was cached")
	}

	calls = store.lists.Load()
	if _, err := dash.Overview(ctx, june); err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if store.lists.Load() != calls {
		t.Error("overview after a quiet fetch should be cached")
	}
}

func TestDashboardService_RequiresOwner(t *testing.T) {
	dash := newDashboard(t, memory.New())
	if _, err := dash.Overview(context.Background(), core.NewMonthKey(2024, 6)); !errors.Is(err, core.ErrNoOwner) {
		t.Errorf("err = %v, want ErrNoOwner", err)
	}
	if got := dash.CurrentMonth(); got != core.NewMonthKey(2024, 6) {
		t.Errorf("CurrentMonth() = %v", got)
	}
}
