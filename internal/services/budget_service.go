package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/aggregate"
	"bilancio/internal/core"
	"bilancio/internal/gateway"
)

type budgetStore interface {
	gateway.BudgetStore
	ListTransactions(ctx context.Context, owner uuid.UUID, p core.Period) ([]core.Transaction, error)
}

// Invalidator drops derived views of an owner's data, such as cached dashboards.
type Invalidator interface {
	Invalidate(owner uuid.UUID)
}

type BudgetService struct {
	store       budgetStore
	invalidator Invalidator
	now         func() time.Time
}

// NewBudgetService accepts a nil invalidator when nothing caches budgets.
func NewBudgetService(store budgetStore, invalidator Invalidator) *BudgetService {
	return &BudgetService{store: store, invalidator: invalidator, now: time.Now}
}

// Set creates or replaces the owner's budget for month.
func (s *BudgetService) Set(ctx context.Context, month core.MonthKey, amount string) (core.Budget, error) {
	owner, err := core.OwnerFrom(ctx)
	if err != nil {
		return core.Budget{}, err
	}
	amt, err := core.ParseAmount(amount)
	if err != nil {
		return core.Budget{}, err
	}
	b := core.Budget{
		ID:        uuid.New(),
		OwnerID:   owner,
		Amount:    amt,
		Month:     month,
		UpdatedAt: s.now().UTC(),
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	saved, err := s.store.UpsertBudget(ctx, b)
	if err != nil {
		return core.Budget{}, fmt.Errorf("save budget: %w", err)
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(owner)
	}
	return saved, nil
}

func (s *BudgetService) Get(ctx context.Context, month core.MonthKey) (core.Budget, error) {
	owner, err := core.OwnerFrom(ctx)
	if err != nil {
		return core.Budget{}, err
	}
	b, err := s.store.GetBudget(ctx, owner, month)
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

// Progress compares the month's budget with the month's expenses.
func (s *BudgetService) Progress(ctx context.Context, month core.MonthKey) (aggregate.BudgetProgress, error) {
	b, err := s.Get(ctx, month)
	if err != nil {
		return aggregate.BudgetProgress{}, err
	}
	ts, err := s.store.ListTransactions(ctx, b.OwnerID, core.MonthPeriod(month))
	if err != nil {
		return aggregate.BudgetProgress{}, fmt.Errorf("list transactions: %w", err)
	}
	return aggregate.Progress(b, aggregate.Totals(ts).Expense), nil
}
