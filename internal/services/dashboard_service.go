package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"bilancio/internal/aggregate"
	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/events"
	applog "bilancio/internal/log"
)

const (
	dailyWindowDays   = 7
	breakdownTopN     = 6
	overviewRecentN   = 5
	defaultFetchLimit = 7 * time.Second
	lastGoodEntries   = 512
	lastGoodTTL       = 24 * time.Hour
	lastGoodSweep     = 10 * time.Minute
)

// Overview is everything the dashboard shows for one month.
type Overview struct {
	Month         core.MonthKey             `json:"month"`
	Totals        aggregate.Summary         `json:"totals"`
	Previous      aggregate.Summary         `json:"previous"`
	IncomeGrowth  float64                   `json:"income_growth"`
	ExpenseGrowth float64                   `json:"expense_growth"`
	Daily         []aggregate.DayBucket     `json:"daily"`
	Breakdown     []aggregate.CategoryTotal `json:"breakdown"`
	Recent        []core.Transaction        `json:"recent"`
	Budget        *aggregate.BudgetProgress `json:"budget,omitempty"`
	Today         core.Date                 `json:"today"`
	Stale         bool                      `json:"stale"`
	GeneratedAt   time.Time                 `json:"generated_at"`
}

type dashboardStore interface {
	ListTransactions(ctx context.Context, owner uuid.UUID, p core.Period) ([]core.Transaction, error)
	RecentTransactions(ctx context.Context, owner uuid.UUID, limit int) ([]core.Transaction, error)
	GetBudget(ctx context.Context, owner uuid.UUID, month core.MonthKey) (core.Budget, error)
}

type DashboardConfig struct {
	CacheTTL     time.Duration
	CacheSize    int
	Location     *time.Location
	FetchTimeout time.Duration
}

// DashboardService fetches a month's data concurrently and reduces it with
// the aggregate package. Results are cached per owner and month until a
// change event for that owner arrives.
type DashboardService struct {
	store    dashboardStore
	hot      *cache.OwnerCache[Overview]
	lastGood *cache.LRUCache[Overview]
	sweeper  *cache.Manager
	loc      *time.Location
	timeout  time.Duration
	now      func() time.Time

	unsubscribe func()
}

func NewDashboardService(store dashboardStore, cfg DashboardConfig) (*DashboardService, error) {
	hot, err := cache.NewOwnerCache[Overview](cfg.CacheSize, cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("dashboard cache: %w", err)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchLimit
	}
	lastGood := cache.NewLRUCache[Overview](lastGoodEntries, lastGoodTTL)
	sweeper := cache.NewManager()
	sweeper.Register(lastGood)
	sweeper.Register(hot)
	sweeper.StartCleanup(lastGoodSweep)

	return &DashboardService{
		store:    store,
		hot:      hot,
		lastGood: lastGood,
		sweeper:  sweeper,
		loc:      loc,
		timeout:  timeout,
		now:      time.Now,
	}, nil
}

// Watch invalidates cached overviews whenever hub reports a change.
func (s *DashboardService) Watch(hub *events.Hub) {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.unsubscribe = hub.SubscribeAll(func(ctx context.Context, c events.Change) {
		s.Invalidate(c.OwnerID)
	})
}

// Invalidate drops every cached month of owner.
func (s *DashboardService) Invalidate(owner uuid.UUID) {
	if n := s.hot.InvalidateOwner(owner); n > 0 {
		slog.Debug("Dashboard cache invalidated", applog.FieldComponent, applog.ComponentCache,
			applog.FieldOwnerID, owner, "entries", n)
	}
}

// CurrentMonth is the month containing today in the configured timezone.
func (s *DashboardService) CurrentMonth() core.MonthKey {
	return s.Today().Month()
}

// Today is the current date in the configured timezone.
func (s *DashboardService) Today() core.Date {
	return core.Today(s.now(), s.loc)
}

// Overview returns the dashboard for month. Fetch failures never surface:
// the last good result, or an empty one, is returned with Stale set.
func (s *DashboardService) Overview(ctx context.Context, month core.MonthKey) (Overview, error) {
	owner, err := core.OwnerFrom(ctx)
	if err != nil {
		return Overview{}, err
	}
	if err := month.Validate(); err != nil {
		return Overview{}, err
	}

	key := month.String()
	if ov, ok := s.hot.Get(owner, key); ok {
		return ov, nil
	}
	gen := s.hot.Generation(owner)

	ov, err := s.build(ctx, owner, month)
	if err != nil {
		slog.ErrorContext(ctx, "Dashboard fetch failed, serving stale overview",
			applog.FieldComponent, applog.ComponentDashboard,
			applog.FieldOwnerID, owner,
			applog.FieldMonth, key,
			applog.FieldError, err)
		if last, ok := s.lastGood.Get(lastGoodKey(owner, month)); ok {
			last.Stale = true
			return last, nil
		}
		empty := s.empty(month)
		empty.Stale = true
		return empty, nil
	}

	s.hot.SetIfGeneration(owner, key, ov, gen)
	s.lastGood.Set(lastGoodKey(owner, month), ov)
	return ov, nil
}

func (s *DashboardService) build(ctx context.Context, owner uuid.UUID, month core.MonthKey) (Overview, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	today := core.Today(s.now(), s.loc)

	var (
		current, previous, window, recent []core.Transaction
		budget                            *core.Budget
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ts, err := s.store.ListTransactions(gctx, owner, core.MonthPeriod(month))
		if err != nil {
			return fmt.Errorf("current month: %w", err)
		}
		current = ts
		return nil
	})
	g.Go(func() error {
		ts, err := s.store.ListTransactions(gctx, owner, core.MonthPeriod(month.Previous()))
		if err != nil {
			return fmt.Errorf("previous month: %w", err)
		}
		previous = ts
		return nil
	})
	g.Go(func() error {
		ts, err := s.store.ListTransactions(gctx, owner, core.LastDays(today, dailyWindowDays))
		if err != nil {
			return fmt.Errorf("daily window: %w", err)
		}
		window = ts
		return nil
	})
	g.Go(func() error {
		ts, err := s.store.RecentTransactions(gctx, owner, overviewRecentN)
		if err != nil {
			return fmt.Errorf("recent: %w", err)
		}
		recent = ts
		return nil
	})
	g.Go(func() error {
		b, err := s.store.GetBudget(gctx, owner, month)
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("budget: %w", err)
		}
		budget = &b
		return nil
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}

	totals := aggregate.Totals(current)
	prev := aggregate.Totals(previous)
	ov := Overview{
		Month:         month,
		Totals:        totals,
		Previous:      prev,
		IncomeGrowth:  aggregate.GrowthRatio(totals.Income, prev.Income),
		ExpenseGrowth: aggregate.GrowthRatio(totals.Expense, prev.Expense),
		Daily:         aggregate.DailySeries(window, dailyWindowDays, today),
		Breakdown:     aggregate.CategoryBreakdown(current, breakdownTopN),
		Recent:        recent,
		Today:         today,
		GeneratedAt:   s.now().UTC(),
	}
	if ov.Recent == nil {
		ov.Recent = []core.Transaction{}
	}
	if budget != nil {
		p := aggregate.Progress(*budget, totals.Expense)
		ov.Budget = &p
	}
	return ov, nil
}

func (s *DashboardService) empty(month core.MonthKey) Overview {
	today := core.Today(s.now(), s.loc)
	zero := aggregate.Totals(nil)
	return Overview{
		Month:       month,
		Totals:      zero,
		Previous:    zero,
		Daily:       aggregate.DailySeries(nil, dailyWindowDays, today),
		Breakdown:   []aggregate.CategoryTotal{},
		Recent:      []core.Transaction{},
		Today:       today,
		GeneratedAt: s.now().UTC(),
	}
}

func lastGoodKey(owner uuid.UUID, month core.MonthKey) string {
	return owner.String() + ":" + month.String()
}

// Close detaches from the hub and releases the cache.
func (s *DashboardService) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.sweeper.Stop()
	s.hot.Close()
}
