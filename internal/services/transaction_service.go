package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/events"
	"bilancio/internal/gateway"
	applog "bilancio/internal/log"
)

// DefaultRecentLimit is the size of the recent activity feed.
const DefaultRecentLimit = 20

// NewTransaction is the unvalidated input of TransactionService.Create.
type NewTransaction struct {
	Kind       string `json:"kind"`
	Amount     string `json:"amount"`
	CategoryID string `json:"category_id,omitempty"`
	Note       string `json:"note,omitempty"`
	Date       string `json:"date,omitempty"`
}

type transactionStore interface {
	gateway.TransactionStore
	GetCategory(ctx context.Context, owner, id uuid.UUID) (core.Category, error)
}

// TransactionService records ledger entries and announces every change.
type TransactionService struct {
	store     transactionStore
	publisher events.Publisher
	loc       *time.Location
	now       func() time.Time
}

// NewTransactionService wires the store and change publisher. A nil
// publisher disables change notifications.
func NewTransactionService(store transactionStore, publisher events.Publisher, loc *time.Location) *TransactionService {
	if loc == nil {
		loc = time.UTC
	}
	return &TransactionService{store: store, publisher: publisher, loc: loc, now: time.Now}
}

// Create validates in and stores it for the owner in ctx.
func (s *TransactionService) Create(ctx context.Context, in NewTransaction) (core.Transaction, error) {
	owner, err := core.OwnerFrom(ctx)
	if err != nil {
		return core.Transaction{}, err
	}

	kind, err := core.ParseKind(in.Kind)
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.Transaction{}, err
	}

	now := s.now()
	date := core.Today(now, s.loc)
	if strings.TrimSpace(in.Date) != "" {
		if date, err = core.ParseDate(in.Date); err != nil {
			return core.Transaction{}, err
		}
	}

	t := core.Transaction{
		ID:        uuid.New(),
		OwnerID:   owner,
		Amount:    amount,
		Kind:      kind,
		Note:      strings.TrimSpace(in.Note),
		Date:      date,
		CreatedAt: now.UTC(),
	}

	if id := strings.TrimSpace(in.CategoryID); id != "" {
		catID, err := uuid.Parse(id)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("category id: %w", core.ErrNotFound)
		}
		cat, err := s.store.GetCategory(ctx, owner, catID)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("get category: %w", err)
		}
		if cat.Kind != kind {
			return core.Transaction{}, core.ErrCategoryKindMismatch
		}
		t.Category = &core.CategoryRef{ID: cat.ID, Name: cat.Name, Icon: cat.Icon}
	}

	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := s.store.CreateTransaction(ctx, t); err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	applog.NewStructuredLogger(applog.FromContext(ctx)).
		LogTransactionCreated(ctx, owner.String(), t.ID.String(), string(t.Kind), t.Amount.StringFixed(2), t.CategoryName())

	s.publish(ctx, t, events.ActionCreated)
	return t, nil
}

// Delete removes one of the owner's transactions.
func (s *TransactionService) Delete(ctx context.Context, id uuid.UUID) error {
	owner, err := core.OwnerFrom(ctx)
	if err != nil {
		return err
	}
	t, err := s.store.DeleteTransaction(ctx, owner, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction deleted", applog.FieldOwnerID, owner, applog.FieldTxID, id)
	s.publish(ctx, t, events.ActionDeleted)
	return nil
}

// List returns the owner's transactions inside p, newest first.
func (s *TransactionService) List(ctx context.Context, p core.Period) ([]core.Transaction, error) {
	owner, err := core.OwnerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	ts, err := s.store.ListTransactions(ctx, owner, p)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return ts, nil
}

// Recent returns the newest transactions; limit <= 0 means DefaultRecentLimit.
func (s *TransactionService) Recent(ctx context.Context, limit int) ([]core.Transaction, error) {
	owner, err := core.OwnerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	ts, err := s.store.RecentTransactions(ctx, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("recent transactions: %w", err)
	}
	return ts, nil
}

// publish never fails the caller; the row is already stored.
func (s *TransactionService) publish(ctx context.Context, t core.Transaction, action events.Action) {
	if s.publisher == nil {
		return
	}
	change := events.Change{
		OwnerID:       t.OwnerID,
		TransactionID: t.ID,
		Action:        action,
		Date:          t.Date,
		At:            s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, change); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction change",
			applog.FieldOwnerID, t.OwnerID,
			applog.FieldTxID, t.ID,
			"action", action,
			applog.FieldError, err)
	}
}
