// Package gateway declares the ports the services use to reach storage.
//
// Every owner-scoped method takes the owner explicitly; implementations never
// read identity from ambient state.
package gateway

import (
	"context"

	"github.com/google/uuid"

	"bilancio/internal/core"
)

type (
	UserStore interface {
		CreateUser(ctx context.Context, u core.User) error
		UserByEmail(ctx context.Context, email string) (core.User, error)
		UserByID(ctx context.Context, id uuid.UUID) (core.User, error)
	}

	TransactionStore interface {
		CreateTransaction(ctx context.Context, t core.Transaction) error
		// DeleteTransaction removes the owner's row and returns what was deleted.
		DeleteTransaction(ctx context.Context, owner, id uuid.UUID) (core.Transaction, error)
		// ListTransactions returns the owner's rows inside p, newest first.
		ListTransactions(ctx context.Context, owner uuid.UUID, p core.Period) ([]core.Transaction, error)
		RecentTransactions(ctx context.Context, owner uuid.UUID, limit int) ([]core.Transaction, error)
	}

	CategoryStore interface {
		// ListCategories returns defaults plus the owner's categories ordered
		// by name. An empty kind returns both kinds.
		ListCategories(ctx context.Context, owner uuid.UUID, kind core.Kind) ([]core.Category, error)
		// GetCategory returns a category visible to owner.
		GetCategory(ctx context.Context, owner, id uuid.UUID) (core.Category, error)
		CreateCategory(ctx context.Context, c core.Category) error
		// DeleteCategory removes a user category and uncategorizes its transactions.
		DeleteCategory(ctx context.Context, owner, id uuid.UUID) error
	}

	BudgetStore interface {
		GetBudget(ctx context.Context, owner uuid.UUID, month core.MonthKey) (core.Budget, error)
		UpsertBudget(ctx context.Context, b core.Budget) (core.Budget, error)
	}

	FamilyStore interface {
		// CreateFamily stores the family and its creator as admin.
		CreateFamily(ctx context.Context, f core.Family) error
		FamilyOf(ctx context.Context, user uuid.UUID) (core.Family, error)
		Members(ctx context.Context, family uuid.UUID) ([]core.Member, error)
		AddMember(ctx context.Context, m core.Member) error
		RemoveMember(ctx context.Context, family, user uuid.UUID) error
	}

	// Store is the full data access gateway.
	Store interface {
		UserStore
		TransactionStore
		CategoryStore
		BudgetStore
		FamilyStore
		Ping(ctx context.Context) error
		Close() error
	}
)
