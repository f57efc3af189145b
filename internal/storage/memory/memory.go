// Package memory is a process-local gateway used for development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/gateway"
)

var _ gateway.Store = (*Store)(nil)

type Store struct {
	mu           sync.Mutex
	users        map[uuid.UUID]core.User
	transactions []core.Transaction
	categories   []core.Category
	budgets      map[budgetKey]core.Budget
	families     map[uuid.UUID]core.Family
	members      []core.Member
}

type budgetKey struct {
	owner uuid.UUID
	month core.MonthKey
}

// New returns an empty store seeded with the default categories.
func New() *Store {
	return &Store{
		users:      make(map[uuid.UUID]core.User),
		categories: core.DefaultCategories(),
		budgets:    make(map[budgetKey]core.Budget),
		families:   make(map[uuid.UUID]core.Family),
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) CreateUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return core.ErrDuplicate
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return core.User{}, core.ErrNotFound
}

func (s *Store) UserByID(_ context.Context, id uuid.UUID) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, t)
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, owner, id uuid.UUID) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.transactions {
		if t.ID == id && t.OwnerID == owner {
			s.transactions = append(s.transactions[:i], s.transactions[i+1:]...)
			return t, nil
		}
	}
	return core.Transaction{}, core.ErrNotFound
}

func (s *Store) ListTransactions(_ context.Context, owner uuid.UUID, p core.Period) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0)
	for _, t := range s.transactions {
		if t.OwnerID == owner && p.Contains(t.Date) {
			out = append(out, copyTransaction(t))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *Store) RecentTransactions(_ context.Context, owner uuid.UUID, limit int) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0)
	for _, t := range s.transactions {
		if t.OwnerID == owner {
			out = append(out, copyTransaction(t))
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListCategories(_ context.Context, owner uuid.UUID, kind core.Kind) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if !visible(c, owner) || (kind != "" && c.Kind != kind) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, owner, id uuid.UUID) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.ID == id && visible(c, owner) {
			return c, nil
		}
	}
	return core.Category{}, core.ErrNotFound
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.categories {
		if existing.IsDefault || existing.CreatedBy == nil || c.CreatedBy == nil {
			continue
		}
		if *existing.CreatedBy == *c.CreatedBy && existing.Kind == c.Kind && strings.EqualFold(existing.Name, c.Name) {
			return core.ErrDuplicate
		}
	}
	s.categories = append(s.categories, c)
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, owner, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, c := range s.categories {
		if c.ID == id && !c.IsDefault && c.CreatedBy != nil && *c.CreatedBy == owner {
			idx = i
			break
		}
	}
	if idx < 0 {
		return core.ErrNotFound
	}
	s.categories = append(s.categories[:idx], s.categories[idx+1:]...)
	for i := range s.transactions {
		if s.transactions[i].Category != nil && s.transactions[i].Category.ID == id {
			s.transactions[i].Category = nil
		}
	}
	return nil
}

func (s *Store) GetBudget(_ context.Context, owner uuid.UUID, month core.MonthKey) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[budgetKey{owner, month}]
	if !ok {
		return core.Budget{}, core.ErrNotFound
	}
	return b, nil
}

func (s *Store) UpsertBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := budgetKey{b.OwnerID, b.Month}
	if existing, ok := s.budgets[key]; ok {
		b.ID = existing.ID
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now().UTC()
	}
	s.budgets[key] = b
	return b, nil
}

func (s *Store) CreateFamily(_ context.Context, f core.Family) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memberIndex(f.CreatedBy) >= 0 {
		return core.ErrAlreadyInFamily
	}
	s.families[f.ID] = f
	s.members = append(s.members, core.Member{
		FamilyID: f.ID,
		UserID:   f.CreatedBy,
		Role:     core.RoleAdmin,
		JoinedAt: f.CreatedAt,
	})
	return nil
}

func (s *Store) FamilyOf(_ context.Context, user uuid.UUID) (core.Family, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.memberIndex(user)
	if i < 0 {
		return core.Family{}, core.ErrNotFound
	}
	return s.families[s.members[i].FamilyID], nil
}

func (s *Store) Members(_ context.Context, family uuid.UUID) ([]core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Member, 0)
	for _, m := range s.members {
		if m.FamilyID != family {
			continue
		}
		if u, ok := s.users[m.UserID]; ok {
			m.Email, m.Name = u.Email, u.Name
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *Store) AddMember(_ context.Context, m core.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memberIndex(m.UserID) >= 0 {
		return core.ErrAlreadyInFamily
	}
	if _, ok := s.families[m.FamilyID]; !ok {
		return core.ErrNotFound
	}
	s.members = append(s.members, m)
	return nil
}

func (s *Store) RemoveMember(_ context.Context, family, user uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.members {
		if m.FamilyID == family && m.UserID == user {
			s.members = append(s.members[:i], s.members[i+1:]...)
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *Store) memberIndex(user uuid.UUID) int {
	for i, m := range s.members {
		if m.UserID == user {
			return i
		}
	}
	return -1
}

func visible(c core.Category, owner uuid.UUID) bool {
	return c.IsDefault || (c.CreatedBy != nil && *c.CreatedBy == owner)
}

func copyTransaction(t core.Transaction) core.Transaction {
	if t.Category != nil {
		ref := *t.Category
		t.Category = &ref
	}
	return t
}

func sortNewestFirst(ts []core.Transaction) {
	sort.SliceStable(ts, func(i, j int) bool {
		if !ts[i].Date.Equal(ts[j].Date) {
			return ts[i].Date.After(ts[j].Date.Time)
		}
		return ts[i].CreatedAt.After(ts[j].CreatedAt)
	})
}
