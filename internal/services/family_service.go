package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/gateway"
	applog "bilancio/internal/log"
)

type familyStore interface {
	gateway.FamilyStore
	UserByEmail(ctx context.Context, email string) (core.User, error)
}

// FamilyView is a family together with its current members.
type FamilyView struct {
	Family  core.Family   `json:"family"`
	Members []core.Member `json:"members"`
}

// FamilyService manages family groups. Members keep separate ledgers.
type FamilyService struct {
	store familyStore
	now   func() time.Time
}

func NewFamilyService(store familyStore) *FamilyService {
	return &FamilyService{store: store, now: time.Now}
}

// Create starts a family with the caller as admin.
func (s *FamilyService) Create(ctx context.Context, name string) (FamilyView, error) {
	owner, err := core.OwnerFrom(ctx)
	if err != nil {
		return FamilyView{}, err
	}
	name, err = core.ValidateFamilyName(name)
	if err != nil {
		return FamilyView{}, err
	}
	if _, err := s.store.FamilyOf(ctx, owner); err == nil {
		return FamilyView{}, core.ErrAlreadyInFamily
	} else if !errors.Is(err, core.ErrNotFound) {
		return FamilyView{}, fmt.Errorf("lookup family: %w", err)
	}

	f := core.Family{ID: uuid.New(), Name: name, CreatedBy: owner, CreatedAt: s.now().UTC()}
	if err := s.store.CreateFamily(ctx, f); err != nil {
		return FamilyView{}, fmt.Errorf("create family: %w", err)
	}
	slog.InfoContext(ctx, "Family created", applog.FieldOwnerID, owner, "family_id", f.ID)
	return s.view(ctx, f)
}

// Mine returns the caller's family or core.ErrNotFound.
func (s *FamilyService) Mine(ctx context.Context) (FamilyView, error) {
	owner, err := core.OwnerFrom(ctx)
	if err != nil {
		return FamilyView{}, err
	}
	f, err := s.store.FamilyOf(ctx, owner)
	if err != nil {
		return FamilyView{}, fmt.Errorf("lookup family: %w", err)
	}
	return s.view(ctx, f)
}

// AddMember invites an existing user by email. Only admins may add.
func (s *FamilyService) AddMember(ctx context.Context, email string) (FamilyView, error) {
	f, err := s.adminFamily(ctx)
	if err != nil {
		return FamilyView{}, err
	}
	email, err = core.NormalizeEmail(email)
	if err != nil {
		return FamilyView{}, err
	}
	u, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		return FamilyView{}, fmt.Errorf("lookup user: %w", err)
	}
	m := core.Member{FamilyID: f.ID, UserID: u.ID, Role: core.RoleMember, JoinedAt: s.now().UTC()}
	if err := s.store.AddMember(ctx, m); err != nil {
		return FamilyView{}, fmt.Errorf("add member: %w", err)
	}
	slog.InfoContext(ctx, "Family member added", "family_id", f.ID, "user_id", u.ID)
	return s.view(ctx, f)
}

// RemoveMember drops a member. Only admins may remove, and never the creator.
func (s *FamilyService) RemoveMember(ctx context.Context, user uuid.UUID) (FamilyView, error) {
	f, err := s.adminFamily(ctx)
	if err != nil {
		return FamilyView{}, err
	}
	if user == f.CreatedBy {
		return FamilyView{}, core.ErrForbidden
	}
	if err := s.store.RemoveMember(ctx, f.ID, user); err != nil {
		return FamilyView{}, fmt.Errorf("remove member: %w", err)
	}
	slog.InfoContext(ctx, "Family member removed", "family_id", f.ID, "user_id", user)
	return s.view(ctx, f)
}

func (s *FamilyService) adminFamily(ctx context.Context) (core.Family, error) {
	owner, err := core.OwnerFrom(ctx)
	if err != nil {
		return core.Family{}, err
	}
	f, err := s.store.FamilyOf(ctx, owner)
	if err != nil {
		return core.Family{}, fmt.Errorf("lookup family: %w", err)
	}
	members, err := s.store.Members(ctx, f.ID)
	if err != nil {
		return core.Family{}, fmt.Errorf("list members: %w", err)
	}
	for _, m := range members {
		if m.UserID == owner && m.Role == core.RoleAdmin {
			return f, nil
		}
	}
	return core.Family{}, core.ErrForbidden
}

func (s *FamilyService) view(ctx context.Context, f core.Family) (FamilyView, error) {
	members, err := s.store.Members(ctx, f.ID)
	if err != nil {
		return FamilyView{}, fmt.Errorf("list members: %w", err)
	}
	return FamilyView{Family: f, Members: members}, nil
}
