package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/gateway"
	applog "bilancio/internal/log"
)

const defaultCategoryIcon = "tag"

type CategoryService struct {
	store       gateway.CategoryStore
	invalidator Invalidator
}

func NewCategoryService(store gateway.CategoryStore, invalidator Invalidator) *CategoryService {
	return &CategoryService{store: store, invalidator: invalidator}
}

// List returns defaults plus the owner's own categories. An empty kind lists both.
func (s *CategoryService) List(ctx context.Context, kind string) ([]core.Category, error) {
	owner, err := core.OwnerFrom(ctx)
	if err != nil {
		return nil, err
	}
	var k core.Kind
	if strings.TrimSpace(kind) != "" {
		if k, err = core.ParseKind(kind); err != nil {
			return nil, err
		}
	}
	cats, err := s.store.ListCategories(ctx, owner, k)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

func (s *CategoryService) Create(ctx context.Context, name, icon, kind string) (core.Category, error) {
	owner, err := core.OwnerFrom(ctx)
	if err != nil {
		return core.Category{}, err
	}
	k, err := core.ParseKind(kind)
	if err != nil {
		return core.Category{}, err
	}
	icon = strings.TrimSpace(icon)
	if icon == "" {
		icon = defaultCategoryIcon
	}
	c := core.Category{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(name),
		Icon:      icon,
		Kind:      k,
		CreatedBy: &owner,
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	slog.InfoContext(ctx, "Category created", applog.FieldOwnerID, owner, applog.FieldCategory, c.Name)
	return c, nil
}

// Delete removes a user-created category. Its transactions become uncategorized.
func (s *CategoryService) Delete(ctx context.Context, id uuid.UUID) error {
	owner, err := core.OwnerFrom(ctx)
	if err != nil {
		return err
	}
	c, err := s.store.GetCategory(ctx, owner, id)
	if err != nil {
		return fmt.Errorf("get category: %w", err)
	}
	if c.IsDefault {
		return core.ErrDefaultCategory
	}
	if err := s.store.DeleteCategory(ctx, owner, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(owner)
	}
	slog.InfoContext(ctx, "Category deleted", applog.FieldOwnerID, owner, applog.FieldCategory, c.Name)
	return nil
}
