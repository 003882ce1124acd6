package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"weeklytotals/internal/core"
)

type CategoryStore interface {
	InsertCategory(ctx context.Context, c core.Category) (int64, error)
	UpdateCategory(ctx context.Context, c core.Category) error
	DeleteCategoryIfUnused(ctx context.Context, c core.Category) error
	GetCategoryByName(ctx context.Context, name string) (*core.Category, bool, error)
	ListCategories(ctx context.Context) ([]core.Category, error)
	ListUserCategories(ctx context.Context) ([]core.Category, error)
}

// CategoryService manages user categories. System categories cannot be
// removed and a category still referenced by transactions is kept.
type CategoryService struct {
	store CategoryStore
}

func NewCategoryService(store CategoryStore) *CategoryService {
	return &CategoryService{store: store}
}

func (s *CategoryService) List(ctx context.Context, includeSystem bool) ([]core.Category, error) {
	if includeSystem {
		return s.store.ListCategories(ctx)
	}
	return s.store.ListUserCategories(ctx)
}

// Add creates a user category. Names are stored upper-case.
func (s *CategoryService) Add(ctx context.Context, name, displayName, color string) (core.Category, error) {
	c := core.Category{
		Name:        strings.ToUpper(strings.TrimSpace(name)),
		DisplayName: strings.TrimSpace(displayName),
		Color:       strings.TrimSpace(color),
	}
	if c.DisplayName == "" {
		c.DisplayName = displayNameFor(c.Name)
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	id, err := s.store.InsertCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("add category %s: %w", c.Name, err)
	}
	c.ID = id

	slog.InfoContext(ctx, "Category added", "id", id, "name", c.Name)
	return c, nil
}

// Delete removes the named category.
func (s *CategoryService) Delete(ctx context.Context, name string) error {
	c, ok, err := s.store.GetCategoryByName(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("category %s: %w", name, core.ErrNotFound)
	}
	if c.IsSystem {
		return fmt.Errorf("category %s: %w", name, core.ErrSystemCategory)
	}

	if err := s.store.DeleteCategoryIfUnused(ctx, *c); err != nil {
		return fmt.Errorf("delete category %s: %w", name, err)
	}

	slog.InfoContext(ctx, "Category deleted", "name", c.Name)
	return nil
}

// Rename changes the display name of a user category.
func (s *CategoryService) Rename(ctx context.Context, name, displayName string) error {
	c, ok, err := s.store.GetCategoryByName(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("category %s: %w", name, core.ErrNotFound)
	}
	if c.IsSystem {
		return fmt.Errorf("category %s: %w", name, core.ErrSystemCategory)
	}

	c.DisplayName = strings.TrimSpace(displayName)
	return s.store.UpdateCategory(ctx, *c)
}

// displayNameFor turns "EATING_OUT" into "Eating out".
func displayNameFor(name string) string {
	s := strings.ToLower(strings.ReplaceAll(name, "_", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
