// Package services orchestrates storage, the category tree engine and
// event publishing behind the HTTP handlers.
package services

import (
	"context"
	"strings"

	"notbroke/internal/core"
)

// CategoryStore is the repository slice the category service needs.
type CategoryStore interface {
	CreateCategory(ctx context.Context, userID int64, rec core.CategoryRecord) (core.CategoryRecord, error)
	GetCategory(ctx context.Context, userID, id int64) (core.CategoryRecord, error)
	ListCategories(ctx context.Context, userID int64) ([]core.CategoryRecord, error)
	UpdateCategory(ctx context.Context, userID int64, rec core.CategoryRecord) (core.CategoryRecord, error)
	DeleteCategory(ctx context.Context, userID, id int64) error
}

type CategoryService struct {
	store CategoryStore
}

func NewCategoryService(store CategoryStore) *CategoryService {
	return &CategoryService{store: store}
}

func (s *CategoryService) Create(ctx context.Context, userID int64, rec core.CategoryRecord) (core.CategoryRecord, error) {
	rec.Name = strings.TrimSpace(rec.Name)
	if err := rec.Validate(); err != nil {
		return core.CategoryRecord{}, err
	}
	return s.store.CreateCategory(ctx, userID, rec)
}

// Get returns one category as a resolved node, with its full path and
// descendant set populated from the owner's whole forest.
func (s *CategoryService) Get(ctx context.Context, userID, id int64) (*core.CategoryNode, error) {
	forest, err := s.forest(ctx, userID)
	if err != nil {
		return nil, err
	}

	node := core.FindNode(forest, id)
	if node == nil {
		return nil, core.ErrCategoryNotFound
	}
	return node, nil
}

// Forest returns the user's resolved category forest, optionally pruned
// by a search query, with the roots paginated.
func (s *CategoryService) Forest(ctx context.Context, userID int64, query string, page, perPage int) ([]*core.CategoryNode, core.PageMeta, error) {
	forest, err := s.forest(ctx, userID)
	if err != nil {
		return nil, core.PageMeta{}, err
	}

	forest = core.Search(forest, query)
	roots, meta := core.Paginate(forest, page, perPage)
	return roots, meta, nil
}

// Update renames, redescribes or reparents a category. Reparenting is
// rehearsed against an in-memory snapshot first so a move that would
// close a cycle is rejected before touching the database.
func (s *CategoryService) Update(ctx context.Context, userID int64, rec core.CategoryRecord) (core.CategoryRecord, error) {
	rec.Name = strings.TrimSpace(rec.Name)
	if err := rec.Validate(); err != nil {
		return core.CategoryRecord{}, err
	}

	records, err := s.store.ListCategories(ctx, userID)
	if err != nil {
		return core.CategoryRecord{}, err
	}

	found := false
	for i := range records {
		if records[i].ID == rec.ID {
			records[i] = rec
			found = true
			break
		}
	}
	if !found {
		return core.CategoryRecord{}, core.ErrCategoryNotFound
	}

	if _, err := core.BuildForest(records); err != nil {
		return core.CategoryRecord{}, err
	}

	return s.store.UpdateCategory(ctx, userID, rec)
}

// Delete removes a category. Its children are promoted to roots and its
// expenses are removed with it.
func (s *CategoryService) Delete(ctx context.Context, userID, id int64) error {
	return s.store.DeleteCategory(ctx, userID, id)
}

func (s *CategoryService) forest(ctx context.Context, userID int64) ([]*core.CategoryNode, error) {
	records, err := s.store.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}

	forest, err := core.BuildForest(records)
	if err != nil {
		return nil, err
	}

	core.ResolveForest(forest)
	return forest, nil
}
