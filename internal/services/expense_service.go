package services

import (
	"context"
	"log/slog"
	"strings"

	"notbroke/internal/amqp"
	"notbroke/internal/core"
)

// ExpenseStore is the repository slice the expense service needs.
// Create and Update also return the row version for journal events.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, userID int64, rec core.ExpenseRecord) (core.ExpenseRecord, int64, error)
	GetExpense(ctx context.Context, userID, id int64) (core.ExpenseRecord, error)
	ListExpenses(ctx context.Context, userID int64) ([]core.ExpenseRecord, error)
	ListExpensesByRange(ctx context.Context, userID int64, start, end core.Date) ([]core.ExpenseRecord, error)
	UpdateExpense(ctx context.Context, userID int64, rec core.ExpenseRecord) (core.ExpenseRecord, int64, error)
	DeleteExpense(ctx context.Context, userID, id int64) error
}

// EventPublisher publishes expense events for the journal worker.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, kind amqp.EventKind, id, version int64) error
}

// ExpenseService writes expenses to SQLite first, then publishes an
// event best effort. A broker outage never fails the write.
type ExpenseService struct {
	store     ExpenseStore
	publisher EventPublisher
}

func NewExpenseService(store ExpenseStore, publisher EventPublisher) *ExpenseService {
	return &ExpenseService{store: store, publisher: publisher}
}

func (s *ExpenseService) Create(ctx context.Context, userID int64, rec core.ExpenseRecord) (core.ExpenseRecord, error) {
	if err := rec.Validate(); err != nil {
		return core.ExpenseRecord{}, err
	}

	created, version, err := s.store.CreateExpense(ctx, userID, rec)
	if err != nil {
		return core.ExpenseRecord{}, err
	}

	s.publish(ctx, amqp.ExpenseCreated, created.ID, version)
	return created, nil
}

func (s *ExpenseService) Get(ctx context.Context, userID, id int64) (core.ExpenseRecord, error) {
	return s.store.GetExpense(ctx, userID, id)
}

// SearchFilter narrows a listing. Zero values mean no constraint;
// CategoryID scopes to a whole subtree when Forest is supplied.
type SearchFilter struct {
	Note       string
	Start, End *core.Date
	CategoryID *int64
	Forest     []*core.CategoryNode
}

// Search lists a user's expenses newest first, filtered and paginated.
func (s *ExpenseService) Search(ctx context.Context, userID int64, filter SearchFilter, page, perPage int) ([]core.ExpenseRecord, core.PageMeta, error) {
	var (
		records []core.ExpenseRecord
		err     error
	)
	if filter.Start != nil && filter.End != nil {
		if filter.Start.After(filter.End.Time) {
			return nil, core.PageMeta{}, core.ErrInvalidRange
		}
		records, err = s.store.ListExpensesByRange(ctx, userID, *filter.Start, *filter.End)
	} else {
		records, err = s.store.ListExpenses(ctx, userID)
	}
	if err != nil {
		return nil, core.PageMeta{}, err
	}

	filtered := make([]core.ExpenseRecord, 0, len(records))
	var scope map[int64]struct{}
	if filter.CategoryID != nil {
		node := core.FindNode(filter.Forest, *filter.CategoryID)
		if node == nil {
			return nil, core.PageMeta{}, core.ErrCategoryNotFound
		}
		scope = node.DescendantIDs
	}

	note := strings.ToLower(strings.TrimSpace(filter.Note))
	for _, rec := range records {
		if filter.Start != nil && rec.Date.Before(filter.Start.Time) {
			continue
		}
		if filter.End != nil && rec.Date.After(filter.End.Time) {
			continue
		}
		if note != "" && !strings.Contains(strings.ToLower(rec.Note), note) {
			continue
		}
		if scope != nil {
			if _, ok := scope[rec.CategoryID]; !ok {
				continue
			}
		}
		filtered = append(filtered, rec)
	}

	pageItems, meta := core.Paginate(filtered, page, perPage)
	return pageItems, meta, nil
}

func (s *ExpenseService) Update(ctx context.Context, userID int64, rec core.ExpenseRecord) (core.ExpenseRecord, error) {
	if err := rec.Validate(); err != nil {
		return core.ExpenseRecord{}, err
	}

	updated, version, err := s.store.UpdateExpense(ctx, userID, rec)
	if err != nil {
		return core.ExpenseRecord{}, err
	}

	s.publish(ctx, amqp.ExpenseUpdated, updated.ID, version)
	return updated, nil
}

func (s *ExpenseService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.store.DeleteExpense(ctx, userID, id); err != nil {
		return err
	}

	s.publish(ctx, amqp.ExpenseDeleted, id, 0)
	return nil
}

func (s *ExpenseService) publish(ctx context.Context, kind amqp.EventKind, id, version int64) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping", "kind", kind, "id", id)
		return
	}
	if err := s.publisher.PublishExpenseEvent(ctx, kind, id, version); err != nil {
		slog.ErrorContext(ctx, "Failed to publish expense event",
			"kind", kind, "id", id, "error", err)
	}
}
