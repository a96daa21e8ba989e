package services

import (
	"context"

	"notbroke/internal/core"
)

// SummaryService runs the date-range rollup over a user's forest.
type SummaryService struct {
	categories CategoryStore
	expenses   ExpenseStore
}

func NewSummaryService(categories CategoryStore, expenses ExpenseStore) *SummaryService {
	return &SummaryService{categories: categories, expenses: expenses}
}

// Summarize aggregates expenses between start and end, optionally
// scoped to one category's subtree. Nil bounds are defaulted, see
// ResolveDateRange.
func (s *SummaryService) Summarize(ctx context.Context, userID int64, start, end *core.Date, categoryID *int64) (*core.Summary, error) {
	from, to, err := ResolveDateRange(start, end, core.Today())
	if err != nil {
		return nil, err
	}

	records, err := s.categories.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}

	forest, err := core.BuildForest(records)
	if err != nil {
		return nil, err
	}
	core.ResolveForest(forest)

	expenses, err := s.expenses.ListExpensesByRange(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	return core.Aggregate(forest, expenses, from, to, categoryID)
}

// ResolveDateRange fills missing bounds: with neither given the range
// is the start of the current month through today; with one given the
// other collapses onto it.
func ResolveDateRange(start, end *core.Date, today core.Date) (core.Date, core.Date, error) {
	if start != nil && end != nil {
		if start.After(end.Time) {
			return core.Date{}, core.Date{}, core.ErrInvalidRange
		}
		return *start, *end, nil
	}

	switch {
	case start == nil && end == nil:
		monthStart := core.NewDate(today.Year(), int(today.Month()), 1)
		return monthStart, today, nil
	case start == nil:
		return *end, *end, nil
	default:
		return *start, *start, nil
	}
}
