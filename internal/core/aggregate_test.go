package core

import (
	"errors"
	"reflect"
	"testing"
)

func scenarioForest(t *testing.T) []*CategoryNode {
	t.Helper()
	forest, err := BuildForest([]CategoryRecord{
		{ID: 1, Name: "Food"},
		{ID: 2, Name: "Groceries", ParentID: ptr(1)},
		{ID: 3, Name: "Dining", ParentID: ptr(1)},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	ResolveForest(forest)
	return forest
}

func scenarioExpenses() []ExpenseRecord {
	return []ExpenseRecord{
		{ID: 10, Amount: Money{Cents: 5000}, Currency: EUR, CategoryID: 2, Date: NewDate(2024, 1, 5)},
		{ID: 11, Amount: Money{Cents: 3000}, Currency: EUR, CategoryID: 3, Date: NewDate(2024, 1, 10)},
	}
}

func TestAggregateRollup(t *testing.T) {
	forest := scenarioForest(t)
	s, err := Aggregate(forest, scenarioExpenses(), NewDate(2024, 1, 1), NewDate(2024, 1, 31), nil)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	want := map[string]Money{
		"Food":             {Cents: 8000},
		"Food / Groceries": {Cents: 5000},
		"Food / Dining":    {Cents: 3000},
	}
	if !reflect.DeepEqual(s.CategoryTotals, want) {
		t.Fatalf("category totals = %v, want %v", s.CategoryTotals, want)
	}
	if s.Total.Cents != 8000 {
		t.Fatalf("total = %d, want 8000", s.Total.Cents)
	}
	if got := s.TotalByCurrency[EUR].Cents; got != 8000 {
		t.Fatalf("EUR total = %d, want 8000", got)
	}
}

func TestAggregateScopedToLeaf(t *testing.T) {
	forest := scenarioForest(t)
	s, err := Aggregate(forest, scenarioExpenses(), NewDate(2024, 1, 1), NewDate(2024, 1, 31), ptr(2))
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if s.Total.Cents != 5000 {
		t.Fatalf("total = %d, want 5000", s.Total.Cents)
	}
	want := map[string]Money{"Food / Groceries": {Cents: 5000}}
	if !reflect.DeepEqual(s.CategoryTotals, want) {
		t.Fatalf("category totals = %v, want %v", s.CategoryTotals, want)
	}
}

func TestAggregateRootScopeMatchesGlobal(t *testing.T) {
	forest := scenarioForest(t)
	start, end := NewDate(2024, 1, 1), NewDate(2024, 1, 31)

	scoped, err := Aggregate(forest, scenarioExpenses(), start, end, ptr(1))
	if err != nil {
		t.Fatalf("scoped aggregate: %v", err)
	}
	global, err := Aggregate(forest, scenarioExpenses(), start, end, nil)
	if err != nil {
		t.Fatalf("global aggregate: %v", err)
	}
	if scoped.Total != global.CategoryTotals["Food"] {
		t.Fatalf("root-scoped total %v != global rollup %v", scoped.Total, global.CategoryTotals["Food"])
	}
}

func TestAggregateDateFilterInclusive(t *testing.T) {
	forest := scenarioForest(t)
	expenses := []ExpenseRecord{
		{ID: 1, Amount: Money{Cents: 100}, Currency: EUR, CategoryID: 2, Date: NewDate(2024, 1, 1)},
		{ID: 2, Amount: Money{Cents: 200}, Currency: EUR, CategoryID: 2, Date: NewDate(2024, 1, 31)},
		{ID: 3, Amount: Money{Cents: 400}, Currency: EUR, CategoryID: 2, Date: NewDate(2024, 2, 1)},
	}
	s, err := Aggregate(forest, expenses, NewDate(2024, 1, 1), NewDate(2024, 1, 31), nil)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if s.Total.Cents != 300 {
		t.Fatalf("total = %d, want 300 (bounds inclusive, outside excluded)", s.Total.Cents)
	}
}

func TestAggregateMixedCurrencies(t *testing.T) {
	forest := scenarioForest(t)
	expenses := []ExpenseRecord{
		{ID: 1, Amount: Money{Cents: 5000}, Currency: EUR, CategoryID: 1, Date: NewDate(2024, 1, 5)},
		{ID: 2, Amount: Money{Cents: 2000}, Currency: USD, CategoryID: 1, Date: NewDate(2024, 1, 6)},
	}
	s, err := Aggregate(forest, expenses, NewDate(2024, 1, 1), NewDate(2024, 1, 31), nil)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	if got := s.CurrencyBreakdown[EUR]["Food"].Cents; got != 5000 {
		t.Fatalf("EUR Food = %d, want 5000", got)
	}
	if got := s.CurrencyBreakdown[USD]["Food"].Cents; got != 2000 {
		t.Fatalf("USD Food = %d, want 2000", got)
	}
	// A mixed-currency subtree stays out of the flat map; currencies are
	// grouped, never summed together.
	if _, present := s.CategoryTotals["Food"]; present {
		t.Fatal("mixed-currency path must be absent from flat totals")
	}
	if s.Total.Cents != 0 {
		t.Fatalf("flat total must stay zero for mixed currencies, got %d", s.Total.Cents)
	}
	if s.TotalByCurrency[EUR].Cents != 5000 || s.TotalByCurrency[USD].Cents != 2000 {
		t.Fatalf("per-currency totals = %v", s.TotalByCurrency)
	}
	if cur := s.SortedCurrencies(); len(cur) != 2 || cur[0] != EUR || cur[1] != USD {
		t.Fatalf("sorted currencies = %v", cur)
	}
}

func TestAggregateInvalidRange(t *testing.T) {
	forest := scenarioForest(t)
	_, err := Aggregate(forest, nil, NewDate(2024, 2, 1), NewDate(2024, 1, 1), nil)
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestAggregateCategoryNotFound(t *testing.T) {
	forest := scenarioForest(t)
	_, err := Aggregate(forest, nil, NewDate(2024, 1, 1), NewDate(2024, 1, 31), ptr(99))
	if !errors.Is(err, ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestAggregateEmptyFilteredSet(t *testing.T) {
	forest := scenarioForest(t)
	s, err := Aggregate(forest, scenarioExpenses(), NewDate(2030, 1, 1), NewDate(2030, 1, 31), nil)
	if err != nil {
		t.Fatalf("empty result is not an error: %v", err)
	}
	if len(s.CategoryTotals) != 0 || len(s.CurrencyBreakdown) != 0 || s.Total.Cents != 0 {
		t.Fatalf("expected zero-totals result, got %+v", s)
	}
}

func TestAggregateIdempotent(t *testing.T) {
	forest := scenarioForest(t)
	start, end := NewDate(2024, 1, 1), NewDate(2024, 1, 31)
	first, err := Aggregate(forest, scenarioExpenses(), start, end, nil)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	second, err := Aggregate(forest, scenarioExpenses(), start, end, nil)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical inputs must yield identical output")
	}
}

func TestAggregateSkipsUnknownCategoryReference(t *testing.T) {
	forest := scenarioForest(t)
	expenses := []ExpenseRecord{
		{ID: 1, Amount: Money{Cents: 100}, Currency: EUR, CategoryID: 2, Date: NewDate(2024, 1, 5)},
		{ID: 2, Amount: Money{Cents: 900}, Currency: EUR, CategoryID: 77, Date: NewDate(2024, 1, 5)},
	}
	s, err := Aggregate(forest, expenses, NewDate(2024, 1, 1), NewDate(2024, 1, 31), nil)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if s.Total.Cents != 100 {
		t.Fatalf("stale category reference leaked into total: %d", s.Total.Cents)
	}
}

func TestRankedCategoriesOrdering(t *testing.T) {
	s := &Summary{CategoryTotals: map[string]Money{
		"B": {Cents: 100},
		"A": {Cents: 100},
		"C": {Cents: 900},
	}}
	ranked := s.RankedCategories()
	got := []string{ranked[0].Path, ranked[1].Path, ranked[2].Path}
	want := []string{"C", "A", "B"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ranked order = %v, want %v", got, want)
	}
}
