package core

import "sort"

// Summary is the result of one aggregation run over an expense snapshot.
//
// CategoryTotals maps a category's full path to its rollup amount (own
// expenses plus everything attached in its descendant subtree). A path
// appears in the flat map only when its subtree carries a single currency;
// mixed-currency subtrees are reported exclusively through
// CurrencyBreakdown, which is always fully populated. Total follows the
// same rule: it holds the grand total only when the whole filtered set
// shares one currency, otherwise TotalByCurrency carries the partition.
type Summary struct {
	Total             Money
	TotalByCurrency   map[Currency]Money
	CategoryTotals    map[string]Money
	CurrencyBreakdown map[Currency]map[string]Money
	StartDate         Date
	EndDate           Date
	CategoryID        *int64
}

// CategoryAmount is one row of a display-ordered rollup listing.
type CategoryAmount struct {
	Path   string
	Amount Money
}

// Aggregate computes period-scoped rollup totals over the forest.
//
// Expenses are filtered to dates within [start, end] inclusive, and, when
// categoryID is set, to the scoped category's descendant set. Rollups never
// double count: sibling descendant sets are disjoint by construction. The
// forest must have been resolved before aggregation.
func Aggregate(forest []*CategoryNode, expenses []ExpenseRecord, start, end Date, categoryID *int64) (*Summary, error) {
	if start.After(end.Time) {
		return nil, ErrInvalidRange
	}

	var scope *CategoryNode
	if categoryID != nil {
		if scope = FindNode(forest, *categoryID); scope == nil {
			return nil, ErrCategoryNotFound
		}
	}

	nodes := make(map[int64]*CategoryNode)
	Walk(forest, func(n *CategoryNode) { nodes[n.ID] = n })

	// Direct sums: expenses grouped by the node they are attached to,
	// split by currency. Ancestors are rolled up afterwards.
	direct := make(map[int64]map[Currency]int64)
	totalByCurrency := make(map[Currency]Money)
	for _, e := range expenses {
		if !e.Date.Within(start, end) {
			continue
		}
		if _, known := nodes[e.CategoryID]; !known {
			// Defensive: the snapshot should only reference known
			// categories, but a stale row must not corrupt the sums.
			continue
		}
		if scope != nil {
			if _, in := scope.DescendantIDs[e.CategoryID]; !in {
				continue
			}
		}
		perCurrency, ok := direct[e.CategoryID]
		if !ok {
			perCurrency = make(map[Currency]int64)
			direct[e.CategoryID] = perCurrency
		}
		perCurrency[e.Currency] += e.Amount.Cents
		totalByCurrency[e.Currency] = totalByCurrency[e.Currency].Add(e.Amount)
	}

	summary := &Summary{
		TotalByCurrency:   totalByCurrency,
		CategoryTotals:    make(map[string]Money),
		CurrencyBreakdown: make(map[Currency]map[string]Money),
		StartDate:         start,
		EndDate:           end,
		CategoryID:        categoryID,
	}
	if len(totalByCurrency) == 1 {
		for _, m := range totalByCurrency {
			summary.Total = m
		}
	}

	rollup := func(n *CategoryNode) {
		perCurrency := make(map[Currency]int64)
		for id := range n.DescendantIDs {
			for cur, cents := range direct[id] {
				perCurrency[cur] += cents
			}
		}
		if len(perCurrency) == 0 {
			return
		}
		for cur, cents := range perCurrency {
			byPath, ok := summary.CurrencyBreakdown[cur]
			if !ok {
				byPath = make(map[string]Money)
				summary.CurrencyBreakdown[cur] = byPath
			}
			byPath[n.FullPath] = Money{Cents: cents}
		}
		if len(perCurrency) == 1 {
			for _, cents := range perCurrency {
				summary.CategoryTotals[n.FullPath] = Money{Cents: cents}
			}
		}
	}
	if scope != nil {
		walkNode(scope, rollup)
	} else {
		Walk(forest, rollup)
	}

	return summary, nil
}

// SortedCurrencies returns the currencies present in the breakdown in
// lexicographic order, for stable iteration.
func (s *Summary) SortedCurrencies() []Currency {
	out := make([]Currency, 0, len(s.CurrencyBreakdown))
	for cur := range s.CurrencyBreakdown {
		out = append(out, cur)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SortedPaths returns the flat rollup paths in lexicographic order.
func (s *Summary) SortedPaths() []string {
	out := make([]string, 0, len(s.CategoryTotals))
	for path := range s.CategoryTotals {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// RankedCategories returns the flat rollups ordered for display: amount
// descending, ties broken by path ascending.
func (s *Summary) RankedCategories() []CategoryAmount {
	out := make([]CategoryAmount, 0, len(s.CategoryTotals))
	for path, amount := range s.CategoryTotals {
		out = append(out, CategoryAmount{Path: path, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Path < out[j].Path
	})
	return out
}
