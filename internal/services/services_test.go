package services

import (
	"context"
	"errors"
	"testing"

	"notbroke/internal/amqp"
	"notbroke/internal/core"
	"notbroke/internal/storage"
)

func ptr(v int64) *int64 { return &v }

type fakeCategoryStore struct {
	records []core.CategoryRecord
	nextID  int64
}

func (f *fakeCategoryStore) CreateCategory(_ context.Context, _ int64, rec core.CategoryRecord) (core.CategoryRecord, error) {
	f.nextID++
	rec.ID = f.nextID
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeCategoryStore) GetCategory(_ context.Context, _ int64, id int64) (core.CategoryRecord, error) {
	for _, r := range f.records {
		if r.ID == id {
			return r, nil
		}
	}
	return core.CategoryRecord{}, core.ErrCategoryNotFound
}

func (f *fakeCategoryStore) ListCategories(_ context.Context, _ int64) ([]core.CategoryRecord, error) {
	out := make([]core.CategoryRecord, len(f.records))
	copy(out, f.records)
	return out, nil
}

func (f *fakeCategoryStore) UpdateCategory(_ context.Context, _ int64, rec core.CategoryRecord) (core.CategoryRecord, error) {
	for i, r := range f.records {
		if r.ID == rec.ID {
			f.records[i] = rec
			return rec, nil
		}
	}
	return core.CategoryRecord{}, core.ErrCategoryNotFound
}

func (f *fakeCategoryStore) DeleteCategory(_ context.Context, _ int64, id int64) error {
	for i, r := range f.records {
		if r.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return core.ErrCategoryNotFound
}

type fakeExpenseStore struct {
	records map[int64]core.ExpenseRecord
	nextID  int64
	version map[int64]int64
}

func newFakeExpenseStore() *fakeExpenseStore {
	return &fakeExpenseStore{
		records: make(map[int64]core.ExpenseRecord),
		version: make(map[int64]int64),
	}
}

func (f *fakeExpenseStore) CreateExpense(_ context.Context, _ int64, rec core.ExpenseRecord) (core.ExpenseRecord, int64, error) {
	f.nextID++
	rec.ID = f.nextID
	f.records[rec.ID] = rec
	f.version[rec.ID] = 1
	return rec, 1, nil
}

func (f *fakeExpenseStore) GetExpense(_ context.Context, _ int64, id int64) (core.ExpenseRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return core.ExpenseRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (f *fakeExpenseStore) ListExpenses(_ context.Context, _ int64) ([]core.ExpenseRecord, error) {
	out := make([]core.ExpenseRecord, 0, len(f.records))
	for id := int64(1); id <= f.nextID; id++ {
		if rec, ok := f.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeExpenseStore) ListExpensesByRange(ctx context.Context, userID int64, start, end core.Date) ([]core.ExpenseRecord, error) {
	all, _ := f.ListExpenses(ctx, userID)
	var out []core.ExpenseRecord
	for _, rec := range all {
		if rec.Date.Within(start, end) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeExpenseStore) UpdateExpense(_ context.Context, _ int64, rec core.ExpenseRecord) (core.ExpenseRecord, int64, error) {
	if _, ok := f.records[rec.ID]; !ok {
		return core.ExpenseRecord{}, 0, storage.ErrNotFound
	}
	f.records[rec.ID] = rec
	f.version[rec.ID]++
	return rec, f.version[rec.ID], nil
}

func (f *fakeExpenseStore) DeleteExpense(_ context.Context, _ int64, id int64) error {
	if _, ok := f.records[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.records, id)
	return nil
}

type publishedEvent struct {
	kind    amqp.EventKind
	id      int64
	version int64
}

type fakePublisher struct {
	events []publishedEvent
	err    error
}

func (f *fakePublisher) PublishExpenseEvent(_ context.Context, kind amqp.EventKind, id, version int64) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, publishedEvent{kind, id, version})
	return nil
}

func seedCategoryStore(t *testing.T, names ...string) *fakeCategoryStore {
	t.Helper()
	store := &fakeCategoryStore{}
	svc := NewCategoryService(store)
	for _, name := range names {
		if _, err := svc.Create(context.Background(), 1, core.CategoryRecord{Name: name}); err != nil {
			t.Fatalf("seed %q: %v", name, err)
		}
	}
	return store
}

func TestCategoryForest(t *testing.T) {
	store := &fakeCategoryStore{}
	svc := NewCategoryService(store)
	ctx := context.Background()

	food, err := svc.Create(ctx, 1, core.CategoryRecord{Name: "Food"})
	if err != nil {
		t.Fatalf("create Food: %v", err)
	}
	if _, err := svc.Create(ctx, 1, core.CategoryRecord{Name: "Groceries", ParentID: &food.ID}); err != nil {
		t.Fatalf("create Groceries: %v", err)
	}
	if _, err := svc.Create(ctx, 1, core.CategoryRecord{Name: "Travel"}); err != nil {
		t.Fatalf("create Travel: %v", err)
	}

	roots, meta, err := svc.Forest(ctx, 1, "", 1, 10)
	if err != nil {
		t.Fatalf("Forest: %v", err)
	}
	if len(roots) != 2 {
		t.Fatalf("got %d roots, want 2", len(roots))
	}
	if meta.Total != 2 {
		t.Fatalf("meta.Total = %d, want 2", meta.Total)
	}
	if roots[0].FullPath != "Food" || roots[0].Children[0].FullPath != "Food / Groceries" {
		t.Fatalf("unexpected resolution: %q, %q", roots[0].FullPath, roots[0].Children[0].FullPath)
	}
}

func TestCategoryForestSearch(t *testing.T) {
	store := &fakeCategoryStore{}
	svc := NewCategoryService(store)
	ctx := context.Background()

	food, _ := svc.Create(ctx, 1, core.CategoryRecord{Name: "Food"})
	svc.Create(ctx, 1, core.CategoryRecord{Name: "Groceries", ParentID: &food.ID})
	svc.Create(ctx, 1, core.CategoryRecord{Name: "Travel"})

	roots, _, err := svc.Forest(ctx, 1, "groc", 1, 10)
	if err != nil {
		t.Fatalf("Forest: %v", err)
	}
	if len(roots) != 1 || roots[0].Name != "Food" {
		t.Fatalf("search should keep matching child with its ancestor, got %d roots", len(roots))
	}
	if len(roots[0].Children) != 1 || roots[0].Children[0].Name != "Groceries" {
		t.Fatal("pruned root should keep only the matching child")
	}
}

func TestCategoryUpdateRejectsCycle(t *testing.T) {
	store := &fakeCategoryStore{}
	svc := NewCategoryService(store)
	ctx := context.Background()

	food, _ := svc.Create(ctx, 1, core.CategoryRecord{Name: "Food"})
	groceries, _ := svc.Create(ctx, 1, core.CategoryRecord{Name: "Groceries", ParentID: &food.ID})

	// Moving Food under its own child must fail before any write.
	food.ParentID = &groceries.ID
	_, err := svc.Update(ctx, 1, food)
	if !errors.Is(err, core.ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
	if got, _ := store.GetCategory(ctx, 1, food.ID); got.ParentID != nil {
		t.Fatal("rejected update must not be persisted")
	}
}

func TestCategoryUpdateNotFound(t *testing.T) {
	svc := NewCategoryService(seedCategoryStore(t, "Food"))

	_, err := svc.Update(context.Background(), 1, core.CategoryRecord{ID: 99, Name: "Ghost"})
	if !errors.Is(err, core.ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestExpenseCreatePublishesEvent(t *testing.T) {
	store := newFakeExpenseStore()
	pub := &fakePublisher{}
	svc := NewExpenseService(store, pub)

	created, err := svc.Create(context.Background(), 1, core.ExpenseRecord{
		Amount:     core.Money{Cents: 500},
		Currency:   core.EUR,
		CategoryID: 1,
		Date:       core.NewDate(2025, 3, 10),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if len(pub.events) != 1 {
		t.Fatalf("got %d events, want 1", len(pub.events))
	}
	ev := pub.events[0]
	if ev.kind != amqp.ExpenseCreated || ev.id != created.ID || ev.version != 1 {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestExpenseCreateSurvivesPublishFailure(t *testing.T) {
	store := newFakeExpenseStore()
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := NewExpenseService(store, pub)

	if _, err := svc.Create(context.Background(), 1, core.ExpenseRecord{
		Amount:     core.Money{Cents: 500},
		Currency:   core.EUR,
		CategoryID: 1,
		Date:       core.NewDate(2025, 3, 10),
	}); err != nil {
		t.Fatalf("create should succeed despite publish failure, got %v", err)
	}
}

func TestExpenseCreateNilPublisher(t *testing.T) {
	svc := NewExpenseService(newFakeExpenseStore(), nil)

	if _, err := svc.Create(context.Background(), 1, core.ExpenseRecord{
		Amount:     core.Money{Cents: 500},
		Currency:   core.EUR,
		CategoryID: 1,
		Date:       core.NewDate(2025, 3, 10),
	}); err != nil {
		t.Fatalf("Create without publisher: %v", err)
	}
}

func TestExpenseCreateValidation(t *testing.T) {
	store := newFakeExpenseStore()
	svc := NewExpenseService(store, &fakePublisher{})

	_, err := svc.Create(context.Background(), 1, core.ExpenseRecord{
		Amount:     core.Money{Cents: -1},
		Currency:   core.EUR,
		CategoryID: 1,
		Date:       core.NewDate(2025, 3, 10),
	})
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if len(store.records) != 0 {
		t.Fatal("invalid expense must not be stored")
	}
}

func TestExpenseSearch(t *testing.T) {
	store := newFakeExpenseStore()
	svc := NewExpenseService(store, nil)
	ctx := context.Background()

	seed := []core.ExpenseRecord{
		{Amount: core.Money{Cents: 100}, Currency: core.EUR, CategoryID: 1, Date: core.NewDate(2025, 3, 1), Note: "weekly groceries"},
		{Amount: core.Money{Cents: 200}, Currency: core.EUR, CategoryID: 2, Date: core.NewDate(2025, 3, 5), Note: "dinner out"},
		{Amount: core.Money{Cents: 300}, Currency: core.EUR, CategoryID: 1, Date: core.NewDate(2025, 4, 1), Note: "more groceries"},
	}
	for _, rec := range seed {
		if _, err := svc.Create(ctx, 1, rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	got, meta, err := svc.Search(ctx, 1, SearchFilter{Note: "groceries"}, 1, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || meta.Total != 2 {
		t.Fatalf("note filter: got %d results, want 2", len(got))
	}

	start := core.NewDate(2025, 3, 1)
	end := core.NewDate(2025, 3, 31)
	got, _, err = svc.Search(ctx, 1, SearchFilter{Start: &start, End: &end}, 1, 10)
	if err != nil {
		t.Fatalf("Search by range: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("range filter: got %d results, want 2", len(got))
	}
}

func TestExpenseSearchSingleBound(t *testing.T) {
	store := newFakeExpenseStore()
	svc := NewExpenseService(store, nil)
	ctx := context.Background()

	seed := []core.ExpenseRecord{
		{Amount: core.Money{Cents: 100}, Currency: core.EUR, CategoryID: 1, Date: core.NewDate(2020, 1, 1)},
		{Amount: core.Money{Cents: 200}, Currency: core.EUR, CategoryID: 1, Date: core.NewDate(2024, 6, 1)},
		{Amount: core.Money{Cents: 300}, Currency: core.EUR, CategoryID: 1, Date: core.NewDate(2025, 2, 1)},
	}
	for _, rec := range seed {
		if _, err := svc.Create(ctx, 1, rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	start := core.NewDate(2024, 1, 1)
	got, _, err := svc.Search(ctx, 1, SearchFilter{Start: &start}, 1, 10)
	if err != nil {
		t.Fatalf("Search with start only: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("start bound alone: got %d results, want 2", len(got))
	}
	for _, rec := range got {
		if rec.Date.Before(start.Time) {
			t.Fatalf("start bound alone: got expense dated %s before %s", rec.Date, start)
		}
	}

	end := core.NewDate(2024, 12, 31)
	got, _, err = svc.Search(ctx, 1, SearchFilter{End: &end}, 1, 10)
	if err != nil {
		t.Fatalf("Search with end only: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("end bound alone: got %d results, want 2", len(got))
	}
	for _, rec := range got {
		if rec.Date.After(end.Time) {
			t.Fatalf("end bound alone: got expense dated %s after %s", rec.Date, end)
		}
	}
}

func TestExpenseSearchCategoryScope(t *testing.T) {
	catStore := &fakeCategoryStore{}
	catSvc := NewCategoryService(catStore)
	ctx := context.Background()

	food, _ := catSvc.Create(ctx, 1, core.CategoryRecord{Name: "Food"})
	groceries, _ := catSvc.Create(ctx, 1, core.CategoryRecord{Name: "Groceries", ParentID: &food.ID})
	travel, _ := catSvc.Create(ctx, 1, core.CategoryRecord{Name: "Travel"})

	store := newFakeExpenseStore()
	svc := NewExpenseService(store, nil)
	for _, rec := range []core.ExpenseRecord{
		{Amount: core.Money{Cents: 100}, Currency: core.EUR, CategoryID: food.ID, Date: core.NewDate(2025, 3, 1)},
		{Amount: core.Money{Cents: 200}, Currency: core.EUR, CategoryID: groceries.ID, Date: core.NewDate(2025, 3, 2)},
		{Amount: core.Money{Cents: 300}, Currency: core.EUR, CategoryID: travel.ID, Date: core.NewDate(2025, 3, 3)},
	} {
		if _, err := svc.Create(ctx, 1, rec); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	records, _ := catStore.ListCategories(ctx, 1)
	forest, err := core.BuildForest(records)
	if err != nil {
		t.Fatalf("BuildForest: %v", err)
	}
	core.ResolveForest(forest)

	got, _, err := svc.Search(ctx, 1, SearchFilter{CategoryID: &food.ID, Forest: forest}, 1, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("subtree scope: got %d results, want 2 (Food and Groceries)", len(got))
	}

	if _, _, err := svc.Search(ctx, 1, SearchFilter{CategoryID: ptr(99), Forest: forest}, 1, 10); !errors.Is(err, core.ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound for unknown scope, got %v", err)
	}
}

func TestExpenseSearchInvalidRange(t *testing.T) {
	svc := NewExpenseService(newFakeExpenseStore(), nil)

	start := core.NewDate(2025, 4, 1)
	end := core.NewDate(2025, 3, 1)
	_, _, err := svc.Search(context.Background(), 1, SearchFilter{Start: &start, End: &end}, 1, 10)
	if !errors.Is(err, core.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestResolveDateRange(t *testing.T) {
	today := core.NewDate(2025, 3, 15)
	d := func(y, m, day int) core.Date { return core.NewDate(y, m, day) }
	mar1 := d(2025, 3, 1)
	mar10 := d(2025, 3, 10)

	tests := []struct {
		name       string
		start, end *core.Date
		wantStart  core.Date
		wantEnd    core.Date
		wantErr    error
	}{
		{"both given", &mar1, &mar10, mar1, mar10, nil},
		{"both nil defaults to current month", nil, nil, d(2025, 3, 1), today, nil},
		{"only end collapses start", nil, &mar10, mar10, mar10, nil},
		{"only start collapses end", &mar10, nil, mar10, mar10, nil},
		{"inverted", &mar10, &mar1, core.Date{}, core.Date{}, core.ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := ResolveDateRange(tt.start, tt.end, today)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if !start.Equal(tt.wantStart.Time) || !end.Equal(tt.wantEnd.Time) {
				t.Fatalf("got %s..%s, want %s..%s", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	catStore := &fakeCategoryStore{}
	catSvc := NewCategoryService(catStore)
	ctx := context.Background()

	food, _ := catSvc.Create(ctx, 1, core.CategoryRecord{Name: "Food"})
	groceries, _ := catSvc.Create(ctx, 1, core.CategoryRecord{Name: "Groceries", ParentID: &food.ID})

	expStore := newFakeExpenseStore()
	expSvc := NewExpenseService(expStore, nil)
	expSvc.Create(ctx, 1, core.ExpenseRecord{Amount: core.Money{Cents: 5000}, Currency: core.EUR, CategoryID: groceries.ID, Date: core.NewDate(2025, 3, 5)})
	expSvc.Create(ctx, 1, core.ExpenseRecord{Amount: core.Money{Cents: 3000}, Currency: core.EUR, CategoryID: food.ID, Date: core.NewDate(2025, 3, 20)})

	svc := NewSummaryService(catStore, expStore)
	start := core.NewDate(2025, 3, 1)
	end := core.NewDate(2025, 3, 31)
	summary, err := svc.Summarize(ctx, 1, &start, &end, nil)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if summary.Total.Cents != 8000 {
		t.Fatalf("Total = %d, want 8000", summary.Total.Cents)
	}
	if got := summary.CategoryTotals["Food"]; got.Cents != 8000 {
		t.Fatalf("CategoryTotals[Food] = %d, want rollup 8000", got.Cents)
	}
	if got := summary.CategoryTotals["Food / Groceries"]; got.Cents != 5000 {
		t.Fatalf("CategoryTotals[Food / Groceries] = %d, want 5000", got.Cents)
	}
}
