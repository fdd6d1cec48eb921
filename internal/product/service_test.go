package product

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"store-core/internal/apperr"
	"store-core/internal/cache"
	"store-core/internal/dispatch"
	"store-core/internal/lock"
)

type fakeStore struct {
	mu       sync.Mutex
	products map[string]Product
	reads    int32
	// delay widens the read-modify-write window so overlapping writers
	// would lose updates without the lock.
	delay time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{products: make(map[string]Product)}
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*Product, error) {
	atomic.AddInt32(&f.reads, 1)
	f.mu.Lock()
	p, ok := f.products[id]
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeStore) GetPage(_ context.Context, page, pageSize int) ([]Product, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all := make([]Product, 0, len(f.products))
	for _, p := range f.products {
		all = append(all, p)
	}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []Product{}, len(all), nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (f *fakeStore) Add(_ context.Context, p Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[p.ID] = p
	return nil
}

func (f *fakeStore) Update(_ context.Context, p Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.products[p.ID]; !ok {
		return apperr.New(apperr.NotFound, "product not found")
	}
	f.products[p.ID] = p
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.products[id]; !ok {
		return apperr.New(apperr.NotFound, "product not found")
	}
	delete(f.products, id)
	return nil
}

type fixture struct {
	store      *fakeStore
	dispatcher *dispatch.Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newFakeStore()
	cacheStore := cache.NewMemoryStore()
	t.Cleanup(cacheStore.Close)

	svc := NewService(store, cache.NewAside(cacheStore, nil), nil, Options{DefaultPageSize: 10, MaxPageSize: 50})
	r := dispatch.NewRegistry()
	svc.RegisterHandlers(r, dispatch.NewValidate())

	d, err := r.Build(dispatch.Options{Locks: lock.NewMemoryStore()})
	if err != nil {
		t.Fatalf("build dispatcher: %v", err)
	}
	return &fixture{store: store, dispatcher: d}
}

func (f *fixture) create(t *testing.T, name string, price int64) string {
	t.Helper()
	id, err := dispatch.Send[string](context.Background(), f.dispatcher, CreateProductCommand{Name: name, Price: price})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return id
}

func TestCreateThenGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.create(t, "Keyboard", 1500000)

	view, err := dispatch.Send[ProductView](ctx, f.dispatcher, GetProductQuery{ID: id})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Name != "Keyboard" || view.Price != 1500000 || view.Stock != 0 {
		t.Fatalf("unexpected product: %+v", view)
	}
	if view.ImageURL != nil {
		t.Errorf("expected no image url, got %q", *view.ImageURL)
	}
}

func TestGet_ServedFromCacheUntilWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, "Keyboard", 1500000)

	for i := 0; i < 3; i++ {
		if _, err := dispatch.Send[ProductView](ctx, f.dispatcher, GetProductQuery{ID: id}); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if reads := atomic.LoadInt32(&f.store.reads); reads != 1 {
		t.Fatalf("expected 1 repository read, got %d", reads)
	}

	if _, err := dispatch.Send[ProductView](ctx, f.dispatcher, UpdateProductCommand{ID: id, Name: "Mechanical Keyboard", Price: 1750000}); err != nil {
		t.Fatalf("update: %v", err)
	}

	view, err := dispatch.Send[ProductView](ctx, f.dispatcher, GetProductQuery{ID: id})
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if view.Name != "Mechanical Keyboard" || view.Price != 1750000 {
		t.Fatalf("stale read after update: %+v", view)
	}
}

func TestList_InvalidatedByCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "Keyboard", 1500000)

	page, err := dispatch.Send[ProductPage](ctx, f.dispatcher, GetProductsQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Meta.Total != 1 || page.Meta.Page != 1 || page.Meta.PageSize != 10 {
		t.Fatalf("unexpected meta: %+v", page.Meta)
	}

	f.create(t, "Mouse", 450000)

	page, err = dispatch.Send[ProductPage](ctx, f.dispatcher, GetProductsQuery{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Meta.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("expected fresh page with 2 items, got %+v", page.Meta)
	}
}

func TestList_ClampsPageSize(t *testing.T) {
	f := newFixture(t)

	page, err := dispatch.Send[ProductPage](context.Background(), f.dispatcher, GetProductsQuery{Page: -2, PageSize: 500})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Meta.Page != 1 || page.Meta.PageSize != 50 {
		t.Fatalf("expected page 1 size 50, got %+v", page.Meta)
	}
	if page.Meta.TotalPages != 0 {
		t.Errorf("expected no pages for an empty catalog, got %d", page.Meta.TotalPages)
	}
}

func TestGet_MissingIsNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := dispatch.Send[ProductView](context.Background(), f.dispatcher, GetProductQuery{ID: "missing"})
	if !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestCreate_ValidationMessages(t *testing.T) {
	f := newFixture(t)
	bad := "not a url"

	_, err := dispatch.Send[string](context.Background(), f.dispatcher, CreateProductCommand{Name: "ab", Price: -1, ImageURL: &bad})
	if !apperr.Is(err, apperr.ValidationFailed) {
		t.Fatalf("expected validation failure, got %v", err)
	}

	_, details := apperr.Outward(err)
	want := []string{
		"product name must be between 3 and 200 characters",
		"product price must not be negative",
		"image url must be an absolute url",
	}
	if len(details) != len(want) {
		t.Fatalf("expected %v, got %v", want, details)
	}
	for i := range want {
		if details[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, details[i], want[i])
		}
	}
	if len(f.store.products) != 0 {
		t.Error("invalid product must not be stored")
	}
}

func TestAdjustStock_NegativeIsDomainViolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, "Keyboard", 1500000)

	_, err := dispatch.Send[ProductView](ctx, f.dispatcher, AdjustStockCommand{ID: id, Delta: -1})
	if !apperr.Is(err, apperr.DomainRuleViolation) {
		t.Fatalf("expected domain rule violation, got %v", err)
	}

	_, err = dispatch.Send[ProductView](ctx, f.dispatcher, AdjustStockCommand{ID: id, Delta: 0})
	if !apperr.Is(err, apperr.ValidationFailed) {
		t.Fatalf("expected validation failure for zero delta, got %v", err)
	}
}

func TestAdjustStock_ConcurrentUpdatesAreNeverLost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, "Keyboard", 1500000)
	f.store.delay = 5 * time.Millisecond

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := dispatch.Send[ProductView](ctx, f.dispatcher, AdjustStockCommand{ID: id, Delta: 1}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("adjust stock: %v", err)
	}

	f.store.delay = 0
	view, err := dispatch.Send[ProductView](ctx, f.dispatcher, GetProductQuery{ID: id})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Stock != writers {
		t.Fatalf("expected stock %d, got %d", writers, view.Stock)
	}
}

func TestRemove_ThenGetIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, "Keyboard", 1500000)

	if _, err := dispatch.Send[ProductView](ctx, f.dispatcher, GetProductQuery{ID: id}); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if _, err := dispatch.Send[bool](ctx, f.dispatcher, RemoveProductCommand{ID: id}); err != nil {
		t.Fatalf("remove: %v", err)
	}

	_, err := dispatch.Send[ProductView](ctx, f.dispatcher, GetProductQuery{ID: id})
	if !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected not_found after remove, got %v", err)
	}

	_, err = dispatch.Send[bool](ctx, f.dispatcher, RemoveProductCommand{ID: id})
	if !apperr.Is(err, apperr.NotFound) {
		t.Fatalf("expected not_found on second remove, got %v", err)
	}
}

// cancelingStore ends the request context right after a committed update.
type cancelingStore struct {
	*fakeStore
	cancel context.CancelFunc
}

func (s cancelingStore) Update(ctx context.Context, p Product) error {
	err := s.fakeStore.Update(ctx, p)
	s.cancel()
	return err
}

// strictCache fails every call made on an ended context, like a network client.
type strictCache struct {
	*cache.MemoryStore
}

func (c strictCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return c.MemoryStore.Get(ctx, key)
}

func (c strictCache) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.MemoryStore.Remove(ctx, keys...)
}

func TestUpdate_InvalidatesEvenWhenClientLeavesAfterCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	repo := cancelingStore{fakeStore: newFakeStore(), cancel: cancel}
	mem := cache.NewMemoryStore()
	t.Cleanup(mem.Close)

	svc := NewService(repo, cache.NewAside(strictCache{mem}, nil), nil, Options{DefaultPageSize: 10, MaxPageSize: 50})
	r := dispatch.NewRegistry()
	svc.RegisterHandlers(r, dispatch.NewValidate())
	d, err := r.Build(dispatch.Options{Locks: lock.NewMemoryStore()})
	if err != nil {
		t.Fatalf("build dispatcher: %v", err)
	}

	id, err := dispatch.Send[string](context.Background(), d, CreateProductCommand{Name: "Keyboard", Price: 1500000})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := dispatch.Send[ProductView](context.Background(), d, GetProductQuery{ID: id}); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	if _, err := dispatch.Send[ProductView](ctx, d, UpdateProductCommand{ID: id, Name: "Keyboard X", Price: 1750000}); err != nil {
		t.Fatalf("update: %v", err)
	}

	view, err := dispatch.Send[ProductView](context.Background(), d, GetProductQuery{ID: id})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Name != "Keyboard X" || view.Price != 1750000 {
		t.Fatalf("stale read after a successful update: %+v", view)
	}
}
