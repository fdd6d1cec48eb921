package product

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"store-core/internal/apperr"
	"store-core/internal/cache"
	"store-core/internal/dispatch"
	"store-core/internal/observability"
)

const (
	itemTTL = 5 * time.Minute
	pageTTL = 2 * time.Minute

	// invalidatedPages is how many leading list pages are dropped per page
	// size after a write. Deeper pages expire by TTL.
	invalidatedPages = 3
)

func itemKey(id string) string {
	return "product:" + id
}

func pageKey(page, pageSize int) string {
	return fmt.Sprintf("products:paged:%d:%d", page, pageSize)
}

type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

type Service struct {
	repo   Store
	cache  *cache.Aside
	logger *observability.Logger
	opts   Options
	now    func() time.Time
}

func NewService(repo Store, aside *cache.Aside, logger *observability.Logger, opts Options) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if aside == nil {
		aside = cache.NewAside(nil, logger)
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 10
	}
	if opts.MaxPageSize < opts.DefaultPageSize {
		opts.MaxPageSize = opts.DefaultPageSize
	}
	return &Service{
		repo:   repo,
		cache:  aside,
		logger: logger,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RegisterHandlers wires every product request into the dispatcher registry.
func (s *Service) RegisterHandlers(r *dispatch.Registry, validate *validator.Validate) {
	dispatch.Handle(r, s.create)
	dispatch.Handle(r, s.get)
	dispatch.Handle(r, s.list)
	dispatch.Handle(r, s.update)
	dispatch.Handle(r, s.remove)
	dispatch.Handle(r, s.adjustStock)

	dispatch.Validate[CreateProductCommand](r, dispatch.NewStructValidator[CreateProductCommand](validate, validationMessages))
	dispatch.Validate[GetProductQuery](r, dispatch.NewStructValidator[GetProductQuery](validate, validationMessages))
	dispatch.Validate[UpdateProductCommand](r, dispatch.NewStructValidator[UpdateProductCommand](validate, validationMessages))
	dispatch.Validate[RemoveProductCommand](r, dispatch.NewStructValidator[RemoveProductCommand](validate, validationMessages))
	dispatch.Validate[AdjustStockCommand](r,
		dispatch.NewStructValidator[AdjustStockCommand](validate, validationMessages),
		dispatch.ValidatorFunc[AdjustStockCommand](func(_ context.Context, c AdjustStockCommand) []string {
			if c.Delta == 0 {
				return []string{"stock delta must not be zero"}
			}
			return nil
		}),
	)
}

func (s *Service) create(ctx context.Context, cmd CreateProductCommand) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate product id: %w", err)
	}

	now := s.now()
	p := Product{
		ID:        id.String(),
		Name:      cmd.Name,
		Price:     cmd.Price,
		Stock:     0,
		ImageURL:  cmd.ImageURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Add(ctx, p); err != nil {
		return "", err
	}

	s.cache.Invalidate(ctx, s.pageKeys()...)
	s.logger.Info("product_created", map[string]any{"product_id": p.ID})
	return p.ID, nil
}

func (s *Service) get(ctx context.Context, q GetProductQuery) (ProductView, error) {
	return cache.Read(ctx, s.cache, itemKey(q.ID), itemTTL, func(ctx context.Context) (ProductView, error) {
		p, err := s.repo.GetByID(ctx, q.ID)
		if err != nil {
			return ProductView{}, err
		}
		if p == nil {
			return ProductView{}, apperr.New(apperr.NotFound, "product not found")
		}
		return toView(*p), nil
	})
}

func (s *Service) list(ctx context.Context, q GetProductsQuery) (ProductPage, error) {
	page, pageSize := s.normalize(q.Page, q.PageSize)

	return cache.Read(ctx, s.cache, pageKey(page, pageSize), pageTTL, func(ctx context.Context) (ProductPage, error) {
		items, total, err := s.repo.GetPage(ctx, page, pageSize)
		if err != nil {
			return ProductPage{}, err
		}

		views := make([]ProductView, 0, len(items))
		for _, p := range items {
			views = append(views, toView(p))
		}
		return ProductPage{Items: views, Meta: newMeta(page, pageSize, total)}, nil
	})
}

func (s *Service) update(ctx context.Context, cmd UpdateProductCommand) (ProductView, error) {
	p, err := s.load(ctx, cmd.ID)
	if err != nil {
		return ProductView{}, err
	}

	p.Update(cmd.Name, cmd.Price, cmd.ImageURL, s.now())
	if err := s.repo.Update(ctx, *p); err != nil {
		return ProductView{}, err
	}

	s.invalidateProduct(ctx, p.ID)
	s.logger.Info("product_updated", map[string]any{"product_id": p.ID})
	return toView(*p), nil
}

func (s *Service) remove(ctx context.Context, cmd RemoveProductCommand) (bool, error) {
	if _, err := s.load(ctx, cmd.ID); err != nil {
		return false, err
	}
	if err := s.repo.Delete(ctx, cmd.ID); err != nil {
		return false, err
	}

	s.invalidateProduct(ctx, cmd.ID)
	s.logger.Info("product_removed", map[string]any{"product_id": cmd.ID})
	return true, nil
}

func (s *Service) adjustStock(ctx context.Context, cmd AdjustStockCommand) (ProductView, error) {
	p, err := s.load(ctx, cmd.ID)
	if err != nil {
		return ProductView{}, err
	}

	if err := p.AdjustStock(cmd.Delta, s.now()); err != nil {
		return ProductView{}, err
	}
	if err := s.repo.Update(ctx, *p); err != nil {
		return ProductView{}, err
	}

	s.invalidateProduct(ctx, p.ID)
	s.logger.Info("product_stock_adjusted", map[string]any{
		"product_id": p.ID,
		"delta":      cmd.Delta,
		"stock":      p.Stock,
	})
	return toView(*p), nil
}

// load reads straight from the repository; writes never trust the cache.
func (s *Service) load(ctx context.Context, id string) (*Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.New(apperr.NotFound, "product not found")
	}
	return p, nil
}

func (s *Service) normalize(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.opts.DefaultPageSize
	}
	if pageSize > s.opts.MaxPageSize {
		pageSize = s.opts.MaxPageSize
	}
	return page, pageSize
}

func (s *Service) invalidateProduct(ctx context.Context, id string) {
	s.cache.Invalidate(ctx, append([]string{itemKey(id)}, s.pageKeys()...)...)
}

func (s *Service) pageKeys() []string {
	sizes := []int{s.opts.DefaultPageSize}
	if s.opts.MaxPageSize != s.opts.DefaultPageSize {
		sizes = append(sizes, s.opts.MaxPageSize)
	}

	keys := make([]string, 0, len(sizes)*invalidatedPages)
	for _, size := range sizes {
		for page := 1; page <= invalidatedPages; page++ {
			keys = append(keys, pageKey(page, size))
		}
	}
	return keys
}
