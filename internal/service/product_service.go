package service

import (
	"context"
	"sort"

	"zelenka/internal/domain"
	"zelenka/internal/repository"
)

// ProductService инкапсулирует бизнес-логику каталога
type ProductService struct {
	repo       repository.ProductRepository
	categories repository.CategoryRepository
	orders     repository.OrderRepository
	ledger     *InventoryLedger
}

func NewProductService(repo repository.ProductRepository, categories repository.CategoryRepository, orders repository.OrderRepository, ledger *InventoryLedger) *ProductService {
	return &ProductService{repo: repo, categories: categories, orders: orders, ledger: ledger}
}

func (s *ProductService) Create(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if p.Name == "" || p.Price.IsNegative() || p.Stock < 0 {
		return nil, ErrInvalidInput
	}
	cp := p
	if err := s.repo.Create(ctx, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *ProductService) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

func (s *ProductService) Update(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if p.ID <= 0 || p.Name == "" || p.Price.IsNegative() {
		return nil, ErrInvalidInput
	}
	cp := p
	if err := s.repo.Update(ctx, &cp); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, p.ID)
}

// AdjustStock изменяет остаток товара на delta через журнал движения
// склада: пополнение при delta > 0, списание при delta < 0. Списание ниже
// нуля отклоняется с InsufficientStockError.
func (s *ProductService) AdjustStock(ctx context.Context, id int64, delta int64) (*domain.Product, error) {
	if id <= 0 || delta == 0 {
		return nil, ErrInvalidInput
	}
	var err error
	if delta > 0 {
		err = s.ledger.Release(ctx, id, delta)
	} else {
		err = s.ledger.Reserve(ctx, id, -delta)
	}
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *ProductService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidInput
	}
	return s.repo.Delete(ctx, id)
}

func (s *ProductService) List(ctx context.Context, f repository.ProductFilter) ([]domain.Product, error) {
	return s.repo.List(ctx, f)
}

func (s *ProductService) Categories(ctx context.Context) ([]domain.Category, error) {
	return s.categories.List(ctx)
}

func (s *ProductService) CreateCategory(ctx context.Context, name string) (*domain.Category, error) {
	if name == "" {
		return nil, ErrInvalidInput
	}
	c := domain.Category{Name: name}
	if err := s.categories.Create(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// NewProducts последние добавленные товары
func (s *ProductService) NewProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = 10
	}
	all, err := s.repo.List(ctx, repository.ProductFilter{})
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// BestSellers товары, отсортированные по суммарно заказанному количеству.
// Отменённые заказы не учитываются.
func (s *ProductService) BestSellers(ctx context.Context, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = 10
	}
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	sold := make(map[int64]int64)
	for _, o := range orders {
		if o.Status == domain.OrderStatusCancelled {
			continue
		}
		for _, d := range o.Details {
			sold[d.ProductID] += d.Quantity
		}
	}
	all, err := s.repo.List(ctx, repository.ProductFilter{})
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		si, sj := sold[all[i].ID], sold[all[j].ID]
		if si == sj {
			return all[i].ID < all[j].ID
		}
		return si > sj
	})
	out := make([]domain.Product, 0, limit)
	for _, p := range all {
		if sold[p.ID] == 0 {
			break
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
