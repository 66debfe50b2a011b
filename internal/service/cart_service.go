package service

import (
	"context"

	"github.com/shopspring/decimal"

	"zelenka/internal/repository"
)

// CartService логика корзины. Позиция уникальна по (пользователь, товар):
// повторное добавление увеличивает количество.
type CartService struct {
	carts    repository.CartRepository
	products repository.ProductRepository
}

func NewCartService(carts repository.CartRepository, products repository.ProductRepository) *CartService {
	return &CartService{carts: carts, products: products}
}

// CartLine позиция корзины, обогащённая данными товара для отображения
type CartLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int64           `json:"stock"`
	Quantity  int64           `json:"quantity"`
}

func (s *CartService) Items(ctx context.Context, userID int64) ([]CartLine, error) {
	if userID <= 0 {
		return nil, ErrInvalidInput
	}
	items, err := s.carts.Items(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]CartLine, 0, len(items))
	for _, it := range items {
		p, err := s.products.GetByID(ctx, it.ProductID)
		if err != nil {
			// product removed from the catalog, skip stale line
			continue
		}
		out = append(out, CartLine{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Stock:     p.Stock,
			Quantity:  it.Quantity,
		})
	}
	return out, nil
}

func (s *CartService) AddItem(ctx context.Context, userID, productID, qty int64) error {
	if userID <= 0 || productID <= 0 || qty <= 0 {
		return ErrInvalidInput
	}
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return err
	}
	return s.carts.AddItem(ctx, userID, productID, qty)
}

func (s *CartService) SetQuantity(ctx context.Context, userID, productID, qty int64) error {
	if userID <= 0 || productID <= 0 || qty <= 0 {
		return ErrInvalidInput
	}
	return s.carts.SetQuantity(ctx, userID, productID, qty)
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID int64) error {
	if userID <= 0 || productID <= 0 {
		return ErrInvalidInput
	}
	return s.carts.RemoveItem(ctx, userID, productID)
}

func (s *CartService) Clear(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return ErrInvalidInput
	}
	return s.carts.Clear(ctx, userID, nil)
}
