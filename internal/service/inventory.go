package service

import (
	"context"
	"errors"

	"zelenka/internal/metrics"
	"zelenka/internal/repository"
)

// InventoryLedger единственная точка изменения запаса. Все списания и
// возвраты идут через него; прямых записей в поле stock больше нигде нет.
type InventoryLedger struct {
	products repository.ProductRepository
}

func NewInventoryLedger(products repository.ProductRepository) *InventoryLedger {
	return &InventoryLedger{products: products}
}

// Reserve атомарно списывает qty со склада. При нехватке возвращает
// InsufficientStockError с доступным остатком и ничего не меняет.
func (l *InventoryLedger) Reserve(ctx context.Context, productID, qty int64) error {
	if productID <= 0 || qty <= 0 {
		return ErrInvalidInput
	}
	available, err := l.products.ReserveStock(ctx, productID, qty)
	if errors.Is(err, repository.ErrNotFound) {
		return &ProductNotFoundError{ProductID: productID}
	}
	if errors.Is(err, repository.ErrInsufficientStock) {
		metrics.StockInsufficient.Inc()
		return &InsufficientStockError{ProductID: productID, Available: available}
	}
	return err
}

// Release безусловно возвращает qty на склад. Идемпотентность — забота
// вызывающего: жизненный цикл заказа гарантирует ровно один вызов на отмену.
func (l *InventoryLedger) Release(ctx context.Context, productID, qty int64) error {
	if productID <= 0 || qty <= 0 {
		return ErrInvalidInput
	}
	err := l.products.ReleaseStock(ctx, productID, qty)
	if errors.Is(err, repository.ErrNotFound) {
		return &ProductNotFoundError{ProductID: productID}
	}
	return err
}
