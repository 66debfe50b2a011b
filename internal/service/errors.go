package service

import (
	"errors"
	"fmt"

	"zelenka/internal/domain"
)

var (
	// ErrInvalidInput данные запроса не прошли валидацию
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden у запрашивающего нет прав на операцию
	ErrForbidden = errors.New("forbidden")
	// ErrAlreadyProcessed рецепт уже был одобрен или отклонён
	ErrAlreadyProcessed = errors.New("prescription already processed")
)

// ProductNotFoundError указанный товар не существует
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// InsufficientStockError запаса не хватает; Available — текущий остаток,
// чтобы клиент мог поправить количество и повторить запрос.
type InsufficientStockError struct {
	ProductID int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: %d available", e.ProductID, e.Available)
}

// InvalidTransitionError запрошен недопустимый переход жизненного цикла
type InvalidTransitionError struct {
	From domain.OrderStatus
	To   domain.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}
