package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"zelenka/internal/domain"
)

// ErrNotFound возвращается, когда сущность не найдена
var ErrNotFound = errors.New("not found")

// ErrInsufficientStock возвращается ReserveStock, когда запаса не хватает.
// Доступный остаток возвращается первым значением.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrStaleStatus переход не применён: сохранённый статус отличается от
// ожидаемого. Конкурирующий переход успел раньше.
var ErrStaleStatus = errors.New("status changed concurrently")

// ProductFilter параметры фильтрации списка товаров
type ProductFilter struct {
	NameSubstring string
	CategoryID    *int64
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
}

// ProductRepository интерфейс репозитория товаров. Запас товара меняется
// только через ReserveStock/ReleaseStock: Update поле Stock не трогает.
type ProductRepository interface {
	Create(ctx context.Context, p *domain.Product) error
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	Update(ctx context.Context, p *domain.Product) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f ProductFilter) ([]domain.Product, error)

	// ReserveStock атомарно списывает qty, если stock >= qty.
	// При нехватке возвращает текущий остаток и ErrInsufficientStock.
	ReserveStock(ctx context.Context, id, qty int64) (int64, error)
	// ReleaseStock безусловно возвращает qty на склад.
	ReleaseStock(ctx context.Context, id, qty int64) error
}

// CategoryRepository интерфейс репозитория категорий
type CategoryRepository interface {
	Create(ctx context.Context, c *domain.Category) error
	GetByID(ctx context.Context, id int64) (*domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
}

// OrderRepository интерфейс репозитория заказов. Create сохраняет заказ
// вместе с позициями.
type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	// UpdateStatus переводит заказ из o.Status в to как compare-and-set:
	// если сохранённый статус уже не o.Status, возвращает ErrStaleStatus
	// и ничего не меняет. При успехе обновляет o.Status и o.UpdatedAt.
	UpdateStatus(ctx context.Context, o *domain.Order, to domain.OrderStatus) error
	ListByUser(ctx context.Context, userID int64) ([]domain.Order, error)
	ListAll(ctx context.Context) ([]domain.Order, error)
}

// CartRepository интерфейс корзины. Позиция уникальна по (userID, productID).
type CartRepository interface {
	Items(ctx context.Context, userID int64) ([]domain.CartItem, error)
	// AddItem добавляет qty к существующей позиции либо создаёт новую.
	AddItem(ctx context.Context, userID, productID, qty int64) error
	SetQuantity(ctx context.Context, userID, productID, qty int64) error
	RemoveItem(ctx context.Context, userID, productID int64) error
	// Clear удаляет перечисленные позиции; пустой список — всю корзину.
	Clear(ctx context.Context, userID int64, productIDs []int64) error
}

// PrescriptionRepository интерфейс репозитория рецептов
type PrescriptionRepository interface {
	Create(ctx context.Context, p *domain.Prescription) error
	GetByID(ctx context.Context, id int64) (*domain.Prescription, error)
	// Resolve записывает решение (статус и заметки), только если рецепт
	// всё ещё pending; иначе возвращает ErrStaleStatus. Конкурирующие
	// обработки одного рецепта не могут пройти обе.
	Resolve(ctx context.Context, p *domain.Prescription) error
	ListByUser(ctx context.Context, userID int64) ([]domain.Prescription, error)
	ListAll(ctx context.Context) ([]domain.Prescription, error)
}

// FeedbackRepository интерфейс репозитория отзывов
type FeedbackRepository interface {
	Create(ctx context.Context, f *domain.Feedback) error
	List(ctx context.Context) ([]domain.Feedback, error)
}

// TxManager абстракция транзакции. Вложенный вызов присоединяется к
// уже открытой транзакции. При ошибке изменения откатываются целиком.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type commitHooksKey struct{}

type commitHooks struct{ fns []func() }

func withCommitHooks(ctx context.Context) (context.Context, *commitHooks) {
	h := &commitHooks{}
	return context.WithValue(ctx, commitHooksKey{}, h), h
}

func (h *commitHooks) run() {
	for _, fn := range h.fns {
		fn()
	}
}

// OnCommit откладывает fn до фиксации объемлющей транзакции. Вне
// транзакции хуков нет, возвращается false. При откате fn не вызывается.
func OnCommit(ctx context.Context, fn func()) bool {
	h, ok := ctx.Value(commitHooksKey{}).(*commitHooks)
	if !ok {
		return false
	}
	h.fns = append(h.fns, fn)
	return true
}

// helper: case-insensitive contains
func containsIgnoreCase(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
