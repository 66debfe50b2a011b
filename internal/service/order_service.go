package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"zelenka/internal/domain"
	"zelenka/internal/metrics"
	"zelenka/internal/repository"
)

// OrderService реализует оформление заказа и его жизненный цикл
type OrderService struct {
	products repository.ProductRepository
	orders   repository.OrderRepository
	carts    repository.CartRepository
	ledger   *InventoryLedger
	tx       repository.TxManager
}

func NewOrderService(products repository.ProductRepository, orders repository.OrderRepository, carts repository.CartRepository, ledger *InventoryLedger, tx repository.TxManager) *OrderService {
	return &OrderService{products: products, orders: orders, carts: carts, ledger: ledger, tx: tx}
}

// PlaceOrder оформляет заказ по списку позиций. Пустой список означает
// «вся корзина». Заявленная клиентом сумма declaredTotal только
// информационная: итог всегда пересчитывается на сервере.
func (s *OrderService) PlaceOrder(ctx context.Context, who domain.Identity, items []domain.OrderItem, declaredTotal *decimal.Decimal) (*domain.Order, error) {
	if len(items) == 0 {
		lines, err := s.carts.Items(ctx, who.UserID)
		if err != nil {
			return nil, err
		}
		for _, l := range lines {
			items = append(items, domain.OrderItem{ProductID: l.ProductID, Quantity: l.Quantity})
		}
	}
	o, err := s.place(ctx, who.UserID, items, nil)
	if err != nil {
		return nil, err
	}
	if declaredTotal != nil && !declaredTotal.Equal(o.TotalAmount) {
		log.WithFields(log.Fields{
			"order_id": o.ID,
			"declared": declaredTotal.String(),
			"computed": o.TotalAmount.String(),
		}).Warn("declared order total does not match computed total")
	}
	return o, nil
}

// PlaceForPrescription альтернативная точка входа в оформление для моста
// «рецепт → заказ»: те же проверки и та же транзакция, что и у PlaceOrder,
// плюс связь с рецептом.
func (s *OrderService) PlaceForPrescription(ctx context.Context, userID int64, items []domain.OrderItem, prescriptionID int64) (*domain.Order, error) {
	if prescriptionID <= 0 {
		return nil, ErrInvalidInput
	}
	return s.place(ctx, userID, items, &prescriptionID)
}

// place ядро оформления: проверка, резервирование, фиксация цен, создание
// заказа и очистка корзины — всё в одной транзакции, либо ничего.
func (s *OrderService) place(ctx context.Context, userID int64, items []domain.OrderItem, prescriptionID *int64) (*domain.Order, error) {
	if userID <= 0 || len(items) == 0 {
		return nil, ErrInvalidInput
	}
	seen := make(map[int64]bool, len(items))
	for _, it := range items {
		if it.ProductID <= 0 || it.Quantity <= 0 || seen[it.ProductID] {
			return nil, ErrInvalidInput
		}
		seen[it.ProductID] = true
	}

	// read-only validation pass: cheap rejection before any mutation
	for _, it := range items {
		p, err := s.products.GetByID(ctx, it.ProductID)
		if err == repository.ErrNotFound {
			return nil, &ProductNotFoundError{ProductID: it.ProductID}
		}
		if err != nil {
			return nil, err
		}
		if p.Stock < it.Quantity {
			return nil, &InsufficientStockError{ProductID: it.ProductID, Available: p.Stock}
		}
	}

	var created *domain.Order
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		total := decimal.Zero
		details := make([]domain.OrderDetail, 0, len(items))
		productIDs := make([]int64, 0, len(items))
		for _, it := range items {
			// snapshot the price before reserving
			p, err := s.products.GetByID(ctx, it.ProductID)
			if err == repository.ErrNotFound {
				return &ProductNotFoundError{ProductID: it.ProductID}
			}
			if err != nil {
				return err
			}
			// a concurrent checkout may have won the race since validation;
			// a failed reserve aborts and rolls back the whole order
			if err := s.ledger.Reserve(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
			details = append(details, domain.OrderDetail{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: p.Price,
			})
			total = total.Add(p.Price.Mul(decimal.NewFromInt(it.Quantity)))
			productIDs = append(productIDs, it.ProductID)
		}

		o := domain.Order{
			UserID:         userID,
			Status:         domain.OrderStatusPending,
			TotalAmount:    total,
			PrescriptionID: prescriptionID,
			Details:        details,
		}
		if err := s.orders.Create(ctx, &o); err != nil {
			return err
		}
		if err := s.carts.Clear(ctx, userID, productIDs); err != nil {
			return err
		}
		created = &o
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.OrdersTotal.WithLabelValues(string(domain.OrderStatusPending)).Inc()
	log.WithFields(log.Fields{
		"order_id": created.ID,
		"user_id":  userID,
		"total":    created.TotalAmount.String(),
		"lines":    len(created.Details),
	}).Info("order placed")
	return created, nil
}

// GetOrder возвращает заказ; доступен владельцу или администратору
func (s *OrderService) GetOrder(ctx context.Context, who domain.Identity, id int64) (*domain.Order, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !who.Owns(o.UserID) {
		return nil, ErrForbidden
	}
	return o, nil
}

func (s *OrderService) ListUserOrders(ctx context.Context, who domain.Identity, userID int64) ([]domain.Order, error) {
	if !who.Owns(userID) {
		return nil, ErrForbidden
	}
	return s.orders.ListByUser(ctx, userID)
}

func (s *OrderService) ListAllOrders(ctx context.Context, who domain.Identity) ([]domain.Order, error) {
	if !who.Admin {
		return nil, ErrForbidden
	}
	return s.orders.ListAll(ctx)
}

// Cancel отменяет заказ и возвращает запас. Возврат происходит ровно один
// раз — на переходе pending -> cancelled; повторная отмена уже отменённого
// заказа ничего не меняет.
func (s *OrderService) Cancel(ctx context.Context, who domain.Identity, id int64) (*domain.Order, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	var updated *domain.Order
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !who.Owns(o.UserID) {
			return ErrForbidden
		}
		if o.Status == domain.OrderStatusCancelled {
			// duplicate cancel: terminal state, stock already restored
			updated = o
			return nil
		}
		if !o.Status.CanCancel() {
			return &InvalidTransitionError{From: o.Status, To: domain.OrderStatusCancelled}
		}
		err = s.orders.UpdateStatus(ctx, o, domain.OrderStatusCancelled)
		if errors.Is(err, repository.ErrStaleStatus) {
			// lost the race: re-read and redo the decision against the
			// committed status; stock is never released on this path
			cur, err := s.orders.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if cur.Status == domain.OrderStatusCancelled {
				updated = cur
				return nil
			}
			return &InvalidTransitionError{From: cur.Status, To: domain.OrderStatusCancelled}
		}
		if err != nil {
			return err
		}
		// restore exactly what was reserved at placement
		for _, d := range o.Details {
			if err := s.ledger.Release(ctx, d.ProductID, d.Quantity); err != nil {
				return err
			}
		}
		updated = o
		metrics.OrdersTotal.WithLabelValues(string(domain.OrderStatusCancelled)).Inc()
		log.WithFields(log.Fields{
			"order_id": o.ID,
			"user_id":  o.UserID,
		}).Info("order cancelled")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Advance переводит заказ на следующий шаг жизненного цикла. Только для
// администратора; допустим лишь непосредственный следующий статус.
func (s *OrderService) Advance(ctx context.Context, who domain.Identity, id int64, target domain.OrderStatus) (*domain.Order, error) {
	if id <= 0 || !target.Valid() {
		return nil, ErrInvalidInput
	}
	if !who.Admin {
		return nil, ErrForbidden
	}
	var updated *domain.Order
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !o.Status.CanAdvanceTo(target) {
			return &InvalidTransitionError{From: o.Status, To: target}
		}
		err = s.orders.UpdateStatus(ctx, o, target)
		if errors.Is(err, repository.ErrStaleStatus) {
			cur, err := s.orders.GetByID(ctx, id)
			if err != nil {
				return err
			}
			return &InvalidTransitionError{From: cur.Status, To: target}
		}
		if err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.OrdersTotal.WithLabelValues(string(target)).Inc()
	return updated, nil
}

// TrackingStep веха отслеживания заказа
type TrackingStep struct {
	Status      string    `json:"status"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// Track проекция для отображения: вехи восстанавливаются из текущего
// статуса и пары created_at/updated_at, история переходов не хранится.
func (s *OrderService) Track(ctx context.Context, who domain.Identity, id int64) ([]TrackingStep, error) {
	o, err := s.GetOrder(ctx, who, id)
	if err != nil {
		return nil, err
	}
	steps := []TrackingStep{{
		Status:      "placed",
		Description: "Your order has been placed.",
		Timestamp:   o.CreatedAt,
	}}
	reached := func(st domain.OrderStatus) bool {
		order := map[domain.OrderStatus]int{
			domain.OrderStatusPending:    0,
			domain.OrderStatusProcessing: 1,
			domain.OrderStatusShipped:    2,
			domain.OrderStatusDelivered:  3,
		}
		cur, ok := order[o.Status]
		return ok && cur >= order[st]
	}
	if reached(domain.OrderStatusProcessing) {
		steps = append(steps, TrackingStep{Status: "processing", Description: "Your order is being processed.", Timestamp: o.UpdatedAt})
	}
	if reached(domain.OrderStatusShipped) {
		steps = append(steps, TrackingStep{Status: "shipped", Description: "Your order has been shipped.", Timestamp: o.UpdatedAt})
	}
	if reached(domain.OrderStatusDelivered) {
		steps = append(steps, TrackingStep{Status: "delivered", Description: "Your order has been delivered.", Timestamp: o.UpdatedAt})
	}
	if o.Status == domain.OrderStatusCancelled {
		steps = append(steps, TrackingStep{Status: "cancelled", Description: "Your order has been cancelled.", Timestamp: o.UpdatedAt})
	}
	return steps, nil
}

// AdminStats сводка для панели администратора
type AdminStats struct {
	TotalSales      decimal.Decimal `json:"total_sales"`
	TotalOrders     int             `json:"total_orders"`
	PendingOrders   int             `json:"pending_orders"`
	DeliveredOrders int             `json:"delivered_orders"`
	RecentOrders    []domain.Order  `json:"recent_orders"`
}

func (s *OrderService) Stats(ctx context.Context, who domain.Identity) (*AdminStats, error) {
	if !who.Admin {
		return nil, ErrForbidden
	}
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	stats := AdminStats{TotalSales: decimal.Zero, TotalOrders: len(orders)}
	for _, o := range orders {
		switch o.Status {
		case domain.OrderStatusCancelled:
			continue
		case domain.OrderStatusPending:
			stats.PendingOrders++
		case domain.OrderStatusDelivered:
			stats.DeliveredOrders++
		}
		stats.TotalSales = stats.TotalSales.Add(o.TotalAmount)
	}
	recent := orders
	if len(recent) > 5 {
		recent = recent[:5]
	}
	stats.RecentOrders = recent
	return &stats, nil
}
