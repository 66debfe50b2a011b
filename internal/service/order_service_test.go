package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"zelenka/internal/domain"
	"zelenka/internal/repository"
)

func setup(t *testing.T) (*ProductService, *CartService, *OrderService) {
	t.Helper()
	store := repository.NewMemoryStore()
	ordersRepo := repository.NewMemoryOrders(store)
	cartsRepo := repository.NewMemoryCarts(store)
	categoriesRepo := repository.NewMemoryCategories(store)
	tx := repository.NewMemoryTx(store)
	ledger := NewInventoryLedger(store)
	ps := NewProductService(store, categoriesRepo, ordersRepo, ledger)
	cs := NewCartService(cartsRepo, store)
	os := NewOrderService(store, ordersRepo, cartsRepo, ledger, tx)
	return ps, cs, os
}

var (
	user  = domain.Identity{UserID: 1}
	admin = domain.Identity{UserID: 9, Admin: true}
)

func TestPlaceOrderAndCancel(t *testing.T) {
	ctx := context.Background()
	ps, _, os := setup(t)
	p1, err := ps.Create(ctx, domain.Product{Name: "A", Price: decimal.NewFromInt(10), Stock: 5})
	if err != nil {
		t.Fatalf("create p1: %v", err)
	}
	p2, err := ps.Create(ctx, domain.Product{Name: "B", Price: decimal.NewFromInt(20), Stock: 2})
	if err != nil {
		t.Fatalf("create p2: %v", err)
	}

	o, err := os.PlaceOrder(ctx, user, []domain.OrderItem{{ProductID: p1.ID, Quantity: 3}, {ProductID: p2.ID, Quantity: 2}}, nil)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if o.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending, got %v", o.Status)
	}
	if !o.TotalAmount.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("total expected 70, got %v", o.TotalAmount)
	}

	// stocks decreased
	p1After, _ := ps.GetByID(ctx, p1.ID)
	p2After, _ := ps.GetByID(ctx, p2.ID)
	if p1After.Stock != 2 || p2After.Stock != 0 {
		t.Fatalf("stock not decreased: %v %v", p1After.Stock, p2After.Stock)
	}

	o2, err := os.Cancel(ctx, user, o.ID)
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	if o2.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled")
	}

	// stocks restored
	p1R, _ := ps.GetByID(ctx, p1.ID)
	p2R, _ := ps.GetByID(ctx, p2.ID)
	if p1R.Stock != 5 || p2R.Stock != 2 {
		t.Fatalf("stock not restored: %v %v", p1R.Stock, p2R.Stock)
	}
}

func TestPlaceOrder_NotEnoughStock(t *testing.T) {
	ctx := context.Background()
	ps, _, os := setup(t)
	p1, _ := ps.Create(ctx, domain.Product{Name: "A", Price: decimal.NewFromInt(10), Stock: 1})
	_, err := os.PlaceOrder(ctx, user, []domain.OrderItem{{ProductID: p1.ID, Quantity: 2}}, nil)
	var ise *InsufficientStockError
	if !errors.As(err, &ise) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if ise.ProductID != p1.ID || ise.Available != 1 {
		t.Fatalf("wrong error payload: %+v", ise)
	}
}

func TestPlaceOrder_AtomicRollback(t *testing.T) {
	ctx := context.Background()
	ps, _, os := setup(t)
	p1, _ := ps.Create(ctx, domain.Product{Name: "A", Price: decimal.NewFromInt(10), Stock: 10})
	p2, _ := ps.Create(ctx, domain.Product{Name: "B", Price: decimal.NewFromInt(15), Stock: 1})

	// second line fails, first reservation must be undone
	_, err := os.PlaceOrder(ctx, user, []domain.OrderItem{{ProductID: p1.ID, Quantity: 4}, {ProductID: p2.ID, Quantity: 3}}, nil)
	if err == nil {
		t.Fatalf("expected error")
	}

	p1a, _ := ps.GetByID(ctx, p1.ID)
	p2a, _ := ps.GetByID(ctx, p2.ID)
	if p1a.Stock != 10 || p2a.Stock != 1 {
		t.Fatalf("partial reservation leaked: %v %v", p1a.Stock, p2a.Stock)
	}
	orders, _ := os.ListUserOrders(ctx, user, user.UserID)
	if len(orders) != 0 {
		t.Fatalf("no order should exist after rollback")
	}
}

func TestPlaceOrder_PriceSnapshot(t *testing.T) {
	ctx := context.Background()
	ps, _, os := setup(t)
	p1, _ := ps.Create(ctx, domain.Product{Name: "A", Price: decimal.NewFromInt(10), Stock: 5})

	o, err := os.PlaceOrder(ctx, user, []domain.OrderItem{{ProductID: p1.ID, Quantity: 2}}, nil)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	// catalog price change must not affect the existing order
	p1.Price = decimal.NewFromInt(99)
	if _, err := ps.Update(ctx, *p1); err != nil {
		t.Fatalf("update product: %v", err)
	}

	got, err := os.GetOrder(ctx, user, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if !got.Details[0].UnitPrice.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unit price changed: %v", got.Details[0].UnitPrice)
	}
	if !got.TotalAmount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("total changed: %v", got.TotalAmount)
	}
}

func TestPlaceOrder_FromCart(t *testing.T) {
	ctx := context.Background()
	ps, cs, os := setup(t)
	p1, _ := ps.Create(ctx, domain.Product{Name: "A", Price: decimal.NewFromInt(10), Stock: 5})
	p2, _ := ps.Create(ctx, domain.Product{Name: "B", Price: decimal.NewFromInt(20), Stock: 5})

	if err := cs.AddItem(ctx, user.UserID, p1.ID, 2); err != nil {
		t.Fatal(err)
	}
	if err := cs.AddItem(ctx, user.UserID, p2.ID, 1); err != nil {
		t.Fatal(err)
	}

	o, err := os.PlaceOrder(ctx, user, nil, nil)
	if err != nil {
		t.Fatalf("place order from cart: %v", err)
	}
	if len(o.Details) != 2 {
		t.Fatalf("expected 2 lines, got %v", len(o.Details))
	}
	if !o.TotalAmount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("total expected 40, got %v", o.TotalAmount)
	}

	// ordered lines removed from the cart
	lines, _ := cs.Items(ctx, user.UserID)
	if len(lines) != 0 {
		t.Fatalf("cart not cleared: %+v", lines)
	}
}

func TestPlaceOrder_InvalidInput(t *testing.T) {
	ctx := context.Background()
	ps, _, os := setup(t)
	p1, _ := ps.Create(ctx, domain.Product{Name: "A", Price: decimal.NewFromInt(10), Stock: 5})

	if _, err := os.PlaceOrder(ctx, user, []domain.OrderItem{{ProductID: p1.ID, Quantity: 0}}, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
	// duplicate product in one order
	if _, err := os.PlaceOrder(ctx, user, []domain.OrderItem{{ProductID: p1.ID, Quantity: 1}, {ProductID: p1.ID, Quantity: 1}}, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	// empty cart means nothing to order
	if _, err := os.PlaceOrder(ctx, user, nil, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty cart, got %v", err)
	}
	var pnf *ProductNotFoundError
	if _, err := os.PlaceOrder(ctx, user, []domain.OrderItem{{ProductID: 999, Quantity: 1}}, nil); !errors.As(err, &pnf) {
		t.Fatalf("expected product not found, got %v", err)
	}
}

func TestCancel_DuplicateIsNoop(t *testing.T) {
	ctx := context.Background()
	ps, _, os := setup(t)
	p1, _ := ps.Create(ctx, domain.Product{Name: "A", Price: decimal.NewFromInt(10), Stock: 10})
	o, err := os.PlaceOrder(ctx, user, []domain.OrderItem{{ProductID: p1.ID, Quantity: 2}}, nil)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	if _, err := os.Cancel(ctx, user, o.ID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	o2, err := os.Cancel(ctx, user, o.ID)
	if err != nil {
		t.Fatalf("second cancel must be a no-op, got %v", err)
	}
	if o2.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled")
	}

	// stock restored exactly once
	p1a, _ := ps.GetByID(ctx, p1.ID)
	if p1a.Stock != 10 {
		t.Fatalf("stock expected 10, got %v", p1a.Stock)
	}
}

func TestCancel_AfterAdvanceForbidden(t *testing.T) {
	ctx := context.Background()
	ps, _, os := setup(t)
	p1, _ := ps.Create(ctx, domain.Product{Name: "A", Price: decimal.NewFromInt(10), Stock: 10})
	o, _ := os.PlaceOrder(ctx, user, []domain.OrderItem{{ProductID: p1.ID, Quantity: 2}}, nil)

	if _, err := os.Advance(ctx, admin, o.ID, domain.OrderStatusProcessing); err != nil {
		t.Fatalf("advance: %v", err)
	}
	var ite *InvalidTransitionError
	if _, err := os.Cancel(ctx, user, o.ID); !errors.As(err, &ite) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if ite.From != domain.OrderStatusProcessing || ite.To != domain.OrderStatusCancelled {
		t.Fatalf("wrong transition payload: %+v", ite)
	}
	// stock untouched by failed cancel
	p1a, _ := ps.GetByID(ctx, p1.ID)
	if p1a.Stock != 8 {
		t.Fatalf("stock expected 8, got %v", p1a.Stock)
	}
}

func TestCancel_Ownership(t *testing.T) {
	ctx := context.Background()
	ps, _, os := setup(t)
	p1, _ := ps.Create(ctx, domain.Product{Name: "A", Price: decimal.NewFromInt(10), Stock: 10})
	o, _ := os.PlaceOrder(ctx, user, []domain.OrderItem{{ProductID: p1.ID, Quantity: 2}}, nil)

	stranger := domain.Identity{UserID: 2}
	if _, err := os.Cancel(ctx, stranger, o.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	// admin may cancel on behalf of the user
	if _, err := os.Cancel(ctx, admin, o.ID); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
}

func TestAdvance_Lifecycle(t *testing.T) {
	ctx := context.Background()
	ps, _, os := setup(t)
	p1, _ := ps.Create(ctx, domain.Product{Name: "A", Price: decimal.NewFromInt(10), Stock: 10})
	o, _ := os.PlaceOrder(ctx, user, []domain.OrderItem{{ProductID: p1.ID, Quantity: 1}}, nil)

	// skipping a step is rejected
	if _, err := os.Advance(ctx, admin, o.ID, domain.OrderStatusShipped); err == nil {
		t.Fatalf("expected invalid transition for skipped step")
	}
	// only admins drive the lifecycle
	if _, err := os.Advance(ctx, user, o.ID, domain.OrderStatusProcessing); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	for _, st := range []domain.OrderStatus{domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered} {
		got, err := os.Advance(ctx, admin, o.ID, st)
		if err != nil {
			t.Fatalf("advance to %v: %v", st, err)
		}
		if got.Status != st {
			t.Fatalf("status expected %v, got %v", st, got.Status)
		}
	}

	// delivered is terminal
	if _, err := os.Advance(ctx, admin, o.ID, domain.OrderStatusDelivered); err == nil {
		t.Fatalf("expected terminal state rejection")
	}
	if _, err := os.Cancel(ctx, user, o.ID); err == nil {
		t.Fatalf("delivered order must not be cancellable")
	}
	// delivery never touches stock
	p1a, _ := ps.GetByID(ctx, p1.ID)
	if p1a.Stock != 9 {
		t.Fatalf("stock expected 9, got %v", p1a.Stock)
	}
}

func TestTrack_Milestones(t *testing.T) {
	ctx := context.Background()
	ps, _, os := setup(t)
	p1, _ := ps.Create(ctx, domain.Product{Name: "A", Price: decimal.NewFromInt(10), Stock: 10})
	o, _ := os.PlaceOrder(ctx, user, []domain.OrderItem{{ProductID: p1.ID, Quantity: 1}}, nil)

	steps, err := os.Track(ctx, user, o.ID)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if len(steps) != 1 || steps[0].Status != "placed" {
		t.Fatalf("expected single placed step: %+v", steps)
	}

	if _, err := os.Advance(ctx, admin, o.ID, domain.OrderStatusProcessing); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Advance(ctx, admin, o.ID, domain.OrderStatusShipped); err != nil {
		t.Fatal(err)
	}
	steps, _ = os.Track(ctx, user, o.ID)
	if len(steps) != 3 || steps[2].Status != "shipped" {
		t.Fatalf("expected placed/processing/shipped: %+v", steps)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	ps, _, os := setup(t)
	p1, _ := ps.Create(ctx, domain.Product{Name: "A", Price: decimal.NewFromInt(10), Stock: 100})

	o1, _ := os.PlaceOrder(ctx, user, []domain.OrderItem{{ProductID: p1.ID, Quantity: 2}}, nil)
	o2, _ := os.PlaceOrder(ctx, user, []domain.OrderItem{{ProductID: p1.ID, Quantity: 3}}, nil)
	if _, err := os.Advance(ctx, admin, o1.ID, domain.OrderStatusProcessing); err != nil {
		t.Fatal(err)
	}
	// cancelled orders drop out of sales
	o3, _ := os.PlaceOrder(ctx, user, []domain.OrderItem{{ProductID: p1.ID, Quantity: 5}}, nil)
	if _, err := os.Cancel(ctx, user, o3.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stats(ctx, user); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for non-admin, got %v", err)
	}
	stats, err := os.Stats(ctx, admin)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalOrders != 3 {
		t.Fatalf("total orders expected 3, got %v", stats.TotalOrders)
	}
	if stats.PendingOrders != 1 {
		t.Fatalf("pending expected 1 (order %d), got %v", o2.ID, stats.PendingOrders)
	}
	if !stats.TotalSales.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("sales expected 50, got %v", stats.TotalSales)
	}
}

// ordersWithRival выполняет конкурирующий переход непосредственно перед
// переходом вызывающего, моделируя два одновременных запроса к одному заказу.
type ordersWithRival struct {
	repository.OrderRepository
	rival func(ctx context.Context)
	done  bool
}

func (r *ordersWithRival) UpdateStatus(ctx context.Context, o *domain.Order, to domain.OrderStatus) error {
	if !r.done {
		r.done = true
		r.rival(ctx)
	}
	return r.OrderRepository.UpdateStatus(ctx, o, to)
}

func TestCancel_ConcurrentDuplicateRestoresOnce(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	base := repository.NewMemoryOrders(store)
	cartsRepo := repository.NewMemoryCarts(store)
	tx := repository.NewMemoryTx(store)
	ledger := NewInventoryLedger(store)
	wrapped := &ordersWithRival{OrderRepository: base}
	os := NewOrderService(store, wrapped, cartsRepo, ledger, tx)

	p := domain.Product{Name: "A", Price: decimal.NewFromInt(10), Stock: 10}
	if err := store.Create(ctx, &p); err != nil {
		t.Fatal(err)
	}
	o, err := os.PlaceOrder(ctx, user, []domain.OrderItem{{ProductID: p.ID, Quantity: 2}}, nil)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	// the rival request cancels and restores the stock first
	wrapped.rival = func(ctx context.Context) {
		cur, err := base.GetByID(ctx, o.ID)
		if err != nil {
			t.Fatal(err)
		}
		if err := base.UpdateStatus(ctx, cur, domain.OrderStatusCancelled); err != nil {
			t.Fatal(err)
		}
		if err := ledger.Release(ctx, p.ID, 2); err != nil {
			t.Fatal(err)
		}
	}

	got, err := os.Cancel(ctx, user, o.ID)
	if err != nil {
		t.Fatalf("losing cancel must settle as no-op, got %v", err)
	}
	if got.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %v", got.Status)
	}

	// stock restored exactly once, not by both requests
	pa, _ := store.GetByID(ctx, p.ID)
	if pa.Stock != 10 {
		t.Fatalf("stock expected 10, got %v", pa.Stock)
	}
}

func TestAdvance_ConcurrentTransitionConflicts(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	base := repository.NewMemoryOrders(store)
	cartsRepo := repository.NewMemoryCarts(store)
	tx := repository.NewMemoryTx(store)
	ledger := NewInventoryLedger(store)
	wrapped := &ordersWithRival{OrderRepository: base}
	os := NewOrderService(store, wrapped, cartsRepo, ledger, tx)

	p := domain.Product{Name: "A", Price: decimal.NewFromInt(10), Stock: 10}
	if err := store.Create(ctx, &p); err != nil {
		t.Fatal(err)
	}
	o, err := os.PlaceOrder(ctx, user, []domain.OrderItem{{ProductID: p.ID, Quantity: 2}}, nil)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	wrapped.rival = func(ctx context.Context) {
		cur, err := base.GetByID(ctx, o.ID)
		if err != nil {
			t.Fatal(err)
		}
		if err := base.UpdateStatus(ctx, cur, domain.OrderStatusProcessing); err != nil {
			t.Fatal(err)
		}
	}

	var ite *InvalidTransitionError
	if _, err := os.Advance(ctx, admin, o.ID, domain.OrderStatusProcessing); !errors.As(err, &ite) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if ite.From != domain.OrderStatusProcessing {
		t.Fatalf("conflict must report the committed status, got %+v", ite)
	}
}
