package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"zelenka/internal/domain"
)

// MemoryStore объединённое in-memory хранилище и простой генератор ID
type MemoryStore struct {
	mu              sync.RWMutex
	nextProdID      int64
	nextOrderID     int64
	nextDetailID    int64
	nextCategoryID  int64
	nextPrescID     int64
	nextFeedbackID  int64
	productsByID    map[int64]domain.Product
	ordersByID      map[int64]domain.Order
	categoriesByID  map[int64]domain.Category
	prescByID       map[int64]domain.Prescription
	feedbackByID    map[int64]domain.Feedback
	cartsByUser     map[int64]map[int64]int64 // userID -> productID -> qty
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextProdID:     1,
		nextOrderID:    1,
		nextDetailID:   1,
		nextCategoryID: 1,
		nextPrescID:    1,
		nextFeedbackID: 1,
		productsByID:   make(map[int64]domain.Product),
		ordersByID:     make(map[int64]domain.Order),
		categoriesByID: make(map[int64]domain.Category),
		prescByID:      make(map[int64]domain.Prescription),
		feedbackByID:   make(map[int64]domain.Feedback),
		cartsByUser:    make(map[int64]map[int64]int64),
	}
}

// transaction-aware locking helpers
type txKey struct{}

func isTx(ctx context.Context) bool {
	v := ctx.Value(txKey{})
	if v == nil {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func (m *MemoryStore) rlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RLock()
	}
}
func (m *MemoryStore) runlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RUnlock()
	}
}
func (m *MemoryStore) wlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Lock()
	}
}
func (m *MemoryStore) wunlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Unlock()
	}
}

// snapshot копирует всё состояние; вызывается под write-блокировкой
type memSnapshot struct {
	nextProdID     int64
	nextOrderID    int64
	nextDetailID   int64
	nextCategoryID int64
	nextPrescID    int64
	nextFeedbackID int64
	productsByID   map[int64]domain.Product
	ordersByID     map[int64]domain.Order
	categoriesByID map[int64]domain.Category
	prescByID      map[int64]domain.Prescription
	feedbackByID   map[int64]domain.Feedback
	cartsByUser    map[int64]map[int64]int64
}

func (m *MemoryStore) snapshot() memSnapshot {
	s := memSnapshot{
		nextProdID:     m.nextProdID,
		nextOrderID:    m.nextOrderID,
		nextDetailID:   m.nextDetailID,
		nextCategoryID: m.nextCategoryID,
		nextPrescID:    m.nextPrescID,
		nextFeedbackID: m.nextFeedbackID,
		productsByID:   make(map[int64]domain.Product, len(m.productsByID)),
		ordersByID:     make(map[int64]domain.Order, len(m.ordersByID)),
		categoriesByID: make(map[int64]domain.Category, len(m.categoriesByID)),
		prescByID:      make(map[int64]domain.Prescription, len(m.prescByID)),
		feedbackByID:   make(map[int64]domain.Feedback, len(m.feedbackByID)),
		cartsByUser:    make(map[int64]map[int64]int64, len(m.cartsByUser)),
	}
	for k, v := range m.productsByID {
		s.productsByID[k] = v
	}
	for k, v := range m.ordersByID {
		cp := v
		cp.Details = append([]domain.OrderDetail(nil), v.Details...)
		s.ordersByID[k] = cp
	}
	for k, v := range m.categoriesByID {
		s.categoriesByID[k] = v
	}
	for k, v := range m.prescByID {
		s.prescByID[k] = v
	}
	for k, v := range m.feedbackByID {
		s.feedbackByID[k] = v
	}
	for u, items := range m.cartsByUser {
		cp := make(map[int64]int64, len(items))
		for p, q := range items {
			cp[p] = q
		}
		s.cartsByUser[u] = cp
	}
	return s
}

func (m *MemoryStore) restore(s memSnapshot) {
	m.nextProdID = s.nextProdID
	m.nextOrderID = s.nextOrderID
	m.nextDetailID = s.nextDetailID
	m.nextCategoryID = s.nextCategoryID
	m.nextPrescID = s.nextPrescID
	m.nextFeedbackID = s.nextFeedbackID
	m.productsByID = s.productsByID
	m.ordersByID = s.ordersByID
	m.categoriesByID = s.categoriesByID
	m.prescByID = s.prescByID
	m.feedbackByID = s.feedbackByID
	m.cartsByUser = s.cartsByUser
}

// Ensure interfaces
var _ ProductRepository = (*MemoryStore)(nil)

// ProductRepository implementation
func (m *MemoryStore) Create(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p.ID = m.nextProdID
	m.nextProdID++
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.productsByID[p.ID] = *p
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	p, ok := m.productsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	// return copy
	cp := p
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	cur, ok := m.productsByID[p.ID]
	if !ok {
		return ErrNotFound
	}
	// stock is owned by ReserveStock/ReleaseStock
	upd := *p
	upd.Stock = cur.Stock
	upd.CreatedAt = cur.CreatedAt
	m.productsByID[p.ID] = upd
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id int64) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if _, ok := m.productsByID[id]; !ok {
		return ErrNotFound
	}
	delete(m.productsByID, id)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	out := make([]domain.Product, 0)
	for _, p := range m.productsByID {
		if !containsIgnoreCase(p.Name, f.NameSubstring) {
			continue
		}
		if f.CategoryID != nil && p.CategoryID != *f.CategoryID {
			continue
		}
		if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
			continue
		}
		if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ReserveStock(ctx context.Context, id, qty int64) (int64, error) {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p, ok := m.productsByID[id]
	if !ok {
		return 0, ErrNotFound
	}
	if p.Stock < qty {
		return p.Stock, ErrInsufficientStock
	}
	p.Stock -= qty
	m.productsByID[id] = p
	return p.Stock, nil
}

func (m *MemoryStore) ReleaseStock(ctx context.Context, id, qty int64) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p, ok := m.productsByID[id]
	if !ok {
		return ErrNotFound
	}
	p.Stock += qty
	m.productsByID[id] = p
	return nil
}

// OrderRepository implementation on wrapper type
type MemoryOrders struct{ store *MemoryStore }

func NewMemoryOrders(store *MemoryStore) *MemoryOrders { return &MemoryOrders{store: store} }

var _ OrderRepository = (*MemoryOrders)(nil)

func (mo *MemoryOrders) Create(ctx context.Context, o *domain.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	o.ID = mo.store.nextOrderID
	mo.store.nextOrderID++
	o.CreatedAt = time.Now().UTC()
	o.UpdatedAt = o.CreatedAt
	for i := range o.Details {
		o.Details[i].ID = mo.store.nextDetailID
		mo.store.nextDetailID++
		o.Details[i].OrderID = o.ID
	}
	cp := *o
	cp.Details = append([]domain.OrderDetail(nil), o.Details...)
	mo.store.ordersByID[o.ID] = cp
	return nil
}

func (mo *MemoryOrders) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	o, ok := mo.store.ordersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := o
	cp.Details = append([]domain.OrderDetail(nil), o.Details...)
	return &cp, nil
}

func (mo *MemoryOrders) UpdateStatus(ctx context.Context, o *domain.Order, to domain.OrderStatus) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	cur, ok := mo.store.ordersByID[o.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != o.Status {
		return ErrStaleStatus
	}
	// details are immutable after creation
	cur.Status = to
	cur.UpdatedAt = time.Now().UTC()
	mo.store.ordersByID[o.ID] = cur
	o.Status = to
	o.UpdatedAt = cur.UpdatedAt
	return nil
}

func (mo *MemoryOrders) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	out := make([]domain.Order, 0)
	for _, o := range mo.store.ordersByID {
		if o.UserID != userID {
			continue
		}
		cp := o
		cp.Details = append([]domain.OrderDetail(nil), o.Details...)
		out = append(out, cp)
	}
	sortOrdersNewestFirst(out)
	return out, nil
}

func (mo *MemoryOrders) ListAll(ctx context.Context) ([]domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	out := make([]domain.Order, 0, len(mo.store.ordersByID))
	for _, o := range mo.store.ordersByID {
		cp := o
		cp.Details = append([]domain.OrderDetail(nil), o.Details...)
		out = append(out, cp)
	}
	sortOrdersNewestFirst(out)
	return out, nil
}

func sortOrdersNewestFirst(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

// CartRepository implementation
type MemoryCarts struct{ store *MemoryStore }

func NewMemoryCarts(store *MemoryStore) *MemoryCarts { return &MemoryCarts{store: store} }

var _ CartRepository = (*MemoryCarts)(nil)

func (mc *MemoryCarts) Items(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	items := mc.store.cartsByUser[userID]
	out := make([]domain.CartItem, 0, len(items))
	for pid, qty := range items {
		out = append(out, domain.CartItem{ProductID: pid, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (mc *MemoryCarts) AddItem(ctx context.Context, userID, productID, qty int64) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	items := mc.store.cartsByUser[userID]
	if items == nil {
		items = make(map[int64]int64)
		mc.store.cartsByUser[userID] = items
	}
	items[productID] += qty
	return nil
}

func (mc *MemoryCarts) SetQuantity(ctx context.Context, userID, productID, qty int64) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	items := mc.store.cartsByUser[userID]
	if _, ok := items[productID]; !ok {
		return ErrNotFound
	}
	items[productID] = qty
	return nil
}

func (mc *MemoryCarts) RemoveItem(ctx context.Context, userID, productID int64) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	items := mc.store.cartsByUser[userID]
	if _, ok := items[productID]; !ok {
		return ErrNotFound
	}
	delete(items, productID)
	return nil
}

func (mc *MemoryCarts) Clear(ctx context.Context, userID int64, productIDs []int64) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	if len(productIDs) == 0 {
		delete(mc.store.cartsByUser, userID)
		return nil
	}
	items := mc.store.cartsByUser[userID]
	for _, pid := range productIDs {
		delete(items, pid)
	}
	return nil
}

// CategoryRepository implementation
type MemoryCategories struct{ store *MemoryStore }

func NewMemoryCategories(store *MemoryStore) *MemoryCategories {
	return &MemoryCategories{store: store}
}

var _ CategoryRepository = (*MemoryCategories)(nil)

func (mc *MemoryCategories) Create(ctx context.Context, c *domain.Category) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	c.ID = mc.store.nextCategoryID
	mc.store.nextCategoryID++
	mc.store.categoriesByID[c.ID] = *c
	return nil
}

func (mc *MemoryCategories) GetByID(ctx context.Context, id int64) (*domain.Category, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	c, ok := mc.store.categoriesByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := c
	return &cp, nil
}

func (mc *MemoryCategories) List(ctx context.Context) ([]domain.Category, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	out := make([]domain.Category, 0, len(mc.store.categoriesByID))
	for _, c := range mc.store.categoriesByID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PrescriptionRepository implementation
type MemoryPrescriptions struct{ store *MemoryStore }

func NewMemoryPrescriptions(store *MemoryStore) *MemoryPrescriptions {
	return &MemoryPrescriptions{store: store}
}

var _ PrescriptionRepository = (*MemoryPrescriptions)(nil)

func (mp *MemoryPrescriptions) Create(ctx context.Context, p *domain.Prescription) error {
	mp.store.wlock(ctx)
	defer mp.store.wunlock(ctx)
	p.ID = mp.store.nextPrescID
	mp.store.nextPrescID++
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	mp.store.prescByID[p.ID] = *p
	return nil
}

func (mp *MemoryPrescriptions) GetByID(ctx context.Context, id int64) (*domain.Prescription, error) {
	mp.store.rlock(ctx)
	defer mp.store.runlock(ctx)
	p, ok := mp.store.prescByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (mp *MemoryPrescriptions) Resolve(ctx context.Context, p *domain.Prescription) error {
	mp.store.wlock(ctx)
	defer mp.store.wunlock(ctx)
	cur, ok := mp.store.prescByID[p.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != domain.PrescriptionStatusPending {
		return ErrStaleStatus
	}
	p.UpdatedAt = time.Now().UTC()
	mp.store.prescByID[p.ID] = *p
	return nil
}

func (mp *MemoryPrescriptions) ListByUser(ctx context.Context, userID int64) ([]domain.Prescription, error) {
	mp.store.rlock(ctx)
	defer mp.store.runlock(ctx)
	out := make([]domain.Prescription, 0)
	for _, p := range mp.store.prescByID {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (mp *MemoryPrescriptions) ListAll(ctx context.Context) ([]domain.Prescription, error) {
	mp.store.rlock(ctx)
	defer mp.store.runlock(ctx)
	out := make([]domain.Prescription, 0, len(mp.store.prescByID))
	for _, p := range mp.store.prescByID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// FeedbackRepository implementation
type MemoryFeedback struct{ store *MemoryStore }

func NewMemoryFeedback(store *MemoryStore) *MemoryFeedback { return &MemoryFeedback{store: store} }

var _ FeedbackRepository = (*MemoryFeedback)(nil)

func (mf *MemoryFeedback) Create(ctx context.Context, f *domain.Feedback) error {
	mf.store.wlock(ctx)
	defer mf.store.wunlock(ctx)
	f.ID = mf.store.nextFeedbackID
	mf.store.nextFeedbackID++
	f.CreatedAt = time.Now().UTC()
	mf.store.feedbackByID[f.ID] = *f
	return nil
}

func (mf *MemoryFeedback) List(ctx context.Context) ([]domain.Feedback, error) {
	mf.store.rlock(ctx)
	defer mf.store.runlock(ctx)
	out := make([]domain.Feedback, 0, len(mf.store.feedbackByID))
	for _, f := range mf.store.feedbackByID {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Tx manager using write lock to emulate transaction boundary.
// Снимок состояния до fn даёт откат целиком при ошибке; вложенный вызов
// присоединяется к уже открытой транзакции.
type MemoryTx struct{ store *MemoryStore }

func NewMemoryTx(store *MemoryStore) *MemoryTx { return &MemoryTx{store: store} }

func (tx *MemoryTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if isTx(ctx) {
		return fn(ctx)
	}
	tx.store.mu.Lock()
	snap := tx.store.snapshot()
	ctx = context.WithValue(ctx, txKey{}, true)
	ctx, hooks := withCommitHooks(ctx)
	if err := fn(ctx); err != nil {
		tx.store.restore(snap)
		tx.store.mu.Unlock()
		return err
	}
	tx.store.mu.Unlock()
	hooks.run()
	return nil
}
