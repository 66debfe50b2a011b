package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"zelenka/internal/domain"
)

// PgStore хранилище на PostgreSQL. Все репозитории-обёртки разделяют один пул.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(ctx context.Context, connString string) (*PgStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	cfg.MaxConns = 25
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PgStore{pool: pool}, nil
}

func (s *PgStore) Close() { s.pool.Close() }

// Migrate создаёт схему, если её ещё нет.
func (s *PgStore) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS categories (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price NUMERIC(12,2) NOT NULL,
			stock BIGINT NOT NULL DEFAULT 0 CHECK (stock >= 0),
			category_id BIGINT NOT NULL DEFAULT 0,
			image TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_category_id ON products(category_id)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			total_amount NUMERIC(12,2) NOT NULL,
			prescription_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id)`,
		`CREATE TABLE IF NOT EXISTS order_details (
			id BIGSERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL REFERENCES orders(id),
			product_id BIGINT NOT NULL,
			quantity BIGINT NOT NULL CHECK (quantity >= 1),
			unit_price NUMERIC(12,2) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_details_order_id ON order_details(order_id)`,
		`CREATE TABLE IF NOT EXISTS cart_items (
			user_id BIGINT NOT NULL,
			product_id BIGINT NOT NULL,
			quantity BIGINT NOT NULL CHECK (quantity >= 1),
			PRIMARY KEY (user_id, product_id)
		)`,
		`CREATE TABLE IF NOT EXISTS prescriptions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			image_ref TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			admin_notes TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prescriptions_user_id ON prescriptions(user_id)`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			product_id BIGINT,
			rating DOUBLE PRECISION NOT NULL DEFAULT 0,
			comment TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("run migration: %w", err)
		}
	}
	return nil
}

// querier покрывает pgxpool.Pool и pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgTxKey struct{}

func (s *PgStore) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

func parseMoney(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse money value %q: %w", raw, err)
	}
	return d, nil
}

// ProductRepository

type PgProducts struct{ store *PgStore }

func NewPgProducts(store *PgStore) *PgProducts { return &PgProducts{store: store} }

var _ ProductRepository = (*PgProducts)(nil)

const productColumns = `id, name, description, price::text, stock, category_id, image, created_at`

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	var price string
	err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock, &p.CategoryID, &p.Image, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.Price, err = parseMoney(price); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PgProducts) Create(ctx context.Context, p *domain.Product) error {
	return r.store.q(ctx).QueryRow(ctx,
		`INSERT INTO products (name, description, price, stock, category_id, image)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6)
		 RETURNING id, created_at`,
		p.Name, p.Description, p.Price.StringFixed(2), p.Stock, p.CategoryID, p.Image,
	).Scan(&p.ID, &p.CreatedAt)
}

func (r *PgProducts) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	row := r.store.q(ctx).QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

func (r *PgProducts) Update(ctx context.Context, p *domain.Product) error {
	// stock is owned by ReserveStock/ReleaseStock and is not written here
	tag, err := r.store.q(ctx).Exec(ctx,
		`UPDATE products SET name = $2, description = $3, price = $4::numeric,
		        category_id = $5, image = $6
		 WHERE id = $1`,
		p.ID, p.Name, p.Description, p.Price.StringFixed(2), p.CategoryID, p.Image)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgProducts) Delete(ctx context.Context, id int64) error {
	tag, err := r.store.q(ctx).Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgProducts) List(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1`
	args := []any{}
	if f.NameSubstring != "" {
		args = append(args, "%"+f.NameSubstring+"%")
		query += fmt.Sprintf(` AND name ILIKE $%d`, len(args))
	}
	if f.CategoryID != nil {
		args = append(args, *f.CategoryID)
		query += fmt.Sprintf(` AND category_id = $%d`, len(args))
	}
	if f.MinPrice != nil {
		args = append(args, f.MinPrice.StringFixed(2))
		query += fmt.Sprintf(` AND price >= $%d::numeric`, len(args))
	}
	if f.MaxPrice != nil {
		args = append(args, f.MaxPrice.StringFixed(2))
		query += fmt.Sprintf(` AND price <= $%d::numeric`, len(args))
	}
	query += ` ORDER BY id`

	rows, err := r.store.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ReserveStock использует условный UPDATE: ноль затронутых строк означает
// нехватку запаса (или отсутствие товара) — сериализуемость на уровне строки.
func (r *PgProducts) ReserveStock(ctx context.Context, id, qty int64) (int64, error) {
	var remaining int64
	err := r.store.q(ctx).QueryRow(ctx,
		`UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2 RETURNING stock`,
		id, qty,
	).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		var available int64
		err := r.store.q(ctx).QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&available)
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		if err != nil {
			return 0, err
		}
		return available, ErrInsufficientStock
	}
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (r *PgProducts) ReleaseStock(ctx context.Context, id, qty int64) error {
	tag, err := r.store.q(ctx).Exec(ctx,
		`UPDATE products SET stock = stock + $2 WHERE id = $1`, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// OrderRepository

type PgOrders struct{ store *PgStore }

func NewPgOrders(store *PgStore) *PgOrders { return &PgOrders{store: store} }

var _ OrderRepository = (*PgOrders)(nil)

func (r *PgOrders) Create(ctx context.Context, o *domain.Order) error {
	q := r.store.q(ctx)
	err := q.QueryRow(ctx,
		`INSERT INTO orders (user_id, status, total_amount, prescription_id)
		 VALUES ($1, $2, $3::numeric, $4)
		 RETURNING id, created_at, updated_at`,
		o.UserID, string(o.Status), o.TotalAmount.StringFixed(2), o.PrescriptionID,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return err
	}
	for i := range o.Details {
		o.Details[i].OrderID = o.ID
		err := q.QueryRow(ctx,
			`INSERT INTO order_details (order_id, product_id, quantity, unit_price)
			 VALUES ($1, $2, $3, $4::numeric)
			 RETURNING id`,
			o.ID, o.Details[i].ProductID, o.Details[i].Quantity, o.Details[i].UnitPrice.StringFixed(2),
		).Scan(&o.Details[i].ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *PgOrders) scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var total string
	var status string
	err := row.Scan(&o.ID, &o.UserID, &status, &total, &o.PrescriptionID, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	if o.TotalAmount, err = parseMoney(total); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PgOrders) loadDetails(ctx context.Context, o *domain.Order) error {
	rows, err := r.store.q(ctx).Query(ctx,
		`SELECT id, order_id, product_id, quantity, unit_price::text
		 FROM order_details WHERE order_id = $1 ORDER BY id`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var d domain.OrderDetail
		var price string
		if err := rows.Scan(&d.ID, &d.OrderID, &d.ProductID, &d.Quantity, &price); err != nil {
			return err
		}
		if d.UnitPrice, err = parseMoney(price); err != nil {
			return err
		}
		o.Details = append(o.Details, d)
	}
	return rows.Err()
}

const orderColumns = `id, user_id, status, total_amount::text, prescription_id, created_at, updated_at`

func (r *PgOrders) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := r.scanOrder(r.store.q(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadDetails(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateStatus условный переход: строка меняется только если статус всё
// ещё равен ожидаемому. Под read committed два конкурирующих перехода из
// одного статуса не могут пройти оба — второй получает ErrStaleStatus.
func (r *PgOrders) UpdateStatus(ctx context.Context, o *domain.Order, to domain.OrderStatus) error {
	err := r.store.q(ctx).QueryRow(ctx,
		`UPDATE orders SET status = $3, updated_at = NOW()
		 WHERE id = $1 AND status = $2 RETURNING updated_at`,
		o.ID, string(o.Status), string(to),
	).Scan(&o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.store.q(ctx).QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrStaleStatus
	}
	if err != nil {
		return err
	}
	o.Status = to
	return nil
}

func (r *PgOrders) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.store.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Order, 0)
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadDetails(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *PgOrders) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID)
}

func (r *PgOrders) ListAll(ctx context.Context) ([]domain.Order, error) {
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id DESC`)
}

// CartRepository

type PgCarts struct{ store *PgStore }

func NewPgCarts(store *PgStore) *PgCarts { return &PgCarts{store: store} }

var _ CartRepository = (*PgCarts)(nil)

func (r *PgCarts) Items(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	rows, err := r.store.q(ctx).Query(ctx,
		`SELECT product_id, quantity FROM cart_items WHERE user_id = $1 ORDER BY product_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.CartItem, 0)
	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(&it.ProductID, &it.Quantity); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *PgCarts) AddItem(ctx context.Context, userID, productID, qty int64) error {
	_, err := r.store.q(ctx).Exec(ctx,
		`INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, product_id)
		 DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		userID, productID, qty)
	return err
}

func (r *PgCarts) SetQuantity(ctx context.Context, userID, productID, qty int64) error {
	tag, err := r.store.q(ctx).Exec(ctx,
		`UPDATE cart_items SET quantity = $3 WHERE user_id = $1 AND product_id = $2`,
		userID, productID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgCarts) RemoveItem(ctx context.Context, userID, productID int64) error {
	tag, err := r.store.q(ctx).Exec(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`, userID, productID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgCarts) Clear(ctx context.Context, userID int64, productIDs []int64) error {
	q := r.store.q(ctx)
	if len(productIDs) == 0 {
		_, err := q.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
		return err
	}
	_, err := q.Exec(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND product_id = ANY($2)`, userID, productIDs)
	return err
}

// CategoryRepository

type PgCategories struct{ store *PgStore }

func NewPgCategories(store *PgStore) *PgCategories { return &PgCategories{store: store} }

var _ CategoryRepository = (*PgCategories)(nil)

func (r *PgCategories) Create(ctx context.Context, c *domain.Category) error {
	return r.store.q(ctx).QueryRow(ctx,
		`INSERT INTO categories (name) VALUES ($1) RETURNING id`, c.Name).Scan(&c.ID)
}

func (r *PgCategories) GetByID(ctx context.Context, id int64) (*domain.Category, error) {
	var c domain.Category
	err := r.store.q(ctx).QueryRow(ctx,
		`SELECT id, name FROM categories WHERE id = $1`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PgCategories) List(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.store.q(ctx).Query(ctx, `SELECT id, name FROM categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Category, 0)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PrescriptionRepository

type PgPrescriptions struct{ store *PgStore }

func NewPgPrescriptions(store *PgStore) *PgPrescriptions { return &PgPrescriptions{store: store} }

var _ PrescriptionRepository = (*PgPrescriptions)(nil)

const prescriptionColumns = `id, user_id, image_ref, description, admin_notes, status, created_at, updated_at`

func scanPrescription(row pgx.Row) (*domain.Prescription, error) {
	var p domain.Prescription
	var status string
	err := row.Scan(&p.ID, &p.UserID, &p.ImageRef, &p.Description, &p.AdminNotes, &status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Status = domain.PrescriptionStatus(status)
	return &p, nil
}

func (r *PgPrescriptions) Create(ctx context.Context, p *domain.Prescription) error {
	return r.store.q(ctx).QueryRow(ctx,
		`INSERT INTO prescriptions (user_id, image_ref, description, admin_notes, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		p.UserID, p.ImageRef, p.Description, p.AdminNotes, string(p.Status),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *PgPrescriptions) GetByID(ctx context.Context, id int64) (*domain.Prescription, error) {
	return scanPrescription(r.store.q(ctx).QueryRow(ctx,
		`SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = $1`, id))
}

// Resolve записывает решение только по ещё не обработанному рецепту.
// Условие status = 'pending' не даёт двум конкурирующим обработкам
// пройти обеим.
func (r *PgPrescriptions) Resolve(ctx context.Context, p *domain.Prescription) error {
	err := r.store.q(ctx).QueryRow(ctx,
		`UPDATE prescriptions SET admin_notes = $2, status = $3, updated_at = NOW()
		 WHERE id = $1 AND status = 'pending' RETURNING updated_at`,
		p.ID, p.AdminNotes, string(p.Status),
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.store.q(ctx).QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM prescriptions WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrStaleStatus
	}
	return err
}

func (r *PgPrescriptions) list(ctx context.Context, query string, args ...any) ([]domain.Prescription, error) {
	rows, err := r.store.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Prescription, 0)
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PgPrescriptions) ListByUser(ctx context.Context, userID int64) ([]domain.Prescription, error) {
	return r.list(ctx,
		`SELECT `+prescriptionColumns+` FROM prescriptions WHERE user_id = $1 ORDER BY id DESC`, userID)
}

func (r *PgPrescriptions) ListAll(ctx context.Context) ([]domain.Prescription, error) {
	return r.list(ctx,
		`SELECT `+prescriptionColumns+` FROM prescriptions ORDER BY id DESC`)
}

// FeedbackRepository

type PgFeedback struct{ store *PgStore }

func NewPgFeedback(store *PgStore) *PgFeedback { return &PgFeedback{store: store} }

var _ FeedbackRepository = (*PgFeedback)(nil)

func (r *PgFeedback) Create(ctx context.Context, f *domain.Feedback) error {
	return r.store.q(ctx).QueryRow(ctx,
		`INSERT INTO feedback (user_id, product_id, rating, comment)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		f.UserID, f.ProductID, f.Rating, f.Comment,
	).Scan(&f.ID, &f.CreatedAt)
}

func (r *PgFeedback) List(ctx context.Context) ([]domain.Feedback, error) {
	rows, err := r.store.q(ctx).Query(ctx,
		`SELECT id, user_id, product_id, rating, comment, created_at FROM feedback ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Feedback, 0)
	for rows.Next() {
		var f domain.Feedback
		if err := rows.Scan(&f.ID, &f.UserID, &f.ProductID, &f.Rating, &f.Comment, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// PgTx менеджер транзакций на pgx. Вложенный WithTransaction присоединяется
// к транзакции из контекста.
type PgTx struct{ store *PgStore }

func NewPgTx(store *PgStore) *PgTx { return &PgTx{store: store} }

var _ TxManager = (*PgTx)(nil)

func (t *PgTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	tx, err := t.store.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	txCtx := context.WithValue(ctx, pgTxKey{}, tx)
	txCtx, hooks := withCommitHooks(txCtx)
	if err := fn(txCtx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	hooks.run()
	return nil
}
