package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product представляет товар в аптеке
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int64           `json:"stock"`
	CategoryID  int64           `json:"category_id"`
	Image       string          `json:"image,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Category категория товаров
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CartItem позиция в корзине, уникальна в паре (пользователь, товар)
type CartItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// OrderItem запрошенная позиция заказа
type OrderItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// OrderDetail позиция заказа с зафиксированной на момент оформления ценой.
// После создания не изменяется.
type OrderDetail struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Order сущность заказа
type Order struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	Status         OrderStatus     `json:"status"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PrescriptionID *int64          `json:"prescription_id,omitempty"`
	Details        []OrderDetail   `json:"details"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PrescriptionStatus статус рецепта
type PrescriptionStatus string

const (
	PrescriptionStatusPending  PrescriptionStatus = "pending"
	PrescriptionStatusApproved PrescriptionStatus = "approved"
	PrescriptionStatusRejected PrescriptionStatus = "rejected"
)

// Prescription загруженный пользователем рецепт
type Prescription struct {
	ID          int64              `json:"id"`
	UserID      int64              `json:"user_id"`
	ImageRef    string             `json:"image_ref"`
	Description string             `json:"description,omitempty"`
	AdminNotes  string             `json:"admin_notes,omitempty"`
	Status      PrescriptionStatus `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Feedback отзыв: общий или о конкретном товаре
type Feedback struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ProductID *int64    `json:"product_id,omitempty"`
	Rating    float64   `json:"rating,omitempty"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity аутентифицированный пользователь, предоставляется внешним auth-сервисом
type Identity struct {
	UserID int64 `json:"user_id"`
	Admin  bool  `json:"admin"`
}

// Owns проверяет, что идентичность владеет ресурсом пользователя userID
// либо имеет административные права.
func (id Identity) Owns(userID int64) bool {
	return id.Admin || id.UserID == userID
}
