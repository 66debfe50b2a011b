package domain

// OrderStatus тип статуса заказа. Набор переходов закрыт:
// pending -> processing -> shipped -> delivered, и pending -> cancelled.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var nextStatus = map[OrderStatus]OrderStatus{
	OrderStatusPending:    OrderStatusProcessing,
	OrderStatusProcessing: OrderStatusShipped,
	OrderStatusShipped:    OrderStatusDelivered,
}

// Valid сообщает, известен ли статус.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal сообщает, является ли статус терминальным.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanAdvanceTo разрешает только следующий по порядку шаг жизненного цикла.
// Отмена идёт отдельной операцией и здесь всегда запрещена.
func (s OrderStatus) CanAdvanceTo(target OrderStatus) bool {
	next, ok := nextStatus[s]
	return ok && next == target
}

// CanCancel отмена допустима только из pending.
func (s OrderStatus) CanCancel() bool {
	return s == OrderStatusPending
}
