package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AggregateType = "order"

	EventOrderPlaced         = "OrderPlaced"
	EventOrderStatusChanged  = "OrderStatusChanged"
	EventOrderPaymentChanged = "OrderPaymentChanged"
)

type OrderPlaced struct {
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Items       []OrderItem     `json:"items"`
	PlacedAt    time.Time       `json:"placed_at"`
}

type OrderStatusChanged struct {
	OrderID   string    `json:"order_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Restocked bool      `json:"restocked"`
	ChangedAt time.Time `json:"changed_at"`
}

type OrderPaymentChanged struct {
	OrderID   string        `json:"order_id"`
	From      PaymentStatus `json:"from"`
	To        PaymentStatus `json:"to"`
	ChangedAt time.Time     `json:"changed_at"`
}
