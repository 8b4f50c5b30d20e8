package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/boutique-commerce/pkg/apperr"
)

// ErrDuplicateCheckoutKey is returned by repositories when an idempotency
// key was already claimed by an earlier checkout of the same user.
var ErrDuplicateCheckoutKey = errors.New("checkout idempotency key already used")

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Status          Status          `json:"status"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	ShippingAddress string          `json:"shipping_address"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Items           []OrderItem     `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OrderItem is frozen at checkout time.
type OrderItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// NewOrder computes the total once; it is never recomputed afterwards.
func NewOrder(id, userID, shippingAddress string, items []OrderItem, now time.Time) Order {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	now = now.UTC()
	return Order{
		ID:              id,
		UserID:          userID,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		ShippingAddress: shippingAddress,
		TotalAmount:     total,
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// TransitionStatus applies next if the edge exists and leaves o untouched otherwise.
func (o *Order) TransitionStatus(next Status, now time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return &apperr.InvalidTransitionError{Field: "status", From: string(o.Status), To: string(next)}
	}
	o.Status = next
	o.UpdatedAt = now.UTC()
	return nil
}

func (o *Order) TransitionPayment(next PaymentStatus, now time.Time) error {
	if !o.PaymentStatus.CanTransitionTo(next) {
		return &apperr.InvalidTransitionError{Field: "payment_status", From: string(o.PaymentStatus), To: string(next)}
	}
	o.PaymentStatus = next
	o.UpdatedAt = now.UTC()
	return nil
}
