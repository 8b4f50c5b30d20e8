package application

import (
	"context"
	"time"

	"github.com/dmehra2102/boutique-commerce/internal/order/domain"
	"github.com/dmehra2102/boutique-commerce/pkg/outbox"
)

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository updates are conditional on the current value; a mismatch
// is reported as apperr.ErrConcurrencyConflict.
type OrderRepository interface {
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.Status, at time.Time) error
	UpdatePayment(ctx context.Context, id string, from, to domain.PaymentStatus, at time.Time) error
}

type StockRestocker interface {
	IncrementStock(ctx context.Context, productID string, qty int) error
}

type EventRecorder interface {
	Append(ctx context.Context, ev outbox.Event) error
}
