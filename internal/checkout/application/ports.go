package application

import (
	"context"

	cart "github.com/dmehra2102/boutique-commerce/internal/cart/domain"
	catalog "github.com/dmehra2102/boutique-commerce/internal/catalog/domain"
	order "github.com/dmehra2102/boutique-commerce/internal/order/domain"
	"github.com/dmehra2102/boutique-commerce/pkg/outbox"
)

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type CartRepository interface {
	Get(ctx context.Context, userID string) (cart.Cart, error)
	DeleteIfVersion(ctx context.Context, userID string, version int64) (bool, error)
}

// Catalog must make DecrementStockIfAvailable linearizable per product.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
	DecrementStockIfAvailable(ctx context.Context, id string, qty int) (bool, error)
}

type OrderRepository interface {
	ClaimCheckoutKey(ctx context.Context, userID, key, orderID string) error
	FindByCheckoutKey(ctx context.Context, userID, key string) (order.Order, error)
	Create(ctx context.Context, o order.Order) error
}

type EventRecorder interface {
	Append(ctx context.Context, ev outbox.Event) error
}

type CartCache interface {
	Delete(ctx context.Context, userID string) error
}
