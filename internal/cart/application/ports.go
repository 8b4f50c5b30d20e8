package application

import (
	"context"
	"errors"

	"github.com/dmehra2102/boutique-commerce/internal/cart/domain"
	catalog "github.com/dmehra2102/boutique-commerce/internal/catalog/domain"
)

var (
	ErrCacheMiss = errors.New("cart cache miss")
	// ErrStaleFill means the cart was invalidated after the fill's generation
	// was read, so the loaded copy was not cached.
	ErrStaleFill = errors.New("cart cache fill is stale")
)

// Repository returns an empty cart, not an error, for users without one.
type Repository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, c domain.Cart) (domain.Cart, error)
	Delete(ctx context.Context, userID string) error
	DeleteIfVersion(ctx context.Context, userID string, version int64) (bool, error)
}

// Cache fills are guarded by a per-user generation that Delete advances.
// Set stores the cart only while the generation still equals the one read
// before the repository load.
type Cache interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Generation(ctx context.Context, userID string) (int64, error)
	Set(ctx context.Context, c domain.Cart, generation int64) error
	Delete(ctx context.Context, userID string) error
}

type ProductReader interface {
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
}

type noCache struct{}

func (noCache) Get(context.Context, string) (domain.Cart, error)   { return domain.Cart{}, ErrCacheMiss }
func (noCache) Generation(context.Context, string) (int64, error) { return 0, nil }
func (noCache) Set(context.Context, domain.Cart, int64) error     { return nil }
func (noCache) Delete(context.Context, string) error              { return nil }
