package application

import (
	"context"
	"errors"
	"sync"

	"github.com/dmehra2102/boutique-commerce/internal/cart/domain"
	catalog "github.com/dmehra2102/boutique-commerce/internal/catalog/domain"
	"github.com/dmehra2102/boutique-commerce/pkg/apperr"
)

type fakeRepo struct {
	mu      sync.Mutex
	carts   map[string]domain.Cart
	gets    int
	saves   int
	deletes int
	err     error
}

func newFakeRepo() *fakeRepo { return &fakeRepo{carts: map[string]domain.Cart{}} }

func (f *fakeRepo) Get(_ context.Context, userID string) (domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return domain.Cart{}, f.err
	}
	c, ok := f.carts[userID]
	if !ok {
		return domain.New(userID), nil
	}
	return c.Clone(), nil
}

func (f *fakeRepo) Save(_ context.Context, c domain.Cart) (domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.err != nil {
		return domain.Cart{}, f.err
	}
	c.Version++
	f.carts[c.UserID] = c.Clone()
	return c, nil
}

func (f *fakeRepo) Delete(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.carts, userID)
	return f.err
}

func (f *fakeRepo) DeleteIfVersion(_ context.Context, userID string, version int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.carts[userID]
	if !ok || c.Version != version {
		return false, nil
	}
	delete(f.carts, userID)
	return true, nil
}

type fakeProducts map[string]catalog.Product

func (f fakeProducts) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	p, ok := f[id]
	if !ok {
		return catalog.Product{}, apperr.NotFound("product", id)
	}
	return p, nil
}

type fakeCache struct {
	mu      sync.Mutex
	carts   map[string]domain.Cart
	gens    map[string]int64
	deletes []string
	err     error
}

func newFakeCache() *fakeCache {
	return &fakeCache{carts: map[string]domain.Cart{}, gens: map[string]int64{}}
}

func (f *fakeCache) Generation(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.gens[userID], nil
}

func (f *fakeCache) Get(_ context.Context, userID string) (domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Cart{}, f.err
	}
	c, ok := f.carts[userID]
	if !ok {
		return domain.Cart{}, ErrCacheMiss
	}
	return c, nil
}

func (f *fakeCache) Set(_ context.Context, c domain.Cart, generation int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.gens[c.UserID] != generation {
		return ErrStaleFill
	}
	f.carts[c.UserID] = c
	return nil
}

func (f *fakeCache) Delete(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, userID)
	f.gens[userID]++
	delete(f.carts, userID)
	return f.err
}

var errRedisDown = errors.New("redis down")

// interleavingRepo runs onLoad once, after a Get has read the cart but before
// it returns, to model a writer that commits while a reader is in flight.
type interleavingRepo struct {
	*fakeRepo
	once   sync.Once
	onLoad func()
}

func (r *interleavingRepo) Get(ctx context.Context, userID string) (domain.Cart, error) {
	c, err := r.fakeRepo.Get(ctx, userID)
	if r.onLoad != nil {
		r.once.Do(r.onLoad)
	}
	return c, err
}
