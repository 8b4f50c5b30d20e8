// Package memory is a single-process backend for every persistence port.
// One mutex guards all state; WithinTx holds it for the whole unit of work
// and replays an undo journal when the work fails, so no other caller ever
// observes a partial checkout.
package memory

import (
	"context"
	"sync"
	"time"

	cart "github.com/dmehra2102/boutique-commerce/internal/cart/domain"
	catalog "github.com/dmehra2102/boutique-commerce/internal/catalog/domain"
	order "github.com/dmehra2102/boutique-commerce/internal/order/domain"
	"github.com/dmehra2102/boutique-commerce/pkg/outbox"
)

type Store struct {
	mu       sync.Mutex
	products map[string]catalog.Product
	carts    map[string]cart.Cart
	orders   map[string]order.Order
	keys     map[string]string
	events   []outbox.Event
	leases   map[int64]time.Time
	nextID   int64
	cartSeq  int64
}

func NewStore() *Store {
	return &Store{
		products: make(map[string]catalog.Product),
		carts:    make(map[string]cart.Cart),
		orders:   make(map[string]order.Order),
		keys:     make(map[string]string),
		leases:   make(map[int64]time.Time),
	}
}

type txKey struct{}

type tx struct {
	store *Store
	undo  []func()
}

// WithinTx must be given the ctx it passes to fn for every nested call;
// a call with an unrelated ctx would block on the held lock.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{store: s}
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
		return err
	}
	return nil
}

func (s *Store) txFrom(ctx context.Context) *tx {
	t, ok := ctx.Value(txKey{}).(*tx)
	if !ok || t.store != s {
		return nil
	}
	return t
}

// acquire locks the store unless ctx already holds it through WithinTx.
func (s *Store) acquire(ctx context.Context) (*tx, func()) {
	if t := s.txFrom(ctx); t != nil {
		return t, func() {}
	}
	s.mu.Lock()
	return nil, s.mu.Unlock
}

func (t *tx) onRollback(fn func()) {
	if t != nil {
		t.undo = append(t.undo, fn)
	}
}
