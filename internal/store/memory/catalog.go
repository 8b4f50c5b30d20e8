package memory

import (
	"context"
	"time"

	catalog "github.com/dmehra2102/boutique-commerce/internal/catalog/domain"
	"github.com/dmehra2102/boutique-commerce/pkg/apperr"
)

func (s *Store) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	_, release := s.acquire(ctx)
	defer release()

	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, apperr.NotFound("product", id)
	}
	return p, nil
}

// DecrementStockIfAvailable is a compare-and-decrement under the store lock.
func (s *Store) DecrementStockIfAvailable(ctx context.Context, id string, qty int) (bool, error) {
	if qty < 1 {
		return false, apperr.Validation("decrement quantity must be at least 1, got %d", qty)
	}
	t, release := s.acquire(ctx)
	defer release()

	p, ok := s.products[id]
	if !ok || p.Stock < qty {
		return false, nil
	}
	prev := p
	p.Stock -= qty
	p.UpdatedAt = time.Now().UTC()
	s.products[id] = p
	t.onRollback(func() { s.products[id] = prev })
	return true, nil
}

func (s *Store) IncrementStock(ctx context.Context, id string, qty int) error {
	if qty < 1 {
		return apperr.Validation("increment quantity must be at least 1, got %d", qty)
	}
	t, release := s.acquire(ctx)
	defer release()

	p, ok := s.products[id]
	if !ok {
		return apperr.NotFound("product", id)
	}
	prev := p
	p.Stock += qty
	p.UpdatedAt = time.Now().UTC()
	s.products[id] = p
	t.onRollback(func() { s.products[id] = prev })
	return nil
}

func (s *Store) Upsert(ctx context.Context, p catalog.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	t, release := s.acquire(ctx)
	defer release()

	prev, existed := s.products[p.ID]
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	s.products[p.ID] = p
	t.onRollback(func() {
		if existed {
			s.products[p.ID] = prev
		} else {
			delete(s.products, p.ID)
		}
	})
	return nil
}
