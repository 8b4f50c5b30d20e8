package memory

import (
	"context"

	cart "github.com/dmehra2102/boutique-commerce/internal/cart/domain"
)

func (s *Store) Get(ctx context.Context, userID string) (cart.Cart, error) {
	_, release := s.acquire(ctx)
	defer release()

	c, ok := s.carts[userID]
	if !ok {
		return cart.New(userID), nil
	}
	return c.Clone(), nil
}

func (s *Store) Save(ctx context.Context, c cart.Cart) (cart.Cart, error) {
	t, release := s.acquire(ctx)
	defer release()

	prev, existed := s.carts[c.UserID]
	c = c.Clone()
	s.cartSeq++
	c.Version = s.cartSeq
	s.carts[c.UserID] = c
	t.onRollback(func() { s.restoreCart(c.UserID, prev, existed) })
	return c.Clone(), nil
}

func (s *Store) Delete(ctx context.Context, userID string) error {
	t, release := s.acquire(ctx)
	defer release()

	prev, existed := s.carts[userID]
	delete(s.carts, userID)
	t.onRollback(func() { s.restoreCart(userID, prev, existed) })
	return nil
}

func (s *Store) DeleteIfVersion(ctx context.Context, userID string, version int64) (bool, error) {
	t, release := s.acquire(ctx)
	defer release()

	prev, existed := s.carts[userID]
	if !existed || prev.Version != version {
		return false, nil
	}
	delete(s.carts, userID)
	t.onRollback(func() { s.restoreCart(userID, prev, true) })
	return true, nil
}

func (s *Store) restoreCart(userID string, prev cart.Cart, existed bool) {
	if existed {
		s.carts[userID] = prev
		return
	}
	delete(s.carts, userID)
}
