package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	order "github.com/dmehra2102/boutique-commerce/internal/order/domain"
	"github.com/dmehra2102/boutique-commerce/pkg/apperr"
)

func checkoutKey(userID, key string) string { return userID + "\x00" + key }

func (s *Store) ClaimCheckoutKey(ctx context.Context, userID, key, orderID string) error {
	t, release := s.acquire(ctx)
	defer release()

	k := checkoutKey(userID, key)
	if _, ok := s.keys[k]; ok {
		return order.ErrDuplicateCheckoutKey
	}
	s.keys[k] = orderID
	t.onRollback(func() { delete(s.keys, k) })
	return nil
}

func (s *Store) FindByCheckoutKey(ctx context.Context, userID, key string) (order.Order, error) {
	_, release := s.acquire(ctx)
	defer release()

	id, ok := s.keys[checkoutKey(userID, key)]
	if !ok {
		return order.Order{}, apperr.NotFound("checkout key", key)
	}
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, apperr.NotFound("order", id)
	}
	return cloneOrder(o), nil
}

func (s *Store) Create(ctx context.Context, o order.Order) error {
	t, release := s.acquire(ctx)
	defer release()

	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("order %q already exists", o.ID)
	}
	s.orders[o.ID] = cloneOrder(o)
	t.onRollback(func() { delete(s.orders, o.ID) })
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	_, release := s.acquire(ctx)
	defer release()

	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, apperr.NotFound("order", id)
	}
	return cloneOrder(o), nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) error {
	t, release := s.acquire(ctx)
	defer release()

	o, ok := s.orders[id]
	if !ok {
		return apperr.NotFound("order", id)
	}
	if o.Status != from {
		return &apperr.ConflictError{Resource: "order", ID: id}
	}
	prev := o
	o.Status = to
	o.UpdatedAt = at
	s.orders[id] = o
	t.onRollback(func() { s.orders[id] = prev })
	return nil
}

func (s *Store) UpdatePayment(ctx context.Context, id string, from, to order.PaymentStatus, at time.Time) error {
	t, release := s.acquire(ctx)
	defer release()

	o, ok := s.orders[id]
	if !ok {
		return apperr.NotFound("order", id)
	}
	if o.PaymentStatus != from {
		return &apperr.ConflictError{Resource: "order", ID: id}
	}
	prev := o
	o.PaymentStatus = to
	o.UpdatedAt = at
	s.orders[id] = o
	t.onRollback(func() { s.orders[id] = prev })
	return nil
}

// OrdersByUser returns a user's orders, oldest first.
func (s *Store) OrdersByUser(userID string) []order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []order.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	slices.SortFunc(out, func(a, b order.Order) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

func cloneOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	return o
}
