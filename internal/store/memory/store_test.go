package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cart "github.com/dmehra2102/boutique-commerce/internal/cart/domain"
	catalog "github.com/dmehra2102/boutique-commerce/internal/catalog/domain"
	order "github.com/dmehra2102/boutique-commerce/internal/order/domain"
	"github.com/dmehra2102/boutique-commerce/pkg/apperr"
	"github.com/dmehra2102/boutique-commerce/pkg/outbox"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	require.NoError(t, s.Upsert(context.Background(), catalog.Product{ID: "A", Name: "Lawn suit", Price: decimal.NewFromInt(100), Stock: 5}))
	return s
}

func TestWithinTx_RollsBackEveryWrite(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	c := cart.New("u1")
	require.NoError(t, c.Add("A", 2, decimal.NewFromInt(100)))
	saved, err := s.Save(ctx, c)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.ClaimCheckoutKey(ctx, "u1", "k1", "o1"))
		ok, err := s.DecrementStockIfAvailable(ctx, "A", 2)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, s.Create(ctx, order.Order{ID: "o1", UserID: "u1", Status: order.StatusPending}))
		require.NoError(t, s.Append(ctx, outbox.Event{Type: "OrderPlaced"}))
		cleared, err := s.DeleteIfVersion(ctx, "u1", saved.Version)
		require.NoError(t, err)
		require.True(t, cleared)
		require.NoError(t, s.Upsert(ctx, catalog.Product{ID: "Z", Name: "new"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := s.GetProduct(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)

	_, err = s.GetProduct(ctx, "Z")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, saved.Version, got.Version)
	assert.Equal(t, 2, got.Quantity("A"))

	_, err = s.GetOrder(ctx, "o1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.FindByCheckoutKey(ctx, "u1", "k1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, s.Events())
}

func TestWithinTx_NestedCallJoins(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		return s.WithinTx(ctx, func(ctx context.Context) error {
			_, err := s.DecrementStockIfAvailable(ctx, "A", 1)
			return err
		})
	})
	require.NoError(t, err)

	p, err := s.GetProduct(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 4, p.Stock)
}

func TestDecrementStock_NeverNegative(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.DecrementStockIfAvailable(ctx, "A", 1)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), wins.Load())
	p, err := s.GetProduct(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock)
}

func TestDecrementStock_Edges(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	ok, err := s.DecrementStockIfAvailable(ctx, "missing", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.DecrementStockIfAvailable(ctx, "A", 6)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.DecrementStockIfAvailable(ctx, "A", 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.ErrorIs(t, s.IncrementStock(ctx, "missing", 1), apperr.ErrNotFound)
	assert.ErrorIs(t, s.IncrementStock(ctx, "A", 0), apperr.ErrValidation)
}

func TestUpsert_RejectsWhatPostgresWouldRound(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	err := s.Upsert(ctx, catalog.Product{ID: "A", Name: "Lawn suit", Price: decimal.RequireFromString("99.999"), Stock: 5})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	p, err := s.GetProduct(ctx, "A")
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(decimal.NewFromInt(100)), "rejected upsert leaves the product alone")
}

func TestCartVersionNeverReused(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	first, err := s.Save(ctx, cart.New("u1"))
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "u1"))

	second, err := s.Save(ctx, cart.New("u1"))
	require.NoError(t, err)
	assert.Greater(t, second.Version, first.Version)

	ok, err := s.DeleteIfVersion(ctx, "u1", first.Version)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckoutKeys(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, order.Order{ID: "o1", UserID: "u1"}))
	require.NoError(t, s.ClaimCheckoutKey(ctx, "u1", "k", "o1"))
	assert.ErrorIs(t, s.ClaimCheckoutKey(ctx, "u1", "k", "o2"), order.ErrDuplicateCheckoutKey)
	require.NoError(t, s.ClaimCheckoutKey(ctx, "u2", "k", "o3"), "keys are scoped per user")

	o, err := s.FindByCheckoutKey(ctx, "u1", "k")
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)
}

func TestOrdersByUser(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Create(ctx, order.Order{ID: "o2", UserID: "u1", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, s.Create(ctx, order.Order{ID: "o1", UserID: "u1", CreatedAt: base}))
	require.NoError(t, s.Create(ctx, order.Order{ID: "o3", UserID: "u2", CreatedAt: base}))

	got := s.OrdersByUser("u1")
	require.Len(t, got, 2)
	assert.Equal(t, "o1", got[0].ID)
	assert.Equal(t, "o2", got[1].ID)
}

func TestOutboxLeasing(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for range 3 {
		require.NoError(t, s.Append(ctx, outbox.Event{Type: "OrderPlaced"}))
	}

	batch, err := s.LockBatch(ctx, "r1", 2, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, []int64{1, 2}, []int64{batch[0].ID, batch[1].ID})

	other, err := s.LockBatch(ctx, "r2", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, other, 1, "leased events are not handed to another relay")
	assert.Equal(t, int64(3), other[0].ID)

	require.NoError(t, s.MarkSent(ctx, []int64{1}))
	require.NoError(t, s.MarkFailed(ctx, 2, "broker down", 2))

	again, err := s.LockBatch(ctx, "r1", 10, time.Millisecond)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, int64(2), again[0].ID)
	assert.Equal(t, 1, again[0].RetryCount)

	time.Sleep(5 * time.Millisecond)
	expired, err := s.LockBatch(ctx, "r2", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, expired, 1, "an expired lease is picked up again")
	assert.Equal(t, int64(2), expired[0].ID)

	require.NoError(t, s.MarkFailed(ctx, 2, "broker down", 2))
	events := s.Events()
	assert.Equal(t, outbox.StatusSent, events[0].Status)
	assert.Equal(t, outbox.StatusFailed, events[1].Status)
	require.NotNil(t, events[1].LastError)
	assert.Equal(t, "broker down", *events[1].LastError)
}
