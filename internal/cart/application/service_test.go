package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalog "github.com/dmehra2102/boutique-commerce/internal/catalog/domain"
	"github.com/dmehra2102/boutique-commerce/pkg/apperr"
)

var (
	testProducts = fakeProducts{
		"A": catalog.Product{ID: "A", Name: "Lawn suit", Price: decimal.RequireFromString("100"), Stock: 5},
		"B": catalog.Product{ID: "B", Name: "Dupatta", Price: decimal.RequireFromString("24.50"), Stock: 4},
	}
	quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func newTestService(cache Cache) (*Service, *fakeRepo) {
	repo := newFakeRepo()
	return NewService(quietLog, repo, testProducts, cache), repo
}

func TestGetCart_EmptyForNewUser(t *testing.T) {
	svc, _ := newTestService(nil)

	c, err := svc.GetCart(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", c.UserID)
	assert.NotNil(t, c.Items)
	assert.Empty(t, c.Items)
}

func TestAddProduct_UsesCatalogPrice(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	c, err := svc.AddProduct(ctx, "u1", "B", 2)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.True(t, c.Items[0].UnitPrice.Equal(decimal.RequireFromString("24.50")))
	assert.Equal(t, int64(1), c.Version)

	c, err = svc.AddProduct(ctx, "u1", "B", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Quantity("B"))
}

func TestAddProduct_DoesNotCheckStock(t *testing.T) {
	svc, _ := newTestService(nil)

	c, err := svc.AddProduct(context.Background(), "u1", "B", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, c.Quantity("B"))
}

func TestAddProduct_Errors(t *testing.T) {
	svc, repo := newTestService(nil)
	ctx := context.Background()

	_, err := svc.AddProduct(ctx, "u1", "missing", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.AddProduct(ctx, "u1", "A", 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Zero(t, repo.saves)
}

func TestUpdateQuantity(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	_, err := svc.UpdateQuantity(ctx, "u1", "A", 2)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.AddProduct(ctx, "u1", "A", 1)
	require.NoError(t, err)

	c, err := svc.UpdateQuantity(ctx, "u1", "A", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Quantity("A"))

	c, err = svc.UpdateQuantity(ctx, "u1", "A", 0)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestRemoveItem_Idempotent(t *testing.T) {
	svc, repo := newTestService(nil)
	ctx := context.Background()

	_, err := svc.AddProduct(ctx, "u1", "A", 1)
	require.NoError(t, err)

	c, err := svc.RemoveItem(ctx, "u1", "A")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	saves := repo.saves

	c, err = svc.RemoveItem(ctx, "u1", "A")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
	assert.Equal(t, saves, repo.saves, "removing an absent item must not write")
}

func TestClear_Idempotent(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	_, err := svc.AddProduct(ctx, "u1", "A", 1)
	require.NoError(t, err)

	require.NoError(t, svc.Clear(ctx, "u1"))
	require.NoError(t, svc.Clear(ctx, "u1"))

	c, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestGetCart_ServesFromCache(t *testing.T) {
	cache := newFakeCache()
	svc, repo := newTestService(cache)
	ctx := context.Background()

	_, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	_, err = svc.GetCart(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 1, repo.gets)
}

func TestMutationsInvalidateCache(t *testing.T) {
	cache := newFakeCache()
	svc, _ := newTestService(cache)
	ctx := context.Background()

	_, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)

	_, err = svc.AddProduct(ctx, "u1", "A", 2)
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, "u1"))

	assert.Equal(t, []string{"u1", "u1"}, cache.deletes)
}

func TestGetCart_DoesNotCacheCartChangedDuringLoad(t *testing.T) {
	cache := newFakeCache()
	repo := &interleavingRepo{fakeRepo: newFakeRepo()}
	writer := NewService(quietLog, repo.fakeRepo, testProducts, cache)
	reader := NewService(quietLog, repo, testProducts, cache)
	ctx := context.Background()

	_, err := writer.AddProduct(ctx, "u1", "A", 1)
	require.NoError(t, err)
	repo.onLoad = func() {
		_, err := writer.AddProduct(ctx, "u1", "A", 2)
		require.NoError(t, err)
	}

	c, err := reader.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Quantity("A"), "the reader saw the cart before the write")
	_, cached := cache.carts["u1"]
	assert.False(t, cached, "the pre-write copy must not be cached")

	c, err = reader.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, c.Quantity("A"))
	assert.Equal(t, 3, cache.carts["u1"].Quantity("A"))
}

func TestGetCart_ReturnsCopy(t *testing.T) {
	cache := newFakeCache()
	svc, _ := newTestService(cache)
	ctx := context.Background()

	_, err := svc.AddProduct(ctx, "u1", "A", 1)
	require.NoError(t, err)

	c, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	c.Items[0].Quantity = 50

	again, err := svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Quantity("A"))
}

func TestCacheFailuresAreNotFatal(t *testing.T) {
	cache := newFakeCache()
	cache.err = errRedisDown
	svc, _ := newTestService(cache)
	ctx := context.Background()

	c, err := svc.AddProduct(ctx, "u1", "A", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Quantity("A"))

	c, err = svc.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Quantity("A"))
}

func TestRepositoryFailureIsWrapped(t *testing.T) {
	svc, repo := newTestService(nil)
	boom := errors.New("connection reset")
	repo.err = boom

	_, err := svc.GetCart(context.Background(), "u1")
	assert.ErrorIs(t, err, boom)

	_, err = svc.AddItem(context.Background(), "u1", "A", 1, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, boom)
}

func TestAddItem_ValidatesSnapshot(t *testing.T) {
	svc, _ := newTestService(nil)

	_, err := svc.AddItem(context.Background(), "u1", "A", 1, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

var (
	_ Repository    = (*fakeRepo)(nil)
	_ Cache         = (*fakeCache)(nil)
	_ ProductReader = fakeProducts(nil)
)
