package integration

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartapp "github.com/dmehra2102/boutique-commerce/internal/cart/application"
	cartpg "github.com/dmehra2102/boutique-commerce/internal/cart/infrastructure/postgres"
	catalog "github.com/dmehra2102/boutique-commerce/internal/catalog/domain"
	catalogpg "github.com/dmehra2102/boutique-commerce/internal/catalog/infrastructure/postgres"
	checkoutapp "github.com/dmehra2102/boutique-commerce/internal/checkout/application"
	orderapp "github.com/dmehra2102/boutique-commerce/internal/order/application"
	order "github.com/dmehra2102/boutique-commerce/internal/order/domain"
	orderkafka "github.com/dmehra2102/boutique-commerce/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/boutique-commerce/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/boutique-commerce/migrations"
	"github.com/dmehra2102/boutique-commerce/pkg/apperr"
	"github.com/dmehra2102/boutique-commerce/pkg/idempotency"
	"github.com/dmehra2102/boutique-commerce/pkg/outbox"
	"github.com/dmehra2102/boutique-commerce/pkg/pgtx"
)

var env *Env

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	var err error
	env, err = Setup(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "integration setup: %v\n", err)
		os.Exit(1)
	}
	if err := migrations.Up(env.PGURL); err != nil {
		env.Teardown(context.Background())
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	code := m.Run()
	env.Teardown(context.Background())
	os.Exit(code)
}

type stack struct {
	pool      *pgxpool.Pool
	catalog   *catalogpg.Repository
	orders    *orderpg.Repository
	events    *outbox.PostgresStore
	carts     *cartapp.Service
	checkout  *checkoutapp.Service
	lifecycle *orderapp.Service
}

func newStack(t *testing.T) *stack {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool, err := pgxpool.New(context.Background(), env.PGURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(context.Background(), `TRUNCATE products, carts, cart_items, orders, order_items, checkout_keys, outbox RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	tx := pgtx.NewTransactor(pool)
	cartRepo := cartpg.NewRepository(log, pool)
	s := &stack{
		pool:    pool,
		catalog: catalogpg.NewRepository(log, pool),
		orders:  orderpg.NewRepository(log, pool),
		events:  outbox.NewPostgresStore(log, pool),
	}
	s.carts = cartapp.NewService(log, cartRepo, s.catalog, nil)
	s.checkout = checkoutapp.NewService(log, tx, cartRepo, s.catalog, s.orders, s.events)
	s.lifecycle = orderapp.NewService(log, tx, s.orders, s.catalog, s.events, true)
	return s
}

func (s *stack) product(t *testing.T, id, price string, stock int) {
	t.Helper()
	require.NoError(t, s.catalog.Upsert(context.Background(), catalog.Product{
		ID: id, Name: id, Price: decimal.RequireFromString(price), Stock: stock,
	}))
}

func (s *stack) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := s.catalog.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestPostgres_ConcurrentCheckoutsNeverOversell(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.product(t, "kurta-07", "3200.00", 3)

	const buyers = 10
	for i := range buyers {
		_, err := s.carts.AddProduct(ctx, fmt.Sprintf("buyer-%d", i), "kurta-07", 1)
		require.NoError(t, err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		placed   int
		shortage int
	)
	for i := range buyers {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, err := s.checkout.Checkout(ctx, checkoutapp.Request{UserID: user, ShippingAddress: "Islamabad"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				placed++
			case errors.Is(err, apperr.ErrInsufficientStock):
				shortage++
			default:
				t.Errorf("unexpected checkout error for %s: %v", user, err)
			}
		}(fmt.Sprintf("buyer-%d", i))
	}
	wg.Wait()

	assert.Equal(t, 3, placed)
	assert.Equal(t, buyers-3, shortage)
	assert.Equal(t, 0, s.stock(t, "kurta-07"))

	var orders, events int
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT count(*) FROM orders`).Scan(&orders))
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE type = $1`, order.EventOrderPlaced).Scan(&events))
	assert.Equal(t, 3, orders)
	assert.Equal(t, 3, events)
}

func TestPostgres_ReplayAndCancelRestock(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.product(t, "shawl-11", "2750.25", 4)

	_, err := s.carts.AddProduct(ctx, "zoya", "shawl-11", 2)
	require.NoError(t, err)

	req := checkoutapp.Request{UserID: "zoya", ShippingAddress: "Peshawar", IdempotencyKey: "k-42"}
	first, err := s.checkout.Checkout(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	assert.Equal(t, "5500.5", first.Order.TotalAmount.String())

	again, err := s.checkout.Checkout(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Order.ID, again.Order.ID)
	assert.Equal(t, 2, s.stock(t, "shawl-11"))

	c, err := s.carts.GetCart(ctx, "zoya")
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	cancelled, err := s.lifecycle.TransitionStatus(ctx, first.Order.ID, order.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	assert.Equal(t, 4, s.stock(t, "shawl-11"))

	_, err = s.lifecycle.TransitionStatus(ctx, first.Order.ID, order.StatusConfirmed)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

	got, err := s.orders.GetOrder(ctx, first.Order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "2750.25", got.Items[0].UnitPrice.StringFixed(2))
}

func TestPostgres_CartVersionsAreNotReused(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.product(t, "clutch-03", "999.00", 10)

	first, err := s.carts.AddProduct(ctx, "hina", "clutch-03", 1)
	require.NoError(t, err)
	require.NoError(t, s.carts.Clear(ctx, "hina"))
	second, err := s.carts.AddProduct(ctx, "hina", "clutch-03", 1)
	require.NoError(t, err)
	assert.Greater(t, second.Version, first.Version)
}

func createTopic(t *testing.T, topic string) {
	t.Helper()
	conn, err := kafka.Dial("tcp", env.KAddr[0])
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
}

func TestKafka_RelayPublishesOrderEvents(t *testing.T) {
	s := newStack(t)
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	topic := fmt.Sprintf("order.events.%d", time.Now().UnixNano())
	createTopic(t, topic)

	s.product(t, "abaya-05", "8000.00", 2)
	_, err := s.carts.AddProduct(ctx, "sana", "abaya-05", 1)
	require.NoError(t, err)
	res, err := s.checkout.Checkout(ctx, checkoutapp.Request{UserID: "sana", ShippingAddress: "Multan"})
	require.NoError(t, err)

	w := orderkafka.NewWriter(env.KAddr)
	defer w.Close()
	relay := outbox.NewRelay(log, s.events, outbox.NewDispatcher(log, w, topic), "it-relay")

	require.Eventually(t, func() bool {
		n, err := relay.Tick(ctx)
		return err == nil && n == 1
	}, 30*time.Second, 500*time.Millisecond)

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: env.KAddr, Topic: topic, Partition: 0})
	defer r.Close()
	msg, err := r.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.Order.ID, string(msg.Key))

	var eventType string
	for _, h := range msg.Headers {
		if h.Key == "event_type" {
			eventType = string(h.Value)
		}
	}
	assert.Equal(t, order.EventOrderPlaced, eventType)

	var status string
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT status FROM outbox WHERE aggregate_id = $1`, res.Order.ID).Scan(&status))
	assert.Equal(t, string(outbox.StatusSent), status)
}

func TestKafka_PaymentResultsDriveOrders(t *testing.T) {
	s := newStack(t)
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	topic := fmt.Sprintf("payment.events.%d", time.Now().UnixNano())
	createTopic(t, topic)

	s.product(t, "scarf-09", "650.00", 5)
	_, err := s.carts.AddProduct(ctx, "iqra", "scarf-09", 1)
	require.NoError(t, err)
	res, err := s.checkout.Checkout(ctx, checkoutapp.Request{UserID: "iqra", ShippingAddress: "Quetta"})
	require.NoError(t, err)

	body, err := json.Marshal(orderkafka.PaymentResult{Type: orderkafka.EventPaymentProcessed, OrderID: res.Order.ID})
	require.NoError(t, err)
	w := orderkafka.NewWriter(env.KAddr)
	defer w.Close()
	require.NoError(t, w.WriteMessages(ctx, kafka.Message{Topic: topic, Key: []byte(res.Order.ID), Value: body}))

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	reader := orderkafka.NewReader(env.KAddr, topic, "it-"+topic)
	consumer := orderkafka.NewConsumer(log, reader, s.lifecycle, idempotency.NewStore(rdb, time.Hour))
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Run(runCtx) }()

	require.Eventually(t, func() bool {
		o, err := s.orders.GetOrder(ctx, res.Order.ID)
		return err == nil && o.PaymentStatus == order.PaymentPaid
	}, 60*time.Second, 500*time.Millisecond)

	stop()
	assert.NoError(t, <-done)
}
