package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	cartpg "github.com/dmehra2102/boutique-commerce/internal/cart/infrastructure/postgres"
	catalog "github.com/dmehra2102/boutique-commerce/internal/catalog/domain"
	catalogpg "github.com/dmehra2102/boutique-commerce/internal/catalog/infrastructure/postgres"
	orderpg "github.com/dmehra2102/boutique-commerce/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/boutique-commerce/internal/store/memory"
	"github.com/dmehra2102/boutique-commerce/migrations"
	"github.com/dmehra2102/boutique-commerce/pkg/outbox"
	"github.com/dmehra2102/boutique-commerce/pkg/pgtx"

	cartapp "github.com/dmehra2102/boutique-commerce/internal/cart/application"
	checkoutapp "github.com/dmehra2102/boutique-commerce/internal/checkout/application"
	orderapp "github.com/dmehra2102/boutique-commerce/internal/order/application"
)

type catalogStore interface {
	checkoutapp.Catalog
	orderapp.StockRestocker
	Upsert(ctx context.Context, p catalog.Product) error
}

type orderStore interface {
	checkoutapp.OrderRepository
	orderapp.OrderRepository
}

type eventStore interface {
	outbox.Store
	Append(ctx context.Context, ev outbox.Event) error
}

// backend bundles one persistence driver behind the ports the services use.
type backend struct {
	tx      checkoutapp.Transactor
	carts   cartapp.Repository
	catalog catalogStore
	orders  orderStore
	events  eventStore
	ping    func(ctx context.Context) error
	close   func()
}

func openBackend(ctx context.Context, log *slog.Logger, cfg config) (*backend, error) {
	if cfg.storeDriver == "memory" {
		s := memory.NewStore()
		log.Warn("using in-memory store, state is lost on exit")
		return &backend{
			tx:      s,
			carts:   s,
			catalog: s,
			orders:  s,
			events:  s,
			ping:    func(context.Context) error { return nil },
			close:   func() {},
		}, nil
	}

	if err := migrations.Up(cfg.pgURL); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, cfg.pgURL)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}

	return &backend{
		tx:      pgtx.NewTransactor(pool),
		carts:   cartpg.NewRepository(log, pool),
		catalog: catalogpg.NewRepository(log, pool),
		orders:  orderpg.NewRepository(log, pool),
		events:  outbox.NewPostgresStore(log, pool),
		ping:    pool.Ping,
		close:   pool.Close,
	}, nil
}

func (b *backend) seed(ctx context.Context, log *slog.Logger, path string) error {
	products, err := readSeed(path)
	if err != nil {
		return err
	}
	for _, p := range products {
		if err := b.catalog.Upsert(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}
	log.Info("catalog seeded", "products", len(products), "path", path)
	return nil
}
