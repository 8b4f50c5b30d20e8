package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	cartapp "github.com/dmehra2102/boutique-commerce/internal/cart/application"
	cartredis "github.com/dmehra2102/boutique-commerce/internal/cart/infrastructure/redis"
	orderkafka "github.com/dmehra2102/boutique-commerce/internal/order/infrastructure/kafka"
	"github.com/dmehra2102/boutique-commerce/pkg/idempotency"
	"github.com/dmehra2102/boutique-commerce/pkg/logging"
	"github.com/dmehra2102/boutique-commerce/pkg/outbox"
	"github.com/dmehra2102/boutique-commerce/pkg/shutdown"
	"github.com/dmehra2102/boutique-commerce/pkg/tracing"
)

const service = "boutique-api"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.New(service, cfg.logLevel)

	ctx, cancel := shutdown.WithSignals(context.Background(), log)
	defer cancel()

	tp, err := tracing.Init(ctx, service, cfg.otlpEndpoint, log)
	if err != nil {
		return fmt.Errorf("otel init: %w", err)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	b, err := openBackend(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer b.close()
	if cfg.catalogSeed != "" {
		if err := b.seed(ctx, log, cfg.catalogSeed); err != nil {
			return err
		}
	}

	var (
		rdb   *goredis.Client
		cache cartapp.Cache
	)
	if cfg.redisAddr != "" {
		rdb = goredis.NewClient(&goredis.Options{Addr: cfg.redisAddr})
		defer rdb.Close()
		cache = cartredis.NewCache(rdb, cfg.cartCacheTTL)
	} else {
		log.Warn("REDIS_ADDR not set, cart cache disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a := newApp(log, cfg, b, cache, reg)

	srv := &http.Server{
		Addr:              cfg.httpAddr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.requestTimeout + 5*time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if len(cfg.kafkaBrokers) > 0 {
		writer := orderkafka.NewWriter(cfg.kafkaBrokers)
		defer writer.Close()

		dispatch := outbox.NewDispatcher(log, writer, cfg.outboxTopic)
		relay := outbox.NewRelay(log, b.events, dispatch, service+"-"+uuid.NewString()[:8])
		g.Go(func() error { return relay.Run(gctx) })

		if rdb != nil {
			reader := orderkafka.NewReader(cfg.kafkaBrokers, cfg.paymentTopic, cfg.consumerGroup)
			consumer := orderkafka.NewConsumer(log, reader, a.orders, idempotency.NewStore(rdb, 24*time.Hour))
			g.Go(func() error { return consumer.Run(gctx) })
		} else {
			log.Warn("payment consumer disabled, it needs REDIS_ADDR for deduplication")
		}
	} else {
		log.Warn("KAFKA_ADDR not set, outbox relay and payment consumer disabled")
	}

	g.Go(func() error {
		log.Info("http listening", "addr", cfg.httpAddr, "store", cfg.storeDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("shutdown complete")
	return err
}
