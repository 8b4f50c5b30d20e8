package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	cartapp "github.com/dmehra2102/boutique-commerce/internal/cart/application"
	carthttp "github.com/dmehra2102/boutique-commerce/internal/cart/infrastructure/http"
	checkoutapp "github.com/dmehra2102/boutique-commerce/internal/checkout/application"
	checkouthttp "github.com/dmehra2102/boutique-commerce/internal/checkout/infrastructure/http"
	orderapp "github.com/dmehra2102/boutique-commerce/internal/order/application"
	orderhttp "github.com/dmehra2102/boutique-commerce/internal/order/infrastructure/http"
	"github.com/dmehra2102/boutique-commerce/pkg/httpx"
	"github.com/dmehra2102/boutique-commerce/pkg/metrics"
)

type app struct {
	router http.Handler
	carts  *cartapp.Service
	orders *orderapp.Service
}

// newApp wires the services over b. cache may be nil.
func newApp(log *slog.Logger, cfg config, b *backend, cache cartapp.Cache, reg *prometheus.Registry) *app {
	carts := cartapp.NewService(log.With("component", "cart"), b.carts, b.catalog, cache)

	opts := []checkoutapp.Option{checkoutapp.WithMetrics(metrics.NewCheckoutMetrics(reg))}
	if cache != nil {
		opts = append(opts, checkoutapp.WithCartCache(cache))
	}
	checkout := checkoutapp.NewService(log.With("component", "checkout"), b.tx, b.carts, b.catalog, b.orders, b.events, opts...)
	orders := orderapp.NewService(log.With("component", "order"), b.tx, b.orders, b.catalog, b.events, cfg.restockOnCancel)

	serverMetrics := metrics.NewServerMetrics(reg, "api")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(serverMetrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := b.ping(ctx); err != nil {
			log.Warn("readiness check failed", "err", err)
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.requestTimeout))
		r.Mount("/cart", carthttp.NewHandler(log, carts).Routes())
		r.Mount("/checkout", checkouthttp.NewHandler(log, checkout).Routes())
		r.Mount("/orders", orderhttp.NewHandler(log, orders).Routes())
	})

	return &app{router: r, carts: carts, orders: orders}
}
