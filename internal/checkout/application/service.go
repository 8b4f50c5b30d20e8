package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	cart "github.com/dmehra2102/boutique-commerce/internal/cart/domain"
	order "github.com/dmehra2102/boutique-commerce/internal/order/domain"
	"github.com/dmehra2102/boutique-commerce/pkg/apperr"
	"github.com/dmehra2102/boutique-commerce/pkg/metrics"
	"github.com/dmehra2102/boutique-commerce/pkg/outbox"
)

type Request struct {
	UserID          string
	ShippingAddress string
	IdempotencyKey  string
}

// Result carries the order and whether it was replayed from an earlier
// request with the same idempotency key.
type Result struct {
	Order    order.Order
	Replayed bool
}

type Service struct {
	log     *slog.Logger
	tx      Transactor
	carts   CartRepository
	catalog Catalog
	orders  OrderRepository
	events  EventRecorder
	cache   CartCache
	metrics *metrics.CheckoutMetrics
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
}

type Option func(*Service)

func WithCartCache(c CartCache) Option { return func(s *Service) { s.cache = c } }

func WithMetrics(m *metrics.CheckoutMetrics) Option { return func(s *Service) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(log *slog.Logger, tx Transactor, carts CartRepository, catalog Catalog, orders OrderRepository, events EventRecorder, opts ...Option) *Service {
	s := &Service{
		log:     log,
		tx:      tx,
		carts:   carts,
		catalog: catalog,
		orders:  orders,
		events:  events,
		tracer:  otel.Tracer("checkout"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout converts the user's cart into a pending order. Stock decrements,
// order creation, the outbox event and clearing the cart commit together or
// not at all; on failure the cart is left exactly as it was.
//
// Lines are priced at the live catalog price read during this call. The
// cart's add-time price is only a display snapshot.
func (s *Service) Checkout(ctx context.Context, req Request) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "Checkout", trace.WithAttributes(attribute.String("user_id", req.UserID)))
	defer span.End()

	res, err := s.checkout(ctx, req)
	s.metrics.Observe(outcome(res, err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout failed")
		return Result{}, err
	}
	span.SetAttributes(attribute.String("order_id", res.Order.ID), attribute.Bool("replayed", res.Replayed))
	return res, nil
}

func (s *Service) checkout(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return Result{}, apperr.Validation("user id is required")
	}
	if strings.TrimSpace(req.ShippingAddress) == "" {
		return Result{}, apperr.Validation("shipping address is required")
	}

	if req.IdempotencyKey != "" {
		prev, err := s.orders.FindByCheckoutKey(ctx, req.UserID, req.IdempotencyKey)
		switch {
		case err == nil:
			return Result{Order: prev, Replayed: true}, nil
		case !errors.Is(err, apperr.ErrNotFound):
			return Result{}, fmt.Errorf("lookup idempotency key: %w", err)
		}
	}

	c, err := s.carts.Get(ctx, req.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("load cart: %w", err)
	}
	if c.IsEmpty() {
		return Result{}, apperr.ErrEmptyCart
	}

	items, err := s.priceLines(ctx, c)
	if err != nil {
		return Result{}, err
	}

	o := order.NewOrder(s.newID(), req.UserID, strings.TrimSpace(req.ShippingAddress), items, s.now())
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.commit(ctx, req, c, o)
	})
	if errors.Is(err, order.ErrDuplicateCheckoutKey) {
		prev, findErr := s.orders.FindByCheckoutKey(ctx, req.UserID, req.IdempotencyKey)
		if findErr != nil {
			return Result{}, fmt.Errorf("replay idempotency key: %w", findErr)
		}
		return Result{Order: prev, Replayed: true}, nil
	}
	if err != nil {
		return Result{}, err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, req.UserID); err != nil {
			s.log.Warn("cart cache evict failed", "user_id", req.UserID, "err", err)
		}
	}
	s.log.Info("order placed", "order_id", o.ID, "user_id", o.UserID, "total", o.TotalAmount.String(), "lines", len(o.Items))
	return Result{Order: o}, nil
}

// priceLines re-reads every product and fails with every shortage at once.
func (s *Service) priceLines(ctx context.Context, c cart.Cart) ([]order.OrderItem, error) {
	items := make([]order.OrderItem, 0, len(c.Items))
	var shortages []apperr.Shortage
	for _, line := range c.Items {
		p, err := s.catalog.GetProduct(ctx, line.ProductID)
		if errors.Is(err, apperr.ErrNotFound) {
			shortages = append(shortages, apperr.Shortage{ProductID: line.ProductID, Requested: line.Quantity, Available: 0})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load product %s: %w", line.ProductID, err)
		}
		if line.Quantity > p.Stock {
			shortages = append(shortages, apperr.Shortage{ProductID: line.ProductID, Requested: line.Quantity, Available: p.Stock})
			continue
		}
		items = append(items, order.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    line.Quantity,
			UnitPrice:   p.Price,
		})
	}
	if len(shortages) > 0 {
		return nil, &apperr.InsufficientStockError{Shortages: shortages}
	}
	return items, nil
}

func (s *Service) commit(ctx context.Context, req Request, c cart.Cart, o order.Order) error {
	if req.IdempotencyKey != "" {
		if err := s.orders.ClaimCheckoutKey(ctx, req.UserID, req.IdempotencyKey, o.ID); err != nil {
			return err
		}
	}

	for _, item := range o.Items {
		ok, err := s.catalog.DecrementStockIfAvailable(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("decrement stock %s: %w", item.ProductID, err)
		}
		if !ok {
			return &apperr.ConflictError{Resource: "product stock", ID: item.ProductID}
		}
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	ev, err := outbox.NewEvent(ctx, order.AggregateType, o.ID, order.EventOrderPlaced, order.OrderPlaced{
		OrderID:     o.ID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		Items:       o.Items,
		PlacedAt:    o.CreatedAt,
	})
	if err != nil {
		return err
	}
	if err := s.events.Append(ctx, ev); err != nil {
		return err
	}

	cleared, err := s.carts.DeleteIfVersion(ctx, c.UserID, c.Version)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	if !cleared {
		return &apperr.ConflictError{Resource: "cart", ID: c.UserID}
	}
	return nil
}

func outcome(res Result, err error) string {
	switch {
	case err == nil && res.Replayed:
		return "replayed"
	case err == nil:
		return "success"
	case errors.Is(err, apperr.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, apperr.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, apperr.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, apperr.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
