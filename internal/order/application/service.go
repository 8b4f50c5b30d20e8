package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/boutique-commerce/internal/order/domain"
	"github.com/dmehra2102/boutique-commerce/pkg/apperr"
	"github.com/dmehra2102/boutique-commerce/pkg/outbox"
)

type Service struct {
	log     *slog.Logger
	tx      Transactor
	repo    OrderRepository
	stock   StockRestocker
	events  EventRecorder
	restock bool
	now     func() time.Time
}

// NewService builds the lifecycle tracker. When restockOnCancel is set, a
// cancellation returns every item's quantity to stock in the same transaction.
func NewService(log *slog.Logger, tx Transactor, repo OrderRepository, stock StockRestocker, events EventRecorder, restockOnCancel bool) *Service {
	return &Service{
		log:     log,
		tx:      tx,
		repo:    repo,
		stock:   stock,
		events:  events,
		restock: restockOnCancel,
		now:     time.Now,
	}
}

func (s *Service) Get(ctx context.Context, id string) (domain.Order, error) {
	return s.repo.GetOrder(ctx, id)
}

func (s *Service) TransitionStatus(ctx context.Context, id string, next domain.Status) (domain.Order, error) {
	var out domain.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		from := o.Status
		if err := o.TransitionStatus(next, s.now()); err != nil {
			return err
		}
		if err := s.repo.UpdateStatus(ctx, id, from, o.Status, o.UpdatedAt); err != nil {
			return err
		}

		restocked := false
		if next == domain.StatusCancelled && s.restock {
			for _, item := range o.Items {
				if err := s.stock.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
					// The order exists; a vanished product must not surface as 404.
					if errors.Is(err, apperr.ErrNotFound) {
						err = &apperr.ConflictError{Resource: "product", ID: item.ProductID}
					}
					return fmt.Errorf("restock %s: %w", item.ProductID, err)
				}
			}
			restocked = true
		}

		ev, err := outbox.NewEvent(ctx, domain.AggregateType, id, domain.EventOrderStatusChanged, domain.OrderStatusChanged{
			OrderID:   id,
			From:      from,
			To:        o.Status,
			Restocked: restocked,
			ChangedAt: o.UpdatedAt,
		})
		if err != nil {
			return err
		}
		if err := s.events.Append(ctx, ev); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.log.Info("order status changed", "order_id", id, "status", out.Status)
	return out, nil
}

func (s *Service) TransitionPayment(ctx context.Context, id string, next domain.PaymentStatus) (domain.Order, error) {
	var out domain.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		from := o.PaymentStatus
		if err := o.TransitionPayment(next, s.now()); err != nil {
			return err
		}
		if err := s.repo.UpdatePayment(ctx, id, from, o.PaymentStatus, o.UpdatedAt); err != nil {
			return err
		}

		ev, err := outbox.NewEvent(ctx, domain.AggregateType, id, domain.EventOrderPaymentChanged, domain.OrderPaymentChanged{
			OrderID:   id,
			From:      from,
			To:        o.PaymentStatus,
			ChangedAt: o.UpdatedAt,
		})
		if err != nil {
			return err
		}
		if err := s.events.Append(ctx, ev); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.log.Info("order payment changed", "order_id", id, "payment_status", out.PaymentStatus)
	return out, nil
}
