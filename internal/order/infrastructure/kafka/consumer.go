package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/boutique-commerce/internal/order/domain"
	"github.com/dmehra2102/boutique-commerce/pkg/apperr"
	"github.com/dmehra2102/boutique-commerce/pkg/tracing"
)

const (
	EventPaymentProcessed = "PaymentProcessed"
	EventPaymentFailed    = "PaymentFailed"
)

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Deduper interface {
	Key(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type PaymentApplier interface {
	TransitionPayment(ctx context.Context, id string, next domain.PaymentStatus) (domain.Order, error)
}

// PaymentResult is the payload published by the payment provider bridge.
// Type may be omitted when the event_type header is set.
type PaymentResult struct {
	Type    string `json:"type"`
	OrderID string `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}

type Consumer struct {
	log         *slog.Logger
	reader      Reader
	svc         PaymentApplier
	idem        Deduper
	tracer      trace.Tracer
	backoff     time.Duration
	maxBackoff  time.Duration
	alertAfter  int
}

func NewConsumer(log *slog.Logger, reader Reader, svc PaymentApplier, idem Deduper) *Consumer {
	return &Consumer{
		log:         log,
		reader:      reader,
		svc:         svc,
		idem:        idem,
		tracer:      otel.Tracer("payment-consumer"),
		backoff:     200 * time.Millisecond,
		maxBackoff:  5 * time.Second,
		alertAfter:  3,
	}
}

// Run consumes until ctx is cancelled. Messages are committed once handled,
// including poison messages that can never apply. A message that still fails
// transiently when ctx ends is left uncommitted so the group redelivers it.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("payment consumer stopping")
				return nil
			}
			return err
		}
		if err := c.handle(ctx, msg); err != nil {
			c.log.Warn("payment result left uncommitted", "topic", msg.Topic, "offset", msg.Offset, "err", err)
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error("commit failed", "topic", msg.Topic, "offset", msg.Offset, "err", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
	seen, err := c.idem.Seen(ctx, key)
	if err != nil {
		c.log.Warn("idempotency check failed, processing anyway", "key", key, "err", err)
	}
	if seen {
		c.log.Info("duplicate message skipped", "key", key)
		return nil
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumePaymentResult")
	defer span.End()

	var ev PaymentResult
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.log.Error("unmarshal payment result failed", "offset", msg.Offset, "err", err)
		return nil
	}
	if t := tracing.HeaderValue(msg.Headers, "event_type"); t != "" {
		ev.Type = t
	}

	var next domain.PaymentStatus
	switch ev.Type {
	case EventPaymentProcessed:
		next = domain.PaymentPaid
	case EventPaymentFailed:
		next = domain.PaymentFailed
	default:
		c.log.Debug("ignoring event", "type", ev.Type, "order_id", ev.OrderID)
		return nil
	}
	span.SetAttributes(attribute.String("order_id", ev.OrderID), attribute.String("payment_status", string(next)))

	for attempt := 1; ; attempt++ {
		_, err = c.svc.TransitionPayment(msgCtx, ev.OrderID, next)
		if err == nil {
			c.log.Info("payment result applied", "order_id", ev.OrderID, "payment_status", next)
			return nil
		}
		if permanent(err) {
			c.log.Warn("payment result rejected", "order_id", ev.OrderID, "payment_status", next, "err", err)
			return nil
		}
		level := slog.LevelWarn
		if attempt >= c.alertAfter {
			level = slog.LevelError
		}
		c.log.Log(ctx, level, "payment result failed, retrying", "order_id", ev.OrderID, "attempt", attempt, "err", err)
		if !sleep(ctx, c.retryDelay(attempt)) {
			break
		}
	}

	span.RecordError(err)
	if err := c.idem.Forget(context.WithoutCancel(ctx), key); err != nil {
		c.log.Warn("idempotency release failed", "key", key, "err", err)
	}
	return fmt.Errorf("apply payment result for order %s: %w", ev.OrderID, err)
}

func (c *Consumer) retryDelay(attempt int) time.Duration {
	return min(time.Duration(attempt)*c.backoff, c.maxBackoff)
}

func permanent(err error) bool {
	return errors.Is(err, apperr.ErrInvalidTransition) ||
		errors.Is(err, apperr.ErrNotFound) ||
		errors.Is(err, apperr.ErrValidation)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
