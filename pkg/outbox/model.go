package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmehra2102/boutique-commerce/pkg/tracing"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	CreatedAt     time.Time
	Status        Status
	RelayID       string
	RetryCount    int
	LastError     *string
}

// NewEvent marshals payload and captures the caller's trace context so the
// relay can continue the trace when the event is published.
func NewEvent(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          eventType,
		Payload:       body,
		Headers:       map[string]string{"source": "boutique-commerce"},
		Traceparent:   tracing.Traceparent(ctx),
		CreatedAt:     time.Now().UTC(),
		Status:        StatusPending,
	}, nil
}
