package memory

import (
	"context"
	"slices"
	"time"

	"github.com/dmehra2102/boutique-commerce/pkg/outbox"
)

func (s *Store) Append(ctx context.Context, ev outbox.Event) error {
	t, release := s.acquire(ctx)
	defer release()

	s.nextID++
	ev.ID = s.nextID
	ev.Status = outbox.StatusPending
	n := len(s.events)
	s.events = append(s.events, ev)
	t.onRollback(func() { s.events = s.events[:n] })
	return nil
}

// Events returns a copy of every appended outbox event.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

// LockBatch leases pending events and in-progress events whose lease ran out.
func (s *Store) LockBatch(_ context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var batch []outbox.Event
	for i := range s.events {
		if len(batch) == batchSize {
			break
		}
		ev := &s.events[i]
		expired := ev.Status == outbox.StatusInProgress && now.After(s.leases[ev.ID])
		if ev.Status != outbox.StatusPending && !expired {
			continue
		}
		ev.Status = outbox.StatusInProgress
		ev.RelayID = relayID
		s.leases[ev.ID] = now.Add(lease)
		batch = append(batch, *ev)
	}
	return batch, nil
}

func (s *Store) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if slices.Contains(ids, s.events[i].ID) {
			s.events[i].Status = outbox.StatusSent
			delete(s.leases, s.events[i].ID)
		}
	}
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id int64, errMsg string, maxRetries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		ev := &s.events[i]
		if ev.ID != id {
			continue
		}
		ev.RetryCount++
		ev.LastError = &errMsg
		ev.Status = outbox.StatusPending
		if ev.RetryCount >= maxRetries {
			ev.Status = outbox.StatusFailed
		}
		delete(s.leases, id)
	}
	return nil
}

func (s *Store) ExtendLease(_ context.Context, relayID string, ids []int64, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	until := time.Now().Add(lease)
	for _, ev := range s.events {
		if ev.RelayID == relayID && slices.Contains(ids, ev.ID) {
			s.leases[ev.ID] = until
		}
	}
	return nil
}
