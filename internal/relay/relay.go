package relay

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/example/pos-ledger/internal/infrastructure/store"
	"github.com/example/pos-ledger/internal/metrics"
)

// Publisher is satisfied by kafka.Producer and rabbitmq.Publisher.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Relay moves committed outbox events to the message broker. Delivery is at least once:
// an event published but not yet marked sent is published again on the next flush.
type Relay struct {
	outbox    store.Outbox
	publisher Publisher
	metrics   *metrics.Collector
	interval  time.Duration
	batch     int
}

func New(outbox store.Outbox, publisher Publisher, m *metrics.Collector, interval time.Duration, batch int) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Relay{outbox: outbox, publisher: publisher, metrics: m, interval: interval, batch: batch}
}

// Flush publishes one batch of pending events in outbox order and returns how many were sent.
// It stops at the first failure so later events of the same aggregate are not sent out of order.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.outbox.PendingEvents(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("fetch pending events: %w", err)
	}

	sent := 0
	for _, e := range events {
		if err := r.publisher.Publish(ctx, e.AggregateID, e); err != nil {
			r.metrics.Relayed(false)
			return sent, fmt.Errorf("publish %s %s: %w", e.EventType, e.ID, err)
		}
		if err := r.outbox.MarkEventSent(ctx, e.ID); err != nil {
			r.metrics.Relayed(false)
			return sent, fmt.Errorf("mark event %s sent: %w", e.ID, err)
		}
		r.metrics.Relayed(true)
		sent++
	}
	return sent, nil
}

// Run flushes on every tick until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Printf("[Relay] Started (interval %s, batch %d)", r.interval, r.batch)
	for {
		select {
		case <-ctx.Done():
			log.Println("[Relay] Stopped")
			return
		case <-ticker.C:
			n, err := r.Flush(ctx)
			if err != nil && ctx.Err() == nil {
				log.Printf("[Relay] Flush failed after %d events: %v", n, err)
				continue
			}
			if n > 0 {
				log.Printf("[Relay] Published %d events", n)
			}
		}
	}
}
