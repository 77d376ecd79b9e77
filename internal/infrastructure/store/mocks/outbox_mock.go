package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/example/pos-ledger/internal/infrastructure/store"
	"github.com/google/uuid"
)

// MockOutbox is a mock implementation of store.Outbox for testing
type MockOutbox struct {
	mu     sync.Mutex
	events []store.Event
	sent   map[string]bool

	// For tracking calls in tests
	PendingCalls  []int
	MarkSentCalls []string
	PendingErr    error
	MarkSentErr   error
}

// NewMockOutbox creates a new MockOutbox
func NewMockOutbox() *MockOutbox {
	return &MockOutbox{sent: make(map[string]bool)}
}

// PendingEvents returns unsent events in insertion order
func (m *MockOutbox) PendingEvents(ctx context.Context, limit int) ([]store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PendingCalls = append(m.PendingCalls, limit)
	if m.PendingErr != nil {
		return nil, m.PendingErr
	}

	var pending []store.Event
	for _, e := range m.events {
		if m.sent[e.ID] {
			continue
		}
		pending = append(pending, e)
		if limit > 0 && len(pending) == limit {
			break
		}
	}
	return pending, nil
}

// MarkEventSent records the call and flags the event as relayed
func (m *MockOutbox) MarkEventSent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.MarkSentCalls = append(m.MarkSentCalls, id)
	if m.MarkSentErr != nil {
		return m.MarkSentErr
	}
	m.sent[id] = true
	return nil
}

// AddEvent adds a single pending event for testing
func (m *MockOutbox) AddEvent(aggregateID, aggregateType, eventType string, data any) (store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return store.Event{}, err
	}

	version := 1
	for _, e := range m.events {
		if e.AggregateID == aggregateID {
			version++
		}
	}
	event := store.Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     time.Now(),
		Version:       version,
	}
	m.events = append(m.events, event)
	return event, nil
}

// IsSent reports whether the event was marked as relayed
func (m *MockOutbox) IsSent(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[id]
}
