package mocks

import (
	"context"
	"sync"
)

// MockProducer records published messages instead of writing them to Kafka
type MockProducer struct {
	mu sync.Mutex

	PublishCalls    []PublishCall
	PublishErr      error
	PublishCallback func(ctx context.Context, key string, event any) error
}

// PublishCall records parameters passed to Publish
type PublishCall struct {
	Key   string
	Event any
}

func NewMockProducer() *MockProducer {
	return &MockProducer{}
}

func (m *MockProducer) Publish(ctx context.Context, key string, event any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PublishCalls = append(m.PublishCalls, PublishCall{Key: key, Event: event})

	if m.PublishCallback != nil {
		return m.PublishCallback(ctx, key, event)
	}
	return m.PublishErr
}

// Calls returns a snapshot of the recorded calls
func (m *MockProducer) Calls() []PublishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishCall(nil), m.PublishCalls...)
}
