package nats

import (
	"context"
	"sync"
)

// MockPublisher is an in-memory Publisher for tests.
type MockPublisher struct {
	mu           sync.RWMutex
	events       []*TransactionEvent
	publishError error
	closed       bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishTransaction records the event and returns any configured error.
func (m *MockPublisher) PublishTransaction(ctx context.Context, event *TransactionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.events = append(m.events, event)
	return nil
}

// PublishTransactionBatch records the events and returns any configured error.
func (m *MockPublisher) PublishTransactionBatch(ctx context.Context, events []*TransactionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.events = append(m.events, events...)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Events returns a copy of everything published so far.
func (m *MockPublisher) Events() []*TransactionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*TransactionEvent, len(m.events))
	copy(events, m.events)
	return events
}

// EventsForWallet returns events published for one wallet on one chain.
func (m *MockPublisher) EventsForWallet(chain, address string) []*TransactionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var events []*TransactionEvent
	for _, event := range m.events {
		if event.Chain == chain && event.WalletAddress == address {
			events = append(events, event)
		}
	}
	return events
}

// SetPublishError makes every subsequent publish fail with err.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
