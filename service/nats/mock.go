package nats

import (
	"context"
	"encoding/json"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu           sync.RWMutex
	progress     []*ProgressEvent
	completed    []*ScanCompletedEvent
	publishError error
	closed       bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishProgress records the event and returns any configured error.
func (m *MockPublisher) PublishProgress(ctx context.Context, event *ProgressEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.progress = append(m.progress, event)
	return nil
}

// PublishCompleted records the event and returns any configured error.
func (m *MockPublisher) PublishCompleted(ctx context.Context, event *ScanCompletedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}

	m.completed = append(m.completed, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ProgressEvents returns every published progress event.
func (m *MockPublisher) ProgressEvents() []*ProgressEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to avoid race conditions
	events := make([]*ProgressEvent, len(m.progress))
	copy(events, m.progress)
	return events
}

// CompletedEvents returns every published completion event.
func (m *MockPublisher) CompletedEvents() []*ScanCompletedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*ScanCompletedEvent, len(m.completed))
	copy(events, m.completed)
	return events
}

// SetPublishError configures the mock to fail every publish.
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

// MockSubscriber delivers messages pushed with Send to every subscriber of
// the matching wallet.
type MockSubscriber struct {
	mu        sync.Mutex
	subs      map[string][]chan Message
	subscribe error
}

// NewMockSubscriber creates a new mock subscriber for testing.
func NewMockSubscriber() *MockSubscriber {
	return &MockSubscriber{subs: make(map[string][]chan Message)}
}

// Subscribe registers a channel for wallet.
func (m *MockSubscriber) Subscribe(ctx context.Context, wallet string) (<-chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.subscribe != nil {
		return nil, m.subscribe
	}
	ch := make(chan Message, 10)
	m.subs[wallet] = append(m.subs[wallet], ch)
	return ch, nil
}

// Subscribers returns how many subscriptions wallet has.
func (m *MockSubscriber) Subscribers(wallet string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[wallet])
}

// Send marshals event and delivers it to wallet's subscribers.
func (m *MockSubscriber) Send(wallet, kind string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	subject := "scans." + wallet + "." + kind
	for _, ch := range m.subs[wallet] {
		ch <- Message{Kind: kind, Subject: subject, Data: data}
	}
	return nil
}

// SetSubscribeError configures the mock to fail Subscribe.
func (m *MockSubscriber) SetSubscribeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribe = err
}

// Close is a no-op.
func (m *MockSubscriber) Close() error {
	return nil
}
