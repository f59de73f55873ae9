package watch

import (
	"context"
	"sync"

	"github.com/kioskd/kioskd/internal/models"
)

// Memory is a programmable Service for tests and local runs. Published
// snapshots are buffered until subscribed.
type Memory struct {
	mu          sync.Mutex
	documents   map[string]chan DocumentEvent
	collections map[string]chan CollectionEvent
	closed      bool
}

func NewMemory() *Memory {
	return &Memory{
		documents:   make(map[string]chan DocumentEvent),
		collections: make(map[string]chan CollectionEvent),
	}
}

func (m *Memory) document(path string) chan DocumentEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.documents[path]
	if !ok {
		ch = make(chan DocumentEvent, 32)
		m.documents[path] = ch
		if m.closed {
			close(ch)
		}
	}
	return ch
}

func (m *Memory) collection(path string) chan CollectionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.collections[path]
	if !ok {
		ch = make(chan CollectionEvent, 32)
		m.collections[path] = ch
		if m.closed {
			close(ch)
		}
	}
	return ch
}

func (m *Memory) PublishDocument(path string, cfg *models.RemoteConfig) {
	m.document(path) <- DocumentEvent{Config: cfg}
}

func (m *Memory) FailDocument(path string, err error) {
	m.document(path) <- DocumentEvent{Err: err}
}

func (m *Memory) PublishCollection(path string, users models.InternalUserSet) {
	m.collection(path) <- CollectionEvent{Users: users}
}

func (m *Memory) FailCollection(path string, err error) {
	m.collection(path) <- CollectionEvent{Err: err}
}

func (m *Memory) SubscribeDocument(ctx context.Context, path string) (<-chan DocumentEvent, error) {
	return m.document(path), nil
}

func (m *Memory) SubscribeCollection(ctx context.Context, path string) (<-chan CollectionEvent, error) {
	return m.collection(path), nil
}

// CloseStreams closes every subscription channel, including those
// subscribed afterwards.
func (m *Memory) CloseStreams() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, ch := range m.documents {
		close(ch)
	}
	for _, ch := range m.collections {
		close(ch)
	}
}

func (m *Memory) Close() error {
	return nil
}
