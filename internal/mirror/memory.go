package mirror

import (
	"context"
	"sync"

	"github.com/duetrack/duetrack/internal/idgen"
)

// MemoryStore is a shared in-memory mirror backend. Each device/tab opens
// its own handle; writes through one handle notify watchers on every other
// handle. Used in tests and when no Redis address is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	values  map[string][]byte
	handles map[*MemoryMirror]bool
}

// NewMemoryStore creates a new shared in-memory mirror backend.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:  make(map[string][]byte),
		handles: make(map[*MemoryMirror]bool),
	}
}

// Open creates a handle with its own origin id.
func (s *MemoryStore) Open() *MemoryMirror {
	return s.OpenAs(idgen.Hex(6))
}

// OpenAs creates a handle with an explicit origin id.
func (s *MemoryStore) OpenAs(origin string) *MemoryMirror {
	h := &MemoryMirror{store: s, origin: origin}
	s.mu.Lock()
	s.handles[h] = true
	s.mu.Unlock()
	return h
}

// notify delivers an event to watchers on every handle except the writer's.
// Handlers are invoked synchronously so a write is observable by other
// handles before the writer's call returns, but outside the store lock so
// handlers may call back into the mirror.
func (s *MemoryStore) notify(ev Event) {
	s.mu.RLock()
	var fns []func(Event)
	for h := range s.handles {
		if h.origin == ev.Origin {
			continue
		}
		h.mu.RLock()
		fns = append(fns, h.watchers...)
		h.mu.RUnlock()
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// MemoryMirror is one device's handle on a MemoryStore.
type MemoryMirror struct {
	store  *MemoryStore
	origin string

	mu       sync.RWMutex
	watchers []func(Event)
	closed   bool
}

func (m *MemoryMirror) Get(_ context.Context, key string) ([]byte, error) {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	v, ok := m.store.values[key]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *MemoryMirror) Set(_ context.Context, key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)

	m.store.mu.Lock()
	m.store.values[key] = cp
	m.store.mu.Unlock()

	m.store.notify(Event{Key: key, Value: cp, Origin: m.origin})
	return nil
}

func (m *MemoryMirror) Delete(_ context.Context, key string) error {
	m.store.mu.Lock()
	_, existed := m.store.values[key]
	delete(m.store.values, key)
	m.store.mu.Unlock()

	if existed {
		m.store.notify(Event{Key: key, Value: nil, Origin: m.origin})
	}
	return nil
}

func (m *MemoryMirror) Watch(fn func(Event)) (cancel func()) {
	m.mu.Lock()
	m.watchers = append(m.watchers, fn)
	idx := len(m.watchers) - 1
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if idx < len(m.watchers) {
			m.watchers[idx] = func(Event) {}
		}
	}
}

func (m *MemoryMirror) Origin() string { return m.origin }

func (m *MemoryMirror) Close() error {
	m.mu.Lock()
	m.closed = true
	m.watchers = nil
	m.mu.Unlock()

	m.store.mu.Lock()
	delete(m.store.handles, m)
	m.store.mu.Unlock()
	return nil
}

var _ Mirror = (*MemoryMirror)(nil)
