package kvstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. Tabs served by the same process share
// it; it does not reach other instances.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string

	subsMu sync.Mutex
	subs   map[int]*subscription
	nextID int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]string),
		subs: make(map[int]*subscription),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) GetMany(_ context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *MemoryStore) SetMany(_ context.Context, origin string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	changes := make([]Change, 0, len(values))
	m.mu.Lock()
	for _, k := range sortedKeys(values) {
		m.data[k] = values[k]
		changes = append(changes, Change{Key: k, Value: values[k], Origin: origin})
	}
	m.mu.Unlock()
	m.broadcast(changes)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, origin string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	changes := make([]Change, 0, len(keys))
	m.mu.Lock()
	for _, k := range keys {
		delete(m.data, k)
		changes = append(changes, Change{Key: k, Deleted: true, Origin: origin})
	}
	m.mu.Unlock()
	m.broadcast(changes)
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context) (<-chan Change, error) {
	sub := newSubscription()

	m.subsMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = sub
	m.subsMu.Unlock()

	go sub.pump(ctx)
	go func() {
		<-ctx.Done()
		m.subsMu.Lock()
		delete(m.subs, id)
		m.subsMu.Unlock()
	}()
	return sub.out, nil
}

func (m *MemoryStore) broadcast(changes []Change) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, sub := range m.subs {
		sub.push(changes)
	}
}

// subscription queues changes without bounding so writers never block on a
// slow reader.
type subscription struct {
	mu    sync.Mutex
	queue []Change
	wake  chan struct{}
	out   chan Change
}

func newSubscription() *subscription {
	return &subscription{
		wake: make(chan struct{}, 1),
		out:  make(chan Change),
	}
}

func (s *subscription) push(changes []Change) {
	s.mu.Lock()
	s.queue = append(s.queue, changes...)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) pump(ctx context.Context) {
	defer close(s.out)
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, c := range batch {
			select {
			case s.out <- c:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-s.wake:
		case <-ctx.Done():
			return
		}
	}
}
