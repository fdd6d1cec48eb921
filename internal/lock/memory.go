package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryStore serializes holders inside a single process. It backs the
// single-instance deployment and tests; multi-instance deployments use
// EtcdStore or RedisStore.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]*memorySlot
}

type memorySlot struct {
	sem  chan struct{}
	refs int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]*memorySlot)}
}

func (s *MemoryStore) TryAcquire(ctx context.Context, key string, wait time.Duration) (Handle, error) {
	slot := s.ref(key)

	select {
	case slot.sem <- struct{}{}:
		return &memoryHandle{store: s, key: key, slot: slot}, nil
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case slot.sem <- struct{}{}:
		return &memoryHandle{store: s, key: key, slot: slot}, nil
	case <-timer.C:
		s.unref(key)
		return nil, nil
	case <-ctx.Done():
		s.unref(key)
		return nil, ctx.Err()
	}
}

func (s *MemoryStore) ref(key string) *memorySlot {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.keys[key]
	if !ok {
		slot = &memorySlot{sem: make(chan struct{}, 1)}
		s.keys[key] = slot
	}
	slot.refs++
	return slot
}

func (s *MemoryStore) unref(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.keys[key]
	if !ok {
		return
	}
	slot.refs--
	if slot.refs == 0 {
		delete(s.keys, key)
	}
}

type memoryHandle struct {
	store *MemoryStore
	key   string
	slot  *memorySlot
	once  sync.Once
}

func (h *memoryHandle) Release(context.Context) error {
	h.once.Do(func() {
		<-h.slot.sem
		h.store.unref(h.key)
	})
	return nil
}
