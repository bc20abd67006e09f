package cart

import (
	"context"
	"sync"

	"merceria/backend/internal/cache"
)

// Manager hands out one Store per session, loading each from the durable
// slot the first time the session shows up.
type Manager struct {
	mu     sync.Mutex
	slot   cache.CartSlot
	stores map[string]*Store
}

func NewManager(slot cache.CartSlot) *Manager {
	if slot == nil {
		slot = cache.NoopCartSlot{}
	}
	return &Manager{slot: slot, stores: make(map[string]*Store)}
}

func (m *Manager) For(ctx context.Context, sessionID string) *Store {
	m.mu.Lock()
	s, ok := m.stores[sessionID]
	if !ok {
		s = NewStore(m.slot, "cart:"+sessionID)
		m.stores[sessionID] = s
	}
	m.mu.Unlock()

	if !ok {
		s.Load(ctx)
	}
	return s
}

// Drop forgets a session's in-memory store (the durable slot is untouched).
func (m *Manager) Drop(sessionID string) {
	m.mu.Lock()
	delete(m.stores, sessionID)
	m.mu.Unlock()
}
