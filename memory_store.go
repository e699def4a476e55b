package studo

import (
	"context"
	"sync"
)

// MemoryStore is an in-process SessionStore and FlowStore. Nothing survives
// a restart, so OAuth flows can only be resumed by the same process.
type MemoryStore struct {
	mu      sync.RWMutex
	session *ActiveSession
	flows   map[string]PendingOAuthFlow
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flows: make(map[string]PendingOAuthFlow)}
}

func (m *MemoryStore) LoadSession(ctx context.Context) (*ActiveSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil, nil
	}
	s := *m.session
	return &s, nil
}

func (m *MemoryStore) SaveSession(ctx context.Context, session *ActiveSession) error {
	if session == nil || session.SessionID == "" {
		return ErrEmptySessionID
	}
	s := *session
	m.mu.Lock()
	m.session = &s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ClearSession(ctx context.Context) error {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) SaveFlow(ctx context.Context, flow *PendingOAuthFlow) error {
	m.mu.Lock()
	m.flows[flow.ID] = *flow
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetFlow(ctx context.Context, id string) (*PendingOAuthFlow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.flows[id]
	if !ok {
		return nil, ErrFlowNotFound
	}
	return &f, nil
}

func (m *MemoryStore) DeleteFlow(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.flows, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) TakeFlow(ctx context.Context, id string) (*PendingOAuthFlow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flows[id]
	if !ok {
		return nil, ErrFlowNotFound
	}
	delete(m.flows, id)
	return &f, nil
}
