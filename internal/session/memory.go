package session

import (
	"context"
	"sync"
)

// MemoryStore mantiene la credencial sólo en memoria del proceso.
type MemoryStore struct {
	mu   sync.RWMutex
	cred *Credential
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(_ context.Context) (Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cred == nil {
		return Credential{}, ErrNoCredential
	}
	return *m.cred, nil
}

func (m *MemoryStore) Save(_ context.Context, c Credential) error {
	if err := c.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.cred = &c
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.cred = nil
	m.mu.Unlock()
	return nil
}
