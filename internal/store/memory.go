package store

import (
	"sync"

	"github.com/dukerupert/gatekeep/internal/model"
)

// Memory is the default in-memory Store. Timer callbacks and the update loop
// touch it from different goroutines, so access is mutex-guarded.
type Memory struct {
	mu   sync.RWMutex
	subs map[int64]model.Subscription
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{subs: make(map[int64]model.Subscription)}
}

func (m *Memory) Get(principal int64) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subs[principal]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (m *Memory) Put(sub model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.Principal] = sub
	return nil
}

func (m *Memory) Deactivate(principal int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[principal]
	if !ok {
		return nil
	}
	sub.Active = false
	m.subs[principal] = sub
	return nil
}
