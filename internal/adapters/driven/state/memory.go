// Package state provides Protocol State Store adapters: keyed, per-key
// transactional stores for in-flight SAML handshake state.
package state

import (
	"context"
	"sync"

	"github.com/philiph/samlspflow/internal/core/ports"
)

// Memory is an in-process StateStore. State does not survive a process
// restart; use the Redis adapter for multi-process deployments.
type Memory struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
	data  map[string][]byte
}

// NewMemory creates an empty in-memory state store.
func NewMemory() *Memory {
	return &Memory{
		locks: make(map[string]chan struct{}),
		data:  make(map[string][]byte),
	}
}

// Acquire locks the key and returns a transaction over it. Blocks until the
// key is free or the context is done.
func (m *Memory) Acquire(ctx context.Context, key string) (ports.StateTx, error) {
	for {
		m.mu.Lock()
		held, ok := m.locks[key]
		if !ok {
			m.locks[key] = make(chan struct{})
			var value []byte
			stored, exists := m.data[key]
			if exists {
				value = make([]byte, len(stored))
				copy(value, stored)
			}
			m.mu.Unlock()
			return &memoryTx{store: m, key: key, value: value, exists: exists}, nil
		}
		m.mu.Unlock()

		select {
		case <-held:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *Memory) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if held, ok := m.locks[key]; ok {
		delete(m.locks, key)
		close(held)
	}
}

type memoryTx struct {
	store   *Memory
	key     string
	value   []byte
	exists  bool
	deleted bool
	dirty   bool
	done    sync.Once
}

// Get returns the current value, or false if the entry does not exist.
func (t *memoryTx) Get() ([]byte, bool) {
	if t.deleted || !t.exists {
		return nil, false
	}
	return t.value, true
}

// Set stages a new value for the entry.
func (t *memoryTx) Set(value []byte) {
	t.value = make([]byte, len(value))
	copy(t.value, value)
	t.exists = true
	t.deleted = false
	t.dirty = true
}

// Delete stages removal of the entry.
func (t *memoryTx) Delete() {
	t.deleted = true
	t.dirty = true
}

// Commit writes staged changes to the store.
func (t *memoryTx) Commit(_ context.Context) error {
	if !t.dirty {
		return nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if t.deleted {
		delete(t.store.data, t.key)
	} else {
		stored := make([]byte, len(t.value))
		copy(stored, t.value)
		t.store.data[t.key] = stored
	}
	t.dirty = false
	return nil
}

// Release unlocks the key. Safe to call more than once.
func (t *memoryTx) Release() {
	t.done.Do(func() {
		t.store.release(t.key)
	})
}
