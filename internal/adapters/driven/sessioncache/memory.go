// Package sessioncache provides SessionCache adapters: per-browser-session
// key-value stores with no cross-session visibility.
package sessioncache

import "sync"

// Memory is an in-process SessionCache. Suitable for single-process
// deployments and tests; the browser-session store of the host framework is
// the expected backend in production.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]map[string][]byte
}

// NewMemory creates an empty in-memory session cache.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]map[string][]byte),
	}
}

// Get returns the value stored under key for the session handle.
func (m *Memory) Get(handle, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records, ok := m.sessions[handle]
	if !ok {
		return nil, false
	}
	value, ok := records[key]
	if !ok {
		return nil, false
	}
	// Copy so callers cannot mutate the stored record.
	out := make([]byte, len(value))
	copy(out, value)
	return out, true
}

// Set stores value under key for the session handle.
func (m *Memory) Set(handle, key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records, ok := m.sessions[handle]
	if !ok {
		records = make(map[string][]byte)
		m.sessions[handle] = records
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	records[key] = stored
}

// Delete removes key for the session handle.
func (m *Memory) Delete(handle, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if records, ok := m.sessions[handle]; ok {
		delete(records, key)
		if len(records) == 0 {
			delete(m.sessions, handle)
		}
	}
}

// DestroySession removes every record held for the session handle.
func (m *Memory) DestroySession(handle string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, handle)
}
