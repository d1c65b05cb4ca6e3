package ports

import "context"

// StateStore is the server-side, cross-session store for in-flight protocol
// handshake state. Entries outlive single HTTP requests and, with a
// persistent backend, process restarts: the IdP's reply in a multi-leg
// exchange may arrive on a different request context than the leg that
// created the entry.
//
// Access is per-key and transactional: Acquire hands out a StateTx holding
// that key until Release. Concurrent exchanges for different keys must not
// block or corrupt each other.
type StateStore interface {
	// Acquire locks the given key and returns a transaction over it.
	Acquire(ctx context.Context, key string) (StateTx, error)
}

// StateTx is a scoped view of one state entry. Callers must call Release on
// every exit path; Commit must happen before the HTTP response is emitted
// so a crash afterwards does not lose correlation state. A Release without
// Commit discards staged changes.
type StateTx interface {
	// Get returns the current value, or false if the entry does not exist.
	Get() ([]byte, bool)

	// Set stages a new value for the entry.
	Set(value []byte)

	// Delete stages removal of the entry.
	Delete()

	// Commit writes staged changes to the backing store.
	Commit(ctx context.Context) error

	// Release unlocks the key. Safe to call after Commit and on error
	// paths; never fails.
	Release()
}
