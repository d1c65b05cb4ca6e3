// Package ports defines the interfaces between the flow layer and its
// collaborators. Implementations live under internal/adapters.
package ports

// SessionCache stores small key-value records scoped to one browser
// session. There is no cross-session visibility: a record written under one
// handle is invisible under every other handle. Implementations must be
// safe for concurrent use.
type SessionCache interface {
	// Get returns the value stored under key for the given session handle.
	Get(handle, key string) ([]byte, bool)

	// Set stores value under key for the given session handle.
	Set(handle, key string, value []byte)

	// Delete removes key for the given session handle. Removing an absent
	// key is not an error.
	Delete(handle, key string)

	// DestroySession removes every record held for the session handle.
	// Called when the local session ends.
	DestroySession(handle string)
}
