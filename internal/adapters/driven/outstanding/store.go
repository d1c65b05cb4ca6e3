// Package outstanding tracks AuthnRequests that have been sent but not yet
// answered, scoped to one browser session.
package outstanding

import (
	"encoding/json"

	"github.com/philiph/samlspflow/internal/core/ports"
)

// cacheKey is where the tracker keeps its map inside the session cache.
const cacheKey = "saml_outstanding_queries"

// Store is a SessionCache-backed OutstandingStore. All queries for one
// browser session live under a single JSON map record, mirroring how the
// request and return location travel together through the redirect
// round-trip.
type Store struct {
	cache  ports.SessionCache
	handle string
}

// New creates a tracker bound to one session handle.
func New(cache ports.SessionCache, handle string) *Store {
	return &Store{cache: cache, handle: handle}
}

func (s *Store) load() map[string]string {
	raw, ok := s.cache.Get(s.handle, cacheKey)
	if !ok {
		return map[string]string{}
	}
	queries := map[string]string{}
	if err := json.Unmarshal(raw, &queries); err != nil {
		// A corrupt record is unusable state, not an attack surface:
		// dropping it forces affected flows to restart.
		return map[string]string{}
	}
	return queries
}

func (s *Store) save(queries map[string]string) {
	if len(queries) == 0 {
		s.cache.Delete(s.handle, cacheKey)
		return
	}
	raw, err := json.Marshal(queries)
	if err != nil {
		return
	}
	s.cache.Set(s.handle, cacheKey, raw)
}

// Record inserts a request id with its return location.
func (s *Store) Record(requestID, returnLocation string) error {
	queries := s.load()
	if _, exists := queries[requestID]; exists {
		return ports.ErrDuplicateRequestID
	}
	queries[requestID] = returnLocation
	s.save(queries)
	return nil
}

// Resolve looks up the return location for a request id.
func (s *Store) Resolve(requestID string) (string, error) {
	queries := s.load()
	location, ok := queries[requestID]
	if !ok {
		return "", ports.ErrUnknownRequest
	}
	return location, nil
}

// Forget removes a request id. Idempotent.
func (s *Store) Forget(requestID string) {
	queries := s.load()
	if _, ok := queries[requestID]; !ok {
		return
	}
	delete(queries, requestID)
	s.save(queries)
}

// IDs returns every outstanding request id for this session.
func (s *Store) IDs() []string {
	queries := s.load()
	ids := make([]string, 0, len(queries))
	for id := range queries {
		ids = append(ids, id)
	}
	return ids
}
