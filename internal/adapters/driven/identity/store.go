// Package identity keeps the authenticated subject's SAML identity for the
// lifetime of the local session.
package identity

import (
	"encoding/json"

	"github.com/philiph/samlspflow/internal/core/domain"
	"github.com/philiph/samlspflow/internal/core/ports"
)

// cacheKey is where the record lives inside the session cache.
const cacheKey = "saml_subject_identity"

// Store is a SessionCache-backed IdentityStore.
type Store struct {
	cache  ports.SessionCache
	handle string
}

// New creates a tracker bound to one session handle.
func New(cache ports.SessionCache, handle string) *Store {
	return &Store{cache: cache, handle: handle}
}

// Set stores the identity record for the session.
func (s *Store) Set(record domain.IdentityRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	s.cache.Set(s.handle, cacheKey, raw)
	return nil
}

// Get returns the identity record, or false if the session carries none.
func (s *Store) Get() (domain.IdentityRecord, bool) {
	raw, ok := s.cache.Get(s.handle, cacheKey)
	if !ok {
		return domain.IdentityRecord{}, false
	}
	var record domain.IdentityRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.IdentityRecord{}, false
	}
	return record, true
}

// Clear removes the identity record.
func (s *Store) Clear() {
	s.cache.Delete(s.handle, cacheKey)
}
