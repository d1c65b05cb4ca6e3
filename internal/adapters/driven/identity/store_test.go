//go:build unit

package identity

import (
	"testing"

	"github.com/philiph/samlspflow/internal/adapters/driven/sessioncache"
	"github.com/philiph/samlspflow/internal/core/domain"
)

func TestSetGetClear(t *testing.T) {
	cache := sessioncache.NewMemory()
	store := New(cache, "handle-1")

	if _, ok := store.Get(); ok {
		t.Error("Get() on empty store should return false")
	}

	record := domain.IdentityRecord{
		NameID:       "user@example.com",
		NameIDFormat: "urn:oasis:names:tc:SAML:2.0:nameid-format:persistent",
		SessionIndex: "idx-42",
		IdPEntityID:  "https://idp.example.com/metadata",
	}
	if err := store.Set(record); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok := store.Get()
	if !ok {
		t.Fatal("Get() after Set() should return true")
	}
	if got != record {
		t.Errorf("Get() = %+v, want %+v", got, record)
	}

	store.Clear()
	if _, ok := store.Get(); ok {
		t.Error("Get() after Clear() should return false")
	}

	// Clearing again is not an error.
	store.Clear()
}

func TestSet_ReplacesPrevious(t *testing.T) {
	cache := sessioncache.NewMemory()
	store := New(cache, "handle-1")

	if err := store.Set(domain.IdentityRecord{NameID: "first", IdPEntityID: "idp-a"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := store.Set(domain.IdentityRecord{NameID: "second", IdPEntityID: "idp-b"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok := store.Get()
	if !ok {
		t.Fatal("Get() should return true")
	}
	if got.NameID != "second" || got.IdPEntityID != "idp-b" {
		t.Errorf("Get() = %+v, want the re-authenticated identity", got)
	}
}

func TestSessionScoping(t *testing.T) {
	cache := sessioncache.NewMemory()
	first := New(cache, "handle-1")
	second := New(cache, "handle-2")

	if err := first.Set(domain.IdentityRecord{NameID: "subject"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, ok := second.Get(); ok {
		t.Error("identity record leaked across session handles")
	}
}
