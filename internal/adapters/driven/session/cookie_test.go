//go:build unit

package session

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/philiph/samlspflow/internal/core/domain"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestCookieStore_RoundTrip(t *testing.T) {
	store := NewCookieStore(testKey(t), time.Hour)

	token, err := store.Create(&Session{
		Subject:     "user@example.com",
		Name:        "Test User",
		IdPEntityID: "https://idp.example.com/metadata",
		Attributes:  map[string]string{"mail": "user@example.com"},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if token == "" {
		t.Fatal("Create() returned an empty token")
	}

	got, err := store.Get(token)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Subject != "user@example.com" {
		t.Errorf("Subject = %q, want %q", got.Subject, "user@example.com")
	}
	if got.Name != "Test User" {
		t.Errorf("Name = %q, want %q", got.Name, "Test User")
	}
	if got.IdPEntityID != "https://idp.example.com/metadata" {
		t.Errorf("IdPEntityID = %q", got.IdPEntityID)
	}
	if got.Attributes["mail"] != "user@example.com" {
		t.Errorf("Attributes[mail] = %q", got.Attributes["mail"])
	}
	if !got.ExpiresAt.After(got.IssuedAt) {
		t.Error("expiry must be after issuance")
	}
}

func TestCookieStore_RejectsGarbage(t *testing.T) {
	store := NewCookieStore(testKey(t), time.Hour)
	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := store.Get(token); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Get(%q) error = %v, want ErrSessionNotFound", token, err)
		}
	}
}

func TestCookieStore_RejectsForeignKey(t *testing.T) {
	token, err := NewCookieStore(testKey(t), time.Hour).Create(&Session{Subject: "user"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	other := NewCookieStore(testKey(t), time.Hour)
	if _, err := other.Get(token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("token signed with a different key must not validate, got %v", err)
	}
}

func TestCookieStore_RejectsExpired(t *testing.T) {
	store := NewCookieStore(testKey(t), -time.Minute)
	token, err := store.Create(&Session{Subject: "user"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := store.Get(token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expired token must not validate, got %v", err)
	}
}

func TestFromUser(t *testing.T) {
	user := &domain.User{
		ID:         "uid-1",
		Name:       "Test User",
		Attributes: map[string]string{"role": "staff"},
	}
	sess := FromUser(user, "https://idp.example.com/metadata")
	if sess.Subject != "uid-1" || sess.Name != "Test User" {
		t.Errorf("FromUser() = %+v", sess)
	}
	if sess.IdPEntityID != "https://idp.example.com/metadata" {
		t.Errorf("IdPEntityID = %q", sess.IdPEntityID)
	}
	if sess.Attributes["role"] != "staff" {
		t.Errorf("Attributes = %v", sess.Attributes)
	}
}
