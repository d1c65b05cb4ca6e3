//go:build unit

package state

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client), mr
}

func TestRedis_SetCommitGet(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	tx, err := store.Acquire(ctx, "slo:id-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, ok := tx.Get(); ok {
		t.Error("Get() on fresh key should return false")
	}
	tx.Set([]byte("pending"))
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	tx.Release()

	tx2, err := store.Acquire(ctx, "slo:id-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer tx2.Release()
	got, ok := tx2.Get()
	if !ok {
		t.Fatal("committed value should be visible to the next transaction")
	}
	if !bytes.Equal(got, []byte("pending")) {
		t.Errorf("Get() = %q, want %q", got, "pending")
	}
}

func TestRedis_KeysAreNamespaced(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	tx, _ := store.Acquire(ctx, "slo:id-1")
	tx.Set([]byte("x"))
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	tx.Release()

	if !mr.Exists("samlsp:state:slo:id-1") {
		t.Error("entry should live under the samlsp:state: prefix")
	}
}

func TestRedis_EntriesExpire(t *testing.T) {
	store, mr := newRedisStore(t)
	store.SetEntryTTL(time.Minute)
	ctx := context.Background()

	tx, _ := store.Acquire(ctx, "slo:id-1")
	tx.Set([]byte("x"))
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	tx.Release()

	mr.FastForward(2 * time.Minute)

	tx2, _ := store.Acquire(ctx, "slo:id-1")
	defer tx2.Release()
	if _, ok := tx2.Get(); ok {
		t.Error("entry should have expired")
	}
}

func TestRedis_DeleteCommit(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	tx, _ := store.Acquire(ctx, "key")
	tx.Set([]byte("value"))
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	tx.Release()

	tx2, _ := store.Acquire(ctx, "key")
	tx2.Delete()
	if err := tx2.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	tx2.Release()

	if mr.Exists("samlsp:state:key") {
		t.Error("deleted entry should be gone from redis")
	}
}

func TestRedis_ReleaseWithoutCommitDiscards(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	tx, _ := store.Acquire(ctx, "key")
	tx.Set([]byte("staged"))
	tx.Release()

	if mr.Exists("samlsp:state:key") {
		t.Error("uncommitted staged value must not reach redis")
	}
}

func TestRedis_AcquireBlocksUntilRelease(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	tx1, err := store.Acquire(ctx, "key")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		tx2, err := store.Acquire(ctx, "key")
		if err == nil {
			tx2.Release()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire() returned while the lock was held")
	case <-time.After(100 * time.Millisecond):
	}

	tx1.Release()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second Acquire() did not proceed after Release()")
	}
}

func TestRedis_AcquireHonorsContext(t *testing.T) {
	store, _ := newRedisStore(t)

	tx, err := store.Acquire(context.Background(), "key")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer tx.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := store.Acquire(ctx, "key"); err == nil {
		t.Fatal("Acquire() on a held key should fail when the context expires")
	}
}
