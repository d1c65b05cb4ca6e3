//go:build unit

package state

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestMemory_SetCommitGet(t *testing.T) {
	store := NewMemory()
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

func TestMemory_ReleaseWithoutCommitDiscards(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	tx, _ := store.Acquire(ctx, "key")
	tx.Set([]byte("staged"))
	tx.Release()

	tx2, _ := store.Acquire(ctx, "key")
	defer tx2.Release()
	if _, ok := tx2.Get(); ok {
		t.Error("uncommitted staged value must not be visible")
	}
}

func TestMemory_DeleteCommit(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	tx, _ := store.Acquire(ctx, "key")
	tx.Set([]byte("value"))
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	tx.Release()

	tx2, _ := store.Acquire(ctx, "key")
	tx2.Delete()
	if _, ok := tx2.Get(); ok {
		t.Error("Get() after staged Delete() should return false")
	}
	if err := tx2.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	tx2.Release()

	tx3, _ := store.Acquire(ctx, "key")
	defer tx3.Release()
	if _, ok := tx3.Get(); ok {
		t.Error("deleted entry should stay gone")
	}
}

func TestMemory_IndependentKeysDoNotBlock(t *testing.T) {
	store := NewMemory()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	tx1, err := store.Acquire(ctx, "key-a")
	if err != nil {
		t.Fatalf("Acquire(key-a) error = %v", err)
	}
	defer tx1.Release()

	tx2, err := store.Acquire(ctx, "key-b")
	if err != nil {
		t.Fatalf("Acquire(key-b) while key-a held error = %v", err)
	}
	tx2.Release()
}

func TestMemory_AcquireBlocksUntilRelease(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	tx1, _ := store.Acquire(ctx, "key")

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
		t.Fatal("second Acquire() returned while the key was held")
	case <-time.After(50 * time.Millisecond):
	}

	tx1.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire() did not proceed after Release()")
	}
}

func TestMemory_AcquireHonorsContext(t *testing.T) {
	store := NewMemory()
	tx, _ := store.Acquire(context.Background(), "key")
	defer tx.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := store.Acquire(ctx, "key"); err == nil {
		t.Fatal("Acquire() on a held key should fail when the context expires")
	}
}

func TestMemory_DoubleReleaseIsSafe(t *testing.T) {
	store := NewMemory()
	tx, _ := store.Acquire(context.Background(), "key")
	tx.Release()
	tx.Release()

	// Key must be acquirable again.
	tx2, err := store.Acquire(context.Background(), "key")
	if err != nil {
		t.Fatalf("Acquire() after double release error = %v", err)
	}
	tx2.Release()
}
