package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/philiph/samlspflow/internal/core/ports"
)

// Key layout and defaults for the Redis adapter.
const (
	// keyPrefix namespaces all state entries.
	keyPrefix = "samlsp:state:"

	// lockSuffix namespaces the per-key acquisition locks.
	lockSuffix = ":lock"

	// DefaultEntryTTL bounds how long an unanswered handshake entry lives.
	DefaultEntryTTL = 10 * time.Minute

	// lockTTL bounds how long a crashed holder can pin a key.
	lockTTL = 30 * time.Second

	// lockPollInterval is how often a blocked Acquire re-attempts the lock.
	lockPollInterval = 50 * time.Millisecond
)

// releaseScript deletes the lock only if we still hold it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a StateStore backed by Redis, so in-flight handshake state
// survives process restarts and is shared between replicas. Values are
// stored under a key prefix with a TTL; per-key acquisition uses a token
// lock released by compare-and-delete.
type Redis struct {
	client   redis.UniversalClient
	entryTTL time.Duration
}

// NewRedis creates a Redis-backed state store over an existing client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client, entryTTL: DefaultEntryTTL}
}

// NewRedisAddr creates a Redis-backed state store connecting to addr.
// Returns an error if the server cannot be reached.
func NewRedisAddr(ctx context.Context, addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedis(client), nil
}

// SetEntryTTL overrides the lifetime of state entries.
func (r *Redis) SetEntryTTL(ttl time.Duration) {
	r.entryTTL = ttl
}

// Acquire locks the key and returns a transaction over it. Blocks until the
// key is free or the context is done.
func (r *Redis) Acquire(ctx context.Context, key string) (ports.StateTx, error) {
	dataKey := keyPrefix + key
	lockKey := dataKey + lockSuffix
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, lockKey, token, lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire state lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-time.After(lockPollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	value, err := r.client.Get(ctx, dataKey).Bytes()
	exists := true
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			_, _ = releaseScript.Run(ctx, r.client, []string{lockKey}, token).Result()
			return nil, fmt.Errorf("read state entry: %w", err)
		}
		exists = false
		value = nil
	}

	return &redisTx{
		store:   r,
		dataKey: dataKey,
		lockKey: lockKey,
		token:   token,
		value:   value,
		exists:  exists,
	}, nil
}

type redisTx struct {
	store   *Redis
	dataKey string
	lockKey string
	token   string
	value   []byte
	exists  bool
	deleted bool
	dirty   bool
	done    sync.Once
}

// Get returns the current value, or false if the entry does not exist.
func (t *redisTx) Get() ([]byte, bool) {
	if t.deleted || !t.exists {
		return nil, false
	}
	return t.value, true
}

// Set stages a new value for the entry.
func (t *redisTx) Set(value []byte) {
	t.value = make([]byte, len(value))
	copy(t.value, value)
	t.exists = true
	t.deleted = false
	t.dirty = true
}

// Delete stages removal of the entry.
func (t *redisTx) Delete() {
	t.deleted = true
	t.dirty = true
}

// Commit writes staged changes to Redis.
func (t *redisTx) Commit(ctx context.Context) error {
	if !t.dirty {
		return nil
	}
	if t.deleted {
		if err := t.store.client.Del(ctx, t.dataKey).Err(); err != nil {
			return fmt.Errorf("delete state entry: %w", err)
		}
	} else {
		if err := t.store.client.Set(ctx, t.dataKey, t.value, t.store.entryTTL).Err(); err != nil {
			return fmt.Errorf("write state entry: %w", err)
		}
	}
	t.dirty = false
	return nil
}

// Release unlocks the key. Safe to call more than once; uses a detached
// context so error-path releases still reach the server.
func (t *redisTx) Release() {
	t.done.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, _ = releaseScript.Run(ctx, t.store.client, []string{t.lockKey}, t.token).Result()
	})
}
