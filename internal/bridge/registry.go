package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
)

const callbacksKey = "bridge:callbacks"

var ErrCallbackNotFound = errors.New("callback handle not found")

// Entry is a registered application-logic entry point.
type Entry struct {
	Handle       int64     `json:"callback_handle"`
	EntryPoint   string    `json:"entry_point"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Registry resolves callback handles to entry points.
type Registry interface {
	Register(ctx context.Context, entryPoint string) (Entry, error)
	Lookup(ctx context.Context, handle int64) (Entry, error)
}

// HandleFor derives a stable, positive, non-zero handle from an entry point
// name so re-registering the same name yields the same handle.
func HandleFor(entryPoint string) int64 {
	h := int64(xxhash.Sum64String(entryPoint) & math.MaxInt64)
	if h == 0 {
		return 1
	}
	return h
}

type RedisRegistry struct {
	client redis.Cmdable
}

func NewRedisRegistry(client redis.Cmdable) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) Register(ctx context.Context, entryPoint string) (Entry, error) {
	entry := Entry{Handle: HandleFor(entryPoint), EntryPoint: entryPoint, RegisteredAt: time.Now().UTC()}
	data, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal callback entry: %w", err)
	}
	if err := r.client.HSet(ctx, callbacksKey, strconv.FormatInt(entry.Handle, 10), data).Err(); err != nil {
		return Entry{}, fmt.Errorf("failed to register callback in Redis: %w", err)
	}
	return entry, nil
}

func (r *RedisRegistry) Lookup(ctx context.Context, handle int64) (Entry, error) {
	data, err := r.client.HGet(ctx, callbacksKey, strconv.FormatInt(handle, 10)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, ErrCallbackNotFound
		}
		return Entry{}, fmt.Errorf("failed to get callback from Redis: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return Entry{}, fmt.Errorf("failed to unmarshal callback entry: %w", err)
	}
	return entry, nil
}

type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[int64]Entry
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[int64]Entry)}
}

func (r *MemoryRegistry) Register(_ context.Context, entryPoint string) (Entry, error) {
	entry := Entry{Handle: HandleFor(entryPoint), EntryPoint: entryPoint, RegisteredAt: time.Now().UTC()}
	r.mu.Lock()
	r.entries[entry.Handle] = entry
	r.mu.Unlock()
	return entry, nil
}

func (r *MemoryRegistry) Lookup(_ context.Context, handle int64) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[handle]
	if !ok {
		return Entry{}, ErrCallbackNotFound
	}
	return entry, nil
}
