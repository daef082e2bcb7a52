// Package prefs persists the tracking preference that survives restarts:
// whether background tracking is enabled and which application-logic entry
// point to resume.
package prefs

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/SUF145/call-geo/common/logger"
	"github.com/redis/go-redis/v9"
)

const (
	Namespace          = "LocationTrackingPrefs"
	KeyTrackingEnabled = "tracking_enabled"
	KeyCallbackHandle  = "callback_handle"
)

// TrackingPreference is the durable tracking state. CallbackHandle is only
// meaningful while Enabled is true.
type TrackingPreference struct {
	Enabled        bool  `json:"tracking_enabled"`
	CallbackHandle int64 `json:"callback_handle"`
}

// ShouldRestore reports whether a restart should resume tracking.
func (p TrackingPreference) ShouldRestore() bool {
	return p.Enabled && p.CallbackHandle != 0
}

type Store interface {
	Load(ctx context.Context) (TrackingPreference, error)
	Save(ctx context.Context, p TrackingPreference) error
}

// RedisStore keeps the preference in one hash named after Namespace.
type RedisStore struct {
	client redis.Cmdable
	key    string
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, key: Namespace}
}

func (s *RedisStore) Load(ctx context.Context) (TrackingPreference, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return TrackingPreference{}, fmt.Errorf("failed to read %s from Redis: %w", s.key, err)
	}
	return decode(fields), nil
}

func (s *RedisStore) Save(ctx context.Context, p TrackingPreference) error {
	if err := s.client.HSet(ctx, s.key, encode(p)).Err(); err != nil {
		return fmt.Errorf("failed to write %s to Redis: %w", s.key, err)
	}
	return nil
}

func encode(p TrackingPreference) map[string]interface{} {
	return map[string]interface{}{
		KeyTrackingEnabled: strconv.FormatBool(p.Enabled),
		KeyCallbackHandle:  strconv.FormatInt(p.CallbackHandle, 10),
	}
}

// decode never fails: absent or unparsable fields keep their defaults.
func decode(fields map[string]string) TrackingPreference {
	var p TrackingPreference
	if raw, ok := fields[KeyTrackingEnabled]; ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			logger.Warn("Ignoring malformed preference", "key", KeyTrackingEnabled, "value", raw)
		} else {
			p.Enabled = v
		}
	}
	if raw, ok := fields[KeyCallbackHandle]; ok {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			logger.Warn("Ignoring malformed preference", "key", KeyCallbackHandle, "value", raw)
		} else {
			p.CallbackHandle = v
		}
	}
	return p
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	pref TrackingPreference
}

func NewMemoryStore(initial TrackingPreference) *MemoryStore {
	return &MemoryStore{pref: initial}
}

func (s *MemoryStore) Load(context.Context) (TrackingPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pref, nil
}

func (s *MemoryStore) Save(_ context.Context, p TrackingPreference) error {
	s.mu.Lock()
	s.pref = p
	s.mu.Unlock()
	return nil
}
