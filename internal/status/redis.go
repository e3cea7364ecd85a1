package status

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/agbru/policycalc/internal/calc"
	"github.com/agbru/policycalc/internal/logging"
)

const (
	redisKeyPrefix    = "policycalc:status:"
	redisChannel      = "policycalc:status"
	redisWriteTimeout = 2 * time.Second
)

// RedisMirror decorates a MemoryStore so statuses are shared across
// processes. Every local Set, Delete and Clear is copied to Redis and
// published; Watch applies the updates published by other processes to the
// local store.
type RedisMirror struct {
	*MemoryStore
	client redis.UniversalClient
	origin string
	ttl    time.Duration
	logger logging.Logger
}

var _ Store = (*RedisMirror)(nil)

type redisEnvelope struct {
	Origin string      `json:"origin"`
	Key    Key         `json:"key"`
	Status calc.Status `json:"status"`
	Delete bool        `json:"delete,omitempty"`
}

// MirrorOption configures a RedisMirror.
type MirrorOption func(*RedisMirror)

// WithTTL expires mirrored records after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) MirrorOption {
	return func(m *RedisMirror) { m.ttl = ttl }
}

// WithMirrorLogger sets the logger used for Redis failures.
func WithMirrorLogger(l logging.Logger) MirrorOption {
	return func(m *RedisMirror) { m.logger = l }
}

// NewRedisMirror wraps local with a Redis-backed mirror.
func NewRedisMirror(local *MemoryStore, client redis.UniversalClient, opts ...MirrorOption) *RedisMirror {
	m := &RedisMirror{
		MemoryStore: local,
		client:      client,
		origin:      uuid.NewString(),
		logger:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewRedisClient opens a client for addr.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func redisKey(k Key) string {
	return redisKeyPrefix + string(k.TargetType) + ":" + k.ID
}

func parseRedisKey(s string) (Key, bool) {
	rest, ok := strings.CutPrefix(s, redisKeyPrefix)
	if !ok {
		return Key{}, false
	}
	target, id, ok := strings.Cut(rest, ":")
	if !ok || id == "" {
		return Key{}, false
	}
	return Key{TargetType: calc.TargetType(target), ID: id}, true
}

// Set writes locally, then mirrors to Redis. Redis failures are logged and
// never block local observers.
func (m *RedisMirror) Set(key Key, st calc.Status) {
	m.MemoryStore.Set(key, st)
	m.publish(redisEnvelope{Origin: m.origin, Key: key, Status: st})
}

// Delete removes the record locally and in Redis.
func (m *RedisMirror) Delete(key Key) {
	m.MemoryStore.Delete(key)
	m.publish(redisEnvelope{Origin: m.origin, Key: key, Delete: true})
}

// Clear empties the local store and removes every mirrored record from
// Redis, publishing one delete per key so other processes drop them too.
func (m *RedisMirror) Clear() {
	seen := make(map[Key]struct{})
	keys := m.MemoryStore.Keys()
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	m.MemoryStore.Clear()

	ctx, cancel := context.WithTimeout(context.Background(), redisWriteTimeout)
	remote, err := m.scanKeys(ctx)
	cancel()
	if err != nil {
		m.logger.Error("scan mirrored statuses", err)
	}
	for _, k := range remote {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		m.publish(redisEnvelope{Origin: m.origin, Key: k, Delete: true})
	}
}

func (m *RedisMirror) publish(env redisEnvelope) {
	ctx, cancel := context.WithTimeout(context.Background(), redisWriteTimeout)
	defer cancel()

	var raw []byte
	if !env.Delete {
		var err error
		if raw, err = json.Marshal(env.Status); err != nil {
			m.logger.Error("encode status for redis", err, logging.String("key", env.Key.String()))
			return
		}
	}
	payload, err := json.Marshal(env)
	if err != nil {
		m.logger.Error("encode status for redis", err, logging.String("key", env.Key.String()))
		return
	}
	pipe := m.client.TxPipeline()
	if env.Delete {
		pipe.Del(ctx, redisKey(env.Key))
	} else {
		pipe.Set(ctx, redisKey(env.Key), raw, m.ttl)
	}
	pipe.Publish(ctx, redisChannel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		m.logger.Error("mirror status to redis", err, logging.String("key", env.Key.String()))
	}
}

// Hydrate loads cached statuses for keys into the local store. Keys without a
// cached value are skipped. With no keys every mirrored record is loaded.
func (m *RedisMirror) Hydrate(ctx context.Context, keys ...Key) (int, error) {
	if len(keys) == 0 {
		var err error
		keys, err = m.scanKeys(ctx)
		if err != nil {
			return 0, err
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = redisKey(k)
	}
	vals, err := m.client.MGet(ctx, names...).Result()
	if err != nil {
		return 0, err
	}
	loaded := 0
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var st calc.Status
		if err := json.Unmarshal([]byte(s), &st); err != nil {
			m.logger.Warn("skip undecodable cached status", logging.String("key", keys[i].String()))
			continue
		}
		m.MemoryStore.Set(keys[i], st)
		loaded++
	}
	return loaded, nil
}

func (m *RedisMirror) scanKeys(ctx context.Context) ([]Key, error) {
	var (
		keys   []Key
		cursor uint64
	)
	for {
		batch, next, err := m.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, name := range batch {
			if k, ok := parseRedisKey(name); ok {
				keys = append(keys, k)
			}
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// Watch applies updates published by other processes until ctx is done.
func (m *RedisMirror) Watch(ctx context.Context) error {
	sub := m.client.Subscribe(ctx, redisChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			m.apply(msg.Payload)
		}
	}
}

func (m *RedisMirror) apply(payload string) {
	var env redisEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		m.logger.Warn("skip undecodable status event")
		return
	}
	if env.Origin == m.origin {
		return
	}
	if env.Delete {
		m.MemoryStore.Delete(env.Key)
		return
	}
	m.MemoryStore.Set(env.Key, env.Status)
}
