package state

import (
	"context"
	"fmt"

	"time"

	"github.com/redis/go-redis/v9"
)

const defaultNamespace = "salesdesk"

// RedisStore is the durable key-value ledger backend. SETNX is the atomic
// add-if-absent; processed-ID keys carry the configured TTL so the ledger
// does not grow without bound.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	ns     string
}

// NewRedisStore connects to the Redis at url (redis:// form). An unparsable
// URL is fatal for this backend; connectivity itself is established lazily
// by the client.
func NewRedisStore(url string, ttl time.Duration, namespace string) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &RedisStore{client: redis.NewClient(opt), ttl: ttl, ns: namespace}, nil
}

func (s *RedisStore) cursorKey() string {
	return s.ns + ":cursor"
}

func (s *RedisStore) processedKey(kind Kind, id string) string {
	return fmt.Sprintf("%s:processed:%s:%s", s.ns, kind, id)
}

// Cursor implements Store.
func (s *RedisStore) Cursor(ctx context.Context) (string, error) {
	val, err := s.client.Get(ctx, s.cursorKey()).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading cursor: %w", err)
	}
	return val, nil
}

// SetCursor implements Store. The cursor itself never expires.
func (s *RedisStore) SetCursor(ctx context.Context, id string) error {
	if err := s.client.Set(ctx, s.cursorKey(), id, 0).Err(); err != nil {
		return fmt.Errorf("writing cursor: %w", err)
	}
	return nil
}

// IsProcessed implements Store.
func (s *RedisStore) IsProcessed(ctx context.Context, kind Kind, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.processedKey(kind, id)).Result()
	if err != nil {
		return false, fmt.Errorf("checking processed %s %s: %w", kind, id, err)
	}
	return n > 0, nil
}

// MarkProcessed implements Store. SETNX makes the check-and-mark a single
// server-side operation, so two concurrent deliveries cannot both win.
func (s *RedisStore) MarkProcessed(ctx context.Context, kind Kind, id string) (bool, error) {
	first, err := s.client.SetNX(ctx, s.processedKey(kind, id), "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("marking processed %s %s: %w", kind, id, err)
	}
	return first, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
