// Package state is the idempotency ledger for inbound event ingestion: a
// last-seen history cursor plus processed-ID sets for history events and
// messages, behind one interface with in-memory, Redis, and SQLite backends.
package state

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind distinguishes the two processed-ID namespaces.
type Kind string

const (
	KindHistory Kind = "history"
	KindMessage Kind = "message"
)

// Backend names accepted by the factory.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// DefaultTTL is how long durable backends retain processed-ID records. The
// upstream notification source does not redeliver indefinitely, so records
// older than this are safe to drop.
const DefaultTTL = 7 * 24 * time.Hour

// Store is the idempotency ledger contract. MarkProcessed is an atomic
// add-if-absent: it reports whether this call was the first to mark the ID,
// which is what makes concurrent duplicate deliveries collapse to exactly
// one logical "first process".
type Store interface {
	// Cursor returns the last-seen history cursor, or "" when unset. The
	// value is opaque: compared only for presence, never ordered.
	Cursor(ctx context.Context) (string, error)
	SetCursor(ctx context.Context, id string) error
	IsProcessed(ctx context.Context, kind Kind, id string) (bool, error)
	MarkProcessed(ctx context.Context, kind Kind, id string) (first bool, err error)
	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend    string `yaml:"backend"`
	TTLDays    int    `yaml:"ttl_days"`
	RedisURL   string `yaml:"redis_url"`
	SQLitePath string `yaml:"sqlite_path"`
	Namespace  string `yaml:"namespace"`
}

// TTL returns the configured record lifetime.
func (c Config) TTL() time.Duration {
	if c.TTLDays <= 0 {
		return DefaultTTL
	}
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// New builds the configured store. An empty or unknown backend name falls
// back to in-memory; a durable backend that cannot be constructed (missing
// connection string, unopenable database) is an error, never a silent
// fallback — the caller decides degraded-mode policy.
func New(cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("state: redis backend requires a redis_url")
		}
		return NewRedisStore(cfg.RedisURL, cfg.TTL(), cfg.Namespace)
	case BackendSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("state: sqlite backend requires a sqlite_path")
		}
		return NewSQLiteStore(cfg.SQLitePath, cfg.TTL())
	default:
		log.Warn().Str("backend", cfg.Backend).Msg("unknown_state_backend_using_memory")
		return NewMemoryStore(), nil
	}
}
