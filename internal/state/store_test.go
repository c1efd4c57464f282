package state

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCursor(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	cur, err := s.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", cur)

	require.NoError(t, s.SetCursor(ctx, "12345"))
	cur, err = s.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, "12345", cur)

	require.NoError(t, s.SetCursor(ctx, "12346"))
	cur, err = s.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, "12346", cur)
}

func TestMemoryStoreMarkProcessed(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	seen, err := s.IsProcessed(ctx, KindMessage, "m1")
	require.NoError(t, err)
	assert.False(t, seen)

	first, err := s.MarkProcessed(ctx, KindMessage, "m1")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = s.MarkProcessed(ctx, KindMessage, "m1")
	require.NoError(t, err)
	assert.False(t, first)

	seen, err = s.IsProcessed(ctx, KindMessage, "m1")
	require.NoError(t, err)
	assert.True(t, seen)

	// Kinds are separate namespaces.
	seen, err = s.IsProcessed(ctx, KindHistory, "m1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemoryStoreConcurrentFirstMark(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := s.MarkProcessed(ctx, KindHistory, "h42")
			assert.NoError(t, err)
			if first {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, firsts)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := NewSQLiteStore(path, DefaultTTL)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	cur, err := s.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", cur)

	require.NoError(t, s.SetCursor(ctx, "777"))
	require.NoError(t, s.SetCursor(ctx, "778"))
	cur, err = s.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, "778", cur)

	first, err := s.MarkProcessed(ctx, KindMessage, "msg-1")
	require.NoError(t, err)
	assert.True(t, first)

	first, err = s.MarkProcessed(ctx, KindMessage, "msg-1")
	require.NoError(t, err)
	assert.False(t, first)

	seen, err := s.IsProcessed(ctx, KindMessage, "msg-1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = s.IsProcessed(ctx, KindHistory, "msg-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestSQLiteStoreTTLExpiry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := NewSQLiteStore(path, 24*time.Hour)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	first, err := s.MarkProcessed(ctx, KindMessage, "old")
	require.NoError(t, err)
	require.True(t, first)

	// Within the TTL the record still counts.
	s.now = func() time.Time { return base.Add(23 * time.Hour) }
	seen, err := s.IsProcessed(ctx, KindMessage, "old")
	require.NoError(t, err)
	assert.True(t, seen)

	// Past the TTL it no longer does, and the ID may be marked afresh.
	s.now = func() time.Time { return base.Add(25 * time.Hour) }
	seen, err = s.IsProcessed(ctx, KindMessage, "old")
	require.NoError(t, err)
	assert.False(t, seen)

	first, err = s.MarkProcessed(ctx, KindMessage, "old")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestSQLiteStoreReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path, DefaultTTL)
	require.NoError(t, err)
	require.NoError(t, s.SetCursor(ctx, "900"))
	_, err = s.MarkProcessed(ctx, KindHistory, "h1")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path, DefaultTTL)
	require.NoError(t, err)
	defer s.Close()

	cur, err := s.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, "900", cur)

	seen, err := s.IsProcessed(ctx, KindHistory, "h1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestConfigTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, Config{}.TTL())
	assert.Equal(t, DefaultTTL, Config{TTLDays: -1}.TTL())
	assert.Equal(t, 3*24*time.Hour, Config{TTLDays: 3}.TTL())
}

func TestNewBackendSelection(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(Config{Backend: "Memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	// Unknown backends fall back to memory rather than failing startup.
	s, err = New(Config{Backend: "dynamo"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = New(Config{Backend: "redis"})
	assert.Error(t, err)

	_, err = New(Config{Backend: "redis", RedisURL: "://bad"})
	assert.Error(t, err)

	_, err = New(Config{Backend: "sqlite"})
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "state.db")
	s, err = New(Config{Backend: "sqlite", SQLitePath: path})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())
}

func TestNewRedisStoreDefaults(t *testing.T) {
	s, err := NewRedisStore("redis://localhost:6379/0", 0, "")
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, DefaultTTL, s.ttl)
	assert.Equal(t, "salesdesk", s.ns)
	assert.Equal(t, "salesdesk:cursor", s.cursorKey())
	assert.Equal(t, "salesdesk:processed:message:m1", s.processedKey(KindMessage, "m1"))
}
