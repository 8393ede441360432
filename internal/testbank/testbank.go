// Package testbank implements component D: a lazily-loaded, per-repository
// cache mapping an MD5 hash to test source, used to enrich submitted code
// with verification fixtures before execution.
package testbank

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ocx/backend/internal/metrics"
)

const hashLength = 32 // MD5 hex

// RowProvider streams (hash, test) rows for a repository from the remote
// dataset. The production implementation backs this with Redis (see
// RedisProvider); tests can supply a fake.
type RowProvider interface {
	// LoadRows returns the full hash -> test-source map for repoID, or an
	// error if the remote dataset is unreachable or malformed.
	LoadRows(ctx context.Context, repoID string) (map[string]string, error)
}

// bank is a per-repository record: {repo_id, map, last_accessed}. The map is
// either absent (not yet loaded) or fully populated — no partial state is
// ever exposed, per the data model's invariant.
type bank struct {
	once         sync.Once
	loadErr      error
	tests        map[string]string
	mu           sync.Mutex
	lastAccessed time.Time
}

// Cache is the mutex-guarded test-bank cache. A first-miss holder performs
// the blocking load for its repo; concurrent lookups for *other* repos
// proceed independently because each repo gets its own bank + its own
// sync.Once, rather than the whole cache sharing one lock across every load.
type Cache struct {
	provider  RowProvider
	freshness time.Duration
	metrics   *metrics.Registry

	mu    sync.Mutex
	banks map[string]*bank
}

// New creates a Cache backed by provider. freshness is the age-based
// eviction bound: a bank whose last_accessed exceeds freshness is dropped
// whole when EvictStale runs (see the reaper's sweep). m may be nil, in
// which case lookups are not recorded.
func New(provider RowProvider, freshness time.Duration, m *metrics.Registry) *Cache {
	return &Cache{
		provider:  provider,
		freshness: freshness,
		metrics:   m,
		banks:     make(map[string]*bank),
	}
}

// GetTest resolves a (repoID, hash) pair to test source. On miss for
// repoID, the bank is constructed by loading it from the provider; on load
// error, an empty bank is cached so repeated failing lookups don't thrash
// the provider. last_accessed is refreshed on every call with a well-formed
// hash, hit or miss; a hash that is not 32 characters long is rejected before
// the bank is looked up or loaded.
func (c *Cache) GetTest(ctx context.Context, repoID, hash string) (string, bool) {
	if len(hash) != hashLength {
		slog.Error("testbank: rejected malformed hash", "repo_id", repoID, "hash_len", len(hash))
		return "", false
	}

	b := c.bankFor(repoID)

	b.once.Do(func() {
		traceID := uuid.New().String()[:8]
		rows, err := c.provider.LoadRows(ctx, repoID)
		if err == nil {
			err = validateRowKeys(rows)
		}
		if err != nil {
			slog.Error("testbank: load failed, caching empty bank", "trace", traceID, "repo_id", repoID, "error", err)
			b.tests = map[string]string{}
			b.loadErr = err
			return
		}
		b.tests = rows
		slog.Info("testbank: loaded bank", "trace", traceID, "repo_id", repoID, "rows", len(rows))
	})

	b.mu.Lock()
	b.lastAccessed = time.Now()
	b.mu.Unlock()

	test, ok := b.tests[hash]
	if c.metrics != nil {
		if ok {
			c.metrics.TestBankHits.Inc()
		} else {
			c.metrics.TestBankMisses.Inc()
		}
	}
	return test, ok
}

// validateRowKeys enforces the data model's invariant that every hash key is
// a 32-character MD5 hex string. A single malformed key fails the whole load
// rather than being silently cached alongside the well-formed rows.
func validateRowKeys(rows map[string]string) error {
	for hash := range rows {
		if len(hash) != hashLength {
			return fmt.Errorf("testbank: malformed row key %q: length %d, want %d", hash, len(hash), hashLength)
		}
	}
	return nil
}

func (c *Cache) bankFor(repoID string) *bank {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.banks[repoID]
	if !ok {
		b = &bank{lastAccessed: time.Now()}
		c.banks[repoID] = b
	}
	return b
}

// EvictStale removes every bank whose last_accessed exceeds the configured
// freshness bound, reclaiming memory. Satisfies reaper.Evictor.
func (c *Cache) EvictStale(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for repoID, b := range c.banks {
		b.mu.Lock()
		stale := now.Sub(b.lastAccessed) > c.freshness
		b.mu.Unlock()
		if stale {
			delete(c.banks, repoID)
			slog.Info("testbank: evicted stale bank", "repo_id", repoID)
		}
	}
}

// AppendTest appends the resolved test source to code, separated by a
// newline, matching the exec-py verb's "append fixture to submitted code"
// contract. If hash is unresolved, code is returned unmodified.
func AppendTest(c *Cache, ctx context.Context, repoID, hash, code string) string {
	if repoID == "" || hash == "" {
		return code
	}
	test, ok := c.GetTest(ctx, repoID, hash)
	if !ok {
		return code
	}
	return fmt.Sprintf("%s\n%s", code, test)
}
