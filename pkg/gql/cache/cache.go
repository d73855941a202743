// Package cache implements the plan cache (§4.7): a concurrent,
// hash-keyed store of compiled plans with TTL-based expiry and
// insert-if-absent semantics, so two goroutines racing to compile the
// same stripped query never both win.
package cache

import (
	"sync"
	"time"

	"github.com/jsoref/memgraph/internal/logger"
	"github.com/jsoref/memgraph/pkg/gql/plan"
)

// entry pairs a compiled plan with the wall-clock time it was
// inserted, so lookups can evict on age without a background sweep
// goroutine racing readers, the same lazy-check-on-access pattern
// pkg/catalog/mvcc_table_manager.go uses for stamping cached rows
// with an insertion time instead of running a separate reaper.
type entry struct {
	plan      *plan.Plan
	insertedAt time.Time
}

// Cache is a concurrent hash map keyed by stripped-query hash. Lookup
// is lock-free (sync.Map.Load); insert-if-absent uses sync.Map.LoadOrStore
// so a losing compiler discards its own result and reuses the winner's,
// matching §4.7's "a concurrent compile that loses the race returns the
// winner's entry." A github.com/hashicorp/golang-lru/v2-style bounded
// LRU was considered (see DESIGN.md) but this cache is TTL- and
// hash-keyed, not size-bounded, so a plain sync.Map serves it directly.
type Cache struct {
	m   sync.Map // uint64 -> *entry
	ttl time.Duration
	log *logger.Logger
}

// New builds a Cache with the given entry TTL. A zero or negative ttl
// means entries never expire on their own (still subject to full
// invalidation).
func New(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, log: logger.NewNop()}
}

// SetLogger swaps in l for the cache's hit/miss/eviction logging.
// interpret.Interpreter calls this with its own logger so plan cache
// activity is tagged with the same fields as the rest of a query's log
// lines.
func (c *Cache) SetLogger(l *logger.Logger) {
	if l == nil {
		l = logger.NewNop()
	}
	c.log = l
}

// Get returns the cached plan for hash, or nil if absent or expired.
// An expired entry found here is actively removed (racy-safe: a
// concurrent double-delete is a no-op on sync.Map).
func (c *Cache) Get(hash uint64) *plan.Plan {
	log := c.log.WithQueryHash(hash)
	v, ok := c.m.Load(hash)
	if !ok {
		log.Debug("plan cache miss")
		return nil
	}
	e := v.(*entry)
	if c.ttl > 0 && time.Since(e.insertedAt) > c.ttl {
		c.m.CompareAndDelete(hash, v)
		log.Debug("plan cache miss", "reason", "expired")
		return nil
	}
	log.Debug("plan cache hit")
	return e.plan
}

// PutIfAbsent inserts p under hash if nothing is already cached there,
// and returns the plan actually stored: p on a successful insert, or
// the pre-existing entry's plan when another goroutine won the race.
// An expired existing entry is treated as absent.
func (c *Cache) PutIfAbsent(hash uint64, p *plan.Plan) *plan.Plan {
	newEntry := &entry{plan: p, insertedAt: now()}
	for {
		actual, loaded := c.m.LoadOrStore(hash, newEntry)
		if !loaded {
			return p
		}
		existing := actual.(*entry)
		if c.ttl > 0 && time.Since(existing.insertedAt) > c.ttl {
			if c.m.CompareAndDelete(hash, actual) {
				continue
			}
			c.log.WithQueryHash(hash).Warn("lost race evicting expired plan")
		}
		return existing.plan
	}
}

// InvalidateAll drops every cached plan; called after a successful
// CREATE INDEX (§4.7) since any cached plan may have chosen a scan
// strategy that a new index would improve on.
func (c *Cache) InvalidateAll() {
	c.m.Range(func(key, _ interface{}) bool {
		c.m.Delete(key)
		return true
	})
}

func now() time.Time { return time.Now() }
