package shuffle

import (
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/chanshuffle/internal/workerspool"
	"github.com/gomlx/chanshuffle/internal/xsync"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Cache memoizes compiled executors by the structural Attributes key.
//
// Concurrent lookups of already-built entries and concurrent builds of
// different keys proceed without blocking each other; concurrent requests
// for the same key trigger exactly one build, and every caller observes the
// same executor instance (single-flight). A failed build is not cached, so a
// retry with corrected attributes can succeed.
//
// Entries persist for the lifetime of the cache; there is no automatic
// eviction. The cache is scoped to its owning execution context -- create it
// with the context, drop it with the context.
type Cache struct {
	// id is a short correlation tag for log lines; caches are per-context,
	// and several may coexist in a process.
	id      string
	pool    *workerspool.Pool
	entries xsync.SyncMap[string, *cacheEntry]
	builds  atomic.Int64
}

type cacheEntry struct {
	latch *xsync.LatchWithValue[buildResult]
}

type buildResult struct {
	exec *Executor
	err  error
}

// NewCache returns an empty Cache whose executors will stripe their copies
// on the given pool. The pool may be nil for single-threaded execution.
func NewCache(pool *workerspool.Pool) *Cache {
	return &Cache{
		id:   uuid.NewString()[:8],
		pool: pool,
	}
}

// GetOrCreate returns the executor for the given attributes, building plan
// and executor at most once per distinct key.
//
// Builder failures (ErrConfiguration) propagate to every caller waiting on
// the key and the key is removed, never cached as a negative result.
func (c *Cache) GetOrCreate(attrs Attributes) (*Executor, error) {
	key := attrs.CacheKey()
	entry := &cacheEntry{latch: xsync.NewLatchWithValue[buildResult]()}
	actual, loaded := c.entries.LoadOrStore(key, entry)
	if loaded {
		klog.V(2).Infof("chanshuffle cache %s: hit for %s", c.id, attrs)
		result := actual.latch.Wait()
		return result.exec, result.err
	}

	// This caller won the race and owns the build; everyone else waits on
	// the entry's latch.
	c.builds.Add(1)
	exec, err := c.build(attrs)
	if err != nil {
		// Remove the key before releasing the waiters, so a corrected retry
		// starts a fresh build.
		c.entries.Delete(key)
		entry.latch.Trigger(buildResult{err: err})
		return nil, err
	}
	entry.latch.Trigger(buildResult{exec: exec})
	return exec, nil
}

func (c *Cache) build(attrs Attributes) (*Executor, error) {
	plan, err := BuildPlan(attrs)
	if err != nil {
		return nil, err
	}
	exec, err := NewExecutor(plan, c.pool)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("chanshuffle cache %s: compiled executor for %s (%s per copy)",
		c.id, attrs, humanize.Bytes(uint64(plan.SrcSize()*plan.ElementSize)))
	return exec, nil
}

// Lookup returns the executor for the given attributes if one has already
// been built, without triggering a build. It returns ErrNotFound otherwise.
func (c *Cache) Lookup(attrs Attributes) (*Executor, error) {
	entry, ok := c.entries.Load(attrs.CacheKey())
	if !ok || !entry.latch.Test() {
		return nil, errors.Wrapf(ErrNotFound, "no executor built for %s", attrs)
	}
	result := entry.latch.Wait()
	if result.err != nil {
		return nil, result.err
	}
	return result.exec, nil
}

// Builds returns the number of executor builds attempted so far. Useful for
// tests and instrumentation.
func (c *Cache) Builds() int64 { return c.builds.Load() }

// Reset invalidates every entry. In-flight builds are unaffected: their
// callers still receive the executor they asked for, it just won't be
// reused.
func (c *Cache) Reset() {
	c.entries.Clear()
}
