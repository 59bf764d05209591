// Package tuplecache is an optional, best-effort read cache sitting in
// front of the coordinator's GetTuple path. It is never the source of
// truth and never the thing that enforces the engine's deterministic
// eviction and forwarding-chain invariants — those live entirely in
// bufferpool's coordinator. This cache exists purely to shortcut repeated
// reads of hot tuples; a miss or eviction here only costs a coordinator
// round trip, never correctness.
//
// Backed by github.com/dgraph-io/ristretto/v2, the teacher's declared but
// previously unused cache dependency — wired in here as the one place its
// admission-and-TinyLFU eviction policy fits, since the coordinator's own
// page cache needs the deterministic, testable eviction policy the spec
// requires instead.
package tuplecache

import (
	"storagecore/storage_engine/coretypes"
	"storagecore/storage_engine/logging"

	"github.com/dgraph-io/ristretto/v2"
)

const (
	defaultNumCounters = 1e6
	defaultMaxCost     = 64 << 20 // 64 MiB of cached tuple bytes
	defaultBufferItems = 64
)

// Cache is a process-local, size-bounded tuple byte cache.
type Cache struct {
	inner *ristretto.Cache[uint64, []byte]
}

func key(id coretypes.TupleID) uint64 {
	return uint64(id.PageID)<<16 | uint64(id.SlotID)
}

// New builds a cache with a fixed cost budget measured in cached bytes.
func New() (*Cache, error) {
	inner, err := ristretto.NewCache(&ristretto.Config[uint64, []byte]{
		NumCounters: defaultNumCounters,
		MaxCost:     defaultMaxCost,
		BufferItems: defaultBufferItems,
	})
	if err != nil {
		logging.Warnf("tuplecache: failed to construct cache, reads will always miss: %v", err)
		return nil, err
	}
	return &Cache{inner: inner}, nil
}

// Get returns a cached copy of id's tuple bytes, if present.
func (c *Cache) Get(id coretypes.TupleID) ([]byte, bool) {
	if c == nil || c.inner == nil {
		return nil, false
	}
	v, ok := c.inner.Get(key(id))
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

// Set stores a copy of data under id, costed by its byte length.
func (c *Cache) Set(id coretypes.TupleID, data []byte) {
	if c == nil || c.inner == nil {
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.inner.Set(key(id), cp, int64(len(cp)))
}

// Invalidate drops id from the cache. Callers must invalidate on every
// UpdateTuple and DeleteTuple so a stale read never outlives the write
// that superseded it.
func (c *Cache) Invalidate(id coretypes.TupleID) {
	if c == nil || c.inner == nil {
		return
	}
	c.inner.Del(key(id))
}

// Close releases the cache's background goroutines.
func (c *Cache) Close() {
	if c == nil || c.inner == nil {
		return
	}
	c.inner.Close()
}
