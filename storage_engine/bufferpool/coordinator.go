// Package bufferpool implements the coordinator: the single entry point
// tuple operations go through, owning a bounded page cache, the
// placement decisions that consult the free-space map, and the
// forwarding-chain resolution that makes a TupleID a stable handle even
// after an update has spilled a tuple onto another page.
//
// Grounded on the teacher's storage_engine/bufferpool package (a capped
// page cache behind one mutex, evict-then-load-on-miss) generalised to
// this engine's tuple-level API and forwarding semantics.
package bufferpool

import (
	"sync"

	"storagecore/storage_engine/coretypes"
	"storagecore/storage_engine/disk_manager"
	"storagecore/storage_engine/freespacemap"
	"storagecore/storage_engine/logging"
	"storagecore/storage_engine/page"
	"storagecore/storage_engine/storageerrors"
	"storagecore/storage_engine/tuplecache"
)

const (
	// cacheCapacity bounds how many pages the coordinator holds in memory
	// at once.
	cacheCapacity = 100

	// maxForwardHops bounds how far GetTuple/UpdateTuple/DeleteTuple will
	// chase a forwarding chain before declaring it broken, matching the
	// per-page limit page.FollowForwardingChain enforces locally.
	maxForwardHops = 10

	// fsmRetryAttempts is how many free-space-map hints at the tuple's own
	// category the coordinator tries before falling back to a scan at the
	// lowest threshold (see insertLocked).
	fsmRetryAttempts = 3
)

// Coordinator is the single point of contention for one table: every
// public method takes the same coarse mutex for its whole duration. The
// spec trades fine-grained locking for a simple, fully serialised model
// that is easy to reason about and to test.
type Coordinator struct {
	mu sync.Mutex

	dev *disk_manager.BlockDevice
	fsm *freespacemap.Map
	tc  *tuplecache.Cache

	pages map[coretypes.PageID]*page.Page
	order []coretypes.PageID
}

// New builds a coordinator over an already-open block device and
// free-space map. tc may be nil, in which case GetTuple always falls
// through to the page cache.
func New(dev *disk_manager.BlockDevice, fsm *freespacemap.Map, tc *tuplecache.Cache) *Coordinator {
	return &Coordinator{
		dev:   dev,
		fsm:   fsm,
		tc:    tc,
		pages: make(map[coretypes.PageID]*page.Page),
	}
}

// getOrLoadPage returns a cached page or loads it from the block device,
// evicting to stay within cacheCapacity. Callers must hold c.mu.
func (c *Coordinator) getOrLoadPage(id coretypes.PageID) (*page.Page, error) {
	if pg, ok := c.pages[id]; ok {
		return pg, nil
	}
	pg, err := c.dev.ReadPage(id)
	if err != nil {
		return nil, err
	}
	c.putInCache(pg)
	return pg, nil
}

// putInCache registers a freshly loaded or allocated page, evicting first
// if the cache is already at capacity. Callers must hold c.mu.
func (c *Coordinator) putInCache(pg *page.Page) {
	if _, exists := c.pages[pg.ID()]; exists {
		return
	}
	if len(c.pages) >= cacheCapacity {
		c.evictOne()
	}
	c.pages[pg.ID()] = pg
	c.order = append(c.order, pg.ID())
}

// evictOne removes one page from the cache: the first clean page found
// in iteration order, or — if every cached page is dirty — the first
// page in iteration order, flushed first so no write is ever silently
// dropped. The page the caller is actively operating on is never a
// candidate, since it is only added to the cache after this runs.
func (c *Coordinator) evictOne() {
	for _, id := range c.order {
		if !c.pages[id].Dirty() {
			c.removeFromCache(id)
			return
		}
	}

	first := c.order[0]
	pg := c.pages[first]
	if err := c.dev.WritePage(first, pg); err != nil {
		logging.Errorf("bufferpool: failed to flush page %d during eviction: %v", first, err)
		return
	}
	pg.ClearDirty()
	c.removeFromCache(first)
}

func (c *Coordinator) removeFromCache(id coretypes.PageID) {
	delete(c.pages, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// resolve walks id's forwarding chain, loading pages as needed, and
// returns the page and slot currently holding the tuple's live data.
// Callers must hold c.mu.
func (c *Coordinator) resolve(start coretypes.TupleID) (*page.Page, coretypes.SlotID, error) {
	visited := make(map[coretypes.TupleID]bool)
	current := start
	remaining := maxForwardHops

	for remaining > 0 {
		if visited[current] {
			return nil, 0, storageerrors.Newf(storageerrors.NotFound, "bufferpool: forwarding cycle detected resolving %+v", start)
		}
		visited[current] = true

		pg, err := c.getOrLoadPage(current.PageID)
		if err != nil {
			return nil, 0, err
		}
		next := pg.FollowForwardingChain(current.SlotID, remaining)
		if !next.IsValid() {
			return nil, 0, storageerrors.Newf(storageerrors.NotFound, "bufferpool: tuple %+v not found", start)
		}
		if next.PageID == pg.ID() {
			return pg, next.SlotID, nil
		}
		remaining--
		current = next
	}
	return nil, 0, storageerrors.Newf(storageerrors.NotFound, "bufferpool: forwarding chain for %+v exceeds %d hops", start, maxForwardHops)
}

// insertLocked is InsertTuple's body, callable from other coordinator
// methods that already hold c.mu (notably UpdateTuple's spill path).
func (c *Coordinator) insertLocked(data []byte) (coretypes.TupleID, error) {
	if len(data) == 0 {
		return coretypes.InvalidTupleID, storageerrors.New(storageerrors.InvalidArgument, "bufferpool: cannot insert an empty tuple")
	}

	needed := len(data) + page.SlotEntrySize
	category := freespacemap.CategoryForBytes(needed)
	excluded := make(map[coretypes.PageID]bool)

	target, slotID := c.tryInsertWithHint(data, category, excluded, fsmRetryAttempts)
	if target == nil {
		// The category hints proved stale or too optimistic; fall back to
		// a scan at threshold 0 (any page whose recorded category is above
		// zero), trying at most one more page than the cache holds, before
		// giving up on reuse and allocating a fresh one.
		target, slotID = c.tryInsertWithHint(data, 0, excluded, len(c.pages)+1)
	}

	if target == nil {
		id, err := c.dev.AllocatePage()
		if err != nil {
			return coretypes.InvalidTupleID, storageerrors.Wrap(storageerrors.Exhausted, err, "bufferpool: allocating new page")
		}
		pg := page.New(id, page.TypeData)
		sid, err := pg.Insert(data)
		if err != nil {
			return coretypes.InvalidTupleID, storageerrors.Wrap(storageerrors.InvalidArgument, err, "bufferpool: tuple does not fit even an empty page")
		}
		c.putInCache(pg)
		target, slotID = pg, sid
	}

	c.fsm.UpdatePageFreeSpace(target.ID(), target.FreeBytes())
	return coretypes.TupleID{PageID: target.ID(), SlotID: slotID}, nil
}

// tryInsertWithHint follows spec's InsertTuple placement algorithm: on
// each FSM-hinted page that refuses the insert, compact and retry once on
// the same page if its fragmentation justifies it; otherwise force that
// page's free-space category to zero so the next lookup stops proposing
// it, exclude it from this call's remaining attempts, and move on.
func (c *Coordinator) tryInsertWithHint(data []byte, category uint8, excluded map[coretypes.PageID]bool, attempts int) (*page.Page, coretypes.SlotID) {
	for i := 0; i < attempts; i++ {
		id, ok := c.fsm.FindPageWithSpace(category, excluded)
		if !ok {
			return nil, 0
		}
		pg, err := c.getOrLoadPage(id)
		if err != nil {
			excluded[id] = true
			continue
		}
		if slotID, err := pg.Insert(data); err == nil {
			return pg, slotID
		}
		if pg.ShouldCompact() {
			pg.Compact()
			if slotID, err := pg.Insert(data); err == nil {
				c.fsm.UpdatePageFreeSpace(pg.ID(), pg.FreeBytes())
				return pg, slotID
			}
		}
		c.fsm.SetCategory(id, 0)
		excluded[id] = true
	}
	return nil, 0
}

// InsertTuple stores data as a new tuple and returns its stable handle.
func (c *Coordinator) InsertTuple(data []byte) (coretypes.TupleID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(data)
}

// GetTuple resolves id's forwarding chain and returns a copy of its
// current bytes.
func (c *Coordinator) GetTuple(id coretypes.TupleID) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if data, ok := c.tc.Get(id); ok {
		return data, nil
	}

	pg, slotID, err := c.resolve(id)
	if err != nil {
		return nil, err
	}
	data, err := pg.Get(slotID)
	if err != nil {
		return nil, err
	}
	c.tc.Set(id, data)
	return data, nil
}

// UpdateTuple replaces id's bytes in place when they fit the existing
// slot, or otherwise inserts the new bytes elsewhere and converts the slot
// currently holding id's data (id's own slot, unless an earlier update
// already forwarded it) into a forwarding stub pointing at them.
func (c *Coordinator) UpdateTuple(id coretypes.TupleID, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pg, slotID, err := c.resolve(id)
	if err != nil {
		return err
	}
	c.tc.Invalidate(id)

	if err := pg.UpdateInPlace(slotID, data); err == nil {
		c.fsm.UpdatePageFreeSpace(pg.ID(), pg.FreeBytes())
		return nil
	}

	newID, err := c.insertLocked(data)
	if err != nil {
		return err
	}
	// insertLocked may have evicted pg while loading or allocating other
	// pages; fetch it again so the stub lands in the cached copy.
	pg, err = c.getOrLoadPage(pg.ID())
	if err != nil {
		return err
	}
	if err := pg.MarkForwarded(slotID, newID); err != nil {
		return err
	}
	c.fsm.UpdatePageFreeSpace(pg.ID(), pg.FreeBytes())
	return nil
}

// DeleteTuple invalidates id's slot, following its forwarding chain
// first if necessary.
func (c *Coordinator) DeleteTuple(id coretypes.TupleID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pg, slotID, err := c.resolve(id)
	if err != nil {
		return err
	}
	c.tc.Invalidate(id)

	if err := pg.Delete(slotID); err != nil {
		return err
	}
	c.fsm.UpdatePageFreeSpace(pg.ID(), pg.FreeBytes())
	return nil
}

// FlushAllPages writes every dirty cached page to the block device and
// persists the free-space map.
func (c *Coordinator) FlushAllPages() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.order {
		pg := c.pages[id]
		if !pg.Dirty() {
			continue
		}
		if err := c.dev.WritePage(id, pg); err != nil {
			return err
		}
		pg.ClearDirty()
	}
	return c.fsm.Flush()
}

// CompactPage compacts id if its fragmentation justifies it; otherwise
// it is a no-op.
func (c *Coordinator) CompactPage(id coretypes.PageID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pg, err := c.getOrLoadPage(id)
	if err != nil {
		return err
	}
	if !pg.ShouldCompact() {
		return nil
	}
	pg.Compact()
	c.fsm.UpdatePageFreeSpace(id, pg.FreeBytes())
	return nil
}

// ClearCache flushes every dirty page and drops the entire in-memory
// page cache. Intended for tests and for bounded-memory operational
// resets; ordinary callers never need it.
func (c *Coordinator) ClearCache() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.order {
		pg := c.pages[id]
		if pg.Dirty() {
			if err := c.dev.WritePage(id, pg); err != nil {
				return err
			}
			pg.ClearDirty()
		}
	}
	c.pages = make(map[coretypes.PageID]*page.Page)
	c.order = nil
	return nil
}
