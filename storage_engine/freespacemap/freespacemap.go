// Package freespacemap tracks, per table, roughly how much free space each
// allocated page has, so the coordinator can pick an insert target without
// scanning every page. Grounded on the teacher's storage_engine/disk_manager
// free-space bookkeeping (a persisted side file keyed by page id) and on
// original_source's storage/free_space_map.cpp for the exact on-disk format
// this spec's distillation left implicit: a magic number, a page_count and
// allocated_set_size pair, a sparse set of allocated page ids, and a dense
// category vector indexed directly by page id.
package freespacemap

import (
	"encoding/binary"
	"os"
	"sync"

	"storagecore/storage_engine/coretypes"
	"storagecore/storage_engine/page"
	"storagecore/storage_engine/storageerrors"
)

const magic uint32 = 0x46534D00

// categoryBuckets is the number of distinct free-space categories; a
// page's available bytes are quantized into one of these, trading
// precision for a compact on-disk representation.
const categoryBuckets = 255

// CategoryForBytes quantizes an available-byte count into a 0-255
// category. The mapping floors, so a page reported at category C is only
// guaranteed to have at least BytesForCategory(C) bytes free — callers
// that need a hint to be conservative should treat it as a lower bound,
// not an exact figure.
func CategoryForBytes(available int) uint8 {
	if available <= 0 {
		return 0
	}
	if available >= page.Size {
		return categoryBuckets
	}
	c := (available * categoryBuckets) / page.Size
	if c > categoryBuckets {
		c = categoryBuckets
	}
	return uint8(c)
}

// BytesForCategory returns the guaranteed-available lower bound for
// category c — the inverse of CategoryForBytes, rounded down.
func BytesForCategory(c uint8) int {
	return (int(c) * page.Size) / categoryBuckets
}

// Map is one table's free-space map: a dense vector of quantized
// free-space categories indexed directly by page id, plus the sparse set
// of page ids that have actually been registered (a page's category
// entry is meaningless until UpdatePageFreeSpace has touched it at least
// once).
type Map struct {
	mu     sync.Mutex
	path   string
	closed bool

	categories []uint8 // dense, indexed by coretypes.PageID
	allocated  map[coretypes.PageID]bool
	order      []coretypes.PageID // registration order, for deterministic scans
}

// Open loads path if it exists and is a valid free-space map, or returns
// an empty map ready to be populated and flushed to path later.
func Open(path string) (*Map, error) {
	m := &Map{path: path, allocated: make(map[coretypes.PageID]bool)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, storageerrors.Wrap(storageerrors.Internal, err, "freespacemap: reading map file")
	}
	if len(data) < 12 || binary.LittleEndian.Uint32(data[0:4]) != magic {
		// Too short or bad magic: not a valid map, start empty.
		return m, nil
	}
	pageCount := binary.LittleEndian.Uint32(data[4:8])
	allocatedSetSize := binary.LittleEndian.Uint32(data[8:12])

	idsStart := 12
	idsEnd := idsStart + int(allocatedSetSize)*4
	catsEnd := idsEnd + int(pageCount)
	if len(data) < catsEnd {
		// Truncated: not a valid map, start empty.
		return m, nil
	}

	m.categories = make([]uint8, pageCount)
	copy(m.categories, data[idsEnd:catsEnd])

	m.order = make([]coretypes.PageID, allocatedSetSize)
	for i := 0; i < int(allocatedSetSize); i++ {
		id := coretypes.PageID(binary.LittleEndian.Uint32(data[idsStart+i*4:]))
		m.order[i] = id
		m.allocated[id] = true
	}
	return m, nil
}

// ensureCapacity grows the dense category vector so index id is
// addressable. Callers must hold m.mu.
func (m *Map) ensureCapacity(id coretypes.PageID) {
	if int(id) < len(m.categories) {
		return
	}
	grown := make([]uint8, int(id)+1)
	copy(grown, m.categories)
	m.categories = grown
}

// UpdatePageFreeSpace records id's current available-byte count,
// registering id in the allocated set if this is the first time it is
// seen.
func (m *Map) UpdatePageFreeSpace(id coretypes.PageID, availableBytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ensureCapacity(id)
	m.categories[id] = CategoryForBytes(availableBytes)
	if !m.allocated[id] {
		m.allocated[id] = true
		m.order = append(m.order, id)
	}
}

// GetCategory returns id's currently recorded category. It reports false
// if id has never been registered via UpdatePageFreeSpace.
func (m *Map) GetCategory(id coretypes.PageID) (uint8, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.allocated[id] {
		return 0, false
	}
	return m.categories[id], true
}

// SetCategory forces id's recorded category directly, registering id in
// the allocated set if this is the first time it is seen. Used by the
// coordinator's insert retry path to mark a page that just refused an
// insert (and did not qualify for compaction) as category zero, so later
// lookups stop proposing it under the same stale hint.
func (m *Map) SetCategory(id coretypes.PageID, category uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ensureCapacity(id)
	m.categories[id] = category
	if !m.allocated[id] {
		m.allocated[id] = true
		m.order = append(m.order, id)
	}
}

// Remove drops id from the allocated set entirely, so FindPageWithSpace
// no longer considers it a placement candidate until it is registered
// again.
func (m *Map) Remove(id coretypes.PageID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.allocated[id] {
		return
	}
	delete(m.allocated, id)
	for i, existing := range m.order {
		if existing == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// qualifies reports whether category satisfies a request for at least
// minCategory: strictly greater always qualifies, and an exact match
// qualifies only when minCategory itself is non-zero — category 0 means
// "could be anything from empty up to a sliver of space", so it never
// satisfies a same-category request of 0 and FindPageWithSpace never
// returns a category-0 page.
func qualifies(category, minCategory uint8) bool {
	if category > minCategory {
		return true
	}
	return category == minCategory && minCategory != 0
}

// FindPageWithSpace scans the allocated set, in the order pages were
// first registered, for the first page whose recorded category
// qualifies against minCategory (see qualifies) and is not present in
// exclude. It reports false if no such page exists.
func (m *Map) FindPageWithSpace(minCategory uint8, exclude map[coretypes.PageID]bool) (coretypes.PageID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range m.order {
		if exclude != nil && exclude[id] {
			continue
		}
		if qualifies(m.categories[id], minCategory) {
			return id, true
		}
	}
	return coretypes.InvalidPageID, false
}

// Flush persists the map to its backing file in the documented format:
// magic, page_count, allocated_set_size, the sparse allocated-id array,
// then the dense, page-id-indexed category vector.
func (m *Map) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked()
}

func (m *Map) flushLocked() error {
	pageCount := len(m.categories)
	allocatedSetSize := len(m.order)

	buf := make([]byte, 12+allocatedSetSize*4+pageCount)
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(pageCount))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(allocatedSetSize))
	for i, id := range m.order {
		binary.LittleEndian.PutUint32(buf[12+i*4:], uint32(id))
	}
	copy(buf[12+allocatedSetSize*4:], m.categories)

	if err := os.WriteFile(m.path, buf, 0644); err != nil {
		return storageerrors.Wrap(storageerrors.Internal, err, "freespacemap: writing map file")
	}
	return nil
}

// Close flushes the map to disk and marks it closed. Further mutation
// after Close is a programmer error; readers (GetCategory,
// FindPageWithSpace) remain safe to call.
func (m *Map) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.flushLocked()
}
