// Package storageengine wires the block device, free-space map,
// coordinator, and tuple cache into the single handle a caller opens per
// table. Grounded on the teacher's storage_engine/main.go, which performed
// the same kind of top-level wiring for its own (transactional) engine —
// this is the non-transactional equivalent scoped to this package's five
// tuple operations.
package storageengine

import (
	"path/filepath"

	"storagecore/storage_engine/bufferpool"
	"storagecore/storage_engine/coretypes"
	"storagecore/storage_engine/disk_manager"
	"storagecore/storage_engine/freespacemap"
	"storagecore/storage_engine/logging"
	"storagecore/storage_engine/tuplecache"
)

// Engine is a single table's open storage handle: the block device
// backing its pages, the free-space map guiding placement, and the
// coordinator serialising access to both.
type Engine struct {
	dev         *disk_manager.BlockDevice
	fsm         *freespacemap.Map
	coordinator *bufferpool.Coordinator
	cache       *tuplecache.Cache
}

// Open opens (creating if necessary) the table file and free-space map
// under dir, named tableName with identifier tableID.
func Open(dir string, tableID uint32, tableName string) (*Engine, error) {
	dev, err := disk_manager.Open(filepath.Join(dir, tableName+".tbl"), tableID, tableName)
	if err != nil {
		return nil, err
	}
	fsm, err := freespacemap.Open(filepath.Join(dir, tableName+".fsm"))
	if err != nil {
		dev.Close()
		return nil, err
	}
	cache, err := tuplecache.New()
	if err != nil {
		// A tuple cache that failed to construct degrades to always-miss
		// reads through the coordinator; it is not fatal to opening the
		// table.
		cache = nil
	}

	logging.Infof("storage_engine: opened table %q (id=%d) in %s", tableName, tableID, dir)
	return &Engine{
		dev:         dev,
		fsm:         fsm,
		coordinator: bufferpool.New(dev, fsm, cache),
		cache:       cache,
	}, nil
}

// InsertTuple stores data as a new tuple and returns its handle.
func (e *Engine) InsertTuple(data []byte) (coretypes.TupleID, error) {
	return e.coordinator.InsertTuple(data)
}

// GetTuple resolves id and returns a copy of its current bytes.
func (e *Engine) GetTuple(id coretypes.TupleID) ([]byte, error) {
	return e.coordinator.GetTuple(id)
}

// UpdateTuple replaces id's bytes, forwarding to a new location if the
// new payload no longer fits its original slot.
func (e *Engine) UpdateTuple(id coretypes.TupleID, data []byte) error {
	return e.coordinator.UpdateTuple(id, data)
}

// DeleteTuple invalidates id.
func (e *Engine) DeleteTuple(id coretypes.TupleID) error {
	return e.coordinator.DeleteTuple(id)
}

// FlushAllPages writes every dirty cached page and the free-space map to
// disk.
func (e *Engine) FlushAllPages() error {
	return e.coordinator.FlushAllPages()
}

// CompactPage compacts a single page if its fragmentation warrants it.
func (e *Engine) CompactPage(id coretypes.PageID) error {
	return e.coordinator.CompactPage(id)
}

// ClearCache drops the in-memory page cache after flushing anything
// dirty.
func (e *Engine) ClearCache() error {
	return e.coordinator.ClearCache()
}

// Close flushes all pending writes and releases the table file and the
// free-space map.
func (e *Engine) Close() error {
	if err := e.coordinator.FlushAllPages(); err != nil {
		return err
	}
	if e.cache != nil {
		e.cache.Close()
	}
	if err := e.fsm.Close(); err != nil {
		return err
	}
	return e.dev.Close()
}
