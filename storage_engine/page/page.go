package page

import (
	"unsafe"

	"storagecore/storage_engine/coretypes"
	"storagecore/storage_engine/storageerrors"
)

// Page is an owning, in-memory representation of one on-disk page: the
// persisted byte buffer plus a sibling runtime-only summary
// (deleted-slot count, fragmented-byte count, dirty flag) that is never
// serialised or covered by the checksum. Keeping the runtime counters
// outside the persisted buffer, rather than embedded fields zeroed before
// every write, removes a whole class of "forgot to zero the runtime
// header before checksumming" bugs the original carried.
type Page struct {
	buf   []byte
	view  View
	id    coretypes.PageID
	dirty bool

	deletedSlotCount uint16
	fragmentedBytes  uint32
}

// allocateAligned returns a Size-byte slice whose start address is a
// multiple of alignment. Go gives no direct control over allocation
// address, so this over-allocates and slices to the first aligned offset;
// it exists to keep page buffers friendly to O_DIRECT-style positional
// I/O the way the original's aligned_alloc did, even though this engine's
// block device does not itself require it.
func allocateAligned(size, alignment int) []byte {
	raw := make([]byte, size+alignment)
	addr := uintptr(unsafe.Pointer(&raw[0]))
	offset := int((uintptr(alignment) - addr%uintptr(alignment)) % uintptr(alignment))
	return raw[offset : offset+size]
}

// New builds a brand-new, empty page for id, ready to accept inserts.
func New(id coretypes.PageID, pageType Type) *Page {
	buf := allocateAligned(Size, bufferAlignment)
	p := &Page{buf: buf, view: NewView(buf), id: id}
	p.view.setPageIDEcho(id)
	p.view.setFreeStart(HeaderSize)
	p.view.setFreeEnd(Size)
	p.view.setSlotCount(0)
	p.view.setPageType(pageType)
	p.view.setFlags(0)
	p.view.RecomputeChecksum()
	p.dirty = true
	return p
}

// FromBytes loads a page from raw on-disk bytes already known (by the
// block device's own bookkeeping) to belong to id. It verifies the
// checksum and rescans the slot directory to recompute the runtime
// summary. buf is taken by reference, not copied; callers must not reuse
// it elsewhere.
func FromBytes(id coretypes.PageID, buf []byte) (*Page, error) {
	if len(buf) != Size {
		return nil, storageerrors.Newf(storageerrors.InvalidArgument, "page: buffer is %d bytes, want %d", len(buf), Size)
	}
	p := &Page{buf: buf, view: NewView(buf), id: id}
	if !p.view.VerifyChecksum() {
		return nil, storageerrors.Newf(storageerrors.Corruption, "page %d: checksum mismatch", id)
	}
	p.rescan()
	return p, nil
}

// rescan recomputes deletedSlotCount and fragmentedBytes from the slot
// directory's current contents, by summing the length field of every
// slot with the VALID bit clear — exactly the loop the original's
// ReadPage runs on load.
func (p *Page) rescan() {
	var deleted uint16
	var fragmented uint32
	count := p.view.SlotCount()
	for i := coretypes.SlotID(0); i < coretypes.SlotID(count); i++ {
		s := readSlot(p.buf, i)
		if s.flags&flagValid == 0 {
			deleted++
			fragmented += uint32(s.length)
		}
	}
	p.deletedSlotCount = deleted
	p.fragmentedBytes = fragmented
}

// ID returns the page's externally tracked identifier. This is the
// authoritative value; the header's page-id echo field is a truncated
// 16-bit diagnostic mirror only, matching the on-disk format's byte
// layout, and is never used for addressing.
func (p *Page) ID() coretypes.PageID { return p.id }

// Buffer returns the page's raw bytes, including a freshly recomputed
// checksum, ready to hand to the block device for a write.
func (p *Page) Buffer() []byte {
	p.view.RecomputeChecksum()
	return p.buf
}

// Dirty reports whether the page has unflushed in-memory changes.
func (p *Page) Dirty() bool { return p.dirty }

// ClearDirty marks the page clean, typically right after a successful
// flush to the block device.
func (p *Page) ClearDirty() { p.dirty = false }

// Type returns the page-type tag.
func (p *Page) Type() Type { return p.view.PageType() }

// SlotCount returns the number of slot-directory entries, valid or not.
func (p *Page) SlotCount() int { return int(p.view.SlotCount()) }

// DeletedSlotCount returns the runtime count of invalidated slots. Compact
// resets it to zero; the deleted entries it clears stay in the directory
// and are still reused by Insert.
func (p *Page) DeletedSlotCount() int { return int(p.deletedSlotCount) }

// FragmentedBytes returns the runtime count of dead data-area bytes.
func (p *Page) FragmentedBytes() int { return int(p.fragmentedBytes) }

// FreeBytes returns the contiguous space available between the data area
// and the slot directory — the most a single new insert could consume.
func (p *Page) FreeBytes() int {
	return int(p.view.FreeEnd()) - int(p.view.FreeStart())
}

// UsedBytes returns how much of the data area (live and dead) is occupied.
func (p *Page) UsedBytes() int {
	return int(p.view.FreeStart()) - HeaderSize
}
