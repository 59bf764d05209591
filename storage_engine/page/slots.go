package page

import (
	"encoding/binary"

	"storagecore/storage_engine/coretypes"
	"storagecore/storage_engine/storageerrors"
)

// slot is the decoded form of one 8-byte slot-directory entry:
//
//	offset(2) length(2) flags(1) forward[0]=target page-id low byte
//	                             forward[1]=target page-id high byte
//	                             forward[2]=target slot-id (0-255)
//
// The 3-byte forwarding pointer caps forwarding targets to page ids up to
// 65535 and slot ids up to 255 — a real limitation of the wire format,
// not an oversight.
type slot struct {
	offset  uint16
	length  uint16
	flags   uint8
	forward [3]byte
}

func slotByteOffset(i coretypes.SlotID) int {
	return Size - (int(i)+1)*SlotEntrySize
}

func readSlot(buf []byte, i coretypes.SlotID) slot {
	off := slotByteOffset(i)
	b := buf[off : off+SlotEntrySize]
	return slot{
		offset:  binary.LittleEndian.Uint16(b[0:2]),
		length:  binary.LittleEndian.Uint16(b[2:4]),
		flags:   b[4],
		forward: [3]byte{b[5], b[6], b[7]},
	}
}

func writeSlot(buf []byte, i coretypes.SlotID, s slot) {
	off := slotByteOffset(i)
	b := buf[off : off+SlotEntrySize]
	binary.LittleEndian.PutUint16(b[0:2], s.offset)
	binary.LittleEndian.PutUint16(b[2:4], s.length)
	b[4] = s.flags
	b[5], b[6], b[7] = s.forward[0], s.forward[1], s.forward[2]
}

func (s slot) forwardTarget() coretypes.TupleID {
	pageID := coretypes.PageID(uint16(s.forward[0]) | uint16(s.forward[1])<<8)
	return coretypes.TupleID{PageID: pageID, SlotID: coretypes.SlotID(s.forward[2])}
}

func encodeForward(target coretypes.TupleID) ([3]byte, error) {
	if target.PageID > 0xFFFF {
		return [3]byte{}, storageerrors.Newf(storageerrors.InvalidArgument,
			"page: forwarding target page id %d exceeds 16-bit wire limit", target.PageID)
	}
	if target.SlotID > 0xFF {
		return [3]byte{}, storageerrors.Newf(storageerrors.InvalidArgument,
			"page: forwarding target slot id %d exceeds 8-bit wire limit", target.SlotID)
	}
	return [3]byte{byte(target.PageID), byte(target.PageID >> 8), byte(target.SlotID)}, nil
}

// findReusableSlot returns the lowest-numbered invalidated slot, if any.
func (p *Page) findReusableSlot() (coretypes.SlotID, bool) {
	count := p.view.SlotCount()
	for i := coretypes.SlotID(0); i < coretypes.SlotID(count); i++ {
		if readSlot(p.buf, i).flags&flagValid == 0 {
			return i, true
		}
	}
	return 0, false
}

// Insert stores data as a new tuple, reusing the lowest-numbered deleted
// slot when one exists and fits, else appending a new slot. It returns the
// slot id the tuple was stored under.
func (p *Page) Insert(data []byte) (coretypes.SlotID, error) {
	if len(data) == 0 {
		return coretypes.InvalidSlotID, storageerrors.New(storageerrors.InvalidArgument, "page: cannot insert empty tuple")
	}
	if len(data) > 0xFFFF {
		return coretypes.InvalidSlotID, storageerrors.Newf(storageerrors.InvalidArgument, "page: tuple of %d bytes exceeds slot length field", len(data))
	}

	available := p.FreeBytes()
	freeStart := p.view.FreeStart()

	if reuse, ok := p.findReusableSlot(); ok {
		if available < len(data) {
			return coretypes.InvalidSlotID, storageerrors.New(storageerrors.Exhausted, "page: insufficient space to reuse deleted slot")
		}
		old := readSlot(p.buf, reuse)
		copy(p.buf[freeStart:int(freeStart)+len(data)], data)
		writeSlot(p.buf, reuse, slot{offset: freeStart, length: uint16(len(data)), flags: flagValid})
		p.view.setFreeStart(freeStart + uint16(len(data)))
		if p.deletedSlotCount > 0 {
			p.deletedSlotCount--
		}
		p.fragmentedBytes -= uint32(old.length)
		p.dirty = true
		p.view.RecomputeChecksum()
		return reuse, nil
	}

	required := len(data) + SlotEntrySize
	if available < required {
		return coretypes.InvalidSlotID, storageerrors.New(storageerrors.Exhausted, "page: insufficient space for new tuple and slot entry")
	}

	newID := coretypes.SlotID(p.view.SlotCount())
	copy(p.buf[freeStart:int(freeStart)+len(data)], data)
	writeSlot(p.buf, newID, slot{offset: freeStart, length: uint16(len(data)), flags: flagValid})
	p.view.setFreeStart(freeStart + uint16(len(data)))
	p.view.setSlotCount(uint16(newID) + 1)
	p.view.setFreeEnd(Size - (uint16(newID)+1)*SlotEntrySize)
	p.dirty = true
	p.view.RecomputeChecksum()
	return newID, nil
}

func (p *Page) checkRange(id coretypes.SlotID) error {
	if uint16(id) >= p.view.SlotCount() {
		return storageerrors.Newf(storageerrors.NotFound, "page: slot %d out of range", id)
	}
	return nil
}

// Get returns a copy of slot id's current tuple bytes. It does not follow
// forwarding pointers — callers resolve those at the coordinator layer,
// which can walk across pages.
func (p *Page) Get(id coretypes.SlotID) ([]byte, error) {
	if err := p.checkRange(id); err != nil {
		return nil, err
	}
	s := readSlot(p.buf, id)
	if s.flags&flagValid == 0 {
		return nil, storageerrors.Newf(storageerrors.NotFound, "page: slot %d is deleted", id)
	}
	if s.flags&flagForwarded != 0 {
		return nil, storageerrors.Newf(storageerrors.NotFound, "page: slot %d is forwarded, has no local data", id)
	}
	out := make([]byte, s.length)
	copy(out, p.buf[s.offset:int(s.offset)+int(s.length)])
	return out, nil
}

// Delete invalidates slot id. The slot entry is kept (preserving the slot
// id for reuse bookkeeping and forwarding-chain integrity) but its flag is
// cleared and its occupied bytes are counted as fragmentation.
func (p *Page) Delete(id coretypes.SlotID) error {
	if err := p.checkRange(id); err != nil {
		return err
	}
	s := readSlot(p.buf, id)
	if s.flags&flagValid == 0 {
		return storageerrors.Newf(storageerrors.NotFound, "page: slot %d already deleted", id)
	}
	s.flags &^= flagValid | flagForwarded
	writeSlot(p.buf, id, s)
	p.deletedSlotCount++
	p.fragmentedBytes += uint32(s.length)
	p.dirty = true
	p.view.RecomputeChecksum()
	return nil
}

// UpdateInPlace overwrites slot id's tuple bytes without moving it,
// provided the new payload is no larger than the slot's current capacity.
// Callers that observe a too-large update must insert the bytes elsewhere
// and forward this slot to them instead; that policy lives at the
// coordinator.
func (p *Page) UpdateInPlace(id coretypes.SlotID, data []byte) error {
	if err := p.checkRange(id); err != nil {
		return err
	}
	s := readSlot(p.buf, id)
	if s.flags&flagValid == 0 {
		return storageerrors.Newf(storageerrors.NotFound, "page: slot %d is deleted", id)
	}
	if s.flags&flagForwarded != 0 {
		return storageerrors.Newf(storageerrors.InvalidArgument, "page: slot %d is forwarded, update its target instead", id)
	}
	if len(data) > int(s.length) {
		return storageerrors.Newf(storageerrors.InvalidArgument,
			"page: update of %d bytes exceeds slot %d capacity of %d", len(data), id, s.length)
	}
	copy(p.buf[s.offset:int(s.offset)+len(data)], data)
	s.length = uint16(len(data))
	writeSlot(p.buf, id, s)
	p.dirty = true
	p.view.RecomputeChecksum()
	return nil
}

// MarkForwarded converts slot id into a forwarding stub pointing at
// target: its data bytes become dead space (folded into fragmentedBytes)
// and its length drops to zero.
func (p *Page) MarkForwarded(id coretypes.SlotID, target coretypes.TupleID) error {
	if err := p.checkRange(id); err != nil {
		return err
	}
	s := readSlot(p.buf, id)
	if s.flags&flagValid == 0 {
		return storageerrors.Newf(storageerrors.NotFound, "page: slot %d is deleted", id)
	}
	fwd, err := encodeForward(target)
	if err != nil {
		return err
	}
	p.fragmentedBytes += uint32(s.length)
	s.length = 0
	s.flags |= flagValid | flagForwarded
	s.forward = fwd
	writeSlot(p.buf, id, s)
	p.dirty = true
	p.view.RecomputeChecksum()
	return nil
}

// IsForwarded reports whether slot id currently holds a forwarding stub,
// and if so, its target.
func (p *Page) IsForwarded(id coretypes.SlotID) (coretypes.TupleID, bool, error) {
	if err := p.checkRange(id); err != nil {
		return coretypes.TupleID{}, false, err
	}
	s := readSlot(p.buf, id)
	if s.flags&flagValid == 0 {
		return coretypes.TupleID{}, false, storageerrors.Newf(storageerrors.NotFound, "page: slot %d is deleted", id)
	}
	if s.flags&flagForwarded == 0 {
		return coretypes.TupleID{}, false, nil
	}
	return s.forwardTarget(), true, nil
}

// FollowForwardingChain walks forwarding stubs starting at id, staying on
// this page as long as the target page matches p.ID(). It returns the
// first tuple id that either resolves to live data or hands off to
// another page, up to maxHops steps; it returns coretypes.InvalidTupleID
// on a broken link, a deleted slot, or a cycle.
func (p *Page) FollowForwardingChain(id coretypes.SlotID, maxHops int) coretypes.TupleID {
	visited := make(map[coretypes.SlotID]bool)
	current := id
	for hop := 0; hop < maxHops; hop++ {
		if visited[current] {
			return coretypes.InvalidTupleID
		}
		visited[current] = true

		if err := p.checkRange(current); err != nil {
			return coretypes.InvalidTupleID
		}
		s := readSlot(p.buf, current)
		if s.flags&flagValid == 0 {
			return coretypes.InvalidTupleID
		}
		if s.flags&flagForwarded == 0 {
			return coretypes.TupleID{PageID: p.id, SlotID: current}
		}
		target := s.forwardTarget()
		if target.PageID != p.id {
			return target
		}
		current = target.SlotID
	}
	return coretypes.InvalidTupleID
}
