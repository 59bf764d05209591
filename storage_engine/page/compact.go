package page

import "storagecore/storage_engine/coretypes"

// compaction thresholds, expressed the way the spec's design notes state
// them: trigger on fragmentation ratio, deleted-slot ratio, or a small
// contiguous-free region combined with non-trivial fragmentation.
const (
	compactFragmentRatioNum   = 1
	compactFragmentRatioDenom = 2
	compactDeletedRatioNum    = 1
	compactDeletedRatioDenom  = 2
	compactLowFreeThreshold   = 100
	compactMinFragmentAbs     = 100
)

// ShouldCompact reports whether this page's current fragmentation
// justifies a compaction pass. A page with no deleted slots never needs
// compacting; Compact on such a page is a no-op.
func (p *Page) ShouldCompact() bool {
	if p.deletedSlotCount == 0 {
		return false
	}
	used := p.UsedBytes()
	if used > 0 && int(p.fragmentedBytes)*compactFragmentRatioDenom >= used*compactFragmentRatioNum {
		return true
	}
	count := int(p.view.SlotCount())
	if count > 0 && int(p.deletedSlotCount)*compactDeletedRatioDenom >= count*compactDeletedRatioNum {
		return true
	}
	if p.FreeBytes() < compactLowFreeThreshold && int(p.fragmentedBytes) >= compactMinFragmentAbs {
		return true
	}
	return false
}

// Compact reclaims dead data-area bytes. When every slot on the page is
// deleted, it resets the page to empty (slot_count back to zero). In the
// general case it preserves slot ids and the slot directory's size —
// compaction never renumbers a live tuple's slot id — and densely
// repacks the surviving (valid or forwarded) slots' bytes at the front of
// the data area, in ascending slot-id order.
func (p *Page) Compact() {
	if p.deletedSlotCount == 0 {
		return
	}

	count := p.view.SlotCount()
	if uint16(p.deletedSlotCount) == count {
		p.view.setFreeStart(HeaderSize)
		p.view.setFreeEnd(Size)
		p.view.setSlotCount(0)
		p.deletedSlotCount = 0
		p.fragmentedBytes = 0
		p.dirty = true
		p.view.RecomputeChecksum()
		return
	}

	scratch := make([]byte, Size)
	cursor := uint16(HeaderSize)
	for i := coretypes.SlotID(0); i < coretypes.SlotID(count); i++ {
		s := readSlot(p.buf, i)
		if s.flags&flagValid == 0 {
			writeSlot(p.buf, i, slot{})
			continue
		}
		if s.length > 0 {
			copy(scratch[cursor:int(cursor)+int(s.length)], p.buf[s.offset:int(s.offset)+int(s.length)])
		}
		s.offset = cursor
		writeSlot(p.buf, i, s)
		cursor += s.length
	}
	copy(p.buf[HeaderSize:cursor], scratch[HeaderSize:cursor])

	p.view.setFreeStart(cursor)
	p.deletedSlotCount = 0
	p.fragmentedBytes = 0
	p.dirty = true
	p.view.RecomputeChecksum()
}
