// Package coretypes holds the identifiers and sentinel values shared by
// every layer of the storage core: page IDs, slot IDs, and the tuple ID
// pair that higher layers treat as an opaque handle.
package coretypes

// PageID identifies a page within a single data file. Allocated
// monotonically by the block device; never reused. Zero means "no page".
type PageID uint32

// InvalidPageID is the reserved sentinel meaning "no page".
const InvalidPageID PageID = 0

// SlotID identifies a slot within a single page's slot directory.
// 65535 means "no slot".
type SlotID uint16

// InvalidSlotID is the reserved sentinel meaning "no slot".
const InvalidSlotID SlotID = 65535

// TupleID is the stable external handle for a stored record: the pair of
// page-id and slot-id at which it was originally inserted. Resolving a
// TupleID to its current location may require following forwarding
// pointers — callers always hold onto the original pair.
type TupleID struct {
	PageID PageID
	SlotID SlotID
}

// InvalidTupleID is returned whenever resolution fails: a broken chain, a
// cycle, or a reference to a deleted slot.
var InvalidTupleID = TupleID{PageID: InvalidPageID, SlotID: 0}

// IsValid reports whether t is not the reserved invalid marker. Note this
// only checks the sentinel shape, not whether the tuple is actually live —
// callers still need GetTuple to confirm that.
func (t TupleID) IsValid() bool {
	return t != InvalidTupleID
}

// PageType tags what a page's bytes are used for.
type PageType uint8

const (
	PageTypeData PageType = iota
	PageTypeIndex
	PageTypeFreeSpace
)
