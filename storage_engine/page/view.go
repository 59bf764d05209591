package page

import (
	"encoding/binary"

	"storagecore/storage_engine/checksum"
	"storagecore/storage_engine/coretypes"
)

// View is a non-owning façade over a raw PAGE_SIZE-byte buffer. It never
// allocates or copies; it reads, writes and checksums the header fields of
// whatever buffer it wraps. Page embeds one over its own buffer for its
// header accessors and checksum; the block device reaches it through
// FromBytes, which verifies a freshly read buffer in place, and
// Page.Buffer.
type View struct {
	buf []byte
}

// NewView wraps buf, which must be exactly Size bytes.
func NewView(buf []byte) View {
	if len(buf) != Size {
		panic("page: View requires a buffer of exactly Size bytes")
	}
	return View{buf: buf}
}

// Bytes returns the underlying buffer, shared with the caller.
func (v View) Bytes() []byte { return v.buf }

func (v View) PageIDEcho() coretypes.PageID {
	return coretypes.PageID(binary.LittleEndian.Uint16(v.buf[offPageIDEcho:]))
}

func (v View) setPageIDEcho(id coretypes.PageID) {
	binary.LittleEndian.PutUint16(v.buf[offPageIDEcho:], uint16(id))
}

func (v View) SlotIDEcho() uint16 {
	return binary.LittleEndian.Uint16(v.buf[offSlotIDEcho:])
}

func (v View) FreeStart() uint16 {
	return binary.LittleEndian.Uint16(v.buf[offFreeStart:])
}

func (v View) setFreeStart(x uint16) {
	binary.LittleEndian.PutUint16(v.buf[offFreeStart:], x)
}

func (v View) FreeEnd() uint16 {
	return binary.LittleEndian.Uint16(v.buf[offFreeEnd:])
}

func (v View) setFreeEnd(x uint16) {
	binary.LittleEndian.PutUint16(v.buf[offFreeEnd:], x)
}

func (v View) SlotCount() uint16 {
	return binary.LittleEndian.Uint16(v.buf[offSlotCount:])
}

func (v View) setSlotCount(x uint16) {
	binary.LittleEndian.PutUint16(v.buf[offSlotCount:], x)
}

func (v View) PageType() Type {
	return Type(v.buf[offPageType])
}

func (v View) setPageType(t Type) {
	v.buf[offPageType] = byte(t)
}

func (v View) Flags() uint8 {
	return v.buf[offFlags]
}

func (v View) setFlags(f uint8) {
	v.buf[offFlags] = f
}

// Checksum returns the checksum field as persisted.
func (v View) Checksum() uint32 {
	return binary.LittleEndian.Uint32(v.buf[offChecksum:])
}

func (v View) setChecksum(c uint32) {
	binary.LittleEndian.PutUint32(v.buf[offChecksum:], c)
}

// ComputeChecksum returns the CRC32 of the whole buffer with the checksum
// field itself zeroed out for the computation. It does not mutate buf.
func (v View) ComputeChecksum() uint32 {
	saved := v.Checksum()
	v.setChecksum(0)
	sum := checksum.Compute(v.buf)
	v.setChecksum(saved)
	return sum
}

// VerifyChecksum reports whether the persisted checksum matches the
// buffer's current contents.
func (v View) VerifyChecksum() bool {
	return v.Checksum() == v.ComputeChecksum()
}

// RecomputeChecksum recomputes and persists the checksum field. Callers
// must call this after any mutation and before the buffer is handed to the
// block device for a write.
func (v View) RecomputeChecksum() {
	v.setChecksum(v.ComputeChecksum())
}
