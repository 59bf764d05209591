package page

import (
	"bytes"
	"testing"

	"storagecore/storage_engine/coretypes"
)

func TestFillToRefusal(t *testing.T) {
	p := New(1, TypeData)
	data := bytes.Repeat([]byte{0xAB}, 100)

	n := 0
	for {
		if _, err := p.Insert(data); err != nil {
			break
		}
		n++
	}
	if n != 75 {
		t.Fatalf("inserted %d 100-byte tuples before refusal, want 75", n)
	}
}

func TestSlotReuseTieBreaksLowest(t *testing.T) {
	p := New(2, TypeData)
	data := bytes.Repeat([]byte{0x11}, 50)

	var ids []coretypes.SlotID
	for i := 0; i < 4; i++ {
		id, err := p.Insert(data)
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	if err := p.Delete(ids[2]); err != nil {
		t.Fatalf("delete: %v", err)
	}

	reused, err := p.Insert(data)
	if err != nil {
		t.Fatalf("reuse insert: %v", err)
	}
	if reused != ids[2] {
		t.Fatalf("reuse insert returned slot %d, want %d", reused, ids[2])
	}
}

func TestCompactionReclaimsFragmentation(t *testing.T) {
	p := New(3, TypeData)
	data := bytes.Repeat([]byte{0x22}, 200)

	var ids []coretypes.SlotID
	for i := 0; i < 10; i++ {
		id, err := p.Insert(data)
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		ids = append(ids, id)
	}
	for i := 0; i < 5; i++ {
		if err := p.Delete(ids[i]); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}

	if !p.ShouldCompact() {
		t.Fatalf("expected ShouldCompact to be true with half the slots deleted")
	}
	freeBefore := p.FreeBytes()

	p.Compact()

	if p.FragmentedBytes() != 0 {
		t.Fatalf("fragmentedBytes after compact = %d, want 0", p.FragmentedBytes())
	}
	if p.DeletedSlotCount() != 0 {
		t.Fatalf("deletedSlotCount after compact = %d, want 0", p.DeletedSlotCount())
	}
	if p.SlotCount() != 10 {
		t.Fatalf("slot count changed by general-case compact: got %d, want 10", p.SlotCount())
	}
	if p.FreeBytes() <= freeBefore {
		t.Fatalf("compact did not reclaim space: before=%d after=%d", freeBefore, p.FreeBytes())
	}

	for i := 5; i < 10; i++ {
		got, err := p.Get(ids[i])
		if err != nil {
			t.Fatalf("get surviving slot %d after compact: %v", ids[i], err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("surviving slot %d data corrupted by compact", ids[i])
		}
	}
	for i := 0; i < 5; i++ {
		if _, err := p.Get(ids[i]); err == nil {
			t.Fatalf("deleted slot %d unexpectedly readable after compact", ids[i])
		}
	}
}

func TestCompactionAllDeletedResetsPage(t *testing.T) {
	p := New(4, TypeData)
	data := bytes.Repeat([]byte{0x33}, 64)
	id, _ := p.Insert(data)
	_ = p.Delete(id)

	p.Compact()

	if p.SlotCount() != 0 {
		t.Fatalf("all-deleted compact should zero slot_count, got %d", p.SlotCount())
	}
	if p.FreeBytes() != Size-HeaderSize {
		t.Fatalf("all-deleted compact should reset free space, got %d", p.FreeBytes())
	}
}

func TestChecksumDetectsCorruption(t *testing.T) {
	p := New(5, TypeData)
	if _, err := p.Insert([]byte("hello")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	buf := p.Buffer()

	corrupted := make([]byte, len(buf))
	copy(corrupted, buf)
	corrupted[HeaderSize] ^= 0xFF

	if _, err := FromBytes(5, corrupted); err == nil {
		t.Fatalf("expected checksum verification to fail on bit-flipped buffer")
	}

	clean := make([]byte, len(buf))
	copy(clean, buf)
	if _, err := FromBytes(5, clean); err != nil {
		t.Fatalf("unexpected error loading uncorrupted buffer: %v", err)
	}
}

func TestUpdateSpillCreatesForwarding(t *testing.T) {
	src := New(6, TypeData)
	id, err := src.Insert(bytes.Repeat([]byte{0x44}, 20))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	dst := New(7, TypeData)
	bigger := bytes.Repeat([]byte{0x55}, 20)
	if err := src.UpdateInPlace(id, bigger); err != nil {
		t.Fatalf("in-place update of same-size payload should succeed: %v", err)
	}

	tooBig := bytes.Repeat([]byte{0x66}, 40)
	if err := src.UpdateInPlace(id, tooBig); err == nil {
		t.Fatalf("expected in-place update to refuse an oversized payload")
	}

	newID, err := dst.Insert(tooBig)
	if err != nil {
		t.Fatalf("insert into destination page: %v", err)
	}
	if err := src.MarkForwarded(id, coretypes.TupleID{PageID: dst.ID(), SlotID: newID}); err != nil {
		t.Fatalf("mark forwarded: %v", err)
	}

	target, forwarded, err := src.IsForwarded(id)
	if err != nil {
		t.Fatalf("is forwarded: %v", err)
	}
	if !forwarded {
		t.Fatalf("expected slot %d to be forwarded", id)
	}
	if target.PageID != dst.ID() || target.SlotID != newID {
		t.Fatalf("forward target = %+v, want page %d slot %d", target, dst.ID(), newID)
	}

	resolved := src.FollowForwardingChain(id, 10)
	if resolved.PageID != dst.ID() || resolved.SlotID != newID {
		t.Fatalf("FollowForwardingChain = %+v, want hand-off to dst page", resolved)
	}
}

func TestFollowForwardingChainDetectsCycle(t *testing.T) {
	p := New(8, TypeData)
	idA, _ := p.Insert([]byte("a"))
	idB, _ := p.Insert([]byte("b"))

	if err := p.MarkForwarded(idA, coretypes.TupleID{PageID: p.ID(), SlotID: idB}); err != nil {
		t.Fatalf("mark forwarded a->b: %v", err)
	}
	if err := p.MarkForwarded(idB, coretypes.TupleID{PageID: p.ID(), SlotID: idA}); err != nil {
		t.Fatalf("mark forwarded b->a: %v", err)
	}

	resolved := p.FollowForwardingChain(idA, 10)
	if resolved.IsValid() {
		t.Fatalf("expected cycle detection to return InvalidTupleID, got %+v", resolved)
	}
}

// TestRescanSumsInvalidSlotLengths pins rescan's formula to the one the
// original's ReadPage uses: fragmentedBytes after a reload is the sum of
// the length field of every slot with the VALID bit clear, not some
// derived used-minus-live figure. Matters most right after a deleted
// slot has been reused: Insert subtracts the reused slot's old length
// back out of the running counter, and a reload must recompute the same
// (smaller) figure, not double count it.
func TestRescanSumsInvalidSlotLengths(t *testing.T) {
	p := New(10, TypeData)
	a, _ := p.Insert(bytes.Repeat([]byte{0x01}, 80))
	_, _ = p.Insert(bytes.Repeat([]byte{0x02}, 40))

	if err := p.Delete(a); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// Reuses slot a's entry for a smaller 20-byte payload (written at
	// free_start, not over a's old bytes), subtracting a's old length back
	// out of fragmentedBytes.
	reused, err := p.Insert(bytes.Repeat([]byte{0x03}, 20))
	if err != nil {
		t.Fatalf("reuse insert: %v", err)
	}
	if reused != a {
		t.Fatalf("expected reuse of slot %d, got %d", a, reused)
	}
	if p.FragmentedBytes() != 0 {
		t.Fatalf("fragmentedBytes after reuse = %d, want 0", p.FragmentedBytes())
	}

	buf := make([]byte, Size)
	copy(buf, p.Buffer())
	reloaded, err := FromBytes(10, buf)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.FragmentedBytes() != p.FragmentedBytes() {
		t.Fatalf("reloaded fragmentedBytes = %d, want %d (matching pre-reload value)", reloaded.FragmentedBytes(), p.FragmentedBytes())
	}
}

func TestDeleteRejectsOutOfRangeAndDouble(t *testing.T) {
	p := New(9, TypeData)
	if err := p.Delete(0); err == nil {
		t.Fatalf("expected delete of out-of-range slot to fail")
	}

	id, _ := p.Insert([]byte("x"))
	if err := p.Delete(id); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := p.Delete(id); err == nil {
		t.Fatalf("expected second delete of the same slot to fail")
	}
}
