package disk_manager

import (
	"bytes"
	"path/filepath"
	"testing"

	"storagecore/storage_engine/page"
)

func TestAllocateReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	bd, err := Open(filepath.Join(dir, "t1.tbl"), 7, "accounts")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer bd.Close()

	id, err := bd.AllocatePage()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	pg := page.New(id, page.TypeData)
	if _, err := pg.Insert([]byte("round trip")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := bd.WritePage(id, pg); err != nil {
		t.Fatalf("write: %v", err)
	}

	reread, err := bd.ReadPage(id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got, err := reread.Get(0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte("round trip")) {
		t.Fatalf("got %q, want %q", got, "round trip")
	}
}

func TestPageIDsNeverReused(t *testing.T) {
	dir := t.TempDir()
	bd, err := Open(filepath.Join(dir, "t2.tbl"), 1, "t")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer bd.Close()

	a, _ := bd.AllocatePage()
	if err := bd.DeallocatePage(a); err != nil {
		t.Fatalf("deallocate: %v", err)
	}
	b, err := bd.AllocatePage()
	if err != nil {
		t.Fatalf("allocate after deallocate: %v", err)
	}
	if b <= a {
		t.Fatalf("page ids must be monotonic and never reused: a=%d b=%d", a, b)
	}
}

func TestHeaderSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t3.tbl")

	bd, err := Open(path, 42, "orders")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	id1, _ := bd.AllocatePage()
	id2, _ := bd.AllocatePage()
	if err := bd.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path, 0, "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if reopened.TableID() != 42 {
		t.Fatalf("table id = %d, want 42", reopened.TableID())
	}
	if reopened.TableName() != "orders" {
		t.Fatalf("table name = %q, want orders", reopened.TableName())
	}
	if reopened.PageCount() != 2 {
		t.Fatalf("page count = %d, want 2", reopened.PageCount())
	}

	next, err := reopened.AllocatePage()
	if err != nil {
		t.Fatalf("allocate after reopen: %v", err)
	}
	if next <= id2 || next == id1 {
		t.Fatalf("allocate after reopen returned %d, expected continuation past %d and %d", next, id1, id2)
	}
}

func TestReadPageRejectsUnallocatedID(t *testing.T) {
	dir := t.TempDir()
	bd, err := Open(filepath.Join(dir, "t4.tbl"), 1, "t")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer bd.Close()

	if _, err := bd.ReadPage(999); err == nil {
		t.Fatalf("expected error reading an unallocated page id")
	}
}

func TestOpenRejectsEmptyFilename(t *testing.T) {
	if _, err := Open("", 1, "t"); err == nil {
		t.Fatalf("expected error opening an empty filename")
	}
}
