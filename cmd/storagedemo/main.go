// Storagedemo exercises the engine end to end: opens a table, inserts a
// handful of tuples, updates one past its original slot capacity to force
// a forwarding spill, deletes another, and flushes everything to disk.
//
// Run: go run ./cmd/storagedemo
package main

import (
	"fmt"
	"log"
	"os"

	storageengine "storagecore/storage_engine"
	"storagecore/storage_engine/coretypes"
)

const (
	baseDir   = "data/demo"
	tableID   = 1
	tableName = "widgets"
)

func main() {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		log.Fatalf("mkdir: %v", err)
	}

	engine, err := storageengine.Open(baseDir, tableID, tableName)
	if err != nil {
		log.Fatalf("open engine: %v", err)
	}
	defer engine.Close()

	ids := make([]coretypes.TupleID, 0, 3)
	for _, row := range []string{"widget-one", "widget-two", "widget-three"} {
		id, err := engine.InsertTuple([]byte(row))
		if err != nil {
			log.Fatalf("insert %q: %v", row, err)
		}
		fmt.Printf("inserted %q at page %d slot %d\n", row, id.PageID, id.SlotID)
		ids = append(ids, id)
	}

	if err := engine.UpdateTuple(ids[0], []byte("widget-one, now with a much longer description than before")); err != nil {
		log.Fatalf("update: %v", err)
	}
	got, err := engine.GetTuple(ids[0])
	if err != nil {
		log.Fatalf("get after update: %v", err)
	}
	fmt.Printf("widget one is now %q\n", got)

	if err := engine.DeleteTuple(ids[1]); err != nil {
		log.Fatalf("delete: %v", err)
	}

	if err := engine.CompactPage(ids[1].PageID); err != nil {
		log.Fatalf("compact: %v", err)
	}

	if err := engine.FlushAllPages(); err != nil {
		log.Fatalf("flush: %v", err)
	}

	fmt.Println("done")
}
