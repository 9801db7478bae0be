package wal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fasanicam/ferme-dashboard/internal/domain"
	"github.com/fasanicam/ferme-dashboard/internal/ports"
)

func TestFileWALAppendIterateAndReplay(t *testing.T) {
	dir := t.TempDir()

	w, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r1 := domain.NewMeasurement("m1", "temp", "21.5", ts)
	r2 := domain.NewRawLog(domain.RawMessage{Topic: "bzh/mecatro/x", Payload: "p", ReceivedAt: ts},
		domain.TopicDescriptor{Category: domain.CategoryOther})

	id1, err := w.Append(&r1)
	if err != nil || id1 == 0 {
		t.Fatalf("append record 1: %v id=%d", err, id1)
	}
	id2, err := w.Append(&r2)
	if err != nil || id2 == 0 {
		t.Fatalf("append record 2: %v id=%d", err, id2)
	}

	var iterated []domain.Record
	if err := w.Iterate(1, func(id ports.WALEntryID, r *domain.Record) error {
		iterated = append(iterated, *r)
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(iterated) != 2 {
		t.Fatalf("expected 2 records, got %d", len(iterated))
	}
	if iterated[0].Value != "21.5" || !iterated[0].Timestamp.Equal(ts) {
		t.Fatalf("record did not round-trip: %+v", iterated[0])
	}
	if iterated[1].Kind != domain.RecordRawMessage || iterated[1].Category != domain.CategoryOther {
		t.Fatalf("raw record did not round-trip: %+v", iterated[1])
	}

	if err := w.Commit(id2); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close wal: %v", err)
	}

	// Reopen and ensure committed metadata was persisted.
	w2, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("reopen wal: %v", err)
	}

	stats := w2.Stats()
	if stats.LatestAppended != id2 {
		t.Fatalf("expected latest appended %d, got %d", id2, stats.LatestAppended)
	}
	if stats.OldestUncommitted != id2+1 {
		t.Fatalf("expected oldest uncommitted %d, got %d", id2+1, stats.OldestUncommitted)
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("close wal2: %v", err)
	}

	// A torn tail from a crash mid-write is cut off on open.
	if err := appendGarbage(filepath.Join(dir, "wal.log")); err != nil {
		t.Fatalf("append garbage: %v", err)
	}
	w3, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("reopen after garbage: %v", err)
	}
	defer w3.Close()
	if w3.Stats().LatestAppended != id2 {
		t.Fatalf("torn tail should not count as an entry")
	}
}

func TestFileWALTruncateCommitted(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}
	defer w.Close()

	var ids []ports.WALEntryID
	for i := 0; i < 5; i++ {
		r := domain.NewReceipt(time.Unix(int64(i), 0))
		id, err := w.Append(&r)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		ids = append(ids, id)
	}
	before := w.Stats().SizeBytes

	if err := w.Commit(ids[2]); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := w.TruncateCommitted(); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	stats := w.Stats()
	if stats.SizeBytes >= before {
		t.Fatalf("expected log to shrink, before=%d after=%d", before, stats.SizeBytes)
	}

	var left []ports.WALEntryID
	if err := w.Iterate(0, func(id ports.WALEntryID, _ *domain.Record) error {
		left = append(left, id)
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(left) != 2 || left[0] != ids[3] || left[1] != ids[4] {
		t.Fatalf("expected only uncommitted entries, got %v", left)
	}

	r := domain.NewReceipt(time.Unix(99, 0))
	next, err := w.Append(&r)
	if err != nil {
		t.Fatalf("append after truncate: %v", err)
	}
	if next != ids[4]+1 {
		t.Fatalf("ids must stay monotonic, got %d after %d", next, ids[4])
	}
}

func TestFileWALTruncateEverythingKeepsIDs(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}

	r := domain.NewReceipt(time.Unix(1, 0))
	id, _ := w.Append(&r)
	if err := w.Commit(id); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := w.TruncateCommitted(); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if w.Stats().SizeBytes != 0 {
		t.Fatalf("expected empty log, got %d bytes", w.Stats().SizeBytes)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	w2, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w2.Close()
	next, _ := w2.Append(&r)
	if next != id+1 {
		t.Fatalf("expected id %d after reopen, got %d", id+1, next)
	}
}

func appendGarbage(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write([]byte{0xFF, 0xAA})
	return err
}

func TestFileWALFailedTruncateKeepsLogWritable(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWAL(dir)
	if err != nil {
		t.Fatalf("new wal: %v", err)
	}
	defer w.Close()

	var last ports.WALEntryID
	for i := 0; i < 3; i++ {
		r := domain.NewReceipt(time.Unix(int64(i), 0))
		if last, err = w.Append(&r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := w.Commit(1); err != nil {
		t.Fatalf("commit: %v", err)
	}
	before := w.Stats().SizeBytes

	renameFile = func(string, string) error { return errors.New("disk gone") }
	defer func() { renameFile = os.Rename }()

	if err := w.TruncateCommitted(); err == nil {
		t.Fatal("expected truncate to report the failed swap")
	}
	if got := w.Stats().SizeBytes; got != before {
		t.Fatalf("size must be untouched after a failed swap, got %d want %d", got, before)
	}
	if _, err := os.Stat(w.path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary copy must be removed, stat err=%v", err)
	}

	r := domain.NewReceipt(time.Unix(99, 0))
	next, err := w.Append(&r)
	if err != nil {
		t.Fatalf("append after failed truncate: %v", err)
	}
	if next != last+1 {
		t.Fatalf("expected id %d, got %d", last+1, next)
	}

	var seen []ports.WALEntryID
	if err := w.Iterate(0, func(id ports.WALEntryID, _ *domain.Record) error {
		seen = append(seen, id)
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(seen) != 4 || seen[3] != next {
		t.Fatalf("expected the untouched log plus the new entry, got %v", seen)
	}

	renameFile = os.Rename
	if err := w.TruncateCommitted(); err != nil {
		t.Fatalf("truncate after recovery: %v", err)
	}
}
