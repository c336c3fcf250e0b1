package wal

import (
	"os"
	"testing"
	"time"
)

func TestLogfileSealLifecycle(t *testing.T) {
	tmpdir := t.TempDir()

	lf, err := CreateLogfile(tmpdir, 0, LSN(1))
	if err != nil {
		t.Fatalf("Failed to create logfile: %v", err)
	}
	defer lf.Close()

	if !lf.Writeable(64) {
		t.Fatal("New logfile should be writeable")
	}

	rec := &Record{
		LSN:       1,
		TxnID:     1,
		Type:      RecordTypeInsert,
		Key:       []byte("k"),
		Value:     []byte("v"),
		Timestamp: time.Now().UnixNano(),
	}
	if err := lf.Append(rec); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	lf.RequestSeal()
	if lf.SealStatusValue() != SealRequested {
		t.Errorf("Expected seal-requested, got %s", lf.SealStatusValue())
	}

	if err := lf.Seal(); err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if lf.Writeable(64) {
		t.Error("Sealed logfile should not be writeable")
	}

	if err := lf.Append(rec); err == nil {
		t.Error("Append to sealed logfile should fail")
	}
}

func TestLogfileCollectionLifecycle(t *testing.T) {
	tmpdir := t.TempDir()

	lf, err := CreateLogfile(tmpdir, 0, LSN(1))
	if err != nil {
		t.Fatalf("Failed to create logfile: %v", err)
	}
	defer lf.Close()

	if lf.CanCollect() {
		t.Error("Unsealed logfile should not be collectable")
	}

	if err := lf.Seal(); err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	if !lf.CanCollect() {
		t.Error("Sealed, uncollected logfile should be collectable")
	}

	if err := lf.SetCollectionRequested(); err != nil {
		t.Fatalf("SetCollectionRequested failed: %v", err)
	}
	if lf.CanCollect() {
		t.Error("Logfile already under collection should not be collectable again")
	}
	if err := lf.SetCollectionRequested(); err == nil {
		t.Error("Requesting collection twice should fail")
	}

	lf.SetCollectionDone()
	if lf.CollectionStatusValue() != CollectionDone {
		t.Errorf("Expected done, got %s", lf.CollectionStatusValue())
	}
}

func TestOpenLogfileRecoversTornTail(t *testing.T) {
	tmpdir := t.TempDir()

	lf, err := CreateLogfile(tmpdir, 0, LSN(1))
	if err != nil {
		t.Fatalf("Failed to create logfile: %v", err)
	}

	rec := &Record{
		LSN:       1,
		TxnID:     1,
		Type:      RecordTypeInsert,
		Key:       []byte("k"),
		Value:     []byte("v"),
		Timestamp: time.Now().UnixNano(),
	}
	if err := lf.Append(rec); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	path := lf.segment.GetPath()
	if err := lf.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Simulate a torn write: a length prefix promising more bytes than follow.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("Failed to open segment file: %v", err)
	}
	if _, err := f.Write([]byte{100, 0, 0, 0, 1, 2, 3}); err != nil {
		t.Fatalf("Failed to write torn tail: %v", err)
	}
	f.Close()

	reopened, err := OpenLogfile(tmpdir, 0)
	if err != nil {
		t.Fatalf("OpenLogfile failed: %v", err)
	}
	defer reopened.Close()

	if reopened.segment.endLSN != 1 {
		t.Errorf("Expected last complete record LSN 1, got %d", reopened.segment.endLSN)
	}

	if reopened.SealStatusValue() != SealSealed {
		t.Error("Reopened logfile should be sealed")
	}
	if reopened.Writeable(64) {
		t.Error("Reopened logfile should not be writeable")
	}
}

func TestLogfileWriteableRespectsRemainingCapacity(t *testing.T) {
	tmpdir := t.TempDir()

	lf, err := CreateLogfile(tmpdir, 0, LSN(1))
	if err != nil {
		t.Fatalf("Failed to create logfile: %v", err)
	}
	defer lf.Close()

	if !lf.Writeable(1024) {
		t.Fatal("Fresh logfile should have room for a small record")
	}
	if lf.Writeable(DefaultSegmentSize * 2) {
		t.Error("Logfile should not claim room for a record larger than the segment")
	}

	rec := &Record{
		LSN:       1,
		TxnID:     1,
		Type:      RecordTypeInsert,
		Key:       []byte("k"),
		Value:     []byte("v"),
		Timestamp: time.Now().UnixNano(),
	}
	if err := lf.Append(rec); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if lf.Writeable(DefaultSegmentSize) {
		t.Error("Logfile should not claim room for a record that no longer fits after a prior append")
	}
}
