package wal

import (
	"fmt"
	"sync"
)

// SealStatus tracks whether a Logfile can still accept new appends.
type SealStatus int

const (
	SealUnknown SealStatus = iota
	SealUnsealed
	SealRequested
	SealSealed
)

func (s SealStatus) String() string {
	switch s {
	case SealUnsealed:
		return "unsealed"
	case SealRequested:
		return "seal-requested"
	case SealSealed:
		return "sealed"
	default:
		return "unknown"
	}
}

// CollectionStatus tracks a sealed Logfile's progress through the
// cleanup/compactor loop, which moves committed records out of the log and
// into each collection's permanent storage.
type CollectionStatus int

const (
	CollectionUnknown CollectionStatus = iota
	CollectionUncollected
	CollectionRequested
	CollectionDone
)

func (c CollectionStatus) String() string {
	switch c {
	case CollectionUncollected:
		return "uncollected"
	case CollectionRequested:
		return "collection-requested"
	case CollectionDone:
		return "done"
	default:
		return "unknown"
	}
}

// Logfile wraps a Segment with the seal/collection state machine a real
// WAL logfile needs: writers check Writeable before appending, the cleanup
// loop checks CanCollect before reclaiming the file, and both transitions
// are one-way (unsealed -> sealed, uncollected -> requested -> done).
type Logfile struct {
	mu         sync.Mutex
	segment    *Segment
	seal       SealStatus
	collection CollectionStatus
}

// CreateLogfile allocates a brand new, writeable logfile segment.
func CreateLogfile(dir string, id SegmentID, startLSN LSN) (*Logfile, error) {
	seg, err := NewSegment(dir, id, startLSN)
	if err != nil {
		return nil, err
	}
	return &Logfile{
		segment:    seg,
		seal:       SealUnsealed,
		collection: CollectionUncollected,
	}, nil
}

// OpenLogfile reopens an existing logfile segment, scanning from the start
// for the last complete record and treating anything past it as a torn
// write from an unclean shutdown. Logfiles recovered this way are opened
// sealed: a reopened file is never appended to again, only collected.
func OpenLogfile(dir string, id SegmentID) (*Logfile, error) {
	seg, err := OpenSegment(dir, id)
	if err != nil {
		return nil, err
	}

	records, truncateErr := seg.ReadRecords()
	// ReadRecords stops at the first malformed length/CRC, which for a
	// torn tail write is exactly the truncation point we want: records
	// read so far are valid, anything after is discarded.
	if truncateErr != nil && len(records) == 0 {
		return nil, fmt.Errorf("logfile %d unreadable from the start: %w", id, truncateErr)
	}

	var lastLSN LSN
	if len(records) > 0 {
		lastLSN = records[len(records)-1].LSN
	}
	seg.endLSN = lastLSN

	return &Logfile{
		segment:    seg,
		seal:       SealSealed,
		collection: CollectionUncollected,
	}, nil
}

// Writeable reports whether a record of n encoded bytes may still be
// appended: the logfile must be unsealed and have enough free space left
// in its underlying segment for n bytes plus the segment's 4-byte length
// prefix.
func (l *Logfile) Writeable(n int) bool {
	l.mu.Lock()
	seal := l.seal
	l.mu.Unlock()
	if seal != SealUnsealed {
		return false
	}
	return l.segment.Remaining() >= int64(n+4)
}

// SealStatusValue returns the current seal state.
func (l *Logfile) SealStatusValue() SealStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seal
}

// RequestSeal moves an unsealed logfile to seal-requested. It is a no-op
// (not an error) if the file is already past this point, since seal
// requests can race with the cleanup loop's own progression.
func (l *Logfile) RequestSeal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seal == SealUnsealed {
		l.seal = SealRequested
	}
}

// Seal finalizes the seal-requested -> sealed transition. Once sealed a
// logfile is immutable and becomes eligible for collection.
func (l *Logfile) Seal() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seal == SealSealed {
		return nil
	}
	if l.seal != SealRequested && l.seal != SealUnsealed {
		return fmt.Errorf("logfile: cannot seal from state %s", l.seal)
	}
	if err := l.segment.Sync(); err != nil {
		return err
	}
	l.seal = SealSealed
	return nil
}

// CanCollect reports whether the cleanup loop may start reclaiming this
// logfile: it must be sealed and not already mid-collection.
func (l *Logfile) CanCollect() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seal == SealSealed && l.collection == CollectionUncollected
}

// SetCollectionRequested marks the start of a collection pass. Returns an
// error if the logfile was not eligible, so callers never run two
// collection passes over the same file concurrently.
func (l *Logfile) SetCollectionRequested() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seal != SealSealed {
		return fmt.Errorf("logfile: cannot collect an unsealed logfile")
	}
	if l.collection != CollectionUncollected {
		return fmt.Errorf("logfile: collection already %s", l.collection)
	}
	l.collection = CollectionRequested
	return nil
}

// SetCollectionDone marks a logfile as fully collected; it is now a
// candidate for physical removal by the cleanup loop.
func (l *Logfile) SetCollectionDone() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.collection = CollectionDone
}

// CollectionStatusValue returns the current collection state.
func (l *Logfile) CollectionStatusValue() CollectionStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.collection
}

// Append writes a record to the underlying segment. Returns an error if
// the logfile is not writeable or does not have room left for the
// record's encoded size.
func (l *Logfile) Append(record *Record) error {
	data, err := record.Encode()
	if err != nil {
		return err
	}
	if !l.Writeable(len(data)) {
		return fmt.Errorf("logfile: append to non-writeable logfile (seal=%s)", l.SealStatusValue())
	}
	return l.segment.Write(record)
}

// ID returns the underlying segment id.
func (l *Logfile) ID() SegmentID {
	return l.segment.ID
}

// Close closes the underlying segment file.
func (l *Logfile) Close() error {
	return l.segment.Close()
}
