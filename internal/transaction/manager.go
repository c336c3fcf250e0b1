// Package transaction implements the voccore transaction manager: begin,
// read, write, commit, and abort of transactions layered over MVCC
// snapshots and the write-ahead log.
//
// Beyond single-key read/write it tracks, per collection, which
// transactions currently hold a read or write lock, and orders lock
// acquisition across collections by ascending collection name so that two
// transactions touching the same set of collections never deadlock against
// each other.
package transaction

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vocbase/voccore/internal/util"
	"github.com/vocbase/voccore/internal/wal"
	"github.com/vocbase/voccore/mvcc"
)

// Status is the lifecycle state of a Transaction.
type Status int

const (
	StatusActive Status = iota
	StatusCommitted
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusCommitted:
		return "committed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Write is one pending key/value mutation recorded in a transaction's
// write set, applied to the version chain only at commit time.
type Write struct {
	Key   string
	Value []byte
}

// Transaction is a single unit of work. ID is assigned by Begin in
// strictly increasing order; lock acquisition order is by collection name
// (see AddCollections), not by ID.
type Transaction struct {
	ID             uint64
	IsolationLevel mvcc.IsolationLevel
	Status         Status
	Snapshot       *mvcc.Snapshot
	WriteSet       []Write
	StartedAt      time.Time

	// collections this transaction has taken a read or write lock on,
	// keyed by collection name so Commit/Rollback can release them in a
	// deterministic (sorted) order.
	readCollections  map[string]bool
	writeCollections map[string]bool

	mu sync.Mutex
}

// writeValue returns the most recently written value for key within this
// transaction's own write set, implementing read-your-own-writes.
func (t *Transaction) writeValue(key string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.WriteSet) - 1; i >= 0; i-- {
		if t.WriteSet[i].Key == key {
			return t.WriteSet[i].Value, true
		}
	}
	return nil, false
}

// collectionLock is the per-collection bookkeeping the manager keeps so it
// can enforce ascending-name lock ordering and provide real mutual
// exclusion between writers on the same collection; a reader waits for a
// writer, but a writer does not wait for readers. cond guards
// writer/readers and wakes waiters whenever either changes.
type collectionLock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	readers map[uint64]bool
	writer  uint64 // 0 means unheld
}

func newCollectionLock() *collectionLock {
	cl := &collectionLock{readers: make(map[uint64]bool)}
	cl.cond = sync.NewCond(&cl.mu)
	return cl
}

// Manager is the transaction manager. It owns the global list of active
// transactions plus one collectionLock per named collection, and is the
// only component allowed to apply a transaction's write set into the
// version store.
type Manager struct {
	snapshots *mvcc.SnapshotManager
	wal       *wal.WAL

	mu           sync.Mutex
	nextTxnID    uint64
	active       map[uint64]*Transaction
	collections  map[string]*collectionLock
	versions     map[string]*mvcc.Version // committed head per key
	closed       bool
}

// NewTransactionManager builds a Manager bound to the given snapshot
// manager and write-ahead log.
func NewTransactionManager(sm *mvcc.SnapshotManager, w *wal.WAL) *Manager {
	return &Manager{
		snapshots:   sm,
		wal:         w,
		active:      make(map[uint64]*Transaction),
		collections: make(map[string]*collectionLock),
		versions:    make(map[string]*mvcc.Version),
	}
}

// Begin starts a new transaction at the given isolation level.
func (m *Manager) Begin(level mvcc.IsolationLevel) (*Transaction, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, util.ErrDatabaseClosed
	}
	m.nextTxnID++
	id := m.nextTxnID
	m.mu.Unlock()

	snap := m.snapshots.BeginSnapshot(id, level)

	txn := &Transaction{
		ID:               id,
		IsolationLevel:   level,
		Status:           StatusActive,
		Snapshot:         snap,
		StartedAt:        time.Now(),
		readCollections:  make(map[string]bool),
		writeCollections: make(map[string]bool),
	}

	m.mu.Lock()
	m.active[id] = txn
	m.mu.Unlock()

	return txn, nil
}

// lockCollection acquires this transaction's lock on name, creating the
// collectionLock on first use, and blocks until the lock is actually
// available. Callers must acquire locks for a set of collections in
// ascending name order (AddCollections below enforces this) so two
// transactions contending for the same collections never wait on each
// other in opposite orders.
//
// A write acquire blocks while any other transaction holds the writer
// slot; outstanding readers do not block it. A read acquire blocks only
// while another transaction holds the writer slot. Both are idempotent for the
// same txnID, so a transaction that touches the same collection twice
// (e.g. a read followed by a write in the same call) never blocks on
// itself.
func (m *Manager) lockCollection(name string, txnID uint64, write bool) *collectionLock {
	m.mu.Lock()
	cl, ok := m.collections[name]
	if !ok {
		cl = newCollectionLock()
		m.collections[name] = cl
	}
	m.mu.Unlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if write {
		for cl.writer != 0 && cl.writer != txnID {
			cl.cond.Wait()
		}
		cl.writer = txnID
	} else {
		for cl.writer != 0 && cl.writer != txnID {
			cl.cond.Wait()
		}
		cl.readers[txnID] = true
	}

	return cl
}

// AddCollections registers the collections a transaction intends to touch,
// acquiring read or write locks in ascending name order. This is the
// deadlock-avoidance rule: every transaction that needs collections
// {A, C} and every transaction that needs {A, B, C} both lock in the order
// A, B, C, so neither can hold a lock the other is waiting on in reverse.
func (m *Manager) AddCollections(txn *Transaction, reads, writes []string) {
	names := make(map[string]bool, len(reads)+len(writes))
	for _, n := range reads {
		names[n] = true
	}
	for _, n := range writes {
		names[n] = true
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	writeSet := make(map[string]bool, len(writes))
	for _, n := range writes {
		writeSet[n] = true
	}

	txn.mu.Lock()
	defer txn.mu.Unlock()
	for _, n := range sorted {
		m.lockCollection(n, txn.ID, writeSet[n])
		if writeSet[n] {
			txn.writeCollections[n] = true
		} else {
			txn.readCollections[n] = true
		}
	}
}

// Write stages a key/value mutation into the transaction's write set. It is
// not visible to other transactions, and not durable, until Commit.
func (m *Manager) Write(txn *Transaction, key string, value []byte) error {
	if txn.Status != StatusActive {
		return util.ErrTxnNotActive
	}
	txn.mu.Lock()
	txn.WriteSet = append(txn.WriteSet, Write{Key: key, Value: value})
	txn.mu.Unlock()
	return nil
}

// Read returns the value visible to txn for key: first its own uncommitted
// write (read-your-own-writes), then the latest version its snapshot can
// see in the committed version chain.
func (m *Manager) Read(txn *Transaction, key string) ([]byte, error) {
	if txn.Status != StatusActive {
		return nil, util.ErrTxnNotActive
	}
	if v, ok := txn.writeValue(key); ok {
		return v, nil
	}

	m.mu.Lock()
	head := m.versions[key]
	m.mu.Unlock()

	visible := txn.Snapshot.GetVisibleVersion(head)
	if visible == nil {
		return nil, util.ErrDocumentNotFound
	}
	return visible.Data, nil
}

// Commit durably applies a transaction's write set: each write is logged
// to the WAL, then folded into the in-memory version chain, in write-set
// order. The transaction's locks are released last so no other
// transaction can observe a partially-applied commit.
func (m *Manager) Commit(txn *Transaction) error {
	if txn.Status != StatusActive {
		return util.ErrTxnNotActive
	}

	txn.mu.Lock()
	writes := make([]Write, len(txn.WriteSet))
	copy(writes, txn.WriteSet)
	txn.mu.Unlock()

	var prevLSN wal.LSN
	for _, w := range writes {
		rec := &wal.Record{
			TxnID:     txn.ID,
			Type:      wal.RecordTypeUpdate,
			Key:       []byte(w.Key),
			Value:     w.Value,
			PrevLSN:   prevLSN,
			Timestamp: time.Now().UnixNano(),
		}
		lsn, err := m.wal.Append(rec)
		if err != nil {
			return fmt.Errorf("wal append failed during commit: %w", err)
		}
		prevLSN = lsn
	}

	commitRec := &wal.Record{
		TxnID:     txn.ID,
		Type:      wal.RecordTypeCommit,
		PrevLSN:   prevLSN,
		Timestamp: time.Now().UnixNano(),
	}
	if _, err := m.wal.Append(commitRec); err != nil {
		return fmt.Errorf("wal append failed for commit marker: %w", err)
	}

	m.mu.Lock()
	for _, w := range writes {
		v := &mvcc.Version{
			Timestamp: txn.Snapshot.Timestamp,
			Data:      w.Value,
			TxnID:     txn.ID,
		}
		v.Next = m.versions[w.Key]
		m.versions[w.Key] = v
	}
	m.mu.Unlock()

	m.snapshots.CommitTransaction(txn.ID)
	m.releaseLocks(txn)
	m.finish(txn, StatusCommitted)
	return nil
}

// Rollback discards a transaction's write set without touching the
// version chain or the WAL's already-written records (they are harmless
// because RecordTypeCommit for this txn was never appended).
func (m *Manager) Rollback(txn *Transaction) error {
	if txn.Status != StatusActive {
		return util.ErrTxnNotActive
	}
	m.snapshots.AbortTransaction(txn.ID)
	m.releaseLocks(txn)
	m.finish(txn, StatusAborted)
	return nil
}

func (m *Manager) releaseLocks(txn *Transaction) {
	txn.mu.Lock()
	reads := make([]string, 0, len(txn.readCollections))
	for n := range txn.readCollections {
		reads = append(reads, n)
	}
	writes := make([]string, 0, len(txn.writeCollections))
	for n := range txn.writeCollections {
		writes = append(writes, n)
	}
	txn.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range reads {
		if cl, ok := m.collections[n]; ok {
			cl.mu.Lock()
			delete(cl.readers, txn.ID)
			cl.cond.Broadcast()
			cl.mu.Unlock()
		}
	}
	for _, n := range writes {
		if cl, ok := m.collections[n]; ok {
			cl.mu.Lock()
			if cl.writer == txn.ID {
				cl.writer = 0
			}
			cl.cond.Broadcast()
			cl.mu.Unlock()
		}
	}
}

func (m *Manager) finish(txn *Transaction, status Status) {
	txn.mu.Lock()
	txn.Status = status
	txn.mu.Unlock()

	m.snapshots.ReleaseSnapshot(txn.Snapshot)

	m.mu.Lock()
	delete(m.active, txn.ID)
	m.mu.Unlock()
}

// GetActiveTransactionCount returns the number of transactions currently
// in StatusActive.
func (m *Manager) GetActiveTransactionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Close shuts down the manager. Any still-active transactions are left as
// is; the caller is expected to have committed or rolled them back first.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
