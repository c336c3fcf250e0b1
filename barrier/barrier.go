// Package barrier implements the per-collection barrier list: an ordered
// list of lifecycle tokens that lets readers holding raw pointers into a
// datafile coexist safely with maintenance actions (datafile drop/rename,
// collection unload/drop) that would otherwise free memory out from under
// them.
//
// The list is a doubly linked FIFO. Readers push a DocumentPin for exactly
// the span they hold a pointer; maintenance actions push a Callback.
// The cleanup loop only ever inspects and removes from the head, and only
// invokes a callback once every pin in front of it has been popped.
package barrier

import (
	"sync"
)

// Kind identifies the tagged-union variant of an Element.
type Kind int

const (
	KindDocumentPin Kind = iota
	KindDatafileDropCallback
	KindDatafileRenameCallback
	KindCollectionUnloadCallback
	KindCollectionDropCallback
	KindReplicationMarker
	KindCompactionMarker
)

func (k Kind) String() string {
	switch k {
	case KindDocumentPin:
		return "document-pin"
	case KindDatafileDropCallback:
		return "datafile-drop-callback"
	case KindDatafileRenameCallback:
		return "datafile-rename-callback"
	case KindCollectionUnloadCallback:
		return "collection-unload-callback"
	case KindCollectionDropCallback:
		return "collection-drop-callback"
	case KindReplicationMarker:
		return "replication-marker"
	case KindCompactionMarker:
		return "compaction-marker"
	default:
		return "unknown"
	}
}

// isPinning reports whether the cleanup loop must stop at an element of
// this kind rather than progress past it. Per §4.2, DocumentPin,
// ReplicationMarker and CompactionMarker all block progression; only the
// four callback kinds are actually executed and popped.
func (k Kind) isPinning() bool {
	switch k {
	case KindDocumentPin, KindReplicationMarker, KindCompactionMarker:
		return true
	default:
		return false
	}
}

// CallbackResult is returned by a maintenance callback to tell the
// cleanup loop whether the underlying collection survived the action.
type CallbackResult int

const (
	// ResultContinue means the collection is still alive; the cleanup
	// loop may keep iterating its barrier list.
	ResultContinue CallbackResult = iota
	// ResultCompleted means the action finished and the collection (or
	// datafile) may have been freed; the cleanup loop must stop
	// iterating this collection immediately.
	ResultCompleted
)

// Callback is a maintenance action: the datafile or collection it
// concerns, an opaque data payload, and the function to run once every
// older pin referring to the same datafile has drained.
type Callback struct {
	Datafile string
	Data     interface{}
	Run      func(datafile string, data interface{}) CallbackResult
}

// Element is one node of the barrier list: either a document pin (a
// reader's hold on a datafile) or a maintenance callback.
type Element struct {
	Kind     Kind
	Datafile string // datafile a pin concerns, or a callback's target
	Callback *Callback

	prev, next *Element
}

// Token is what addElement returns to a reader; it is opaque outside this
// package and is the only handle removeElement accepts.
type Token = *Element

// List is a per-collection barrier list. All mutation happens under a
// single short-held mutex; it is never held while a callback runs and
// never nests any other lock, matching the "short spin lock" contract in
// §4.2.
type List struct {
	mu   sync.Mutex
	head *Element
	tail *Element
	len  int
}

// New returns an empty barrier list.
func New() *List {
	return &List{}
}

// AddElement pushes a DocumentPin at the tail and returns the token the
// reader must later pass to RemoveElement.
func (l *List) AddElement(datafile string) Token {
	e := &Element{Kind: KindDocumentPin, Datafile: datafile}
	l.push(e)
	return e
}

// AddCallback pushes a maintenance callback at the tail. The caller is
// responsible for the §4.2 writer obligation: only call this once every
// pin already in the list is known to concern a different datafile than
// cb.Datafile.
func (l *List) AddCallback(kind Kind, cb *Callback) Token {
	e := &Element{Kind: kind, Datafile: cb.Datafile, Callback: cb}
	l.push(e)
	return e
}

func (l *List) push(e *Element) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tail == nil {
		l.head = e
		l.tail = e
	} else {
		e.prev = l.tail
		l.tail.next = e
		l.tail = e
	}
	l.len++
}

// RemoveElement unlinks token from the list. It is legal to call this for
// any element, not only the head; a reader's pin is frequently removed
// while maintenance callbacks sit behind it in the list.
func (l *List) RemoveElement(token Token) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := token
	if e.prev != nil {
		e.prev.next = e.next
	} else if l.head == e {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else if l.tail == e {
		l.tail = e.prev
	}
	e.prev = nil
	e.next = nil
	l.len--
}

// Len returns the current number of elements in the list.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.len
}

// Progress implements the cleanup thread's head-progression rule: while
// the head is a callback (not a pinning kind), detach it, release the
// lock, and run it outside the lock. Stops as soon as the head is a
// pinning element, the list is empty, or a callback reports
// ResultCompleted (the collection may no longer exist).
//
// Returns the number of callbacks executed and whether the collection was
// reported completed (destroyed) by one of them.
func (l *List) Progress() (executed int, completed bool) {
	for {
		l.mu.Lock()
		head := l.head
		if head == nil || head.Kind.isPinning() {
			l.mu.Unlock()
			return executed, false
		}
		// Detach head under the lock.
		l.head = head.next
		if l.head != nil {
			l.head.prev = nil
		} else {
			l.tail = nil
		}
		l.len--
		l.mu.Unlock()

		head.next = nil
		head.prev = nil

		result := head.Callback.Run(head.Datafile, head.Callback.Data)
		executed++
		if result == ResultCompleted {
			return executed, true
		}
	}
}

// HeadKind returns the kind of the current head element, or false if the
// list is empty. Useful for tests and diagnostics.
func (l *List) HeadKind() (Kind, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.head == nil {
		return 0, false
	}
	return l.head.Kind, true
}
