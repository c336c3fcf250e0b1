package index

import (
	"container/list"
	"sync"
)

// CapIndex enforces a FIFO cap constraint: no fields of its own, just a
// numeric size limit. Insertion appends to the tail; update moves the
// entry to the tail (it counts as "recent" again); when the size limit is
// exceeded the oldest entry is evicted and OnEvict, if set, is invoked so
// the owning collection can cascade the removal into its other indexes.
type CapIndex struct {
	BaseCleanup
	mu      sync.Mutex
	iid     uint64
	size    int
	order   *list.List
	byRef   map[DocRef]*list.Element
	OnEvict func(ref DocRef)
}

// NewCapIndex builds a cap constraint admitting at most size documents.
func NewCapIndex(iid uint64, size int) *CapIndex {
	return &CapIndex{iid: iid, size: size, order: list.New(), byRef: make(map[DocRef]*list.Element)}
}

func (c *CapIndex) IID() uint64 { return c.iid }

func (c *CapIndex) Describe() Description {
	return Description{ID: c.iid, Type: "cap", Unique: false, Fields: nil, Size: c.size}
}

func (c *CapIndex) Insert(doc Document, ref DocRef) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, found := c.byRef[ref]; found {
		c.order.MoveToBack(el)
		return ok()
	}

	el := c.order.PushBack(ref)
	c.byRef[ref] = el

	if c.order.Len() > c.size {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		evictedRef := oldest.Value.(DocRef)
		delete(c.byRef, evictedRef)
		if c.OnEvict != nil {
			c.OnEvict(evictedRef)
		}
	}
	return ok()
}

func (c *CapIndex) Update(newDoc, oldDoc Document, ref DocRef) Result {
	return c.Insert(newDoc, ref) // move-to-tail semantics cover update
}

func (c *CapIndex) Remove(doc Document, ref DocRef) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, found := c.byRef[ref]
	if !found {
		return warn(WarnRemoveItemMissing)
	}
	c.order.Remove(el)
	delete(c.byRef, ref)
	return ok()
}

// Len returns the current number of tracked documents.
func (c *CapIndex) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
