package index

import (
	"sort"
	"sync"
)

// PriorityQueueIndex orders documents by exactly one numeric attribute.
// Documents lacking the attribute, or holding a non-numeric value, are
// silently ignored rather than reported as a warning — the contract
// treats them as simply outside the queue's domain.
type PriorityQueueIndex struct {
	BaseCleanup
	mu    sync.RWMutex
	iid   uint64
	field string

	entries map[DocRef]float64
}

// NewPriorityQueueIndex builds a priority-queue index over field.
func NewPriorityQueueIndex(iid uint64, field string) *PriorityQueueIndex {
	return &PriorityQueueIndex{iid: iid, field: field, entries: make(map[DocRef]float64)}
}

func (p *PriorityQueueIndex) IID() uint64 { return p.iid }

func (p *PriorityQueueIndex) Describe() Description {
	return Description{ID: p.iid, Type: "priorityqueue", Unique: false, Fields: []string{p.field}}
}

func (p *PriorityQueueIndex) Insert(doc Document, ref DocRef) Result {
	raw, present := attr(doc, p.field)
	if !present {
		return ok()
	}
	v, numeric := toFloat(raw)
	if !numeric {
		return ok()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[ref] = v
	return ok()
}

func (p *PriorityQueueIndex) Update(newDoc, oldDoc Document, ref DocRef) Result {
	p.Remove(oldDoc, ref)
	return p.Insert(newDoc, ref)
}

func (p *PriorityQueueIndex) Remove(doc Document, ref DocRef) Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, found := p.entries[ref]; !found {
		return warn(WarnRemoveItemMissing)
	}
	delete(p.entries, ref)
	return ok()
}

// Lookup returns the top-n elements by descending priority value. n <= 0
// defaults to 1.
func (p *PriorityQueueIndex) Lookup(n int) []DocRef {
	if n <= 0 {
		n = 1
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	type scored struct {
		ref DocRef
		val float64
	}
	all := make([]scored, 0, len(p.entries))
	for ref, v := range p.entries {
		all = append(all, scored{ref: ref, val: v})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].val > all[j].val })

	if n > len(all) {
		n = len(all)
	}
	out := make([]DocRef, n)
	for i := 0; i < n; i++ {
		out[i] = all[i].ref
	}
	return out
}
