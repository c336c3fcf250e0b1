package index

import (
	"fmt"
	"sync"
)

// HashIndex is a unique or multi hash index over one or more attribute
// paths. Per §4.1: for unique indexes a missing attribute silently skips
// indexing the document (no error surfaced); for multi indexes the
// document is likewise not indexed but the warning propagates so a
// caller that cares can see it.
type HashIndex struct {
	BaseCleanup
	mu     sync.RWMutex
	iid    uint64
	fields []string
	unique bool

	entries map[string][]DocRef // keyFor(doc) -> refs (len 1 if unique)
}

// NewHashIndex builds a hash index over fields.
func NewHashIndex(iid uint64, fields []string, unique bool) *HashIndex {
	return &HashIndex{
		iid:     iid,
		fields:  fields,
		unique:  unique,
		entries: make(map[string][]DocRef),
	}
}

func (h *HashIndex) IID() uint64 { return h.iid }

func (h *HashIndex) Describe() Description {
	return Description{ID: h.iid, Type: "hash", Unique: h.unique, Fields: h.fields}
}

// keyFor builds the composite key tuple for doc, or false if any field is
// missing.
func (h *HashIndex) keyFor(doc Document) (string, bool) {
	key := ""
	for _, f := range h.fields {
		v, present := attr(doc, f)
		if !present {
			return "", false
		}
		key += fmt.Sprintf("\x00%v", v)
	}
	return key, true
}

func (h *HashIndex) Insert(doc Document, ref DocRef) Result {
	key, present := h.keyFor(doc)
	if !present {
		// Both unique and multi variants skip indexing; only multi
		// propagates the warning to the caller.
		if h.unique {
			return ok()
		}
		return warn(WarnAttributeMissing)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.unique {
		if existing, found := h.entries[key]; found && len(existing) > 0 {
			return fail(ErrUniqueViolation)
		}
		h.entries[key] = []DocRef{ref}
		return ok()
	}

	h.entries[key] = append(h.entries[key], ref)
	return ok()
}

func (h *HashIndex) Update(newDoc, oldDoc Document, ref DocRef) Result {
	oldKey, oldPresent := h.keyFor(oldDoc)
	newKey, newPresent := h.keyFor(newDoc)
	if oldPresent && newPresent && oldKey == newKey {
		return ok() // elide: key unchanged
	}
	if r := h.Remove(oldDoc, ref); r.Err != nil {
		return r
	}
	return h.Insert(newDoc, ref)
}

func (h *HashIndex) Remove(doc Document, ref DocRef) Result {
	key, present := h.keyFor(doc)
	if !present {
		return warn(WarnRemoveItemMissing)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	list, found := h.entries[key]
	if !found {
		return warn(WarnRemoveItemMissing)
	}
	filtered := list[:0]
	removed := false
	for _, r := range list {
		if r == ref && !removed {
			removed = true
			continue
		}
		filtered = append(filtered, r)
	}
	if len(filtered) == 0 {
		delete(h.entries, key)
	} else {
		h.entries[key] = filtered
	}
	if !removed {
		return warn(WarnRemoveItemMissing)
	}
	return ok()
}

// Lookup returns the refs stored under the exact key tuple values.
func (h *HashIndex) Lookup(values []interface{}) []DocRef {
	key := ""
	for _, v := range values {
		key += fmt.Sprintf("\x00%v", v)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]DocRef, len(h.entries[key]))
	copy(out, h.entries[key])
	return out
}
