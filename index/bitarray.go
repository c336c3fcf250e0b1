package index

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// bitarrayColumn is one (attribute, enumerated value) pair's column: the
// set of document ordinals carrying that value, represented as a roaring
// bitmap so wide cross-products stay compact.
type bitarrayColumn struct {
	attribute string
	value     string
	bitmap    *roaring.Bitmap
}

// BitarrayIndex is the cross-product of several attributes' enumerated
// value lists. Invariant (enforced at construction): attributes are
// pairwise distinct, each attribute's value list is pairwise distinct,
// and the cumulative cardinality (sum of len(values) across attributes,
// plus one for the undefined column if enabled) is in [1, 64].
type BitarrayIndex struct {
	BaseCleanup
	mu   sync.RWMutex
	iid  uint64
	spec []BitarrayAttribute

	supportUndef bool
	undefined    *roaring.Bitmap

	columns  []*bitarrayColumn
	nextOrd  uint32
	refToOrd map[DocRef]uint32
	ordToRef map[uint32]DocRef
}

// BitarrayAttribute is one column family: an attribute path plus its
// enumerated set of legal values.
type BitarrayAttribute struct {
	Field  string
	Values []string
}

// NewBitarrayIndex validates the creation-time invariants and builds the
// index, or returns an error naming which invariant failed.
func NewBitarrayIndex(iid uint64, spec []BitarrayAttribute, supportUndef bool) (*BitarrayIndex, error) {
	seenAttrs := make(map[string]bool)
	cardinality := 0
	for _, a := range spec {
		if seenAttrs[a.Field] {
			return nil, fmt.Errorf("bitarray: duplicate attribute %q", a.Field)
		}
		seenAttrs[a.Field] = true

		seenVals := make(map[string]bool)
		for _, v := range a.Values {
			if seenVals[v] {
				return nil, fmt.Errorf("bitarray: duplicate value %q for attribute %q", v, a.Field)
			}
			seenVals[v] = true
		}
		cardinality += len(a.Values)
	}
	if supportUndef {
		cardinality++
	}
	if cardinality < 1 || cardinality > 64 {
		return nil, fmt.Errorf("bitarray: cumulative cardinality %d out of range [1,64]", cardinality)
	}

	b := &BitarrayIndex{
		iid:          iid,
		spec:         spec,
		supportUndef: supportUndef,
		refToOrd:     make(map[DocRef]uint32),
		ordToRef:     make(map[uint32]DocRef),
	}
	if supportUndef {
		b.undefined = roaring.New()
	}
	for _, a := range spec {
		for _, v := range a.Values {
			b.columns = append(b.columns, &bitarrayColumn{attribute: a.Field, value: v, bitmap: roaring.New()})
		}
	}
	return b, nil
}

func (b *BitarrayIndex) IID() uint64 { return b.iid }

func (b *BitarrayIndex) Describe() Description {
	fields := make([]string, len(b.spec))
	var values []string
	for i, a := range b.spec {
		fields[i] = a.Field
		values = append(values, a.Values...)
	}
	return Description{ID: b.iid, Type: "bitarray", Unique: false, Fields: fields, Values: values, SupportUndef: b.supportUndef}
}

func (b *BitarrayIndex) ordinalFor(ref DocRef) uint32 {
	if ord, found := b.refToOrd[ref]; found {
		return ord
	}
	ord := b.nextOrd
	b.nextOrd++
	b.refToOrd[ref] = ord
	b.ordToRef[ord] = ref
	return ord
}

// columnsOf returns, for the fields present in doc, the matching columns;
// anyAttrPresent reports whether at least one configured attribute found a
// value (even if no enumerated column matched it).
func (b *BitarrayIndex) columnsOf(doc Document) (cols []*bitarrayColumn, anyAttrPresent bool) {
	for _, a := range b.spec {
		raw, present := attr(doc, a.Field)
		if !present {
			continue
		}
		anyAttrPresent = true
		val := fmt.Sprintf("%v", raw)
		for _, col := range b.columns {
			if col.attribute == a.Field && col.value == val {
				cols = append(cols, col)
			}
		}
	}
	return cols, anyAttrPresent
}

// Insert files ref into every matching column. If supportUndef is set and
// the document is missing every indexed attribute, it is filed into the
// reserved undefined column instead of being skipped outright (decided
// Open Question: strict variant — partial misses are not re-filed).
func (b *BitarrayIndex) Insert(doc Document, ref DocRef) Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	cols, anyAttrPresent := b.columnsOf(doc)
	ord := b.ordinalFor(ref)

	if !anyAttrPresent {
		if b.supportUndef {
			b.undefined.Add(ord)
			return ok()
		}
		return warn(WarnAttributeMissing)
	}
	for _, c := range cols {
		c.bitmap.Add(ord)
	}
	return ok()
}

func (b *BitarrayIndex) Update(newDoc, oldDoc Document, ref DocRef) Result {
	// remove-then-insert, tolerating RemoveItemMissing on the first step
	r := b.Remove(oldDoc, ref)
	if r.Err != nil {
		return r
	}
	return b.Insert(newDoc, ref)
}

func (b *BitarrayIndex) Remove(doc Document, ref DocRef) Result {
	b.mu.Lock()
	defer b.mu.Unlock()

	ord, found := b.refToOrd[ref]
	if !found {
		return warn(WarnRemoveItemMissing)
	}
	removedAny := false
	for _, c := range b.columns {
		if c.bitmap.Contains(ord) {
			c.bitmap.Remove(ord)
			removedAny = true
		}
	}
	if b.supportUndef && b.undefined.Contains(ord) {
		b.undefined.Remove(ord)
		removedAny = true
	}
	delete(b.refToOrd, ref)
	delete(b.ordToRef, ord)
	if !removedAny {
		return warn(WarnRemoveItemMissing)
	}
	return ok()
}

// Lookup returns the refs whose (attribute, value) pairs satisfy every
// given constraint (an AND across the constraints slice).
func (b *BitarrayIndex) Lookup(constraints map[string]string) []DocRef {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result *roaring.Bitmap
	for field, val := range constraints {
		var union *roaring.Bitmap
		for _, c := range b.columns {
			if c.attribute == field && c.value == val {
				if union == nil {
					union = c.bitmap.Clone()
				} else {
					union.Or(c.bitmap)
				}
			}
		}
		if union == nil {
			return nil
		}
		if result == nil {
			result = union
		} else {
			result.And(union)
		}
	}
	if result == nil {
		return nil
	}

	out := make([]DocRef, 0, result.GetCardinality())
	it := result.Iterator()
	for it.HasNext() {
		ord := it.Next()
		if ref, found := b.ordToRef[ord]; found {
			out = append(out, ref)
		}
	}
	return out
}
