package index

import (
	"fmt"
	"strings"
	"sync"
)

// Direction is the edge direction bit set on each materialized header.
// DirectionBoth is reflexive/bidirectional and, per the original engine,
// is masked out of the hash key: only the plain IN/OUT bit participates
// in bucketing.
type Direction int

const (
	DirectionOut Direction = iota
	DirectionIn
	DirectionBoth
)

// directionMask strips the reflexive/bidirectional bit before hashing, so
// DirectionBoth collides into the same bucket space as DirectionOut.
func directionMask(d Direction) Direction {
	if d == DirectionBoth {
		return DirectionOut
	}
	return d
}

// edgeAllocation is the two-slot header pair materialized for one edge:
// one header filed under the OUT-side peer, one under the IN side. Both
// point at the same allocation; only the IN header is freed on remove,
// mirroring the original's "IN header owns the allocation" rule.
type edgeAllocation struct {
	ref             DocRef
	fromPeer        peerKey
	toPeer          peerKey
	direction       Direction
	isReflexive     bool
	isBidirectional bool
}

type peerKey struct {
	collection string
	key        string
}

func splitPeer(id string) peerKey {
	parts := strings.SplitN(id, "/", 2)
	if len(parts) != 2 {
		return peerKey{collection: "", key: id}
	}
	return peerKey{collection: parts[0], key: parts[1]}
}

type edgeBucketKey struct {
	direction Direction
	peer      peerKey
}

// EdgeIndex indexes the canonical "_from" field (and, implicitly,
// "_to") of edge documents in a multi-valued hash table keyed by
// (direction, peerCollection, peerKey).
type EdgeIndex struct {
	BaseCleanup
	mu      sync.RWMutex
	iid     uint64
	buckets map[edgeBucketKey][]*edgeAllocation
	// inIndex lets Remove locate and free the owning allocation via its
	// IN header, per the "IN header owns the allocation" rule.
	inIndex map[DocRef]*edgeAllocation
}

// NewEdgeIndex returns a fresh edge index with the given persistent id.
func NewEdgeIndex(iid uint64) *EdgeIndex {
	return &EdgeIndex{
		iid:     iid,
		buckets: make(map[edgeBucketKey][]*edgeAllocation),
		inIndex: make(map[DocRef]*edgeAllocation),
	}
}

func (e *EdgeIndex) IID() uint64 { return e.iid }

func (e *EdgeIndex) Describe() Description {
	return Description{ID: e.iid, Type: "edge", Unique: false, Fields: []string{"_from"}}
}

// Insert materializes the two-slot allocation for an edge document
// (expects "_from" and "_to" attributes) and files both headers.
func (e *EdgeIndex) Insert(doc Document, ref DocRef) Result {
	fromRaw, hasFrom := attr(doc, "_from")
	toRaw, hasTo := attr(doc, "_to")
	if !hasFrom || !hasTo {
		return warn(WarnAttributeMissing)
	}
	from, _ := fromRaw.(string)
	to, _ := toRaw.(string)

	reflexive := from == to
	alloc := &edgeAllocation{
		ref:             ref,
		fromPeer:        splitPeer(from),
		toPeer:          splitPeer(to),
		direction:       DirectionOut,
		isReflexive:     reflexive,
		isBidirectional: reflexive,
	}
	if reflexive {
		alloc.direction = DirectionBoth
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	outKey := edgeBucketKey{direction: directionMask(DirectionOut), peer: alloc.fromPeer}
	inKey := edgeBucketKey{direction: directionMask(DirectionIn), peer: alloc.toPeer}
	e.buckets[outKey] = append(e.buckets[outKey], alloc)
	e.buckets[inKey] = append(e.buckets[inKey], alloc)
	e.inIndex[ref] = alloc
	return ok()
}

func (e *EdgeIndex) Update(newDoc, oldDoc Document, ref DocRef) Result {
	if r := e.Remove(oldDoc, ref); r.Err != nil {
		return r
	}
	return e.Insert(newDoc, ref)
}

// Remove frees the allocation via its IN header and unfiles the OUT
// header too.
func (e *EdgeIndex) Remove(doc Document, ref DocRef) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	alloc, found := e.inIndex[ref]
	if !found {
		return warn(WarnRemoveItemMissing)
	}
	delete(e.inIndex, ref)

	outKey := edgeBucketKey{direction: directionMask(DirectionOut), peer: alloc.fromPeer}
	inKey := edgeBucketKey{direction: directionMask(DirectionIn), peer: alloc.toPeer}
	e.buckets[outKey] = removeAlloc(e.buckets[outKey], alloc)
	e.buckets[inKey] = removeAlloc(e.buckets[inKey], alloc)
	return ok()
}

func removeAlloc(list []*edgeAllocation, target *edgeAllocation) []*edgeAllocation {
	for i, a := range list {
		if a == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// IsReflexive reports whether ref's edge is a self-loop (_from == _to),
// which files headers under both directions and carries DirectionBoth.
func (e *EdgeIndex) IsReflexive(ref DocRef) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	alloc, found := e.inIndex[ref]
	return found && alloc.isReflexive
}

// Lookup returns the refs of edges touching peer (e.g. "users/42") in the
// given direction.
func (e *EdgeIndex) Lookup(direction Direction, peer string) []DocRef {
	e.mu.RLock()
	defer e.mu.RUnlock()

	key := edgeBucketKey{direction: directionMask(direction), peer: splitPeer(peer)}
	allocs := e.buckets[key]
	refs := make([]DocRef, 0, len(allocs))
	for _, a := range allocs {
		refs = append(refs, a.ref)
	}
	return refs
}

// String implements fmt.Stringer for debugging.
func (d Direction) String() string {
	switch d {
	case DirectionOut:
		return "out"
	case DirectionIn:
		return "in"
	case DirectionBoth:
		return "both"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}
