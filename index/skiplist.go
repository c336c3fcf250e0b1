package index

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vocbase/voccore/internal/query"
)

// skiplistEntry is one ordered node: the field values this document was
// indexed under plus the document it came from, kept together so Lookup
// can evaluate an operator tree without a second fetch.
type skiplistEntry struct {
	ref    DocRef
	values []interface{}
	doc    Document
}

// SkiplistIndex is an ordered multi-key index. Entries are kept sorted by
// their composite key so range scans stay cheap; point/range/logical
// lookups are served by evaluating an operator tree (see
// internal/query) against each candidate instead of a real B-tree range
// walk, which is a faithful simplification of the teacher's in-memory
// B+Tree-backed secondary indexes.
type SkiplistIndex struct {
	BaseCleanup
	mu      sync.RWMutex
	iid     uint64
	fields  []string
	unique  bool
	entries []*skiplistEntry
}

// NewSkiplistIndex builds a skiplist index over fields, in field order.
func NewSkiplistIndex(iid uint64, fields []string, unique bool) *SkiplistIndex {
	return &SkiplistIndex{iid: iid, fields: fields, unique: unique}
}

func (s *SkiplistIndex) IID() uint64 { return s.iid }

func (s *SkiplistIndex) Describe() Description {
	return Description{ID: s.iid, Type: "skiplist", Unique: s.unique, Fields: s.fields}
}

func (s *SkiplistIndex) values(doc Document) ([]interface{}, bool) {
	vals := make([]interface{}, len(s.fields))
	for i, f := range s.fields {
		v, present := attr(doc, f)
		if !present {
			return nil, false
		}
		vals[i] = v
	}
	return vals, true
}

func (s *SkiplistIndex) less(a, b []interface{}) bool {
	for i := range a {
		c := query.CompareValues(a[i], b[i])
		if c != 0 {
			return c < 0
		}
	}
	return false
}

func (s *SkiplistIndex) Insert(doc Document, ref DocRef) Result {
	vals, present := s.values(doc)
	if !present {
		return warn(WarnAttributeMissing)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unique {
		for _, e := range s.entries {
			if equalValues(e.values, vals) {
				return fail(ErrUniqueViolation)
			}
		}
	}

	entry := &skiplistEntry{ref: ref, values: vals, doc: cloneDoc(doc)}
	idx := sort.Search(len(s.entries), func(i int) bool {
		return !s.less(s.entries[i].values, vals)
	})
	s.entries = append(s.entries, nil)
	copy(s.entries[idx+1:], s.entries[idx:])
	s.entries[idx] = entry
	return ok()
}

// Update decides per §9 Open Question: the warning fires only when the
// *new* document is missing a required attribute; a missing attribute on
// the old document alone degrades the update to a plain insert.
func (s *SkiplistIndex) Update(newDoc, oldDoc Document, ref DocRef) Result {
	if _, oldPresent := s.values(oldDoc); oldPresent {
		s.Remove(oldDoc, ref)
	}
	if _, newPresent := s.values(newDoc); !newPresent {
		return warn(WarnAttributeMissing)
	}
	return s.Insert(newDoc, ref)
}

func (s *SkiplistIndex) Remove(doc Document, ref DocRef) Result {
	vals, present := s.values(doc)
	if !present {
		return warn(WarnRemoveItemMissing)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.ref == ref && equalValues(e.values, vals) {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return ok()
		}
	}
	return warn(WarnRemoveItemMissing)
}

// ValidateInSequenceLengths enforces the skiplist-specific IN precondition:
// across IN operands in a query, operand sequence lengths must be
// non-increasing.
func ValidateInSequenceLengths(lengths []int) error {
	for i := 1; i < len(lengths); i++ {
		if lengths[i] > lengths[i-1] {
			return fmt.Errorf("skiplist: IN operand sequence lengths must be non-increasing, got %v", lengths)
		}
	}
	return nil
}

// inOperandLengths walks tree collecting the operand-list length of every
// IN node encountered, in tree traversal order, so the caller can enforce
// the skiplist's non-increasing-length precondition across all of a
// query's IN clauses.
func inOperandLengths(tree query.Node) []int {
	var lengths []int
	var walk func(n query.Node)
	walk = func(n query.Node) {
		switch node := n.(type) {
		case *query.FieldNode:
			if node.Operator == query.OpIn {
				if list, ok := node.Value.([]interface{}); ok {
					lengths = append(lengths, len(list))
				}
			}
		case *query.LogicalNode:
			for _, child := range node.Children {
				walk(child)
			}
		case *query.NotNode:
			walk(node.Child)
		}
	}
	walk(tree)
	return lengths
}

// Lookup evaluates a query.Node operator tree (AND/OR/NOT over
// EQ/NE/LT/LE/GT/GE/IN) against every indexed document, returning
// matches in ascending key order. Returns an error if the tree's IN
// clauses violate the skiplist's non-increasing operand-length
// precondition (see ValidateInSequenceLengths).
func (s *SkiplistIndex) Lookup(tree query.Node) ([]DocRef, error) {
	if lengths := inOperandLengths(tree); len(lengths) > 0 {
		if err := ValidateInSequenceLengths(lengths); err != nil {
			return nil, err
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matcher, ok := tree.(query.Matcher)
	var out []DocRef
	for _, e := range s.entries {
		if !ok || matcher.Matches(e.doc) {
			out = append(out, e.ref)
		}
	}
	return out, nil
}

func equalValues(a, b []interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if query.CompareValues(a[i], b[i]) != 0 {
			return false
		}
	}
	return true
}

func cloneDoc(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
