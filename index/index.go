// Package index implements the polymorphic index contract: a single
// interface every concrete index variant (primary, edge, hash, skiplist,
// geo1/geo2, fulltext, bitarray, priority-queue, cap) satisfies, plus the
// concrete variants themselves.
//
// A Document is the shaped-JSON stand-in used across voccore: a plain
// map keyed by attribute path. DocRef is whatever the owning collection
// uses to identify a stored document (its primary key string); indexes
// never interpret it, only store and return it.
package index

import (
	"fmt"
)

// Document is a shaped JSON document. Attribute names are used as
// literal keys: a dotted name such as "address.city" matches only a
// top-level key of that exact name, not a nested value.
type Document map[string]interface{}

// DocRef identifies a stored document to its owning collection.
type DocRef = string

// Warning codes returned alongside a nil error to flag advisory,
// non-fatal conditions a caller may choose to surface or ignore per the
// per-variant policy described in each variant's file.
type Warning int

const (
	WarnNone Warning = iota
	WarnAttributeMissing
	WarnRemoveItemMissing
)

// Result is returned by Insert/Update/Remove. Err is non-nil only for
// hard failures (unique violation, geo violation, internal errors);
// Warning carries the advisory conditions the contract calls out
// separately from hard errors.
type Result struct {
	Warning Warning
	Err     error
}

func ok() Result                  { return Result{} }
func warn(w Warning) Result        { return Result{Warning: w} }
func fail(err error) Result        { return Result{Err: err} }

// Description is the stable, JSON-shaped record returned by Describe,
// persisted by the owning database as index-<iid>.json.
type Description struct {
	ID     uint64   `json:"id"`
	Type   string   `json:"type"`
	Unique bool     `json:"unique"`
	Fields []string `json:"fields"`

	// Per-variant extras. Only the fields relevant to a given Type are
	// populated; the rest are left at zero value / omitted.
	GeoJSON         bool     `json:"geoJson,omitempty"`
	IgnoreNull      bool     `json:"ignoreNull,omitempty"`
	Constraint      bool     `json:"constraint,omitempty"`
	MinWordLength   int      `json:"minWordLength,omitempty"`
	IndexSubstrings bool     `json:"indexSubstrings,omitempty"`
	MinLength       int      `json:"minLength,omitempty"`
	Size            int      `json:"size,omitempty"`
	SupportUndef    bool     `json:"undefined,omitempty"`
	Values          []string `json:"values,omitempty"`
}

// Index is the contract every concrete index variant satisfies.
type Index interface {
	// Insert makes doc retrievable by the index's key function.
	Insert(doc Document, ref DocRef) Result
	// Update removes oldDoc's entry and inserts newDoc's, with
	// per-variant elision when nothing relevant changed.
	Update(newDoc, oldDoc Document, ref DocRef) Result
	// Remove deletes doc's entry. Idempotent: a missing entry is a
	// warning, not a hard error.
	Remove(doc Document, ref DocRef) Result
	// Describe returns this index's stable JSON-shaped description.
	Describe() Description
	// Cleanup runs periodic maintenance; most variants no-op.
	Cleanup() Result
	// IID returns the index's persistent identifier (0 for primary).
	IID() uint64
}

// BaseCleanup is embedded by variants with no periodic maintenance.
type BaseCleanup struct{}

func (BaseCleanup) Cleanup() Result { return ok() }

// attr fetches the top-level attribute field from doc, returning false
// if it is absent. A dotted field is not split into nested lookups.
func attr(doc Document, field string) (interface{}, bool) {
	v, ok := doc[field]
	return v, ok
}

// ErrUniqueViolation is returned by unique variants on duplicate key.
var ErrUniqueViolation = fmt.Errorf("unique index violation")

// ErrGeoViolated is returned by a constrained geo index when a document
// cannot be indexed.
var ErrGeoViolated = fmt.Errorf("geo index violated")
