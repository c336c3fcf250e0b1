// Package util holds error sentinels and small helpers shared across voccore
// packages.
package util

import (
	"errors"
	"fmt"
)

// Common errors used throughout voccore.
var (
	// Storage errors
	ErrPageNotFound    = errors.New("page not found")
	ErrPageFull        = errors.New("page is full")
	ErrInvalidPageID   = errors.New("invalid page ID")
	ErrDiskReadFailed  = errors.New("disk read failed")
	ErrDiskWriteFailed = errors.New("disk write failed")

	// Transaction errors
	ErrTxnAborted   = errors.New("transaction aborted")
	ErrTxnDeadlock  = errors.New("transaction deadlock detected")
	ErrTxnTimeout   = errors.New("transaction timeout")
	ErrTxnReadOnly  = errors.New("transaction is read-only")
	ErrTxnNotActive = errors.New("transaction is not active")

	// Query errors
	ErrInvalidQuery       = errors.New("invalid query")
	ErrQueryEmpty         = errors.New("query is empty")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDocumentNotFound   = errors.New("document not found")

	// Database errors
	ErrDatabaseClosed  = errors.New("database is closed")
	ErrDatabaseCorrupt = errors.New("database is corrupt")

	// WAL errors
	ErrWALCorrupt     = errors.New("WAL is corrupt")
	ErrWALSegmentFull = errors.New("WAL segment is full")
	ErrLogfileSealed  = errors.New("logfile is sealed")
	ErrLogfileNotCollectable = errors.New("logfile cannot be collected yet")

	// Collection / index contract errors
	ErrCollectionUnknownType = errors.New("unknown collection type")
	ErrNoIndex               = errors.New("index not found")
	ErrIndexNotUnique        = errors.New("unique index violation")
	ErrGeoIndexViolated      = errors.New("geo index attribute invalid")
	ErrIndexHashInsertFailed = errors.New("hash index insert failed")

	// Advisory warnings: callers may choose to ignore these per §4.1 policy.
	ErrSkiplistUpdateAttributeMissing  = errors.New("skiplist: update attribute missing")
	ErrSkiplistDocumentAttributeMissing = errors.New("skiplist: document attribute missing")
	ErrBitarrayDocumentAttributeMissing = errors.New("bitarray: document attribute missing")
	ErrBitarrayUpdateAttributeMissing   = errors.New("bitarray: update attribute missing")
	ErrBitarrayRemoveItemMissing        = errors.New("bitarray: remove item missing")
	ErrBitarrayDuplicateAttributes      = errors.New("bitarray: duplicate attributes at creation")
	ErrBitarrayDuplicateValues          = errors.New("bitarray: duplicate values at creation")
	ErrPQInsertFailed                   = errors.New("priority queue: insert failed")
	ErrCapCollectionFull                = errors.New("cap constraint: collection full")

	// Barrier / cleanup errors
	ErrBarrierNotFound   = errors.New("barrier element not found")
	ErrBarrierInUse      = errors.New("barrier element still referenced")

	// Coordinator / cluster errors
	ErrShardGone                        = errors.New("cluster: shard gone")
	ErrClusterTimeout                   = errors.New("cluster: request timeout")
	ErrClusterConnectionLost            = errors.New("cluster: connection lost")
	ErrClusterMustNotSpecifyKey         = errors.New("cluster: must not specify _key for this collection")
	ErrClusterNotAllShardingAttrsGiven  = errors.New("cluster: not all sharding attributes given")
	ErrClusterContradictingAnswers      = errors.New("cluster: shards returned contradicting answers")

	// Generic
	ErrOutOfMemory = errors.New("out of memory")
	ErrInternal    = errors.New("internal error")
)

// Code is the stable numeric error code space described in the storage
// engine's error taxonomy. Codes are grouped by subsystem in blocks of 100
// so new subsystems can be added without renumbering existing ones.
type Code int

const (
	CodeNone Code = 0

	CodeOutOfMemory Code = 1
	CodeInternal    Code = 2

	CodeCollectionNotFound    Code = 100
	CodeCollectionUnknownType Code = 101

	CodeNoIndex                               Code = 200
	CodeGeoIndexViolated                      Code = 201
	CodeIndexHashInsertFailed                  Code = 202
	CodeIndexSkiplistUpdateAttributeMissing    Code = 203
	CodeIndexSkiplistDocumentAttributeMissing  Code = 204
	CodeIndexBitarrayDocumentAttributeMissing  Code = 205
	CodeIndexBitarrayUpdateAttributeMissing    Code = 206
	CodeIndexBitarrayRemoveItemMissing         Code = 207
	CodeIndexBitarrayCreationDuplicateAttrs    Code = 208
	CodeIndexBitarrayCreationDuplicateValues   Code = 209
	CodeIndexPQInsertFailed                    Code = 210

	CodeClusterShardGone                      Code = 300
	CodeClusterTimeout                        Code = 301
	CodeClusterConnectionLost                 Code = 302
	CodeClusterMustNotSpecifyKey               Code = 303
	CodeClusterNotAllShardingAttributesGiven   Code = 304
	CodeClusterGotContradictingAnswers         Code = 305

	CodeQueryEmpty Code = 400
)

var codeBySentinel = map[error]Code{
	ErrOutOfMemory:                       CodeOutOfMemory,
	ErrInternal:                          CodeInternal,
	ErrCollectionNotFound:                CodeCollectionNotFound,
	ErrCollectionUnknownType:             CodeCollectionUnknownType,
	ErrNoIndex:                           CodeNoIndex,
	ErrGeoIndexViolated:                  CodeGeoIndexViolated,
	ErrIndexHashInsertFailed:             CodeIndexHashInsertFailed,
	ErrSkiplistUpdateAttributeMissing:    CodeIndexSkiplistUpdateAttributeMissing,
	ErrSkiplistDocumentAttributeMissing:  CodeIndexSkiplistDocumentAttributeMissing,
	ErrBitarrayDocumentAttributeMissing:  CodeIndexBitarrayDocumentAttributeMissing,
	ErrBitarrayUpdateAttributeMissing:    CodeIndexBitarrayUpdateAttributeMissing,
	ErrBitarrayRemoveItemMissing:         CodeIndexBitarrayRemoveItemMissing,
	ErrBitarrayDuplicateAttributes:       CodeIndexBitarrayCreationDuplicateAttrs,
	ErrBitarrayDuplicateValues:           CodeIndexBitarrayCreationDuplicateValues,
	ErrPQInsertFailed:                    CodeIndexPQInsertFailed,
	ErrShardGone:                         CodeClusterShardGone,
	ErrClusterTimeout:                    CodeClusterTimeout,
	ErrClusterConnectionLost:             CodeClusterConnectionLost,
	ErrClusterMustNotSpecifyKey:          CodeClusterMustNotSpecifyKey,
	ErrClusterNotAllShardingAttrsGiven:   CodeClusterNotAllShardingAttributesGiven,
	ErrClusterContradictingAnswers:       CodeClusterGotContradictingAnswers,
	ErrQueryEmpty:                        CodeQueryEmpty,
}

// CodedError wraps a sentinel error with an attached datum — an attribute
// name, a shard id, whatever the caller needs a human to see alongside the
// code. It unwraps to the sentinel so errors.Is still works.
type CodedError struct {
	Err  error
	Data string
}

func (e *CodedError) Error() string {
	if e.Data == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Data)
}

func (e *CodedError) Unwrap() error { return e.Err }

// CodeOf returns the stable numeric code for err, or CodeInternal if err is
// not one of the known sentinels.
func CodeOf(err error) Code {
	for sentinel, code := range codeBySentinel {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeInternal
}

// WithData attaches a datum to a sentinel error, e.g.
// util.WithData(util.ErrSkiplistDocumentAttributeMissing, "age").
func WithData(sentinel error, data string) error {
	return &CodedError{Err: sentinel, Data: data}
}
