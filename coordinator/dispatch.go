package coordinator

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/vocbase/voccore/internal/util"
	"github.com/vocbase/voccore/wire"
)

var (
	ErrShardGone              = util.ErrShardGone
	ErrTimeout                = util.ErrClusterTimeout
	ErrConnectionLost         = util.ErrClusterConnectionLost
	ErrMustNotSpecifyKey      = util.ErrClusterMustNotSpecifyKey
	ErrNotAllShardingAttrs    = util.ErrClusterNotAllShardingAttrsGiven
	ErrContradictingAnswers   = util.ErrClusterContradictingAnswers
)

// ShardFunc hashes a collection's sharding-attribute values down to a
// shard id. HashShardFunc below is the default; tests may supply a fixed
// mapping.
type ShardFunc func(values []interface{}) string

// HashShardFunc builds a ShardFunc over numShards virtual buckets named
// "shard-0" .. "shard-(numShards-1)", hashing the JSON-ish string form of
// the sharding attribute values.
func HashShardFunc(numShards int) ShardFunc {
	return func(values []interface{}) string {
		h := sha256.New()
		for _, v := range values {
			fmt.Fprintf(h, "%v\x00", v)
		}
		sum := h.Sum(nil)
		bucket := binary.BigEndian.Uint64(sum[:8]) % uint64(numShards)
		return fmt.Sprintf("shard-%d", bucket)
	}
}

// CollectionSpec is the sharding configuration of one logical collection.
type CollectionSpec struct {
	Name              string
	ShardingAttrs     []string
	ShardFn           ShardFunc
}

// Dispatcher routes document operations to shards, implementing the fast
// and slow paths described in §4.6.
type Dispatcher struct {
	pool      *ShardPool
	transport Transport
	timeout   time.Duration
	log       zerolog.Logger
}

// NewDispatcher builds a Dispatcher over pool using transport for the
// actual network calls.
func NewDispatcher(pool *ShardPool, transport Transport, timeout time.Duration, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		pool:      pool,
		transport: transport,
		timeout:   timeout,
		log:       log.With().Str("component", "coordinator").Logger(),
	}
}

// Request is one document operation the caller wants dispatched.
type Request struct {
	Operation string // "insert" | "read" | "update" | "remove"
	Key       string // explicit _key, if any; "" if not supplied
	Document  map[string]interface{}
	// MutatesShardingAttrs must be true for update requests that change
	// any of the collection's sharding attributes; this forces the slow
	// path even when the old shard is known.
	MutatesShardingAttrs bool
}

// shardingValues extracts the collection's sharding attribute values from
// a document, in spec.ShardingAttrs order. Returns ok=false if any
// attribute is absent.
func shardingValues(spec CollectionSpec, doc map[string]interface{}) ([]interface{}, bool) {
	values := make([]interface{}, len(spec.ShardingAttrs))
	for i, attr := range spec.ShardingAttrs {
		v, present := doc[attr]
		if !present {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

// validateKey enforces the §4.6 rule: a caller may supply _key only if
// _key is the collection's sole sharding attribute.
func validateKey(spec CollectionSpec, req Request) error {
	if req.Key == "" {
		return nil
	}
	if len(spec.ShardingAttrs) == 1 && spec.ShardingAttrs[0] == "_key" {
		return nil
	}
	return ErrMustNotSpecifyKey
}

// Dispatch routes req to one or more shards, returning the winning reply.
func (d *Dispatcher) Dispatch(spec CollectionSpec, req Request) (wire.ShardReply, error) {
	if err := validateKey(spec, req); err != nil {
		return wire.ShardReply{}, err
	}

	if !req.MutatesShardingAttrs {
		if values, present := shardingValues(spec, req.Document); present {
			shardID := spec.ShardFn(values)
			return d.fastPath(spec, shardID, req)
		}
	}

	return d.slowPath(spec, req)
}

// fastPath sends req to exactly one shard, determined up front.
func (d *Dispatcher) fastPath(spec CollectionSpec, shardID string, req Request) (wire.ShardReply, error) {
	addr, err := d.pool.Addr(shardID)
	if err != nil {
		return wire.ShardReply{}, err
	}

	wireReq := toWireRequest(spec, req)
	reply, err := d.transport.SyncRequest(addr, wireReq, d.timeout)
	if err != nil {
		d.pool.ReportFailure(shardID)
		return wire.ShardReply{}, err
	}
	d.pool.ReportSuccess(shardID)
	return reply, nil
}

// slowPath broadcasts req to every shard and tallies responses per §4.6:
// any non-404 is a candidate; exactly one non-404 wins; two or more is
// GotContradictingAnswers; all 404 (with at least one reply) forwards
// 404; network errors roll up by severity Timeout > ConnectionLost >
// ShardGone.
func (d *Dispatcher) slowPath(spec CollectionSpec, req Request) (wire.ShardReply, error) {
	shardIDs := d.pool.AllShardIDs()
	sort.Strings(shardIDs) // deterministic iteration order for tests/logs

	wireReq := toWireRequest(spec, req)

	var successes []wire.ShardReply
	var notFoundReplies int
	var worstErr error

	for _, shardID := range shardIDs {
		addr, err := d.pool.Addr(shardID)
		if err != nil {
			worstErr = worsen(worstErr, err)
			continue
		}

		// §9 open question fix: If-None-Match is cleared on every
		// per-shard request, so no value is ever carried over from a
		// previous shard in the loop.
		perShardReq := wireReq
		perShardReq.IfNoneMatch = ""

		reply, err := d.transport.SyncRequest(addr, perShardReq, d.timeout)
		if err != nil {
			d.pool.ReportFailure(shardID)
			worstErr = worsen(worstErr, err)
			continue
		}
		d.pool.ReportSuccess(shardID)

		if reply.StatusCode == 404 {
			notFoundReplies++
			continue
		}
		successes = append(successes, reply)
	}

	switch {
	case len(successes) == 1:
		return successes[0], nil
	case len(successes) > 1:
		return wire.ShardReply{}, ErrContradictingAnswers
	case notFoundReplies > 0:
		return wire.ShardReply{StatusCode: 404}, nil
	case worstErr != nil:
		return wire.ShardReply{}, worstErr
	default:
		return wire.ShardReply{}, ErrShardGone
	}
}

// worsen returns whichever of current/candidate ranks higher in the
// Timeout > ConnectionLost > ShardGone severity order from §7.
func worsen(current, candidate error) error {
	if current == nil {
		return candidate
	}
	if severity(candidate) > severity(current) {
		return candidate
	}
	return current
}

func severity(err error) int {
	switch {
	case errors.Is(err, ErrTimeout):
		return 3
	case errors.Is(err, ErrConnectionLost):
		return 2
	case errors.Is(err, ErrShardGone):
		return 1
	default:
		return 0
	}
}

func toWireRequest(spec CollectionSpec, req Request) wire.ShardRequest {
	return wire.ShardRequest{
		RequestMeta: wire.RequestMeta{Collection: spec.Name},
		Operation:   req.Operation,
		Key:         req.Key,
		Document:    req.Document,
	}
}
