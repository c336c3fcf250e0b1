package coordinator

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// shardSlot tracks one shard server's address and recent health, the way
// the teacher's pool.Connection tracks a pooled database handle's
// liveness — here there is no persistent connection to pool (each
// request dials fresh via Transport), only the bookkeeping of which
// addresses are currently considered healthy.
type shardSlot struct {
	addr         string
	lastUsed     time.Time
	lastFailure  time.Time
	failureCount atomic.Int32
	mu           sync.RWMutex
}

func (s *shardSlot) markSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()
	s.failureCount.Store(0)
}

func (s *shardSlot) markFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFailure = time.Now()
	s.failureCount.Add(1)
}

// ShardPool tracks the address and health of every shard server backing a
// sharded collection, analogous to the teacher's connection pool but
// keyed by shard id instead of by free/in-use database handles: shard
// addresses are static configuration, not something to create/destroy
// under load.
type ShardPool struct {
	mu              sync.RWMutex
	shards          map[string]*shardSlot // shardID -> slot
	unhealthyWindow time.Duration
}

// NewShardPool builds a pool over the given shardID -> address mapping.
func NewShardPool(addrs map[string]string) *ShardPool {
	p := &ShardPool{
		shards:          make(map[string]*shardSlot, len(addrs)),
		unhealthyWindow: 30 * time.Second,
	}
	for id, addr := range addrs {
		p.shards[id] = &shardSlot{addr: addr}
	}
	return p
}

// Addr returns the address for shardID.
func (p *ShardPool) Addr(shardID string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	slot, ok := p.shards[shardID]
	if !ok {
		return "", fmt.Errorf("%w: shard %q", ErrShardGone, shardID)
	}
	return slot.addr, nil
}

// AllShardIDs returns every shard id registered in the pool, for the slow
// broadcast path.
func (p *ShardPool) AllShardIDs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]string, 0, len(p.shards))
	for id := range p.shards {
		ids = append(ids, id)
	}
	return ids
}

// ReportSuccess/ReportFailure feed back per-request outcomes so a future
// health-check pass (not implemented here; out of the distilled spec's
// scope) could evict persistently failing shards.
func (p *ShardPool) ReportSuccess(shardID string) {
	p.mu.RLock()
	slot, ok := p.shards[shardID]
	p.mu.RUnlock()
	if ok {
		slot.markSuccess()
	}
}

func (p *ShardPool) ReportFailure(shardID string) {
	p.mu.RLock()
	slot, ok := p.shards[shardID]
	p.mu.RUnlock()
	if ok {
		slot.markFailure()
	}
}
