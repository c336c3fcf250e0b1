// Package coordinator implements the document-request shim that routes
// single-document operations to the shard(s) of a sharded collection: a
// fast path when the shard can be determined up front, and a slow-path
// broadcast with contradicting-answer detection otherwise.
package coordinator

import (
	"fmt"
	"net"
	"time"

	"github.com/vocbase/voccore/wire"
)

// Transport is the per-shard synchronous request surface a Dispatcher
// needs. Modeled after the teacher's raft TCPTransport dial-per-request
// pattern, generalized from the two hardcoded raft RPCs to a single
// generic ShardRequest/ShardReply exchange.
type Transport interface {
	SyncRequest(addr string, req wire.ShardRequest, timeout time.Duration) (wire.ShardReply, error)
}

// TCPTransport sends a ShardRequest over a freshly dialed TCP connection
// and waits for the ShardReply, exactly as raft.TCPTransport does for
// RequestVote/AppendEntries.
type TCPTransport struct{}

// NewTCPTransport returns the default dial-per-request transport.
func NewTCPTransport() *TCPTransport {
	return &TCPTransport{}
}

func (t *TCPTransport) SyncRequest(addr string, req wire.ShardRequest, timeout time.Duration) (wire.ShardReply, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return wire.ShardReply{}, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))

	if err := wire.WriteMessage(conn, wire.OpShardRequest, req); err != nil {
		return wire.ShardReply{}, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	header, err := wire.ReadHeader(conn)
	if err != nil {
		if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
			return wire.ShardReply{}, ErrTimeout
		}
		return wire.ShardReply{}, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	if header.OpCode == wire.OpError {
		var errReply wire.Reply
		wire.ReadBody(conn, header.Length, &errReply)
		return wire.ShardReply{}, fmt.Errorf("shard error: %s", errReply.Error)
	}

	var reply wire.ShardReply
	if err := wire.ReadBody(conn, header.Length, &reply); err != nil {
		return wire.ShardReply{}, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return reply, nil
}
