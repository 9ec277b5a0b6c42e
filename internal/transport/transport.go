// Package transport defines the opaque request/reply primitive the
// Dispatcher is built on (spec.md §4.3) and ships two concrete
// adapters: a real libp2p-backed transport and an in-process transport
// used by tests and local simulation.
package transport

import (
	"errors"
	"time"

	"github.com/PirosB3/DHT/internal/wire"
	"github.com/PirosB3/DHT/pkg/peerinfo"
)

// ErrIdle is returned by ServeOne when its poll slice elapses with no
// inbound request.
var ErrIdle = errors.New("transport: idle")

// ErrTimeout is returned by Call when the deadline is missed, and is
// also the value each Transport implementation maps every other
// delivery failure onto (spec.md §7's closing paragraph).
var ErrTimeout = errors.New("transport: timeout")

// DefaultCallTimeout is the 1s outbound call deadline spec.md mandates.
const DefaultCallTimeout = 1 * time.Second

// DefaultPollTick is the ~2s poll slice the serve loop checks shutdown
// against.
const DefaultPollTick = 2 * time.Second

// InboundRequest is one decoded request awaiting a reply. Reply may be
// called at most once.
type InboundRequest struct {
	Msg   *wire.Request
	reply func(*wire.Reply) error
}

// Reply sends rep back on the connection this request arrived on.
func (r *InboundRequest) Reply(rep *wire.Reply) error {
	return r.reply(rep)
}

// Transport is the opaque request/reply primitive spec.md §4.3
// describes: an inbound poll/accept side (ServeOne) and an outbound
// call side (Call). Implementations MUST NOT reuse any per-call
// connection state after a timeout (spec.md §4.3/§9): every Call uses
// a fresh connection.
type Transport interface {
	// ServeOne blocks for up to timeout waiting for one inbound
	// request. It returns ErrIdle if nothing arrived in time.
	ServeOne(timeout time.Duration) (*InboundRequest, error)

	// Call sends req to peer and waits up to timeout for a reply.
	// Returns ErrTimeout on deadline miss or any other delivery
	// failure (spec.md maps all such failures onto Timeout uniformly).
	Call(peer peerinfo.Peer, req *wire.Request, timeout time.Duration) (*wire.Reply, error)

	// Close releases the transport's resources (listening socket,
	// background goroutines).
	Close() error
}
