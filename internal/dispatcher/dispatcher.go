// Package dispatcher owns a peer's listening endpoint: it decodes
// inbound requests, learns about their senders, answers FIND_NODE,
// STORE_VALUE and GET_VALUE, and exposes the one outbound Call other
// packages (the lookup engine, the root facade) use to talk back out.
// Grounded on original_source/dht.py's _run loop and server_listen
// handler dispatch.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log"

	"github.com/PirosB3/DHT/internal/routing"
	"github.com/PirosB3/DHT/internal/store"
	"github.com/PirosB3/DHT/internal/transport"
	"github.com/PirosB3/DHT/internal/wire"
	"github.com/PirosB3/DHT/pkg/peerinfo"
)

var log = logging.Logger("dispatcher")

// Dispatcher serves one peer's RPCs over an opaque Transport.
type Dispatcher struct {
	self      peerinfo.Peer
	transport transport.Transport
	table     *routing.Table
	store     *store.Store

	pollTick    time.Duration
	callTimeout time.Duration

	done chan struct{}
}

// New builds a Dispatcher for self, backed by tr, table and st. Zero
// values for pollTick/callTimeout fall back to the transport
// package's defaults.
func New(self peerinfo.Peer, tr transport.Transport, table *routing.Table, st *store.Store) *Dispatcher {
	return &Dispatcher{
		self:        self,
		transport:   tr,
		table:       table,
		store:       st,
		pollTick:    transport.DefaultPollTick,
		callTimeout: transport.DefaultCallTimeout,
		done:        make(chan struct{}),
	}
}

// WithPollTick overrides the serve loop's poll slice.
func (d *Dispatcher) WithPollTick(tick time.Duration) *Dispatcher {
	if tick > 0 {
		d.pollTick = tick
	}
	return d
}

// WithCallTimeout overrides the outbound Call deadline.
func (d *Dispatcher) WithCallTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.callTimeout = timeout
	}
	return d
}

// Serve runs the accept loop until ctx is canceled, then closes Done.
// Each poll slice is bounded by pollTick so shutdown is noticed within
// one tick of cancellation (spec.md §4.3/§9's cooperative shutdown).
func (d *Dispatcher) Serve(ctx context.Context) {
	defer close(d.done)
	log.Infof("dispatcher %s serving", d.self)

	for {
		select {
		case <-ctx.Done():
			log.Infof("dispatcher %s shutting down", d.self)
			return
		default:
		}

		ir, err := d.transport.ServeOne(d.pollTick)
		if err != nil {
			if !errors.Is(err, transport.ErrIdle) {
				log.Debugf("dispatcher %s serve: %v", d.self, err)
			}
			continue
		}
		d.handle(ir)
	}
}

// Done is closed once Serve has returned.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// handle validates one decoded inbound request, records its sender as
// live, and dispatches to the matching RPC handler. A request with an
// unknown type or a missing payload gets an error reply and leaves the
// routing table untouched.
func (d *Dispatcher) handle(ir *transport.InboundRequest) {
	req := ir.Msg
	wellFormed := (req.Type == wire.FindNode && req.FindNode != nil) ||
		(req.Type == wire.StoreValue && req.StoreValue != nil) ||
		(req.Type == wire.GetValue && req.GetValue != nil)
	if !wellFormed {
		log.Debugf("dispatcher %s: malformed %q request", d.self, req.Type)
		if err := ir.Reply(wire.ErrorReply(fmt.Sprintf("malformed %q request", req.Type))); err != nil {
			log.Debugf("dispatcher %s reply: %v", d.self, err)
		}
		return
	}
	sender := req.From.ToPeer()
	d.table.Update(sender)

	var rep *wire.Reply
	switch req.Type {
	case wire.FindNode:
		rep = d.handleFindNode(req)
	case wire.StoreValue:
		rep = d.handleStoreValue(req)
	case wire.GetValue:
		rep = d.handleGetValue(req)
	default:
		rep = wire.ErrorReply(fmt.Sprintf("unknown request type %q", req.Type))
	}

	if err := ir.Reply(rep); err != nil {
		log.Debugf("dispatcher %s reply: %v", d.self, err)
	}
}

func (d *Dispatcher) handleFindNode(req *wire.Request) *wire.Reply {
	if req.FindNode == nil {
		return wire.ErrorReply("find_node: missing payload")
	}
	closest := d.table.FindClosest(req.FindNode.Target, routing.DefaultBucketSize)
	return wire.NodesReply(closest)
}

func (d *Dispatcher) handleStoreValue(req *wire.Request) *wire.Reply {
	if req.StoreValue == nil {
		return wire.ErrorReply("store_value: missing payload")
	}
	d.store.Put(req.StoreValue.Key, req.StoreValue.Value)
	return wire.OKReply()
}

func (d *Dispatcher) handleGetValue(req *wire.Request) *wire.Reply {
	if req.GetValue == nil {
		return wire.ErrorReply("get_value: missing payload")
	}
	if v, ok := d.store.Get(req.GetValue.DataKey); ok {
		return wire.ValueReply(v)
	}
	// Miss: degrade to FIND_NODE semantics so the caller can keep
	// walking the overlay toward the key (spec.md §4.4).
	closest := d.table.FindClosest(req.GetValue.Key, routing.DefaultBucketSize)
	return wire.NodesReply(closest)
}

// Call issues an outbound RPC to p and folds the result back into the
// routing table: a reply proves liveness, a timeout counts as a
// failure toward eviction (spec.md §4.2's R-strike rule).
func (d *Dispatcher) Call(p peerinfo.Peer, req *wire.Request) (*wire.Reply, error) {
	rep, err := d.transport.Call(p, req, d.callTimeout)
	if err != nil {
		d.table.MarkUnavailable(p)
		return nil, err
	}
	d.table.Update(p)
	return rep, nil
}

// Self returns the peer this dispatcher serves on behalf of.
func (d *Dispatcher) Self() peerinfo.Peer {
	return d.self
}
