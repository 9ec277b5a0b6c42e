package transport

import (
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log"

	"github.com/PirosB3/DHT/internal/wire"
	"github.com/PirosB3/DHT/pkg/kadid"
	"github.com/PirosB3/DHT/pkg/peerinfo"
)

var log = logging.Logger("transport")

// pendingCall is one in-flight Call waiting on its inbox delivery.
type pendingCall struct {
	req   *wire.Request
	reply chan *wire.Reply
}

// Network is an in-process registry of Local transports keyed by
// kadid.ID, standing in for the socket layer in tests and in
// "cmd/dhtnode -simulate" runs. It lets tests force a peer to behave
// as permanently unreachable (spec.md S7) without tearing down a real
// listener.
type Network struct {
	mu          sync.Mutex
	nodes       map[kadid.ID]*Local
	unreachable map[kadid.ID]bool
}

// NewNetwork creates an empty registry.
func NewNetwork() *Network {
	return &Network{
		nodes:       make(map[kadid.ID]*Local),
		unreachable: make(map[kadid.ID]bool),
	}
}

// register attaches t under id. Called by NewLocal.
func (n *Network) register(id kadid.ID, t *Local) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nodes[id] = t
}

// Unregister removes id from the network; subsequent Calls to it fail
// as if the peer had gone offline.
func (n *Network) Unregister(id kadid.ID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.nodes, id)
}

// SetUnreachable marks id so that every Call addressed to it times out
// without ever reaching its inbox, simulating a peer that never
// answers (spec.md S7).
func (n *Network) SetUnreachable(id kadid.ID, unreachable bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if unreachable {
		n.unreachable[id] = true
	} else {
		delete(n.unreachable, id)
	}
}

func (n *Network) lookup(id kadid.ID) (*Local, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.unreachable[id] {
		return nil, false
	}
	t, ok := n.nodes[id]
	return t, ok
}

// Local is an in-process Transport: Call delivers directly into the
// target Local's inbox channel rather than opening a socket. It is
// the transport cmd/dhtnode's simulate mode and every package test in
// this module drive the Dispatcher and lookup engine with.
type Local struct {
	network *Network
	self    peerinfo.Peer
	inbox   chan *pendingCall
	closeCh chan struct{}
	once    sync.Once
}

// NewLocal creates a Local transport for self and registers it on
// network under self.ID.
func NewLocal(network *Network, self peerinfo.Peer) *Local {
	t := &Local{
		network: network,
		self:    self,
		inbox:   make(chan *pendingCall, 64),
		closeCh: make(chan struct{}),
	}
	network.register(self.ID, t)
	return t
}

func (t *Local) ServeOne(timeout time.Duration) (*InboundRequest, error) {
	select {
	case pc := <-t.inbox:
		pc := pc
		return &InboundRequest{
			Msg: pc.req,
			reply: func(rep *wire.Reply) error {
				pc.reply <- rep
				return nil
			},
		}, nil
	case <-t.closeCh:
		return nil, ErrIdle
	case <-time.After(timeout):
		return nil, ErrIdle
	}
}

func (t *Local) Call(peer peerinfo.Peer, req *wire.Request, timeout time.Duration) (*wire.Reply, error) {
	target, ok := t.network.lookup(peer.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %s unreachable", ErrTimeout, peer)
	}

	pc := &pendingCall{req: req, reply: make(chan *wire.Reply, 1)}
	select {
	case target.inbox <- pc:
	case <-time.After(timeout):
		return nil, ErrTimeout
	}

	select {
	case rep := <-pc.reply:
		return rep, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}

func (t *Local) Close() error {
	t.once.Do(func() {
		close(t.closeCh)
		t.network.Unregister(t.self.ID)
	})
	log.Debugf("local transport %s closed", t.self)
	return nil
}
