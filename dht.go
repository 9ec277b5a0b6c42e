// Package dht is the root facade: it wires pkg/kadid, pkg/peerinfo,
// internal/routing, internal/store, internal/dispatcher,
// internal/lookup and an internal/transport.Transport together into
// the single object an application embeds, mirroring
// original_source/dht.py's DHT class (__setitem__/__getitem__/run).
package dht

import (
	"context"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log"

	"github.com/PirosB3/DHT/internal/dispatcher"
	"github.com/PirosB3/DHT/internal/lookup"
	"github.com/PirosB3/DHT/internal/routing"
	"github.com/PirosB3/DHT/internal/store"
	"github.com/PirosB3/DHT/internal/transport"
	"github.com/PirosB3/DHT/internal/wire"
	"github.com/PirosB3/DHT/pkg/kadid"
	"github.com/PirosB3/DHT/pkg/peerinfo"
)

var log = logging.Logger("dht")

// Config holds the tunables spec.md exposes as named constants (K,
// Alpha, R, the call timeout and poll tick) plus an optional bootstrap
// contact.
type Config struct {
	K           int
	Alpha       int
	R           uint32
	CallTimeout time.Duration
	PollTick    time.Duration
	Bootstrap   *peerinfo.Peer
}

// DefaultConfig returns the reference values spec.md names throughout:
// K=20, Alpha=K (the source's choice, preserved per spec.md §9.4),
// R=3, a 1s call timeout and a ~2s poll tick.
func DefaultConfig() Config {
	return Config{
		K:           routing.DefaultBucketSize,
		Alpha:       routing.DefaultBucketSize,
		R:           routing.DefaultUnavailabilityThreshold,
		CallTimeout: transport.DefaultCallTimeout,
		PollTick:    transport.DefaultPollTick,
	}
}

// DHT is one peer's view of the overlay: its identity, its routing
// table, its local store, and the dispatcher/lookup machinery that
// answer and issue RPCs on its behalf.
type DHT struct {
	self      peerinfo.Peer
	cfg       Config
	transport transport.Transport
	table     *routing.Table
	store     *store.Store
	dispatch  *dispatcher.Dispatcher
	engine    *lookup.Engine

	cancel context.CancelFunc
}

// New builds a DHT for self over tr, applying cfg.
func New(self peerinfo.Peer, tr transport.Transport, cfg Config) *DHT {
	table := routing.New(self.ID, nil).
		WithBucketSize(cfg.K).
		WithUnavailabilityThreshold(cfg.R)
	st := store.New()
	d := dispatcher.New(self, tr, table, st).
		WithPollTick(cfg.PollTick).
		WithCallTimeout(cfg.CallTimeout)
	eng := lookup.New(self, table, d).
		WithAlpha(cfg.Alpha).
		WithK(cfg.K)

	return &DHT{
		self:      self,
		cfg:       cfg,
		transport: tr,
		table:     table,
		store:     st,
		dispatch:  d,
		engine:    eng,
	}
}

// Start runs the dispatcher's serve loop in the background and, if
// cfg.Bootstrap was set, joins the overlay through it.
func (n *DHT) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	go n.dispatch.Serve(ctx)

	if n.cfg.Bootstrap == nil {
		return nil
	}
	return n.Bootstrap(*n.cfg.Bootstrap)
}

// Bootstrap joins the overlay through peer, populating the routing
// table before returning.
func (n *DHT) Bootstrap(peer peerinfo.Peer) error {
	return n.engine.Bootstrap(peer)
}

// Put stores key/value at the K peers closest to HashKey(key) in the
// *local* routing table — no iterative lookup. This mirrors
// original_source/dht.py's __setitem__, which calls
// self.routing_table.find_closest(search_node) directly rather than
// walking the overlay first; spec.md §9.5 calls this out explicitly as
// a latency/placement tradeoff to preserve, not a bug to fix. If the
// routing table has no peers yet (a fresh, unbootstrapped node), Put
// falls back to storing locally, the same __setitem__ behavior when
// find_closest comes back empty.
func (n *DHT) Put(key, value string) error {
	closest := n.table.FindClosest(kadid.HashKey(key), n.cfg.K)
	if len(closest) == 0 {
		log.Debugf("dht %s: put %q with no known peers, storing locally", n.self, key)
		n.store.Put(key, value)
		return nil
	}

	var lastErr error
	stored := false
	for _, p := range closest {
		req := wire.NewStoreValue(n.self, key, value)
		if _, err := n.dispatch.Call(p, req); err != nil {
			lastErr = err
			continue
		}
		stored = true
	}
	if !stored {
		return fmt.Errorf("dht: put %q: every closest peer failed: %w", key, lastErr)
	}
	return nil
}

// Get returns key's value. It checks the local store first, then
// falls back to an iterative GET_VALUE walk of the overlay.
func (n *DHT) Get(key string) (string, bool) {
	if v, ok := n.store.Get(key); ok {
		return v, true
	}
	v, ok, _ := n.engine.IterativeGetValue(key)
	return v, ok
}

// Self returns this node's own peer identity.
func (n *DHT) Self() peerinfo.Peer {
	return n.self
}

// Table exposes the routing table for introspection.
func (n *DHT) Table() *routing.Table {
	return n.table
}

// Close stops the serve loop and releases the transport.
func (n *DHT) Close() error {
	if n.cancel != nil {
		n.cancel()
		<-n.dispatch.Done()
	}
	return n.transport.Close()
}
