// Package lookup implements the iterative shortlist lookup that
// drives both node discovery and value retrieval: FIND_NODE and
// GET_VALUE share one shortlist/queried/dead/best state machine,
// differing only in what a successful response looks like. Grounded
// on original_source/dht.py's iterative_find_node (GET_VALUE is the
// same walk, degrading to FIND_NODE on every miss). The calls of a
// round are issued one at a time.
package lookup

import (
	"fmt"
	"sort"

	logging "github.com/ipfs/go-log"

	"github.com/PirosB3/DHT/internal/dispatcher"
	"github.com/PirosB3/DHT/internal/routing"
	"github.com/PirosB3/DHT/internal/wire"
	"github.com/PirosB3/DHT/pkg/kadid"
	"github.com/PirosB3/DHT/pkg/peerinfo"
)

var log = logging.Logger("lookup")

// Engine runs iterative lookups against one peer's own table and
// dispatcher.
type Engine struct {
	self     peerinfo.Peer
	table    *routing.Table
	dispatch *dispatcher.Dispatcher

	alpha int
	k     int
}

// New builds a lookup Engine for self. It defaults alpha to
// routing.DefaultBucketSize (K): the source's iterative_find_node
// slices its candidate list to 20 (= K) rather than a classical fixed
// fan-out of 3, and spec.md §9.4 preserves that choice as the default.
func New(self peerinfo.Peer, table *routing.Table, d *dispatcher.Dispatcher) *Engine {
	return &Engine{
		self:     self,
		table:    table,
		dispatch: d,
		alpha:    routing.DefaultBucketSize,
		k:        routing.DefaultBucketSize,
	}
}

// WithAlpha overrides the per-round fan-out factor.
func (e *Engine) WithAlpha(alpha int) *Engine {
	e.alpha = alpha
	return e
}

// WithK overrides the shortlist width returned to callers.
func (e *Engine) WithK(k int) *Engine {
	e.k = k
	return e
}

type candState int

const (
	stateNew candState = iota
	stateQueried
	stateDead
)

type candidate struct {
	peer  peerinfo.Peer
	state candState
}

// queryFunc issues one RPC to p and reports either the raw value (for
// GET_VALUE hits) or the peers the remote returned.
type queryFunc func(p peerinfo.Peer) (nodes []peerinfo.Peer, value *string, err error)

// walk runs the shared shortlist algorithm against target using query
// to contact each candidate. It returns the k closest live peers found
// and, if query ever reports a value, that value and true.
func (e *Engine) walk(target kadid.ID, query queryFunc) ([]peerinfo.Peer, string, bool) {
	cands := make(map[kadid.ID]*candidate)
	var ids []kadid.ID

	add := func(p peerinfo.Peer) {
		if p.ID.Equal(e.self.ID) {
			return
		}
		if _, ok := cands[p.ID]; ok {
			return
		}
		cands[p.ID] = &candidate{peer: p}
		ids = append(ids, p.ID)
	}

	for _, p := range e.table.FindClosest(target, e.alpha) {
		add(p)
	}
	if len(ids) == 0 {
		log.Debugf("lookup %s: empty shortlist for target %s", e.self, target)
		return nil, "", false
	}

	sortByDistance := func() {
		sort.Slice(ids, func(i, j int) bool { return kadid.Less(target, ids[i], ids[j]) })
	}
	sortByDistance()
	best := ids[0]

	for {
		sortByDistance()

		var round []kadid.ID
		for _, id := range ids {
			if cands[id].state == stateNew {
				round = append(round, id)
				if len(round) >= e.alpha {
					break
				}
			}
		}
		if len(round) == 0 {
			break
		}

		hitValue := false
		var value string
		for _, id := range round {
			c := cands[id]
			nodes, v, err := query(c.peer)
			if err != nil {
				c.state = stateDead
				continue
			}
			c.state = stateQueried
			if v != nil {
				value = *v
				hitValue = true
				break
			}
			for _, np := range nodes {
				add(np)
			}
		}
		if hitValue {
			return nil, value, true
		}

		sortByDistance()
		if !kadid.Less(target, ids[0], best) {
			// Monotone-progress guard (spec.md §4.4 step 2 / invariant
			// 7): stop once a round's closest candidate is not
			// strictly closer than the best seen so far, rather than
			// looping on every round that merely turns up some new
			// (possibly farther) candidate.
			break
		}
		best = ids[0]
	}

	sortByDistance()
	out := make([]peerinfo.Peer, 0, e.k)
	for _, id := range ids {
		if cands[id].state == stateDead {
			continue
		}
		out = append(out, cands[id].peer)
		if len(out) >= e.k {
			break
		}
	}
	return out, "", false
}

// IterativeFindNode walks the overlay toward target and returns the k
// closest live peers discovered.
func (e *Engine) IterativeFindNode(target kadid.ID) []peerinfo.Peer {
	peers, _, _ := e.walk(target, func(p peerinfo.Peer) ([]peerinfo.Peer, *string, error) {
		req := wire.NewFindNode(e.self, target)
		rep, err := e.dispatch.Call(p, req)
		if err != nil {
			return nil, nil, err
		}
		nodes := make([]peerinfo.Peer, 0, len(rep.Nodes))
		for _, n := range rep.Nodes {
			nodes = append(nodes, n.ToPeer())
		}
		return nodes, nil, nil
	})
	return peers
}

// IterativeGetValue walks the overlay toward HashKey(key), issuing
// GET_VALUE at every hop. It returns the value and true on a hit, or
// the closest peers found and false on a miss (mirroring
// IterativeFindNode's result shape, per spec.md §4.4).
func (e *Engine) IterativeGetValue(key string) (string, bool, []peerinfo.Peer) {
	target := kadid.HashKey(key)
	peers, value, found := e.walk(target, func(p peerinfo.Peer) ([]peerinfo.Peer, *string, error) {
		req := wire.NewGetValue(e.self, key, target)
		rep, err := e.dispatch.Call(p, req)
		if err != nil {
			return nil, nil, err
		}
		if rep.Value != nil {
			return nil, rep.Value, nil
		}
		nodes := make([]peerinfo.Peer, 0, len(rep.Nodes))
		for _, n := range rep.Nodes {
			nodes = append(nodes, n.ToPeer())
		}
		return nodes, nil, nil
	})
	if found {
		return value, true, nil
	}
	return "", false, peers
}

// Bootstrap seeds the table with a known peer and runs a self-lookup,
// the idiomatic way of populating buckets both near and far from self
// from a single contact (original_source/dht.py's bootstrap path).
func (e *Engine) Bootstrap(peer peerinfo.Peer) error {
	if peer.ID.Equal(e.self.ID) {
		return fmt.Errorf("lookup: cannot bootstrap from self")
	}
	e.table.Update(peer)

	req := wire.NewFindNode(e.self, e.self.ID)
	rep, err := e.dispatch.Call(peer, req)
	if err != nil {
		return fmt.Errorf("lookup: bootstrap contact %s: %w", peer, err)
	}
	for _, n := range rep.Nodes {
		e.table.Update(n.ToPeer())
	}

	e.IterativeFindNode(e.self.ID)
	return nil
}
