// Package routing implements the Kademlia routing table: a
// self-centered bank of Bits buckets indexed by leading-zero-bit
// distance, each a bounded queue of peers, supporting insertion,
// closest-N extraction, and liveness eviction.
package routing

import (
	"sort"
	"sync"

	logging "github.com/ipfs/go-log"

	"github.com/PirosB3/DHT/pkg/kadid"
	"github.com/PirosB3/DHT/pkg/peerinfo"
)

var log = logging.Logger("routing")

// DefaultBucketSize is K, the bucket and shortlist capacity.
const DefaultBucketSize = 20

// DefaultUnavailabilityThreshold is R, the number of failed calls
// before a peer is evicted. A successful call does not reset the count.
const DefaultUnavailabilityThreshold = 3

// Table is the routing table for one local peer.
//
// Locking follows the teacher's "blanket lock, refine later for
// better performance" approach: one RWMutex guards both the buckets
// and the unavailability counters, since both are small in-memory
// structures mutated under light contention.
type Table struct {
	selfID kadid.ID

	mu          sync.RWMutex
	buckets     [kadid.Bits]*bucket
	bucketSize  int
	unavailable map[kadid.ID]uint32
	threshold   uint32

	// PeerAdded/PeerRemoved notify an observer of table churn,
	// mirroring the teacher's RoutingTable.PeerAdded/PeerRemoved
	// callback fields. New sets both to no-ops; no other package in
	// this module replaces them.
	PeerAdded   func(peerinfo.Peer)
	PeerRemoved func(peerinfo.Peer)
}

// New creates a routing table for selfID with Bits empty buckets. If
// bootstrap is non-nil it is inserted immediately.
func New(selfID kadid.ID, bootstrap *peerinfo.Peer) *Table {
	t := &Table{
		selfID:      selfID,
		bucketSize:  DefaultBucketSize,
		unavailable: make(map[kadid.ID]uint32),
		threshold:   DefaultUnavailabilityThreshold,
		PeerAdded:   func(peerinfo.Peer) {},
		PeerRemoved: func(peerinfo.Peer) {},
	}
	for i := range t.buckets {
		t.buckets[i] = newBucket(t.bucketSize)
	}
	if bootstrap != nil {
		t.Update(*bootstrap)
	}
	return t
}

// WithBucketSize overrides K (default DefaultBucketSize). Must be
// called before any peers are inserted.
func (t *Table) WithBucketSize(k int) *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bucketSize = k
	for i := range t.buckets {
		t.buckets[i] = newBucket(k)
	}
	return t
}

// WithUnavailabilityThreshold overrides R (default
// DefaultUnavailabilityThreshold).
func (t *Table) WithUnavailabilityThreshold(r uint32) *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.threshold = r
	return t
}

func (t *Table) bucketIndex(id kadid.ID) int {
	return kadid.Distance(t.selfID, id)
}

// Update inserts or refreshes peer p. Self-sightings are ignored.
// Identity-existing peers are a no-op (this spec does not refresh
// metadata in place, matching original_source/table.py's
// `if node not in self.buckets[bucket_n]`). A new peer is appended at
// the tail if the bucket has room; otherwise it is dropped
// (tail-drop-on-full, the documented deviation from classical
// least-recently-seen head-probing — spec.md §9 point 3).
func (t *Table) Update(p peerinfo.Peer) {
	if p.ID.Equal(t.selfID) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.bucketIndex(p.ID)
	b := t.buckets[idx]

	if b.find(p.ID) != nil {
		return
	}

	if b.len() >= t.bucketSize {
		log.Debugf("bucket %d full, dropping new peer %s", idx, p)
		return
	}

	b.pushBack(p)
	t.PeerAdded(p)
}

// FindClosest returns up to n peers ordered by distance to target,
// closest first, per the total order in pkg/kadid. It sweeps buckets
// outward from the bucket target would occupy, gathering candidates
// symmetrically until n have been collected or both directions are
// exhausted, then does one final global sort+truncate over the
// gathered candidates (spec.md §4.2).
func (t *Table) FindClosest(target kadid.ID, n int) []peerinfo.Peer {
	if n <= 0 {
		n = t.bucketSize
	}

	t.mu.RLock()
	i0 := t.bucketIndex(target)

	var candidates []peerinfo.Peer
	leftDone, rightDone := false, false
	for shift := 0; !leftDone || !rightDone; shift++ {
		left := i0 - shift
		if left < 0 {
			leftDone = true
		} else {
			candidates = append(candidates, t.buckets[left].peers()...)
		}

		if shift > 0 {
			right := i0 + shift
			if right >= len(t.buckets) {
				rightDone = true
			} else {
				candidates = append(candidates, t.buckets[right].peers()...)
			}
		}

		if len(candidates) >= n {
			break
		}
	}
	t.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		return kadid.Less(target, candidates[i].ID, candidates[j].ID)
	})

	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

// MarkUnavailable records a failed call to p. After R failures the
// peer is evicted from its bucket and the counter is cleared; the
// counter is not reset by Update or by a successful call in between.
func (t *Table) MarkUnavailable(p peerinfo.Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.unavailable[p.ID]++
	if t.unavailable[p.ID] < t.threshold {
		return
	}

	idx := t.bucketIndex(p.ID)
	if t.buckets[idx].remove(p.ID) {
		log.Debugf("evicted %s after %d failed calls", p, t.threshold)
		t.PeerRemoved(p)
	}
	delete(t.unavailable, p.ID)
}

// Size returns the total number of peers across all buckets.
func (t *Table) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := 0
	for _, b := range t.buckets {
		total += b.len()
	}
	return total
}

// ListPeers returns every peer currently in the table, in no
// particular order.
func (t *Table) ListPeers() []peerinfo.Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []peerinfo.Peer
	for _, b := range t.buckets {
		out = append(out, b.peers()...)
	}
	return out
}

// UnavailabilityCount returns the current failed-call count for p, for tests asserting on eviction behavior (spec.md scenario S4).
func (t *Table) UnavailabilityCount(id kadid.ID) uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.unavailable[id]
}
