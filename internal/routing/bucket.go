package routing

import (
	"container/list"

	"github.com/PirosB3/DHT/pkg/kadid"
	"github.com/PirosB3/DHT/pkg/peerinfo"
)

// bucket is a bounded, ordered queue of peers sharing one
// distance-to-self. Ordering is insertion order: the head (list.Front)
// is the least-recently-inserted survivor, matching spec.md's
// tail-append-if-absent / tail-drop-on-full policy.
type bucket struct {
	cap  int
	list *list.List // of peerinfo.Peer
}

func newBucket(cap int) *bucket {
	return &bucket{cap: cap, list: list.New()}
}

func (b *bucket) len() int {
	return b.list.Len()
}

func (b *bucket) find(id kadid.ID) *list.Element {
	for e := b.list.Front(); e != nil; e = e.Next() {
		if e.Value.(peerinfo.Peer).ID.Equal(id) {
			return e
		}
	}
	return nil
}

// pushBack appends a new peer at the tail, unconditionally. The
// caller is responsible for checking capacity and identity first.
func (b *bucket) pushBack(p peerinfo.Peer) {
	b.list.PushBack(p)
}

func (b *bucket) remove(id kadid.ID) bool {
	if e := b.find(id); e != nil {
		b.list.Remove(e)
		return true
	}
	return false
}

// peers returns a snapshot slice of the bucket's contents, oldest
// first.
func (b *bucket) peers() []peerinfo.Peer {
	out := make([]peerinfo.Peer, 0, b.list.Len())
	for e := b.list.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(peerinfo.Peer))
	}
	return out
}
