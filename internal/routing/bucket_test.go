package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PirosB3/DHT/pkg/kadid"
	"github.com/PirosB3/DHT/pkg/peerinfo"
)

func TestBucket_PushFindRemove(t *testing.T) {
	b := newBucket(2)
	p1 := peerinfo.New(kadid.Random(), "h", 1)
	p2 := peerinfo.New(kadid.Random(), "h", 2)

	assert.Equal(t, 0, b.len())
	b.pushBack(p1)
	b.pushBack(p2)
	assert.Equal(t, 2, b.len())

	assert.NotNil(t, b.find(p1.ID))
	assert.True(t, b.remove(p1.ID))
	assert.Nil(t, b.find(p1.ID))
	assert.Equal(t, 1, b.len())

	assert.False(t, b.remove(p1.ID))
}

func TestBucket_PeersOrderedByInsertion(t *testing.T) {
	b := newBucket(5)
	p1 := peerinfo.New(kadid.Random(), "h", 1)
	p2 := peerinfo.New(kadid.Random(), "h", 2)
	b.pushBack(p1)
	b.pushBack(p2)

	got := b.peers()
	assert.Equal(t, p1.ID, got[0].ID)
	assert.Equal(t, p2.ID, got[1].ID)
}
