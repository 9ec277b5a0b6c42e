package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PirosB3/DHT/internal/wire"
	"github.com/PirosB3/DHT/pkg/kadid"
	"github.com/PirosB3/DHT/pkg/peerinfo"
)

func TestLocal_CallServeOneRoundTrip(t *testing.T) {
	net := NewNetwork()
	a := peerinfo.New(kadid.Random(), "a", 1)
	b := peerinfo.New(kadid.Random(), "b", 2)

	ta := NewLocal(net, a)
	tb := NewLocal(net, b)
	defer ta.Close()
	defer tb.Close()

	req := wire.NewFindNode(a, b.ID)

	done := make(chan *wire.Reply, 1)
	go func() {
		rep, err := ta.Call(b, req, 1*time.Second)
		require.NoError(t, err)
		done <- rep
	}()

	ir, err := tb.ServeOne(1 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, wire.FindNode, ir.Msg.Type)
	require.NoError(t, ir.Reply(wire.OKReply()))

	rep := <-done
	assert.Equal(t, "OK", rep.Result)
}

func TestLocal_ServeOneIdleTimesOut(t *testing.T) {
	net := NewNetwork()
	a := peerinfo.New(kadid.Random(), "a", 1)
	ta := NewLocal(net, a)
	defer ta.Close()

	_, err := ta.ServeOne(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrIdle)
}

func TestLocal_CallToUnregisteredPeerTimesOut(t *testing.T) {
	net := NewNetwork()
	a := peerinfo.New(kadid.Random(), "a", 1)
	ghost := peerinfo.New(kadid.Random(), "ghost", 9)
	ta := NewLocal(net, a)
	defer ta.Close()

	req := wire.NewFindNode(a, ghost.ID)
	_, err := ta.Call(ghost, req, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestLocal_SetUnreachableForcesTimeout(t *testing.T) {
	net := NewNetwork()
	a := peerinfo.New(kadid.Random(), "a", 1)
	b := peerinfo.New(kadid.Random(), "b", 2)

	ta := NewLocal(net, a)
	tb := NewLocal(net, b)
	defer ta.Close()
	defer tb.Close()

	net.SetUnreachable(b.ID, true)

	req := wire.NewFindNode(a, b.ID)
	_, err := ta.Call(b, req, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}
