// Package peerinfo defines the Peer value that flows through the
// routing table, the dispatcher, and lookup shortlists.
package peerinfo

import (
	"fmt"

	"github.com/multiformats/go-multiaddr"

	"github.com/PirosB3/DHT/pkg/kadid"
)

// Peer is a participant in the overlay: an identifier plus the contact
// metadata needed to reach it. Identity and equality come from ID
// alone; Host/Port are free to be refreshed on later sightings of the
// same ID.
type Peer struct {
	ID   kadid.ID
	Host string
	Port uint16
}

// New builds a Peer.
func New(id kadid.ID, host string, port uint16) Peer {
	return Peer{ID: id, Host: host, Port: port}
}

// Equal compares peers by ID only, per spec.
func (p Peer) Equal(other Peer) bool {
	return p.ID.Equal(other.ID)
}

// Addr renders the peer's contact address as "host:port".
func (p Peer) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// Multiaddr renders the peer's contact address as a libp2p multiaddr,
// used by the libp2p-backed transport to dial this peer.
func (p Peer) Multiaddr() (multiaddr.Multiaddr, error) {
	return multiaddr.NewMultiaddr(fmt.Sprintf("/dns4/%s/tcp/%d", p.Host, p.Port))
}

// String renders a short, log-friendly description of the peer.
func (p Peer) String() string {
	return fmt.Sprintf("%s@%s", p.ID.String(), p.Addr())
}
