// Package wire defines the logical request/reply envelope exchanged
// between peers and its JSON encoding — the Go analogue of
// original_source/dht.py's literal json.dumps/json.loads messages.
//
// Request and Reply are modeled as tagged unions (spec.md §9's
// "dynamic message payloads" re-architecture point): a Type enum plus
// one populated typed payload, decoded once at the Dispatcher
// boundary instead of being inspected ad hoc downstream.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/PirosB3/DHT/pkg/kadid"
	"github.com/PirosB3/DHT/pkg/peerinfo"
)

// Type identifies the three RPCs of the overlay.
type Type string

const (
	FindNode   Type = "FIND_NODE"
	StoreValue Type = "STORE_VALUE"
	GetValue   Type = "GET_VALUE"
)

// NodeTriple is the (id, host, port) wire shape for a peer reference.
type NodeTriple struct {
	UID  kadid.ID `json:"uid"`
	Host string   `json:"host"`
	Port uint16   `json:"port"`
}

// ToPeer converts a wire triple into a peerinfo.Peer.
func (n NodeTriple) ToPeer() peerinfo.Peer {
	return peerinfo.New(n.UID, n.Host, n.Port)
}

// FromPeer converts a peerinfo.Peer into its wire triple.
func FromPeer(p peerinfo.Peer) NodeTriple {
	return NodeTriple{UID: p.ID, Host: p.Host, Port: p.Port}
}

// FindNodeValue is the FIND_NODE request payload: the target id.
type FindNodeValue struct {
	Target kadid.ID `json:"target"`
}

// StoreValueValue is the STORE_VALUE request payload.
type StoreValueValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GetValueValue is the GET_VALUE request payload: the application key
// plus the routable target id derived from it.
type GetValueValue struct {
	DataKey string   `json:"data_key"`
	Key     kadid.ID `json:"key"`
}

// Request is the envelope every outbound call sends.
type Request struct {
	From NodeTriple `json:"from"`
	Type Type       `json:"type"`

	FindNode   *FindNodeValue   `json:"find_node,omitempty"`
	StoreValue *StoreValueValue `json:"store_value,omitempty"`
	GetValue   *GetValueValue   `json:"get_value,omitempty"`
}

// Reply is the envelope every handler sends back. At most one of
// Value/Nodes/Result/Error is populated, per the RPC that produced it.
type Reply struct {
	Value  *string      `json:"value,omitempty"`
	Nodes  []NodeTriple `json:"nodes,omitempty"`
	Result string       `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// Encode serializes v (a *Request or *Reply) to its wire form.
func Encode(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	return b, nil
}

// DecodeRequest parses an inbound request envelope.
func DecodeRequest(b []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(b, &req); err != nil {
		return nil, fmt.Errorf("wire: decode request: %w", err)
	}
	return &req, nil
}

// DecodeReply parses a reply envelope.
func DecodeReply(b []byte) (*Reply, error) {
	var rep Reply
	if err := json.Unmarshal(b, &rep); err != nil {
		return nil, fmt.Errorf("wire: decode reply: %w", err)
	}
	return &rep, nil
}

// NewFindNode builds a FIND_NODE request.
func NewFindNode(from peerinfo.Peer, target kadid.ID) *Request {
	return &Request{
		From:     FromPeer(from),
		Type:     FindNode,
		FindNode: &FindNodeValue{Target: target},
	}
}

// NewStoreValue builds a STORE_VALUE request.
func NewStoreValue(from peerinfo.Peer, key, value string) *Request {
	return &Request{
		From:       FromPeer(from),
		Type:       StoreValue,
		StoreValue: &StoreValueValue{Key: key, Value: value},
	}
}

// NewGetValue builds a GET_VALUE request.
func NewGetValue(from peerinfo.Peer, dataKey string, target kadid.ID) *Request {
	return &Request{
		From:     FromPeer(from),
		Type:     GetValue,
		GetValue: &GetValueValue{DataKey: dataKey, Key: target},
	}
}

// NodesReply builds a {nodes: [...]} reply.
func NodesReply(peers []peerinfo.Peer) *Reply {
	nodes := make([]NodeTriple, 0, len(peers))
	for _, p := range peers {
		nodes = append(nodes, FromPeer(p))
	}
	return &Reply{Nodes: nodes}
}

// ValueReply builds a {value: ...} reply.
func ValueReply(v string) *Reply {
	return &Reply{Value: &v}
}

// OKReply builds the {result: "OK"} reply STORE_VALUE always sends.
func OKReply() *Reply {
	return &Reply{Result: "OK"}
}

// ErrorReply builds a generic error reply for a malformed envelope.
func ErrorReply(msg string) *Reply {
	return &Reply{Error: msg}
}
