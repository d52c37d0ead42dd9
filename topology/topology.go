// Package topology stores the nodes and links of a mesh.
package topology

import (
	"errors"
	"fmt"
	"slices"

	"github.com/sarchlab/meshsim/link"
	"github.com/sarchlab/meshsim/migrate"
	"github.com/sarchlab/meshsim/packet"
	"github.com/sarchlab/meshsim/sim"
)

// Errors returned when building a topology.
var (
	ErrDuplicateNode = errors.New("node already exists")
	ErrUnknownNode   = errors.New("node does not exist")
	ErrSelfLink      = errors.New("cannot link a node to itself")
	ErrDuplicateLink = errors.New("nodes are already linked")
	ErrAddressChange = errors.New("replacement changed the node address")
)

// A Node is a participant of the mesh as seen by the topology and the
// scheduler.
type Node interface {
	sim.Named
	sim.Hookable

	Address() packet.MAC
	Step()
	Reset()
	Deliver(p *packet.Packet)
	DrainOutgoing() []*packet.Packet
	RenewPackets(f func(*packet.Packet) *packet.Packet)
}

// A Link carries packets between two nodes.
type Link interface {
	Transmit(p *packet.Packet, packetCount int) bool
	GetLatency(p *packet.Packet, packetCount int) int
	Reset()
	ChannelID() int
	Transits() map[string]*link.Transit
}

// An Edge is a link together with the two nodes it connects.
type Edge struct {
	A, B packet.MAC
	Link Link
}

// Other returns the end of the edge that is not mac.
func (e *Edge) Other(mac packet.MAC) packet.MAC {
	if e.A == mac {
		return e.B
	}

	return e.A
}

type pairKey struct {
	a, b packet.MAC
}

func makePairKey(a, b packet.MAC) pairKey {
	if b < a {
		a, b = b, a
	}

	return pairKey{a: a, b: b}
}

// A Topology owns the nodes and links of a mesh.
type Topology struct {
	nodes     []Node
	byMAC     map[packet.MAC]int
	edges     []*Edge
	pairs     map[pairKey]*Edge
	adjacency map[packet.MAC][]*Edge
	registry  *migrate.Registry
}

// New creates an empty topology.
func New() *Topology {
	return &Topology{
		byMAC:     make(map[packet.MAC]int),
		pairs:     make(map[pairKey]*Edge),
		adjacency: make(map[packet.MAC][]*Edge),
		registry:  migrate.NewRegistry(),
	}
}

// Registry returns the migration strategies used by the Replace methods.
func (t *Topology) Registry() *migrate.Registry {
	return t.registry
}

// AddNode adds a node.
func (t *Topology) AddNode(n Node) error {
	mac := n.Address()
	if _, ok := t.byMAC[mac]; ok {
		return fmt.Errorf("add node %s: %w", mac, ErrDuplicateNode)
	}

	t.byMAC[mac] = len(t.nodes)
	t.nodes = append(t.nodes, n)

	return nil
}

// AddLink connects two existing nodes.
func (t *Topology) AddLink(a, b packet.MAC, l Link) error {
	for _, mac := range []packet.MAC{a, b} {
		if _, ok := t.byMAC[mac]; !ok {
			return fmt.Errorf("link %s-%s: %s: %w", a, b, mac, ErrUnknownNode)
		}
	}

	if a == b {
		return fmt.Errorf("link %s-%s: %w", a, b, ErrSelfLink)
	}

	key := makePairKey(a, b)
	if _, ok := t.pairs[key]; ok {
		return fmt.Errorf("link %s-%s: %w", a, b, ErrDuplicateLink)
	}

	e := &Edge{A: a, B: b, Link: l}
	t.edges = append(t.edges, e)
	t.pairs[key] = e
	t.adjacency[a] = append(t.adjacency[a], e)
	t.adjacency[b] = append(t.adjacency[b], e)

	return nil
}

// Node returns the node with the given address.
func (t *Topology) Node(mac packet.MAC) (Node, bool) {
	i, ok := t.byMAC[mac]
	if !ok {
		return nil, false
	}

	return t.nodes[i], true
}

// Nodes returns all the nodes in the order they were added.
func (t *Topology) Nodes() []Node {
	return slices.Clone(t.nodes)
}

// Links returns all the edges in the order they were added.
func (t *Topology) Links() []*Edge {
	return slices.Clone(t.edges)
}

// LinkBetween returns the edge connecting a and b.
func (t *Topology) LinkBetween(a, b packet.MAC) (*Edge, bool) {
	e, ok := t.pairs[makePairKey(a, b)]
	return e, ok
}

// LinksOf returns the edges attached to a node.
func (t *Topology) LinksOf(mac packet.MAC) []*Edge {
	return slices.Clone(t.adjacency[mac])
}

// Reset resets every node and link and forgets the packets in transit.
func (t *Topology) Reset() {
	for _, n := range t.nodes {
		n.Reset()
	}

	for _, e := range t.edges {
		e.Link.Reset()
		clear(e.Link.Transits())
	}
}
