// Package node implements the protocol state machine that runs on every
// participant of the mesh.
package node

import (
	"log/slog"
	"maps"
	"slices"
	"strconv"

	"github.com/sarchlab/meshsim/packet"
	"github.com/sarchlab/meshsim/sim"
)

// Hook positions of a node.
var (
	// HookPosNeighbourFound is invoked when a new neighbour is recorded. The
	// item is the MAC of the neighbour.
	HookPosNeighbourFound = &sim.HookPos{Name: "NeighbourFound"}

	// HookPosClockAdopted is invoked when the node adopts a larger clock from
	// a neighbour. The item is the clock sync packet.
	HookPosClockAdopted = &sim.HookPos{Name: "ClockAdopted"}

	// HookPosLatencyMeasured is invoked when a heartbeat reply completes a
	// round trip. The item is the reply and the detail the round trip time.
	HookPosLatencyMeasured = &sim.HookPos{Name: "LatencyMeasured"}

	// HookPosPacketArrived is invoked when a data packet reaches its
	// destination.
	HookPosPacketArrived = &sim.HookPos{Name: "PacketArrived"}

	// HookPosPacketDropped is invoked when the node discards a packet. The
	// detail is the reason.
	HookPosPacketDropped = &sim.HookPos{Name: "PacketDropped"}

	// HookPosPacketMisdelivered is invoked when a packet that nothing handles
	// reaches its destination.
	HookPosPacketMisdelivered = &sim.HookPos{Name: "PacketMisdelivered"}
)

// Reasons reported with HookPosPacketDropped.
const (
	DropNoNeighbours          = "no neighbours"
	DropUnsolicitedReply      = "heartbeat reply without heartbeat"
	DropArrivedWithoutHandler = "arrived without handler"
)

// Presentation colors returned by BodyColor.
const (
	ColorUndiscovered = "#000"
	ColorMeasuring    = "#555"
	ColorLeader       = "#8F00FF"
	ColorLeaderBlink  = "#FF00FF"
	ColorFollower     = "#fff"
	ColorBlink        = "#f00"
)

type config struct {
	heartbeatStaleness int
	clockSeedRange     int
	updateRateRange    int
	blinkPulse         int
	blinkPeriod        float64
}

// A Node is a participant of the mesh. The scheduler appends to Incoming,
// calls Step once per tick, and drains Outgoing afterwards.
type Node struct {
	sim.HookableBase

	MAC  packet.MAC
	Meta any

	Incoming []*packet.Packet
	Outgoing []*packet.Packet

	Neighbours map[packet.MAC]bool

	// NeighbourLatencies holds the last measured round trip time in ticks.
	NeighbourLatencies map[packet.MAC]int

	// NeighbourLatencyHeartbeats holds the internal clock at which the last
	// heartbeat was sent to each neighbour.
	NeighbourLatencyHeartbeats map[packet.MAC]int

	DistributedClock   float64
	DistanceFromLeader float64
	InternalClock      int

	NeedsToSendClock bool
	RandomUpdateRate int

	Blink int

	rng    sim.Rand
	logger *slog.Logger
	cfg    config
}

// Name returns the MAC of the node.
func (n *Node) Name() string {
	return string(n.MAC)
}

// Address returns the MAC of the node.
func (n *Node) Address() packet.MAC {
	return n.MAC
}

// Deliver puts a packet into the incoming queue.
func (n *Node) Deliver(p *packet.Packet) {
	n.Incoming = append(n.Incoming, p)
}

// DrainOutgoing returns the outgoing queue and empties it.
func (n *Node) DrainOutgoing() []*packet.Packet {
	out := n.Outgoing
	n.Outgoing = nil

	return out
}

// RenewPackets replaces every queued packet with the result of f.
func (n *Node) RenewPackets(f func(*packet.Packet) *packet.Packet) {
	for i, p := range n.Incoming {
		n.Incoming[i] = f(p)
	}

	for i, p := range n.Outgoing {
		n.Outgoing[i] = f(p)
	}
}

// SetRand replaces the random source.
func (n *Node) SetRand(rng sim.Rand) {
	n.rng = rng
}

// Reset brings the node back to the state right after construction. The MAC,
// the meta data, and the update rate are kept.
func (n *Node) Reset() {
	n.Incoming = nil
	n.Outgoing = nil

	n.Neighbours = make(map[packet.MAC]bool)
	n.NeighbourLatencies = make(map[packet.MAC]int)
	n.NeighbourLatencyHeartbeats = make(map[packet.MAC]int)

	n.DistributedClock = float64(n.rng.IntN(n.cfg.clockSeedRange))
	n.DistanceFromLeader = 0
	n.InternalClock = 0
	n.NeedsToSendClock = true
	n.Blink = 0
}

// IsLeader returns true if the node believes its own clock is the clock of
// record.
func (n *Node) IsLeader() bool {
	return n.DistanceFromLeader == 0
}

// NodeName is displayed under the node. It is the distance from the leader,
// or empty for the leader itself.
func (n *Node) NodeName() string {
	if n.IsLeader() {
		return ""
	}

	return strconv.FormatFloat(n.DistanceFromLeader, 'f', -1, 64)
}

// BodyColor tells the presentation layer how far the node is in the
// discovery and synchronization process.
func (n *Node) BodyColor() string {
	switch {
	case len(n.Neighbours) == 0:
		return ColorUndiscovered
	case !n.allLatenciesKnown():
		return ColorMeasuring
	case n.IsLeader() && n.Blink > 0:
		return ColorLeaderBlink
	case n.IsLeader():
		return ColorLeader
	case n.Blink > 0:
		return ColorBlink
	default:
		return ColorFollower
	}
}

// ClientCount returns the number of queued packets.
func (n *Node) ClientCount() int {
	return len(n.Incoming) + len(n.Outgoing)
}

// SortedNeighbours returns the neighbours in address order.
func (n *Node) SortedNeighbours() []packet.MAC {
	return slices.Sorted(maps.Keys(n.Neighbours))
}

func (n *Node) allLatenciesKnown() bool {
	for mac := range n.Neighbours {
		if _, ok := n.NeighbourLatencies[mac]; !ok {
			return false
		}
	}

	return true
}

// State is a copy of the observable state of a node.
type State struct {
	MAC                packet.MAC
	Meta               any
	Neighbours         []packet.MAC
	NeighbourLatencies map[packet.MAC]int
	DistributedClock   float64
	DistanceFromLeader float64
	InternalClock      int
	NeedsToSendClock   bool
	RandomUpdateRate   int
	Blink              int
	QueuedPackets      int
	Name               string
	Color              string
}

// Snapshot copies the observable state of the node.
func (n *Node) Snapshot() State {
	return State{
		MAC:                n.MAC,
		Meta:               n.Meta,
		Neighbours:         n.SortedNeighbours(),
		NeighbourLatencies: maps.Clone(n.NeighbourLatencies),
		DistributedClock:   n.DistributedClock,
		DistanceFromLeader: n.DistanceFromLeader,
		InternalClock:      n.InternalClock,
		NeedsToSendClock:   n.NeedsToSendClock,
		RandomUpdateRate:   n.RandomUpdateRate,
		Blink:              n.Blink,
		QueuedPackets:      n.ClientCount(),
		Name:               n.NodeName(),
		Color:              n.BodyColor(),
	}
}
