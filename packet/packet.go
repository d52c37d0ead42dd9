// Package packet defines the messages that nodes exchange in a mesh.
package packet

import (
	"fmt"

	"github.com/sarchlab/meshsim/sim"
)

// MAC is the address of a node.
type MAC string

// BroadcastMAC addresses every node that is directly reachable from the
// transmitter.
const BroadcastMAC MAC = "ff:ff:ff:ff:ff:ff"

// IsBroadcast returns true if the address is the broadcast address.
func (m MAC) IsBroadcast() bool {
	return m == BroadcastMAC
}

// Type tells the receiving node how to handle a packet.
type Type int

// The packet types understood by nodes.
const (
	TypeNeighbourCheck Type = iota
	TypeHeartbeat
	TypeHeartbeatReply
	TypeClockSync
	// TypeAskNeighboursIfClockCorrect is reserved. Nodes route it like any
	// other packet that they do not consume.
	TypeAskNeighboursIfClockCorrect
	TypeData
)

var typeNames = [...]string{
	TypeNeighbourCheck:              "NEIGHBOUR_CHECK",
	TypeHeartbeat:                   "HEARTBEAT",
	TypeHeartbeatReply:              "HEARTBEAT_REPLY",
	TypeClockSync:                   "CLOCK_SYNC",
	TypeAskNeighboursIfClockCorrect: "ASK_NEIGHBOURS_IF_CLOCK_CORRECT",
	TypeData:                        "DATA",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}

	return typeNames[t]
}

// IsControl returns true for the types that nodes consume themselves instead
// of routing.
func (t Type) IsControl() bool {
	switch t {
	case TypeNeighbourCheck, TypeHeartbeat, TypeHeartbeatReply, TypeClockSync:
		return true
	default:
		return false
	}
}

// A Packet is a message travelling through the mesh. The transmitter and
// receiver addresses describe the current hop and are rewritten at every hop.
// The source and destination addresses never change.
type Packet struct {
	ID string

	TransmitterAddress MAC
	ReceiverAddress    MAC
	SourceAddress      MAC
	DestinationAddress MAC

	Type Type

	// Only set on clock sync packets.
	DistributedClock   float64
	DistanceFromLeader float64

	Payload  any
	HopCount int
}

// Clone returns a copy of the packet with a new ID.
func (p *Packet) Clone() *Packet {
	cloned := *p
	cloned.ID = sim.GetIDGenerator().Generate()

	return &cloned
}

// IsBroadcast returns true if the packet is addressed to every neighbour of
// the transmitter.
func (p *Packet) IsBroadcast() bool {
	return p.ReceiverAddress.IsBroadcast()
}

func (p *Packet) String() string {
	return fmt.Sprintf("%s[%s] %s->%s (%s->%s)",
		p.Type, p.ID,
		p.TransmitterAddress, p.ReceiverAddress,
		p.SourceAddress, p.DestinationAddress)
}
