package node

import (
	"errors"
	"math"

	"github.com/sarchlab/meshsim/packet"
	"github.com/sarchlab/meshsim/sim"
)

// ErrSendToSelf is returned when a node is asked to send data to itself.
var ErrSendToSelf = errors.New("cannot send a packet to the sending node")

// Step advances the node by one tick.
func (n *Node) Step() {
	if len(n.Neighbours) == 0 {
		n.broadcastNeighbourCheck()
	}

	n.sendHeartbeats()
	n.updateBlink()

	clockOwed := false

	if n.RandomUpdateRate > 0 &&
		math.Mod(n.DistributedClock, float64(n.RandomUpdateRate)) == 0 {
		n.broadcastNeighbourCheck()
		clockOwed = true
	}

	if n.processIncoming() {
		clockOwed = true
	}

	if clockOwed {
		n.broadcastClock()
	}

	n.DistributedClock++
	n.InternalClock++
}

// Send queues an application packet. It is routed during the next step.
func (n *Node) Send(dst packet.MAC, payload any) (*packet.Packet, error) {
	if dst == n.MAC {
		return nil, ErrSendToSelf
	}

	p, err := packet.MakeBuilder().
		WithTransmitter(n.MAC).
		WithReceiver(n.MAC).
		WithSource(n.MAC).
		WithDestination(dst).
		WithType(packet.TypeData).
		WithPayload(payload).
		Build()
	if err != nil {
		return nil, err
	}

	n.Incoming = append(n.Incoming, p)

	return p, nil
}

func (n *Node) broadcastNeighbourCheck() {
	p := packet.New(n.MAC, packet.BroadcastMAC, n.MAC, packet.BroadcastMAC)
	p.Type = packet.TypeNeighbourCheck

	n.Outgoing = append(n.Outgoing, p)
}

func (n *Node) broadcastClock() {
	p := packet.New(n.MAC, packet.BroadcastMAC, n.MAC, packet.BroadcastMAC)
	p.Type = packet.TypeClockSync
	p.DistributedClock = n.DistributedClock
	p.DistanceFromLeader = n.DistanceFromLeader

	n.Outgoing = append(n.Outgoing, p)
}

func (n *Node) sendHeartbeats() {
	for _, mac := range n.SortedNeighbours() {
		sent, ok := n.NeighbourLatencyHeartbeats[mac]
		if ok && n.InternalClock <= sent+n.cfg.heartbeatStaleness {
			continue
		}

		n.NeighbourLatencyHeartbeats[mac] = n.InternalClock

		p := packet.New(n.MAC, mac, n.MAC, mac)
		p.Type = packet.TypeHeartbeat
		n.Outgoing = append(n.Outgoing, p)
	}
}

func (n *Node) updateBlink() {
	if n.Blink > 0 {
		n.Blink--
	}

	if math.Mod(n.DistributedClock, n.cfg.blinkPeriod) == 0 {
		n.Blink = n.cfg.blinkPulse
	}
}

// processIncoming drains the incoming queue. It returns true if a clock
// broadcast is owed.
func (n *Node) processIncoming() bool {
	incoming := n.Incoming
	n.Incoming = nil

	clockOwed := false

	for _, p := range incoming {
		switch p.Type {
		case packet.TypeNeighbourCheck:
			n.handleNeighbourCheck(p)
		case packet.TypeClockSync:
			if n.handleClockSync(p) {
				clockOwed = true
			}
		case packet.TypeHeartbeat:
			n.handleHeartbeat(p)
		case packet.TypeHeartbeatReply:
			if n.handleHeartbeatReply(p) {
				clockOwed = true
			}
		default:
			n.handleTransit(p)
		}
	}

	return clockOwed
}

func (n *Node) handleNeighbourCheck(p *packet.Packet) {
	mac := p.TransmitterAddress
	if mac == n.MAC || n.Neighbours[mac] {
		return
	}

	n.Neighbours[mac] = true
	n.NeedsToSendClock = true

	n.InvokeHook(sim.HookCtx{
		Domain: n,
		Pos:    HookPosNeighbourFound,
		Item:   mac,
	})
}

func (n *Node) handleClockSync(p *packet.Packet) bool {
	latency, ok := n.NeighbourLatencies[p.TransmitterAddress]
	if !ok {
		return false
	}

	halfTrip := float64(latency) / 2
	candidate := p.DistributedClock + halfTrip

	if candidate <= n.DistributedClock {
		return false
	}

	n.DistributedClock = candidate
	n.DistanceFromLeader = p.DistanceFromLeader + halfTrip

	n.InvokeHook(sim.HookCtx{
		Domain: n,
		Pos:    HookPosClockAdopted,
		Item:   p,
		Detail: candidate,
	})

	return true
}

func (n *Node) handleHeartbeat(p *packet.Packet) {
	reply := packet.New(
		n.MAC, p.TransmitterAddress,
		n.MAC, p.TransmitterAddress,
	)
	reply.Type = packet.TypeHeartbeatReply

	n.Outgoing = append(n.Outgoing, reply)
}

func (n *Node) handleHeartbeatReply(p *packet.Packet) bool {
	mac := p.TransmitterAddress

	sent, ok := n.NeighbourLatencyHeartbeats[mac]
	if !ok {
		n.drop(p, DropUnsolicitedReply)
		return false
	}

	rtt := n.InternalClock - sent
	n.NeighbourLatencies[mac] = rtt

	n.InvokeHook(sim.HookCtx{
		Domain: n,
		Pos:    HookPosLatencyMeasured,
		Item:   p,
		Detail: rtt,
	})

	if n.allLatenciesKnown() && n.NeedsToSendClock {
		n.NeedsToSendClock = false
		return true
	}

	return false
}

func (n *Node) handleTransit(p *packet.Packet) {
	if p.DestinationAddress == n.MAC {
		n.handleArrival(p)
		return
	}

	if len(n.Neighbours) == 0 {
		n.drop(p, DropNoNeighbours)
		return
	}

	nextHop := p.DestinationAddress
	if !n.Neighbours[nextHop] {
		others := n.SortedNeighbours()
		nextHop = others[n.rng.IntN(len(others))]
	}

	p.TransmitterAddress = n.MAC
	p.ReceiverAddress = nextHop
	p.HopCount++

	n.Outgoing = append(n.Outgoing, p)
}

func (n *Node) handleArrival(p *packet.Packet) {
	if p.Type == packet.TypeData {
		n.logger.Debug("packet arrived",
			"node", n.MAC, "packet", p.ID, "hops", p.HopCount)
		n.InvokeHook(sim.HookCtx{
			Domain: n,
			Pos:    HookPosPacketArrived,
			Item:   p,
		})

		return
	}

	n.logger.Warn("packet arrived at its destination without a handler",
		"node", n.MAC, "packet", p.ID, "type", p.Type)
	n.InvokeHook(sim.HookCtx{
		Domain: n,
		Pos:    HookPosPacketMisdelivered,
		Item:   p,
	})
	n.drop(p, DropArrivedWithoutHandler)
}

func (n *Node) drop(p *packet.Packet, reason string) {
	n.logger.Debug("packet dropped",
		"node", n.MAC, "packet", p.ID, "reason", reason)
	n.InvokeHook(sim.HookCtx{
		Domain: n,
		Pos:    HookPosPacketDropped,
		Item:   p,
		Detail: reason,
	})
}
