// Package engine advances a mesh topology tick by tick.
package engine

import (
	"context"
	"log"
	"log/slog"
	"sync"

	"github.com/sarchlab/meshsim/link"
	"github.com/sarchlab/meshsim/packet"
	"github.com/sarchlab/meshsim/sim"
	"github.com/sarchlab/meshsim/topology"
)

// Hook positions of the engine.
var (
	// HookPosBeforeTick is invoked before a tick starts. The item is the
	// tick.
	HookPosBeforeTick = &sim.HookPos{Name: "BeforeTick"}

	// HookPosAfterTick is invoked after every node has stepped and every
	// outgoing packet has been handed to a link. The item is the tick.
	HookPosAfterTick = &sim.HookPos{Name: "AfterTick"}

	// HookPosPacketSent is invoked when a packet enters a link. The item is
	// the *link.Transit.
	HookPosPacketSent = &sim.HookPos{Name: "PacketSent"}

	// HookPosPacketLost is invoked when a link fails to carry a packet. The
	// item is the packet and the detail the *topology.Edge.
	HookPosPacketLost = &sim.HookPos{Name: "PacketLost"}

	// HookPosPacketDelivered is invoked when a packet is put into the
	// incoming queue of a node. The item is the *link.Transit.
	HookPosPacketDelivered = &sim.HookPos{Name: "PacketDelivered"}

	// HookPosPacketUnroutable is invoked when no link connects the
	// transmitter and the receiver of a packet. The item is the packet.
	HookPosPacketUnroutable = &sim.HookPos{Name: "PacketUnroutable"}
)

// Stats counts what happened to packets so far.
type Stats struct {
	Ticks      uint64
	Sent       uint64
	Lost       uint64
	Delivered  uint64
	Unroutable uint64
	InFlight   int
}

// A TrafficGenerator injects application packets at the beginning of every
// tick.
type TrafficGenerator interface {
	Generate(now sim.VTimeInCycle, t *topology.Topology)
}

// An Engine steps every node of a topology once per tick and moves packets
// through links.
type Engine struct {
	sim.HookableBase

	topology *topology.Topology
	rng      sim.Rand
	shuffle  bool
	traffic  TrafficGenerator
	logger   *slog.Logger

	timeLock sync.RWMutex
	time     sim.VTimeInCycle
	queue    *arrivalQueue

	statsLock sync.Mutex
	stats     Stats

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	// stateLock is held for writing while a tick changes nodes and links.
	stateLock sync.RWMutex

	singleRunLock sync.Mutex
}

// Name returns the name of the engine.
func (e *Engine) Name() string {
	return "Engine"
}

// Topology returns the topology that the engine advances.
func (e *Engine) Topology() *topology.Topology {
	return e.topology
}

// CurrentTime returns the tick that runs next.
func (e *Engine) CurrentTime() sim.VTimeInCycle {
	return e.readNow()
}

func (e *Engine) readNow() sim.VTimeInCycle {
	e.timeLock.RLock()
	t := e.time
	e.timeLock.RUnlock()

	return t
}

func (e *Engine) writeNow(t sim.VTimeInCycle) {
	e.timeLock.Lock()
	e.time = t
	e.timeLock.Unlock()
}

// Stats returns a copy of the packet counters.
func (e *Engine) Stats() Stats {
	e.statsLock.Lock()
	s := e.stats
	e.statsLock.Unlock()

	s.InFlight = e.queue.Len()

	return s
}

func (e *Engine) count(f func(s *Stats)) {
	e.statsLock.Lock()
	f(&e.stats)
	e.statsLock.Unlock()
}

// Run advances the given number of ticks. It runs until the context is done
// if ticks is not positive.
func (e *Engine) Run(ctx context.Context, ticks int) error {
	e.singleRunLock.Lock()
	defer e.singleRunLock.Unlock()

	for i := 0; ticks <= 0 || i < ticks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		e.Tick()
	}

	return nil
}

// Tick advances the topology by one tick.
func (e *Engine) Tick() {
	e.pauseLock.Lock()
	defer e.pauseLock.Unlock()

	now := e.readNow()

	hookCtx := sim.HookCtx{
		Domain: e,
		Pos:    HookPosBeforeTick,
		Item:   now,
	}
	e.InvokeHook(hookCtx)

	e.advance(now)

	hookCtx.Pos = HookPosAfterTick
	e.InvokeHook(hookCtx)
}

func (e *Engine) advance(now sim.VTimeInCycle) {
	e.stateLock.Lock()
	defer e.stateLock.Unlock()

	e.deliver(now)

	if e.traffic != nil {
		e.traffic.Generate(now, e.topology)
	}

	nodes := e.stepOrder()
	for _, n := range nodes {
		n.Step()
	}

	e.transmit(now, nodes)

	e.count(func(s *Stats) { s.Ticks++ })
	e.writeNow(now + 1)
}

func (e *Engine) stepOrder() []topology.Node {
	nodes := e.topology.Nodes()
	if !e.shuffle {
		return nodes
	}

	for i := len(nodes) - 1; i > 0; i-- {
		j := e.rng.IntN(i + 1)
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}

	return nodes
}

func (e *Engine) deliver(now sim.VTimeInCycle) {
	for e.queue.Len() > 0 && e.queue.Peek().transit.ArriveTick <= now {
		a := e.queue.Pop()

		transits := a.edge.Link.Transits()
		if transits[a.transit.Packet.ID] != a.transit {
			continue
		}

		delete(transits, a.transit.Packet.ID)

		n, ok := e.topology.Node(a.transit.To)
		if !ok {
			e.unroutable(a.transit.Packet)
			continue
		}

		n.Deliver(a.transit.Packet)
		e.count(func(s *Stats) { s.Delivered++ })
		e.InvokeHook(sim.HookCtx{
			Domain: e,
			Pos:    HookPosPacketDelivered,
			Item:   a.transit,
		})
	}
}

type attempt struct {
	edge     *topology.Edge
	packet   *packet.Packet
	from, to packet.MAC
}

func (e *Engine) transmit(now sim.VTimeInCycle, nodes []topology.Node) {
	attempts := e.collectAttempts(nodes)
	contention := e.contention(attempts)

	for _, a := range attempts {
		packetCount := contention(a.edge)

		if !a.edge.Link.Transmit(a.packet, packetCount) {
			e.count(func(s *Stats) { s.Lost++ })
			e.InvokeHook(sim.HookCtx{
				Domain: e,
				Pos:    HookPosPacketLost,
				Item:   a.packet,
				Detail: a.edge,
			})

			continue
		}

		latency := a.edge.Link.GetLatency(a.packet, packetCount)
		if latency < 1 {
			log.Panicf("link %s-%s returned latency %d, packets cannot "+
				"arrive in the tick they depart", a.edge.A, a.edge.B, latency)
		}

		transit := &link.Transit{
			Packet:     a.packet,
			From:       a.from,
			To:         a.to,
			DepartTick: now,
			ArriveTick: now + sim.VTimeInCycle(latency),
		}

		a.edge.Link.Transits()[a.packet.ID] = transit
		e.queue.Push(transit, a.edge)

		e.count(func(s *Stats) { s.Sent++ })
		e.InvokeHook(sim.HookCtx{
			Domain: e,
			Pos:    HookPosPacketSent,
			Item:   transit,
		})
	}
}

func (e *Engine) collectAttempts(nodes []topology.Node) []attempt {
	var attempts []attempt

	for _, n := range nodes {
		from := n.Address()

		for _, p := range n.DrainOutgoing() {
			if !p.IsBroadcast() {
				edge, ok := e.topology.LinkBetween(from, p.ReceiverAddress)
				if !ok {
					e.unroutable(p)
					continue
				}

				attempts = append(attempts, attempt{
					edge: edge, packet: p, from: from, to: p.ReceiverAddress,
				})

				continue
			}

			edges := e.topology.LinksOf(from)
			if len(edges) == 0 {
				e.unroutable(p)
				continue
			}

			for i, edge := range edges {
				copied := p
				if i > 0 {
					copied = p.Clone()
				}

				attempts = append(attempts, attempt{
					edge: edge, packet: copied, from: from, to: edge.Other(from),
				})
			}
		}
	}

	return attempts
}

// contention returns the number of packets competing with a packet on the
// given edge. Links that share a non-zero channel compete with each other.
func (e *Engine) contention(attempts []attempt) func(*topology.Edge) int {
	perEdge := make(map[*topology.Edge]int)
	perChannel := make(map[int]int)

	for _, a := range attempts {
		perEdge[a.edge]++

		if ch := a.edge.Link.ChannelID(); ch != 0 {
			perChannel[ch]++
		}
	}

	return func(edge *topology.Edge) int {
		if ch := edge.Link.ChannelID(); ch != 0 {
			return perChannel[ch]
		}

		return perEdge[edge]
	}
}

func (e *Engine) unroutable(p *packet.Packet) {
	e.logger.Debug("packet unroutable",
		"packet", p.ID,
		"from", p.TransmitterAddress,
		"to", p.ReceiverAddress)

	e.count(func(s *Stats) { s.Unroutable++ })
	e.InvokeHook(sim.HookCtx{
		Domain: e,
		Pos:    HookPosPacketUnroutable,
		Item:   p,
	})
}

// Inspect runs f while no tick is changing the topology. Use it to read node
// and link state from another goroutine. Hooks invoked in the middle of a tick
// already run on the ticking goroutine and must not call Inspect.
func (e *Engine) Inspect(f func()) {
	e.stateLock.RLock()
	defer e.stateLock.RUnlock()

	f()
}

// Pause prevents the engine from running more ticks.
func (e *Engine) Pause() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if e.isPaused {
		return
	}

	e.pauseLock.Lock()
	e.isPaused = true
}

// Continue allows the engine to run more ticks.
func (e *Engine) Continue() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if !e.isPaused {
		return
	}

	e.pauseLock.Unlock()
	e.isPaused = false
}

// IsPaused returns true if the engine is paused.
func (e *Engine) IsPaused() bool {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	return e.isPaused
}
