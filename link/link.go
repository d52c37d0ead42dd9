// Package link models the lossy channel between two nodes.
package link

import (
	"math"

	"github.com/sarchlab/meshsim/packet"
	"github.com/sarchlab/meshsim/sim"
)

// contentionBase is the per-step decay applied to the delivery probability
// once the packet volume exceeds the bandwidth.
const contentionBase = 0.999

// A Transit records a packet that is crossing a link.
type Transit struct {
	Packet     *packet.Packet
	From, To   packet.MAC
	DepartTick sim.VTimeInCycle
	ArriveTick sim.VTimeInCycle
}

// A Link connects two nodes. Whether a packet makes it across and how long it
// takes is decided by the link.
type Link struct {
	// Quality in percent. It is 100 minus the expected packet loss.
	Quality float64

	// Bandwidth is the number of packets that can cross the link in one tick
	// without contention.
	Bandwidth int

	// Channel 0 is a medium of its own. Links that share a non-zero channel
	// share contention.
	Channel int

	// Latency is the number of ticks it takes to cross the link.
	Latency int

	// InTransit is owned by the scheduler. The link never reads it.
	InTransit map[string]*Transit

	rng sim.Rand
}

// TransmitProbability returns the chance that one packet makes it across when
// packetCount packets are competing for the link in the same tick.
func (l *Link) TransmitProbability(packetCount int) float64 {
	excess := max(0, packetCount-l.Bandwidth)
	n := 100 * float64(excess) / float64(l.Bandwidth)

	return l.Quality / 100 * math.Pow(contentionBase, n)
}

// Transmit decides if the packet makes it across.
func (l *Link) Transmit(_ *packet.Packet, packetCount int) bool {
	return l.TransmitProbability(packetCount) > l.rng.Float64()
}

// GetLatency returns the number of ticks the packet needs to cross the link.
func (l *Link) GetLatency(_ *packet.Packet, _ int) int {
	return l.Latency
}

// Reset clears link-local transient state. The model keeps none.
func (l *Link) Reset() {}

// Label is displayed on top of the link.
func (l *Link) Label() string {
	return ""
}

// ChannelID returns the medium of the link.
func (l *Link) ChannelID() int {
	return l.Channel
}

// Transits returns the in-transit table, creating it if needed.
func (l *Link) Transits() map[string]*Transit {
	if l.InTransit == nil {
		l.InTransit = make(map[string]*Transit)
	}

	return l.InTransit
}

// SetRand replaces the random source. It is used after a link is created by
// field copy.
func (l *Link) SetRand(rng sim.Rand) {
	l.rng = rng
}
