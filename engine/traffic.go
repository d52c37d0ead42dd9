package engine

import (
	"fmt"

	"github.com/sarchlab/meshsim/packet"
	"github.com/sarchlab/meshsim/sim"
	"github.com/sarchlab/meshsim/topology"
)

// A Sender is a node that accepts application packets.
type Sender interface {
	Send(dst packet.MAC, payload any) (*packet.Packet, error)
}

// UniformTraffic lets every node send a packet to a random other node with a
// fixed probability per tick.
type UniformTraffic struct {
	Rate float64
	Rand sim.Rand
}

// Generate injects the packets of one tick.
func (g *UniformTraffic) Generate(now sim.VTimeInCycle, t *topology.Topology) {
	nodes := t.Nodes()
	if len(nodes) < 2 {
		return
	}

	for i, n := range nodes {
		sender, ok := n.(Sender)
		if !ok {
			continue
		}

		if g.Rand.Float64() >= g.Rate {
			continue
		}

		j := g.Rand.IntN(len(nodes) - 1)
		if j >= i {
			j++
		}

		payload := fmt.Sprintf("tick %d", now)
		_, _ = sender.Send(nodes[j].Address(), payload)
	}
}
