package topology

import (
	"fmt"

	"github.com/sarchlab/meshsim/link"
	"github.com/sarchlab/meshsim/node"
	"github.com/sarchlab/meshsim/packet"
	"github.com/sarchlab/meshsim/sim"
)

// A Factory creates the nodes and links of generated and loaded topologies.
type Factory struct {
	Rand        sim.Rand
	NodeBuilder node.Builder
	LinkBuilder link.Builder

	// RandomLinks draws the quality and the latency of every new link.
	RandomLinks bool
}

// MakeFactory creates a factory with default builders.
func MakeFactory(rng sim.Rand) Factory {
	return Factory{
		Rand:        rng,
		NodeBuilder: node.MakeBuilder(),
		LinkBuilder: link.MakeBuilder(),
	}
}

// NewNode creates a node.
func (f Factory) NewNode(mac packet.MAC, meta any) (*node.Node, error) {
	return f.NodeBuilder.WithRand(f.Rand).WithMeta(meta).Build(mac)
}

// NewLink creates a link.
func (f Factory) NewLink() (*link.Link, error) {
	return f.linkBuilder().Build()
}

func (f Factory) linkBuilder() link.Builder {
	b := f.LinkBuilder.WithRand(f.Rand)
	if f.RandomLinks {
		b = b.WithRandomQuality(f.Rand).WithRandomLatency(f.Rand)
	}

	return b
}

// MACFromIndex returns a locally administered address derived from i.
func MACFromIndex(i int) packet.MAC {
	return packet.MAC(fmt.Sprintf("02:00:00:%02x:%02x:%02x",
		(i>>16)&0xff, (i>>8)&0xff, i&0xff))
}
