package tracing

import (
	. "github.com/onsi/gomega"

	"github.com/sarchlab/meshsim/engine"
	"github.com/sarchlab/meshsim/link"
	"github.com/sarchlab/meshsim/node"
	"github.com/sarchlab/meshsim/sim"
	"github.com/sarchlab/meshsim/topology"
)

func twoNodeEngine(quality float64) (*engine.Engine, *node.Node, *node.Node) {
	rng := sim.NewRand(3)
	topo := topology.New()

	a, err := node.MakeBuilder().WithRand(rng).Build("a")
	Expect(err).NotTo(HaveOccurred())
	b, err := node.MakeBuilder().WithRand(rng).Build("b")
	Expect(err).NotTo(HaveOccurred())

	a.RandomUpdateRate = 0
	b.RandomUpdateRate = 0

	l, err := link.MakeBuilder().
		WithQuality(quality).
		WithLatency(1).
		WithRand(rng).
		Build()
	Expect(err).NotTo(HaveOccurred())

	Expect(topo.AddNode(a)).To(Succeed())
	Expect(topo.AddNode(b)).To(Succeed())
	Expect(topo.AddLink("a", "b", l)).To(Succeed())

	e, err := engine.MakeBuilder().WithTopology(topo).Build()
	Expect(err).NotTo(HaveOccurred())

	return e, a, b
}

func tickN(e *engine.Engine, n int) {
	for range n {
		e.Tick()
	}
}
