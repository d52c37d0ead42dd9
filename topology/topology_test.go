package topology

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/meshsim/link"
	"github.com/sarchlab/meshsim/migrate"
	"github.com/sarchlab/meshsim/node"
	"github.com/sarchlab/meshsim/packet"
	"github.com/sarchlab/meshsim/sim"
)

func connected(t *Topology) bool {
	nodes := t.Nodes()
	if len(nodes) == 0 {
		return true
	}

	seen := map[packet.MAC]bool{nodes[0].Address(): true}
	queue := []packet.MAC{nodes[0].Address()}

	for len(queue) > 0 {
		mac := queue[0]
		queue = queue[1:]

		for _, e := range t.LinksOf(mac) {
			other := e.Other(mac)
			if !seen[other] {
				seen[other] = true
				queue = append(queue, other)
			}
		}
	}

	return len(seen) == len(nodes)
}

var _ = Describe("Topology", func() {
	var (
		f    Factory
		topo *Topology
		a, b *node.Node
	)

	BeforeEach(func() {
		f = MakeFactory(sim.NewRand(1))
		topo = New()

		var err error
		a, err = f.NewNode("a", nil)
		Expect(err).NotTo(HaveOccurred())
		b, err = f.NewNode("b", nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(topo.AddNode(a)).To(Succeed())
		Expect(topo.AddNode(b)).To(Succeed())
	})

	newLink := func() *link.Link {
		l, err := f.NewLink()
		Expect(err).NotTo(HaveOccurred())

		return l
	}

	It("should keep nodes in insertion order", func() {
		nodes := topo.Nodes()

		Expect(nodes).To(HaveLen(2))
		Expect(nodes[0].Address()).To(Equal(packet.MAC("a")))
		Expect(nodes[1].Address()).To(Equal(packet.MAC("b")))

		n, ok := topo.Node("b")
		Expect(ok).To(BeTrue())
		Expect(n).To(BeIdenticalTo(b))

		_, ok = topo.Node("c")
		Expect(ok).To(BeFalse())
	})

	It("should reject a duplicated node", func() {
		err := topo.AddNode(a)

		Expect(errors.Is(err, ErrDuplicateNode)).To(BeTrue())
	})

	It("should find a link from either end", func() {
		l := newLink()
		Expect(topo.AddLink("a", "b", l)).To(Succeed())

		e, ok := topo.LinkBetween("b", "a")
		Expect(ok).To(BeTrue())
		Expect(e.Link).To(BeIdenticalTo(l))
		Expect(e.Other("a")).To(Equal(packet.MAC("b")))
		Expect(e.Other("b")).To(Equal(packet.MAC("a")))
		Expect(topo.LinksOf("a")).To(ConsistOf(e))
		Expect(topo.LinksOf("b")).To(ConsistOf(e))
		Expect(topo.Links()).To(ConsistOf(e))
	})

	DescribeTable("should reject bad links",
		func(x, y packet.MAC, want error) {
			Expect(topo.AddLink("a", "b", newLink())).To(Succeed())

			err := topo.AddLink(x, y, newLink())

			Expect(errors.Is(err, want)).To(BeTrue())
		},
		Entry("unknown node", packet.MAC("a"), packet.MAC("z"), ErrUnknownNode),
		Entry("self link", packet.MAC("a"), packet.MAC("a"), ErrSelfLink),
		Entry("duplicate", packet.MAC("b"), packet.MAC("a"), ErrDuplicateLink),
	)

	It("should reset nodes and forget packets in transit", func() {
		l := newLink()
		Expect(topo.AddLink("a", "b", l)).To(Succeed())

		a.Neighbours["b"] = true
		a.DistanceFromLeader = 4
		p := packet.New("a", "b", "a", "b")
		l.Transits()[p.ID] = &link.Transit{Packet: p, From: "a", To: "b"}

		topo.Reset()

		Expect(a.Neighbours).To(BeEmpty())
		Expect(a.DistanceFromLeader).To(BeZero())
		Expect(l.InTransit).To(BeEmpty())
	})

	Context("replacement", func() {
		var l *link.Link

		BeforeEach(func() {
			l = newLink()
			Expect(topo.AddLink("a", "b", l)).To(Succeed())
		})

		It("should carry node state into the new nodes", func() {
			a.Neighbours["b"] = true
			a.DistributedClock = 1234
			a.Deliver(packet.New("b", "a", "b", "a"))

			err := topo.ReplaceNodes(func(prev Node) (Node, error) {
				return f.NewNode(prev.Address(), nil)
			})
			Expect(err).NotTo(HaveOccurred())

			n, _ := topo.Node("a")
			Expect(n).NotTo(BeIdenticalTo(a))

			replaced := n.(*node.Node)
			Expect(replaced.DistributedClock).To(Equal(1234.0))
			Expect(replaced.Neighbours).To(HaveKey(packet.MAC("b")))
			Expect(replaced.Incoming).To(HaveLen(1))
		})

		It("should honour a custom node migration", func() {
			topo.Registry().Register(migrate.KindNode, func(_, _ any) error {
				return nil
			})

			err := topo.ReplaceNodes(func(prev Node) (Node, error) {
				return f.NewNode("other", nil)
			})

			Expect(errors.Is(err, ErrAddressChange)).To(BeTrue())
			n, _ := topo.Node("a")
			Expect(n).To(BeIdenticalTo(a))
		})

		It("should stop on a factory error", func() {
			boom := errors.New("boom")

			err := topo.ReplaceLinks(func(Link) (Link, error) {
				return nil, boom
			})

			Expect(errors.Is(err, boom)).To(BeTrue())
			e, _ := topo.LinkBetween("a", "b")
			Expect(e.Link).To(BeIdenticalTo(l))
		})

		It("should carry link state into the new links", func() {
			p := packet.New("a", "b", "a", "b")
			l.Transits()[p.ID] = &link.Transit{Packet: p}

			var fresh *link.Link
			err := topo.ReplaceLinks(func(Link) (Link, error) {
				fresh = newLink()
				return fresh, nil
			})
			Expect(err).NotTo(HaveOccurred())

			e, _ := topo.LinkBetween("a", "b")
			Expect(e.Link).To(BeIdenticalTo(fresh))
			Expect(fresh.InTransit).To(HaveKey(p.ID))
			Expect(fresh.Quality).To(Equal(l.Quality))
		})

		It("should replace queued and in-transit packets", func() {
			queued := packet.New("b", "a", "b", "a")
			a.Deliver(queued)

			flying := packet.New("a", "b", "a", "b")
			flying.HopCount = 2
			l.Transits()[flying.ID] = &link.Transit{Packet: flying}

			err := topo.ReplacePackets(func(*packet.Packet) (*packet.Packet, error) {
				return &packet.Packet{}, nil
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(a.Incoming[0]).NotTo(BeIdenticalTo(queued))
			Expect(a.Incoming[0]).To(Equal(queued))

			transit := l.InTransit[flying.ID]
			Expect(transit.Packet).NotTo(BeIdenticalTo(flying))
			Expect(transit.Packet.HopCount).To(Equal(2))
		})
	})
})

var _ = Describe("Generators", func() {
	var f Factory

	BeforeEach(func() {
		f = MakeFactory(sim.NewRand(7))
	})

	It("should build a line", func() {
		t, err := Line(4, f)

		Expect(err).NotTo(HaveOccurred())
		Expect(t.Nodes()).To(HaveLen(4))
		Expect(t.Links()).To(HaveLen(3))
		Expect(connected(t)).To(BeTrue())
	})

	It("should build a ring", func() {
		t, err := Ring(5, f)

		Expect(err).NotTo(HaveOccurred())
		Expect(t.Links()).To(HaveLen(5))

		for _, n := range t.Nodes() {
			Expect(t.LinksOf(n.Address())).To(HaveLen(2))
		}
	})

	It("should build a grid", func() {
		t, err := Grid(3, 2, f)

		Expect(err).NotTo(HaveOccurred())
		Expect(t.Nodes()).To(HaveLen(6))
		Expect(t.Links()).To(HaveLen(7))
		Expect(connected(t)).To(BeTrue())
	})

	It("should build a connected random mesh", func() {
		t, err := RandomMesh(20, 4, f)

		Expect(err).NotTo(HaveOccurred())
		Expect(t.Nodes()).To(HaveLen(20))
		Expect(len(t.Links())).To(BeNumerically(">=", 19))
		Expect(len(t.Links())).To(BeNumerically("<=", 40))
		Expect(connected(t)).To(BeTrue())
	})

	It("should draw random link parameters", func() {
		f.RandomLinks = true

		t, err := Line(10, f)
		Expect(err).NotTo(HaveOccurred())

		for _, e := range t.Links() {
			l := e.Link.(*link.Link)
			Expect(l.Quality).To(BeNumerically(">=", 75))
			Expect(l.Quality).To(BeNumerically("<", 100))
			Expect(l.Latency).To(BeNumerically(">=", 1))
			Expect(l.Latency).To(BeNumerically("<=", 5))
		}
	})

	DescribeTable("should reject impossible shapes",
		func(build func() (*Topology, error)) {
			_, err := build()

			Expect(errors.Is(err, ErrInvalidShape)).To(BeTrue())
		},
		Entry("empty line", func() (*Topology, error) { return Line(0, f) }),
		Entry("tiny ring", func() (*Topology, error) { return Ring(2, f) }),
		Entry("flat grid", func() (*Topology, error) { return Grid(0, 3, f) }),
		Entry("no degree", func() (*Topology, error) { return RandomMesh(5, 0, f) }),
	)

	It("should give distinct addresses", func() {
		Expect(MACFromIndex(1)).To(Equal(packet.MAC("02:00:00:00:00:01")))
		Expect(MACFromIndex(258)).To(Equal(packet.MAC("02:00:00:00:01:02")))
	})
})
