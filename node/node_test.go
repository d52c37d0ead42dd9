package node

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/meshsim/packet"
	"github.com/sarchlab/meshsim/sim"
)

func ofType(packets []*packet.Packet, t packet.Type) []*packet.Packet {
	var out []*packet.Packet

	for _, p := range packets {
		if p.Type == t {
			out = append(out, p)
		}
	}

	return out
}

func fromNeighbour(t packet.Type, from, to packet.MAC) *packet.Packet {
	p := packet.New(from, to, from, to)
	p.Type = t

	return p
}

type hookRecorder struct {
	calls map[*sim.HookPos][]sim.HookCtx
}

func (r *hookRecorder) Func(ctx sim.HookCtx) {
	r.calls[ctx.Pos] = append(r.calls[ctx.Pos], ctx)
}

var _ = Describe("Builder", func() {
	var (
		mockCtrl *gomock.Controller
		rng      *MockRand
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		rng = NewMockRand(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should seed the update rate and the clock", func() {
		gomock.InOrder(
			rng.EXPECT().IntN(100).Return(42),
			rng.EXPECT().IntN(1000).Return(321),
		)

		n, err := MakeBuilder().WithRand(rng).WithMeta("m").Build("a")

		Expect(err).NotTo(HaveOccurred())
		Expect(n.MAC).To(Equal(packet.MAC("a")))
		Expect(n.Meta).To(Equal("m"))
		Expect(n.RandomUpdateRate).To(Equal(42))
		Expect(n.DistributedClock).To(Equal(321.0))
		Expect(n.DistanceFromLeader).To(BeZero())
		Expect(n.InternalClock).To(BeZero())
		Expect(n.NeedsToSendClock).To(BeTrue())
		Expect(n.Neighbours).To(BeEmpty())
	})

	DescribeTable("should reject bad configurations",
		func(b Builder, mac packet.MAC, want error) {
			_, err := b.Build(mac)

			Expect(errors.Is(err, want)).To(BeTrue())
		},
		Entry("empty MAC",
			MakeBuilder().WithRand(sim.NewRand(1)), packet.MAC(""), ErrEmptyMAC),
		Entry("broadcast MAC",
			MakeBuilder().WithRand(sim.NewRand(1)), packet.BroadcastMAC,
			ErrBroadcastMAC),
		Entry("missing rand",
			MakeBuilder(), packet.MAC("a"), ErrMissingRand),
		Entry("zero staleness",
			MakeBuilder().WithRand(sim.NewRand(1)).WithHeartbeatStaleness(0),
			packet.MAC("a"), ErrInvalidRange),
		Entry("zero clock range",
			MakeBuilder().WithRand(sim.NewRand(1)).WithClockSeedRange(0),
			packet.MAC("a"), ErrInvalidRange),
	)
})

var _ = Describe("Node", func() {
	var (
		mockCtrl *gomock.Controller
		rng      *MockRand
		hooks    *hookRecorder
		n        *Node
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		rng = NewMockRand(mockCtrl)

		rng.EXPECT().IntN(100).Return(0)
		rng.EXPECT().IntN(1000).Return(5)

		var err error
		n, err = MakeBuilder().WithRand(rng).Build("a")
		Expect(err).NotTo(HaveOccurred())

		hooks = &hookRecorder{calls: make(map[*sim.HookPos][]sim.HookCtx)}
		n.AcceptHook(hooks)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("without neighbours", func() {
		It("should broadcast a neighbour check and tick", func() {
			n.Step()

			Expect(n.Outgoing).To(HaveLen(1))
			Expect(n.Outgoing[0].Type).To(Equal(packet.TypeNeighbourCheck))
			Expect(n.Outgoing[0].ReceiverAddress).To(Equal(packet.BroadcastMAC))
			Expect(n.Outgoing[0].DestinationAddress).
				To(Equal(packet.BroadcastMAC))
			Expect(n.DistributedClock).To(Equal(6.0))
			Expect(n.InternalClock).To(Equal(1))
		})

		It("should drop every routed packet", func() {
			p1 := fromNeighbour(packet.TypeData, "x", "z")
			p2 := fromNeighbour(packet.TypeAskNeighboursIfClockCorrect, "x", "z")
			n.Deliver(p1)
			n.Deliver(p2)

			n.Step()

			Expect(n.Incoming).To(BeEmpty())
			Expect(ofType(n.Outgoing, packet.TypeData)).To(BeEmpty())
			Expect(ofType(n.Outgoing, packet.TypeAskNeighboursIfClockCorrect)).
				To(BeEmpty())
			Expect(hooks.calls[HookPosPacketDropped]).To(HaveLen(2))
			Expect(hooks.calls[HookPosPacketDropped][0].Detail).
				To(Equal(DropNoNeighbours))
		})

		It("should keep the clock increasing", func() {
			prev := n.DistributedClock

			for range 50 {
				n.Step()
				Expect(n.DistributedClock).To(BeNumerically(">", prev))
				prev = n.DistributedClock
			}
		})
	})

	Context("neighbour discovery", func() {
		It("should record a neighbour once", func() {
			n.Deliver(fromNeighbour(packet.TypeNeighbourCheck,
				"b", packet.BroadcastMAC))
			n.Deliver(fromNeighbour(packet.TypeNeighbourCheck,
				"b", packet.BroadcastMAC))

			n.Step()

			Expect(n.Neighbours).To(Equal(map[packet.MAC]bool{"b": true}))
			Expect(hooks.calls[HookPosNeighbourFound]).To(HaveLen(1))
			Expect(hooks.calls[HookPosNeighbourFound][0].Item).
				To(Equal(packet.MAC("b")))

			n.Deliver(fromNeighbour(packet.TypeNeighbourCheck,
				"b", packet.BroadcastMAC))
			n.Step()

			Expect(n.Neighbours).To(HaveLen(1))
			Expect(hooks.calls[HookPosNeighbourFound]).To(HaveLen(1))
		})

		It("should never record itself", func() {
			n.Deliver(fromNeighbour(packet.TypeNeighbourCheck,
				"a", packet.BroadcastMAC))

			n.Step()

			Expect(n.Neighbours).To(BeEmpty())
		})
	})

	Context("heartbeats", func() {
		BeforeEach(func() {
			n.Neighbours["b"] = true
		})

		It("should send a heartbeat to a new neighbour", func() {
			n.Step()

			hb := ofType(n.Outgoing, packet.TypeHeartbeat)
			Expect(hb).To(HaveLen(1))
			Expect(hb[0].ReceiverAddress).To(Equal(packet.MAC("b")))
			Expect(hb[0].DestinationAddress).To(Equal(packet.MAC("b")))
			Expect(n.NeighbourLatencyHeartbeats).
				To(Equal(map[packet.MAC]int{"b": 0}))
		})

		It("should resend only after the heartbeat becomes stale", func() {
			sent := 0

			for range 22 {
				n.Step()
				sent += len(ofType(n.DrainOutgoing(), packet.TypeHeartbeat))
			}

			Expect(sent).To(Equal(2))
			Expect(n.NeighbourLatencyHeartbeats["b"]).To(Equal(21))
		})

		It("should reply to a heartbeat", func() {
			n.NeighbourLatencyHeartbeats["b"] = 0
			n.Deliver(fromNeighbour(packet.TypeHeartbeat, "b", "a"))

			n.Step()

			replies := ofType(n.Outgoing, packet.TypeHeartbeatReply)
			Expect(replies).To(HaveLen(1))
			Expect(replies[0].TransmitterAddress).To(Equal(packet.MAC("a")))
			Expect(replies[0].ReceiverAddress).To(Equal(packet.MAC("b")))
			Expect(replies[0].SourceAddress).To(Equal(packet.MAC("a")))
			Expect(replies[0].DestinationAddress).To(Equal(packet.MAC("b")))
		})

		It("should measure the round trip and announce the clock once", func() {
			n.NeighbourLatencyHeartbeats["b"] = 0
			n.InternalClock = 2
			n.Deliver(fromNeighbour(packet.TypeHeartbeatReply, "b", "a"))

			n.Step()

			Expect(n.NeighbourLatencies).To(Equal(map[packet.MAC]int{"b": 2}))
			Expect(n.NeedsToSendClock).To(BeFalse())
			syncs := ofType(n.Outgoing, packet.TypeClockSync)
			Expect(syncs).To(HaveLen(1))
			Expect(syncs[0].DistributedClock).To(Equal(5.0))
			Expect(syncs[0].DistanceFromLeader).To(BeZero())
			Expect(hooks.calls[HookPosLatencyMeasured][0].Detail).To(Equal(2))

			n.DrainOutgoing()
			n.Deliver(fromNeighbour(packet.TypeHeartbeatReply, "b", "a"))
			n.Step()

			Expect(ofType(n.Outgoing, packet.TypeClockSync)).To(BeEmpty())
		})

		It("should wait for every neighbour before announcing", func() {
			n.Neighbours["c"] = true
			n.NeighbourLatencyHeartbeats["b"] = 0
			n.NeighbourLatencyHeartbeats["c"] = 0
			n.Deliver(fromNeighbour(packet.TypeHeartbeatReply, "b", "a"))

			n.Step()

			Expect(ofType(n.Outgoing, packet.TypeClockSync)).To(BeEmpty())
			Expect(n.NeedsToSendClock).To(BeTrue())
		})

		It("should drop a reply without a heartbeat", func() {
			n.Deliver(fromNeighbour(packet.TypeHeartbeatReply, "c", "a"))

			n.Step()

			Expect(n.NeighbourLatencies).To(BeEmpty())
			Expect(hooks.calls[HookPosPacketDropped][0].Detail).
				To(Equal(DropUnsolicitedReply))
		})
	})

	Context("clock sync", func() {
		var sync *packet.Packet

		BeforeEach(func() {
			n.Neighbours["b"] = true
			n.NeighbourLatencyHeartbeats["b"] = 0

			sync = fromNeighbour(packet.TypeClockSync, "b", packet.BroadcastMAC)
			sync.DistributedClock = 100
			sync.DistanceFromLeader = 1
		})

		It("should ignore a sender with unknown latency", func() {
			n.Deliver(sync)

			n.Step()

			Expect(n.DistributedClock).To(Equal(6.0))
			Expect(n.DistanceFromLeader).To(BeZero())
		})

		It("should adopt a larger clock and rebroadcast it", func() {
			n.NeighbourLatencies["b"] = 4
			n.Deliver(sync)

			n.Step()

			Expect(n.DistanceFromLeader).To(Equal(3.0))
			Expect(n.DistributedClock).To(Equal(103.0))
			syncs := ofType(n.Outgoing, packet.TypeClockSync)
			Expect(syncs).To(HaveLen(1))
			Expect(syncs[0].DistributedClock).To(Equal(102.0))
			Expect(syncs[0].DistanceFromLeader).To(Equal(3.0))
			Expect(hooks.calls[HookPosClockAdopted]).To(HaveLen(1))
			Expect(n.NodeName()).To(Equal("3"))
		})

		It("should never go back in time", func() {
			n.NeighbourLatencies["b"] = 4
			n.DistributedClock = 500
			n.Deliver(sync)

			n.Step()

			Expect(n.DistributedClock).To(Equal(501.0))
			Expect(n.DistanceFromLeader).To(BeZero())
			Expect(ofType(n.Outgoing, packet.TypeClockSync)).To(BeEmpty())
		})
	})

	Context("routing", func() {
		BeforeEach(func() {
			n.Neighbours["b"] = true
			n.Neighbours["c"] = true
			n.NeighbourLatencyHeartbeats["b"] = 0
			n.NeighbourLatencyHeartbeats["c"] = 0
		})

		It("should forward directly to a neighbour destination", func() {
			p := fromNeighbour(packet.TypeData, "b", "a")
			p.SourceAddress = "s"
			p.DestinationAddress = "c"
			n.Deliver(p)

			n.Step()

			Expect(n.Outgoing).To(ConsistOf(p))
			Expect(p.TransmitterAddress).To(Equal(packet.MAC("a")))
			Expect(p.ReceiverAddress).To(Equal(packet.MAC("c")))
			Expect(p.SourceAddress).To(Equal(packet.MAC("s")))
			Expect(p.DestinationAddress).To(Equal(packet.MAC("c")))
			Expect(p.HopCount).To(Equal(1))
		})

		It("should pick a random neighbour otherwise", func() {
			rng.EXPECT().IntN(2).Return(1)
			p := fromNeighbour(packet.TypeAskNeighboursIfClockCorrect, "b", "a")
			p.DestinationAddress = "z"
			n.Deliver(p)

			n.Step()

			Expect(n.Outgoing).To(ConsistOf(p))
			Expect(p.TransmitterAddress).To(Equal(packet.MAC("a")))
			Expect(p.ReceiverAddress).To(Equal(packet.MAC("c")))
			Expect(p.DestinationAddress).To(Equal(packet.MAC("z")))
		})

		It("should report an arrived data packet", func() {
			p := fromNeighbour(packet.TypeData, "b", "a")
			n.Deliver(p)

			n.Step()

			Expect(n.Outgoing).To(BeEmpty())
			Expect(hooks.calls[HookPosPacketArrived]).To(HaveLen(1))
			Expect(hooks.calls[HookPosPacketMisdelivered]).To(BeEmpty())
		})

		It("should report and drop a packet without handler", func() {
			p := fromNeighbour(packet.TypeAskNeighboursIfClockCorrect, "b", "a")
			n.Deliver(p)

			n.Step()

			Expect(n.Outgoing).To(BeEmpty())
			Expect(hooks.calls[HookPosPacketMisdelivered]).To(HaveLen(1))
			Expect(hooks.calls[HookPosPacketDropped][0].Detail).
				To(Equal(DropArrivedWithoutHandler))
		})

		It("should route packets injected with Send", func() {
			p, err := n.Send("c", "hello")
			Expect(err).NotTo(HaveOccurred())

			n.Step()

			Expect(n.Outgoing).To(ConsistOf(p))
			Expect(p.Type).To(Equal(packet.TypeData))
			Expect(p.SourceAddress).To(Equal(packet.MAC("a")))
			Expect(p.ReceiverAddress).To(Equal(packet.MAC("c")))
			Expect(p.Payload).To(Equal("hello"))
		})

		It("should refuse to send to itself", func() {
			_, err := n.Send("a", nil)

			Expect(err).To(MatchError(ErrSendToSelf))
		})
	})

	Context("periodic rebroadcast", func() {
		It("should rebroadcast when the clock hits the update rate", func() {
			n.Neighbours["b"] = true
			n.NeighbourLatencyHeartbeats["b"] = 0
			n.RandomUpdateRate = 7
			n.DistributedClock = 14

			n.Step()

			Expect(ofType(n.Outgoing, packet.TypeNeighbourCheck)).To(HaveLen(1))
			Expect(ofType(n.Outgoing, packet.TypeClockSync)).To(HaveLen(1))
		})

		It("should not rebroadcast with an update rate of zero", func() {
			n.Neighbours["b"] = true
			n.NeighbourLatencyHeartbeats["b"] = 0
			n.DistributedClock = 0

			n.Step()

			Expect(n.Outgoing).To(BeEmpty())
		})
	})

	Context("presentation", func() {
		It("should pulse the blink every ten clock ticks", func() {
			n.DistributedClock = 10

			n.Step()
			Expect(n.Blink).To(Equal(3))

			n.Step()
			Expect(n.Blink).To(Equal(2))
		})

		It("should color by progress", func() {
			Expect(n.BodyColor()).To(Equal(ColorUndiscovered))

			n.Neighbours["b"] = true
			Expect(n.BodyColor()).To(Equal(ColorMeasuring))

			n.NeighbourLatencies["b"] = 2
			Expect(n.BodyColor()).To(Equal(ColorLeader))

			n.Blink = 1
			Expect(n.BodyColor()).To(Equal(ColorLeaderBlink))

			n.DistanceFromLeader = 1.5
			Expect(n.BodyColor()).To(Equal(ColorBlink))
			Expect(n.NodeName()).To(Equal("1.5"))

			n.Blink = 0
			Expect(n.BodyColor()).To(Equal(ColorFollower))
		})

		It("should count queued packets", func() {
			n.Deliver(fromNeighbour(packet.TypeData, "b", "a"))
			n.Outgoing = append(n.Outgoing, fromNeighbour(packet.TypeData, "a", "b"))

			Expect(n.ClientCount()).To(Equal(2))
			Expect(n.Snapshot().QueuedPackets).To(Equal(2))
		})
	})

	It("should restore defaults on reset", func() {
		n.Neighbours["b"] = true
		n.NeighbourLatencies["b"] = 2
		n.NeighbourLatencyHeartbeats["b"] = 0
		n.DistanceFromLeader = 3
		n.NeedsToSendClock = false
		n.Deliver(fromNeighbour(packet.TypeData, "c", "b"))
		n.Step()
		Expect(n.Outgoing).NotTo(BeEmpty())

		rng.EXPECT().IntN(1000).Return(77)
		n.Reset()

		Expect(n.MAC).To(Equal(packet.MAC("a")))
		Expect(n.Incoming).To(BeEmpty())
		Expect(n.Outgoing).To(BeEmpty())
		Expect(n.Neighbours).To(BeEmpty())
		Expect(n.NeighbourLatencies).To(BeEmpty())
		Expect(n.NeighbourLatencyHeartbeats).To(BeEmpty())
		Expect(n.DistanceFromLeader).To(BeZero())
		Expect(n.DistributedClock).To(Equal(77.0))
		Expect(n.InternalClock).To(BeZero())
		Expect(n.NeedsToSendClock).To(BeTrue())
	})
})
