package tracing

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/sarchlab/meshsim/engine"
	"github.com/sarchlab/meshsim/link"
	"github.com/sarchlab/meshsim/node"
	"github.com/sarchlab/meshsim/packet"
	"github.com/sarchlab/meshsim/sim"
)

// Step names recorded for packet tasks.
const (
	StepSent       = "sent"
	StepDelivered  = "delivered"
	StepLost       = "lost"
	StepUnroutable = "unroutable"
	StepArrived    = "arrived"
	StepDropped    = "dropped"
)

// CollectTrace lets the tracer follow every packet moved by the engine and
// every packet handled by the nodes currently in its topology. Each packet
// becomes a task whose ID is the packet ID.
func CollectTrace(e *engine.Engine, tracer Tracer) {
	for _, hook := range e.Hooks() {
		hook, ok := hook.(*traceHook)
		if ok && hook.t == tracer {
			panic(fmt.Sprintf(
				"domain %s already has tracer %s",
				e.Name(), reflect.TypeOf(tracer)))
		}
	}

	h := &traceHook{
		t:          tracer,
		timeTeller: e,
		inflight:   make(map[string]bool),
	}

	e.AcceptHook(h)

	for _, n := range e.Topology().Nodes() {
		n.AcceptHook(h)
	}
}

// A traceHook turns packet events into tasks.
type traceHook struct {
	t          Tracer
	timeTeller sim.TimeTeller

	lock     sync.Mutex
	inflight map[string]bool
}

// Func calls the tracer interfaces when the hook is triggered
func (h *traceHook) Func(ctx sim.HookCtx) {
	h.lock.Lock()
	defer h.lock.Unlock()

	switch ctx.Pos {
	case engine.HookPosPacketSent:
		tr := ctx.Item.(*link.Transit)
		h.step(tr.Packet, tr.From, StepSent)
	case engine.HookPosPacketDelivered:
		tr := ctx.Item.(*link.Transit)
		h.step(tr.Packet, tr.From, StepDelivered)

		if tr.Packet.Type.IsControl() {
			h.end(tr.Packet)
		}
	case engine.HookPosPacketLost:
		p := ctx.Item.(*packet.Packet)
		h.step(p, p.TransmitterAddress, StepLost)
		h.end(p)
	case engine.HookPosPacketUnroutable:
		p := ctx.Item.(*packet.Packet)
		h.step(p, p.TransmitterAddress, StepUnroutable)
		h.end(p)
	case node.HookPosPacketArrived:
		h.nodeEnd(ctx, StepArrived)
	case node.HookPosPacketDropped:
		h.nodeEnd(ctx, StepDropped)
	}
}

func (h *traceHook) nodeEnd(ctx sim.HookCtx, what string) {
	p := ctx.Item.(*packet.Packet)
	if p.Type.IsControl() {
		return
	}

	where := p.TransmitterAddress
	if named, ok := ctx.Domain.(sim.Named); ok {
		where = packet.MAC(named.Name())
	}

	h.step(p, where, what)
	h.end(p)
}

func (h *traceHook) start(p *packet.Packet, where packet.MAC) {
	if h.inflight[p.ID] {
		return
	}

	h.inflight[p.ID] = true
	h.t.StartTask(Task{
		ID:        p.ID,
		Kind:      p.Type.String(),
		What:      fmt.Sprintf("%s->%s", p.SourceAddress, p.DestinationAddress),
		Where:     string(where),
		StartTime: h.timeTeller.CurrentTime(),
		Detail:    p,
	})
}

func (h *traceHook) step(p *packet.Packet, where packet.MAC, what string) {
	h.start(p, where)
	h.t.StepTask(Task{
		ID:    p.ID,
		Steps: []TaskStep{{Time: h.timeTeller.CurrentTime(), What: what}},
	})
}

func (h *traceHook) end(p *packet.Packet) {
	if !h.inflight[p.ID] {
		return
	}

	delete(h.inflight, p.ID)
	h.t.EndTask(Task{
		ID:      p.ID,
		EndTime: h.timeTeller.CurrentTime(),
	})
}
