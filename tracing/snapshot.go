package tracing

import (
	"log"

	"github.com/sarchlab/meshsim/datarecording"
	"github.com/sarchlab/meshsim/engine"
	"github.com/sarchlab/meshsim/node"
	"github.com/sarchlab/meshsim/sim"
)

const snapshotTableName = "node_snapshots"

// NodeRecord is one row of the node snapshot table.
type NodeRecord struct {
	Tick               uint64
	MAC                string
	DistributedClock   float64
	DistanceFromLeader float64
	InternalClock      int
	Neighbours         int
	KnownLatencies     int
	QueuedPackets      int
	Leader             bool
	Color              string
}

// A Snapshotter exposes the observable state of a node.
type Snapshotter interface {
	Snapshot() node.State
	IsLeader() bool
}

// SnapshotRecorder writes the state of every node into a DataRecorder every
// few ticks.
type SnapshotRecorder struct {
	backend  datarecording.DataRecorder
	engine   *engine.Engine
	interval uint64
}

// RecordSnapshots attaches a SnapshotRecorder to the engine. A snapshot is
// taken after every tick that is a multiple of interval.
func RecordSnapshots(
	e *engine.Engine,
	recorder datarecording.DataRecorder,
	interval uint64,
) (*SnapshotRecorder, error) {
	if interval == 0 {
		interval = 1
	}

	if err := recorder.CreateTable(snapshotTableName, NodeRecord{}); err != nil {
		return nil, err
	}

	r := &SnapshotRecorder{
		backend:  recorder,
		engine:   e,
		interval: interval,
	}

	e.AcceptHook(r)

	return r, nil
}

// Func records the snapshot after a tick.
func (r *SnapshotRecorder) Func(ctx sim.HookCtx) {
	if ctx.Pos != engine.HookPosAfterTick {
		return
	}

	tick := uint64(ctx.Item.(sim.VTimeInCycle))
	if tick%r.interval != 0 {
		return
	}

	r.Record(tick)
}

// Record writes one row per node, tagged with the given tick.
func (r *SnapshotRecorder) Record(tick uint64) {
	for _, n := range r.engine.Topology().Nodes() {
		s, ok := n.(Snapshotter)
		if !ok {
			continue
		}

		state := s.Snapshot()
		record := NodeRecord{
			Tick:               tick,
			MAC:                string(state.MAC),
			DistributedClock:   state.DistributedClock,
			DistanceFromLeader: state.DistanceFromLeader,
			InternalClock:      state.InternalClock,
			Neighbours:         len(state.Neighbours),
			KnownLatencies:     len(state.NeighbourLatencies),
			QueuedPackets:      state.QueuedPackets,
			Leader:             s.IsLeader(),
			Color:              state.Color,
		}

		if err := r.backend.InsertData(snapshotTableName, record); err != nil {
			log.Panic(err)
		}
	}
}
