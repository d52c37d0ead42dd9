package engine

import (
	"errors"
	"log/slog"

	"github.com/sarchlab/meshsim/sim"
	"github.com/sarchlab/meshsim/topology"
)

// Construction errors returned by Builder.Build.
var (
	ErrMissingTopology = errors.New("engine needs a topology")
	ErrMissingRand     = errors.New("engine needs a random source to shuffle")
)

// Builder can build engines.
type Builder struct {
	topology *topology.Topology
	rng      sim.Rand
	shuffle  bool
	traffic  TrafficGenerator
	logger   *slog.Logger
}

// MakeBuilder creates a new Builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithTopology sets the topology to advance.
func (b Builder) WithTopology(t *topology.Topology) Builder {
	b.topology = t
	return b
}

// WithRand sets the random source used to shuffle the step order.
func (b Builder) WithRand(rng sim.Rand) Builder {
	b.rng = rng
	return b
}

// WithShuffledOrder steps the nodes in a new random order every tick.
func (b Builder) WithShuffledOrder() Builder {
	b.shuffle = true
	return b
}

// WithTraffic sets the generator of application packets.
func (b Builder) WithTraffic(g TrafficGenerator) Builder {
	b.traffic = g
	return b
}

// WithLogger sets the logger. slog.Default() is used if not set.
func (b Builder) WithLogger(logger *slog.Logger) Builder {
	b.logger = logger
	return b
}

// Build creates a new engine.
func (b Builder) Build() (*Engine, error) {
	if b.topology == nil {
		return nil, ErrMissingTopology
	}

	if b.shuffle && b.rng == nil {
		return nil, ErrMissingRand
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		topology: b.topology,
		rng:      b.rng,
		shuffle:  b.shuffle,
		traffic:  b.traffic,
		logger:   logger,
		queue:    newArrivalQueue(),
	}

	return e, nil
}
