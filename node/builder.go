package node

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sarchlab/meshsim/packet"
	"github.com/sarchlab/meshsim/sim"
)

// Construction errors returned by Builder.Build.
var (
	ErrEmptyMAC     = errors.New("node MAC must not be empty")
	ErrBroadcastMAC = errors.New("node MAC must not be the broadcast address")
	ErrMissingRand  = errors.New("node needs a random source")
	ErrInvalidRange = errors.New("node parameter must be positive")
)

// Builder can build nodes.
type Builder struct {
	rng    sim.Rand
	logger *slog.Logger
	meta   any
	cfg    config
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		cfg: config{
			heartbeatStaleness: 20,
			clockSeedRange:     1000,
			updateRateRange:    100,
			blinkPulse:         3,
			blinkPeriod:        10,
		},
	}
}

// WithRand sets the random source used for seeding and routing.
func (b Builder) WithRand(rng sim.Rand) Builder {
	b.rng = rng
	return b
}

// WithLogger sets the logger. slog.Default() is used if not set.
func (b Builder) WithLogger(logger *slog.Logger) Builder {
	b.logger = logger
	return b
}

// WithMeta attaches data that the protocol never interprets.
func (b Builder) WithMeta(meta any) Builder {
	b.meta = meta
	return b
}

// WithHeartbeatStaleness sets the number of ticks after which a heartbeat is
// sent again.
func (b Builder) WithHeartbeatStaleness(ticks int) Builder {
	b.cfg.heartbeatStaleness = ticks
	return b
}

// WithClockSeedRange sets the exclusive upper bound of the initial clock.
func (b Builder) WithClockSeedRange(r int) Builder {
	b.cfg.clockSeedRange = r
	return b
}

// WithUpdateRateRange sets the exclusive upper bound of the periodic
// rebroadcast interval.
func (b Builder) WithUpdateRateRange(r int) Builder {
	b.cfg.updateRateRange = r
	return b
}

// Build creates a node with the given address.
func (b Builder) Build(mac packet.MAC) (*Node, error) {
	if err := b.validate(mac); err != nil {
		return nil, fmt.Errorf("build node %q: %w", mac, err)
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	n := &Node{
		MAC:              mac,
		Meta:             b.meta,
		RandomUpdateRate: b.rng.IntN(b.cfg.updateRateRange),
		rng:              b.rng,
		logger:           logger,
		cfg:              b.cfg,
	}
	n.Reset()

	return n, nil
}

func (b Builder) validate(mac packet.MAC) error {
	switch {
	case mac == "":
		return ErrEmptyMAC
	case mac.IsBroadcast():
		return ErrBroadcastMAC
	case b.rng == nil:
		return ErrMissingRand
	case b.cfg.heartbeatStaleness <= 0:
		return fmt.Errorf("heartbeat staleness: %w", ErrInvalidRange)
	case b.cfg.clockSeedRange <= 0:
		return fmt.Errorf("clock seed range: %w", ErrInvalidRange)
	case b.cfg.updateRateRange <= 0:
		return fmt.Errorf("update rate range: %w", ErrInvalidRange)
	}

	return nil
}
