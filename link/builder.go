package link

import (
	"errors"
	"fmt"

	"github.com/sarchlab/meshsim/sim"
)

// Validation errors returned by Builder.Build.
var (
	ErrInvalidQuality   = errors.New("link quality must be within [0, 100]")
	ErrInvalidBandwidth = errors.New("link bandwidth must be positive")
	ErrInvalidChannel   = errors.New("link channel must not be negative")
	ErrInvalidLatency   = errors.New("link latency must be at least 1")
	ErrMissingRand      = errors.New("link needs a random source")
)

// Builder can build links.
type Builder struct {
	quality   float64
	bandwidth int
	channel   int
	latency   int
	rng       sim.Rand
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		quality:   100,
		bandwidth: 50,
		channel:   0,
		latency:   1,
	}
}

// WithQuality sets the quality in percent.
func (b Builder) WithQuality(quality float64) Builder {
	b.quality = quality
	return b
}

// WithRandomQuality draws an integer quality in [75, 100).
func (b Builder) WithRandomQuality(rng sim.Rand) Builder {
	b.quality = float64(rng.IntN(25) + 75)
	return b
}

// WithBandwidth sets the number of packets per tick.
func (b Builder) WithBandwidth(bandwidth int) Builder {
	b.bandwidth = bandwidth
	return b
}

// WithChannel sets the medium.
func (b Builder) WithChannel(channel int) Builder {
	b.channel = channel
	return b
}

// WithLatency sets the number of ticks to cross the link.
func (b Builder) WithLatency(latency int) Builder {
	b.latency = latency
	return b
}

// WithRandomLatency draws a latency in [1, 5].
func (b Builder) WithRandomLatency(rng sim.Rand) Builder {
	b.latency = rng.IntN(5) + 1
	return b
}

// WithRand sets the random source used to decide transmissions.
func (b Builder) WithRand(rng sim.Rand) Builder {
	b.rng = rng
	return b
}

// Build creates a new link.
func (b Builder) Build() (*Link, error) {
	if err := b.validate(); err != nil {
		return nil, fmt.Errorf("build link: %w", err)
	}

	l := &Link{
		Quality:   b.quality,
		Bandwidth: b.bandwidth,
		Channel:   b.channel,
		Latency:   b.latency,
		InTransit: make(map[string]*Transit),
		rng:       b.rng,
	}

	return l, nil
}

func (b Builder) validate() error {
	switch {
	case b.quality < 0 || b.quality > 100:
		return fmt.Errorf("%w: got %v", ErrInvalidQuality, b.quality)
	case b.bandwidth <= 0:
		return fmt.Errorf("%w: got %d", ErrInvalidBandwidth, b.bandwidth)
	case b.channel < 0:
		return fmt.Errorf("%w: got %d", ErrInvalidChannel, b.channel)
	case b.latency < 1:
		return fmt.Errorf("%w: got %d", ErrInvalidLatency, b.latency)
	case b.rng == nil:
		return ErrMissingRand
	}

	return nil
}
