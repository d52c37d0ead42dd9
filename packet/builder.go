package packet

import (
	"errors"
	"fmt"

	"github.com/sarchlab/meshsim/sim"
)

// ErrMissingAddress is returned when a packet is built without one of its
// four addresses.
var ErrMissingAddress = errors.New("packet address is missing")

// Builder can build packets.
type Builder struct {
	transmitter, receiver MAC
	source, destination   MAC
	pType                 Type
	distributedClock      float64
	distanceFromLeader    float64
	payload               any
}

// MakeBuilder creates a new Builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithTransmitter sets the address of the node sending the current hop.
func (b Builder) WithTransmitter(mac MAC) Builder {
	b.transmitter = mac
	return b
}

// WithReceiver sets the address of the node receiving the current hop.
func (b Builder) WithReceiver(mac MAC) Builder {
	b.receiver = mac
	return b
}

// WithSource sets the address of the node that created the packet.
func (b Builder) WithSource(mac MAC) Builder {
	b.source = mac
	return b
}

// WithDestination sets the final destination of the packet.
func (b Builder) WithDestination(mac MAC) Builder {
	b.destination = mac
	return b
}

// WithType sets the type of the packet.
func (b Builder) WithType(t Type) Builder {
	b.pType = t
	return b
}

// WithClock sets the clock sync payload.
func (b Builder) WithClock(clock, distanceFromLeader float64) Builder {
	b.distributedClock = clock
	b.distanceFromLeader = distanceFromLeader

	return b
}

// WithPayload attaches application data.
func (b Builder) WithPayload(payload any) Builder {
	b.payload = payload
	return b
}

// Build creates a new packet.
func (b Builder) Build() (*Packet, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	p := &Packet{
		ID:                 sim.GetIDGenerator().Generate(),
		TransmitterAddress: b.transmitter,
		ReceiverAddress:    b.receiver,
		SourceAddress:      b.source,
		DestinationAddress: b.destination,
		Type:               b.pType,
		DistributedClock:   b.distributedClock,
		DistanceFromLeader: b.distanceFromLeader,
		Payload:            b.payload,
	}

	return p, nil
}

func (b Builder) validate() error {
	fields := []struct {
		name string
		mac  MAC
	}{
		{"transmitter", b.transmitter},
		{"receiver", b.receiver},
		{"source", b.source},
		{"destination", b.destination},
	}

	for _, f := range fields {
		if f.mac == "" {
			return fmt.Errorf("%s: %w", f.name, ErrMissingAddress)
		}
	}

	return nil
}

// New creates a packet from its four addresses. It panics if any of them is
// empty.
func New(transmitter, receiver, source, destination MAC) *Packet {
	p, err := MakeBuilder().
		WithTransmitter(transmitter).
		WithReceiver(receiver).
		WithSource(source).
		WithDestination(destination).
		Build()
	if err != nil {
		panic(err)
	}

	return p
}
