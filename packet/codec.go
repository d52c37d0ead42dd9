package packet

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Encode serializes a packet into canonical CBOR. Equal packets always
// produce equal bytes.
func Encode(p *Packet) ([]byte, error) {
	data, err := encMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode packet %s: %w", p.ID, err)
	}

	return data, nil
}

// Decode parses a packet produced by Encode.
func Decode(data []byte) (*Packet, error) {
	p := &Packet{}
	if err := decMode.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode packet: %w", err)
	}

	return p, nil
}
