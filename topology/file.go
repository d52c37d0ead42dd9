package topology

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/sarchlab/meshsim/link"
	"github.com/sarchlab/meshsim/node"
	"github.com/sarchlab/meshsim/packet"
)

type fileFormat struct {
	Nodes []nodeEntry `yaml:"nodes"`
	Links []linkEntry `yaml:"links"`
}

type nodeEntry struct {
	MAC  packet.MAC `yaml:"mac"`
	Meta any        `yaml:"meta,omitempty"`
}

type linkEntry struct {
	A         packet.MAC `yaml:"a"`
	B         packet.MAC `yaml:"b"`
	Quality   *float64   `yaml:"quality,omitempty"`
	Bandwidth *int       `yaml:"bandwidth,omitempty"`
	Channel   *int       `yaml:"channel,omitempty"`
	Latency   *int       `yaml:"latency,omitempty"`
}

// LoadFile reads a topology from a YAML file.
func LoadFile(path string, f Factory) (*Topology, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open topology: %w", err)
	}
	defer file.Close()

	return Load(file, f)
}

// Load reads a topology in YAML. Link parameters that are not given come
// from the factory.
func Load(r io.Reader, f Factory) (*Topology, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}

	var ff fileFormat
	err = yaml.UnmarshalWithOptions(data, &ff, yaml.DisallowUnknownField())
	if err != nil {
		return nil, fmt.Errorf("parse topology: %w", err)
	}

	t := New()

	for _, entry := range ff.Nodes {
		n, err := f.NewNode(entry.MAC, entry.Meta)
		if err != nil {
			return nil, err
		}

		if err := t.AddNode(n); err != nil {
			return nil, err
		}
	}

	for _, entry := range ff.Links {
		l, err := entry.builder(f.linkBuilder()).Build()
		if err != nil {
			return nil, fmt.Errorf("link %s-%s: %w", entry.A, entry.B, err)
		}

		if err := t.AddLink(entry.A, entry.B, l); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func (e linkEntry) builder(b link.Builder) link.Builder {
	if e.Quality != nil {
		b = b.WithQuality(*e.Quality)
	}

	if e.Bandwidth != nil {
		b = b.WithBandwidth(*e.Bandwidth)
	}

	if e.Channel != nil {
		b = b.WithChannel(*e.Channel)
	}

	if e.Latency != nil {
		b = b.WithLatency(*e.Latency)
	}

	return b
}

// Save writes the topology in YAML. Only the parameters of *link.Link and the
// meta data of *node.Node are written.
func (t *Topology) Save(w io.Writer) error {
	var ff fileFormat

	for _, n := range t.nodes {
		entry := nodeEntry{MAC: n.Address()}
		if concrete, ok := n.(*node.Node); ok {
			entry.Meta = concrete.Meta
		}

		ff.Nodes = append(ff.Nodes, entry)
	}

	for _, e := range t.edges {
		entry := linkEntry{A: e.A, B: e.B}
		if l, ok := e.Link.(*link.Link); ok {
			entry.Quality = &l.Quality
			entry.Bandwidth = &l.Bandwidth
			entry.Channel = &l.Channel
			entry.Latency = &l.Latency
		}

		ff.Links = append(ff.Links, entry)
	}

	data, err := yaml.Marshal(ff)
	if err != nil {
		return fmt.Errorf("encode topology: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write topology: %w", err)
	}

	return nil
}
