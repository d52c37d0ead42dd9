package topology

import (
	"errors"
	"fmt"
)

// ErrInvalidShape is returned when a generator is asked for an impossible
// topology.
var ErrInvalidShape = errors.New("invalid topology shape")

func withNodes(count int, f Factory) (*Topology, error) {
	t := New()

	for i := range count {
		n, err := f.NewNode(MACFromIndex(i+1), nil)
		if err != nil {
			return nil, err
		}

		if err := t.AddNode(n); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func (t *Topology) connect(i, j int, f Factory) error {
	l, err := f.NewLink()
	if err != nil {
		return err
	}

	return t.AddLink(t.nodes[i].Address(), t.nodes[j].Address(), l)
}

// Line creates n nodes connected one after another.
func Line(n int, f Factory) (*Topology, error) {
	if n < 1 {
		return nil, fmt.Errorf("line of %d nodes: %w", n, ErrInvalidShape)
	}

	t, err := withNodes(n, f)
	if err != nil {
		return nil, err
	}

	for i := 1; i < n; i++ {
		if err := t.connect(i-1, i, f); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// Ring creates a line whose ends are connected.
func Ring(n int, f Factory) (*Topology, error) {
	if n < 3 {
		return nil, fmt.Errorf("ring of %d nodes: %w", n, ErrInvalidShape)
	}

	t, err := Line(n, f)
	if err != nil {
		return nil, err
	}

	if err := t.connect(n-1, 0, f); err != nil {
		return nil, err
	}

	return t, nil
}

// Grid creates w by h nodes, each connected to its horizontal and vertical
// neighbours.
func Grid(w, h int, f Factory) (*Topology, error) {
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("grid %dx%d: %w", w, h, ErrInvalidShape)
	}

	t, err := withNodes(w*h, f)
	if err != nil {
		return nil, err
	}

	for y := range h {
		for x := range w {
			i := y*w + x

			if x+1 < w {
				if err := t.connect(i, i+1, f); err != nil {
					return nil, err
				}
			}

			if y+1 < h {
				if err := t.connect(i, i+w, f); err != nil {
					return nil, err
				}
			}
		}
	}

	return t, nil
}

// RandomMesh creates a connected mesh of n nodes with an average degree close
// to degree. A random spanning tree keeps the mesh connected and random extra
// links raise the degree.
func RandomMesh(n, degree int, f Factory) (*Topology, error) {
	if n < 1 || degree < 1 {
		return nil, fmt.Errorf("random mesh of %d nodes, degree %d: %w",
			n, degree, ErrInvalidShape)
	}

	t, err := withNodes(n, f)
	if err != nil {
		return nil, err
	}

	for i := 1; i < n; i++ {
		if err := t.connect(f.Rand.IntN(i), i, f); err != nil {
			return nil, err
		}
	}

	target := min(n*degree/2, n*(n-1)/2)
	for attempts := 10 * target; len(t.edges) < target && attempts > 0; attempts-- {
		i, j := f.Rand.IntN(n), f.Rand.IntN(n)
		if i == j {
			continue
		}

		if _, ok := t.LinkBetween(t.nodes[i].Address(), t.nodes[j].Address()); ok {
			continue
		}

		if err := t.connect(i, j, f); err != nil {
			return nil, err
		}
	}

	return t, nil
}
