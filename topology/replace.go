package topology

import (
	"fmt"

	"github.com/sarchlab/meshsim/link"
	"github.com/sarchlab/meshsim/migrate"
	"github.com/sarchlab/meshsim/packet"
)

// ReplaceNodes swaps every node for the one the factory creates. The state of
// the previous node is migrated into its replacement.
func (t *Topology) ReplaceNodes(factory func(prev Node) (Node, error)) error {
	replaced := make([]Node, len(t.nodes))

	for i, prev := range t.nodes {
		next, err := factory(prev)
		if err != nil {
			return fmt.Errorf("replace node %s: %w", prev.Address(), err)
		}

		err = t.registry.Migrate(migrate.KindNode, prev, next)
		if err != nil {
			return fmt.Errorf("replace node %s: %w", prev.Address(), err)
		}

		if next.Address() != prev.Address() {
			return fmt.Errorf("replace node %s: %w",
				prev.Address(), ErrAddressChange)
		}

		replaced[i] = next
	}

	copy(t.nodes, replaced)

	return nil
}

// ReplaceLinks swaps every link for the one the factory creates. The state of
// the previous link is migrated into its replacement.
func (t *Topology) ReplaceLinks(factory func(prev Link) (Link, error)) error {
	replaced := make([]Link, len(t.edges))

	for i, e := range t.edges {
		next, err := factory(e.Link)
		if err != nil {
			return fmt.Errorf("replace link %s-%s: %w", e.A, e.B, err)
		}

		err = t.registry.Migrate(migrate.KindLink, e.Link, next)
		if err != nil {
			return fmt.Errorf("replace link %s-%s: %w", e.A, e.B, err)
		}

		replaced[i] = next
	}

	for i, e := range t.edges {
		e.Link = replaced[i]
	}

	return nil
}

// ReplacePackets swaps every packet that is queued at a node or in transit on
// a link for the one the factory creates.
func (t *Topology) ReplacePackets(
	factory func(prev *packet.Packet) (*packet.Packet, error),
) error {
	var firstErr error

	renew := func(prev *packet.Packet) *packet.Packet {
		if firstErr != nil {
			return prev
		}

		next, err := factory(prev)
		if err == nil {
			err = t.registry.Migrate(migrate.KindPacket, prev, next)
		}

		if err != nil {
			firstErr = fmt.Errorf("replace packet %s: %w", prev.ID, err)
			return prev
		}

		return next
	}

	for _, n := range t.nodes {
		n.RenewPackets(renew)
	}

	for _, e := range t.edges {
		transits := e.Link.Transits()
		renewed := make([]*link.Transit, 0, len(transits))

		for id, transit := range transits {
			transit.Packet = renew(transit.Packet)
			renewed = append(renewed, transit)
			delete(transits, id)
		}

		// Transits are keyed by packet ID, which the migration may change.
		for _, transit := range renewed {
			transits[transit.Packet.ID] = transit
		}
	}

	return firstErr
}
