package migrate

import "fmt"

// Kind identifies a family of entities that can be migrated.
type Kind int

// The kinds of entities in a mesh.
const (
	KindNode Kind = iota
	KindLink
	KindPacket
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindLink:
		return "link"
	case KindPacket:
		return "packet"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// A Func moves the state of the previous entity into its replacement.
type Func func(prev, next any) error

// A Registry holds the custom migration of each kind. Kinds without a custom
// migration fall back to CopyFields.
type Registry struct {
	funcs map[Kind]Func
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[Kind]Func),
	}
}

// Register sets the custom migration of a kind, replacing any earlier one.
func (r *Registry) Register(kind Kind, f Func) {
	r.funcs[kind] = f
}

// Unregister restores the default migration of a kind.
func (r *Registry) Unregister(kind Kind) {
	delete(r.funcs, kind)
}

// Migrate moves the state of prev into next.
func (r *Registry) Migrate(kind Kind, prev, next any) error {
	if f, ok := r.funcs[kind]; ok {
		if err := f(prev, next); err != nil {
			return fmt.Errorf("migrate %s: %w", kind, err)
		}

		return nil
	}

	if _, err := CopyFields(next, prev); err != nil {
		return fmt.Errorf("migrate %s: %w", kind, err)
	}

	return nil
}
