// SPDX-License-Identifier: MPL-2.0

package engine

import "github.com/devtask/devtask/internal/catalog"

const (
	PlanNotFound PlanKind = iota
	PlanLeaf
	PlanComposite
)

type (
	// PlanKind says how a resolved id executes.
	PlanKind int

	// Plan is the one-level resolution of an id. Children of a composite are
	// resolved lazily while executing, so cycle detection sees the actual
	// expansion path.
	Plan struct {
		ID        catalog.CommandID
		Kind      PlanKind
		Leaf      *catalog.LeafSpec
		Composite *catalog.CompositeSpec
	}
)

func (k PlanKind) String() string {
	switch k {
	case PlanLeaf:
		return "leaf"
	case PlanComposite:
		return "composite"
	default:
		return "not-found"
	}
}

// Resolve looks id up in cat.
func Resolve(cat *catalog.Catalog, id catalog.CommandID) Plan {
	e, ok := cat.Lookup(id)
	if !ok {
		return Plan{ID: id, Kind: PlanNotFound}
	}
	switch e.Kind {
	case catalog.KindLeaf:
		return Plan{ID: id, Kind: PlanLeaf, Leaf: e.Leaf}
	case catalog.KindComposite:
		return Plan{ID: id, Kind: PlanComposite, Composite: e.Composite}
	default:
		return Plan{ID: id, Kind: PlanNotFound}
	}
}

// ResolveReference resolves a bare id or a "composite:<id>" reference. The
// composite form only matches composite entries.
func ResolveReference(cat *catalog.Catalog, ref string) Plan {
	id, composite := catalog.ParseReference(ref)
	plan := Resolve(cat, id)
	if composite && plan.Kind != PlanComposite {
		return Plan{ID: id, Kind: PlanNotFound}
	}
	return plan
}

// DisplayName returns the plan's label, or its id.
func (p Plan) DisplayName() string {
	switch p.Kind {
	case PlanLeaf:
		return p.Leaf.DisplayName
	case PlanComposite:
		return p.Composite.DisplayName
	default:
		return string(p.ID)
	}
}
