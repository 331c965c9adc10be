// SPDX-License-Identifier: MPL-2.0

package catalog

import (
	"fmt"
	"strings"

	"github.com/devtask/devtask/internal/dag"
)

const (
	// ProblemMissingChild is reported for a composite child id absent from the catalog.
	ProblemMissingChild ProblemKind = "missing-child"
	// ProblemCycle is reported once per distinct composite cycle.
	ProblemCycle ProblemKind = "cycle"
)

type (
	// ProblemKind classifies a static catalog problem.
	ProblemKind string

	// Problem is one finding of Validate.
	Problem struct {
		Kind    ProblemKind
		Command CommandID
		// Child is set for ProblemMissingChild.
		Child CommandID
		// Chain is set for ProblemCycle and starts and ends with the same id.
		Chain []CommandID
	}
)

func (p Problem) String() string {
	switch p.Kind {
	case ProblemMissingChild:
		return fmt.Sprintf("%s: dependency not found: %s", p.Command, p.Child)
	case ProblemCycle:
		parts := make([]string, len(p.Chain))
		for i, id := range p.Chain {
			parts[i] = string(id)
		}
		return "cycle detected: " + strings.Join(parts, " -> ")
	default:
		return string(p.Command) + ": " + string(p.Kind)
	}
}

// Validate lints composite references without running anything. Missing
// children are reported in listing order, followed by every distinct cycle.
func (c *Catalog) Validate() []Problem {
	var problems []Problem

	g := dag.New()
	for _, e := range c.Entries() {
		if e.Kind != KindComposite {
			continue
		}
		g.AddNode(string(e.Composite.ID))
		for _, child := range e.Composite.Children {
			if _, ok := c.Lookup(child); !ok {
				problems = append(problems, Problem{Kind: ProblemMissingChild, Command: e.Composite.ID, Child: child})
				continue
			}
			if c.Composite(child) != nil {
				g.AddEdge(string(e.Composite.ID), string(child))
			}
		}
	}

	for _, cycle := range g.Cycles() {
		chain := make([]CommandID, len(cycle))
		for i, id := range cycle {
			chain[i] = CommandID(id)
		}
		problems = append(problems, Problem{Kind: ProblemCycle, Command: chain[0], Chain: chain})
	}

	return problems
}
