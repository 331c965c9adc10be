// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"slices"

	"github.com/devtask/devtask/internal/catalog"
)

// Stack is the immutable path of composites being expanded. Push returns a
// new Stack, so sibling branches never observe each other's entries.
type Stack struct {
	ids []catalog.CommandID
}

// NewStack returns a stack holding ids, bottom first.
func NewStack(ids ...catalog.CommandID) Stack {
	return Stack{ids: slices.Clone(ids)}
}

// Push returns a copy of s with id on top.
func (s Stack) Push(id catalog.CommandID) Stack {
	ids := make([]catalog.CommandID, len(s.ids), len(s.ids)+1)
	copy(ids, s.ids)
	return Stack{ids: append(ids, id)}
}

// Contains reports whether id is on the stack.
func (s Stack) Contains(id catalog.CommandID) bool {
	return slices.Contains(s.ids, id)
}

// Len returns the depth.
func (s Stack) Len() int { return len(s.ids) }

// IDs returns the entries, bottom first.
func (s Stack) IDs() []catalog.CommandID { return slices.Clone(s.ids) }

// Chain returns the entries followed by id, as reported for a cycle.
func (s Stack) Chain(id catalog.CommandID) []catalog.CommandID {
	return append(s.IDs(), id)
}
