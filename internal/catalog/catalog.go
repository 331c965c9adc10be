// SPDX-License-Identifier: MPL-2.0

package catalog

import (
	"regexp"
	"slices"
)

const (
	// ImportedByAttribute marks commands pulled in from another devfile.
	ImportedByAttribute = "controller.devfile.io/imported-by"
	// ImportedByParent is the only imported-by value that still counts as local.
	ImportedByParent = "parent"
	// DefaultWorkDir is used for leaf commands that do not name a working directory.
	DefaultWorkDir = "${PROJECT_SOURCE}"

	// KindLeaf identifies a command backed by a shell line.
	KindLeaf Kind = "leaf"
	// KindComposite identifies a command that groups other commands.
	KindComposite Kind = "composite"
)

// syntheticID matches the SSH agent bootstrap commands injected by the
// workspace controller; they are never user-runnable.
var syntheticID = regexp.MustCompile(`^init-ssh-agent-command-\d+$`)

type (
	// CommandID is the unique key of a catalog entry.
	CommandID string

	// Kind distinguishes leaf from composite entries.
	Kind string

	// LeafSpec is a runnable shell invocation on a named component.
	LeafSpec struct {
		ID          CommandID
		DisplayName string
		ShellLine   string
		WorkDir     string
		Component   string
		Env         []EnvVar
	}

	// CompositeSpec groups child commands.
	CompositeSpec struct {
		ID          CommandID
		DisplayName string
		Children    []CommandID
		Parallel    bool
	}

	// Entry is a catalog value: exactly one of Leaf or Composite is set,
	// according to Kind.
	Entry struct {
		Kind      Kind
		Leaf      *LeafSpec
		Composite *CompositeSpec
	}

	// Summary is the listing row for one runnable command.
	Summary struct {
		ID          CommandID `json:"id"`
		DisplayName string    `json:"displayName"`
		Kind        Kind      `json:"kind"`
	}

	// Catalog maps command ids to leaf or composite specs.
	// It is safe for concurrent readers and never mutated after Build.
	Catalog struct {
		entries map[CommandID]Entry
		order   []CommandID
	}
)

// String returns the id as a plain string.
func (id CommandID) String() string { return string(id) }

// ID returns the entry's command id.
func (e Entry) ID() CommandID {
	switch e.Kind {
	case KindLeaf:
		return e.Leaf.ID
	case KindComposite:
		return e.Composite.ID
	default:
		return ""
	}
}

// DisplayName returns the entry's label.
func (e Entry) DisplayName() string {
	switch e.Kind {
	case KindLeaf:
		return e.Leaf.DisplayName
	case KindComposite:
		return e.Composite.DisplayName
	default:
		return ""
	}
}

// IsLocal reports whether a raw command originates in the owning devfile.
func IsLocal(cmd RawCommand) bool {
	if cmd.Attributes == nil {
		return true
	}
	importedBy, ok := cmd.Attributes[ImportedByAttribute]
	if !ok || importedBy == nil {
		return true
	}
	s, isString := importedBy.(string)
	return isString && s == ImportedByParent
}

// IsSynthetic reports whether id is a reserved bootstrap command id.
func IsSynthetic(id string) bool {
	return syntheticID.MatchString(id)
}

// Build normalizes raw definitions into a Catalog. It never fails: malformed
// or missing fields degrade to defaults and unusable commands are dropped.
// Leaf entries are listed before composite entries, each group in input order.
// A later definition with an already-used id replaces the earlier one.
func Build(raw []RawCommand) *Catalog {
	c := &Catalog{entries: make(map[CommandID]Entry)}

	local := make([]RawCommand, 0, len(raw))
	for _, cmd := range raw {
		if !IsLocal(cmd) || IsSynthetic(cmd.ID) {
			continue
		}
		local = append(local, cmd)
	}

	for _, cmd := range local {
		if !isLeaf(cmd) {
			continue
		}
		c.add(Entry{Kind: KindLeaf, Leaf: newLeaf(cmd)})
	}

	// A command carrying both blocks is a leaf only.
	for _, cmd := range local {
		if isLeaf(cmd) || cmd.Composite == nil || len(cmd.Composite.Commands) == 0 {
			continue
		}
		c.add(Entry{Kind: KindComposite, Composite: newComposite(cmd)})
	}

	return c
}

func isLeaf(cmd RawCommand) bool {
	return cmd.Exec != nil && cmd.Exec.CommandLine != ""
}

func newLeaf(cmd RawCommand) *LeafSpec {
	exec := cmd.Exec
	leaf := &LeafSpec{
		ID:          CommandID(cmd.ID),
		DisplayName: exec.Label,
		ShellLine:   exec.CommandLine,
		WorkDir:     exec.WorkingDir,
		Component:   exec.Component,
		Env:         slices.Clone(exec.Env),
	}
	if leaf.DisplayName == "" {
		leaf.DisplayName = cmd.ID
	}
	if leaf.WorkDir == "" {
		leaf.WorkDir = DefaultWorkDir
	}
	return leaf
}

func newComposite(cmd RawCommand) *CompositeSpec {
	comp := cmd.Composite
	children := make([]CommandID, 0, len(comp.Commands))
	for _, child := range comp.Commands {
		children = append(children, CommandID(child))
	}
	spec := &CompositeSpec{
		ID:          CommandID(cmd.ID),
		DisplayName: comp.Label,
		Children:    children,
		Parallel:    truthy(comp.Parallel),
	}
	if spec.DisplayName == "" {
		spec.DisplayName = cmd.ID
	}
	return spec
}

func (c *Catalog) add(e Entry) {
	id := e.ID()
	if _, exists := c.entries[id]; !exists {
		c.order = append(c.order, id)
	}
	c.entries[id] = e
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// Lookup returns the entry for id.
func (c *Catalog) Lookup(id CommandID) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	e, ok := c.entries[id]
	return e, ok
}

// Leaf returns the leaf spec for id, or nil when id is absent or composite.
func (c *Catalog) Leaf(id CommandID) *LeafSpec {
	e, ok := c.Lookup(id)
	if !ok || e.Kind != KindLeaf {
		return nil
	}
	return e.Leaf
}

// Composite returns the composite spec for id, or nil when id is absent or a leaf.
func (c *Catalog) Composite(id CommandID) *CompositeSpec {
	e, ok := c.Lookup(id)
	if !ok || e.Kind != KindComposite {
		return nil
	}
	return e.Composite
}

// Entries returns all entries in listing order.
func (c *Catalog) Entries() []Entry {
	if c == nil {
		return nil
	}
	out := make([]Entry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id])
	}
	return out
}

// Summaries returns the listing rows in listing order.
func (c *Catalog) Summaries() []Summary {
	entries := c.Entries()
	out := make([]Summary, 0, len(entries))
	for _, e := range entries {
		out = append(out, Summary{ID: e.ID(), DisplayName: e.DisplayName(), Kind: e.Kind})
	}
	return out
}
