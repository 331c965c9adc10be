// SPDX-License-Identifier: MPL-2.0

package catalog

import "strings"

// CompositeReferencePrefix is the task-reference form that names a composite
// command, as in "composite:build-all".
const CompositeReferencePrefix = "composite:"

// ParseReference accepts a bare command id or a "composite:<id>" reference.
// The boolean reports whether the composite form was used.
func ParseReference(ref string) (CommandID, bool) {
	ref = strings.TrimSpace(ref)
	if id, ok := strings.CutPrefix(ref, CompositeReferencePrefix); ok {
		return CommandID(id), true
	}
	return CommandID(ref), false
}

// Reference renders the task-reference form for id.
func Reference(id CommandID, composite bool) string {
	if composite {
		return CompositeReferencePrefix + string(id)
	}
	return string(id)
}
