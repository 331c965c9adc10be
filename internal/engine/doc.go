// SPDX-License-Identifier: MPL-2.0

// Package engine resolves a requested command against a catalog snapshot and
// executes it: leaves through a backend adapter, composites sequentially or
// as a parallel fork/join, with cycle detection along the expansion path.
//
// Every failure is local to its node. A run never returns an error; it ends
// with one terminal status on its progress stream (0 when every node
// succeeded, 1 otherwise, including cancellation).
package engine
