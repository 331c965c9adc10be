// SPDX-License-Identifier: MPL-2.0

// Package backend starts leaf commands on components and reports their exit
// status.
//
// A Backend owns the transport: ShellBackend interprets lines in-process with
// mvdan.cc/sh, SSHBackend runs them on a remote component agent, and Router
// picks one per component. Adapter sits in front of any Backend and shapes
// the shell line (exported env vars, expanded working directory) from a
// catalog.LeafSpec.
package backend
