// SPDX-License-Identifier: MPL-2.0

// Package types holds small value types shared across devtask packages:
// process exit codes reported by execution backends and the ports the
// component agent listens on.
package types
