// SPDX-License-Identifier: MPL-2.0

// Package progress turns engine lifecycle events into the ordered,
// newline-terminated lines a caller shows for one run, followed by exactly
// one terminal exit code.
package progress
