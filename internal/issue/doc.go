// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// ActionableError carries the failed operation, the resource involved and
// remediation hints. Issue holds longer Markdown help for the failure classes
// devtask users hit most often (missing catalog, unreachable component, bad
// configuration), rendered in the terminal with glamour.
package issue
