// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the devtask CLI.
//
// The cobra tree is built per invocation from an App, which owns the
// configuration provider and the output writers. Subcommands resolve the
// catalog, build the engine and backends from configuration, and render
// results with lipgloss.
package cmd
