// SPDX-License-Identifier: MPL-2.0

// Package testutil provides test helpers: environment management
// (MustSetenv, SetHomeDir), fixture files (MustWriteFile), server cleanup
// (MustStop, DeferStop), polling (Eventually) and a manually driven clock.
package testutil
