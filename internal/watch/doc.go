// SPDX-License-Identifier: MPL-2.0

// Package watch re-triggers work when files under a directory change.
//
// A Watcher registers every non-ignored directory below its base with
// fsnotify, filters events through doublestar globs and coalesces bursts of
// changes into one callback per quiet period. Callbacks never overlap: a
// burst that lands while the previous callback is still running is held
// until it returns.
package watch
