// SPDX-License-Identifier: MPL-2.0

// Package catalog normalizes raw command definitions into the flat catalog
// the engine plans against.
//
// A raw definition (RawCommand) mirrors a devfile command: an id, an optional
// attribute map, and either an exec block (a shell line for one component) or
// a composite block (child ids run sequentially or in parallel). Build turns
// a list of them into a Catalog of leaf and composite specs, dropping imported
// and synthetic commands. A Catalog is an immutable value: fetching the raw
// list again and calling Build produces a new one.
package catalog
