// SPDX-License-Identifier: MPL-2.0

package catalog

import (
	"strconv"
	"strings"
)

type (
	// RawCommand is one command definition as supplied by a Source.
	// Every field is optional; Build degrades missing fields to defaults.
	RawCommand struct {
		ID         string          `yaml:"id" toml:"id" json:"id"`
		Attributes map[string]any  `yaml:"attributes,omitempty" toml:"attributes,omitempty" json:"attributes,omitempty"`
		Exec       *ExecBlock      `yaml:"exec,omitempty" toml:"exec,omitempty" json:"exec,omitempty"`
		Composite  *CompositeBlock `yaml:"composite,omitempty" toml:"composite,omitempty" json:"composite,omitempty"`
	}

	// ExecBlock describes a shell invocation on a component.
	ExecBlock struct {
		Label       string   `yaml:"label,omitempty" toml:"label,omitempty" json:"label,omitempty"`
		CommandLine string   `yaml:"commandLine,omitempty" toml:"commandLine,omitempty" json:"commandLine,omitempty"`
		WorkingDir  string   `yaml:"workingDir,omitempty" toml:"workingDir,omitempty" json:"workingDir,omitempty"`
		Component   string   `yaml:"component,omitempty" toml:"component,omitempty" json:"component,omitempty"`
		Env         []EnvVar `yaml:"env,omitempty" toml:"env,omitempty" json:"env,omitempty"`
	}

	// CompositeBlock groups other commands by id.
	CompositeBlock struct {
		Label    string   `yaml:"label,omitempty" toml:"label,omitempty" json:"label,omitempty"`
		Commands []string `yaml:"commands,omitempty" toml:"commands,omitempty" json:"commands,omitempty"`
		// Parallel is coerced with truthy semantics: absent, false, 0 and ""
		// mean sequential.
		Parallel any `yaml:"parallel,omitempty" toml:"parallel,omitempty" json:"parallel,omitempty"`
	}

	// EnvVar is one environment entry exported before a leaf's shell line.
	EnvVar struct {
		Name  string `yaml:"name" toml:"name" json:"name"`
		Value string `yaml:"value" toml:"value" json:"value"`
	}
)

// truthy coerces a decoded scalar to a boolean.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		s := strings.TrimSpace(val)
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		return s != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case uint64:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}
