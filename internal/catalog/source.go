// SPDX-License-Identifier: MPL-2.0

package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/devtask/devtask/internal/issue"
	"github.com/devtask/devtask/internal/logging"
)

// ErrUnsupportedFormat is returned for catalog files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported catalog format")

type (
	// Source supplies raw command definitions. The engine calls Fetch once per
	// planning pass.
	Source interface {
		Fetch(ctx context.Context) ([]RawCommand, error)
	}

	// SourceFunc adapts a function to Source.
	SourceFunc func(ctx context.Context) ([]RawCommand, error)

	// StaticSource serves a fixed list.
	StaticSource []RawCommand

	// FileSource reads a flattened devfile from disk on every Fetch.
	FileSource struct {
		Path string
		// Logger defaults to the logger carried by the Fetch context.
		Logger *log.Logger
	}

	// document is the subset of a flattened devfile that carries commands.
	document struct {
		Commands []RawCommand `yaml:"commands" toml:"commands"`
	}
)

// Fetch calls f.
func (f SourceFunc) Fetch(ctx context.Context) ([]RawCommand, error) {
	return f(ctx)
}

// Fetch returns a copy of the list.
func (s StaticSource) Fetch(ctx context.Context) ([]RawCommand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Clone([]RawCommand(s)), nil
}

// Fetch reads and decodes the file.
func (s *FileSource) Fetch(ctx context.Context) ([]RawCommand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := s.Logger
	if logger == nil {
		logger = logging.FromContext(ctx)
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		ec := issue.NewErrorContext().
			WithOperation("load command catalog").
			WithResource(s.Path).
			Wrap(err)
		if errors.Is(err, fs.ErrNotExist) {
			ec.WithSuggestion("Pass --catalog with the path to a flattened devfile").
				WithSuggestion("Or set catalog.path in the devtask config file")
		}
		return nil, ec.BuildError()
	}

	commands, err := Decode(data, filepath.Ext(s.Path))
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("parse command catalog").
			WithResource(s.Path).
			WithSuggestion("The file needs a top-level 'commands' list").
			Wrap(err).
			BuildError()
	}

	logger.Info(fmt.Sprintf("Detected %d command(s) in the flattened devfile", len(commands)), "path", s.Path)
	return commands, nil
}

// Decode parses a catalog document. ext selects the format: ".toml" uses
// TOML, ".yaml", ".yml", ".json" and "" use YAML (a JSON superset).
func Decode(data []byte, ext string) ([]RawCommand, error) {
	var doc document
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
			return nil, err
		}
	case ".yaml", ".yml", ".json", "":
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, nil
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return doc.Commands, nil
}
