// Package schema loads the YAML file that declares which entries each
// location carries and applies it to a store.
//
// Example file:
//
//	locations:
//	  - location: "10,64,-3"
//	    title: Kitchen speaker
//	    entries:
//	      - name: volume
//	        kind: slider
//	        min: 0
//	        max: 100
//	        default: "50"
//	        validator: numeric
//	      - name: label
//	        kind: text
package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/dials/pkg/types"
)

// ErrDuplicateLocation reports a location declared twice in one file.
var ErrDuplicateLocation = errors.New("duplicate location")

// File is a parsed schema file.
type File struct {
	Locations []Location `yaml:"locations"`
}

// Location declares the entries of one location.
type Location struct {
	Location types.Location      `yaml:"location"`
	Title    string              `yaml:"title,omitempty"`
	Entries  []types.Declaration `yaml:"entries"`
}

// Declarer receives the declarations of one location. The SQLite store
// implements it.
type Declarer interface {
	Declare(loc types.Location, title string, decls []types.Declaration) error
}

// Load reads and validates the schema file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a schema document. Unknown keys are errors
// so that typos do not silently drop settings.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks that locations are non-empty and unique and that each
// location's declarations are valid with distinct names.
func (f *File) Validate() error {
	seen := make(map[types.Location]bool, len(f.Locations))
	for i, l := range f.Locations {
		if l.Location == "" {
			return fmt.Errorf("locations[%d]: %w", i, types.ErrInvalidLocation)
		}
		if seen[l.Location] {
			return fmt.Errorf("%w: %s", ErrDuplicateLocation, l.Location)
		}
		seen[l.Location] = true
		if err := types.CheckDeclarations(l.Entries); err != nil {
			return fmt.Errorf("location %s: %w", l.Location, err)
		}
	}
	return nil
}

// Apply declares every location in file order. It stops at the first
// failure.
func (f *File) Apply(d Declarer) error {
	for _, l := range f.Locations {
		if err := d.Declare(l.Location, l.Title, l.Entries); err != nil {
			return fmt.Errorf("declare %s: %w", l.Location, err)
		}
	}
	return nil
}

// Find returns the declaration block for loc.
func (f *File) Find(loc types.Location) (Location, bool) {
	for _, l := range f.Locations {
		if l.Location == loc {
			return l, true
		}
	}
	return Location{}, false
}
