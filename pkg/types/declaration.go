package types

import (
	"fmt"
	"math"
	"strings"
)

// Declaration is the static description of one entry: its key, kind,
// kind-specific constraints and initial value. Declarations come from the
// schema file, are stored by the canonical store and travel inside
// snapshots so a mirror can rebuild the same entries.
type Declaration struct {
	Name      string   `json:"name" yaml:"name"`
	Label     string   `json:"label,omitempty" yaml:"label,omitempty"`
	Kind      Kind     `json:"kind" yaml:"kind"`
	Default   string   `json:"default,omitempty" yaml:"default,omitempty"`
	Options   []string `json:"options,omitempty" yaml:"options,omitempty"`
	Min       float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Max       float64  `json:"max,omitempty" yaml:"max,omitempty"`
	Step      float64  `json:"step,omitempty" yaml:"step,omitempty"`
	Validator string   `json:"validator,omitempty" yaml:"validator,omitempty"`
}

// Validate checks that the declaration is well-formed. Errors wrap
// ErrInvalidDeclaration together with the specific cause.
func (d Declaration) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDeclaration, ErrInvalidName)
	}
	if !IsValidKind(d.Kind) {
		return fmt.Errorf("%w: %s: %w %q", ErrInvalidDeclaration, d.Name, ErrInvalidKind, d.Kind)
	}
	switch d.Kind {
	case KindSwitch:
		if len(d.Options) == 0 {
			return fmt.Errorf("%w: %s: switch needs at least one option", ErrInvalidDeclaration, d.Name)
		}
		// Options are matched case-insensitively, so they must differ
		// ignoring case.
		seen := make(map[string]bool, len(d.Options))
		for _, o := range d.Options {
			key := strings.ToLower(o)
			if o == "" || seen[key] {
				return fmt.Errorf("%w: %s: option %q is empty or repeated", ErrInvalidDeclaration, d.Name, o)
			}
			seen[key] = true
		}
	case KindSlider:
		if math.IsNaN(d.Min) || math.IsNaN(d.Max) || d.Max <= d.Min {
			return fmt.Errorf("%w: %s: slider max must exceed min", ErrInvalidDeclaration, d.Name)
		}
		if d.Step < 0 || math.IsNaN(d.Step) {
			return fmt.Errorf("%w: %s: slider step must not be negative", ErrInvalidDeclaration, d.Name)
		}
	}
	if _, err := LookupValidator(d.Validator); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidDeclaration, d.Name, err)
	}
	if d.Default != "" {
		if _, err := parseValue(d.zeroValue(), d.Default); err != nil {
			return fmt.Errorf("%w: %s: default: %w", ErrInvalidDeclaration, d.Name, err)
		}
	}
	return nil
}

// DisplayName returns Label, or Name when no label is declared.
func (d Declaration) DisplayName() string {
	if d.Label != "" {
		return d.Label
	}
	return d.Name
}

// zeroValue returns the kind-based initial value before Default applies:
// empty text, toggle off, first option, slider at Min.
func (d Declaration) zeroValue() Value {
	switch d.Kind {
	case KindText:
		return TextValue{}
	case KindToggle:
		return ToggleValue{}
	case KindSwitch:
		opts := make([]string, len(d.Options))
		copy(opts, d.Options)
		return SwitchValue{Options: opts}
	case KindSlider:
		return SliderValue{Min: d.Min, Max: d.Max, Step: d.Step, Current: d.Min}
	default:
		return nil
	}
}

// initialValue returns the zero value with Default applied.
func (d Declaration) initialValue() (Value, error) {
	v := d.zeroValue()
	if v == nil {
		return nil, ErrInvalidKind
	}
	if d.Default == "" {
		return v, nil
	}
	return parseValue(v, d.Default)
}

// CheckDeclarations validates each declaration and verifies that names are
// pairwise distinct.
func CheckDeclarations(decls []Declaration) error {
	seen := make(map[string]bool, len(decls))
	for _, d := range decls {
		if err := d.Validate(); err != nil {
			return err
		}
		if seen[d.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateName, d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}
