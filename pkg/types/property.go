package types

import (
	"fmt"
	"math"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Property is the concrete Entry: a declared, typed value with a dirty
// flag. Local edits (Parse, Set, Toggle, Cycle, SetFraction) mark it
// dirty; Read applies a value received from the other side and leaves
// the dirty flag alone. Only MarkClean clears it.
type Property struct {
	decl      Declaration
	value     Value
	validator Validator
	dirty     bool
}

var _ Entry = (*Property)(nil)

// NewProperty builds a clean property from decl, seeded with the declared
// default. Returns an error wrapping ErrInvalidDeclaration if decl does
// not validate.
func NewProperty(decl Declaration) (*Property, error) {
	if err := decl.Validate(); err != nil {
		return nil, err
	}
	v, err := decl.initialValue()
	if err != nil {
		return nil, err
	}
	validator, _ := LookupValidator(decl.Validator)
	return &Property{decl: decl, value: v, validator: validator}, nil
}

// RestoreProperty builds a clean property from decl and a stored display
// string, as written by a store from Display. The validator is not
// consulted; the stored value was accepted when it was written.
func RestoreProperty(decl Declaration, stored string) (*Property, error) {
	p, err := NewProperty(decl)
	if err != nil {
		return nil, err
	}
	v, err := parseValue(p.value, stored)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", decl.Name, err)
	}
	p.value = v
	return p, nil
}

// Name returns the synchronization key.
func (p *Property) Name() string { return p.decl.Name }

// Label returns the presentation name. It is never used as a key.
func (p *Property) Label() string { return p.decl.DisplayName() }

// Kind returns the value kind.
func (p *Property) Kind() Kind { return p.decl.Kind }

// Value returns the current value.
func (p *Property) Value() Value { return p.value }

// Declaration returns the declaration the property was built from.
func (p *Property) Declaration() Declaration { return p.decl }

// Display renders the current value for an editor field.
func (p *Property) Display() string { return display(p.value) }

// IsDirty reports whether a local edit happened since the last MarkClean.
func (p *Property) IsDirty() bool { return p.dirty }

// MarkClean clears the dirty flag. Owners call it once the other side has
// confirmed the value; encoding never does.
func (p *Property) MarkClean() { p.dirty = false }

// Parse applies editor text. Text rejected by the validator, or text the
// kind cannot parse, returns an error wrapping ErrValidationRejected and
// leaves both value and dirty flag unchanged.
func (p *Property) Parse(text string) error {
	if p.validator != nil && !p.validator(text) {
		return fmt.Errorf("%w: %s: %q", ErrValidationRejected, p.decl.Name, text)
	}
	v, err := parseValue(p.value, text)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrValidationRejected, p.decl.Name, err)
	}
	p.value = v
	p.dirty = true
	return nil
}

// Set replaces the value programmatically. The new value must have the
// same kind and constraints as the current one.
func (p *Property) Set(v Value) error {
	if err := checkValue(p.value, v); err != nil {
		return fmt.Errorf("set %s: %w", p.decl.Name, err)
	}
	p.value = v
	p.dirty = true
	return nil
}

// Toggle flips a toggle property.
func (p *Property) Toggle() error {
	v, ok := p.value.(ToggleValue)
	if !ok {
		return fmt.Errorf("toggle %s: %w", p.decl.Name, ErrKindMismatch)
	}
	v.On = !v.On
	p.value = v
	p.dirty = true
	return nil
}

// Cycle moves a switch selection by delta options, wrapping around.
func (p *Property) Cycle(delta int) error {
	v, ok := p.value.(SwitchValue)
	if !ok {
		return fmt.Errorf("cycle %s: %w", p.decl.Name, ErrKindMismatch)
	}
	n := len(v.Options)
	v.Selected = ((v.Selected+delta)%n + n) % n
	p.value = v
	p.dirty = true
	return nil
}

// SetFraction positions a slider at f in [0, 1] of its range, snapped to
// the step.
func (p *Property) SetFraction(f float64) error {
	v, ok := p.value.(SliderValue)
	if !ok {
		return fmt.Errorf("set fraction %s: %w", p.decl.Name, ErrKindMismatch)
	}
	if math.IsNaN(f) {
		return fmt.Errorf("set fraction %s: %w", p.decl.Name, ErrOutOfRange)
	}
	f = math.Max(0, math.Min(1, f))
	v.Current = v.clamp(v.Min + f*(v.Max-v.Min))
	p.value = v
	p.dirty = true
	return nil
}

// Write encodes the value alone as CBOR: text as a string, toggle as a
// bool, switch as the selected option name, slider as a float64.
func (p *Property) Write() ([]byte, error) {
	var raw any
	switch v := p.value.(type) {
	case TextValue:
		raw = v.Text
	case ToggleValue:
		raw = v.On
	case SwitchValue:
		opt := v.Option()
		if opt == "" {
			return nil, fmt.Errorf("%s: %w: no option selected", p.decl.Name, ErrOutOfRange)
		}
		raw = opt
	case SliderValue:
		if math.IsNaN(v.Current) || math.IsInf(v.Current, 0) {
			return nil, fmt.Errorf("%s: %w: slider value is not finite", p.decl.Name, ErrOutOfRange)
		}
		raw = v.Current
	default:
		return nil, fmt.Errorf("%s: %w", p.decl.Name, ErrInvalidKind)
	}
	data, err := cbor.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: encode: %w", p.decl.Name, err)
	}
	return data, nil
}

// Read decodes data written by Write and replaces the value. A slider
// number inside the range is snapped to the step. The dirty flag is not
// touched. On error the value is unchanged.
func (p *Property) Read(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%s: %w: empty data", p.decl.Name, ErrInvalidData)
	}
	switch v := p.value.(type) {
	case TextValue:
		var s string
		if err := cbor.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%s: %w: %w", p.decl.Name, ErrInvalidData, err)
		}
		p.value = TextValue{Text: s}
	case ToggleValue:
		var on bool
		if err := cbor.Unmarshal(data, &on); err != nil {
			return fmt.Errorf("%s: %w: %w", p.decl.Name, ErrInvalidData, err)
		}
		p.value = ToggleValue{On: on}
	case SwitchValue:
		var name string
		if err := cbor.Unmarshal(data, &name); err != nil {
			return fmt.Errorf("%s: %w: %w", p.decl.Name, ErrInvalidData, err)
		}
		i, ok := v.indexOf(name)
		if !ok {
			return fmt.Errorf("%s: %w: %q", p.decl.Name, ErrUnknownOption, name)
		}
		v.Selected = i
		p.value = v
	case SliderValue:
		x, err := decodeNumber(data)
		if err != nil {
			return fmt.Errorf("%s: %w", p.decl.Name, err)
		}
		if math.IsNaN(x) || x < v.Min || x > v.Max {
			return fmt.Errorf("%s: %w: %v not in [%v, %v]", p.decl.Name, ErrOutOfRange, x, v.Min, v.Max)
		}
		// Same snapping as Parse, so a stored value restores unchanged.
		v.Current = v.clamp(x)
		p.value = v
	default:
		return fmt.Errorf("%s: %w", p.decl.Name, ErrInvalidKind)
	}
	return nil
}

// decodeNumber accepts any CBOR integer or float.
func decodeNumber(data []byte) (float64, error) {
	var raw any
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	switch n := raw.(type) {
	case uint64:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("%w: expected a number, got %T", ErrInvalidData, raw)
	}
}

// String renders the property as name=display for logs.
func (p *Property) String() string {
	var b strings.Builder
	b.WriteString(p.decl.Name)
	b.WriteByte('=')
	b.WriteString(p.Display())
	if p.dirty {
		b.WriteString(" (dirty)")
	}
	return b.String()
}
