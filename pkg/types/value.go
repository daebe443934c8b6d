package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is the current value of an entry. It is a closed variant: the only
// implementations are TextValue, ToggleValue, SwitchValue and SliderValue.
// Kind-specific behavior is written as a type switch over those four arms.
type Value interface {
	Kind() Kind
	isValue()
}

// TextValue holds free text.
type TextValue struct {
	Text string
}

// ToggleValue holds a boolean toggle.
type ToggleValue struct {
	On bool
}

// SwitchValue holds an enumerated choice. Selected indexes Options.
type SwitchValue struct {
	Options  []string
	Selected int
}

// SliderValue holds a bounded number. Current always lies in [Min, Max];
// when Step is positive Current is a multiple of Step away from Min.
type SliderValue struct {
	Min     float64
	Max     float64
	Step    float64
	Current float64
}

func (TextValue) Kind() Kind   { return KindText }
func (ToggleValue) Kind() Kind { return KindToggle }
func (SwitchValue) Kind() Kind { return KindSwitch }
func (SliderValue) Kind() Kind { return KindSlider }

func (TextValue) isValue()   {}
func (ToggleValue) isValue() {}
func (SwitchValue) isValue() {}
func (SliderValue) isValue() {}

// Option returns the selected option name, or "" when the selection is
// out of range.
func (v SwitchValue) Option() string {
	if v.Selected < 0 || v.Selected >= len(v.Options) {
		return ""
	}
	return v.Options[v.Selected]
}

// indexOf finds an option by case-insensitive name.
func (v SwitchValue) indexOf(name string) (int, bool) {
	for i, o := range v.Options {
		if strings.EqualFold(o, name) {
			return i, true
		}
	}
	return -1, false
}

// clamp brings x into [Min, Max] and snaps it to Step. A snapped value is
// rounded to the decimal places of Min and Step, so clamp(clamp(x)) equals
// clamp(x) and the displayed text restores to the same number.
func (v SliderValue) clamp(x float64) float64 {
	if v.Step > 0 {
		x = v.Min + math.Round((x-v.Min)/v.Step)*v.Step
		if d := max(decimals(v.Min), decimals(v.Step)); d <= maxSnapDecimals {
			p := math.Pow10(d)
			x = math.Round(x*p) / p
		}
	}
	return math.Max(v.Min, math.Min(v.Max, x))
}

// maxSnapDecimals bounds the rounding applied by clamp; finer steps are
// left unrounded.
const maxSnapDecimals = 12

// decimals counts the digits after the decimal point in the shortest
// rendering of f.
func decimals(f float64) int {
	s := strconv.FormatFloat(math.Abs(f), 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// Fraction returns the position of Current within [Min, Max] as a number
// in [0, 1].
func (v SliderValue) Fraction() float64 {
	if v.Max <= v.Min {
		return 0
	}
	return (v.Current - v.Min) / (v.Max - v.Min)
}

// display renders v for an editor field.
func display(v Value) string {
	switch v := v.(type) {
	case TextValue:
		return v.Text
	case ToggleValue:
		return strconv.FormatBool(v.On)
	case SwitchValue:
		return v.Option()
	case SliderValue:
		return strconv.FormatFloat(v.Current, 'f', -1, 64)
	default:
		return ""
	}
}

// parseValue parses text against the shape of cur and returns the new
// value. It never mutates cur.
func parseValue(cur Value, text string) (Value, error) {
	switch v := cur.(type) {
	case TextValue:
		return TextValue{Text: text}, nil
	case ToggleValue:
		on, err := parseToggle(text)
		if err != nil {
			return nil, err
		}
		return ToggleValue{On: on}, nil
	case SwitchValue:
		name := strings.TrimSpace(text)
		if i, ok := v.indexOf(name); ok {
			v.Selected = i
			return v, nil
		}
		if i, err := strconv.Atoi(name); err == nil && i >= 0 && i < len(v.Options) {
			v.Selected = i
			return v, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownOption, text)
	case SliderValue:
		x, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrInvalidData, text)
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: %q is not finite", ErrOutOfRange, text)
		}
		v.Current = v.clamp(x)
		return v, nil
	default:
		return nil, ErrInvalidKind
	}
}

func parseToggle(text string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "true", "on", "yes", "1":
		return true, nil
	case "false", "off", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q is not a toggle value", ErrInvalidData, text)
	}
}

// checkValue verifies that next can replace cur: same kind, same shape,
// and within bounds.
func checkValue(cur, next Value) error {
	if next == nil || cur.Kind() != next.Kind() {
		return ErrKindMismatch
	}
	switch n := next.(type) {
	case TextValue, ToggleValue:
		return nil
	case SwitchValue:
		c := cur.(SwitchValue)
		if len(n.Options) != len(c.Options) {
			return ErrKindMismatch
		}
		for i := range n.Options {
			if n.Options[i] != c.Options[i] {
				return ErrKindMismatch
			}
		}
		if n.Selected < 0 || n.Selected >= len(n.Options) {
			return ErrOutOfRange
		}
		return nil
	case SliderValue:
		c := cur.(SliderValue)
		if n.Min != c.Min || n.Max != c.Max || n.Step != c.Step {
			return ErrKindMismatch
		}
		if math.IsNaN(n.Current) || n.Current < n.Min || n.Current > n.Max {
			return ErrOutOfRange
		}
		return nil
	default:
		return ErrInvalidKind
	}
}
