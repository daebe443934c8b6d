package types

// Kind names the closed set of value kinds an entry can hold. The kind
// decides how a value is parsed and rendered, never how it is keyed.
type Kind string

// Entry kinds.
const (
	KindText   Kind = "text"
	KindToggle Kind = "toggle"
	KindSwitch Kind = "switch"
	KindSlider Kind = "slider"
)

// validKinds is the set of recognized entry kinds.
var validKinds = map[Kind]bool{
	KindText:   true,
	KindToggle: true,
	KindSwitch: true,
	KindSlider: true,
}

// IsValidKind reports whether k is a recognized entry kind.
func IsValidKind(k Kind) bool {
	return validKinds[k]
}

// AllKinds lists the entry kinds in declaration order.
var AllKinds = []Kind{KindText, KindToggle, KindSwitch, KindSlider}
