package types

import "fmt"

// Entry is a single named, typed, editable property taking part in
// synchronization.
type Entry interface {
	// Name returns the synchronization key, unique within a container.
	Name() string

	// Label returns the presentation name.
	Label() string

	// Display renders the current value for an editor field. Pure.
	Display() string

	// Parse applies editor text and marks the entry dirty. Rejected text
	// returns an error wrapping ErrValidationRejected and changes nothing.
	Parse(text string) error

	// IsDirty reports whether the value was set by a local edit that has
	// not been confirmed yet.
	IsDirty() bool

	// Write encodes the value alone, without name or dirty flag.
	Write() ([]byte, error)

	// Read replaces the value from data produced by Write.
	Read(data []byte) error
}

// EntryProducer materializes the current entry set for a location. Two
// calls without an intervening state change return entries with the same
// names in the same order.
type EntryProducer interface {
	Entries(loc Location) ([]Entry, error)
}

// EntryConsumer receives one batch notification per decode with every
// entry that was successfully applied, keyed by name.
type EntryConsumer interface {
	ApplyEntries(loc Location, applied map[string]Entry) error
}

// TitleDescriber supplies an optional human-readable title. ok is false
// when the caller should substitute its own default.
type TitleDescriber interface {
	Title(loc Location) (title string, ok bool)
}

// Container is any canonical-state owner that can take part in
// synchronization. It does not need to embed or inherit anything.
type Container interface {
	EntryProducer
	EntryConsumer
	TitleDescriber
}

// TitleOrDefault returns the container's title for loc, or def when the
// container declines to supply one.
func TitleOrDefault(c TitleDescriber, loc Location, def string) string {
	if title, ok := c.Title(loc); ok {
		return title
	}
	return def
}

// CheckEntries verifies that entry names are non-empty and pairwise
// distinct.
func CheckEntries(entries []Entry) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		name := e.Name()
		if name == "" {
			return ErrInvalidName
		}
		if seen[name] {
			return fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		seen[name] = true
	}
	return nil
}

// EntryIndex maps entries by name. Later duplicates win.
func EntryIndex(entries []Entry) map[string]Entry {
	index := make(map[string]Entry, len(entries))
	for _, e := range entries {
		index[e.Name()] = e
	}
	return index
}
