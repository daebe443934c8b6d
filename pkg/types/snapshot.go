package types

import "fmt"

// Declared is implemented by entries that can describe themselves with a
// Declaration. Property implements it.
type Declared interface {
	Declaration() Declaration
}

// Snapshot is the full read model of one location: every declared entry
// with its current value. A mirror bootstraps its local copy from it.
type Snapshot struct {
	Location Location        `json:"location"`
	Title    string          `json:"title,omitempty"`
	Entries  []SnapshotEntry `json:"entries"`
}

// SnapshotEntry is one entry inside a Snapshot. Data is the entry's Write
// output; Display is informational.
type SnapshotEntry struct {
	Declaration Declaration `json:"declaration"`
	Display     string      `json:"display"`
	Data        []byte      `json:"data"`
}

// NewSnapshot captures entries for loc. Every entry must implement
// Declared.
func NewSnapshot(loc Location, title string, entries []Entry) (Snapshot, error) {
	s := Snapshot{
		Location: loc,
		Title:    title,
		Entries:  make([]SnapshotEntry, 0, len(entries)),
	}
	for _, e := range entries {
		d, ok := e.(Declared)
		if !ok {
			return Snapshot{}, fmt.Errorf("snapshot %s: %w: entry has no declaration", e.Name(), ErrInvalidData)
		}
		data, err := e.Write()
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot %s: %w", e.Name(), err)
		}
		s.Entries = append(s.Entries, SnapshotEntry{
			Declaration: d.Declaration(),
			Display:     e.Display(),
			Data:        data,
		})
	}
	return s, nil
}

// Properties rebuilds clean properties from the snapshot, in order.
func (s Snapshot) Properties() ([]*Property, error) {
	props := make([]*Property, 0, len(s.Entries))
	for _, se := range s.Entries {
		p, err := NewProperty(se.Declaration)
		if err != nil {
			return nil, err
		}
		if err := p.Read(se.Data); err != nil {
			return nil, err
		}
		props = append(props, p)
	}
	return props, nil
}

// Declarations returns the declarations carried by the snapshot.
func (s Snapshot) Declarations() []Declaration {
	decls := make([]Declaration, len(s.Entries))
	for i, se := range s.Entries {
		decls[i] = se.Declaration
	}
	return decls
}
