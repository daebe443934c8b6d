// Package mirror keeps a local, editable copy of a server's locations.
// MemStore holds the copies; Session loads one location from a server,
// edits it, pushes the edits back and follows changes made by others.
package mirror

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mesh-intelligence/dials/pkg/types"
)

// MemStore is an in-memory Container. Entries returns the stored
// properties themselves, so a decode writes straight into the local copy.
type MemStore struct {
	mu   sync.Mutex
	locs map[types.Location]*memLocation

	// OnApplied, when set, is called after every accepted batch with the
	// applied names in sorted order.
	OnApplied func(loc types.Location, names []string)
}

type memLocation struct {
	title     string
	props     []*types.Property
	updatedAt time.Time
}

var _ types.Container = (*MemStore)(nil)

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{locs: make(map[types.Location]*memLocation)}
}

// Load replaces the copy of snap.Location with the snapshot's entries. All
// loaded entries are clean.
func (m *MemStore) Load(snap types.Snapshot) error {
	if snap.Location == "" {
		return types.ErrInvalidLocation
	}
	props, err := snap.Properties()
	if err != nil {
		return fmt.Errorf("load %s: %w", snap.Location, err)
	}
	entries := make([]types.Entry, len(props))
	for i, p := range props {
		entries[i] = p
	}
	if err := types.CheckEntries(entries); err != nil {
		return fmt.Errorf("load %s: %w", snap.Location, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.locs[snap.Location] = &memLocation{title: snap.Title, props: props, updatedAt: time.Now()}
	return nil
}

// Entries returns the live properties of loc in declaration order.
func (m *MemStore) Entries(loc types.Location) ([]types.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locs[loc]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrLocationNotFound, loc)
	}
	entries := make([]types.Entry, len(l.props))
	for i, p := range l.props {
		entries[i] = p
	}
	return entries, nil
}

// Property returns the live property name at loc.
func (m *MemStore) Property(loc types.Location, name string) (*types.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locs[loc]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrLocationNotFound, loc)
	}
	for _, p := range l.props {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q at %s", types.ErrUnknownEntryName, name, loc)
}

// ApplyEntries accepts a batch. The values are already in place; the
// store only checks the names and reports the batch.
func (m *MemStore) ApplyEntries(loc types.Location, applied map[string]types.Entry) error {
	m.mu.Lock()
	l, ok := m.locs[loc]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrLocationNotFound, loc)
	}
	names := make([]string, 0, len(applied))
	for name := range applied {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !l.has(name) {
			m.mu.Unlock()
			return fmt.Errorf("%w: %q at %s", types.ErrUnknownEntryName, name, loc)
		}
	}
	l.updatedAt = time.Now()
	hook := m.OnApplied
	m.mu.Unlock()

	if hook != nil && len(names) > 0 {
		hook(loc, names)
	}
	return nil
}

// Title returns the loaded title of loc; ok is false when it has none.
func (m *MemStore) Title(loc types.Location) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locs[loc]
	if !ok || l.title == "" {
		return "", false
	}
	return l.title, true
}

// Locations lists the loaded locations in key order.
func (m *MemStore) Locations() ([]types.LocationInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]types.LocationInfo, 0, len(m.locs))
	for loc, l := range m.locs {
		infos = append(infos, types.LocationInfo{
			Location:  loc,
			Title:     l.title,
			Entries:   len(l.props),
			UpdatedAt: l.updatedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Location < infos[j].Location })
	return infos, nil
}

func (l *memLocation) has(name string) bool {
	for _, p := range l.props {
		if p.Name() == name {
			return true
		}
	}
	return false
}
