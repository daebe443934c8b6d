package sqlite

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mesh-intelligence/dials/pkg/types"
)

// bundleJSON is one line of an export file: a location with its
// declarations and stored values.
type bundleJSON struct {
	Location string            `json:"location"`
	Title    string            `json:"title,omitempty"`
	Entries  []bundleEntryJSON `json:"entries"`
}

type bundleEntryJSON struct {
	Declaration types.Declaration `json:"declaration"`
	Value       string            `json:"value"`
}

// Export writes every location to path as JSONL, one location per line,
// replacing path atomically. It returns the number of locations written.
func (b *Backend) Export(path string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return 0, types.ErrStoreDetached
	}

	bundles, err := b.bundles()
	if err != nil {
		return 0, err
	}
	if err := writeRecordsTo(path, bundles); err != nil {
		return 0, err
	}
	return len(bundles), nil
}

func (b *Backend) bundles() ([]bundleJSON, error) {
	rows, err := b.db.Query(`
		SELECT l.location, COALESCE(l.title, ''), e.declaration, e.value
		FROM locations l LEFT JOIN entries e ON e.location = l.location
		ORDER BY l.location, e.ordinal`)
	if err != nil {
		return nil, fmt.Errorf("reading locations for export: %w", err)
	}
	defer rows.Close()

	var bundles []bundleJSON
	for rows.Next() {
		var loc, title string
		var declJSON, value *string
		if err := rows.Scan(&loc, &title, &declJSON, &value); err != nil {
			return nil, fmt.Errorf("scanning export row: %w", err)
		}
		if len(bundles) == 0 || bundles[len(bundles)-1].Location != loc {
			bundles = append(bundles, bundleJSON{Location: loc, Title: title, Entries: []bundleEntryJSON{}})
		}
		if declJSON == nil {
			continue
		}
		var d types.Declaration
		if err := json.Unmarshal([]byte(*declJSON), &d); err != nil {
			return nil, fmt.Errorf("decoding declaration at %s: %w", loc, err)
		}
		last := &bundles[len(bundles)-1]
		last.Entries = append(last.Entries, bundleEntryJSON{Declaration: d, Value: *value})
	}
	return bundles, rows.Err()
}

// Import declares every location in the JSONL file at path with the values
// it carries. A value that does not restore under its declaration falls
// back to the declared default. Malformed lines are skipped. Locations not
// in the file are left alone. It returns the number of locations imported.
func (b *Backend) Import(path string) (int, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	records, err := readJSONL(path)
	if err != nil {
		return 0, err
	}

	bundles := make([]bundleJSON, 0, len(records))
	for _, rec := range records {
		var bj bundleJSON
		if err := json.Unmarshal(rec, &bj); err != nil || bj.Location == "" {
			continue
		}
		decls := make([]types.Declaration, len(bj.Entries))
		for i, e := range bj.Entries {
			decls[i] = e.Declaration
		}
		if err := types.CheckDeclarations(decls); err != nil {
			return 0, fmt.Errorf("import %s: %w", bj.Location, err)
		}
		bundles = append(bundles, bj)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return 0, types.ErrStoreDetached
	}

	for _, bj := range bundles {
		decls := make([]types.Declaration, len(bj.Entries))
		values := make(map[string]string, len(bj.Entries))
		for i, e := range bj.Entries {
			decls[i] = e.Declaration
			values[e.Declaration.Name] = e.Value
		}
		if err := b.declareLocked(types.Location(bj.Location), bj.Title, decls, values); err != nil {
			return 0, fmt.Errorf("import %s: %w", bj.Location, err)
		}
	}
	if err := b.persistLocationsJSONL(); err != nil {
		return 0, err
	}
	if err := b.persistEntriesJSONL(); err != nil {
		return 0, err
	}
	return len(bundles), nil
}
