package sqlite

import "encoding/json"

// JSONL file names in DataDir.
const (
	locationsFile = "locations.jsonl"
	entriesFile   = "entries.jsonl"
	applyLogFile  = "apply_log.jsonl"
)

// locationJSON represents a location in locations.jsonl. A nil Title means
// the location has no title of its own.
type locationJSON struct {
	Location  string  `json:"location"`
	Title     *string `json:"title"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// entryJSON represents one declared entry and its stored value in
// entries.jsonl. Value is the entry's display string.
type entryJSON struct {
	Location    string          `json:"location"`
	Name        string          `json:"name"`
	Ordinal     int             `json:"ordinal"`
	Declaration json.RawMessage `json:"declaration"`
	Value       string          `json:"value"`
	UpdatedAt   string          `json:"updated_at"`
}

// applyLogJSON represents one accepted batch in apply_log.jsonl.
type applyLogJSON struct {
	BatchID   string   `json:"batch_id"`
	Location  string   `json:"location"`
	Names     []string `json:"names"`
	AppliedAt string   `json:"applied_at"`
}
