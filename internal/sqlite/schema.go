package sqlite

// Schema DDL. The database is a query cache rebuilt from the JSONL files on
// every Attach, so there are no migrations.
const (
	createLocations = `CREATE TABLE locations (
    location TEXT PRIMARY KEY,
    title TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createEntries = `CREATE TABLE entries (
    location TEXT NOT NULL,
    name TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    declaration TEXT NOT NULL,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (location, name),
    FOREIGN KEY (location) REFERENCES locations(location) ON DELETE CASCADE
);`

	createApplyLog = `CREATE TABLE apply_log (
    batch_id TEXT PRIMARY KEY,
    location TEXT NOT NULL,
    names TEXT NOT NULL,
    applied_at TEXT NOT NULL,
    FOREIGN KEY (location) REFERENCES locations(location) ON DELETE CASCADE
);`
)

// Index DDL for common queries.
const (
	idxEntriesOrdinal   = `CREATE INDEX idx_entries_ordinal ON entries(location, ordinal);`
	idxApplyLogLocation = `CREATE INDEX idx_apply_log_location ON apply_log(location, applied_at);`
)

// schemaDDL lists all CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	createLocations,
	createEntries,
	createApplyLog,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxEntriesOrdinal,
	idxApplyLogLocation,
}
