// Package sqlite implements the SQLite canonical store for dials. JSONL
// files in DataDir are the source of truth; the SQLite database is rebuilt
// from them on every Attach and serves queries. Every mutation commits to
// SQLite and then rewrites the affected JSONL files atomically.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/dials/pkg/types"
)

// dbFile is the SQLite file created in DataDir.
const dbFile = "dials.db"

// timeFormat is RFC 3339 with fixed-width nanoseconds, so stored
// timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Backend implements types.Store on SQLite.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	dataDir  string
	db       *sql.DB

	now func() time.Time
}

var _ types.Store = (*Backend)(nil)

// NewBackend creates a new SQLite backend. It is not attached; call Attach
// with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{now: time.Now}
}

// Attach creates DataDir if needed, rebuilds the database from the JSONL
// files, and makes the backend ready. Returns ErrAlreadyAttached if already
// attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFile)
	// The database is a cache of the JSONL files; start from a fresh schema.
	_ = os.Remove(dbPath)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)")
	if err != nil {
		return fmt.Errorf("opening %s: %w", dbPath, err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return err
	}
	if err := loadAllJSONL(db, dataDir); err != nil {
		db.Close()
		return fmt.Errorf("load JSONL: %w", err)
	}

	b.db = db
	b.config = config
	b.dataDir = dataDir
	b.attached = true
	return nil
}

// Detach closes the database. After Detach, operations return
// ErrStoreDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	if err := b.db.Close(); err != nil {
		return err
	}
	b.db = nil
	b.attached = false
	return nil
}

func createSchema(db *sql.DB) error {
	for _, ddl := range schemaDDL {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	for _, ddl := range indexDDL {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}
	return nil
}

func (b *Backend) path(file string) string {
	return filepath.Join(b.dataDir, file)
}

func (b *Backend) timestamp() string {
	return b.now().UTC().Format(timeFormat)
}

// Declare replaces the declared entries of loc, creating the location if
// needed. An entry whose stored value still restores under its new
// declaration keeps that value; other entries start from their default.
// Entries no longer declared are removed. An empty title clears the
// location's own title.
func (b *Backend) Declare(loc types.Location, title string, decls []types.Declaration) error {
	if loc == "" {
		return types.ErrInvalidLocation
	}
	if err := types.CheckDeclarations(decls); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrStoreDetached
	}

	stored, err := b.storedValues(loc)
	if err != nil {
		return err
	}
	if err := b.declareLocked(loc, title, decls, stored); err != nil {
		return err
	}
	if err := b.persistLocationsJSONL(); err != nil {
		return err
	}
	return b.persistEntriesJSONL()
}

// declareLocked writes loc's declarations in one transaction, preferring
// the values in stored. The caller holds b.mu and persists JSONL.
func (b *Backend) declareLocked(loc types.Location, title string, decls []types.Declaration, stored map[string]string) error {
	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning declare: %w", err)
	}
	defer tx.Rollback()

	now := b.timestamp()
	var titleArg any
	if title != "" {
		titleArg = title
	}
	if _, err := tx.Exec(`
		INSERT INTO locations (location, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(location) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at`,
		string(loc), titleArg, now, now); err != nil {
		return fmt.Errorf("upserting location: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM entries WHERE location = ?", string(loc)); err != nil {
		return fmt.Errorf("clearing entries: %w", err)
	}

	for i, d := range decls {
		value, err := restoreOrInit(d, stored)
		if err != nil {
			return err
		}
		declJSON, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("encoding declaration %s: %w", d.Name, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO entries (location, name, ordinal, declaration, value, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(loc), d.Name, i, string(declJSON), value, now); err != nil {
			return fmt.Errorf("inserting entry %s: %w", d.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing declare: %w", err)
	}
	return nil
}

// restoreOrInit returns the display string to store for d: the previously
// stored value if it restores under d, otherwise d's initial value.
func restoreOrInit(d types.Declaration, stored map[string]string) (string, error) {
	if old, ok := stored[d.Name]; ok {
		if p, err := types.RestoreProperty(d, old); err == nil {
			return p.Display(), nil
		}
	}
	p, err := types.NewProperty(d)
	if err != nil {
		return "", err
	}
	return p.Display(), nil
}

func (b *Backend) storedValues(loc types.Location) (map[string]string, error) {
	rows, err := b.db.Query("SELECT name, value FROM entries WHERE location = ?", string(loc))
	if err != nil {
		return nil, fmt.Errorf("reading stored values: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scanning stored value: %w", err)
		}
		values[name] = value
	}
	return values, rows.Err()
}

// Locations lists every declared location in key order.
func (b *Backend) Locations() ([]types.LocationInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}

	rows, err := b.db.Query(`
		SELECT l.location, COALESCE(l.title, ''), COUNT(e.name), l.updated_at
		FROM locations l LEFT JOIN entries e ON e.location = l.location
		GROUP BY l.location
		ORDER BY l.location`)
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}
	defer rows.Close()

	infos := []types.LocationInfo{}
	for rows.Next() {
		var info types.LocationInfo
		var updatedAt string
		if err := rows.Scan(&info.Location, &info.Title, &info.Entries, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning location: %w", err)
		}
		info.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Entries materializes fresh properties for loc in declaration order. The
// returned entries are clean and owned by the caller; mutating them does
// not change the store until they are passed to ApplyEntries.
func (b *Backend) Entries(loc types.Location) ([]types.Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}
	if err := b.requireLocation(loc); err != nil {
		return nil, err
	}

	rows, err := b.db.Query("SELECT declaration, value FROM entries WHERE location = ? ORDER BY ordinal", string(loc))
	if err != nil {
		return nil, fmt.Errorf("reading entries: %w", err)
	}
	defer rows.Close()

	entries := []types.Entry{}
	for rows.Next() {
		var declJSON, value string
		if err := rows.Scan(&declJSON, &value); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		var d types.Declaration
		if err := json.Unmarshal([]byte(declJSON), &d); err != nil {
			return nil, fmt.Errorf("decoding declaration: %w", err)
		}
		p, err := types.RestoreProperty(d, value)
		if err != nil {
			return nil, fmt.Errorf("restoring %s at %s: %w", d.Name, loc, err)
		}
		entries = append(entries, p)
	}
	return entries, rows.Err()
}

// Title returns the location's own title. ok is false when the location is
// unknown, has no title, or the backend is detached.
func (b *Backend) Title(loc types.Location) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return "", false
	}

	var title sql.NullString
	err := b.db.QueryRow("SELECT title FROM locations WHERE location = ?", string(loc)).Scan(&title)
	if err != nil || !title.Valid || title.String == "" {
		return "", false
	}
	return title.String, true
}

// ApplyEntries stores the values of applied and records the batch in the
// apply log, all in one transaction.
func (b *Backend) ApplyEntries(loc types.Location, applied map[string]types.Entry) error {
	if len(applied) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrStoreDetached
	}
	if err := b.requireLocation(loc); err != nil {
		return err
	}

	names := make([]string, 0, len(applied))
	for name := range applied {
		names = append(names, name)
	}
	sort.Strings(names)

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning apply: %w", err)
	}
	defer tx.Rollback()

	now := b.timestamp()
	for _, name := range names {
		res, err := tx.Exec("UPDATE entries SET value = ?, updated_at = ? WHERE location = ? AND name = ?",
			applied[name].Display(), now, string(loc), name)
		if err != nil {
			return fmt.Errorf("storing %s: %w", name, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("storing %s at %s: %w", name, loc, types.ErrUnknownEntryName)
		}
	}

	namesJSON, err := json.Marshal(names)
	if err != nil {
		return err
	}
	batchID := uuid.Must(uuid.NewV7()).String()
	if _, err := tx.Exec("INSERT INTO apply_log (batch_id, location, names, applied_at) VALUES (?, ?, ?, ?)",
		batchID, string(loc), string(namesJSON), now); err != nil {
		return fmt.Errorf("recording batch: %w", err)
	}
	if _, err := tx.Exec("UPDATE locations SET updated_at = ? WHERE location = ?", now, string(loc)); err != nil {
		return fmt.Errorf("touching location: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing apply: %w", err)
	}
	if err := b.persistEntriesJSONL(); err != nil {
		return err
	}
	if err := b.persistLocationsJSONL(); err != nil {
		return err
	}
	return b.persistApplyLogJSONL()
}

// History returns up to limit applied batches for loc, newest first. A
// limit of zero or less returns every batch.
func (b *Backend) History(loc types.Location, limit int) ([]types.AppliedBatch, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrStoreDetached
	}
	if err := b.requireLocation(loc); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := b.db.Query(`
		SELECT batch_id, names, applied_at FROM apply_log
		WHERE location = ?
		ORDER BY applied_at DESC, batch_id DESC
		LIMIT ?`, string(loc), limit)
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	defer rows.Close()

	batches := []types.AppliedBatch{}
	for rows.Next() {
		batch := types.AppliedBatch{Location: loc}
		var names, appliedAt string
		if err := rows.Scan(&batch.BatchID, &names, &appliedAt); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		if err := json.Unmarshal([]byte(names), &batch.Names); err != nil {
			return nil, fmt.Errorf("batch %s names: %w", batch.BatchID, err)
		}
		batch.AppliedAt, _ = time.Parse(timeFormat, appliedAt)
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

// Forget removes loc with its entries and history.
func (b *Backend) Forget(loc types.Location) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrStoreDetached
	}

	res, err := b.db.Exec("DELETE FROM locations WHERE location = ?", string(loc))
	if err != nil {
		return fmt.Errorf("deleting location: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", types.ErrLocationNotFound, loc)
	}
	for _, persist := range []func() error{b.persistLocationsJSONL, b.persistEntriesJSONL, b.persistApplyLogJSONL} {
		if err := persist(); err != nil {
			return err
		}
	}
	return nil
}

// requireLocation returns ErrLocationNotFound unless loc is declared. The
// caller holds b.mu.
func (b *Backend) requireLocation(loc types.Location) error {
	var one int
	err := b.db.QueryRow("SELECT 1 FROM locations WHERE location = ?", string(loc)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", types.ErrLocationNotFound, loc)
	}
	if err != nil {
		return fmt.Errorf("looking up location: %w", err)
	}
	return nil
}
