package sqlite

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// readJSONL reads a JSONL file and returns each non-empty, parseable line as
// a json.RawMessage. Malformed lines are skipped. A missing file reads as
// empty.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 || !json.Valid(line) {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL atomically replaces path with records, one per line, using
// the temp-file, fsync, rename pattern.
func writeJSONL(path string, records []json.RawMessage) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fail(fmt.Errorf("writing record: %w", err))
		}
		if err := w.WriteByte('\n'); err != nil {
			return fail(fmt.Errorf("writing newline: %w", err))
		}
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("flushing buffer: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("syncing temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// marshalRecords encodes each record as one JSON line.
func marshalRecords[T any](recs []T) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(recs))
	for _, r := range recs {
		b, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// JSONL persistence helpers. Each reads every row of its table and rewrites
// the matching file. The caller holds b.mu.

func (b *Backend) persistLocationsJSONL() error {
	rows, err := b.db.Query("SELECT location, title, created_at, updated_at FROM locations ORDER BY location")
	if err != nil {
		return fmt.Errorf("reading locations for JSONL: %w", err)
	}
	defer rows.Close()

	var recs []locationJSON
	for rows.Next() {
		var r locationJSON
		if err := rows.Scan(&r.Location, &r.Title, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return fmt.Errorf("scanning location for JSONL: %w", err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return writeRecordsTo(b.path(locationsFile), recs)
}

func (b *Backend) persistEntriesJSONL() error {
	rows, err := b.db.Query("SELECT location, name, ordinal, declaration, value, updated_at FROM entries ORDER BY location, ordinal")
	if err != nil {
		return fmt.Errorf("reading entries for JSONL: %w", err)
	}
	defer rows.Close()

	var recs []entryJSON
	for rows.Next() {
		var r entryJSON
		var decl string
		if err := rows.Scan(&r.Location, &r.Name, &r.Ordinal, &decl, &r.Value, &r.UpdatedAt); err != nil {
			return fmt.Errorf("scanning entry for JSONL: %w", err)
		}
		r.Declaration = json.RawMessage(decl)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return writeRecordsTo(b.path(entriesFile), recs)
}

func (b *Backend) persistApplyLogJSONL() error {
	rows, err := b.db.Query("SELECT batch_id, location, names, applied_at FROM apply_log ORDER BY applied_at, batch_id")
	if err != nil {
		return fmt.Errorf("reading apply_log for JSONL: %w", err)
	}
	defer rows.Close()

	var recs []applyLogJSON
	for rows.Next() {
		var r applyLogJSON
		var names string
		if err := rows.Scan(&r.BatchID, &r.Location, &names, &r.AppliedAt); err != nil {
			return fmt.Errorf("scanning apply_log for JSONL: %w", err)
		}
		if err := json.Unmarshal([]byte(names), &r.Names); err != nil {
			return fmt.Errorf("apply_log %s names: %w", r.BatchID, err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return writeRecordsTo(b.path(applyLogFile), recs)
}

func writeRecordsTo[T any](path string, recs []T) error {
	lines, err := marshalRecords(recs)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	return writeJSONL(path, lines)
}
