package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mesh-intelligence/dials/internal/sqlite"
	"github.com/mesh-intelligence/dials/pkg/types"
)

// attachBackend resolves the data directory, creates a SQLite backend, and
// attaches it. The caller must defer backend.Detach().
func (a *app) attachBackend() (*sqlite.Backend, error) {
	dataDir, err := a.resolveDataDir()
	if err != nil {
		return nil, sysError(fmt.Errorf("resolve data dir: %w", err))
	}

	cfg := types.Config{
		Backend: a.cfg.GetString(cfgKeyBackend),
		DataDir: dataDir,
	}
	if err := cfg.Validate(); err != nil {
		return nil, userError(fmt.Errorf("config: %w", err))
	}

	backend := sqlite.NewBackend()
	if err := backend.Attach(cfg); err != nil {
		return nil, sysError(fmt.Errorf("attach backend: %w", err))
	}
	return backend, nil
}

// storeError classifies an error from the backend or the server.
func storeError(err error) error {
	switch {
	case errors.Is(err, types.ErrLocationNotFound),
		errors.Is(err, types.ErrInvalidLocation),
		errors.Is(err, types.ErrInvalidDeclaration),
		errors.Is(err, types.ErrDuplicateName),
		errors.Is(err, types.ErrUnknownEntryName),
		errors.Is(err, types.ErrValidationRejected):
		return userError(err)
	}
	return sysError(err)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return sysError(fmt.Errorf("marshal JSON: %w", err))
	}
	if _, err := fmt.Fprintln(w, string(out)); err != nil {
		return sysError(fmt.Errorf("write output: %w", err))
	}
	return nil
}

// parseAssignments splits name=value arguments. Later duplicates win but
// keep the position of the first.
func parseAssignments(args []string) ([]string, map[string]string, error) {
	var order []string
	values := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, nil, userError(fmt.Errorf("invalid assignment %q (expected name=value)", arg))
		}
		if _, seen := values[name]; !seen {
			order = append(order, name)
		}
		values[name] = value
	}
	return order, values, nil
}

// entryView is the JSON and table form of one entry.
type entryView struct {
	Name    string     `json:"name"`
	Label   string     `json:"label"`
	Kind    types.Kind `json:"kind"`
	Value   string     `json:"value"`
	Dirty   bool       `json:"dirty,omitempty"`
	Options []string   `json:"options,omitempty"`
}

func entryViews(entries []types.Entry) []entryView {
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		v := entryView{Name: e.Name(), Label: e.Label(), Value: e.Display(), Dirty: e.IsDirty()}
		if d, ok := e.(types.Declared); ok {
			decl := d.Declaration()
			v.Kind = decl.Kind
			v.Options = decl.Options
		}
		views = append(views, v)
	}
	return views
}

// printEntries writes a location's entries as JSON or as aligned text.
func (a *app) printEntries(w io.Writer, loc types.Location, title string, entries []types.Entry) error {
	views := entryViews(entries)
	if a.jsonMode {
		return printJSON(w, map[string]any{
			"location": loc,
			"title":    title,
			"entries":  views,
		})
	}
	fmt.Fprintf(w, "%s (%s)\n", title, loc)
	width := 0
	for _, v := range views {
		width = max(width, len(v.Label))
	}
	for _, v := range views {
		marker := ""
		if v.Dirty {
			marker = " *"
		}
		fmt.Fprintf(w, "  %-*s  %s%s\n", width, v.Label, v.Value, marker)
	}
	return nil
}

// printFieldErrors reports skipped fields, one per line.
func printFieldErrors(w io.Writer, errs []types.FieldError) {
	for _, fe := range errs {
		fmt.Fprintf(w, "skipped %s (%s): %v\n", fe.Name, fe.Kind, fe.Err)
	}
}
