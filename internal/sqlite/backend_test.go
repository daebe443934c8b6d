package sqlite

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/mesh-intelligence/dials/pkg/codec"
	"github.com/mesh-intelligence/dials/pkg/types"
)

var (
	volumeDecl = types.Declaration{Name: "volume", Kind: types.KindSlider, Min: 0, Max: 100, Default: "50"}
	labelDecl  = types.Declaration{Name: "label", Kind: types.KindText}
	modeDecl   = types.Declaration{Name: "mode", Kind: types.KindSwitch, Options: []string{"low", "medium", "high"}, Default: "low"}
)

const speaker types.Location = "10,64,-3"

func attachBackend(t *testing.T, dir string) *Backend {
	t.Helper()
	b := NewBackend()
	if err := b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	t.Cleanup(func() { b.Detach() })
	return b
}

func declareSpeaker(t *testing.T, b *Backend) {
	t.Helper()
	if err := b.Declare(speaker, "Kitchen speaker", []types.Declaration{volumeDecl, labelDecl}); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}
}

// applyText parses text into the named entry and applies it as one batch.
func applyText(t *testing.T, b *Backend, loc types.Location, values map[string]string) {
	t.Helper()
	entries, err := b.Entries(loc)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	applied := make(map[string]types.Entry)
	for _, e := range entries {
		if text, ok := values[e.Name()]; ok {
			if err := e.Parse(text); err != nil {
				t.Fatalf("Parse %s: %v", e.Name(), err)
			}
			applied[e.Name()] = e
		}
	}
	if err := b.ApplyEntries(loc, applied); err != nil {
		t.Fatalf("ApplyEntries failed: %v", err)
	}
}

func displays(t *testing.T, b *Backend, loc types.Location) map[string]string {
	t.Helper()
	entries, err := b.Entries(loc)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[e.Name()] = e.Display()
	}
	return out
}

func TestBackend_Attach(t *testing.T) {
	tmpDir := t.TempDir()
	b := attachBackend(t, tmpDir)

	if _, err := os.Stat(filepath.Join(tmpDir, dbFile)); err != nil {
		t.Errorf("%s not created: %v", dbFile, err)
	}

	err := b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: tmpDir})
	if err != types.ErrAlreadyAttached {
		t.Errorf("expected ErrAlreadyAttached, got %v", err)
	}
}

func TestBackend_AttachInvalidConfig(t *testing.T) {
	b := NewBackend()
	if err := b.Attach(types.Config{DataDir: t.TempDir()}); err != types.ErrBackendEmpty {
		t.Errorf("expected ErrBackendEmpty, got %v", err)
	}
}

func TestBackend_Detach(t *testing.T) {
	b := NewBackend()
	if err := b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	if err := b.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	if err := b.Detach(); err != nil {
		t.Errorf("second Detach should succeed, got %v", err)
	}

	if _, err := b.Entries(speaker); err != types.ErrStoreDetached {
		t.Errorf("expected ErrStoreDetached from Entries, got %v", err)
	}
	if err := b.Declare(speaker, "", []types.Declaration{labelDecl}); err != types.ErrStoreDetached {
		t.Errorf("expected ErrStoreDetached from Declare, got %v", err)
	}
	if _, ok := b.Title(speaker); ok {
		t.Error("Title should report no title when detached")
	}
}

func TestBackend_DeclareAndEntries(t *testing.T) {
	b := attachBackend(t, t.TempDir())
	declareSpeaker(t, b)

	entries, err := b.Entries(speaker)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Name() != "volume" || entries[1].Name() != "label" {
		t.Errorf("entries out of declaration order: %s, %s", entries[0].Name(), entries[1].Name())
	}
	if entries[0].Display() != "50" {
		t.Errorf("volume should start at its default, got %q", entries[0].Display())
	}
	for _, e := range entries {
		if e.IsDirty() {
			t.Errorf("%s should be clean after materialization", e.Name())
		}
	}
}

func TestBackend_EntriesAreFreshAndStable(t *testing.T) {
	b := attachBackend(t, t.TempDir())
	declareSpeaker(t, b)

	first, _ := b.Entries(speaker)
	if err := first[0].Parse("99"); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	second, _ := b.Entries(speaker)

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Name() != second[i].Name() {
			t.Errorf("order differs at %d: %s vs %s", i, first[i].Name(), second[i].Name())
		}
	}
	if second[0].Display() != "50" {
		t.Errorf("unapplied edit leaked into the store: %q", second[0].Display())
	}
}

func TestBackend_DeclareValidation(t *testing.T) {
	b := attachBackend(t, t.TempDir())

	err := b.Declare(speaker, "", []types.Declaration{labelDecl, labelDecl})
	if !errors.Is(err, types.ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
	err = b.Declare("", "", []types.Declaration{labelDecl})
	if !errors.Is(err, types.ErrInvalidLocation) {
		t.Errorf("expected ErrInvalidLocation, got %v", err)
	}
	err = b.Declare(speaker, "", []types.Declaration{{Name: "x", Kind: "dial"}})
	if !errors.Is(err, types.ErrInvalidDeclaration) {
		t.Errorf("expected ErrInvalidDeclaration, got %v", err)
	}
}

func TestBackend_RedeclareKeepsValues(t *testing.T) {
	b := attachBackend(t, t.TempDir())
	if err := b.Declare(speaker, "", []types.Declaration{volumeDecl, labelDecl, modeDecl}); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}
	applyText(t, b, speaker, map[string]string{"volume": "80", "label": "den", "mode": "high"})

	narrowed := types.Declaration{Name: "volume", Kind: types.KindSlider, Min: 0, Max: 10, Default: "5"}
	renamed := types.Declaration{Name: "mode", Kind: types.KindSwitch, Options: []string{"eco", "turbo"}}
	if err := b.Declare(speaker, "", []types.Declaration{labelDecl, narrowed, renamed}); err != nil {
		t.Fatalf("redeclare failed: %v", err)
	}

	got := displays(t, b, speaker)
	want := map[string]string{
		"label":  "den",
		"volume": "10",
		"mode":   "eco",
	}
	for name, w := range want {
		if got[name] != w {
			t.Errorf("%s = %q, want %q", name, got[name], w)
		}
	}

	if err := b.Declare(speaker, "", []types.Declaration{labelDecl}); err != nil {
		t.Fatalf("shrinking declare failed: %v", err)
	}
	if got := displays(t, b, speaker); len(got) != 1 {
		t.Errorf("undeclared entries should be removed, got %v", got)
	}
}

func TestBackend_Title(t *testing.T) {
	b := attachBackend(t, t.TempDir())
	declareSpeaker(t, b)
	if err := b.Declare("0,0,0", "", []types.Declaration{labelDecl}); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}

	if title, ok := b.Title(speaker); !ok || title != "Kitchen speaker" {
		t.Errorf("Title = %q, %v", title, ok)
	}
	if _, ok := b.Title("0,0,0"); ok {
		t.Error("untitled location should decline")
	}
	if _, ok := b.Title("9,9,9"); ok {
		t.Error("unknown location should decline")
	}
	if got := types.TitleOrDefault(b, "0,0,0", "0,0,0"); got != "0,0,0" {
		t.Errorf("TitleOrDefault = %q", got)
	}
}

func TestBackend_UnknownLocation(t *testing.T) {
	b := attachBackend(t, t.TempDir())

	if _, err := b.Entries("nowhere"); !errors.Is(err, types.ErrLocationNotFound) {
		t.Errorf("Entries: expected ErrLocationNotFound, got %v", err)
	}
	if _, err := b.History("nowhere", 0); !errors.Is(err, types.ErrLocationNotFound) {
		t.Errorf("History: expected ErrLocationNotFound, got %v", err)
	}
	p, _ := types.NewProperty(labelDecl)
	err := b.ApplyEntries("nowhere", map[string]types.Entry{"label": p})
	if !errors.Is(err, types.ErrLocationNotFound) {
		t.Errorf("ApplyEntries: expected ErrLocationNotFound, got %v", err)
	}
}

func TestBackend_ApplyEntriesRecordsHistory(t *testing.T) {
	b := attachBackend(t, t.TempDir())
	declareSpeaker(t, b)

	applyText(t, b, speaker, map[string]string{"volume": "75"})
	applyText(t, b, speaker, map[string]string{"volume": "20", "label": "porch"})

	got := displays(t, b, speaker)
	if got["volume"] != "20" || got["label"] != "porch" {
		t.Errorf("stored values = %v", got)
	}

	history, err := b.History(speaker, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected one history row per batch, got %d", len(history))
	}
	if len(history[0].Names) != 2 || history[0].Names[0] != "label" || history[0].Names[1] != "volume" {
		t.Errorf("newest batch names = %v", history[0].Names)
	}
	if len(history[1].Names) != 1 || history[1].Names[0] != "volume" {
		t.Errorf("oldest batch names = %v", history[1].Names)
	}
	if history[0].BatchID == "" || history[0].BatchID == history[1].BatchID {
		t.Errorf("batch ids should be distinct: %q, %q", history[0].BatchID, history[1].BatchID)
	}

	limited, err := b.History(speaker, 1)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(limited) != 1 || limited[0].BatchID != history[0].BatchID {
		t.Errorf("limited history = %+v", limited)
	}
}

func TestBackend_ApplyEntriesEmptyIsNoop(t *testing.T) {
	b := attachBackend(t, t.TempDir())
	declareSpeaker(t, b)

	if err := b.ApplyEntries(speaker, nil); err != nil {
		t.Fatalf("ApplyEntries failed: %v", err)
	}
	history, _ := b.History(speaker, 0)
	if len(history) != 0 {
		t.Errorf("empty batch should not be recorded, got %d rows", len(history))
	}
}

func TestBackend_ApplyEntriesUndeclaredName(t *testing.T) {
	b := attachBackend(t, t.TempDir())
	declareSpeaker(t, b)

	stray, _ := types.NewProperty(modeDecl)
	err := b.ApplyEntries(speaker, map[string]types.Entry{"mode": stray})
	if !errors.Is(err, types.ErrUnknownEntryName) {
		t.Errorf("expected ErrUnknownEntryName, got %v", err)
	}
	history, _ := b.History(speaker, 0)
	if len(history) != 0 {
		t.Errorf("rejected batch should roll back, got %d rows", len(history))
	}
}

func TestBackend_Locations(t *testing.T) {
	b := attachBackend(t, t.TempDir())
	declareSpeaker(t, b)
	if err := b.Declare("0,0,0", "", []types.Declaration{modeDecl}); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}

	infos, err := b.Locations()
	if err != nil {
		t.Fatalf("Locations failed: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 locations, got %d", len(infos))
	}
	if infos[0].Location != "0,0,0" || infos[0].Entries != 1 || infos[0].Title != "" {
		t.Errorf("first location = %+v", infos[0])
	}
	if infos[1].Location != speaker || infos[1].Entries != 2 || infos[1].Title != "Kitchen speaker" {
		t.Errorf("second location = %+v", infos[1])
	}
	if infos[1].UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set")
	}
}

func TestBackend_Forget(t *testing.T) {
	b := attachBackend(t, t.TempDir())
	declareSpeaker(t, b)
	applyText(t, b, speaker, map[string]string{"label": "x"})

	if err := b.Forget(speaker); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if _, err := b.Entries(speaker); !errors.Is(err, types.ErrLocationNotFound) {
		t.Errorf("expected ErrLocationNotFound, got %v", err)
	}
	if err := b.Forget(speaker); !errors.Is(err, types.ErrLocationNotFound) {
		t.Errorf("second Forget: expected ErrLocationNotFound, got %v", err)
	}
}

func TestBackend_StatePersistsAcrossAttach(t *testing.T) {
	tmpDir := t.TempDir()

	b := NewBackend()
	if err := b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: tmpDir}); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	declareSpeaker(t, b)
	applyText(t, b, speaker, map[string]string{"volume": "33", "label": "attic"})
	if err := b.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}

	reopened := attachBackend(t, tmpDir)
	got := displays(t, reopened, speaker)
	if got["volume"] != "33" || got["label"] != "attic" {
		t.Errorf("values after reattach = %v", got)
	}
	if title, _ := reopened.Title(speaker); title != "Kitchen speaker" {
		t.Errorf("title after reattach = %q", title)
	}
	history, err := reopened.History(speaker, 0)
	if err != nil || len(history) != 1 {
		t.Errorf("history after reattach = %v, %v", history, err)
	}
}

func TestBackend_DecodedSliderIsStoredAsApplied(t *testing.T) {
	b := attachBackend(t, t.TempDir())
	stepped := types.Declaration{Name: "volume", Kind: types.KindSlider, Max: 100, Step: 10}
	if err := b.Declare(speaker, "", []types.Declaration{stepped}); err != nil {
		t.Fatalf("Declare failed: %v", err)
	}
	data, err := cbor.Marshal(75.0)
	if err != nil {
		t.Fatalf("cbor: %v", err)
	}

	res, err := codec.Decode(b, speaker, types.Payload{Fields: []types.Field{{Name: "volume", Data: data}}})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected field errors: %v", res.Errors)
	}
	applied := res.Applied["volume"].Display()

	if got := displays(t, b, speaker)["volume"]; got != applied {
		t.Errorf("store holds volume=%s, decode applied %s", got, applied)
	}
	if applied != "80" {
		t.Errorf("applied volume = %s, want 80", applied)
	}
}
