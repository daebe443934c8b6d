package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/dials/pkg/types"
)

const speakerYAML = `
locations:
  - location: "10,64,-3"
    title: Kitchen speaker
    entries:
      - name: volume
        kind: slider
        min: 0
        max: 100
        default: "50"
        validator: numeric
      - name: label
        kind: text
  - location: "0,0,0"
    entries:
      - name: mode
        kind: switch
        options: [low, high]
`

type declareCall struct {
	loc   types.Location
	title string
	names []string
}

type recorder struct {
	calls []declareCall
	err   error
}

func (r *recorder) Declare(loc types.Location, title string, decls []types.Declaration) error {
	names := make([]string, len(decls))
	for i, d := range decls {
		names[i] = d.Name
	}
	r.calls = append(r.calls, declareCall{loc, title, names})
	return r.err
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(speakerYAML))
	require.NoError(t, err)

	require.Len(t, f.Locations, 2)
	speaker := f.Locations[0]
	assert.Equal(t, types.Location("10,64,-3"), speaker.Location)
	assert.Equal(t, "Kitchen speaker", speaker.Title)
	require.Len(t, speaker.Entries, 2)
	assert.Equal(t, types.KindSlider, speaker.Entries[0].Kind)
	assert.Equal(t, 100.0, speaker.Entries[0].Max)
	assert.Equal(t, types.ValidatorNumeric, speaker.Entries[0].Validator)
	assert.Equal(t, []string{"low", "high"}, f.Locations[1].Entries[0].Options)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{
			name:    "duplicate location",
			doc:     "locations:\n  - location: a\n  - location: a\n",
			wantErr: ErrDuplicateLocation,
		},
		{
			name:    "missing location key",
			doc:     "locations:\n  - title: nowhere\n",
			wantErr: types.ErrInvalidLocation,
		},
		{
			name:    "duplicate entry name",
			doc:     "locations:\n  - location: a\n    entries:\n      - {name: x, kind: text}\n      - {name: x, kind: toggle}\n",
			wantErr: types.ErrDuplicateName,
		},
		{
			name:    "invalid declaration",
			doc:     "locations:\n  - location: a\n    entries:\n      - {name: x, kind: knob}\n",
			wantErr: types.ErrInvalidKind,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("unknown key", func(t *testing.T) {
		_, err := Parse([]byte("locations:\n  - location: a\n    colour: red\n"))
		assert.Error(t, err)
	})
	t.Run("not yaml", func(t *testing.T) {
		_, err := Parse([]byte("locations: [\n"))
		assert.Error(t, err)
	})
}

func TestParseEmptyDocument(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, f.Locations)
}

func TestApply(t *testing.T) {
	f, err := Parse([]byte(speakerYAML))
	require.NoError(t, err)

	var r recorder
	require.NoError(t, f.Apply(&r))

	assert.Equal(t, []declareCall{
		{"10,64,-3", "Kitchen speaker", []string{"volume", "label"}},
		{"0,0,0", "", []string{"mode"}},
	}, r.calls)
}

func TestApplyStopsAtFirstFailure(t *testing.T) {
	f, err := Parse([]byte(speakerYAML))
	require.NoError(t, err)

	r := recorder{err: errors.New("store full")}
	err = f.Apply(&r)

	assert.ErrorContains(t, err, "store full")
	assert.Len(t, r.calls, 1)
}

func TestLoadAndFind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(speakerYAML), 0o644))

	f, err := Load(path)
	require.NoError(t, err)

	l, ok := f.Find("0,0,0")
	assert.True(t, ok)
	assert.Equal(t, "mode", l.Entries[0].Name)
	_, ok = f.Find("1,1,1")
	assert.False(t, ok)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
