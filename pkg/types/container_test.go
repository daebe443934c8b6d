package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type titled struct {
	title string
	ok    bool
}

func (t titled) Title(Location) (string, bool) { return t.title, t.ok }

func TestTitleOrDefault(t *testing.T) {
	assert.Equal(t, "Speaker", TitleOrDefault(titled{"Speaker", true}, "1,2,3", "fallback"))
	assert.Equal(t, "fallback", TitleOrDefault(titled{}, "1,2,3", "fallback"))
}

func TestCheckEntries(t *testing.T) {
	a := mustProperty(t, volumeDecl)
	b := mustProperty(t, labelDecl)

	assert.NoError(t, CheckEntries([]Entry{a, b}))
	assert.NoError(t, CheckEntries(nil))
	assert.ErrorIs(t, CheckEntries([]Entry{a, b, a}), ErrDuplicateName)
}

func TestEntryIndex(t *testing.T) {
	a := mustProperty(t, volumeDecl)
	b := mustProperty(t, labelDecl)

	index := EntryIndex([]Entry{a, b})

	assert.Len(t, index, 2)
	assert.Same(t, a, index["volume"])
	assert.Same(t, b, index["label"])
}

func TestFieldErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewFieldError("volume", DecodeEntryFailed, cause)

	assert.ErrorIs(t, err, ErrDecodeEntryFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrUnknownEntryName)
	assert.Equal(t, "DecodeEntryFailed volume: boom", err.Error())
}

func TestCountKind(t *testing.T) {
	errs := []FieldError{
		NewFieldError("x", UnknownEntryName, nil),
		NewFieldError("y", UnknownEntryName, nil),
		NewFieldError("z", DecodeEntryFailed, nil),
	}
	assert.Equal(t, 2, CountKind(errs, UnknownEntryName))
	assert.Equal(t, 1, CountKind(errs, DecodeEntryFailed))
	assert.Equal(t, 0, CountKind(errs, EncodeEntryFailed))
}

func TestPayloadHelpers(t *testing.T) {
	p := Payload{Fields: []Field{{Name: "a"}, {Name: "b"}, {Name: "c"}}}

	assert.Equal(t, 3, p.Len())
	assert.False(t, p.IsEmpty())
	assert.Equal(t, []string{"a", "b", "c"}, p.Names())
	assert.Equal(t, []string{"a", "c"}, p.Only(map[string]bool{"c": true, "a": true}).Names())
	assert.True(t, Payload{}.IsEmpty())
}
