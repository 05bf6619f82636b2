package library

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	apperr "github.com/misli/misli-go/internal/errors"
	"github.com/misli/misli-go/internal/notefile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Errors(t *testing.T) {
	_, err := New("", Options{})
	assert.Error(t, err)

	_, err = New(filepath.Join(t.TempDir(), "missing"), Options{})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.misl")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(file, Options{})
	assert.Error(t, err)
}

func TestNew_ExtensionWithoutDot(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.notes": ideasText})

	l, err := New(dir, Options{Extension: "notes"})
	require.NoError(t, err)
	assert.Equal(t, ".notes", l.Extension())

	_, ok := l.Summary("a")
	assert.True(t, ok)
}

func TestList(t *testing.T) {
	l := testLibrary(t, Options{})
	list := l.List()

	names := make([]string, 0, len(list))
	for _, s := range list {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"broken", "groceries", "ideas"}, names)

	groceries := list[1]
	assert.Equal(t, "groceries.misl", groceries.File)
	assert.Equal(t, 2, groceries.Notes)
	assert.Equal(t, 1, groceries.Links)
	assert.Len(t, groceries.Hash, 64)
	assert.Empty(t, groceries.Error)

	broken := list[0]
	assert.Contains(t, broken.Error, "malformed groups")
	assert.Zero(t, broken.Notes)
}

func TestLoad(t *testing.T) {
	l := testLibrary(t, Options{})

	nf, err := l.Load("groceries")
	require.NoError(t, err)
	assert.Equal(t, "groceries", nf.Name)
	require.NotNil(t, nf.Note(2))
	assert.Equal(t, "Cook Dinner", nf.Note(2).Text)
}

func TestLoad_NotFound(t *testing.T) {
	l := testLibrary(t, Options{})

	_, err := l.Load("nope")
	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeNoteFileNotFound, le.Code)
	assert.ErrorIs(t, err, apperr.ErrNoteFileNotFound)
}

func TestLoad_ParseFailed(t *testing.T) {
	l := testLibrary(t, Options{})

	_, err := l.Load("broken")
	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeParseFailed, le.Code)
	assert.ErrorIs(t, err, apperr.ErrMalformedGroups)
}

func TestNormalizeName(t *testing.T) {
	got, err := NormalizeName("  ideas ")
	require.NoError(t, err)
	assert.Equal(t, "ideas", got)

	// "e" + combining acute accent normalizes to a single rune.
	got, err = NormalizeName("cafe\u0301")
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", got)

	for _, bad := range []string{"", "  ", ".hidden", "a/b", `a\b`, "../up", "nul\x00"} {
		_, err := NormalizeName(bad)
		assert.ErrorIs(t, err, apperr.ErrInvalidName, "name %q", bad)
	}
}

func TestSave_CreateAndOverwrite(t *testing.T) {
	l := testLibrary(t, Options{})

	nf := notefile.New("fresh")
	require.NoError(t, nf.Add(notefile.NewNote(1, "first", 0, 0)))

	res, err := l.Save(nf)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 1, res.Notes)

	s, ok := l.Summary("fresh")
	require.True(t, ok)
	assert.Equal(t, 1, s.Notes)

	require.NoError(t, nf.Add(notefile.NewNote(2, "second", 1, 1)))
	res, err = l.Save(nf)
	require.NoError(t, err)
	assert.False(t, res.Created)

	loaded, err := l.Load("fresh")
	require.NoError(t, err)
	assert.Len(t, loaded.Notes, 2)

	// No temp files left behind.
	entries, err := os.ReadDir(l.Root())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".misli-write-")
	}
}

func TestSave_InvalidName(t *testing.T) {
	l := testLibrary(t, Options{})
	_, err := l.Save(notefile.New("../escape"))
	assert.ErrorIs(t, err, apperr.ErrInvalidName)
}

func TestCreate(t *testing.T) {
	l := testLibrary(t, Options{})

	nf, err := l.Create("journal")
	require.NoError(t, err)
	assert.Empty(t, nf.Notes)

	_, err = os.Stat(filepath.Join(l.Root(), "journal.misl"))
	require.NoError(t, err)

	_, err = l.Create("journal")
	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeAlreadyExists, le.Code)
}

func TestDelete(t *testing.T) {
	l := testLibrary(t, Options{})

	require.NoError(t, l.Delete("ideas"))
	_, ok := l.Summary("ideas")
	assert.False(t, ok)

	err := l.Delete("ideas")
	assert.ErrorIs(t, err, apperr.ErrNoteFileNotFound)
}

func TestReadText(t *testing.T) {
	l := testLibrary(t, Options{})
	text, err := l.ReadText("ideas")
	require.NoError(t, err)
	assert.Equal(t, ideasText, text)
}

func TestDecomposedFileName(t *testing.T) {
	dir := t.TempDir()
	decomposed := "cafe\u0301.misl"
	composed := "caf\u00e9"
	writeFiles(t, dir, map[string]string{decomposed: ideasText})

	l, err := New(dir, Options{})
	require.NoError(t, err)

	list := l.List()
	require.Len(t, list, 1)
	assert.Equal(t, composed, list[0].Name)
	assert.Equal(t, decomposed, list[0].File)

	nf, err := l.Load(composed)
	require.NoError(t, err)
	assert.Equal(t, "Parser ideas", nf.Note(1).Text)

	l.index.Update(composed)
	assert.Len(t, l.List(), 1)

	nf.Note(1).Text = "Renamed"
	res, err := l.Save(nf)
	require.NoError(t, err)
	assert.False(t, res.Created)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, decomposed, entries[0].Name())

	text, err := l.ReadText(composed)
	require.NoError(t, err)
	assert.Contains(t, text, "txt=Renamed")

	require.NoError(t, l.Delete(composed))
	assert.Empty(t, l.List())
	_, err = os.Stat(filepath.Join(dir, decomposed))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
