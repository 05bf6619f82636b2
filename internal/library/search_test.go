package library

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_NoteText(t *testing.T) {
	l := testLibrary(t, Options{})

	res, err := l.Search("dinner", 0)
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalMatches)

	m := res.Results[0]
	assert.Equal(t, "groceries", m.NoteFile)
	assert.Equal(t, 2, m.NoteID)
	assert.Equal(t, "note", m.MatchType)
	assert.Equal(t, "Cook **Dinner**", m.Snippet)
}

func TestSearch_Name(t *testing.T) {
	l := testLibrary(t, Options{})

	res, err := l.Search("IDEAS", 0)
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	assert.Equal(t, "name", res.Results[0].MatchType)
	assert.Equal(t, "ideas", res.Results[0].NoteFile)
	// "Parser ideas" also matches by text.
	assert.Equal(t, 2, res.TotalMatches)
}

func TestSearch_BrokenFilesMatchByNameOnly(t *testing.T) {
	l := testLibrary(t, Options{})

	res, err := l.Search("orphan", 0)
	require.NoError(t, err)
	assert.Zero(t, res.TotalMatches)

	res, err = l.Search("broken", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalMatches)
}

func TestSearch_MaxResults(t *testing.T) {
	l := testLibrary(t, Options{})

	res, err := l.Search("i", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalMatches)
}

func TestSearch_EmptyQuery(t *testing.T) {
	l := testLibrary(t, Options{})

	_, err := l.Search("   ", 0)
	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeInvalidQuery, le.Code)
}

func TestBuildSnippet(t *testing.T) {
	long := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa needle bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	idx := 51
	got := buildSnippet(long, idx, len("needle"))
	assert.Contains(t, got, "**needle**")
	assert.True(t, len(got) < len(long)+10)
	assert.Equal(t, "...", got[:3])
	assert.Equal(t, "...", got[len(got)-3:])

	assert.Equal(t, "short", buildSnippet("short", 10, 5))
}

func TestSearch_FoldingChangesByteLength(t *testing.T) {
	l := testLibrary(t, Options{})
	writeFiles(t, l.Root(), map[string]string{
		"folding.misl": "[1]\ntxt=\u0130\u0130 needle\n\n[2]\ntxt=\u212Aelvin scale\n",
	})
	l.index.Update("folding")

	res, err := l.Search("needle", 0)
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalMatches)
	assert.Equal(t, "\u0130\u0130 **needle**", res.Results[0].Snippet)

	res, err = l.Search("kelvin", 0)
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalMatches)
	assert.Equal(t, 2, res.Results[0].NoteID)
	assert.Equal(t, "**\u212Aelvin** scale", res.Results[0].Snippet)
}

func TestIndexFold(t *testing.T) {
	tests := []struct {
		s, substr  string
		start, end int
	}{
		{"Cook Dinner", "dinner", 5, 11},
		{"\u0130x", "x", 2, 3},
		{"\u212A", "k", 0, 3},
		{"abc", "abcd", -1, -1},
		{"abc", "z", -1, -1},
	}
	for _, tt := range tests {
		start, end := indexFold(tt.s, tt.substr)
		assert.Equal(t, tt.start, start, tt.s)
		assert.Equal(t, tt.end, end, tt.s)
	}
}

func TestBuildSnippet_RuneBoundaries(t *testing.T) {
	line := strings.Repeat("\u00e9", 30) + " needle " + strings.Repeat("\u00e9", 30)
	idx := strings.Index(line, "needle")

	got := buildSnippet(line, idx, len("needle"))
	assert.True(t, utf8.ValidString(got))
	assert.Contains(t, got, "**needle**")
}
