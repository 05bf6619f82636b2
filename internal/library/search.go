package library

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxResults caps search results when no limit is given.
const DefaultMaxResults = 20

const ErrCodeInvalidQuery = "INVALID_QUERY"

// SearchMatch is a single search hit. NoteID is zero for name matches.
type SearchMatch struct {
	NoteFile  string `json:"note_file"`
	NoteID    int    `json:"note_id,omitempty"`
	MatchType string `json:"match_type"`
	Snippet   string `json:"snippet"`
}

// SearchResult is the response for a search.
type SearchResult struct {
	Query        string        `json:"query"`
	TotalMatches int           `json:"total_matches"`
	Results      []SearchMatch `json:"results"`
}

// Search finds note files whose name contains query and notes whose text
// contains it. Matching is case-insensitive. Files that do not decode are
// only matched by name.
func (l *Library) Search(query string, maxResults int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &Error{
			Code:    ErrCodeInvalidQuery,
			Message: "search query must not be empty",
		}
	}

	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	matches := []SearchMatch{}

	for _, s := range l.List() {
		if len(matches) >= maxResults {
			break
		}

		if start, _ := indexFold(s.Name, query); start >= 0 {
			matches = append(matches, SearchMatch{
				NoteFile:  s.Name,
				MatchType: "name",
				Snippet:   s.Name,
			})
		}

		if s.Error != "" {
			continue
		}

		nf, err := l.Load(s.Name)
		if err != nil {
			continue
		}

		for _, n := range nf.Notes {
			if len(matches) >= maxResults {
				break
			}

			text := strings.ReplaceAll(n.Text, "\n", " ")
			start, end := indexFold(text, query)
			if start < 0 {
				continue
			}

			matches = append(matches, SearchMatch{
				NoteFile:  s.Name,
				NoteID:    n.ID,
				MatchType: "note",
				Snippet:   buildSnippet(text, start, end-start),
			})
		}
	}

	return &SearchResult{
		Query:        query,
		TotalMatches: len(matches),
		Results:      matches,
	}, nil
}

// indexFold returns the byte range in s of the first case-insensitive
// match of substr, or -1, -1. The range refers to s itself, so it holds
// even where folding changes a character's encoded length.
func indexFold(s, substr string) (int, int) {
	for i := range s {
		if n, ok := hasPrefixFold(s[i:], substr); ok {
			return i, i + n
		}
	}
	return -1, -1
}

// hasPrefixFold reports whether s starts with prefix under simple case
// folding, and how many bytes of s the match covers.
func hasPrefixFold(s, prefix string) (int, bool) {
	n := 0
	for _, pr := range prefix {
		if n >= len(s) {
			return 0, false
		}
		sr, size := utf8.DecodeRuneInString(s[n:])
		if !equalFoldRune(sr, pr) {
			return 0, false
		}
		n += size
	}
	return n, true
}

func equalFoldRune(a, b rune) bool {
	if a == b {
		return true
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}

// buildSnippet creates a context snippet around a match, bolding the match.
// matchStart and matchLen are byte offsets into the line string. The
// context window is widened to whole runes.
func buildSnippet(line string, matchStart, matchLen int) string {
	const contextChars = 40

	if matchStart < 0 || matchStart+matchLen > len(line) {
		return truncate(line, 2*contextChars)
	}

	start := max(matchStart-contextChars, 0)
	for start > 0 && !utf8.RuneStart(line[start]) {
		start--
	}
	end := min(matchStart+matchLen+contextChars, len(line))
	for end < len(line) && !utf8.RuneStart(line[end]) {
		end++
	}

	prefix := ""
	if start > 0 {
		prefix = "..."
	}

	suffix := ""
	if end < len(line) {
		suffix = "..."
	}

	return fmt.Sprintf("%s%s**%s**%s%s",
		prefix,
		line[start:matchStart],
		line[matchStart:matchStart+matchLen],
		line[matchStart+matchLen:end],
		suffix,
	)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
