package textparse

import (
	"fmt"
	"strings"

	apperr "github.com/misli/misli-go/internal/errors"
)

// Group is a named section: the header name and every non-empty line
// after it up to the next header, each terminated by '\n'.
type Group struct {
	Name string `json:"name" yaml:"name"`
	Body string `json:"body" yaml:"body"`
}

// HeaderError reports a header line whose name could not be extracted,
// typically because the closing ']' is missing.
type HeaderError struct {
	Line int // 1-indexed, counting only non-empty lines
	Text string
	Err  error
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("header line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *HeaderError) Unwrap() error {
	return e.Err
}

// segmenter states.
const (
	awaitingFirstHeader = iota
	inGroup
)

// Segment splits blob into groups. Text before the first header is
// discarded. A header followed by no body lines produces a name without a
// body, which makes the counts differ and fails with ErrMalformedGroups.
func Segment(blob string) ([]Group, error) {
	var (
		names  []string
		bodies []string
		buf    strings.Builder
		state  = awaitingFirstHeader
	)

	for i, line := range splitLines(blob) {
		if !strings.HasPrefix(line, "[") {
			if state == inGroup {
				buf.WriteString(line)
				buf.WriteByte('\n')
			}
			continue
		}

		if state == inGroup && buf.Len() > 0 {
			bodies = append(bodies, buf.String())
		}
		buf.Reset()

		name, err := Extract(line, Rune('['), Rune(']'), NoLimit)
		if err != nil {
			return nil, &HeaderError{Line: i + 1, Text: line, Err: err}
		}

		names = append(names, name)
		state = inGroup
	}

	if buf.Len() > 0 && len(names) > 0 {
		bodies = append(bodies, buf.String())
	}

	if len(bodies) != len(names) {
		return nil, fmt.Errorf("%w: %d headers but %d bodies", apperr.ErrMalformedGroups, len(names), len(bodies))
	}

	groups := make([]Group, len(names))
	for i := range names {
		groups[i] = Group{Name: names[i], Body: bodies[i]}
	}

	return groups, nil
}

// Encode writes groups back into the text form read by Segment. A body
// without a trailing newline gets one.
func Encode(groups []Group) string {
	var b strings.Builder
	for i, g := range groups {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteByte('[')
		b.WriteString(g.Name)
		b.WriteString("]\n")
		b.WriteString(g.Body)
		if g.Body != "" && !strings.HasSuffix(g.Body, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// ValidateGroup reports whether g survives an Encode/Segment round trip
// unchanged.
func ValidateGroup(g Group) error {
	if strings.ContainsAny(g.Name, "]\n") {
		return fmt.Errorf("group name %q must not contain ']' or a newline", g.Name)
	}

	if g.Body == "" {
		return fmt.Errorf("group %q has an empty body", g.Name)
	}

	if !strings.HasSuffix(g.Body, "\n") {
		return fmt.Errorf("group %q body must end with a newline", g.Name)
	}

	for _, line := range strings.Split(strings.TrimSuffix(g.Body, "\n"), "\n") {
		if line == "" {
			return fmt.Errorf("group %q body contains an empty line", g.Name)
		}
		if strings.HasPrefix(line, "[") {
			return fmt.Errorf("group %q body line %q would be read as a header", g.Name, line)
		}
	}

	return nil
}
