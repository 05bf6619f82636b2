package notefile

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	apperr "github.com/misli/misli-go/internal/errors"
	"github.com/misli/misli-go/internal/textparse"
)

// TimeFormat is the layout of the t_made and t_mod keys.
const TimeFormat = "2006.01.02 15:04:05"

// Keys used inside a note group.
const (
	keyText      = "txt"
	keyX         = "x"
	keyY         = "y"
	keyZ         = "z"
	keyWidth     = "a"
	keyHeight    = "b"
	keyFontSize  = "font_size"
	keyCreated   = "t_made"
	keyModified  = "t_mod"
	keyTextColor = "txt_col"
	keyBgColor   = "bg_col"
	keyLinkIDs   = "l_id"
	keyLinkTexts = "l_txt"
)

// Decoder turns note-file text into a NoteFile. The zero value is usable;
// a Logger receives warnings about dropped links and missing keys.
type Decoder struct {
	Logger *slog.Logger
}

// Decode parses text with a zero Decoder.
func Decode(name, text string) (*NoteFile, error) {
	return Decoder{}.Decode(name, text)
}

// Decode parses text into a note file called name. Missing optional keys
// take their defaults. Malformed groups, undecodable values, non-numeric
// or duplicate note IDs and notes without text reject the whole file.
func (d Decoder) Decode(name, text string) (*NoteFile, error) {
	groups, err := textparse.Segment(text)
	if err != nil {
		return nil, fmt.Errorf("segmenting %s: %w", name, err)
	}

	r := textparse.Resolver{Logger: d.Logger}
	nf := New(name)

	for _, g := range groups {
		n, err := decodeNote(r, g)
		if err != nil {
			return nil, fmt.Errorf("note file %s: %w", name, err)
		}

		if err := nf.Add(n); err != nil {
			return nil, fmt.Errorf("note file %s: %w", name, err)
		}
	}

	d.dropDanglingLinks(nf)

	return nf, nil
}

func decodeNote(r textparse.Resolver, g textparse.Group) (*Note, error) {
	id, err := strconv.Atoi(g.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: note id %q is not a number", apperr.ErrInvalidValue, g.Name)
	}

	txt, err := r.LookupText(g.Body, keyText)
	if err != nil {
		return nil, fmt.Errorf("note %d: %w", id, err)
	}

	n := NewNote(id, UnescapeText(txt), 0, 0)

	floats := []struct {
		key string
		dst *float64
	}{
		{keyX, &n.X},
		{keyY, &n.Y},
		{keyZ, &n.Z},
		{keyWidth, &n.Width},
		{keyHeight, &n.Height},
		{keyFontSize, &n.FontSize},
	}
	for _, f := range floats {
		v, err := r.LookupFloat(g.Body, f.key)
		switch {
		case errors.Is(err, apperr.ErrKeyNotFound):
			// keep the default
		case err != nil:
			return nil, fmt.Errorf("note %d: %w", id, err)
		default:
			*f.dst = v
		}
	}

	if n.Created, err = lookupTime(r, g.Body, keyCreated); err != nil {
		return nil, fmt.Errorf("note %d: %w", id, err)
	}

	if n.Modified, err = lookupTime(r, g.Body, keyModified); err != nil {
		return nil, fmt.Errorf("note %d: %w", id, err)
	}

	if err := lookupColor(r, g.Body, keyTextColor, &n.TextColor); err != nil {
		return nil, fmt.Errorf("note %d: %w", id, err)
	}

	if err := lookupColor(r, g.Body, keyBgColor, &n.BackgroundColor); err != nil {
		return nil, fmt.Errorf("note %d: %w", id, err)
	}

	if n.Links, err = lookupLinks(r, g.Body); err != nil {
		return nil, fmt.Errorf("note %d: %w", id, err)
	}

	return n, nil
}

func lookupTime(r textparse.Resolver, body, key string) (time.Time, error) {
	txt, err := r.LookupText(body, key)
	if errors.Is(err, apperr.ErrKeyNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}

	t, err := time.ParseInLocation(TimeFormat, txt, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: key %q: %q is not a %s timestamp", apperr.ErrInvalidValue, key, txt, TimeFormat)
	}
	return t, nil
}

func lookupColor(r textparse.Resolver, body, key string, dst *Color) error {
	parts, err := r.LookupList(body, key)
	if errors.Is(err, apperr.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if len(parts) != len(dst) {
		return fmt.Errorf("%w: key %q: want %d channels, got %d", apperr.ErrInvalidValue, key, len(dst), len(parts))
	}

	var c Color
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return fmt.Errorf("%w: key %q: channel %q is not a number", apperr.ErrInvalidValue, key, p)
		}
		c[i] = f
	}

	*dst = c
	return nil
}

func lookupLinks(r textparse.Resolver, body string) ([]Link, error) {
	ids, err := r.LookupList(body, keyLinkIDs)
	if errors.Is(err, apperr.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	links := make([]Link, 0, len(ids))
	for _, s := range ids {
		id, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: link target %q is not a number", apperr.ErrInvalidValue, keyLinkIDs, s)
		}
		links = append(links, Link{TargetID: id})
	}

	// Empty list segments are dropped, so texts only line up with targets
	// when every link has one.
	texts, err := r.LookupList(body, keyLinkTexts)
	if err == nil && len(texts) == len(links) {
		for i := range links {
			links[i].Text = texts[i]
		}
	}

	return links, nil
}

func (d Decoder) dropDanglingLinks(nf *NoteFile) {
	for _, n := range nf.Notes {
		kept := n.Links[:0]
		for _, l := range n.Links {
			if nf.Note(l.TargetID) == nil {
				if d.Logger != nil {
					d.Logger.Warn("dropping link to missing note",
						slog.String("note_file", nf.Name),
						slog.Int("from", n.ID),
						slog.Int("to", l.TargetID),
					)
				}
				continue
			}
			kept = append(kept, l)
		}
		n.Links = kept
	}
}

// Encode renders nf in the group format, one group per note.
func Encode(nf *NoteFile) string {
	groups := make([]textparse.Group, 0, len(nf.Notes))
	for _, n := range nf.Notes {
		groups = append(groups, textparse.Group{
			Name: strconv.Itoa(n.ID),
			Body: encodeNote(n),
		})
	}
	return textparse.Encode(groups)
}

func encodeNote(n *Note) string {
	var b strings.Builder

	kv := func(key, value string) {
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
		b.WriteByte('\n')
	}

	kv(keyText, EscapeText(n.Text))
	kv(keyX, formatFloat(n.X))
	kv(keyY, formatFloat(n.Y))
	kv(keyZ, formatFloat(n.Z))
	kv(keyWidth, formatFloat(n.Width))
	kv(keyHeight, formatFloat(n.Height))
	kv(keyFontSize, formatFloat(n.FontSize))

	if !n.Created.IsZero() {
		kv(keyCreated, n.Created.Format(TimeFormat))
	}
	if !n.Modified.IsZero() {
		kv(keyModified, n.Modified.Format(TimeFormat))
	}

	kv(keyTextColor, formatColor(n.TextColor))
	kv(keyBgColor, formatColor(n.BackgroundColor))

	if len(n.Links) > 0 {
		ids := make([]string, len(n.Links))
		texts := make([]string, len(n.Links))
		allText := true
		for i, l := range n.Links {
			ids[i] = strconv.Itoa(l.TargetID)
			texts[i] = l.Text
			allText = allText && l.Text != ""
		}

		kv(keyLinkIDs, strings.Join(ids, textparse.ListSeparator))
		if allText {
			kv(keyLinkTexts, strings.Join(texts, textparse.ListSeparator))
		}
	}

	return b.String()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatColor(c Color) string {
	parts := make([]string, len(c))
	for i, ch := range c {
		parts[i] = formatFloat(ch)
	}
	return strings.Join(parts, textparse.ListSeparator)
}

// EscapeText makes note text fit on one line: '\' becomes `\\` and a
// newline becomes `\n`.
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}

// UnescapeText reverses EscapeText. Unknown escapes are kept verbatim.
func UnescapeText(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}

		switch s[i+1] {
		case 'n':
			b.WriteByte('\n')
			i++
		case '\\':
			b.WriteByte('\\')
			i++
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

var textEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", "")
