// Package notefile models a note file: a page of positioned, styled text
// notes and the links between them. It decodes and encodes the on-disk
// group format through package textparse.
package notefile

import (
	"fmt"
	"slices"
	"strings"
	"time"

	apperr "github.com/misli/misli-go/internal/errors"
)

// Layout defaults, in canvas units. One unit is one line of text at font
// size 1 (20 px unscaled).
const (
	DefaultFontSize = 1.0
	DefaultWidth    = 16.0
	DefaultHeight   = 8.0
)

var (
	DefaultTextColor       = Color{0, 0, 1, 1}
	DefaultBackgroundColor = Color{0, 0, 1, 0.1}
)

// Color is an RGBA color with each channel in [0, 1].
type Color [4]float64

// Link is a directed arrow from the owning note to TargetID.
type Link struct {
	TargetID int    `json:"target_id" yaml:"target_id"`
	Text     string `json:"text,omitempty" yaml:"text,omitempty"`
}

// Note is a single text note on the canvas.
type Note struct {
	ID              int       `json:"id" yaml:"id"`
	Text            string    `json:"text" yaml:"text"`
	X               float64   `json:"x" yaml:"x"`
	Y               float64   `json:"y" yaml:"y"`
	Z               float64   `json:"z" yaml:"z"`
	Width           float64   `json:"width" yaml:"width"`
	Height          float64   `json:"height" yaml:"height"`
	FontSize        float64   `json:"font_size" yaml:"font_size"`
	Created         time.Time `json:"created" yaml:"created"`
	Modified        time.Time `json:"modified" yaml:"modified"`
	TextColor       Color     `json:"text_color" yaml:"text_color"`
	BackgroundColor Color     `json:"background_color" yaml:"background_color"`
	Links           []Link    `json:"links,omitempty" yaml:"links,omitempty"`
}

// NewNote returns a note with default size and colors.
func NewNote(id int, text string, x, y float64) *Note {
	return &Note{
		ID:              id,
		Text:            text,
		X:               x,
		Y:               y,
		Width:           DefaultWidth,
		Height:          DefaultHeight,
		FontSize:        DefaultFontSize,
		TextColor:       DefaultTextColor,
		BackgroundColor: DefaultBackgroundColor,
	}
}

// LinksTo reports whether n has a link to id.
func (n *Note) LinksTo(id int) bool {
	return slices.ContainsFunc(n.Links, func(l Link) bool { return l.TargetID == id })
}

// NoteFile is a named collection of notes, kept in ID order of insertion.
type NoteFile struct {
	Name  string  `json:"name" yaml:"name"`
	Notes []*Note `json:"notes" yaml:"notes"`
}

// New returns an empty note file.
func New(name string) *NoteFile {
	return &NoteFile{Name: name}
}

// Note returns the note with the given id, or nil.
func (nf *NoteFile) Note(id int) *Note {
	for _, n := range nf.Notes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// NextID returns one more than the largest note ID in the file.
func (nf *NoteFile) NextID() int {
	next := 1
	for _, n := range nf.Notes {
		if n.ID >= next {
			next = n.ID + 1
		}
	}
	return next
}

// Add appends n. IDs must be unique within a file.
func (nf *NoteFile) Add(n *Note) error {
	if nf.Note(n.ID) != nil {
		return fmt.Errorf("%w: %d", apperr.ErrDuplicateNote, n.ID)
	}
	nf.Notes = append(nf.Notes, n)
	return nil
}

// Remove deletes the note with the given id and every link pointing at it.
func (nf *NoteFile) Remove(id int) error {
	idx := slices.IndexFunc(nf.Notes, func(n *Note) bool { return n.ID == id })
	if idx < 0 {
		return fmt.Errorf("%w: %d", apperr.ErrNoteNotFound, id)
	}

	nf.Notes = slices.Delete(nf.Notes, idx, idx+1)

	for _, n := range nf.Notes {
		n.Links = slices.DeleteFunc(n.Links, func(l Link) bool { return l.TargetID == id })
	}

	return nil
}

// Link adds an arrow from one note to another. Linking twice to the same
// target replaces the text.
func (nf *NoteFile) Link(from, to int, text string) error {
	src := nf.Note(from)
	if src == nil {
		return fmt.Errorf("%w: %d", apperr.ErrNoteNotFound, from)
	}

	if nf.Note(to) == nil {
		return fmt.Errorf("%w: %d", apperr.ErrNoteNotFound, to)
	}

	if strings.ContainsAny(text, ";\n") {
		return fmt.Errorf("%w: link text must not contain ';' or a newline", apperr.ErrInvalidValue)
	}

	for i := range src.Links {
		if src.Links[i].TargetID == to {
			src.Links[i].Text = text
			return nil
		}
	}

	src.Links = append(src.Links, Link{TargetID: to, Text: text})

	return nil
}

// LinkCount returns the total number of links in the file.
func (nf *NoteFile) LinkCount() int {
	total := 0
	for _, n := range nf.Notes {
		total += len(n.Links)
	}
	return total
}
