// Package library manages a directory of note files: it indexes them,
// loads and saves them atomically, searches their notes and watches the
// directory for changes. It has no dependency on MCP or HTTP.
package library

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperr "github.com/misli/misli-go/internal/errors"
	"github.com/misli/misli-go/internal/notefile"
	"github.com/misli/misli-go/internal/state"
	"golang.org/x/text/unicode/norm"
)

// DefaultExtension is the file extension of note files.
const DefaultExtension = ".misl"

// Error codes returned by library operations.
const (
	ErrCodeNoteFileNotFound = "NOTE_FILE_NOT_FOUND"
	ErrCodeInvalidName      = "INVALID_NAME"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeParseFailed      = "PARSE_FAILED"
)

// Error is a structured error returned by library operations.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Options configures a Library. Zero values select defaults.
type Options struct {
	// Extension of note files, including the dot.
	Extension string

	// State caches summaries between runs. Optional.
	State *state.State

	// Logger receives index and watcher diagnostics. Defaults to a
	// discarding logger.
	Logger *slog.Logger

	// Workers bounds concurrent parsing during Build.
	Workers int
}

// Library provides operations on a directory of note files.
type Library struct {
	root   string
	ext    string
	logger *slog.Logger
	index  *Index
	events *broker
}

// New opens the library rooted at root and builds the initial index.
func New(root string, opts Options) (*Library, error) {
	if root == "" {
		return nil, fmt.Errorf("library path must not be empty")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving library path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("accessing library path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library path is not a directory: %s", abs)
	}

	if opts.Extension == "" {
		opts.Extension = DefaultExtension
	}
	if !strings.HasPrefix(opts.Extension, ".") {
		opts.Extension = "." + opts.Extension
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	l := &Library{
		root:   abs,
		ext:    opts.Extension,
		logger: logger,
		events: newBroker(),
	}
	l.index = newIndex(abs, opts.Extension, opts.State, opts.Workers, logger)

	if err := l.index.Build(); err != nil {
		return nil, fmt.Errorf("building library index: %w", err)
	}

	return l, nil
}

// Root returns the absolute path to the library directory.
func (l *Library) Root() string {
	return l.root
}

// Extension returns the note file extension.
func (l *Library) Extension() string {
	return l.ext
}

// NormalizeName validates a note file name and returns its NFC form.
// Names are single path components without the extension.
func NormalizeName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))

	switch {
	case name == "":
		return "", invalidName(name, "name must not be empty")
	case strings.HasPrefix(name, "."):
		return "", invalidName(name, "name must not start with '.'")
	case strings.ContainsAny(name, `/\`):
		return "", invalidName(name, "name must not contain a path separator")
	case strings.ContainsRune(name, 0):
		return "", invalidName(name, "name must not contain NUL")
	}

	return name, nil
}

func invalidName(name, msg string) error {
	return &Error{
		Code:    ErrCodeInvalidName,
		Message: fmt.Sprintf("%s: %q", msg, name),
		Err:     apperr.ErrInvalidName,
	}
}

// path returns the normalized name and absolute file path for a note file
// name. An indexed file resolves to the base it was found under.
func (l *Library) path(name string) (string, string, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return "", "", err
	}
	return name, filepath.Join(l.root, l.index.fileOf(name)), nil
}

func notFound(name string) error {
	return &Error{
		Code:    ErrCodeNoteFileNotFound,
		Message: fmt.Sprintf("note file not found: %s", name),
		Err:     apperr.ErrNoteFileNotFound,
	}
}

// List returns summaries of every note file, sorted by name.
func (l *Library) List() []Summary {
	all := l.index.All()
	sort.Slice(all, func(i, j int) bool {
		return all[i].Name < all[j].Name
	})
	return all
}

// Summary returns the indexed summary of one note file.
func (l *Library) Summary(name string) (Summary, bool) {
	name, err := NormalizeName(name)
	if err != nil {
		return Summary{}, false
	}
	s := l.index.Get(name)
	if s == nil {
		return Summary{}, false
	}
	return *s, true
}

// ReadText returns the decoded text of a note file.
func (l *Library) ReadText(name string) (string, error) {
	name, abs, err := l.path(name)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(abs) //nolint:gosec // abs is root + validated name
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", notFound(name)
		}
		return "", fmt.Errorf("reading note file: %w", err)
	}

	return notefile.DecodeText(data)
}

// Load reads and decodes a note file.
func (l *Library) Load(name string) (*notefile.NoteFile, error) {
	text, err := l.ReadText(name)
	if err != nil {
		return nil, err
	}

	name, _ = NormalizeName(name)

	nf, err := notefile.Decoder{Logger: l.logger}.Decode(name, text)
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeParseFailed,
			Message: err.Error(),
			Err:     err,
		}
	}

	return nf, nil
}

// SaveResult is the response for saving a note file.
type SaveResult struct {
	Name    string `json:"name"`
	Created bool   `json:"created"`
	Size    int64  `json:"size"`
	Notes   int    `json:"notes"`
}

// Save encodes nf and writes it atomically (temp file + rename).
func (l *Library) Save(nf *notefile.NoteFile) (*SaveResult, error) {
	name, abs, err := l.path(nf.Name)
	if err != nil {
		return nil, err
	}

	_, statErr := os.Stat(abs)
	created := errors.Is(statErr, fs.ErrNotExist)

	content := notefile.Encode(nf)
	if err := writeAtomic(abs, content, created); err != nil {
		return nil, err
	}

	l.index.Update(name)
	l.notify(OpUpdated, name)

	return &SaveResult{
		Name:    name,
		Created: created,
		Size:    int64(len(content)),
		Notes:   len(nf.Notes),
	}, nil
}

// Create writes a new, empty note file. It fails if the file exists.
func (l *Library) Create(name string) (*notefile.NoteFile, error) {
	name, abs, err := l.path(name)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(abs); err == nil {
		return nil, &Error{
			Code:    ErrCodeAlreadyExists,
			Message: fmt.Sprintf("note file already exists: %s", name),
		}
	}

	nf := notefile.New(name)
	if _, err := l.Save(nf); err != nil {
		return nil, err
	}

	return nf, nil
}

// Delete removes a note file.
func (l *Library) Delete(name string) error {
	name, abs, err := l.path(name)
	if err != nil {
		return err
	}

	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound(name)
		}
		return fmt.Errorf("deleting note file: %w", err)
	}

	l.index.Remove(name)
	l.notify(OpRemoved, name)

	return nil
}

// writeAtomic writes content to a temp file in the same directory and
// renames it over abs.
func writeAtomic(abs, content string, created bool) error {
	dir := filepath.Dir(abs)

	tmp, err := os.CreateTemp(dir, ".misli-write-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}

	// Preserve permissions of existing file, or use default.
	perm := fs.FileMode(0o644)
	if !created {
		if info, err := os.Stat(abs); err == nil {
			perm = info.Mode()
		}
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tmpName, abs); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}
