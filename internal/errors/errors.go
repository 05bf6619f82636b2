package errors

import "errors"

// Parsing errors.
var (
	ErrNotFound        = errors.New("delimiter not found")
	ErrKeyNotFound     = errors.New("key not found")
	ErrInvalidValue    = errors.New("invalid value")
	ErrMalformedGroups = errors.New("malformed groups")
)

// Note file errors.
var (
	ErrNoteFileNotFound = errors.New("note file not found")
	ErrInvalidName      = errors.New("invalid note file name")
	ErrDuplicateNote    = errors.New("duplicate note id")
	ErrNoteNotFound     = errors.New("note not found")
)
