package textparse

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	apperr "github.com/misli/misli-go/internal/errors"
)

// ListSeparator splits list values.
const ListSeparator = ";"

// Resolver looks up "key=value" lines in a blob. The zero value is ready
// to use. When Logger is set, missing keys are logged at debug level.
type Resolver struct {
	Logger *slog.Logger
}

var defaultResolver Resolver

// LookupText returns the value of the first line in blob that starts with
// key + "=". Later lines with the same key are ignored.
func LookupText(blob, key string) (string, error) {
	return defaultResolver.LookupText(blob, key)
}

// LookupFloat looks up key and parses it as a float64.
func LookupFloat(blob, key string) (float64, error) {
	return defaultResolver.LookupFloat(blob, key)
}

// LookupInt looks up key and parses it as an int.
func LookupInt(blob, key string) (int, error) {
	return defaultResolver.LookupInt(blob, key)
}

// LookupUint looks up key and parses it as a uint.
func LookupUint(blob, key string) (uint, error) {
	return defaultResolver.LookupUint(blob, key)
}

// LookupBool looks up key and accepts only "0" or "1".
func LookupBool(blob, key string) (bool, error) {
	return defaultResolver.LookupBool(blob, key)
}

// LookupList looks up key and splits it on ';', dropping empty segments.
func LookupList(blob, key string) ([]string, error) {
	return defaultResolver.LookupList(blob, key)
}

// LookupText is the Resolver form of the package function.
func (r Resolver) LookupText(blob, key string) (string, error) {
	prefix := key + "="

	for _, line := range splitLines(blob) {
		if !strings.HasPrefix(line, prefix) {
			continue
		}

		// The line is already isolated, so only the '=' side is bounded.
		value, err := Extract(line, Rune('='), None, NoLimit)
		if err != nil {
			return "", fmt.Errorf("key %q: %w", key, err)
		}
		return value, nil
	}

	if r.Logger != nil {
		r.Logger.Debug("key not found", slog.String("key", key))
	}

	return "", fmt.Errorf("%w: %q", apperr.ErrKeyNotFound, key)
}

func (r Resolver) LookupFloat(blob, key string) (float64, error) {
	txt, err := r.LookupText(blob, key)
	if err != nil {
		return 0, err
	}

	if !decimalFloat(txt) {
		return 0, invalidValue(key, txt, "float")
	}

	f, err := strconv.ParseFloat(txt, 64)
	if err != nil {
		return 0, invalidValue(key, txt, "float")
	}
	return f, nil
}

// decimalFloat rejects the Go literal forms ParseFloat accepts beyond plain
// decimal notation: digit separators and hexadecimal mantissas.
func decimalFloat(txt string) bool {
	if strings.ContainsRune(txt, '_') {
		return false
	}
	unsigned := strings.TrimLeft(txt, "+-")
	return !strings.HasPrefix(unsigned, "0x") && !strings.HasPrefix(unsigned, "0X")
}

func (r Resolver) LookupInt(blob, key string) (int, error) {
	txt, err := r.LookupText(blob, key)
	if err != nil {
		return 0, err
	}

	n, err := strconv.Atoi(txt)
	if err != nil {
		return 0, invalidValue(key, txt, "int")
	}
	return n, nil
}

func (r Resolver) LookupUint(blob, key string) (uint, error) {
	txt, err := r.LookupText(blob, key)
	if err != nil {
		return 0, err
	}

	n, err := strconv.ParseUint(txt, 10, strconv.IntSize)
	if err != nil {
		return 0, invalidValue(key, txt, "uint")
	}
	return uint(n), nil
}

func (r Resolver) LookupBool(blob, key string) (bool, error) {
	txt, err := r.LookupText(blob, key)
	if err != nil {
		return false, err
	}

	switch txt {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, invalidValue(key, txt, "bool")
	}
}

func (r Resolver) LookupList(blob, key string) ([]string, error) {
	txt, err := r.LookupText(blob, key)
	if err != nil {
		return nil, err
	}
	return SplitList(txt), nil
}

// SplitList splits a list value on ';' and drops empty segments. The
// result is never nil.
func SplitList(txt string) []string {
	items := []string{}
	for _, part := range strings.Split(txt, ListSeparator) {
		if part != "" {
			items = append(items, part)
		}
	}
	return items
}

// splitLines splits blob on '\n' and drops empty lines.
func splitLines(blob string) []string {
	var lines []string
	for _, line := range strings.Split(blob, "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func invalidValue(key, txt, kind string) error {
	return fmt.Errorf("%w: key %q: %q is not a valid %s", apperr.ErrInvalidValue, key, txt, kind)
}
