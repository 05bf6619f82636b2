package textparse

import (
	"fmt"
	"strings"
)

// Kind selects the decoding applied by Lookup.
type Kind string

const (
	KindText  Kind = "text"
	KindFloat Kind = "float"
	KindInt   Kind = "int"
	KindUint  Kind = "uint"
	KindBool  Kind = "bool"
	KindList  Kind = "list"
)

// Kinds lists every supported kind.
var Kinds = []Kind{KindText, KindFloat, KindInt, KindUint, KindBool, KindList}

// ParseKind maps a kind name to a Kind. An empty name is KindText.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k == "" {
		return KindText, nil
	}
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown value kind %q", s)
}

// Lookup dispatches to the typed lookup for kind and returns the value as
// string, float64, int, uint, bool or []string.
func (r Resolver) Lookup(blob, key string, kind Kind) (any, error) {
	switch kind {
	case KindText, "":
		return r.LookupText(blob, key)
	case KindFloat:
		return r.LookupFloat(blob, key)
	case KindInt:
		return r.LookupInt(blob, key)
	case KindUint:
		return r.LookupUint(blob, key)
	case KindBool:
		return r.LookupBool(blob, key)
	case KindList:
		return r.LookupList(blob, key)
	default:
		return nil, fmt.Errorf("unknown value kind %q", kind)
	}
}

// Lookup is the package-level form of Resolver.Lookup.
func Lookup(blob, key string, kind Kind) (any, error) {
	return defaultResolver.Lookup(blob, key, kind)
}

// FindGroup returns the first group called name.
func FindGroup(groups []Group, name string) (Group, bool) {
	for _, g := range groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}
