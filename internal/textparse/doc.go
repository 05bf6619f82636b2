// Package textparse decodes the line-oriented group format used by note
// files: "[name]" headers, each followed by "key=value" lines.
//
// The package has three layers. Extract pulls the text between two
// boundary characters. The Lookup functions find the first "key=" line in
// a blob and decode its value. Segment splits a whole file into named
// groups whose bodies are handed back to the Lookup functions.
//
// Every function is pure and works on caller-owned strings, so it is safe
// to call from any number of goroutines.
package textparse
