package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/misli/misli-go/internal/notefile"
	"github.com/misli/misli-go/internal/textparse"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// readText reads a note file from disk, handling BOMs and CRLF.
func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return notefile.DecodeText(data)
}

// noteFileName is the file's base name without its extension.
func noteFileName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func groupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups FILE",
		Short: "List the [name] groups of a file with their line counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(args[0])
			if err != nil {
				return err
			}

			groups, err := textparse.Segment(text)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "GROUP\tLINES")
			for _, g := range groups {
				fmt.Fprintf(tw, "%s\t%d\n", g.Name, strings.Count(g.Body, "\n"))
			}
			return tw.Flush()
		},
	}
}

func getCmd() *cobra.Command {
	var kindName string

	c := &cobra.Command{
		Use:   "get FILE GROUP KEY",
		Short: "Print one value from a group",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := textparse.ParseKind(kindName)
			if err != nil {
				return err
			}

			text, err := readText(args[0])
			if err != nil {
				return err
			}

			groups, err := textparse.Segment(text)
			if err != nil {
				return err
			}

			g, ok := textparse.FindGroup(groups, args[1])
			if !ok {
				return fmt.Errorf("group %q not found", args[1])
			}

			value, err := textparse.Lookup(g.Body, args[2], kind)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), formatValue(value))
			return nil
		},
	}

	c.Flags().StringVarP(&kindName, "type", "t", string(textparse.KindText), "value kind: text, float, int, uint, bool or list")
	return c
}

// formatValue prints lists one item per line and everything else in its
// shortest exact form.
func formatValue(v any) string {
	switch v := v.(type) {
	case []string:
		return strings.Join(v, "\n")
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func checkCmd() *cobra.Command {
	var showPatch bool

	c := &cobra.Command{
		Use:   "check FILE",
		Short: "Report whether a note file is in canonical form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(args[0])
			if err != nil {
				return err
			}

			res, err := notefile.Check(noteFileName(args[0]), text)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Summary())
			if res.RoundTrips {
				return nil
			}

			if showPatch {
				fmt.Fprint(out, res.Patch)
			}
			return errNotCanonical
		},
	}

	c.Flags().BoolVar(&showPatch, "patch", false, "print a patch to the canonical form")
	return c
}

func exportCmd() *cobra.Command {
	var format string

	c := &cobra.Command{
		Use:   "export FILE",
		Short: "Decode a note file and print its notes as JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(args[0])
			if err != nil {
				return err
			}

			nf, err := notefile.Decode(noteFileName(args[0]), text)
			if err != nil {
				return err
			}

			return export(cmd.OutOrStdout(), nf, format)
		},
	}

	c.Flags().StringVarP(&format, "format", "f", "json", "output format: json or yaml")
	return c
}

func export(w io.Writer, nf *notefile.NoteFile, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(nf)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(nf); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}
