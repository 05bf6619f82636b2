// Package mcpserver registers MCP tools that expose note file operations.
// It adapts the library package to the MCP SDK's tool handler interface.
package mcpserver

//go:generate mockgen -source=tools.go -destination=mock_store_test.go -package=mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperr "github.com/misli/misli-go/internal/errors"
	"github.com/misli/misli-go/internal/library"
	"github.com/misli/misli-go/internal/metric"
	"github.com/misli/misli-go/internal/notefile"
	"github.com/misli/misli-go/internal/textparse"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NoteStore is the subset of *library.Library the tools need.
type NoteStore interface {
	List() []library.Summary
	ReadText(name string) (string, error)
	Load(name string) (*notefile.NoteFile, error)
	Save(nf *notefile.NoteFile) (*library.SaveResult, error)
	Search(query string, maxResults int) (*library.SearchResult, error)
}

// RegisterTools adds all note file tools to the given MCP server.
func RegisterTools(server *mcp.Server, store NoteStore) {
	addTool(server, &mcp.Tool{
		Name:        "notefile_list",
		Description: "List every note file in the library with metadata (name, size, modified, note and link counts). Files that fail to parse are listed with an error.",
	}, listHandler(store))

	addTool(server, &mcp.Tool{
		Name:        "notefile_read",
		Description: "Read a note file and return its decoded notes, including positions, colors and links.",
	}, readHandler(store))

	addTool(server, &mcp.Tool{
		Name:        "notefile_groups",
		Description: "Split a note file into its raw [name] groups without interpreting the keys. Fails if a header line has no closing bracket or a group header is missing.",
	}, groupsHandler(store))

	addTool(server, &mcp.Tool{
		Name:        "notefile_get_value",
		Description: "Look up a single key in one group of a note file and decode it as text, float, int, uint, bool (0/1) or list (semicolon separated).",
	}, getValueHandler(store))

	addTool(server, &mcp.Tool{
		Name:        "notefile_search",
		Description: "Case-insensitive search across note file names and note texts. Returns matches with context snippets.",
	}, searchHandler(store))

	addTool(server, &mcp.Tool{
		Name:        "notefile_check",
		Description: "Decode a note file, encode it again and report whether the file is already in canonical form. Returns a patch when it is not.",
	}, checkHandler(store))

	addTool(server, &mcp.Tool{
		Name:        "notefile_add_note",
		Description: "Append a new note to an existing note file, optionally linking an existing note to it. The file is rewritten atomically.",
	}, addNoteHandler(store))
}

// addTool registers h and counts its calls by outcome.
func addTool[In, Out any](server *mcp.Server, tool *mcp.Tool, h mcp.ToolHandlerFor[In, Out]) {
	mcp.AddTool[In, Out](server, tool, func(ctx context.Context, req *mcp.CallToolRequest, input In) (*mcp.CallToolResult, Out, error) {
		result, out, err := h(ctx, req, input)
		metric.IncToolCall(tool.Name, err)
		return result, out, err
	})
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// ListInput has no parameters.
type ListInput struct{}

// NameInput holds the note file name for single-file tools.
type NameInput struct {
	Name string `json:"name" jsonschema:"note file name without extension"`
}

// GetValueInput holds parameters for notefile_get_value.
type GetValueInput struct {
	Name  string `json:"name" jsonschema:"note file name without extension"`
	Group string `json:"group" jsonschema:"group name, for note files this is the note id"`
	Key   string `json:"key" jsonschema:"key to look up"`
	Kind  string `json:"kind,omitempty" jsonschema:"one of text, float, int, uint, bool, list; defaults to text"`
}

// SearchInput holds parameters for notefile_search.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"maximum number of results, defaults to 20"`
}

// AddNoteInput holds parameters for notefile_add_note.
type AddNoteInput struct {
	Name     string  `json:"name" jsonschema:"note file name without extension"`
	Text     string  `json:"text" jsonschema:"note text, may span several lines"`
	X        float64 `json:"x,omitempty" jsonschema:"horizontal position"`
	Y        float64 `json:"y,omitempty" jsonschema:"vertical position"`
	LinkFrom int     `json:"link_from,omitempty" jsonschema:"id of an existing note to link to the new note, 0 for none"`
	LinkText string  `json:"link_text,omitempty" jsonschema:"text shown on the link"`
}

// --- Output types ---

// ListResult is the response for notefile_list.
type ListResult struct {
	Total     int               `json:"total"`
	NoteFiles []library.Summary `json:"note_files"`
}

// GroupsResult is the response for notefile_groups.
type GroupsResult struct {
	Name   string            `json:"name"`
	Groups []textparse.Group `json:"groups"`
}

// GetValueResult is the response for notefile_get_value. Found is false
// when the group exists but has no such key.
type GetValueResult struct {
	Name  string `json:"name"`
	Group string `json:"group"`
	Key   string `json:"key"`
	Kind  string `json:"kind"`
	Found bool   `json:"found"`
	Value any    `json:"value,omitempty"`
}

// AddNoteResult is the response for notefile_add_note.
type AddNoteResult struct {
	Name   string `json:"name"`
	NoteID int    `json:"note_id"`
	Notes  int    `json:"notes"`
	Size   int64  `json:"size"`
}

// --- Handlers ---

func listHandler(store NoteStore) mcp.ToolHandlerFor[ListInput, *ListResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, *ListResult, error) {
		files := store.List()
		if files == nil {
			files = []library.Summary{}
		}
		result := &ListResult{Total: len(files), NoteFiles: files}
		return textResult(result), result, nil
	}
}

func readHandler(store NoteStore) mcp.ToolHandlerFor[NameInput, *notefile.NoteFile] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input NameInput) (*mcp.CallToolResult, *notefile.NoteFile, error) {
		nf, err := store.Load(input.Name)
		if err != nil {
			return nil, nil, err
		}
		return textResult(nf), nf, nil
	}
}

func groupsHandler(store NoteStore) mcp.ToolHandlerFor[NameInput, *GroupsResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input NameInput) (*mcp.CallToolResult, *GroupsResult, error) {
		groups, err := readGroups(store, input.Name)
		if err != nil {
			return nil, nil, err
		}
		result := &GroupsResult{Name: input.Name, Groups: groups}
		return textResult(result), result, nil
	}
}

func getValueHandler(store NoteStore) mcp.ToolHandlerFor[GetValueInput, *GetValueResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input GetValueInput) (*mcp.CallToolResult, *GetValueResult, error) {
		kind, err := textparse.ParseKind(input.Kind)
		if err != nil {
			return nil, nil, err
		}

		groups, err := readGroups(store, input.Name)
		if err != nil {
			return nil, nil, err
		}

		g, ok := textparse.FindGroup(groups, input.Group)
		if !ok {
			return nil, nil, fmt.Errorf("group %q not found in %s", input.Group, input.Name)
		}

		result := &GetValueResult{
			Name:  input.Name,
			Group: input.Group,
			Key:   input.Key,
			Kind:  string(kind),
		}

		value, err := textparse.Lookup(g.Body, input.Key, kind)
		switch {
		case errors.Is(err, apperr.ErrKeyNotFound):
		case err != nil:
			return nil, nil, err
		default:
			result.Found = true
			result.Value = value
		}

		return textResult(result), result, nil
	}
}

func searchHandler(store NoteStore) mcp.ToolHandlerFor[SearchInput, *library.SearchResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, *library.SearchResult, error) {
		result, err := store.Search(input.Query, input.MaxResults)
		if err != nil {
			return nil, nil, err
		}
		return textResult(result), result, nil
	}
}

func checkHandler(store NoteStore) mcp.ToolHandlerFor[NameInput, *notefile.CheckResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input NameInput) (*mcp.CallToolResult, *notefile.CheckResult, error) {
		text, err := store.ReadText(input.Name)
		if err != nil {
			return nil, nil, err
		}

		result, err := notefile.Check(input.Name, text)
		if err != nil {
			return nil, nil, err
		}
		return textResult(result), result, nil
	}
}

func addNoteHandler(store NoteStore) mcp.ToolHandlerFor[AddNoteInput, *AddNoteResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input AddNoteInput) (*mcp.CallToolResult, *AddNoteResult, error) {
		nf, err := store.Load(input.Name)
		if err != nil {
			return nil, nil, err
		}

		now := time.Now().Truncate(time.Second)
		note := notefile.NewNote(nf.NextID(), input.Text, input.X, input.Y)
		note.Created = now
		note.Modified = now

		if err := nf.Add(note); err != nil {
			return nil, nil, err
		}

		if input.LinkFrom != 0 {
			if err := nf.Link(input.LinkFrom, note.ID, input.LinkText); err != nil {
				return nil, nil, err
			}
		}

		saved, err := store.Save(nf)
		if err != nil {
			return nil, nil, err
		}

		result := &AddNoteResult{
			Name:   saved.Name,
			NoteID: note.ID,
			Notes:  saved.Notes,
			Size:   saved.Size,
		}
		return textResult(result), result, nil
	}
}

func readGroups(store NoteStore, name string) ([]textparse.Group, error) {
	text, err := store.ReadText(name)
	if err != nil {
		return nil, err
	}

	groups, err := textparse.Segment(text)
	if err != nil {
		return nil, fmt.Errorf("segmenting %s: %w", name, err)
	}

	return groups, nil
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
