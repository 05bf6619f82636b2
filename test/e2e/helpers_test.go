package e2e_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/misli/misli-go/internal/auth"
	"github.com/misli/misli-go/internal/library"
	"github.com/misli/misli-go/internal/mcpserver"
	"github.com/misli/misli-go/internal/server"
	"github.com/misli/misli-go/internal/state"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testUsername = "testuser"
	testPassword = "testpass"

	groceriesText = "[1]\ntxt=Buy milk\nx=0\ny=0\nl_id=2\nl_txt=then\n\n[2]\ntxt=Cook dinner\nx=5\ny=5\n"
)

// harness holds the full e2e test stack: a real HTTP server with basic
// auth, the MCP tool server and the event stream, backed by a watched
// library with a summary cache.
type harness struct {
	URL     string
	Dir     string
	Library *library.Library
	Client  *http.Client
}

// newHarness creates a temp library with seed files, wires up the full
// HTTP stack via server.NewMux, starts the watcher and an httptest server.
func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "groceries.misl"), []byte(groceriesText), 0o644))

	st, err := state.LoadAt(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.DiscardHandler)

	lib, err := library.New(dir, library.Options{State: st, Logger: logger})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		_ = lib.Watch(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-watchDone
	})

	// Give fsnotify a moment to set up watches.
	time.Sleep(50 * time.Millisecond)

	mcpServer := mcp.NewServer(
		&mcp.Implementation{Name: "misli-e2e", Version: "test"},
		nil,
	)
	mcpserver.RegisterTools(mcpServer, lib)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return mcpServer
	}, nil)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	mux := server.NewMux(server.MuxConfig{
		Library:    lib,
		Users:      auth.UserCredentials{testUsername: string(hash)},
		MCPHandler: mcpHandler,
		Logger:     logger,
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &harness{
		URL:     srv.URL,
		Dir:     dir,
		Library: lib,
		Client:  srv.Client(),
	}
}

// mcpSession creates an MCP client session that sends basic auth
// credentials on every request.
func (h *harness) mcpSession(t *testing.T, username, password string) *mcp.ClientSession {
	t.Helper()

	transport := &mcp.StreamableClientTransport{
		Endpoint: h.URL + "/mcp",
		HTTPClient: &http.Client{
			Transport: &basicAuthTransport{
				username: username,
				password: password,
				base:     h.Client.Transport,
			},
		},
		DisableStandaloneSSE: true,
	}

	client := mcp.NewClient(
		&mcp.Implementation{Name: "e2e-test-client", Version: "test"},
		nil,
	)

	session, err := client.Connect(t.Context(), transport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

// callTool calls a tool and unmarshals its JSON text content into dest.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any, dest any) {
	t.Helper()

	result, err := session.CallTool(t.Context(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	require.False(t, result.IsError, "tool %s failed: %s", name, extractTextContent(t, result))

	if dest != nil {
		require.NoError(t, json.Unmarshal([]byte(extractTextContent(t, result)), dest))
	}
}

// dialEvents opens the /events websocket with basic auth.
func (h *harness) dialEvents(t *testing.T) *websocket.Conn {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, h.URL, nil)
	require.NoError(t, err)
	req.SetBasicAuth(testUsername, testPassword)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(h.URL, "http") + "/events"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
		HTTPHeader: req.Header,
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })

	return conn
}

// nextEvent reads library events until one with op for name arrives.
func nextEvent(t *testing.T, conn *websocket.Conn, op library.Op, name string) library.Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)

		var ev library.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		if ev.Name == name && ev.Op == op {
			return ev
		}
	}
}

// doGet performs a GET request with t.Context().
func (h *harness) doGet(t *testing.T, path string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, h.URL+path, nil)
	require.NoError(t, err)

	resp, err := h.Client.Do(req)
	require.NoError(t, err)

	return resp
}

// basicAuthTransport is an http.RoundTripper that adds basic auth
// credentials to every request.
type basicAuthTransport struct {
	username string
	password string
	base     http.RoundTripper
}

func (bt *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(bt.username, bt.password)

	return bt.base.RoundTrip(req)
}

// extractTextContent pulls the text from the first TextContent in a
// CallToolResult. MCP tools return JSON-serialized results as TextContent.
func extractTextContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()

	require.NotEmpty(t, result.Content, "tool result has no content")

	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}

	t.Fatal("no TextContent found in tool result")

	return ""
}
