package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	groceriesText = "[1]\ntxt=Buy milk\nx=0\ny=0\nl_id=2\n\n[2]\ntxt=Cook Dinner\nx=5\ny=5\n"
	ideasText     = "[1]\ntxt=Parser ideas\n"
	brokenText    = "[1]\n[2]\ntxt=orphan header above\n"
)

// writeFiles creates files under dir from a name -> content map.
func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

// testLibrary creates a library seeded with a few note files.
func testLibrary(t *testing.T, opts Options) *Library {
	t.Helper()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"groceries.misl": groceriesText,
		"ideas.misl":     ideasText,
		"broken.misl":    brokenText,
		"readme.txt":     "not a note file",
		".hidden.misl":   ideasText,
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.misl"), 0o755))

	l, err := New(dir, opts)
	require.NoError(t, err)
	return l
}

// waitFor polls until cond returns true or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(20 * time.Millisecond)
	}

	t.Fatal("timed out waiting for condition")
}
