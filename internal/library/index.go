package library

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/misli/misli-go/internal/metric"
	"github.com/misli/misli-go/internal/notefile"
	"github.com/misli/misli-go/internal/state"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"
)

// Summary holds metadata about a single note file. A file that fails to
// decode is still listed, with Error set.
type Summary struct {
	Name     string    `json:"name"`
	File     string    `json:"file"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Hash     string    `json:"hash"`
	Notes    int       `json:"notes"`
	Links    int       `json:"links"`
	Error    string    `json:"error,omitempty"`
}

// Index maintains an in-memory cache of note file summaries, backed by the
// optional persistent state. It is safe for concurrent use.
type Index struct {
	root    string
	ext     string
	state   *state.State
	workers int
	logger  *slog.Logger

	mu      sync.RWMutex
	entries map[string]*Summary // name -> summary
}

func newIndex(root, ext string, st *state.State, workers int, logger *slog.Logger) *Index {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Index{
		root:    root,
		ext:     ext,
		state:   st,
		workers: workers,
		logger:  logger,
		entries: make(map[string]*Summary),
	}
}

// nameOf maps a file base name to a note file name. Hidden files, temp
// files and other extensions are not note files.
func (idx *Index) nameOf(base string) (string, bool) {
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, idx.ext) {
		return "", false
	}

	name := strings.TrimSuffix(base, idx.ext)
	if name == "" {
		return "", false
	}

	return norm.NFC.String(name), true
}

// Build scans the library directory and summarizes every note file,
// parsing up to idx.workers files at once. Files whose size and mtime
// match the persistent cache are not re-read.
func (idx *Index) Build() error {
	start := time.Now()

	dirEntries, err := os.ReadDir(idx.root)
	if err != nil {
		return fmt.Errorf("reading library directory: %w", err)
	}

	var cached map[string]state.CachedSummary
	if idx.state != nil {
		cached, err = idx.state.Summaries(idx.root)
		if err != nil {
			idx.logger.Warn("ignoring unreadable summary cache", slog.String("error", err.Error()))
			cached = nil
		}
	}

	var (
		mu      sync.Mutex
		entries = make(map[string]*Summary)
		g       errgroup.Group
	)
	g.SetLimit(idx.workers)

	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}

		name, ok := idx.nameOf(de.Name())
		if !ok {
			continue
		}

		var hit *state.CachedSummary
		if cs, ok := cached[name]; ok {
			hit = &cs
		}

		g.Go(func() error {
			s, err := idx.summarize(name, de.Name(), hit)
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			if err != nil {
				return err
			}

			mu.Lock()
			entries[name] = s
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	idx.mu.Lock()
	idx.entries = entries
	idx.mu.Unlock()

	if idx.state != nil {
		keep := make(map[string]bool, len(entries))
		for name := range entries {
			keep[name] = true
		}
		if n, err := idx.state.Prune(idx.root, keep); err != nil {
			idx.logger.Warn("pruning summary cache", slog.String("error", err.Error()))
		} else if n > 0 {
			idx.logger.Debug("pruned summary cache", slog.Int("removed", n))
		}
	}

	broken := 0
	for _, s := range entries {
		if s.Error != "" {
			broken++
		}
	}
	metric.ObserveIndexBuild(time.Since(start), len(entries)-broken, broken)

	idx.logger.Info("library indexed",
		slog.String("root", idx.root),
		slog.Int("note_files", len(entries)),
		slog.Int("broken", broken),
	)

	return nil
}

// summarize stats and, unless the cache entry is current, parses one
// note file.
func (idx *Index) summarize(name, base string, cached *state.CachedSummary) (*Summary, error) {
	abs := filepath.Join(idx.root, base)

	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fs.ErrNotExist
	}

	s := &Summary{
		Name:     name,
		File:     base,
		Size:     info.Size(),
		Modified: info.ModTime().UTC(),
	}

	if cached.Matches(info.Size(), info.ModTime().UnixNano()) {
		s.Hash = cached.Hash
		s.Notes = cached.Notes
		s.Links = cached.Links
		s.Error = cached.Error
		return s, nil
	}

	data, err := os.ReadFile(abs) //nolint:gosec // abs is root + directory entry
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	s.Hash = hex.EncodeToString(sum[:])

	nf, err := notefile.DecodeBytes(name, data)
	if err != nil {
		s.Error = err.Error()
		idx.logger.Warn("note file does not decode",
			slog.String("name", name),
			slog.String("error", s.Error),
		)
	} else {
		s.Notes = len(nf.Notes)
		s.Links = nf.LinkCount()
	}

	if idx.state != nil {
		err := idx.state.PutSummary(idx.root, state.CachedSummary{
			Name:  name,
			Size:  s.Size,
			MTime: info.ModTime().UnixNano(),
			Hash:  s.Hash,
			Notes: s.Notes,
			Links: s.Links,
			Error: s.Error,
		})
		if err != nil {
			idx.logger.Warn("caching summary", slog.String("name", name), slog.String("error", err.Error()))
		}
	}

	return s, nil
}

// All returns a copy of all summaries.
func (idx *Index) All() []Summary {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	result := make([]Summary, 0, len(idx.entries))
	for _, s := range idx.entries {
		result = append(result, *s)
	}
	return result
}

// Get returns the summary for a name, or nil if not indexed.
func (idx *Index) Get(name string) *Summary {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	s := idx.entries[name]
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// fileOf returns the on-disk base name for a note file name. Indexed files
// keep the base they were found under, which may not be in NFC form.
func (idx *Index) fileOf(name string) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if s := idx.entries[name]; s != nil {
		return s.File
	}
	return name + idx.ext
}

// Update re-reads one note file. If it no longer exists it is removed.
func (idx *Index) Update(name string) {
	idx.updateFile(name, idx.fileOf(name))
}

// updateFile re-reads the file base as note file name. A missing file only
// drops the entry when the entry was indexed under that base.
func (idx *Index) updateFile(name, base string) {
	s, err := idx.summarize(name, base, nil)
	if err != nil {
		if cur := idx.fileOf(name); cur == base {
			idx.Remove(name)
		}
		return
	}

	idx.mu.Lock()
	idx.entries[name] = s
	idx.mu.Unlock()
}

// Remove deletes an entry from the index and the cache.
func (idx *Index) Remove(name string) {
	idx.mu.Lock()
	delete(idx.entries, name)
	idx.mu.Unlock()

	if idx.state != nil {
		if err := idx.state.DeleteSummary(idx.root, name); err != nil {
			idx.logger.Warn("removing cached summary", slog.String("name", name), slog.String("error", err.Error()))
		}
	}
}
