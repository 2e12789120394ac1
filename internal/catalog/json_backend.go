package catalog

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// JSONBackend persists the catalog as two flat files under baseDir:
// repositories.json and workpads.json, each a JSON object keyed by id.
// Every write goes through writeAtomic (temp file + rename) so a crash
// mid-write never corrupts the file a reader sees.
type JSONBackend struct {
	mu      sync.Mutex
	baseDir string
	repos   map[string]*Repository
	pads    map[string]*Workpad
}

// NewJSONBackend opens (or initializes) a JSON catalog rooted at baseDir,
// loading whatever is already on disk.
func NewJSONBackend(baseDir string) (*JSONBackend, error) {
	b := &JSONBackend{
		baseDir: baseDir,
		repos:   make(map[string]*Repository),
		pads:    make(map[string]*Workpad),
	}
	if err := b.load(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *JSONBackend) reposPath() string    { return filepath.Join(b.baseDir, "repositories.json") }
func (b *JSONBackend) workpadsPath() string { return filepath.Join(b.baseDir, "workpads.json") }

func (b *JSONBackend) load() error {
	if _, err := os.Stat(b.reposPath()); err == nil {
		var repos map[string]*Repository
		if err := readJSON(b.reposPath(), &repos); err != nil {
			return err
		}
		b.repos = repos
	}
	if _, err := os.Stat(b.workpadsPath()); err == nil {
		var pads map[string]*Workpad
		if err := readJSON(b.workpadsPath(), &pads); err != nil {
			return err
		}
		b.pads = pads
	}
	return nil
}

func (b *JSONBackend) flushRepos() error    { return writeJSON(b.reposPath(), b.repos) }
func (b *JSONBackend) flushWorkpads() error { return writeJSON(b.workpadsPath(), b.pads) }

func (b *JSONBackend) PutRepo(r *Repository) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *r
	b.repos[r.ID] = &cp
	return b.flushRepos()
}

func (b *JSONBackend) GetRepo(id string) (*Repository, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.repos[id]
	if !ok {
		return nil, false, nil
	}
	cp := *r
	return &cp, true, nil
}

func (b *JSONBackend) ListRepos() ([]*Repository, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Repository, 0, len(b.repos))
	for _, r := range b.repos {
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *JSONBackend) DeleteRepo(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.repos, id)
	return b.flushRepos()
}

func (b *JSONBackend) PutWorkpad(w *Workpad) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *w
	b.pads[w.ID] = &cp
	return b.flushWorkpads()
}

func (b *JSONBackend) GetWorkpad(id string) (*Workpad, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.pads[id]
	if !ok {
		return nil, false, nil
	}
	cp := *w
	return &cp, true, nil
}

func (b *JSONBackend) ListWorkpads() ([]*Workpad, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Workpad, 0, len(b.pads))
	for _, w := range b.pads {
		cp := *w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *JSONBackend) DeleteWorkpad(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pads, id)
	return b.flushWorkpads()
}

// Snapshot is a no-op: every Put already durably rewrites its file.
func (b *JSONBackend) Snapshot() error { return nil }

func (b *JSONBackend) Close() error { return nil }
