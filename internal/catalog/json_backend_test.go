package catalog

import (
	"path/filepath"
	"testing"
)

func TestJSONBackend_PutGetRepo(t *testing.T) {
	dir := t.TempDir()
	b, err := NewJSONBackend(dir)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}

	repo := &Repository{ID: "repo_abc123", Name: "demo", Path: "/tmp/demo", TrunkBranch: "main"}
	if err := b.PutRepo(repo); err != nil {
		t.Fatalf("put repo: %v", err)
	}

	got, ok, err := b.GetRepo("repo_abc123")
	if err != nil {
		t.Fatalf("get repo: %v", err)
	}
	if !ok {
		t.Fatal("expected repo to be found")
	}
	if got.Name != "demo" {
		t.Fatalf("expected name demo, got %q", got.Name)
	}

	if _, err := readJSON(filepath.Join(dir, "repositories.json"), &map[string]*Repository{}); err != nil {
		t.Fatalf("expected repositories.json to be readable: %v", err)
	}
}

func TestJSONBackend_ReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	b1, err := NewJSONBackend(dir)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	pad := &Workpad{ID: "pad_1", RepoID: "repo_abc123", Title: "add-greeter", Status: WorkpadActive}
	if err := b1.PutWorkpad(pad); err != nil {
		t.Fatalf("put workpad: %v", err)
	}

	b2, err := NewJSONBackend(dir)
	if err != nil {
		t.Fatalf("reload backend: %v", err)
	}
	got, ok, err := b2.GetWorkpad("pad_1")
	if err != nil {
		t.Fatalf("get workpad: %v", err)
	}
	if !ok {
		t.Fatal("expected workpad to survive reload")
	}
	if got.Title != "add-greeter" {
		t.Fatalf("expected title add-greeter, got %q", got.Title)
	}
}

func TestJSONBackend_DeleteWorkpad(t *testing.T) {
	dir := t.TempDir()
	b, err := NewJSONBackend(dir)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	pad := &Workpad{ID: "pad_1", RepoID: "repo_abc123"}
	if err := b.PutWorkpad(pad); err != nil {
		t.Fatalf("put workpad: %v", err)
	}
	if err := b.DeleteWorkpad("pad_1"); err != nil {
		t.Fatalf("delete workpad: %v", err)
	}
	_, ok, err := b.GetWorkpad("pad_1")
	if err != nil {
		t.Fatalf("get workpad: %v", err)
	}
	if ok {
		t.Fatal("expected workpad to be gone after delete")
	}
}

func TestJSONBackend_ListReposSorted(t *testing.T) {
	dir := t.TempDir()
	b, err := NewJSONBackend(dir)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	for _, id := range []string{"repo_c", "repo_a", "repo_b"} {
		if err := b.PutRepo(&Repository{ID: id}); err != nil {
			t.Fatalf("put repo %s: %v", id, err)
		}
	}
	repos, err := b.ListRepos()
	if err != nil {
		t.Fatalf("list repos: %v", err)
	}
	if len(repos) != 3 {
		t.Fatalf("expected 3 repos, got %d", len(repos))
	}
	if repos[0].ID != "repo_a" || repos[1].ID != "repo_b" || repos[2].ID != "repo_c" {
		t.Fatalf("expected sorted order, got %v", repos)
	}
}
