package eventlog

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPublishAndSince(t *testing.T) {
	db := openTestDB(t)

	if err := db.Publish(Event{RepoID: "repo_1", Kind: "repo.created", Detail: "init"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := db.Publish(Event{RepoID: "repo_1", WorkpadID: "pad_1", Kind: "workpad.created"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := db.Publish(Event{RepoID: "repo_2", Kind: "repo.created"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	events, err := db.Since("repo_1", "2000-01-01")
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events for repo_1, got %d", len(events))
	}
	if events[0].Kind != "repo.created" || events[1].Kind != "workpad.created" {
		t.Fatalf("unexpected event order: %+v", events)
	}
	if events[1].WorkpadID != "pad_1" {
		t.Fatalf("expected workpad_id pad_1, got %q", events[1].WorkpadID)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate should be a no-op, got error: %v", err)
	}
}

func TestReset(t *testing.T) {
	db := openTestDB(t)
	if err := db.Publish(Event{RepoID: "repo_1", Kind: "repo.created"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := db.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	events, err := db.Since("repo_1", "2000-01-01")
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected empty log after reset, got %d events", len(events))
	}
}
