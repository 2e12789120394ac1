// Package catalog implements the metadata sidecar that the Repository Store
// keeps alongside on-disk git state: two indexed mappings, repo-id->record
// and workpad-id->record, snapshotted atomically on every write.
//
// Backend is the single pluggable capability (get/put/list/delete/snapshot)
// the design notes call for; JSON is implemented first, Postgres second, as
// the "JSON now, SQL later" note anticipates. Go has no duck-typed handle
// for two differently-shaped records, so the one capability is expressed as
// two sets of typed methods rather than a single generic get/put — the
// record kind is part of the method name, not a runtime parameter.
package catalog

import "fmt"

// Backend is the persistence capability the Repository Store depends on.
// Every mutating method is expected to be atomic from the caller's point of
// view: either the whole record is visible afterward, or none of it is.
type Backend interface {
	PutRepo(r *Repository) error
	GetRepo(id string) (*Repository, bool, error)
	ListRepos() ([]*Repository, error)
	DeleteRepo(id string) error

	PutWorkpad(w *Workpad) error
	GetWorkpad(id string) (*Workpad, bool, error)
	ListWorkpads() ([]*Workpad, error)
	DeleteWorkpad(id string) error

	// Snapshot forces a consistent point-in-time flush. Backends that are
	// already durable after every Put (the JSON backend) may no-op.
	Snapshot() error

	Close() error
}

// ErrNotFound is a sentinel some backends may wrap; callers generally prefer
// the bool return on Get* over errors.Is against this.
var ErrNotFound = fmt.Errorf("catalog: record not found")
