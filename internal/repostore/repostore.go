// Package repostore implements the Repository Store: the single point of
// truth for on-disk git state plus the sidecar metadata catalog. Every
// other component reaches git only through this package's typed
// primitives — nothing else shells out independently.
package repostore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/sologit/sologit/internal/capability"
	"github.com/sologit/sologit/internal/catalog"
	"github.com/sologit/sologit/internal/errs"
	"github.com/sologit/sologit/internal/gitengine"
	"github.com/sologit/sologit/internal/idgen"
)

const (
	authorName  = "sologit"
	authorEmail = "sologit@localhost"
)

// Store is the Repository Store. One Store instance serves every repo
// under baseDir; per-repo mutual exclusion is provided by a file lock
// keyed on repo id, not by one Store per repo.
type Store struct {
	baseDir string
	git     *gitengine.Engine
	cat     catalog.Backend
	events  capability.EventSink

	locksMu sync.Mutex
	locks   map[string]*flock.Flock
}

// New creates a Store rooted at baseDir (data/repos/<id> for working
// trees, locks/ for per-repo lock files), backed by cat for metadata and
// git for repository primitives. events may be nil to disable publishing.
func New(baseDir string, git *gitengine.Engine, cat catalog.Backend, events capability.EventSink) *Store {
	return &Store{
		baseDir: baseDir,
		git:     git,
		cat:     cat,
		events:  events,
		locks:   make(map[string]*flock.Flock),
	}
}

func (s *Store) reposDir() string { return filepath.Join(s.baseDir, "data", "repos") }
func (s *Store) repoPath(id string) string { return filepath.Join(s.reposDir(), id) }
func (s *Store) locksDir() string { return filepath.Join(s.baseDir, "locks") }

func (s *Store) publish(e capability.Event) {
	if s.events == nil {
		return
	}
	_ = s.events.Publish(e)
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

// withRepoLock runs fn while holding the exclusive per-repo writer lock,
// per §5's shared-resource policy: one exclusive writer at a time per repo
// id, enforced in-process (this is explicitly single-host infrastructure,
// so an advisory flock is sufficient — it also composes cleanly if two
// processes on the same host share baseDir).
func (s *Store) withRepoLock(repoID string, fn func() error) error {
	s.locksMu.Lock()
	fl, ok := s.locks[repoID]
	if !ok {
		if err := os.MkdirAll(s.locksDir(), 0o755); err != nil {
			s.locksMu.Unlock()
			return &errs.Io{Op: "mkdir locks dir", Err: err}
		}
		fl = flock.New(filepath.Join(s.locksDir(), repoID+".lock"))
		s.locks[repoID] = fl
	}
	s.locksMu.Unlock()

	if err := fl.Lock(); err != nil {
		return &errs.Io{Op: "acquire repo lock", Err: err}
	}
	defer fl.Unlock()

	return fn()
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// slugify implements §9's fixed slugging rule: lower-case, collapse runs of
// non-[a-z0-9] to a single '-', trim leading/trailing '-'.
func slugify(title string) string {
	s := strings.ToLower(title)
	s = slugRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// branchName implements the §6 workpad branch naming contract:
// pads/<slugified-title>-<yyyymmdd-hhmmss> in local time.
func branchName(title string) string {
	return fmt.Sprintf("pads/%s-%s", slugify(title), time.Now().Format("20060102-150405"))
}

// checkpointTag implements the §6 tag naming contract, exactly
// pads/<workpad-id>@t<ordinal>.
func checkpointTag(workpadID string, ordinal int) string {
	return fmt.Sprintf("pads/%s@t%d", workpadID, ordinal)
}
