// Package idgen generates opaque, prefixed identifiers for catalog records.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed opaque id, e.g. New("repo") -> "repo_3fa9c1e2a8b6".
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return prefix + "_" + id[:12]
}
