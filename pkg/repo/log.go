package repo

import (
	"fmt"

	"github.com/odvcencio/gitlet/pkg/object"
)

// LogEntry pairs a commit hash with its decoded object.
type LogEntry struct {
	Hash   object.Hash
	Commit *object.CommitObj
}

// Log walks the first-parent chain starting at start, returning at most
// limit entries (limit <= 0 means unlimited). An empty start yields an
// empty log (unborn HEAD).
func (r *Repo) Log(start object.Hash, limit int) ([]LogEntry, error) {
	var entries []LogEntry

	h := start
	for h != "" {
		if limit > 0 && len(entries) >= limit {
			break
		}
		commit, err := r.Store.ReadCommit(h)
		if err != nil {
			return nil, fmt.Errorf("log: read commit %s: %w", h, err)
		}
		entries = append(entries, LogEntry{Hash: h, Commit: commit})
		if len(commit.Parents) == 0 {
			break
		}
		h = commit.Parents[0]
	}
	return entries, nil
}
