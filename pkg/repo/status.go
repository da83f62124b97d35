package repo

import (
	"fmt"
	"sort"

	"github.com/odvcencio/gitlet/pkg/diff"
)

// FileStatus represents the state of a file in the working tree or index.
type FileStatus int

const (
	StatusClean     FileStatus = iota // matches between the two compared states
	StatusNew                         // present, absent on the other side
	StatusModified                    // present on both sides, content differs
	StatusConflict                    // file has unresolved merge conflict stages
	StatusDeleted                     // absent, present on the other side
)

// StatusEntry records the status of a single path relative to HEAD (index
// status) and relative to the index (work status).
type StatusEntry struct {
	Path        string
	IndexStatus FileStatus // index vs HEAD
	WorkStatus  FileStatus // working copy vs index
}

func statusFromDiff(st diff.Status) FileStatus {
	switch st {
	case diff.Added:
		return StatusNew
	case diff.Modified:
		return StatusModified
	case diff.Deleted:
		return StatusDeleted
	default:
		return StatusClean
	}
}

// Status computes the working-tree status for the repository by diffing
// HEAD's tree against the index, and the index against the working copy.
// Paths carrying unresolved conflict stages report StatusConflict in both
// columns regardless of content.
func (r *Repo) Status() ([]StatusEntry, error) {
	if err := r.refuseIfBare("status"); err != nil {
		return nil, err
	}

	stg, err := r.ReadStaging()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	indexTOC := stg.ReadTOC()

	headTOC, err := r.headTOC()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	workTOC, err := r.WorkingTOC()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	indexVsHead := diff.NameStatus(headTOC, indexTOC)
	workVsIndex := diff.NameStatus(indexTOC, workTOC)

	paths := make(map[string]struct{})
	for p := range indexVsHead {
		paths[p] = struct{}{}
	}
	for p := range workVsIndex {
		paths[p] = struct{}{}
	}
	conflicted := make(map[string]bool)
	for _, p := range stg.ConflictedPaths() {
		conflicted[p] = true
		paths[p] = struct{}{}
	}

	entries := make([]StatusEntry, 0, len(paths))
	for p := range paths {
		if conflicted[p] {
			entries = append(entries, StatusEntry{Path: p, IndexStatus: StatusConflict, WorkStatus: StatusConflict})
			continue
		}
		entries = append(entries, StatusEntry{
			Path:        p,
			IndexStatus: statusFromDiff(indexVsHead[p]),
			WorkStatus:  statusFromDiff(workVsIndex[p]),
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// IsClean reports whether every tracked and working-copy path matches
// between HEAD, the index, and the working copy, with no conflicts.
func (r *Repo) IsClean() (bool, error) {
	entries, err := r.Status()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.IndexStatus != StatusClean || e.WorkStatus != StatusClean {
			return false, nil
		}
	}
	return true, nil
}
