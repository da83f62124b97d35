// Package diff computes file-level differences between two tables of
// contents (TOCs): path -> blob hash maps. It knows nothing about trees,
// the index, or the working copy - callers flatten whichever pair of states
// they want compared into TOCs first.
package diff

import (
	"sort"

	"github.com/odvcencio/gitlet/pkg/object"
)

// Status classifies how a path differs between two TOCs.
type Status int

const (
	Same Status = iota
	Added
	Modified
	Deleted
)

func (s Status) String() string {
	switch s {
	case Added:
		return "A"
	case Modified:
		return "M"
	case Deleted:
		return "D"
	default:
		return "="
	}
}

// FileChange describes one path's change between an "a" (before) and "b"
// (after) TOC.
type FileChange struct {
	Path    string
	Status  Status
	OldHash object.Hash
	NewHash object.Hash
}

// NameStatus classifies every path present in a or b.
func NameStatus(a, b map[string]object.Hash) map[string]Status {
	out := make(map[string]Status, len(a)+len(b))
	for path, aHash := range a {
		bHash, inB := b[path]
		switch {
		case !inB:
			out[path] = Deleted
		case aHash == bHash:
			out[path] = Same
		default:
			out[path] = Modified
		}
	}
	for path, bHash := range b {
		if _, inA := a[path]; inA {
			continue
		}
		_ = bHash
		out[path] = Added
	}
	return out
}

// Diff returns every changed path (Same is excluded) between a and b,
// sorted by path.
func Diff(a, b map[string]object.Hash) []FileChange {
	statuses := NameStatus(a, b)
	out := make([]FileChange, 0, len(statuses))
	for path, st := range statuses {
		if st == Same {
			continue
		}
		out = append(out, FileChange{
			Path:    path,
			Status:  st,
			OldHash: a[path],
			NewHash: b[path],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// ChangedPaths returns the sorted set of paths where a and b disagree.
func ChangedPaths(a, b map[string]object.Hash) []string {
	statuses := NameStatus(a, b)
	out := make([]string, 0, len(statuses))
	for path, st := range statuses {
		if st != Same {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}
