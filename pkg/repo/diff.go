package repo

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/odvcencio/gitlet/pkg/diff"
	"github.com/odvcencio/gitlet/pkg/object"
)

// WorkingTOC hashes every non-ignored file in the working copy (without
// writing to the object store) and returns a path -> blob hash table.
func (r *Repo) WorkingTOC() (map[string]object.Hash, error) {
	if err := r.refuseIfBare("working copy scan"); err != nil {
		return nil, err
	}

	ic := NewIgnoreChecker(r.RootDir)
	toc := make(map[string]object.Hash)

	err := filepath.WalkDir(r.RootDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(r.RootDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if ic.IsIgnored(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if ic.IsIgnored(rel) {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("working toc: read %q: %w", rel, err)
		}
		toc[rel] = object.HashObject(object.TypeBlob, content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("working toc: %w", err)
	}
	return toc, nil
}

// treeTOC flattens a tree hash into a path -> blob hash table. An empty hash
// (unborn HEAD) yields an empty table.
func (r *Repo) treeTOC(h object.Hash) (map[string]object.Hash, error) {
	if h == "" {
		return map[string]object.Hash{}, nil
	}
	return r.FlattenTreeTOC(h)
}

// commitTreeTOC resolves a commit hash and flattens its tree.
func (r *Repo) commitTreeTOC(commitHash object.Hash) (map[string]object.Hash, error) {
	commit, err := r.Store.ReadCommit(commitHash)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", commitHash, err)
	}
	return r.treeTOC(commit.TreeHash)
}

// ReadDiff computes a file-level change list between two states, chosen by
// which hashes are supplied:
//   - h1 and h2 both set: tree-vs-tree (h1, h2 are commit hashes)
//   - only h1 set: tree-vs-index (h1 is a commit hash, compared to the index)
//   - neither set: index-vs-working-copy
func (r *Repo) ReadDiff(h1, h2 object.Hash) ([]diff.FileChange, error) {
	var a, b map[string]object.Hash
	var err error

	switch {
	case h1 != "" && h2 != "":
		a, err = r.commitTreeTOC(h1)
		if err != nil {
			return nil, err
		}
		b, err = r.commitTreeTOC(h2)
		if err != nil {
			return nil, err
		}
	case h1 != "":
		a, err = r.commitTreeTOC(h1)
		if err != nil {
			return nil, err
		}
		stg, err := r.ReadStaging()
		if err != nil {
			return nil, err
		}
		b = stg.ReadTOC()
	default:
		stg, err := r.ReadStaging()
		if err != nil {
			return nil, err
		}
		a = stg.ReadTOC()
		b, err = r.WorkingTOC()
		if err != nil {
			return nil, err
		}
	}

	return diff.Diff(a, b), nil
}

// ChangedFilesCommitWouldOverwrite returns the paths that differ between the
// working copy and HEAD in a way that checking out or merging targetCommit
// would clobber: any path whose working-copy content differs from HEAD's
// and also differs from targetCommit's. A clean path, or one where the
// working copy already matches the target, is never reported, nor is an
// untracked path that neither HEAD nor targetCommit contains.
func (r *Repo) ChangedFilesCommitWouldOverwrite(targetCommit object.Hash) ([]string, error) {
	headTOC, err := r.headTOC()
	if err != nil {
		return nil, fmt.Errorf("changed files would overwrite: %w", err)
	}
	targetTOC, err := r.commitTreeTOC(targetCommit)
	if err != nil {
		return nil, fmt.Errorf("changed files would overwrite: %w", err)
	}
	workingTOC, err := r.WorkingTOC()
	if err != nil {
		return nil, fmt.Errorf("changed files would overwrite: %w", err)
	}

	paths := make(map[string]struct{})
	for p := range headTOC {
		paths[p] = struct{}{}
	}
	for p := range targetTOC {
		paths[p] = struct{}{}
	}
	for p := range workingTOC {
		paths[p] = struct{}{}
	}

	var overwritten []string
	for p := range paths {
		workHash, inWork := workingTOC[p]
		headHash, inHead := headTOC[p]
		targetHash, inTarget := targetTOC[p]

		if inWork && workHash == targetHash {
			continue
		}
		if !inWork && !inTarget {
			continue
		}
		if inWork == inHead && workHash == headHash {
			continue
		}
		if !inHead && !inTarget {
			continue
		}
		overwritten = append(overwritten, p)
	}

	sort.Strings(overwritten)
	return overwritten, nil
}
