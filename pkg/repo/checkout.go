package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/gitlet/pkg/object"
)

// ErrWouldOverwrite is returned when checkout or merge would discard
// uncommitted working-copy changes.
var ErrWouldOverwrite = fmt.Errorf("your local changes would be overwritten")

// Checkout switches the working directory to the state of target, which may
// be a branch name or a raw commit hash.
//
//  1. Resolve target: try as a local branch name first, then as a raw hash.
//  2. Refuse if any working-copy file differs from both HEAD and target
//     (ChangedFilesCommitWouldOverwrite).
//  3. Remove every currently tracked file, write every target-tree file.
//  4. Rewrite the index as a stage-0 mirror of the target tree.
//  5. Update HEAD: symbolic for a branch, detached for a raw hash.
func (r *Repo) Checkout(target string) error {
	if err := r.refuseIfBare("checkout"); err != nil {
		return err
	}

	isBranch := false
	var targetHash object.Hash

	branchHash, err := r.ResolveRef("refs/heads/" + target)
	if err == nil {
		targetHash = branchHash
		isBranch = true
	} else {
		targetHash = object.Hash(target)
	}

	commit, err := r.Store.ReadCommit(targetHash)
	if err != nil {
		return fmt.Errorf("checkout: cannot read commit %s: %w", targetHash, err)
	}

	overwritten, err := r.ChangedFilesCommitWouldOverwrite(targetHash)
	if err != nil {
		return fmt.Errorf("checkout: %w", err)
	}
	if len(overwritten) > 0 {
		return fmt.Errorf("checkout: %w: %v", ErrWouldOverwrite, overwritten)
	}

	targetFiles, err := r.FlattenTree(commit.TreeHash)
	if err != nil {
		return fmt.Errorf("checkout: flatten target tree: %w", err)
	}

	currentFiles := r.trackedFiles()
	for path := range currentFiles {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("checkout: remove %q: %w", path, err)
		}
		r.removeEmptyParents(filepath.Dir(absPath))
	}

	for _, f := range targetFiles {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Path))

		dir := filepath.Dir(absPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("checkout: mkdir %q: %w", dir, err)
		}

		blob, err := r.Store.ReadBlob(f.BlobHash)
		if err != nil {
			return fmt.Errorf("checkout: read blob for %q: %w", f.Path, err)
		}
		if err := os.WriteFile(absPath, blob.Data, filePermFromMode(f.Mode)); err != nil {
			return fmt.Errorf("checkout: write %q: %w", f.Path, err)
		}
	}

	toc := make(map[string]TreeFileEntry, len(targetFiles))
	for _, f := range targetFiles {
		toc[f.Path] = f
	}
	if err := r.WriteStaging(tocToIndex(toc)); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	var headContent string
	if isBranch {
		headContent = "ref: refs/heads/" + target
	} else {
		headContent = string(targetHash)
	}
	if err := r.Write("HEAD", headContent); err != nil {
		return fmt.Errorf("checkout: update HEAD: %w", err)
	}

	return nil
}

// trackedFiles returns a set of all currently tracked file paths: the union
// of the HEAD tree and the index.
func (r *Repo) trackedFiles() map[string]bool {
	files := make(map[string]bool)

	headEntries, err := r.headTOC()
	if err == nil {
		for path := range headEntries {
			files[path] = true
		}
	}

	stg, err := r.ReadStaging()
	if err == nil {
		for _, path := range stg.Paths() {
			files[path] = true
		}
	}

	return files
}

// removeEmptyParents removes empty directories up to (but not including)
// the repository root.
func (r *Repo) removeEmptyParents(dir string) {
	for {
		if dir == r.RootDir || !strings.HasPrefix(dir, r.RootDir) {
			return
		}

		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}

		os.Remove(dir)
		dir = filepath.Dir(dir)
	}
}
