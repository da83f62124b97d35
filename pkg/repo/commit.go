package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/gitlet/pkg/object"
)

func (r *Repo) mergeHeadPath() string { return filepath.Join(r.GotDir, "MERGE_HEAD") }
func (r *Repo) mergeMsgPath() string  { return filepath.Join(r.GotDir, "MERGE_MSG") }

// mergeInProgress reports whether MERGE_HEAD is present, and if so its value.
func (r *Repo) mergeInProgress() (object.Hash, bool, error) {
	data, err := os.ReadFile(r.mergeHeadPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read MERGE_HEAD: %w", err)
	}
	return object.Hash(strings.TrimSpace(string(data))), true, nil
}

func (r *Repo) clearMergeState() error {
	if err := os.Remove(r.mergeHeadPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear MERGE_HEAD: %w", err)
	}
	if err := os.Remove(r.mergeMsgPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear MERGE_MSG: %w", err)
	}
	return nil
}

// ErrNothingToCommit is returned when a commit's resulting tree would be
// identical to HEAD's tree and no merge is in progress.
var ErrNothingToCommit = errors.New("nothing to commit, working tree clean")

// ErrUnmergedFiles is returned when a commit is attempted while the index
// still carries unresolved conflict stages.
var ErrUnmergedFiles = errors.New("unmerged files, cannot commit")

// Commit builds a tree from the current index, and creates a commit object
// whose parents are [HEAD] normally, or [HEAD, MERGE_HEAD] when a merge is
// in progress. Fails fast, before any object is written, if the index still
// carries conflict stages (UnmergedFiles), or if the resulting tree would be
// identical to HEAD's tree and no merge is in progress (nothing to commit).
func (r *Repo) Commit(message, author string) (object.Hash, error) {
	stg, err := r.ReadStaging()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if len(stg.ConflictedPaths()) > 0 {
		return "", fmt.Errorf("commit: %w: %v", ErrUnmergedFiles, stg.ConflictedPaths())
	}

	mergeHead, merging, err := r.mergeInProgress()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	headHash, headErr := r.ResolveRef("HEAD")
	haveHead := headErr == nil && headHash != ""

	var headTree object.Hash
	if haveHead {
		headCommit, err := r.Store.ReadCommit(headHash)
		if err != nil {
			return "", fmt.Errorf("commit: read HEAD commit: %w", err)
		}
		headTree = headCommit.TreeHash
	}

	treeHash, err := r.BuildTree(stg)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	if !merging && haveHead && treeHash == headTree {
		return "", ErrNothingToCommit
	}

	var parents []object.Hash
	if haveHead {
		parents = append(parents, headHash)
	}
	if merging {
		parents = append(parents, mergeHead)
	}

	commitObj := &object.CommitObj{
		TreeHash:  treeHash,
		Parents:   parents,
		Author:    author,
		Timestamp: time.Now().Unix(),
		Message:   message,
	}

	commitHash, err := r.Store.WriteCommit(commitObj)
	if err != nil {
		return "", fmt.Errorf("commit: write commit: %w", err)
	}

	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("commit: read HEAD: %w", err)
	}

	if strings.HasPrefix(head, "refs/") {
		if err := r.UpdateRef(head, commitHash); err != nil {
			return "", fmt.Errorf("commit: update ref %q: %w", head, err)
		}
	} else {
		if err := r.Write("HEAD", string(commitHash)); err != nil {
			return "", fmt.Errorf("commit: update HEAD: %w", err)
		}
	}

	if merging {
		if err := r.clearMergeState(); err != nil {
			return "", fmt.Errorf("commit: %w", err)
		}
	}

	return commitHash, nil
}
