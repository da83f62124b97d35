package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/gitlet/pkg/object"
)

// A ref name is either "HEAD", a loose ref under refs/ (e.g. "refs/heads/main",
// "refs/remotes/origin/main"), or one of the top-level pseudo-refs
// ("FETCH_HEAD", "MERGE_HEAD"). A ref file holds either a 40-hex object hash
// or a symbolic pointer "ref: <other-ref-name>\n".

const symbolicRefPrefix = "ref: "

func isValidRefName(name string) bool {
	if name == "HEAD" || name == "FETCH_HEAD" || name == "MERGE_HEAD" {
		return true
	}
	if strings.HasPrefix(name, "refs/heads/") && len(name) > len("refs/heads/") {
		return true
	}
	if strings.HasPrefix(name, "refs/remotes/") {
		rest := strings.TrimPrefix(name, "refs/remotes/")
		parts := strings.SplitN(rest, "/", 2)
		return len(parts) == 2 && parts[0] != "" && parts[1] != ""
	}
	return false
}

func (r *Repo) refPath(name string) string {
	return filepath.Join(r.GotDir, filepath.FromSlash(name))
}

func (r *Repo) readRefFile(name string) (string, error) {
	data, err := os.ReadFile(r.refPath(name))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// HashOf reads the raw, non-recursive contents of a ref file and parses it as
// an object hash. It returns an error if the ref is symbolic or missing.
func (r *Repo) HashOf(name string) (object.Hash, error) {
	content, err := r.readRefFile(name)
	if err != nil {
		return "", fmt.Errorf("read ref %q: %w", name, err)
	}
	if strings.HasPrefix(content, symbolicRefPrefix) {
		return "", fmt.Errorf("ref %q is symbolic, not a direct hash", name)
	}
	return object.Hash(content), nil
}

// Terminal follows symbolic refs starting at name until it reaches a ref
// holding a direct hash, and returns that final ref's name (which may be
// name itself if it was already direct). A chain longer than 10 hops is
// treated as a cycle.
func (r *Repo) Terminal(name string) (string, error) {
	cur := name
	for i := 0; i < 10; i++ {
		content, err := r.readRefFile(cur)
		if err != nil {
			return "", fmt.Errorf("resolve ref %q: %w", name, err)
		}
		if !strings.HasPrefix(content, symbolicRefPrefix) {
			return cur, nil
		}
		cur = strings.TrimPrefix(content, symbolicRefPrefix)
	}
	return "", fmt.Errorf("resolve ref %q: symbolic ref chain too long", name)
}

// Head reads the contents of HEAD verbatim: either "refs/heads/<branch>" (the
// symbolic target, prefix stripped) or a raw hash when detached.
func (r *Repo) Head() (string, error) {
	content, err := r.readRefFile("HEAD")
	if err != nil {
		return "", fmt.Errorf("head: %w", err)
	}
	if strings.HasPrefix(content, symbolicRefPrefix) {
		return strings.TrimPrefix(content, symbolicRefPrefix), nil
	}
	return content, nil
}

// HeadIsDetached reports whether HEAD currently holds a raw hash rather than
// a symbolic branch pointer.
func (r *Repo) HeadIsDetached() (bool, error) {
	content, err := r.readRefFile("HEAD")
	if err != nil {
		return false, fmt.Errorf("head: %w", err)
	}
	return !strings.HasPrefix(content, symbolicRefPrefix), nil
}

// CurrentBranchName returns the current branch's short name ("main"), or ""
// if HEAD is detached.
func (r *Repo) CurrentBranchName() (string, error) {
	detached, err := r.HeadIsDetached()
	if err != nil {
		return "", err
	}
	if detached {
		return "", nil
	}
	head, err := r.Head()
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(head, "refs/heads/"), nil
}

// ResolveRef resolves name to an object hash, following HEAD/symbolic
// indirection as needed. name may be "HEAD", a bare branch name ("main",
// resolved against refs/heads/), or a fully-qualified ref path.
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	if name == "HEAD" {
		head, err := r.Head()
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(head, "refs/") {
			return r.ResolveRef(head)
		}
		return object.Hash(head), nil
	}

	var refName string
	switch {
	case strings.HasPrefix(name, "refs/"), name == "FETCH_HEAD", name == "MERGE_HEAD":
		refName = name
	default:
		refName = ToLocalRef(name)
	}

	data, err := os.ReadFile(r.refPath(refName))
	if err != nil {
		return "", fmt.Errorf("resolve ref %q: %w", name, err)
	}
	content := strings.TrimRight(string(data), "\n")
	if strings.HasPrefix(content, symbolicRefPrefix) {
		return r.ResolveRef(strings.TrimPrefix(content, symbolicRefPrefix))
	}
	return object.Hash(content), nil
}

// Write sets ref name's contents directly, without compare-and-swap. value
// may be a hash or a "ref: <target>" symbolic pointer.
func (r *Repo) Write(name, value string) error {
	refPath := r.refPath(name)
	if err := os.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return fmt.Errorf("write ref %q: mkdir: %w", name, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(refPath), ".ref-tmp-*")
	if err != nil {
		return fmt.Errorf("write ref %q: tmpfile: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(value + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write ref %q: write: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write ref %q: close: %w", name, err)
	}
	if err := os.Rename(tmpName, refPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write ref %q: rename: %w", name, err)
	}
	return nil
}

// RemoveRef deletes a ref file, ignoring a missing file.
func (r *Repo) RemoveRef(name string) error {
	if err := os.Remove(r.refPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove ref %q: %w", name, err)
	}
	return nil
}

// UpdateRef is UpdateRefCAS with no expected-old constraint.
func (r *Repo) UpdateRef(name string, h object.Hash) error {
	return r.UpdateRefCAS(name, h)
}

// UpdateRefCAS writes hash h to the named ref file using lockfile + rename
// atomic semantics. If expectedOld is provided, the update only succeeds
// when the ref's current direct value matches it.
func (r *Repo) UpdateRefCAS(name string, h object.Hash, expectedOld ...object.Hash) error {
	if len(expectedOld) > 1 {
		return fmt.Errorf("update ref %q: expected at most one old hash", name)
	}
	hasExpectedOld := len(expectedOld) == 1
	wantOldHash := object.Hash("")
	if hasExpectedOld {
		wantOldHash = expectedOld[0]
	}

	refPath := r.refPath(name)

	dir := filepath.Dir(refPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", name, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("update ref %q: lock: %w", name, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	oldHash, err := readRefHash(refPath)
	if err != nil {
		return fmt.Errorf("update ref %q: read old hash: %w", name, err)
	}
	if hasExpectedOld && oldHash != wantOldHash {
		return fmt.Errorf(
			"update ref %q: %w (expected %s, found %s)",
			name,
			ErrRefCASMismatch,
			wantOldHash,
			oldHash,
		)
	}

	if _, err := lockFile.WriteString(string(h) + "\n"); err != nil {
		return fmt.Errorf("update ref %q: write: %w", name, err)
	}
	if err := lockFile.Sync(); err != nil {
		return fmt.Errorf("update ref %q: sync: %w", name, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return fmt.Errorf("update ref %q: close: %w", name, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, refPath); err != nil {
		return fmt.Errorf("update ref %q: rename: %w", name, err)
	}
	cleanupLock = false

	return nil
}

// ---------------------------------------------------------------------------
// Namespacing helpers
// ---------------------------------------------------------------------------

// ToLocalRef maps a short branch name to its full local ref path.
func ToLocalRef(branch string) string {
	if strings.HasPrefix(branch, "refs/") {
		return branch
	}
	return "refs/heads/" + branch
}

// ToRemoteRef maps a (remote, branch) pair to its remote-tracking ref path.
func ToRemoteRef(remote, branch string) string {
	return "refs/remotes/" + remote + "/" + branch
}

// LocalHeads lists every local branch name, sorted.
func (r *Repo) LocalHeads() ([]string, error) {
	dir := filepath.Join(r.GotDir, "refs", "heads")
	return listRefNames(dir, "")
}

// RemoteHeads lists the branch names under refs/remotes/<remote>, sorted,
// without the "<remote>/" prefix.
func (r *Repo) RemoteHeads(remote string) ([]string, error) {
	dir := filepath.Join(r.GotDir, "refs", "remotes", remote)
	return listRefNames(dir, "")
}

func listRefNames(dir, prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return filepath.SkipDir
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		names = append(names, prefix+filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return names, nil
}

// ListRefs lists references under .gitlet/refs/<prefix>. Names are returned
// relative to the refs root, e.g. "heads/main", "remotes/origin/main".
func (r *Repo) ListRefs(prefix string) (map[string]object.Hash, error) {
	root := filepath.Join(r.GotDir, "refs")
	dir := root
	if strings.TrimSpace(prefix) != "" {
		dir = filepath.Join(root, filepath.FromSlash(prefix))
	}

	refs := make(map[string]object.Hash)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		refs[name] = object.Hash(strings.TrimSpace(string(data)))
		return nil
	})
	if os.IsNotExist(err) {
		return refs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return refs, nil
}

// ComposeFetchHead renders one FETCH_HEAD line for a fetched branch:
// "<hash> branch '<branch>' of <remote-url>\n" for the branch that would be
// merged by a bare `pull`, or "<hash> not-for-merge branch '<branch>' of
// <remote-url>\n" otherwise. Exactly one line across a fetch omits
// not-for-merge: the branch currently checked out on the remote, or the
// alphabetically first branch when the remote's HEAD is not one of them
// (see peerForMergeBranch).
func ComposeFetchHead(h object.Hash, branch, remoteURL string, forMerge bool) string {
	marker := "not-for-merge "
	if forMerge {
		marker = ""
	}
	return fmt.Sprintf("%s %sbranch '%s' of %s\n", h, marker, branch, remoteURL)
}

// FetchHeadMergeTarget reads .gitlet/FETCH_HEAD and returns the hash of the
// entry that a bare `pull` should merge: the line with no "not-for-merge "
// marker. Used to resolve the "FETCH_HEAD" pseudo-ref passed to Merge.
func (r *Repo) FetchHeadMergeTarget() (object.Hash, error) {
	data, err := os.ReadFile(r.refPath("FETCH_HEAD"))
	if err != nil {
		return "", fmt.Errorf("read FETCH_HEAD: %w", err)
	}
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		if strings.HasPrefix(fields[1], "not-for-merge ") {
			continue
		}
		return object.Hash(fields[0]), nil
	}
	return "", fmt.Errorf("FETCH_HEAD: no for-merge entry found")
}
