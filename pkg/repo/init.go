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

// ErrRefCASMismatch is returned by UpdateRefCAS when the ref's current value
// does not match the caller's expected old value.
var ErrRefCASMismatch = errors.New("ref compare-and-swap mismatch")

// ErrBareRepo is returned by working-copy-touching operations when called
// against a bare repository (one with no working copy, core.bare = true).
var ErrBareRepo = errors.New("this operation must be run in a working copy, not a bare repository")

// ErrUnsupported marks an operation that is intentionally refused rather
// than given some unspecified default behavior.
var ErrUnsupported = errors.New("unsupported")

const (
	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second
)

// Init creates a new non-bare repository at path. It creates the .gitlet/
// directory structure: HEAD, objects/, and refs/heads/. Returns an error if
// a .gitlet/ directory already exists.
func Init(path string) (*Repo, error) {
	gotDir := filepath.Join(path, GotDirName)

	if _, err := os.Stat(gotDir); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", gotDir)
	}

	if err := createRepoLayout(gotDir); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	r := &Repo{
		RootDir: path,
		GotDir:  gotDir,
		Store:   object.NewStore(gotDir),
	}
	if err := r.WriteConfig(defaultConfig()); err != nil {
		return nil, fmt.Errorf("init: write config: %w", err)
	}

	return r, nil
}

// InitBare creates a new bare repository directly at path: HEAD, objects/,
// and refs/heads/ live at path itself rather than under a .gitlet/
// subdirectory, and config records core.bare = true. Bare repositories have
// no working copy; operations that read or write one refuse with
// ErrBareRepo.
func InitBare(path string) (*Repo, error) {
	if _, err := os.Stat(filepath.Join(path, "HEAD")); err == nil {
		return nil, fmt.Errorf("init --bare: repository already exists at %s", path)
	}

	if err := createRepoLayout(path); err != nil {
		return nil, fmt.Errorf("init --bare: %w", err)
	}

	r := &Repo{
		RootDir: path,
		GotDir:  path,
		Store:   object.NewStore(path),
		Bare:    true,
	}
	cfg := defaultConfig()
	cfg.CoreBare = true
	if err := r.WriteConfig(cfg); err != nil {
		return nil, fmt.Errorf("init --bare: write config: %w", err)
	}

	return r, nil
}

// createRepoLayout lays out HEAD, objects/, and refs/{heads,remotes}/ under
// gotDir (the .gitlet/ directory for a non-bare repo, or the repo root
// itself for a bare one).
func createRepoLayout(gotDir string) error {
	dirs := []string{
		filepath.Join(gotDir, "objects"),
		filepath.Join(gotDir, "refs", "heads"),
		filepath.Join(gotDir, "refs", "remotes"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", d, err)
		}
	}

	headPath := filepath.Join(gotDir, "HEAD")
	if err := os.WriteFile(headPath, []byte("ref: refs/heads/main\n"), 0o644); err != nil {
		return fmt.Errorf("write HEAD: %w", err)
	}
	return nil
}

// Open searches upward from path for a .gitlet/ directory and opens the
// repository. If none is found, it checks whether path itself is a bare
// repository root (HEAD and objects/ directly present, no working copy to
// walk up from). Returns an error if neither is found (NotInRepo).
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		gotDir := filepath.Join(cur, GotDirName)
		info, err := os.Stat(gotDir)
		if err == nil && info.IsDir() {
			return &Repo{
				RootDir: cur,
				GotDir:  gotDir,
				Store:   object.NewStore(gotDir),
			}, nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}

	if r, err := openBare(abs); err == nil {
		return r, nil
	}
	return nil, fmt.Errorf("not in a gitlet repository (or any parent up to /)")
}

// openBare opens path as a bare repository root: HEAD and objects/ present
// directly, no .gitlet/ subdirectory.
func openBare(path string) (*Repo, error) {
	if _, err := os.Stat(filepath.Join(path, "HEAD")); err != nil {
		return nil, err
	}
	if info, err := os.Stat(filepath.Join(path, "objects")); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("no objects/ directory at %s", path)
	}

	r := &Repo{
		RootDir: path,
		GotDir:  path,
		Store:   object.NewStore(path),
	}
	cfg, err := r.ReadConfig()
	if err != nil {
		return nil, err
	}
	r.Bare = cfg.CoreBare
	return r, nil
}

// refuseIfBare returns ErrBareRepo, wrapped with op, if r has no working
// copy. Working-copy-touching facade operations call this first.
func (r *Repo) refuseIfBare(op string) error {
	if r.Bare {
		return fmt.Errorf("%s: %w", op, ErrBareRepo)
	}
	return nil
}

func acquireRefLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(refLockRetryDelay)
			continue
		}
		return nil, err
	}
}

func readRefHash(refPath string) (object.Hash, error) {
	data, err := os.ReadFile(refPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return object.Hash(strings.TrimSpace(string(data))), nil
}
