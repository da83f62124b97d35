// Package repo implements the working-copy and metadata operations layered
// on top of the content-addressed object store: the index, refs, commit
// graph, merge engine and command facade.
package repo

import "github.com/odvcencio/gitlet/pkg/object"

// GotDirName is the name of the per-repository metadata directory.
const GotDirName = ".gitlet"

// Repo represents an opened repository.
type Repo struct {
	RootDir string        // working directory root
	GotDir  string        // .gitlet/ directory (== RootDir for a bare repo)
	Store   *object.Store // content-addressed object store
	Bare    bool          // true if this repo has no working copy
}
