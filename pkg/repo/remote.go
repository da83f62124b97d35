package repo

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/odvcencio/gitlet/pkg/object"
)

// FetchReport summarizes the result of a Fetch.
type FetchReport struct {
	RemoteName    string
	RemoteURL     string
	ObjectsCopied int
	Branches      []string        // peer branch names fetched, sorted
	Forced        map[string]bool // branch -> whether its tracking ref update was forced
}

// isForcedUpdate reports whether moving a remote-tracking ref from oldHash
// to newHash is a "forced" (non-fast-forward) update: true iff newHash is
// not a descendant of oldHash. A branch with no prior tracking ref is never
// forced.
func (r *Repo) isForcedUpdate(oldHash, newHash object.Hash) (bool, error) {
	if oldHash == "" || oldHash == newHash {
		return false, nil
	}
	isDescendant, err := r.IsAncestor(oldHash, newHash)
	if err != nil {
		return false, err
	}
	return !isDescendant, nil
}

// Fetch opens the peer repository configured for remoteName (a local
// filesystem path), copies every object it holds into the local store,
// updates refs/remotes/<remoteName>/* to mirror the peer's refs/heads/*, and
// writes FETCH_HEAD. Copying is idempotent: objects already present locally
// are never rewritten, so a second fetch against an unchanged peer copies
// zero objects.
//
// Exactly one FETCH_HEAD line omits "not-for-merge ": the peer's currently
// checked-out branch, or (if the peer's HEAD does not resolve to a known
// local branch) the alphabetically first branch.
func (r *Repo) Fetch(remoteName string) (*FetchReport, error) {
	remoteURL, err := r.RemoteURL(remoteName)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	peer, err := Open(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: open remote %q at %q: %w", remoteName, remoteURL, err)
	}

	copied, err := r.copyObjectsFrom(peer)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	peerBranches, err := peer.LocalHeads()
	if err != nil {
		return nil, fmt.Errorf("fetch: list peer branches: %w", err)
	}
	sort.Strings(peerBranches)

	forMergeBranch := r.peerForMergeBranch(peer, peerBranches)

	forced := make(map[string]bool, len(peerBranches))
	var fetchHead strings.Builder
	for _, branch := range peerBranches {
		h, err := peer.ResolveRef("refs/heads/" + branch)
		if err != nil {
			return nil, fmt.Errorf("fetch: resolve peer branch %q: %w", branch, err)
		}

		trackingRef := ToRemoteRef(remoteName, branch)
		priorHash, hadPrior := object.Hash(""), false
		if h0, err := r.ResolveRef(trackingRef); err == nil {
			priorHash, hadPrior = h0, true
		}

		if err := r.UpdateRef(trackingRef, h); err != nil {
			return nil, fmt.Errorf("fetch: update remote-tracking ref %q: %w", branch, err)
		}
		if hadPrior {
			wasForced, err := r.isForcedUpdate(priorHash, h)
			if err != nil {
				return nil, fmt.Errorf("fetch: check forced update for %q: %w", branch, err)
			}
			forced[branch] = wasForced
		}
		fetchHead.WriteString(ComposeFetchHead(h, branch, remoteURL, branch == forMergeBranch))
	}

	if err := os.WriteFile(r.refPath("FETCH_HEAD"), []byte(fetchHead.String()), 0o644); err != nil {
		return nil, fmt.Errorf("fetch: write FETCH_HEAD: %w", err)
	}

	return &FetchReport{RemoteName: remoteName, RemoteURL: remoteURL, ObjectsCopied: copied, Branches: peerBranches, Forced: forced}, nil
}

// peerForMergeBranch picks which of the peer's branches fetch should mark as
// for-merge: the peer's currently checked-out branch if it's one of
// peerBranches, else the alphabetically first branch.
func (r *Repo) peerForMergeBranch(peer *Repo, peerBranches []string) string {
	if head, err := peer.Head(); err == nil {
		current := strings.TrimPrefix(head, "refs/heads/")
		for _, b := range peerBranches {
			if b == current {
				return current
			}
		}
	}
	if len(peerBranches) > 0 {
		return peerBranches[0]
	}
	return ""
}

// copyObjectsFrom copies every object in peer's store that this repo's
// store does not already have, and returns the count copied.
func (r *Repo) copyObjectsFrom(peer *Repo) (int, error) {
	hashes, err := peer.Store.ListAllHashes()
	if err != nil {
		return 0, fmt.Errorf("list peer objects: %w", err)
	}

	copied := 0
	for _, h := range hashes {
		if r.Store.Has(h) {
			continue
		}
		objType, data, err := peer.Store.Read(h)
		if err != nil {
			return copied, fmt.Errorf("read peer object %s: %w", h, err)
		}
		if _, err := r.Store.Write(objType, data); err != nil {
			return copied, fmt.Errorf("write object %s: %w", h, err)
		}
		copied++
	}
	return copied, nil
}

// Pull fetches from remoteName and merges FETCH_HEAD's for-merge entry into
// the current branch. The internal fetch always completes before the merge
// begins.
func (r *Repo) Pull(remoteName string) (*FetchReport, *MergeReport, error) {
	fetchReport, err := r.Fetch(remoteName)
	if err != nil {
		return nil, nil, fmt.Errorf("pull: %w", err)
	}
	mergeReport, err := r.Merge("FETCH_HEAD")
	if err != nil {
		return fetchReport, nil, fmt.Errorf("pull: %w", err)
	}
	return fetchReport, mergeReport, nil
}
