package repo

import (
	"bytes"
	"container/heap"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/odvcencio/gitlet/pkg/object"
)

// MergeState enumerates the three states a repository's merge machinery can
// be in.
type MergeState int

const (
	MergeStateClean MergeState = iota
	MergeStateInProgressClean
	MergeStateInProgressConflicted
)

func (s MergeState) String() string {
	switch s {
	case MergeStateInProgressClean:
		return "IN_PROGRESS_CLEAN"
	case MergeStateInProgressConflicted:
		return "IN_PROGRESS_CONFLICTED"
	default:
		return "CLEAN"
	}
}

// State reports the repository's current merge state, derived from whether
// MERGE_HEAD is present and whether the index carries conflict stages.
func (r *Repo) State() (MergeState, error) {
	_, inProgress, err := r.mergeInProgress()
	if err != nil {
		return MergeStateClean, err
	}
	if !inProgress {
		return MergeStateClean, nil
	}
	stg, err := r.ReadStaging()
	if err != nil {
		return MergeStateClean, err
	}
	if len(stg.ConflictedPaths()) > 0 {
		return MergeStateInProgressConflicted, nil
	}
	return MergeStateInProgressClean, nil
}

// FileMergeReport records the outcome of merging a single path.
type FileMergeReport struct {
	Path   string
	Status string // "clean", "conflict", "added", "deleted"
}

// MergeReport is the overall result of a Merge call.
type MergeReport struct {
	AlreadyUpToDate bool
	FastForward     bool
	Files           []FileMergeReport
	HasConflicts    bool
	TotalConflicts  int
	MergeCommit     object.Hash // set on fast-forward; unset for a non-FF merge awaiting commit
}

const (
	maxMergeBaseBFSSteps = 1_000_000
	maxMergeBaseBFSDepth = 1_000_000
)

// These vars allow tests to tighten safety limits without affecting
// production defaults.
var (
	mergeBaseBFSStepsLimit = maxMergeBaseBFSSteps
	mergeBaseBFSDepthLimit = maxMergeBaseBFSDepth
)

type mergeBaseTraversalQueueItem struct {
	hash  object.Hash
	depth int
}

func mergeBaseTraversalLimits() (maxSteps int, maxDepth int) {
	maxSteps = normalizeMergeBaseTraversalLimit(mergeBaseBFSStepsLimit, maxMergeBaseBFSSteps)
	maxDepth = normalizeMergeBaseTraversalLimit(mergeBaseBFSDepthLimit, maxMergeBaseBFSDepth)

	return maxSteps, maxDepth
}

func normalizeMergeBaseTraversalLimit(limit, hardMax int) int {
	// Keep safety defaults as hard bounds; test hooks may only tighten.
	if limit <= 0 || limit > hardMax {
		return hardMax
	}
	return limit
}

func mergeBaseStepsLimitError(limit int) error {
	return fmt.Errorf("find merge base: traversal exceeded maximum steps (%d)", limit)
}

func mergeBaseDepthLimitError(limit int) error {
	return fmt.Errorf("find merge base: traversal exceeded maximum depth (%d)", limit)
}

// getMergeTraversalState returns a fresh, call-scoped cache for commit reads
// and generation numbers. It is not persisted on Repo: each top-level merge
// or ancestry query gets its own memoization, which is enough to avoid
// redundant object reads within a single FindMergeBase/IsAncestor call.
func (r *Repo) getMergeTraversalState() *mergeBaseTraversalState {
	return newMergeBaseTraversalState()
}

// FindMergeBase finds a common ancestor of two commits. It uses cached
// generation numbers for pruning and fast ancestor checks for linear
// histories. Its caches are scoped to this one call (see
// getMergeTraversalState), so results are not reused across calls.
func (r *Repo) FindMergeBase(a, b object.Hash) (object.Hash, error) {
	if a == "" || b == "" {
		return "", nil
	}
	if a == b {
		return a, nil
	}

	state := r.getMergeTraversalState()
	return r.findMergeBase(state, a, b)
}

func (r *Repo) findMergeBase(state *mergeBaseTraversalState, a, b object.Hash) (object.Hash, error) {
	if cached, ok := state.loadMergeBase(a, b); ok {
		if cached.found {
			return cached.base, nil
		}
		return "", nil
	}

	genA, err := state.generation(r, a)
	if err != nil {
		return "", err
	}
	genB, err := state.generation(r, b)
	if err != nil {
		return "", err
	}

	// Fast path: one side already contains the other.
	if genA <= genB {
		isAncestor, err := r.isAncestorWithGeneration(state, a, b, genA, genB)
		if err != nil {
			return "", err
		}
		if isAncestor {
			state.storeMergeBase(a, b, a, true)
			return a, nil
		}
		isAncestor, err = r.isAncestorWithGeneration(state, b, a, genB, genA)
		if err != nil {
			return "", err
		}
		if isAncestor {
			state.storeMergeBase(a, b, b, true)
			return b, nil
		}
	} else {
		isAncestor, err := r.isAncestorWithGeneration(state, b, a, genB, genA)
		if err != nil {
			return "", err
		}
		if isAncestor {
			state.storeMergeBase(a, b, b, true)
			return b, nil
		}
		isAncestor, err = r.isAncestorWithGeneration(state, a, b, genA, genB)
		if err != nil {
			return "", err
		}
		if isAncestor {
			state.storeMergeBase(a, b, a, true)
			return a, nil
		}
	}

	base, found, err := r.findMergeBaseWithPruning(state, a, b, genA, genB)
	if err != nil {
		return "", err
	}
	state.storeMergeBase(a, b, base, found)
	if !found {
		return "", nil
	}
	return base, nil
}

// IsAncestor reports whether ancestor is reachable from descendant by
// following parent links (or they are equal).
func (r *Repo) IsAncestor(ancestor, descendant object.Hash) (bool, error) {
	if ancestor == "" || descendant == "" {
		return false, nil
	}
	if ancestor == descendant {
		return true, nil
	}
	state := r.getMergeTraversalState()
	genAncestor, err := state.generation(r, ancestor)
	if err != nil {
		return false, err
	}
	genDescendant, err := state.generation(r, descendant)
	if err != nil {
		return false, err
	}
	return r.isAncestorWithGeneration(state, ancestor, descendant, genAncestor, genDescendant)
}

func (r *Repo) isAncestorWithGeneration(state *mergeBaseTraversalState, ancestor, descendant object.Hash, ancestorGeneration, descendantGeneration uint64) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	if ancestorGeneration > descendantGeneration {
		return false, nil
	}

	maxSteps, maxDepth := mergeBaseTraversalLimits()
	visited := map[object.Hash]struct{}{descendant: {}}
	queue := []mergeBaseTraversalQueueItem{{hash: descendant, depth: 0}}
	steps := 0

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		steps++
		if steps > maxSteps {
			return false, mergeBaseStepsLimitError(maxSteps)
		}
		if item.depth > maxDepth {
			return false, mergeBaseDepthLimitError(maxDepth)
		}

		cur := item.hash
		if cur == ancestor {
			return true, nil
		}

		curGeneration, err := state.generation(r, cur)
		if err != nil {
			return false, err
		}
		if curGeneration <= ancestorGeneration {
			continue
		}

		commit, err := state.readCommit(r, cur)
		if err != nil {
			return false, err
		}
		for _, p := range commit.Parents {
			if p == "" {
				continue
			}
			if _, seen := visited[p]; seen {
				continue
			}
			parentGeneration, err := state.generation(r, p)
			if err != nil {
				return false, err
			}
			if parentGeneration < ancestorGeneration {
				continue
			}
			childDepth := item.depth + 1
			if childDepth > maxDepth {
				return false, mergeBaseDepthLimitError(maxDepth)
			}
			visited[p] = struct{}{}
			queue = append(queue, mergeBaseTraversalQueueItem{hash: p, depth: childDepth})
		}
	}

	return false, nil
}

func (r *Repo) findMergeBaseWithPruning(state *mergeBaseTraversalState, a, b object.Hash, genA, genB uint64) (object.Hash, bool, error) {
	maxSteps, maxDepth := mergeBaseTraversalLimits()

	visitedA := map[object.Hash]struct{}{a: {}}
	visitedB := map[object.Hash]struct{}{b: {}}
	depthA := map[object.Hash]int{a: 0}
	depthB := map[object.Hash]int{b: 0}

	queueA := mergeBaseMaxHeap{{hash: a, generation: genA}}
	queueB := mergeBaseMaxHeap{{hash: b, generation: genB}}
	heap.Init(&queueA)
	heap.Init(&queueB)

	best := object.Hash("")
	var bestGeneration uint64
	steps := 0

	for queueA.Len() > 0 || queueB.Len() > 0 {
		if best != "" {
			topA, okA := queueA.Peek()
			topB, okB := queueB.Peek()
			if (!okA || topA.generation < bestGeneration) && (!okB || topB.generation < bestGeneration) {
				break
			}
		}

		traverseA := false
		switch {
		case queueA.Len() == 0:
			traverseA = false
		case queueB.Len() == 0:
			traverseA = true
		default:
			topA := queueA[0]
			topB := queueB[0]
			if topA.generation > topB.generation {
				traverseA = true
			} else if topA.generation < topB.generation {
				traverseA = false
			} else {
				traverseA = topA.hash <= topB.hash
			}
		}

		var item mergeBaseQueueItem
		if traverseA {
			item = heap.Pop(&queueA).(mergeBaseQueueItem)
		} else {
			item = heap.Pop(&queueB).(mergeBaseQueueItem)
		}

		steps++
		if steps > maxSteps {
			return "", false, mergeBaseStepsLimitError(maxSteps)
		}
		if best != "" && item.generation < bestGeneration {
			continue
		}

		itemDepth := 0
		if traverseA {
			itemDepth = depthA[item.hash]
		} else {
			itemDepth = depthB[item.hash]
		}
		if itemDepth > maxDepth {
			return "", false, mergeBaseDepthLimitError(maxDepth)
		}

		if traverseA {
			if _, seen := visitedB[item.hash]; seen {
				best, bestGeneration = chooseBetterMergeBase(best, bestGeneration, item.hash, item.generation)
			}
		} else {
			if _, seen := visitedA[item.hash]; seen {
				best, bestGeneration = chooseBetterMergeBase(best, bestGeneration, item.hash, item.generation)
			}
		}

		commit, err := state.readCommit(r, item.hash)
		if err != nil {
			return "", false, err
		}

		for _, p := range commit.Parents {
			if p == "" {
				continue
			}

			parentGeneration, err := state.generation(r, p)
			if err != nil {
				return "", false, err
			}
			if best != "" && parentGeneration < bestGeneration {
				continue
			}

			childDepth := itemDepth + 1
			if childDepth > maxDepth {
				return "", false, mergeBaseDepthLimitError(maxDepth)
			}

			if traverseA {
				if _, seen := visitedA[p]; seen {
					continue
				}
				visitedA[p] = struct{}{}
				depthA[p] = childDepth
				heap.Push(&queueA, mergeBaseQueueItem{hash: p, generation: parentGeneration})
				if _, seen := visitedB[p]; seen {
					best, bestGeneration = chooseBetterMergeBase(best, bestGeneration, p, parentGeneration)
				}
			} else {
				if _, seen := visitedB[p]; seen {
					continue
				}
				visitedB[p] = struct{}{}
				depthB[p] = childDepth
				heap.Push(&queueB, mergeBaseQueueItem{hash: p, generation: parentGeneration})
				if _, seen := visitedA[p]; seen {
					best, bestGeneration = chooseBetterMergeBase(best, bestGeneration, p, parentGeneration)
				}
			}
		}
	}

	if best == "" {
		return "", false, nil
	}
	return best, true, nil
}

func chooseBetterMergeBase(best object.Hash, bestGeneration uint64, candidate object.Hash, candidateGeneration uint64) (object.Hash, uint64) {
	if best == "" {
		return candidate, candidateGeneration
	}
	if candidateGeneration > bestGeneration {
		return candidate, candidateGeneration
	}
	if candidateGeneration < bestGeneration {
		return best, bestGeneration
	}
	if candidate < best {
		return candidate, candidateGeneration
	}
	return best, bestGeneration
}

// resolveMergeTarget resolves ref to a commit hash: the literal pseudo-ref
// "FETCH_HEAD" (via its for-merge entry), a local branch name, or a raw
// commit hash.
func (r *Repo) resolveMergeTarget(ref string) (object.Hash, error) {
	if ref == "FETCH_HEAD" {
		return r.FetchHeadMergeTarget()
	}
	if h, err := r.ResolveRef(ToLocalRef(ref)); err == nil {
		return h, nil
	}
	return object.Hash(ref), nil
}

// Merge merges giver (a branch name, raw commit hash, or "FETCH_HEAD") into
// the current HEAD (the receiver).
//
//  1. If giver is an ancestor of receiver (or equal): no-op.
//  2. If receiver is an ancestor of giver: fast-forward the current branch.
//  3. Otherwise: compute base = LCA(receiver, giver) and classify every path
//     in union(base, receiver, giver) per the merge table. Clean paths are
//     staged and left uncommitted (MERGE_HEAD set, state IN_PROGRESS_CLEAN);
//     conflicted paths get conflict-marker working-copy content and stages
//     1/2/3 in the index (state IN_PROGRESS_CONFLICTED).
//
// Before a fast-forward or three-way merge begins,
// ChangedFilesCommitWouldOverwrite(giver) must be empty or the merge aborts
// with no state change.
func (r *Repo) Merge(ref string) (*MergeReport, error) {
	if err := r.refuseIfBare("merge"); err != nil {
		return nil, err
	}

	giverHash, err := r.resolveMergeTarget(ref)
	if err != nil {
		return nil, fmt.Errorf("merge: resolve %q: %w", ref, err)
	}
	if _, err := r.Store.ReadCommit(giverHash); err != nil {
		return nil, fmt.Errorf("merge: cannot read commit %s: %w", giverHash, err)
	}

	overwritten, err := r.ChangedFilesCommitWouldOverwrite(giverHash)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if len(overwritten) > 0 {
		return nil, fmt.Errorf("merge: %w: %v", ErrWouldOverwrite, overwritten)
	}

	receiverHash, err := r.ResolveRef("HEAD")
	if err != nil {
		// HEAD has no commits yet (a fresh clone or a newly-init'd repo):
		// there is nothing to merge against, so the giver trivially
		// fast-forwards onto the unborn branch.
		if err := r.fastForwardTo(giverHash); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		return &MergeReport{FastForward: true, MergeCommit: giverHash}, nil
	}

	giverIsAncestor, err := r.IsAncestor(giverHash, receiverHash)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if giverIsAncestor {
		return &MergeReport{AlreadyUpToDate: true}, nil
	}

	receiverIsAncestor, err := r.IsAncestor(receiverHash, giverHash)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if receiverIsAncestor {
		if err := r.fastForwardTo(giverHash); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		return &MergeReport{FastForward: true, MergeCommit: giverHash}, nil
	}

	return r.mergeThreeWay(ref, receiverHash, giverHash)
}

// fastForwardTo moves HEAD's terminal ref to giverHash and mirrors giverHash's
// tree into both the index and the working copy. No MERGE_HEAD is written.
func (r *Repo) fastForwardTo(giverHash object.Hash) error {
	commit, err := r.Store.ReadCommit(giverHash)
	if err != nil {
		return fmt.Errorf("fast-forward: read commit %s: %w", giverHash, err)
	}

	targetFiles, err := r.FlattenTree(commit.TreeHash)
	if err != nil {
		return fmt.Errorf("fast-forward: flatten tree: %w", err)
	}

	currentFiles := r.trackedFiles()
	for path := range currentFiles {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("fast-forward: remove %q: %w", path, err)
		}
		r.removeEmptyParents(filepath.Dir(absPath))
	}

	for _, f := range targetFiles {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return fmt.Errorf("fast-forward: mkdir: %w", err)
		}
		blob, err := r.Store.ReadBlob(f.BlobHash)
		if err != nil {
			return fmt.Errorf("fast-forward: read blob for %q: %w", f.Path, err)
		}
		if err := os.WriteFile(absPath, blob.Data, filePermFromMode(f.Mode)); err != nil {
			return fmt.Errorf("fast-forward: write %q: %w", f.Path, err)
		}
	}

	toc := make(map[string]TreeFileEntry, len(targetFiles))
	for _, f := range targetFiles {
		toc[f.Path] = f
	}
	if err := r.WriteStaging(tocToIndex(toc)); err != nil {
		return fmt.Errorf("fast-forward: %w", err)
	}

	head, err := r.Head()
	if err != nil {
		return fmt.Errorf("fast-forward: read HEAD: %w", err)
	}
	if isRefPath(head) {
		if err := r.UpdateRef(head, giverHash); err != nil {
			return fmt.Errorf("fast-forward: update ref %q: %w", head, err)
		}
	} else {
		if err := r.Write("HEAD", string(giverHash)); err != nil {
			return fmt.Errorf("fast-forward: update HEAD: %w", err)
		}
	}
	return nil
}

func isRefPath(s string) bool {
	return len(s) > 5 && s[:5] == "refs/"
}

// mergeThreeWay performs the non-fast-forward merge: classifies every path
// across base/receiver/giver per the merge table, writes working-copy
// content, records MERGE_HEAD/MERGE_MSG, and stages the result (conflict
// stages for conflicted paths, stage 0 for everything else).
func (r *Repo) mergeThreeWay(ref string, receiverHash, giverHash object.Hash) (*MergeReport, error) {
	baseHash, err := r.FindMergeBase(receiverHash, giverHash)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	receiverCommit, err := r.Store.ReadCommit(receiverHash)
	if err != nil {
		return nil, fmt.Errorf("merge: read receiver commit: %w", err)
	}
	giverCommit, err := r.Store.ReadCommit(giverHash)
	if err != nil {
		return nil, fmt.Errorf("merge: read giver commit: %w", err)
	}

	receiverFiles, err := r.FlattenTree(receiverCommit.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("merge: flatten receiver tree: %w", err)
	}
	giverFiles, err := r.FlattenTree(giverCommit.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("merge: flatten giver tree: %w", err)
	}
	var baseFiles []TreeFileEntry
	if baseHash != "" {
		baseCommit, err := r.Store.ReadCommit(baseHash)
		if err != nil {
			return nil, fmt.Errorf("merge: read base commit: %w", err)
		}
		baseFiles, err = r.FlattenTree(baseCommit.TreeHash)
		if err != nil {
			return nil, fmt.Errorf("merge: flatten base tree: %w", err)
		}
	}

	baseMap := indexByPath(baseFiles)
	receiverMap := indexByPath(receiverFiles)
	giverMap := indexByPath(giverFiles)
	allPaths := collectAllPaths(baseMap, receiverMap, giverMap)

	report := &MergeReport{}

	type writtenFile struct {
		path    string
		content []byte
		mode    string
	}
	var toWrite []writtenFile
	var toDelete []string
	var toStageClean []string
	type conflictEntry struct {
		path   string
		base   object.Hash
		ours   object.Hash
		theirs object.Hash
		mode   string
	}
	var conflicts []conflictEntry

	for _, path := range allPaths {
		base, inBase := baseMap[path]
		ours, inOurs := receiverMap[path]
		theirs, inTheirs := giverMap[path]

		switch {
		case !inBase && !inOurs && inTheirs:
			// absent, absent, present -> take giver
			content, err := r.readBlobData(theirs.BlobHash)
			if err != nil {
				return nil, fmt.Errorf("merge read %q: %w", path, err)
			}
			report.Files = append(report.Files, FileMergeReport{Path: path, Status: "added"})
			toWrite = append(toWrite, writtenFile{path, content, normalizeFileMode(theirs.Mode)})
			toStageClean = append(toStageClean, path)

		case !inBase && inOurs && !inTheirs:
			// absent, present, absent -> keep receiver
			report.Files = append(report.Files, FileMergeReport{Path: path, Status: "clean"})

		case !inBase && inOurs && inTheirs:
			if ours.BlobHash == theirs.BlobHash {
				// absent, present, present(equal) -> unchanged
				report.Files = append(report.Files, FileMergeReport{Path: path, Status: "clean"})
				continue
			}
			// absent, present != giver, present -> conflict
			oursData, err := r.readBlobData(ours.BlobHash)
			if err != nil {
				return nil, fmt.Errorf("merge read ours %q: %w", path, err)
			}
			theirsData, err := r.readBlobData(theirs.BlobHash)
			if err != nil {
				return nil, fmt.Errorf("merge read theirs %q: %w", path, err)
			}
			content := renderConflictMarkers(oursData, theirsData, ref)
			report.Files = append(report.Files, FileMergeReport{Path: path, Status: "conflict"})
			report.HasConflicts = true
			report.TotalConflicts++
			mode := normalizeFileMode(ours.Mode)
			toWrite = append(toWrite, writtenFile{path, content, mode})
			conflicts = append(conflicts, conflictEntry{path, "", ours.BlobHash, theirs.BlobHash, mode})

		case inBase && inOurs && inTheirs:
			switch {
			case ours.BlobHash == theirs.BlobHash:
				// both changed equal, or unchanged both sides -> keep either
				report.Files = append(report.Files, FileMergeReport{Path: path, Status: "clean"})
			case ours.BlobHash == base.BlobHash:
				// only giver changed -> take giver
				content, err := r.readBlobData(theirs.BlobHash)
				if err != nil {
					return nil, fmt.Errorf("merge read %q: %w", path, err)
				}
				report.Files = append(report.Files, FileMergeReport{Path: path, Status: "clean"})
				toWrite = append(toWrite, writtenFile{path, content, normalizeFileMode(theirs.Mode)})
				toStageClean = append(toStageClean, path)
			case theirs.BlobHash == base.BlobHash:
				// only receiver changed -> keep receiver
				report.Files = append(report.Files, FileMergeReport{Path: path, Status: "clean"})
			default:
				// both changed, differ -> conflict
				oursData, err := r.readBlobData(ours.BlobHash)
				if err != nil {
					return nil, fmt.Errorf("merge read ours %q: %w", path, err)
				}
				theirsData, err := r.readBlobData(theirs.BlobHash)
				if err != nil {
					return nil, fmt.Errorf("merge read theirs %q: %w", path, err)
				}
				content := renderConflictMarkers(oursData, theirsData, ref)
				report.Files = append(report.Files, FileMergeReport{Path: path, Status: "conflict"})
				report.HasConflicts = true
				report.TotalConflicts++
				mode := normalizeFileMode(ours.Mode)
				toWrite = append(toWrite, writtenFile{path, content, mode})
				conflicts = append(conflicts, conflictEntry{path, base.BlobHash, ours.BlobHash, theirs.BlobHash, mode})
			}

		case inBase && inOurs && !inTheirs:
			if ours.BlobHash == base.BlobHash {
				// receiver unchanged, giver deleted -> delete
				report.Files = append(report.Files, FileMergeReport{Path: path, Status: "deleted"})
				toDelete = append(toDelete, path)
				continue
			}
			// receiver changed, giver deleted -> conflict
			oursData, err := r.readBlobData(ours.BlobHash)
			if err != nil {
				return nil, fmt.Errorf("merge read ours %q: %w", path, err)
			}
			content := renderConflictMarkers(oursData, nil, ref)
			report.Files = append(report.Files, FileMergeReport{Path: path, Status: "conflict"})
			report.HasConflicts = true
			report.TotalConflicts++
			mode := normalizeFileMode(ours.Mode)
			toWrite = append(toWrite, writtenFile{path, content, mode})
			conflicts = append(conflicts, conflictEntry{path, base.BlobHash, ours.BlobHash, "", mode})

		case inBase && !inOurs && inTheirs:
			if theirs.BlobHash == base.BlobHash {
				// giver unchanged, receiver deleted -> delete
				report.Files = append(report.Files, FileMergeReport{Path: path, Status: "deleted"})
				toDelete = append(toDelete, path)
				continue
			}
			// giver changed, receiver deleted -> conflict
			theirsData, err := r.readBlobData(theirs.BlobHash)
			if err != nil {
				return nil, fmt.Errorf("merge read theirs %q: %w", path, err)
			}
			content := renderConflictMarkers(nil, theirsData, ref)
			report.Files = append(report.Files, FileMergeReport{Path: path, Status: "conflict"})
			report.HasConflicts = true
			report.TotalConflicts++
			mode := normalizeFileMode(theirs.Mode)
			toWrite = append(toWrite, writtenFile{path, content, mode})
			conflicts = append(conflicts, conflictEntry{path, base.BlobHash, "", theirs.BlobHash, mode})

		case inBase && !inOurs && !inTheirs:
			// both deleted -> delete (already absent from the working copy)
			report.Files = append(report.Files, FileMergeReport{Path: path, Status: "deleted"})
		}
	}

	for _, wf := range toWrite {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(wf.path))
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("merge: mkdir for %q: %w", wf.path, err)
		}
		if err := os.WriteFile(absPath, wf.content, filePermFromMode(wf.mode)); err != nil {
			return nil, fmt.Errorf("merge: write %q: %w", wf.path, err)
		}
	}
	for _, path := range toDelete {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("merge: remove %q: %w", path, err)
		}
		r.removeEmptyParents(filepath.Dir(absPath))
	}

	stg, err := r.ReadStaging()
	if err != nil {
		return nil, fmt.Errorf("merge: read staging: %w", err)
	}
	for _, path := range toDelete {
		stg.clearPath(path)
	}
	if len(toStageClean) > 0 {
		if err := r.stageCleanPaths(stg, toStageClean); err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
	}
	for _, c := range conflicts {
		stg.writeConflict(c.path, c.mode, c.base, c.ours, c.theirs)
	}
	if err := r.WriteStaging(stg); err != nil {
		return nil, fmt.Errorf("merge: write staging: %w", err)
	}

	if err := r.Write("MERGE_HEAD", string(giverHash)); err != nil {
		return nil, fmt.Errorf("merge: write MERGE_HEAD: %w", err)
	}
	if err := os.WriteFile(r.mergeMsgPath(), []byte(fmt.Sprintf("Merge commit %s\n", ref)), 0o644); err != nil {
		return nil, fmt.Errorf("merge: write MERGE_MSG: %w", err)
	}

	return report, nil
}

// stageCleanPaths stages the given working-copy paths at stage 0, writing a
// blob for each and clearing any conflict stages previously present.
func (r *Repo) stageCleanPaths(stg *Staging, paths []string) error {
	for _, path := range paths {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		content, err := os.ReadFile(absPath)
		if err != nil {
			return fmt.Errorf("stage %q: %w", path, err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return fmt.Errorf("stat %q: %w", path, err)
		}
		blobHash, err := r.Store.WriteBlob(&object.Blob{Data: content})
		if err != nil {
			return fmt.Errorf("write blob %q: %w", path, err)
		}
		stg.writeAddEntry(path, blobHash, modeFromFileInfo(info), info.ModTime().UnixNano(), info.Size())
	}
	return nil
}

// renderConflictMarkers renders a whole-file conflict: receiver content,
// then giver content, separated by git-style conflict markers. giverLabel
// names the merged-in ref for the closing marker.
func renderConflictMarkers(receiver, giver []byte, giverLabel string) []byte {
	var buf bytes.Buffer
	buf.WriteString("<<<<<<< HEAD\n")
	buf.Write(receiver)
	if len(receiver) > 0 && receiver[len(receiver)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString("=======\n")
	buf.Write(giver)
	if len(giver) > 0 && giver[len(giver)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString(">>>>>>> ")
	buf.WriteString(giverLabel)
	buf.WriteByte('\n')
	return buf.Bytes()
}

// readBlobData reads a blob from the store and returns its raw data.
func (r *Repo) readBlobData(h object.Hash) ([]byte, error) {
	blob, err := r.Store.ReadBlob(h)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", h, err)
	}
	return blob.Data, nil
}

// indexByPath creates a map from file path to TreeFileEntry.
func indexByPath(entries []TreeFileEntry) map[string]TreeFileEntry {
	m := make(map[string]TreeFileEntry, len(entries))
	for _, e := range entries {
		m[e.Path] = e
	}
	return m
}

// collectAllPaths returns a sorted, deduplicated list of all file paths
// across three file maps.
func collectAllPaths(base, ours, theirs map[string]TreeFileEntry) []string {
	seen := make(map[string]bool)
	for p := range base {
		seen[p] = true
	}
	for p := range ours {
		seen[p] = true
	}
	for p := range theirs {
		seen[p] = true
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
