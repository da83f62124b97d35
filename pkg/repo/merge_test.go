package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// setupMergeRepo creates a test repo with an initial commit on "main",
// creates a "feature" branch from that commit, and returns the repo and
// temp directory. The initial commit contains main.go with function A.
func setupMergeRepo(t *testing.T) (*Repo, string) {
	t.Helper()

	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	base := "package main\n\nfunc A() { println(\"a\") }\n"
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte(base), 0o644); err != nil {
		t.Fatalf("write main.go: %v", err)
	}
	if err := r.Add([]string{"main.go"}); err != nil {
		t.Fatalf("Add main.go: %v", err)
	}

	if _, err := r.Commit("initial commit", "test-author"); err != nil {
		t.Fatalf("initial Commit: %v", err)
	}

	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}

	if err := r.CreateBranch("feature", headHash); err != nil {
		t.Fatalf("CreateBranch(feature): %v", err)
	}

	return r, dir
}

func writeAndCommit(t *testing.T, r *Repo, dir, path, content, message string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, path), []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
	if err := r.Add([]string{path}); err != nil {
		t.Fatalf("Add %q: %v", path, err)
	}
	if _, err := r.Commit(message, "test-author"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestMerge_FastForward(t *testing.T) {
	r, dir := setupMergeRepo(t)

	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout(feature): %v", err)
	}
	writeAndCommit(t, r, dir, "main.go", "package main\n\nfunc A() { println(\"b\") }\n", "feature change")

	if err := r.Checkout("main"); err != nil {
		t.Fatalf("Checkout(main): %v", err)
	}

	report, err := r.Merge("feature")
	if err != nil {
		t.Fatalf("Merge(feature): %v", err)
	}
	if !report.FastForward {
		t.Fatalf("report.FastForward = false, want true")
	}
	if report.AlreadyUpToDate {
		t.Fatalf("report.AlreadyUpToDate = true, want false")
	}

	state, err := r.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != MergeStateClean {
		t.Fatalf("State() = %v, want MergeStateClean", state)
	}

	got, err := os.ReadFile(filepath.Join(dir, "main.go"))
	if err != nil {
		t.Fatalf("read main.go: %v", err)
	}
	if !strings.Contains(string(got), "b") {
		t.Fatalf("main.go = %q, want fast-forwarded content", got)
	}
}

func TestMerge_AlreadyUpToDate(t *testing.T) {
	r, _ := setupMergeRepo(t)

	report, err := r.Merge("feature")
	if err != nil {
		t.Fatalf("Merge(feature): %v", err)
	}
	if !report.AlreadyUpToDate {
		t.Fatalf("report.AlreadyUpToDate = false, want true")
	}
}

func TestMerge_CleanThreeWay_LeavesMergeInProgressClean(t *testing.T) {
	r, dir := setupMergeRepo(t)

	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout(feature): %v", err)
	}
	writeAndCommit(t, r, dir, "feature.txt", "feature content\n", "add feature.txt")

	if err := r.Checkout("main"); err != nil {
		t.Fatalf("Checkout(main): %v", err)
	}
	writeAndCommit(t, r, dir, "main-only.txt", "main content\n", "add main-only.txt")

	report, err := r.Merge("feature")
	if err != nil {
		t.Fatalf("Merge(feature): %v", err)
	}
	if report.FastForward || report.AlreadyUpToDate {
		t.Fatalf("expected a real three-way merge, got %+v", report)
	}
	if report.HasConflicts {
		t.Fatalf("expected a clean merge, got conflicts: %+v", report)
	}

	state, err := r.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != MergeStateInProgressClean {
		t.Fatalf("State() = %v, want MergeStateInProgressClean", state)
	}

	if _, err := os.Stat(filepath.Join(dir, "feature.txt")); err != nil {
		t.Fatalf("expected feature.txt in working copy: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "main-only.txt")); err != nil {
		t.Fatalf("expected main-only.txt in working copy: %v", err)
	}

	if _, err := os.Stat(filepath.Join(r.GotDir, "MERGE_HEAD")); err != nil {
		t.Fatalf("expected MERGE_HEAD: %v", err)
	}

	commitHash, err := r.Commit("merge feature", "test-author")
	if err != nil {
		t.Fatalf("finishing Commit: %v", err)
	}
	commit, err := r.Store.ReadCommit(commitHash)
	if err != nil {
		t.Fatalf("read merge commit: %v", err)
	}
	if len(commit.Parents) != 2 {
		t.Fatalf("merge commit parents = %v, want 2 parents", commit.Parents)
	}

	state, err = r.State()
	if err != nil {
		t.Fatalf("State after commit: %v", err)
	}
	if state != MergeStateClean {
		t.Fatalf("State() after commit = %v, want MergeStateClean", state)
	}
}

func TestMerge_ConflictingEdits_ProducesMarkersAndConflictState(t *testing.T) {
	r, dir := setupMergeRepo(t)

	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout(feature): %v", err)
	}
	writeAndCommit(t, r, dir, "main.go", "package main\n\nfunc A() { println(\"feature\") }\n", "feature edit")

	if err := r.Checkout("main"); err != nil {
		t.Fatalf("Checkout(main): %v", err)
	}
	writeAndCommit(t, r, dir, "main.go", "package main\n\nfunc A() { println(\"main\") }\n", "main edit")

	report, err := r.Merge("feature")
	if err != nil {
		t.Fatalf("Merge(feature): %v", err)
	}
	if !report.HasConflicts {
		t.Fatalf("expected conflicts, report = %+v", report)
	}
	if report.TotalConflicts != 1 {
		t.Fatalf("TotalConflicts = %d, want 1", report.TotalConflicts)
	}

	state, err := r.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != MergeStateInProgressConflicted {
		t.Fatalf("State() = %v, want MergeStateInProgressConflicted", state)
	}

	content, err := os.ReadFile(filepath.Join(dir, "main.go"))
	if err != nil {
		t.Fatalf("read main.go: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "<<<<<<< HEAD") || !strings.Contains(text, "=======") || !strings.Contains(text, ">>>>>>> feature") {
		t.Fatalf("main.go missing conflict markers:\n%s", text)
	}
	if !strings.Contains(text, "main") || !strings.Contains(text, "feature") {
		t.Fatalf("main.go missing both sides' content:\n%s", text)
	}

	stg, err := r.ReadStaging()
	if err != nil {
		t.Fatalf("ReadStaging: %v", err)
	}
	if !stg.FileInConflict("main.go") {
		t.Fatalf("expected main.go to be conflicted in the index")
	}

	_, err = r.Commit("attempt commit while conflicted", "test-author")
	if err == nil {
		t.Fatalf("expected Commit to fail while conflicts are unresolved")
	}
}

func TestMerge_WouldOverwriteUncommittedChanges_Aborts(t *testing.T) {
	r, dir := setupMergeRepo(t)

	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout(feature): %v", err)
	}
	writeAndCommit(t, r, dir, "main.go", "package main\n\nfunc A() { println(\"b\") }\n", "feature change")

	if err := r.Checkout("main"); err != nil {
		t.Fatalf("Checkout(main): %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc A() { println(\"dirty\") }\n"), 0o644); err != nil {
		t.Fatalf("write dirty main.go: %v", err)
	}

	_, err := r.Merge("feature")
	if err == nil {
		t.Fatalf("expected Merge to abort on uncommitted overwrite")
	}

	state, err := r.State()
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != MergeStateClean {
		t.Fatalf("State() after aborted merge = %v, want MergeStateClean (no partial state)", state)
	}
}

func TestMerge_DeletedOnOneSide_UnchangedOnOther_TakesDelete(t *testing.T) {
	r, dir := setupMergeRepo(t)

	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout(feature): %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "main.go")); err != nil {
		t.Fatalf("remove main.go: %v", err)
	}
	if err := r.Remove([]string{"main.go"}, false, false); err != nil {
		t.Fatalf("Remove main.go: %v", err)
	}
	if _, err := r.Commit("delete main.go", "test-author"); err != nil {
		t.Fatalf("Commit delete: %v", err)
	}

	if err := r.Checkout("main"); err != nil {
		t.Fatalf("Checkout(main): %v", err)
	}
	writeAndCommit(t, r, dir, "other.txt", "other\n", "add other.txt")

	report, err := r.Merge("feature")
	if err != nil {
		t.Fatalf("Merge(feature): %v", err)
	}
	if report.HasConflicts {
		t.Fatalf("expected a clean merge, got conflicts: %+v", report)
	}
	if _, err := os.Stat(filepath.Join(dir, "main.go")); !os.IsNotExist(err) {
		t.Fatalf("expected main.go to be deleted by the merge, stat err=%v", err)
	}
}

func TestMerge_NonExistentRef_Errors(t *testing.T) {
	r, _ := setupMergeRepo(t)

	_, err := r.Merge("does-not-exist")
	if err == nil {
		t.Fatalf("expected Merge to error on an unresolvable ref")
	}
}

func TestIsAncestor(t *testing.T) {
	r, dir := setupMergeRepo(t)

	first, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}
	writeAndCommit(t, r, dir, "second.txt", "second\n", "second commit")
	second, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}

	ok, err := r.IsAncestor(first, second)
	if err != nil {
		t.Fatalf("IsAncestor: %v", err)
	}
	if !ok {
		t.Fatalf("IsAncestor(first, second) = false, want true")
	}

	ok, err = r.IsAncestor(second, first)
	if err != nil {
		t.Fatalf("IsAncestor: %v", err)
	}
	if ok {
		t.Fatalf("IsAncestor(second, first) = true, want false")
	}

	ok, err = r.IsAncestor(first, first)
	if err != nil {
		t.Fatalf("IsAncestor: %v", err)
	}
	if !ok {
		t.Fatalf("IsAncestor(first, first) = false, want true (equal counts as ancestor)")
	}
}

func TestFindMergeBase_DivergedBranches(t *testing.T) {
	r, dir := setupMergeRepo(t)

	base, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}

	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout(feature): %v", err)
	}
	writeAndCommit(t, r, dir, "feature.txt", "feature\n", "feature commit")
	featureHead, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}

	if err := r.Checkout("main"); err != nil {
		t.Fatalf("Checkout(main): %v", err)
	}
	writeAndCommit(t, r, dir, "main-only.txt", "main\n", "main commit")
	mainHead, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}

	got, err := r.FindMergeBase(mainHead, featureHead)
	if err != nil {
		t.Fatalf("FindMergeBase: %v", err)
	}
	if got != base {
		t.Fatalf("FindMergeBase = %s, want %s", got, base)
	}
}
