package repo

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAdd_StagesFileAtStageZero(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	goSrc := []byte("package main\n\nfunc hello() {\n\tprintln(\"hello\")\n}\n")
	if err := os.WriteFile(filepath.Join(dir, "main.go"), goSrc, 0o644); err != nil {
		t.Fatalf("write main.go: %v", err)
	}

	if err := r.Add([]string{"main.go"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	stg, err := r.ReadStaging()
	if err != nil {
		t.Fatalf("ReadStaging: %v", err)
	}

	entry, ok := stg.Entry("main.go")
	if !ok {
		t.Fatalf("staging missing entry for main.go; paths: %v", stg.Paths())
	}
	if entry.Hash == "" {
		t.Error("Hash is empty, want non-empty")
	}

	blob, err := r.Store.ReadBlob(entry.Hash)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if string(blob.Data) != string(goSrc) {
		t.Errorf("blob data mismatch:\ngot:  %q\nwant: %q", blob.Data, goSrc)
	}
}

func TestAdd_MultipleFiles(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	files := map[string][]byte{
		"a.go":  []byte("package a\n\nfunc A() {}\n"),
		"b.go":  []byte("package b\n\nfunc B() {}\n"),
		"c.txt": []byte("hello world"),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	paths := []string{"a.go", "b.go", "c.txt"}
	if err := r.Add(paths); err != nil {
		t.Fatalf("Add: %v", err)
	}

	stg, err := r.ReadStaging()
	if err != nil {
		t.Fatalf("ReadStaging: %v", err)
	}
	for _, name := range paths {
		if _, ok := stg.Entry(name); !ok {
			t.Errorf("staging missing entry for %s", name)
		}
	}
}

func TestAdd_ReaddModifiedFile(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	original := []byte("package main\n\nfunc hello() {}\n")
	fpath := filepath.Join(dir, "main.go")
	if err := os.WriteFile(fpath, original, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := r.Add([]string{"main.go"}); err != nil {
		t.Fatalf("Add (original): %v", err)
	}

	stg1, err := r.ReadStaging()
	if err != nil {
		t.Fatalf("ReadStaging (1): %v", err)
	}
	e1, _ := stg1.Entry("main.go")
	hash1 := e1.Hash

	modified := []byte("package main\n\nfunc hello() { println(\"modified\") }\n")
	if err := os.WriteFile(fpath, modified, 0o644); err != nil {
		t.Fatalf("write modified: %v", err)
	}
	if err := r.Add([]string{"main.go"}); err != nil {
		t.Fatalf("Add (modified): %v", err)
	}

	stg2, err := r.ReadStaging()
	if err != nil {
		t.Fatalf("ReadStaging (2): %v", err)
	}
	e2, _ := stg2.Entry("main.go")

	if hash1 == e2.Hash {
		t.Errorf("Hash did not change after modifying file: both = %s", hash1)
	}
}

func TestStaging_ReadWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	stg := newStaging()
	stg.set(&IndexEntry{Path: "foo.go", Stage: StageNormal, Hash: "aaaa", Mode: "100644", ModTime: 1234567890, Size: 42})
	stg.set(&IndexEntry{Path: "bar.txt", Stage: StageNormal, Hash: "cccc", Mode: "100644", ModTime: 9876543210, Size: 100})

	if err := r.WriteStaging(stg); err != nil {
		t.Fatalf("WriteStaging: %v", err)
	}

	got, err := r.ReadStaging()
	if err != nil {
		t.Fatalf("ReadStaging: %v", err)
	}

	if len(got.Paths()) != 2 {
		t.Fatalf("entry count = %d, want 2", len(got.Paths()))
	}
	for _, path := range []string{"foo.go", "bar.txt"} {
		want, _ := stg.Entry(path)
		g, ok := got.Entry(path)
		if !ok {
			t.Errorf("missing entry for %q after round-trip", path)
			continue
		}
		if g.Hash != want.Hash {
			t.Errorf("%s Hash: got %q, want %q", path, g.Hash, want.Hash)
		}
		if g.ModTime != want.ModTime {
			t.Errorf("%s ModTime: got %d, want %d", path, g.ModTime, want.ModTime)
		}
		if g.Size != want.Size {
			t.Errorf("%s Size: got %d, want %d", path, g.Size, want.Size)
		}
	}
}

func TestStaging_ReadEmpty(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	stg, err := r.ReadStaging()
	if err != nil {
		t.Fatalf("ReadStaging on fresh repo: %v", err)
	}
	if stg == nil {
		t.Fatal("ReadStaging returned nil")
	}
	if len(stg.Paths()) != 0 {
		t.Errorf("expected empty index, got %d paths", len(stg.Paths()))
	}
}

func TestAdd_AbsolutePathConverted(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	data := []byte("package main\n")
	absPath := filepath.Join(dir, "abs.go")
	if err := os.WriteFile(absPath, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := r.Add([]string{absPath}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	stg, err := r.ReadStaging()
	if err != nil {
		t.Fatalf("ReadStaging: %v", err)
	}
	if _, ok := stg.Entry("abs.go"); !ok {
		t.Errorf("expected entry keyed as 'abs.go', got paths: %v", stg.Paths())
	}
}

func TestAdd_SubdirectoryPath(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	sub := filepath.Join(dir, "pkg", "util")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	data := []byte("package util\n\nfunc Util() {}\n")
	if err := os.WriteFile(filepath.Join(sub, "util.go"), data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := r.Add([]string{"pkg/util/util.go"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	stg, err := r.ReadStaging()
	if err != nil {
		t.Fatalf("ReadStaging: %v", err)
	}
	if _, ok := stg.Entry("pkg/util/util.go"); !ok {
		t.Errorf("expected entry keyed as 'pkg/util/util.go', got paths: %v", stg.Paths())
	}
}

func TestAdd_DotStagesRecursivelyAndHonorsIgnore(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, ".gitletignore"), []byte("ignored.txt\nbuild/\n"), 0o644); err != nil {
		t.Fatalf("write .gitletignore: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "pkg"), 0o755); err != nil {
		t.Fatalf("mkdir pkg: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "build"), 0o755); err != nil {
		t.Fatalf("mkdir build: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("write main.go: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pkg", "util.go"), []byte("package pkg\n"), 0o644); err != nil {
		t.Fatalf("write pkg/util.go: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("nope\n"), 0o644); err != nil {
		t.Fatalf("write ignored.txt: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "build", "gen.go"), []byte("package build\n"), 0o644); err != nil {
		t.Fatalf("write build/gen.go: %v", err)
	}

	if err := r.Add([]string{"."}); err != nil {
		t.Fatalf("Add .: %v", err)
	}

	stg, err := r.ReadStaging()
	if err != nil {
		t.Fatalf("ReadStaging: %v", err)
	}
	if _, ok := stg.Entry("main.go"); !ok {
		t.Fatalf("expected main.go to be staged; paths: %v", stg.Paths())
	}
	if _, ok := stg.Entry("pkg/util.go"); !ok {
		t.Fatalf("expected pkg/util.go to be staged; paths: %v", stg.Paths())
	}
	if _, ok := stg.Entry("ignored.txt"); ok {
		t.Fatalf("ignored.txt should not be staged")
	}
	if _, ok := stg.Entry("build/gen.go"); ok {
		t.Fatalf("build/gen.go should not be staged")
	}
}

func TestAdd_GlobPathspecStagesMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644); err != nil {
		t.Fatalf("write a.go: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.go"), []byte("package b\n"), 0o644); err != nil {
		t.Fatalf("write b.go: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "c.txt"), []byte("plain\n"), 0o644); err != nil {
		t.Fatalf("write c.txt: %v", err)
	}

	if err := r.Add([]string{"*.go"}); err != nil {
		t.Fatalf("Add *.go: %v", err)
	}

	stg, err := r.ReadStaging()
	if err != nil {
		t.Fatalf("ReadStaging: %v", err)
	}
	if len(stg.Paths()) != 2 {
		t.Fatalf("expected 2 staged files, got %d: %v", len(stg.Paths()), stg.Paths())
	}
	if _, ok := stg.Entry("a.go"); !ok {
		t.Fatalf("expected a.go staged; paths: %v", stg.Paths())
	}
	if _, ok := stg.Entry("b.go"); !ok {
		t.Fatalf("expected b.go staged; paths: %v", stg.Paths())
	}
	if _, ok := stg.Entry("c.txt"); ok {
		t.Fatalf("did not expect c.txt staged")
	}
}

func TestRemove_RemovesFromIndexAndWorktree(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	path := filepath.Join(dir, "main.go")
	if err := os.WriteFile(path, []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("write main.go: %v", err)
	}
	if err := r.Add([]string{"main.go"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := r.Remove([]string{"main.go"}, false, false); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected main.go removed from worktree, stat err=%v", err)
	}

	stg, err := r.ReadStaging()
	if err != nil {
		t.Fatalf("ReadStaging: %v", err)
	}
	if _, ok := stg.Entry("main.go"); ok {
		t.Fatalf("main.go should be removed from staging")
	}
}

func TestRemove_CachedKeepsWorktreeFile(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	path := filepath.Join(dir, "main.go")
	if err := os.WriteFile(path, []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("write main.go: %v", err)
	}
	if err := r.Add([]string{"main.go"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := r.Remove([]string{"main.go"}, true, false); err != nil {
		t.Fatalf("Remove --cached: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected main.go to remain on disk, stat err=%v", err)
	}

	stg, err := r.ReadStaging()
	if err != nil {
		t.Fatalf("ReadStaging: %v", err)
	}
	if _, ok := stg.Entry("main.go"); ok {
		t.Fatalf("main.go should be removed from staging")
	}
}

func TestRemove_DirectoryPathRemovesTrackedPrefix(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := os.MkdirAll(filepath.Join(dir, "pkg"), 0o755); err != nil {
		t.Fatalf("mkdir pkg: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pkg", "a.go"), []byte("package pkg\n"), 0o644); err != nil {
		t.Fatalf("write pkg/a.go: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pkg", "b.go"), []byte("package pkg\n"), 0o644); err != nil {
		t.Fatalf("write pkg/b.go: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("write main.go: %v", err)
	}
	if err := r.Add([]string{"main.go", "pkg/a.go", "pkg/b.go"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := r.Remove([]string{"pkg"}, true, true); err != nil {
		t.Fatalf("Remove pkg --cached: %v", err)
	}

	stg, err := r.ReadStaging()
	if err != nil {
		t.Fatalf("ReadStaging: %v", err)
	}
	if _, ok := stg.Entry("main.go"); !ok {
		t.Fatalf("expected main.go to remain staged")
	}
	if _, ok := stg.Entry("pkg/a.go"); ok {
		t.Fatalf("expected pkg/a.go to be removed from staging")
	}
	if _, ok := stg.Entry("pkg/b.go"); ok {
		t.Fatalf("expected pkg/b.go to be removed from staging")
	}
}
