package diff

import (
	"testing"

	"github.com/odvcencio/gitlet/pkg/object"
)

func TestNameStatusClassifiesEveryCase(t *testing.T) {
	a := map[string]object.Hash{
		"same.txt": "h1",
		"mod.txt":  "h2",
		"del.txt":  "h3",
	}
	b := map[string]object.Hash{
		"same.txt": "h1",
		"mod.txt":  "h2-new",
		"add.txt":  "h4",
	}

	got := NameStatus(a, b)
	want := map[string]Status{
		"same.txt": Same,
		"mod.txt":  Modified,
		"del.txt":  Deleted,
		"add.txt":  Added,
	}
	for path, st := range want {
		if got[path] != st {
			t.Errorf("%s: got %v, want %v", path, got[path], st)
		}
	}
}

func TestDiffExcludesSameAndSortsByPath(t *testing.T) {
	a := map[string]object.Hash{"z.txt": "1", "a.txt": "1"}
	b := map[string]object.Hash{"z.txt": "2", "a.txt": "1"}

	changes := Diff(a, b)
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if changes[0].Path != "z.txt" || changes[0].Status != Modified {
		t.Fatalf("unexpected change: %+v", changes[0])
	}
}

func TestChangedPathsSorted(t *testing.T) {
	a := map[string]object.Hash{}
	b := map[string]object.Hash{"b.txt": "1", "a.txt": "1"}

	paths := ChangedPaths(a, b)
	if len(paths) != 2 || paths[0] != "a.txt" || paths[1] != "b.txt" {
		t.Fatalf("unexpected paths: %v", paths)
	}
}
