package object

import "testing"

func TestMarshalBlobRoundTrip(t *testing.T) {
	b := &Blob{Data: []byte("hello world\n")}
	got, err := UnmarshalBlob(MarshalBlob(b))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(got.Data) != string(b.Data) {
		t.Fatalf("round-trip mismatch: got %q want %q", got.Data, b.Data)
	}
}

func TestMarshalTreeDeterministicOrder(t *testing.T) {
	tr := &TreeObj{Entries: []TreeEntry{
		{Name: "zeta.txt", BlobHash: "aa"},
		{Name: "alpha.txt", BlobHash: "bb"},
		{Name: "mid", IsDir: true, SubtreeHash: "cc"},
	}}

	first := MarshalTree(tr)
	shuffled := &TreeObj{Entries: []TreeEntry{tr.Entries[2], tr.Entries[0], tr.Entries[1]}}
	second := MarshalTree(shuffled)

	if string(first) != string(second) {
		t.Fatalf("tree serialization is not order-independent:\n%s\nvs\n%s", first, second)
	}
}

func TestUnmarshalTreeRoundTrip(t *testing.T) {
	tr := &TreeObj{Entries: []TreeEntry{
		{Name: "a.txt", Mode: TreeModeFile, BlobHash: "deadbeef"},
		{Name: "sub", IsDir: true, SubtreeHash: "feedface"},
	}}
	data := MarshalTree(tr)
	got, err := UnmarshalTree(data)
	if err != nil {
		t.Fatalf("unmarshal tree: %v", err)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got.Entries))
	}
	if got.Entries[0].Name != "a.txt" || got.Entries[0].BlobHash != "deadbeef" {
		t.Fatalf("unexpected first entry: %+v", got.Entries[0])
	}
	if !got.Entries[1].IsDir || got.Entries[1].SubtreeHash != "feedface" {
		t.Fatalf("unexpected second entry: %+v", got.Entries[1])
	}
}

func TestMarshalCommitRoundTrip(t *testing.T) {
	c := &CommitObj{
		TreeHash:  "treehash",
		Parents:   []Hash{"p1", "p2"},
		Author:    "jane",
		Timestamp: 1700000000,
		Message:   "first commit\n",
	}
	got, err := UnmarshalCommit(MarshalCommit(c))
	if err != nil {
		t.Fatalf("unmarshal commit: %v", err)
	}
	if got.TreeHash != c.TreeHash || len(got.Parents) != 2 || got.Message != c.Message {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestMarshalCommitZeroParents(t *testing.T) {
	c := &CommitObj{TreeHash: "t", Author: "a", Timestamp: 1, Message: "m"}
	got, err := UnmarshalCommit(MarshalCommit(c))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Parents) != 0 {
		t.Fatalf("expected no parents, got %v", got.Parents)
	}
}
