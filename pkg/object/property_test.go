package object

import (
	"testing"

	"pgregory.net/rapid"
)

// TestHashObject_DeterministicAcrossArbitraryContent checks the spec's Hash
// determinism invariant: hashing the same bytes twice always agrees,
// regardless of content.
func TestHashObject_DeterministicAcrossArbitraryContent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		content := rapid.SliceOf(rapid.Byte()).Draw(t, "content")
		h1 := HashObject(TypeBlob, content)
		h2 := HashObject(TypeBlob, content)
		if h1 != h2 {
			t.Fatalf("hash not stable across runs: %s vs %s", h1, h2)
		}
		if len(h1) != 40 {
			t.Fatalf("expected 40-hex digest, got %d chars", len(h1))
		}
	})
}

// TestBlobRoundTrip checks the spec's round-trip invariant for blobs:
// unmarshal(marshal(b)) reproduces b's bytes exactly.
func TestBlobRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(t, "data")
		b := &Blob{Data: data}

		encoded := MarshalBlob(b)
		decoded, err := UnmarshalBlob(encoded)
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if string(decoded.Data) != string(b.Data) {
			t.Fatalf("round-trip mismatch: got %q, want %q", decoded.Data, b.Data)
		}
	})
}

// TestTreeMarshal_OrderIndependent checks that entry order does not affect
// the resulting serialized bytes (trees canonicalize by sorting on Name),
// so identical directory contents always hash identically.
func TestTreeMarshal_OrderIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.SliceOfN(rapid.StringMatching(`[a-z][a-z0-9]{0,7}`), 1, 10).Draw(t, "names")

		seen := make(map[string]struct{}, len(raw))
		var names []string
		for _, n := range raw {
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			names = append(names, n)
		}

		entries := make([]TreeEntry, len(names))
		for i, n := range names {
			entries[i] = TreeEntry{Name: n, BlobHash: HashBytes([]byte(n))}
		}

		forward := &TreeObj{Entries: entries}
		reversed := &TreeObj{Entries: reverseEntries(entries)}

		if string(MarshalTree(forward)) != string(MarshalTree(reversed)) {
			t.Fatalf("tree serialization depends on input entry order")
		}
	})
}

func reverseEntries(in []TreeEntry) []TreeEntry {
	out := make([]TreeEntry, len(in))
	for i, e := range in {
		out[len(in)-1-i] = e
	}
	return out
}
