package repo

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/odvcencio/gitlet/pkg/object"
)

// TreeFileEntry represents a single file in a flattened tree.
type TreeFileEntry struct {
	Path     string
	BlobHash object.Hash
	Mode     string
}

// BuildTree converts the flat staging entries (stage 0 only) into a
// hierarchical tree structure, writing TreeObj objects to the store and
// returning the root hash.
//
// Staging paths use forward slashes (e.g. "pkg/util/util.go"). BuildTree
// groups them by directory, recursively creates subtrees, and returns the
// root tree hash.
func (r *Repo) BuildTree(s *Staging) (object.Hash, error) {
	return r.buildTreeDir(s.stage0Entries(), "")
}

// buildTreeDir builds a TreeObj for the given directory prefix and writes it
// to the store. It returns the tree's hash.
func (r *Repo) buildTreeDir(entries map[string]*IndexEntry, prefix string) (object.Hash, error) {
	files := make(map[string]*IndexEntry)
	subdirs := make(map[string]struct{})

	for p, entry := range entries {
		var rel string
		if prefix == "" {
			rel = p
		} else {
			if !strings.HasPrefix(p, prefix+"/") {
				continue
			}
			rel = p[len(prefix)+1:]
		}

		slash := strings.IndexByte(rel, '/')
		if slash < 0 {
			files[rel] = entry
		} else {
			subdirs[rel[:slash]] = struct{}{}
		}
	}

	names := make([]string, 0, len(files)+len(subdirs))
	for name := range files {
		names = append(names, name)
	}
	for name := range subdirs {
		if _, isFile := files[name]; !isFile {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var treeEntries []object.TreeEntry
	for _, name := range names {
		if entry, isFile := files[name]; isFile {
			treeEntries = append(treeEntries, object.TreeEntry{
				Name:     name,
				IsDir:    false,
				Mode:     normalizeFileMode(entry.Mode),
				BlobHash: entry.Hash,
			})
			continue
		}

		childPrefix := name
		if prefix != "" {
			childPrefix = prefix + "/" + name
		}
		subHash, err := r.buildTreeDir(entries, childPrefix)
		if err != nil {
			return "", fmt.Errorf("build tree %q: %w", childPrefix, err)
		}
		treeEntries = append(treeEntries, object.TreeEntry{
			Name:        name,
			IsDir:       true,
			Mode:        object.TreeModeDir,
			SubtreeHash: subHash,
		})
	}

	treeObj := &object.TreeObj{Entries: treeEntries}
	h, err := r.Store.WriteTree(treeObj)
	if err != nil {
		return "", fmt.Errorf("write tree (prefix=%q): %w", prefix, err)
	}
	return h, nil
}

// FlattenTree walks a tree object recursively, returning all file entries
// with their full paths (using forward slashes).
func (r *Repo) FlattenTree(h object.Hash) ([]TreeFileEntry, error) {
	result := make([]TreeFileEntry, 0, 64)
	if h == "" {
		return result, nil
	}
	if err := r.flattenTreeInto(h, "", &result); err != nil {
		return nil, err
	}
	return result, nil
}

// FlattenTreeTOC is FlattenTree reduced to a path -> blob hash map, the form
// most operations (diff, status, merge) actually need.
func (r *Repo) FlattenTreeTOC(h object.Hash) (map[string]object.Hash, error) {
	entries, err := r.FlattenTree(h)
	if err != nil {
		return nil, err
	}
	toc := make(map[string]object.Hash, len(entries))
	for _, e := range entries {
		toc[e.Path] = e.BlobHash
	}
	return toc, nil
}

func (r *Repo) flattenTreeInto(h object.Hash, prefix string, out *[]TreeFileEntry) error {
	treeObj, err := r.Store.ReadTree(h)
	if err != nil {
		return fmt.Errorf("flatten tree: read %s: %w", h, err)
	}

	for _, entry := range treeObj.Entries {
		fullPath := entry.Name
		if prefix != "" {
			fullPath = path.Join(prefix, entry.Name)
		}

		if entry.IsDir {
			if err := r.flattenTreeInto(entry.SubtreeHash, fullPath, out); err != nil {
				return err
			}
		} else {
			*out = append(*out, TreeFileEntry{
				Path:     fullPath,
				BlobHash: entry.BlobHash,
				Mode:     normalizeFileMode(entry.Mode),
			})
		}
	}
	return nil
}

// headTOC returns the path -> blob hash table for the tree HEAD currently
// points to. An unborn HEAD (no commits yet) yields an empty TOC.
func (r *Repo) headTOC() (map[string]object.Hash, error) {
	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return map[string]object.Hash{}, nil
	}
	commit, err := r.Store.ReadCommit(headHash)
	if err != nil {
		return nil, fmt.Errorf("head toc: read commit %s: %w", headHash, err)
	}
	return r.FlattenTreeTOC(commit.TreeHash)
}
