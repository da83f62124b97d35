package repo

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/odvcencio/gitlet/pkg/object"
)

// Conflict stages. Stage 0 carries normal staged content; stages 1-3 carry
// the base/ours/theirs sides of an unresolved merge conflict.
const (
	StageNormal  = 0
	StageBase    = 1
	StageOurs    = 2
	StageTheirs  = 3
)

// IndexEntry is a single (path, stage) -> blob_hash record.
type IndexEntry struct {
	Path  string
	Stage int
	Hash  object.Hash
	Mode  string

	// ModTime/Size are working-copy staleness hints; only meaningful for
	// stage 0 and not part of the on-disk format's identity.
	ModTime int64
	Size    int64
}

// Staging is the index: a sorted table of (path, stage) -> blob_hash.
// Invariant: for any path, either a single stage-0 entry exists, or exactly
// the set of present conflict stages - never both.
type Staging struct {
	// byPath maps a path to its stage entries, keyed by stage.
	byPath map[string]map[int]*IndexEntry
}

func newStaging() *Staging {
	return &Staging{byPath: make(map[string]map[int]*IndexEntry)}
}

func (r *Repo) indexPath() string {
	return filepath.Join(r.GotDir, "index")
}

// ReadStaging loads the index from .gitlet/index. A missing file yields an
// empty Staging, not an error.
func (r *Repo) ReadStaging() (*Staging, error) {
	f, err := os.Open(r.indexPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newStaging(), nil
		}
		return nil, fmt.Errorf("read staging: %w", err)
	}
	defer f.Close()

	stg := newStaging()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry, err := parseIndexLine(line)
		if err != nil {
			return nil, fmt.Errorf("read staging: %w", err)
		}
		stg.set(entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read staging: %w", err)
	}
	return stg, nil
}

// parseIndexLine parses one "<path> <stage>\t<hash>" line. Optional trailing
// tab-delimited fields carry the mode, then the modification time and size:
// "<path> <stage>\t<hash>\t<mode>\t<modtime>\t<size>".
func parseIndexLine(line string) (*IndexEntry, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 2 {
		return nil, fmt.Errorf("malformed index line %q", line)
	}
	head := fields[0]
	sp := strings.LastIndexByte(head, ' ')
	if sp < 0 {
		return nil, fmt.Errorf("malformed index line %q", line)
	}
	path := head[:sp]
	stage, err := strconv.Atoi(head[sp+1:])
	if err != nil {
		return nil, fmt.Errorf("malformed stage in index line %q: %w", line, err)
	}
	entry := &IndexEntry{Path: path, Stage: stage, Hash: object.Hash(fields[1])}
	if len(fields) >= 3 {
		entry.Mode = fields[2]
	}
	if len(fields) >= 5 {
		entry.ModTime, _ = strconv.ParseInt(fields[3], 10, 64)
		entry.Size, _ = strconv.ParseInt(fields[4], 10, 64)
	}
	return entry, nil
}

func (e *IndexEntry) format() string {
	mode := e.Mode
	if mode == "" {
		mode = object.TreeModeFile
	}
	return fmt.Sprintf("%s %d\t%s\t%s\t%d\t%d", e.Path, e.Stage, e.Hash, mode, e.ModTime, e.Size)
}

// WriteStaging atomically writes the index to .gitlet/index, one entry per
// line in "<path> <stage>\t<hash>\t<mode>\t<modtime>\t<size>" form, sorted
// by (path, stage).
func (r *Repo) WriteStaging(s *Staging) error {
	var buf strings.Builder
	for _, e := range s.sortedEntries() {
		buf.WriteString(e.format())
		buf.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(r.GotDir, ".index-tmp-*")
	if err != nil {
		return fmt.Errorf("write staging: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(buf.String()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write staging: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write staging: close: %w", err)
	}
	if err := os.Rename(tmpName, r.indexPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write staging: rename: %w", err)
	}
	return nil
}

func (s *Staging) set(e *IndexEntry) {
	stages, ok := s.byPath[e.Path]
	if !ok {
		stages = make(map[int]*IndexEntry)
		s.byPath[e.Path] = stages
	}
	stages[e.Stage] = e
}

func (s *Staging) sortedEntries() []*IndexEntry {
	paths := make([]string, 0, len(s.byPath))
	for p := range s.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]*IndexEntry, 0, len(s.byPath))
	for _, p := range paths {
		stages := s.byPath[p]
		stageNums := make([]int, 0, len(stages))
		for st := range stages {
			stageNums = append(stageNums, st)
		}
		sort.Ints(stageNums)
		for _, st := range stageNums {
			out = append(out, stages[st])
		}
	}
	return out
}

// stage0Entries returns every stage-0 entry, keyed by path.
func (s *Staging) stage0Entries() map[string]*IndexEntry {
	out := make(map[string]*IndexEntry)
	for p, stages := range s.byPath {
		if e, ok := stages[StageNormal]; ok {
			out[p] = e
		}
	}
	return out
}

// ReadTOC returns the stage-0 view of the index: path -> blob hash.
func (s *Staging) ReadTOC() map[string]object.Hash {
	toc := make(map[string]object.Hash)
	for p, stages := range s.byPath {
		if e, ok := stages[StageNormal]; ok {
			toc[p] = e.Hash
		}
	}
	return toc
}

// HasEntry reports whether a (path, stage) entry exists.
func (s *Staging) HasEntry(path string, stage int) bool {
	stages, ok := s.byPath[path]
	if !ok {
		return false
	}
	_, ok = stages[stage]
	return ok
}

// FileInConflict reports whether any non-zero stage exists for path.
func (s *Staging) FileInConflict(path string) bool {
	stages, ok := s.byPath[path]
	if !ok {
		return false
	}
	for st := range stages {
		if st != StageNormal {
			return true
		}
	}
	return false
}

// ConflictedPaths returns, sorted, every path carrying a non-zero stage.
func (s *Staging) ConflictedPaths() []string {
	var out []string
	for p := range s.byPath {
		if s.FileInConflict(p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Entry returns the stage-0 entry for path, if present.
func (s *Staging) Entry(path string) (*IndexEntry, bool) {
	stages, ok := s.byPath[path]
	if !ok {
		return nil, false
	}
	e, ok := stages[StageNormal]
	return e, ok
}

// Paths returns every distinct path tracked by the index, sorted.
func (s *Staging) Paths() []string {
	out := make([]string, 0, len(s.byPath))
	for p := range s.byPath {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *Staging) clearPath(path string) {
	delete(s.byPath, path)
}

// writeAddEntry records path at stage 0 with the given blob hash and mode,
// clearing any conflict stages previously present for that path.
func (s *Staging) writeAddEntry(path string, h object.Hash, mode string, modTime, size int64) {
	s.clearPath(path)
	s.set(&IndexEntry{Path: path, Stage: StageNormal, Hash: h, Mode: mode, ModTime: modTime, Size: size})
}

// writeRemove removes all stages for path. Fails if the path is conflicted.
func (s *Staging) writeRemove(path string) error {
	if s.FileInConflict(path) {
		return fmt.Errorf("rm: %q is conflicted (unsupported)", path)
	}
	s.clearPath(path)
	return nil
}

// writeConflict removes the stage-0 entry for path and records whichever of
// base/ours/theirs hashes are present as stages 1/2/3.
func (s *Staging) writeConflict(path string, mode string, base, ours, theirs object.Hash) {
	s.clearPath(path)
	if base != "" {
		s.set(&IndexEntry{Path: path, Stage: StageBase, Hash: base, Mode: mode})
	}
	if ours != "" {
		s.set(&IndexEntry{Path: path, Stage: StageOurs, Hash: ours, Mode: mode})
	}
	if theirs != "" {
		s.set(&IndexEntry{Path: path, Stage: StageTheirs, Hash: theirs, Mode: mode})
	}
}

// tocToIndex replaces the index contents with a stage-0 mirror of toc, used
// by checkout.
func tocToIndex(toc map[string]TreeFileEntry) *Staging {
	stg := newStaging()
	for path, f := range toc {
		stg.set(&IndexEntry{
			Path:  path,
			Stage: StageNormal,
			Hash:  f.BlobHash,
			Mode:  normalizeFileMode(f.Mode),
		})
	}
	return stg
}

// ---------------------------------------------------------------------------
// Command-facade level staging operations
// ---------------------------------------------------------------------------

// Add resolves path to a set of working-copy files (recursively if a
// directory), stages each: writes a blob, records stage 0, and clears any
// conflict stages for that path. An empty resolution is an error
// (PathspecMismatch).
func (r *Repo) Add(paths []string) error {
	if err := r.refuseIfBare("add"); err != nil {
		return err
	}

	stg, err := r.ReadStaging()
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}

	toAdd, err := r.expandAddPaths(paths)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	if len(toAdd) == 0 {
		return fmt.Errorf("add: pathspec matched no files")
	}

	for _, relPath := range toAdd {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(relPath))
		content, err := os.ReadFile(absPath)
		if err != nil {
			return fmt.Errorf("add: read %q: %w", relPath, err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return fmt.Errorf("add: stat %q: %w", relPath, err)
		}

		blobHash, err := r.Store.WriteBlob(&object.Blob{Data: content})
		if err != nil {
			return fmt.Errorf("add: write blob %q: %w", relPath, err)
		}

		stg.writeAddEntry(relPath, blobHash, modeFromFileInfo(info), info.ModTime().UnixNano(), info.Size())
	}

	if err := r.WriteStaging(stg); err != nil {
		return fmt.Errorf("add: %w", err)
	}
	return nil
}

// Remove refuses if any matched file has uncommitted modifications versus
// HEAD; otherwise deletes it from disk (unless cached) and the index. A
// pathspec naming a directory matches its tracked contents only when
// recursive is true; otherwise it is an error (Unsupported: recursive
// removal was not requested).
func (r *Repo) Remove(paths []string, cached, recursive bool) error {
	if !cached {
		if err := r.refuseIfBare("rm"); err != nil {
			return err
		}
	}

	stg, err := r.ReadStaging()
	if err != nil {
		return fmt.Errorf("rm: %w", err)
	}

	toRemove, err := r.expandRemovePaths(paths, stg, recursive)
	if err != nil {
		return fmt.Errorf("rm: %w", err)
	}
	if len(toRemove) == 0 {
		return fmt.Errorf("rm: pathspec matched no tracked files")
	}

	headTOC, err := r.headTOC()
	if err != nil {
		return fmt.Errorf("rm: %w", err)
	}
	for _, relPath := range toRemove {
		entry, _ := stg.Entry(relPath)
		if entry != nil {
			if headHash, inHead := headTOC[relPath]; inHead && headHash != entry.Hash {
				return fmt.Errorf("rm: %q has uncommitted modifications", relPath)
			}
			absPath := filepath.Join(r.RootDir, filepath.FromSlash(relPath))
			content, readErr := os.ReadFile(absPath)
			if readErr == nil {
				workHash := object.HashObject(object.TypeBlob, content)
				if headHash, inHead := headTOC[relPath]; (!inHead || headHash == entry.Hash) && workHash != entry.Hash {
					return fmt.Errorf("rm: %q has uncommitted modifications", relPath)
				}
			}
		}

		if err := stg.writeRemove(relPath); err != nil {
			return fmt.Errorf("rm: %w", err)
		}
		if cached {
			continue
		}

		absPath := filepath.Join(r.RootDir, filepath.FromSlash(relPath))
		if err := os.Remove(absPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("rm: remove %q: %w", relPath, err)
		}
		r.removeEmptyParents(filepath.Dir(absPath))
	}

	if err := r.WriteStaging(stg); err != nil {
		return fmt.Errorf("rm: %w", err)
	}
	return nil
}

// repoRelPath converts p (absolute, or relative to CWD) into a path relative
// to the repository root.
func (r *Repo) repoRelPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(r.RootDir, p)
		if err != nil {
			return "", fmt.Errorf("cannot make %q relative to %q: %w", p, r.RootDir, err)
		}
		return filepath.ToSlash(rel), nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}

	abs := filepath.Join(cwd, p)
	rel, err := filepath.Rel(r.RootDir, abs)
	if err != nil {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	if len(rel) >= 2 && rel[:2] == ".." {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	return filepath.ToSlash(rel), nil
}

func (r *Repo) expandAddPaths(inputs []string) ([]string, error) {
	ic := NewIgnoreChecker(r.RootDir)
	seen := make(map[string]struct{})

	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if hasGlobMeta(input) {
			spec, err := r.repoRelPath(input)
			if err != nil {
				return nil, fmt.Errorf("resolve path %q: %w", input, err)
			}
			if isOutsideRepo(spec) {
				return nil, fmt.Errorf("path %q is outside repository", input)
			}
			globPattern := filepath.Join(r.RootDir, filepath.FromSlash(spec))
			matches, err := filepath.Glob(globPattern)
			if err != nil {
				return nil, fmt.Errorf("glob %q: %w", input, err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("pathspec %q did not match any files", input)
			}
			for _, m := range matches {
				if err := r.collectAddPath(m, ic, seen); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := r.collectAddPath(input, ic, seen); err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (r *Repo) collectAddPath(input string, ic *IgnoreChecker, seen map[string]struct{}) error {
	relPath, err := r.repoRelPath(input)
	if err != nil {
		return fmt.Errorf("resolve path %q: %w", input, err)
	}
	if isOutsideRepo(relPath) {
		return fmt.Errorf("path %q is outside repository", input)
	}
	if relPath == "." {
		relPath = ""
	}

	absPath := filepath.Join(r.RootDir, filepath.FromSlash(relPath))
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat %q: %w", relPath, err)
	}
	if !info.IsDir() {
		rel := filepath.ToSlash(relPath)
		if ic.IsIgnored(rel) {
			return nil
		}
		seen[rel] = struct{}{}
		return nil
	}

	return filepath.WalkDir(absPath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(r.RootDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if ic.IsIgnored(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if ic.IsIgnored(rel) {
			return nil
		}
		seen[rel] = struct{}{}
		return nil
	})
}

func (r *Repo) expandRemovePaths(inputs []string, stg *Staging, recursive bool) ([]string, error) {
	tracked := stg.Paths()

	seen := make(map[string]struct{})
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		spec, err := r.repoRelPath(input)
		if err != nil {
			return nil, fmt.Errorf("resolve path %q: %w", input, err)
		}
		spec = filepath.ToSlash(spec)
		if isOutsideRepo(spec) {
			return nil, fmt.Errorf("path %q is outside repository", input)
		}

		matched := false
		if spec == "." || spec == "" {
			if !recursive {
				return nil, fmt.Errorf("%q is a directory, use -r to remove recursively: %w", input, ErrUnsupported)
			}
			for _, p := range tracked {
				seen[p] = struct{}{}
			}
			matched = len(tracked) > 0
		} else if hasGlobMeta(spec) {
			for _, p := range tracked {
				if matchPathspec(spec, p) {
					seen[p] = struct{}{}
					matched = true
				}
			}
		} else if exactMatch, isExact := exactTrackedPath(spec, tracked); isExact {
			seen[exactMatch] = struct{}{}
			matched = true
		} else {
			var prefixMatches []string
			for _, p := range tracked {
				if strings.HasPrefix(p, spec+"/") {
					prefixMatches = append(prefixMatches, p)
				}
			}
			if len(prefixMatches) > 0 {
				if !recursive {
					return nil, fmt.Errorf("%q is a directory, use -r to remove recursively: %w", input, ErrUnsupported)
				}
				for _, p := range prefixMatches {
					seen[p] = struct{}{}
				}
				matched = true
			}
		}
		if !matched {
			return nil, fmt.Errorf("pathspec %q did not match tracked files", input)
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// exactTrackedPath reports whether spec names a single tracked file exactly
// (as opposed to a directory prefix, handled separately by the caller).
func exactTrackedPath(spec string, tracked []string) (string, bool) {
	for _, p := range tracked {
		if p == spec {
			return p, true
		}
	}
	return "", false
}

func hasGlobMeta(path string) bool {
	return strings.ContainsAny(path, "*?[")
}

func matchPathspec(spec, path string) bool {
	if strings.Contains(spec, "/") {
		ok, _ := filepath.Match(spec, path)
		return ok
	}
	ok, _ := filepath.Match(spec, filepath.Base(path))
	return ok
}

func isOutsideRepo(rel string) bool {
	rel = filepath.ToSlash(filepath.Clean(rel))
	return rel == ".." || strings.HasPrefix(rel, "../")
}
