package object

// Hash is a 40-character hex-encoded SHA-1 digest: the sole identity for a
// stored object. Equal content always hashes equal.
type Hash string

// ObjectType identifies the kind of object stored.
type ObjectType string

const (
	TypeBlob   ObjectType = "blob"
	TypeTree   ObjectType = "tree"
	TypeCommit ObjectType = "commit"
)

const (
	// Tree mode constants, compatible with familiar mode strings.
	TreeModeDir        = "40000"
	TreeModeFile       = "100644"
	TreeModeExecutable = "100755"
)

// Blob holds raw file data.
type Blob struct {
	Data []byte
}

// TreeEntry is one entry in a tree object: a single path segment mapped to
// either a child tree hash (IsDir) or a blob hash.
type TreeEntry struct {
	Name        string
	IsDir       bool
	Mode        string
	BlobHash    Hash
	SubtreeHash Hash
}

// TreeObj holds the entries of a single directory level.
type TreeObj struct {
	Entries []TreeEntry
}

// CommitObj represents a commit: a root tree plus 0, 1, or 2 parents.
type CommitObj struct {
	TreeHash  Hash
	Parents   []Hash
	Author    string
	Timestamp int64
	Message   string
}
