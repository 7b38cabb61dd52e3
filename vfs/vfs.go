// Package vfs is the versioned file system: it unifies revindex,
// filterchain, and propsynth behind a single read API addressed by
// (revision, path) rather than by Git ref/commit/tree, so the session and
// report packages never need to know how a revision maps to a commit.
package vfs

import (
	"bytes"
	"crypto/md5"
	"io"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/rcowham/gitsvnbridge/errdefs"
	"github.com/rcowham/gitsvnbridge/filterchain"
	"github.com/rcowham/gitsvnbridge/journal"
	"github.com/rcowham/gitsvnbridge/propsynth"
	"github.com/rcowham/gitsvnbridge/revindex"
)

// ObjectStore is the subset of gitstore.Store the versioned FS reads
// through — a narrow interface so tests don't need a real repository.
type ObjectStore interface {
	ReadBlob(id plumbing.Hash) (io.ReadCloser, error)
	ReadTree(id plumbing.Hash) (*object.Tree, error)
	ReadCommit(id plumbing.Hash) (*object.Commit, error)
}

// RevisionIndex is the subset of revindex.Index the versioned FS reads
// through.
type RevisionIndex interface {
	Lookup(rev int64) (revindex.CommitRecord, error)
	LookupCommit(id plumbing.Hash) (int64, error)
	Latest() (int64, error)
	CopyEdges(pathPrefix string) ([]journal.ChangedPath, error)
}

// FilterResolver maps a path's synthesized properties to the filter chain
// that should be applied on read/write (commitbuilder needs the same
// mapping, hence it is a free function rather than a vfs method).
type FilterResolver func(props propsynth.PropertyMap) filterchain.Chain

// Kind distinguishes a stat result's node type.
type Kind int

const (
	KindAbsent Kind = iota
	KindFile
	KindDirectory
)

// Node is the read-only resolution of (R, path).
type Node struct {
	Kind       Kind
	BlobID     plumbing.Hash
	Size       int64 // effective, post-filter size (files only)
	MD5        [16]byte
	Properties propsynth.PropertyMap
}

// DirectoryEntry is one child of a directory listing.
type DirectoryEntry struct {
	Name string
	Kind Kind
}

// LogEntry is one revision's worth of history for a path set.
type LogEntry struct {
	Rev           int64
	Author        string
	UnixTime      int64
	Message       string
	ChangedPaths  []journal.ChangedPath
}

// FS is the versioned file system, one per configured repository.
type FS struct {
	store     ObjectStore
	index     RevisionIndex
	synth     *propsynth.Synthesizer
	resolve   FilterResolver
	digests   *filterchain.DigestCache
}

// New builds a versioned FS over store/index/synth. resolve may be nil,
// in which case every file resolves to the identity filter chain.
func New(store ObjectStore, index RevisionIndex, synth *propsynth.Synthesizer, resolve FilterResolver) (*FS, error) {
	if resolve == nil {
		resolve = func(propsynth.PropertyMap) filterchain.Chain { return filterchain.Chain{filterchain.Identity{}} }
	}
	digests, err := filterchain.NewDigestCache(4096)
	if err != nil {
		return nil, err
	}
	return &FS{store: store, index: index, synth: synth, resolve: resolve, digests: digests}, nil
}

// commitTree resolves revision R to its commit and root tree.
func (fs *FS) commitTree(rev int64) (plumbing.Hash, plumbing.Hash, error) {
	rec, err := fs.index.Lookup(rev)
	if err != nil {
		return plumbing.ZeroHash, plumbing.ZeroHash, err
	}
	commitID := plumbing.NewHash(rec.CommitID)
	commit, err := fs.store.ReadCommit(commitID)
	if err != nil {
		return plumbing.ZeroHash, plumbing.ZeroHash, err
	}
	return commitID, commit.TreeHash, nil
}

// resolvePath walks path's segments from the root tree, returning the
// final tree entry's hash and mode (rootTree and filemode.Dir for the root
// itself) and whether the path was found.
func (fs *FS) resolvePath(rootTree plumbing.Hash, path string) (plumbing.Hash, filemode.FileMode, bool, error) {
	segments := splitPath(path)
	cur := rootTree
	mode := filemode.Dir
	for _, seg := range segments {
		tree, err := fs.store.ReadTree(cur)
		if err != nil {
			return plumbing.ZeroHash, 0, false, err
		}
		var found *object.TreeEntry
		for j := range tree.Entries {
			if tree.Entries[j].Name == seg {
				found = &tree.Entries[j]
				break
			}
		}
		if found == nil {
			return plumbing.ZeroHash, 0, false, nil
		}
		cur = found.Hash
		mode = found.Mode
	}
	return cur, mode, true, nil
}

// Stat resolves (R, path) to a Node, or Kind == KindAbsent if nothing is
// there.
func (fs *FS) Stat(rev int64, path string) (Node, error) {
	commitID, rootTree, err := fs.commitTree(rev)
	if err != nil {
		return Node{}, err
	}
	id, mode, ok, err := fs.resolvePath(rootTree, path)
	if err != nil {
		return Node{}, err
	}
	if !ok {
		return Node{Kind: KindAbsent}, nil
	}
	if mode == filemode.Dir {
		props, err := fs.synth.Properties(commitID, path, rootTree, true)
		if err != nil {
			return Node{}, err
		}
		return Node{Kind: KindDirectory, Properties: props}, nil
	}
	return fs.fileNode(commitID, rootTree, path, id)
}

func (fs *FS) fileNode(commitID, rootTree plumbing.Hash, path string, blobID plumbing.Hash) (Node, error) {
	props, err := fs.synth.Properties(commitID, path, rootTree, false)
	if err != nil {
		return Node{}, err
	}
	chain := fs.resolve(props)
	cacheKey := chainCacheKey(blobID, chain)
	if digest, ok := fs.digests.Get(cacheKey); ok {
		return Node{Kind: KindFile, BlobID: blobID, Size: digest.Size, MD5: digest.MD5, Properties: props}, nil
	}
	rc, err := fs.store.ReadBlob(blobID)
	if err != nil {
		return Node{}, err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return Node{}, errdefs.IOError("vfs-read-blob", err)
	}
	effective, err := chain.Decode(raw)
	if err != nil {
		return Node{}, errdefs.IOError("vfs-decode-chain", err)
	}
	digest := filterchain.Digest{MD5: md5.Sum(effective), Size: int64(len(effective))}
	fs.digests.Put(cacheKey, digest)
	return Node{Kind: KindFile, BlobID: blobID, Size: digest.Size, MD5: digest.MD5, Properties: props}, nil
}

func chainCacheKey(blobID plumbing.Hash, chain filterchain.Chain) string {
	var names []string
	for _, f := range chain {
		names = append(names, f.Name())
	}
	return blobID.String() + "|" + strings.Join(names, ",")
}

// List returns path's immediate children, sorted lexicographically.
func (fs *FS) List(rev int64, path string) ([]DirectoryEntry, error) {
	_, rootTree, err := fs.commitTree(rev)
	if err != nil {
		return nil, err
	}
	id, mode, ok, err := fs.resolvePath(rootTree, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errdefs.PathNotFound(path)
	}
	if mode != filemode.Dir {
		return nil, errdefs.NodeKindMismatch(path)
	}
	tree, err := fs.store.ReadTree(id)
	if err != nil {
		return nil, err
	}
	entries := make([]DirectoryEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		kind := KindFile
		if e.Mode == filemode.Dir {
			kind = KindDirectory
		}
		entries = append(entries, DirectoryEntry{Name: e.Name, Kind: kind})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Read streams path's effective (post-filter) content at revision R.
func (fs *FS) Read(rev int64, path string) (io.ReadCloser, error) {
	commitID, rootTree, err := fs.commitTree(rev)
	if err != nil {
		return nil, err
	}
	id, mode, ok, err := fs.resolvePath(rootTree, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errdefs.PathNotFound(path)
	}
	if mode == filemode.Dir {
		return nil, errdefs.NodeKindMismatch(path)
	}
	props, err := fs.synth.Properties(commitID, path, rootTree, false)
	if err != nil {
		return nil, err
	}
	chain := fs.resolve(props)
	rc, err := fs.store.ReadBlob(id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, errdefs.IOError("vfs-read", err)
	}
	effective, err := chain.Decode(raw)
	if err != nil {
		return nil, errdefs.IOError("vfs-decode-chain", err)
	}
	return io.NopCloser(bytes.NewReader(effective)), nil
}

// Properties returns path's synthesized regular property map at R.
func (fs *FS) Properties(rev int64, path string) (propsynth.PropertyMap, error) {
	n, err := fs.Stat(rev, path)
	if err != nil {
		return nil, err
	}
	if n.Kind == KindAbsent {
		return nil, errdefs.PathNotFound(path)
	}
	return n.Properties, nil
}

// Log streams LogEntry records for revisions in [fromRev, toRev] touching
// any path under pathPrefix.
func (fs *FS) Log(pathPrefix string, fromRev, toRev int64, includeChangedPaths bool, limit int) ([]LogEntry, error) {
	if toRev == 0 {
		latest, err := fs.index.Latest()
		if err != nil {
			return nil, err
		}
		toRev = latest
	}
	var out []LogEntry
	for rev := fromRev; rev <= toRev; rev++ {
		rec, err := fs.index.Lookup(rev)
		if err != nil {
			if e, ok := errdefs.As(err); ok && e.Kind == errdefs.KindRevisionNotFound {
				continue
			}
			return nil, err
		}
		if pathPrefix != "" && !touchesPath(rec.Changed, pathPrefix) {
			continue
		}
		entry := LogEntry{Rev: rec.Rev, Author: rec.Author, UnixTime: rec.UnixTime, Message: rec.Message}
		if includeChangedPaths {
			entry.ChangedPaths = rec.Changed
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func touchesPath(changed []journal.ChangedPath, prefix string) bool {
	for _, cp := range changed {
		if cp.Path == prefix || strings.HasPrefix(cp.Path, prefix+"/") {
			return true
		}
	}
	return false
}

// HistorySegment is one (rev, path) a path was known as, walking backward
// through copy edges.
type HistorySegment struct {
	Rev  int64
	Path string
}

// History follows copy edges backward from (path, R), returning the chain
// of (rev, path) it was known as; backs get-locations.
func (fs *FS) History(path string, rev int64) ([]HistorySegment, error) {
	out := []HistorySegment{{Rev: rev, Path: path}}
	curPath, curRev := path, rev
	for {
		edges, err := fs.index.CopyEdges(curPath)
		if err != nil {
			return nil, err
		}
		var found *journal.ChangedPath
		for i := range edges {
			if edges[i].Path == curPath {
				found = &edges[i]
				break
			}
		}
		if found == nil || found.CopyFromRev >= curRev {
			break
		}
		curPath, curRev = found.CopyFromPath, found.CopyFromRev
		out = append(out, HistorySegment{Rev: curRev, Path: curPath})
	}
	return out, nil
}

// BlameLine is one line of path's effective content at rev, attributed to
// the most recent revision that introduced it.
type BlameLine struct {
	Rev    int64
	Author string
	Text   string
}

// blameEntry tracks one not-yet-attributed line as blame walks backward
// through history: index is its position in the content at rev.
type blameEntry struct {
	index int
	text  string
}

// Blame attributes each line of path's effective content at rev to the
// most recent revision that introduced it: starting from rev's content, it
// walks revisions backward one at a time, line-diffing each revision's
// content against its predecessor with sergi/go-diff. A line present at r
// but missing at r-1 was introduced at r; a line present at both is still
// open and carries on to the next comparison. A line that survives every
// comparison down to r1 is attributed to r1, where the file was added.
func (fs *FS) Blame(path string, rev int64) ([]BlameLine, error) {
	n, err := fs.Stat(rev, path)
	if err != nil {
		return nil, err
	}
	if n.Kind == KindAbsent {
		return nil, errdefs.PathNotFound(path)
	}
	if n.Kind != KindFile {
		return nil, errdefs.NodeKindMismatch(path)
	}

	curLines, err := fs.blameLines(rev, path)
	if err != nil {
		return nil, err
	}
	result := make([]BlameLine, len(curLines))
	open := make([]blameEntry, len(curLines))
	for i, line := range curLines {
		open[i] = blameEntry{index: i, text: line}
	}

	dmp := diffmatchpatch.New()
	for r := rev; r > 1 && len(open) > 0; r-- {
		prevLines, err := fs.blameLines(r-1, path)
		if err != nil {
			return nil, err
		}
		rec, err := fs.index.Lookup(r)
		if err != nil {
			return nil, err
		}

		curText := make([]string, len(open))
		for i, e := range open {
			curText[i] = e.text
		}
		c, p, lineArray := dmp.DiffLinesToChars(strings.Join(curText, "\n"), strings.Join(prevLines, "\n"))
		diffs := dmp.DiffCharsToLines(dmp.DiffMain(c, p, false), lineArray)

		var next []blameEntry
		openIdx := 0
		for _, d := range diffs {
			for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
				switch d.Type {
				case diffmatchpatch.DiffEqual:
					next = append(next, open[openIdx])
					openIdx++
				case diffmatchpatch.DiffDelete:
					e := open[openIdx]
					result[e.index] = BlameLine{Rev: r, Author: rec.Author, Text: e.text}
					openIdx++
				case diffmatchpatch.DiffInsert:
					_ = line // present only at r-1, irrelevant to r's blame
				}
			}
		}
		open = next
	}

	if len(open) > 0 {
		rec, err := fs.index.Lookup(1)
		if err != nil {
			return nil, err
		}
		for _, e := range open {
			result[e.index] = BlameLine{Rev: 1, Author: rec.Author, Text: e.text}
		}
	}
	return result, nil
}

// blameLines returns path's effective content at rev split into lines, or
// nil if the path did not exist at rev.
func (fs *FS) blameLines(rev int64, path string) ([]string, error) {
	rc, err := fs.Read(rev, path)
	if err != nil {
		if e, ok := errdefs.As(err); ok && e.Kind == errdefs.KindPathNotFound {
			return nil, nil
		}
		return nil, err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, errdefs.IOError("vfs-blame-read", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	return strings.Split(string(raw), "\n"), nil
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
