package vfs

import (
	"bytes"
	"io"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/gitsvnbridge/filterchain"
	"github.com/rcowham/gitsvnbridge/journal"
	"github.com/rcowham/gitsvnbridge/propsynth"
	"github.com/rcowham/gitsvnbridge/revindex"
)

type fakeStore struct {
	trees   map[plumbing.Hash]*object.Tree
	blobs   map[plumbing.Hash][]byte
	commits map[plumbing.Hash]*object.Commit
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		trees:   map[plumbing.Hash]*object.Tree{},
		blobs:   map[plumbing.Hash][]byte{},
		commits: map[plumbing.Hash]*object.Commit{},
	}
}

func (f *fakeStore) ReadBlob(id plumbing.Hash) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.blobs[id])), nil
}
func (f *fakeStore) ReadTree(id plumbing.Hash) (*object.Tree, error) { return f.trees[id], nil }
func (f *fakeStore) ReadCommit(id plumbing.Hash) (*object.Commit, error) { return f.commits[id], nil }

func hash(s string) plumbing.Hash { return plumbing.ComputeHash(plumbing.BlobObject, []byte(s)) }

type fakeIndex struct {
	records map[int64]revindex.CommitRecord
	latest  int64
}

func (f *fakeIndex) Lookup(rev int64) (revindex.CommitRecord, error) {
	r, ok := f.records[rev]
	if !ok {
		return revindex.CommitRecord{}, assertErr("no such revision")
	}
	return r, nil
}
func (f *fakeIndex) LookupCommit(id plumbing.Hash) (int64, error) { return 0, assertErr("unused") }
func (f *fakeIndex) Latest() (int64, error)                       { return f.latest, nil }
func (f *fakeIndex) CopyEdges(prefix string) ([]journal.ChangedPath, error) { return nil, nil }

type assertErr string

func (e assertErr) Error() string { return string(e) }

func buildFixture(t *testing.T) (*FS, int64) {
	t.Helper()
	store := newFakeStore()

	fileID := hash("content")
	store.blobs[fileID] = []byte("hello world")

	rootID := hash("root")
	store.trees[rootID] = &object.Tree{Entries: []object.TreeEntry{
		{Name: "a.txt", Mode: filemode.Regular, Hash: fileID},
		{Name: "trunk", Mode: filemode.Dir, Hash: rootID}, // self-referential for simplicity
	}}

	commitID := hash("commit")
	store.commits[commitID] = &object.Commit{TreeHash: rootID, Message: "init"}

	index := &fakeIndex{records: map[int64]revindex.CommitRecord{
		1: {Rev: 1, CommitID: commitID.String(), Author: "alice", UnixTime: 1000, Message: "init",
			Changed: []journal.ChangedPath{{Path: "/a.txt", Action: journal.ActionAdded, CopyFromRev: -1}}},
	}, latest: 1}

	synth, err := propsynth.New(store, 16)
	require.NoError(t, err)

	fs, err := New(store, index, synth, nil)
	require.NoError(t, err)
	return fs, 1
}

func TestStatFile(t *testing.T) {
	fs, rev := buildFixture(t)
	n, err := fs.Stat(rev, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, KindFile, n.Kind)
	assert.Equal(t, int64(11), n.Size)
}

func TestStatAbsent(t *testing.T) {
	fs, rev := buildFixture(t)
	n, err := fs.Stat(rev, "missing.txt")
	require.NoError(t, err)
	assert.Equal(t, KindAbsent, n.Kind)
}

func TestListRootSortedLexicographically(t *testing.T) {
	fs, rev := buildFixture(t)
	entries, err := fs.List(rev, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.txt", entries[0].Name)
	assert.Equal(t, "trunk", entries[1].Name)
}

func TestReadReturnsEffectiveContent(t *testing.T) {
	fs, rev := buildFixture(t)
	rc, err := fs.Read(rev, "a.txt")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestLogFiltersByPathPrefix(t *testing.T) {
	fs, _ := buildFixture(t)
	entries, err := fs.Log("/a.txt", 1, 1, true, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Author)

	none, err := fs.Log("/nomatch", 1, 1, true, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// gzipResolver mirrors main.go's filterResolver for the "gzip" case only.
func gzipResolver(props propsynth.PropertyMap) filterchain.Chain {
	if props["svnbridge:filter"] == "gzip" {
		return filterchain.Chain{filterchain.Gzip{}}
	}
	return filterchain.Chain{filterchain.Identity{}}
}

func gzipOf(t *testing.T, s string) []byte {
	t.Helper()
	stored, err := (filterchain.Chain{filterchain.Gzip{}}).Encode([]byte(s))
	require.NoError(t, err)
	return stored
}

// buildFilterToggleFixture builds two revisions at the tracked root:
// rev1 has data.z stored raw with no .gitattributes, rev2 adds a
// .gitattributes enabling gzip for *.z and rewrites data.z's stored blob
// to its gzip-compressed form. Reading data.z must come back as the same
// plaintext at both revisions despite the stored bytes differing.
func buildFilterToggleFixture(t *testing.T) *FS {
	t.Helper()
	store := newFakeStore()

	plainID := hash("plain-data")
	store.blobs[plainID] = []byte("CONTENT_FOO")

	root1ID := hash("root1")
	store.trees[root1ID] = &object.Tree{Entries: []object.TreeEntry{
		{Name: "data.z", Mode: filemode.Regular, Hash: plainID},
	}}
	commit1ID := hash("commit1")
	store.commits[commit1ID] = &object.Commit{TreeHash: root1ID, Message: "add data.z"}

	gitattrID := hash("gitattributes")
	store.blobs[gitattrID] = []byte("*.z filter=gzip\n")
	gzippedID := hash("gzipped-data")
	store.blobs[gzippedID] = gzipOf(t, "CONTENT_FOO")

	root2ID := hash("root2")
	store.trees[root2ID] = &object.Tree{Entries: []object.TreeEntry{
		{Name: ".gitattributes", Mode: filemode.Regular, Hash: gitattrID},
		{Name: "data.z", Mode: filemode.Regular, Hash: gzippedID},
	}}
	commit2ID := hash("commit2")
	store.commits[commit2ID] = &object.Commit{TreeHash: root2ID, Message: "enable gzip filter"}

	index := &fakeIndex{records: map[int64]revindex.CommitRecord{
		1: {Rev: 1, CommitID: commit1ID.String(), Author: "alice", UnixTime: 1000, Message: "add data.z",
			Changed: []journal.ChangedPath{{Path: "/data.z", Action: journal.ActionAdded, CopyFromRev: -1}}},
		2: {Rev: 2, CommitID: commit2ID.String(), Author: "alice", UnixTime: 2000, Message: "enable gzip filter",
			Changed: []journal.ChangedPath{
				{Path: "/.gitattributes", Action: journal.ActionAdded, CopyFromRev: -1},
				{Path: "/data.z", Action: journal.ActionModified, CopyFromRev: -1},
			}},
	}, latest: 2}

	synth, err := propsynth.New(store, 16)
	require.NoError(t, err)

	fs, err := New(store, index, synth, gzipResolver)
	require.NoError(t, err)
	return fs
}

func TestReadBeforeGitattributesSeesRawBytes(t *testing.T) {
	fs := buildFilterToggleFixture(t)
	rc, err := fs.Read(1, "data.z")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "CONTENT_FOO", string(data))
}

func TestReadAfterGitattributesDecodesThroughFilter(t *testing.T) {
	fs := buildFilterToggleFixture(t)
	rc, err := fs.Read(2, "data.z")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "CONTENT_FOO", string(data))
}

func TestLogReportsBothPathsForGitattributesRevision(t *testing.T) {
	fs := buildFilterToggleFixture(t)
	entries, err := fs.Log("", 2, 2, true, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].ChangedPaths, 2)
}
