package commitbuilder

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/gitsvnbridge/filterchain"
	"github.com/rcowham/gitsvnbridge/lock"
	"github.com/rcowham/gitsvnbridge/propsynth"
	"github.com/rcowham/gitsvnbridge/revindex"
	"github.com/rcowham/gitsvnbridge/svndiff"
)

// fakeStore is an in-memory ObjectStore good enough to exercise
// commitbuilder's tree-materialization and CAS logic.
type fakeStore struct {
	blobs   map[plumbing.Hash][]byte
	trees   map[plumbing.Hash]*object.Tree
	commits map[plumbing.Hash]*object.Commit
	refs    map[string]plumbing.Hash
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		blobs:   map[plumbing.Hash][]byte{},
		trees:   map[plumbing.Hash]*object.Tree{},
		commits: map[plumbing.Hash]*object.Commit{},
		refs:    map[string]plumbing.Hash{},
	}
}

func hashOf(b []byte) plumbing.Hash { return plumbing.ComputeHash(plumbing.BlobObject, b) }

func (f *fakeStore) ReadBlob(id plumbing.Hash) (io.ReadCloser, error) {
	b, ok := f.blobs[id]
	if !ok {
		return nil, fmt.Errorf("no blob %s", id)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeStore) ReadTree(id plumbing.Hash) (*object.Tree, error) {
	t, ok := f.trees[id]
	if !ok {
		return nil, fmt.Errorf("no tree %s", id)
	}
	return t, nil
}

func (f *fakeStore) ReadCommit(id plumbing.Hash) (*object.Commit, error) {
	c, ok := f.commits[id]
	if !ok {
		return nil, fmt.Errorf("no commit %s", id)
	}
	return c, nil
}

func (f *fakeStore) WriteBlob(r io.Reader) (plumbing.Hash, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	id := hashOf(b)
	f.blobs[id] = b
	return id, nil
}

func (f *fakeStore) WriteTree(t *object.Tree) (plumbing.Hash, error) {
	var buf bytes.Buffer
	for _, e := range t.Entries {
		fmt.Fprintf(&buf, "%s %s %s\n", e.Mode, e.Name, e.Hash)
	}
	id := plumbing.ComputeHash(plumbing.TreeObject, buf.Bytes())
	f.trees[id] = t
	return id, nil
}

func (f *fakeStore) WriteCommit(c *object.Commit) (plumbing.Hash, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %s %v", c.TreeHash, c.Message, c.ParentHashes)
	id := plumbing.ComputeHash(plumbing.CommitObject, buf.Bytes())
	f.commits[id] = c
	return id, nil
}

func (f *fakeStore) ResolveRef(name string) (plumbing.Hash, error) {
	h, ok := f.refs[name]
	if !ok {
		return plumbing.ZeroHash, fmt.Errorf("no ref %s", name)
	}
	return h, nil
}

func (f *fakeStore) CompareAndSwapRef(name string, expected, new plumbing.Hash) error {
	cur := f.refs[name]
	if cur != expected {
		return fmt.Errorf("cas mismatch: have %s want %s", cur, expected)
	}
	f.refs[name] = new
	return nil
}

type fakeIndex struct {
	byRev map[int64]revindex.CommitRecord
}

func (f *fakeIndex) Lookup(rev int64) (revindex.CommitRecord, error) {
	rec, ok := f.byRev[rev]
	if !ok {
		return revindex.CommitRecord{}, fmt.Errorf("no such revision %d", rev)
	}
	return rec, nil
}

func (f *fakeIndex) Latest() (int64, error) {
	var max int64
	for r := range f.byRev {
		if r > max {
			max = r
		}
	}
	return max, nil
}

func identityResolver(propsynth.PropertyMap) filterchain.Chain {
	return filterchain.Chain{filterchain.Identity{}}
}

// gzipIfMarkedResolver mirrors main.go's filterResolver: a path whose
// explicit svnbridge:filter property is "gzip" gets the Gzip filter,
// everything else gets identity.
func gzipIfMarkedResolver(props propsynth.PropertyMap) filterchain.Chain {
	if props["svnbridge:filter"] == "gzip" {
		return filterchain.Chain{filterchain.Gzip{}}
	}
	return filterchain.Chain{filterchain.Identity{}}
}

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	stored, err := (filterchain.Chain{filterchain.Gzip{}}).Encode([]byte(s))
	require.NoError(t, err)
	return stored
}

func gunzip(t *testing.T, b []byte) string {
	t.Helper()
	decoded, err := (filterchain.Chain{filterchain.Gzip{}}).Decode(b)
	require.NoError(t, err)
	return string(decoded)
}

// emptyRootFixture builds a store with one revision (r0) at an empty root
// tree, registered both in the fake index and as the tracked ref's head.
func emptyRootFixture(t *testing.T) (*fakeStore, *fakeIndex) {
	store := newFakeStore()
	rootTree := &object.Tree{}
	rootTreeID, err := store.WriteTree(rootTree)
	require.NoError(t, err)
	commit := &object.Commit{Message: "initial", TreeHash: rootTreeID}
	commitID, err := store.WriteCommit(commit)
	require.NoError(t, err)
	store.refs["refs/heads/trunk"] = commitID

	index := &fakeIndex{byRev: map[int64]revindex.CommitRecord{
		0: {Rev: 0, CommitID: commitID.String()},
	}}
	return store, index
}

func TestAddFileThenCloseEditCreatesCommit(t *testing.T) {
	store, index := emptyRootFixture(t)
	locks := lock.NewTable()

	sess, err := BeginCommit(store, index, locks, identityResolver, "refs/heads/trunk", 0, "alice", "add a.txt", nil)
	require.NoError(t, err)

	require.NoError(t, sess.OpenRoot())
	require.NoError(t, sess.AddFile("a.txt", "", 0))
	require.NoError(t, sess.ApplyTextDelta(""))
	delta := svndiff.Encode(nil, []byte("hello"))
	require.NoError(t, sess.TextDeltaChunk(delta))
	require.NoError(t, sess.TextDeltaEnd(""))
	require.NoError(t, sess.CloseFile())
	require.NoError(t, sess.CloseDir())

	newCommitID, err := sess.CloseEdit()
	require.NoError(t, err)

	commit, err := store.ReadCommit(newCommitID)
	require.NoError(t, err)
	tree, err := store.ReadTree(commit.TreeHash)
	require.NoError(t, err)
	require.Len(t, tree.Entries, 1)
	assert.Equal(t, "a.txt", tree.Entries[0].Name)
	assert.Equal(t, filemode.Regular, tree.Entries[0].Mode)

	blob, err := store.ReadBlob(tree.Entries[0].Hash)
	require.NoError(t, err)
	content, err := io.ReadAll(blob)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	assert.Equal(t, newCommitID, store.refs["refs/heads/trunk"])
}

func TestAddDirThenAddFileNestsTree(t *testing.T) {
	store, index := emptyRootFixture(t)
	locks := lock.NewTable()

	sess, err := BeginCommit(store, index, locks, identityResolver, "refs/heads/trunk", 0, "alice", "add dir", nil)
	require.NoError(t, err)

	require.NoError(t, sess.OpenRoot())
	require.NoError(t, sess.AddDir("sub", "", 0))
	require.NoError(t, sess.AddFile("b.txt", "", 0))
	require.NoError(t, sess.ApplyTextDelta(""))
	require.NoError(t, sess.TextDeltaChunk(svndiff.Encode(nil, []byte("nested"))))
	require.NoError(t, sess.TextDeltaEnd(""))
	require.NoError(t, sess.CloseFile())
	require.NoError(t, sess.CloseDir()) // sub
	require.NoError(t, sess.CloseDir()) // root

	newCommitID, err := sess.CloseEdit()
	require.NoError(t, err)

	commit, err := store.ReadCommit(newCommitID)
	require.NoError(t, err)
	rootTree, err := store.ReadTree(commit.TreeHash)
	require.NoError(t, err)
	require.Len(t, rootTree.Entries, 1)
	assert.Equal(t, "sub", rootTree.Entries[0].Name)
	assert.Equal(t, filemode.Dir, rootTree.Entries[0].Mode)

	subTree, err := store.ReadTree(rootTree.Entries[0].Hash)
	require.NoError(t, err)
	require.Len(t, subTree.Entries, 1)
	assert.Equal(t, "b.txt", subTree.Entries[0].Name)
}

func TestOperationAfterCloseEditIsIllegalEditorState(t *testing.T) {
	store, index := emptyRootFixture(t)
	locks := lock.NewTable()
	sess, err := BeginCommit(store, index, locks, identityResolver, "refs/heads/trunk", 0, "alice", "noop", nil)
	require.NoError(t, err)
	require.NoError(t, sess.OpenRoot())
	require.NoError(t, sess.CloseDir())
	_, err = sess.CloseEdit()
	require.NoError(t, err)

	err = sess.OpenRoot()
	require.Error(t, err)
}

func TestAbortEditThenCloseEditIsIllegalEditorState(t *testing.T) {
	store, index := emptyRootFixture(t)
	locks := lock.NewTable()
	sess, err := BeginCommit(store, index, locks, identityResolver, "refs/heads/trunk", 0, "alice", "noop", nil)
	require.NoError(t, err)
	require.NoError(t, sess.OpenRoot())
	sess.AbortEdit()

	_, err = sess.CloseEdit()
	require.Error(t, err)
}

func TestOpenFileOnLockedPathWithoutTokenIsDenied(t *testing.T) {
	store, index := emptyRootFixture(t)
	locks := lock.NewTable()
	_, err := locks.Acquire("a.txt", "bob", "", false)
	require.NoError(t, err)

	sess, err := BeginCommit(store, index, locks, identityResolver, "refs/heads/trunk", 0, "alice", "steal", nil)
	require.NoError(t, err)
	require.NoError(t, sess.OpenRoot())

	err = sess.OpenFile("a.txt", plumbing.ZeroHash)
	assert.Error(t, err)
}

func TestUntouchedDirIsReusedByReference(t *testing.T) {
	store, index := emptyRootFixture(t)
	locks := lock.NewTable()

	setup, err := BeginCommit(store, index, locks, identityResolver, "refs/heads/trunk", 0, "alice", "seed", nil)
	require.NoError(t, err)
	require.NoError(t, setup.OpenRoot())
	require.NoError(t, setup.AddDir("untouched", "", 0))
	require.NoError(t, setup.AddFile("a.txt", "", 0))
	require.NoError(t, setup.ApplyTextDelta(""))
	require.NoError(t, setup.TextDeltaChunk(svndiff.Encode(nil, []byte("seed"))))
	require.NoError(t, setup.TextDeltaEnd(""))
	require.NoError(t, setup.CloseFile())
	require.NoError(t, setup.CloseDir())
	require.NoError(t, setup.AddDir("touched", "", 0))
	require.NoError(t, setup.CloseDir())
	require.NoError(t, setup.CloseDir())
	seedCommitID, err := setup.CloseEdit()
	require.NoError(t, err)
	seedCommit, err := store.ReadCommit(seedCommitID)
	require.NoError(t, err)
	untouchedTreeID := treeEntryHash(t, store, seedCommit.TreeHash, "untouched")
	index.byRev[1] = revindex.CommitRecord{Rev: 1, CommitID: seedCommitID.String()}

	sess, err := BeginCommit(store, index, locks, identityResolver, "refs/heads/trunk", 1, "bob", "touch one dir", nil)
	require.NoError(t, err)
	require.NoError(t, sess.OpenRoot())
	require.NoError(t, sess.OpenDir("touched"))
	require.NoError(t, sess.AddFile("b.txt", "", 0))
	require.NoError(t, sess.ApplyTextDelta(""))
	require.NoError(t, sess.TextDeltaChunk(svndiff.Encode(nil, []byte("new"))))
	require.NoError(t, sess.TextDeltaEnd(""))
	require.NoError(t, sess.CloseFile())
	require.NoError(t, sess.CloseDir())
	require.NoError(t, sess.CloseDir())
	assert.True(t, sess.dirHasChanges("touched"))
	assert.False(t, sess.dirHasChanges("untouched"))

	newCommitID, err := sess.CloseEdit()
	require.NoError(t, err)
	newCommit, err := store.ReadCommit(newCommitID)
	require.NoError(t, err)
	assert.Equal(t, untouchedTreeID, treeEntryHash(t, store, newCommit.TreeHash, "untouched"))
}

func treeEntryHash(t *testing.T, store ObjectStore, treeID plumbing.Hash, name string) plumbing.Hash {
	t.Helper()
	tree, err := store.ReadTree(treeID)
	require.NoError(t, err)
	for _, e := range tree.Entries {
		if e.Name == name {
			return e.Hash
		}
	}
	t.Fatalf("entry %q not found", name)
	return plumbing.ZeroHash
}

func TestConcurrentCommitCausesOutOfDateWhenPathsOverlap(t *testing.T) {
	store, index := emptyRootFixture(t)
	locks := lock.NewTable()

	sess, err := BeginCommit(store, index, locks, identityResolver, "refs/heads/trunk", 0, "alice", "my commit", nil)
	require.NoError(t, err)
	require.NoError(t, sess.OpenRoot())
	require.NoError(t, sess.AddFile("a.txt", "", 0))
	require.NoError(t, sess.ApplyTextDelta(""))
	require.NoError(t, sess.TextDeltaChunk(svndiff.Encode(nil, []byte("mine"))))
	require.NoError(t, sess.TextDeltaEnd(""))
	require.NoError(t, sess.CloseFile())
	require.NoError(t, sess.CloseDir())

	// Simulate a concurrent commit landing first that also touches a.txt.
	concurrent, err := BeginCommit(store, index, locks, identityResolver, "refs/heads/trunk", 0, "bob", "racing commit", nil)
	require.NoError(t, err)
	require.NoError(t, concurrent.OpenRoot())
	require.NoError(t, concurrent.AddFile("a.txt", "", 0))
	require.NoError(t, concurrent.ApplyTextDelta(""))
	require.NoError(t, concurrent.TextDeltaChunk(svndiff.Encode(nil, []byte("theirs"))))
	require.NoError(t, concurrent.TextDeltaEnd(""))
	require.NoError(t, concurrent.CloseFile())
	require.NoError(t, concurrent.CloseDir())
	_, err = concurrent.CloseEdit()
	require.NoError(t, err)

	_, err = sess.CloseEdit()
	require.Error(t, err)
}

// gzipFileFixture seeds rev0 with one file whose stored blob is the given
// bytes, registered at path under the tracked ref, for tests that modify or
// copy an already-filtered file.
func gzipFileFixture(t *testing.T, path string, stored []byte) (*fakeStore, *fakeIndex, plumbing.Hash) {
	t.Helper()
	store := newFakeStore()
	blobID, err := store.WriteBlob(bytes.NewReader(stored))
	require.NoError(t, err)
	rootTree := &object.Tree{Entries: []object.TreeEntry{
		{Name: path, Mode: filemode.Regular, Hash: blobID},
	}}
	rootTreeID, err := store.WriteTree(rootTree)
	require.NoError(t, err)
	commit := &object.Commit{Message: "seed", TreeHash: rootTreeID}
	commitID, err := store.WriteCommit(commit)
	require.NoError(t, err)
	store.refs["refs/heads/trunk"] = commitID

	index := &fakeIndex{byRev: map[int64]revindex.CommitRecord{
		0: {Rev: 0, CommitID: commitID.String()},
	}}
	return store, index, blobID
}

// TestApplyTextDeltaDecodesFilteredBaseBeforeApplying covers the boundary
// scenario where a delta is applied to a file whose stored blob is
// gzip-compressed: the delta's base offsets must line up with the
// decompressed content, not the compressed bytes on disk.
func TestApplyTextDeltaDecodesFilteredBaseBeforeApplying(t *testing.T) {
	store, index, blobID := gzipFileFixture(t, "data.z", gzipBytes(t, "hello world"))
	locks := lock.NewTable()

	sess, err := BeginCommit(store, index, locks, gzipIfMarkedResolver, "refs/heads/trunk", 0, "alice", "edit filtered file", nil)
	require.NoError(t, err)
	require.NoError(t, sess.OpenRoot())
	require.NoError(t, sess.OpenFile("data.z", blobID))
	require.NoError(t, sess.ChangeProp("svnbridge:filter", "gzip"))
	require.NoError(t, sess.ApplyTextDelta(""))
	delta := svndiff.Encode([]byte("hello world"), []byte("hello there"))
	require.NoError(t, sess.TextDeltaChunk(delta))
	require.NoError(t, sess.TextDeltaEnd(""))
	require.NoError(t, sess.CloseFile())
	require.NoError(t, sess.CloseDir())

	newCommitID, err := sess.CloseEdit()
	require.NoError(t, err)

	commit, err := store.ReadCommit(newCommitID)
	require.NoError(t, err)
	tree, err := store.ReadTree(commit.TreeHash)
	require.NoError(t, err)
	rc, err := store.ReadBlob(tree.Entries[0].Hash)
	require.NoError(t, err)
	stored, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello there", gunzip(t, stored))
}

// TestApplyTextDeltaOnCopyResolvesFilteredCopySource covers the boundary
// scenario where a copied file also receives a delta in the same commit:
// the delta's base must be the copy source's decoded content, not nil and
// not its raw stored bytes.
func TestApplyTextDeltaOnCopyResolvesFilteredCopySource(t *testing.T) {
	store, index, _ := gzipFileFixture(t, "data.z", gzipBytes(t, "CONTENT_FOO"))
	locks := lock.NewTable()

	sess, err := BeginCommit(store, index, locks, gzipIfMarkedResolver, "refs/heads/trunk", 0, "alice", "copy with delta", nil)
	require.NoError(t, err)
	require.NoError(t, sess.OpenRoot())
	require.NoError(t, sess.AddFile("data2.z", "data.z", 0))
	require.NoError(t, sess.ChangeProp("svnbridge:filter", "gzip"))
	require.NoError(t, sess.ApplyTextDelta(""))
	delta := svndiff.Encode([]byte("CONTENT_FOO"), []byte("CONTENT_BAR"))
	require.NoError(t, sess.TextDeltaChunk(delta))
	require.NoError(t, sess.TextDeltaEnd(""))
	require.NoError(t, sess.CloseFile())
	require.NoError(t, sess.CloseDir())

	newCommitID, err := sess.CloseEdit()
	require.NoError(t, err)

	commit, err := store.ReadCommit(newCommitID)
	require.NoError(t, err)
	newEntry := treeEntryHash(t, store, commit.TreeHash, "data2.z")
	rc, err := store.ReadBlob(newEntry)
	require.NoError(t, err)
	stored, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "CONTENT_BAR", gunzip(t, stored))
}

// TestCloseFileWithoutDeltaReusesCopySourceRawBytes documents the current,
// simpler half of boundary scenario 6: a pure copy with no delta carries
// the source's stored bytes over unchanged. Re-encoding a pure copy through
// a newly assigned destination filter is not modeled here; commitbuilder has
// no view of a destination path's .gitattributes-derived filter unless the
// session explicitly sets it via ChangeProp, see DESIGN.md.
func TestCloseFileWithoutDeltaReusesCopySourceRawBytes(t *testing.T) {
	store, index, _ := gzipFileFixture(t, "data.z", gzipBytes(t, "CONTENT_FOO"))
	locks := lock.NewTable()

	sess, err := BeginCommit(store, index, locks, gzipIfMarkedResolver, "refs/heads/trunk", 0, "alice", "pure copy", nil)
	require.NoError(t, err)
	require.NoError(t, sess.OpenRoot())
	require.NoError(t, sess.AddFile("data2.z", "data.z", 0))
	require.NoError(t, sess.CloseFile())
	require.NoError(t, sess.CloseDir())

	newCommitID, err := sess.CloseEdit()
	require.NoError(t, err)

	commit, err := store.ReadCommit(newCommitID)
	require.NoError(t, err)
	newEntry := treeEntryHash(t, store, commit.TreeHash, "data2.z")
	rc, err := store.ReadBlob(newEntry)
	require.NoError(t, err)
	stored, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "CONTENT_FOO", gunzip(t, stored))
}

// TestCopyWithDeltaThatEmptiesFileIsNotReplacedBySourceContent guards
// against treating a delta's legitimate empty result the same as "no
// delta was ever applied": emptying a copied file must commit an empty
// blob, not silently fall back to the copy source's original bytes.
func TestCopyWithDeltaThatEmptiesFileIsNotReplacedBySourceContent(t *testing.T) {
	store, index := emptyRootFixture(t)
	locks := lock.NewTable()

	setup, err := BeginCommit(store, index, locks, identityResolver, "refs/heads/trunk", 0, "alice", "seed", nil)
	require.NoError(t, err)
	require.NoError(t, setup.OpenRoot())
	require.NoError(t, setup.AddFile("source.txt", "", 0))
	require.NoError(t, setup.ApplyTextDelta(""))
	require.NoError(t, setup.TextDeltaChunk(svndiff.Encode(nil, []byte("not empty"))))
	require.NoError(t, setup.TextDeltaEnd(""))
	require.NoError(t, setup.CloseFile())
	require.NoError(t, setup.CloseDir())
	seedCommitID, err := setup.CloseEdit()
	require.NoError(t, err)
	index.byRev[1] = revindex.CommitRecord{Rev: 1, CommitID: seedCommitID.String()}

	sess, err := BeginCommit(store, index, locks, identityResolver, "refs/heads/trunk", 1, "bob", "copy then empty", nil)
	require.NoError(t, err)
	require.NoError(t, sess.OpenRoot())
	require.NoError(t, sess.AddFile("copy.txt", "source.txt", 1))
	require.NoError(t, sess.ApplyTextDelta(""))
	require.NoError(t, sess.TextDeltaChunk(svndiff.Encode([]byte("not empty"), nil)))
	require.NoError(t, sess.TextDeltaEnd(""))
	require.NoError(t, sess.CloseFile())
	require.NoError(t, sess.CloseDir())

	newCommitID, err := sess.CloseEdit()
	require.NoError(t, err)
	commit, err := store.ReadCommit(newCommitID)
	require.NoError(t, err)
	copyBlobID := treeEntryHash(t, store, commit.TreeHash, "copy.txt")
	rc, err := store.ReadBlob(copyBlobID)
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Empty(t, content)
}

// TestCommitOrderOfFileAndAttributesDoesNotAffectFinalTree covers the
// mixed-order boundary scenarios: whether a file or its .gitattributes is
// added first in the same commit, materializeTree only cares about the
// final set of pending changes, so both orders produce the same tree.
func TestCommitOrderOfFileAndAttributesDoesNotAffectFinalTree(t *testing.T) {
	runOrder := func(t *testing.T, fileFirst bool) plumbing.Hash {
		store, index := emptyRootFixture(t)
		locks := lock.NewTable()
		sess, err := BeginCommit(store, index, locks, identityResolver, "refs/heads/trunk", 0, "alice", "mixed order", nil)
		require.NoError(t, err)
		require.NoError(t, sess.OpenRoot())

		addFile := func() {
			require.NoError(t, sess.AddFile("data.z", "", 0))
			require.NoError(t, sess.ApplyTextDelta(""))
			require.NoError(t, sess.TextDeltaChunk(svndiff.Encode(nil, []byte("CONTENT_FOO"))))
			require.NoError(t, sess.TextDeltaEnd(""))
			require.NoError(t, sess.CloseFile())
		}
		addAttrs := func() {
			require.NoError(t, sess.AddFile(".gitattributes", "", 0))
			require.NoError(t, sess.ApplyTextDelta(""))
			require.NoError(t, sess.TextDeltaChunk(svndiff.Encode(nil, []byte("*.z filter=gzip\n"))))
			require.NoError(t, sess.TextDeltaEnd(""))
			require.NoError(t, sess.CloseFile())
		}
		if fileFirst {
			addFile()
			addAttrs()
		} else {
			addAttrs()
			addFile()
		}
		require.NoError(t, sess.CloseDir())
		commitID, err := sess.CloseEdit()
		require.NoError(t, err)
		commit, err := store.ReadCommit(commitID)
		require.NoError(t, err)
		return commit.TreeHash
	}

	treeFileFirst := runOrder(t, true)
	treeAttrsFirst := runOrder(t, false)
	assert.Equal(t, treeFileFirst, treeAttrsFirst)
}
