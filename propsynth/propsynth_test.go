package propsynth

import (
	"bytes"
	"io"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a tiny in-memory TreeReader built by hand for tests, so
// propsynth's logic can be exercised without depending on gitstore.
type fakeStore struct {
	trees map[plumbing.Hash]*object.Tree
	blobs map[plumbing.Hash][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{trees: map[plumbing.Hash]*object.Tree{}, blobs: map[plumbing.Hash][]byte{}}
}

func (f *fakeStore) ReadTree(id plumbing.Hash) (*object.Tree, error) {
	t, ok := f.trees[id]
	if !ok {
		return nil, assertErr("no such tree")
	}
	return t, nil
}

func (f *fakeStore) ReadBlob(id plumbing.Hash) (io.ReadCloser, error) {
	b, ok := f.blobs[id]
	if !ok {
		return nil, assertErr("no such blob")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func (f *fakeStore) addBlob(id plumbing.Hash, content string) {
	f.blobs[id] = []byte(content)
}

func (f *fakeStore) addTree(id plumbing.Hash, entries ...object.TreeEntry) {
	f.trees[id] = &object.Tree{Entries: entries}
}

func hash(s string) plumbing.Hash { return plumbing.ComputeHash(plumbing.BlobObject, []byte(s)) }

func TestPropertiesSynthesizesEOLStyleFromGitattributes(t *testing.T) {
	store := newFakeStore()

	attrsID := hash("attrs")
	store.addBlob(attrsID, "*.txt text\n*.bin binary\n")
	fileID := hash("file")
	store.addBlob(fileID, "hello")

	rootID := hash("root")
	store.addTree(rootID,
		object.TreeEntry{Name: ".gitattributes", Mode: filemode.Regular, Hash: attrsID},
		object.TreeEntry{Name: "a.txt", Mode: filemode.Regular, Hash: fileID},
		object.TreeEntry{Name: "b.bin", Mode: filemode.Regular, Hash: fileID},
	)

	synth, err := New(store, 16)
	require.NoError(t, err)

	commitID := hash("commit")
	props, err := synth.Properties(commitID, "a.txt", rootID, false)
	require.NoError(t, err)
	assert.Equal(t, "native", props["svn:eol-style"])

	props2, err := synth.Properties(commitID, "b.bin", rootID, false)
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", props2["svn:mime-type"])
	assert.NotContains(t, props2, "svn:eol-style")
}

func TestPropertiesSynthesizesIgnoreOnDirectory(t *testing.T) {
	store := newFakeStore()
	ignoreID := hash("ignore")
	store.addBlob(ignoreID, "*.log\nbuild/\n")

	rootID := hash("root2")
	store.addTree(rootID, object.TreeEntry{Name: ".gitignore", Mode: filemode.Regular, Hash: ignoreID})

	synth, err := New(store, 16)
	require.NoError(t, err)

	commitID := hash("commit2")
	props, err := synth.Properties(commitID, "", rootID, true)
	require.NoError(t, err)
	assert.Contains(t, props["svn:ignore"], "*.log")
}

func TestPropertiesSynthesizesFilterAttribute(t *testing.T) {
	store := newFakeStore()

	attrsID := hash("attrs-filter")
	store.addBlob(attrsID, "*.z filter=gzip\n")
	fileID := hash("file-filter")
	store.addBlob(fileID, "irrelevant")

	rootID := hash("root-filter")
	store.addTree(rootID,
		object.TreeEntry{Name: ".gitattributes", Mode: filemode.Regular, Hash: attrsID},
		object.TreeEntry{Name: "data.z", Mode: filemode.Regular, Hash: fileID},
		object.TreeEntry{Name: "data.txt", Mode: filemode.Regular, Hash: fileID},
	)

	synth, err := New(store, 16)
	require.NoError(t, err)
	commitID := hash("commit-filter")

	props, err := synth.Properties(commitID, "data.z", rootID, false)
	require.NoError(t, err)
	assert.Equal(t, "gzip", props["svnbridge:filter"])

	other, err := synth.Properties(commitID, "data.txt", rootID, false)
	require.NoError(t, err)
	assert.NotContains(t, other, "svnbridge:filter")
}

func TestPropertiesIsPureFunctionOfTree(t *testing.T) {
	store := newFakeStore()
	attrsID := hash("attrs2")
	store.addBlob(attrsID, "*.txt text\n")
	rootID := hash("root3")
	store.addTree(rootID, object.TreeEntry{Name: ".gitattributes", Mode: filemode.Regular, Hash: attrsID})

	synth, err := New(store, 16)
	require.NoError(t, err)
	commitID := hash("commit3")

	p1, err := synth.Properties(commitID, "a.txt", rootID, false)
	require.NoError(t, err)
	p2, err := synth.Properties(commitID, "a.txt", rootID, false)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}
