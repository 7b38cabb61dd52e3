// Package gitstore is the Git object store collaborator: content-addressed
// blob/tree/commit read and write, ref read, and compare-and-swap ref
// update. It wraps github.com/go-git/go-git/v5 behind a thin layer so the
// rest of the bridge drives it without knowing the storage backend.
package gitstore

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/rcowham/gitsvnbridge/errdefs"
)

// Store wraps a go-git storage.Storer (a filesystem- or memory-backed odb)
// with the read/write/CAS surface the rest of the bridge needs.
type Store struct {
	storer storage.Storer
}

// OpenFilesystem opens (bare or non-bare) the Git repository rooted at dir.
func OpenFilesystem(dir string) (*Store, error) {
	fs := osfs.New(dir)
	dotGit, err := fs.Chroot(".git")
	if err != nil {
		// bare repository: the object database is at the root.
		dotGit = fs
	}
	st := filesystem.NewStorage(dotGit, cache.NewObjectLRUDefault())
	return &Store{storer: st}, nil
}

// OpenMemory is used by tests and by the report driver's replay-to-empty-tree
// scratch computations.
func OpenMemory() *Store {
	return &Store{storer: memory.NewStorage()}
}

func (s *Store) ReadBlob(id plumbing.Hash) (io.ReadCloser, error) {
	obj, err := s.storer.EncodedObject(plumbing.BlobObject, id)
	if err != nil {
		return nil, errdefs.IOError("read-blob", err)
	}
	blob, err := object.DecodeBlob(s.repoStorer(), obj)
	if err != nil {
		return nil, errdefs.IOError("decode-blob", err)
	}
	return blob.Reader()
}

func (s *Store) ReadTree(id plumbing.Hash) (*object.Tree, error) {
	obj, err := s.storer.EncodedObject(plumbing.TreeObject, id)
	if err != nil {
		return nil, errdefs.IOError("read-tree", err)
	}
	tree := &object.Tree{}
	if err := tree.Decode(obj); err != nil {
		return nil, errdefs.IOError("decode-tree", err)
	}
	return tree, nil
}

func (s *Store) ReadCommit(id plumbing.Hash) (*object.Commit, error) {
	obj, err := s.storer.EncodedObject(plumbing.CommitObject, id)
	if err != nil {
		return nil, errdefs.IOError("read-commit", err)
	}
	commit := &object.Commit{}
	if err := commit.Decode(obj); err != nil {
		return nil, errdefs.IOError("decode-commit", err)
	}
	return commit, nil
}

// WriteBlob stores r's content as a new blob object and returns its id.
func (s *Store) WriteBlob(r io.Reader) (plumbing.Hash, error) {
	obj := s.storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, errdefs.IOError("write-blob", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, errdefs.IOError("write-blob", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, errdefs.IOError("write-blob", err)
	}
	id, err := s.storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, errdefs.IOError("write-blob", err)
	}
	return id, nil
}

// TreeEntryInput is a flattened entry used by NewTree to build a tree
// object without callers needing to know go-git's entry-ordering rules.
type TreeEntryInput struct {
	Name string
	Mode filemode.FileMode
	Hash plumbing.Hash
}

// NewTree assembles a *object.Tree from a flat, unordered entry list,
// applying git's tree entry sort order (directories sort as if their name
// had a trailing "/"). Callers pass the result to WriteTree.
func NewTree(entries []TreeEntryInput) *object.Tree {
	sorted := make([]TreeEntryInput, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return treeSortKey(sorted[i]) < treeSortKey(sorted[j])
	})
	tree := &object.Tree{}
	for _, e := range sorted {
		tree.Entries = append(tree.Entries, object.TreeEntry{Name: e.Name, Mode: e.Mode, Hash: e.Hash})
	}
	return tree
}

// treeSortKey implements git's tree entry ordering: directories sort as if
// their name had a trailing "/".
func treeSortKey(e TreeEntryInput) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

// WriteTree stores t as a new tree object and returns its id.
func (s *Store) WriteTree(t *object.Tree) (plumbing.Hash, error) {
	obj := s.storer.NewEncodedObject()
	obj.SetType(plumbing.TreeObject)
	if err := t.Encode(obj); err != nil {
		return plumbing.ZeroHash, errdefs.IOError("write-tree", err)
	}
	return s.storer.SetEncodedObject(obj)
}

// WriteCommit stores c as a new commit object and returns its id.
func (s *Store) WriteCommit(c *object.Commit) (plumbing.Hash, error) {
	obj := s.storer.NewEncodedObject()
	obj.SetType(plumbing.CommitObject)
	if err := c.Encode(obj); err != nil {
		return plumbing.ZeroHash, errdefs.IOError("write-commit", err)
	}
	return s.storer.SetEncodedObject(obj)
}

func (s *Store) ResolveRef(name string) (plumbing.Hash, error) {
	ref, err := s.storer.Reference(plumbing.ReferenceName(name))
	if err != nil {
		return plumbing.ZeroHash, errdefs.IOError("resolve-ref", err)
	}
	return ref.Hash(), nil
}

// CompareAndSwapRef atomically advances name from expected to new, failing
// if name's current value differs from expected. An expected ZeroHash means
// name must not exist yet. go-git's storage.Storer.CheckAndSetReference
// checks the old value when one is given.
func (s *Store) CompareAndSwapRef(name string, expected, new plumbing.Hash) error {
	refName := plumbing.ReferenceName(name)
	var oldRef *plumbing.Reference
	if expected != plumbing.ZeroHash {
		oldRef = plumbing.NewHashReference(refName, expected)
	} else if _, err := s.storer.Reference(refName); err == nil {
		return fmt.Errorf("compare-and-swap %s: %w", name, storage.ErrReferenceHasChanged)
	}
	newRef := plumbing.NewHashReference(refName, new)
	if err := s.storer.CheckAndSetReference(newRef, oldRef); err != nil {
		return fmt.Errorf("compare-and-swap %s: %w", name, err)
	}
	return nil
}

func (s *Store) repoStorer() storage.EncodedObjectStorer { return s.storer }
