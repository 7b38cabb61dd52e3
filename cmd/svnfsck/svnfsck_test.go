package main

import (
	"fmt"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/gitsvnbridge/journal"
	"github.com/rcowham/gitsvnbridge/revindex"
)

type fakeStore struct {
	commits map[plumbing.Hash]*object.Commit
	trees   map[plumbing.Hash]*object.Tree
}

func newFakeStore() *fakeStore {
	return &fakeStore{commits: map[plumbing.Hash]*object.Commit{}, trees: map[plumbing.Hash]*object.Tree{}}
}

func (s *fakeStore) ReadCommit(id plumbing.Hash) (*object.Commit, error) {
	c, ok := s.commits[id]
	if !ok {
		return nil, fmt.Errorf("no such commit %s", id)
	}
	return c, nil
}

func (s *fakeStore) ReadTree(id plumbing.Hash) (*object.Tree, error) {
	t, ok := s.trees[id]
	if !ok {
		return nil, fmt.Errorf("no such tree %s", id)
	}
	return t, nil
}

func (s *fakeStore) addCommit(seed byte, treeID plumbing.Hash) plumbing.Hash {
	id := plumbing.NewHash(fmt.Sprintf("%040x", seed))
	s.commits[id] = &object.Commit{TreeHash: treeID}
	return id
}

type fakeIndex struct {
	byRev map[int64]revindex.CommitRecord
	latest int64
}

func (f *fakeIndex) Lookup(rev int64) (revindex.CommitRecord, error) {
	r, ok := f.byRev[rev]
	if !ok {
		return revindex.CommitRecord{}, fmt.Errorf("no such revision %d", rev)
	}
	return r, nil
}

func (f *fakeIndex) LookupCommit(id plumbing.Hash) (int64, error) {
	for rev, r := range f.byRev {
		if plumbing.NewHash(r.CommitID) == id {
			return rev, nil
		}
	}
	return 0, fmt.Errorf("no revision for commit %s", id)
}

func (f *fakeIndex) Latest() (int64, error) {
	return f.latest, nil
}

func TestCheckCleanHistoryReportsNothing(t *testing.T) {
	store := newFakeStore()
	treeID := plumbing.NewHash(fmt.Sprintf("%040x", 0xAA))
	store.trees[treeID] = &object.Tree{}
	commit1 := store.addCommit(1, treeID)
	commit2 := store.addCommit(2, treeID)

	index := &fakeIndex{latest: 2, byRev: map[int64]revindex.CommitRecord{
		1: {Rev: 1, CommitID: commit1.String()},
		2: {Rev: 2, CommitID: commit2.String(), Changed: []journal.ChangedPath{
			{Path: "/branches/b1", Action: journal.ActionAdded, CopyFromPath: "/trunk", CopyFromRev: 1},
		}},
	}}

	findings, err := NewChecker(store, index).Check(0, 0)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestCheckDetectsUnreadableCommit(t *testing.T) {
	store := newFakeStore()
	index := &fakeIndex{latest: 1, byRev: map[int64]revindex.CommitRecord{
		1: {Rev: 1, CommitID: plumbing.NewHash(fmt.Sprintf("%040x", 0xFF)).String()},
	}}

	findings, err := NewChecker(store, index).Check(0, 0)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Problem, "unreadable")
}

func TestCheckDetectsUnresolvedCopyFrom(t *testing.T) {
	store := newFakeStore()
	treeID := plumbing.NewHash(fmt.Sprintf("%040x", 0xAA))
	store.trees[treeID] = &object.Tree{}
	commit1 := store.addCommit(1, treeID)

	index := &fakeIndex{latest: 1, byRev: map[int64]revindex.CommitRecord{
		1: {Rev: 1, CommitID: commit1.String(), Changed: []journal.ChangedPath{
			{Path: "/branches/b1", Action: journal.ActionAdded, CopyFromPath: "/trunk", CopyFromRev: 5},
		}},
	}}

	findings, err := NewChecker(store, index).Check(0, 0)
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Problem, "out-of-range")
}

func TestCheckRespectsRevWindow(t *testing.T) {
	store := newFakeStore()
	treeID := plumbing.NewHash(fmt.Sprintf("%040x", 0xAA))
	store.trees[treeID] = &object.Tree{}
	commit1 := store.addCommit(1, treeID)

	index := &fakeIndex{latest: 2, byRev: map[int64]revindex.CommitRecord{
		1: {Rev: 1, CommitID: commit1.String()},
		2: {Rev: 2, CommitID: plumbing.NewHash(fmt.Sprintf("%040x", 0xFF)).String()},
	}}

	findings, err := NewChecker(store, index).Check(1, 1)
	require.NoError(t, err)
	assert.Empty(t, findings)
}
