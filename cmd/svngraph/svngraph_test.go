package main

import (
	"path/filepath"
	"testing"

	"github.com/emicklei/dot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/gitsvnbridge/journal"
	"github.com/rcowham/gitsvnbridge/revindex"
)

func openTestIndex(t *testing.T) *revindex.Index {
	t.Helper()
	dir := t.TempDir()
	idx, err := revindex.Open(filepath.Join(dir, "index.db"), filepath.Join(dir, "wal.log"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestBuildAddsOneNodePerRevision(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Observe([]revindex.CommitRecord{
		{Rev: 1, CommitID: "aaaa", Author: "alice", UnixTime: 1000, Message: "init",
			Changed: []journal.ChangedPath{{Path: "/trunk/a.txt", Action: journal.ActionAdded, CopyFromRev: -1}}},
		{Rev: 2, CommitID: "bbbb", Author: "bob", UnixTime: 1001, Message: "second",
			Changed: []journal.ChangedPath{{Path: "/trunk/b.txt", Action: journal.ActionAdded, CopyFromRev: -1}}},
	}))

	g := newSvnGraph(nil, svnGraphOptions{})
	g.graph = dot.NewGraph(dot.Directed)
	require.NoError(t, g.Build(idx))
	assert.Len(t, g.nodes, 2)
}

func TestBuildAddsCopyFromEdge(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Observe([]revindex.CommitRecord{
		{Rev: 1, CommitID: "aaaa", Author: "alice", UnixTime: 1000, Message: "init",
			Changed: []journal.ChangedPath{{Path: "/trunk", Action: journal.ActionAdded, CopyFromRev: -1}}},
		{Rev: 2, CommitID: "bbbb", Author: "bob", UnixTime: 1001, Message: "branch",
			Changed: []journal.ChangedPath{{Path: "/branches/b1", Action: journal.ActionAdded, CopyFromPath: "/trunk", CopyFromRev: 1}}},
	}))

	g := newSvnGraph(nil, svnGraphOptions{})
	g.graph = dot.NewGraph(dot.Directed)
	require.NoError(t, g.Build(idx))
	assert.Len(t, g.nodes, 2)
	assert.Contains(t, g.graph.String(), "copy: /branches/b1")
}

func TestBuildRespectsRevWindow(t *testing.T) {
	idx := openTestIndex(t)
	require.NoError(t, idx.Observe([]revindex.CommitRecord{
		{Rev: 1, CommitID: "aaaa", Author: "alice", UnixTime: 1000, Message: "init"},
		{Rev: 2, CommitID: "bbbb", Author: "bob", UnixTime: 1001, Message: "second"},
		{Rev: 3, CommitID: "cccc", Author: "carol", UnixTime: 1002, Message: "third"},
	}))

	g := newSvnGraph(nil, svnGraphOptions{firstRev: 2, lastRev: 2})
	g.graph = dot.NewGraph(dot.Directed)
	require.NoError(t, g.Build(idx))
	assert.Len(t, g.nodes, 1)
	if _, ok := g.nodes[2]; !ok {
		t.Fatalf("expected revision 2 to have a node")
	}
}
