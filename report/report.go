// Package report implements the report/editor driver: it replays a
// client's mixed-revision "report" (setPath/deletePath declarations)
// against a target revision and emits a depth-first, parent-before-children
// stream of editor operations describing the difference, for
// update/switch/diff/status.
package report

import (
	"crypto/md5"
	"io"
	"sort"
	"strings"

	"github.com/rcowham/gitsvnbridge/errdefs"
	"github.com/rcowham/gitsvnbridge/propsynth"
	"github.com/rcowham/gitsvnbridge/svndiff"
	"github.com/rcowham/gitsvnbridge/vfs"
)

// FSReader is the subset of vfs.FS the report driver reads through.
type FSReader interface {
	Stat(rev int64, path string) (vfs.Node, error)
	List(rev int64, path string) ([]vfs.DirectoryEntry, error)
	Read(rev int64, path string) (io.ReadCloser, error)
}

// Depth mirrors svn_depth_t, restricted to its four named values.
type Depth int

const (
	DepthEmpty Depth = iota
	DepthFiles
	DepthImmediates
	DepthInfinity
)

// childDepth reports what depth a directory's own children should be
// walked at, once this directory has itself been entered at depth d.
func childDepth(d Depth) Depth {
	if d == DepthInfinity {
		return DepthInfinity
	}
	return DepthEmpty
}

// pathEntry is one setPath declaration.
type pathEntry struct {
	rev        int64
	startEmpty bool
	lockToken  string
	depth      Depth
}

// State accumulates a client's setPath/deletePath report before Drive
// replays it.
type State struct {
	entries map[string]pathEntry
	deleted map[string]bool
}

// NewState builds an empty report state.
func NewState() *State {
	return &State{entries: map[string]pathEntry{}, deleted: map[string]bool{}}
}

// SetPath records that path (relative to the reported root) is present at
// rev in the client's working copy.
func (s *State) SetPath(path string, rev int64, startEmpty bool, lockToken string, depth Depth) {
	s.entries[path] = pathEntry{rev: rev, startEmpty: startEmpty, lockToken: lockToken, depth: depth}
	delete(s.deleted, path)
}

// DeletePath records that path is absent from the client's working copy.
func (s *State) DeletePath(path string) {
	s.deleted[path] = true
	delete(s.entries, path)
}

// resolve finds the longest declared ancestor of path (or path itself)
// and reports the revision/depth/startEmpty it should be diffed against.
func (s *State) resolve(path string) (pathEntry, bool) {
	for p := path; ; p = parentOf(p) {
		if s.deleted[p] {
			return pathEntry{}, false
		}
		if e, ok := s.entries[p]; ok {
			return e, true
		}
		if p == "" {
			return pathEntry{}, false
		}
	}
}

func parentOf(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

func joinPath(base, rel string) string {
	base = strings.Trim(base, "/")
	rel = strings.Trim(rel, "/")
	switch {
	case base == "":
		return rel
	case rel == "":
		return base
	default:
		return base + "/" + rel
	}
}

// EditorSink is the wire-facing editor driven by Drive. The session
// package implements this over the svn editor protocol's wire tuples.
type EditorSink interface {
	OpenRoot(rev int64) error
	DeleteEntry(path string) error
	AddDir(path string) error
	OpenDir(path string) error
	CloseDir() error
	AddFile(path string) error
	OpenFile(path string) error
	ChangeProp(key, value string) error
	ApplyTextDelta(baseChecksum string) error
	TextDeltaChunk(window []byte) error
	TextDeltaEnd() error
	CloseFile(textChecksum string) error
	CloseEdit() error
}

// Driver replays report State against a target tree.
type Driver struct {
	fs      FSReader
	sendAll bool
}

// New builds a Driver reading through fs. sendAll forces every delta's
// base to be empty content (svn's "send all data" mode) instead of the
// reported revision's content.
func New(fs FSReader, sendAll bool) *Driver {
	return &Driver{fs: fs, sendAll: sendAll}
}

// Drive walks state against targetRev rooted at targetBasePath (same as
// reportedBasePath for update, different for switch) and emits the editor
// operations describing the difference.
func (d *Driver) Drive(state *State, reportedBasePath string, targetRev int64, targetBasePath string, sink EditorSink) error {
	root, ok := state.entries[""]
	if !ok {
		return errdefs.Internal("report-drive", nil)
	}
	if err := sink.OpenRoot(root.rev); err != nil {
		return err
	}
	if err := d.diffEntry(state, "", reportedBasePath, targetRev, targetBasePath, sink, true, root.depth); err != nil {
		return err
	}
	if err := sink.CloseDir(); err != nil {
		return err
	}
	return sink.CloseEdit()
}

// diffEntry diffs one relative path. root is true only for the report
// root, whose openRoot/closeDir bracket is handled by Drive itself.
// inheritedDepth is the listing depth this path's parent decided its
// children should be walked at; it is overridden by relPath's own
// setPath depth when one was declared directly on relPath.
func (d *Driver) diffEntry(state *State, relPath, reportedBasePath string, targetRev int64, targetBasePath string, sink EditorSink, root bool, inheritedDepth Depth) error {
	entry, declared := state.resolve(relPath)
	_, declaredHere := state.entries[relPath]
	targetAbs := joinPath(targetBasePath, relPath)
	targetNode, err := d.fs.Stat(targetRev, targetAbs)
	if err != nil {
		return err
	}

	var reportedNode vfs.Node
	if declared && !entry.startEmpty {
		reportedAbs := joinPath(reportedBasePath, relPath)
		reportedNode, err = d.fs.Stat(entry.rev, reportedAbs)
		if err != nil {
			return err
		}
	} else {
		reportedNode = vfs.Node{Kind: vfs.KindAbsent}
	}

	if targetNode.Kind == vfs.KindAbsent {
		if reportedNode.Kind == vfs.KindAbsent {
			return nil
		}
		if root {
			return nil // the root itself can never be deleteEntry'd
		}
		return sink.DeleteEntry(relPath)
	}

	if reportedNode.Kind != vfs.KindAbsent && reportedNode.Kind != targetNode.Kind {
		if !root {
			if err := sink.DeleteEntry(relPath); err != nil {
				return err
			}
		}
		reportedNode = vfs.Node{Kind: vfs.KindAbsent}
	}

	depth := inheritedDepth
	if declaredHere {
		depth = entry.depth
	}

	if targetNode.Kind == vfs.KindDirectory {
		return d.diffDir(state, relPath, reportedBasePath, targetRev, targetBasePath, sink, reportedNode, targetNode, root, depth, entry, declared)
	}
	reportedAbs := joinPath(reportedBasePath, relPath)
	return d.diffFile(relPath, entry, reportedAbs, targetRev, targetAbs, reportedNode, targetNode, sink)
}

func (d *Driver) diffDir(state *State, relPath, reportedBasePath string, targetRev int64, targetBasePath string, sink EditorSink,
	reportedNode, targetNode vfs.Node, root bool, depth Depth, entry pathEntry, declared bool) error {

	wasAbsent := reportedNode.Kind != vfs.KindDirectory
	if !root {
		if wasAbsent {
			if err := sink.AddDir(relPath); err != nil {
				return err
			}
		} else if err := sink.OpenDir(relPath); err != nil {
			return err
		}
	}
	if propsDiffer(reportedNode.Properties, targetNode.Properties) {
		if err := emitPropChanges(reportedNode.Properties, targetNode.Properties, sink); err != nil {
			return err
		}
	}

	if depth != DepthEmpty {
		names := map[string]vfs.Kind{}
		targetChildren, err := d.fs.List(targetRev, joinPath(targetBasePath, relPath))
		if err != nil {
			return err
		}
		for _, c := range targetChildren {
			names[c.Name] = c.Kind
		}
		// Also visit children present only on the reported side, so a
		// file or directory removed in the target gets its deleteEntry.
		if !wasAbsent && declared && !entry.startEmpty {
			reportedChildren, err := d.fs.List(entry.rev, joinPath(reportedBasePath, relPath))
			if err != nil {
				return err
			}
			for _, c := range reportedChildren {
				if _, ok := names[c.Name]; !ok {
					names[c.Name] = c.Kind
				}
			}
		}
		sorted := make([]string, 0, len(names))
		for name, kind := range names {
			if depth == DepthFiles && kind == vfs.KindDirectory {
				continue
			}
			sorted = append(sorted, name)
		}
		sort.Strings(sorted)
		nextDepth := childDepth(depth)
		for _, name := range sorted {
			childRel := joinPath(relPath, name)
			if err := d.diffEntry(state, childRel, reportedBasePath, targetRev, targetBasePath, sink, false, nextDepth); err != nil {
				return err
			}
		}
	}

	if !root {
		return sink.CloseDir()
	}
	return nil
}

func (d *Driver) diffFile(relPath string, entry pathEntry, reportedAbs string, targetRev int64, targetAbs string, reportedNode, targetNode vfs.Node, sink EditorSink) error {
	wasAbsent := reportedNode.Kind != vfs.KindFile
	contentChanged := wasAbsent || reportedNode.MD5 != targetNode.MD5
	propsChanged := propsDiffer(reportedNode.Properties, targetNode.Properties)
	if !contentChanged && !propsChanged {
		return nil
	}

	if wasAbsent {
		if err := sink.AddFile(relPath); err != nil {
			return err
		}
	} else if err := sink.OpenFile(relPath); err != nil {
		return err
	}
	if propsChanged {
		if err := emitPropChanges(reportedNode.Properties, targetNode.Properties, sink); err != nil {
			return err
		}
	}
	textChecksum := ""
	if contentChanged {
		if err := d.sendTextDelta(entry, reportedAbs, targetRev, targetAbs, reportedNode, sink); err != nil {
			return err
		}
		textChecksum = hexDigest(targetNode.MD5)
	}
	return sink.CloseFile(textChecksum)
}

// sendTextDelta reads the reported revision's content (unless startEmpty
// or send-all mode forces an empty base) and the target revision's
// content, encodes the svndiff0 delta between them, and streams it
// through sink as a single window.
func (d *Driver) sendTextDelta(entry pathEntry, reportedAbs string, targetRev int64, targetAbs string, reportedNode vfs.Node, sink EditorSink) error {
	var base []byte
	baseChecksum := ""
	if !d.sendAll && reportedNode.Kind == vfs.KindFile {
		rc, err := d.fs.Read(entry.rev, reportedAbs)
		if err != nil {
			return err
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return errdefs.IOError("report-read-base", err)
		}
		base = raw
		baseChecksum = hexDigest(md5.Sum(base))
	}
	if err := sink.ApplyTextDelta(baseChecksum); err != nil {
		return err
	}

	rc, err := d.fs.Read(targetRev, targetAbs)
	if err != nil {
		return err
	}
	target, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return errdefs.IOError("report-read-target", err)
	}

	window := svndiff.EncodeDiff(base, target)
	if err := sink.TextDeltaChunk(window); err != nil {
		return err
	}
	return sink.TextDeltaEnd()
}

func propsDiffer(a, b propsynth.PropertyMap) bool {
	if len(a) != len(b) {
		return true
	}
	for k, v := range a {
		if b[k] != v {
			return true
		}
	}
	return false
}

func emitPropChanges(from, to propsynth.PropertyMap, sink EditorSink) error {
	for k, v := range to {
		if from[k] != v {
			if err := sink.ChangeProp(k, v); err != nil {
				return err
			}
		}
	}
	for k := range from {
		if _, ok := to[k]; !ok {
			if err := sink.ChangeProp(k, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

func hexDigest(sum [16]byte) string {
	const hex = "0123456789abcdef"
	out := make([]byte, 32)
	for i, b := range sum {
		out[i*2] = hex[b>>4]
		out[i*2+1] = hex[b&0xf]
	}
	return string(out)
}
