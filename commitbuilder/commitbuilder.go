// Package commitbuilder implements the editor-session state machine: it
// accepts the SVN editor protocol's tree-shaped mutation stream
// (openRoot/openDir/addDir/addFile/applyTextDelta/closeFile/closeEdit)
// and materializes it into a single Git commit with a compare-and-swap
// update of the tracked ref.
//
// The in-flight session is an explicit stack of directory frames, tracking
// a flat map of pending per-path changes alongside it so the tree-shaped
// protocol input can still be validated and replayed cheaply.
package commitbuilder

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/rcowham/gitsvnbridge/errdefs"
	"github.com/rcowham/gitsvnbridge/filterchain"
	"github.com/rcowham/gitsvnbridge/journal"
	"github.com/rcowham/gitsvnbridge/lock"
	"github.com/rcowham/gitsvnbridge/node"
	"github.com/rcowham/gitsvnbridge/propsynth"
	"github.com/rcowham/gitsvnbridge/revindex"
	"github.com/rcowham/gitsvnbridge/svndiff"
)

// ObjectStore is the subset of gitstore.Store commitbuilder writes
// through.
type ObjectStore interface {
	ReadBlob(id plumbing.Hash) (io.ReadCloser, error)
	ReadTree(id plumbing.Hash) (*object.Tree, error)
	ReadCommit(id plumbing.Hash) (*object.Commit, error)
	WriteBlob(r io.Reader) (plumbing.Hash, error)
	WriteTree(t *object.Tree) (plumbing.Hash, error)
	WriteCommit(c *object.Commit) (plumbing.Hash, error)
	ResolveRef(name string) (plumbing.Hash, error)
	CompareAndSwapRef(name string, expected, new plumbing.Hash) error
}

// RevisionIndex is the subset of revindex.Index commitbuilder needs to
// translate a base revision to its commit id.
type RevisionIndex interface {
	Lookup(rev int64) (revindex.CommitRecord, error)
	Latest() (int64, error)
}

// FilterResolver maps synthesized properties to the filter chain that
// applies at a path, shared with vfs so both sides agree.
type FilterResolver func(props propsynth.PropertyMap) filterchain.Chain

const maxRebaseRetries = 3

// changeKind tags what happened to one path in this editor session.
type changeKind int

const (
	changeAdded changeKind = iota
	changeDeleted
	changeModified
	changeReplaced
)

type pendingChange struct {
	kind         changeKind
	isDir        bool
	content      []byte // files only; nil for directories and pure deletes
	contentSet   bool   // true once a delta has computed content, even an empty one
	props        propsynth.PropertyMap
	copyFromPath string
	copyFromRev  int64
}

// dirFrame is one level of the open-directory stack, used purely to
// validate editor-protocol nesting ("Open -> {Dir|File}* -> Closed")
// materialization reads pendingChanges directly, not this stack.
type dirFrame struct {
	path string
}

// fileFrame tracks one open file's delta-application state.
type fileFrame struct {
	path           string
	baseBlobID     plumbing.Hash
	baseChecksum   string
	deltaBuf       bytes.Buffer
	applyingDelta  bool
	isNew          bool
	copyFromPath   string
	copyFromRev    int64
}

type sessionState int

const (
	stateOpen sessionState = iota
	stateClosed
	stateAborted
)

// EditorSession is one in-flight commit being driven by the SVN editor
// protocol, opened by BeginCommit.
type EditorSession struct {
	store   ObjectStore
	index   RevisionIndex
	locks   *lock.Table
	resolve FilterResolver

	baseRev    int64
	baseCommit plumbing.Hash
	baseTree   plumbing.Hash
	refName    string
	message    string
	author     object.Signature
	lockTokens map[string]string

	state    sessionState
	dirStack []dirFrame
	openFile *fileFrame
	changes  map[string]*pendingChange // path (no leading slash) -> change
	touched  *node.Node                // every path this session has touched, for dirHasChanges
}

// touch records path as touched by this session. It is a set, not a tree
// of the session's final shape: a delete touches its path same as an add
// does, so a later dirHasChanges check on an ancestor directory still
// sees it.
func (s *EditorSession) touch(path string) {
	s.touched.AddFile(path)
}

// BeginCommit opens a new editor session rooted at baseRev. author is
// the authenticated session's user; message is the log message;
// lockTokens are the tokens the client supplied for any locked paths it
// intends to touch.
func BeginCommit(store ObjectStore, index RevisionIndex, locks *lock.Table, resolve FilterResolver,
	refName string, baseRev int64, authorName string, message string, lockTokens map[string]string) (*EditorSession, error) {

	rec, err := index.Lookup(baseRev)
	if err != nil {
		return nil, err
	}
	baseCommitID := plumbing.NewHash(rec.CommitID)
	commit, err := store.ReadCommit(baseCommitID)
	if err != nil {
		return nil, err
	}
	if resolve == nil {
		resolve = func(propsynth.PropertyMap) filterchain.Chain { return filterchain.Chain{filterchain.Identity{}} }
	}
	return &EditorSession{
		store: store, index: index, locks: locks, resolve: resolve,
		baseRev: baseRev, baseCommit: baseCommitID, baseTree: commit.TreeHash,
		refName: refName, message: message,
		author:     object.Signature{Name: authorName, Email: authorName + "@svnbridge", When: time.Now()},
		lockTokens: lockTokens,
		state:      stateOpen,
		changes:    map[string]*pendingChange{},
		touched:    node.NewNode("", false),
	}, nil
}

func (s *EditorSession) requireOpen(op string) error {
	if s.state != stateOpen {
		return errdefs.IllegalEditorState(op)
	}
	return nil
}

// OpenRoot begins the edit at the repository root.
func (s *EditorSession) OpenRoot() error {
	if err := s.requireOpen("open-root"); err != nil {
		return err
	}
	if len(s.dirStack) != 0 {
		return errdefs.IllegalEditorState("open-root")
	}
	s.dirStack = append(s.dirStack, dirFrame{path: ""})
	return nil
}

func (s *EditorSession) currentDir() (string, error) {
	if len(s.dirStack) == 0 {
		return "", errdefs.IllegalEditorState("no open directory")
	}
	return s.dirStack[len(s.dirStack)-1].path, nil
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// OpenDir descends into an existing directory for further edits.
func (s *EditorSession) OpenDir(name string) error {
	if err := s.requireOpen("open-dir"); err != nil {
		return err
	}
	parent, err := s.currentDir()
	if err != nil {
		return err
	}
	path := joinPath(parent, name)
	s.dirStack = append(s.dirStack, dirFrame{path: path})
	return nil
}

// AddDir creates a new directory, optionally copied from (copyFromPath,
// copyFromRev).
func (s *EditorSession) AddDir(name string, copyFromPath string, copyFromRev int64) error {
	if err := s.requireOpen("add-dir"); err != nil {
		return err
	}
	parent, err := s.currentDir()
	if err != nil {
		return err
	}
	path := joinPath(parent, name)
	s.changes[path] = &pendingChange{kind: changeAdded, isDir: true, copyFromPath: copyFromPath, copyFromRev: copyFromRev}
	s.touch(path)
	s.dirStack = append(s.dirStack, dirFrame{path: path})
	return nil
}

// CloseDir pops the current directory frame.
func (s *EditorSession) CloseDir() error {
	if err := s.requireOpen("close-dir"); err != nil {
		return err
	}
	if len(s.dirStack) == 0 {
		return errdefs.IllegalEditorState("close-dir")
	}
	s.dirStack = s.dirStack[:len(s.dirStack)-1]
	return nil
}

// DeleteEntry removes a path (file or directory) from the tree.
func (s *EditorSession) DeleteEntry(name string) error {
	if err := s.requireOpen("delete-entry"); err != nil {
		return err
	}
	parent, err := s.currentDir()
	if err != nil {
		return err
	}
	path := joinPath(parent, name)
	if violator, ok := s.locks.CheckTokens([]string{path}, s.lockTokens); !ok {
		return errdefs.LockDenied(violator)
	}
	s.changes[path] = &pendingChange{kind: changeDeleted}
	s.touch(path)
	return nil
}

// AddFile opens a new file for writing, optionally copied from
// (copyFromPath, copyFromRev) — if no delta is applied before CloseFile,
// the copy source's stored blob is reused verbatim.
func (s *EditorSession) AddFile(name string, copyFromPath string, copyFromRev int64) error {
	if err := s.requireOpen("add-file"); err != nil {
		return err
	}
	if s.openFile != nil {
		return errdefs.IllegalEditorState("add-file: file already open")
	}
	parent, err := s.currentDir()
	if err != nil {
		return err
	}
	path := joinPath(parent, name)
	s.openFile = &fileFrame{path: path, isNew: true, copyFromPath: copyFromPath, copyFromRev: copyFromRev}
	return nil
}

// OpenFile opens an existing file for modification.
func (s *EditorSession) OpenFile(name string, baseBlobID plumbing.Hash) error {
	if err := s.requireOpen("open-file"); err != nil {
		return err
	}
	if s.openFile != nil {
		return errdefs.IllegalEditorState("open-file: file already open")
	}
	parent, err := s.currentDir()
	if err != nil {
		return err
	}
	path := joinPath(parent, name)
	if violator, ok := s.locks.CheckTokens([]string{path}, s.lockTokens); !ok {
		return errdefs.LockDenied(violator)
	}
	s.openFile = &fileFrame{path: path, baseBlobID: baseBlobID}
	return nil
}

// ChangeProp records a property change on the currently open file or
// directory. Tracked SVN properties that map to .gitattributes semantics
// are reconciled at CloseEdit.
func (s *EditorSession) ChangeProp(key, value string) error {
	if err := s.requireOpen("change-prop"); err != nil {
		return err
	}
	var path string
	if s.openFile != nil {
		path = s.openFile.path
	} else {
		var err error
		path, err = s.currentDir()
		if err != nil {
			return err
		}
	}
	ch := s.changes[path]
	if ch == nil {
		ch = &pendingChange{kind: changeModified, isDir: s.openFile == nil}
		s.changes[path] = ch
		s.touch(path)
	}
	if ch.props == nil {
		ch.props = propsynth.PropertyMap{}
	}
	ch.props[key] = value
	return nil
}

// ApplyTextDelta begins a delta against baseChecksum.
func (s *EditorSession) ApplyTextDelta(baseChecksum string) error {
	if err := s.requireOpen("apply-text-delta"); err != nil {
		return err
	}
	if s.openFile == nil {
		return errdefs.IllegalEditorState("apply-text-delta: no open file")
	}
	s.openFile.baseChecksum = baseChecksum
	s.openFile.applyingDelta = true
	s.openFile.deltaBuf.Reset()
	return nil
}

// TextDeltaChunk appends one svndiff window's raw bytes.
func (s *EditorSession) TextDeltaChunk(b []byte) error {
	if s.openFile == nil || !s.openFile.applyingDelta {
		return errdefs.IllegalEditorState("text-delta-chunk")
	}
	s.openFile.deltaBuf.Write(b)
	return nil
}

// TextDeltaEnd finishes a delta, validating resultChecksum against the
// reconstructed content.
func (s *EditorSession) TextDeltaEnd(resultChecksum string) error {
	if s.openFile == nil || !s.openFile.applyingDelta {
		return errdefs.IllegalEditorState("text-delta-end")
	}
	base, err := s.deltaBaseContent(s.openFile)
	if err != nil {
		return err
	}
	applied, err := svndiff.Apply(base, s.openFile.deltaBuf.Bytes())
	if err != nil {
		return errdefs.PropertyConflict(s.openFile.path, err)
	}
	if resultChecksum != "" {
		got := fmt.Sprintf("%x", md5.Sum(applied))
		if got != resultChecksum {
			return fmt.Errorf("commitbuilder: result checksum mismatch for %s: got %s want %s", s.openFile.path, got, resultChecksum)
		}
	}
	ch := s.changes[s.openFile.path]
	if ch == nil {
		kind := changeModified
		if s.openFile.isNew {
			kind = changeAdded
		}
		ch = &pendingChange{kind: kind}
		s.changes[s.openFile.path] = ch
		s.touch(s.openFile.path)
	}
	ch.content = applied
	ch.contentSet = true
	ch.copyFromPath = s.openFile.copyFromPath
	ch.copyFromRev = s.openFile.copyFromRev
	s.openFile.applyingDelta = false
	return nil
}

// pathProps returns the explicit property changes accumulated for path in
// this session, the same map writeFileChange resolves a filter chain from.
func (s *EditorSession) pathProps(path string) propsynth.PropertyMap {
	if ch := s.changes[path]; ch != nil && ch.props != nil {
		return ch.props
	}
	return propsynth.PropertyMap{}
}

// deltaBaseContent resolves the post-filter bytes a delta is applied
// against: the copy source at its declared revision if this file is a
// fresh copy, or the currently open file's base blob otherwise, decoded
// through the path's filter chain the same way writeFileChange encodes
// through it on the way back out.
func (s *EditorSession) deltaBaseContent(f *fileFrame) ([]byte, error) {
	var raw []byte
	switch {
	case f.copyFromPath != "":
		content, err := s.copySourceContent(f.copyFromPath, f.copyFromRev)
		if err != nil {
			return nil, err
		}
		raw = content
	case f.baseBlobID == plumbing.ZeroHash:
		return nil, nil // new file with no prior content
	default:
		rc, err := s.store.ReadBlob(f.baseBlobID)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			return nil, errdefs.IOError("commitbuilder-delta-base", err)
		}
		raw = b
	}
	chain := s.resolve(s.pathProps(f.path))
	decoded, err := chain.Decode(raw)
	if err != nil {
		return nil, errdefs.IOError("commitbuilder-delta-base-decode", err)
	}
	return decoded, nil
}

// CloseFile finishes the currently open file. If no delta was ever
// applied and this is a copy, the copy source's stored blob is reused
// verbatim.
func (s *EditorSession) CloseFile() error {
	if err := s.requireOpen("close-file"); err != nil {
		return err
	}
	if s.openFile == nil {
		return errdefs.IllegalEditorState("close-file: no open file")
	}
	f := s.openFile
	if _, exists := s.changes[f.path]; !exists {
		kind := changeModified
		if f.isNew {
			kind = changeAdded
		}
		s.changes[f.path] = &pendingChange{kind: kind, copyFromPath: f.copyFromPath, copyFromRev: f.copyFromRev}
		s.touch(f.path)
	}
	s.openFile = nil
	return nil
}

// AbortEdit discards the whole session; nothing written so far is
// reachable from any ref, per DESIGN.md's filter-error rollback policy.
func (s *EditorSession) AbortEdit() {
	s.state = stateAborted
}

// CloseEdit materializes the accumulated changes into Git objects and
// advances refName with a bounded-retry compare-and-swap. It returns the
// new commit id.
func (s *EditorSession) CloseEdit() (plumbing.Hash, error) {
	if err := s.requireOpen("close-edit"); err != nil {
		return plumbing.ZeroHash, err
	}
	if err := s.reconcilePropertyConflicts(); err != nil {
		return plumbing.ZeroHash, err
	}

	expectedParent := s.baseCommit
	attempt := 0
	for {
		newTree, err := s.materializeTree(s.baseTree, "")
		if err != nil {
			return plumbing.ZeroHash, err
		}
		commitObj := &object.Commit{
			Author: s.author, Committer: s.author,
			Message:      s.message,
			TreeHash:     newTree,
			ParentHashes: []plumbing.Hash{expectedParent},
		}
		newCommitID, err := s.store.WriteCommit(commitObj)
		if err != nil {
			return plumbing.ZeroHash, err
		}

		current, err := s.store.ResolveRef(s.refName)
		if err != nil {
			current = plumbing.ZeroHash
		}
		if err := s.store.CompareAndSwapRef(s.refName, expectedParent, newCommitID); err == nil {
			s.state = stateClosed
			return newCommitID, nil
		}

		attempt++
		if attempt > maxRebaseRetries {
			return plumbing.ZeroHash, errdefs.OutOfDate(s.touchedPaths())
		}
		conflicts, err := s.conflictingPaths(expectedParent, current)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		if len(conflicts) > 0 {
			return plumbing.ZeroHash, errdefs.OutOfDate(conflicts)
		}
		newCommit, err := s.store.ReadCommit(current)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		s.baseTree = newCommit.TreeHash
		expectedParent = current
	}
}

// reconcilePropertyConflicts enforces the rule that a property change on
// a tracked SVN property must be accompanied by a matching .gitattributes
// update in the same commit.
func (s *EditorSession) reconcilePropertyConflicts() error {
	for path, ch := range s.changes {
		if ch.props == nil {
			continue
		}
		for key := range ch.props {
			if !isAttributeTrackedProperty(key) {
				continue
			}
			gitattrPath := parentDir(path) + "/.gitattributes"
			if strings.HasPrefix(gitattrPath, "/") {
				gitattrPath = gitattrPath[1:]
			}
			if _, touched := s.changes[gitattrPath]; !touched {
				return errdefs.PropertyConflict(path, fmt.Errorf("setting %s requires updating %s in the same commit", key, gitattrPath))
			}
		}
	}
	return nil
}

func isAttributeTrackedProperty(key string) bool {
	switch key {
	case "svn:eol-style", "svn:mime-type":
		return true
	default:
		return false
	}
}

func parentDir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// touchedPaths lists every path this session changed, for OutOfDate
// reporting. Reads s.changes directly rather than s.touched: a directory
// touched before one of its own children is recorded as an IsFile leaf in
// the tree, which would shadow the child in node.GetFiles's recursion.
func (s *EditorSession) touchedPaths() []string {
	paths := make([]string, 0, len(s.changes))
	for p := range s.changes {
		paths = append(paths, p)
	}
	return paths
}

// ChangedPaths reports this session's pending changes as the changed-path
// set a revindex.CommitRecord.Changed batch entry needs, for the caller to
// record once CloseEdit succeeds.
func (s *EditorSession) ChangedPaths() []journal.ChangedPath {
	out := make([]journal.ChangedPath, 0, len(s.changes))
	for path, ch := range s.changes {
		action := journal.ActionModified
		switch ch.kind {
		case changeAdded:
			action = journal.ActionAdded
		case changeDeleted:
			action = journal.ActionDeleted
		case changeReplaced:
			action = journal.ActionReplaced
		}
		copyFromRev := ch.copyFromRev
		if ch.copyFromPath == "" {
			copyFromRev = -1
		}
		out = append(out, journal.ChangedPath{
			Path: path, Action: action,
			CopyFromPath: ch.copyFromPath, CopyFromRev: copyFromRev,
		})
	}
	return out
}

// conflictingPaths diffs oldParent's tree against newHead's tree and
// reports which of this session's touched paths differ between them —
// those are genuine conflicts a three-way merge cannot silently resolve.
func (s *EditorSession) conflictingPaths(oldParent, newHead plumbing.Hash) ([]string, error) {
	oldCommit, err := s.store.ReadCommit(oldParent)
	if err != nil {
		return nil, err
	}
	newCommit, err := s.store.ReadCommit(newHead)
	if err != nil {
		return nil, err
	}
	var conflicts []string
	for path := range s.changes {
		oldBlob, oldErr := resolveBlob(s.store, oldCommit.TreeHash, path)
		newBlob, newErr := resolveBlob(s.store, newCommit.TreeHash, path)
		if oldErr == nil && newErr == nil && oldBlob == newBlob {
			continue
		}
		if oldErr != nil && newErr != nil {
			continue // absent in both: no conflict
		}
		conflicts = append(conflicts, path)
	}
	return conflicts, nil
}

func resolveBlob(store ObjectStore, treeID plumbing.Hash, path string) (plumbing.Hash, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	cur := treeID
	for _, seg := range segments {
		tree, err := store.ReadTree(cur)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		found := false
		for _, e := range tree.Entries {
			if e.Name == seg {
				cur = e.Hash
				found = true
				break
			}
		}
		if !found {
			return plumbing.ZeroHash, errdefs.PathNotFound(path)
		}
	}
	return cur, nil
}

// materializeTree recursively rebuilds the tree at dirPath, applying this
// session's pendingChanges, writing new Git tree objects bottom-up.
// Empty directories are dropped (Git has no empty trees) except the root.
func (s *EditorSession) materializeTree(baseTreeID plumbing.Hash, dirPath string) (plumbing.Hash, error) {
	baseEntries := map[string]object.TreeEntry{}
	if baseTreeID != plumbing.ZeroHash {
		tree, err := s.store.ReadTree(baseTreeID)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		for _, e := range tree.Entries {
			baseEntries[e.Name] = e
		}
	}

	names := map[string]bool{}
	for name := range baseEntries {
		names[name] = true
	}
	for path, ch := range s.changes {
		if parentDir(path) != dirPath {
			continue
		}
		name := baseName(path)
		if ch.kind == changeDeleted {
			delete(baseEntries, name)
			delete(names, name)
			continue
		}
		names[name] = true
	}

	var out []object.TreeEntry
	for name := range names {
		childPath := joinPath(dirPath, name)
		change, isNew := s.changes[childPath]
		if isNew && change.kind == changeDeleted {
			continue
		}
		if isNew && change.isDir {
			subTreeID, err := s.materializeTree(plumbing.ZeroHash, childPath)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			if subTreeID == plumbing.ZeroHash {
				continue // dropped empty directory
			}
			out = append(out, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: subTreeID})
			continue
		}
		if base, ok := baseEntries[name]; ok && base.Mode == filemode.Dir && !s.dirHasChanges(childPath) {
			out = append(out, base)
			continue
		}
		if base, ok := baseEntries[name]; ok && base.Mode == filemode.Dir {
			subTreeID, err := s.materializeTree(base.Hash, childPath)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			if subTreeID == plumbing.ZeroHash {
				continue
			}
			out = append(out, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: subTreeID})
			continue
		}
		if isNew {
			blobID, mode, err := s.writeFileChange(childPath, change)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			out = append(out, object.TreeEntry{Name: name, Mode: mode, Hash: blobID})
			continue
		}
		if base, ok := baseEntries[name]; ok {
			out = append(out, base)
		}
	}

	if len(out) == 0 && dirPath != "" {
		return plumbing.ZeroHash, nil
	}
	tree := &object.Tree{}
	for _, e := range out {
		tree.Entries = append(tree.Entries, e)
	}
	return s.store.WriteTree(tree)
}

func baseName(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

// dirHasChanges reports whether any path under dirPath (dirPath itself
// included) was touched this session, via a tree lookup instead of a scan
// of every change.
func (s *EditorSession) dirHasChanges(dirPath string) bool {
	return s.touched.Lookup(dirPath) != nil
}

func (s *EditorSession) writeFileChange(path string, ch *pendingChange) (plumbing.Hash, filemode.FileMode, error) {
	content := ch.content
	if !ch.contentSet && ch.copyFromPath != "" {
		raw, err := s.copySourceContent(ch.copyFromPath, ch.copyFromRev)
		if err != nil {
			return plumbing.ZeroHash, 0, err
		}
		content = raw
	}
	props := ch.props
	if props == nil {
		props = propsynth.PropertyMap{}
	}
	chain := s.resolve(props)
	stored, err := chain.Encode(content)
	if err != nil {
		s.state = stateAborted
		return plumbing.ZeroHash, 0, errdefs.IOError("commitbuilder-encode", err)
	}
	id, err := s.store.WriteBlob(bytes.NewReader(stored))
	if err != nil {
		return plumbing.ZeroHash, 0, err
	}
	return id, filemode.Regular, nil
}

func (s *EditorSession) copySourceContent(copyFromPath string, copyFromRev int64) ([]byte, error) {
	rec, err := s.index.Lookup(copyFromRev)
	if err != nil {
		return nil, err
	}
	commit, err := s.store.ReadCommit(plumbing.NewHash(rec.CommitID))
	if err != nil {
		return nil, err
	}
	blobID, err := resolveBlob(s.store, commit.TreeHash, copyFromPath)
	if err != nil {
		return nil, err
	}
	rc, err := s.store.ReadBlob(blobID)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
