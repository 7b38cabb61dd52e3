package session

import (
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/rcowham/gitsvnbridge/commitbuilder"
	"github.com/rcowham/gitsvnbridge/errdefs"
)

// editorSession wraps a commitbuilder.EditorSession with the directory
// stack the server needs to resolve a client-declared open-file name back
// to a full path (commitbuilder itself keeps an equivalent stack, but
// does not export it — the server needs its own copy only to look up the
// base blob a checksum-only open-file refers to).
type editorSession struct {
	cb       *commitbuilder.EditorSession
	baseRev  int64
	dirStack []string
}

func (e *editorSession) currentPath(name string) string {
	if len(e.dirStack) == 0 {
		return name
	}
	dir := e.dirStack[len(e.dirStack)-1]
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// driveIncomingEdit reads the client-driven editor sub-protocol for a
// commit (the client describes its tree of changes; the server never
// replies mid-edit) and applies each operation to sess, returning once
// close-edit succeeds.
func (c *connection) driveIncomingEdit(sess *editorSession) (plumbing.Hash, error) {
	for {
		word, args, err := readCommand(c.r)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		if word == "close-edit" {
			return sess.cb.CloseEdit()
		}
		if err := c.applyEditOp(sess, word, args); err != nil {
			return plumbing.ZeroHash, err
		}
	}
}

func (c *connection) applyEditOp(sess *editorSession, word string, args []value) error {
	switch word {
	case "open-root":
		sess.dirStack = append(sess.dirStack, "")
		return sess.cb.OpenRoot()
	case "delete-entry":
		return sess.cb.DeleteEntry(args[0].asString())
	case "add-dir":
		name := args[0].asString()
		path, rev := copyFromArgs(args, 1)
		sess.dirStack = append(sess.dirStack, sess.currentPath(name))
		return sess.cb.AddDir(name, path, rev)
	case "open-dir":
		name := args[0].asString()
		sess.dirStack = append(sess.dirStack, sess.currentPath(name))
		return sess.cb.OpenDir(name)
	case "close-dir":
		if len(sess.dirStack) > 0 {
			sess.dirStack = sess.dirStack[:len(sess.dirStack)-1]
		}
		return sess.cb.CloseDir()
	case "add-file":
		path, rev := copyFromArgs(args, 1)
		return sess.cb.AddFile(args[0].asString(), path, rev)
	case "open-file":
		name := args[0].asString()
		baseBlobID, err := c.resolveBaseBlob(sess, name)
		if err != nil {
			return err
		}
		return sess.cb.OpenFile(name, baseBlobID)
	case "change-prop":
		return sess.cb.ChangeProp(args[0].asString(), args[1].asString())
	case "apply-textdelta":
		return sess.cb.ApplyTextDelta(args[0].asString())
	case "textdelta-chunk":
		return sess.cb.TextDeltaChunk(args[0].str)
	case "textdelta-end":
		return sess.cb.TextDeltaEnd(valueOr(args, 0, ""))
	case "close-file":
		return sess.cb.CloseFile()
	case "abort-edit":
		sess.cb.AbortEdit()
		return errdefs.Internal("abort-edit", nil)
	default:
		return errdefs.MalformedFrame("edit-op", nil)
	}
}

// copyFromArgs decodes the optional (copyFromPath:str copyFromRev:num)
// pair AddDir/AddFile accept, represented on the wire as a list that is
// empty when the entry is not a copy.
func copyFromArgs(args []value, idx int) (string, int64) {
	if idx >= len(args) || len(args[idx].list) < 2 {
		return "", 0
	}
	return args[idx].list[0].asString(), args[idx].list[1].num
}

func valueOr(args []value, idx int, def string) string {
	if idx >= len(args) {
		return def
	}
	return args[idx].asString()
}

// resolveBaseBlob looks up the blob an open-file's declared base
// checksum should correspond to, by resolving the path against the
// editor session's starting revision — the client sends a checksum
// string, not a Git blob id, so the server must find the blob itself.
func (c *connection) resolveBaseBlob(sess *editorSession, name string) (plumbing.Hash, error) {
	path := sess.currentPath(name)
	node, err := c.repo.FS.Stat(sess.baseRev, path)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return node.BlobID, nil
}
