package session

import (
	"context"

	"github.com/rcowham/gitsvnbridge/errdefs"
	"github.com/rcowham/gitsvnbridge/svndiff"
	"github.com/rcowham/gitsvnbridge/vfs"
)

// handleGetFileRevs answers get-file-revs: for each revision in
// [startRev, endRev] that touched path, a (rev, props, delta-against-
// previous-revision) triple, the shape svn blame/annotate drives.
func handleGetFileRevs(ctx context.Context, c *connection, args []value) error {
	if len(args) < 1 {
		return errdefs.MalformedFrame("get-file-revs", nil)
	}
	path := c.absPath(args[0].asString())
	startRev := optNum(argOrEmpty(args, 1), 1)
	endRev, err := resolveRev(c.repo, optNum(argOrEmpty(args, 2), 0))
	if err != nil {
		return err
	}

	entries, err := c.repo.FS.Log(path, startRev, endRev, false, 0)
	if err != nil {
		return err
	}

	return writeSuccess(c.w, func() error {
		var prevContent []byte
		for _, e := range entries {
			rev := e.Rev
			node, err := c.repo.FS.Stat(rev, path)
			if err != nil {
				return err
			}
			if node.Kind != vfs.KindFile {
				continue
			}
			rc, err := c.repo.FS.Read(rev, path)
			if err != nil {
				return err
			}
			content, err := readAll(rc)
			rc.Close()
			if err != nil {
				return err
			}

			if err := c.w.ListBegin(); err != nil {
				return err
			}
			c.w.Number(rev)
			if err := writePropMap(c.w, node.Properties); err != nil {
				return err
			}
			if err := c.w.Bytes(svndiff.EncodeDiff(prevContent, content)); err != nil {
				return err
			}
			if err := c.w.ListEnd(); err != nil {
				return err
			}
			prevContent = content
		}
		return nil
	})
}
