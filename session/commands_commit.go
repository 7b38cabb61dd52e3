package session

import (
	"context"
	"time"

	"github.com/rcowham/gitsvnbridge/commitbuilder"
	"github.com/rcowham/gitsvnbridge/errdefs"
	"github.com/rcowham/gitsvnbridge/revindex"
)

// handleCommit implements the client-driven commit editor: read the log
// message and any lock tokens the client is about to spend, open a
// commitbuilder.EditorSession rooted at the latest revision, drive the
// editor sub-protocol, and on CloseEdit record the new revision.
func handleCommit(ctx context.Context, c *connection, args []value) error {
	if len(args) < 1 {
		return errdefs.MalformedFrame("commit", nil)
	}
	message := args[0].asString()
	lockTokens := map[string]string{}
	if len(args) > 1 {
		for _, pair := range args[1].list {
			if len(pair.list) < 2 {
				continue
			}
			lockTokens[c.absPath(pair.list[0].asString())] = pair.list[1].asString()
		}
	}

	baseRev, err := c.repo.Index.Latest()
	if err != nil {
		return err
	}

	cb, err := commitbuilder.BeginCommit(c.repo.Store, c.repo.Index, c.repo.Locks, c.repo.Resolve,
		c.repo.RefName, baseRev, c.user, message, lockTokens)
	if err != nil {
		return err
	}
	sess := &editorSession{cb: cb, baseRev: baseRev}

	if err := writeSuccess(c.w, nil); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return err
	}

	newCommit, err := c.driveIncomingEdit(sess)
	if err != nil {
		return err
	}

	// CloseEdit may have rebased onto a newer parent if another commit won
	// the race for baseRev, so the new revision is derived from whatever
	// the index now considers latest rather than the original baseRev.
	committedOn, err := c.repo.Index.Latest()
	if err != nil {
		return err
	}
	newRev := committedOn + 1
	now := time.Now()
	record := revindex.CommitRecord{
		Rev:      newRev,
		CommitID: newCommit.String(),
		Author:   c.user,
		UnixTime: now.Unix(),
		Message:  message,
		Changed:  cb.ChangedPaths(),
	}
	if err := c.repo.Index.Observe([]revindex.CommitRecord{record}); err != nil {
		return err
	}
	c.server.Metrics.CommitsTotal.Inc()

	return writeSuccess(c.w, func() error {
		c.w.Number(newRev)
		if err := c.w.String(now.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
		return c.w.String(c.user)
	})
}
