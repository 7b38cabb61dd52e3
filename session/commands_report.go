package session

import (
	"context"

	"github.com/rcowham/gitsvnbridge/errdefs"
	"github.com/rcowham/gitsvnbridge/report"
)

// driveReport reads the client's report sub-protocol and replays it
// against targetRev/targetBasePath, writing the server-driven editor
// stream through a wireEditorSink. update/switch/status/diff all share
// this shape; replay/replay-range skip the client report entirely.
func (c *connection) driveReport(targetBasePath string, targetRev int64, sendAll bool) error {
	state, err := c.readReport()
	if err != nil {
		return err
	}
	sink := newWireEditorSink(c.w)
	driver := report.New(c.repo.FS, sendAll)
	if err := driver.Drive(state, c.basePath, targetRev, targetBasePath, sink); err != nil {
		return err
	}
	return c.w.Flush()
}

func handleUpdate(ctx context.Context, c *connection, args []value) error {
	if len(args) < 1 {
		return errdefs.MalformedFrame("update", nil)
	}
	targetRev, err := resolveRev(c.repo, optNum(args[0], 0))
	if err != nil {
		return err
	}
	targetBasePath := c.basePath
	if len(args) > 1 {
		targetBasePath = c.absPath(args[1].asString())
	}
	if err := writeSuccess(c.w, nil); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return err
	}
	return c.driveReport(targetBasePath, targetRev, false)
}

func handleSwitch(ctx context.Context, c *connection, args []value) error {
	if len(args) < 2 {
		return errdefs.MalformedFrame("switch", nil)
	}
	targetRev, err := resolveRev(c.repo, optNum(args[0], 0))
	if err != nil {
		return err
	}
	targetBasePath := c.absPath(args[1].asString())
	if err := writeSuccess(c.w, nil); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return err
	}
	return c.driveReport(targetBasePath, targetRev, false)
}

func handleStatus(ctx context.Context, c *connection, args []value) error {
	targetRev, err := resolveRev(c.repo, optNum(argOrEmpty(args, 0), 0))
	if err != nil {
		return err
	}
	if err := writeSuccess(c.w, nil); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return err
	}
	return c.driveReport(c.basePath, targetRev, false)
}

func handleDiff(ctx context.Context, c *connection, args []value) error {
	if len(args) < 1 {
		return errdefs.MalformedFrame("diff", nil)
	}
	targetRev, err := resolveRev(c.repo, optNum(args[0], 0))
	if err != nil {
		return err
	}
	targetBasePath := c.basePath
	if len(args) > 2 {
		targetBasePath = c.absPath(args[2].asString())
	}
	if err := writeSuccess(c.w, nil); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return err
	}
	return c.driveReport(targetBasePath, targetRev, true)
}

func handleReplay(ctx context.Context, c *connection, args []value) error {
	if len(args) < 1 {
		return errdefs.MalformedFrame("replay", nil)
	}
	rev := args[0].num
	return c.replayOne(rev)
}

func handleReplayRange(ctx context.Context, c *connection, args []value) error {
	if len(args) < 2 {
		return errdefs.MalformedFrame("replay-range", nil)
	}
	low, high := args[0].num, args[1].num
	for rev := low; rev <= high; rev++ {
		if err := writeSuccess(c.w, nil); err != nil {
			return err
		}
		if err := c.w.Flush(); err != nil {
			return err
		}
		if err := c.replayOne(rev); err != nil {
			return err
		}
	}
	return nil
}

// replayOne drives a single revision's changes (rev-1 to rev) as an editor
// stream rooted at the repository root; text deltas are sent against an
// empty base.
func (c *connection) replayOne(rev int64) error {
	state := report.NewState()
	state.SetPath("", rev-1, false, "", report.DepthInfinity)
	sink := newWireEditorSink(c.w)
	driver := report.New(c.repo.FS, true)
	if err := driver.Drive(state, "", rev, "", sink); err != nil {
		return err
	}
	return c.w.Flush()
}
