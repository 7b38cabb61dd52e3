package session

import (
	"context"

	"github.com/rcowham/gitsvnbridge/errdefs"
	"github.com/rcowham/gitsvnbridge/wire"
)

// commandHandler runs one command's body once the ACL check has passed,
// writing its own success reply (or returning an error for commandLoop to
// frame).
type commandHandler func(ctx context.Context, c *connection, args []value) error

var commandHandlers = map[string]commandHandler{
	"reparent":                handleReparent,
	"get-latest-rev":          handleGetLatestRev,
	"get-dated-rev":           handleGetDatedRev,
	"change-rev-prop":         handleChangeRevProp,
	"rev-proplist":            handleRevPropList,
	"rev-prop":                handleRevProp,
	"commit":                  handleCommit,
	"get-file":                handleGetFile,
	"get-dir":                 handleGetDir,
	"check-path":              handleCheckPath,
	"stat":                    handleStat,
	"get-file-revs":           handleGetFileRevs,
	"update":                  handleUpdate,
	"switch":                  handleSwitch,
	"status":                  handleStatus,
	"diff":                    handleDiff,
	"log":                     handleLog,
	"get-locations":           handleGetLocations,
	"get-location-segments":   handleGetLocationSegments,
	"get-mergeinfo":           handleGetMergeinfo,
	"lock":                    handleLock,
	"unlock":                  handleUnlock,
	"lock-many":               handleLockMany,
	"unlock-many":             handleUnlockMany,
	"get-lock":                handleGetLock,
	"get-locks":               handleGetLocks,
	"replay":                  handleReplay,
	"replay-range":            handleReplayRange,
}

// writeOps are the subset of commands the ACL oracle treats as "write".
var writeOps = map[string]bool{
	"commit": true, "lock": true, "unlock": true, "lock-many": true,
	"unlock-many": true, "change-rev-prop": true,
}

func aclOp(word string) string {
	if writeOps[word] {
		return "write"
	}
	return "read"
}

// commandLoop implements CommandLoop: read one "( word arg-list )" frame,
// run the ACL oracle, run the handler, frame the response, repeat until a
// fatal error or the connection closes.
func (c *connection) commandLoop(ctx context.Context) error {
	for {
		word, args, err := readCommand(c.r)
		if err != nil {
			if e, ok := errdefs.As(err); ok && !e.Kind.Fatal() {
				if werr := writeFailure(c.w, e); werr != nil {
					return werr
				}
				continue
			}
			return err
		}

		handler, ok := commandHandlers[word]
		if !ok {
			if werr := writeFailure(c.w, errdefs.UnsupportedCapability(word)); werr != nil {
				return werr
			}
			continue
		}
		c.server.Metrics.CommandsTotal.WithLabelValues(word).Inc()

		path := c.absPath(firstPathArg(args))
		if word == "commit" {
			path = c.absPath("")
		}
		allowed, err := c.server.ACL.Check(ctx, c.user, c.repo.Name, aclOp(word), path, nil)
		if err != nil {
			return err
		}
		if !allowed {
			if werr := writeFailure(c.w, errdefs.NotAuthorized(word, path)); werr != nil {
				return werr
			}
			continue
		}

		if err := handler(ctx, c, args); err != nil {
			e, ok := errdefs.As(err)
			if !ok {
				e = errdefs.Internal(word, err)
			}
			if e.Kind.Fatal() {
				c.log.WithError(e).Error("fatal command error")
				return e
			}
			c.log.WithError(e).WithField("command", word).Debug("command failed")
			if werr := writeFailure(c.w, e); werr != nil {
				return werr
			}
			continue
		}
		if err := c.w.Flush(); err != nil {
			return err
		}
	}
}

// firstPathArg extracts the leading string argument most commands use as
// their path, for the ACL check; commands with no path (get-latest-rev,
// commit's log message) simply check against the repository root.
func firstPathArg(args []value) string {
	if len(args) == 0 || args[0].kind != wire.TokString {
		return ""
	}
	return args[0].asString()
}
