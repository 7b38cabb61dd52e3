package session

import (
	"fmt"

	"github.com/rcowham/gitsvnbridge/errdefs"
	"github.com/rcowham/gitsvnbridge/report"
)

// readReport parses the client's report sub-protocol that follows
// update/switch/status/diff: a sequence of set-path/delete-path/
// link-path commands terminated by finish-report.
func (c *connection) readReport() (*report.State, error) {
	state := report.NewState()
	for {
		word, args, err := readCommand(c.r)
		if err != nil {
			return nil, err
		}
		switch word {
		case "set-path":
			if len(args) < 3 {
				return nil, errdefs.MalformedFrame("set-path", nil)
			}
			path := args[0].asString()
			rev := args[1].num
			startEmpty := args[2].word == "true"
			lockToken := ""
			if len(args) > 3 && len(args[3].list) > 0 {
				lockToken = args[3].list[0].asString()
			}
			depth := report.DepthInfinity
			if len(args) > 4 {
				depth = parseDepth(args[4].word)
			}
			state.SetPath(path, rev, startEmpty, lockToken, depth)
		case "link-path":
			// A link-path declares the reported path was switched in the
			// working copy; this bridge's report driver does not need
			// the link target beyond treating it like set-path, since
			// diffEntry always resolves content by (rev, path) rather
			// than by URL.
			if len(args) < 4 {
				return nil, errdefs.MalformedFrame("link-path", nil)
			}
			path := args[0].asString()
			rev := args[2].num
			startEmpty := args[3].word == "true"
			state.SetPath(path, rev, startEmpty, "", report.DepthInfinity)
		case "delete-path":
			if len(args) < 1 {
				return nil, errdefs.MalformedFrame("delete-path", nil)
			}
			state.DeletePath(args[0].asString())
		case "finish-report":
			return state, nil
		case "abort-report":
			return nil, errdefs.Internal("report-aborted", nil)
		default:
			return nil, errdefs.MalformedFrame("report-command", fmt.Errorf("unexpected %q", word))
		}
	}
}

func parseDepth(word string) report.Depth {
	switch word {
	case "empty":
		return report.DepthEmpty
	case "files":
		return report.DepthFiles
	case "immediates":
		return report.DepthImmediates
	default:
		return report.DepthInfinity
	}
}
