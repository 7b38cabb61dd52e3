package session

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rcowham/gitsvnbridge/errdefs"
	"github.com/rcowham/gitsvnbridge/propsynth"
	"github.com/rcowham/gitsvnbridge/vfs"
	"github.com/rcowham/gitsvnbridge/wire"
)

func handleReparent(ctx context.Context, c *connection, args []value) error {
	if len(args) < 1 {
		return errdefs.MalformedFrame("reparent", nil)
	}
	c.basePath = strings.Trim(args[0].asString(), "/")
	return writeSuccess(c.w, nil)
}

func handleGetLatestRev(ctx context.Context, c *connection, args []value) error {
	rev, err := c.repo.Index.Latest()
	if err != nil {
		return err
	}
	return writeSuccess(c.w, func() error { c.w.Number(rev); return nil })
}

func handleGetDatedRev(ctx context.Context, c *connection, args []value) error {
	if len(args) < 1 {
		return errdefs.MalformedFrame("get-dated-rev", nil)
	}
	target, err := time.Parse(time.RFC3339, args[0].asString())
	if err != nil {
		return errdefs.MalformedFrame("get-dated-rev", err)
	}
	latest, err := c.repo.Index.Latest()
	if err != nil {
		return err
	}
	var found int64
	for rev := int64(1); rev <= latest; rev++ {
		rec, err := c.repo.Index.Lookup(rev)
		if err != nil {
			continue
		}
		if rec.UnixTime > target.Unix() {
			break
		}
		found = rev
	}
	return writeSuccess(c.w, func() error { c.w.Number(found); return nil })
}

func handleChangeRevProp(ctx context.Context, c *connection, args []value) error {
	if len(args) < 2 {
		return errdefs.MalformedFrame("change-rev-prop", nil)
	}
	rev := args[0].num
	name := args[1].asString()
	value, remove := "", true
	if len(args) > 2 && len(args[2].list) > 0 {
		value, remove = args[2].list[0].asString(), false
	}
	props, err := loadRevProps(c.repo, rev)
	if err != nil {
		return err
	}
	if remove {
		delete(props, name)
	} else {
		props[name] = value
	}
	if err := saveRevProps(c.repo, rev, props); err != nil {
		return err
	}
	return writeSuccess(c.w, nil)
}

func handleRevPropList(ctx context.Context, c *connection, args []value) error {
	if len(args) < 1 {
		return errdefs.MalformedFrame("rev-proplist", nil)
	}
	props, err := loadRevProps(c.repo, args[0].num)
	if err != nil {
		return err
	}
	return writeSuccess(c.w, func() error { return writePropMap(c.w, props) })
}

func handleRevProp(ctx context.Context, c *connection, args []value) error {
	if len(args) < 2 {
		return errdefs.MalformedFrame("rev-prop", nil)
	}
	props, err := loadRevProps(c.repo, args[0].num)
	if err != nil {
		return err
	}
	v, ok := props[args[1].asString()]
	return writeSuccess(c.w, func() error {
		if err := c.w.ListBegin(); err != nil {
			return err
		}
		if ok {
			if err := c.w.String(v); err != nil {
				return err
			}
		}
		return c.w.ListEnd()
	})
}

func handleCheckPath(ctx context.Context, c *connection, args []value) error {
	if len(args) < 1 {
		return errdefs.MalformedFrame("check-path", nil)
	}
	rev := optNum(argOrEmpty(args, 1), 0)
	rev, err := resolveRev(c.repo, rev)
	if err != nil {
		return err
	}
	node, err := c.repo.FS.Stat(rev, c.absPath(args[0].asString()))
	if err != nil {
		return err
	}
	return writeSuccess(c.w, func() error { return c.w.Word(kindWord(node.Kind)) })
}

func handleStat(ctx context.Context, c *connection, args []value) error {
	if len(args) < 1 {
		return errdefs.MalformedFrame("stat", nil)
	}
	rev := optNum(argOrEmpty(args, 1), 0)
	rev, err := resolveRev(c.repo, rev)
	if err != nil {
		return err
	}
	node, err := c.repo.FS.Stat(rev, c.absPath(args[0].asString()))
	if err != nil {
		return err
	}
	if node.Kind == vfs.KindAbsent {
		return errdefs.PathNotFound(args[0].asString())
	}
	return writeSuccess(c.w, func() error {
		if err := c.w.Word(kindWord(node.Kind)); err != nil {
			return err
		}
		c.w.Number(node.Size)
		c.w.Number(int64(len(node.Properties)))
		return c.w.String(hexDigest(node.MD5))
	})
}

func handleGetFile(ctx context.Context, c *connection, args []value) error {
	if len(args) < 1 {
		return errdefs.MalformedFrame("get-file", nil)
	}
	path := c.absPath(args[0].asString())
	rev, err := resolveRev(c.repo, optNum(argOrEmpty(args, 1), 0))
	if err != nil {
		return err
	}
	wantProps := len(args) > 2 && boolWord(args[2])
	wantContents := len(args) > 3 && boolWord(args[3])

	node, err := c.repo.FS.Stat(rev, path)
	if err != nil {
		return err
	}
	if node.Kind != vfs.KindFile {
		return errdefs.NodeKindMismatch(path)
	}
	var content []byte
	if wantContents {
		rc, err := c.repo.FS.Read(rev, path)
		if err != nil {
			return err
		}
		defer rc.Close()
		content, err = readAll(rc)
		if err != nil {
			return err
		}
	}
	return writeSuccess(c.w, func() error {
		if err := c.w.String(hexDigest(node.MD5)); err != nil {
			return err
		}
		c.w.Number(rev)
		if err := writePropMapOrEmpty(c.w, node.Properties, wantProps); err != nil {
			return err
		}
		return c.w.Bytes(content)
	})
}

func handleGetDir(ctx context.Context, c *connection, args []value) error {
	if len(args) < 1 {
		return errdefs.MalformedFrame("get-dir", nil)
	}
	path := c.absPath(args[0].asString())
	rev, err := resolveRev(c.repo, optNum(argOrEmpty(args, 1), 0))
	if err != nil {
		return err
	}
	wantProps := len(args) > 2 && boolWord(args[2])

	dirNode, err := c.repo.FS.Stat(rev, path)
	if err != nil {
		return err
	}
	if dirNode.Kind != vfs.KindDirectory {
		return errdefs.NodeKindMismatch(path)
	}
	entries, err := c.repo.FS.List(rev, path)
	if err != nil {
		return err
	}
	return writeSuccess(c.w, func() error {
		c.w.Number(rev)
		if err := writePropMapOrEmpty(c.w, dirNode.Properties, wantProps); err != nil {
			return err
		}
		if err := c.w.ListBegin(); err != nil {
			return err
		}
		for _, e := range entries {
			childNode, err := c.repo.FS.Stat(rev, joinAbs(path, e.Name))
			if err != nil {
				return err
			}
			if err := c.w.ListBegin(); err != nil {
				return err
			}
			if err := c.w.String(e.Name); err != nil {
				return err
			}
			if err := c.w.Word(kindWord(e.Kind)); err != nil {
				return err
			}
			c.w.Number(childNode.Size)
			if err := c.w.ListEnd(); err != nil {
				return err
			}
		}
		return c.w.ListEnd()
	})
}

func handleLog(ctx context.Context, c *connection, args []value) error {
	if len(args) < 2 {
		return errdefs.MalformedFrame("log", nil)
	}
	paths := stringsOf(args[0])
	if len(paths) == 0 {
		paths = []string{""}
	}
	startRev := optNum(argOrEmpty(args, 1), 0)
	endRev := optNum(argOrEmpty(args, 2), 0)
	limit := int(optNum(argOrEmpty(args, 3), 0))
	includeChangedPaths := len(args) > 4 && boolWord(args[4])

	seen := map[int64]vfs.LogEntry{}
	for _, p := range paths {
		entries, err := c.repo.FS.Log(c.absPath(p), startRev, endRev, includeChangedPaths, 0)
		if err != nil {
			return err
		}
		for _, e := range entries {
			seen[e.Rev] = e
		}
	}
	revs := make([]int64, 0, len(seen))
	for r := range seen {
		revs = append(revs, r)
	}
	sort.Slice(revs, func(i, j int) bool { return revs[i] > revs[j] })
	if limit > 0 && len(revs) > limit {
		revs = revs[:limit]
	}

	return writeSuccess(c.w, func() error {
		for _, r := range revs {
			e := seen[r]
			if err := c.w.ListBegin(); err != nil {
				return err
			}
			c.w.Number(e.Rev)
			if err := c.w.String(e.Author); err != nil {
				return err
			}
			c.w.Number(e.UnixTime)
			if err := c.w.String(e.Message); err != nil {
				return err
			}
			if includeChangedPaths {
				if err := c.w.ListBegin(); err != nil {
					return err
				}
				for _, cp := range e.ChangedPaths {
					if err := c.w.ListBegin(); err != nil {
						return err
					}
					if err := c.w.String(cp.Path); err != nil {
						return err
					}
					if err := c.w.Word(cp.Action.String()); err != nil {
						return err
					}
					if err := c.w.ListEnd(); err != nil {
						return err
					}
				}
				if err := c.w.ListEnd(); err != nil {
					return err
				}
			}
			if err := c.w.ListEnd(); err != nil {
				return err
			}
		}
		return nil
	})
}

func handleGetLocations(ctx context.Context, c *connection, args []value) error {
	if len(args) < 3 {
		return errdefs.MalformedFrame("get-locations", nil)
	}
	path := c.absPath(args[0].asString())
	pegRev := args[1].num
	wanted := numsOf(args[2])

	segments, err := c.repo.FS.History(path, pegRev)
	if err != nil {
		return err
	}
	return writeSuccess(c.w, func() error {
		for _, rev := range wanted {
			p := pathAtRev(segments, rev)
			if p == "" {
				continue
			}
			if err := c.w.ListBegin(); err != nil {
				return err
			}
			c.w.Number(rev)
			if err := c.w.String(p); err != nil {
				return err
			}
			if err := c.w.ListEnd(); err != nil {
				return err
			}
		}
		return nil
	})
}

func handleGetLocationSegments(ctx context.Context, c *connection, args []value) error {
	if len(args) < 1 {
		return errdefs.MalformedFrame("get-location-segments", nil)
	}
	path := c.absPath(args[0].asString())
	pegRev, err := resolveRev(c.repo, optNum(argOrEmpty(args, 1), 0))
	if err != nil {
		return err
	}
	segments, err := c.repo.FS.History(path, pegRev)
	if err != nil {
		return err
	}
	return writeSuccess(c.w, func() error {
		for i, seg := range segments {
			rangeEnd := pegRev
			if i > 0 {
				rangeEnd = segments[i-1].Rev - 1
			}
			if err := c.w.ListBegin(); err != nil {
				return err
			}
			c.w.Number(seg.Rev)
			c.w.Number(rangeEnd)
			if err := c.w.String(seg.Path); err != nil {
				return err
			}
			if err := c.w.ListEnd(); err != nil {
				return err
			}
		}
		return nil
	})
}

// handleGetMergeinfo always answers with an empty mergeinfo dict: this
// bridge only ever exposes Git history, which carries no svn:mergeinfo
// property of its own, so there is nothing to merge-track beyond what a
// .gitattributes-style property synthesis rule might someday add.
func handleGetMergeinfo(ctx context.Context, c *connection, args []value) error {
	return writeSuccess(c.w, func() error {
		if err := c.w.ListBegin(); err != nil {
			return err
		}
		return c.w.ListEnd()
	})
}

func loadRevProps(repo *Repository, rev int64) (propsynth.PropertyMap, error) {
	raw, err := repo.Index.RevProps(rev)
	if err != nil {
		return nil, err
	}
	return decodeRevProps(raw)
}

func saveRevProps(repo *Repository, rev int64, props propsynth.PropertyMap) error {
	raw, err := encodeRevProps(props)
	if err != nil {
		return err
	}
	return repo.Index.SetRevProps(rev, raw)
}

func resolveRev(repo *Repository, rev int64) (int64, error) {
	if rev > 0 {
		return rev, nil
	}
	return repo.Index.Latest()
}

func argOrEmpty(args []value, idx int) value {
	if idx >= len(args) {
		return value{}
	}
	return args[idx]
}

func kindWord(k vfs.Kind) string {
	switch k {
	case vfs.KindFile:
		return "file"
	case vfs.KindDirectory:
		return "dir"
	default:
		return "none"
	}
}

func joinAbs(base, name string) string {
	if base == "" {
		return name
	}
	return base + "/" + name
}

func pathAtRev(segments []vfs.HistorySegment, rev int64) string {
	for i, seg := range segments {
		upper := int64(1) << 62
		if i > 0 {
			upper = segments[i-1].Rev - 1
		}
		if rev <= upper && rev >= seg.Rev {
			return seg.Path
		}
	}
	return ""
}

func writePropMap(w *wire.Writer, props propsynth.PropertyMap) error {
	if err := w.ListBegin(); err != nil {
		return err
	}
	names := make([]string, 0, len(props))
	for k := range props {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		if err := w.ListBegin(); err != nil {
			return err
		}
		if err := w.String(k); err != nil {
			return err
		}
		if err := w.String(props[k]); err != nil {
			return err
		}
		if err := w.ListEnd(); err != nil {
			return err
		}
	}
	return w.ListEnd()
}

func writePropMapOrEmpty(w *wire.Writer, props propsynth.PropertyMap, want bool) error {
	if !want {
		return writePropMap(w, nil)
	}
	return writePropMap(w, props)
}
