package session

import (
	"context"
	"time"

	"github.com/rcowham/gitsvnbridge/errdefs"
	"github.com/rcowham/gitsvnbridge/lock"
)

func handleLock(ctx context.Context, c *connection, args []value) error {
	if len(args) < 1 {
		return errdefs.MalformedFrame("lock", nil)
	}
	path := c.absPath(args[0].asString())
	comment := optStr(argOrEmpty(args, 1), "")
	force := len(args) > 2 && boolWord(args[2])

	l, err := c.repo.Locks.Acquire(path, c.user, comment, force)
	if err != nil {
		return err
	}
	return writeSuccess(c.w, func() error { return writeLockEntry(c, l) })
}

func handleUnlock(ctx context.Context, c *connection, args []value) error {
	if len(args) < 1 {
		return errdefs.MalformedFrame("unlock", nil)
	}
	path := c.absPath(args[0].asString())
	token := optStr(argOrEmpty(args, 1), "")
	force := len(args) > 2 && boolWord(args[2])
	if err := c.repo.Locks.Release(path, token, force); err != nil {
		return err
	}
	return writeSuccess(c.w, nil)
}

func handleLockMany(ctx context.Context, c *connection, args []value) error {
	if len(args) < 1 {
		return errdefs.MalformedFrame("lock-many", nil)
	}
	comment := optStr(argOrEmpty(args, 0), "")
	force := len(args) > 1 && boolWord(args[1])
	paths := argOrEmpty(args, 2)

	locks := make([]lock.Lock, 0, len(paths.list))
	for _, p := range paths.list {
		l, err := c.repo.Locks.Acquire(c.absPath(p.asString()), c.user, comment, force)
		if err != nil {
			return err
		}
		locks = append(locks, l)
	}
	return writeSuccess(c.w, func() error {
		for _, l := range locks {
			if err := writeLockEntry(c, l); err != nil {
				return err
			}
		}
		return nil
	})
}

func handleUnlockMany(ctx context.Context, c *connection, args []value) error {
	if len(args) < 1 {
		return errdefs.MalformedFrame("unlock-many", nil)
	}
	force := len(args) > 0 && boolWord(args[0])
	pairs := argOrEmpty(args, 1)
	for _, pair := range pairs.list {
		if len(pair.list) < 1 {
			continue
		}
		path := c.absPath(pair.list[0].asString())
		token := ""
		if len(pair.list) > 1 {
			token = pair.list[1].asString()
		}
		if err := c.repo.Locks.Release(path, token, force); err != nil {
			return err
		}
	}
	return writeSuccess(c.w, nil)
}

func handleGetLock(ctx context.Context, c *connection, args []value) error {
	if len(args) < 1 {
		return errdefs.MalformedFrame("get-lock", nil)
	}
	path := c.absPath(args[0].asString())
	l, ok := c.repo.Locks.Get(path)
	return writeSuccess(c.w, func() error {
		if err := c.w.ListBegin(); err != nil {
			return err
		}
		if ok {
			if err := writeLockEntry(c, l); err != nil {
				return err
			}
		}
		return c.w.ListEnd()
	})
}

func handleGetLocks(ctx context.Context, c *connection, args []value) error {
	path := c.absPath(firstPathArg(args))
	locks := c.repo.Locks.List(path)
	return writeSuccess(c.w, func() error {
		for _, l := range locks {
			if err := writeLockEntry(c, l); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeLockEntry(c *connection, l lock.Lock) error {
	if err := c.w.ListBegin(); err != nil {
		return err
	}
	if err := c.w.String(l.Path); err != nil {
		return err
	}
	if err := c.w.String(l.Token); err != nil {
		return err
	}
	if err := c.w.String(l.Owner); err != nil {
		return err
	}
	if err := c.w.String(l.Comment); err != nil {
		return err
	}
	if err := c.w.String(l.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return c.w.ListEnd()
}
