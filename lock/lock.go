// Package lock is the advisory lock table: locks live in a side table
// keyed by path, never in Git, and are enforced only at commit time by
// commitbuilder checking the caller's supplied lock tokens against this
// table.
package lock

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rcowham/gitsvnbridge/errdefs"
)

// Lock is one path's lock record.
type Lock struct {
	Path      string
	Token     string
	Owner     string
	Comment   string
	CreatedAt time.Time
}

// Table is the per-repository lock table. All operations are point
// lookups or scans of a small set, so a single mutex suffices.
type Table struct {
	mu    sync.Mutex
	locks map[string]Lock
}

// NewTable builds an empty lock table.
func NewTable() *Table {
	return &Table{locks: map[string]Lock{}}
}

// Acquire creates a lock on path for owner, failing with LockDenied if
// path is already locked by someone else (force=true steals an existing
// lock, matching svn lock --force).
func (t *Table) Acquire(path, owner, comment string, force bool) (Lock, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.locks[path]; ok && existing.Owner != owner && !force {
		return Lock{}, errdefs.LockDenied(path)
	}
	l := Lock{Path: path, Token: uuid.NewString(), Owner: owner, Comment: comment, CreatedAt: time.Now()}
	t.locks[path] = l
	return l, nil
}

// Release removes path's lock if token matches (or force is set).
func (t *Table) Release(path, token string, force bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	existing, ok := t.locks[path]
	if !ok {
		return errdefs.PathNotFound(path)
	}
	if !force && existing.Token != token {
		return errdefs.LockDenied(path)
	}
	delete(t.locks, path)
	return nil
}

// Get returns path's current lock, if any.
func (t *Table) Get(path string) (Lock, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[path]
	return l, ok
}

// List returns every lock whose path is pathPrefix or inside it.
func (t *Table) List(pathPrefix string) []Lock {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Lock
	for p, l := range t.locks {
		if p == pathPrefix || (len(p) > len(pathPrefix) && p[:len(pathPrefix)] == pathPrefix && p[len(pathPrefix)] == '/') {
			out = append(out, l)
		}
	}
	return out
}

// CheckTokens verifies that every currently-locked path in paths has a
// matching token supplied in tokens, returning the first violating path
// found.
func (t *Table) CheckTokens(paths []string, tokens map[string]string) (violatingPath string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range paths {
		l, locked := t.locks[p]
		if !locked {
			continue
		}
		if tok, has := tokens[p]; !has || tok != l.Token {
			return p, false
		}
	}
	return "", true
}
