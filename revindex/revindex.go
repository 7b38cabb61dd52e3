// Package revindex is a durable, bijective map between monotonic SVN
// revision numbers and Git commit ids. Revisions are recorded only through
// Observe, one commit at a time as callers supply them; this package does
// not walk a ref's history, so commits that reach the ref by other means
// are not assigned revisions.
//
// Persistence is database/sql over github.com/mattn/go-sqlite3. A mutex
// per Index serializes Observe calls, and each batch is written in one
// transaction, so readers never observe a partially written batch.
package revindex

import (
	"database/sql"
	"os"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5/plumbing"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/rcowham/gitsvnbridge/errdefs"
	"github.com/rcowham/gitsvnbridge/journal"
)

const schema = `
CREATE TABLE IF NOT EXISTS revisions (
	rev INTEGER PRIMARY KEY,
	commit_id TEXT NOT NULL UNIQUE,
	author TEXT NOT NULL,
	unix_time INTEGER NOT NULL,
	message TEXT NOT NULL,
	revprops TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS changed_paths (
	rev INTEGER NOT NULL,
	path TEXT NOT NULL,
	action TEXT NOT NULL,
	copy_from_path TEXT,
	copy_from_rev INTEGER,
	FOREIGN KEY(rev) REFERENCES revisions(rev)
);
CREATE INDEX IF NOT EXISTS idx_changed_paths_rev ON changed_paths(rev);
CREATE INDEX IF NOT EXISTS idx_changed_paths_path ON changed_paths(path);
`

// CommitRecord is one revision's worth of committed data, the unit
// Observe batches.
type CommitRecord struct {
	Rev      int64
	CommitID string
	Author   string
	UnixTime int64
	Message  string
	Changed  []journal.ChangedPath
}

// Index is the sqlite-backed RevisionIndexStore implementation. One Index
// serves one repository; the server holds one per configured repository.
type Index struct {
	db      *sql.DB
	journal *journal.Journal
	mu      sync.Mutex // guards Observe: one writer at a time, per repository
	logger  *logrus.Logger
}

// Open opens (creating if absent) the sqlite database at dbPath and the
// companion write-ahead journal at journalPath, replaying any uncommitted
// batch left behind by a prior crash before returning.
func Open(dbPath, journalPath string, logger *logrus.Logger) (*Index, error) {
	if logger == nil {
		logger = logrus.New()
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errdefs.IOError("revindex-open", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errdefs.IOError("revindex-schema", err)
	}
	idx := &Index{db: db, journal: journal.New(journalPath), logger: logger}
	if err := idx.recoverFromJournal(journalPath); err != nil {
		db.Close()
		return nil, err
	}
	if err := idx.journal.Open(); err != nil {
		db.Close()
		return nil, errdefs.IOError("revindex-journal-open", err)
	}
	return idx, nil
}

func (idx *Index) Close() error {
	if err := idx.journal.Close(); err != nil {
		return err
	}
	return idx.db.Close()
}

// recoverFromJournal replays journalPath (if present) and re-applies any
// batch the journal shows as committed but that never reached a commit
// that is visible in revisions (the crash window is "journal committed,
// sqlite Tx not yet committed").
func (idx *Index) recoverFromJournal(journalPath string) error {
	f, err := os.Open(journalPath)
	if err != nil {
		return nil // no prior journal: fresh database
	}
	defer f.Close()
	batches, err := journal.Replay(f)
	if err != nil {
		return errdefs.IOError("revindex-journal-replay", err)
	}
	for _, b := range batches {
		if !b.Committed {
			idx.logger.Warnf("revindex: discarding uncommitted journal batch r%d-r%d", b.FromRev, b.ToRev)
			continue
		}
		latest, err := idx.Latest()
		if err != nil {
			return err
		}
		if b.ToRev <= latest {
			continue // already durable in sqlite
		}
		records := make([]CommitRecord, 0, len(b.Revisions))
		for _, r := range b.Revisions {
			records = append(records, CommitRecord{
				Rev: r.Rev, CommitID: r.CommitID, Author: r.Author,
				UnixTime: r.UnixTime, Message: r.Message, Changed: r.Changed,
			})
		}
		if err := idx.writeTx(records); err != nil {
			return err
		}
	}
	return nil
}

// Observe durably records a contiguous batch of newly-assigned revisions,
// atomically: either all of batch becomes visible or none does.
func (idx *Index) Observe(batch []CommitRecord) error {
	if len(batch) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.journal.WriteBatchBegin(batch[0].Rev, batch[len(batch)-1].Rev); err != nil {
		return errdefs.IOError("revindex-journal-write", err)
	}
	for _, r := range batch {
		if err := idx.journal.WriteRevision(r.Rev, r.CommitID, r.Author, r.UnixTime, r.Message, r.Changed); err != nil {
			return errdefs.IOError("revindex-journal-write", err)
		}
	}
	if err := idx.journal.WriteBatchEnd(batch[len(batch)-1].Rev); err != nil {
		return errdefs.IOError("revindex-journal-write", err)
	}

	return idx.writeTx(batch)
}

func (idx *Index) writeTx(batch []CommitRecord) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return errdefs.IOError("revindex-begin-tx", err)
	}
	for _, r := range batch {
		if _, err := tx.Exec(`INSERT INTO revisions (rev, commit_id, author, unix_time, message) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(rev) DO UPDATE SET commit_id = excluded.commit_id, author = excluded.author,
				unix_time = excluded.unix_time, message = excluded.message`,
			r.Rev, r.CommitID, r.Author, r.UnixTime, r.Message); err != nil {
			tx.Rollback()
			return errdefs.IOError("revindex-insert-revision", err)
		}
		if _, err := tx.Exec(`DELETE FROM changed_paths WHERE rev = ?`, r.Rev); err != nil {
			tx.Rollback()
			return errdefs.IOError("revindex-clear-paths", err)
		}
		for _, cp := range r.Changed {
			var copyFrom interface{}
			var copyRev interface{}
			if cp.CopyFromPath != "" {
				copyFrom = cp.CopyFromPath
				copyRev = cp.CopyFromRev
			}
			if _, err := tx.Exec(`INSERT INTO changed_paths (rev, path, action, copy_from_path, copy_from_rev) VALUES (?, ?, ?, ?, ?)`,
				r.Rev, cp.Path, cp.Action.String(), copyFrom, copyRev); err != nil {
				tx.Rollback()
				return errdefs.IOError("revindex-insert-path", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return errdefs.IOError("revindex-commit-tx", err)
	}
	return nil
}

// Lookup returns the commit record for rev.
func (idx *Index) Lookup(rev int64) (CommitRecord, error) {
	row := idx.db.QueryRow(`SELECT rev, commit_id, author, unix_time, message FROM revisions WHERE rev = ?`, rev)
	var r CommitRecord
	if err := row.Scan(&r.Rev, &r.CommitID, &r.Author, &r.UnixTime, &r.Message); err != nil {
		if err == sql.ErrNoRows {
			return CommitRecord{}, errdefs.RevisionNotFound(rev)
		}
		return CommitRecord{}, errdefs.IOError("revindex-lookup", err)
	}
	changed, err := idx.changedPaths(rev)
	if err != nil {
		return CommitRecord{}, err
	}
	r.Changed = changed
	return r, nil
}

func (idx *Index) changedPaths(rev int64) ([]journal.ChangedPath, error) {
	rows, err := idx.db.Query(`SELECT path, action, copy_from_path, copy_from_rev FROM changed_paths WHERE rev = ? ORDER BY path`, rev)
	if err != nil {
		return nil, errdefs.IOError("revindex-changed-paths", err)
	}
	defer rows.Close()
	var out []journal.ChangedPath
	for rows.Next() {
		var path, actionStr string
		var copyFromPath sql.NullString
		var copyFromRev sql.NullInt64
		if err := rows.Scan(&path, &actionStr, &copyFromPath, &copyFromRev); err != nil {
			return nil, errdefs.IOError("revindex-changed-paths-scan", err)
		}
		action, err := journal.ParseNodeAction(actionStr)
		if err != nil {
			return nil, errdefs.Internal("revindex-changed-paths", err)
		}
		cp := journal.ChangedPath{Path: path, Action: action, CopyFromRev: -1}
		if copyFromPath.Valid {
			cp.CopyFromPath = copyFromPath.String
			cp.CopyFromRev = copyFromRev.Int64
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// LookupCommit returns the revision a given Git commit id was assigned.
func (idx *Index) LookupCommit(id plumbing.Hash) (int64, error) {
	row := idx.db.QueryRow(`SELECT rev FROM revisions WHERE commit_id = ?`, id.String())
	var rev int64
	if err := row.Scan(&rev); err != nil {
		if err == sql.ErrNoRows {
			return 0, errdefs.PathNotFound(id.String())
		}
		return 0, errdefs.IOError("revindex-lookup-commit", err)
	}
	return rev, nil
}

// Latest returns the highest assigned revision, or 0 if none has been
// observed yet (revision 0 is the empty-repository root in SVN).
func (idx *Index) Latest() (int64, error) {
	row := idx.db.QueryRow(`SELECT COALESCE(MAX(rev), 0) FROM revisions`)
	var rev int64
	if err := row.Scan(&rev); err != nil {
		return 0, errdefs.IOError("revindex-latest", err)
	}
	return rev, nil
}

// SetRevProps overwrites the unversioned revision property bag for rev.
func (idx *Index) SetRevProps(rev int64, propsJSON string) error {
	res, err := idx.db.Exec(`UPDATE revisions SET revprops = ? WHERE rev = ?`, propsJSON, rev)
	if err != nil {
		return errdefs.IOError("revindex-set-revprops", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errdefs.IOError("revindex-set-revprops", err)
	}
	if n == 0 {
		return errdefs.RevisionNotFound(rev)
	}
	return nil
}

// RevProps returns the raw JSON revprop bag for rev.
func (idx *Index) RevProps(rev int64) (string, error) {
	row := idx.db.QueryRow(`SELECT revprops FROM revisions WHERE rev = ?`, rev)
	var props string
	if err := row.Scan(&props); err != nil {
		if err == sql.ErrNoRows {
			return "", errdefs.RevisionNotFound(rev)
		}
		return "", errdefs.IOError("revindex-revprops", err)
	}
	return props, nil
}

// escapeLike backslash-escapes the LIKE wildcard characters in s so it can
// be used as a literal prefix with ESCAPE '\'.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// CopyEdges returns every changed-path row across the whole index whose
// action is a copy and whose path is pathPrefix or inside it, used by
// vfs.History to walk rename/copy ancestry backward.
func (idx *Index) CopyEdges(pathPrefix string) ([]journal.ChangedPath, error) {
	rows, err := idx.db.Query(`SELECT path, action, copy_from_path, copy_from_rev FROM changed_paths
		WHERE copy_from_path IS NOT NULL AND (path = ? OR path LIKE ? ESCAPE '\') ORDER BY rev`,
		pathPrefix, escapeLike(pathPrefix)+"/%")
	if err != nil {
		return nil, errdefs.IOError("revindex-copy-edges", err)
	}
	defer rows.Close()
	var out []journal.ChangedPath
	for rows.Next() {
		var path, actionStr, copyFromPath string
		var copyFromRev int64
		if err := rows.Scan(&path, &actionStr, &copyFromPath, &copyFromRev); err != nil {
			return nil, errdefs.IOError("revindex-copy-edges-scan", err)
		}
		action, err := journal.ParseNodeAction(actionStr)
		if err != nil {
			return nil, errdefs.Internal("revindex-copy-edges", err)
		}
		out = append(out, journal.ChangedPath{Path: path, Action: action, CopyFromPath: copyFromPath, CopyFromRev: copyFromRev})
	}
	return out, rows.Err()
}

