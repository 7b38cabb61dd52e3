package main

// svnfsck program
// Cross-references a served repository's revision index against its Git
// object store: every indexed revision's commit must exist and decode,
// its tree must decode, LookupCommit must resolve the commit back to the
// same revision, and every copy-from edge it records must point at a
// revision that is itself indexed. A small kingpin CLI opened directly
// against a repository's on-disk state, checking consistency instead of
// rendering or rewriting anything.

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/sirupsen/logrus"

	"github.com/perforce/p4prometheus/version"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/rcowham/gitsvnbridge/gitstore"
	"github.com/rcowham/gitsvnbridge/revindex"
)

// ObjectStore is the subset of gitstore.Store svnfsck reads through.
type ObjectStore interface {
	ReadCommit(id plumbing.Hash) (*object.Commit, error)
	ReadTree(id plumbing.Hash) (*object.Tree, error)
}

// RevisionIndex is the subset of revindex.Index svnfsck reads through.
type RevisionIndex interface {
	Lookup(rev int64) (revindex.CommitRecord, error)
	LookupCommit(id plumbing.Hash) (int64, error)
	Latest() (int64, error)
}

// Finding is one inconsistency between a revision's index record and the
// Git objects it names.
type Finding struct {
	Rev     int64
	Problem string
}

func (f Finding) String() string {
	return fmt.Sprintf("r%d: %s", f.Rev, f.Problem)
}

// Checker cross-references a RevisionIndex's records against an
// ObjectStore.
type Checker struct {
	store ObjectStore
	index RevisionIndex
}

// NewChecker builds a Checker reading store and index.
func NewChecker(store ObjectStore, index RevisionIndex) *Checker {
	return &Checker{store: store, index: index}
}

// Check walks [first, last] (0 on either end means the whole history) and
// reports every inconsistency found. A revision whose own lookup fails is
// still reported and the walk continues, so one bad revision does not
// hide problems in the rest.
func (c *Checker) Check(first, last int64) ([]Finding, error) {
	latest, err := c.index.Latest()
	if err != nil {
		return nil, fmt.Errorf("reading latest revision: %w", err)
	}
	if first <= 0 {
		first = 1
	}
	if last <= 0 || last > latest {
		last = latest
	}

	var findings []Finding
	for rev := first; rev <= last; rev++ {
		findings = append(findings, c.checkRevision(rev, latest)...)
	}
	return findings, nil
}

func (c *Checker) checkRevision(rev, latest int64) []Finding {
	record, err := c.index.Lookup(rev)
	if err != nil {
		return []Finding{{Rev: rev, Problem: fmt.Sprintf("index lookup failed: %v", err)}}
	}

	var findings []Finding
	commitID := plumbing.NewHash(record.CommitID)
	commit, err := c.store.ReadCommit(commitID)
	if err != nil {
		findings = append(findings, Finding{Rev: rev, Problem: fmt.Sprintf("commit %s unreadable: %v", record.CommitID, err)})
		return findings
	}
	if _, err := c.store.ReadTree(commit.TreeHash); err != nil {
		findings = append(findings, Finding{Rev: rev, Problem: fmt.Sprintf("tree %s unreadable: %v", commit.TreeHash, err)})
	}
	if gotRev, err := c.index.LookupCommit(commitID); err != nil || gotRev != rev {
		findings = append(findings, Finding{Rev: rev, Problem: fmt.Sprintf("LookupCommit(%s) = %d, %v; want %d, nil", record.CommitID, gotRev, err, rev)})
	}
	for _, cp := range record.Changed {
		if cp.CopyFromRev < 0 {
			continue
		}
		if cp.CopyFromRev < 1 || cp.CopyFromRev > latest {
			findings = append(findings, Finding{Rev: rev, Problem: fmt.Sprintf("%s copies from out-of-range r%d", cp.Path, cp.CopyFromRev)})
			continue
		}
		if _, err := c.index.Lookup(cp.CopyFromRev); err != nil {
			findings = append(findings, Finding{Rev: rev, Problem: fmt.Sprintf("%s copies from unresolved r%d: %v", cp.Path, cp.CopyFromRev, err)})
		}
	}
	return findings
}

func main() {
	var (
		databaseDir = kingpin.Flag(
			"database.dir",
			"Directory containing the repository's revision index database and journal.",
		).Required().Short('d').String()
		gitDir = kingpin.Flag(
			"git.dir",
			"Directory containing the repository's Git object store.",
		).Required().Short('g').String()
		firstRev = kingpin.Flag(
			"first.rev",
			"First revision to check (default 0 means from the start).",
		).Default("0").Short('f').Int64()
		lastRev = kingpin.Flag(
			"last.rev",
			"Last revision to check (default 0 means up to the latest).",
		).Default("0").Short('l').Int64()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Int()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("svnfsck")).Author("Robert Cowham")
	kingpin.CommandLine.Help = "Cross-references a served repository's revision index against its Git object store\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}
	logger.Infof("%v", version.Print("svnfsck"))

	store, err := gitstore.OpenFilesystem(*gitDir)
	if err != nil {
		logger.Errorf("error opening git store: %v", err)
		os.Exit(-1)
	}

	idx, err := revindex.Open(*databaseDir+"/svnbridge-index.db", *databaseDir+"/svnbridge-journal.log", logger)
	if err != nil {
		logger.Errorf("error opening revision index: %v", err)
		os.Exit(-1)
	}
	defer idx.Close()

	findings, err := NewChecker(store, idx).Check(*firstRev, *lastRev)
	if err != nil {
		logger.Errorf("error checking repository: %v", err)
		os.Exit(-1)
	}
	if len(findings) == 0 {
		logger.Infof("no inconsistencies found")
		return
	}
	for _, f := range findings {
		fmt.Println(f.String())
	}
	os.Exit(1)
}
