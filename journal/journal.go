// Package journal writes the revision audit log: one line per observed
// revision, appended before the revindex's sqlite transaction commits so a
// crash mid-batch can be detected and replayed on the next startup, leaving
// the index either at the old watermark or at the new watermark for a
// prefix of commits.
//
// The record format is a fixed-field, "@"-delimited line: rev, commit id,
// author, date, and changed-path actions.
package journal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// NodeAction is the kind of change a path underwent in a revision.
type NodeAction int

const (
	ActionAdded NodeAction = iota
	ActionDeleted
	ActionModified
	ActionReplaced
)

func (a NodeAction) String() string {
	switch a {
	case ActionAdded:
		return "A"
	case ActionDeleted:
		return "D"
	case ActionModified:
		return "M"
	case ActionReplaced:
		return "R"
	default:
		return "?"
	}
}

func ParseNodeAction(s string) (NodeAction, error) {
	switch s {
	case "A":
		return ActionAdded, nil
	case "D":
		return ActionDeleted, nil
	case "M":
		return ActionModified, nil
	case "R":
		return ActionReplaced, nil
	default:
		return 0, fmt.Errorf("journal: unknown node action %q", s)
	}
}

// ChangedPath is one entry of a revision's changed-path set.
type ChangedPath struct {
	Path         string
	Action       NodeAction
	CopyFromPath string
	CopyFromRev  int64 // -1 when not a copy
}

// Journal is an append-only write-ahead log of observed revisions.
type Journal struct {
	filename string
	w        io.Writer
	closer   io.Closer
}

func New(filename string) *Journal {
	return &Journal{filename: filename}
}

// Open truncates and (re)creates the journal file for a fresh write.
func (j *Journal) Open() error {
	f, err := os.Create(j.filename)
	if err != nil {
		return err
	}
	j.w = bufio.NewWriter(f)
	j.closer = f
	return nil
}

// SetWriter lets tests (or in-memory callers) supply a writer directly,
// bypassing the filesystem.
func (j *Journal) SetWriter(w io.Writer) {
	j.w = w
	j.closer = nil
}

func (j *Journal) Close() error {
	if bw, ok := j.w.(*bufio.Writer); ok {
		if err := bw.Flush(); err != nil {
			return err
		}
	}
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}

// WriteBatchBegin marks the start of an "observe new commits" batch so a
// reader replaying the journal after a crash can tell an in-progress batch
// from a committed one.
func (j *Journal) WriteBatchBegin(fromRev, toRev int64) error {
	_, err := fmt.Fprintf(j.w, "@batch-begin@ %d %d\n", fromRev, toRev)
	return err
}

// WriteRevision appends one fully-formed revision record.
func (j *Journal) WriteRevision(rev int64, commitID, author string, unixTime int64, message string, changed []ChangedPath) error {
	escMsg := escape(message)
	if _, err := fmt.Fprintf(j.w, "@rev@ %d @%s@ @%s@ %d @%s@\n", rev, commitID, author, unixTime, escMsg); err != nil {
		return err
	}
	for _, cp := range changed {
		copyFrom := "-"
		copyRev := int64(-1)
		if cp.CopyFromPath != "" {
			copyFrom = cp.CopyFromPath
			copyRev = cp.CopyFromRev
		}
		if _, err := fmt.Fprintf(j.w, "@path@ %d %s @%s@ @%s@ %d\n", rev, cp.Action, cp.Path, copyFrom, copyRev); err != nil {
			return err
		}
	}
	return nil
}

// WriteBatchEnd marks a batch as durably committed to the revindex store.
func (j *Journal) WriteBatchEnd(toRev int64) error {
	_, err := fmt.Fprintf(j.w, "@batch-end@ %d\n", toRev)
	return err
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "@", `\@`)
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, `\@`, "@")
	return strings.ReplaceAll(s, `\\`, `\`)
}

// Batch is one observe-new-commits run recovered from the journal.
type Batch struct {
	FromRev, ToRev int64
	Committed      bool
	Revisions      []RevisionRecord
}

// RevisionRecord is one parsed @rev@/@path@ group.
type RevisionRecord struct {
	Rev      int64
	CommitID string
	Author   string
	UnixTime int64
	Message  string
	Changed  []ChangedPath
}

// Replay reads a journal file front-to-back, returning every batch found,
// flagging whether each was closed with WriteBatchEnd. The revindex uses
// this on startup to decide whether to re-run an unfinished batch.
func Replay(r io.Reader) ([]Batch, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var batches []Batch
	var cur *Batch
	var curRev *RevisionRecord
	flushRev := func() {
		if cur != nil && curRev != nil {
			cur.Revisions = append(cur.Revisions, *curRev)
			curRev = nil
		}
	}
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "@batch-begin@":
			flushRev()
			from, _ := strconv.ParseInt(fields[1], 10, 64)
			to, _ := strconv.ParseInt(fields[2], 10, 64)
			batches = append(batches, Batch{FromRev: from, ToRev: to})
			cur = &batches[len(batches)-1]
		case "@batch-end@":
			flushRev()
			if cur != nil {
				cur.Committed = true
			}
		case "@rev@":
			flushRev()
			rev, _ := strconv.ParseInt(fields[1], 10, 64)
			commitID := trimAt(fields[2])
			author := trimAt(fields[3])
			unixTime, _ := strconv.ParseInt(fields[4], 10, 64)
			message := unescape(trimAt(strings.Join(fields[5:], " ")))
			curRev = &RevisionRecord{Rev: rev, CommitID: commitID, Author: author, UnixTime: unixTime, Message: message}
		case "@path@":
			if curRev == nil {
				continue
			}
			action, err := ParseNodeAction(fields[2])
			if err != nil {
				return nil, err
			}
			path := trimAt(fields[3])
			copyFrom := trimAt(fields[4])
			copyRev, _ := strconv.ParseInt(fields[5], 10, 64)
			cp := ChangedPath{Path: path, Action: action, CopyFromRev: -1}
			if copyFrom != "-" {
				cp.CopyFromPath = copyFrom
				cp.CopyFromRev = copyRev
			}
			curRev.Changed = append(curRev.Changed, cp)
		}
	}
	flushRev()
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

func trimAt(s string) string {
	return strings.TrimSuffix(strings.TrimPrefix(s, "@"), "@")
}
