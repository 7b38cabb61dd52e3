package main

// svngraph program
// Walks a served repository's revision index and writes a Graphviz dot
// file showing revision history: one edge per consecutive revision, plus
// a dashed edge for every copy-from relationship (branch/tag creation via
// "svn copy") recorded in the changed-path log.

import (
	"fmt"
	"os"
	"time"

	"github.com/emicklei/dot"
	"github.com/sirupsen/logrus"

	"github.com/perforce/p4prometheus/version"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/rcowham/gitsvnbridge/revindex"
)

type svnGraphOptions struct {
	databaseDir string
	journalFile string
	outputFile  string
	firstRev    int64
	lastRev     int64
}

// svnGraph builds one Graphviz node per revision and edges for both its
// linear predecessor and any copy-from ancestry.
type svnGraph struct {
	logger *logrus.Logger
	opts   svnGraphOptions
	graph  *dot.Graph
	nodes  map[int64]dot.Node
}

func newSvnGraph(logger *logrus.Logger, opts svnGraphOptions) *svnGraph {
	return &svnGraph{logger: logger, opts: opts, nodes: make(map[int64]dot.Node)}
}

func (g *svnGraph) nodeFor(rev int64, record revindex.CommitRecord) dot.Node {
	if n, ok := g.nodes[rev]; ok {
		return n
	}
	label := fmt.Sprintf("r%d\n%s\n%s", rev, record.Author, time.Unix(record.UnixTime, 0).Format("2006-01-02"))
	n := g.graph.Node(label)
	g.nodes[rev] = n
	return n
}

// Build renders the [firstRev, lastRev] window (0 on either end means the
// whole history) into g.graph, which must already be set by the caller.
func (g *svnGraph) Build(idx *revindex.Index) error {
	latest, err := idx.Latest()
	if err != nil {
		return fmt.Errorf("reading latest revision: %w", err)
	}
	first, last := g.opts.firstRev, g.opts.lastRev
	if first <= 0 {
		first = 1
	}
	if last <= 0 || last > latest {
		last = latest
	}

	var prev dot.Node
	havePrev := false
	for rev := first; rev <= last; rev++ {
		record, err := idx.Lookup(rev)
		if err != nil {
			return fmt.Errorf("looking up r%d: %w", rev, err)
		}
		n := g.nodeFor(rev, record)
		if havePrev {
			g.graph.Edge(prev, n, "")
		}
		prev, havePrev = n, true

		for _, cp := range record.Changed {
			if cp.CopyFromRev < 0 {
				continue
			}
			srcRecord, err := idx.Lookup(cp.CopyFromRev)
			if err != nil {
				g.logger.Warnf("r%d: copy-from r%d unresolved: %v", rev, cp.CopyFromRev, err)
				continue
			}
			src := g.nodeFor(cp.CopyFromRev, srcRecord)
			edge := g.graph.Edge(src, n, "copy: "+cp.Path)
			edge.Attr("style", "dashed")
		}
	}
	return nil
}

func main() {
	var (
		databaseDir = kingpin.Flag(
			"database.dir",
			"Directory containing the repository's revision index database and journal.",
		).Required().Short('d').String()
		outputFile = kingpin.Flag(
			"output",
			"Graphviz dot file to write.",
		).Required().Short('o').String()
		firstRev = kingpin.Flag(
			"first.rev",
			"First revision to include (default 0 means from the start).",
		).Default("0").Short('f').Int64()
		lastRev = kingpin.Flag(
			"last.rev",
			"Last revision to include (default 0 means up to the latest).",
		).Default("0").Short('l').Int64()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Int()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("svngraph")).Author("Robert Cowham")
	kingpin.CommandLine.Help = "Renders a served repository's revision history as a Graphviz dot file\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}
	logger.Infof("%v", version.Print("svngraph"))

	idx, err := revindex.Open(*databaseDir+"/svnbridge-index.db", *databaseDir+"/svnbridge-journal.log", logger)
	if err != nil {
		logger.Errorf("error opening revision index: %v", err)
		os.Exit(-1)
	}
	defer idx.Close()

	g := newSvnGraph(logger, svnGraphOptions{
		databaseDir: *databaseDir,
		outputFile:  *outputFile,
		firstRev:    *firstRev,
		lastRev:     *lastRev,
	})
	g.graph = dot.NewGraph(dot.Directed)
	if err := g.Build(idx); err != nil {
		logger.Errorf("error building graph: %v", err)
		os.Exit(-1)
	}

	f, err := os.OpenFile(*outputFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		logger.Errorf("error opening %s: %v", *outputFile, err)
		os.Exit(-1)
	}
	defer f.Close()
	if _, err := f.Write([]byte(g.graph.String())); err != nil {
		logger.Errorf("error writing %s: %v", *outputFile, err)
		os.Exit(-1)
	}
	logger.Infof("wrote %s", *outputFile)
}
