package main

// gitsvnbridge serves one or more Git repositories over the native svn://
// wire protocol. Each configured repository gets its own versioned
// filesystem (gitstore + revindex + propsynth + filterchain, unified by
// vfs.FS), advisory lock table, and UUID; the session package drives the
// per-connection protocol state machine against them.
//
// Design:
// main() loads config.yaml, opens each repository's collaborators, builds
// an auth.Authenticator and auth.ACLOracle from the configured users and
// rules, and hands everything to a session.Server listening on the
// configured address. Connections are accepted onto a worker pool sized
// one worker per core, with a floor so a small box still serves a
// handful of concurrent connections.

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" // profiling only
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"

	"github.com/perforce/p4prometheus/version"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/rcowham/gitsvnbridge/auth"
	"github.com/rcowham/gitsvnbridge/config"
	"github.com/rcowham/gitsvnbridge/filterchain"
	"github.com/rcowham/gitsvnbridge/gitstore"
	"github.com/rcowham/gitsvnbridge/lfsstore"
	"github.com/rcowham/gitsvnbridge/lock"
	"github.com/rcowham/gitsvnbridge/propsynth"
	"github.com/rcowham/gitsvnbridge/revindex"
	"github.com/rcowham/gitsvnbridge/session"
	"github.com/rcowham/gitsvnbridge/vfs"
)

func main() {
	var (
		configFile = kingpin.Flag(
			"config",
			"Config file for gitsvnbridge.",
		).Default("gitsvnbridge.yaml").Short('c').String()
		listenAddr = kingpin.Flag(
			"listen",
			"Address to listen on (overrides config).",
		).Short('l').String()
		lfsDir = kingpin.Flag(
			"lfs.dir",
			"Directory backing the lfs-pointer filter's blob store; empty disables the filter.",
		).String()
		debug = kingpin.Flag(
			"debug",
			"Enable debugging level.",
		).Int()
		pprofAddr = kingpin.Flag(
			"pprof",
			"Address to serve net/http/pprof profiling on; empty disables it.",
		).String()
		metricsAddr = kingpin.Flag(
			"metrics",
			"Address to serve Prometheus metrics on; empty disables it.",
		).String()
		memProfile = kingpin.Flag(
			"profile.mem",
			"Write a pprof memory profile to the current directory on exit.",
		).Bool()
	)
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version(version.Print("gitsvnbridge")).Author("Robert Cowham")
	kingpin.CommandLine.Help = "Serves Git repositories over the svn:// wire protocol.\n"
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	if *memProfile {
		defer profile.Start(profile.MemProfile).Stop()
	}

	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if *debug > 0 {
		logger.Level = logrus.DebugLevel
	}

	cfg, err := config.LoadConfigFile(*configFile)
	if err != nil {
		logger.Errorf("error loading config file: %v", err)
		os.Exit(-1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	logger.Infof("%v", version.Print("gitsvnbridge"))

	if *pprofAddr != "" {
		go func() {
			logger.Infof("pprof listening on %s", *pprofAddr)
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				logger.WithError(err).Warn("pprof server stopped")
			}
		}()
	}

	var blobStore filterchain.BlobStore
	if *lfsDir != "" {
		blobStore, err = lfsstore.Open(*lfsDir)
		if err != nil {
			logger.Errorf("error opening lfs store: %v", err)
			os.Exit(-1)
		}
	}

	repos := make(map[string]*session.Repository, len(cfg.Repositories))
	for _, rc := range cfg.Repositories {
		repo, err := openRepository(rc, blobStore, logger)
		if err != nil {
			logger.Errorf("error opening repository %q: %v", rc.Name, err)
			os.Exit(-1)
		}
		repos[repo.RootURL] = repo
		logger.Infof("serving repository %q (uuid %s) at %s", repo.Name, repo.UUID, repo.RootURL)
	}

	authenticator := &auth.CramMD5Authenticator{
		Users: configUserStore(cfg.Users),
		Nonce: func() string { return uuid.NewString() },
	}
	acl := &auth.PathPrefixACL{Rules: configACLRules(cfg.ACLRules)}

	pondSize := runtime.NumCPU()
	pool := pond.New(pondSize, 0, pond.MinWorkers(10))
	defer pool.StopAndWait()

	idleTimeout := secondsOr(cfg.IdleTimeoutSeconds, 60)
	editorTimeout := secondsOr(cfg.EditorSessionTimeoutSeconds, 600)

	server := session.NewServer(cfg.ListenAddr, repos, authenticator, acl,
		cfg.AnonymousRead, idleTimeout, editorTimeout, logger, pool)
	if cfg.Realm != "" {
		server.Realm = cfg.Realm
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", server.Metrics.Handler())
		go func() {
			logger.Infof("metrics listening on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.WithError(err).Warn("metrics server stopped")
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Infof("listening on %s", cfg.ListenAddr)
	if err := server.ListenAndServe(ctx); err != nil {
		logger.Errorf("server exited: %v", err)
		os.Exit(-1)
	}
}

// openRepository wires one configured repository's collaborators together:
// the Git object store, the revision index (and its write-ahead journal,
// opened as a sibling of the index database), the property synthesizer, the
// filter chain resolver built from propsynth's svnbridge:filter property,
// the versioned filesystem unifying all of that, and the advisory lock
// table commits and lock commands share.
func openRepository(rc config.RepositoryConfig, blobStore filterchain.BlobStore, logger *logrus.Logger) (*session.Repository, error) {
	store, err := gitstore.OpenFilesystem(rc.GitDir)
	if err != nil {
		return nil, fmt.Errorf("opening git store: %w", err)
	}

	dbDir := rc.DatabaseDir
	if dbDir == "" {
		dbDir = rc.GitDir
	}
	index, err := revindex.Open(dbDir+"/svnbridge-index.db", dbDir+"/svnbridge-journal.log", logger)
	if err != nil {
		return nil, fmt.Errorf("opening revision index: %w", err)
	}

	synth, err := propsynth.New(store, 4096)
	if err != nil {
		return nil, fmt.Errorf("opening property synthesizer: %w", err)
	}

	resolve := filterResolver(blobStore)

	fs, err := vfs.New(store, index, synth, resolve)
	if err != nil {
		return nil, fmt.Errorf("opening versioned filesystem: %w", err)
	}

	repoUUID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(rc.Name)).String()
	return &session.Repository{
		Name:    rc.Name,
		UUID:    repoUUID,
		RootURL: "/" + rc.Name,
		RefName: rc.TrackedRef,
		Store:   store,
		Index:   index,
		FS:      fs,
		Locks:   lock.NewTable(),
		Resolve: resolve,
	}, nil
}

// filterResolver maps the svnbridge:filter property propsynth synthesizes
// from a .gitattributes "filter" attribute onto a concrete filterchain.Chain.
// Only "gzip" and, when a blob store is configured, "lfs" are recognized;
// anything else (including no filter at all) passes content through
// unchanged.
func filterResolver(blobStore filterchain.BlobStore) vfs.FilterResolver {
	return func(props propsynth.PropertyMap) filterchain.Chain {
		switch props["svnbridge:filter"] {
		case "gzip":
			return filterchain.Chain{filterchain.Gzip{}}
		case "lfs":
			if blobStore != nil {
				return filterchain.Chain{filterchain.LFSPointer{Store: blobStore}}
			}
		}
		return filterchain.Chain{filterchain.Identity{}}
	}
}

func configUserStore(users []config.User) auth.UserStore {
	secrets := make(map[string]string, len(users))
	for _, u := range users {
		secrets[u.Name] = u.Secret
	}
	return mapUserStore(secrets)
}

type mapUserStore map[string]string

func (m mapUserStore) Secret(user string) (string, bool) {
	s, ok := m[user]
	return s, ok
}

func configACLRules(rules []config.ACLRule) []auth.ACLRule {
	out := make([]auth.ACLRule, 0, len(rules))
	for _, r := range rules {
		out = append(out, auth.ACLRule{
			User:       r.User,
			Repo:       r.Repo,
			PathPrefix: r.PathPrefix,
			Write:      r.Write,
		})
	}
	return out
}

func secondsOr(seconds, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}
