// Package session implements the connection lifecycle: Greeting ->
// AuthChallenge -> RepositoryOpen -> CommandLoop -> Closed, the command
// dispatch loop on top of it, and the editor-protocol glue wiring
// commitbuilder and report to the wire.
//
// The dispatch shape (parse one frame, look up a handler by command word,
// run the ACL oracle, run the handler, frame the response or error)
// follows the request-dispatch loop shape of a typical Git-protocol
// server; per-connection logging uses a logrus.Entry tagged with a
// connection id.
package session

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/alitto/pond"
	"github.com/sirupsen/logrus"

	"github.com/rcowham/gitsvnbridge/auth"
	"github.com/rcowham/gitsvnbridge/errdefs"
	"github.com/rcowham/gitsvnbridge/gitstore"
	"github.com/rcowham/gitsvnbridge/lock"
	"github.com/rcowham/gitsvnbridge/metrics"
	"github.com/rcowham/gitsvnbridge/revindex"
	"github.com/rcowham/gitsvnbridge/vfs"
	"github.com/rcowham/gitsvnbridge/wire"
)

// ProtocolVersion is the only wire protocol version this bridge speaks.
const ProtocolVersion = 2

// Capabilities is the fixed capability set the server advertises in its
// greeting.
var Capabilities = []string{
	"edit-pipeline", "svndiff1", "absent-entries", "commit-revprops",
	"depth", "log-revprops", "atomic-revprops", "partial-replay", "inherited-props",
}

// Repository bundles one configured repository's collaborators, the unit
// a connection selects during RepositoryOpen.
type Repository struct {
	Name     string
	UUID     string
	RootURL  string
	RefName  string
	Store    *gitstore.Store
	Index    *revindex.Index
	FS       *vfs.FS
	Locks    *lock.Table
	Resolve  vfs.FilterResolver
}

// Server holds every repository this process serves plus the shared
// authentication, authorization, and concurrency collaborators.
type Server struct {
	Addr           string
	Realm          string
	Repositories   map[string]*Repository
	Authenticator  auth.Authenticator
	ACL            auth.ACLOracle
	AnonymousRead  bool
	IdleTimeout    time.Duration
	EditorTimeout  time.Duration
	Logger         *logrus.Logger
	Pool           *pond.WorkerPool
	Metrics        *metrics.Metrics

	nextConnID uint64
}

// NewServer builds a Server. pool is the worker pool accepted connections
// are submitted to, bounding concurrent connections; a nil pool gets one
// sized to runtime.NumCPU() with a minimum of 10 workers. Metrics is always
// a freshly registered metrics.New().
func NewServer(addr string, repos map[string]*Repository, authn auth.Authenticator, acl auth.ACLOracle,
	anonymousRead bool, idleTimeout, editorTimeout time.Duration, logger *logrus.Logger, pool *pond.WorkerPool) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	if pool == nil {
		pool = pond.New(runtime.NumCPU(), 0, pond.MinWorkers(10))
	}
	return &Server{
		Addr: addr, Repositories: repos, Authenticator: authn, ACL: acl,
		AnonymousRead: anonymousRead, IdleTimeout: idleTimeout, EditorTimeout: editorTimeout,
		Logger: logger, Pool: pool, Metrics: metrics.New(),
	}
}

// ListenAndServe accepts connections on s.Addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("svnbridge: listen %s: %w", s.Addr, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("svnbridge: accept: %w", err)
			}
		}
		s.Pool.Submit(func() { s.serveConn(ctx, conn) })
	}
}

// connection is one accepted TCP connection carried through Greeting,
// AuthChallenge, RepositoryOpen and CommandLoop.
type connection struct {
	id     string
	server *Server
	conn   net.Conn
	r      *wire.Reader
	w      *wire.Writer
	log    *logrus.Entry

	user      string
	targetURL string
	repo      *Repository
	basePath  string // path below repo.RootURL the client opened, from Greeting's target URL
	editSess  *editorSession
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	id := fmt.Sprintf("c%d", atomic.AddUint64(&s.nextConnID, 1))
	c := &connection{
		id:     id,
		server: s,
		conn:   conn,
		r:      wire.NewReader(conn),
		w:      wire.NewWriter(conn),
		log:    s.Logger.WithFields(logrus.Fields{"conn": id, "peer": conn.RemoteAddr().String()}),
	}
	defer conn.Close()

	s.Metrics.ConnectionsTotal.Inc()
	s.Metrics.ConnectionsActive.Inc()
	defer s.Metrics.ConnectionsActive.Dec()

	if err := c.run(ctx); err != nil {
		c.log.WithError(err).Info("connection closed")
	}
}

// run drives one connection through its full lifecycle.
func (c *connection) run(ctx context.Context) error {
	if err := c.greet(); err != nil {
		return err
	}
	if err := c.authenticate(ctx); err != nil {
		return err
	}
	if err := c.openRepository(ctx); err != nil {
		return err
	}
	return c.commandLoop(ctx)
}

// greet implements Greeting: advertise the protocol range, mechanism
// list, and capabilities, then read the client's chosen version,
// requested capability subset, and target URL.
func (c *connection) greet() error {
	if err := c.w.ListBegin(); err != nil {
		return err
	}
	c.w.Number(ProtocolVersion)
	c.w.Number(ProtocolVersion)
	if err := writeWordList(c.w, mechanismsFor(c.server)); err != nil {
		return err
	}
	if err := writeWordList(c.w, Capabilities); err != nil {
		return err
	}
	c.w.ListEnd()
	if err := c.w.Flush(); err != nil {
		return err
	}

	version, _, url, err := readGreetingResponse(c.r)
	if err != nil {
		return err
	}
	if version != ProtocolVersion {
		return c.fatal(errdefs.UnsupportedVersion("greeting"))
	}
	c.targetURL = url
	return nil
}

func mechanismsFor(s *Server) []string {
	return s.Authenticator.Mechanisms(s.AnonymousRead)
}

// fatal logs and returns err unchanged; fatal kinds close the connection
// by virtue of run()'s caller returning.
func (c *connection) fatal(err error) error {
	c.log.WithError(err).Warn("fatal protocol error")
	return err
}
