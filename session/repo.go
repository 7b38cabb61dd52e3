package session

import (
	"context"
	"strings"

	"github.com/rcowham/gitsvnbridge/errdefs"
)

// openRepository implements RepositoryOpen: map the target URL captured
// during Greeting onto a configured Repository by longest matching root
// URL prefix, then tell the client the repository's UUID and root URL.
func (c *connection) openRepository(ctx context.Context) error {
	repo, relPath, err := c.server.findRepository(c.targetURL)
	if err != nil {
		return c.fatal(err)
	}
	c.repo = repo
	c.basePath = strings.Trim(relPath, "/")
	c.log = c.log.WithField("repo", repo.Name)

	if err := writeSuccess(c.w, func() error {
		if err := c.w.String(repo.UUID); err != nil {
			return err
		}
		return c.w.String(repo.RootURL)
	}); err != nil {
		return err
	}
	return c.w.Flush()
}

func (s *Server) findRepository(url string) (*Repository, string, error) {
	var best *Repository
	for _, r := range s.Repositories {
		if url == r.RootURL || strings.HasPrefix(url, r.RootURL+"/") {
			if best == nil || len(r.RootURL) > len(best.RootURL) {
				best = r
			}
		}
	}
	if best == nil {
		return nil, "", errdefs.PathNotFound(url)
	}
	return best, strings.TrimPrefix(url, best.RootURL), nil
}

// absPath resolves a command's path argument (relative to the connection's
// current reparent base) to a repository-absolute path.
func (c *connection) absPath(p string) string {
	p = strings.Trim(p, "/")
	if c.basePath == "" {
		return p
	}
	if p == "" {
		return c.basePath
	}
	return c.basePath + "/" + p
}
