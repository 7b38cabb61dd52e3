// Package propsynth derives the synthesized SVN property map for a
// (revision, path) pair from .gitattributes and .gitignore inherited along
// the path. It is a pure function of the tree at a revision: given the
// same commit and path it always returns the same map, which is what lets
// the Synthesizer memoize it per (commit, path).
package propsynth

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/gitattributes"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/object"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rcowham/gitsvnbridge/errdefs"
)

// TreeReader is the subset of gitstore.Store propsynth needs: reading a
// commit's tree and a blob's content. A narrow interface so propsynth's
// tests can supply a fake without pulling in the whole gitstore package.
type TreeReader interface {
	ReadTree(id plumbing.Hash) (*object.Tree, error)
	ReadBlob(id plumbing.Hash) (io.ReadCloser, error)
}

// PropertyMap maps a property name (UTF-8) to its value (bytes).
type PropertyMap map[string]string

// Synthesizer walks .gitattributes/.gitignore inheritance for a path and
// produces its synthesized property map, memoizing per (commit, path).
type Synthesizer struct {
	store TreeReader
	cache *lru.Cache[cacheKey, PropertyMap]
}

type cacheKey struct {
	commit plumbing.Hash
	path   string
}

// New builds a Synthesizer backed by store, memoizing up to cacheSize
// (commit, path) results with a hashicorp/golang-lru/v2 cache.
func New(store TreeReader, cacheSize int) (*Synthesizer, error) {
	c, err := lru.New[cacheKey, PropertyMap](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("propsynth: new cache: %w", err)
	}
	return &Synthesizer{store: store, cache: c}, nil
}

// Properties returns the synthesized property map for path as it resolves
// under commitID's tree, merging .gitattributes/.gitignore effects from
// root down to path's parent directory; for a directory, its own
// .gitattributes/.gitignore are read as well.
func (s *Synthesizer) Properties(commitID plumbing.Hash, path string, treeID plumbing.Hash, isDir bool) (PropertyMap, error) {
	key := cacheKey{commit: commitID, path: path}
	if cached, ok := s.cache.Get(key); ok {
		return cached, nil
	}

	segments := splitPath(path)
	props := PropertyMap{}

	var attrPatterns []gitattributes.MatchAttribute
	var ignorePatterns []gitignore.Pattern

	// Walk the directories from the root down to path's parent (or to path
	// itself when it is a directory); a file is never read as a tree.
	walkTo := len(segments)
	if !isDir && walkTo > 0 {
		walkTo--
	}
	cur := treeID
	for depth := 0; depth <= walkTo; depth++ {
		domain := segments[:depth]
		dirAttrs, err := s.readAttributesAt(cur, domain)
		if err != nil {
			return nil, err
		}
		attrPatterns = append(attrPatterns, dirAttrs...)

		dirIgnores, err := s.readIgnoresAt(cur, domain)
		if err != nil {
			return nil, err
		}
		ignorePatterns = append(ignorePatterns, dirIgnores...)

		if depth == walkTo {
			break
		}
		next, err := descend(s.store, cur, segments[depth])
		if err != nil {
			return nil, err
		}
		cur = next
	}

	if len(attrPatterns) > 0 {
		matcher := gitattributes.NewMatcher(attrPatterns)
		if m, ok := matcher.Match(segments, nil); ok {
			applyAttributes(props, m.Attributes)
		}
	}

	if isDir && len(ignorePatterns) > 0 {
		ignoreLines := renderIgnorePatterns(ignorePatterns)
		if ignoreLines != "" {
			props["svn:ignore"] = ignoreLines
		}
	}

	s.cache.Add(key, props)
	return props, nil
}

// applyAttributes maps .gitattributes attribute effects onto SVN
// properties.
func applyAttributes(props PropertyMap, attrs []gitattributes.Attribute) {
	for _, a := range attrs {
		value, hasValue := a.Value()
		switch a.Name() {
		case "text":
			if hasValue && value == "unset" {
				delete(props, "svn:eol-style")
			} else {
				props["svn:eol-style"] = "native"
			}
		case "eol":
			if hasValue {
				props["svn:eol-style"] = strings.ToUpper(value)
			}
		case "binary":
			props["svn:mime-type"] = "application/octet-stream"
			delete(props, "svn:eol-style")
		case "filter":
			if hasValue {
				props["svnbridge:filter"] = value
			}
		}
	}
}

func renderIgnorePatterns(patterns []gitignore.Pattern) string {
	seen := map[string]bool{}
	var lines []string
	for _, p := range patterns {
		s := fmt.Sprintf("%v", p)
		if !seen[s] {
			seen[s] = true
			lines = append(lines, s)
		}
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// descend resolves name under the tree at treeID, returning the child
// directory's tree hash.
func descend(store TreeReader, treeID plumbing.Hash, name string) (plumbing.Hash, error) {
	tree, err := store.ReadTree(treeID)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	for _, e := range tree.Entries {
		if e.Name == name {
			return e.Hash, nil
		}
	}
	return plumbing.ZeroHash, errdefs.PathNotFound(name)
}

func (s *Synthesizer) readAttributesAt(treeID plumbing.Hash, domain []string) ([]gitattributes.MatchAttribute, error) {
	content, ok, err := s.readFileAt(treeID, ".gitattributes")
	if err != nil || !ok {
		return nil, err
	}
	return parseAttributesLines(content, domain), nil
}

func (s *Synthesizer) readIgnoresAt(treeID plumbing.Hash, domain []string) ([]gitignore.Pattern, error) {
	content, ok, err := s.readFileAt(treeID, ".gitignore")
	if err != nil || !ok {
		return nil, err
	}
	return parseIgnoreLines(content, domain), nil
}

func (s *Synthesizer) readFileAt(treeID plumbing.Hash, name string) ([]byte, bool, error) {
	tree, err := s.store.ReadTree(treeID)
	if err != nil {
		return nil, false, err
	}
	for _, e := range tree.Entries {
		if e.Name == name {
			rc, err := s.store.ReadBlob(e.Hash)
			if err != nil {
				return nil, false, err
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				return nil, false, err
			}
			return data, true, nil
		}
	}
	return nil, false, nil
}

func parseAttributesLines(content []byte, domain []string) []gitattributes.MatchAttribute {
	var out []gitattributes.MatchAttribute
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, gitattributes.ParsePattern(line, domain))
	}
	return out
}

func parseIgnoreLines(content []byte, domain []string) []gitignore.Pattern {
	var out []gitignore.Pattern
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		out = append(out, gitignore.ParsePattern(line, domain))
	}
	return out
}
