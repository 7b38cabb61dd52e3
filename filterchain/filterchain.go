// Package filterchain applies bijective encode/decode pairs, the filter
// chain: the transform between what is stored in a Git blob and what an
// SVN client should see for a given path. Which filters apply to a path
// is decided by propsynth from .gitattributes; filterchain only knows how
// to run the filters it is told to run.
package filterchain

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/h2non/filetype"
	lru "github.com/hashicorp/golang-lru/v2"
)

// sniffLen is the head size filetype.Match needs to identify a format.
const sniffLen = 261

// Sniff reports whether content's head looks binary.
func Sniff(head []byte) (binary bool, mimeType string) {
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if filetype.IsImage(head) || filetype.IsVideo(head) || filetype.IsArchive(head) || filetype.IsAudio(head) {
		kind, _ := filetype.Match(head)
		if kind != filetype.Unknown {
			return true, kind.MIME.Value
		}
		return true, "application/octet-stream"
	}
	if filetype.IsDocument(head) {
		kind, _ := filetype.Match(head)
		return true, kind.MIME.Value
	}
	return false, "text/plain"
}

// Filter is one named, bijective transform in a chain. Decode must be the
// exact inverse of Encode: decode(encode(x)) == x for every blob the filter
// is ever applied to, since the svnserve client reads through Decode and
// commitbuilder writes back through Encode.
type Filter interface {
	Name() string
	Decode(stored io.Reader, w io.Writer) error // Git blob bytes -> working bytes
	Encode(working io.Reader, w io.Writer) error // working bytes -> Git blob bytes
}

// Identity is the no-op filter, the default when .gitattributes sets no
// filter for a path.
type Identity struct{}

func (Identity) Name() string { return "identity" }
func (Identity) Decode(r io.Reader, w io.Writer) error { _, err := io.Copy(w, r); return err }
func (Identity) Encode(r io.Reader, w io.Writer) error { _, err := io.Copy(w, r); return err }

// Gzip stores blobs gzip-compressed at rest and decompresses on read, as a
// filter-chain stage rather than a side effect of the save path.
type Gzip struct{}

func (Gzip) Name() string { return "gzip" }

func (Gzip) Decode(r io.Reader, w io.Writer) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("filterchain: gzip decode: %w", err)
	}
	defer zr.Close()
	_, err = io.Copy(w, zr)
	return err
}

func (Gzip) Encode(r io.Reader, w io.Writer) error {
	zw := gzip.NewWriter(w)
	if _, err := io.Copy(zw, r); err != nil {
		zw.Close()
		return fmt.Errorf("filterchain: gzip encode: %w", err)
	}
	return zw.Close()
}

// BlobStore is the minimal out-of-band object store the LFS-pointer filter
// reads/writes through.
type BlobStore interface {
	Get(oid string) (io.ReadCloser, error)
	Put(r io.Reader) (oid string, size int64, err error)
}

// LFSPointer decodes a Git LFS pointer file into the real object bytes (read
// path) and encodes real bytes into a pointer file plus a side write to the
// backing BlobStore (write path), modeling Git LFS's pointer file filter.
type LFSPointer struct {
	Store BlobStore
}

func (LFSPointer) Name() string { return "lfs-pointer" }

func (f LFSPointer) Decode(r io.Reader, w io.Writer) error {
	oid, err := parseLFSPointer(r)
	if err != nil {
		return err
	}
	rc, err := f.Store.Get(oid)
	if err != nil {
		return fmt.Errorf("filterchain: lfs-pointer fetch %s: %w", oid, err)
	}
	defer rc.Close()
	_, err = io.Copy(w, rc)
	return err
}

func (f LFSPointer) Encode(r io.Reader, w io.Writer) error {
	oid, size, err := f.Store.Put(r)
	if err != nil {
		return fmt.Errorf("filterchain: lfs-pointer store: %w", err)
	}
	_, err = fmt.Fprintf(w, "version https://git-lfs.github.com/spec/v1\noid sha256:%s\nsize %d\n", oid, size)
	return err
}

func parseLFSPointer(r io.Reader) (oid string, err error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(r, 1024)); err != nil {
		return "", fmt.Errorf("filterchain: lfs-pointer read: %w", err)
	}
	const prefix = "oid sha256:"
	s := buf.String()
	idx := bytes.Index(buf.Bytes(), []byte(prefix))
	if idx < 0 {
		return "", fmt.Errorf("filterchain: malformed lfs pointer: missing %q", prefix)
	}
	rest := s[idx+len(prefix):]
	end := bytes.IndexByte([]byte(rest), '\n')
	if end < 0 {
		end = len(rest)
	}
	return rest[:end], nil
}

// Chain applies a named sequence of filters in order: Decode runs first to
// last, Encode runs last to first, so a chain is its own bijective inverse.
type Chain []Filter

func (c Chain) Decode(stored []byte) ([]byte, error) {
	cur := stored
	for _, f := range c {
		var out bytes.Buffer
		if err := f.Decode(bytes.NewReader(cur), &out); err != nil {
			return nil, fmt.Errorf("filterchain: %s decode: %w", f.Name(), err)
		}
		cur = out.Bytes()
	}
	return cur, nil
}

func (c Chain) Encode(working []byte) ([]byte, error) {
	cur := working
	for i := len(c) - 1; i >= 0; i-- {
		f := c[i]
		var out bytes.Buffer
		if err := f.Encode(bytes.NewReader(cur), &out); err != nil {
			return nil, fmt.Errorf("filterchain: %s encode: %w", f.Name(), err)
		}
		cur = out.Bytes()
	}
	return cur, nil
}

// Digest is the cached outcome of running a chain over a blob: its decoded
// size and content MD5, both of which SVN's wire protocol reports without
// re-deriving on every request.
type Digest struct {
	MD5  [16]byte
	Size int64
}

// DigestCache memoizes (blobId, chainHash) -> Digest so a hot path doesn't
// decode the same blob through the same chain repeatedly, the same
// hashicorp/golang-lru/v2 cache shape propsynth uses for its own
// per-(commit,path) results.
type DigestCache struct {
	cache *lru.Cache[string, Digest]
}

// NewDigestCache builds a cache holding up to size entries.
func NewDigestCache(size int) (*DigestCache, error) {
	c, err := lru.New[string, Digest](size)
	if err != nil {
		return nil, fmt.Errorf("filterchain: new digest cache: %w", err)
	}
	return &DigestCache{cache: c}, nil
}

func (d *DigestCache) Get(key string) (Digest, bool) {
	return d.cache.Get(key)
}

func (d *DigestCache) Put(key string, digest Digest) {
	d.cache.Add(key, digest)
}
