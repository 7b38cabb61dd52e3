// Package lfsstore is the concrete filterchain.BlobStore backing the
// lfs-pointer filter: content-addressed storage for the real bytes an LFS
// pointer file stands in for, sharded on disk the way Git shards loose
// objects, using plain os and path/filepath file access.
package lfsstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rcowham/gitsvnbridge/errdefs"
)

// Store is a filesystem-backed, content-addressed (sha256) object store.
// Put computes the oid from the written content, matching Git LFS's own
// addressing scheme; Get rejects unknown oids with errdefs.PathNotFound.
type Store struct {
	root string
}

// Open creates root if needed and returns a Store rooted there.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errdefs.IOError("lfsstore-open", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) pathFor(oid string) (string, error) {
	if len(oid) < 4 {
		return "", errdefs.IOError("lfsstore-path", fmt.Errorf("oid %q too short", oid))
	}
	return filepath.Join(s.root, oid[:2], oid[2:4], oid), nil
}

func (s *Store) Get(oid string) (io.ReadCloser, error) {
	p, err := s.pathFor(oid)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errdefs.PathNotFound(oid)
		}
		return nil, errdefs.IOError("lfsstore-get", err)
	}
	return f, nil
}

func (s *Store) Put(r io.Reader) (oid string, size int64, err error) {
	tmp, err := os.CreateTemp(s.root, "incoming-*")
	if err != nil {
		return "", 0, errdefs.IOError("lfsstore-put", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	h := sha256.New()
	n, err := io.Copy(tmp, io.TeeReader(r, h))
	if err != nil {
		return "", 0, errdefs.IOError("lfsstore-put", err)
	}
	oid = hex.EncodeToString(h.Sum(nil))

	dest, err := s.pathFor(oid)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", 0, errdefs.IOError("lfsstore-put", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", 0, errdefs.IOError("lfsstore-put", err)
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", 0, errdefs.IOError("lfsstore-put", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, tmp); err != nil {
		return "", 0, errdefs.IOError("lfsstore-put", err)
	}
	return oid, n, nil
}
