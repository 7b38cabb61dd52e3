// Package errdefs defines the typed error kinds used across the bridge,
// each carrying the canonical SVN wire error code so the session engine can
// frame a response without re-classifying the error.
package errdefs

import (
	"errors"
	"fmt"
)

// SVN error codes (subset of svn_error_codes.h that this server reports).
const (
	CodeBadFilename        = 125001
	CodeUnsupportedFeature = 200007
	CodeMalformedData      = 120002
	CodeUnknownCapability  = 170022
	CodeNotAuthorized      = 170001
	CodeAuthFailed         = 170002
	CodeNoSuchRevision     = 160006
	CodeNotFound           = 160013
	CodeNodeKindChange     = 145000
	CodeOutOfDate          = 160028
	CodePropertyError      = 160046
	CodeLockDenied         = 195022
	CodeIllegalTarget      = 160005
	CodeIOError            = 200014
	CodeUnknown            = 210001
)

// Kind tags the broad category so session.go can decide fatal vs per-command.
type Kind int

const (
	KindMalformedFrame Kind = iota
	KindUnsupportedVersion
	KindUnsupportedCapability
	KindAuthFailed
	KindNotAuthorized
	KindRevisionNotFound
	KindPathNotFound
	KindNodeKindMismatch
	KindOutOfDate
	KindPropertyConflict
	KindLockDenied
	KindIllegalEditorState
	KindTimeout
	KindIOError
	KindInternal
)

// Fatal reports whether an error of this kind must terminate the connection.
func (k Kind) Fatal() bool {
	switch k {
	case KindMalformedFrame, KindUnsupportedVersion, KindUnsupportedCapability, KindTimeout, KindIOError:
		return true
	default:
		return false
	}
}

// Error is the typed error wrapped through the stack with errors.Is/As.
type Error struct {
	Kind    Kind
	Code    int
	Path    string
	Op      string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (svn code %d)", e.Op, e.Path, e.Code)
	}
	return fmt.Sprintf("%s (svn code %d)", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Wrapped }

func New(kind Kind, code int, op, path string, wrapped error) *Error {
	return &Error{Kind: kind, Code: code, Op: op, Path: path, Wrapped: wrapped}
}

// Sentinel constructors, one per error kind.
func MalformedFrame(op string, err error) *Error {
	return New(KindMalformedFrame, CodeMalformedData, op, "", err)
}

func UnsupportedVersion(op string) *Error {
	return New(KindUnsupportedVersion, CodeUnsupportedFeature, op, "", nil)
}

func UnsupportedCapability(cap string) *Error {
	return New(KindUnsupportedCapability, CodeUnknownCapability, "capability", cap, nil)
}

func AuthFailed(reason string) *Error {
	return New(KindAuthFailed, CodeAuthFailed, "auth", "", errors.New(reason))
}

func NotAuthorized(op, path string) *Error {
	return New(KindNotAuthorized, CodeNotAuthorized, op, path, nil)
}

func RevisionNotFound(rev int64) *Error {
	return New(KindRevisionNotFound, CodeNoSuchRevision, "revision", fmt.Sprintf("r%d", rev), nil)
}

func PathNotFound(path string) *Error {
	return New(KindPathNotFound, CodeNotFound, "path", path, nil)
}

func NodeKindMismatch(path string) *Error {
	return New(KindNodeKindMismatch, CodeNodeKindChange, "stat", path, nil)
}

func OutOfDate(paths []string) *Error {
	return New(KindOutOfDate, CodeOutOfDate, "commit", fmt.Sprintf("%v", paths), nil)
}

func PropertyConflict(path string, err error) *Error {
	return New(KindPropertyConflict, CodePropertyError, "change-prop", path, err)
}

func LockDenied(path string) *Error {
	return New(KindLockDenied, CodeLockDenied, "lock", path, nil)
}

func IllegalEditorState(op string) *Error {
	return New(KindIllegalEditorState, CodeIllegalTarget, op, "", nil)
}

func Timeout(op string) *Error {
	return New(KindTimeout, CodeIOError, op, "", nil)
}

func IOError(op string, err error) *Error {
	return New(KindIOError, CodeIOError, op, "", err)
}

func Internal(op string, err error) *Error {
	return New(KindInternal, CodeUnknown, op, "", err)
}

// As is a small helper so callers don't need to repeat the *Error pointer dance.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
