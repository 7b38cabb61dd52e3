// Package auth implements the Authenticator and ACLOracle collaborators:
// SASL-ish CRAM-MD5/ANONYMOUS mechanism negotiation, and a simple
// path-prefix ACL check. Production LDAP/Gitea/GitLab auth-provider
// plumbing is out of scope — this package specifies and implements only
// the interface shape plus a config-file-backed reference implementation.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/subtle"
	"fmt"
)

// Result is what an authentication attempt resolves to.
type Result int

const (
	ResultChallenge Result = iota
	ResultAuthenticated
	ResultRejected
)

// AuthResult is the outcome of one Authenticator.Respond call.
type AuthResult struct {
	Result   Result
	UserID   string
	Challenge []byte // set when Result == ResultChallenge
	Reason   string  // set when Result == ResultRejected
}

// SessionContext carries whatever the authenticator needs about the
// connection being authenticated (repository name, peer address, realm,
// and for CRAM-MD5 the nonce issued earlier in this handshake).
type SessionContext struct {
	Repository string
	PeerAddr   string
	Realm      string
	Nonce      string
}

// Authenticator negotiates one connection's authentication mechanism.
type Authenticator interface {
	Mechanisms(anonymousOK bool) []string
	Respond(ctx context.Context, mech string, response []byte, sess *SessionContext) (AuthResult, error)
}

// ACLOracle authorizes one command against a repository path.
type ACLOracle interface {
	Check(ctx context.Context, user, repo, op, path string, rev *int64) (bool, error)
}

// UserStore supplies the CRAM-MD5 secret for a username; a config-backed
// implementation loads this from the YAML config's top-level users section.
type UserStore interface {
	Secret(user string) (secret string, ok bool)
}

// CramMD5Authenticator implements the two mechanisms real svnserve offers
// by default: ANONYMOUS (no challenge, no identity) and CRAM-MD5 (a
// server-issued nonce, client replies with HMAC-MD5 keyed by the user's
// shared secret).
type CramMD5Authenticator struct {
	Users UserStore
	// Nonce returns a fresh per-attempt challenge string; overridable in
	// tests. Production code supplies a random generator.
	Nonce func() string
}

func (a *CramMD5Authenticator) Mechanisms(anonymousOK bool) []string {
	mechs := []string{"CRAM-MD5"}
	if anonymousOK {
		mechs = append(mechs, "ANONYMOUS")
	}
	return mechs
}

// Respond drives one step of the mechanism. CRAM-MD5 needs two round
// trips (challenge issued, then verified); callers track the issued
// nonce outside this call since Authenticator itself is stateless.
func (a *CramMD5Authenticator) Respond(ctx context.Context, mech string, response []byte, sess *SessionContext) (AuthResult, error) {
	switch mech {
	case "ANONYMOUS":
		return AuthResult{Result: ResultAuthenticated, UserID: ""}, nil
	case "CRAM-MD5":
		return a.respondCramMD5(response, sess)
	default:
		return AuthResult{Result: ResultRejected, Reason: fmt.Sprintf("unsupported mechanism %q", mech)}, nil
	}
}

// IssueChallenge returns a fresh nonce to send the client; the caller
// stores it on the session's SessionContext.Nonce to verify the reply.
func (a *CramMD5Authenticator) IssueChallenge() []byte {
	return []byte(a.Nonce())
}

func (a *CramMD5Authenticator) respondCramMD5(response []byte, sess *SessionContext) (AuthResult, error) {
	if sess == nil || sess.Nonce == "" {
		return AuthResult{Result: ResultRejected, Reason: "no challenge issued"}, nil
	}
	user, digest, ok := splitCramResponse(response)
	if !ok {
		return AuthResult{Result: ResultRejected, Reason: "malformed CRAM-MD5 response"}, nil
	}
	secret, ok := a.Users.Secret(user)
	if !ok {
		return AuthResult{Result: ResultRejected, Reason: "unknown user"}, nil
	}
	expected := hmacMD5Hex(secret, sess.Nonce)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(digest)) != 1 {
		return AuthResult{Result: ResultRejected, Reason: "digest mismatch"}, nil
	}
	return AuthResult{Result: ResultAuthenticated, UserID: user}, nil
}

func hmacMD5Hex(secret, nonce string) string {
	mac := hmac.New(md5.New, []byte(secret))
	mac.Write([]byte(nonce))
	return fmt.Sprintf("%x", mac.Sum(nil))
}

func splitCramResponse(response []byte) (user, digest string, ok bool) {
	s := string(response)
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

// PathPrefixACL is a simple ACLOracle granting access based on a list of
// (user, repo, pathPrefix, allowWrite) rules.
type PathPrefixACL struct {
	Rules []ACLRule
}

// ACLRule is one access grant. User == "*" matches any authenticated
// user; PathPrefix == "" matches the whole repository.
type ACLRule struct {
	User       string
	Repo       string
	PathPrefix string
	Write      bool
}

func (a *PathPrefixACL) Check(ctx context.Context, user, repo, op, path string, rev *int64) (bool, error) {
	write := isWriteOp(op)
	for _, r := range a.Rules {
		if r.Repo != repo {
			continue
		}
		if r.User != "*" && r.User != user {
			continue
		}
		if r.PathPrefix != "" && !pathUnder(path, r.PathPrefix) {
			continue
		}
		if write && !r.Write {
			continue
		}
		return true, nil
	}
	return false, nil
}

func isWriteOp(op string) bool {
	switch op {
	case "commit", "lock", "unlock", "lock-many", "unlock-many", "change-rev-prop":
		return true
	default:
		return false
	}
}

func pathUnder(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return len(path) > len(prefix) && path[:len(prefix)] == prefix && path[len(prefix)] == '/'
}
