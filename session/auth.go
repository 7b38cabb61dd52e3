package session

import (
	"context"

	"github.com/rcowham/gitsvnbridge/auth"
	"github.com/rcowham/gitsvnbridge/errdefs"
	"github.com/rcowham/gitsvnbridge/wire"
)

const maxAuthAttempts = 3

// challengeIssuer is implemented by authenticators (auth.CramMD5Authenticator)
// that need to generate a server nonce before Respond can verify anything;
// Authenticator itself stays stateless, so this is kept as an optional
// capability rather than part of the core interface.
type challengeIssuer interface {
	IssueChallenge() []byte
}

// authenticate implements AuthChallenge: advertise mechanisms and realm,
// then loop reading ( mech response? ) frames until ResultAuthenticated or
// the attempt budget is exhausted.
func (c *connection) authenticate(ctx context.Context) error {
	mechs := mechanismsFor(c.server)
	if err := writeWordList(c.w, mechs); err != nil {
		return err
	}
	if err := c.w.String(c.server.realm()); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return err
	}

	sess := &auth.SessionContext{
		Repository: c.targetURL,
		PeerAddr:   c.conn.RemoteAddr().String(),
		Realm:      c.server.realm(),
	}

	for attempt := 0; attempt < maxAuthAttempts; attempt++ {
		v, err := readValue(c.r)
		if err != nil {
			return err
		}
		if v.kind != wire.TokListBegin || len(v.list) == 0 || v.list[0].kind != wire.TokWord {
			return c.fatal(errdefs.MalformedFrame("auth-response", nil))
		}
		mech := v.list[0].word
		var response []byte
		if len(v.list) > 1 {
			response = v.list[1].str
		}

		if mech == "CRAM-MD5" && len(response) == 0 && sess.Nonce == "" {
			if ci, ok := c.server.Authenticator.(challengeIssuer); ok {
				challenge := ci.IssueChallenge()
				sess.Nonce = string(challenge)
				if err := c.sendChallenge(challenge); err != nil {
					return err
				}
				continue
			}
		}

		result, err := c.server.Authenticator.Respond(ctx, mech, response, sess)
		if err != nil {
			return err
		}
		switch result.Result {
		case auth.ResultAuthenticated:
			c.user = result.UserID
			c.log = c.log.WithField("user", c.user)
			if err := writeSuccess(c.w, nil); err != nil {
				return err
			}
			return c.w.Flush()
		case auth.ResultChallenge:
			sess.Nonce = string(result.Challenge)
			if err := c.sendChallenge(result.Challenge); err != nil {
				return err
			}
		default:
			c.server.Metrics.AuthFailuresTotal.Inc()
			if err := writeFailure(c.w, errdefs.AuthFailed(result.Reason)); err != nil {
				return err
			}
		}
	}
	c.server.Metrics.AuthFailuresTotal.Inc()
	return c.fatal(errdefs.AuthFailed("too many attempts"))
}

func (c *connection) sendChallenge(challenge []byte) error {
	if err := writeSuccess(c.w, func() error { return c.w.Bytes(challenge) }); err != nil {
		return err
	}
	return c.w.Flush()
}

func (s *Server) realm() string {
	if s.Realm != "" {
		return s.Realm
	}
	return "svnbridge"
}
