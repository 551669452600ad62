// Package auth carries the Google access token used for direct Vertex calls.
// A Session is immutable; Refresh returns a new one.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
)

// CloudPlatformScope is the scope requested from application default credentials.
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

var (
	// ErrNoRefresher is returned by Refresh on a session built from a fixed token.
	ErrNoRefresher = errors.New("auth: session cannot be refreshed")
	// ErrNoToken is returned when the token source yields an empty token.
	ErrNoToken = errors.New("auth: no access token")
)

// Source opens a fresh token source. It is called once per refresh.
type Source func(ctx context.Context) (oauth2.TokenSource, error)

// ADC returns a Source backed by Google application default credentials.
func ADC(scopes ...string) Source {
	if len(scopes) == 0 {
		scopes = []string{CloudPlatformScope}
	}
	return func(ctx context.Context) (oauth2.TokenSource, error) {
		creds, err := google.FindDefaultCredentials(ctx, scopes...)
		if err != nil {
			return nil, fmt.Errorf("auth: default credentials: %w", err)
		}
		return creds.TokenSource, nil
	}
}

// Session is an access token plus the means to obtain the next one.
type Session struct {
	token  *oauth2.Token
	source Source
	group  *singleflight.Group
}

// Static returns a session holding a fixed access token.
func Static(accessToken string) Session {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return Session{}
	}
	return Session{token: &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}}
}

// New returns a session without a token that obtains one from src on Refresh.
func New(src Source) Session {
	return Session{source: src, group: &singleflight.Group{}}
}

// AccessToken returns the bearer token, or "" when the session holds none.
func (s Session) AccessToken() string {
	if s.token == nil {
		return ""
	}
	return s.token.AccessToken
}

// Valid reports whether the session holds an unexpired token.
func (s Session) Valid() bool {
	return s.token.Valid()
}

// Expiry returns the token expiry; zero means the token does not expire.
func (s Session) Expiry() time.Time {
	if s.token == nil {
		return time.Time{}
	}
	return s.token.Expiry
}

// Refreshable reports whether Refresh can produce a new token.
func (s Session) Refreshable() bool {
	return s.source != nil
}

// Refresh fetches a new token and returns a new session carrying it. The
// receiver is left untouched. Concurrent refreshes of sessions derived from
// the same source share one upstream call.
func (s Session) Refresh(ctx context.Context) (Session, error) {
	if s.source == nil {
		return Session{}, ErrNoRefresher
	}
	v, err, _ := s.group.Do("token", func() (any, error) {
		ts, err := s.source(ctx)
		if err != nil {
			return nil, err
		}
		tok, err := ts.Token()
		if err != nil {
			return nil, fmt.Errorf("auth: fetch token: %w", err)
		}
		if tok == nil || tok.AccessToken == "" {
			return nil, ErrNoToken
		}
		return tok, nil
	})
	if err != nil {
		return Session{}, err
	}
	return Session{token: v.(*oauth2.Token), source: s.source, group: s.group}, nil
}

type ctxKey struct{}

// NewContext returns a context carrying s.
func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session carried by ctx.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}
