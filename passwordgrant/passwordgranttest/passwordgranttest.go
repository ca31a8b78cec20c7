// Package passwordgranttest provides test doubles for the passwordgrant
// package: a scripted token client, a counting profile loader and a
// recording reporter.
package passwordgranttest

import (
	"context"
	"sync"

	"github.com/ggoodman/passwordgrant-go/passwordgrant"
)

// Well-known values from RFC 6749 examples, handy in assertions.
const (
	AccessToken  = "2YotnFZFEjr1zCsicMWpAA"
	RefreshToken = "tGzv3JOkF0XG5Qx2TlKWIA"
)

// TokenClient answers every request with Result or Err and records what it
// was asked. If Result and Err are both nil it issues AccessToken and
// RefreshToken for foo/bar and other tokens for anything else.
type TokenClient struct {
	Result *passwordgrant.TokenResult
	Err    error

	mu       sync.Mutex
	requests []passwordgrant.TokenRequest
}

var _ passwordgrant.TokenClient = (*TokenClient)(nil)

// NewTokenClient returns a client issuing the example tokens together with
// params.
func NewTokenClient(params map[string]any) *TokenClient {
	return &TokenClient{Result: &passwordgrant.TokenResult{
		AccessToken:  AccessToken,
		RefreshToken: RefreshToken,
		Params:       params,
	}}
}

// NewFailingTokenClient returns a client that always fails with err.
func NewFailingTokenClient(err error) *TokenClient {
	return &TokenClient{Err: err}
}

// NewHTTPErrorTokenClient returns a client that always fails with an HTTP
// error response.
func NewHTTPErrorTokenClient(status int, body string) *TokenClient {
	return &TokenClient{Err: &passwordgrant.HTTPFailure{StatusCode: status, Body: body}}
}

func (c *TokenClient) RequestToken(ctx context.Context, req passwordgrant.TokenRequest) (*passwordgrant.TokenResult, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}
	if c.Result != nil {
		if req.GrantType != "password" || req.Username != "foo" || req.Password != "bar" {
			return &passwordgrant.TokenResult{AccessToken: "wrong-access-token", RefreshToken: "wrong-refresh-token"}, nil
		}
		res := *c.Result
		return &res, nil
	}
	if req.Username == "foo" && req.Password == "bar" {
		return &passwordgrant.TokenResult{AccessToken: AccessToken, RefreshToken: RefreshToken, Params: map[string]any{"token_type": "example"}}, nil
	}
	return &passwordgrant.TokenResult{AccessToken: "wrong-access-token", RefreshToken: "wrong-refresh-token"}, nil
}

// Requests returns a copy of the recorded requests.
func (c *TokenClient) Requests() []passwordgrant.TokenRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]passwordgrant.TokenRequest(nil), c.requests...)
}

// ProfileLoader returns Profile (or Err) for AccessToken, an error for other
// tokens, and counts calls.
type ProfileLoader struct {
	Profile passwordgrant.Profile
	Err     error

	mu    sync.Mutex
	calls int
}

var _ passwordgrant.ProfileLoader = (*ProfileLoader)(nil)

func (l *ProfileLoader) LoadProfile(ctx context.Context, accessToken string) (passwordgrant.Profile, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()

	if l.Err != nil {
		return nil, l.Err
	}
	if accessToken != AccessToken {
		return nil, errFailedToLoadProfile
	}
	return l.Profile, nil
}

// Calls reports how many times LoadProfile ran.
func (l *ProfileLoader) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type profileError string

func (e profileError) Error() string { return string(e) }

const errFailedToLoadProfile = profileError("failed to load user profile")

// Reporter records every call it receives.
type Reporter struct {
	mu        sync.Mutex
	successes int
	fails     int
	errors    int
	User      any
	Info      any
	Err       error
}

var _ passwordgrant.Reporter = (*Reporter)(nil)

func (r *Reporter) Success(user, info any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes++
	r.User, r.Info = user, info
}

func (r *Reporter) Fail(info any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fails++
	r.Info = info
}

func (r *Reporter) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors++
	r.Err = err
}

// Counts returns the number of Success, Fail and Error calls.
func (r *Reporter) Counts() (successes, fails, errs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.successes, r.fails, r.errors
}
