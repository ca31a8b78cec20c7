// Package profile provides passwordgrant.ProfileLoader implementations.
//
// NewUserInfo and NewHTTP fetch the profile from an endpoint using the
// access token as a bearer credential. NewJWTClaims reads it out of the
// access token itself. NewCached puts any loader in front of a
// storage.Storage so repeat logins with a still-valid token skip the fetch.
package profile

import (
	"log/slog"
	"net/http"
	"time"
)

const maxBodyBytes = 1 << 20

// Option configures a loader. Options a loader does not use are ignored.
type Option func(*options)

type options struct {
	httpClient *http.Client
	logger     *slog.Logger
	namespace  string
	issuer     string
	audiences  []string
	algs       []string
	leeway     *time.Duration
}

func apply(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = http.DefaultClient
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// WithHTTPClient sets the client used for profile, discovery and JWKS
// requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithLogger sets the logger NewCached reports storage failures to.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithNamespace scopes cached profiles, typically by client ID.
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithIssuer requires JWT access tokens to carry this iss claim.
func WithIssuer(iss string) Option {
	return func(o *options) { o.issuer = iss }
}

// WithAudiences requires JWT access tokens to name one of these audiences.
func WithAudiences(aud ...string) Option {
	return func(o *options) { o.audiences = append([]string(nil), aud...) }
}

// WithAlgorithms overrides the accepted JWT signing algorithms (RS256).
func WithAlgorithms(algs ...string) Option {
	return func(o *options) { o.algs = append([]string(nil), algs...) }
}

// WithLeeway overrides the clock skew allowed for JWT time claims.
func WithLeeway(d time.Duration) Option {
	return func(o *options) { o.leeway = &d }
}
