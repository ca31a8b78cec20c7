// Package jwtprofile reads a user profile out of a JWT access token after
// verifying it against the issuer's JWKS.
package jwtprofile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates the access token is not a JWT this loader
// accepts (bad signature, issuer, audience, expiry, algorithm).
var ErrInvalidToken = errors.New("jwtprofile: invalid access token")

// Config controls validation. Issuer and Audiences are optional; when set
// they are enforced.
type Config struct {
	Issuer      string
	Audiences   []string
	AllowedAlgs []string
	Leeway      time.Duration
	// RequireExp rejects tokens without an exp claim.
	RequireExp bool
	// HTTPClient fetches discovery metadata and the JWKS. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// DefaultConfig returns a Config with safe defaults for algorithm and leeway.
func DefaultConfig() *Config {
	return &Config{
		AllowedAlgs: []string{"RS256"},
		Leeway:      60 * time.Second,
		RequireExp:  true,
	}
}

// Loader verifies access tokens and returns their claims.
type Loader struct {
	cfg     *Config
	keyfunc jwt.Keyfunc
}

// New builds a Loader that fetches (and keeps refreshing) keys from jwksURL.
func New(ctx context.Context, cfg *Config, jwksURL string) (*Loader, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if jwksURL == "" {
		return nil, errors.New("jwks url required")
	}
	if len(cfg.AllowedAlgs) == 0 {
		cfg.AllowedAlgs = []string{"RS256"}
	}

	var (
		kf  keyfunc.Keyfunc
		err error
	)
	if cfg.HTTPClient != nil {
		kf, err = keyfunc.NewDefaultOverrideCtx(ctx, []string{jwksURL}, keyfunc.Override{Client: cfg.HTTPClient})
	} else {
		kf, err = keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	}
	if err != nil {
		return nil, fmt.Errorf("jwks init failed: %w", err)
	}
	return newLoader(cfg, kf.Keyfunc), nil
}

// NewFromDiscovery looks up jwks_uri (and the issuer, if unset) via OpenID
// Connect discovery and then behaves like New.
func NewFromDiscovery(ctx context.Context, issuer string, cfg *Config) (*Loader, error) {
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	dctx := ctx
	if cfg.HTTPClient != nil {
		dctx = oidc.ClientContext(ctx, cfg.HTTPClient)
	}
	provider, err := oidc.NewProvider(dctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	var meta struct {
		Issuer  string `json:"issuer"`
		JwksURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("invalid discovery metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, errors.New("discovery incomplete: missing jwks_uri")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = meta.Issuer
	}
	return New(ctx, cfg, meta.JwksURI)
}

func newLoader(cfg *Config, kf jwt.Keyfunc) *Loader {
	return &Loader{
		cfg: cfg,
		keyfunc: func(t *jwt.Token) (any, error) {
			if !slices.Contains(cfg.AllowedAlgs, t.Method.Alg()) {
				return nil, fmt.Errorf("disallowed alg: %s", t.Method.Alg())
			}
			return kf(t)
		},
	}
}

// Claims verifies tok and returns its claims.
func (l *Loader) Claims(ctx context.Context, tok string) (map[string]any, error) {
	if tok == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(l.cfg.AllowedAlgs),
		jwt.WithLeeway(l.cfg.Leeway),
	}
	if l.cfg.RequireExp {
		opts = append(opts, jwt.WithExpirationRequired())
	}
	if l.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(l.cfg.Issuer))
	}

	parsed, err := jwt.NewParser(opts...).Parse(tok, l.keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	if len(l.cfg.Audiences) > 0 && !audIntersects(claims["aud"], l.cfg.Audiences) {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}

	out := make(map[string]any, len(claims))
	for k, v := range claims {
		out[k] = v
	}
	return out, nil
}

func audIntersects(aud any, wants []string) bool {
	switch v := aud.(type) {
	case string:
		return slices.Contains(wants, v)
	case []any:
		for _, e := range v {
			if s, ok := e.(string); ok && slices.Contains(wants, s) {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if slices.Contains(wants, s) {
				return true
			}
		}
	}
	return false
}
