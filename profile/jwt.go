package profile

import (
	"context"

	"github.com/ggoodman/passwordgrant-go/internal/jwtprofile"
	"github.com/ggoodman/passwordgrant-go/passwordgrant"
)

// JWTClaims treats the access token as a signed JWT and uses its claims as
// the profile. Opaque or invalid tokens fail with jwtprofile's
// ErrInvalidToken wrapped.
type JWTClaims struct {
	loader *jwtprofile.Loader
}

// NewJWTClaims verifies tokens against the key set at jwksURL, which is
// fetched now and refreshed in the background until ctx is done.
func NewJWTClaims(ctx context.Context, jwksURL string, opts ...Option) (*JWTClaims, error) {
	l, err := jwtprofile.New(ctx, jwtConfig(apply(opts)), jwksURL)
	if err != nil {
		return nil, err
	}
	return &JWTClaims{loader: l}, nil
}

// NewJWTClaimsFromDiscovery locates the key set through OpenID Connect
// discovery of issuer and enforces issuer as the iss claim.
func NewJWTClaimsFromDiscovery(ctx context.Context, issuer string, opts ...Option) (*JWTClaims, error) {
	l, err := jwtprofile.NewFromDiscovery(ctx, issuer, jwtConfig(apply(opts)))
	if err != nil {
		return nil, err
	}
	return &JWTClaims{loader: l}, nil
}

func jwtConfig(o options) *jwtprofile.Config {
	cfg := jwtprofile.DefaultConfig()
	cfg.Issuer = o.issuer
	cfg.Audiences = o.audiences
	cfg.HTTPClient = o.httpClient
	if len(o.algs) > 0 {
		cfg.AllowedAlgs = o.algs
	}
	if o.leeway != nil {
		cfg.Leeway = *o.leeway
	}
	return cfg
}

func (j *JWTClaims) LoadProfile(ctx context.Context, accessToken string) (passwordgrant.Profile, error) {
	claims, err := j.loader.Claims(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return passwordgrant.Profile(claims), nil
}

var _ passwordgrant.ProfileLoader = (*JWTClaims)(nil)
