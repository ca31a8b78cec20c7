package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/ggoodman/passwordgrant-go/passwordgrant"
)

// UserInfo loads profiles from an OpenID Connect userinfo endpoint.
type UserInfo struct {
	provider *oidc.Provider
	opts     options
}

// NewUserInfo discovers issuer's metadata and returns a loader calling its
// userinfo endpoint.
func NewUserInfo(ctx context.Context, issuer string, opts ...Option) (*UserInfo, error) {
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	o := apply(opts)

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, o.httpClient), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	if provider.UserInfoEndpoint() == "" {
		return nil, errors.New("discovery incomplete: missing userinfo_endpoint")
	}
	return &UserInfo{provider: provider, opts: o}, nil
}

// Endpoint returns the discovered userinfo endpoint.
func (u *UserInfo) Endpoint() string {
	return u.provider.UserInfoEndpoint()
}

func (u *UserInfo) LoadProfile(ctx context.Context, accessToken string) (passwordgrant.Profile, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})

	info, err := u.provider.UserInfo(oidc.ClientContext(ctx, u.opts.httpClient), ts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user profile: %w", err)
	}

	p := passwordgrant.Profile{}
	if err := info.Claims(&p); err != nil {
		return nil, fmt.Errorf("failed to parse user profile: %w", err)
	}
	return p, nil
}

var _ passwordgrant.ProfileLoader = (*UserInfo)(nil)
