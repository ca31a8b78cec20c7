package passwordgrant

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"

	"github.com/ggoodman/passwordgrant-go/internal/tokenclient"
)

// ClientAuth selects how the client identifier and secret are presented to
// the token endpoint.
type ClientAuth = tokenclient.ClientAuth

const (
	// ClientAuthHeader uses HTTP Basic authentication (the default).
	ClientAuthHeader = tokenclient.ClientAuthHeader
	// ClientAuthBody sends client_id and client_secret as form parameters.
	ClientAuthBody = tokenclient.ClientAuthBody
)

// ParseClientAuth accepts "header" (or "basic") and "body" (or "post").
func ParseClientAuth(s string) (ClientAuth, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "header", "basic", "client_secret_basic":
		return ClientAuthHeader, nil
	case "body", "post", "client_secret_post":
		return ClientAuthBody, nil
	default:
		return ClientAuthHeader, fmt.Errorf("passwordgrant: unknown client auth method %q", s)
	}
}

// Config is the immutable configuration of a Strategy. Only TokenEndpoint and
// ClientID are required.
type Config struct {
	TokenEndpoint string
	ClientID      string
	ClientSecret  string
	// CustomHeaders are added to every token request.
	CustomHeaders map[string]string
	// PassRequestToCallback must be set when the verifier is a
	// VerifyRequestFunc or VerifyRequestWithParamsFunc, and unset otherwise.
	PassRequestToCallback bool
	// SkipUserProfile bypasses the profile loader; verifiers then receive a
	// nil Profile.
	SkipUserProfile bool

	// Scopes is sent as the space-delimited "scope" parameter when non-empty.
	Scopes     []string
	ClientAuth ClientAuth
	// HTTPClient is used for token requests. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// ProfileLoader defaults to NoProfile.
	ProfileLoader ProfileLoader
	// TokenClient replaces the built-in token endpoint client. HTTPClient,
	// ClientAuth and CustomHeaders are ignored when it is set.
	TokenClient TokenClient
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Validate reports the first missing required option as a *UsageError.
func (c Config) Validate() error {
	if c.TokenEndpoint == "" {
		return &UsageError{Field: "tokenEndpoint"}
	}
	if c.ClientID == "" {
		return &UsageError{Field: "clientID"}
	}
	return nil
}

// Copy returns a deep copy safe for mutation by the caller.
func (c Config) Copy() Config {
	dup := c
	if c.CustomHeaders != nil {
		dup.CustomHeaders = make(map[string]string, len(c.CustomHeaders))
		for k, v := range c.CustomHeaders {
			dup.CustomHeaders[k] = v
		}
	}
	dup.Scopes = append([]string(nil), c.Scopes...)
	return dup
}

// Headers is a set of HTTP headers decoded from "Name=value;Other=value".
type Headers map[string]string

// Decode implements envdecode.Decoder.
func (h *Headers) Decode(s string) error {
	out := Headers{}
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return fmt.Errorf("invalid header %q: want Name=value", pair)
		}
		out[name] = strings.TrimSpace(value)
	}
	*h = out
	return nil
}

// EnvConfig is the environment representation of Config.
type EnvConfig struct {
	// TokenEndpoint. ENV: PASSWORDGRANT_TOKEN_URL
	TokenEndpoint string `env:"PASSWORDGRANT_TOKEN_URL"`
	// ClientID. ENV: PASSWORDGRANT_CLIENT_ID
	ClientID string `env:"PASSWORDGRANT_CLIENT_ID"`
	// ClientSecret. ENV: PASSWORDGRANT_CLIENT_SECRET
	ClientSecret string `env:"PASSWORDGRANT_CLIENT_SECRET"`
	// Headers like "X-Tenant=acme;X-Env=prod". ENV: PASSWORDGRANT_HEADERS
	Headers Headers `env:"PASSWORDGRANT_HEADERS"`
	// Scopes separated by ";". ENV: PASSWORDGRANT_SCOPES
	Scopes []string `env:"PASSWORDGRANT_SCOPES"`
	// ClientAuth is "header" or "body". ENV: PASSWORDGRANT_CLIENT_AUTH
	ClientAuth string `env:"PASSWORDGRANT_CLIENT_AUTH,default=header"`
	// SkipUserProfile. ENV: PASSWORDGRANT_SKIP_PROFILE
	SkipUserProfile bool `env:"PASSWORDGRANT_SKIP_PROFILE,default=false"`
	// Timeout for token requests. ENV: PASSWORDGRANT_TIMEOUT
	Timeout time.Duration `env:"PASSWORDGRANT_TIMEOUT,default=30s"`
}

// Config converts the environment values into a Config. Verifier-dependent
// options (PassRequestToCallback, ProfileLoader) are left for the caller.
func (e EnvConfig) Config() (Config, error) {
	auth, err := ParseClientAuth(e.ClientAuth)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		TokenEndpoint:   e.TokenEndpoint,
		ClientID:        e.ClientID,
		ClientSecret:    e.ClientSecret,
		CustomHeaders:   map[string]string(e.Headers),
		Scopes:          append([]string(nil), e.Scopes...),
		ClientAuth:      auth,
		SkipUserProfile: e.SkipUserProfile,
	}
	if e.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: e.Timeout}
	}
	return cfg, nil
}

// LoadConfigFromEnv builds a Config using envdecode. Missing required values
// are not an error here; New reports them.
func LoadConfigFromEnv() (Config, error) {
	var ec EnvConfig
	if err := envdecode.Decode(&ec); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("passwordgrant: decode environment: %w", err)
	}
	return ec.Config()
}
