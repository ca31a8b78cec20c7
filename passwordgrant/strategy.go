package passwordgrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"

	"github.com/ggoodman/passwordgrant-go/internal/logctx"
	"github.com/ggoodman/passwordgrant-go/internal/tokenclient"
)

// Name is the strategy name reported by Strategy.Name.
const Name = "password-grant"

const grantTypePassword = "password"

// TokenRequest is the form payload of a password grant token request.
type TokenRequest = tokenclient.Request

// TokenResult is a successful token response. Params holds every response
// parameter except refresh_token.
type TokenResult = tokenclient.Result

// HTTPFailure is a non-2xx token endpoint response with its raw body.
type HTTPFailure = tokenclient.HTTPFailure

// TokenClient exchanges credentials for tokens. Errors are raw: an
// *HTTPFailure for non-2xx responses, anything else for transport problems.
// Strategy classifies them.
type TokenClient interface {
	RequestToken(ctx context.Context, req TokenRequest) (*TokenResult, error)
}

// Credentials are the resource owner's username and password.
type Credentials struct {
	Username string
	Password string
}

// Strategy authenticates resource owners with the password grant. It is
// safe for concurrent use; nothing mutable is shared between attempts.
type Strategy struct {
	cfg      Config
	verify   Verifier
	tokens   TokenClient
	profiles ProfileLoader
	log      *slog.Logger
	endpoint string
}

// New validates cfg and verify and returns a Strategy.
func New(cfg Config, verify Verifier) (*Strategy, error) {
	if err := checkVerifier(verify, cfg.PassRequestToCallback); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Copy()

	tc := cfg.TokenClient
	if tc == nil {
		c, err := tokenclient.New(tokenclient.Config{
			TokenURL:     cfg.TokenEndpoint,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			ClientAuth:   cfg.ClientAuth,
			Headers:      cfg.CustomHeaders,
			HTTPClient:   cfg.HTTPClient,
		})
		if err != nil {
			return nil, &UsageError{Field: "tokenEndpoint", Reason: err.Error()}
		}
		tc = c
	}

	pl := cfg.ProfileLoader
	if pl == nil {
		pl = NoProfile
	}

	return &Strategy{
		cfg:      cfg,
		verify:   verify,
		tokens:   tc,
		profiles: pl,
		log:      logctx.Wrap(cfg.Logger),
		endpoint: cfg.TokenEndpoint,
	}, nil
}

// NewFromDiscovery fills an empty cfg.TokenEndpoint from the issuer's OpenID
// Connect discovery document and then behaves like New. An empty issuer
// skips discovery.
func NewFromDiscovery(ctx context.Context, issuer string, cfg Config, verify Verifier) (*Strategy, error) {
	if cfg.TokenEndpoint == "" && issuer != "" {
		if cfg.HTTPClient != nil {
			ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
		}
		provider, err := oidc.NewProvider(ctx, issuer)
		if err != nil {
			return nil, fmt.Errorf("oidc discovery failed: %w", err)
		}
		cfg.TokenEndpoint = provider.Endpoint().TokenURL
		if cfg.TokenEndpoint == "" {
			return nil, errors.New("discovery incomplete: missing token_endpoint")
		}
	}
	return New(cfg, verify)
}

// Name returns "password-grant".
func (s *Strategy) Name() string { return Name }

// TokenEndpoint returns the configured token endpoint URL.
func (s *Strategy) TokenEndpoint() string { return s.endpoint }

// Authenticate runs one attempt: token request, optional profile load,
// verification. It returns a *UsageError, before any I/O, when a credential
// is missing; otherwise the error is nil and the Outcome describes the
// result. r is only forwarded to request-aware verifiers and may be nil for
// the others.
func (s *Strategy) Authenticate(ctx context.Context, r *http.Request, creds Credentials) (Outcome, error) {
	if creds.Username == "" {
		return Outcome{}, &UsageError{Field: "username"}
	}
	if creds.Password == "" {
		return Outcome{}, &UsageError{Field: "password"}
	}

	ctx = logctx.WithAttemptData(ctx, &logctx.AttemptData{
		AttemptID: uuid.NewString(),
		Username:  creds.Username,
		Endpoint:  s.endpoint,
	})
	if r != nil {
		ctx = logctx.WithRequestData(ctx, &logctx.RequestData{
			Method:     r.Method,
			Path:       r.URL.Path,
			UserAgent:  r.UserAgent(),
			RemoteAddr: r.RemoteAddr,
		})
	}

	out := s.run(ctx, r, creds)
	s.logOutcome(ctx, out)
	return out, nil
}

// AuthenticateAndReport is Authenticate for frameworks built around a
// success/fail/error reporter. Exactly one reporter method is called unless
// a *UsageError is returned.
func (s *Strategy) AuthenticateAndReport(ctx context.Context, r *http.Request, creds Credentials, rep Reporter) error {
	out, err := s.Authenticate(ctx, r, creds)
	if err != nil {
		return err
	}
	out.Report(rep)
	return nil
}

func (s *Strategy) run(ctx context.Context, r *http.Request, creds Credentials) Outcome {
	s.log.DebugContext(ctx, "requesting access token")
	tok, err := s.tokens.RequestToken(ctx, TokenRequest{
		GrantType: grantTypePassword,
		Username:  creds.Username,
		Password:  creds.Password,
		Scopes:    s.cfg.Scopes,
	})
	if err != nil {
		return errorOutcome(Classify(err))
	}
	if tok == nil || tok.AccessToken == "" {
		return errorOutcome(Classify(ErrMissingAccessToken))
	}
	if s.log.Enabled(ctx, slog.LevelDebug) {
		t := tok.Token()
		s.log.DebugContext(ctx, "access token issued",
			slog.String("token_type", t.Type()),
			slog.Time("expiry", t.Expiry),
			slog.Bool("refresh_token", t.RefreshToken != ""),
		)
	}

	var profile Profile
	if !s.cfg.SkipUserProfile {
		s.log.DebugContext(ctx, "loading user profile")
		profile, err = s.profiles.LoadProfile(ctx, tok.AccessToken)
		if err != nil {
			return errorOutcome(err)
		}
	}

	s.log.DebugContext(ctx, "verifying", slog.String("shape", s.verify.Shape().String()))
	return dispatch(s.verify, &verifyCall{
		ctx:          ctx,
		req:          r,
		accessToken:  tok.AccessToken,
		refreshToken: tok.RefreshToken,
		params:       tok.Params,
		profile:      profile,
	})
}

func (s *Strategy) logOutcome(ctx context.Context, out Outcome) {
	switch out.Kind {
	case OutcomeSuccess:
		s.log.DebugContext(ctx, "authenticated")
	case OutcomeFail:
		s.log.InfoContext(ctx, "verification rejected attempt")
	default:
		var (
			authzErr  *AuthorizationError
			tokenErr  *TokenError
			internal  *InternalError
			verifyErr *VerificationError
		)
		switch {
		case errors.As(out.Err, &authzErr):
			s.log.InfoContext(ctx, "token endpoint rejected credentials", slog.String("code", authzErr.Code))
		case errors.As(out.Err, &tokenErr):
			s.log.WarnContext(ctx, "token endpoint returned an error", slog.String("code", tokenErr.Code), slog.String("description", tokenErr.Description))
		case errors.As(out.Err, &internal):
			attrs := []any{slog.String("err", out.Err.Error())}
			var hf *HTTPFailure
			if errors.As(internal.Cause, &hf) {
				attrs = append(attrs, slog.Int("status", hf.StatusCode))
			} else if internal.Cause != nil {
				attrs = append(attrs, slog.String("cause", internal.Cause.Error()))
			}
			s.log.WarnContext(ctx, "token request failed", attrs...)
		case errors.As(out.Err, &verifyErr):
			s.log.ErrorContext(ctx, "verification failed", slog.String("err", verifyErr.Error()), slog.Bool("panicked", verifyErr.Panicked))
		default:
			s.log.WarnContext(ctx, "profile load failed", slog.String("err", out.Err.Error()))
		}
	}
}
