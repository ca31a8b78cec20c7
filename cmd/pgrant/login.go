package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ggoodman/passwordgrant-go/passwordgrant"
	"github.com/ggoodman/passwordgrant-go/profile"
	"github.com/ggoodman/passwordgrant-go/storage"
	"github.com/ggoodman/passwordgrant-go/storage/memory"
	"github.com/ggoodman/passwordgrant-go/storage/redis"
)

type loginOptions struct {
	username       string
	passwordStdin  bool
	issuer         string
	userinfoIssuer string
	profileURL     string
	jwksURL        string
	profileCache   string
	cacheTTL       time.Duration
	verbose        bool
}

func newLoginCmd(s streams) *cobra.Command {
	var o loginOptions
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Run one password grant login and print the outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd.Context(), s, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.username, "username", "", "resource owner username (required)")
	f.BoolVar(&o.passwordStdin, "password-stdin", false, "read the password from the first line of stdin")
	f.StringVar(&o.issuer, "issuer", "", "discover the token endpoint from this OpenID issuer when PASSWORDGRANT_TOKEN_URL is unset")
	f.StringVar(&o.userinfoIssuer, "userinfo-issuer", "", "load the profile from this OpenID issuer's userinfo endpoint")
	f.StringVar(&o.profileURL, "profile-url", "", "load the profile with a bearer GET to this URL")
	f.StringVar(&o.jwksURL, "jwks-url", "", "use the verified claims of a JWT access token as the profile")
	f.StringVar(&o.profileCache, "profile-cache", "none", "profile cache: none, memory or redis (REDIS_ADDR)")
	f.DurationVar(&o.cacheTTL, "cache-ttl", 5*time.Minute, "profile cache entry lifetime")
	f.BoolVar(&o.verbose, "verbose", false, "log debug output to stderr")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// loginResult is the JSON document printed by login.
type loginResult struct {
	Outcome     string `json:"outcome"`
	User        any    `json:"user,omitempty"`
	Info        any    `json:"info,omitempty"`
	Error       string `json:"error,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
	ErrorURI    string `json:"error_uri,omitempty"`
	HTTPStatus  int    `json:"http_status,omitempty"`
	Description string `json:"error_description,omitempty"`
}

func runLogin(ctx context.Context, s streams, o loginOptions) error {
	log := newLogger(s.err, o.verbose)

	loaders := 0
	for _, v := range []string{o.userinfoIssuer, o.profileURL, o.jwksURL} {
		if v != "" {
			loaders++
		}
	}
	if loaders > 1 {
		return usageErrorf("--userinfo-issuer, --profile-url and --jwks-url are mutually exclusive")
	}

	cfg, err := passwordgrant.LoadConfigFromEnv()
	if err != nil {
		return usageErrorf("%v", err)
	}
	cfg.Logger = log

	password, err := readPassword(s, o.passwordStdin)
	if err != nil {
		return err
	}

	pl, closeLoader, err := buildProfileLoader(ctx, cfg, o, log)
	if err != nil {
		return &exitError{code: exitFail, err: err}
	}
	defer closeLoader()
	if pl != nil {
		cfg.ProfileLoader = pl
	}

	strat, err := passwordgrant.NewFromDiscovery(ctx, o.issuer, cfg, passwordgrant.VerifyWithParamsFunc(verifyLogin(o.username)))
	if err != nil {
		var ue *passwordgrant.UsageError
		if errors.As(err, &ue) {
			return err
		}
		return &exitError{code: exitFail, err: err}
	}

	out, err := strat.Authenticate(ctx, nil, passwordgrant.Credentials{Username: o.username, Password: password})
	if err != nil {
		return err
	}

	if err := writeJSON(s.out, describeOutcome(out)); err != nil {
		return &exitError{code: exitFail, err: err}
	}
	if out.Kind != passwordgrant.OutcomeSuccess {
		return &exitError{code: exitFail}
	}
	return nil
}

// verifyLogin accepts any attempt the token endpoint accepted and echoes
// what it learned.
func verifyLogin(username string) func(context.Context, string, string, map[string]any, passwordgrant.Profile) (passwordgrant.Verification, error) {
	return func(_ context.Context, _, refreshToken string, params map[string]any, p passwordgrant.Profile) (passwordgrant.Verification, error) {
		user := map[string]any{"username": username}
		if p != nil {
			user["profile"] = p
		}
		info := map[string]any{"refresh_token_issued": refreshToken != ""}
		for _, k := range []string{"token_type", "expires_in", "scope"} {
			if v, ok := params[k]; ok {
				info[k] = v
			}
		}
		return passwordgrant.Authenticated(user, info), nil
	}
}

func describeOutcome(out passwordgrant.Outcome) loginResult {
	res := loginResult{Outcome: out.Kind.String(), User: out.User, Info: out.Info}
	if out.Err == nil {
		return res
	}
	res.Error = out.Err.Error()

	var (
		authzErr *passwordgrant.AuthorizationError
		tokenErr *passwordgrant.TokenError
		internal *passwordgrant.InternalError
	)
	switch {
	case errors.As(out.Err, &authzErr):
		res.ErrorCode, res.Description, res.ErrorURI = authzErr.Code, authzErr.Description, authzErr.URI
	case errors.As(out.Err, &tokenErr):
		res.ErrorCode, res.Description, res.ErrorURI = tokenErr.Code, tokenErr.Description, tokenErr.URI
	case errors.As(out.Err, &internal):
		var hf *passwordgrant.HTTPFailure
		if errors.As(internal.Cause, &hf) {
			res.HTTPStatus = hf.StatusCode
		}
	}
	return res
}

func readPassword(s streams, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(s.in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", &exitError{code: exitFail, err: fmt.Errorf("read password: %w", err)}
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	f, ok := s.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", usageErrorf("stdin is not a terminal; use --password-stdin")
	}
	fmt.Fprint(s.err, "Password: ")
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(s.err)
	if err != nil {
		return "", &exitError{code: exitFail, err: fmt.Errorf("read password: %w", err)}
	}
	return string(b), nil
}

func buildProfileLoader(ctx context.Context, cfg passwordgrant.Config, o loginOptions, log *slog.Logger) (passwordgrant.ProfileLoader, func(), error) {
	noop := func() {}
	opts := []profile.Option{profile.WithLogger(log), profile.WithNamespace(cfg.ClientID)}
	if cfg.HTTPClient != nil {
		opts = append(opts, profile.WithHTTPClient(cfg.HTTPClient))
	}

	var (
		pl  passwordgrant.ProfileLoader
		err error
	)
	switch {
	case o.userinfoIssuer != "":
		pl, err = profile.NewUserInfo(ctx, o.userinfoIssuer, opts...)
	case o.profileURL != "":
		pl, err = profile.NewHTTP(o.profileURL, opts...)
	case o.jwksURL != "":
		pl, err = profile.NewJWTClaims(ctx, o.jwksURL, opts...)
	default:
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, err
	}

	var store storage.Storage
	switch o.profileCache {
	case "", "none":
		return pl, noop, nil
	case "memory":
		store, err = memory.New(1024)
	case "redis":
		store, err = redis.NewFromEnv(ctx)
	default:
		return nil, noop, usageErrorf("unknown --profile-cache %q", o.profileCache)
	}
	if err != nil {
		return nil, noop, err
	}

	cached, err := profile.NewCached(pl, store, o.cacheTTL, opts...)
	if err != nil {
		_ = store.Close()
		return nil, noop, err
	}
	return cached, func() { _ = store.Close() }, nil
}
