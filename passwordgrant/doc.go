// Package passwordgrant authenticates users with the OAuth 2.0 Resource Owner
// Password Credentials grant (RFC 6749 §4.3).
//
// A Strategy exchanges a username and password for tokens at a token
// endpoint, optionally loads a profile with the access token, and hands the
// results to a caller supplied verifier that decides who the user is. Every
// attempt ends in exactly one Outcome: success, fail or error.
//
// Example:
//
//	s, err := passwordgrant.New(passwordgrant.Config{
//	    TokenEndpoint: "https://idp.example.com/oauth2/token",
//	    ClientID:      "my-client",
//	    ClientSecret:  os.Getenv("CLIENT_SECRET"),
//	}, passwordgrant.VerifyFunc(func(ctx context.Context, at, rt string, p passwordgrant.Profile) (passwordgrant.Verification, error) {
//	    u, err := users.ByToken(ctx, at)
//	    if err != nil { return passwordgrant.Verification{}, err }
//	    if u == nil { return passwordgrant.Rejected(map[string]string{"message": "unknown user"}), nil }
//	    return passwordgrant.Authenticated(u, nil), nil
//	}))
//	if err != nil { log.Fatal(err) }
//
//	out, err := s.Authenticate(ctx, nil, passwordgrant.Credentials{Username: "alice", Password: pw})
//
// # Verifiers
//
// The verifier's argument list is chosen by its type rather than inspected at
// runtime. VerifyFunc and VerifyWithParamsFunc receive tokens and profile,
// the latter also the extra token response parameters. VerifyRequestFunc and
// VerifyRequestWithParamsFunc additionally receive the *http.Request and
// require Config.PassRequestToCallback; New rejects a mismatch.
//
// # Errors
//
// Missing options or credentials are programming errors and come back as a
// *UsageError (errors.Is(err, ErrUsage)) instead of an Outcome. Token
// endpoint failures are classified into *AuthorizationError (invalid_grant),
// *TokenError (other OAuth error codes) or *InternalError (transport
// failures and bodies without an OAuth error code). Errors and panics from
// the verifier surface as *VerificationError. Only a verifier rejection
// produces OutcomeFail.
//
// # Profiles
//
// Config.ProfileLoader defaults to NoProfile, which returns an empty profile
// without I/O. The profile package provides OIDC userinfo, plain HTTP, JWT
// claim and caching loaders. SkipUserProfile bypasses loading entirely.
package passwordgrant
