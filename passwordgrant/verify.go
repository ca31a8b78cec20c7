package passwordgrant

import (
	"context"
	"net/http"
	"reflect"
)

// Verification is what a verifier decides once tokens (and maybe a profile)
// are available. A nil User, including a typed nil pointer, map or slice, is
// a rejection; Info travels with either result.
// Build one with Authenticated or Rejected.
type Verification struct {
	User any
	Info any
}

// Authenticated resolves the attempt to user. user must not be nil.
func Authenticated(user, info any) Verification {
	return Verification{User: user, Info: info}
}

// Rejected denies the attempt. info may be nil.
func Rejected(info any) Verification {
	return Verification{Info: info}
}

// Shape names the argument list a verifier expects.
type Shape int

const (
	// ShapeTokens: accessToken, refreshToken, profile.
	ShapeTokens Shape = iota
	// ShapeTokensParams: accessToken, refreshToken, params, profile.
	ShapeTokensParams
	// ShapeRequestTokens: request, accessToken, refreshToken, profile.
	ShapeRequestTokens
	// ShapeRequestTokensParams: request, accessToken, refreshToken, params, profile.
	ShapeRequestTokensParams
)

func (s Shape) String() string {
	switch s {
	case ShapeTokens:
		return "tokens"
	case ShapeTokensParams:
		return "tokens+params"
	case ShapeRequestTokens:
		return "request+tokens"
	case ShapeRequestTokensParams:
		return "request+tokens+params"
	default:
		return "unknown"
	}
}

// TakesRequest reports whether verifiers of this shape receive the request.
func (s Shape) TakesRequest() bool {
	return s == ShapeRequestTokens || s == ShapeRequestTokensParams
}

// TakesParams reports whether verifiers of this shape receive the extra
// token response parameters.
func (s Shape) TakesParams() bool {
	return s == ShapeTokensParams || s == ShapeRequestTokensParams
}

// Verifier is implemented by the four Verify*Func types. The set is closed so
// the dispatcher can rely on the shape it reports.
type Verifier interface {
	Shape() Shape
	invoke(c *verifyCall) (Verification, error)
}

type verifyCall struct {
	ctx          context.Context
	req          *http.Request
	accessToken  string
	refreshToken string
	params       map[string]any
	profile      Profile
}

// VerifyFunc receives the tokens and profile.
type VerifyFunc func(ctx context.Context, accessToken, refreshToken string, profile Profile) (Verification, error)

func (f VerifyFunc) Shape() Shape { return ShapeTokens }
func (f VerifyFunc) invoke(c *verifyCall) (Verification, error) {
	return f(c.ctx, c.accessToken, c.refreshToken, c.profile)
}

// VerifyWithParamsFunc also receives the extra token response parameters
// (token_type, expires_in and anything the server adds).
type VerifyWithParamsFunc func(ctx context.Context, accessToken, refreshToken string, params map[string]any, profile Profile) (Verification, error)

func (f VerifyWithParamsFunc) Shape() Shape { return ShapeTokensParams }
func (f VerifyWithParamsFunc) invoke(c *verifyCall) (Verification, error) {
	return f(c.ctx, c.accessToken, c.refreshToken, c.params, c.profile)
}

// VerifyRequestFunc receives the incoming request ahead of the tokens.
// Requires Config.PassRequestToCallback.
type VerifyRequestFunc func(ctx context.Context, r *http.Request, accessToken, refreshToken string, profile Profile) (Verification, error)

func (f VerifyRequestFunc) Shape() Shape { return ShapeRequestTokens }
func (f VerifyRequestFunc) invoke(c *verifyCall) (Verification, error) {
	return f(c.ctx, c.req, c.accessToken, c.refreshToken, c.profile)
}

// VerifyRequestWithParamsFunc receives the request, tokens, params and
// profile. Requires Config.PassRequestToCallback.
type VerifyRequestWithParamsFunc func(ctx context.Context, r *http.Request, accessToken, refreshToken string, params map[string]any, profile Profile) (Verification, error)

func (f VerifyRequestWithParamsFunc) Shape() Shape { return ShapeRequestTokensParams }
func (f VerifyRequestWithParamsFunc) invoke(c *verifyCall) (Verification, error) {
	return f(c.ctx, c.req, c.accessToken, c.refreshToken, c.params, c.profile)
}

// checkVerifier enforces that the verifier's shape agrees with the
// pass-request flag.
func checkVerifier(v Verifier, passRequest bool) error {
	if isNilVerifier(v) {
		return &UsageError{Field: "verify"}
	}
	shape := v.Shape()
	if shape.TakesRequest() != passRequest {
		if passRequest {
			return &UsageError{Field: "verify", Reason: "must accept the request when passRequestToCallback is set, got shape " + shape.String()}
		}
		return &UsageError{Field: "verify", Reason: "accepts the request but passRequestToCallback is not set"}
	}
	return nil
}

func isNilVerifier(v Verifier) bool {
	switch f := v.(type) {
	case nil:
		return true
	case VerifyFunc:
		return f == nil
	case VerifyWithParamsFunc:
		return f == nil
	case VerifyRequestFunc:
		return f == nil
	case VerifyRequestWithParamsFunc:
		return f == nil
	}
	return false
}

// dispatch runs the verifier and maps its result onto an Outcome. Panics are
// recovered so they can never escape Authenticate.
func dispatch(v Verifier, c *verifyCall) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = errorOutcome(&VerificationError{Cause: panicError(p), Panicked: true})
		}
	}()

	res, err := v.invoke(c)
	if err != nil {
		return errorOutcome(&VerificationError{Cause: err})
	}
	if isAbsent(res.User) {
		return failOutcome(res.Info)
	}
	return successOutcome(res.User, res.Info)
}

// isAbsent treats a nil interface and a typed nil (pointer, map, slice, func,
// chan or interface) as no user.
func isAbsent(u any) bool {
	if u == nil {
		return true
	}
	switch v := reflect.ValueOf(u); v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
