package passwordgrant

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ggoodman/passwordgrant-go/internal/tokenclient"
)

// ErrUsage matches every *UsageError via errors.Is.
var ErrUsage = errors.New("passwordgrant: usage error")

// ErrMissingAccessToken is the cause attached to an InternalError when the
// token endpoint reported success without an access token.
var ErrMissingAccessToken = tokenclient.ErrMissingAccessToken

const msgFailedToObtainAccessToken = "failed to obtain access token"

// UsageError reports a programming mistake: a missing construction option or
// a missing per-request credential. It is returned synchronously and never
// reported as an authentication outcome.
type UsageError struct {
	Field  string
	Reason string
}

func (e *UsageError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("passwordgrant: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("passwordgrant: %s is required", e.Field)
}

func (e *UsageError) Is(target error) bool { return target == ErrUsage }

// InternalError is a non-protocol failure while talking to the token
// endpoint: a transport error, an undecodable error body, or an error body
// that carries no OAuth error code. Cause holds the original failure; for
// HTTP failures that is an *HTTPFailure with the status and raw body.
type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string { return e.Message }
func (e *InternalError) Unwrap() error { return e.Cause }

// AuthorizationError is returned when the token endpoint answers with
// invalid_grant, which for this grant means the resource owner credentials
// were rejected.
type AuthorizationError struct {
	Code        string
	Description string
	URI         string
}

func (e *AuthorizationError) Error() string { return describe(e.Description, e.Code) }

// TokenError is any other OAuth 2.0 error response from the token endpoint
// (RFC 6749 §5.2).
type TokenError struct {
	Code        string
	Description string
	URI         string
}

func (e *TokenError) Error() string { return describe(e.Description, e.Code) }

func describe(description, code string) string {
	if description != "" {
		return description
	}
	return code
}

// VerificationError wraps an error returned by, or a panic raised inside, the
// caller supplied verification function.
type VerificationError struct {
	Cause error
	// Panicked is true when Cause was recovered from a panic.
	Panicked bool
}

func (e *VerificationError) Error() string { return e.Cause.Error() }
func (e *VerificationError) Unwrap() error { return e.Cause }

func panicError(p any) error {
	if err, ok := p.(error); ok {
		return err
	}
	return fmt.Errorf("%v", p)
}

// errorResponse mirrors RFC 6749 §5.2. A pointer lets us tell a missing or
// null "error" apart from a present one.
type errorResponse struct {
	Error            *string `json:"error"`
	ErrorDescription string  `json:"error_description"`
	ErrorURI         string  `json:"error_uri"`
}

// Classify turns a raw token client failure into one of *InternalError,
// *AuthorizationError or *TokenError.
//
// Only HTTP failures whose body decodes as JSON with a non-empty string
// "error" member become protocol errors. Everything else, including JSON
// bodies that only carry unrelated members such as "error_code", falls back
// to an InternalError that keeps the status and body untouched.
func Classify(err error) error {
	var hf *HTTPFailure
	if !errors.As(err, &hf) {
		return &InternalError{Message: msgFailedToObtainAccessToken, Cause: err}
	}

	var body errorResponse
	if jsonErr := json.Unmarshal([]byte(hf.Body), &body); jsonErr != nil {
		return &InternalError{Message: msgFailedToObtainAccessToken, Cause: hf}
	}
	if body.Error == nil || *body.Error == "" {
		return &InternalError{Message: msgFailedToObtainAccessToken, Cause: hf}
	}

	switch *body.Error {
	case "invalid_grant":
		return &AuthorizationError{Code: *body.Error, Description: body.ErrorDescription, URI: body.ErrorURI}
	default:
		return &TokenError{Code: *body.Error, Description: body.ErrorDescription, URI: body.ErrorURI}
	}
}
