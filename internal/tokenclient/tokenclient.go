// Package tokenclient performs the Resource Owner Password Credentials token
// request (RFC 6749 §4.3.2) and hands back either the parsed token response or
// a raw failure. OAuth error bodies are left for the caller to interpret.
package tokenclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"golang.org/x/oauth2"
)

// MaxBodyBytes bounds how much of a token endpoint response is read.
const MaxBodyBytes = 1 << 20

var jsonMediaType = contenttype.NewMediaType("application/json")

// ErrMissingAccessToken is returned when the endpoint answered 2xx without an
// access_token parameter.
var ErrMissingAccessToken = errors.New("tokenclient: response is missing access_token")

// ErrResponseTooLarge is returned for a 2xx response longer than MaxBodyBytes.
var ErrResponseTooLarge = errors.New("tokenclient: token response exceeds size limit")

// Request carries the form parameters of a token request.
type Request struct {
	GrantType string
	Username  string
	Password  string
	Scopes    []string
}

// Values encodes the request as token endpoint form parameters. No "code"
// parameter is ever produced.
func (r Request) Values() url.Values {
	v := url.Values{
		"grant_type": {r.GrantType},
		"username":   {r.Username},
		"password":   {r.Password},
	}
	if len(r.Scopes) > 0 {
		v.Set("scope", strings.Join(r.Scopes, " "))
	}
	return v
}

// Result is a successful token response.
type Result struct {
	AccessToken  string
	RefreshToken string
	// Params holds every response parameter except refresh_token.
	Params map[string]any
}

// Token converts the result to an oauth2.Token so it can feed x/oauth2 and
// go-oidc token sources. Extra parameters remain reachable through Extra.
func (r *Result) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
	}
	if tt, ok := r.Params["token_type"].(string); ok {
		tok.TokenType = tt
	}
	if secs, ok := expiresIn(r.Params["expires_in"]); ok && secs > 0 {
		tok.Expiry = time.Now().Add(time.Duration(secs) * time.Second)
	}
	return tok.WithExtra(r.Params)
}

func expiresIn(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		var i int64
		if _, err := fmt.Sscan(n, &i); err == nil {
			return i, true
		}
	}
	return 0, false
}

// HTTPFailure is a non-2xx token endpoint response. Body is kept verbatim up
// to the first MaxBodyBytes bytes; Truncated reports whether more followed.
type HTTPFailure struct {
	StatusCode int
	Body       string
	Truncated  bool
}

func (f *HTTPFailure) Error() string {
	return fmt.Sprintf("token endpoint responded with status %d", f.StatusCode)
}

// ClientAuth selects how client credentials are presented (RFC 6749 §2.3.1).
type ClientAuth int

const (
	// ClientAuthHeader sends HTTP Basic credentials. This is the default.
	ClientAuthHeader ClientAuth = iota
	// ClientAuthBody sends client_id and client_secret as form parameters.
	ClientAuthBody
)

func (c ClientAuth) String() string {
	if c == ClientAuthBody {
		return "body"
	}
	return "header"
}

// Config configures a Client.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	ClientAuth   ClientAuth
	Headers      map[string]string
	HTTPClient   *http.Client
}

// Client talks to a single token endpoint. It holds no per-request state and
// is safe for concurrent use.
type Client struct {
	endpoint     *url.URL
	clientID     string
	clientSecret string
	auth         ClientAuth
	headers      http.Header
	hc           *http.Client
}

// New validates the endpoint and returns a Client.
func New(cfg Config) (*Client, error) {
	if cfg.TokenURL == "" {
		return nil, errors.New("tokenclient: token URL is required")
	}
	u, err := url.Parse(cfg.TokenURL)
	if err != nil {
		return nil, fmt.Errorf("tokenclient: invalid token URL: %w", err)
	}
	if u.Fragment != "" {
		return nil, fmt.Errorf("tokenclient: token URL must not include a fragment: %v", u)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	headers := make(http.Header, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}
	return &Client{
		endpoint:     u,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		auth:         cfg.ClientAuth,
		headers:      headers,
		hc:           hc,
	}, nil
}

// Endpoint returns the token endpoint URL.
func (c *Client) Endpoint() string { return c.endpoint.String() }

// RequestToken posts the request and parses the response.
//
// A response with a non-2xx status yields *HTTPFailure. Any other error is a
// transport or decoding problem and is returned as-is.
func (c *Client) RequestToken(ctx context.Context, tr Request) (*Result, error) {
	form := tr.Values()
	if c.auth == ClientAuthBody {
		form.Set("client_id", c.clientID)
		if c.clientSecret != "" {
			form.Set("client_secret", c.clientSecret)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	for k, vs := range c.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", jsonMediaType.String())
	}
	if c.auth == ClientAuthHeader {
		req.SetBasicAuth(url.QueryEscape(c.clientID), url.QueryEscape(c.clientSecret))
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("tokenclient: read response: %w", err)
	}
	truncated := len(body) > MaxBodyBytes
	if truncated {
		body = body[:MaxBodyBytes]
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &HTTPFailure{StatusCode: res.StatusCode, Body: string(body), Truncated: truncated}
	}
	if truncated {
		return nil, ErrResponseTooLarge
	}

	params, err := parseParams(res.Header, body)
	if err != nil {
		return nil, err
	}

	access, _ := params["access_token"].(string)
	if access == "" {
		return nil, ErrMissingAccessToken
	}
	refresh, _ := params["refresh_token"].(string)
	delete(params, "refresh_token")

	return &Result{
		AccessToken:  access,
		RefreshToken: refresh,
		Params:       params,
	}, nil
}

// parseParams decodes a success body. JSON is preferred; servers that answer
// with form encoding are accepted as a fallback.
func parseParams(h http.Header, body []byte) (map[string]any, error) {
	// contenttype reads from request headers only.
	ctype, ctErr := contenttype.GetMediaType(&http.Request{Header: h})
	isJSON := ctErr == nil && ctype.Matches(jsonMediaType)

	var params map[string]any
	jsonErr := json.Unmarshal(body, &params)
	if jsonErr == nil && params != nil {
		return params, nil
	}
	if isJSON {
		if jsonErr == nil {
			jsonErr = errors.New("not a JSON object")
		}
		return nil, fmt.Errorf("tokenclient: invalid JSON token response: %w", jsonErr)
	}

	vals, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("tokenclient: unrecognized token response: %w", err)
	}
	params = make(map[string]any, len(vals))
	for k := range vals {
		params[k] = vals.Get(k)
	}
	return params, nil
}
