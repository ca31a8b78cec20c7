package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/elnormous/contenttype"

	"github.com/ggoodman/passwordgrant-go/passwordgrant"
)

var jsonMediaType = contenttype.NewMediaType("application/json")

// ErrUnsupportedContentType is returned when a profile endpoint answers with
// something other than JSON.
var ErrUnsupportedContentType = errors.New("profile: response is not application/json")

// StatusError is a non-2xx answer from a profile endpoint.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("profile: endpoint returned status %d", e.StatusCode)
}

// HTTP loads profiles from an arbitrary JSON endpoint that accepts the access
// token as a bearer credential.
type HTTP struct {
	endpoint string
	client   *http.Client
}

// NewHTTP returns a loader issuing GET requests to endpoint.
func NewHTTP(endpoint string, opts ...Option) (*HTTP, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid profile endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid profile endpoint %q: absolute URL required", endpoint)
	}
	o := apply(opts)
	return &HTTP{endpoint: endpoint, client: o.httpClient}, nil
}

func (h *HTTP) LoadProfile(ctx context.Context, accessToken string) (passwordgrant.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", jsonMediaType.String())

	res, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user profile: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read user profile: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{StatusCode: res.StatusCode, Body: body}
	}

	// contenttype reads from request headers only.
	ctype, err := contenttype.GetMediaType(&http.Request{Header: res.Header})
	if err != nil || !ctype.Matches(jsonMediaType) {
		return nil, ErrUnsupportedContentType
	}

	var p passwordgrant.Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to parse user profile: %w", err)
	}
	if p == nil {
		p = passwordgrant.Profile{}
	}
	return p, nil
}

var _ passwordgrant.ProfileLoader = (*HTTP)(nil)
