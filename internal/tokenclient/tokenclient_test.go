package tokenclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recorded struct {
	form       map[string][]string
	user, pass string
	basic      bool
	header     http.Header
}

func newTokenServer(t *testing.T, status int, contentType, body string) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		rec.form = r.PostForm
		rec.user, rec.pass, rec.basic = r.BasicAuth()
		rec.header = r.Header.Clone()
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func passwordRequest() Request {
	return Request{GrantType: "password", Username: "foo", Password: "bar"}
}

func TestRequestToken_Success(t *testing.T) {
	srv, rec := newTokenServer(t, http.StatusOK, "application/json",
		`{"access_token":"2YotnFZFEjr1zCsicMWpAA","token_type":"example","expires_in":3600,"refresh_token":"tGzv3JOkF0XG5Qx2TlKWIA","example_parameter":"example_value"}`)

	c, err := New(Config{TokenURL: srv.URL, ClientID: "foo", ClientSecret: "s3cret", Headers: map[string]string{"X-Tenant": "acme"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := c.RequestToken(context.Background(), passwordRequest())
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if res.AccessToken != "2YotnFZFEjr1zCsicMWpAA" {
		t.Fatalf("access token = %q", res.AccessToken)
	}
	if res.RefreshToken != "tGzv3JOkF0XG5Qx2TlKWIA" {
		t.Fatalf("refresh token = %q", res.RefreshToken)
	}
	if _, ok := res.Params["refresh_token"]; ok {
		t.Fatalf("refresh_token must not be present in params")
	}
	if res.Params["example_parameter"] != "example_value" {
		t.Fatalf("params = %v", res.Params)
	}

	if got := rec.form["grant_type"]; len(got) != 1 || got[0] != "password" {
		t.Fatalf("grant_type = %v", got)
	}
	if rec.form["username"][0] != "foo" || rec.form["password"][0] != "bar" {
		t.Fatalf("credentials not sent: %v", rec.form)
	}
	if _, ok := rec.form["code"]; ok {
		t.Fatalf("password grant must not send a code parameter")
	}
	if _, ok := rec.form["client_secret"]; ok {
		t.Fatalf("header auth must not put client_secret in the body")
	}
	if !rec.basic || rec.user != "foo" || rec.pass != "s3cret" {
		t.Fatalf("basic auth = %v %q %q", rec.basic, rec.user, rec.pass)
	}
	if rec.header.Get("X-Tenant") != "acme" {
		t.Fatalf("custom header missing: %v", rec.header)
	}

	tok := res.Token()
	if tok.TokenType != "example" || tok.Expiry.IsZero() {
		t.Fatalf("oauth2 token = %+v", tok)
	}
	if tok.Extra("example_parameter") != "example_value" {
		t.Fatalf("extra not preserved")
	}
}

func TestRequestToken_BodyAuthAndScopes(t *testing.T) {
	srv, rec := newTokenServer(t, http.StatusOK, "application/json", `{"access_token":"abc"}`)

	c, err := New(Config{TokenURL: srv.URL, ClientID: "foo", ClientSecret: "s3cret", ClientAuth: ClientAuthBody})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	req := passwordRequest()
	req.Scopes = []string{"openid", "profile"}
	if _, err := c.RequestToken(context.Background(), req); err != nil {
		t.Fatalf("request: %v", err)
	}
	if rec.basic {
		t.Fatalf("body auth must not send basic credentials")
	}
	if rec.form["client_id"][0] != "foo" || rec.form["client_secret"][0] != "s3cret" {
		t.Fatalf("client credentials missing from body: %v", rec.form)
	}
	if rec.form["scope"][0] != "openid profile" {
		t.Fatalf("scope = %v", rec.form["scope"])
	}
}

func TestRequestToken_FormEncodedFallback(t *testing.T) {
	srv, _ := newTokenServer(t, http.StatusOK, "text/plain", "access_token=abc&refresh_token=def&token_type=bearer")

	c, err := New(Config{TokenURL: srv.URL, ClientID: "foo"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := c.RequestToken(context.Background(), passwordRequest())
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if res.AccessToken != "abc" || res.RefreshToken != "def" || res.Params["token_type"] != "bearer" {
		t.Fatalf("result = %+v", res)
	}
}

func TestRequestToken_HTTPFailureKeepsBody(t *testing.T) {
	body := `{"error_code":"invalid_grant"}`
	srv, _ := newTokenServer(t, http.StatusBadRequest, "application/json", body)

	c, err := New(Config{TokenURL: srv.URL, ClientID: "foo"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = c.RequestToken(context.Background(), passwordRequest())
	var hf *HTTPFailure
	if !errors.As(err, &hf) {
		t.Fatalf("want *HTTPFailure, got %T %v", err, err)
	}
	if hf.StatusCode != http.StatusBadRequest || hf.Body != body {
		t.Fatalf("failure = %+v", hf)
	}
}

func TestRequestToken_MissingAccessToken(t *testing.T) {
	srv, _ := newTokenServer(t, http.StatusOK, "application/json", `{"token_type":"bearer"}`)

	c, err := New(Config{TokenURL: srv.URL, ClientID: "foo"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.RequestToken(context.Background(), passwordRequest()); !errors.Is(err, ErrMissingAccessToken) {
		t.Fatalf("want ErrMissingAccessToken, got %v", err)
	}
}

func TestRequestToken_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{TokenURL: url, ClientID: "foo"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = c.RequestToken(context.Background(), passwordRequest())
	if err == nil {
		t.Fatalf("expected transport error")
	}
	var hf *HTTPFailure
	if errors.As(err, &hf) {
		t.Fatalf("transport error must not look like an HTTP failure")
	}
}

func TestNew_RejectsFragment(t *testing.T) {
	if _, err := New(Config{TokenURL: "https://example.com/token#frag", ClientID: "foo"}); err == nil {
		t.Fatalf("expected fragment to be rejected")
	}
	if _, err := New(Config{ClientID: "foo"}); err == nil {
		t.Fatalf("expected missing URL to be rejected")
	}
}

func TestRequestToken_OversizedBodies(t *testing.T) {
	big := strings.Repeat("x", MaxBodyBytes+10)

	srv, _ := newTokenServer(t, http.StatusInternalServerError, "text/plain", big)
	c, err := New(Config{TokenURL: srv.URL, ClientID: "foo"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = c.RequestToken(context.Background(), passwordRequest())
	var hf *HTTPFailure
	if !errors.As(err, &hf) {
		t.Fatalf("want *HTTPFailure, got %v", err)
	}
	if !hf.Truncated || len(hf.Body) != MaxBodyBytes {
		t.Fatalf("truncated = %v, len = %d", hf.Truncated, len(hf.Body))
	}

	exact := strings.Repeat("y", MaxBodyBytes)
	srv, _ = newTokenServer(t, http.StatusBadRequest, "text/plain", exact)
	c, _ = New(Config{TokenURL: srv.URL, ClientID: "foo"})
	_, err = c.RequestToken(context.Background(), passwordRequest())
	if !errors.As(err, &hf) || hf.Truncated || hf.Body != exact {
		t.Fatalf("body at the limit must be kept whole: truncated=%v len=%d", hf.Truncated, len(hf.Body))
	}

	srv, _ = newTokenServer(t, http.StatusOK, "application/json", big)
	c, _ = New(Config{TokenURL: srv.URL, ClientID: "foo"})
	if _, err := c.RequestToken(context.Background(), passwordRequest()); !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("want ErrResponseTooLarge, got %v", err)
	}
}
