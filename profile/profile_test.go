package profile

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ggoodman/passwordgrant-go/internal/jwtprofile"
	"github.com/ggoodman/passwordgrant-go/passwordgrant"
	"github.com/ggoodman/passwordgrant-go/passwordgrant/passwordgranttest"
	"github.com/ggoodman/passwordgrant-go/storage"
	"github.com/ggoodman/passwordgrant-go/storage/memory"
)

const token = passwordgranttest.AccessToken

// newIssuer serves discovery, userinfo and a JWKS. userinfo answers only to
// the canonical test access token.
func newIssuer(t *testing.T, jwks []byte) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                   srv.URL,
			"jwks_uri":                 srv.URL + "/keys",
			"authorization_endpoint":   srv.URL + "/authorize",
			"token_endpoint":           srv.URL + "/token",
			"userinfo_endpoint":        srv.URL + "/userinfo",
			"response_types_supported": []string{"code"},
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sub":"1234","email":"foo@example.com","email_verified":true}`))
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwks)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func genKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{Key: &pk.PublicKey, KeyID: "k1", Algorithm: "RS256", Use: "sig"}}}
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return pk, b
}

func TestUserInfo(t *testing.T) {
	srv := newIssuer(t, []byte(`{"keys":[]}`))
	ctx := context.Background()

	ui, err := NewUserInfo(ctx, srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewUserInfo: %v", err)
	}
	if ui.Endpoint() != srv.URL+"/userinfo" {
		t.Fatalf("Endpoint = %q", ui.Endpoint())
	}

	p, err := ui.LoadProfile(ctx, token)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p["sub"] != "1234" || p["email"] != "foo@example.com" {
		t.Fatalf("profile = %v", p)
	}

	if _, err := ui.LoadProfile(ctx, "wrong-access-token"); err == nil {
		t.Fatal("expected error for rejected token")
	}
}

func TestUserInfo_RequiresIssuer(t *testing.T) {
	if _, err := NewUserInfo(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me":
			if r.Header.Get("Authorization") != "Bearer "+token {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_, _ = w.Write([]byte(`{"username":"foo","groups":["a","b"]}`))
		case "/html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html></html>`))
		case "/null":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`null`))
		}
	}))
	defer srv.Close()
	ctx := context.Background()

	h, err := NewHTTP(srv.URL+"/me", WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewHTTP: %v", err)
	}
	p, err := h.LoadProfile(ctx, token)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p["username"] != "foo" {
		t.Fatalf("profile = %v", p)
	}

	_, err = h.LoadProfile(ctx, "nope")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized || string(se.Body) != `{"error":"invalid_token"}` {
		t.Fatalf("want StatusError 401 with body, got %v", err)
	}

	h, _ = NewHTTP(srv.URL+"/html", WithHTTPClient(srv.Client()))
	if _, err := h.LoadProfile(ctx, token); !errors.Is(err, ErrUnsupportedContentType) {
		t.Fatalf("want ErrUnsupportedContentType, got %v", err)
	}

	h, _ = NewHTTP(srv.URL+"/null", WithHTTPClient(srv.Client()))
	p, err = h.LoadProfile(ctx, token)
	if err != nil || p == nil || len(p) != 0 {
		t.Fatalf("null body = %v, %v; want empty profile", p, err)
	}
}

func TestNewHTTP_RejectsRelative(t *testing.T) {
	if _, err := NewHTTP("/userinfo"); err == nil {
		t.Fatal("expected error for relative endpoint")
	}
}

func TestJWTClaims(t *testing.T) {
	pk, jwks := genKey(t)
	srv := newIssuer(t, jwks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l, err := NewJWTClaimsFromDiscovery(ctx, srv.URL, WithAudiences("api"), WithLeeway(0))
	if err != nil {
		t.Fatalf("NewJWTClaimsFromDiscovery: %v", err)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": srv.URL,
		"aud": "api",
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(pk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	p, err := l.LoadProfile(ctx, signed)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p["sub"] != "user-1" {
		t.Fatalf("profile = %v", p)
	}

	if _, err := l.LoadProfile(ctx, token); !errors.Is(err, jwtprofile.ErrInvalidToken) {
		t.Fatalf("opaque token: want ErrInvalidToken, got %v", err)
	}
}

func newMemory(t *testing.T) *memory.Storage {
	t.Helper()
	s, err := memory.New(16)
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCached(t *testing.T) {
	next := &passwordgranttest.ProfileLoader{Profile: passwordgrant.Profile{"id": "1234"}}
	c, err := NewCached(next, newMemory(t), time.Minute, WithNamespace("client"))
	if err != nil {
		t.Fatalf("NewCached: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := c.LoadProfile(ctx, token)
		if err != nil {
			t.Fatalf("LoadProfile: %v", err)
		}
		if p["id"] != "1234" {
			t.Fatalf("profile = %v", p)
		}
	}
	if n := next.Calls(); n != 1 {
		t.Fatalf("next called %d times, want 1", n)
	}

	if err := c.Invalidate(ctx, token); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := c.LoadProfile(ctx, token); err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if n := next.Calls(); n != 2 {
		t.Fatalf("next called %d times after invalidate, want 2", n)
	}
}

func TestCached_ErrorsNotCached(t *testing.T) {
	next := &passwordgranttest.ProfileLoader{Profile: passwordgrant.Profile{"id": "1234"}}
	c, err := NewCached(next, newMemory(t), time.Minute)
	if err != nil {
		t.Fatalf("NewCached: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := c.LoadProfile(ctx, "wrong"); err == nil || err.Error() != "failed to load user profile" {
			t.Fatalf("err = %v", err)
		}
	}
	if n := next.Calls(); n != 2 {
		t.Fatalf("next called %d times, want 2", n)
	}
}

type brokenStore struct{ storage.Storage }

func (brokenStore) Get(context.Context, string, ...storage.Option) (*storage.Item, error) {
	return nil, errors.New("down")
}

func (brokenStore) Set(context.Context, string, []byte, ...storage.Option) error {
	return errors.New("down")
}

func TestCached_StorageFailureFallsThrough(t *testing.T) {
	next := &passwordgranttest.ProfileLoader{Profile: passwordgrant.Profile{"id": "1234"}}
	c, err := NewCached(next, brokenStore{}, time.Minute)
	if err != nil {
		t.Fatalf("NewCached: %v", err)
	}
	p, err := c.LoadProfile(context.Background(), token)
	if err != nil || p["id"] != "1234" {
		t.Fatalf("LoadProfile = %v, %v", p, err)
	}
}

func TestNewCached_Validates(t *testing.T) {
	next := &passwordgranttest.ProfileLoader{}
	if _, err := NewCached(nil, newMemory(t), time.Minute); err == nil {
		t.Error("nil loader accepted")
	}
	if _, err := NewCached(next, nil, time.Minute); err == nil {
		t.Error("nil store accepted")
	}
	if _, err := NewCached(next, newMemory(t), 0); !errors.Is(err, storage.ErrInvalidTTL) {
		t.Errorf("zero ttl: %v", err)
	}
}

func TestCacheKeyHidesToken(t *testing.T) {
	k := cacheKey(token)
	if len(k) != 64 || k == token {
		t.Fatalf("cacheKey = %q", k)
	}
	if cacheKey(token) != k {
		t.Fatal("cacheKey not deterministic")
	}
}

type countingTransport struct {
	mu    sync.Mutex
	paths []string
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.mu.Lock()
	c.paths = append(c.paths, r.URL.Path)
	c.mu.Unlock()
	return http.DefaultTransport.RoundTrip(r)
}

func (c *countingTransport) seen(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.paths {
		if p == path {
			return true
		}
	}
	return false
}

func TestJWTClaims_UsesHTTPClient(t *testing.T) {
	pk, jwks := genKey(t)
	srv := newIssuer(t, jwks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt := &countingTransport{}
	l, err := NewJWTClaimsFromDiscovery(ctx, srv.URL, WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("NewJWTClaimsFromDiscovery: %v", err)
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"iss": srv.URL, "sub": "u", "exp": time.Now().Add(time.Hour).Unix()})
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(pk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := l.LoadProfile(ctx, signed); err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if !rt.seen("/.well-known/openid-configuration") {
		t.Errorf("discovery bypassed the configured client: %v", rt.paths)
	}
	if !rt.seen("/keys") {
		t.Errorf("JWKS fetch bypassed the configured client: %v", rt.paths)
	}
}

func TestCached_NilProfileIsCached(t *testing.T) {
	var calls int
	next := passwordgrant.ProfileLoaderFunc(func(ctx context.Context, accessToken string) (passwordgrant.Profile, error) {
		calls++
		return nil, nil
	})
	c, err := NewCached(next, newMemory(t), time.Minute)
	if err != nil {
		t.Fatalf("NewCached: %v", err)
	}

	for i := 0; i < 3; i++ {
		p, err := c.LoadProfile(context.Background(), token)
		if err != nil || p != nil {
			t.Fatalf("LoadProfile = %v, %v; want nil, nil", p, err)
		}
	}
	if calls != 1 {
		t.Fatalf("next called %d times, want 1", calls)
	}
}
