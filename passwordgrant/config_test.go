package passwordgrant_test

import (
	"testing"
	"time"

	"github.com/ggoodman/passwordgrant-go/passwordgrant"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PASSWORDGRANT_TOKEN_URL", "https://idp.example.com/token")
	t.Setenv("PASSWORDGRANT_CLIENT_ID", "cli")
	t.Setenv("PASSWORDGRANT_CLIENT_SECRET", "s3cret")
	t.Setenv("PASSWORDGRANT_HEADERS", "X-Tenant=acme; X-Env = prod")
	t.Setenv("PASSWORDGRANT_SCOPES", "openid;profile")
	t.Setenv("PASSWORDGRANT_CLIENT_AUTH", "body")
	t.Setenv("PASSWORDGRANT_SKIP_PROFILE", "true")
	t.Setenv("PASSWORDGRANT_TIMEOUT", "5s")

	cfg, err := passwordgrant.LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TokenEndpoint != "https://idp.example.com/token" || cfg.ClientID != "cli" || cfg.ClientSecret != "s3cret" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.CustomHeaders["X-Tenant"] != "acme" || cfg.CustomHeaders["X-Env"] != "prod" {
		t.Fatalf("headers = %v", cfg.CustomHeaders)
	}
	if len(cfg.Scopes) != 2 || cfg.Scopes[1] != "profile" {
		t.Fatalf("scopes = %v", cfg.Scopes)
	}
	if cfg.ClientAuth != passwordgrant.ClientAuthBody {
		t.Fatalf("client auth = %v", cfg.ClientAuth)
	}
	if !cfg.SkipUserProfile {
		t.Fatalf("skip profile not set")
	}
	if cfg.HTTPClient == nil || cfg.HTTPClient.Timeout != 5*time.Second {
		t.Fatalf("http client = %+v", cfg.HTTPClient)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestHeaders_DecodeRejectsGarbage(t *testing.T) {
	var h passwordgrant.Headers
	if err := h.Decode("no-equals-sign"); err == nil {
		t.Fatalf("expected error")
	}
	if err := h.Decode(""); err != nil || len(h) != 0 {
		t.Fatalf("empty input: %v %v", h, err)
	}
}

func TestParseClientAuth(t *testing.T) {
	for in, want := range map[string]passwordgrant.ClientAuth{
		"":                    passwordgrant.ClientAuthHeader,
		"basic":               passwordgrant.ClientAuthHeader,
		"client_secret_post":  passwordgrant.ClientAuthBody,
		"BODY":                passwordgrant.ClientAuthBody,
		"client_secret_basic": passwordgrant.ClientAuthHeader,
	} {
		got, err := passwordgrant.ParseClientAuth(in)
		if err != nil || got != want {
			t.Fatalf("ParseClientAuth(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := passwordgrant.ParseClientAuth("jwt"); err == nil {
		t.Fatalf("expected unknown method error")
	}
}

func TestConfig_CopyIsDeep(t *testing.T) {
	cfg := passwordgrant.Config{CustomHeaders: map[string]string{"A": "1"}, Scopes: []string{"x"}}
	dup := cfg.Copy()
	dup.CustomHeaders["A"] = "2"
	dup.Scopes[0] = "y"
	if cfg.CustomHeaders["A"] != "1" || cfg.Scopes[0] != "x" {
		t.Fatalf("copy aliases the original")
	}
}
