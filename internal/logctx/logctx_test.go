package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandler_AddsAttemptAndRequestGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := Wrap(slog.New(slog.NewJSONHandler(&buf, nil))).With("component", "test")

	ctx := WithAttemptData(context.Background(), &AttemptData{AttemptID: "a-1", Username: "foo", Endpoint: "https://idp/token"})
	ctx = WithRequestData(ctx, &RequestData{Method: "POST", Path: "/login"})
	logger.InfoContext(ctx, "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	attempt, ok := rec["attempt"].(map[string]any)
	if !ok {
		t.Fatalf("missing attempt group: %v", rec)
	}
	if attempt["id"] != "a-1" || attempt["username"] != "foo" {
		t.Fatalf("attempt = %v", attempt)
	}
	req, ok := rec["req"].(map[string]any)
	if !ok || req["path"] != "/login" {
		t.Fatalf("req = %v", rec["req"])
	}
	if rec["component"] != "test" {
		t.Fatalf("With attrs lost: %v", rec)
	}
}

func TestWrap_Idempotent(t *testing.T) {
	l := Wrap(nil)
	if Wrap(l) != l {
		t.Fatalf("wrapping twice should return the same logger")
	}
}
