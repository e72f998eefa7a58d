package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"branchchat/pkg/models"
)

func TestCompleteSendsStreamingRequest(t *testing.T) {
	var got completionRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		io.WriteString(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "test-model", "high", 0)
	body, err := c.Complete(context.Background(), "sk-secret",
		[]models.Message{{Role: models.RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	defer body.Close()

	if auth != "Bearer sk-secret" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if got.Model != "test-model" || !got.Stream {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if got.Reasoning == nil || !got.Reasoning.Enabled || got.Reasoning.Effort != "high" {
		t.Fatalf("reasoning opts not forwarded: %+v", got.Reasoning)
	}
}

func TestCompleteOmitsReasoningWhenUnset(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &raw)
		io.WriteString(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	c := New(srv.URL, "test-model", "", 0)
	body, err := c.Complete(context.Background(), "sk", nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	defer body.Close()
	if _, ok := raw["reasoning"]; ok {
		t.Fatalf("reasoning must be omitted when no effort is configured")
	}
}

func TestCompleteNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-model", "", 0)
	_, err := c.Complete(context.Background(), "sk", nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if !se.RateLimited() {
		t.Fatalf("429 should report rate-limited")
	}
	if se.Body == "" {
		t.Fatalf("error body should be captured")
	}

	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv2.Close()
	c2 := New(srv2.URL, "test-model", "", 0)
	_, err = c2.Complete(context.Background(), "sk", nil)
	if !errors.As(err, &se) || se.RateLimited() {
		t.Fatalf("502 must not report rate-limited: %v", err)
	}
}
