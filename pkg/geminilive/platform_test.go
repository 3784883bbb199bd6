package geminilive_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/haivivi/geminilive/pkg/geminilive"
	"github.com/haivivi/geminilive/pkg/tokencache"
)

type countingSource struct {
	calls atomic.Int32
	tok   *oauth2.Token
	err   error
}

func (s *countingSource) Token() (*oauth2.Token, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.tok, nil
}

func TestGoogleAIEndpoint(t *testing.T) {
	ctx := context.Background()

	url, header, err := geminilive.GoogleAI{}.Endpoint(ctx, geminilive.APIKey("k&y"))
	if err != nil {
		t.Fatalf("Endpoint() error = %v", err)
	}
	want := "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=k%26y"
	if url != want {
		t.Errorf("url = %s, want %s", url, want)
	}
	if header.Get("Authorization") != "" {
		t.Errorf("Authorization = %q, want none for API keys", header.Get("Authorization"))
	}

	src := &countingSource{tok: &oauth2.Token{AccessToken: "tok"}}
	url, header, err = geminilive.GoogleAI{BaseURL: "ws://localhost:1/", APIVersion: "v1alpha"}.
		Endpoint(ctx, &geminilive.TokenSourceAuthenticator{Source: src})
	if err != nil {
		t.Fatalf("Endpoint() error = %v", err)
	}
	if !strings.HasPrefix(url, "ws://localhost:1/ws/google.ai.generativelanguage.v1alpha.") || strings.Contains(url, "key=") {
		t.Errorf("url = %s", url)
	}
	if got := header.Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer tok")
	}

	if _, _, err := (geminilive.GoogleAI{}).Endpoint(ctx, nil); err == nil {
		t.Error("Endpoint(nil auth) should fail")
	}
	if _, _, err := (geminilive.GoogleAI{}).Endpoint(ctx, geminilive.APIKey("")); err == nil {
		t.Error("Endpoint(empty key) should fail")
	}
}

func TestVertexAIEndpoint(t *testing.T) {
	ctx := context.Background()
	src := &countingSource{tok: &oauth2.Token{AccessToken: "vtok"}}
	p := geminilive.VertexAI{Project: "proj", Location: "europe-west4"}

	url, header, err := p.Endpoint(ctx, &geminilive.TokenSourceAuthenticator{Source: src})
	if err != nil {
		t.Fatalf("Endpoint() error = %v", err)
	}
	if want := "wss://europe-west4-aiplatform.googleapis.com/ws/google.cloud.aiplatform.v1beta1.LlmBidiService/BidiGenerateContent"; url != want {
		t.Errorf("url = %s, want %s", url, want)
	}
	if header.Get("Authorization") != "Bearer vtok" {
		t.Errorf("Authorization = %q", header.Get("Authorization"))
	}

	if _, _, err := (geminilive.VertexAI{}).Endpoint(ctx, geminilive.APIKey("x")); err == nil {
		t.Error("Endpoint() without project should fail")
	}
}

func TestModelName(t *testing.T) {
	tests := []struct {
		platform geminilive.Platform
		model    string
		want     string
	}{
		{geminilive.GoogleAI{}, "gemini-2.0-flash-live-001", "models/gemini-2.0-flash-live-001"},
		{geminilive.GoogleAI{}, "models/x", "models/x"},
		{geminilive.GoogleAI{}, "tunedModels/y", "tunedModels/y"},
		{geminilive.VertexAI{Project: "p"}, "gemini-2.0-flash-live-001", "projects/p/locations/us-central1/publishers/google/models/gemini-2.0-flash-live-001"},
		{geminilive.VertexAI{Project: "p", Location: "asia-east1"}, "models/m", "projects/p/locations/asia-east1/publishers/google/models/m"},
		{geminilive.VertexAI{Project: "p"}, "projects/q/locations/l/publishers/google/models/m", "projects/q/locations/l/publishers/google/models/m"},
	}
	for _, tt := range tests {
		if got := tt.platform.ModelName(tt.model); got != tt.want {
			t.Errorf("%T.ModelName(%q) = %q, want %q", tt.platform, tt.model, got, tt.want)
		}
	}
}

func TestTokenSourceAuthenticatorCache(t *testing.T) {
	ctx := context.Background()
	cache := tokencache.NewMemory()
	src := &countingSource{tok: &oauth2.Token{AccessToken: "fresh", Expiry: time.Now().Add(time.Hour)}}
	auth := &geminilive.TokenSourceAuthenticator{Source: src, Cache: cache, Key: "k"}

	for range 3 {
		cred, err := auth.Credential(ctx)
		if err != nil {
			t.Fatalf("Credential() error = %v", err)
		}
		if cred != "fresh" {
			t.Errorf("Credential() = %q, want %q", cred, "fresh")
		}
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("token source called %d times, want 1", n)
	}

	// A token inside the leeway window is refreshed.
	if err := cache.Set(ctx, "k", tokencache.Token{Value: "stale", Expiry: time.Now().Add(10 * time.Second)}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if cred, _ := auth.Credential(ctx); cred != "fresh" {
		t.Errorf("Credential() = %q, want refreshed token", cred)
	}
	if n := src.calls.Load(); n != 2 {
		t.Errorf("token source called %d times, want 2", n)
	}
}

func TestTokenSourceAuthenticatorError(t *testing.T) {
	boom := errors.New("metadata server unreachable")
	auth := &geminilive.TokenSourceAuthenticator{Source: &countingSource{err: boom}}
	if _, err := auth.Credential(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Credential() error = %v, want %v", err, boom)
	}
	if _, err := (&geminilive.TokenSourceAuthenticator{}).Credential(context.Background()); err == nil {
		t.Error("Credential() without source should fail")
	}
}

func TestConnectAuthFailure(t *testing.T) {
	peer := newFakePeer(t)
	c := geminilive.NewClient(
		geminilive.WithBaseURL(peer.url()),
		geminilive.WithAuthenticator(&geminilive.TokenSourceAuthenticator{Source: &countingSource{err: errors.New("no creds")}}),
	)
	s := c.NewSession(nil)
	defer s.Close()

	err := s.Connect(context.Background())
	if !geminilive.IsTransportError(err) {
		t.Fatalf("Connect() error = %v, want TransportError", err)
	}
	if got := s.ConnectionState(); got != geminilive.StateDisconnected {
		t.Errorf("ConnectionState() = %v, want %v", got, geminilive.StateDisconnected)
	}
}
