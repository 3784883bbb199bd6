package geminilive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Platform maps a model name and credential onto a concrete endpoint.
type Platform interface {
	Endpoint(ctx context.Context, auth Authenticator) (string, http.Header, error)
	ModelName(model string) string
}

// Endpoints.
const (
	DefaultGoogleAIBaseURL  = "wss://generativelanguage.googleapis.com"
	DefaultGoogleAIVersion  = "v1beta"
	DefaultVertexAILocation = "us-central1"
)

// GoogleAI is the Gemini Developer API. An APIKey credential is sent as the
// key query parameter; any other credential as a bearer token.
type GoogleAI struct {
	BaseURL    string
	APIVersion string
}

func (p GoogleAI) Endpoint(ctx context.Context, auth Authenticator) (string, http.Header, error) {
	if auth == nil {
		return "", nil, errors.New("geminilive: google ai: no authenticator")
	}
	base := strings.TrimRight(p.BaseURL, "/")
	if base == "" {
		base = DefaultGoogleAIBaseURL
	}
	version := p.APIVersion
	if version == "" {
		version = DefaultGoogleAIVersion
	}
	cred, err := auth.Credential(ctx)
	if err != nil {
		return "", nil, err
	}

	u := fmt.Sprintf("%s/ws/google.ai.generativelanguage.%s.GenerativeService.BidiGenerateContent", base, version)
	header := http.Header{}
	if _, ok := auth.(APIKey); ok {
		u += "?key=" + url.QueryEscape(cred)
	} else {
		header.Set("Authorization", "Bearer "+cred)
	}
	return u, header, nil
}

func (GoogleAI) ModelName(model string) string {
	if strings.Contains(model, "/") {
		return model
	}
	return "models/" + model
}

// VertexAI is the Vertex AI Live endpoint. It requires a bearer credential.
type VertexAI struct {
	Project  string
	Location string

	// BaseURL overrides the regional endpoint.
	BaseURL string
}

func (p VertexAI) location() string {
	if p.Location == "" {
		return DefaultVertexAILocation
	}
	return p.Location
}

func (p VertexAI) Endpoint(ctx context.Context, auth Authenticator) (string, http.Header, error) {
	if p.Project == "" {
		return "", nil, errors.New("geminilive: vertex ai: project is required")
	}
	if auth == nil {
		return "", nil, errors.New("geminilive: vertex ai: no authenticator")
	}
	base := strings.TrimRight(p.BaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("wss://%s-aiplatform.googleapis.com", p.location())
	}
	cred, err := auth.Credential(ctx)
	if err != nil {
		return "", nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cred)
	return base + "/ws/google.cloud.aiplatform.v1beta1.LlmBidiService/BidiGenerateContent", header, nil
}

func (p VertexAI) ModelName(model string) string {
	if strings.HasPrefix(model, "projects/") {
		return model
	}
	model = strings.TrimPrefix(model, "models/")
	if !strings.Contains(model, "/") {
		model = "publishers/google/models/" + model
	}
	return fmt.Sprintf("projects/%s/locations/%s/%s", p.Project, p.location(), model)
}
