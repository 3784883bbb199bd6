package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type request struct {
	Model string   `json:"model" yaml:"model"`
	Tags  []string `json:"tags" yaml:"tags"`
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"r.yaml", "model: m\ntags: [a, b]\n", false},
		{"r.yml", "model: m\ntags:\n  - a\n  - b\n", false},
		{"r.json", `{"model":"m","tags":["a","b"]}`, false},
		{"r.txt", `{"model":"m","tags":["a","b"]}`, false},
		{"r.json", "model: m", true},
		{"r", "[[[", true},
	}
	for _, tt := range tests {
		var req request
		err := ParseRequest([]byte(tt.data), tt.name, &req)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRequest(%s) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && (req.Model != "m" || strings.Join(req.Tags, ",") != "a,b") {
			t.Errorf("ParseRequest(%s) = %+v", tt.name, req)
		}
	}
}

func TestLoadRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.yaml")
	if err := os.WriteFile(path, []byte("model: gemini\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var req request
	if err := LoadRequest(path, &req); err != nil || req.Model != "gemini" {
		t.Errorf("LoadRequest() = %+v, %v", req, err)
	}
	if err := LoadRequest(filepath.Join(t.TempDir(), "missing.yaml"), &req); err == nil {
		t.Error("LoadRequest(missing) should fail")
	}

	var fromReader request
	if err := LoadRequestFromReader(strings.NewReader("model: y\n"), &fromReader); err != nil || fromReader.Model != "y" {
		t.Errorf("LoadRequestFromReader() = %+v, %v", fromReader, err)
	}
}
