package jsontime

import (
	"encoding/json"
	"testing"
	"time"

	goyaml "github.com/goccy/go-yaml"
	"gopkg.in/yaml.v3"
)

func TestMilliJSON(t *testing.T) {
	ep := Milli(time.UnixMilli(1700000000123))
	data, err := json.Marshal(ep)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(data) != "1700000000123" {
		t.Errorf("Marshal = %s, want 1700000000123", data)
	}

	var got Milli
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !got.Time().Equal(ep.Time()) {
		t.Errorf("Unmarshal = %v, want %v", got, ep)
	}
	if err := json.Unmarshal([]byte(`"x"`), &got); err == nil {
		t.Error("Unmarshal(string) should fail")
	}
	if !(Milli{}).IsZero() {
		t.Error("zero Milli should be IsZero")
	}
}

func TestDurationJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: `"2h30m"`, want: 2*time.Hour + 30*time.Minute},
		{in: `"500ms"`, want: 500 * time.Millisecond},
		{in: `""`, want: 0},
		{in: `5000000000`, want: 5 * time.Second},
		{in: `null`, want: 0},
		{in: `"soon"`, wantErr: true},
		{in: `true`, wantErr: true},
	}
	for _, tt := range tests {
		var d Duration
		err := json.Unmarshal([]byte(tt.in), &d)
		if (err != nil) != tt.wantErr {
			t.Errorf("Unmarshal(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && time.Duration(d) != tt.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, time.Duration(d), tt.want)
		}
	}

	data, err := json.Marshal(Duration(90 * time.Minute))
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if string(data) != `"1h30m0s"` {
		t.Errorf("Marshal = %s, want %q", data, "1h30m0s")
	}
}

type yamlConfig struct {
	Timeout Duration  `yaml:"timeout"`
	Idle    *Duration `yaml:"idle,omitempty"`
}

func TestDurationYAML(t *testing.T) {
	src := []byte("timeout: 45s\nidle: 2m\n")

	var a yamlConfig
	if err := yaml.Unmarshal(src, &a); err != nil {
		t.Fatalf("yaml.v3 Unmarshal error: %v", err)
	}
	var b yamlConfig
	if err := goyaml.Unmarshal(src, &b); err != nil {
		t.Fatalf("go-yaml Unmarshal error: %v", err)
	}
	for _, got := range []yamlConfig{a, b} {
		if got.Timeout.Duration() != 45*time.Second || got.Idle.Duration() != 2*time.Minute {
			t.Errorf("Unmarshal = %v/%v, want 45s/2m", got.Timeout, got.Idle.Duration())
		}
	}

	out, err := goyaml.Marshal(yamlConfig{Timeout: Duration(time.Second)})
	if err != nil {
		t.Fatalf("go-yaml Marshal error: %v", err)
	}
	var back yamlConfig
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("yaml.v3 Unmarshal(%s) error: %v", out, err)
	}
	if back.Timeout.Duration() != time.Second || back.Idle != nil {
		t.Errorf("round trip = %+v from %s", back, out)
	}
}

func TestDurationOr(t *testing.T) {
	var nilD *Duration
	if nilD.Or(time.Minute) != time.Minute {
		t.Error("nil Or() should return the default")
	}
	if FromDuration(0).Or(time.Minute) != time.Minute {
		t.Error("zero Or() should return the default")
	}
	if FromDuration(time.Second).Or(time.Minute) != time.Second {
		t.Error("Or() should return the set value")
	}
}
