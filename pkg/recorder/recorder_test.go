package recorder

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/haivivi/geminilive/pkg/geminilive"
)

// apiError implements smithy.APIError for test assertions.
type apiError struct {
	code string
	msg  string
}

func (e *apiError) Error() string                 { return e.msg }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.msg }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = data
	if in.ContentType != nil {
		m.types[*in.Key] = *in.ContentType
	}
	return &s3.PutObjectOutput{}, nil
}

func pcm16(samples int) []byte {
	b := make([]byte, samples*2)
	for i := range samples {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/24000))
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}

func audioEvent(session string, data []byte) *geminilive.Event {
	return &geminilive.Event{
		Type:      geminilive.EventAudioBufferReceived,
		SessionID: session,
		Audio: &geminilive.AudioBuffer{
			Data:     data,
			MIMEType: "audio/pcm;rate=24000",
			Header:   geminilive.AudioHeader{SampleRate: 24000, Channels: 1, BitsPerSample: 16},
			Transcriptions: []geminilive.Transcription{
				{Text: "hello "},
				{Text: "ignored", Input: true},
				{Text: "there"},
			},
		},
	}
}

func TestRecorderLocal(t *testing.T) {
	sink, err := NewLocalSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalSink() error = %v", err)
	}
	r := New(sink, WithMetadata(true))

	data := pcm16(2400)
	for range 2 {
		if err := r.Observe(audioEvent("s1", data)); err != nil {
			t.Fatalf("Observe() error = %v", err)
		}
	}
	if err := r.Observe(audioEvent("s2", data)); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}

	want := []string{"s1/0000.wav", "s1/0001.wav", "s2/0000.wav"}
	if got := r.Written(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Written() = %v, want %v", got, want)
	}

	wav, err := os.ReadFile(filepath.Join(sink.Root(), "s1", "0001.wav"))
	if err != nil {
		t.Fatalf("read recording: %v", err)
	}
	if len(wav) != 44+len(data) {
		t.Errorf("wav size = %d, want %d", len(wav), 44+len(data))
	}
	if string(wav[0:4]) != "RIFF" || binary.LittleEndian.Uint32(wav[24:28]) != 24000 {
		t.Errorf("wav header = %x", wav[:44])
	}

	raw, err := os.ReadFile(filepath.Join(sink.Root(), "s1", "0001.json"))
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.Seq != 1 || meta.DurationMs != 100 || meta.Transcript != "hello there" {
		t.Errorf("metadata = %+v", meta)
	}
}

func TestRecorderIgnoresOtherEvents(t *testing.T) {
	s3c := newMockS3()
	r := New(NewS3Sink(s3c, "b", ""))
	for _, ev := range []*geminilive.Event{
		{Type: geminilive.EventTextChunkReceived, Text: "hi"},
		{Type: geminilive.EventAudioBufferReceived},
		{Type: geminilive.EventAudioBufferReceived, Audio: &geminilive.AudioBuffer{Data: []byte{1, 2}, MIMEType: "audio/opus"}},
	} {
		if err := r.Observe(ev); err != nil {
			t.Errorf("Observe(%s) error = %v", ev.Type, err)
		}
	}
	if len(s3c.objects) != 0 {
		t.Errorf("objects = %d, want 0", len(s3c.objects))
	}
}

func TestRecorderS3(t *testing.T) {
	s3c := newMockS3()
	r := New(NewS3Sink(s3c, "bucket", "rec"))
	if err := r.Observe(audioEvent("abc", pcm16(10))); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	obj, ok := s3c.objects["rec/abc/0000.wav"]
	if !ok {
		t.Fatalf("objects = %v, want rec/abc/0000.wav", s3c.objects)
	}
	if len(obj) != 44+20 {
		t.Errorf("object size = %d, want %d", len(obj), 64)
	}
	if ct := s3c.types["rec/abc/0000.wav"]; ct != "audio/wav" {
		t.Errorf("ContentType = %q, want audio/wav", ct)
	}
	if _, ok := s3c.objects["rec/abc/0000.json"]; ok {
		t.Error("metadata written without WithMetadata")
	}
}

func TestRecorderS3Error(t *testing.T) {
	s3c := newMockS3()
	denied := &apiError{code: "AccessDenied", msg: "access denied"}
	s3c.putErr = denied
	r := New(NewS3Sink(s3c, "bucket", ""))

	err := r.Observe(audioEvent("abc", pcm16(10)))
	if !errors.Is(err, denied) {
		t.Fatalf("Observe() error = %v, want %v", err, denied)
	}
	if !strings.Contains(err.Error(), "AccessDenied") || !strings.Contains(err.Error(), "s3://bucket/abc/0000.wav") {
		t.Errorf("error = %q", err)
	}
	if len(r.Written()) != 0 {
		t.Errorf("Written() = %v, want none", r.Written())
	}
}

func TestRecorderResample(t *testing.T) {
	s3c := newMockS3()
	r := New(NewS3Sink(s3c, "b", ""), WithSampleRate(16000))
	if err := r.Observe(audioEvent("s", pcm16(24000))); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}
	wav := s3c.objects["s/0000.wav"]
	if len(wav) < 44 {
		t.Fatalf("wav size = %d", len(wav))
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("sample rate = %d, want 16000", rate)
	}
	dataLen := int(binary.LittleEndian.Uint32(wav[40:44]))
	if dataLen != len(wav)-44 {
		t.Errorf("data chunk size = %d, want %d", dataLen, len(wav)-44)
	}
	// One second of audio, minus whatever the filter still holds.
	if samples := dataLen / 2; samples < 12000 || samples > 16100 {
		t.Errorf("resampled samples = %d, want about 16000", samples)
	}
}

func TestResampleRejectsNon16Bit(t *testing.T) {
	h := geminilive.AudioHeader{SampleRate: 24000, Channels: 1, BitsPerSample: 8}
	if _, _, err := resample([]byte{1, 2, 3}, h, 16000); err == nil {
		t.Error("resample(8-bit) should fail")
	}
	h.BitsPerSample = 16
	out, got, err := resample([]byte{1, 2}, h, 24000)
	if err != nil || len(out) != 2 || got != h {
		t.Errorf("resample(same rate) = (%v, %+v, %v)", out, got, err)
	}
}
