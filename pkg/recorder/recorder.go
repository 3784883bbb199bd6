package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haivivi/geminilive/pkg/geminilive"
)

// Recorder writes audio buffers to a Sink.
type Recorder struct {
	sink       Sink
	sampleRate int
	metadata   bool
	timeout    time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	seq     map[string]int
	written []string
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithSampleRate resamples every recording to rate before writing. Zero keeps
// the source rate.
func WithSampleRate(rate int) Option {
	return func(r *Recorder) { r.sampleRate = rate }
}

// WithMetadata writes a JSON sidecar next to every recording holding its
// format, duration and transcript.
func WithMetadata(enabled bool) Option {
	return func(r *Recorder) { r.metadata = enabled }
}

// WithWriteTimeout bounds each sink write. Default 30s.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Recorder) { r.timeout = d }
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// New creates a Recorder writing to sink.
func New(sink Sink, opts ...Option) *Recorder {
	r := &Recorder{
		sink:    sink,
		timeout: 30 * time.Second,
		logger:  slog.Default(),
		seq:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Metadata is the content of a recording's JSON sidecar.
type Metadata struct {
	SessionID  string                 `json:"session_id"`
	Seq        int                    `json:"seq"`
	Time       time.Time              `json:"time"`
	Header     geminilive.AudioHeader `json:"header"`
	DurationMs int64                  `json:"duration_ms"`
	Transcript string                 `json:"transcript,omitempty"`
}

// Observe is a geminilive.Observer. Events other than
// EventAudioBufferReceived are ignored.
func (r *Recorder) Observe(ev *geminilive.Event) error {
	if ev.Type != geminilive.EventAudioBufferReceived || ev.Audio == nil {
		return nil
	}
	buf := ev.Audio
	h := buf.Header
	if h.SampleRate <= 0 || h.BitsPerSample <= 0 {
		r.logger.Warn("recorder: skipping audio of unknown format", "mime", buf.MIMEType, "bytes", len(buf.Data))
		return nil
	}
	if h.Channels <= 0 {
		h.Channels = 1
	}

	pcm := buf.Data
	if r.sampleRate > 0 && r.sampleRate != h.SampleRate {
		var err error
		if pcm, h, err = resample(pcm, h, r.sampleRate); err != nil {
			return err
		}
	}

	session := ev.SessionID
	if session == "" {
		session = "default"
	}
	r.mu.Lock()
	seq := r.seq[session]
	r.seq[session] = seq + 1
	r.mu.Unlock()

	base := fmt.Sprintf("%s/%04d", session, seq)
	wav := append(geminilive.EncodeWAVHeader(h, len(pcm)), pcm...)

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.sink.Put(ctx, base+".wav", wav, "audio/wav"); err != nil {
		return err
	}

	if r.metadata {
		meta := Metadata{
			SessionID:  session,
			Seq:        seq,
			Time:       ev.Time,
			Header:     h,
			DurationMs: buf.Duration().Milliseconds(),
			Transcript: buf.Transcript(),
		}
		data, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return fmt.Errorf("recorder: marshal metadata: %w", err)
		}
		if err := r.sink.Put(ctx, base+".json", data, "application/json"); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.written = append(r.written, base+".wav")
	r.mu.Unlock()
	r.logger.Debug("recorder: wrote audio", "path", base+".wav", "bytes", len(wav))
	return nil
}

// Written returns the paths of the recordings written so far, in order.
func (r *Recorder) Written() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.written...)
}
