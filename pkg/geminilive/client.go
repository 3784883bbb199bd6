package geminilive

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"
)

// Client creates Live sessions.
type Client struct {
	config *clientConfig
}

// clientConfig holds the client configuration.
type clientConfig struct {
	auth            Authenticator
	platform        Platform
	dialer          *websocket.Dialer
	pingInterval    time.Duration
	writeTimeout    time.Duration
	reconnect       ReconnectPolicy
	turnIdleTimeout time.Duration
	logger          *slog.Logger
}

// Option configures the Client.
type Option func(*clientConfig)

// NewClient creates a client. Without options it targets the Gemini
// Developer API and needs an authenticator, usually from WithAPIKey.
func NewClient(opts ...Option) *Client {
	cfg := &clientConfig{
		platform: GoogleAI{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{config: cfg}
}

// WithAPIKey authenticates with a Gemini API key.
func WithAPIKey(key string) Option {
	return func(c *clientConfig) {
		c.auth = APIKey(key)
	}
}

// WithAuthenticator sets the credential provider.
func WithAuthenticator(a Authenticator) Option {
	return func(c *clientConfig) {
		c.auth = a
	}
}

// WithPlatform sets the endpoint adapter.
func WithPlatform(p Platform) Option {
	return func(c *clientConfig) {
		c.platform = p
	}
}

// WithBaseURL targets the Gemini Developer API at a custom base URL, such
// as a proxy.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.platform = GoogleAI{BaseURL: url}
	}
}

// WithVertexAI targets Vertex AI in the given project and location.
func WithVertexAI(project, location string) Option {
	return func(c *clientConfig) {
		c.platform = VertexAI{Project: project, Location: location}
	}
}

// WithDialer sets the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *clientConfig) {
		c.dialer = d
	}
}

// WithPingInterval sets the keepalive period. A negative value disables it.
func WithPingInterval(d time.Duration) Option {
	return func(c *clientConfig) {
		c.pingInterval = d
	}
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.writeTimeout = d
	}
}

// WithReconnectPolicy sets how unexpected disconnects are handled.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(c *clientConfig) {
		c.reconnect = p
	}
}

// WithTurnIdleTimeout finalizes a model turn as interrupted when no frame
// arrives for d while the model is speaking.
func WithTurnIdleTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.turnIdleTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// Connect creates a session and connects it. Observers subscribed on the
// returned session miss the connection events; use NewSession to subscribe
// first.
func (c *Client) Connect(ctx context.Context, cfg *SessionConfig) (*Session, error) {
	s := c.NewSession(cfg)
	if err := s.Connect(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// SessionConfig configures one Live session.
type SessionConfig struct {
	Model             string `json:"model" yaml:"model"`
	SystemInstruction string `json:"system_instruction,omitempty" yaml:"system_instruction,omitempty"`

	ResponseModalities []genai.Modality `json:"response_modalities,omitempty" yaml:"response_modalities,omitempty"`
	Voice              string           `json:"voice,omitempty" yaml:"voice,omitempty"`
	LanguageCode       string           `json:"language_code,omitempty" yaml:"language_code,omitempty"`
	Temperature        *float32         `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxOutputTokens    int32            `json:"max_output_tokens,omitempty" yaml:"max_output_tokens,omitempty"`

	InputAudioTranscription  bool `json:"input_audio_transcription,omitempty" yaml:"input_audio_transcription,omitempty"`
	OutputAudioTranscription bool `json:"output_audio_transcription,omitempty" yaml:"output_audio_transcription,omitempty"`

	// SessionResumption asks the server for resumption handles, used to
	// resume the server-side session after a reconnect.
	SessionResumption bool `json:"session_resumption,omitempty" yaml:"session_resumption,omitempty"`

	// ContextWindowCompression enables sliding-window compression for long
	// sessions.
	ContextWindowCompression bool `json:"context_window_compression,omitempty" yaml:"context_window_compression,omitempty"`

	// ManualActivityDetection disables server-side voice activity detection;
	// the caller then marks speech with SendActivityStart/End.
	ManualActivityDetection bool `json:"manual_activity_detection,omitempty" yaml:"manual_activity_detection,omitempty"`

	// GenerationConfig, when set, is the base the fields above are applied to.
	GenerationConfig *genai.GenerationConfig `json:"-" yaml:"-"`

	// Tools are registered on the session when it is created.
	Tools []*Tool `json:"-" yaml:"-"`
}

// NewSetup builds the setup message for cfg. handle resumes a previous
// server session when non-empty.
func NewSetup(cfg *SessionConfig, p Platform, tools []*genai.Tool, handle string) *Setup {
	if cfg == nil {
		cfg = &SessionConfig{}
	}
	if p == nil {
		p = GoogleAI{}
	}
	model := cfg.Model
	if model == "" {
		model = ModelGemini20FlashLive
	}

	setup := &Setup{
		Model: p.ModelName(model),
		Tools: tools,
	}

	var gc genai.GenerationConfig
	if cfg.GenerationConfig != nil {
		gc = *cfg.GenerationConfig
	}
	if len(cfg.ResponseModalities) > 0 {
		gc.ResponseModalities = cfg.ResponseModalities
	}
	if cfg.Voice != "" || cfg.LanguageCode != "" {
		sc := &genai.SpeechConfig{LanguageCode: cfg.LanguageCode}
		if cfg.Voice != "" {
			sc.VoiceConfig = &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			}
		}
		gc.SpeechConfig = sc
	}
	if cfg.Temperature != nil {
		gc.Temperature = cfg.Temperature
	}
	if cfg.MaxOutputTokens > 0 {
		gc.MaxOutputTokens = cfg.MaxOutputTokens
	}
	if cfg.GenerationConfig != nil || len(gc.ResponseModalities) > 0 || gc.SpeechConfig != nil ||
		gc.Temperature != nil || gc.MaxOutputTokens > 0 {
		setup.GenerationConfig = &gc
	}

	if cfg.SystemInstruction != "" {
		setup.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.SystemInstruction}},
		}
	}
	if cfg.InputAudioTranscription {
		setup.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputAudioTranscription {
		setup.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.SessionResumption || handle != "" {
		setup.SessionResumption = &genai.SessionResumptionConfig{Handle: handle}
	}
	if cfg.ContextWindowCompression {
		setup.ContextWindowCompression = &genai.ContextWindowCompressionConfig{
			SlidingWindow: &genai.SlidingWindow{},
		}
	}
	if cfg.ManualActivityDetection {
		setup.RealtimeInputConfig = &genai.RealtimeInputConfig{
			AutomaticActivityDetection: &genai.AutomaticActivityDetection{Disabled: true},
		}
	}
	return setup
}

func (c *clientConfig) endpoint() EndpointFunc {
	return func(ctx context.Context) (string, http.Header, error) {
		if c.platform == nil {
			return "", nil, errors.New("geminilive: no platform configured")
		}
		return c.platform.Endpoint(ctx, c.auth)
	}
}
