package geminilive

import (
	"encoding/json"

	"google.golang.org/genai"
)

// Roles used in conversation content.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Model names.
const (
	ModelGemini20FlashLive        = "gemini-2.0-flash-live-001"
	ModelGemini25FlashLive        = "gemini-live-2.5-flash-preview"
	ModelGemini25FlashNativeAudio = "gemini-2.5-flash-native-audio-preview-09-2025"
)

// Audio MIME types.
const (
	MIMETypePCM16k = "audio/pcm;rate=16000"
	MIMETypePCM24k = "audio/pcm;rate=24000"
)

// ---------------------------------------------------------------------------
// Outbound
// ---------------------------------------------------------------------------

// Setup is the first message of every connection.
type Setup struct {
	Model                    string                                `json:"model"`
	GenerationConfig         *genai.GenerationConfig               `json:"generationConfig,omitempty"`
	SystemInstruction        *genai.Content                        `json:"systemInstruction,omitempty"`
	Tools                    []*genai.Tool                         `json:"tools,omitempty"`
	RealtimeInputConfig      *genai.RealtimeInputConfig            `json:"realtimeInputConfig,omitempty"`
	SessionResumption        *genai.SessionResumptionConfig        `json:"sessionResumption,omitempty"`
	ContextWindowCompression *genai.ContextWindowCompressionConfig `json:"contextWindowCompression,omitempty"`
	InputAudioTranscription  *genai.AudioTranscriptionConfig       `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *genai.AudioTranscriptionConfig       `json:"outputAudioTranscription,omitempty"`
}

// RealtimeInput streams audio, video or text without turn boundaries. The
// server's voice activity detection decides when the user has finished.
type RealtimeInput struct {
	Audio          *genai.Blob          `json:"audio,omitempty"`
	Video          *genai.Blob          `json:"video,omitempty"`
	Text           string               `json:"text,omitempty"`
	AudioStreamEnd bool                 `json:"audioStreamEnd,omitempty"`
	ActivityStart  *genai.ActivityStart `json:"activityStart,omitempty"`
	ActivityEnd    *genai.ActivityEnd   `json:"activityEnd,omitempty"`
}

// OutboundMessage is a client frame. Exactly one field must be set.
type OutboundMessage struct {
	Setup         *Setup                        `json:"setup,omitempty"`
	ClientContent *genai.LiveClientContent      `json:"clientContent,omitempty"`
	RealtimeInput *RealtimeInput                `json:"realtimeInput,omitempty"`
	ToolResponse  *genai.LiveClientToolResponse `json:"toolResponse,omitempty"`
}

// ---------------------------------------------------------------------------
// Inbound
// ---------------------------------------------------------------------------

// ServerContent is an incremental piece of the model's turn.
type ServerContent struct {
	ModelTurn           *genai.Content       `json:"modelTurn,omitempty"`
	TurnComplete        bool                 `json:"turnComplete,omitempty"`
	Interrupted         bool                 `json:"interrupted,omitempty"`
	GenerationComplete  bool                 `json:"generationComplete,omitempty"`
	WaitingForInput     bool                 `json:"waitingForInput,omitempty"`
	TurnCompleteReason  TurnCompleteReason   `json:"turnCompleteReason,omitempty"`
	InputTranscription  *genai.Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *genai.Transcription `json:"outputTranscription,omitempty"`
}

// HasParts reports whether the frame carries model turn parts.
func (c *ServerContent) HasParts() bool {
	return c.ModelTurn != nil && len(c.ModelTurn.Parts) > 0
}

func (c *ServerContent) onlyTranscriptions() bool {
	return !c.HasParts() && !c.TurnComplete && !c.Interrupted && !c.GenerationComplete &&
		(c.InputTranscription != nil || c.OutputTranscription != nil)
}

// ModalityTokenCount is a token count for one modality.
type ModalityTokenCount struct {
	Modality   MediaModality `json:"modality,omitempty"`
	TokenCount int32         `json:"tokenCount,omitempty"`
}

// UsageMetadata reports token usage. It may accompany any server frame.
type UsageMetadata struct {
	PromptTokenCount        int32                 `json:"promptTokenCount,omitempty"`
	CachedContentTokenCount int32                 `json:"cachedContentTokenCount,omitempty"`
	ResponseTokenCount      int32                 `json:"responseTokenCount,omitempty"`
	ToolUsePromptTokenCount int32                 `json:"toolUsePromptTokenCount,omitempty"`
	ThoughtsTokenCount      int32                 `json:"thoughtsTokenCount,omitempty"`
	TotalTokenCount         int32                 `json:"totalTokenCount,omitempty"`
	PromptTokensDetails     []*ModalityTokenCount `json:"promptTokensDetails,omitempty"`
	ResponseTokensDetails   []*ModalityTokenCount `json:"responseTokensDetails,omitempty"`
}

// Transcription is a fragment of speech-to-text for either side.
type Transcription struct {
	// Input is true for the user's speech, false for the model's.
	Input    bool   `json:"input"`
	Text     string `json:"text"`
	Finished bool   `json:"finished,omitempty"`
}

// InboundPayload is a decoded server frame. Kind selects the populated field.
type InboundPayload struct {
	Kind PayloadKind `json:"kind"`

	ServerContent        *ServerContent                           `json:"server_content,omitempty"`
	ToolCall             *genai.LiveServerToolCall                `json:"tool_call,omitempty"`
	ToolCallCancellation *genai.LiveServerToolCallCancellation    `json:"tool_call_cancellation,omitempty"`
	GoAway               *genai.LiveServerGoAway                  `json:"go_away,omitempty"`
	ResumptionUpdate     *genai.LiveServerSessionResumptionUpdate `json:"resumption_update,omitempty"`
	Error                *Error                                   `json:"error,omitempty"`

	// UsageMetadata is side data; it may be set with any Kind.
	UsageMetadata *UsageMetadata `json:"usage_metadata,omitempty"`

	// Raw is the frame as received.
	Raw json.RawMessage `json:"-"`
}

// Transcriptions returns the transcriptions carried by a server content
// frame, input first.
func (p *InboundPayload) Transcriptions() []Transcription {
	if p.ServerContent == nil {
		return nil
	}
	var out []Transcription
	if t := p.ServerContent.InputTranscription; t != nil && t.Text != "" {
		out = append(out, Transcription{Input: true, Text: t.Text, Finished: t.Finished})
	}
	if t := p.ServerContent.OutputTranscription; t != nil && t.Text != "" {
		out = append(out, Transcription{Text: t.Text, Finished: t.Finished})
	}
	return out
}
