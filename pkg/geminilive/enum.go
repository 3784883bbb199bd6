package geminilive

import (
	"encoding/json"
	"slices"
)

// The server adds enumerants without notice. Every string enum received from
// the wire goes through lenientEnum: values outside the known set collapse to
// the type's unspecified sentinel instead of failing the frame.

func lenientEnum[T ~string](data []byte, fallback T, known []T) T {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fallback
	}
	v := T(s)
	if slices.Contains(known, v) {
		return v
	}
	return fallback
}

// TurnCompleteReason explains why the server completed a turn.
type TurnCompleteReason string

const (
	TurnCompleteReasonUnspecified           TurnCompleteReason = "TURN_COMPLETE_REASON_UNSPECIFIED"
	TurnCompleteReasonMalformedFunctionCall TurnCompleteReason = "MALFORMED_FUNCTION_CALL"
	TurnCompleteReasonResponseRejected      TurnCompleteReason = "RESPONSE_REJECTED"
	TurnCompleteReasonNeedMoreInput         TurnCompleteReason = "NEED_MORE_INPUT"
)

var knownTurnCompleteReasons = []TurnCompleteReason{
	TurnCompleteReasonUnspecified,
	TurnCompleteReasonMalformedFunctionCall,
	TurnCompleteReasonResponseRejected,
	TurnCompleteReasonNeedMoreInput,
}

func (r *TurnCompleteReason) UnmarshalJSON(data []byte) error {
	*r = lenientEnum(data, TurnCompleteReasonUnspecified, knownTurnCompleteReasons)
	return nil
}

// ErrorStatus is the canonical status carried by server error frames.
type ErrorStatus string

const (
	ErrorStatusUnspecified        ErrorStatus = "STATUS_UNSPECIFIED"
	ErrorStatusCancelled          ErrorStatus = "CANCELLED"
	ErrorStatusInvalidArgument    ErrorStatus = "INVALID_ARGUMENT"
	ErrorStatusDeadlineExceeded   ErrorStatus = "DEADLINE_EXCEEDED"
	ErrorStatusNotFound           ErrorStatus = "NOT_FOUND"
	ErrorStatusPermissionDenied   ErrorStatus = "PERMISSION_DENIED"
	ErrorStatusResourceExhausted  ErrorStatus = "RESOURCE_EXHAUSTED"
	ErrorStatusFailedPrecondition ErrorStatus = "FAILED_PRECONDITION"
	ErrorStatusUnauthenticated    ErrorStatus = "UNAUTHENTICATED"
	ErrorStatusInternal           ErrorStatus = "INTERNAL"
	ErrorStatusUnavailable        ErrorStatus = "UNAVAILABLE"
)

var knownErrorStatuses = []ErrorStatus{
	ErrorStatusUnspecified,
	ErrorStatusCancelled,
	ErrorStatusInvalidArgument,
	ErrorStatusDeadlineExceeded,
	ErrorStatusNotFound,
	ErrorStatusPermissionDenied,
	ErrorStatusResourceExhausted,
	ErrorStatusFailedPrecondition,
	ErrorStatusUnauthenticated,
	ErrorStatusInternal,
	ErrorStatusUnavailable,
}

func (s *ErrorStatus) UnmarshalJSON(data []byte) error {
	*s = lenientEnum(data, ErrorStatusUnspecified, knownErrorStatuses)
	return nil
}

// MediaModality is the modality of a token count in usage metadata.
type MediaModality string

const (
	MediaModalityUnspecified MediaModality = "MODALITY_UNSPECIFIED"
	MediaModalityText        MediaModality = "TEXT"
	MediaModalityImage       MediaModality = "IMAGE"
	MediaModalityVideo       MediaModality = "VIDEO"
	MediaModalityAudio       MediaModality = "AUDIO"
	MediaModalityDocument    MediaModality = "DOCUMENT"
)

var knownMediaModalities = []MediaModality{
	MediaModalityUnspecified,
	MediaModalityText,
	MediaModalityImage,
	MediaModalityVideo,
	MediaModalityAudio,
	MediaModalityDocument,
}

func (m *MediaModality) UnmarshalJSON(data []byte) error {
	*m = lenientEnum(data, MediaModalityUnspecified, knownMediaModalities)
	return nil
}

// PayloadKind tags the variant carried by an InboundPayload.
type PayloadKind int

const (
	// PayloadUnknown is a frame with no recognized variant. It is delivered
	// through EventMessageReceived and otherwise ignored.
	PayloadUnknown PayloadKind = iota
	PayloadSetupComplete
	PayloadServerContent
	PayloadTranscription
	PayloadToolCall
	PayloadToolCallCancellation
	PayloadGoAway
	PayloadSessionResumptionUpdate
	PayloadError
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadSetupComplete:
		return "setup_complete"
	case PayloadServerContent:
		return "server_content"
	case PayloadTranscription:
		return "transcription"
	case PayloadToolCall:
		return "tool_call"
	case PayloadToolCallCancellation:
		return "tool_call_cancellation"
	case PayloadGoAway:
		return "go_away"
	case PayloadSessionResumptionUpdate:
		return "session_resumption_update"
	case PayloadError:
		return "error"
	default:
		return "unknown"
	}
}

func (k PayloadKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
