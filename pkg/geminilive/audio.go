package geminilive

import (
	"bytes"
	"encoding/binary"
	"mime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Audio defaults for raw PCM when the MIME type omits parameters. The Live
// API produces 16-bit mono PCM at 24 kHz.
const (
	DefaultOutputSampleRate = 24000
	DefaultInputSampleRate  = 16000
	defaultBitsPerSample    = 16
	defaultChannels         = 1
	wavHeaderSize           = 44
)

// AudioHeader describes the format of an audio buffer.
type AudioHeader struct {
	// HasHeader is true when the descriptor came from a container header in
	// the payload rather than from the MIME type.
	HasHeader     bool `json:"has_header"`
	SampleRate    int  `json:"sample_rate"`
	Channels      int  `json:"channels"`
	BitsPerSample int  `json:"bits_per_sample"`
}

// BytesPerSecond returns the byte rate of the described audio.
func (h AudioHeader) BytesPerSecond() int {
	return h.SampleRate * h.Channels * h.BitsPerSample / 8
}

// AudioChunk is one piece of inbound audio. Data never includes a container
// header; see DetectAudioChunk.
type AudioChunk struct {
	Data     []byte
	MIMEType string
	Header   *AudioHeader
}

// AudioBuffer is a reassembled segment of model audio.
type AudioBuffer struct {
	Data           []byte          `json:"-"`
	Header         AudioHeader     `json:"header"`
	MIMEType       string          `json:"mime_type"`
	Transcriptions []Transcription `json:"transcriptions,omitempty"`
}

// Duration returns the playback length of the buffer, or zero when the
// format is unknown.
func (b *AudioBuffer) Duration() time.Duration {
	bps := b.Header.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(len(b.Data)) * time.Second / time.Duration(bps)
}

// Transcript joins the output transcriptions of the buffer.
func (b *AudioBuffer) Transcript() string {
	var sb strings.Builder
	for _, t := range b.Transcriptions {
		if !t.Input {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// DetectAudioChunk inspects an inline audio payload. A RIFF/WAVE payload is
// reported with HasHeader set, the descriptor read from its fmt chunk and
// Data reduced to the data chunk body. Anything else is raw audio described
// by the MIME parameters.
func DetectAudioChunk(data []byte, mimeType string) AudioChunk {
	if h, body, ok := parseWAV(data); ok {
		if h.SampleRate == 0 {
			m := headerFromMIME(mimeType)
			h.SampleRate, h.Channels, h.BitsPerSample = m.SampleRate, m.Channels, m.BitsPerSample
		}
		return AudioChunk{Data: body, MIMEType: mimeType, Header: &h}
	}
	h := headerFromMIME(mimeType)
	return AudioChunk{Data: data, MIMEType: mimeType, Header: &h}
}

func headerFromMIME(mimeType string) AudioHeader {
	h := AudioHeader{
		SampleRate:    DefaultOutputSampleRate,
		Channels:      defaultChannels,
		BitsPerSample: defaultBitsPerSample,
	}
	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return h
	}
	if v, err := strconv.Atoi(params["rate"]); err == nil && v > 0 {
		h.SampleRate = v
	}
	if v, err := strconv.Atoi(params["channels"]); err == nil && v > 0 {
		h.Channels = v
	}
	switch strings.ToLower(mediaType) {
	case "audio/l8":
		h.BitsPerSample = 8
	case "audio/l24":
		h.BitsPerSample = 24
	}
	return h
}

// parseWAV walks the RIFF chunks. The data chunk size is not trusted because
// streamed WAV headers often carry a placeholder; the body runs to the end
// of the payload in that case.
func parseWAV(data []byte) (AudioHeader, []byte, bool) {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return AudioHeader{}, nil, false
	}
	h := AudioHeader{HasHeader: true}
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		switch id {
		case "fmt ":
			if body+16 <= len(data) {
				h.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
				h.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
				h.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
			}
		case "data":
			end := body + size
			if size < 0 || end > len(data) || end < body {
				end = len(data)
			}
			return h, data[body:end], true
		}
		next := body + size + size%2
		if size < 0 || next <= off || next > len(data) {
			break
		}
		off = next
	}
	return h, nil, true
}

// EncodeWAVHeader returns a 44-byte PCM WAV header for dataLen bytes of audio.
func EncodeWAVHeader(h AudioHeader, dataLen int) []byte {
	buf := make([]byte, wavHeaderSize)
	blockAlign := h.Channels * h.BitsPerSample / 8
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(h.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(h.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(h.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(h.BitsPerSample))
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	return buf
}

// AudioReassembler accumulates audio chunks into buffers.
//
// A chunk with a container header starts a new buffer, emitting the previous
// one if it holds data. FinalizeOnTurnComplete emits whatever has been
// accumulated. No chunk is ever dropped.
type AudioReassembler struct {
	mu             sync.Mutex
	data           []byte
	header         AudioHeader
	hasDescriptor  bool
	mimeType       string
	transcriptions []Transcription
}

// NewAudioReassembler returns an empty reassembler.
func NewAudioReassembler() *AudioReassembler {
	return &AudioReassembler{}
}

// Feed adds a chunk and returns the buffer it completed, if any. A chunk
// with no data and no header is ignored.
func (r *AudioReassembler) Feed(c AudioChunk) *AudioBuffer {
	startsNew := c.Header != nil && c.Header.HasHeader
	if len(c.Data) == 0 && !startsNew {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var done *AudioBuffer
	if startsNew {
		if len(r.data) > 0 {
			done = r.takeLocked()
		}
		r.header = *c.Header
		r.hasDescriptor = true
		r.mimeType = c.MIMEType
	} else if !r.hasDescriptor {
		if c.Header != nil {
			r.header = *c.Header
		} else {
			r.header = headerFromMIME(c.MIMEType)
		}
		r.hasDescriptor = true
		r.mimeType = c.MIMEType
	}
	r.data = append(r.data, c.Data...)
	return done
}

// AddTranscription attaches a transcription to the current buffer.
func (r *AudioReassembler) AddTranscription(t Transcription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcriptions = append(r.transcriptions, t)
}

// FinalizeOnTurnComplete emits the current buffer regardless of header
// state. It returns nil when no audio was accumulated.
func (r *AudioReassembler) FinalizeOnTurnComplete() *AudioBuffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.data) == 0 {
		r.resetLocked()
		return nil
	}
	return r.takeLocked()
}

// Pending returns the number of bytes waiting in the current buffer.
func (r *AudioReassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// Reset discards the current buffer.
func (r *AudioReassembler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

func (r *AudioReassembler) takeLocked() *AudioBuffer {
	b := &AudioBuffer{
		Data:           r.data,
		Header:         r.header,
		MIMEType:       r.mimeType,
		Transcriptions: r.transcriptions,
	}
	r.resetLocked()
	return b
}

func (r *AudioReassembler) resetLocked() {
	r.data = nil
	r.header = AudioHeader{}
	r.hasDescriptor = false
	r.mimeType = ""
	r.transcriptions = nil
}
