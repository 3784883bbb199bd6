package recorder

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/haivivi/geminilive/pkg/geminilive"
)

// resample converts 16-bit PCM in h to the given sample rate. Channel count is
// preserved.
func resample(pcm []byte, h geminilive.AudioHeader, rate int) ([]byte, geminilive.AudioHeader, error) {
	if h.SampleRate == rate || len(pcm) == 0 {
		return pcm, h, nil
	}
	if h.BitsPerSample != 16 {
		return nil, h, fmt.Errorf("recorder: resample: unsupported sample width %d", h.BitsPerSample)
	}
	channels := max(h.Channels, 1)

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(h.SampleRate),
		OutputRate: float64(rate),
		Channels:   channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, h, fmt.Errorf("recorder: create resampler: %w", err)
	}

	frames := len(pcm) / (2 * channels)
	input := make([]float64, frames*channels)
	for i := range input {
		sample := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		input[i] = float64(sample) / 32768.0
	}

	output, err := rs.Process(input)
	if err != nil {
		return nil, h, fmt.Errorf("recorder: resample: %w", err)
	}
	// Keep whole frames only.
	output = output[:len(output)/channels*channels]

	out := make([]byte, len(output)*2)
	for i, s := range output {
		sample := int16(s * 32767.0)
		if s > 1.0 {
			sample = 32767
		} else if s < -1.0 {
			sample = -32768
		}
		out[i*2] = byte(sample)
		out[i*2+1] = byte(sample >> 8)
	}

	h.SampleRate = rate
	h.Channels = channels
	return out, h, nil
}
