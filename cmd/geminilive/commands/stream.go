package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/haivivi/geminilive/pkg/cli"
	"github.com/haivivi/geminilive/pkg/geminilive"
)

var streamCmd = &cobra.Command{
	Use:   "stream <audio-file>",
	Short: "Stream an audio file as realtime input",
	Long: `Stream an audio file to the model as realtime input and print the reply.

The file is 16-bit little-endian mono PCM, or a WAV file whose header gives
the format. Audio is sent in chunks paced to real time, followed by an
audio stream end so the server's voice activity detection closes the turn.

Examples:
  geminilive stream question.pcm
  geminilive stream question.wav --audio --record ./out
  geminilive stream question.pcm --rate 24000 --no-pace`,
	Args: cobra.ExactArgs(1),
	RunE: runStream,
}

var (
	streamRate       int
	streamChunk      time.Duration
	streamNoPace     bool
	streamAudio      bool
	streamRecord     string
	streamResample   int
	streamFile       string
	streamWait       time.Duration
	streamJQ         string
	streamTokenCache string
)

func init() {
	f := streamCmd.Flags()
	f.IntVar(&streamRate, "rate", geminilive.DefaultInputSampleRate, "sample rate of raw PCM input (Hz)")
	f.DurationVar(&streamChunk, "chunk", 100*time.Millisecond, "audio per realtime message")
	f.BoolVar(&streamNoPace, "no-pace", false, "send as fast as possible instead of in real time")
	f.BoolVar(&streamAudio, "audio", false, "ask for a spoken reply with output transcription")
	f.StringVar(&streamRecord, "record", "", "write model audio as WAV to a directory or s3://bucket/prefix")
	f.IntVar(&streamResample, "resample", 0, "resample recordings to this rate (Hz)")
	f.StringVarP(&streamFile, "file", "f", "", "session config file (YAML or JSON)")
	f.DurationVar(&streamWait, "wait", time.Minute, "how long to wait for the reply")
	f.StringVar(&streamJQ, "jq", "", "jq filter applied to --json events")
	f.StringVar(&streamTokenCache, "token-cache", "", "OAuth token cache for vertexai: memory, redis://..., or a directory")
}

// audioChunks splits pcm into chunks of d at the format in h, aligned to
// whole frames.
func audioChunks(pcm []byte, h geminilive.AudioHeader, d time.Duration) [][]byte {
	frame := max(h.Channels*h.BitsPerSample/8, 1)
	size := int(time.Duration(h.BytesPerSecond()) * d / time.Second)
	size = max(size/frame*frame, frame)

	var chunks [][]byte
	for len(pcm) > 0 {
		n := min(size, len(pcm))
		chunks = append(chunks, pcm[:n])
		pcm = pcm[n:]
	}
	return chunks
}

func runStream(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read audio: %w", err)
	}
	mime := fmt.Sprintf("audio/pcm;rate=%d", streamRate)
	chunk := geminilive.DetectAudioChunk(data, mime)
	header := *chunk.Header
	if header.HasHeader {
		if header.BitsPerSample != 16 || header.Channels != 1 {
			return fmt.Errorf("%s: need 16-bit mono audio, got %d-bit %d channels", args[0], header.BitsPerSample, header.Channels)
		}
		mime = fmt.Sprintf("audio/pcm;rate=%d", header.SampleRate)
	}

	cctx, err := getContext()
	if err != nil {
		return err
	}
	cfg, err := sessionConfig(cctx, streamFile)
	if err != nil {
		return err
	}
	if streamAudio {
		cfg.ResponseModalities = []genai.Modality{genai.ModalityAudio}
		cfg.OutputAudioTranscription = true
	} else if len(cfg.ResponseModalities) == 0 {
		cfg.ResponseModalities = []genai.Modality{genai.ModalityText}
	}
	cfg.InputAudioTranscription = true

	bg, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	client, cleanup, err := newClient(bg, cctx, streamTokenCache)
	if err != nil {
		return err
	}
	defer cleanup()

	session := client.NewSession(cfg)
	defer session.Close()

	if isJSONOutput() {
		jp, err := newJSONPrinter(os.Stdout, streamJQ)
		if err != nil {
			return err
		}
		session.SubscribeAll(jp.Observe)
	} else {
		session.SubscribeAll((&textPrinter{w: os.Stdout}).Observe)
	}
	if streamRecord != "" {
		rec, err := newRecorder(streamRecord, streamResample, false)
		if err != nil {
			return err
		}
		session.Subscribe(geminilive.EventAudioBufferReceived, rec.Observe)
	}
	waiter := newTurnWaiter()
	session.Subscribe(geminilive.EventTurnStateChanged, waiter.Observe)

	connectCtx, cancel := context.WithTimeout(bg, cctx.ConnectTimeout.Or(30*time.Second))
	err = session.Connect(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	chunks := audioChunks(chunk.Data, header, streamChunk)
	if !isJSONOutput() {
		cli.PrintInfo("Streaming %s (%d chunks of %s)", args[0], len(chunks), streamChunk)
	}

	limiter := rate.NewLimiter(rate.Every(streamChunk), 1)
	if streamNoPace {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	for _, c := range chunks {
		if err := limiter.Wait(bg); err != nil {
			return err
		}
		if err := session.SendRealtimeAudio(bg, c, mime); err != nil {
			return fmt.Errorf("failed to send audio: %w", err)
		}
	}
	if err := session.SendAudioStreamEnd(bg); err != nil {
		return fmt.Errorf("failed to end audio stream: %w", err)
	}

	if !waiter.wait(streamWait, session.Done()) {
		return fmt.Errorf("no reply within %s", streamWait)
	}
	return nil
}
