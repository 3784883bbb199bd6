package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/genai"

	"github.com/haivivi/geminilive/pkg/cli"
	"github.com/haivivi/geminilive/pkg/geminilive"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session.

Each line read from stdin is sent as a user turn. Model text streams to stdout
as it arrives. With --audio the model answers with speech; buffers are
summarized with their transcript and can be written as WAV files with
--record.

Commands:
  /history   print the conversation history
  /exit      end the session

Examples:
  geminilive chat
  geminilive chat -f session.yaml --audio --record ./out --resample 16000
  geminilive chat --audio --record s3://my-bucket/live
  geminilive chat --json --jq 'select(.type == "text_chunk_received") | .text'`,
	RunE: runChat,
}

var (
	chatSessionFile string
	chatModel       string
	chatVoice       string
	chatInstruction string
	chatAudio       bool
	chatRecord      string
	chatResample    int
	chatMetadata    bool
	chatJQ          string
	chatTokenCache  string
	chatTools       bool
	chatTurnTimeout time.Duration
)

func init() {
	f := chatCmd.Flags()
	f.StringVarP(&chatSessionFile, "file", "f", "", "session config file (YAML or JSON)")
	f.StringVar(&chatModel, "model", "", "model (default from context, then "+geminilive.ModelGemini25FlashLive+")")
	f.StringVar(&chatVoice, "voice", "", "prebuilt voice for audio replies")
	f.StringVar(&chatInstruction, "system", "", "system instruction")
	f.BoolVar(&chatAudio, "audio", false, "ask for spoken replies with output transcription")
	f.StringVar(&chatRecord, "record", "", "write model audio as WAV to a directory or s3://bucket/prefix")
	f.IntVar(&chatResample, "resample", 0, "resample recordings to this rate (Hz)")
	f.BoolVar(&chatMetadata, "record-metadata", false, "write a JSON sidecar next to each recording")
	f.StringVar(&chatJQ, "jq", "", "jq filter applied to --json events")
	f.StringVar(&chatTokenCache, "token-cache", "", "OAuth token cache for vertexai: memory, redis://..., or a directory")
	f.BoolVar(&chatTools, "tools", true, "declare the built-in get_time tool")
	f.DurationVar(&chatTurnTimeout, "turn-timeout", 2*time.Minute, "give up waiting for a reply after this long")
}

// sessionConfig assembles the session configuration from the config file,
// the context defaults and the flags, in increasing precedence.
func sessionConfig(ctx *cli.Context, file string) (*geminilive.SessionConfig, error) {
	cfg := &geminilive.SessionConfig{}
	if file != "" {
		if err := cli.LoadRequest(file, cfg); err != nil {
			return nil, err
		}
	}
	if cfg.Model == "" {
		cfg.Model = ctx.Model
	}
	if cfg.Model == "" {
		cfg.Model = geminilive.ModelGemini25FlashLive
	}
	if cfg.Voice == "" {
		cfg.Voice = ctx.Voice
	}
	return cfg, nil
}

type getTimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"IANA time zone such as Europe/Paris; default UTC"`
}

// getTimeTool is a demonstration tool the model can call.
func getTimeTool() *geminilive.Tool {
	return geminilive.MustNewFuncTool("get_time", "Get the current date and time", func(ctx context.Context, arg getTimeArgs) (any, error) {
		loc := time.UTC
		if arg.Timezone != "" {
			l, err := time.LoadLocation(arg.Timezone)
			if err != nil {
				return nil, fmt.Errorf("unknown time zone %q", arg.Timezone)
			}
			loc = l
		}
		now := time.Now().In(loc)
		return map[string]any{
			"time":     now.Format(time.RFC3339),
			"weekday":  now.Weekday().String(),
			"timezone": loc.String(),
		}, nil
	})
}

func runChat(cmd *cobra.Command, args []string) error {
	cctx, err := getContext()
	if err != nil {
		return err
	}
	cfg, err := sessionConfig(cctx, chatSessionFile)
	if err != nil {
		return err
	}
	if chatModel != "" {
		cfg.Model = chatModel
	}
	if chatVoice != "" {
		cfg.Voice = chatVoice
	}
	if chatInstruction != "" {
		cfg.SystemInstruction = chatInstruction
	}
	if chatAudio {
		cfg.ResponseModalities = []genai.Modality{genai.ModalityAudio}
		cfg.OutputAudioTranscription = true
	} else if len(cfg.ResponseModalities) == 0 {
		cfg.ResponseModalities = []genai.Modality{genai.ModalityText}
	}
	if chatTools {
		cfg.Tools = append(cfg.Tools, getTimeTool())
	}

	bg, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	client, cleanup, err := newClient(bg, cctx, chatTokenCache)
	if err != nil {
		return err
	}
	defer cleanup()

	printVerbose("Using context: %s", cctx.Name)
	printVerbose("Model: %s", cfg.Model)

	session := client.NewSession(cfg)
	defer session.Close()

	if isJSONOutput() {
		jp, err := newJSONPrinter(os.Stdout, chatJQ)
		if err != nil {
			return err
		}
		session.SubscribeAll(jp.Observe)
	} else {
		session.SubscribeAll((&textPrinter{w: os.Stdout}).Observe)
	}
	if chatRecord != "" {
		rec, err := newRecorder(chatRecord, chatResample, chatMetadata)
		if err != nil {
			return err
		}
		session.Subscribe(geminilive.EventAudioBufferReceived, rec.Observe)
		defer func() {
			if n := len(rec.Written()); n > 0 {
				cli.PrintSuccess("Recorded %d audio buffers to %s", n, chatRecord)
			}
		}()
	}
	waiter := newTurnWaiter()
	session.Subscribe(geminilive.EventTurnStateChanged, waiter.Observe)

	connectCtx, cancel := context.WithTimeout(bg, cctx.ConnectTimeout.Or(30*time.Second))
	err = session.Connect(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if !isJSONOutput() {
		cli.PrintSuccess("Connected to %s (session %s)", cfg.Model, session.ID())
	}

	return chatLoop(bg, session, waiter, os.Stdin)
}

func chatLoop(ctx context.Context, session *geminilive.Session, waiter *turnWaiter, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	interactive := !isJSONOutput()
	for {
		if interactive {
			fmt.Print(cli.RenderRole(geminilive.RoleUser), " ")
		}
		var input string
		select {
		case <-ctx.Done():
			return nil
		case <-session.Done():
			return fmt.Errorf("session closed")
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			input = strings.TrimSpace(l)
		}

		switch {
		case input == "":
			continue
		case input == "/exit" || input == "/quit":
			return nil
		case input == "/history":
			if err := outputResult(session.History(), isJSONOutput()); err != nil {
				cli.PrintError("%v", err)
			}
			continue
		}

		waiter.drain()
		if err := session.SendText(ctx, input); err != nil {
			cli.PrintError("Failed to send: %v", err)
			continue
		}
		if !waiter.wait(chatTurnTimeout, session.Done()) {
			cli.PrintWarning("no reply within %s", chatTurnTimeout)
		}
	}
}
