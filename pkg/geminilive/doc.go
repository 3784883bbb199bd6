// Package geminilive provides a client for the Gemini Live bidirectional
// streaming API.
//
// A Session keeps one WebSocket connection to the model, sends user turns,
// realtime audio and tool results, and turns the server's partial frames into
// events: text chunks, reassembled audio buffers, tool calls, interruptions.
//
// # Connecting
//
//	client := geminilive.NewClient(geminilive.WithAPIKey(apiKey))
//	session := client.NewSession(&geminilive.SessionConfig{
//	    Model:              geminilive.ModelGemini20FlashLive,
//	    ResponseModalities: []genai.Modality{genai.ModalityAudio},
//	})
//	session.Subscribe(geminilive.EventTextChunkReceived, func(ev *geminilive.Event) error {
//	    fmt.Print(ev.Text)
//	    return nil
//	})
//	if err := session.Connect(ctx); err != nil {
//	    return err
//	}
//	defer session.Close()
//
// # Sending
//
//	err = session.SendText(ctx, "Hello!")
//	err = session.SendRealtimeAudio(ctx, pcm, "audio/pcm;rate=16000")
//
// # Tools
//
// Tools are registered on the session and invoked off the receive loop; the
// result is sent back to the model automatically:
//
//	tool := geminilive.MustNewFuncTool("get_time", "Current time",
//	    func(ctx context.Context, arg struct{}) (any, error) {
//	        return time.Now().Format(time.RFC3339), nil
//	    })
//	session.RegisterTool(tool)
//
// # Events
//
// Observers run on a dedicated dispatcher goroutine, in subscription order.
// An observer that panics or returns an error produces an
// EventErrorOccurred event; it never reaches the receive loop.
//
// # Reconnection
//
// An unexpected disconnect moves the session to Reconnecting. The connector
// retries with backoff (see ReconnectPolicy), replays the setup message and
// either resumes the server session or replays the history as context.
package geminilive
