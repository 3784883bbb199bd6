package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/itchyny/gojq"

	"github.com/haivivi/geminilive/pkg/cli"
	"github.com/haivivi/geminilive/pkg/geminilive"
	"github.com/haivivi/geminilive/pkg/jsontime"
)

// eventRecord is the JSON form of an event printed by --json.
type eventRecord struct {
	Type    geminilive.EventType `json:"type"`
	Session string               `json:"session"`
	Time    jsontime.Milli       `json:"time"`

	Text         string     `json:"text,omitempty"`
	TurnFinished bool       `json:"turn_finished,omitempty"`
	Turn         string     `json:"turn,omitempty"`
	PrevTurn     string     `json:"prev_turn,omitempty"`
	Audio        *audioInfo `json:"audio,omitempty"`
	Payload      string     `json:"payload,omitempty"`
	ToolCall     any        `json:"tool_call,omitempty"`
	Cancelled    []string   `json:"cancelled,omitempty"`
	Attempt      int        `json:"attempt,omitempty"`
	TimeLeftMs   int64      `json:"time_left_ms,omitempty"`
	Message      string     `json:"message,omitempty"`
}

type audioInfo struct {
	Bytes      int    `json:"bytes"`
	SampleRate int    `json:"sample_rate"`
	DurationMs int64  `json:"duration_ms"`
	Transcript string `json:"transcript,omitempty"`
}

func newEventRecord(ev *geminilive.Event) *eventRecord {
	r := &eventRecord{
		Type:         ev.Type,
		Session:      ev.SessionID,
		Time:         jsontime.Milli(ev.Time),
		Text:         ev.Text,
		TurnFinished: ev.TurnFinished,
		Cancelled:    ev.CancelledIDs,
		Attempt:      ev.Attempt,
		TimeLeftMs:   ev.TimeLeft.Milliseconds(),
		Message:      ev.Message,
	}
	if ev.Type == geminilive.EventTurnStateChanged {
		r.Turn, r.PrevTurn = ev.Turn.String(), ev.PrevTurn.String()
	}
	if ev.Audio != nil {
		r.Audio = &audioInfo{
			Bytes:      len(ev.Audio.Data),
			SampleRate: ev.Audio.Header.SampleRate,
			DurationMs: ev.Audio.Duration().Milliseconds(),
			Transcript: ev.Audio.Transcript(),
		}
	}
	if ev.Payload != nil {
		r.Payload = ev.Payload.Kind.String()
	}
	if ev.ToolCall != nil {
		r.ToolCall = ev.ToolCall
	}
	return r
}

// jsonPrinter writes events as JSON lines, optionally filtered through a jq
// program. A filter that yields nothing drops the event.
type jsonPrinter struct {
	mu    sync.Mutex
	w     io.Writer
	query *gojq.Code
}

func newJSONPrinter(w io.Writer, expr string) (*jsonPrinter, error) {
	p := &jsonPrinter{w: w}
	if expr == "" {
		return p, nil
	}
	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression %q: %w", expr, err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression %q: %w", expr, err)
	}
	p.query = code
	return p, nil
}

func (p *jsonPrinter) Observe(ev *geminilive.Event) error {
	data, err := json.Marshal(newEventRecord(ev))
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.query == nil {
		_, err = fmt.Fprintf(p.w, "%s\n", data)
		return err
	}

	// gojq only accepts plain JSON values.
	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return err
	}
	iter := p.query.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, ok := v.(error); ok {
			if err, ok := err.(*gojq.HaltError); ok && err.Value() == nil {
				return nil
			}
			return fmt.Errorf("jq error: %w", err)
		}
		out, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal jq result: %w", err)
		}
		if _, err := fmt.Fprintf(p.w, "%s\n", out); err != nil {
			return err
		}
	}
}

// textPrinter renders a session for humans: streamed model text, audio
// summaries and tool activity.
type textPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	midLine bool
}

func (p *textPrinter) Observe(ev *geminilive.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch ev.Type {
	case geminilive.EventTextChunkReceived:
		if ev.Text != "" {
			if !p.midLine {
				fmt.Fprint(p.w, cli.RenderRole(geminilive.RoleModel), " ")
				p.midLine = true
			}
			fmt.Fprint(p.w, ev.Text)
		}
		if ev.TurnFinished && p.midLine {
			fmt.Fprintln(p.w)
			p.midLine = false
		}
	case geminilive.EventAudioBufferReceived:
		p.endLine()
		a := ev.Audio
		line := fmt.Sprintf("[audio %s, %s @ %d Hz]", cli.FormatDuration(a.Duration()), cli.FormatBytes(len(a.Data)), a.Header.SampleRate)
		if t := a.Transcript(); t != "" {
			line += " " + t
		}
		cli.PrintRole(p.w, geminilive.RoleModel, line)
	case geminilive.EventToolCallReceived:
		p.endLine()
		args, _ := json.Marshal(ev.ToolCall.Args)
		cli.PrintRole(p.w, "tool", fmt.Sprintf("%s(%s)", ev.ToolCall.Name, args))
	case geminilive.EventToolCallCancelled:
		p.endLine()
		cli.PrintRole(p.w, "tool", fmt.Sprintf("cancelled %v", ev.CancelledIDs))
	case geminilive.EventGenerationInterrupted:
		p.endLine()
		cli.PrintWarning("generation interrupted")
	case geminilive.EventReconnecting:
		p.endLine()
		cli.PrintWarning("reconnecting (attempt %d)", ev.Attempt)
	case geminilive.EventGoAway:
		p.endLine()
		cli.PrintWarning("server closing the connection in %s", cli.FormatDuration(ev.TimeLeft))
	case geminilive.EventErrorOccurred:
		p.endLine()
		cli.PrintError("%s", ev.Message)
	}
	return nil
}

func (p *textPrinter) endLine() {
	if p.midLine {
		fmt.Fprintln(p.w)
		p.midLine = false
	}
}

// turnWaiter signals each time the session returns to idle after a model
// turn.
type turnWaiter struct {
	ch chan struct{}
}

func newTurnWaiter() *turnWaiter {
	return &turnWaiter{ch: make(chan struct{}, 1)}
}

func (w *turnWaiter) Observe(ev *geminilive.Event) error {
	if ev.Type == geminilive.EventTurnStateChanged && ev.Turn == geminilive.TurnIdle {
		select {
		case w.ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// wait blocks until the next idle signal, d elapses, or done closes.
func (w *turnWaiter) wait(d time.Duration, done <-chan struct{}) bool {
	select {
	case <-w.ch:
		return true
	case <-done:
		return false
	case <-time.After(d):
		return false
	}
}

// drain discards a stale idle signal.
func (w *turnWaiter) drain() {
	select {
	case <-w.ch:
	default:
	}
}
