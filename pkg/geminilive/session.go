package geminilive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// Session is one Live conversation. All methods are safe for concurrent use.
type Session struct {
	id         string
	cfg        SessionConfig
	platform   Platform
	logger     *slog.Logger
	conn       *Connector
	dispatcher *Dispatcher
	tools      *ToolRegistry
	audio      *AudioReassembler

	idleTimeout time.Duration

	// ctx is cancelled by Close; tool invocations derive from it.
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once

	// mu guards everything below. It is held for state transitions and
	// buffer mutation only; events are queued, never delivered, under it.
	mu           sync.Mutex
	state        ConnectionState
	turn         TurnState
	text         textTurn
	modelText    strings.Builder
	modelSpoken  strings.Builder
	modelCalls   []*genai.Part
	history      history
	handle       string
	setupWait    chan error
	inflight     map[string]context.CancelFunc
	idleTimer    *time.Timer
	lastActivity time.Time
}

// NewSession creates a disconnected session. Subscribe before calling
// Connect to observe every event.
func (c *Client) NewSession(cfg *SessionConfig) *Session {
	if cfg == nil {
		cfg = &SessionConfig{}
	}
	id := uuid.NewString()
	logger := c.config.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", id)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:          id,
		cfg:         *cfg,
		platform:    c.config.platform,
		logger:      logger,
		dispatcher:  NewDispatcher(logger),
		tools:       NewToolRegistry(),
		audio:       NewAudioReassembler(),
		idleTimeout: c.config.turnIdleTimeout,
		ctx:         ctx,
		cancel:      cancel,
		inflight:    make(map[string]context.CancelFunc),
	}
	for _, t := range cfg.Tools {
		if err := s.tools.Register(t); err != nil {
			logger.Warn("geminilive: skipping tool", "error", err)
		}
	}
	s.conn = newConnector(ConnectorConfig{
		Endpoint:     c.config.endpoint(),
		Dialer:       c.config.dialer,
		PingInterval: c.config.pingInterval,
		WriteTimeout: c.config.writeTimeout,
		Reconnect:    c.config.reconnect,
		Logger:       logger,
	}, connectorHooks{
		handshake:       s.handshake,
		frame:           s.handleFrame,
		connected:       s.onConnected,
		lost:            s.onLost,
		reconnecting:    s.onReconnecting,
		reconnectFailed: s.onReconnectFailed,
	})
	return s
}

// ID returns the client-side session identifier.
func (s *Session) ID() string {
	return s.id
}

// ConnectionState returns the current connection state.
func (s *Session) ConnectionState() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TurnState returns the current turn state.
func (s *Session) TurnState() TurnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

// ResumptionHandle returns the newest resumable handle sent by the server.
func (s *Session) ResumptionHandle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// History returns a copy of the conversation so far.
func (s *Session) History() []*genai.Content {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.snapshot()
}

// Subscribe registers an observer for one event type.
func (s *Session) Subscribe(t EventType, fn Observer) (unsubscribe func()) {
	return s.dispatcher.Subscribe(t, fn)
}

// SubscribeAll registers an observer for every event type.
func (s *Session) SubscribeAll(fn Observer) (unsubscribe func()) {
	return s.dispatcher.SubscribeAll(fn)
}

// Done is closed after Close once every queued event has been delivered.
func (s *Session) Done() <-chan struct{} {
	return s.dispatcher.Done()
}

// RegisterTool adds a tool. Tools registered while connected are declared
// to the model on the next setup, that is after a reconnect.
func (s *Session) RegisterTool(t *Tool) error {
	if err := s.tools.Register(t); err != nil {
		return err
	}
	if s.ConnectionState() == StateConnected {
		s.logger.Info("geminilive: tool registered mid-session, declared on next setup", "tool", t.Name)
	}
	return nil
}

// Connect opens the connection and completes the setup handshake. If ctx is
// cancelled or the handshake fails the session returns to Disconnected and
// may be connected again.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateDisconnected:
	case StateClosing, StateClosed:
		st, turn := s.state, s.turn
		s.mu.Unlock()
		return &InvalidStateError{Op: "connect", State: st, Turn: turn, Err: ErrClosed}
	default:
		st, turn := s.state, s.turn
		s.mu.Unlock()
		return &InvalidStateError{Op: "connect", State: st, Turn: turn}
	}
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	err := s.conn.Connect(ctx)
	if err == nil {
		return nil
	}

	s.mu.Lock()
	if s.state == StateConnecting {
		s.setStateLocked(StateDisconnected)
	}
	s.setupWait = nil
	s.emitLocked(errorEvent("connect failed", err))
	s.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	return fmt.Errorf("geminilive: connect: %w", err)
}

// Close ends the session: a speaking turn is flushed as interrupted, the
// socket is released, pending tool calls are cancelled and Disconnected is
// emitted if a connection was open. Close is idempotent.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		wasOpen := s.state == StateConnected
		s.setStateLocked(StateClosing)
		if s.turn == TurnModelSpeaking {
			s.emitLocked(s.interruptLocked()...)
		}
		s.stopIdleTimerLocked()
		s.mu.Unlock()

		_, err = s.conn.Close()
		s.cancel()

		s.mu.Lock()
		s.setStateLocked(StateClosed)
		s.cancelToolsLocked()
		if wasOpen {
			s.emitLocked(&Event{Type: EventDisconnected, Message: "closed"})
		}
		s.mu.Unlock()

		s.dispatcher.Close()
	})
	return err
}

// SendContent sends user content. With turnComplete the model starts
// responding; without it the parts are added as context.
//
// If the model is speaking, its turn is interrupted first: buffered audio
// and text are delivered as final and GenerationInterrupted is emitted
// before the new content is sent. A completed turn is rejected with
// ErrTurnInFlight while a previous turn awaits its response.
func (s *Session) SendContent(ctx context.Context, turnComplete bool, parts ...*genai.Part) error {
	s.mu.Lock()
	if err := s.requireConnectedLocked("send_content"); err != nil {
		s.mu.Unlock()
		return err
	}
	if turnComplete && s.turn == TurnAwaitingResponse {
		err := &InvalidStateError{Op: "send_content", State: s.state, Turn: s.turn, Err: ErrTurnInFlight}
		s.mu.Unlock()
		return err
	}

	if s.turn == TurnModelSpeaking {
		s.emitLocked(s.interruptLocked()...)
	}
	prevTurn := s.turn
	if turnComplete {
		s.emitLocked(s.setTurnLocked(TurnAwaitingResponse))
	}
	undo := s.history.appendUser(parts)
	s.mu.Unlock()

	msg := &OutboundMessage{ClientContent: &genai.LiveClientContent{
		Turns:        []*genai.Content{{Role: RoleUser, Parts: parts}},
		TurnComplete: turnComplete,
	}}
	if err := s.send(ctx, msg); err != nil {
		s.mu.Lock()
		undo()
		if turnComplete && s.turn == TurnAwaitingResponse {
			s.emitLocked(s.setTurnLocked(prevTurn))
		}
		s.emitLocked(errorEvent("send content failed", err))
		s.mu.Unlock()
		return err
	}
	return nil
}

// SendText sends one completed user turn of text.
func (s *Session) SendText(ctx context.Context, text string) error {
	return s.SendContent(ctx, true, &genai.Part{Text: text})
}

// SendRealtimeInput streams input without turn boundaries.
func (s *Session) SendRealtimeInput(ctx context.Context, in *RealtimeInput) error {
	s.mu.Lock()
	err := s.requireConnectedLocked("send_realtime_input")
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if err := s.send(ctx, &OutboundMessage{RealtimeInput: in}); err != nil {
		s.emit(errorEvent("send realtime input failed", err))
		return err
	}
	return nil
}

// SendRealtimeAudio streams a chunk of raw audio, for example
// MIMETypePCM16k.
func (s *Session) SendRealtimeAudio(ctx context.Context, pcm []byte, mimeType string) error {
	if mimeType == "" {
		mimeType = MIMETypePCM16k
	}
	return s.SendRealtimeInput(ctx, &RealtimeInput{Audio: &genai.Blob{Data: pcm, MIMEType: mimeType}})
}

// SendRealtimeText streams text through the realtime channel.
func (s *Session) SendRealtimeText(ctx context.Context, text string) error {
	return s.SendRealtimeInput(ctx, &RealtimeInput{Text: text})
}

// SendAudioStreamEnd tells the server the audio stream paused, flushing any
// audio it buffered.
func (s *Session) SendAudioStreamEnd(ctx context.Context) error {
	return s.SendRealtimeInput(ctx, &RealtimeInput{AudioStreamEnd: true})
}

// SendActivityStart marks the start of user speech when automatic activity
// detection is disabled.
func (s *Session) SendActivityStart(ctx context.Context) error {
	return s.SendRealtimeInput(ctx, &RealtimeInput{ActivityStart: &genai.ActivityStart{}})
}

// SendActivityEnd marks the end of user speech.
func (s *Session) SendActivityEnd(ctx context.Context) error {
	return s.SendRealtimeInput(ctx, &RealtimeInput{ActivityEnd: &genai.ActivityEnd{}})
}

// SendToolResponse sends function results. Results for registered tools are
// sent automatically; this is for calls handled by the caller.
func (s *Session) SendToolResponse(ctx context.Context, results ...*genai.FunctionResponse) error {
	if len(results) == 0 {
		return nil
	}
	s.mu.Lock()
	if err := s.requireConnectedLocked("send_tool_response"); err != nil {
		s.mu.Unlock()
		return err
	}
	parts := make([]*genai.Part, 0, len(results))
	for _, r := range results {
		parts = append(parts, &genai.Part{FunctionResponse: r})
	}
	undo := s.history.appendUser(parts)
	s.mu.Unlock()

	msg := &OutboundMessage{ToolResponse: &genai.LiveClientToolResponse{FunctionResponses: results}}
	if err := s.send(ctx, msg); err != nil {
		s.mu.Lock()
		undo()
		s.emitLocked(errorEvent("send tool response failed", err))
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Session) send(ctx context.Context, msg *OutboundMessage) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	return s.conn.Send(ctx, data)
}

func (s *Session) requireConnectedLocked(op string) error {
	switch s.state {
	case StateConnected:
		return nil
	case StateClosing, StateClosed:
		return &InvalidStateError{Op: op, State: s.state, Turn: s.turn, Err: ErrClosed}
	}
	return &InvalidStateError{Op: op, State: s.state, Turn: s.turn, Err: ErrNotConnected}
}

// ---------------------------------------------------------------------------
// Connector hooks
// ---------------------------------------------------------------------------

func (s *Session) handshake(ctx context.Context, send func(context.Context, []byte) error, reconnect bool) error {
	done := make(chan error, 1)
	s.mu.Lock()
	s.setupWait = done
	handle := s.handle
	var replay []*genai.Content
	if reconnect && handle == "" {
		replay = s.history.snapshot()
	}
	s.emitLocked(&Event{Type: EventClientCreated})
	s.mu.Unlock()

	setup := NewSetup(&s.cfg, s.platform, s.tools.Declarations(), handle)
	data, err := Encode(&OutboundMessage{Setup: setup})
	if err != nil {
		return err
	}
	if err := send(ctx, data); err != nil {
		return err
	}

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		s.mu.Lock()
		if s.setupWait == done {
			s.setupWait = nil
		}
		s.mu.Unlock()
		return ctx.Err()
	}

	if len(replay) > 0 {
		data, err := Encode(&OutboundMessage{ClientContent: &genai.LiveClientContent{Turns: replay}})
		if err != nil {
			return err
		}
		if err := send(ctx, data); err != nil {
			return err
		}
		s.logger.Info("geminilive: replayed history after reconnect", "turns", len(replay))
	}
	return nil
}

func (s *Session) onConnected(reconnect bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosing || s.state == StateClosed {
		return
	}
	s.setStateLocked(StateConnected)
	s.emitLocked(&Event{Type: EventConnected})
	if reconnect {
		s.logger.Info("geminilive: reconnected")
	}
}

func (s *Session) onLost(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return
	}
	s.setStateLocked(StateReconnecting)
	s.emitLocked(&Event{Type: EventDisconnected, Message: err.Error(), Err: err})
	switch s.turn {
	case TurnModelSpeaking:
		s.emitLocked(s.interruptLocked()...)
	case TurnAwaitingResponse:
		s.emitLocked(s.setTurnLocked(TurnIdle))
	}
	s.cancelToolsLocked()
}

func (s *Session) onReconnecting(attempt int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReconnecting {
		return
	}
	ev := &Event{Type: EventReconnecting, Attempt: attempt, Err: err}
	if err != nil {
		ev.Message = err.Error()
	}
	s.emitLocked(ev)
}

func (s *Session) onReconnectFailed(err error) {
	s.mu.Lock()
	if s.state != StateReconnecting {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateClosed)
	s.stopIdleTimerLocked()
	s.emitLocked(
		&Event{Type: EventReconnectFailed, Message: err.Error(), Err: err},
		errorEvent("", err),
	)
	s.mu.Unlock()

	s.closeOnce.Do(func() {
		s.conn.Close()
		s.cancel()
		s.dispatcher.Close()
	})
}

// ---------------------------------------------------------------------------
// Inbound
// ---------------------------------------------------------------------------

// handleFrame runs on the receive goroutine. It updates state and queues
// events; observers and tools run elsewhere.
func (s *Session) handleFrame(data []byte) {
	p, err := Decode(data)
	if err != nil {
		s.logger.Warn("geminilive: dropping malformed frame", "error", err)
		s.emit(errorEvent("", err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.emitLocked(&Event{Type: EventMessageReceived, Payload: p})

	switch p.Kind {
	case PayloadSetupComplete:
		s.signalSetupLocked(nil)
	case PayloadServerContent, PayloadTranscription:
		s.handleServerContentLocked(p)
	case PayloadToolCall:
		s.handleToolCallLocked(p.ToolCall)
	case PayloadToolCallCancellation:
		ids := p.ToolCallCancellation.IDs
		for _, id := range ids {
			if cancel, ok := s.inflight[id]; ok {
				cancel()
				delete(s.inflight, id)
			}
		}
		s.emitLocked(&Event{Type: EventToolCallCancelled, CancelledIDs: ids})
	case PayloadGoAway:
		s.emitLocked(&Event{Type: EventGoAway, TimeLeft: p.GoAway.TimeLeft})
	case PayloadSessionResumptionUpdate:
		if u := p.ResumptionUpdate; u.Resumable && u.NewHandle != "" {
			s.handle = u.NewHandle
		}
	case PayloadError:
		if !s.signalSetupLocked(p.Error) {
			s.emitLocked(errorEvent(p.Error.Message, p.Error))
		}
	}
}

// signalSetupLocked completes a pending handshake. It reports whether one
// was pending.
func (s *Session) signalSetupLocked(err error) bool {
	if s.setupWait == nil {
		return false
	}
	if err != nil {
		err = fmt.Errorf("setup rejected: %w", err)
	}
	s.setupWait <- err
	s.setupWait = nil
	return true
}

func (s *Session) handleServerContentLocked(p *InboundPayload) {
	sc := p.ServerContent
	for _, t := range p.Transcriptions() {
		s.audio.AddTranscription(t)
		if !t.Input {
			s.modelSpoken.WriteString(t.Text)
		}
	}

	if sc.Interrupted {
		// The server also acknowledges a client preemption this way, after
		// the new turn is already in flight.
		if s.turn != TurnModelSpeaking {
			s.logger.Debug("geminilive: ignoring interruption", "turn", s.turn)
			return
		}
		s.emitLocked(s.interruptLocked()...)
		return
	}

	var parts []*genai.Part
	if sc.HasParts() {
		parts = sc.ModelTurn.Parts
		if s.turn != TurnModelSpeaking {
			s.emitLocked(s.setTurnLocked(TurnModelSpeaking))
		}
		s.touchLocked()
		for _, part := range parts {
			if part == nil || part.InlineData == nil {
				continue
			}
			blob := part.InlineData
			if !strings.HasPrefix(blob.MIMEType, "audio/") {
				s.logger.Debug("geminilive: ignoring inline data", "mime_type", blob.MIMEType)
				continue
			}
			if buf := s.audio.Feed(DetectAudioChunk(blob.Data, blob.MIMEType)); buf != nil {
				s.emitLocked(&Event{Type: EventAudioBufferReceived, Audio: buf})
			}
		}
	} else if s.turn == TurnModelSpeaking {
		s.touchLocked()
	}

	s.modelText.WriteString(partsText(parts))
	if tc := s.text.feed(parts, sc.TurnComplete); tc != nil {
		s.emitLocked(&Event{Type: EventTextChunkReceived, Text: tc.Text, TurnFinished: tc.TurnFinished})
	}

	if sc.TurnComplete {
		if s.turn != TurnModelSpeaking && s.turn != TurnAwaitingResponse {
			s.logger.Debug("geminilive: ignoring turn completion", "turn", s.turn)
			return
		}
		if sc.TurnCompleteReason != "" && sc.TurnCompleteReason != TurnCompleteReasonUnspecified {
			s.logger.Info("geminilive: turn completed", "reason", sc.TurnCompleteReason)
		}
		if buf := s.audio.FinalizeOnTurnComplete(); buf != nil {
			s.emitLocked(&Event{Type: EventAudioBufferReceived, Audio: buf})
		}
		s.flushModelLocked()
		s.stopIdleTimerLocked()
		s.emitLocked(s.setTurnLocked(TurnFinished), s.setTurnLocked(TurnIdle))
	}
}

func (s *Session) handleToolCallLocked(tc *genai.LiveServerToolCall) {
	if s.turn != TurnModelSpeaking {
		s.emitLocked(s.setTurnLocked(TurnModelSpeaking))
	}
	s.touchLocked()
	for _, fc := range tc.FunctionCalls {
		s.modelCalls = append(s.modelCalls, &genai.Part{FunctionCall: fc})
	}
	s.flushModelLocked()

	for _, fc := range tc.FunctionCalls {
		key := fc.ID
		if key == "" {
			key = uuid.NewString()
		}
		ctx, cancel := context.WithCancel(s.ctx)
		s.inflight[key] = cancel
		s.emitLocked(&Event{Type: EventToolCallReceived, ToolCall: fc})
		go s.runTool(ctx, key, fc)
	}
}

func (s *Session) runTool(ctx context.Context, key string, call *genai.FunctionCall) {
	resp, err := s.tools.Invoke(ctx, call)

	s.mu.Lock()
	_, live := s.inflight[key]
	delete(s.inflight, key)
	if live && err != nil {
		s.emitLocked(errorEvent("", err))
	}
	s.mu.Unlock()

	if !live || ctx.Err() != nil {
		s.logger.Debug("geminilive: tool call cancelled, response suppressed", "tool", call.Name, "id", call.ID)
		return
	}
	if err := s.SendToolResponse(ctx, resp); err != nil {
		s.logger.Warn("geminilive: send tool response", "tool", call.Name, "id", call.ID, "error", err)
	}
}

func (s *Session) cancelToolsLocked() {
	for key, cancel := range s.inflight {
		cancel()
		delete(s.inflight, key)
	}
}

// ---------------------------------------------------------------------------
// Turn helpers
// ---------------------------------------------------------------------------

// interruptLocked ends the current model turn early. Buffered audio and
// text are delivered as final before GenerationInterrupted, then the turn
// returns to Idle.
func (s *Session) interruptLocked() []*Event {
	events := []*Event{s.setTurnLocked(TurnInterrupted)}
	if buf := s.audio.FinalizeOnTurnComplete(); buf != nil {
		events = append(events, &Event{Type: EventAudioBufferReceived, Audio: buf})
	}
	if tc := s.text.flush(); tc != nil {
		events = append(events, &Event{Type: EventTextChunkReceived, Text: tc.Text, TurnFinished: true})
	}
	s.flushModelLocked()
	s.stopIdleTimerLocked()
	events = append(events,
		&Event{Type: EventGenerationInterrupted},
		s.setTurnLocked(TurnIdle),
	)
	return events
}

// flushModelLocked moves the pending model output into history. Spoken
// output transcripts stand in for text when the model answered in audio.
func (s *Session) flushModelLocked() {
	var parts []*genai.Part
	text := s.modelText.String()
	if text == "" {
		text = s.modelSpoken.String()
	}
	if text != "" {
		parts = append(parts, &genai.Part{Text: text})
	}
	parts = append(parts, s.modelCalls...)
	s.history.appendModel(parts)
	s.modelText.Reset()
	s.modelSpoken.Reset()
	s.modelCalls = nil
}

// setStateLocked moves the connection state, refusing transitions the
// lifecycle does not allow.
func (s *Session) setStateLocked(next ConnectionState) bool {
	if s.state == next {
		return true
	}
	if !s.state.canTransition(next) {
		s.logger.Warn("geminilive: refusing state transition", "from", s.state, "to", next)
		return false
	}
	s.state = next
	return true
}

func (s *Session) setTurnLocked(next TurnState) *Event {
	prev := s.turn
	s.turn = next
	return &Event{Type: EventTurnStateChanged, Turn: next, PrevTurn: prev}
}

func (s *Session) touchLocked() {
	if s.idleTimeout <= 0 {
		return
	}
	s.lastActivity = time.Now()
	if s.idleTimer == nil {
		s.idleTimer = time.AfterFunc(s.idleTimeout, s.onIdle)
		return
	}
	s.idleTimer.Reset(s.idleTimeout)
}

func (s *Session) stopIdleTimerLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
}

func (s *Session) onIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turn != TurnModelSpeaking || len(s.inflight) > 0 || time.Since(s.lastActivity) < s.idleTimeout {
		return
	}
	s.logger.Warn("geminilive: model turn idle, finalizing", "timeout", s.idleTimeout)
	s.emitLocked(s.interruptLocked()...)
	s.emitLocked(errorEvent("model turn idle timeout", fmt.Errorf("geminilive: no frame for %s", s.idleTimeout)))
}

func (s *Session) emitLocked(events ...*Event) {
	s.emit(events...)
}

func (s *Session) emit(events ...*Event) {
	for _, ev := range events {
		ev.SessionID = s.id
	}
	s.dispatcher.Emit(events...)
}
