package geminilive_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/geminilive/pkg/geminilive"
)

const waitTimeout = 5 * time.Second

// fakePeer is a scripted Live server. Each accepted connection is handed to
// the test through conns.
type fakePeer struct {
	t     *testing.T
	srv   *httptest.Server
	conns chan *peerConn

	mu         sync.Mutex
	autoSetup  bool
	refuse     bool
	setupError string
}

type peerConn struct {
	ws     *websocket.Conn
	frames chan map[string]json.RawMessage
	mu     sync.Mutex
}

func newFakePeer(t *testing.T) *fakePeer {
	t.Helper()
	p := &fakePeer{t: t, conns: make(chan *peerConn, 8), autoSetup: true}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	p.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		refuse, autoSetup, setupError := p.refuse, p.autoSetup, p.setupError
		p.mu.Unlock()
		if refuse {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		pc := &peerConn{ws: ws, frames: make(chan map[string]json.RawMessage, 64)}
		go pc.readLoop(autoSetup, setupError)
		p.conns <- pc
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakePeer) set(fn func(p *fakePeer)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func (p *fakePeer) url() string {
	return "ws" + strings.TrimPrefix(p.srv.URL, "http")
}

func (p *fakePeer) client(opts ...geminilive.Option) *geminilive.Client {
	base := []geminilive.Option{
		geminilive.WithAPIKey("test-key"),
		geminilive.WithBaseURL(p.url()),
		geminilive.WithPingInterval(-1),
	}
	return geminilive.NewClient(append(base, opts...)...)
}

func (p *fakePeer) accept(t *testing.T) *peerConn {
	t.Helper()
	select {
	case pc := <-p.conns:
		return pc
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for connection")
		return nil
	}
}

func (pc *peerConn) readLoop(autoSetup bool, setupError string) {
	defer close(pc.frames)
	for {
		_, data, err := pc.ws.ReadMessage()
		if err != nil {
			return
		}
		var frame map[string]json.RawMessage
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if _, ok := frame["setup"]; ok {
			switch {
			case setupError != "":
				pc.send(setupError)
			case autoSetup:
				pc.send(`{"setupComplete":{}}`)
			}
		}
		pc.frames <- frame
	}
}

func (pc *peerConn) send(frame string) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.ws.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (pc *peerConn) sendJSON(t *testing.T, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := pc.send(string(data)); err != nil {
		t.Fatalf("peer send: %v", err)
	}
}

// expect waits for the next client frame carrying key and returns its body.
func (pc *peerConn) expect(t *testing.T, key string) json.RawMessage {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case frame, ok := <-pc.frames:
			if !ok {
				t.Fatalf("connection closed waiting for %s", key)
			}
			if body, ok := frame[key]; ok {
				return body
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s frame", key)
			return nil
		}
	}
}

// expectNone asserts that no frame carrying key arrives within d.
func (pc *peerConn) expectNone(t *testing.T, key string, d time.Duration) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case frame, ok := <-pc.frames:
			if !ok {
				return
			}
			if _, ok := frame[key]; ok {
				t.Fatalf("unexpected %s frame", key)
			}
		case <-deadline:
			return
		}
	}
}

// recorder collects every event a session emits.
type recorder struct {
	mu     sync.Mutex
	events []*geminilive.Event
	ch     chan *geminilive.Event
}

func record(s *geminilive.Session) *recorder {
	r := &recorder{ch: make(chan *geminilive.Event, 1024)}
	s.SubscribeAll(func(ev *geminilive.Event) error {
		r.mu.Lock()
		r.events = append(r.events, ev)
		r.mu.Unlock()
		r.ch <- ev
		return nil
	})
	return r
}

// waitFor returns the next event of type typ matching pred.
func (r *recorder) waitFor(t *testing.T, typ geminilive.EventType, pred func(*geminilive.Event) bool) *geminilive.Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-r.ch:
			if ev.Type == typ && (pred == nil || pred(ev)) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s", typ)
			return nil
		}
	}
}

func (r *recorder) waitTurn(t *testing.T, turn geminilive.TurnState) {
	t.Helper()
	r.waitFor(t, geminilive.EventTurnStateChanged, func(ev *geminilive.Event) bool { return ev.Turn == turn })
}

func (r *recorder) snapshot() []*geminilive.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*geminilive.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) count(typ geminilive.EventType) int {
	n := 0
	for _, ev := range r.snapshot() {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

// modelTurn builds a serverContent frame.
func modelTurn(turnComplete bool, parts ...map[string]any) map[string]any {
	sc := map[string]any{}
	if len(parts) > 0 {
		sc["modelTurn"] = map[string]any{"role": "model", "parts": parts}
	}
	if turnComplete {
		sc["turnComplete"] = true
	}
	return map[string]any{"serverContent": sc}
}

func textPart(s string) map[string]any {
	return map[string]any{"text": s}
}

func audioPart(data []byte, mimeType string) map[string]any {
	return map[string]any{"inlineData": map[string]any{"mimeType": mimeType, "data": data}}
}
