package geminilive_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haivivi/geminilive/pkg/geminilive"
)

func TestConnectorRaw(t *testing.T) {
	peer := newFakePeer(t)
	peer.set(func(p *fakePeer) { p.autoSetup = false })

	frames := make(chan []byte, 4)
	conn := geminilive.NewConnector(geminilive.ConnectorConfig{
		Endpoint: func(ctx context.Context) (string, http.Header, error) {
			return peer.url(), nil, nil
		},
		PingInterval: 50 * time.Millisecond,
	}, func(data []byte) { frames <- data })

	ctx := context.Background()
	if err := conn.Send(ctx, []byte(`{}`)); !errors.Is(err, geminilive.ErrNotConnected) {
		t.Fatalf("Send() before Connect error = %v, want ErrNotConnected", err)
	}
	if err := conn.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !conn.Connected() {
		t.Fatal("Connected() = false after Connect")
	}
	pc := peer.accept(t)

	if err := conn.Send(ctx, []byte(`{"realtimeInput":{"text":"hi"}}`)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	pc.expect(t, "realtimeInput")

	if err := pc.send(`{"setupComplete":{}}`); err != nil {
		t.Fatalf("peer send: %v", err)
	}
	select {
	case f := <-frames:
		if string(f) != `{"setupComplete":{}}` {
			t.Errorf("frame = %s", f)
		}
	case <-time.After(waitTimeout):
		t.Fatal("no frame delivered")
	}

	// Pings keep the connection alive across several read windows.
	time.Sleep(300 * time.Millisecond)
	if !conn.Connected() {
		t.Error("connection dropped despite pings")
	}

	wasConnected, err := conn.Close()
	if err != nil || !wasConnected {
		t.Errorf("Close() = (%v, %v), want (true, nil)", wasConnected, err)
	}
	if wasConnected, _ := conn.Close(); wasConnected {
		t.Error("second Close() reported a connection")
	}
	err = conn.Send(ctx, []byte(`{}`))
	var te *geminilive.TransportError
	if !errors.As(err, &te) || !errors.Is(err, geminilive.ErrClosed) || te.Op != "send" {
		t.Errorf("Send() after Close error = %v", err)
	}
	if err := conn.Connect(ctx); !errors.Is(err, geminilive.ErrClosed) {
		t.Errorf("Connect() after Close error = %v, want ErrClosed", err)
	}
}

func TestConnectorDialFailure(t *testing.T) {
	peer := newFakePeer(t)
	peer.set(func(p *fakePeer) { p.refuse = true })

	conn := geminilive.NewConnector(geminilive.ConnectorConfig{
		Endpoint: func(ctx context.Context) (string, http.Header, error) {
			return peer.url(), nil, nil
		},
	}, nil)
	defer conn.Close()

	err := conn.Connect(context.Background())
	var te *geminilive.TransportError
	if !errors.As(err, &te) || te.Op != "dial" {
		t.Fatalf("Connect() error = %v, want dial TransportError", err)
	}
	if conn.Connected() {
		t.Error("Connected() = true after failed dial")
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestConnectorFrameLogging(t *testing.T) {
	peer := newFakePeer(t)
	peer.set(func(p *fakePeer) { p.autoSetup = false })

	var out lockedBuffer
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	frames := make(chan []byte, 1)
	conn := geminilive.NewConnector(geminilive.ConnectorConfig{
		Endpoint: func(ctx context.Context) (string, http.Header, error) {
			return peer.url(), nil, nil
		},
		PingInterval: -1,
		Logger:       logger,
	}, func(data []byte) { frames <- data })
	defer conn.Close()

	ctx := context.Background()
	if err := conn.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	pc := peer.accept(t)
	if err := conn.Send(ctx, []byte(`{"realtimeInput":{"text":"ping"}}`)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	pc.expect(t, "realtimeInput")
	if err := pc.send(`{"setupComplete":{}}`); err != nil {
		t.Fatalf("peer send: %v", err)
	}
	select {
	case <-frames:
	case <-time.After(waitTimeout):
		t.Fatal("no frame delivered")
	}

	logged := out.String()
	if !strings.Contains(logged, "sending frame") || !strings.Contains(logged, "received frame") {
		t.Errorf("debug logger output = %q, want sent and received frames", logged)
	}
}
