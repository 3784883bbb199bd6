package geminilive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
)

// Transport defaults.
const (
	DefaultPingInterval = 20 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

// EndpointFunc resolves the URL and headers used to dial. It is called for
// every attempt, so credentials may be refreshed in between.
type EndpointFunc func(ctx context.Context) (url string, header http.Header, err error)

// ConnectorConfig configures a Connector.
type ConnectorConfig struct {
	Endpoint EndpointFunc

	// Dialer defaults to a copy of websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// PingInterval is the keepalive period. Zero means DefaultPingInterval;
	// a negative value disables pings.
	PingInterval time.Duration

	// WriteTimeout bounds each frame write when the caller's context has no
	// deadline. Zero means DefaultWriteTimeout.
	WriteTimeout time.Duration

	Reconnect ReconnectPolicy
	Logger    *slog.Logger
}

// connectorHooks connect a Connector to its owner. All hooks are optional.
type connectorHooks struct {
	// handshake runs on every new connection before it counts as connected.
	// send writes to that connection only.
	handshake func(ctx context.Context, send func(context.Context, []byte) error, reconnect bool) error

	// frame receives every inbound frame of the current connection.
	frame func(data []byte)

	connected       func(reconnect bool)
	lost            func(err error)
	reconnecting    func(attempt int, err error)
	reconnectFailed func(err error)
}

// Connector owns one WebSocket connection at a time and replaces it after
// unexpected disconnects according to the reconnect policy.
type Connector struct {
	cfg   ConnectorConfig
	hooks connectorHooks

	// ctx is cancelled by Close and stops any reconnect loop.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	conn      *wsConn
	epoch     uint64
	connected bool
	closed    bool
}

type wsConn struct {
	ws    *websocket.Conn
	epoch uint64

	writeMu   sync.Mutex
	closeCh   chan struct{}
	closeOnce sync.Once
}

func newConnector(cfg ConnectorConfig, hooks connectorHooks) *Connector {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Dialer == nil {
		d := *websocket.DefaultDialer
		cfg.Dialer = &d
	}
	if hooks.reconnecting == nil {
		hooks.reconnecting = func(int, error) {}
	}
	if hooks.reconnectFailed == nil {
		hooks.reconnectFailed = func(err error) {
			cfg.Logger.Error("geminilive: giving up reconnecting", "error", err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Connector{cfg: cfg, hooks: hooks, ctx: ctx, cancel: cancel}
}

// NewConnector creates a connector that delivers inbound frames to onFrame.
// Session uses its own connector; NewConnector is for callers that drive the
// protocol themselves.
func NewConnector(cfg ConnectorConfig, onFrame func(data []byte)) *Connector {
	return newConnector(cfg, connectorHooks{frame: onFrame})
}

// Connect dials and runs the handshake. On failure or cancellation the
// connection is released and the connector stays disconnected. Without a
// deadline on ctx the attempt is bounded by the reconnect policy timeout.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return &TransportError{Op: "dial", Err: ErrClosed}
	case c.conn != nil:
		c.mu.Unlock()
		return &TransportError{Op: "dial", Err: errors.New("already connected")}
	}
	c.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Reconnect.timeout())
		defer cancel()
	}
	return c.connect(ctx, false)
}

// Connected reports whether a connection is established and ready.
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Send writes one text frame.
func (c *Connector) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	conn, connected, closed := c.conn, c.connected, c.closed
	c.mu.Unlock()

	switch {
	case closed:
		return &TransportError{Op: "send", Err: ErrClosed}
	case conn == nil || !connected:
		return &TransportError{Op: "send", Err: ErrNotConnected}
	}
	return c.write(ctx, conn, data)
}

// Close releases the connection and stops reconnecting. It reports whether
// a connection was open.
func (c *Connector) Close() (wasConnected bool, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, nil
	}
	c.closed = true
	conn := c.conn
	wasConnected = c.connected
	c.conn = nil
	c.connected = false
	c.epoch++
	c.mu.Unlock()

	c.cancel()
	if conn == nil {
		return wasConnected, nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return wasConnected, conn.close()
}

func (c *Connector) connect(ctx context.Context, reconnect bool) error {
	if c.cfg.Endpoint == nil {
		return &TransportError{Op: "dial", Err: errors.New("no endpoint configured")}
	}
	url, header, err := c.cfg.Endpoint(ctx)
	if err != nil {
		return &TransportError{Op: "dial", Err: err}
	}

	ws, resp, err := c.cfg.Dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			err = fmt.Errorf("status %d: %s: %w", resp.StatusCode, body, err)
		}
		return &TransportError{Op: "dial", Err: err}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return &TransportError{Op: "dial", Err: ErrClosed}
	}
	c.epoch++
	conn := &wsConn{ws: ws, epoch: c.epoch, closeCh: make(chan struct{})}
	c.conn = conn
	c.connected = false
	c.mu.Unlock()

	go c.readLoop(conn)

	hctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-conn.closeCh:
			cancel()
		case <-hctx.Done():
		}
	}()

	if c.hooks.handshake != nil {
		send := func(ctx context.Context, data []byte) error {
			return c.write(ctx, conn, data)
		}
		if err := c.hooks.handshake(hctx, send, reconnect); err != nil {
			c.drop(conn)
			if ctx.Err() == nil && isClosed(conn) {
				err = errors.New("connection lost during handshake")
			}
			return &TransportError{Op: "handshake", Err: err}
		}
	}

	c.mu.Lock()
	if conn.epoch != c.epoch || c.closed {
		c.mu.Unlock()
		conn.close()
		return &TransportError{Op: "handshake", Err: ErrClosed}
	}
	c.connected = true
	c.mu.Unlock()

	if c.cfg.PingInterval > 0 {
		go c.pingLoop(conn)
	}
	if c.hooks.connected != nil {
		c.hooks.connected(reconnect)
	}
	return nil
}

// drop releases conn if it is still current, without triggering recovery.
func (c *Connector) drop(conn *wsConn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.connected = false
		c.epoch++
	}
	c.mu.Unlock()
	conn.close()
}

func (c *Connector) write(ctx context.Context, conn *wsConn, data []byte) error {
	conn.writeMu.Lock()
	defer conn.writeMu.Unlock()

	if c.cfg.Logger.Enabled(ctx, slog.LevelDebug) {
		c.cfg.Logger.Debug("sending frame", "epoch", conn.epoch, "content", truncate(data, 500))
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.cfg.WriteTimeout)
	}
	if err := conn.ws.SetWriteDeadline(deadline); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	if err := conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

func (c *Connector) readLoop(conn *wsConn) {
	if c.cfg.PingInterval > 0 {
		window := 3 * c.cfg.PingInterval
		_ = conn.ws.SetReadDeadline(time.Now().Add(window))
		conn.ws.SetPongHandler(func(string) error {
			return conn.ws.SetReadDeadline(time.Now().Add(window))
		})
	}

	for {
		_, message, err := conn.ws.ReadMessage()
		if err != nil {
			c.lost(conn, err)
			return
		}
		if c.cfg.PingInterval > 0 {
			_ = conn.ws.SetReadDeadline(time.Now().Add(3 * c.cfg.PingInterval))
		}

		if c.cfg.Logger.Enabled(context.Background(), slog.LevelDebug) {
			c.cfg.Logger.Debug("received frame", "epoch", conn.epoch, "len", len(message), "content", truncate(message, 1000))
		}

		if !c.isCurrent(conn) {
			return
		}
		if c.hooks.frame != nil {
			c.hooks.frame(message)
		}
	}
}

func (c *Connector) pingLoop(conn *wsConn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-conn.closeCh:
			return
		case <-ticker.C:
			if err := conn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.cfg.Logger.Debug("geminilive: ping failed", "epoch", conn.epoch, "error", err)
				return
			}
		}
	}
}

// lost handles a read failure. Only an established, current connection
// starts recovery; failures of stale or half-open connections are dropped.
func (c *Connector) lost(conn *wsConn, err error) {
	c.mu.Lock()
	if c.conn != conn || c.closed {
		c.mu.Unlock()
		conn.close()
		return
	}
	wasConnected := c.connected
	c.conn = nil
	c.connected = false
	c.epoch++
	c.mu.Unlock()
	conn.close()

	if !wasConnected {
		return
	}

	c.cfg.Logger.Warn("geminilive: connection lost", "epoch", conn.epoch, "error", err)
	terr := &TransportError{Op: "read", Err: err}
	if c.hooks.lost != nil {
		c.hooks.lost(terr)
	}
	go c.reconnect(terr)
}

func (c *Connector) isCurrent(conn *wsConn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == conn
}

func (w *wsConn) close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closeCh)
		err = w.ws.Close()
	})
	return err
}

func isClosed(w *wsConn) bool {
	select {
	case <-w.closeCh:
		return true
	default:
		return false
	}
}

// truncate shortens a frame for logging without splitting a rune.
func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	for n > 0 && !utf8.RuneStart(data[n]) {
		n--
	}
	return string(data[:n]) + "..."
}
