package openairealtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// DefaultWebSocketURL is the provider's realtime WebSocket endpoint.
const DefaultWebSocketURL = "wss://api.openai.com/v1/realtime"

// WebSocketConfig configures a WebSocketTransport.
type WebSocketConfig struct {
	URL    string
	Model  string
	Dialer *websocket.Dialer
	Logger *slog.Logger
}

// WebSocketTransport is a Transport over a provider WebSocket. It carries
// events only; audio is not streamed.
type WebSocketTransport struct {
	handlers

	cfg    WebSocketConfig
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ Transport = (*WebSocketTransport)(nil)

// NewWebSocketTransport returns an unconnected WebSocket transport.
func NewWebSocketTransport(cfg WebSocketConfig) *WebSocketTransport {
	if cfg.URL == "" {
		cfg.URL = DefaultWebSocketURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketTransport{cfg: cfg, logger: logger.With("transport", "websocket")}
}

// Connect dials the provider using cred as the bearer token and starts the
// read loop. The channel is open as soon as Connect returns.
func (t *WebSocketTransport) Connect(ctx context.Context, cred Credential) error {
	t.emitState(StateConnecting)

	u, err := url.Parse(t.cfg.URL)
	if err != nil {
		return stepError(StepOffer, fmt.Errorf("parse url: %w", err))
	}
	q := u.Query()
	q.Set("model", t.cfg.Model)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cred.Value)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := t.cfg.Dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		t.Close()
		if resp != nil {
			return stepError(StepSDPExchange, &Error{
				Code:       "connection_failed",
				Message:    err.Error(),
				HTTPStatus: resp.StatusCode,
			})
		}
		return stepError(StepSDPExchange, err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return stepError(StepAnswer, ErrClosed)
	}
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(conn)
	t.emitState(StateOpen)
	return nil
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed {
				t.emitState(StateClosed)
				return
			}
			t.logger.Warn("read failed", "error", err)
			t.emitState(StateFailed)
			return
		}
		t.emitMessage(data)
	}
}

// Send marshals event as JSON and writes it as a text frame.
func (t *WebSocketTransport) Send(event any) error {
	t.mu.Lock()
	conn, closed := t.conn, t.closed
	t.mu.Unlock()
	if conn == nil || closed {
		t.logger.Warn("dropping event, socket not open")
		return ErrChannelNotOpen
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the socket. Safe to call more than once.
func (t *WebSocketTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		conn := t.conn
		t.mu.Unlock()
		if conn != nil {
			t.closeErr = conn.Close()
		}
	})
	return t.closeErr
}
