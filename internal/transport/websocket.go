// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when the gateway WebSocket has closed
var ErrConnectionClosed = errors.New("websocket connection closed")

// Gateway operations
const (
	opScan       = "scan"
	opConnect    = "connect"
	opServices   = "services"
	opSubscribe  = "subscribe"
	opWrite      = "write"
	opDisconnect = "disconnect"

	eventDisconnected = "disconnected"
)

// gatewayRequest is a JSON control request sent as a text message.
// Notification payloads arrive from the gateway as binary messages.
type gatewayRequest struct {
	ID             int64  `json:"id"`
	Op             string `json:"op"`
	Address        string `json:"address,omitempty"`
	Characteristic string `json:"characteristic,omitempty"`
	Data           []byte `json:"data,omitempty"`
	TimeoutMS      int64  `json:"timeout_ms,omitempty"`
}

// gatewayResponse answers a request with the same id, or carries an
// unsolicited event when id is zero
type gatewayResponse struct {
	ID        int64    `json:"id"`
	Event     string   `json:"event,omitempty"`
	Error     string   `json:"error,omitempty"`
	Devices   []Device `json:"devices,omitempty"`
	Services  []string `json:"services,omitempty"`
	Connected bool     `json:"connected,omitempty"`
}

// WebSocketOptions configures a gateway transport
type WebSocketOptions struct {
	URL            string
	Username       string
	Password       string
	SkipSSLVerify  bool
	RequestTimeout time.Duration
}

// WebSocketTransport drives a remote BLE gateway over one WebSocket
type WebSocketTransport struct {
	opts WebSocketOptions

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[int64]chan gatewayResponse
	nextID  int64
	notify  NotifyFunc
	linkUp  bool

	writeMu sync.Mutex
}

// NewWebSocket validates the gateway URL and creates a transport. The
// WebSocket is dialed on first use.
func NewWebSocket(opts WebSocketOptions) (*WebSocketTransport, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	return &WebSocketTransport{
		opts:    opts,
		pending: make(map[int64]chan gatewayResponse),
	}, nil
}

// String describes the transport for status output
func (t *WebSocketTransport) String() string {
	return fmt.Sprintf("WebSocket: %s", t.opts.URL)
}

func (t *WebSocketTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	u, _ := url.Parse(t.opts.URL)
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: t.opts.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if t.opts.Username != "" && t.opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(t.opts.Username + ":" + t.opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, t.opts.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	return conn, nil
}

func (t *WebSocketTransport) ensureConn(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn != nil {
		return conn, nil
	}

	conn, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	if t.conn != nil {
		// lost a race with another dial
		existing := t.conn
		t.mu.Unlock()
		conn.Close()
		return existing, nil
	}
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(conn)
	return conn, nil
}

func (t *WebSocketTransport) readLoop(conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			t.drop(conn)
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			t.mu.Lock()
			fn := t.notify
			t.mu.Unlock()
			if fn != nil {
				fn(data)
			}

		case websocket.TextMessage:
			var resp gatewayResponse
			if err := json.Unmarshal(data, &resp); err != nil {
				continue
			}
			t.mu.Lock()
			if resp.Event == eventDisconnected {
				t.linkUp = false
			}
			if ch, ok := t.pending[resp.ID]; ok && resp.ID != 0 {
				delete(t.pending, resp.ID)
				ch <- resp
			}
			t.mu.Unlock()
		}
	}
}

// drop forgets a failed connection and fails every pending request
func (t *WebSocketTransport) drop(conn *websocket.Conn) {
	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
		t.linkUp = false
		for id, ch := range t.pending {
			close(ch)
			delete(t.pending, id)
		}
	}
	t.mu.Unlock()
	conn.Close()
}

func (t *WebSocketTransport) request(ctx context.Context, req gatewayRequest, timeout time.Duration) (gatewayResponse, error) {
	conn, err := t.ensureConn(ctx)
	if err != nil {
		return gatewayResponse{}, err
	}

	ch := make(chan gatewayResponse, 1)
	t.mu.Lock()
	t.nextID++
	req.ID = t.nextID
	t.pending[req.ID] = ch
	t.mu.Unlock()

	forget := func() {
		t.mu.Lock()
		delete(t.pending, req.ID)
		t.mu.Unlock()
	}

	t.writeMu.Lock()
	err = conn.WriteJSON(req)
	t.writeMu.Unlock()
	if err != nil {
		forget()
		t.drop(conn)
		return gatewayResponse{}, fmt.Errorf("gateway %s: %w", req.Op, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return gatewayResponse{}, ErrConnectionClosed
		}
		if resp.Error != "" {
			return resp, fmt.Errorf("gateway %s: %s", req.Op, resp.Error)
		}
		return resp, nil
	case <-timer.C:
		forget()
		return gatewayResponse{}, fmt.Errorf("gateway %s: timed out after %v", req.Op, timeout)
	case <-ctx.Done():
		forget()
		return gatewayResponse{}, ctx.Err()
	}
}

// Discover implements Transport
func (t *WebSocketTransport) Discover(ctx context.Context, timeout time.Duration) ([]Device, error) {
	resp, err := t.request(ctx, gatewayRequest{Op: opScan, TimeoutMS: timeout.Milliseconds()}, timeout+t.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

// Connect implements Transport
func (t *WebSocketTransport) Connect(ctx context.Context, address string) (Link, error) {
	resp, err := t.request(ctx, gatewayRequest{Op: opConnect, Address: address}, t.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}
	if !resp.Connected {
		return nil, fmt.Errorf("gateway connect %s: not connected", address)
	}

	t.mu.Lock()
	t.linkUp = true
	t.mu.Unlock()

	return &gatewayLink{t: t, address: address}, nil
}

// Close implements Transport
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	t.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()
	t.drop(conn)
	return nil
}

// gatewayLink is a device connection held by the gateway
type gatewayLink struct {
	t       *WebSocketTransport
	address string
}

func (l *gatewayLink) Services(ctx context.Context) ([]string, error) {
	resp, err := l.t.request(ctx, gatewayRequest{Op: opServices, Address: l.address}, l.t.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return resp.Services, nil
}

func (l *gatewayLink) StartNotify(ctx context.Context, characteristic string, fn NotifyFunc) error {
	l.t.mu.Lock()
	l.t.notify = fn
	l.t.mu.Unlock()

	_, err := l.t.request(ctx, gatewayRequest{Op: opSubscribe, Address: l.address, Characteristic: characteristic}, l.t.opts.RequestTimeout)
	return err
}

func (l *gatewayLink) Write(ctx context.Context, characteristic string, data []byte) error {
	if !l.IsConnected() {
		return ErrNotConnected
	}
	_, err := l.t.request(ctx, gatewayRequest{Op: opWrite, Address: l.address, Characteristic: characteristic, Data: data}, l.t.opts.RequestTimeout)
	return err
}

func (l *gatewayLink) Disconnect() error {
	l.t.mu.Lock()
	l.t.notify = nil
	up := l.t.linkUp
	l.t.linkUp = false
	l.t.mu.Unlock()

	if !up {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.t.opts.RequestTimeout)
	defer cancel()
	_, err := l.t.request(ctx, gatewayRequest{Op: opDisconnect, Address: l.address}, l.t.opts.RequestTimeout)
	return err
}

func (l *gatewayLink) IsConnected() bool {
	l.t.mu.Lock()
	defer l.t.mu.Unlock()
	return l.t.conn != nil && l.t.linkUp
}
