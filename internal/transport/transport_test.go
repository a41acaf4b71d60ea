// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aquastat/aquastat/pkg/corelec"
)

// ============================================================
// Fake Gateway
// ============================================================

type fakeGateway struct {
	t        *testing.T
	upgrader websocket.Upgrader
	frame    []byte

	mu     sync.Mutex
	writes [][]byte
	ops    []string
	conn   *websocket.Conn
}

func newFakeGateway(t *testing.T) (*fakeGateway, *httptest.Server) {
	g := &fakeGateway{
		t:     t,
		frame: corelec.BuildFrame('M', [13]byte{0x02, 0xD5}),
	}
	srv := httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(srv.Close)
	return g, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (g *fakeGateway) serve(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != "admin" || pass != "secret" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	for {
		var req gatewayRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		g.mu.Lock()
		g.ops = append(g.ops, req.Op)
		g.mu.Unlock()

		resp := gatewayResponse{ID: req.ID}
		switch req.Op {
		case opScan:
			resp.Devices = []Device{
				{Name: "Kitchen Speaker", Address: "AA:00"},
				{Name: "CORELEC Regulateur", Address: "C0:4E", RSSI: -61},
			}
		case opConnect:
			if req.Address != "C0:4E" {
				resp.Error = "device not found"
			}
			resp.Connected = resp.Error == ""
		case opServices:
			resp.Services = []string{"00001800-0000-1000-8000-00805f9b34fb", strings.ToUpper(corelec.UARTServiceUUID)}
		case opWrite:
			g.mu.Lock()
			g.writes = append(g.writes, req.Data)
			g.mu.Unlock()
		}

		g.mu.Lock()
		err := conn.WriteJSON(resp)
		// answer a subscribe and every write with one notification
		if err == nil && (req.Op == opSubscribe || req.Op == opWrite) {
			err = conn.WriteMessage(websocket.BinaryMessage, g.frame)
		}
		g.mu.Unlock()
		if err != nil {
			return
		}
	}
}

func (g *fakeGateway) sendEvent(event string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_ = g.conn.WriteJSON(gatewayResponse{Event: event})
}

// ============================================================
// WebSocket Transport Tests
// ============================================================

func TestNewWebSocket_Scheme(t *testing.T) {
	if _, err := NewWebSocket(WebSocketOptions{URL: "http://gateway"}); err == nil {
		t.Error("Expected error for http:// URL")
	}
	if _, err := NewWebSocket(WebSocketOptions{URL: "wss://gateway/ws"}); err != nil {
		t.Errorf("wss:// URL: %v", err)
	}
}

func TestWebSocket_Unauthorized(t *testing.T) {
	_, srv := newFakeGateway(t)
	tr, err := NewWebSocket(WebSocketOptions{URL: wsURL(srv), Username: "admin", Password: "wrong"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = tr.Discover(context.Background(), time.Second)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("Expected HTTP 401 error, got %v", err)
	}
}

func TestWebSocket_Session(t *testing.T) {
	g, srv := newFakeGateway(t)
	tr, err := NewWebSocket(WebSocketOptions{
		URL:            wsURL(srv),
		Username:       "admin",
		Password:       "secret",
		RequestTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()
	ctx := context.Background()

	devices, err := tr.Discover(ctx, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(devices) != 2 || devices[1].Name != "CORELEC Regulateur" || devices[1].RSSI != -61 {
		t.Fatalf("devices = %+v", devices)
	}

	if _, err := tr.Connect(ctx, "AA:00"); err == nil {
		t.Error("Expected gateway error for unknown device")
	}

	link, err := tr.Connect(ctx, "C0:4E")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !link.IsConnected() {
		t.Fatal("Expected link to be connected")
	}

	services, err := link.Services(ctx)
	if err != nil || len(services) != 2 {
		t.Fatalf("Services = %v, %v", services, err)
	}

	chunks := make(chan []byte, 4)
	err = link.StartNotify(ctx, corelec.UARTCharacteristicUUID, func(b []byte) {
		chunks <- append([]byte(nil), b...)
	})
	if err != nil {
		t.Fatalf("StartNotify: %v", err)
	}

	select {
	case c := <-chunks:
		if !bytes.Equal(c, g.frame) {
			t.Errorf("notification = % X, want % X", c, g.frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No notification after subscribe")
	}

	poll := corelec.NewPollCommand()
	if err := link.Write(ctx, corelec.UARTCharacteristicUUID, poll); err != nil {
		t.Fatalf("Write: %v", err)
	}
	g.mu.Lock()
	if len(g.writes) != 1 || !bytes.Equal(g.writes[0], poll) {
		t.Errorf("gateway writes = %X", g.writes)
	}
	g.mu.Unlock()

	// the gateway reports the peripheral went away
	g.sendEvent(eventDisconnected)
	deadline := time.Now().Add(2 * time.Second)
	for link.IsConnected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if link.IsConnected() {
		t.Error("Expected link down after disconnected event")
	}
	if err := link.Write(ctx, corelec.UARTCharacteristicUUID, poll); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Write after disconnect = %v, want ErrNotConnected", err)
	}
}

func TestWebSocket_ServerGone(t *testing.T) {
	g, srv := newFakeGateway(t)
	tr, err := NewWebSocket(WebSocketOptions{URL: wsURL(srv), Username: "admin", Password: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	link, err := tr.Connect(context.Background(), "C0:4E")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	g.mu.Lock()
	g.conn.Close()
	g.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for link.IsConnected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if link.IsConnected() {
		t.Error("Expected link down after the WebSocket closed")
	}
}

// ============================================================
// Stream Link Tests
// ============================================================

type pipeRWC struct {
	io.Reader
	io.Writer
	closeFn func() error
}

func (p pipeRWC) Close() error { return p.closeFn() }

func TestStreamLink(t *testing.T) {
	inR, inW := io.Pipe()
	var written bytes.Buffer
	l := newStreamLink(pipeRWC{Reader: inR, Writer: &written, closeFn: inR.Close})

	services, _ := l.Services(context.Background())
	if len(services) != 1 || services[0] != corelec.UARTServiceUUID {
		t.Errorf("Services = %v", services)
	}

	got := make(chan []byte, 1)
	if err := l.StartNotify(context.Background(), corelec.UARTCharacteristicUUID, func(b []byte) {
		got <- append([]byte(nil), b...)
	}); err != nil {
		t.Fatalf("StartNotify: %v", err)
	}
	if err := l.StartNotify(context.Background(), corelec.UARTCharacteristicUUID, func([]byte) {}); err == nil {
		t.Error("Expected error on second StartNotify")
	}

	go inW.Write([]byte{0x2A, 0x4D})
	select {
	case b := <-got:
		if !bytes.Equal(b, []byte{0x2A, 0x4D}) {
			t.Errorf("chunk = % X", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No chunk received")
	}

	if err := l.Write(context.Background(), corelec.UARTCharacteristicUUID, []byte{1, 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !bytes.Equal(written.Bytes(), []byte{1, 2}) {
		t.Errorf("written = % X", written.Bytes())
	}

	// remote end closing takes the link down
	inW.Close()
	deadline := time.Now().Add(2 * time.Second)
	for l.IsConnected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if l.IsConnected() {
		t.Error("Expected link down after EOF")
	}
	if err := l.Write(context.Background(), "", []byte{1}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Write after EOF = %v", err)
	}
	if err := l.Disconnect(); err != nil {
		t.Errorf("Disconnect: %v", err)
	}
}

func TestSerial_DiscoverPinnedPort(t *testing.T) {
	s := NewSerial(SerialOptions{Port: "/dev/ttyUSB0", DeviceName: "CORELEC Regulateur"})
	devices, err := s.Discover(context.Background(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 1 || devices[0].Address != "/dev/ttyUSB0" || devices[0].Name != "CORELEC Regulateur" {
		t.Errorf("devices = %+v", devices)
	}
	if s.String() != "Serial: /dev/ttyUSB0 @ 115200 baud" {
		t.Errorf("String = %q", s.String())
	}
}

// ============================================================
// Replay Tests
// ============================================================

func writeCapture(t *testing.T, chunks ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.cbor")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := corelec.NewCaptureWriter(f)
	t0 := time.Now()
	for i, c := range chunks {
		if err := w.Write(t0.Add(time.Duration(i)*time.Second), c); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestReplay(t *testing.T) {
	frame := corelec.BuildFrame('M', [13]byte{0x02, 0xD5})
	path := writeCapture(t, frame[:5], frame[5:])

	r := NewReplay(ReplayOptions{Path: path, DeviceName: "REGUL."})
	devices, _ := r.Discover(context.Background(), time.Second)
	if len(devices) != 1 || devices[0].Name != "REGUL." {
		t.Fatalf("devices = %+v", devices)
	}

	link, err := r.Connect(context.Background(), devices[0].Address)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer link.Disconnect()

	var mu sync.Mutex
	var got []byte
	if err := link.StartNotify(context.Background(), "", func(b []byte) {
		mu.Lock()
		got = append(got, b...)
		mu.Unlock()
	}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for link.IsConnected() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if link.IsConnected() {
		t.Fatal("Expected link down at end of capture")
	}

	mu.Lock()
	defer mu.Unlock()
	if !bytes.Equal(got, frame) {
		t.Errorf("replayed = % X, want % X", got, frame)
	}
}

func TestReplay_MissingFile(t *testing.T) {
	r := NewReplay(ReplayOptions{Path: filepath.Join(t.TempDir(), "none.cbor")})
	devices, err := r.Discover(context.Background(), time.Second)
	if err != nil || len(devices) != 0 {
		t.Errorf("Discover = %v, %v", devices, err)
	}
}

func TestGatewayRequest_DataEncoding(t *testing.T) {
	data, err := json.Marshal(gatewayRequest{ID: 1, Op: opWrite, Data: []byte{0x2A, 0x52}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"data":"KlI="`) {
		t.Errorf("request = %s", data)
	}
}
