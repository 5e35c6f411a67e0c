package ws_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/battwatch/battwatch/internal/diagnose"
	"github.com/battwatch/battwatch/internal/telemetry"
	wsHub "github.com/battwatch/battwatch/internal/ws"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

// slot is a LatestReader whose record the test can swap.
type slot struct {
	p atomic.Pointer[diagnose.Record]
}

func (s *slot) Latest() *diagnose.Record { return s.p.Load() }

func newSlot(temp float64, ts string) *slot {
	s := &slot{}
	s.set(temp, ts)
	return s
}

func (s *slot) set(temp float64, ts string) {
	sample := telemetry.Sample{Temp: temp, Voltage: 360, Current: -10, SoC: 80, SoH: 95}
	s.p.Store(diagnose.Derive(sample, ts))
}

// startHub starts a test HTTP server with the hub as its handler and the hub's
// Run loop on a cancellable context. Returns the ws:// URL, the hub and cancel.
func startHub(t *testing.T, src wsHub.LatestReader, opts ...wsHub.Option) (string, *wsHub.Hub, context.CancelFunc) {
	t.Helper()

	hub := wsHub.New(src, testInterval, opts...)
	ctx, cancel := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub, cancel
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads and decodes one message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) wsHub.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m wsHub.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	return m
}

func waitForCount(t *testing.T, hub *wsHub.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Count: got %d, want %d", hub.Count(), want)
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateRecord(t *testing.T) {
	wsURL, _, _ := startHub(t, newSlot(30, "2024-01-01T00:00:00.000Z"))

	m := readMessage(t, dial(t, wsURL))
	if m.Event != wsHub.EventLatest {
		t.Errorf("event: got %q, want %q", m.Event, wsHub.EventLatest)
	}
	if m.Data == nil || m.Data.Timestamp != "2024-01-01T00:00:00.000Z" {
		t.Fatalf("data: got %+v", m.Data)
	}
	if m.Data.Diagnostics.Summary != "Risk:LOW | Health:GOOD | Not Charging" {
		t.Errorf("summary: got %q", m.Data.Diagnostics.Summary)
	}
}

func TestHub_ReceivesBroadcastOnTick(t *testing.T) {
	src := newSlot(30, "2024-01-01T00:00:00.000Z")
	wsURL, _, _ := startHub(t, src)

	conn := dial(t, wsURL)
	readMessage(t, conn) // consume immediate record

	src.set(48, "2024-01-01T00:00:03.000Z")

	// Ticks may repeat the old record until the swap is seen.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m := readMessage(t, conn)
		if m.Data.Timestamp == "2024-01-01T00:00:03.000Z" {
			if m.Data.Diagnostics.Risk != diagnose.LevelHigh {
				t.Errorf("risk: got %q, want HIGH", m.Data.Diagnostics.Risk)
			}
			return
		}
	}
	t.Fatal("new record not broadcast within 2s")
}

func TestHub_NoRecordSendsNothingUntilAvailable(t *testing.T) {
	src := &slot{}
	wsURL, _, _ := startHub(t, src)
	conn := dial(t, wsURL)

	conn.SetReadDeadline(time.Now().Add(5 * testInterval))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected no message while there is no record")
	}
}

func TestHub_CountClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, newSlot(30, "t0"))

	conns := make([]*websocket.Conn, 0, 3)
	for i := 0; i < 3; i++ {
		c := dial(t, wsURL)
		readMessage(t, c)
		conns = append(conns, c)
	}
	waitForCount(t, hub, 3)

	conns[0].Close()
	waitForCount(t, hub, 2)
}

func TestHub_ContextCancelClosesClients(t *testing.T) {
	wsURL, hub, cancel := startHub(t, newSlot(30, "t0"))

	conn := dial(t, wsURL)
	readMessage(t, conn)
	waitForCount(t, hub, 1)

	cancel()

	// The server sends a close frame; reads must fail soon after.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				t.Fatalf("connection not closed after cancel: %v", err)
			}
			break
		}
	}
	waitForCount(t, hub, 0)
}

func TestHub_OriginPolicy(t *testing.T) {
	wsURL, _, _ := startHub(t, newSlot(30, "t0"), wsHub.WithAllowedOrigins([]string{"https://dash.example"}))

	hdr := http.Header{}
	hdr.Set("Origin", "https://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, hdr)
	if err == nil {
		t.Fatal("expected dial from a foreign origin to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("status: got %v, want 403", resp)
	}

	hdr.Set("Origin", "https://dash.example")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, hdr)
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	defer conn.Close()
	readMessage(t, conn)
}
