package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pixelcraft.ai/internal/observerproto"
	"pixelcraft.ai/internal/sim/world"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		WorldName:       "w1",
		Palette:         []observerproto.PaletteRow{{ID: 0, Name: "AIR", Class: "empty"}},
	}, nil)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observer/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", s.WSHandler())
	hs := httptest.NewServer(mux)
	t.Cleanup(hs.Close)
	return s, hs
}

func dial(t *testing.T, hs *httptest.Server, every int) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := conn.WriteJSON(observerproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: observerproto.Version, Every: every}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return conn
}

func waitSessions(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Sessions() != n {
		if time.Now().After(deadline) {
			t.Fatalf("sessions=%d want %d", s.Sessions(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServer_StreamsFramesWithStride(t *testing.T) {
	s, hs := newTestServer(t)
	conn := dial(t, hs, 5)
	waitSessions(t, s, 1)

	// Ticks 1..4 are skipped by the stride; tick 5 is delivered.
	for tick := uint64(1); tick <= 5; tick++ {
		s.Publish(world.FrameStats{Tick: tick, Particles: int(tick)})
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg observerproto.FrameMsg
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if msg.Type != "FRAME" || msg.Stats.Tick != 5 || msg.Stats.Particles != 5 {
		t.Fatalf("frame: %+v", msg)
	}
}

func TestServer_ForwardsCameraMoves(t *testing.T) {
	s, hs := newTestServer(t)
	conn := dial(t, hs, 0)
	waitSessions(t, s, 1)

	if err := conn.WriteJSON(observerproto.CameraMsg{Type: "CAMERA", ProtocolVersion: observerproto.Version, X: 300, Y: -40}); err != nil {
		t.Fatalf("camera: %v", err)
	}
	select {
	case p := <-s.Cameras():
		if p.X != 300 || p.Y != -40 {
			t.Fatalf("camera=%v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("camera move not forwarded")
	}
}

func TestServer_RejectsMissingSubscribe(t *testing.T) {
	s, hs := newTestServer(t)
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(map[string]string{"type": "HELLO"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy close, got %v", err)
	}
	if s.Sessions() != 0 {
		t.Fatalf("sessions=%d", s.Sessions())
	}
}

func TestServer_BootstrapReportsLatestTick(t *testing.T) {
	s, hs := newTestServer(t)
	s.Publish(world.FrameStats{Tick: 42})

	resp, err := http.Get(hs.URL + "/v1/observer/bootstrap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var boot observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&boot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if boot.Tick != 42 || boot.WorldName != "w1" || len(boot.Palette) != 1 {
		t.Fatalf("bootstrap: %+v", boot)
	}
}
