package observer

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"pixelcraft.ai/internal/observerproto"
	"pixelcraft.ai/internal/sim/world/terrain/store"
	"pixelcraft.ai/internal/sim/world"
)

type session struct {
	out   chan []byte
	every atomic.Uint64
}

// Server streams frame stats to loopback observers and forwards camera moves
// back to the goroutine driving the world.
type Server struct {
	log  *log.Logger
	boot observerproto.BootstrapResponse

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	lastTick atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*session

	cameras chan image.Point
}

// Bootstrap describes w for observers. Call it from the goroutine driving w.
func Bootstrap(w *world.World) observerproto.BootstrapResponse {
	t := w.Tuning()
	reg := w.Registry()
	palette := make([]observerproto.PaletteRow, 0, reg.Len())
	for i := 0; i < reg.Len(); i++ {
		m := reg.Get(uint16(i))
		palette = append(palette, observerproto.PaletteRow{ID: m.ID, Name: m.Name, Class: m.Class.String(), Color: m.Color})
	}
	return observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		WorldName:       w.Meta().Name,
		Tick:            w.CurrentTick(),
		WorldParams: observerproto.WorldParams{
			TickRateHz: t.TickRateHz,
			ChunkSize:  [2]int{store.Width, store.Height},
			ArraySize:  [2]int{w.W, w.H},
			TickZone:   [2]int{t.World.TickZoneW, t.World.TickZoneH},
			MeshZone:   [2]int{t.World.MeshZoneW, t.World.MeshZoneH},
			Seed:       t.World.Seed,
			Generator:  t.World.Generator,
		},
		Palette: palette,
	}
}

func NewServer(boot observerproto.BootstrapResponse, logger *log.Logger) *Server {
	s := &Server{
		log:  logger,
		boot: boot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only
		},
		sessions: map[string]*session{},
		cameras:  make(chan image.Point, 16),
	}
	s.lastTick.Store(boot.Tick)
	return s
}

// Cameras yields camera positions requested by observers. The world loop
// drains it between steps.
func (s *Server) Cameras() <-chan image.Point { return s.cameras }

func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Publish fans st out to every observer. Slow observers only see the latest
// frame. It is safe to use as the world's stats sink.
func (s *Server) Publish(st world.FrameStats) {
	s.lastTick.Store(st.Tick)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sessions) == 0 {
		return
	}
	b, err := json.Marshal(observerproto.FrameMsg{Type: "FRAME", ProtocolVersion: observerproto.Version, Stats: st})
	if err != nil {
		s.printf("observer marshal: %v", err)
		return
	}
	for _, sess := range s.sessions {
		if every := sess.every.Load(); every > 1 && st.Tick%every != 0 {
			continue
		}
		sendLatest(sess.out, b)
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := s.boot
		resp.Tick = s.lastTick.Load()
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		sess := &session{out: make(chan []byte, 1)}
		sess.every.Store(stride(sub.Every))
		s.mu.Lock()
		s.sessions[sid] = sess
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sid)
			s.mu.Unlock()
		}()

		done := make(chan struct{})
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				select {
				case <-done:
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						return
					}
				}
			}
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.handleClientMsg(sess, msg)
		}
		close(done)

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writerDone:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) handleClientMsg(sess *session, msg []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &head); err != nil {
		return
	}
	switch head.Type {
	case "SUBSCRIBE":
		if sub, ok := parseSubscribe(msg); ok {
			sess.every.Store(stride(sub.Every))
		}
	case "CAMERA":
		var cam observerproto.CameraMsg
		if err := json.Unmarshal(msg, &cam); err != nil || cam.ProtocolVersion != observerproto.Version {
			return
		}
		select {
		case s.cameras <- image.Pt(cam.X, cam.Y):
		default:
			// Drop moves under load; the client may resend.
		}
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	return sub, sub.Type == "SUBSCRIBE" && sub.ProtocolVersion == observerproto.Version
}

func stride(every int) uint64 {
	if every <= 1 {
		return 1
	}
	if every > 3600 {
		every = 3600
	}
	return uint64(every)
}

// sendLatest replaces a pending frame instead of blocking the world loop.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func (s *Server) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
