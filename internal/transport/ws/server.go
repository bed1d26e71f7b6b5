// Package ws streams observation frames to websocket subscribers. The
// stream is read-only and best-effort: it reflects each settled turn and
// never blocks the turn path.
package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"puzzlewire/internal/protocol"
	"puzzlewire/internal/session"
)

type Server struct {
	store *session.Store
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(store *session.Store, logger *log.Logger) *Server {
	return &Server{
		store: store,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn, r)
		if sess == nil {
			return
		}

		frames, cancel := sess.Subscribe()
		defer cancel()

		// Initial frame so subscribers do not wait for the next turn.
		frame := sess.Frame()
		first := protocol.ObsMsg{
			Type:      protocol.TypeObs,
			Board:     frame.Board,
			BoardJSON: frame.Cells,
			Level:     sess.Level(),
			Status:    sess.Status(),
		}
		if frame.IsMessage {
			first.Message = frame.Message
		}
		if !s.write(conn, first) {
			return
		}

		// Reader goroutine: only watches for the peer closing.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case msg, ok := <-frames:
				if !ok {
					return // dropped as a slow subscriber or session evicted
				}
				if !s.write(conn, msg) {
					return
				}
			}
		}
	}
}

// handshake reads the SUB message and resolves its session. The session
// id may also come from the query string for plain browser clients.
func (s *Server) handshake(conn *websocket.Conn, r *http.Request) *session.Session {
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeSub {
			s.fail(conn, protocol.ErrProtoBadRequest, "expected SUB")
			return nil
		}
		var sub protocol.SubMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			s.fail(conn, protocol.ErrProtoBadRequest, "bad SUB")
			return nil
		}
		if sub.ProtocolVersion != "" && sub.ProtocolVersion != protocol.Version {
			s.fail(conn, protocol.ErrProtoBadRequest, "unsupported protocol version")
			return nil
		}
		id = sub.SessionID
	}
	_ = conn.SetReadDeadline(time.Time{})

	sess, err := s.store.Get(id)
	if err != nil {
		s.fail(conn, protocol.ErrSessionNotFound, "session not found")
		return nil
	}
	return sess
}

func (s *Server) write(conn *websocket.Conn, v any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(v); err != nil {
		return false
	}
	return true
}

func (s *Server) fail(conn *websocket.Conn, code, msg string) {
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteJSON(protocol.ErrMsg{Type: protocol.TypeErr, Code: code, Error: msg})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, msg), time.Now().Add(time.Second))
}
