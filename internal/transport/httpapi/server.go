// Package httpapi exposes the session lifecycle over HTTP: /init,
// /action, and /observe, plus health and loopback-gated admin routes.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"puzzlewire/internal/engine"
	"puzzlewire/internal/protocol"
	"puzzlewire/internal/session"
)

type Server struct {
	store     *session.Store
	puzzleDir string
	log       *log.Logger
}

func NewServer(store *session.Store, puzzleDir string, logger *log.Logger) *Server {
	return &Server{store: store, puzzleDir: puzzleDir, log: logger}
}

// Register installs the handlers on a mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/init", s.handleInit)
	mux.HandleFunc("/action", s.handleAction)
	mux.HandleFunc("/observe", s.handleObserve)
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/admin/v1/sessions", s.handleAdminSessions)
}

var puzzleName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func (s *Server) handleInit(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(rw, http.StatusMethodNotAllowed, protocol.ErrProtoBadRequest, "POST required")
		return
	}
	var req protocol.InitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, "bad request body")
		return
	}

	source := req.GameSource
	if source == "" {
		if req.GameName == "" {
			writeError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, "gameSource or gameName required")
			return
		}
		if !puzzleName.MatchString(req.GameName) {
			writeError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, "bad gameName")
			return
		}
		raw, err := os.ReadFile(filepath.Join(s.puzzleDir, req.GameName+".txt"))
		if err != nil {
			writeError(rw, http.StatusNotFound, protocol.ErrPuzzleNotFound, "puzzle not found: "+req.GameName)
			return
		}
		source = string(raw)
	}

	sess, err := s.store.Create(source)
	if err != nil {
		var perr *engine.ParseError
		switch {
		case errors.As(err, &perr):
			writeError(rw, http.StatusInternalServerError, protocol.ErrParseFailed, perr.Error())
		case errors.Is(err, session.ErrLimit):
			writeError(rw, http.StatusServiceUnavailable, protocol.ErrSessionLimit, "session limit reached")
		default:
			writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
		}
		return
	}

	frame := sess.Frame()
	writeJSON(rw, http.StatusOK, protocol.InitResponse{
		SessionID:   sess.ID,
		Board:       frame.Board,
		BoardJSON:   frame.Cells,
		Level:       sess.Level(),
		Legend:      sess.Legend(),
		TotalLevels: sess.TotalLevels(),
	})
}

func (s *Server) handleAction(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(rw, http.StatusMethodNotAllowed, protocol.ErrProtoBadRequest, "POST required")
		return
	}
	var req protocol.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, "bad request body")
		return
	}
	sess, err := s.store.Get(req.SessionID)
	if err != nil {
		writeError(rw, http.StatusNotFound, protocol.ErrSessionNotFound, "session not found")
		return
	}
	resp, err := sess.Do(r.Context(), req.Action)
	if err != nil {
		s.log.Printf("turn failed session=%s action=%q: %v", req.SessionID, req.Action, err)
		writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, "turn failed")
		return
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) handleObserve(rw http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(r.URL.Query().Get("sessionId"))
	if err != nil {
		writeError(rw, http.StatusNotFound, protocol.ErrSessionNotFound, "session not found")
		return
	}
	frame := sess.Frame()
	writeJSON(rw, http.StatusOK, protocol.ObserveResponse{
		Board:     frame.Board,
		BoardJSON: frame.Cells,
		Level:     sess.Level(),
		Legend:    sess.Legend(),
	})
}

func (s *Server) handleAdminSessions(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	type row struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Level  int    `json:"level"`
		Status string `json:"status"`
		Turns  int    `json:"turns"`
	}
	sessions := s.store.All()
	out := make([]row, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, row{
			ID:     sess.ID,
			Title:  sess.Title,
			Level:  sess.Level(),
			Status: sess.Status(),
			Turns:  sess.Turns(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(rw, http.StatusOK, out)
}

func isLoopbackRemote(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, protocol.ErrorResponse{Error: msg, Code: code})
}
