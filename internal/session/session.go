// Package session owns the set of live puzzle instances and serializes
// turns against each one.
package session

import (
	"context"
	"sync"
	"time"

	"puzzlewire/internal/engine"
	"puzzlewire/internal/protocol"
	"puzzlewire/internal/render"
	"puzzlewire/internal/turn"
)

// TurnRecord is one settled turn, handed to the configured sinks.
type TurnRecord struct {
	SessionID string    `json:"session_id"`
	Seq       int       `json:"seq"`
	Intent    string    `json:"intent"`
	Status    string    `json:"status"`
	Level     int       `json:"level"`
	Message   string    `json:"message,omitempty"`
	Board     string    `json:"board"`
	At        time.Time `json:"at"`
}

// Session binds one simulation instance to its render index and turn
// processor. A session exclusively owns its instance; turns are serialized
// by the session's own lock, while observation reads best-effort without
// it and may see an in-flight turn's intermediate state.
type Session struct {
	ID    string
	Title string

	proc  *turn.Processor
	inst  *engine.Instance
	index *render.Index

	mu         sync.Mutex // held for the whole of one turn
	turns      int
	lastActive time.Time

	subMu sync.Mutex
	subs  map[chan protocol.ObsMsg]struct{}

	sinks []TurnSink
}

// TurnSink consumes settled turns (transcripts, read-model indexes). Sink
// failures never fail a turn.
type TurnSink interface {
	RecordTurn(rec TurnRecord)
}

func newSession(id string, puz *engine.Puzzle) (*Session, error) {
	s := &Session{
		ID:         id,
		Title:      puz.Title,
		proc:       turn.NewProcessor(),
		subs:       map[chan protocol.ObsMsg]struct{}{},
		lastActive: time.Now(),
	}
	inst, err := engine.NewInstance(puz, s.proc.Callbacks())
	if err != nil {
		return nil, err
	}
	s.inst = inst
	s.proc.Bind(inst)
	s.index = render.NewIndex(puz.Symbols, inst)
	return s, nil
}

// Frame renders the current state. Read-only.
func (s *Session) Frame() render.Frame {
	return render.Snapshot(s.inst, s.index)
}

// Legend maps renderable glyphs to symbol names.
func (s *Session) Legend() map[string]string { return s.index.Legend() }

// Level is the 1-based playable-level ordinal.
func (s *Session) Level() int { return s.inst.DisplayLevel() }

// TotalLevels counts the puzzle's playable levels.
func (s *Session) TotalLevels() int { return s.inst.LevelCount() }

// Status classifies the resting state without driving a turn.
func (s *Session) Status() string { return s.proc.Status() }

// Turns reports how many turns the session has settled.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

// LastActive reports when the session last settled a turn or was created.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Do settles one turn for a wire action. Unknown actions are no-ops that
// still return the current state. The session lock is held for the whole
// press/tick/settle sequence so two turns never interleave their tick
// loops.
func (s *Session) Do(ctx context.Context, action string) (protocol.ActionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, _ := protocol.ParseAction(action)
	res, err := s.proc.Apply(ctx, intent)
	if err != nil {
		return protocol.ActionResponse{}, err
	}

	frame := s.Frame()
	resp := protocol.ActionResponse{
		Board:     frame.Board,
		BoardJSON: frame.Cells,
		Level:     s.inst.DisplayLevel(),
		Message:   res.Message,
		Status:    res.Status,
	}

	s.turns++
	s.lastActive = time.Now()
	rec := TurnRecord{
		SessionID: s.ID,
		Seq:       s.turns,
		Intent:    intent,
		Status:    res.Status,
		Level:     resp.Level,
		Message:   res.Message,
		Board:     frame.Board,
		At:        s.lastActive,
	}
	for _, sink := range s.sinks {
		sink.RecordTurn(rec)
	}
	s.broadcast(protocol.ObsMsg{
		Type:      protocol.TypeObs,
		Board:     resp.Board,
		BoardJSON: resp.BoardJSON,
		Level:     resp.Level,
		Message:   resp.Message,
		Status:    resp.Status,
	})
	return resp, nil
}

// Subscribe registers a websocket observer. The returned channel gets one
// frame per settled turn; cancel removes it. Slow subscribers are dropped.
func (s *Session) Subscribe() (<-chan protocol.ObsMsg, func()) {
	ch := make(chan protocol.ObsMsg, 8)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()
	cancel := func() {
		s.subMu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcast(msg protocol.ObsMsg) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- msg:
		default:
			delete(s.subs, ch)
			close(ch)
		}
	}
}

func (s *Session) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}
