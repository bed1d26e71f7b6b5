package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"puzzlewire/internal/engine"
)

var (
	// ErrNotFound reports an unknown session id.
	ErrNotFound = errors.New("session: not found")
	// ErrLimit reports that the store is at its session cap.
	ErrLimit = errors.New("session: session limit reached")
)

// Options configure a Store. Zero values mean no cap and no idle expiry.
type Options struct {
	MaxSessions int
	IdleExpiry  time.Duration
	Logger      *log.Logger

	// TurnSinks receive every settled turn of every session.
	TurnSinks []TurnSink
	// OnCreated and OnEvicted run outside the store lock.
	OnCreated func(s *Session)
	OnEvicted func(s *Session)
}

// Store maps opaque session ids to live sessions. Sessions in different
// store slots are fully independent; the store lock only guards the map.
type Store struct {
	opts Options
	log  *log.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		opts:     opts,
		log:      logger,
		sessions: map[string]*Session{},
	}
}

// Create parses puzzle source and binds a fresh session to level 0.
// Source line endings are normalized before parsing; a malformed puzzle
// fails with *engine.ParseError and no session is created. A full store
// rejects before the parse so rejected requests stay cheap.
func (st *Store) Create(source string) (*Session, error) {
	if st.atCap() {
		return nil, ErrLimit
	}
	puz, err := engine.Parse(engine.NormalizeLineEndings(source))
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s, err := newSession(id, puz)
	if err != nil {
		return nil, err
	}
	s.sinks = st.opts.TurnSinks

	st.mu.Lock()
	if st.opts.MaxSessions > 0 && len(st.sessions) >= st.opts.MaxSessions {
		st.mu.Unlock()
		return nil, ErrLimit
	}
	st.sessions[id] = s
	st.mu.Unlock()

	if st.opts.OnCreated != nil {
		st.opts.OnCreated(s)
	}
	st.log.Printf("session created id=%s title=%q levels=%d", id, s.Title, s.TotalLevels())
	return s, nil
}

func (st *Store) atCap() bool {
	if st.opts.MaxSessions <= 0 {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions) >= st.opts.MaxSessions
}

// Get resolves a session id.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	st.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Remove evicts one session, closing its websocket subscribers.
func (st *Store) Remove(id string) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	if ok {
		delete(st.sessions, id)
	}
	st.mu.Unlock()
	if !ok {
		return
	}
	s.closeSubscribers()
	if st.opts.OnEvicted != nil {
		st.opts.OnEvicted(s)
	}
	st.log.Printf("session evicted id=%s turns=%d", id, s.Turns())
}

// Len counts live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// All snapshots the live sessions for admin listings.
func (st *Store) All() []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}

// Janitor evicts idle sessions until ctx ends. No-op without an idle
// expiry configured.
func (st *Store) Janitor(ctx context.Context, every time.Duration) {
	if st.opts.IdleExpiry <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-st.opts.IdleExpiry)
			for _, s := range st.All() {
				if s.LastActive().Before(cutoff) {
					st.Remove(s.ID)
				}
			}
		}
	}
}
