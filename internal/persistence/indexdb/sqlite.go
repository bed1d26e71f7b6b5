// Package indexdb keeps a read-model index of sessions and turns in
// sqlite. It is never consulted on the turn path; writes are queued to a
// single writer goroutine and dropped if the indexer falls behind, with
// the turn transcripts remaining the source of truth.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"puzzlewire/internal/session"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// mu orders enqueues against Close so a recorder can never send on
	// the closed channel.
	mu     sync.RWMutex
	closed bool
}

type reqKind int

const (
	reqSession reqKind = iota + 1
	reqTurn
)

type req struct {
	kind reqKind

	session sessionRow
	turn    session.TurnRecord
}

type sessionRow struct {
	ID        string
	Title     string
	Levels    int
	CreatedAt string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-style turn workload.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			levels INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS turns (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			intent TEXT NOT NULL,
			status TEXT NOT NULL,
			level INTEGER NOT NULL,
			message TEXT,
			at TEXT NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordSession indexes a freshly created session.
func (s *SQLiteIndex) RecordSession(id, title string, levels int, at time.Time) {
	if s == nil {
		return
	}
	r := sessionRow{ID: id, Title: title, Levels: levels, CreatedAt: at.UTC().Format(time.RFC3339Nano)}
	s.enqueue(req{kind: reqSession, session: r})
}

// RecordTurn implements session.TurnSink.
func (s *SQLiteIndex) RecordTurn(rec session.TurnRecord) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqTurn, turn: rec})
}

func (s *SQLiteIndex) enqueue(r req) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- r:
	default:
	}
}

func (s *SQLiteIndex) loop() {
	insertSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(id,title,levels,created_at) VALUES(?,?,?,?)`)
	insertTurn, _ := s.db.Prepare(`INSERT OR REPLACE INTO turns(session_id,seq,intent,status,level,message,at) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		if insertSession != nil {
			_ = insertSession.Close()
		}
		if insertTurn != nil {
			_ = insertTurn.Close()
		}
	}()

	for r := range s.ch {
		switch r.kind {
		case reqSession:
			if insertSession != nil {
				_, _ = insertSession.Exec(r.session.ID, r.session.Title, r.session.Levels, r.session.CreatedAt)
			}
		case reqTurn:
			if insertTurn != nil {
				_, _ = insertTurn.Exec(r.turn.SessionID, r.turn.Seq, r.turn.Intent, r.turn.Status,
					r.turn.Level, r.turn.Message, r.turn.At.UTC().Format(time.RFC3339Nano))
			}
		}
	}
}

// TurnSummary is one indexed turn for admin/replay queries.
type TurnSummary struct {
	Seq     int    `json:"seq"`
	Intent  string `json:"intent"`
	Status  string `json:"status"`
	Level   int    `json:"level"`
	Message string `json:"message,omitempty"`
	At      string `json:"at"`
}

// Turns lists a session's indexed turns in order.
func (s *SQLiteIndex) Turns(ctx context.Context, sessionID string, limit int) ([]TurnSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, intent, status, level, COALESCE(message,''), at
		 FROM turns WHERE session_id = ? ORDER BY seq LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TurnSummary
	for rows.Next() {
		var t TurnSummary
		if err := rows.Scan(&t.Seq, &t.Intent, &t.Status, &t.Level, &t.Message, &t.At); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
