// Package turnlog writes per-session turn transcripts as zstd-compressed
// JSONL, one record per settled turn. Transcript failures are logged and
// never fail a turn.
package turnlog

import (
	"bufio"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"puzzlewire/internal/session"
)

type Logger struct {
	dir string
	log *log.Logger

	mu      sync.Mutex
	writers map[string]*fileWriter
}

type fileWriter struct {
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func New(dir string, logger *log.Logger) *Logger {
	if logger == nil {
		logger = log.Default()
	}
	return &Logger{dir: dir, log: logger, writers: map[string]*fileWriter{}}
}

// Path returns the transcript path for a session id.
func (l *Logger) Path(sessionID string) string {
	return filepath.Join(l.dir, sessionID+".jsonl.zst")
}

// RecordTurn implements session.TurnSink.
func (l *Logger) RecordTurn(rec session.TurnRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, err := l.writerLocked(rec.SessionID)
	if err != nil {
		l.log.Printf("turnlog open (%s): %v", rec.SessionID, err)
		return
	}
	b, err := json.Marshal(rec)
	if err != nil {
		l.log.Printf("turnlog marshal (%s): %v", rec.SessionID, err)
		return
	}
	if _, err := w.w.Write(b); err == nil {
		_ = w.w.WriteByte('\n')
	}
	if err := w.w.Flush(); err != nil {
		l.log.Printf("turnlog write (%s): %v", rec.SessionID, err)
	}
}

func (l *Logger) writerLocked(sessionID string) (*fileWriter, error) {
	if w, ok := l.writers[sessionID]; ok {
		return w, nil
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(l.Path(sessionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w := &fileWriter{f: f, enc: enc, w: bufio.NewWriterSize(enc, 64*1024)}
	l.writers[sessionID] = w
	return w, nil
}

// CloseSession flushes and closes one session's transcript.
func (l *Logger) CloseSession(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.writers[sessionID]; ok {
		delete(l.writers, sessionID)
		closeWriter(l.log, sessionID, w)
	}
}

// Close flushes and closes every open transcript.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, w := range l.writers {
		delete(l.writers, id)
		closeWriter(l.log, id, w)
	}
	return nil
}

func closeWriter(logger *log.Logger, id string, w *fileWriter) {
	if err := w.w.Flush(); err != nil {
		logger.Printf("turnlog flush (%s): %v", id, err)
	}
	if err := w.enc.Close(); err != nil {
		logger.Printf("turnlog close (%s): %v", id, err)
	}
	if err := w.f.Close(); err != nil {
		logger.Printf("turnlog close (%s): %v", id, err)
	}
}

// Read decodes a transcript file back into turn records.
func Read(path string) ([]session.TurnRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []session.TurnRecord
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec session.TurnRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}
