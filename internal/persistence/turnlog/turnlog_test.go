package turnlog

import (
	"io"
	"log"
	"os"
	"testing"
	"time"

	"puzzlewire/internal/session"
)

func record(id string, seq int) session.TurnRecord {
	return session.TurnRecord{
		SessionID: id,
		Seq:       seq,
		Intent:    "right",
		Status:    "playing",
		Level:     1,
		Board:     "#P.#",
		At:        time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, log.New(io.Discard, "", 0))

	for seq := 1; seq <= 3; seq++ {
		l.RecordTurn(record("s1", seq))
	}
	l.RecordTurn(record("s2", 1))
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	recs, err := Read(l.Path("s1"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3", len(recs))
	}
	for i, rec := range recs {
		if rec.Seq != i+1 || rec.SessionID != "s1" {
			t.Fatalf("record %d: %+v", i, rec)
		}
	}
	if recs[0].Board != "#P.#" || !recs[0].At.Equal(record("s1", 1).At) {
		t.Fatalf("fields lost: %+v", recs[0])
	}

	other, err := Read(l.Path("s2"))
	if err != nil || len(other) != 1 {
		t.Fatalf("sessions must not share transcripts: %v %v", other, err)
	}
}

func TestCloseSessionFlushes(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, log.New(io.Discard, "", 0))
	defer l.Close()

	l.RecordTurn(record("s1", 1))
	l.CloseSession("s1")

	recs, err := Read(l.Path("s1"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d", len(recs))
	}

	// Recording after a close reopens the transcript in append mode.
	l.RecordTurn(record("s1", 2))
	l.CloseSession("s1")
	recs, err = Read(l.Path("s1"))
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if len(recs) != 2 || recs[1].Seq != 2 {
		t.Fatalf("append after close: %+v", recs)
	}
}

func TestReadMissingTranscript(t *testing.T) {
	l := New(t.TempDir(), log.New(io.Discard, "", 0))
	if _, err := Read(l.Path("absent")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}
